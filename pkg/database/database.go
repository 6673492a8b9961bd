// DiceRobot - QQ dice and chat assistant
// License: MIT
//
// Copyright (c) 2026 DiceRobot contributors

package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dicerobot/dicerobot/pkg/config"
	"github.com/dicerobot/dicerobot/pkg/logger"
)

type Config struct {
	Path          string
	BusyTimeoutMs int
	WAL           bool
}

func DefaultConfig(path string) Config {
	return Config{
		Path:          path,
		BusyTimeoutMs: 5000,
		WAL:           true,
	}
}

func (c Config) dsn() string {
	var pragmas []string
	if c.BusyTimeoutMs > 0 {
		pragmas = append(pragmas, fmt.Sprintf("_pragma=busy_timeout(%d)", c.BusyTimeoutMs))
	}
	if c.WAL {
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)")
	}
	if len(pragmas) == 0 {
		return c.Path
	}
	return c.Path + "?" + strings.Join(pragmas, "&")
}

// DB persists the configuration store in SQLite. It implements config.Persister.
type DB struct {
	gdb *gorm.DB
}

var _ config.Persister = (*DB)(nil)

func Open(cfg Config) (*DB, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	gdb, err := gorm.Open(sqlite.Open(cfg.dsn()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := AutoMigrate(gdb); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.InfoCF("database", "Database opened", map[string]interface{}{
		"path": cfg.Path,
	})
	return &DB{gdb: gdb}, nil
}

func AutoMigrate(gdb *gorm.DB) error {
	if gdb == nil {
		return fmt.Errorf("nil gorm db")
	}
	return gdb.AutoMigrate(
		&Setting{},
		&PluginSetting{},
		&ChatSetting{},
		&Reply{},
	)
}

func (db *DB) Close() error {
	sqlDB, err := db.gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (db *DB) Load(ctx context.Context) (*config.Dump, error) {
	tx := db.gdb.WithContext(ctx)
	dump := &config.Dump{
		Settings:       map[string]json.RawMessage{},
		PluginSettings: map[string]config.Object{},
		ChatSettings:   map[config.ChatKey]config.Object{},
		Replies:        map[string]map[string]string{},
	}

	var settings []Setting
	if err := tx.Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	for _, row := range settings {
		dump.Settings[row.Group] = json.RawMessage(row.JSON)
	}

	var plugins []PluginSetting
	if err := tx.Find(&plugins).Error; err != nil {
		return nil, fmt.Errorf("failed to query plugin settings: %w", err)
	}
	for _, row := range plugins {
		obj, err := decodeObject(row.JSON)
		if err != nil {
			logger.WarnCF("database", "Skipping malformed plugin settings", map[string]interface{}{
				"plugin": row.Plugin,
				"error":  err.Error(),
			})
			continue
		}
		dump.PluginSettings[row.Plugin] = obj
	}

	var chats []ChatSetting
	if err := tx.Find(&chats).Error; err != nil {
		return nil, fmt.Errorf("failed to query chat settings: %w", err)
	}
	for _, row := range chats {
		obj, err := decodeObject(row.JSON)
		if err != nil {
			logger.WarnCF("database", "Skipping malformed chat settings", map[string]interface{}{
				"chat_type": row.ChatType,
				"chat_id":   row.ChatID,
				"group":     row.Group,
				"error":     err.Error(),
			})
			continue
		}
		dump.ChatSettings[config.ChatKey{Type: row.ChatType, ID: row.ChatID, Group: row.Group}] = obj
	}

	var replies []Reply
	if err := tx.Find(&replies).Error; err != nil {
		return nil, fmt.Errorf("failed to query replies: %w", err)
	}
	for _, row := range replies {
		group, ok := dump.Replies[row.Group]
		if !ok {
			group = map[string]string{}
			dump.Replies[row.Group] = group
		}
		group[row.Key] = row.Value
	}

	return dump, nil
}

// Save rewrites all four tables in a single transaction.
func (db *DB) Save(ctx context.Context, dump *config.Dump) error {
	settings := make([]Setting, 0, len(dump.Settings))
	for group, data := range dump.Settings {
		settings = append(settings, Setting{Group: group, JSON: string(data)})
	}

	plugins := make([]PluginSetting, 0, len(dump.PluginSettings))
	for name, obj := range dump.PluginSettings {
		data, err := json.Marshal(obj)
		if err != nil {
			return fmt.Errorf("failed to encode settings of plugin %s: %w", name, err)
		}
		plugins = append(plugins, PluginSetting{Plugin: name, JSON: string(data)})
	}

	chats := make([]ChatSetting, 0, len(dump.ChatSettings))
	for key, obj := range dump.ChatSettings {
		data, err := json.Marshal(obj)
		if err != nil {
			return fmt.Errorf("failed to encode chat settings: %w", err)
		}
		chats = append(chats, ChatSetting{ChatType: key.Type, ChatID: key.ID, Group: key.Group, JSON: string(data)})
	}

	var replies []Reply
	for group, items := range dump.Replies {
		for key, value := range items {
			replies = append(replies, Reply{Group: group, Key: key, Value: value})
		}
	}

	return db.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		for _, model := range []interface{}{&Setting{}, &PluginSetting{}, &ChatSetting{}, &Reply{}} {
			if err := all.Delete(model).Error; err != nil {
				return err
			}
		}

		if len(settings) > 0 {
			if err := tx.CreateInBatches(settings, 100).Error; err != nil {
				return err
			}
		}
		if len(plugins) > 0 {
			if err := tx.CreateInBatches(plugins, 100).Error; err != nil {
				return err
			}
		}
		if len(chats) > 0 {
			if err := tx.CreateInBatches(chats, 100).Error; err != nil {
				return err
			}
		}
		if len(replies) > 0 {
			if err := tx.CreateInBatches(replies, 100).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func decodeObject(data string) (config.Object, error) {
	obj := config.Object{}
	if strings.TrimSpace(data) == "" {
		return obj, nil
	}
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}
