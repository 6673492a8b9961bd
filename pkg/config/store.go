package config

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// ChatGroupDiceRobot is the chat settings group holding per-chat bot state.
const ChatGroupDiceRobot = "dicerobot"

func DefaultDiceRobotChatSettings() Object {
	return Object{
		"enabled":  true,
		"nickname": "",
	}
}

type ChatKey struct {
	Type  string
	ID    int64
	Group string
}

// Dump is the whole persisted state, as exchanged with a Persister.
type Dump struct {
	Settings       map[string]json.RawMessage
	PluginSettings map[string]Object
	ChatSettings   map[ChatKey]Object
	Replies        map[string]map[string]string
}

type Persister interface {
	Load(ctx context.Context) (*Dump, error)
	Save(ctx context.Context, dump *Dump) error
}

// snapshot is never mutated once published.
type snapshot struct {
	plugins map[string]Object
	chats   map[ChatKey]Object
	replies map[string]map[string]string
}

func (s *snapshot) clone() *snapshot {
	next := &snapshot{
		plugins: make(map[string]Object, len(s.plugins)),
		chats:   make(map[ChatKey]Object, len(s.chats)),
		replies: make(map[string]map[string]string, len(s.replies)),
	}
	for k, v := range s.plugins {
		next.plugins[k] = v
	}
	for k, v := range s.chats {
		next.chats[k] = v
	}
	for k, v := range s.replies {
		next.replies[k] = v
	}
	return next
}

// Store is the configuration overlay shared by the whole application.
// Readers get defensive copies; writers publish a new snapshot and mark
// the store dirty so the next save_config run persists it.
type Store struct {
	persister Persister
	mu        sync.Mutex
	snap      atomic.Pointer[snapshot]
	settings  atomic.Pointer[Settings]
	dirty     atomic.Bool
}

func NewStore(persister Persister) *Store {
	s := &Store{persister: persister}
	s.snap.Store(&snapshot{
		plugins: map[string]Object{},
		chats:   map[ChatKey]Object{},
		replies: map[string]map[string]string{},
	})
	defaults := DefaultSettings()
	s.settings.Store(&defaults)
	return s
}

func (s *Store) Settings() Settings {
	return *s.settings.Load()
}

func (s *Store) UpdateSettings(fn func(*Settings)) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.settings.Load()
	fn(&next)
	s.settings.Store(&next)
	s.dirty.Store(true)
	return next
}

func (s *Store) PluginSettings(plugin string) Object {
	obj := DeepCopy(s.snap.Load().plugins[plugin])
	if obj == nil {
		return Object{}
	}
	return obj
}

func (s *Store) SetPluginSettings(plugin string, obj Object) {
	s.write(func(next *snapshot) {
		next.plugins[plugin] = Normalize(obj)
	})
}

func (s *Store) Replies(group string) map[string]string {
	src := s.snap.Load().replies[group]
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func (s *Store) SetReplies(group string, replies map[string]string) {
	copied := make(map[string]string, len(replies))
	for k, v := range replies {
		copied[k] = v
	}
	s.write(func(next *snapshot) {
		next.replies[group] = copied
	})
}

// ChatSettings returns the settings of one group of one chat. The dicerobot
// group always carries enabled and nickname.
func (s *Store) ChatSettings(chatType string, chatID int64, group string) Object {
	obj := DeepCopy(s.snap.Load().chats[ChatKey{Type: chatType, ID: chatID, Group: group}])
	if obj == nil {
		obj = Object{}
	}
	if group == ChatGroupDiceRobot {
		for k, v := range DefaultDiceRobotChatSettings() {
			if _, ok := obj[k]; !ok {
				obj[k] = v
			}
		}
	}
	return obj
}

func (s *Store) SetChatSettings(chatType string, chatID int64, group string, obj Object) {
	key := ChatKey{Type: chatType, ID: chatID, Group: group}
	s.write(func(next *snapshot) {
		next.chats[key] = Normalize(obj)
	})
}

// Chats lists the chats holding settings for group, in a stable order.
func (s *Store) Chats(group string) []ChatKey {
	var keys []ChatKey
	for key := range s.snap.Load().chats {
		if key.Group == group {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		return keys[i].ID < keys[j].ID
	})
	return keys
}

func (s *Store) write(fn func(next *snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snap.Load().clone()
	fn(next)
	s.snap.Store(next)
	s.dirty.Store(true)
}

func (s *Store) Dirty() bool {
	return s.dirty.Load()
}

func (s *Store) MarkDirty() {
	s.dirty.Store(true)
}

// Load replaces the in-memory state with the persisted one.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}

	dump, err := s.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	settings, err := decodeSettings(dump.Settings)
	if err != nil {
		return err
	}

	next := &snapshot{
		plugins: make(map[string]Object, len(dump.PluginSettings)),
		chats:   make(map[ChatKey]Object, len(dump.ChatSettings)),
		replies: make(map[string]map[string]string, len(dump.Replies)),
	}
	for k, v := range dump.PluginSettings {
		next.plugins[k] = Normalize(v)
	}
	for k, v := range dump.ChatSettings {
		next.chats[k] = Normalize(v)
	}
	for k, v := range dump.Replies {
		next.replies[k] = v
	}

	s.mu.Lock()
	s.settings.Store(&settings)
	s.snap.Store(next)
	s.dirty.Store(false)
	s.mu.Unlock()
	return nil
}

// Save persists the store if it is dirty. It reports whether a write happened.
func (s *Store) Save(ctx context.Context) (bool, error) {
	if s.persister == nil {
		return false, nil
	}
	if !s.dirty.Swap(false) {
		return false, nil
	}

	dump, err := s.Dump()
	if err != nil {
		s.dirty.Store(true)
		return false, err
	}
	if err := s.persister.Save(ctx, dump); err != nil {
		s.dirty.Store(true)
		return false, fmt.Errorf("failed to save config: %w", err)
	}
	return true, nil
}

func (s *Store) Dump() (*Dump, error) {
	settings := s.Settings()
	snap := s.snap.Load()

	groups := map[string]any{
		SettingsGroupSecurity: settings.Security,
		SettingsGroupApp:      settings.App,
		SettingsGroupGateway:  settings.Gateway,
		SettingsGroupDirs:     settings.Dirs,
	}

	dump := &Dump{
		Settings:       make(map[string]json.RawMessage, len(groups)),
		PluginSettings: make(map[string]Object, len(snap.plugins)),
		ChatSettings:   make(map[ChatKey]Object, len(snap.chats)),
		Replies:        make(map[string]map[string]string, len(snap.replies)),
	}
	for group, value := range groups {
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s settings: %w", group, err)
		}
		dump.Settings[group] = data
	}
	for k, v := range snap.plugins {
		dump.PluginSettings[k] = DeepCopy(v)
	}
	for k, v := range snap.chats {
		dump.ChatSettings[k] = DeepCopy(v)
	}
	for k, v := range snap.replies {
		dump.Replies[k] = v
	}
	return dump, nil
}

func decodeSettings(raw map[string]json.RawMessage) (Settings, error) {
	settings := DefaultSettings()
	targets := map[string]any{
		SettingsGroupSecurity: &settings.Security,
		SettingsGroupApp:      &settings.App,
		SettingsGroupGateway:  &settings.Gateway,
		SettingsGroupDirs:     &settings.Dirs,
	}
	for group, target := range targets {
		data, ok := raw[group]
		if !ok || len(data) == 0 {
			continue
		}
		if err := json.Unmarshal(data, target); err != nil {
			return Settings{}, fmt.Errorf("failed to decode %s settings: %w", group, err)
		}
	}
	return settings, nil
}
