// Package session keeps the conversation history of each chat for the chat
// plugin, one JSON file per chat.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dicerobot/dicerobot/pkg/logger"
	"github.com/dicerobot/dicerobot/pkg/utils"
)

// MaxContentRunes bounds a single stored message.
const MaxContentRunes = 2000

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Session struct {
	Key      string    `json:"key"`
	Messages []Message `json:"messages"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
}

type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	storage  string
}

// NewManager loads the sessions found in storage. An empty storage keeps
// sessions in memory only.
func NewManager(storage string) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		storage:  storage,
	}

	if storage != "" {
		if err := os.MkdirAll(storage, 0755); err != nil {
			logger.WarnCF("session", "Failed to create session directory", map[string]interface{}{
				"path":  storage,
				"error": err.Error(),
			})
		}
		m.loadSessions()
	}
	return m
}

// Key names the session of one chat.
func Key(chatType string, chatID int64) string {
	return fmt.Sprintf("%s-%d", chatType, chatID)
}

func (m *Manager) History(key string) []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[key]
	if !ok {
		return nil
	}
	history := make([]Message, len(s.Messages))
	copy(history, s.Messages)
	return history
}

// Append records messages and keeps only the last keepLast of them. A
// keepLast of zero or less drops the session instead.
func (m *Manager) Append(key string, keepLast int, messages ...Message) {
	if keepLast <= 0 {
		m.Reset(key)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	s, ok := m.sessions[key]
	if !ok {
		s = &Session{Key: key, Created: now}
		m.sessions[key] = s
	}
	for _, msg := range messages {
		msg.Content = utils.Truncate(msg.Content, MaxContentRunes)
		s.Messages = append(s.Messages, msg)
	}
	if len(s.Messages) > keepLast {
		s.Messages = append([]Message(nil), s.Messages[len(s.Messages)-keepLast:]...)
	}
	s.Updated = now
}

func (m *Manager) Reset(key string) {
	m.mu.Lock()
	_, ok := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()

	if ok && m.storage != "" {
		if err := os.Remove(m.path(key)); err != nil && !os.IsNotExist(err) {
			logger.WarnCF("session", "Failed to remove session", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}
}

// Save writes one session to disk through a temp file.
func (m *Manager) Save(key string) error {
	if m.storage == "" {
		return nil
	}

	m.mu.RLock()
	s, ok := m.sessions[key]
	var data []byte
	var err error
	if ok {
		data, err = json.MarshalIndent(s, "", "  ")
	}
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	if err != nil {
		return err
	}

	path := m.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (m *Manager) path(key string) string {
	return filepath.Join(m.storage, key+".json")
}

func (m *Manager) loadSessions() {
	files, err := os.ReadDir(m.storage)
	if err != nil {
		return
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(m.storage, file.Name()))
		if err != nil {
			continue
		}
		var s Session
		if err := json.Unmarshal(data, &s); err != nil || s.Key == "" {
			logger.WarnCF("session", "Skipping unreadable session", map[string]interface{}{
				"file": file.Name(),
			})
			continue
		}
		m.sessions[s.Key] = &s
	}
}
