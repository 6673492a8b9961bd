package config

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type memoryPersister struct {
	dump    *Dump
	saves   int
	saveErr error
}

func (m *memoryPersister) Load(ctx context.Context) (*Dump, error) {
	if m.dump == nil {
		return &Dump{}, nil
	}
	return m.dump, nil
}

func (m *memoryPersister) Save(ctx context.Context, dump *Dump) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.dump = dump
	return nil
}

func TestStore_ReadsReturnCopies(t *testing.T) {
	s := NewStore(nil)
	s.SetPluginSettings("dice", Object{"enabled": true, "nested": map[string]any{"k": "v"}})

	got := s.PluginSettings("dice")
	got["enabled"] = false
	got["nested"].(map[string]any)["k"] = "changed"

	again := s.PluginSettings("dice")
	if again["enabled"] != true || again["nested"].(map[string]any)["k"] != "v" {
		t.Fatalf("store mutated through a read copy: %#v", again)
	}

	replies := map[string]string{"a": "1"}
	s.SetReplies("dice", replies)
	replies["a"] = "2"
	r := s.Replies("dice")
	r["b"] = "3"
	if got := s.Replies("dice"); !reflect.DeepEqual(got, map[string]string{"a": "1"}) {
		t.Fatalf("Replies() = %#v", got)
	}
}

func TestStore_DiceRobotChatDefaults(t *testing.T) {
	s := NewStore(nil)
	got := s.ChatSettings("group", 100, ChatGroupDiceRobot)
	if got["enabled"] != true || got["nickname"] != "" {
		t.Fatalf("ChatSettings() = %#v, want defaults", got)
	}

	s.SetChatSettings("group", 100, ChatGroupDiceRobot, Object{"enabled": false})
	got = s.ChatSettings("group", 100, ChatGroupDiceRobot)
	if got["enabled"] != false || got["nickname"] != "" {
		t.Fatalf("ChatSettings() = %#v", got)
	}

	if other := s.ChatSettings("group", 100, "dice"); len(other) != 0 {
		t.Fatalf("plugin chat settings = %#v, want empty", other)
	}
}

func TestStore_Chats(t *testing.T) {
	s := NewStore(nil)
	s.SetChatSettings("group", 2, "news", Object{"subscribed": true})
	s.SetChatSettings("friend", 9, "news", Object{"subscribed": true})
	s.SetChatSettings("group", 1, "news", Object{"subscribed": true})
	s.SetChatSettings("group", 3, "dice", Object{})

	want := []ChatKey{
		{Type: "friend", ID: 9, Group: "news"},
		{Type: "group", ID: 1, Group: "news"},
		{Type: "group", ID: 2, Group: "news"},
	}
	if got := s.Chats("news"); !reflect.DeepEqual(got, want) {
		t.Fatalf("Chats() = %#v, want %#v", got, want)
	}
}

func TestStore_SaveOnlyWhenDirty(t *testing.T) {
	p := &memoryPersister{}
	s := NewStore(p)
	ctx := context.Background()

	if saved, err := s.Save(ctx); err != nil || saved {
		t.Fatalf("Save() on clean store = %v, %v", saved, err)
	}

	s.SetPluginSettings("dice", Object{"enabled": true})
	if !s.Dirty() {
		t.Fatal("write did not mark the store dirty")
	}
	if saved, err := s.Save(ctx); err != nil || !saved {
		t.Fatalf("Save() = %v, %v", saved, err)
	}
	if s.Dirty() || p.saves != 1 {
		t.Fatalf("dirty=%v saves=%d after save", s.Dirty(), p.saves)
	}
}

func TestStore_SaveFailureKeepsDirty(t *testing.T) {
	p := &memoryPersister{saveErr: errors.New("disk full")}
	s := NewStore(p)
	s.SetReplies("dice", map[string]string{"a": "b"})

	if _, err := s.Save(context.Background()); err == nil {
		t.Fatal("Save() error = nil, want failure")
	}
	if !s.Dirty() {
		t.Fatal("failed save cleared the dirty flag")
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	p := &memoryPersister{}
	ctx := context.Background()

	s := NewStore(p)
	s.UpdateSettings(func(settings *Settings) {
		settings.Security.Webhook.Secret = "secret"
		settings.App.StartGatewayAtStartup = true
	})
	s.SetPluginSettings("dice", Object{"enabled": true, "max_count": 100})
	s.SetChatSettings("group", 42, "dice", Object{"default_surface": 20})
	s.SetReplies("dice", map[string]string{"result": "{&发送者}骰出了：{&掷骰结果}"})
	if _, err := s.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded := NewStore(p)
	if err := loaded.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !reflect.DeepEqual(loaded.Settings(), s.Settings()) {
		t.Fatalf("settings = %#v, want %#v", loaded.Settings(), s.Settings())
	}
	if !reflect.DeepEqual(loaded.PluginSettings("dice"), s.PluginSettings("dice")) {
		t.Fatalf("plugin settings = %#v", loaded.PluginSettings("dice"))
	}
	if !reflect.DeepEqual(loaded.ChatSettings("group", 42, "dice"), s.ChatSettings("group", 42, "dice")) {
		t.Fatalf("chat settings = %#v", loaded.ChatSettings("group", 42, "dice"))
	}
	if !reflect.DeepEqual(loaded.Replies("dice"), s.Replies("dice")) {
		t.Fatalf("replies = %#v", loaded.Replies("dice"))
	}
	if loaded.Dirty() {
		t.Fatal("freshly loaded store is dirty")
	}
}
