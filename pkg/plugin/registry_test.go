package plugin

import (
	"context"
	"reflect"
	"testing"

	"github.com/dicerobot/dicerobot/pkg/bot"
	"github.com/dicerobot/dicerobot/pkg/config"
	"github.com/dicerobot/dicerobot/pkg/plugin/plugintest"
)

type testOrderPlugin struct {
	desc Descriptor
}

func (p *testOrderPlugin) Descriptor() Descriptor { return p.desc }

func (p *testOrderPlugin) HandleOrder(ctx context.Context, rt *OrderRuntime) error { return nil }

type testEventPlugin struct {
	desc        Descriptor
	initialized int
}

func (p *testEventPlugin) Descriptor() Descriptor { return p.desc }

func (p *testEventPlugin) HandleEvent(ctx context.Context, rt *EventRuntime) error { return nil }

func (p *testEventPlugin) Initialize(pctx *Context) error {
	p.initialized++
	return nil
}

func newTestContext() *Context {
	return &Context{
		Store:   config.NewStore(nil),
		Gateway: plugintest.NewGateway(),
		Bot:     bot.NewStatus(),
	}
}

func dicePlugin() *testOrderPlugin {
	return &testOrderPlugin{desc: Descriptor{
		Name:            "dice",
		Orders:          []string{"r"},
		Priority:        1,
		MaxRepetition:   30,
		DefaultSettings: config.Object{"max_count": 100, "nested": map[string]any{"a": 1}},
		DefaultReplies:  map[string]string{"result": "{&发送者}骰出了：{&掷骰结果}"},
	}}
}

func TestNewRegistry_Validation(t *testing.T) {
	pctx := newTestContext()

	if _, err := NewRegistry(pctx, dicePlugin(), dicePlugin()); err == nil {
		t.Fatal("NewRegistry() accepted a duplicate plugin")
	}
	if _, err := NewRegistry(pctx, &testOrderPlugin{desc: Descriptor{Name: "empty"}}); err == nil {
		t.Fatal("NewRegistry() accepted an order plugin without orders")
	}
	if _, err := NewRegistry(pctx, &testOrderPlugin{desc: Descriptor{Name: CoreReplyGroup, Orders: []string{"x"}}}); err == nil {
		t.Fatal("NewRegistry() accepted the reserved name")
	}
}

func TestLoad_ReconcilesSettingsAndReplies(t *testing.T) {
	pctx := newTestContext()
	pctx.Store.SetPluginSettings("dice", config.Object{"max_count": 50, "stale": true, "enabled": false})
	pctx.Store.SetReplies("dice", map[string]string{"stale": "x"})

	r, err := NewRegistry(pctx, dicePlugin())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if err := r.LoadAll(); err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}

	want := config.Object{
		"enabled":   false,
		"max_count": float64(50),
		"nested":    map[string]any{"a": float64(1)},
	}
	if got := r.Settings("dice"); !reflect.DeepEqual(got, want) {
		t.Fatalf("Settings() = %#v, want %#v", got, want)
	}
	if got := pctx.Store.PluginSettings("dice"); !reflect.DeepEqual(got, want) {
		t.Fatalf("stored settings = %#v, want %#v", got, want)
	}
	if got := r.Replies("dice"); !reflect.DeepEqual(got, map[string]string{"result": "{&发送者}骰出了：{&掷骰结果}"}) {
		t.Fatalf("Replies() = %#v", got)
	}
	if got := r.Replies(CoreReplyGroup); got["order_invalid"] == "" {
		t.Fatalf("core replies not loaded: %#v", got)
	}
}

type discardPersister struct{}

func (discardPersister) Load(ctx context.Context) (*config.Dump, error) { return &config.Dump{}, nil }

func (discardPersister) Save(ctx context.Context, dump *config.Dump) error { return nil }

func TestLoad_IdempotentAndQuiet(t *testing.T) {
	pctx := newTestContext()
	pctx.Store = config.NewStore(discardPersister{})
	r, _ := NewRegistry(pctx, dicePlugin())
	if err := r.LoadAll(); err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	first := r.Settings("dice")

	if _, err := pctx.Store.Save(context.Background()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := r.LoadAll(); err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if pctx.Store.Dirty() {
		t.Fatal("second LoadAll() wrote to the store")
	}
	if got := r.Settings("dice"); !reflect.DeepEqual(got, first) {
		t.Fatalf("Settings() after reload = %#v, want %#v", got, first)
	}
}

func TestPatchAndResetSettings(t *testing.T) {
	pctx := newTestContext()
	r, _ := NewRegistry(pctx, dicePlugin())
	r.LoadAll()

	if err := r.PatchPluginSettings("dice", config.Object{"max_count": 10, "unknown": 1}); err != nil {
		t.Fatalf("PatchPluginSettings() error = %v", err)
	}
	got := r.Settings("dice")
	if got["max_count"] != float64(10) {
		t.Fatalf("max_count = %#v", got["max_count"])
	}
	if _, ok := got["unknown"]; ok {
		t.Fatal("unknown key survived a patch")
	}

	if err := r.ResetPluginSettings("dice"); err != nil {
		t.Fatalf("ResetPluginSettings() error = %v", err)
	}
	if got := r.Settings("dice"); got["max_count"] != float64(100) || got["enabled"] != true {
		t.Fatalf("Settings() after reset = %#v", got)
	}

	if err := r.PatchReplies("dice", map[string]string{"result": "custom"}); err != nil {
		t.Fatalf("PatchReplies() error = %v", err)
	}
	if r.Replies("dice")["result"] != "custom" {
		t.Fatal("reply patch not applied")
	}
	if err := r.ResetReplies("dice"); err != nil {
		t.Fatalf("ResetReplies() error = %v", err)
	}
	if r.Replies("dice")["result"] == "custom" {
		t.Fatal("reply reset not applied")
	}

	if err := r.PatchPluginSettings("missing", nil); err == nil {
		t.Fatal("PatchPluginSettings() on unknown plugin succeeded")
	}
}

func TestSnapshotNotMutatedByReaders(t *testing.T) {
	pctx := newTestContext()
	r, _ := NewRegistry(pctx, dicePlugin())
	r.LoadAll()

	s := r.Settings("dice")
	s["max_count"] = float64(1)
	s["nested"].(map[string]any)["a"] = float64(2)

	again := r.Settings("dice")
	if again["max_count"] != float64(100) || again["nested"].(map[string]any)["a"] != float64(1) {
		t.Fatalf("snapshot mutated through a copy: %#v", again)
	}
}

func TestEventSubscribersAndInitialize(t *testing.T) {
	pctx := newTestContext()
	first := &testEventPlugin{desc: Descriptor{Name: "first", Events: []string{"FriendRequest"}}}
	second := &testEventPlugin{desc: Descriptor{Name: "second", Events: []string{"FriendRequest", "GroupRequest"}}}

	r, err := NewRegistry(pctx, first, second)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	subs := r.Subscribers("FriendRequest")
	if len(subs) != 2 || subs[0].Descriptor().Name != "first" || subs[1].Descriptor().Name != "second" {
		t.Fatalf("Subscribers() = %v", subs)
	}
	if len(r.Subscribers("NotifyNotice")) != 0 {
		t.Fatal("unexpected subscribers")
	}

	if err := r.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if first.initialized != 1 || second.initialized != 1 {
		t.Fatalf("initialize calls = %d, %d", first.initialized, second.initialized)
	}

	infos := r.Plugins()
	if len(infos) != 2 || infos[0].Kind != KindEvent || !infos[0].Enabled {
		t.Fatalf("Plugins() = %+v", infos)
	}
}
