package plugins

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dicerobot/dicerobot/pkg/config"
	"github.com/dicerobot/dicerobot/pkg/dispatch"
	"github.com/dicerobot/dicerobot/pkg/plugin"
	"github.com/dicerobot/dicerobot/pkg/plugin/plugintest"
	"github.com/dicerobot/dicerobot/pkg/report"
)

type harness struct {
	store      *config.Store
	gateway    *plugintest.Gateway
	registry   *plugin.Registry
	dispatcher *dispatch.Dispatcher
}

func newHarness(t *testing.T, scheduler plugin.Scheduler, plugins ...plugin.Plugin) *harness {
	t.Helper()
	store := config.NewStore(nil)
	dir := t.TempDir()
	store.UpdateSettings(func(s *config.Settings) {
		s.Dirs.Base = dir
		s.Dirs.Temp = filepath.Join(dir, "temp")
		s.Dirs.Data = filepath.Join(dir, "data")
		s.Dirs.Logs = filepath.Join(dir, "logs")
	})

	h := &harness{store: store, gateway: plugintest.NewGateway()}
	status := plugintest.RunningStatus()
	pctx := &plugin.Context{Store: store, Gateway: h.gateway, Bot: status, Scheduler: scheduler}

	registry, err := plugin.NewRegistry(pctx, plugins...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if err := registry.LoadAll(); err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if err := registry.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	h.registry = registry
	h.dispatcher = dispatch.NewDispatcher(registry, status, true)
	return h
}

func (h *harness) dispatch(t *testing.T, msg report.Message) {
	t.Helper()
	if err := h.dispatcher.Dispatch(context.Background(), msg); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
}

// group sends a group message from a member with role and returns the
// texts the bot sent in response.
func (h *harness) group(t *testing.T, text, role string) []string {
	t.Helper()
	h.gateway.Reset()
	h.dispatch(t, plugintest.GroupMessage(text, role))
	return h.sentTexts()
}

func (h *harness) sentTexts() []string {
	var texts []string
	for _, c := range h.gateway.Sent() {
		texts = append(texts, c.Text())
	}
	return texts
}

// fixRolls makes rollDie return values in order, cycling.
func fixRolls(t *testing.T, values ...int) {
	t.Helper()
	orig := rollDie
	i := 0
	rollDie = func(surface int) int {
		v := values[i%len(values)]
		i++
		return v
	}
	t.Cleanup(func() { rollDie = orig })
}
