package plugin

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/dicerobot/dicerobot/pkg/config"
	"github.com/dicerobot/dicerobot/pkg/logger"
	"github.com/dicerobot/dicerobot/pkg/order"
)

// CoreReplyGroup holds the replies the dispatcher sends on behalf of plugins.
const CoreReplyGroup = "dicerobot"

func DefaultCoreReplies() map[string]string {
	return map[string]string{
		"network_client_error":      "致远星拒绝了我们的请求……请稍后再试",
		"network_server_error":      "糟糕，致远星出错了……请稍后再试",
		"network_invalid_content":   "致远星返回了无法解析的内容……请稍后再试",
		"network_error":             "无法连接到致远星，请检查星际通讯是否正常",
		"order_invalid":             "不太理解这个指令呢……",
		"order_repetition_exceeded": "就算是机器人，也不能过度使用哦~",
	}
}

type Kind string

const (
	KindOrder Kind = "order"
	KindEvent Kind = "event"
)

// entry keeps the resolved overlay of one plugin. Snapshots are swapped as a
// whole and never mutated.
type entry struct {
	plugin   Plugin
	desc     Descriptor
	kind     Kind
	settings atomic.Pointer[config.Object]
	replies  atomic.Pointer[map[string]string]
}

type Registry struct {
	pctx        *Context
	plugins     map[string]*entry
	names       []string
	matcher     *order.Matcher
	subscribers map[string][]*entry
	core        atomic.Pointer[map[string]string]
	initialized atomic.Bool
	mu          sync.Mutex
}

// NewRegistry registers plugins in the given order. A plugin must implement
// exactly one of OrderPlugin and EventPlugin.
func NewRegistry(pctx *Context, plugins ...Plugin) (*Registry, error) {
	r := &Registry{
		pctx:        pctx,
		plugins:     make(map[string]*entry),
		matcher:     order.NewMatcher(),
		subscribers: make(map[string][]*entry),
	}

	for _, p := range plugins {
		if err := r.register(p); err != nil {
			return nil, err
		}
	}

	r.loadCore()
	return r, nil
}

func (r *Registry) register(p Plugin) error {
	desc := p.Descriptor()
	if desc.Name == "" {
		return fmt.Errorf("plugin %T has no name", p)
	}
	if desc.Name == CoreReplyGroup {
		return fmt.Errorf("plugin name %q is reserved", desc.Name)
	}
	if _, exists := r.plugins[desc.Name]; exists {
		return fmt.Errorf("plugin %s registered twice", desc.Name)
	}
	if desc.MaxRepetition < 1 {
		desc.MaxRepetition = 1
	}

	e := &entry{plugin: p, desc: desc}

	_, isOrder := p.(OrderPlugin)
	_, isEvent := p.(EventPlugin)
	switch {
	case isOrder && !isEvent:
		if len(desc.Orders) == 0 {
			return fmt.Errorf("order plugin %s declares no orders", desc.Name)
		}
		e.kind = KindOrder
		r.matcher.Register(desc.Name, desc.Priority, desc.Orders...)
	case isEvent && !isOrder:
		if len(desc.Events) == 0 {
			return fmt.Errorf("event plugin %s declares no events", desc.Name)
		}
		e.kind = KindEvent
		for _, eventType := range desc.Events {
			r.subscribers[eventType] = append(r.subscribers[eventType], e)
		}
	default:
		return fmt.Errorf("plugin %s must be either an order or an event plugin", desc.Name)
	}

	r.plugins[desc.Name] = e
	r.names = append(r.names, desc.Name)

	logger.DebugCF("plugin", "Plugin registered", map[string]interface{}{
		"plugin": desc.Name,
		"kind":   string(e.kind),
	})
	return nil
}

func (r *Registry) defaultSettings(e *entry) config.Object {
	defaults := config.DeepCopy(e.desc.DefaultSettings)
	if defaults == nil {
		defaults = config.Object{}
	}
	defaults["enabled"] = true
	return config.Normalize(defaults)
}

// Load recomputes the overlay of one plugin: unknown keys are pruned, missing
// ones filled from defaults. The store is only written when something changed.
func (r *Registry) Load(name string) error {
	if name == CoreReplyGroup {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.loadCore()
		return nil
	}

	e, ok := r.plugins[name]
	if !ok {
		return fmt.Errorf("plugin %s not found", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	store := r.pctx.Store

	stored := store.PluginSettings(name)
	settings := config.Reconcile(stored, r.defaultSettings(e))
	if !reflect.DeepEqual(settings, stored) {
		store.SetPluginSettings(name, settings)
	}

	storedReplies := store.Replies(name)
	replies := reconcileReplies(storedReplies, e.desc.DefaultReplies)
	if !reflect.DeepEqual(replies, storedReplies) {
		store.SetReplies(name, replies)
	}

	e.settings.Store(&settings)
	e.replies.Store(&replies)
	return nil
}

func (r *Registry) LoadAll() error {
	for _, name := range r.names {
		if err := r.Load(name); err != nil {
			return err
		}
	}
	return r.Load(CoreReplyGroup)
}

func (r *Registry) loadCore() {
	stored := r.pctx.Store.Replies(CoreReplyGroup)
	replies := reconcileReplies(stored, DefaultCoreReplies())
	if !reflect.DeepEqual(replies, stored) {
		r.pctx.Store.SetReplies(CoreReplyGroup, replies)
	}
	r.core.Store(&replies)
}

func reconcileReplies(stored, defaults map[string]string) map[string]string {
	out := make(map[string]string, len(defaults))
	for key, def := range defaults {
		if value, ok := stored[key]; ok {
			out[key] = value
		} else {
			out[key] = def
		}
	}
	return out
}

// Initialize calls every Initializer once, in registration order.
func (r *Registry) Initialize() error {
	for _, name := range r.names {
		initializer, ok := r.plugins[name].plugin.(Initializer)
		if !ok {
			continue
		}
		if err := initializer.Initialize(r.pctx); err != nil {
			return fmt.Errorf("failed to initialize plugin %s: %w", name, err)
		}
	}
	r.initialized.Store(true)
	return nil
}

func (r *Registry) notifySettings(name string) error {
	if !r.initialized.Load() {
		return nil
	}
	watcher, ok := r.plugins[name].plugin.(SettingsWatcher)
	if !ok {
		return nil
	}
	return watcher.SettingsChanged(r.Settings(name))
}

func (r *Registry) Context() *Context {
	return r.pctx
}

func (r *Registry) Match(content string) (order.Match, bool) {
	return r.matcher.Match(content)
}

func (r *Registry) OrderPlugin(name string) (OrderPlugin, bool) {
	e, ok := r.plugins[name]
	if !ok || e.kind != KindOrder {
		return nil, false
	}
	return e.plugin.(OrderPlugin), true
}

// Subscribers returns the event plugins subscribed to eventType, in
// registration order.
func (r *Registry) Subscribers(eventType string) []EventPlugin {
	entries := r.subscribers[eventType]
	out := make([]EventPlugin, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.plugin.(EventPlugin))
	}
	return out
}

func (r *Registry) Descriptor(name string) (Descriptor, bool) {
	e, ok := r.plugins[name]
	if !ok {
		return Descriptor{}, false
	}
	return e.desc, true
}

// Settings returns a copy of the resolved settings of a plugin.
func (r *Registry) Settings(name string) config.Object {
	e, ok := r.plugins[name]
	if !ok {
		return nil
	}
	if snap := e.settings.Load(); snap != nil {
		return config.DeepCopy(*snap)
	}
	return r.defaultSettings(e)
}

func (r *Registry) Replies(name string) map[string]string {
	var snap *map[string]string
	if name == CoreReplyGroup {
		snap = r.core.Load()
	} else if e, ok := r.plugins[name]; ok {
		snap = e.replies.Load()
		if snap == nil {
			defaults := reconcileReplies(nil, e.desc.DefaultReplies)
			return defaults
		}
	}
	if snap == nil {
		return nil
	}
	out := make(map[string]string, len(*snap))
	for k, v := range *snap {
		out[k] = v
	}
	return out
}

func (r *Registry) CoreReply(key string) string {
	if snap := r.core.Load(); snap != nil {
		return (*snap)[key]
	}
	return DefaultCoreReplies()[key]
}

type Info struct {
	Name          string   `json:"name"`
	DisplayName   string   `json:"display_name"`
	Description   string   `json:"description"`
	Version       string   `json:"version"`
	Kind          Kind     `json:"type"`
	Orders        []string `json:"orders,omitempty"`
	Priority      int      `json:"priority,omitempty"`
	MaxRepetition int      `json:"max_repetition,omitempty"`
	Events        []string `json:"events,omitempty"`
	Enabled       bool     `json:"enabled"`
}

func (r *Registry) Info(name string) (Info, bool) {
	e, ok := r.plugins[name]
	if !ok {
		return Info{}, false
	}
	info := Info{
		Name:        e.desc.Name,
		DisplayName: e.desc.DisplayName,
		Description: e.desc.Description,
		Version:     e.desc.Version,
		Kind:        e.kind,
		Enabled:     config.Bool(r.Settings(name), "enabled", true),
	}
	if e.kind == KindOrder {
		info.Orders = append([]string(nil), e.desc.Orders...)
		info.Priority = e.desc.Priority
		info.MaxRepetition = e.desc.MaxRepetition
	} else {
		info.Events = append([]string(nil), e.desc.Events...)
	}
	return info, true
}

func (r *Registry) Plugins() []Info {
	infos := make([]Info, 0, len(r.names))
	for _, name := range r.names {
		info, _ := r.Info(name)
		infos = append(infos, info)
	}
	return infos
}

func (r *Registry) Has(name string) bool {
	_, ok := r.plugins[name]
	return ok
}

// SetPluginSettings replaces the stored settings and reloads the plugin.
func (r *Registry) SetPluginSettings(name string, settings config.Object) error {
	if !r.Has(name) {
		return fmt.Errorf("plugin %s not found", name)
	}
	previous := r.pctx.Store.PluginSettings(name)
	r.pctx.Store.SetPluginSettings(name, settings)
	return r.reload(name, previous)
}

func (r *Registry) PatchPluginSettings(name string, patch config.Object) error {
	if !r.Has(name) {
		return fmt.Errorf("plugin %s not found", name)
	}
	return r.SetPluginSettings(name, config.Merge(r.Settings(name), patch))
}

func (r *Registry) ResetPluginSettings(name string) error {
	if !r.Has(name) {
		return fmt.Errorf("plugin %s not found", name)
	}
	previous := r.pctx.Store.PluginSettings(name)
	r.pctx.Store.SetPluginSettings(name, config.Object{})
	return r.reload(name, previous)
}

// reload loads name and tells a watching plugin. When the plugin rejects
// the new settings, previous is restored.
func (r *Registry) reload(name string, previous config.Object) error {
	if err := r.Load(name); err != nil {
		return err
	}
	if err := r.notifySettings(name); err != nil {
		r.pctx.Store.SetPluginSettings(name, previous)
		if loadErr := r.Load(name); loadErr != nil {
			return loadErr
		}
		return fmt.Errorf("%w: %v", ErrSettingsRejected, err)
	}
	return nil
}

// PatchReplies updates replies of a plugin or of the core reply group.
func (r *Registry) PatchReplies(name string, patch map[string]string) error {
	if name != CoreReplyGroup && !r.Has(name) {
		return fmt.Errorf("plugin %s not found", name)
	}
	replies := r.Replies(name)
	for k, v := range patch {
		replies[k] = v
	}
	r.pctx.Store.SetReplies(name, replies)
	return r.Load(name)
}

func (r *Registry) ResetReplies(name string) error {
	if name != CoreReplyGroup && !r.Has(name) {
		return fmt.Errorf("plugin %s not found", name)
	}
	r.pctx.Store.SetReplies(name, map[string]string{})
	return r.Load(name)
}
