// DiceRobot - QQ dice and chat assistant
// License: MIT
//
// Copyright (c) 2026 DiceRobot contributors

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/dicerobot/dicerobot/pkg/bot"
	"github.com/dicerobot/dicerobot/pkg/config"
	"github.com/dicerobot/dicerobot/pkg/gateway"
	"github.com/dicerobot/dicerobot/pkg/logger"
	"github.com/dicerobot/dicerobot/pkg/order"
	"github.com/dicerobot/dicerobot/pkg/plugin"
	"github.com/dicerobot/dicerobot/pkg/report"
)

// Module names accepted by SetModule.
const (
	ModuleOrder = "order"
	ModuleEvent = "event"
)

// Dispatcher routes decoded reports to plugins.
type Dispatcher struct {
	registry    *plugin.Registry
	status      *bot.Status
	debug       bool
	orderModule atomic.Bool
	eventModule atomic.Bool
}

func NewDispatcher(registry *plugin.Registry, status *bot.Status, debug bool) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		status:   status,
		debug:    debug,
	}
	d.orderModule.Store(true)
	d.eventModule.Store(true)
	return d
}

func (d *Dispatcher) SetModule(module string, enabled bool) error {
	switch module {
	case ModuleOrder:
		d.orderModule.Store(enabled)
	case ModuleEvent:
		d.eventModule.Store(enabled)
	default:
		return fmt.Errorf("unknown module %q", module)
	}
	logger.InfoCF("dispatch", "Module switched", map[string]interface{}{
		"module":  module,
		"enabled": enabled,
	})
	return nil
}

func (d *Dispatcher) Modules() map[string]bool {
	return map[string]bool{
		ModuleOrder: d.orderModule.Load(),
		ModuleEvent: d.eventModule.Load(),
	}
}

// Dispatch handles one report. Plugin failures are contained; an error is
// only returned for unexpected failures in debug mode.
func (d *Dispatcher) Dispatch(ctx context.Context, r report.Report) error {
	switch v := r.(type) {
	case report.Message:
		return d.DispatchMessage(ctx, v)
	case report.Event:
		return d.DispatchEvent(ctx, v)
	default:
		logger.DebugCF("dispatch", "Report has no dispatch route", map[string]interface{}{
			"type": fmt.Sprintf("%T", r),
		})
		return nil
	}
}

func (d *Dispatcher) DispatchMessage(ctx context.Context, msg report.Message) error {
	if !d.orderModule.Load() {
		return nil
	}
	if d.status != nil && !d.status.Running() {
		logger.DebugC("dispatch", "Bot is not running, message skipped")
		return nil
	}

	header := msg.Header()
	chat, ok := msg.Chat()
	if !ok {
		logger.DebugCF("dispatch", "Message has no chat, filtered", map[string]interface{}{
			"message_type": header.MessageType,
			"sub_type":     header.SubType,
		})
		return nil
	}

	content, ok := order.Content(header.Message, header.SelfID)
	if !ok {
		return nil
	}

	match, ok := d.registry.Match(content)
	if !ok {
		return nil
	}

	rt, err := d.registry.NewOrderRuntime(match, msg, chat)
	if err != nil {
		return err
	}

	logger.InfoCF("dispatch", "Order matched", map[string]interface{}{
		"plugin":     match.Plugin,
		"order":      match.Order,
		"repetition": match.Repetition,
		"chat_type":  chat.Type,
		"chat_id":    chat.ID,
		"user_id":    header.UserID,
	})
	return d.executeOrder(ctx, rt)
}

func (d *Dispatcher) DispatchEvent(ctx context.Context, evt report.Event) error {
	if !d.eventModule.Load() {
		return nil
	}

	for _, p := range d.registry.Subscribers(evt.EventType()) {
		name := p.Descriptor().Name
		rt, err := d.registry.NewEventRuntime(name, evt)
		if err != nil {
			logger.ErrorCF("dispatch", "Failed to build event runtime", map[string]interface{}{
				"plugin": name,
				"error":  err.Error(),
			})
			continue
		}
		d.executeEvent(ctx, p, rt)
	}
	return nil
}

func (d *Dispatcher) executeOrder(ctx context.Context, rt *plugin.OrderRuntime) error {
	p, ok := d.registry.OrderPlugin(rt.Name)
	if !ok {
		return fmt.Errorf("order plugin %s not found", rt.Name)
	}
	desc := p.Descriptor()

	if !config.Bool(rt.Settings, "enabled", true) {
		logger.DebugCF("dispatch", "Plugin disabled", map[string]interface{}{"plugin": rt.Name})
		return nil
	}

	enabled := rt.ChatEnabled()
	if checker, ok := p.(plugin.EnableChecker); ok {
		enabled = checker.CheckEnabled(rt)
	}
	if !enabled {
		logger.DebugCF("dispatch", "Plugin disabled in chat", map[string]interface{}{
			"plugin":    rt.Name,
			"chat_type": rt.Chat.Type,
			"chat_id":   rt.Chat.ID,
		})
		return nil
	}

	maxRepetition := desc.MaxRepetition
	if maxRepetition < 1 {
		maxRepetition = 1
	}

	var err error
	if rt.Repetition > maxRepetition {
		err = plugin.ErrOrderRepetitionExceeded
	} else {
		err = run(func() error { return p.HandleOrder(ctx, rt) })
	}
	if err == nil {
		return nil
	}
	return d.handleOrderError(ctx, rt, err)
}

func (d *Dispatcher) handleOrderError(ctx context.Context, rt *plugin.OrderRuntime, err error) error {
	fields := map[string]interface{}{
		"plugin":    rt.Name,
		"order":     rt.Order,
		"chat_type": rt.Chat.Type,
		"chat_id":   rt.Chat.ID,
	}

	var reply string
	var orderErr *plugin.OrderError
	switch {
	case errors.Is(err, plugin.ErrOrderInvalid):
		reply = d.registry.CoreReply("order_invalid")
	case errors.Is(err, plugin.ErrOrderSuspicious):
		logger.InfoCF("dispatch", "Suspicious order dropped", fields)
		return nil
	case errors.Is(err, plugin.ErrOrderRepetitionExceeded):
		reply = d.registry.CoreReply("order_repetition_exceeded")
	case errors.As(err, &orderErr):
		reply = orderErr.Reply
	case errors.Is(err, gateway.ErrNetwork):
		reply = d.registry.CoreReply(networkReplyKey(err))
		fields["error"] = err.Error()
		logger.WarnCF("dispatch", "Gateway call failed during order", fields)
	default:
		fields["error"] = err.Error()
		logger.ErrorCF("dispatch", "Order plugin failed", fields)
		if d.debug {
			return err
		}
		return nil
	}

	if reply == "" {
		return nil
	}
	if sendErr := rt.ReplyToSender(ctx, reply); sendErr != nil {
		fields["error"] = sendErr.Error()
		logger.ErrorCF("dispatch", "Failed to send error reply", fields)
	}
	return nil
}

func networkReplyKey(err error) string {
	var clientErr *gateway.NetworkClientError
	var serverErr *gateway.NetworkServerError
	var contentErr *gateway.NetworkInvalidContentError
	switch {
	case errors.As(err, &clientErr):
		return "network_client_error"
	case errors.As(err, &serverErr):
		return "network_server_error"
	case errors.As(err, &contentErr):
		return "network_invalid_content"
	default:
		return "network_error"
	}
}

// executeEvent runs one event plugin. Event plugins never reply on failure.
func (d *Dispatcher) executeEvent(ctx context.Context, p plugin.EventPlugin, rt *plugin.EventRuntime) {
	if !config.Bool(rt.Settings, "enabled", true) {
		logger.DebugCF("dispatch", "Plugin disabled", map[string]interface{}{"plugin": rt.Name})
		return
	}

	if err := run(func() error { return p.HandleEvent(ctx, rt) }); err != nil {
		logger.ErrorCF("dispatch", "Event plugin failed", map[string]interface{}{
			"plugin": rt.Name,
			"event":  rt.Event.EventType(),
			"error":  err.Error(),
		})
	}
}

// run turns a panic in a plugin body into an error.
func run(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("dispatch", "Plugin panicked", map[string]interface{}{
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			})
			err = fmt.Errorf("plugin panic: %v", r)
		}
	}()
	return fn()
}
