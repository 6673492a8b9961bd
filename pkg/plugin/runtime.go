package plugin

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/dicerobot/dicerobot/pkg/config"
	"github.com/dicerobot/dicerobot/pkg/order"
	"github.com/dicerobot/dicerobot/pkg/report"
)

// Reply variable names filled for every invocation.
const (
	VarBotID      = "机器人QQ"
	VarBotName    = "机器人"
	VarSenderID   = "发送者QQ"
	VarSenderName = "发送者"
)

var placeholderPattern = regexp.MustCompile(`\{&([^{}]+)\}`)

// Runtime is the state of one plugin invocation. Settings and Replies are
// snapshots taken when the invocation starts; changes only reach the store
// through the Save methods.
type Runtime struct {
	Name     string
	Settings config.Object
	Replies  map[string]string

	registry *Registry
	vars     map[string]string
}

func (r *Registry) newRuntime(name string) Runtime {
	rt := Runtime{
		Name:     name,
		Settings: r.Settings(name),
		Replies:  r.Replies(name),
		registry: r,
		vars:     map[string]string{},
	}
	if rt.Replies == nil {
		rt.Replies = map[string]string{}
	}

	if r.pctx.Bot != nil {
		id, nickname := r.pctx.Bot.Identity()
		if id != 0 {
			rt.vars[VarBotID] = strconv.FormatInt(id, 10)
		}
		rt.vars[VarBotName] = nickname
	}
	return rt
}

func (rt *Runtime) Context() *Context {
	return rt.registry.pctx
}

func (rt *Runtime) Gateway() Gateway {
	return rt.registry.pctx.Gateway
}

func (rt *Runtime) Store() *config.Store {
	return rt.registry.pctx.Store
}

// UpdateReplyVariables layers values on top of the reply variables. Values
// are converted to strings.
func (rt *Runtime) UpdateReplyVariables(vars map[string]interface{}) {
	for k, v := range vars {
		rt.vars[k] = config.Stringify(v)
	}
}

func (rt *Runtime) ReplyVariable(name string) (string, bool) {
	v, ok := rt.vars[name]
	return v, ok
}

// FormatReply substitutes {&name} placeholders. Unknown names stay literal.
func (rt *Runtime) FormatReply(template string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		name := m[2 : len(m)-1]
		if v, ok := rt.vars[name]; ok {
			return v
		}
		return m
	})
}

// Reply formats the reply template stored under key.
func (rt *Runtime) Reply(key string) string {
	return rt.FormatReply(rt.Replies[key])
}

// ReplyError returns an OrderError carrying the formatted reply under key.
func (rt *Runtime) ReplyError(key string) error {
	return NewOrderError(rt.Reply(key))
}

func (rt *Runtime) SendGroupMessage(ctx context.Context, groupID int64, template string) error {
	return rt.SendGroupSegments(ctx, groupID, report.TextSegments(rt.FormatReply(template)))
}

func (rt *Runtime) SendGroupSegments(ctx context.Context, groupID int64, message report.Segments) error {
	_, err := rt.Gateway().SendGroupMessage(ctx, groupID, message)
	return err
}

func (rt *Runtime) SendPrivateMessage(ctx context.Context, userID int64, template string) error {
	return rt.SendPrivateSegments(ctx, userID, 0, report.TextSegments(rt.FormatReply(template)))
}

func (rt *Runtime) SendPrivateSegments(ctx context.Context, userID, groupID int64, message report.Segments) error {
	_, err := rt.Gateway().SendPrivateMessage(ctx, userID, groupID, message)
	return err
}

// SavePluginSettings writes Settings back to the store and reloads the plugin.
func (rt *Runtime) SavePluginSettings() error {
	return rt.registry.SetPluginSettings(rt.Name, rt.Settings)
}

// OrderRuntime is handed to order plugins.
type OrderRuntime struct {
	Runtime

	Message    report.Message
	Chat       report.Chat
	Order      string
	Content    string
	Repetition int

	ChatSettings          config.Object
	DiceRobotChatSettings config.Object
}

// NewOrderRuntime snapshots everything an order invocation sees.
func (r *Registry) NewOrderRuntime(match order.Match, msg report.Message, chat report.Chat) (*OrderRuntime, error) {
	desc, ok := r.Descriptor(match.Plugin)
	if !ok {
		return nil, fmt.Errorf("plugin %s not found", match.Plugin)
	}

	store := r.pctx.Store
	rt := &OrderRuntime{
		Runtime:    r.newRuntime(match.Plugin),
		Message:    msg,
		Chat:       chat,
		Order:      match.Order,
		Content:    match.Content,
		Repetition: match.Repetition,
	}
	rt.ChatSettings = config.Merge(desc.DefaultChatSettings, store.ChatSettings(chat.Type, chat.ID, match.Plugin))
	rt.DiceRobotChatSettings = store.ChatSettings(chat.Type, chat.ID, config.ChatGroupDiceRobot)

	header := msg.Header()
	if _, ok := rt.vars[VarBotID]; !ok {
		rt.vars[VarBotID] = strconv.FormatInt(header.SelfID, 10)
	}
	if nickname := config.String(rt.DiceRobotChatSettings, "nickname", ""); nickname != "" {
		rt.vars[VarBotName] = nickname
	}
	rt.vars[VarSenderID] = strconv.FormatInt(header.UserID, 10)
	rt.vars[VarSenderName] = msg.SenderName()
	return rt, nil
}

// ReplyToSender sends a formatted template back to the chat the order came from.
func (rt *OrderRuntime) ReplyToSender(ctx context.Context, template string) error {
	return rt.ReplyToSenderSegments(ctx, report.TextSegments(rt.FormatReply(template)))
}

func (rt *OrderRuntime) ReplyToSenderSegments(ctx context.Context, message report.Segments) error {
	switch rt.Chat.Type {
	case report.ChatGroup:
		return rt.SendGroupSegments(ctx, rt.Chat.ID, message)
	case report.ChatTemp:
		var groupID int64
		if pm, ok := rt.Message.(*report.PrivateMessage); ok {
			groupID = pm.Sender.GroupID
		}
		return rt.SendPrivateSegments(ctx, rt.Chat.ID, groupID, message)
	default:
		return rt.SendPrivateSegments(ctx, rt.Chat.ID, 0, message)
	}
}

// ChatEnabled is the chat-level gate unless the plugin overrides it.
func (rt *OrderRuntime) ChatEnabled() bool {
	return config.Bool(rt.DiceRobotChatSettings, "enabled", true)
}

func (rt *OrderRuntime) SaveChatSettings() {
	rt.Store().SetChatSettings(rt.Chat.Type, rt.Chat.ID, rt.Name, rt.ChatSettings)
}

func (rt *OrderRuntime) SaveDiceRobotChatSettings() {
	rt.Store().SetChatSettings(rt.Chat.Type, rt.Chat.ID, config.ChatGroupDiceRobot, rt.DiceRobotChatSettings)
}

// EventRuntime is handed to event plugins.
type EventRuntime struct {
	Runtime

	Event report.Event
}

func (r *Registry) NewEventRuntime(name string, evt report.Event) (*EventRuntime, error) {
	if !r.Has(name) {
		return nil, fmt.Errorf("plugin %s not found", name)
	}
	return &EventRuntime{
		Runtime: r.newRuntime(name),
		Event:   evt,
	}, nil
}
