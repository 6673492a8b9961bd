// DiceRobot - QQ dice and chat assistant
// License: MIT
//
// Copyright (c) 2026 DiceRobot contributors

package plugin

import (
	"context"

	"github.com/dicerobot/dicerobot/pkg/bot"
	"github.com/dicerobot/dicerobot/pkg/config"
	"github.com/dicerobot/dicerobot/pkg/cron"
	"github.com/dicerobot/dicerobot/pkg/gateway"
	"github.com/dicerobot/dicerobot/pkg/report"
)

// Descriptor declares a plugin. It is immutable once registered.
type Descriptor struct {
	Name        string
	DisplayName string
	Description string
	Version     string

	// Orders and Priority apply to order plugins.
	Orders        []string
	Priority      int
	MaxRepetition int

	// Events lists the report event types an event plugin subscribes to.
	Events []string

	DefaultSettings     config.Object
	DefaultReplies      map[string]string
	DefaultChatSettings config.Object
}

type Plugin interface {
	Descriptor() Descriptor
}

type OrderPlugin interface {
	Plugin
	HandleOrder(ctx context.Context, rt *OrderRuntime) error
}

type EventPlugin interface {
	Plugin
	HandleEvent(ctx context.Context, rt *EventRuntime) error
}

// Initializer is called once after registration, e.g. to register jobs.
type Initializer interface {
	Initialize(pctx *Context) error
}

// SettingsWatcher is told when the settings of an initialized plugin are
// replaced through the registry.
type SettingsWatcher interface {
	SettingsChanged(settings config.Object) error
}

// EnableChecker replaces the chat-level enable check of an order plugin.
type EnableChecker interface {
	CheckEnabled(rt *OrderRuntime) bool
}

// Gateway is the outbound API available to plugins.
type Gateway interface {
	SendPrivateMessage(ctx context.Context, userID, groupID int64, message report.Segments) (*gateway.MessageResult, error)
	SendGroupMessage(ctx context.Context, groupID int64, message report.Segments) (*gateway.MessageResult, error)
	GetGroupMemberInfo(ctx context.Context, groupID, userID int64, noCache bool) (*gateway.GroupMember, error)
	SetGroupCard(ctx context.Context, groupID, userID int64, card string) error
	SetGroupLeave(ctx context.Context, groupID int64, dismiss bool) error
	SetFriendAddRequest(ctx context.Context, flag string, approve bool, remark string) error
	SetGroupAddRequest(ctx context.Context, flag, subType string, approve bool, reason string) error
	GetImage(ctx context.Context, file string) (*gateway.Image, error)
	Download(ctx context.Context, url, path string) error
}

// Scheduler lets plugins register timed jobs.
type Scheduler interface {
	AddJob(id string, schedule cron.CronSchedule, fn cron.JobFunc, paused bool) error
	RemoveJob(id string) bool
}

// Context is the application context handed to plugins.
type Context struct {
	Store     *config.Store
	Gateway   Gateway
	Bot       *bot.Status
	Scheduler Scheduler
	Debug     bool
}
