// DiceRobot - QQ dice and chat assistant
// License: MIT
//
// Copyright (c) 2026 DiceRobot contributors

package bot

import (
	"context"
	"fmt"
	"sync"

	"github.com/dicerobot/dicerobot/pkg/gateway"
	"github.com/dicerobot/dicerobot/pkg/logger"
)

// Job ids of the state jobs, paused while the bot is Holding.
const (
	JobRefreshFriendList = "refresh_friend_list"
	JobRefreshGroupList  = "refresh_group_list"
)

// Gateway is the part of the gateway API the lifecycle probes.
type Gateway interface {
	GetLoginInfo(ctx context.Context) (*gateway.LoginInfo, error)
	GetFriendList(ctx context.Context) ([]gateway.Friend, error)
	GetGroupList(ctx context.Context) ([]gateway.Group, error)
}

// Scheduler pauses and resumes the state jobs.
type Scheduler interface {
	PauseJob(id string) error
	ResumeJob(id string) error
}

// Lifecycle drives the Started/Holding/Running state machine from
// check_bot_status ticks.
type Lifecycle struct {
	status    *Status
	gateway   Gateway
	scheduler Scheduler
	mu        sync.Mutex
}

func NewLifecycle(status *Status, gw Gateway, scheduler Scheduler) *Lifecycle {
	return &Lifecycle{
		status:    status,
		gateway:   gw,
		scheduler: scheduler,
	}
}

// CheckStatus probes the gateway for the logged-in account. Probe failures
// move the bot to Holding and are not returned.
func (l *Lifecycle) CheckStatus(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := l.gateway.GetLoginInfo(ctx)
	if err == nil && info.UserID == 0 {
		err = fmt.Errorf("gateway returned an empty login")
	}

	if err != nil {
		l.status.setIdentity(0, "")
		if l.status.State() != StateHolding {
			l.status.setState(StateHolding)
			l.pauseStateJobs()
			logger.WarnCF("bot", "Bot is holding", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return nil
	}

	l.status.setIdentity(info.UserID, info.Nickname)
	if l.status.State() == StateRunning {
		return nil
	}

	l.status.setState(StateRunning)
	l.resumeStateJobs()
	logger.InfoCF("bot", "Bot is running", map[string]interface{}{
		"id":       info.UserID,
		"nickname": info.Nickname,
	})

	if err := l.RefreshFriendList(ctx); err != nil {
		logger.WarnCF("bot", "Failed to refresh friend list", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err := l.RefreshGroupList(ctx); err != nil {
		logger.WarnCF("bot", "Failed to refresh group list", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return nil
}

func (l *Lifecycle) pauseStateJobs() {
	for _, id := range []string{JobRefreshFriendList, JobRefreshGroupList} {
		if err := l.scheduler.PauseJob(id); err != nil {
			logger.WarnCF("bot", "Failed to pause job", map[string]interface{}{
				"job":   id,
				"error": err.Error(),
			})
		}
	}
}

func (l *Lifecycle) resumeStateJobs() {
	for _, id := range []string{JobRefreshFriendList, JobRefreshGroupList} {
		if err := l.scheduler.ResumeJob(id); err != nil {
			logger.WarnCF("bot", "Failed to resume job", map[string]interface{}{
				"job":   id,
				"error": err.Error(),
			})
		}
	}
}

// RefreshFriendList replaces the cached friend list. A failure leaves the
// previous list and the bot state untouched.
func (l *Lifecycle) RefreshFriendList(ctx context.Context) error {
	friends, err := l.gateway.GetFriendList(ctx)
	if err != nil {
		return err
	}
	l.status.setFriends(friends)
	logger.DebugCF("bot", "Friend list refreshed", map[string]interface{}{
		"count": len(friends),
	})
	return nil
}

func (l *Lifecycle) RefreshGroupList(ctx context.Context) error {
	groups, err := l.gateway.GetGroupList(ctx)
	if err != nil {
		return err
	}
	l.status.setGroups(groups)
	logger.DebugCF("bot", "Group list refreshed", map[string]interface{}{
		"count": len(groups),
	})
	return nil
}
