package plugins

import (
	"context"

	"github.com/dicerobot/dicerobot/pkg/config"
	"github.com/dicerobot/dicerobot/pkg/logger"
	"github.com/dicerobot/dicerobot/pkg/plugin"
	"github.com/dicerobot/dicerobot/pkg/report"
)

// FriendRequest answers friend requests according to its settings.
type FriendRequest struct{}

func (FriendRequest) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Name:        "friend_request",
		DisplayName: "好友申请",
		Description: "自动处理好友申请",
		Version:     "1.0.0",
		Events:      []string{(*report.FriendRequest)(nil).EventType()},
		DefaultSettings: config.Object{
			"approve": true,
		},
	}
}

func (FriendRequest) HandleEvent(ctx context.Context, rt *plugin.EventRuntime) error {
	req, ok := rt.Event.(*report.FriendRequest)
	if !ok {
		return nil
	}
	approve := config.Bool(rt.Settings, "approve", true)
	logger.InfoCF("friend_request", "Friend request received", map[string]interface{}{
		"user_id": req.UserID,
		"comment": req.Comment,
		"approve": approve,
	})
	return rt.Gateway().SetFriendAddRequest(ctx, req.Flag, approve, "")
}

// GroupInvite answers invitations into groups. Join requests from other
// users are left to the group's managers.
type GroupInvite struct{}

func (GroupInvite) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Name:        "group_invite",
		DisplayName: "群邀请",
		Description: "自动处理入群邀请",
		Version:     "1.0.0",
		Events:      []string{(*report.GroupRequest)(nil).EventType()},
		DefaultSettings: config.Object{
			"approve": true,
		},
	}
}

func (GroupInvite) HandleEvent(ctx context.Context, rt *plugin.EventRuntime) error {
	req, ok := rt.Event.(*report.GroupRequest)
	if !ok || req.SubType != "invite" {
		return nil
	}
	approve := config.Bool(rt.Settings, "approve", true)
	logger.InfoCF("group_invite", "Group invitation received", map[string]interface{}{
		"group_id": req.GroupID,
		"user_id":  req.UserID,
		"approve":  approve,
	})
	return rt.Gateway().SetGroupAddRequest(ctx, req.Flag, req.SubType, approve, "")
}
