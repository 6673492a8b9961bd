// Package plugintest provides an in-memory gateway for plugin tests.
package plugintest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dicerobot/dicerobot/pkg/gateway"
	"github.com/dicerobot/dicerobot/pkg/report"
)

// Call is one recorded gateway call.
type Call struct {
	Action  string
	UserID  int64
	GroupID int64
	Message report.Segments
	Card    string
	Flag    string
	Approve bool
}

// Text joins the text segments of the call's message.
func (c Call) Text() string {
	var sb strings.Builder
	for _, seg := range c.Message {
		if text, ok := seg.(*report.Text); ok {
			sb.WriteString(text.Text)
		}
	}
	return sb.String()
}

type Gateway struct {
	mu    sync.Mutex
	calls []Call

	// Members maps "group/user" to a member returned by GetGroupMemberInfo.
	Members map[string]gateway.GroupMember
	// Files maps URLs to the content Download writes.
	Files map[string]string
	// Images maps file ids to the result of GetImage.
	Images map[string]gateway.Image
	// SendErr is returned by the send calls when set.
	SendErr error
}

func NewGateway() *Gateway {
	return &Gateway{
		Members: map[string]gateway.GroupMember{},
		Files:   map[string]string{},
		Images:  map[string]gateway.Image{},
	}
}

func (g *Gateway) record(c Call) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, c)
}

func (g *Gateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Call(nil), g.calls...)
}

// Sent returns the send_private_msg and send_group_msg calls.
func (g *Gateway) Sent() []Call {
	var sent []Call
	for _, c := range g.Calls() {
		if c.Action == "send_private_msg" || c.Action == "send_group_msg" {
			sent = append(sent, c)
		}
	}
	return sent
}

func (g *Gateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = nil
}

func (g *Gateway) SendPrivateMessage(ctx context.Context, userID, groupID int64, message report.Segments) (*gateway.MessageResult, error) {
	g.record(Call{Action: "send_private_msg", UserID: userID, GroupID: groupID, Message: message})
	if g.SendErr != nil {
		return nil, g.SendErr
	}
	return &gateway.MessageResult{MessageID: 1}, nil
}

func (g *Gateway) SendGroupMessage(ctx context.Context, groupID int64, message report.Segments) (*gateway.MessageResult, error) {
	g.record(Call{Action: "send_group_msg", GroupID: groupID, Message: message})
	if g.SendErr != nil {
		return nil, g.SendErr
	}
	return &gateway.MessageResult{MessageID: 1}, nil
}

func (g *Gateway) GetGroupMemberInfo(ctx context.Context, groupID, userID int64, noCache bool) (*gateway.GroupMember, error) {
	g.record(Call{Action: "get_group_member_info", GroupID: groupID, UserID: userID})
	member, ok := g.Members[fmt.Sprintf("%d/%d", groupID, userID)]
	if !ok {
		return nil, &gateway.NetworkClientError{Action: "get_group_member_info", StatusCode: 404}
	}
	return &member, nil
}

func (g *Gateway) SetGroupCard(ctx context.Context, groupID, userID int64, card string) error {
	g.record(Call{Action: "set_group_card", GroupID: groupID, UserID: userID, Card: card})
	return nil
}

func (g *Gateway) SetGroupLeave(ctx context.Context, groupID int64, dismiss bool) error {
	g.record(Call{Action: "set_group_leave", GroupID: groupID})
	return nil
}

func (g *Gateway) SetFriendAddRequest(ctx context.Context, flag string, approve bool, remark string) error {
	g.record(Call{Action: "set_friend_add_request", Flag: flag, Approve: approve})
	return nil
}

func (g *Gateway) SetGroupAddRequest(ctx context.Context, flag, subType string, approve bool, reason string) error {
	g.record(Call{Action: "set_group_add_request", Flag: flag, Approve: approve})
	return nil
}

func (g *Gateway) GetImage(ctx context.Context, file string) (*gateway.Image, error) {
	g.record(Call{Action: "get_image"})
	image, ok := g.Images[file]
	if !ok {
		return nil, &gateway.NetworkClientError{Action: "get_image", StatusCode: 404}
	}
	return &image, nil
}

func (g *Gateway) Download(ctx context.Context, url, path string) error {
	g.record(Call{Action: "download"})
	content, ok := g.Files[url]
	if !ok {
		return &gateway.NetworkClientError{Action: "download", StatusCode: 404}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0644)
}

// Member registers a group member for GetGroupMemberInfo.
func (g *Gateway) Member(groupID, userID int64, role string) {
	g.Members[fmt.Sprintf("%d/%d", groupID, userID)] = gateway.GroupMember{
		GroupID: groupID,
		UserID:  userID,
		Role:    role,
	}
}
