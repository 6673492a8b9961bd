package plugins

import (
	"context"
	"testing"

	"github.com/dicerobot/dicerobot/pkg/config"
	"github.com/dicerobot/dicerobot/pkg/report"
)

func TestFriendRequest(t *testing.T) {
	h := newHarness(t, nil, FriendRequest{})
	evt := &report.FriendRequest{UserID: 1, Comment: "hi", Flag: "flag-1"}

	h.dispatcher.Dispatch(context.Background(), evt)
	calls := h.gateway.Calls()
	if len(calls) != 1 || calls[0].Action != "set_friend_add_request" || calls[0].Flag != "flag-1" || !calls[0].Approve {
		t.Fatalf("calls = %+v", calls)
	}

	h.registry.PatchPluginSettings("friend_request", config.Object{"approve": false})
	h.gateway.Reset()
	h.dispatcher.Dispatch(context.Background(), evt)
	if calls := h.gateway.Calls(); len(calls) != 1 || calls[0].Approve {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestGroupInvite(t *testing.T) {
	h := newHarness(t, nil, GroupInvite{})

	h.dispatcher.Dispatch(context.Background(), &report.GroupRequest{SubType: "add", GroupID: 1, UserID: 2, Flag: "join"})
	if calls := h.gateway.Calls(); len(calls) != 0 {
		t.Fatalf("join request handled: %+v", calls)
	}

	h.dispatcher.Dispatch(context.Background(), &report.GroupRequest{SubType: "invite", GroupID: 1, UserID: 2, Flag: "invite"})
	calls := h.gateway.Calls()
	if len(calls) != 1 || calls[0].Action != "set_group_add_request" || calls[0].Flag != "invite" || !calls[0].Approve {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestAll_Registers(t *testing.T) {
	h := newHarness(t, newRecordingScheduler(), All("1.0.0")...)
	if got := len(h.registry.Plugins()); got != 8 {
		t.Fatalf("registered %d plugins", got)
	}
}
