package plugins

import (
	"strings"
	"testing"

	"github.com/dicerobot/dicerobot/pkg/config"
	"github.com/dicerobot/dicerobot/pkg/plugin/plugintest"
	"github.com/dicerobot/dicerobot/pkg/report"
)

func (h *harness) chatEnabled() bool {
	settings := h.store.ChatSettings(report.ChatGroup, plugintest.GroupID, config.ChatGroupDiceRobot)
	return config.Bool(settings, "enabled", true)
}

func TestBot_OwnerTurnsOff(t *testing.T) {
	h := newHarness(t, nil, Bot{Version: "1.0.0"}, Dice{})

	sent := h.group(t, ".bot off", "owner")
	if len(sent) != 1 || sent[0] != "DiceBot已停用，使用 .bot on 重新启用" {
		t.Fatalf("reply = %q", sent)
	}
	if h.chatEnabled() {
		t.Fatal("chat still enabled")
	}

	if sent := h.group(t, ".bot", "owner"); len(sent) != 0 {
		t.Fatalf("disabled chat answered .bot: %q", sent)
	}
	if sent := h.group(t, ".r", "member"); len(sent) != 0 {
		t.Fatalf("disabled chat answered .r: %q", sent)
	}

	sent = h.group(t, ".bot on", "admin")
	if len(sent) != 1 || sent[0] != "DiceBot已启用 (๑•̀ㅂ•́)و✧" {
		t.Fatalf("reply = %q", sent)
	}
	if !h.chatEnabled() {
		t.Fatal("chat not re-enabled")
	}
}

func TestBot_MemberDenied(t *testing.T) {
	h := newHarness(t, nil, Bot{})

	sent := h.group(t, ".bot off", "member")
	if len(sent) != 1 || sent[0] != "只有群主和管理员才能启用或停用DiceBot哦~" {
		t.Fatalf("reply = %q", sent)
	}
	if !h.chatEnabled() {
		t.Fatal("member disabled the chat")
	}
}

func TestBot_RoleFromGateway(t *testing.T) {
	h := newHarness(t, nil, Bot{})
	h.gateway.Member(plugintest.GroupID, plugintest.UserID, "admin")

	h.group(t, ".bot off", "")
	if h.chatEnabled() {
		t.Fatal("admin resolved through the gateway could not disable the chat")
	}

	calls := h.gateway.Calls()
	if len(calls) == 0 || calls[0].Action != "get_group_member_info" {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestBot_Nickname(t *testing.T) {
	h := newHarness(t, nil, Bot{})

	sent := h.group(t, ".bot nickname 骰娘", "member")
	if len(sent) != 1 || sent[0] != "只有群主和管理员才能修改DiceBot的昵称哦~" {
		t.Fatalf("member reply = %q", sent)
	}
	for _, c := range h.gateway.Calls() {
		if c.Action == "set_group_card" {
			t.Fatal("member changed the group card")
		}
	}
	nickname := h.store.ChatSettings(report.ChatGroup, plugintest.GroupID, config.ChatGroupDiceRobot)
	if config.String(nickname, "nickname", "") != "" {
		t.Fatalf("member set nickname: %+v", nickname)
	}

	sent = h.group(t, ".bot nickname 骰娘", "owner")
	if len(sent) != 1 || sent[0] != "之后就请称呼我为「骰娘」吧！" {
		t.Fatalf("reply = %q", sent)
	}

	var card *plugintest.Call
	for _, c := range h.gateway.Calls() {
		if c.Action == "set_group_card" {
			c := c
			card = &c
		}
	}
	if card == nil || card.Card != "骰娘" || card.UserID != plugintest.SelfID || card.GroupID != plugintest.GroupID {
		t.Fatalf("set_group_card call = %+v", card)
	}

	// The chat nickname now replaces the account nickname in replies.
	sent = h.group(t, ".bot off", "owner")
	if len(sent) != 1 || sent[0] != "骰娘已停用，使用 .bot on 重新启用" {
		t.Fatalf("reply = %q", sent)
	}
}

func TestBot_AboutAndExit(t *testing.T) {
	h := newHarness(t, nil, Bot{Version: "9.9.9"})

	sent := h.group(t, ".bot", "member")
	if len(sent) != 1 || !strings.HasPrefix(sent[0], "DiceRobot 9.9.9\n") {
		t.Fatalf("about = %q", sent)
	}

	if sent := h.group(t, ".bot exit", "member"); len(sent) != 1 || sent[0] != "只有群主和管理员才能让DiceBot退群哦~" {
		t.Fatalf("exit denied reply = %q", sent)
	}

	h.group(t, ".bot exit", "owner")
	calls := h.gateway.Calls()
	if len(calls) != 2 || calls[1].Action != "set_group_leave" || calls[1].GroupID != plugintest.GroupID {
		t.Fatalf("calls = %+v", calls)
	}

	h.gateway.Reset()
	h.dispatch(t, plugintest.FriendMessage(".bot exit"))
	if texts := h.sentTexts(); len(texts) != 1 || texts[0] != "只能在群聊中使用哦~" {
		t.Fatalf("private exit reply = %q", texts)
	}
}

func TestBot_UnknownSubcommand(t *testing.T) {
	h := newHarness(t, nil, Bot{})

	if sent := h.group(t, ".bot dance", "owner"); len(sent) != 1 || sent[0] != "不太理解这个指令呢……" {
		t.Fatalf("reply = %q", sent)
	}
}
