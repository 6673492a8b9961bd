package plugins

import (
	"context"
	"strings"

	"github.com/dicerobot/dicerobot/pkg/logger"
	"github.com/dicerobot/dicerobot/pkg/plugin"
	"github.com/dicerobot/dicerobot/pkg/report"
)

const varVersion = "版本"

// Bot controls the robot in a chat: .bot [about|on|off|nickname <name>|exit]
type Bot struct {
	Version string
}

func (Bot) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Name:          "bot",
		DisplayName:   "机器人控制",
		Description:   "查看信息、启用、停用、设置昵称与退群",
		Version:       "1.3.0",
		Orders:        []string{"bot", "robot"},
		Priority:      100,
		MaxRepetition: 1,
		DefaultReplies: map[string]string{
			"about":           "DiceRobot {&版本}\nQQ 骰子与聊天助手\n使用 .r 掷骰，.bot off 停用",
			"enable":          "{&机器人}已启用 (๑•̀ㅂ•́)و✧",
			"disable":         "{&机器人}已停用，使用 .bot on 重新启用",
			"enable_denied":   "只有群主和管理员才能启用或停用{&机器人}哦~",
			"nickname_set":    "之后就请称呼我为「{&机器人}」吧！",
			"nickname_unset":  "真是个无情的人……",
			"nickname_denied": "只有群主和管理员才能修改{&机器人}的昵称哦~",
			"exit":            "{&机器人}要走了，大家再见~",
			"exit_denied":     "只有群主和管理员才能让{&机器人}退群哦~",
			"exit_private":    "只能在群聊中使用哦~",
		},
	}
}

// CheckEnabled lets ".bot on" through in a chat where the robot is off.
func (Bot) CheckEnabled(rt *plugin.OrderRuntime) bool {
	if sub, _ := splitSubcommand(rt.Content); sub == "on" {
		return true
	}
	return rt.ChatEnabled()
}

func (b Bot) HandleOrder(ctx context.Context, rt *plugin.OrderRuntime) error {
	rt.UpdateReplyVariables(map[string]interface{}{varVersion: b.Version})

	sub, arg := splitSubcommand(rt.Content)
	switch sub {
	case "", "about":
		return rt.ReplyToSender(ctx, rt.Reply("about"))
	case "on", "off":
		return b.setEnabled(ctx, rt, sub == "on")
	case "nickname", "name":
		return b.setNickname(ctx, rt, arg)
	case "exit", "goodbye":
		return b.exit(ctx, rt)
	default:
		return plugin.ErrOrderInvalid
	}
}

func splitSubcommand(content string) (string, string) {
	content = strings.TrimSpace(content)
	sub, arg, _ := strings.Cut(content, " ")
	return strings.ToLower(sub), strings.TrimSpace(arg)
}

// isManager reports whether the sender may control the robot. Outside
// groups everyone may.
func isManager(ctx context.Context, rt *plugin.OrderRuntime) (bool, error) {
	if rt.Chat.Type != report.ChatGroup {
		return true, nil
	}
	role := rt.Message.SenderRole()
	if role == "" {
		member, err := rt.Gateway().GetGroupMemberInfo(ctx, rt.Chat.ID, rt.Message.Header().UserID, false)
		if err != nil {
			return false, err
		}
		role = member.Role
	}
	return role == "owner" || role == "admin", nil
}

func (b Bot) setEnabled(ctx context.Context, rt *plugin.OrderRuntime, enabled bool) error {
	ok, err := isManager(ctx, rt)
	if err != nil {
		return err
	}
	if !ok {
		return rt.ReplyToSender(ctx, rt.Reply("enable_denied"))
	}

	rt.DiceRobotChatSettings["enabled"] = enabled
	rt.SaveDiceRobotChatSettings()
	logger.InfoCF("bot", "Chat switched", map[string]interface{}{
		"chat_type": rt.Chat.Type,
		"chat_id":   rt.Chat.ID,
		"enabled":   enabled,
	})

	if enabled {
		return rt.ReplyToSender(ctx, rt.Reply("enable"))
	}
	return rt.ReplyToSender(ctx, rt.Reply("disable"))
}

func (b Bot) setNickname(ctx context.Context, rt *plugin.OrderRuntime, nickname string) error {
	ok, err := isManager(ctx, rt)
	if err != nil {
		return err
	}
	if !ok {
		return rt.ReplyToSender(ctx, rt.Reply("nickname_denied"))
	}

	rt.DiceRobotChatSettings["nickname"] = nickname
	rt.SaveDiceRobotChatSettings()

	card := nickname
	if nickname == "" {
		if bot := rt.Context().Bot; bot != nil {
			_, card = bot.Identity()
		}
	} else {
		rt.UpdateReplyVariables(map[string]interface{}{plugin.VarBotName: nickname})
	}

	if rt.Chat.Type == report.ChatGroup {
		if err := rt.Gateway().SetGroupCard(ctx, rt.Chat.ID, rt.Message.Header().SelfID, card); err != nil {
			return err
		}
	}

	if nickname == "" {
		return rt.ReplyToSender(ctx, rt.Reply("nickname_unset"))
	}
	return rt.ReplyToSender(ctx, rt.Reply("nickname_set"))
}

func (b Bot) exit(ctx context.Context, rt *plugin.OrderRuntime) error {
	if rt.Chat.Type != report.ChatGroup {
		return rt.ReplyToSender(ctx, rt.Reply("exit_private"))
	}
	ok, err := isManager(ctx, rt)
	if err != nil {
		return err
	}
	if !ok {
		return rt.ReplyToSender(ctx, rt.Reply("exit_denied"))
	}

	if err := rt.ReplyToSender(ctx, rt.Reply("exit")); err != nil {
		return err
	}
	logger.InfoCF("bot", "Leaving group", map[string]interface{}{"group_id": rt.Chat.ID})
	return rt.Gateway().SetGroupLeave(ctx, rt.Chat.ID, false)
}
