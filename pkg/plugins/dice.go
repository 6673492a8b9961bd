package plugins

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/dicerobot/dicerobot/pkg/config"
	"github.com/dicerobot/dicerobot/pkg/plugin"
)

// Reply variables shared by the dice plugins.
const (
	varRollReason     = "掷骰原因"
	varRollResult     = "掷骰结果"
	varRollExpression = "掷骰表达式"
)

// Dice rolls dice expressions: .r 3d6+2 reason #3
type Dice struct{}

// roll is listed before r, which would otherwise shadow it.
func (Dice) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Name:          "dice",
		DisplayName:   "掷骰",
		Description:   "掷骰子，支持四则运算与取高",
		Version:       "1.2.0",
		Orders:        []string{"roll", "r"},
		Priority:      1,
		MaxRepetition: 30,
		DefaultSettings: config.Object{
			"max_count":   100,
			"max_surface": 1000,
		},
		DefaultChatSettings: config.Object{
			"default_surface": 100,
		},
		DefaultReplies: map[string]string{
			"result":                      "{&发送者}骰出了：{&掷骰结果}",
			"result_with_reason":          "由于{&掷骰原因}，{&发送者}骰出了：{&掷骰结果}",
			"result_repeated":             "{&发送者}骰出了：\n{&掷骰结果}",
			"result_repeated_with_reason": "由于{&掷骰原因}，{&发送者}骰出了：\n{&掷骰结果}",
			"max_count_exceeded":          "被骰子淹没，不知所措……",
			"max_surface_exceeded":        "为什么会有这么多面的骰子啊(　д ) ﾟ ﾟ",
		},
	}
}

func (d Dice) HandleOrder(ctx context.Context, rt *plugin.OrderRuntime) error {
	limits := DiceLimits{
		MaxCount:       config.Int(rt.Settings, "max_count", 100),
		MaxSurface:     config.Int(rt.Settings, "max_surface", 1000),
		DefaultSurface: config.Int(rt.ChatSettings, "default_surface", 100),
	}

	expr, reason, err := splitExpression(rt.Content, limits)
	switch {
	case errors.Is(err, errCountExceeded):
		return rt.ReplyError("max_count_exceeded")
	case errors.Is(err, errSurfaceExceeded):
		return rt.ReplyError("max_surface_exceeded")
	case err != nil:
		return err
	}

	results := make([]string, rt.Repetition)
	for i := range results {
		results[i] = expr.Format(expr.Roll())
	}

	rt.UpdateReplyVariables(map[string]interface{}{
		varRollReason:     reason,
		varRollExpression: expr.String(),
		varRollResult:     strings.Join(results, "\n"),
	})
	return rt.ReplyToSender(ctx, rt.Reply(resultReplyKey(rt.Repetition, reason)))
}

func resultReplyKey(repetition int, reason string) string {
	key := "result"
	if repetition > 1 {
		key += "_repeated"
	}
	if reason != "" {
		key += "_with_reason"
	}
	return key
}

const expressionChars = "0123456789dDkKxX×+-*/()（）"

// splitExpression separates the leading dice expression from the reason.
// The longest parseable prefix wins; an empty prefix means the default roll.
func splitExpression(content string, limits DiceLimits) (*Expression, string, error) {
	end := 0
	for end < len(content) {
		r, size := utf8.DecodeRuneInString(content[end:])
		if !strings.ContainsRune(expressionChars, r) {
			break
		}
		end += size
	}

	for {
		expr, err := ParseExpression(content[:end], limits)
		if err == nil {
			return expr, strings.TrimSpace(content[end:]), nil
		}
		if !errors.Is(err, plugin.ErrOrderInvalid) || end == 0 {
			return nil, "", err
		}
		_, size := utf8.DecodeLastRuneInString(content[:end])
		end -= size
	}
}
