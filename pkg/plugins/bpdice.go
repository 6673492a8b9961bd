package plugins

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/dicerobot/dicerobot/pkg/config"
	"github.com/dicerobot/dicerobot/pkg/plugin"
)

var bpContentPattern = regexp.MustCompile(`^(\d*)\s*([\S\s]*)$`)

// BPDice rolls a d100 with bonus (.rb) or penalty (.rp) dice.
type BPDice struct{}

func (BPDice) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Name:          "bp_dice",
		DisplayName:   "奖励骰/惩罚骰",
		Description:   "掷一枚 D100 并附加奖励骰或惩罚骰",
		Version:       "1.1.0",
		Orders:        []string{"rb", "rp"},
		Priority:      10,
		MaxRepetition: 30,
		DefaultSettings: config.Object{
			"max_count": 100,
		},
		DefaultReplies: map[string]string{
			"result":                      "{&发送者}骰出了：{&掷骰结果}",
			"result_with_reason":          "由于{&掷骰原因}，{&发送者}骰出了：{&掷骰结果}",
			"result_repeated":             "{&发送者}骰出了：\n{&掷骰结果}",
			"result_repeated_with_reason": "由于{&掷骰原因}，{&发送者}骰出了：\n{&掷骰结果}",
			"max_count_exceeded":          "被骰子淹没，不知所措……",
		},
	}
}

func (BPDice) HandleOrder(ctx context.Context, rt *plugin.OrderRuntime) error {
	m := bpContentPattern.FindStringSubmatch(rt.Content)
	if m == nil {
		return plugin.ErrOrderInvalid
	}
	countText, reason := m[1], strings.TrimSpace(m[2])

	if len(countText) > suspiciousCountDigits {
		return plugin.ErrOrderSuspicious
	}
	count := 1
	if countText != "" {
		count, _ = strconv.Atoi(countText)
	}
	if count < 1 {
		return plugin.ErrOrderInvalid
	}
	if count > config.Int(rt.Settings, "max_count", 100) {
		return rt.ReplyError("max_count_exceeded")
	}

	bonus := rt.Order == "rb"
	results := make([]string, rt.Repetition)
	for i := range results {
		results[i] = rollBP(bonus, count)
	}

	rt.UpdateReplyVariables(map[string]interface{}{
		varRollReason: reason,
		varRollResult: strings.Join(results, "\n"),
	})
	return rt.ReplyToSender(ctx, rt.Reply(resultReplyKey(rt.Repetition, reason)))
}

// rollBP renders e.g. B2=D100(47)[奖励骰:1 6]=17.
func rollBP(bonus bool, count int) string {
	base := rollDie(100)
	units := base % 10
	tens := (base / 10) % 10
	if base == 100 {
		units, tens = 0, 0
	}

	label, name := "P", "惩罚骰"
	if bonus {
		label, name = "B", "奖励骰"
	}

	best := tens
	extras := make([]string, count)
	for i := range extras {
		t := rollDie(10) - 1
		extras[i] = strconv.Itoa(t)
		if (bonus && tens10(t, units) < tens10(best, units)) || (!bonus && tens10(t, units) > tens10(best, units)) {
			best = t
		}
	}

	result := tens10(best, units)
	return label + strconv.Itoa(count) + "=D100(" + strconv.Itoa(base) + ")[" + name + ":" +
		strings.Join(extras, " ") + "]=" + strconv.Itoa(result)
}

// tens10 combines a tens digit and a units digit into a d100 value, 00 being 100.
func tens10(tens, units int) int {
	if v := tens*10 + units; v != 0 {
		return v
	}
	return 100
}
