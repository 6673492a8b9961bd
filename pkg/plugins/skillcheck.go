package plugins

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/dicerobot/dicerobot/pkg/plugin"
)

const (
	varSkillName   = "技能名"
	varSkillValue  = "技能值"
	varCheckResult = "检定结果"
)

var skillContentPattern = regexp.MustCompile(`^([\S\s]*?)\s*(\d+)\s*$`)

// Check levels, best first.
const (
	levelCriticalSuccess = "critical_success"
	levelExtremeSuccess  = "extreme_success"
	levelHardSuccess     = "hard_success"
	levelSuccess         = "success"
	levelFailure         = "failure"
	levelCriticalFailure = "critical_failure"
)

const (
	maxSkillValue    = 1000
	defaultSkillName = "技能"
)

// SkillCheck runs Call of Cthulhu 7th edition skill checks: .ra 侦查60
type SkillCheck struct{}

func (SkillCheck) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Name:          "skill_check",
		DisplayName:   "技能检定",
		Description:   "克苏鲁的呼唤第七版技能检定",
		Version:       "1.0.1",
		Orders:        []string{"ra", "rc"},
		Priority:      10,
		MaxRepetition: 10,
		DefaultReplies: map[string]string{
			"result":                 "{&发送者}进行{&技能名}检定：{&检定结果}",
			"result_repeated":        "{&发送者}进行{&技能名}检定：\n{&检定结果}",
			"level_critical_success": "大成功",
			"level_extreme_success":  "极难成功",
			"level_hard_success":     "困难成功",
			"level_success":          "成功",
			"level_failure":          "失败",
			"level_critical_failure": "大失败",
		},
	}
}

func (SkillCheck) HandleOrder(ctx context.Context, rt *plugin.OrderRuntime) error {
	m := skillContentPattern.FindStringSubmatch(rt.Content)
	if m == nil {
		return plugin.ErrOrderInvalid
	}
	name, valueText := strings.TrimSpace(m[1]), m[2]
	if len(valueText) > suspiciousCountDigits {
		return plugin.ErrOrderSuspicious
	}
	value, _ := strconv.Atoi(valueText)
	if value > maxSkillValue {
		return plugin.ErrOrderInvalid
	}
	if name == "" {
		name = defaultSkillName
	}

	results := make([]string, rt.Repetition)
	for i := range results {
		roll := rollDie(100)
		level := checkLevel(roll, value)
		results[i] = "D100=" + strconv.Itoa(roll) + "/" + strconv.Itoa(value) + " " + rt.Reply("level_"+level)
	}

	rt.UpdateReplyVariables(map[string]interface{}{
		varSkillName:   name,
		varSkillValue:  value,
		varCheckResult: strings.Join(results, "\n"),
	})
	key := "result"
	if rt.Repetition > 1 {
		key = "result_repeated"
	}
	return rt.ReplyToSender(ctx, rt.Reply(key))
}

func checkLevel(roll, value int) string {
	switch {
	case roll == 1:
		return levelCriticalSuccess
	case roll == 100 || (value < 50 && roll >= 96):
		return levelCriticalFailure
	case roll <= value/5:
		return levelExtremeSuccess
	case roll <= value/2:
		return levelHardSuccess
	case roll <= value:
		return levelSuccess
	default:
		return levelFailure
	}
}
