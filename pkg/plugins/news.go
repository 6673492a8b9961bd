package plugins

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dicerobot/dicerobot/pkg/config"
	"github.com/dicerobot/dicerobot/pkg/cron"
	"github.com/dicerobot/dicerobot/pkg/logger"
	"github.com/dicerobot/dicerobot/pkg/plugin"
	"github.com/dicerobot/dicerobot/pkg/report"
)

const (
	daily60sName = "daily_60s"
	daily60sJob  = "daily_60s_push"
	daily60sCron = "30 8 * * *"
)

// Daily60s pushes the daily "60 seconds" news image to subscribed chats
// and serves it on demand: .60s [on|off]
type Daily60s struct {
	pctx *plugin.Context
	now  func() time.Time

	mu   sync.Mutex
	expr string
}

func NewDaily60s() *Daily60s {
	return &Daily60s{now: time.Now}
}

func (*Daily60s) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Name:          daily60sName,
		DisplayName:   "每天 60 秒读懂世界",
		Description:   "每日新闻图片订阅",
		Version:       "1.0.2",
		Orders:        []string{"60s", "news"},
		Priority:      1,
		MaxRepetition: 1,
		DefaultSettings: config.Object{
			"api_url": "https://60s.viki.moe/v2/60s?encoding=image-proxy",
			"cron":    daily60sCron,
		},
		DefaultChatSettings: config.Object{
			"subscribed": false,
		},
		DefaultReplies: map[string]string{
			"subscribe":   "已订阅每天 60 秒读懂世界，每天早上准时送达~",
			"unsubscribe": "已取消订阅每天 60 秒读懂世界",
		},
	}
}

func (d *Daily60s) Initialize(pctx *plugin.Context) error {
	d.pctx = pctx
	if pctx.Scheduler == nil {
		return nil
	}
	expr := config.String(pctx.Store.PluginSettings(daily60sName), "cron", daily60sCron)
	if err := pctx.Scheduler.AddJob(daily60sJob, cron.Cron(expr), d.push, false); err != nil {
		return fmt.Errorf("failed to schedule daily news: %w", err)
	}
	d.expr = expr
	return nil
}

// SettingsChanged reschedules the push job when its cron expression
// changes. An invalid expression keeps the old schedule.
func (d *Daily60s) SettingsChanged(settings config.Object) error {
	if d.pctx == nil || d.pctx.Scheduler == nil {
		return nil
	}
	expr := config.String(settings, "cron", daily60sCron)

	d.mu.Lock()
	defer d.mu.Unlock()
	if expr == d.expr {
		return nil
	}

	scheduler := d.pctx.Scheduler
	scheduler.RemoveJob(daily60sJob)
	if err := scheduler.AddJob(daily60sJob, cron.Cron(expr), d.push, false); err != nil {
		if restoreErr := scheduler.AddJob(daily60sJob, cron.Cron(d.expr), d.push, false); restoreErr != nil {
			logger.ErrorCF("daily_60s", "Failed to restore push schedule", map[string]interface{}{
				"cron":  d.expr,
				"error": restoreErr.Error(),
			})
		}
		return fmt.Errorf("failed to reschedule daily news: %w", err)
	}

	logger.InfoCF("daily_60s", "Push rescheduled", map[string]interface{}{
		"from": d.expr,
		"to":   expr,
	})
	d.expr = expr
	return nil
}

func (d *Daily60s) HandleOrder(ctx context.Context, rt *plugin.OrderRuntime) error {
	sub, _ := splitSubcommand(rt.Content)
	switch sub {
	case "":
		path, err := d.fetch(ctx, rt.Settings)
		if err != nil {
			return err
		}
		return rt.ReplyToSenderSegments(ctx, imageMessage(path))
	case "on", "subscribe":
		rt.ChatSettings["subscribed"] = true
		rt.SaveChatSettings()
		return rt.ReplyToSender(ctx, rt.Reply("subscribe"))
	case "off", "unsubscribe":
		rt.ChatSettings["subscribed"] = false
		rt.SaveChatSettings()
		return rt.ReplyToSender(ctx, rt.Reply("unsubscribe"))
	default:
		return plugin.ErrOrderInvalid
	}
}

func imageMessage(path string) report.Segments {
	return report.Segments{&report.Image{File: "file://" + path}}
}

// fetch downloads today's image once into the temp directory.
func (d *Daily60s) fetch(ctx context.Context, settings config.Object) (string, error) {
	dir := d.pctx.Store.Settings().Dirs.Temp
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.png", daily60sName, d.now().Format("20060102")))
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	if err := d.pctx.Gateway.Download(ctx, config.String(settings, "api_url", ""), path); err != nil {
		return "", err
	}
	return path, nil
}

func (d *Daily60s) subscribers() []config.ChatKey {
	var chats []config.ChatKey
	for _, key := range d.pctx.Store.Chats(daily60sName) {
		settings := d.pctx.Store.ChatSettings(key.Type, key.ID, daily60sName)
		if config.Bool(settings, "subscribed", false) {
			chats = append(chats, key)
		}
	}
	return chats
}

func (d *Daily60s) push(ctx context.Context) error {
	chats := d.subscribers()
	if len(chats) == 0 {
		return nil
	}

	path, err := d.fetch(ctx, d.pctx.Store.PluginSettings(daily60sName))
	if err != nil {
		return err
	}

	message := imageMessage(path)
	var sent int
	for _, chat := range chats {
		switch chat.Type {
		case report.ChatGroup:
			_, err = d.pctx.Gateway.SendGroupMessage(ctx, chat.ID, message)
		case report.ChatFriend:
			_, err = d.pctx.Gateway.SendPrivateMessage(ctx, chat.ID, 0, message)
		default:
			continue
		}
		if err != nil {
			logger.WarnCF("daily_60s", "Failed to push news", map[string]interface{}{
				"chat_type": chat.Type,
				"chat_id":   chat.ID,
				"error":     err.Error(),
			})
			continue
		}
		sent++
	}
	logger.InfoCF("daily_60s", "News pushed", map[string]interface{}{
		"subscribers": len(chats),
		"sent":        sent,
	})
	return nil
}
