package plugins

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dicerobot/dicerobot/pkg/config"
	"github.com/dicerobot/dicerobot/pkg/cron"
	"github.com/dicerobot/dicerobot/pkg/plugin"
	"github.com/dicerobot/dicerobot/pkg/plugin/plugintest"
	"github.com/dicerobot/dicerobot/pkg/report"
)

type recordingScheduler struct {
	jobs  map[string]cron.JobFunc
	exprs map[string]string
}

func newRecordingScheduler() *recordingScheduler {
	return &recordingScheduler{jobs: map[string]cron.JobFunc{}, exprs: map[string]string{}}
}

func (s *recordingScheduler) AddJob(id string, schedule cron.CronSchedule, fn cron.JobFunc, paused bool) error {
	s.jobs[id] = fn
	s.exprs[id] = schedule.Expr
	return nil
}

func (s *recordingScheduler) RemoveJob(id string) bool {
	_, ok := s.jobs[id]
	delete(s.jobs, id)
	return ok
}

const newsURL = "https://60s.viki.moe/v2/60s?encoding=image-proxy"

func newNewsHarness(t *testing.T) (*harness, *recordingScheduler, *Daily60s) {
	t.Helper()
	scheduler := newRecordingScheduler()
	news := NewDaily60s()
	news.now = func() time.Time { return time.Date(2026, 10, 18, 8, 30, 0, 0, time.Local) }
	h := newHarness(t, scheduler, news)
	h.gateway.Files[newsURL] = "PNG"
	return h, scheduler, news
}

func TestDaily60s_RegistersJob(t *testing.T) {
	_, scheduler, _ := newNewsHarness(t)

	if _, ok := scheduler.jobs[daily60sJob]; !ok {
		t.Fatal("push job not registered")
	}
	if scheduler.exprs[daily60sJob] != "30 8 * * *" {
		t.Fatalf("cron = %q", scheduler.exprs[daily60sJob])
	}
}

func TestDaily60s_OnDemand(t *testing.T) {
	h, _, _ := newNewsHarness(t)

	h.group(t, ".60s", "member")
	sent := h.gateway.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages", len(sent))
	}
	img, ok := sent[0].Message[0].(*report.Image)
	if !ok || !strings.HasSuffix(img.File, "daily_60s-20261018.png") {
		t.Fatalf("message = %+v", sent[0].Message)
	}
	data, err := os.ReadFile(strings.TrimPrefix(img.File, "file://"))
	if err != nil || string(data) != "PNG" {
		t.Fatalf("downloaded file = %q, %v", data, err)
	}

	// A second request reuses today's file.
	h.group(t, ".news", "member")
	var downloads int
	for _, c := range h.gateway.Calls() {
		if c.Action == "download" {
			downloads++
		}
	}
	if downloads != 0 {
		t.Fatalf("downloaded again: %d", downloads)
	}
}

func TestDaily60s_SubscribeAndPush(t *testing.T) {
	h, scheduler, _ := newNewsHarness(t)

	if texts := h.group(t, ".60s on", "member"); len(texts) != 1 || !strings.HasPrefix(texts[0], "已订阅") {
		t.Fatalf("subscribe reply = %q", texts)
	}
	h.store.SetChatSettings(report.ChatFriend, 30000, daily60sName, config.Object{"subscribed": true})
	h.store.SetChatSettings(report.ChatGroup, 1, daily60sName, config.Object{"subscribed": false})

	h.gateway.Reset()
	if err := scheduler.jobs[daily60sJob](context.Background()); err != nil {
		t.Fatalf("push error = %v", err)
	}

	sent := h.gateway.Sent()
	if len(sent) != 2 {
		t.Fatalf("pushed %d messages, want 2", len(sent))
	}
	if sent[0].Action != "send_private_msg" || sent[0].UserID != 30000 {
		t.Fatalf("first push = %+v", sent[0])
	}
	if sent[1].Action != "send_group_msg" || sent[1].GroupID != plugintest.GroupID {
		t.Fatalf("second push = %+v", sent[1])
	}
	if _, err := os.Stat(filepath.Join(h.store.Settings().Dirs.Temp, "daily_60s-20261018.png")); err != nil {
		t.Fatalf("image not cached: %v", err)
	}

	h.group(t, ".60s off", "member")
	h.gateway.Reset()
	scheduler.jobs[daily60sJob](context.Background())
	if len(h.gateway.Sent()) != 1 {
		t.Fatalf("unsubscribed chat still pushed: %+v", h.gateway.Sent())
	}
}

func TestDaily60s_DownloadFailure(t *testing.T) {
	h, _, _ := newNewsHarness(t)
	delete(h.gateway.Files, newsURL)

	if texts := h.group(t, ".60s", "member"); len(texts) != 1 || texts[0] != "致远星拒绝了我们的请求……请稍后再试" {
		t.Fatalf("reply = %q", texts)
	}
}

func TestDaily60s_CronPatchReschedules(t *testing.T) {
	h, scheduler, _ := newNewsHarness(t)

	if err := h.registry.PatchPluginSettings(daily60sName, config.Object{"cron": "0 7 * * *"}); err != nil {
		t.Fatalf("PatchPluginSettings() error = %v", err)
	}
	if scheduler.exprs[daily60sJob] != "0 7 * * *" {
		t.Fatalf("cron = %q", scheduler.exprs[daily60sJob])
	}

	if err := h.registry.ResetPluginSettings(daily60sName); err != nil {
		t.Fatalf("ResetPluginSettings() error = %v", err)
	}
	if scheduler.exprs[daily60sJob] != daily60sCron {
		t.Fatalf("cron after reset = %q", scheduler.exprs[daily60sJob])
	}
}

func TestDaily60s_InvalidCronKeepsSchedule(t *testing.T) {
	scheduler := cron.NewCronService()
	h := newHarness(t, scheduler, NewDaily60s())

	err := h.registry.PatchPluginSettings(daily60sName, config.Object{"cron": "every morning"})
	if !errors.Is(err, plugin.ErrSettingsRejected) {
		t.Fatalf("PatchPluginSettings() error = %v, want ErrSettingsRejected", err)
	}

	job, ok := scheduler.GetJob(daily60sJob)
	if !ok || job.Schedule.Expr != daily60sCron {
		t.Fatalf("job = %+v, %v", job, ok)
	}
	if got := config.String(h.registry.Settings(daily60sName), "cron", ""); got != daily60sCron {
		t.Fatalf("stored cron = %q", got)
	}
}
