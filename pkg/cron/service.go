// DiceRobot - QQ dice and chat assistant
// License: MIT
//
// Copyright (c) 2026 DiceRobot contributors

package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"github.com/dicerobot/dicerobot/pkg/logger"
)

// Schedule kinds.
const (
	KindCron  = "cron"
	KindEvery = "every"
	KindAt    = "at"
	// KindNever never fires on its own; such jobs only run through RunJobLater.
	KindNever = "never"
)

type CronSchedule struct {
	Kind  string        `json:"kind"`
	At    time.Time     `json:"at,omitempty"`
	Every time.Duration `json:"every,omitempty"`
	Expr  string        `json:"expr,omitempty"`
}

func Cron(expr string) CronSchedule { return CronSchedule{Kind: KindCron, Expr: expr} }

func Every(d time.Duration) CronSchedule { return CronSchedule{Kind: KindEvery, Every: d} }

func At(t time.Time) CronSchedule { return CronSchedule{Kind: KindAt, At: t} }

func Never() CronSchedule { return CronSchedule{Kind: KindNever} }

type CronJobState struct {
	NextRunAt  *time.Time `json:"nextRunAt,omitempty"`
	LastRunAt  *time.Time `json:"lastRunAt,omitempty"`
	LastStatus string     `json:"lastStatus,omitempty"`
	LastError  string     `json:"lastError,omitempty"`
	Runs       int        `json:"runs"`
}

// CronJob is a snapshot of a registered job.
type CronJob struct {
	ID       string       `json:"id"`
	Paused   bool         `json:"paused"`
	Schedule CronSchedule `json:"schedule"`
	State    CronJobState `json:"state"`
}

// JobFunc is the callable bound to a job. ctx is cancelled when the
// scheduler stops.
type JobFunc func(ctx context.Context) error

type job struct {
	CronJob
	fn      JobFunc
	running *sync.Mutex
	oneShot bool
}

type CronService struct {
	mu       sync.RWMutex
	jobs     map[string]*job
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopChan chan struct{}
	loopDone chan struct{}
	tick     time.Duration
	now      func() time.Time
}

func NewCronService() *CronService {
	return &CronService{
		jobs: make(map[string]*job),
		tick: time.Second,
		now:  time.Now,
	}
}

// Start begins firing due jobs. Job runs receive a context derived from ctx.
func (cs *CronService) Start(ctx context.Context) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.running {
		return nil
	}

	cs.ctx, cs.cancel = context.WithCancel(ctx)
	cs.stopChan = make(chan struct{})
	cs.loopDone = make(chan struct{})
	cs.recomputeNextRuns()
	cs.running = true
	go cs.runLoop(cs.stopChan, cs.loopDone)

	logger.InfoCF("cron", "Scheduler started", map[string]interface{}{
		"jobs": len(cs.jobs),
	})
	return nil
}

// Stop cancels in-flight runs, waits for them, and drops pending ones.
func (cs *CronService) Stop() {
	cs.mu.Lock()
	if !cs.running {
		cs.mu.Unlock()
		return
	}
	cs.running = false
	close(cs.stopChan)
	cs.cancel()
	loopDone := cs.loopDone
	cs.mu.Unlock()

	<-loopDone
	cs.wg.Wait()
	logger.InfoC("cron", "Scheduler stopped")
}

func (cs *CronService) runLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(cs.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			cs.checkJobs()
		}
	}
}

func (cs *CronService) checkJobs() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.running {
		return
	}

	now := cs.now()
	for _, j := range cs.jobs {
		if j.Paused || j.State.NextRunAt == nil || j.State.NextRunAt.After(now) {
			continue
		}

		if j.oneShot {
			delete(cs.jobs, j.ID)
		} else {
			j.State.NextRunAt = cs.computeNextRun(j.Schedule, now)
		}
		cs.launchUnsafe(j)
	}
}

// launchUnsafe runs j in its own goroutine. cs.mu must be held.
func (cs *CronService) launchUnsafe(j *job) {
	ctx := cs.ctx
	cs.wg.Add(1)
	go func() {
		defer cs.wg.Done()
		cs.executeJob(ctx, j)
	}()
}

func (cs *CronService) executeJob(ctx context.Context, j *job) {
	if !j.running.TryLock() {
		logger.WarnCF("cron", "Job still running, skipping this run", map[string]interface{}{
			"job": j.ID,
		})
		return
	}
	defer j.running.Unlock()

	start := cs.now()
	err := cs.invoke(ctx, j)

	cs.mu.Lock()
	defer cs.mu.Unlock()

	j.State.LastRunAt = &start
	j.State.Runs++
	if err != nil {
		j.State.LastStatus = "error"
		j.State.LastError = err.Error()
	} else {
		j.State.LastStatus = "ok"
		j.State.LastError = ""
	}

	if err != nil && ctx.Err() == nil {
		logger.ErrorCF("cron", "Job failed", map[string]interface{}{
			"job":   j.ID,
			"error": err.Error(),
		})
	}
}

func (cs *CronService) invoke(ctx context.Context, j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return j.fn(ctx)
}

func (cs *CronService) computeNextRun(schedule CronSchedule, now time.Time) *time.Time {
	switch schedule.Kind {
	case KindAt:
		at := schedule.At
		return &at

	case KindEvery:
		if schedule.Every <= 0 {
			return nil
		}
		next := now.Add(schedule.Every)
		return &next

	case KindCron:
		if schedule.Expr == "" {
			return nil
		}
		next, err := gronx.NextTickAfter(schedule.Expr, now, false)
		if err != nil {
			logger.WarnCF("cron", "Failed to compute next run", map[string]interface{}{
				"expr":  schedule.Expr,
				"error": err.Error(),
			})
			return nil
		}
		return &next
	}

	return nil
}

func (cs *CronService) recomputeNextRuns() {
	now := cs.now()
	for _, j := range cs.jobs {
		if j.oneShot {
			continue
		}
		j.State.NextRunAt = cs.computeNextRun(j.Schedule, now)
	}
}

func validateSchedule(schedule CronSchedule) error {
	switch schedule.Kind {
	case KindCron:
		if !gronx.New().IsValid(schedule.Expr) {
			return fmt.Errorf("invalid cron expression %q", schedule.Expr)
		}
	case KindEvery:
		if schedule.Every <= 0 {
			return fmt.Errorf("interval must be positive")
		}
	case KindAt:
		if schedule.At.IsZero() {
			return fmt.Errorf("one-shot time is required")
		}
	case KindNever:
	default:
		return fmt.Errorf("unknown schedule kind %q", schedule.Kind)
	}
	return nil
}

// AddJob registers fn under id. A paused job keeps its schedule but does not
// fire until resumed.
func (cs *CronService) AddJob(id string, schedule CronSchedule, fn JobFunc, paused bool) error {
	if fn == nil {
		return fmt.Errorf("job %s has no function", id)
	}
	if err := validateSchedule(schedule); err != nil {
		return fmt.Errorf("job %s: %w", id, err)
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if _, exists := cs.jobs[id]; exists {
		return fmt.Errorf("job %s already exists", id)
	}

	j := &job{
		CronJob: CronJob{
			ID:       id,
			Paused:   paused,
			Schedule: schedule,
		},
		fn:      fn,
		running: &sync.Mutex{},
		oneShot: schedule.Kind == KindAt,
	}
	j.State.NextRunAt = cs.computeNextRun(schedule, cs.now())
	cs.jobs[id] = j

	logger.DebugCF("cron", "Job added", map[string]interface{}{
		"job":    id,
		"kind":   schedule.Kind,
		"paused": paused,
	})
	return nil
}

func (cs *CronService) PauseJob(id string) error {
	return cs.setPaused(id, true)
}

func (cs *CronService) ResumeJob(id string) error {
	return cs.setPaused(id, false)
}

func (cs *CronService) setPaused(id string, paused bool) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	j, ok := cs.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	if j.Paused == paused {
		return nil
	}
	j.Paused = paused
	if !paused && !j.oneShot {
		j.State.NextRunAt = cs.computeNextRun(j.Schedule, cs.now())
	}
	return nil
}

// RunJobLater schedules a one-shot run of job id after delay, reusing its
// function and its overlap guard. It returns the id of the one-shot job.
func (cs *CronService) RunJobLater(id string, delay time.Duration) (string, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	source, ok := cs.jobs[id]
	if !ok {
		return "", fmt.Errorf("job %s not found", id)
	}

	at := cs.now().Add(delay)
	oneShotID := id + "-" + uuid.NewString()
	j := &job{
		CronJob: CronJob{
			ID:       oneShotID,
			Schedule: At(at),
		},
		fn:      source.fn,
		running: source.running,
		oneShot: true,
	}
	j.State.NextRunAt = &at
	cs.jobs[oneShotID] = j
	return oneShotID, nil
}

// RunJobNow launches job id immediately, regardless of its schedule and
// pause state. It does nothing if the scheduler is not running.
func (cs *CronService) RunJobNow(id string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	j, ok := cs.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	if !cs.running {
		return fmt.Errorf("scheduler not running")
	}
	cs.launchUnsafe(j)
	return nil
}

func (cs *CronService) RemoveJob(id string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if _, ok := cs.jobs[id]; !ok {
		return false
	}
	delete(cs.jobs, id)
	return true
}

func (cs *CronService) GetJob(id string) (CronJob, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	j, ok := cs.jobs[id]
	if !ok {
		return CronJob{}, false
	}
	return j.snapshot(), true
}

func (j *job) snapshot() CronJob {
	out := j.CronJob
	if j.State.NextRunAt != nil {
		next := *j.State.NextRunAt
		out.State.NextRunAt = &next
	}
	if j.State.LastRunAt != nil {
		last := *j.State.LastRunAt
		out.State.LastRunAt = &last
	}
	return out
}

// ListJobs returns every job sorted by id.
func (cs *CronService) ListJobs() []CronJob {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	jobs := make([]CronJob, 0, len(cs.jobs))
	for _, j := range cs.jobs {
		jobs = append(jobs, j.snapshot())
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].ID < jobs[k].ID })
	return jobs
}

func (cs *CronService) Status() map[string]interface{} {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	var paused int
	var nextWake *time.Time
	for _, j := range cs.jobs {
		if j.Paused {
			paused++
			continue
		}
		if next := j.State.NextRunAt; next != nil && (nextWake == nil || next.Before(*nextWake)) {
			nextWake = next
		}
	}

	status := map[string]interface{}{
		"running": cs.running,
		"jobs":    len(cs.jobs),
		"paused":  paused,
	}
	if nextWake != nil {
		status["nextWakeAt"] = nextWake.Format(time.RFC3339)
	}
	return status
}
