// DiceRobot - QQ dice and chat assistant
// License: MIT
//
// Copyright (c) 2026 DiceRobot contributors

// Package app wires the services of a DiceRobot process together.
package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dicerobot/dicerobot/pkg/bot"
	"github.com/dicerobot/dicerobot/pkg/config"
	"github.com/dicerobot/dicerobot/pkg/cron"
	"github.com/dicerobot/dicerobot/pkg/database"
	"github.com/dicerobot/dicerobot/pkg/dispatch"
	"github.com/dicerobot/dicerobot/pkg/gateway"
	"github.com/dicerobot/dicerobot/pkg/logger"
	"github.com/dicerobot/dicerobot/pkg/plugin"
	"github.com/dicerobot/dicerobot/pkg/plugins"
	"github.com/dicerobot/dicerobot/pkg/report"
	"github.com/dicerobot/dicerobot/pkg/server"
)

// Version is stamped at build time.
var Version = "dev"

// ErrRestart is returned by Run when the restart task fired.
var ErrRestart = errors.New("restart requested")

// Core task ids.
const (
	JobRestart          = "restart"
	JobSaveConfig       = "save_config"
	JobCheckBotStatus   = "check_bot_status"
	JobRefreshFriends   = bot.JobRefreshFriendList
	JobRefreshGroups    = bot.JobRefreshGroupList
	JobStartGateway     = "start_gateway"
	saveConfigInterval  = 5 * time.Minute
	checkStatusInterval = time.Minute
	refreshInterval     = 5 * time.Minute
)

type Options struct {
	Env *config.Env
	// Plugins defaults to plugins.All.
	Plugins []plugin.Plugin
	// Gateway replaces the HTTP gateway client, e.g. in tests.
	Gateway Gateway
}

// Gateway is the full gateway surface the application needs.
type Gateway interface {
	plugin.Gateway
	bot.Gateway
}

type App struct {
	Env        *config.Env
	Store      *config.Store
	DB         *database.DB
	Gateway    Gateway
	Scheduler  *cron.CronService
	Status     *bot.Status
	Lifecycle  *bot.Lifecycle
	Registry   *plugin.Registry
	Dispatcher *dispatch.Dispatcher
	Server     *server.Server
	Listener   *gateway.EventListener

	closers []func() error

	mu        sync.Mutex
	cancel    context.CancelFunc
	restart   bool
	closeOnce sync.Once
}

// New builds every service in dependency order. On failure the services
// built so far are closed.
func New(ctx context.Context, opts Options) (_ *App, err error) {
	env := opts.Env
	if env == nil {
		return nil, fmt.Errorf("app: env is required")
	}

	a := &App{Env: env}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	level := logger.ParseLevel(env.LogLevel)
	if env.Debug {
		level = logger.DEBUG
	}
	if err := logger.Init(env.LogDir, level); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, logger.Close)

	db, err := database.Open(database.DefaultConfig(env.Database))
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)

	a.Store = config.NewStore(db)
	if err := a.Store.Load(ctx); err != nil {
		return nil, err
	}
	if err := a.prepareSettings(); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.saveConfig)

	settings := a.Store.Settings()
	if opts.Gateway != nil {
		a.Gateway = opts.Gateway
	} else {
		a.Gateway = gateway.NewClient(gateway.Config{
			BaseURL:     settings.Gateway.APIBaseURL,
			AccessToken: settings.Gateway.AccessToken,
			UserAgent:   "DiceRobot/" + Version,
		})
	}

	a.Scheduler = cron.NewCronService()
	a.Status = bot.NewStatus()
	a.Lifecycle = bot.NewLifecycle(a.Status, a.Gateway, a.Scheduler)

	list := opts.Plugins
	if list == nil {
		list = plugins.All(Version)
	}
	pctx := &plugin.Context{
		Store:     a.Store,
		Gateway:   a.Gateway,
		Bot:       a.Status,
		Scheduler: a.Scheduler,
		Debug:     env.Debug,
	}
	registry, err := plugin.NewRegistry(pctx, list...)
	if err != nil {
		return nil, err
	}
	if err := registry.LoadAll(); err != nil {
		return nil, err
	}
	if err := a.registerCoreJobs(); err != nil {
		return nil, err
	}
	if err := registry.Initialize(); err != nil {
		return nil, err
	}
	a.Registry = registry

	a.Dispatcher = dispatch.NewDispatcher(registry, a.Status, env.Debug)
	// Test and console gateways have no endpoint to reconfigure.
	var configurer server.GatewayConfigurer
	if gc, ok := a.Gateway.(server.GatewayConfigurer); ok {
		configurer = gc
	}
	a.Server = server.New(server.Options{
		Addr:       env.Addr(),
		Version:    Version,
		Debug:      env.Debug,
		Store:      a.Store,
		Registry:   registry,
		Dispatcher: a.Dispatcher,
		Status:     a.Status,
		Scheduler:  a.Scheduler,
		Gateway:    configurer,
		Shutdown:   a.Stop,
	})

	if settings.Gateway.WSURL != "" {
		a.Listener = gateway.NewEventListener(gateway.ListenerConfig{
			URL:         settings.Gateway.WSURL,
			AccessToken: settings.Gateway.AccessToken,
		}, a.HandleFrame)
	}

	logger.InfoCF("app", "Application initialized", map[string]interface{}{
		"version": Version,
		"plugins": len(registry.Plugins()),
		"debug":   env.Debug,
	})
	return a, nil
}

// prepareSettings creates the working directories and fills a missing JWT
// secret with a random one.
func (a *App) prepareSettings() error {
	settings := a.Store.Settings()
	for _, dir := range []string{settings.Dirs.Logs, settings.Dirs.Temp, settings.Dirs.Data} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	if settings.Security.JWT.Secret == "" {
		secret := rand.Text()
		a.Store.UpdateSettings(func(s *config.Settings) {
			s.Security.JWT.Secret = secret
		})
		logger.InfoC("app", "Generated a new JWT secret")
	}
	return nil
}

func (a *App) registerCoreJobs() error {
	jobs := []struct {
		id       string
		schedule cron.CronSchedule
		fn       cron.JobFunc
		paused   bool
	}{
		{JobRestart, cron.Never(), a.restartJob, true},
		{JobSaveConfig, cron.Every(saveConfigInterval), a.saveConfigJob, false},
		{JobCheckBotStatus, cron.Every(checkStatusInterval), a.Lifecycle.CheckStatus, false},
		{JobRefreshFriends, cron.Every(refreshInterval), a.Lifecycle.RefreshFriendList, true},
		{JobRefreshGroups, cron.Every(refreshInterval), a.Lifecycle.RefreshGroupList, true},
		{JobStartGateway, cron.Never(), a.startGatewayJob, true},
	}
	for _, j := range jobs {
		if err := a.Scheduler.AddJob(j.id, j.schedule, j.fn, j.paused); err != nil {
			return fmt.Errorf("failed to register %s: %w", j.id, err)
		}
	}
	return nil
}

func (a *App) restartJob(ctx context.Context) error {
	logger.InfoC("app", "Restarting")
	a.mu.Lock()
	a.restart = true
	a.mu.Unlock()
	a.Stop()
	return nil
}

func (a *App) saveConfigJob(ctx context.Context) error {
	saved, err := a.Store.Save(ctx)
	if err != nil {
		return err
	}
	if saved {
		logger.DebugC("app", "Config saved")
	}
	return nil
}

func (a *App) saveConfig() error {
	_, err := a.Store.Save(context.Background())
	return err
}

// The gateway process is managed outside DiceRobot; the task only records
// the request.
func (a *App) startGatewayJob(ctx context.Context) error {
	logger.InfoCF("app", "Gateway start requested", map[string]interface{}{
		"api_base_url": a.Store.Settings().Gateway.APIBaseURL,
	})
	return nil
}

// HandleFrame decodes one event frame from the WebSocket listener and
// dispatches it like a webhook report.
func (a *App) HandleFrame(ctx context.Context, frame []byte) {
	r, err := report.Decode(frame)
	if err != nil {
		if !errors.Is(err, report.ErrIgnored) {
			logger.WarnCF("app", "Dropped event frame", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return
	}
	if err := a.Dispatcher.Dispatch(ctx, r); err != nil {
		logger.ErrorCF("app", "Failed to dispatch event frame", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// Run serves until ctx is done, Stop is called or a service fails. It
// returns ErrRestart when the restart task ended the run.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.mu.Lock()
	a.cancel = cancel
	a.restart = false
	a.mu.Unlock()

	if err := a.Scheduler.Start(ctx); err != nil {
		return err
	}
	defer a.Scheduler.Stop()

	if err := a.Scheduler.RunJobNow(JobCheckBotStatus); err != nil {
		logger.WarnCF("app", "Failed to run initial status check", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if a.Store.Settings().App.StartGatewayAtStartup {
		if err := a.Scheduler.RunJobNow(JobStartGateway); err != nil {
			logger.WarnCF("app", "Failed to start gateway", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Server.Run(gctx)
	})
	if a.Listener != nil {
		g.Go(func() error {
			return a.Listener.Run(gctx)
		})
	}

	err := g.Wait()

	a.mu.Lock()
	restart := a.restart
	a.cancel = nil
	a.mu.Unlock()

	if err != nil {
		return err
	}
	if restart {
		return ErrRestart
	}
	return nil
}

// Stop ends a running Run. It is safe to call at any time.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

// Close releases the services in reverse construction order. A dirty store
// is saved before the database closes.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
