// DiceRobot - QQ dice and chat assistant
// License: MIT
//
// Copyright (c) 2026 DiceRobot contributors

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dicerobot/dicerobot/pkg/bot"
	"github.com/dicerobot/dicerobot/pkg/config"
	"github.com/dicerobot/dicerobot/pkg/cron"
	"github.com/dicerobot/dicerobot/pkg/dispatch"
	"github.com/dicerobot/dicerobot/pkg/logger"
	"github.com/dicerobot/dicerobot/pkg/plugin"
)

const shutdownTimeout = 10 * time.Second

// Scheduler is the part of the scheduler the admin API drives.
type Scheduler interface {
	ListJobs() []cron.CronJob
	RunJobLater(id string, delay time.Duration) (string, error)
	Status() map[string]interface{}
}

// GatewayConfigurer updates the live gateway client after a settings patch.
type GatewayConfigurer interface {
	SetBaseURL(baseURL string)
	SetAccessToken(token string)
}

type Options struct {
	Addr       string
	Version    string
	Debug      bool
	Store      *config.Store
	Registry   *plugin.Registry
	Dispatcher *dispatch.Dispatcher
	Status     *bot.Status
	Scheduler  Scheduler
	// Gateway is optional; without it gateway patches only reach the store.
	Gateway GatewayConfigurer
	// Shutdown is called by POST /stop.
	Shutdown func()
}

type Server struct {
	opts       Options
	engine     *gin.Engine
	httpServer *http.Server
	startTime  time.Time
}

func New(opts Options) *Server {
	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(TraceIDMiddleware())
	engine.Use(LoggerMiddleware())
	engine.Use(RecoveryMiddleware())

	s := &Server{
		opts:      opts,
		engine:    engine,
		startTime: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.POST("/report", s.handleReport)
	s.engine.POST("/auth", s.handleAuth)

	admin := s.engine.Group("")
	admin.Use(JWTAuthMiddleware(s.opts.Store))
	{
		admin.GET("/status", s.handleStatus)
		admin.POST("/status/module", s.handleSetModule)

		admin.PATCH("/settings/security", s.handlePatchSecuritySettings)
		admin.PATCH("/settings/app", s.handlePatchAppSettings)

		admin.GET("/plugins", s.handleListPlugins)
		admin.GET("/plugin/:name", s.handleGetPlugin)
		admin.GET("/plugin/:name/settings", s.handleGetPluginSettings)
		admin.PATCH("/plugin/:name/settings", s.handlePatchPluginSettings)
		admin.POST("/plugin/:name/settings/reset", s.handleResetPluginSettings)
		admin.GET("/plugin/:name/replies", s.handleGetPluginReplies)
		admin.PATCH("/plugin/:name/replies", s.handlePatchPluginReplies)
		admin.POST("/plugin/:name/replies/reset", s.handleResetPluginReplies)

		admin.GET("/chat/:type/:id/settings/:group", s.handleGetChatSettings)

		admin.GET("/schedule", s.handleListJobs)
		admin.POST("/restart", s.handleRestart)
		admin.POST("/stop", s.handleStop)
	}
}

// Engine exposes the gin engine for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoCF("http", "Server listening", map[string]interface{}{"addr": s.opts.Addr})
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.InfoC("http", "Server stopped")
	return nil
}
