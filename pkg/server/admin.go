package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/dicerobot/dicerobot/pkg/config"
	"github.com/dicerobot/dicerobot/pkg/logger"
	"github.com/dicerobot/dicerobot/pkg/plugin"
	"github.com/dicerobot/dicerobot/pkg/report"
)

const (
	adminSubject = "admin"
	tokenTTL     = 7 * 24 * time.Hour
	restartDelay = time.Second
)

var jwtAlgorithms = map[string]bool{"HS256": true, "HS384": true, "HS512": true}

type authRequest struct {
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleAuth(c *gin.Context) {
	var req authRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, ErrParametersInvalid)
		return
	}

	security := s.opts.Store.Settings().Security
	if security.Admin.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(security.Admin.PasswordHash), []byte(req.Password)) != nil {
		abortWithError(c, ErrAuthentication)
		return
	}

	token, expiresAt, err := IssueToken(security.JWT, time.Now())
	if err != nil {
		logger.ErrorCF("http", "Failed to issue token", map[string]interface{}{"error": err.Error()})
		abortWithError(c, ErrInternal)
		return
	}
	success(c, gin.H{"token": token, "expires_at": expiresAt.Unix()})
}

// IssueToken signs an admin token valid from now for tokenTTL.
func IssueToken(settings config.JWTSettings, now time.Time) (string, time.Time, error) {
	method := jwt.GetSigningMethod(settings.Algorithm)
	if method == nil || !jwtAlgorithms[settings.Algorithm] {
		return "", time.Time{}, ErrInternal.WithMessage("unsupported jwt algorithm %q", settings.Algorithm)
	}
	if settings.Secret == "" {
		return "", time.Time{}, ErrInternal.WithMessage("jwt secret not set")
	}

	expiresAt := now.Add(tokenTTL)
	token := jwt.NewWithClaims(method, jwt.RegisteredClaims{
		Subject:   adminSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	signed, err := token.SignedString([]byte(settings.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *Server) handleStatus(c *gin.Context) {
	data := gin.H{
		"version": s.opts.Version,
		"uptime":  int64(time.Since(s.startTime).Seconds()),
		"modules": s.opts.Dispatcher.Modules(),
		"bot":     s.opts.Status.Snapshot(),
		"plugins": s.opts.Registry.Plugins(),
	}
	if s.opts.Scheduler != nil {
		data["scheduler"] = s.opts.Scheduler.Status()
	}
	success(c, data)
}

type moduleRequest struct {
	Module  string `json:"module" binding:"required"`
	Enabled *bool  `json:"enabled" binding:"required"`
}

func (s *Server) handleSetModule(c *gin.Context) {
	var req moduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, ErrParametersInvalid)
		return
	}
	if err := s.opts.Dispatcher.SetModule(req.Module, *req.Enabled); err != nil {
		abortWithError(c, ErrParametersInvalid.WithMessage("%s", err.Error()))
		return
	}
	success(c, s.opts.Dispatcher.Modules())
}

type securityPatch struct {
	Webhook *struct {
		Secret *string `json:"secret"`
	} `json:"webhook"`
	JWT *struct {
		Secret    *string `json:"secret"`
		Algorithm *string `json:"algorithm"`
	} `json:"jwt"`
	Admin *struct {
		Password *string `json:"password"`
	} `json:"admin"`
}

func (s *Server) handlePatchSecuritySettings(c *gin.Context) {
	var patch securityPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		abortWithError(c, ErrParametersInvalid)
		return
	}

	if patch.JWT != nil {
		if patch.JWT.Algorithm != nil && !jwtAlgorithms[*patch.JWT.Algorithm] {
			abortWithError(c, ErrParametersInvalid.WithMessage("unsupported jwt algorithm %q", *patch.JWT.Algorithm))
			return
		}
		if patch.JWT.Secret != nil && *patch.JWT.Secret == "" {
			abortWithError(c, ErrParametersInvalid.WithMessage("jwt secret must not be empty"))
			return
		}
	}

	var passwordHash string
	if patch.Admin != nil && patch.Admin.Password != nil {
		if *patch.Admin.Password == "" {
			abortWithError(c, ErrParametersInvalid.WithMessage("password must not be empty"))
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*patch.Admin.Password), bcrypt.DefaultCost)
		if err != nil {
			abortWithError(c, ErrInternal)
			return
		}
		passwordHash = string(hash)
	}

	s.opts.Store.UpdateSettings(func(settings *config.Settings) {
		if patch.Webhook != nil && patch.Webhook.Secret != nil {
			settings.Security.Webhook.Secret = *patch.Webhook.Secret
		}
		if patch.JWT != nil {
			if patch.JWT.Secret != nil {
				settings.Security.JWT.Secret = *patch.JWT.Secret
			}
			if patch.JWT.Algorithm != nil {
				settings.Security.JWT.Algorithm = *patch.JWT.Algorithm
			}
		}
		if passwordHash != "" {
			settings.Security.Admin.PasswordHash = passwordHash
		}
	})
	logger.InfoC("http", "Security settings updated")
	success(c, nil)
}

type appPatch struct {
	StartGatewayAtStartup *bool `json:"start_gateway_at_startup"`
	Gateway               *struct {
		APIBaseURL  *string `json:"api_base_url"`
		AccessToken *string `json:"access_token"`
	} `json:"gateway"`
}

// handlePatchAppSettings applies app and gateway settings. The API base URL
// and access token reach the live gateway client at once; ws_url only
// changes on restart.
func (s *Server) handlePatchAppSettings(c *gin.Context) {
	var patch appPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		abortWithError(c, ErrParametersInvalid)
		return
	}
	if gw := patch.Gateway; gw != nil && gw.APIBaseURL != nil {
		if !strings.HasPrefix(*gw.APIBaseURL, "http://") && !strings.HasPrefix(*gw.APIBaseURL, "https://") {
			abortWithError(c, ErrParametersInvalid.WithMessage("api_base_url must be an http(s) URL"))
			return
		}
	}

	settings := s.opts.Store.UpdateSettings(func(settings *config.Settings) {
		if patch.StartGatewayAtStartup != nil {
			settings.App.StartGatewayAtStartup = *patch.StartGatewayAtStartup
		}
		if gw := patch.Gateway; gw != nil {
			if gw.APIBaseURL != nil {
				settings.Gateway.APIBaseURL = *gw.APIBaseURL
			}
			if gw.AccessToken != nil {
				settings.Gateway.AccessToken = *gw.AccessToken
			}
		}
	})

	if gw := patch.Gateway; gw != nil && s.opts.Gateway != nil {
		if gw.APIBaseURL != nil {
			s.opts.Gateway.SetBaseURL(settings.Gateway.APIBaseURL)
		}
		if gw.AccessToken != nil {
			s.opts.Gateway.SetAccessToken(settings.Gateway.AccessToken)
		}
		logger.InfoCF("http", "Gateway client reconfigured", map[string]interface{}{
			"api_base_url": settings.Gateway.APIBaseURL,
		})
	}

	success(c, gin.H{
		"start_gateway_at_startup": settings.App.StartGatewayAtStartup,
		"gateway": gin.H{
			"api_base_url":     settings.Gateway.APIBaseURL,
			"ws_url":           settings.Gateway.WSURL,
			"access_token_set": settings.Gateway.AccessToken != "",
		},
	})
}

func (s *Server) handleListPlugins(c *gin.Context) {
	success(c, s.opts.Registry.Plugins())
}

func (s *Server) handleGetPlugin(c *gin.Context) {
	info, ok := s.opts.Registry.Info(c.Param("name"))
	if !ok {
		abortWithError(c, ErrResourceNotFound)
		return
	}
	success(c, info)
}

// pluginName resolves :name to a registered plugin, aborting with 404 otherwise.
func (s *Server) pluginName(c *gin.Context) (string, bool) {
	name := c.Param("name")
	if !s.opts.Registry.Has(name) {
		abortWithError(c, ErrResourceNotFound)
		return "", false
	}
	return name, true
}

func (s *Server) handleGetPluginSettings(c *gin.Context) {
	name, ok := s.pluginName(c)
	if !ok {
		return
	}
	success(c, s.opts.Registry.Settings(name))
}

func (s *Server) handlePatchPluginSettings(c *gin.Context) {
	name, ok := s.pluginName(c)
	if !ok {
		return
	}
	var patch config.Object
	if err := c.ShouldBindJSON(&patch); err != nil {
		abortWithError(c, ErrParametersInvalid)
		return
	}
	if err := s.opts.Registry.PatchPluginSettings(name, patch); err != nil {
		if errors.Is(err, plugin.ErrSettingsRejected) {
			abortWithError(c, ErrParametersInvalid.WithMessage("%v", err))
			return
		}
		abortWithError(c, ErrInternal)
		return
	}
	success(c, s.opts.Registry.Settings(name))
}

func (s *Server) handleResetPluginSettings(c *gin.Context) {
	name, ok := s.pluginName(c)
	if !ok {
		return
	}
	if err := s.opts.Registry.ResetPluginSettings(name); err != nil {
		abortWithError(c, ErrInternal)
		return
	}
	success(c, s.opts.Registry.Settings(name))
}

// replyGroup resolves :name to a plugin or the core reply group.
func (s *Server) replyGroup(c *gin.Context) (string, bool) {
	name := c.Param("name")
	if name != plugin.CoreReplyGroup && !s.opts.Registry.Has(name) {
		abortWithError(c, ErrResourceNotFound)
		return "", false
	}
	return name, true
}

func (s *Server) handleGetPluginReplies(c *gin.Context) {
	name, ok := s.replyGroup(c)
	if !ok {
		return
	}
	success(c, s.opts.Registry.Replies(name))
}

func (s *Server) handlePatchPluginReplies(c *gin.Context) {
	name, ok := s.replyGroup(c)
	if !ok {
		return
	}
	var patch map[string]string
	if err := c.ShouldBindJSON(&patch); err != nil {
		abortWithError(c, ErrParametersInvalid)
		return
	}
	if err := s.opts.Registry.PatchReplies(name, patch); err != nil {
		abortWithError(c, ErrInternal)
		return
	}
	success(c, s.opts.Registry.Replies(name))
}

func (s *Server) handleResetPluginReplies(c *gin.Context) {
	name, ok := s.replyGroup(c)
	if !ok {
		return
	}
	if err := s.opts.Registry.ResetReplies(name); err != nil {
		abortWithError(c, ErrInternal)
		return
	}
	success(c, s.opts.Registry.Replies(name))
}

func (s *Server) handleGetChatSettings(c *gin.Context) {
	chatType := c.Param("type")
	switch chatType {
	case report.ChatFriend, report.ChatGroup, report.ChatTemp:
	default:
		abortWithError(c, ErrParametersInvalid.WithMessage("unknown chat type %q", chatType))
		return
	}
	chatID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		abortWithError(c, ErrParametersInvalid.WithMessage("invalid chat id"))
		return
	}
	group := c.Param("group")
	if group != config.ChatGroupDiceRobot && !s.opts.Registry.Has(group) {
		abortWithError(c, ErrResourceNotFound)
		return
	}
	success(c, s.opts.Store.ChatSettings(chatType, chatID, group))
}

func (s *Server) handleListJobs(c *gin.Context) {
	if s.opts.Scheduler == nil {
		success(c, []interface{}{})
		return
	}
	success(c, s.opts.Scheduler.ListJobs())
}

func (s *Server) handleRestart(c *gin.Context) {
	if s.opts.Scheduler == nil {
		abortWithError(c, ErrInternal)
		return
	}
	id, err := s.opts.Scheduler.RunJobLater("restart", restartDelay)
	if err != nil {
		abortWithError(c, ErrInternal.WithMessage("%s", err.Error()))
		return
	}
	success(c, gin.H{"job": id})
}

func (s *Server) handleStop(c *gin.Context) {
	success(c, nil)
	if s.opts.Shutdown != nil {
		logger.InfoC("http", "Stop requested")
		go s.opts.Shutdown()
	}
}
