package server

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dicerobot/dicerobot/pkg/config"
	"github.com/dicerobot/dicerobot/pkg/logger"
)

const traceIDKey = "trace_id"

// TraceIDMiddleware tags each request with X-Trace-ID, generating one when absent.
func TraceIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set(traceIDKey, traceID)
		c.Header("X-Trace-ID", traceID)
		c.Next()
	}
}

func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		fields := map[string]interface{}{
			"method":    c.Request.Method,
			"path":      path,
			"status":    c.Writer.Status(),
			"latency":   time.Since(start).String(),
			"client_ip": c.ClientIP(),
			"trace_id":  c.GetString(traceIDKey),
		}
		switch status := c.Writer.Status(); {
		case status >= 500:
			logger.ErrorCF("http", "Request failed", fields)
		case status >= 400:
			logger.WarnCF("http", "Request rejected", fields)
		default:
			logger.DebugCF("http", "Request served", fields)
		}
	}
}

// RecoveryMiddleware turns handler panics into an internal error response.
func RecoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.ErrorCF("http", "Handler panicked", map[string]interface{}{
			"path":     c.Request.URL.Path,
			"panic":    recovered,
			"trace_id": c.GetString(traceIDKey),
		})
		abortWithError(c, ErrInternal)
	})
}

// JWTAuthMiddleware accepts requests bearing a token signed with the
// configured admin secret and algorithm.
func JWTAuthMiddleware(store *config.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abortWithError(c, ErrTokenInvalid)
			return
		}

		jwtSettings := store.Settings().Security.JWT
		if jwtSettings.Secret == "" {
			abortWithError(c, ErrTokenInvalid)
			return
		}

		token, err := jwt.ParseWithClaims(parts[1], &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
			return []byte(jwtSettings.Secret), nil
		},
			jwt.WithValidMethods([]string{jwtSettings.Algorithm}),
			jwt.WithExpirationRequired(),
			jwt.WithSubject(adminSubject),
		)
		if err != nil || !token.Valid {
			abortWithError(c, ErrTokenInvalid)
			return
		}
		c.Next()
	}
}
