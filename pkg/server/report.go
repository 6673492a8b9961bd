package server

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dicerobot/dicerobot/pkg/logger"
	"github.com/dicerobot/dicerobot/pkg/report"
)

const (
	signaturePrefix = "sha1="
	maxReportBytes  = 4 << 20
)

// VerifySignature checks an X-Signature header value against body.
func VerifySignature(secret string, body []byte, signature string) bool {
	if !strings.HasPrefix(signature, signaturePrefix) {
		return false
	}
	expected, err := hex.DecodeString(strings.TrimPrefix(signature, signaturePrefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// Sign returns the X-Signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

func (s *Server) handleReport(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxReportBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.WarnCF("http", "Report body too large", map[string]interface{}{"limit": tooLarge.Limit})
			abortWithError(c, ErrPayloadTooLarge)
			return
		}
		abortWithError(c, ErrBadRequest)
		return
	}

	secret := s.opts.Store.Settings().Security.Webhook.Secret
	if !VerifySignature(secret, body, c.GetHeader("X-Signature")) {
		abortWithError(c, ErrTokenInvalid)
		return
	}

	r, err := report.Decode(body)
	switch {
	case errors.Is(err, report.ErrIgnored):
		c.Status(http.StatusNoContent)
		return
	case errors.Is(err, report.ErrMessageInvalid):
		logger.DebugCF("http", "Invalid report", map[string]interface{}{"error": err.Error()})
		abortWithError(c, ErrMessageInvalid)
		return
	case err != nil:
		abortWithError(c, ErrInternal)
		return
	}

	if err := s.opts.Dispatcher.Dispatch(c.Request.Context(), r); err != nil {
		abortWithError(c, ErrInternal.WithMessage("%s", err.Error()))
		return
	}
	c.Status(http.StatusNoContent)
}
