package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIError is an error surfaced to HTTP clients as {code, message}.
type APIError struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s", e.Code, e.Message)
}

// WithMessage returns a copy of e carrying a more specific message.
func (e *APIError) WithMessage(format string, args ...interface{}) *APIError {
	return &APIError{Status: e.Status, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrTokenInvalid      = &APIError{Status: http.StatusUnauthorized, Code: -1, Message: "Invalid token"}
	ErrAuthentication    = &APIError{Status: http.StatusUnauthorized, Code: -2, Message: "Authentication failed"}
	ErrMessageInvalid    = &APIError{Status: http.StatusBadRequest, Code: -3, Message: "Invalid message"}
	ErrBadRequest        = &APIError{Status: http.StatusBadRequest, Code: -4, Message: "Bad request"}
	ErrParametersInvalid = &APIError{Status: http.StatusBadRequest, Code: -5, Message: "Invalid parameters"}
	ErrResourceNotFound  = &APIError{Status: http.StatusNotFound, Code: -6, Message: "Resource not found"}
	ErrPayloadTooLarge   = &APIError{Status: http.StatusRequestEntityTooLarge, Code: -7, Message: "Request body too large"}
	ErrInternal          = &APIError{Status: http.StatusInternalServerError, Code: -500, Message: "Internal server error"}
)

func abortWithError(c *gin.Context, err *APIError) {
	c.AbortWithStatusJSON(err.Status, err)
}

type response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, response{Code: 0, Message: "Success", Data: data})
}
