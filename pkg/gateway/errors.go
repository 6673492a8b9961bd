package gateway

import (
	"errors"
	"fmt"
)

// ErrNetwork matches every error returned for a failed gateway call.
var ErrNetwork = errors.New("gateway network error")

// NetworkClientError is a 4xx answer from the gateway.
type NetworkClientError struct {
	Action     string
	StatusCode int
}

func (e *NetworkClientError) Error() string {
	return fmt.Sprintf("gateway %s: client error (HTTP %d)", e.Action, e.StatusCode)
}

func (e *NetworkClientError) Is(target error) bool { return target == ErrNetwork }

// NetworkServerError is a 5xx answer from the gateway.
type NetworkServerError struct {
	Action     string
	StatusCode int
}

func (e *NetworkServerError) Error() string {
	return fmt.Sprintf("gateway %s: server error (HTTP %d)", e.Action, e.StatusCode)
}

func (e *NetworkServerError) Is(target error) bool { return target == ErrNetwork }

type NetworkInvalidContentError struct {
	Action string
	Err    error
}

func (e *NetworkInvalidContentError) Error() string {
	return fmt.Sprintf("gateway %s: invalid content: %v", e.Action, e.Err)
}

func (e *NetworkInvalidContentError) Unwrap() error { return e.Err }

func (e *NetworkInvalidContentError) Is(target error) bool { return target == ErrNetwork }

// NetworkError is a transport failure: connection refused, timeout, etc.
type NetworkError struct {
	Action string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Action, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }
