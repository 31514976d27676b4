package internal

import (
	"errors"
	"fmt"
)

// ErrQuotaExceeded is returned by the local store when a write would push it
// past its configured capacity.
var ErrQuotaExceeded = errors.New("local storage quota exceeded")

// ErrNoStorage is returned by writers constructed without a local store
var ErrNoStorage = errors.New("no local storage configured")

// ErrNotConnected is the cause of a GatewayUnavailableError raised before
// any request was attempted.
var ErrNotConnected = errors.New("not connected")

// ErrReservedSessionKey rejects the session key whose history key would
// collide with the legacy global history.
var ErrReservedSessionKey = errors.New("session key is reserved")

// GatewayUnavailableError means the gateway is not connected. Callers render
// a disconnected state instead of surfacing it.
type GatewayUnavailableError struct {
	URL string
	Err error
}

func (e *GatewayUnavailableError) Error() string {
	msg := "gateway unavailable"
	if e.URL != "" {
		msg += " [" + e.URL + "]"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *GatewayUnavailableError) Unwrap() error {
	return e.Err
}

// RequestError is a failed or timed out RPC call
type RequestError struct {
	Method  string
	Code    string
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("request error [%s] %s: %s", e.Method, e.Code, e.Message)
	}
	return fmt.Sprintf("request error [%s]: %s", e.Method, e.Message)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// MalformedResponseError means the payload did not match the method's schema
type MalformedResponseError struct {
	Method string
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response [%s]: %s", e.Method, e.Reason)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// StorageError represents errors accessing the local store
type StorageError struct {
	Key string
	Op  string // "get", "set", "remove", "open"
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ExportError represents errors during export
type ExportError struct {
	Format string
	Path   string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [%s] %s: %v", e.Format, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// IsGatewayUnavailable reports whether err is, or wraps, a GatewayUnavailableError
func IsGatewayUnavailable(err error) bool {
	var gu *GatewayUnavailableError
	return errors.As(err, &gu)
}
