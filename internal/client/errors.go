package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is an application-level rejection: the server understood the
// request and said no. It is never retried.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rejected (%d): %s", e.Status, e.Message)
}

// StatusError is a transient HTTP failure (5xx, 408, 429). It is retried.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// IsRejected reports whether err carries an application rejection.
func IsRejected(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsAlreadyCompleted reports whether the server rejected the action because
// the quest was already recorded as completed.
func IsAlreadyCompleted(err error) bool {
	ae, ok := IsRejected(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(ae.Message), "already completed")
}

// rejection reports whether an HTTP status is an application rejection
// rather than a transient failure.
func rejection(status int) bool {
	if status < 400 || status >= 500 {
		return false
	}
	return status != http.StatusRequestTimeout && status != http.StatusTooManyRequests
}
