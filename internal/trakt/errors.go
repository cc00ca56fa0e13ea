package trakt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrNotFound marks a 404 from the remote service.
var ErrNotFound = errors.New("not found")

// ErrCheckinInProgress marks a 409 from the checkin endpoint.
var ErrCheckinInProgress = errors.New("checkin already in progress")

// StatusError is a non-2xx response from the remote service.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote returned http %d", e.Code)
}

// Unwrap maps well-known status codes to sentinel errors so callers can use
// errors.Is without inspecting codes.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrCheckinInProgress
	}
	return nil
}

// IsTransient reports whether the error is worth retrying: network failures,
// timeouts, rate limiting and server-side errors. Context cancellation is not
// transient, the caller is shutting down.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusTooManyRequests || statusErr.Code >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// IsTerminal reports whether the error is a client-side rejection that no
// amount of retrying will fix.
func IsTerminal(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 400 && statusErr.Code < 500 && statusErr.Code != http.StatusTooManyRequests
	}
	return false
}
