package tts

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// RetryableError marks a transient synthesis failure: network timeouts, rate
// limiting, flaky 5xx responses. Eligible for backoff-and-retry.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return fmt.Sprintf("retryable: %v", e.Err) }
func (e *RetryableError) Unwrap() error { return e.Err }

// TerminalError marks a failure that retrying cannot fix: bad credentials,
// quota exhaustion, an invalid voice. It fails the whole job immediately.
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string { return fmt.Sprintf("terminal: %v", e.Err) }
func (e *TerminalError) Unwrap() error { return e.Err }

// IsRetryable reports whether err should be retried. Unclassified errors are
// treated as retryable; misclassifying a transient blip as terminal kills a
// long conversion for nothing, while the attempt cap bounds the other way.
func IsRetryable(err error) bool {
	var term *TerminalError
	return !errors.As(err, &term)
}

// IsTerminal reports whether err must fail the job without retry.
func IsTerminal(err error) bool {
	var term *TerminalError
	return errors.As(err, &term)
}

// classifyHTTPStatus maps a non-2xx response to the retryable/terminal split.
func classifyHTTPStatus(status int, body string) error {
	base := fmt.Errorf("tts service returned %d: %s", status, strings.TrimSpace(body))
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return &TerminalError{Err: base}
	case status == http.StatusTooManyRequests:
		return &RetryableError{Err: base}
	case status == http.StatusBadRequest, status == http.StatusNotFound,
		status == http.StatusUnprocessableEntity:
		return &TerminalError{Err: base}
	case status >= 500:
		return &RetryableError{Err: base}
	default:
		return &RetryableError{Err: base}
	}
}

// classifyTransportError wraps errors from the HTTP round trip itself.
// Timeouts and connection failures are transient by nature.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &RetryableError{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &RetryableError{Err: err}
	}
	return &RetryableError{Err: err}
}
