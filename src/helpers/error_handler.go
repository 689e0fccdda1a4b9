package helpers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chart-hub/src/logger"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type ChartHubError struct {
	Message string
	Cause   error
}

func (e *ChartHubError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ChartHubError) Unwrap() error {
	return e.Cause
}

// Distinct error kinds, matched with errors.As.
type ConfigurationError struct{ ChartHubError }
type FetchError struct{ ChartHubError }
type TransportError struct{ ChartHubError }
type ProtocolError struct{ ChartHubError }

// -----------------------------------------------------------------------------

func NewFetchError(message string, cause error) error {
	return &FetchError{ChartHubError{Message: message, Cause: cause}}
}

func NewTransportError(message string, cause error) error {
	return &TransportError{ChartHubError{Message: message, Cause: cause}}
}

func NewProtocolError(message string, cause error) error {
	return &ProtocolError{ChartHubError{Message: message, Cause: cause}}
}

func NewConfigurationError(message string, cause error) error {
	return &ConfigurationError{ChartHubError{Message: message, Cause: cause}}
}

// -----------------------------------------------------------------------------

// IsFetchError reports whether err (or anything it wraps) is a FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryWithBackoff runs fn up to maxRetries+1 times, doubling the delay after
// each failure. It stops early when ctx is done or fn returns a
// PermanentError.
func RetryWithBackoff[T any](ctx context.Context, log *logger.Logger, operation string, maxRetries int, baseDelay time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		res, err := fn()
		if err == nil {
			return res, nil
		}

		lastErr = err
		var perm *PermanentError
		if errors.As(err, &perm) || attempt == maxRetries {
			break
		}

		delay := baseDelay * (1 << attempt)
		if log != nil {
			log.Warning("Attempt %d/%d failed for %s: %v. Retrying in %v", attempt+1, maxRetries+1, operation, err, delay)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, fmt.Errorf("%s cancelled during retry: %w", operation, ctx.Err())
		}
	}

	return zero, lastErr
}

// -----------------------------------------------------------------------------

// PermanentError marks a failure that retrying cannot fix (e.g. a 4xx).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }
