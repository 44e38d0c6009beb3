package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrMissingToken is returned by New when no access token is configured.
	ErrMissingToken = errors.New("access token is required")

	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// APIError is a response that is neither a page nor a throttling notice.
// Body holds the raw response for diagnosis.
type APIError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("readwise API error (status %d): %s", e.StatusCode, truncate(e.Body, maxErrorBody))
}

const maxErrorBody = 2048

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassNetwork represents transport failures (no usable response).
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassThrottled represents a server throttling notice.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassAPI represents any other unexpected response.
	ErrorClassAPI ErrorClass = "api"

	// ErrorClassCancelled represents a request aborted by its context.
	ErrorClassCancelled ErrorClass = "cancelled"
)

// shouldRetry determines if an error should be retried by the backoff loop.
// Throttling is handled by the pagination walk with the server's own delay.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassNetwork:
		return true
	case ErrorClassThrottled, ErrorClassAPI, ErrorClassCancelled:
		return false
	default:
		return false
	}
}
