// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// AI provider errors.
	ErrRateLimit    = errors.New("rate limit exceeded")
	ErrMaxRetries   = errors.New("max retries exceeded")
	ErrUnresolvable = errors.New("provider could not resolve")

	// Pipeline errors.
	ErrNoRequests      = errors.New("no requests to process")
	ErrAmbiguousMatch  = errors.New("ambiguous name match")
	ErrMergeCycle      = errors.New("merge would create a pointer chain")
	ErrAlreadyMerged   = errors.New("request is already merged")
	ErrRequestInactive = errors.New("request is not active")

	// Solver errors.
	ErrInfeasible    = errors.New("no feasible assignment exists")
	ErrRunInProgress = errors.New("a solver run is already in progress for this scenario")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// RetryableError wraps an error with retry-specific metadata.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
