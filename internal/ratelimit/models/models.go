package models

import (
	"fmt"
	"math"
	"time"

	dErrors "cnpjota/pkg/domain-errors"
)

// Window is the fixed-window counter for one subject.
type Window struct {
	Count   int
	ResetAt time.Time
}

// Elapsed reports whether the window has closed at now.
func (w *Window) Elapsed(now time.Time) bool {
	return w == nil || now.After(w.ResetAt)
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed bool
	Count   int
	Limit   int
	ResetAt time.Time
}

// ExceededError is returned when a subject has used its window.
type ExceededError struct {
	Limit      int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// NewExceededError builds the denial for a window that resets at resetAt.
func NewExceededError(limit int, resetAt, now time.Time) *ExceededError {
	retry := resetAt.Sub(now)
	if retry < 0 {
		retry = 0
	}
	return &ExceededError{Limit: limit, RetryAfter: retry, ResetAt: resetAt}
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit of %d requests exceeded, retry after %ds", e.Limit, e.RetryAfterSeconds())
}

// RetryAfterSeconds rounds up so clients never retry inside the window.
func (e *ExceededError) RetryAfterSeconds() int {
	secs := int(math.Ceil(e.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func (e *ExceededError) ErrorDetails() any {
	return map[string]any{
		"limit":       e.Limit,
		"retry_after": e.RetryAfterSeconds(),
		"reset_at":    e.ResetAt.UTC(),
	}
}

// Unwrap exposes the coded error so transports map it to 429.
func (e *ExceededError) Unwrap() error {
	return dErrors.New(dErrors.CodeRateLimited, "rate limit exceeded")
}
