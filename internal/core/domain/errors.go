package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the caller-facing failure taxonomy. Components wrap
// these so transports can map them with errors.Is / errors.As.
var (
	// ErrNotFound covers both an unknown batch and a batch owned by another
	// session. The two cases are indistinguishable to callers so batch
	// existence never leaks across sessions.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates a malformed request; never retried.
	ErrValidation = errors.New("invalid request")

	// ErrRateLimited indicates the per-origin request rate cap was hit.
	ErrRateLimited = errors.New("rate limited")

	// ErrQuotaExceeded indicates the session's free-item quota is spent.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrMalformedUpstream marks an upstream response body that could not be
	// parsed. The classifier maps it to a retryable failure.
	ErrMalformedUpstream = errors.New("malformed upstream response")
)

// RateLimitError carries the retry-after duration for a rate rejection.
type RateLimitError struct {
	RetryAfter time.Duration
	ResetAt    time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// QuotaError reports how much of the session quota is spent.
type QuotaError struct {
	Used  int
	Limit int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded: %d of %d free items used", e.Used, e.Limit)
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }
