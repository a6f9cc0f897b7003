// Package storage defines the repository interfaces behind the in-memory
// stores. Implementations must be safe for concurrent use; callers never
// reach into their internals.
package storage

import (
	"context"
	"time"

	"github.com/querl369/adobe-stock-uploader-sub000/internal/core/domain"
)

// SessionRepository stores per-caller usage sessions.
type SessionRepository interface {
	// Put stores or replaces a session.
	Put(ctx context.Context, s *domain.Session) error

	// Get returns the session or nil when unknown.
	Get(ctx context.Context, id string) (*domain.Session, error)

	// Delete removes a session. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error

	// IncrementUsage adds n to the session's usage counter and refreshes its
	// last-activity timestamp. A no-op when the session is unknown.
	IncrementUsage(ctx context.Context, id string, n int, now time.Time) error

	// DeleteInactiveSince removes sessions idle since before cutoff and
	// returns how many were removed.
	DeleteInactiveSince(ctx context.Context, cutoff time.Time) (int, error)

	// Count returns the number of stored sessions.
	Count(ctx context.Context) (int, error)
}

// RateRepository stores per-origin fixed-window request counters.
type RateRepository interface {
	// Increment bumps the origin's counter inside the current window,
	// opening a fresh window when the previous one has elapsed. It returns
	// the post-increment count and when the window resets.
	Increment(ctx context.Context, origin string, now time.Time, window time.Duration) (count int, resetAt time.Time, err error)

	// DeleteElapsed removes entries whose window has fully elapsed and
	// returns how many were removed.
	DeleteElapsed(ctx context.Context, now time.Time) (int, error)
}

// BatchRepository stores live batch state.
type BatchRepository interface {
	Put(ctx context.Context, b *domain.Batch) error
	Get(ctx context.Context, id string) (*domain.Batch, error)
	Delete(ctx context.Context, id string) error
	All(ctx context.Context) ([]*domain.Batch, error)
}
