// Package quota enforces per-session usage quotas and per-origin request
// rates over injected repositories. All bookkeeping operations are safe to
// call at any time; they log internal errors rather than surfacing them.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/querl369/adobe-stock-uploader-sub000/internal/core/domain"
	"github.com/querl369/adobe-stock-uploader-sub000/internal/infra/storage"
	"github.com/querl369/adobe-stock-uploader-sub000/internal/processing/metrics"
)

// Config holds registry limits.
type Config struct {
	SessionLimit     int           // free items per session
	InactivityWindow time.Duration // session expiry after last activity
	RateWindow       time.Duration // fixed window length per origin
	RateCap          int           // max requests per origin per window
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	return Config{
		SessionLimit:     10,
		InactivityWindow: time.Hour,
		RateWindow:       time.Minute,
		RateCap:          50,
	}
}

// RateStatus is the outcome of an origin rate check.
type RateStatus struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Registry is the process-wide quota and rate gatekeeper.
type Registry struct {
	cfg      Config
	sessions storage.SessionRepository
	rates    storage.RateRepository
	log      *slog.Logger
	now      func() time.Time
}

// NewRegistry creates a registry over the given repositories.
func NewRegistry(cfg Config, sessions storage.SessionRepository, rates storage.RateRepository, log *slog.Logger) *Registry {
	if cfg.SessionLimit <= 0 {
		cfg.SessionLimit = 10
	}
	if cfg.InactivityWindow <= 0 {
		cfg.InactivityWindow = time.Hour
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	if cfg.RateCap <= 0 {
		cfg.RateCap = 50
	}
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		cfg:      cfg,
		sessions: sessions,
		rates:    rates,
		log:      log,
		now:      time.Now,
	}
}

// CreateSession generates a fresh unguessable session and stores it with
// zero usage.
func (r *Registry) CreateSession(ctx context.Context) (*domain.Session, error) {
	now := r.now()
	s := &domain.Session{
		ID:             uuid.NewString(),
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if err := r.sessions.Put(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

// RecordUsage increments the session's usage by n and refreshes its
// activity timestamp. A no-op when the session no longer exists.
func (r *Registry) RecordUsage(ctx context.Context, sessionID string, n int) {
	if n <= 0 {
		return
	}
	if err := r.sessions.IncrementUsage(ctx, sessionID, n, r.now()); err != nil {
		r.log.Warn("failed to record usage", "session", sessionID, "error", err)
	}
}

// RemainingQuota returns how many free items the session has left, never
// negative. An unknown session still has the full quota.
func (r *Registry) RemainingQuota(ctx context.Context, sessionID string) int {
	s := r.lookup(ctx, sessionID)
	if s == nil {
		return r.cfg.SessionLimit
	}
	remaining := r.cfg.SessionLimit - s.ImagesProcessed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// HasReachedQuota reports whether the session has spent its full quota.
func (r *Registry) HasReachedQuota(ctx context.Context, sessionID string) bool {
	s := r.lookup(ctx, sessionID)
	return s != nil && s.ImagesProcessed >= r.cfg.SessionLimit
}

// IsExpired reports whether the session is unknown or past its inactivity
// window. Observing an expired session evicts it.
func (r *Registry) IsExpired(ctx context.Context, sessionID string) bool {
	return r.lookup(ctx, sessionID) == nil
}

// Usage returns the session's current counter, or zero for unknown sessions.
func (r *Registry) Usage(ctx context.Context, sessionID string) int {
	s := r.lookup(ctx, sessionID)
	if s == nil {
		return 0
	}
	return s.ImagesProcessed
}

// UsageMessage renders the human-readable quota line for a session.
func (r *Registry) UsageMessage(ctx context.Context, sessionID string) string {
	return fmt.Sprintf("%d of %d free items used", r.Usage(ctx, sessionID), r.cfg.SessionLimit)
}

// SessionLimit returns the configured per-session item quota.
func (r *Registry) SessionLimit() int {
	return r.cfg.SessionLimit
}

// lookup fetches a session, evicting it as a side effect the first time
// expiry is observed. Returns nil for unknown or expired sessions.
func (r *Registry) lookup(ctx context.Context, sessionID string) *domain.Session {
	s, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		r.log.Warn("session lookup failed", "session", sessionID, "error", err)
		return nil
	}
	if s == nil {
		return nil
	}
	if s.ExpiredAt(r.now(), r.cfg.InactivityWindow) {
		if err := r.sessions.Delete(ctx, sessionID); err != nil {
			r.log.Warn("failed to evict expired session", "session", sessionID, "error", err)
		}
		return nil
	}
	return s
}

// CheckOrigin counts this request against the origin's fixed window and
// returns a rate-limit error once the cap is exceeded. The counter is
// incremented on every call regardless of outcome.
func (r *Registry) CheckOrigin(ctx context.Context, origin string) (RateStatus, error) {
	now := r.now()
	count, resetAt, err := r.rates.Increment(ctx, origin, now, r.cfg.RateWindow)
	if err != nil {
		// Fail open: a broken rate store must not take the service down.
		r.log.Warn("rate increment failed", "origin", origin, "error", err)
		return RateStatus{Allowed: true, Remaining: r.cfg.RateCap, ResetAt: now.Add(r.cfg.RateWindow)}, nil
	}

	remaining := r.cfg.RateCap - count
	if remaining < 0 {
		remaining = 0
	}
	st := RateStatus{
		Allowed:   count <= r.cfg.RateCap,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if !st.Allowed {
		metrics.RateRejections.WithLabelValues("origin").Inc()
		return st, &domain.RateLimitError{
			RetryAfter: resetAt.Sub(now),
			ResetAt:    resetAt,
		}
	}
	return st, nil
}

// Sweep removes expired sessions and elapsed rate windows. It is driven by
// the janitor on a timer and callable directly in tests.
func (r *Registry) Sweep(ctx context.Context, now time.Time) int {
	removed := 0

	n, err := r.sessions.DeleteInactiveSince(ctx, now.Add(-r.cfg.InactivityWindow))
	if err != nil {
		r.log.Warn("session sweep failed", "error", err)
	}
	removed += n

	n, err = r.rates.DeleteElapsed(ctx, now)
	if err != nil {
		r.log.Warn("rate sweep failed", "error", err)
	}
	removed += n

	if count, err := r.sessions.Count(ctx); err == nil {
		metrics.ActiveSessions.Set(float64(count))
	}
	return removed
}
