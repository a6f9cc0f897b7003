// Package worker holds background maintenance tasks.
package worker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Target is one sweepable store. The sweep function returns how many
// entries it reclaimed.
type Target struct {
	Name  string
	Sweep func(ctx context.Context, now time.Time) int
}

// Janitor periodically sweeps expired entries out of the in-memory stores.
// It runs decoupled from the request path and only drives timing; the
// eviction rules live in the stores themselves.
type Janitor struct {
	interval time.Duration
	targets  []Target
	log      *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewJanitor creates a janitor sweeping the given targets.
func NewJanitor(interval time.Duration, targets []Target, log *slog.Logger) *Janitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Janitor{
		interval: interval,
		targets:  targets,
		log:      log,
		stop:     make(chan struct{}),
	}
}

// Start runs the sweep loop until the context is canceled or Stop is
// called. An initial sweep runs immediately.
func (j *Janitor) Start(ctx context.Context) {
	if !j.running.CompareAndSwap(false, true) {
		return
	}
	defer j.running.Store(false)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stop:
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

// Stop ends the sweep loop.
func (j *Janitor) Stop() {
	if j.running.Load() {
		select {
		case <-j.stop:
		default:
			close(j.stop)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	now := time.Now()
	for _, t := range j.targets {
		removed := t.Sweep(ctx, now)
		if removed > 0 {
			j.log.Debug("sweep reclaimed entries", "target", t.Name, "removed", removed)
		}
	}
}
