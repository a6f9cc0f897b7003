package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/querl369/adobe-stock-uploader-sub000/internal/core/domain"
	"github.com/querl369/adobe-stock-uploader-sub000/internal/infra/storage/memory"
)

func newTestRegistry(t *testing.T) (*Registry, *time.Time) {
	t.Helper()
	store := memory.NewStore()
	reg := NewRegistry(DefaultConfig(), memory.NewSessionRepo(store), memory.NewRateRepo(store), nil)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	reg.now = func() time.Time { return *clock }
	return reg, clock
}

func TestSessionQuota(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	s, err := reg.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if got := reg.RemainingQuota(ctx, s.ID); got != 10 {
		t.Errorf("fresh session remaining = %d, want 10", got)
	}
	if reg.HasReachedQuota(ctx, s.ID) {
		t.Error("fresh session should not have reached quota")
	}

	reg.RecordUsage(ctx, s.ID, 3)
	if got := reg.RemainingQuota(ctx, s.ID); got != 7 {
		t.Errorf("after 3 items remaining = %d, want 7", got)
	}

	reg.RecordUsage(ctx, s.ID, 7)
	if got := reg.Usage(ctx, s.ID); got != 10 {
		t.Errorf("usage = %d, want 10", got)
	}
	if got := reg.RemainingQuota(ctx, s.ID); got != 0 {
		t.Errorf("remaining = %d, want 0", got)
	}
	if !reg.HasReachedQuota(ctx, s.ID) {
		t.Error("session at 10/10 should have reached quota")
	}
	if got := reg.UsageMessage(ctx, s.ID); got != "10 of 10 free items used" {
		t.Errorf("UsageMessage = %q", got)
	}

	// Over-quota usage never drives remaining negative.
	reg.RecordUsage(ctx, s.ID, 5)
	if got := reg.RemainingQuota(ctx, s.ID); got != 0 {
		t.Errorf("remaining after overuse = %d, want 0", got)
	}
}

func TestUnknownSession(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	// Unknown sessions are treated as "not yet used".
	if got := reg.RemainingQuota(ctx, "nope"); got != 10 {
		t.Errorf("unknown session remaining = %d, want 10", got)
	}
	if reg.HasReachedQuota(ctx, "nope") {
		t.Error("unknown session should not have reached quota")
	}
	if !reg.IsExpired(ctx, "nope") {
		t.Error("unknown session should read as expired")
	}

	// Recording usage for an unknown session is a safe no-op.
	reg.RecordUsage(ctx, "nope", 3)
	if got := reg.Usage(ctx, "nope"); got != 0 {
		t.Errorf("usage of unknown session = %d, want 0", got)
	}
}

func TestSessionExpiry(t *testing.T) {
	ctx := context.Background()
	reg, clock := newTestRegistry(t)

	s, err := reg.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	// Just inside the window.
	*clock = clock.Add(time.Hour)
	if reg.IsExpired(ctx, s.ID) {
		t.Error("session at exactly 1h should not be expired")
	}

	// Just past the window: expired and evicted on lookup.
	*clock = clock.Add(time.Second)
	if !reg.IsExpired(ctx, s.ID) {
		t.Error("session past 1h should be expired")
	}
	if got := reg.Usage(ctx, s.ID); got != 0 {
		t.Errorf("evicted session usage = %d, want 0", got)
	}
}

func TestActivityRefreshesExpiry(t *testing.T) {
	ctx := context.Background()
	reg, clock := newTestRegistry(t)

	s, _ := reg.CreateSession(ctx)

	*clock = clock.Add(50 * time.Minute)
	reg.RecordUsage(ctx, s.ID, 1)

	// 50m after the refresh, 100m after creation: still alive.
	*clock = clock.Add(50 * time.Minute)
	if reg.IsExpired(ctx, s.ID) {
		t.Error("recent activity should have refreshed expiry")
	}
	if got := reg.Usage(ctx, s.ID); got != 1 {
		t.Errorf("usage = %d, want 1", got)
	}
}

func TestOriginRate(t *testing.T) {
	ctx := context.Background()
	reg, clock := newTestRegistry(t)

	for i := 0; i < 50; i++ {
		st, err := reg.CheckOrigin(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("request %d rejected: %v", i+1, err)
		}
		if want := 50 - (i + 1); st.Remaining != want {
			t.Fatalf("request %d remaining = %d, want %d", i+1, st.Remaining, want)
		}
	}

	// Request 51 pushes over the cap.
	st, err := reg.CheckOrigin(ctx, "10.0.0.1")
	if err == nil {
		t.Fatal("expected rate-limit rejection")
	}
	if st.Allowed {
		t.Error("status should not be allowed")
	}
	var rle *domain.RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("error type = %T, want *domain.RateLimitError", err)
	}
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Error("rejection should match ErrRateLimited")
	}
	if rle.RetryAfter <= 0 || rle.RetryAfter > time.Minute {
		t.Errorf("RetryAfter = %v, want within (0, 1m]", rle.RetryAfter)
	}

	// A different origin is unaffected.
	if _, err := reg.CheckOrigin(ctx, "10.0.0.2"); err != nil {
		t.Errorf("other origin rejected: %v", err)
	}

	// The window resets the counter.
	*clock = clock.Add(61 * time.Second)
	if _, err := reg.CheckOrigin(ctx, "10.0.0.1"); err != nil {
		t.Errorf("request after window reset rejected: %v", err)
	}
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	reg, clock := newTestRegistry(t)

	stale, _ := reg.CreateSession(ctx)
	reg.CheckOrigin(ctx, "10.0.0.9")

	*clock = clock.Add(30 * time.Minute)
	fresh, _ := reg.CreateSession(ctx)

	*clock = clock.Add(45 * time.Minute)
	removed := reg.Sweep(ctx, *clock)
	// The stale session (75m idle) and the elapsed rate window go; the
	// fresh session (45m idle) stays.
	if removed != 2 {
		t.Errorf("Sweep removed %d entries, want 2", removed)
	}
	if !reg.IsExpired(ctx, stale.ID) {
		t.Error("stale session should be gone")
	}
	if reg.IsExpired(ctx, fresh.ID) {
		t.Error("fresh session should survive the sweep")
	}
}
