package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestJanitorSweepsAllTargets(t *testing.T) {
	var a, b atomic.Int32
	j := NewJanitor(10*time.Millisecond, []Target{
		{Name: "a", Sweep: func(ctx context.Context, now time.Time) int { a.Add(1); return 1 }},
		{Name: "b", Sweep: func(ctx context.Context, now time.Time) int { b.Add(1); return 0 }},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Start(ctx)
		close(done)
	}()

	// The initial sweep plus at least one tick.
	deadline := time.After(2 * time.Second)
	for a.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("janitor never ticked")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if b.Load() < 2 {
		t.Errorf("target b swept %d times, want >= 2", b.Load())
	}
}

func TestJanitorStop(t *testing.T) {
	j := NewJanitor(time.Hour, []Target{
		{Name: "a", Sweep: func(ctx context.Context, now time.Time) int { return 0 }},
	}, nil)

	done := make(chan struct{})
	go func() {
		j.Start(context.Background())
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	j.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}

	// Stop is idempotent.
	j.Stop()
}
