package intake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/querl369/adobe-stock-uploader-sub000/internal/core/domain"
	"github.com/querl369/adobe-stock-uploader-sub000/internal/infra/metadata"
	"github.com/querl369/adobe-stock-uploader-sub000/internal/infra/storage/memory"
	"github.com/querl369/adobe-stock-uploader-sub000/internal/processing/batch"
	"github.com/querl369/adobe-stock-uploader-sub000/internal/quota"
)

func newTestService(t *testing.T, provider metadata.Provider) (*Service, *quota.Registry) {
	t.Helper()
	store := memory.NewStore()
	reg := quota.NewRegistry(quota.DefaultConfig(), memory.NewSessionRepo(store), memory.NewRateRepo(store), nil)
	batches := batch.NewStore(memory.NewBatchRepo(store), time.Hour, nil)
	svc := NewService(reg, batches, provider, Options{Concurrency: 2, ItemTimeout: time.Second}, nil)
	return svc, reg
}

func testItems(names ...string) []*domain.WorkItem {
	items := make([]*domain.WorkItem, 0, len(names))
	for _, n := range names {
		items = append(items, &domain.WorkItem{
			Name:    n,
			MIME:    "image/jpeg",
			Payload: domain.PayloadFromBytes([]byte("img")),
		})
	}
	return items
}

func waitTerminal(t *testing.T, svc *Service, batchID, sessionID string) *batch.Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := svc.BatchStatus(context.Background(), batchID, sessionID)
		if err != nil {
			t.Fatalf("BatchStatus failed: %v", err)
		}
		if snap.Status.Terminal() {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("batch did not reach a terminal status")
	return nil
}

func TestStartBatchRunsToCompletion(t *testing.T) {
	ctx := context.Background()
	provider := metadata.ProviderFunc(func(ctx context.Context, item *domain.WorkItem) (*domain.Metadata, error) {
		return &domain.Metadata{Title: item.Name, Keywords: []string{"k"}, Category: "c"}, nil
	})
	svc, reg := newTestService(t, provider)

	sess, _ := reg.CreateSession(ctx)
	id, err := svc.StartBatch(ctx, sess.ID, "10.0.0.1", testItems("a.jpg", "b.jpg", "c.jpg"))
	if err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}

	snap := waitTerminal(t, svc, id, sess.ID)
	if snap.Status != domain.BatchStatusCompleted {
		t.Errorf("status = %s, want completed", snap.Status)
	}
	if snap.Progress.Completed != 3 {
		t.Errorf("completed = %d, want 3", snap.Progress.Completed)
	}

	// Usage was recorded against the session.
	if got := reg.Usage(ctx, sess.ID); got != 3 {
		t.Errorf("session usage = %d, want 3", got)
	}

	// Completed results are reachable through the export surface.
	meta, err := svc.ItemResult(ctx, id, snap.Items[0].ID, sess.ID)
	if err != nil {
		t.Fatalf("ItemResult failed: %v", err)
	}
	if meta.Title != snap.Items[0].Name {
		t.Errorf("result title = %q, want %q", meta.Title, snap.Items[0].Name)
	}
}

func TestStartBatchQuotaGate(t *testing.T) {
	ctx := context.Background()
	provider := metadata.ProviderFunc(func(ctx context.Context, item *domain.WorkItem) (*domain.Metadata, error) {
		return &domain.Metadata{Title: "t"}, nil
	})
	svc, reg := newTestService(t, provider)

	sess, _ := reg.CreateSession(ctx)
	reg.RecordUsage(ctx, sess.ID, 8)

	// 3 items against 2 remaining is rejected without touching usage.
	_, err := svc.StartBatch(ctx, sess.ID, "10.0.0.1", testItems("a", "b", "c"))
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
	if got := reg.Usage(ctx, sess.ID); got != 8 {
		t.Errorf("usage after rejection = %d, want 8", got)
	}

	// 2 items fit exactly.
	id, err := svc.StartBatch(ctx, sess.ID, "10.0.0.1", testItems("a", "b"))
	if err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}
	waitTerminal(t, svc, id, sess.ID)
	if !reg.HasReachedQuota(ctx, sess.ID) {
		t.Error("session should have reached quota after 10 items")
	}
}

func TestStartBatchRateGate(t *testing.T) {
	ctx := context.Background()
	provider := metadata.ProviderFunc(func(ctx context.Context, item *domain.WorkItem) (*domain.Metadata, error) {
		return &domain.Metadata{Title: "t"}, nil
	})
	svc, reg := newTestService(t, provider)
	sess, _ := reg.CreateSession(ctx)

	// Exhaust the origin window with plain checks.
	for i := 0; i < 50; i++ {
		reg.CheckOrigin(ctx, "10.9.9.9")
	}

	_, err := svc.StartBatch(ctx, sess.ID, "10.9.9.9", testItems("a"))
	var rle *domain.RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("err = %v, want *domain.RateLimitError", err)
	}
	if rle.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want positive", rle.RetryAfter)
	}
}

func TestStartBatchValidation(t *testing.T) {
	ctx := context.Background()
	svc, reg := newTestService(t, metadata.ProviderFunc(func(ctx context.Context, item *domain.WorkItem) (*domain.Metadata, error) {
		return nil, nil
	}))
	sess, _ := reg.CreateSession(ctx)

	if _, err := svc.StartBatch(ctx, sess.ID, "10.0.0.1", nil); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty batch err = %v, want ErrValidation", err)
	}

	bad := []*domain.WorkItem{{Name: "", Payload: domain.PayloadFromBytes(nil)}}
	if _, err := svc.StartBatch(ctx, sess.ID, "10.0.0.1", bad); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("nameless item err = %v, want ErrValidation", err)
	}
}

func TestBatchStatusOwnership(t *testing.T) {
	ctx := context.Background()
	provider := metadata.ProviderFunc(func(ctx context.Context, item *domain.WorkItem) (*domain.Metadata, error) {
		return &domain.Metadata{Title: "t"}, nil
	})
	svc, reg := newTestService(t, provider)

	owner, _ := reg.CreateSession(ctx)
	stranger, _ := reg.CreateSession(ctx)

	id, err := svc.StartBatch(ctx, owner.ID, "10.0.0.1", testItems("a"))
	if err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}

	// Foreign session and unknown batch look identical.
	_, errForeign := svc.BatchStatus(ctx, id, stranger.ID)
	_, errUnknown := svc.BatchStatus(ctx, "no-such-batch", owner.ID)
	if !errors.Is(errForeign, domain.ErrNotFound) {
		t.Errorf("foreign err = %v, want ErrNotFound", errForeign)
	}
	if !errors.Is(errUnknown, domain.ErrNotFound) {
		t.Errorf("unknown err = %v, want ErrNotFound", errUnknown)
	}

	if _, err := svc.BatchStatus(ctx, id, owner.ID); err != nil {
		t.Errorf("owner poll failed: %v", err)
	}
}

func TestPartialFailureStillCompletes(t *testing.T) {
	ctx := context.Background()
	provider := metadata.ProviderFunc(func(ctx context.Context, item *domain.WorkItem) (*domain.Metadata, error) {
		if item.Name == "bad.jpg" {
			return nil, errors.New("something odd happened")
		}
		return &domain.Metadata{Title: item.Name}, nil
	})
	svc, reg := newTestService(t, provider)
	sess, _ := reg.CreateSession(ctx)

	id, err := svc.StartBatch(ctx, sess.ID, "10.0.0.1", testItems("a.jpg", "bad.jpg"))
	if err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}

	snap := waitTerminal(t, svc, id, sess.ID)
	if snap.Status != domain.BatchStatusCompleted {
		t.Errorf("status = %s, want completed despite one failure", snap.Status)
	}
	if snap.Progress.Failed != 1 || snap.Progress.Completed != 1 {
		t.Errorf("progress = %+v", snap.Progress)
	}
	for _, it := range snap.Items {
		if it.Name == "bad.jpg" && it.Error == "" {
			t.Error("failed item should carry a user-safe message")
		}
	}
}

func TestDuplicateNamesRunToCompletion(t *testing.T) {
	ctx := context.Background()
	provider := metadata.ProviderFunc(func(ctx context.Context, item *domain.WorkItem) (*domain.Metadata, error) {
		return &domain.Metadata{Title: item.Name}, nil
	})
	svc, reg := newTestService(t, provider)
	sess, _ := reg.CreateSession(ctx)

	id, err := svc.StartBatch(ctx, sess.ID, "10.0.0.1", testItems("a.jpg", "a.jpg"))
	if err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}

	// Both same-named items must reach a terminal status; the batch must
	// not sit in processing with one item stuck forever.
	snap := waitTerminal(t, svc, id, sess.ID)
	if snap.Status != domain.BatchStatusCompleted {
		t.Errorf("status = %s, want completed", snap.Status)
	}
	if snap.Progress.Completed != 2 || snap.Progress.Processing != 0 {
		t.Errorf("progress = %+v, want both items completed", snap.Progress)
	}
}

// failingBatchRepo rejects every write.
type failingBatchRepo struct{}

func (failingBatchRepo) Put(ctx context.Context, b *domain.Batch) error {
	return errors.New("storage unavailable")
}
func (failingBatchRepo) Get(ctx context.Context, id string) (*domain.Batch, error) {
	return nil, nil
}
func (failingBatchRepo) Delete(ctx context.Context, id string) error { return nil }
func (failingBatchRepo) All(ctx context.Context) ([]*domain.Batch, error) {
	return nil, nil
}

func TestFailedCreateDoesNotBurnQuota(t *testing.T) {
	ctx := context.Background()
	provider := metadata.ProviderFunc(func(ctx context.Context, item *domain.WorkItem) (*domain.Metadata, error) {
		return &domain.Metadata{Title: item.Name}, nil
	})

	store := memory.NewStore()
	reg := quota.NewRegistry(quota.DefaultConfig(), memory.NewSessionRepo(store), memory.NewRateRepo(store), nil)
	batches := batch.NewStore(failingBatchRepo{}, time.Hour, nil)
	svc := NewService(reg, batches, provider, Options{Concurrency: 2, ItemTimeout: time.Second}, nil)

	sess, _ := reg.CreateSession(ctx)
	if _, err := svc.StartBatch(ctx, sess.ID, "10.0.0.1", testItems("a.jpg", "b.jpg")); err == nil {
		t.Fatal("StartBatch should fail when the batch cannot be stored")
	}

	if got := reg.Usage(ctx, sess.ID); got != 0 {
		t.Errorf("session usage = %d, want 0 after failed create", got)
	}
}
