// Package batch owns batch and per-item state. The store is the only writer
// of batch structures; the orchestrator issues update commands and pollers
// read snapshots.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/querl369/adobe-stock-uploader-sub000/internal/core/domain"
	"github.com/querl369/adobe-stock-uploader-sub000/internal/infra/storage"
	"github.com/querl369/adobe-stock-uploader-sub000/internal/processing/metrics"
)

// DefaultRetention is how long a terminal batch is kept for polling before
// the sweep reclaims it.
const DefaultRetention = time.Hour

// NewItem describes one item at batch creation time.
type NewItem struct {
	ID          string
	DisplayName string
}

// Estimate carries the aggregate numbers the orchestrator pushes after each
// item. Only ETA and the rolling average are stored; the per-status counts
// are always recomputed from the items themselves.
type Estimate struct {
	Completed  int
	Successful int
	Failed     int
	Processing int
	ETA        time.Duration
	AvgItem    time.Duration
}

// Store is the batch state machine over an injected repository. Mutations
// are serialized by the store's own mutex so a read-modify-write never
// interleaves with another.
type Store struct {
	repo      storage.BatchRepository
	retention time.Duration
	log       *slog.Logger
	now       func() time.Time
	mu        sync.Mutex
}

// NewStore creates a batch store with the given terminal-batch retention.
func NewStore(repo storage.BatchRepository, retention time.Duration, log *slog.Logger) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		repo:      repo,
		retention: retention,
		log:       log,
		now:       time.Now,
	}
}

// Create seeds a new batch with every item pending.
func (s *Store) Create(ctx context.Context, ownerSessionID string, items []NewItem) (*domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b := &domain.Batch{
		ID:             uuid.NewString(),
		OwnerSessionID: ownerSessionID,
		Status:         domain.BatchStatusPending,
		Items:          make([]*domain.Item, 0, len(items)),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, it := range items {
		id := it.ID
		if id == "" {
			id = uuid.NewString()
		}
		b.Items = append(b.Items, &domain.Item{
			ID:          id,
			DisplayName: it.DisplayName,
			Status:      domain.ItemStatusPending,
		})
	}
	recount(b)

	if err := s.repo.Put(ctx, b); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}
	metrics.BatchesStarted.Inc()
	metrics.ActiveBatches.Inc()
	return b, nil
}

// Start moves a pending batch to processing. A no-op for unknown batches.
func (s *Store) Start(ctx context.Context, batchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.get(ctx, batchID)
	if b == nil || b.Status != domain.BatchStatusPending {
		return
	}
	b.Status = domain.BatchStatusProcessing
	b.UpdatedAt = s.now()
	s.put(ctx, b)
}

// SetItemStatus updates one item by id, recomputes progress, and
// re-evaluates the batch status.
func (s *Store) SetItemStatus(ctx context.Context, batchID, itemID string, status domain.ItemStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.get(ctx, batchID)
	if b == nil {
		return fmt.Errorf("batch %s: %w", batchID, domain.ErrNotFound)
	}
	it := b.ItemByID(itemID)
	if it == nil {
		return fmt.Errorf("batch %s item %s: %w", batchID, itemID, domain.ErrNotFound)
	}

	s.applyItemUpdate(ctx, b, it, status, nil, errMsg)
	return nil
}

// SetItemOutcome records one item's terminal result by id, inferring
// completed or failed from whether a result is present. Display names need
// not be unique within a batch, so the processing path always records by id.
func (s *Store) SetItemOutcome(ctx context.Context, batchID, itemID string, result *domain.Metadata, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.get(ctx, batchID)
	if b == nil {
		return fmt.Errorf("batch %s: %w", batchID, domain.ErrNotFound)
	}
	it := b.ItemByID(itemID)
	if it == nil {
		return fmt.Errorf("batch %s item %s: %w", batchID, itemID, domain.ErrNotFound)
	}

	s.applyItemUpdate(ctx, b, it, outcomeStatus(result), result, errMsg)
	return nil
}

// SetItemResult is the display-name-keyed form of SetItemOutcome, for
// callers that only know the name. It resolves to the first item with that
// name, so it is unsafe when names collide.
func (s *Store) SetItemResult(ctx context.Context, batchID, name string, result *domain.Metadata, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.get(ctx, batchID)
	if b == nil {
		return fmt.Errorf("batch %s: %w", batchID, domain.ErrNotFound)
	}
	it := b.ItemByName(name)
	if it == nil {
		return fmt.Errorf("batch %s item %q: %w", batchID, name, domain.ErrNotFound)
	}

	s.applyItemUpdate(ctx, b, it, outcomeStatus(result), result, errMsg)
	return nil
}

func outcomeStatus(result *domain.Metadata) domain.ItemStatus {
	if result == nil {
		return domain.ItemStatusFailed
	}
	return domain.ItemStatusCompleted
}

// UpdateEstimate stores the orchestrator-supplied ETA and rolling average.
// Terminal batches keep their forced-zero ETA.
func (s *Store) UpdateEstimate(ctx context.Context, batchID string, est Estimate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.get(ctx, batchID)
	if b == nil {
		return
	}
	b.AvgItemDuration = est.AvgItem
	if !b.Status.Terminal() {
		b.EstimatedTimeRemaining = est.ETA
	}
	b.UpdatedAt = s.now()
	s.put(ctx, b)
}

// IsOwnedBy reports whether the batch exists and belongs to the session.
func (s *Store) IsOwnedBy(ctx context.Context, batchID, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.get(ctx, batchID)
	return b != nil && b.OwnerSessionID == sessionID
}

// Sweep deletes terminal batches whose retention has elapsed. Live batches
// are never touched regardless of age.
func (s *Store) Sweep(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.repo.All(ctx)
	if err != nil {
		s.log.Warn("batch sweep failed", "error", err)
		return 0
	}

	removed := 0
	for _, b := range all {
		if !b.Status.Terminal() || b.CompletedAt == nil {
			continue
		}
		if now.Sub(*b.CompletedAt) <= s.retention {
			continue
		}
		if err := s.repo.Delete(ctx, b.ID); err != nil {
			s.log.Warn("failed to delete batch", "batch", b.ID, "error", err)
			continue
		}
		metrics.ActiveBatches.Dec()
		removed++
	}
	return removed
}

// applyItemUpdate mutates one item and re-derives batch-level state. Caller
// holds the store mutex.
func (s *Store) applyItemUpdate(ctx context.Context, b *domain.Batch, it *domain.Item, status domain.ItemStatus, result *domain.Metadata, errMsg string) {
	it.Status = status
	switch status {
	case domain.ItemStatusCompleted:
		it.Result = result
		it.Error = ""
	case domain.ItemStatusFailed:
		it.Result = nil
		it.Error = errMsg
	default:
		it.Result = nil
		it.Error = ""
	}

	recount(b)
	s.evaluate(b)
	b.UpdatedAt = s.now()
	s.put(ctx, b)
}

// recount rebuilds the progress counters from the item list. Cheap at the
// expected batch sizes, and it keeps the counts consistent by construction.
func recount(b *domain.Batch) {
	p := domain.ProgressCounts{Total: len(b.Items)}
	for _, it := range b.Items {
		switch it.Status {
		case domain.ItemStatusPending:
			p.Pending++
		case domain.ItemStatusProcessing:
			p.Processing++
		case domain.ItemStatusCompleted:
			p.Completed++
		case domain.ItemStatusFailed:
			p.Failed++
		}
	}
	b.Progress = p
}

// evaluate applies the batch transition rule: failed only when every item
// failed, completed when all items are terminal and at least one succeeded,
// otherwise processing.
func (s *Store) evaluate(b *domain.Batch) {
	p := b.Progress
	if p.Total == 0 || p.Completed+p.Failed < p.Total {
		if b.Status == domain.BatchStatusPending && p.Processing+p.Completed+p.Failed > 0 {
			b.Status = domain.BatchStatusProcessing
		}
		return
	}

	if p.Failed == p.Total {
		b.Status = domain.BatchStatusFailed
	} else {
		b.Status = domain.BatchStatusCompleted
	}
	b.EstimatedTimeRemaining = 0
	if b.CompletedAt == nil {
		now := s.now()
		b.CompletedAt = &now
		metrics.BatchesFinished.WithLabelValues(string(b.Status)).Inc()
	}
}

func (s *Store) get(ctx context.Context, id string) *domain.Batch {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		s.log.Warn("batch lookup failed", "batch", id, "error", err)
		return nil
	}
	return b
}

func (s *Store) put(ctx context.Context, b *domain.Batch) {
	if err := s.repo.Put(ctx, b); err != nil {
		s.log.Warn("batch save failed", "batch", b.ID, "error", err)
	}
}
