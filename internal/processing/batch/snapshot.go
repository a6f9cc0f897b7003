package batch

import (
	"context"
	"time"

	"github.com/querl369/adobe-stock-uploader-sub000/internal/core/domain"
)

// Snapshot is the read-only projection exposed to pollers. Result payloads
// are deliberately omitted; only terminal error text (already user-safe)
// goes out.
type Snapshot struct {
	ID                       string                `json:"id"`
	Status                   domain.BatchStatus    `json:"status"`
	Progress                 domain.ProgressCounts `json:"progress"`
	Items                    []ItemView            `json:"items"`
	EstimatedTimeRemainingMS int64                 `json:"estimated_time_remaining_ms"`
	CreatedAt                time.Time             `json:"created_at"`
}

// ItemView is one item as seen by a poller.
type ItemView struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Status domain.ItemStatus `json:"status"`
	Error  string            `json:"error,omitempty"`
}

// Snapshot returns the poller view of a batch, or nil when unknown.
func (s *Store) Snapshot(ctx context.Context, batchID string) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.get(ctx, batchID)
	if b == nil {
		return nil
	}

	snap := &Snapshot{
		ID:                       b.ID,
		Status:                   b.Status,
		Progress:                 b.Progress,
		Items:                    make([]ItemView, 0, len(b.Items)),
		EstimatedTimeRemainingMS: b.EstimatedTimeRemaining.Milliseconds(),
		CreatedAt:                b.CreatedAt,
	}
	for _, it := range b.Items {
		snap.Items = append(snap.Items, ItemView{
			ID:     it.ID,
			Name:   it.DisplayName,
			Status: it.Status,
			Error:  it.Error,
		})
	}
	return snap
}

// Result returns an item's stored metadata once it has completed, for the
// export surface. Nil when the batch or item is unknown or not completed.
func (s *Store) Result(ctx context.Context, batchID, itemID string) *domain.Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.get(ctx, batchID)
	if b == nil {
		return nil
	}
	it := b.ItemByID(itemID)
	if it == nil || it.Status != domain.ItemStatusCompleted {
		return nil
	}
	return it.Result
}
