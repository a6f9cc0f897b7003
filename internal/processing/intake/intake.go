// Package intake is the ingress surface of the core: it gates submissions
// through the quota registry, seeds the batch state machine, and runs the
// orchestrator in the background while callers poll for progress.
package intake

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/querl369/adobe-stock-uploader-sub000/internal/core/domain"
	"github.com/querl369/adobe-stock-uploader-sub000/internal/infra/metadata"
	"github.com/querl369/adobe-stock-uploader-sub000/internal/processing/batch"
	"github.com/querl369/adobe-stock-uploader-sub000/internal/processing/orchestrator"
	"github.com/querl369/adobe-stock-uploader-sub000/internal/quota"
)

// Options configure how batches are processed.
type Options struct {
	Concurrency   int
	AbortOnError  bool
	ItemTimeout   time.Duration
	RetryAttempts int
}

// Service wires the registry, the batch store, and the orchestrator.
type Service struct {
	quota    *quota.Registry
	batches  *batch.Store
	provider metadata.Provider
	opts     Options
	log      *slog.Logger
}

// NewService creates the intake service.
func NewService(reg *quota.Registry, batches *batch.Store, provider metadata.Provider, opts Options, log *slog.Logger) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = orchestrator.DefaultConcurrency
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = orchestrator.DefaultItemTimeout
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = orchestrator.DefaultRetryAttempts
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		quota:    reg,
		batches:  batches,
		provider: provider,
		opts:     opts,
		log:      log,
	}
}

// StartBatch gates the request through the origin rate and session quota,
// creates the batch with every item pending, starts processing in the
// background, and returns the batch id immediately.
func (s *Service) StartBatch(ctx context.Context, sessionID, origin string, items []*domain.WorkItem) (string, error) {
	if len(items) == 0 {
		return "", fmt.Errorf("%w: no items submitted", domain.ErrValidation)
	}
	for _, it := range items {
		if it.Name == "" || it.Payload == nil {
			return "", fmt.Errorf("%w: item missing name or payload", domain.ErrValidation)
		}
	}

	if _, err := s.quota.CheckOrigin(ctx, origin); err != nil {
		return "", err
	}

	remaining := s.quota.RemainingQuota(ctx, sessionID)
	if len(items) > remaining {
		used := s.quota.Usage(ctx, sessionID)
		return "", &domain.QuotaError{Used: used, Limit: s.quota.SessionLimit()}
	}
	seed := make([]batch.NewItem, 0, len(items))
	for _, it := range items {
		seed = append(seed, batch.NewItem{ID: it.ID, DisplayName: it.Name})
	}
	b, err := s.batches.Create(ctx, sessionID, seed)
	if err != nil {
		return "", err
	}

	// Usage is charged only once the batch actually exists; a failed create
	// must not burn quota.
	s.quota.RecordUsage(ctx, sessionID, len(items))

	// Align work item ids with the ids the store assigned.
	for i, it := range b.Items {
		items[i].ID = it.ID
	}

	go s.process(b.ID, items)
	return b.ID, nil
}

// BatchStatus returns the poller snapshot. An unknown batch and a batch
// owned by another session are both NotFound so existence never leaks.
func (s *Service) BatchStatus(ctx context.Context, batchID, callerSessionID string) (*batch.Snapshot, error) {
	if !s.batches.IsOwnedBy(ctx, batchID, callerSessionID) {
		return nil, fmt.Errorf("batch %s: %w", batchID, domain.ErrNotFound)
	}
	snap := s.batches.Snapshot(ctx, batchID)
	if snap == nil {
		return nil, fmt.Errorf("batch %s: %w", batchID, domain.ErrNotFound)
	}
	return snap, nil
}

// ItemResult exposes one completed item's metadata for the export surface,
// subject to the same ownership rule as BatchStatus.
func (s *Service) ItemResult(ctx context.Context, batchID, itemID, callerSessionID string) (*domain.Metadata, error) {
	if !s.batches.IsOwnedBy(ctx, batchID, callerSessionID) {
		return nil, fmt.Errorf("batch %s: %w", batchID, domain.ErrNotFound)
	}
	meta := s.batches.Result(ctx, batchID, itemID)
	if meta == nil {
		return nil, fmt.Errorf("batch %s item %s: %w", batchID, itemID, domain.ErrNotFound)
	}
	return meta, nil
}

// process runs one batch in the background and feeds progress estimates
// into the state machine. The request context is gone by now; the run gets
// its own.
func (s *Service) process(batchID string, items []*domain.WorkItem) {
	ctx := context.Background()

	updates := make(chan orchestrator.Progress, len(items)+1)
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		for p := range updates {
			s.batches.UpdateEstimate(ctx, batchID, batch.Estimate{
				Completed:  p.Completed,
				Successful: p.Successful,
				Failed:     p.Failed,
				Processing: p.Processing,
				ETA:        p.ETA,
				AvgItem:    p.AvgItem,
			})
		}
	}()

	orch := orchestrator.New(s.provider, s.batches, orchestrator.Options{
		Concurrency:   s.opts.Concurrency,
		AbortOnError:  s.opts.AbortOnError,
		ItemTimeout:   s.opts.ItemTimeout,
		RetryAttempts: s.opts.RetryAttempts,
		Updates:       updates,
	}, s.log)

	outcomes := orch.Run(ctx, batchID, items)
	<-consumed

	successful := 0
	for _, out := range outcomes {
		if out.Err == nil {
			successful++
		}
	}
	s.log.Info("batch finished",
		"batch", batchID,
		"items", len(items),
		"successful", successful,
		"failed", len(items)-successful)
}
