// Package orchestrator drives a bounded worker pool over a batch's items,
// retrying transient upstream failures and reporting every transition into
// the batch state machine.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/querl369/adobe-stock-uploader-sub000/internal/core/domain"
	"github.com/querl369/adobe-stock-uploader-sub000/internal/infra/metadata"
	"github.com/querl369/adobe-stock-uploader-sub000/internal/processing/faults"
	"github.com/querl369/adobe-stock-uploader-sub000/internal/processing/metrics"
)

const (
	DefaultConcurrency   = 5
	DefaultItemTimeout   = 30 * time.Second
	DefaultRetryAttempts = 1
)

// abortedMessage is the propagated reason for items fast-failed after an
// earlier failure stopped the batch.
const abortedMessage = "Processing stopped after an earlier item failed."

// internalErrorMessage covers items stranded by an unexpected orchestration
// failure.
const internalErrorMessage = "Something went wrong while processing this image."

// Recorder is the slice of the batch state machine the orchestrator talks
// to. It never mutates batch structures directly. Everything is keyed by
// item id; display names may collide within a batch.
type Recorder interface {
	Start(ctx context.Context, batchID string)
	SetItemStatus(ctx context.Context, batchID, itemID string, status domain.ItemStatus, errMsg string) error
	SetItemOutcome(ctx context.Context, batchID, itemID string, result *domain.Metadata, errMsg string) error
}

// Options control a run. Zero values fall back to the defaults above;
// ContinueOnError is expressed inverted (AbortOnError) so the zero value
// keeps the default behavior of pressing on past item failures.
type Options struct {
	Concurrency   int
	AbortOnError  bool
	ItemTimeout   time.Duration
	RetryAttempts int

	// Updates receives an aggregate progress snapshot after every item
	// completion. The orchestrator closes it when the run ends.
	Updates chan<- Progress
}

// Outcome is the terminal result of one item.
type Outcome struct {
	ItemID   string
	Name     string
	Result   *domain.Metadata
	Err      error
	Kind     faults.Kind
	Attempts int
	Duration time.Duration
}

// Orchestrator runs one batch to completion.
type Orchestrator struct {
	provider metadata.Provider
	rec      Recorder
	opts     Options
	log      *slog.Logger

	// sleep is replaceable in tests so backoff waits run instantly.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an orchestrator, normalizing option defaults.
func New(provider metadata.Provider, rec Recorder, opts Options, log *slog.Logger) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = DefaultItemTimeout
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		provider: provider,
		rec:      rec,
		opts:     opts,
		log:      log,
		sleep:    sleepCtx,
	}
}

// Run processes every item and returns per-item outcomes in input order.
// One item's failure never aborts the batch unless AbortOnError is set, in
// which case not-yet-started items are fast-failed rather than left pending.
// An unexpected panic is converted into failed status for every unfinished
// item; the process never crashes because of one batch.
func (o *Orchestrator) Run(ctx context.Context, batchID string, items []*domain.WorkItem) []Outcome {
	outcomes := make([]Outcome, len(items))
	done := make([]bool, len(items))
	st := newRunState(batchID, len(items))

	defer func() {
		if r := recover(); r != nil {
			o.log.Error("batch orchestration failed unexpectedly",
				"batch", batchID, "panic", r)
			o.strandRemaining(ctx, batchID, items, outcomes, done)
		}
		if o.opts.Updates != nil {
			close(o.opts.Updates)
		}
	}()

	o.rec.Start(ctx, batchID)

	sem := make(chan struct{}, o.opts.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex // guards done

	for i, item := range items {
		sem <- struct{}{}
		if o.opts.AbortOnError && st.failed() > 0 {
			// Fast-fail everything not yet started; no further upstream
			// calls are made.
			<-sem
			wg.Wait()
			o.failFrom(ctx, batchID, items, outcomes, done, i, st)
			break
		}

		wg.Add(1)
		go func(idx int, item *domain.WorkItem) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					o.log.Error("item processing panicked",
						"batch", batchID, "item", item.Name, "panic", r)
					out := Outcome{
						ItemID: item.ID,
						Name:   item.Name,
						Err:    fmt.Errorf("item panicked: %v", r),
						Kind:   faults.KindUnknown,
					}
					o.rec.SetItemOutcome(ctx, batchID, item.ID, nil, internalErrorMessage)
					o.finish(ctx, idx, out, outcomes, done, &mu, st)
				}
			}()

			out := o.processItem(ctx, batchID, item)
			o.finish(ctx, idx, out, outcomes, done, &mu, st)
		}(i, item)
	}

	wg.Wait()
	return outcomes
}

// finish records one outcome and publishes the refreshed aggregate snapshot.
func (o *Orchestrator) finish(ctx context.Context, idx int, out Outcome, outcomes []Outcome, done []bool, mu *sync.Mutex, st *runState) {
	mu.Lock()
	if done[idx] {
		mu.Unlock()
		return
	}
	outcomes[idx] = out
	done[idx] = true
	mu.Unlock()

	st.record(out)
	o.publish(st.snapshot())
}

func (o *Orchestrator) publish(p Progress) {
	if o.opts.Updates != nil {
		o.opts.Updates <- p
	}
}

// processItem runs one item: mark processing, call upstream under the item
// timeout, retry in place while the classifier allows, and record the
// terminal state. Retries stay inside this item's turn so they never consume
// another pool slot.
func (o *Orchestrator) processItem(ctx context.Context, batchID string, item *domain.WorkItem) Outcome {
	start := time.Now()
	if err := o.rec.SetItemStatus(ctx, batchID, item.ID, domain.ItemStatusProcessing, ""); err != nil {
		o.log.Warn("failed to mark item processing", "batch", batchID, "item", item.Name, "error", err)
	}

	var lastErr error
	var cls faults.Classified
	attempts := 0

	for attempt := 0; ; attempt++ {
		attempts++
		result, err := o.invoke(ctx, item)
		if err == nil {
			metrics.UpstreamCalls.WithLabelValues("success").Inc()
			metrics.ItemsProcessed.WithLabelValues("completed").Inc()
			dur := time.Since(start)
			metrics.ItemDuration.Observe(dur.Seconds())
			if err := o.rec.SetItemOutcome(ctx, batchID, item.ID, result, ""); err != nil {
				o.log.Warn("failed to record item result", "batch", batchID, "item", item.Name, "error", err)
			}
			return Outcome{
				ItemID:   item.ID,
				Name:     item.Name,
				Result:   result,
				Attempts: attempts,
				Duration: dur,
			}
		}

		lastErr = err
		cls = faults.Classify(err)
		metrics.UpstreamCalls.WithLabelValues("failure").Inc()

		if !cls.Kind.Retryable() || attempt >= o.opts.RetryAttempts {
			break
		}

		delay := faults.RetryDelay(cls.Kind, attempt, cls.RetryHint)
		o.log.Debug("retrying item",
			"batch", batchID, "item", item.Name,
			"kind", cls.Kind, "attempt", attempt, "delay", delay)
		metrics.UpstreamRetries.WithLabelValues(string(cls.Kind)).Inc()

		if err := o.sleep(ctx, delay); err != nil {
			break
		}
	}

	// Technical detail stays in the logs; callers only ever see the fixed
	// per-kind message.
	o.log.Warn("item failed",
		"batch", batchID, "item", item.Name,
		"kind", cls.Kind, "detail", faults.TechnicalDescription(cls.Kind),
		"attempts", attempts, "error", lastErr)
	metrics.ItemsProcessed.WithLabelValues("failed").Inc()

	dur := time.Since(start)
	metrics.ItemDuration.Observe(dur.Seconds())
	if err := o.rec.SetItemOutcome(ctx, batchID, item.ID, nil, faults.UserMessage(cls.Kind)); err != nil {
		o.log.Warn("failed to record item failure", "batch", batchID, "item", item.Name, "error", err)
	}
	return Outcome{
		ItemID:   item.ID,
		Name:     item.Name,
		Err:      lastErr,
		Kind:     cls.Kind,
		Attempts: attempts,
		Duration: dur,
	}
}

// invoke makes one upstream call under the per-item timeout. The timeout
// aborts only this call, not the batch.
func (o *Orchestrator) invoke(ctx context.Context, item *domain.WorkItem) (*domain.Metadata, error) {
	cctx, cancel := context.WithTimeout(ctx, o.opts.ItemTimeout)
	defer cancel()
	return o.provider.Generate(cctx, item)
}

// failFrom marks items[from:] failed with the propagated abort reason.
func (o *Orchestrator) failFrom(ctx context.Context, batchID string, items []*domain.WorkItem, outcomes []Outcome, done []bool, from int, st *runState) {
	for i := from; i < len(items); i++ {
		if done[i] {
			continue
		}
		it := items[i]
		if err := o.rec.SetItemStatus(ctx, batchID, it.ID, domain.ItemStatusFailed, abortedMessage); err != nil {
			o.log.Warn("failed to fast-fail item", "batch", batchID, "item", it.Name, "error", err)
		}
		metrics.ItemsProcessed.WithLabelValues("failed").Inc()
		outcomes[i] = Outcome{ItemID: it.ID, Name: it.Name, Err: context.Canceled, Kind: faults.KindUnknown}
		done[i] = true
		st.record(outcomes[i])
	}
	o.publish(st.snapshot())
}

// strandRemaining converts every unfinished item to failed after a panic.
func (o *Orchestrator) strandRemaining(ctx context.Context, batchID string, items []*domain.WorkItem, outcomes []Outcome, done []bool) {
	for i, it := range items {
		if done[i] {
			continue
		}
		if err := o.rec.SetItemStatus(ctx, batchID, it.ID, domain.ItemStatusFailed, internalErrorMessage); err != nil {
			o.log.Warn("failed to strand item", "batch", batchID, "item", it.Name, "error", err)
		}
		outcomes[i] = Outcome{ItemID: it.ID, Name: it.Name, Kind: faults.KindUnknown}
		done[i] = true
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
