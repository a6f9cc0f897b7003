// Package memory provides the default single-process implementation of the
// storage repositories: plain maps guarded by a RWMutex.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/querl369/adobe-stock-uploader-sub000/internal/core/domain"
)

type rateEntry struct {
	count   int
	resetAt time.Time
}

// Store holds all in-memory state. One instance is created at process start
// and shared by the repositories below.
type Store struct {
	sessions map[string]*domain.Session
	rates    map[string]*rateEntry
	batches  map[string]*domain.Batch
	mu       sync.RWMutex
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*domain.Session),
		rates:    make(map[string]*rateEntry),
		batches:  make(map[string]*domain.Batch),
	}
}

// -----------------------------------------------------------------------------
// Session Repository
// -----------------------------------------------------------------------------

type SessionRepo struct {
	store *Store
}

func NewSessionRepo(store *Store) *SessionRepo {
	return &SessionRepo{store: store}
}

func (r *SessionRepo) Put(ctx context.Context, s *domain.Session) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.sessions[s.ID] = s
	return nil
}

func (r *SessionRepo) Get(ctx context.Context, id string) (*domain.Session, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.sessions[id], nil
}

func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.sessions, id)
	return nil
}

func (r *SessionRepo) IncrementUsage(ctx context.Context, id string, n int, now time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	s, ok := r.store.sessions[id]
	if !ok {
		return nil
	}
	s.ImagesProcessed += n
	s.LastActivityAt = now
	return nil
}

func (r *SessionRepo) DeleteInactiveSince(ctx context.Context, cutoff time.Time) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	removed := 0
	for id, s := range r.store.sessions {
		if s.LastActivityAt.Before(cutoff) {
			delete(r.store.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func (r *SessionRepo) Count(ctx context.Context) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.sessions), nil
}

// -----------------------------------------------------------------------------
// Rate Repository
// -----------------------------------------------------------------------------

type RateRepo struct {
	store *Store
}

func NewRateRepo(store *Store) *RateRepo {
	return &RateRepo{store: store}
}

func (r *RateRepo) Increment(ctx context.Context, origin string, now time.Time, window time.Duration) (int, time.Time, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	e, ok := r.store.rates[origin]
	if !ok || now.After(e.resetAt) {
		e = &rateEntry{resetAt: now.Add(window)}
		r.store.rates[origin] = e
	}
	e.count++
	return e.count, e.resetAt, nil
}

func (r *RateRepo) DeleteElapsed(ctx context.Context, now time.Time) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	removed := 0
	for origin, e := range r.store.rates {
		if now.After(e.resetAt) {
			delete(r.store.rates, origin)
			removed++
		}
	}
	return removed, nil
}

// -----------------------------------------------------------------------------
// Batch Repository
// -----------------------------------------------------------------------------

type BatchRepo struct {
	store *Store
}

func NewBatchRepo(store *Store) *BatchRepo {
	return &BatchRepo{store: store}
}

func (r *BatchRepo) Put(ctx context.Context, b *domain.Batch) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.batches[b.ID] = b
	return nil
}

func (r *BatchRepo) Get(ctx context.Context, id string) (*domain.Batch, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.batches[id], nil
}

func (r *BatchRepo) Delete(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.batches, id)
	return nil
}

func (r *BatchRepo) All(ctx context.Context) ([]*domain.Batch, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	all := make([]*domain.Batch, 0, len(r.store.batches))
	for _, b := range r.store.batches {
		all = append(all, b)
	}
	return all, nil
}
