package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/querl369/adobe-stock-uploader-sub000/internal/core/domain"
)

// SessionRepo stores sessions as Redis hashes with a sliding TTL equal to
// the inactivity window, so expiry needs no sweep of its own.
type SessionRepo struct {
	client *Client
	window time.Duration
}

// NewSessionRepo creates the repository with the given inactivity window.
func NewSessionRepo(client *Client, window time.Duration) *SessionRepo {
	if window <= 0 {
		window = time.Hour
	}
	return &SessionRepo{client: client, window: window}
}

func (r *SessionRepo) Put(ctx context.Context, s *domain.Session) error {
	key := sessionKey(s.ID)
	pipe := r.client.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"id", s.ID,
		"images_processed", s.ImagesProcessed,
		"created_at", s.CreatedAt.Unix(),
		"last_activity_at", s.LastActivityAt.Unix(),
	)
	pipe.Expire(ctx, key, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

func (r *SessionRepo) Get(ctx context.Context, id string) (*domain.Session, error) {
	fields, err := r.client.rdb.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return sessionFromFields(fields), nil
}

func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	if err := r.client.rdb.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *SessionRepo) IncrementUsage(ctx context.Context, id string, n int, now time.Time) error {
	key := sessionKey(id)
	exists, err := r.client.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	if exists == 0 {
		return nil
	}

	pipe := r.client.rdb.TxPipeline()
	pipe.HIncrBy(ctx, key, "images_processed", int64(n))
	pipe.HSet(ctx, key, "last_activity_at", now.Unix())
	pipe.Expire(ctx, key, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	return nil
}

// DeleteInactiveSince is a no-op: Redis TTLs evict idle sessions.
func (r *SessionRepo) DeleteInactiveSince(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

func (r *SessionRepo) Count(ctx context.Context) (int, error) {
	var count int
	var cursor uint64
	for {
		keys, next, err := r.client.rdb.Scan(ctx, cursor, sessionKey("*"), 100).Result()
		if err != nil {
			return 0, fmt.Errorf("count sessions: %w", err)
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}

func sessionFromFields(fields map[string]string) *domain.Session {
	s := &domain.Session{ID: fields["id"]}
	if v, err := strconv.Atoi(fields["images_processed"]); err == nil {
		s.ImagesProcessed = v
	}
	if v, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		s.CreatedAt = time.Unix(v, 0)
	}
	if v, err := strconv.ParseInt(fields["last_activity_at"], 10, 64); err == nil {
		s.LastActivityAt = time.Unix(v, 0)
	}
	return s
}

// RateRepo implements the fixed-window origin counter with INCR plus a TTL
// opened on the window's first request.
type RateRepo struct {
	client *Client
}

// NewRateRepo creates the repository.
func NewRateRepo(client *Client) *RateRepo {
	return &RateRepo{client: client}
}

func (r *RateRepo) Increment(ctx context.Context, origin string, now time.Time, window time.Duration) (int, time.Time, error) {
	key := rateKey(origin)

	count, err := r.client.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("rate increment: %w", err)
	}
	if count == 1 {
		if err := r.client.rdb.Expire(ctx, key, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("rate expire: %w", err)
		}
		return int(count), now.Add(window), nil
	}

	ttl, err := r.client.rdb.PTTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		// Lost TTL (or transient error): close the window now so the key
		// cannot linger forever.
		r.client.rdb.Expire(ctx, key, window)
		ttl = window
	}
	return int(count), now.Add(ttl), nil
}

// DeleteElapsed is a no-op: Redis TTLs evict elapsed windows.
func (r *RateRepo) DeleteElapsed(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}
