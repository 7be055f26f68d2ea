package store

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/medscribe/dispatch/internal/core/domain"
)

// DLQStore persists dead letter entries as per-queue Redis lists,
// newest first.
type DLQStore struct {
	rdb        *redis.Client
	maxEntries int64
}

// NewDLQStore creates a DLQ store capped at maxEntries per queue.
func NewDLQStore(c *Client, maxEntries int) *DLQStore {
	return &DLQStore{rdb: c.rdb, maxEntries: int64(maxEntries)}
}

// Push adds an entry to a queue's dead letter list, trimming the
// oldest entries past the cap.
func (s *DLQStore) Push(ctx context.Context, entry *domain.DLQEntry) error {
	data, err := sonic.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal dlq entry: %w", err)
	}

	key := dlqKey(entry.QueueName)
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, s.maxEntries-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push dlq entry: %w", err)
	}
	return nil
}

// List returns up to limit entries from a queue's dead letter list,
// newest first. limit <= 0 returns everything.
func (s *DLQStore) List(ctx context.Context, queue string, limit int64) ([]*domain.DLQEntry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = limit - 1
	}
	raws, err := s.rdb.LRange(ctx, dlqKey(queue), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dlq: %w", err)
	}

	entries := make([]*domain.DLQEntry, 0, len(raws))
	for _, raw := range raws {
		var e domain.DLQEntry
		if err := sonic.Unmarshal([]byte(raw), &e); err != nil {
			continue // tombstone or corrupt slot
		}
		entries = append(entries, &e)
	}
	return entries, nil
}

// Find returns the entry for a job ID, or ErrNotFound.
func (s *DLQStore) Find(ctx context.Context, queue, jobID string) (*domain.DLQEntry, error) {
	entries, err := s.List(ctx, queue, 0)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.JobID == jobID {
			return e, nil
		}
	}
	return nil, ErrNotFound
}

// tombstone marks a list slot for removal. JSON objects never start
// with this byte so it cannot collide with an entry.
const tombstone = "__deleted__"

// Remove deletes the entry for a job ID, reporting whether anything
// was removed. The slot is overwritten with a tombstone first so the
// removal does not depend on byte-exact re-serialization.
func (s *DLQStore) Remove(ctx context.Context, queue, jobID string) (bool, error) {
	key := dlqKey(queue)
	raws, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return false, fmt.Errorf("failed to list dlq: %w", err)
	}

	for i, raw := range raws {
		var e domain.DLQEntry
		if err := sonic.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		if e.JobID != jobID {
			continue
		}
		if err := s.rdb.LSet(ctx, key, int64(i), tombstone).Err(); err != nil {
			return false, fmt.Errorf("failed to mark dlq entry: %w", err)
		}
		if err := s.rdb.LRem(ctx, key, 1, tombstone).Err(); err != nil {
			return false, fmt.Errorf("failed to remove dlq entry: %w", err)
		}
		return true, nil
	}
	return false, nil
}

// Depth returns the number of entries in a queue's dead letter list.
func (s *DLQStore) Depth(ctx context.Context, queue string) (int64, error) {
	return s.rdb.LLen(ctx, dlqKey(queue)).Result()
}

// PruneExpired removes entries that failed before the cutoff and
// returns how many were dropped.
func (s *DLQStore) PruneExpired(ctx context.Context, queue string, cutoff time.Time) (int, error) {
	key := dlqKey(queue)
	raws, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list dlq: %w", err)
	}

	pruned := 0
	for i, raw := range raws {
		var e domain.DLQEntry
		if err := sonic.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		if !e.FailedAt.Before(cutoff) {
			continue
		}
		if err := s.rdb.LSet(ctx, key, int64(i), tombstone).Err(); err != nil {
			return pruned, fmt.Errorf("failed to mark dlq entry: %w", err)
		}
		pruned++
	}
	if pruned > 0 {
		if err := s.rdb.LRem(ctx, key, 0, tombstone).Err(); err != nil {
			return pruned, fmt.Errorf("failed to prune dlq entries: %w", err)
		}
	}
	return pruned, nil
}
