package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RetryStore holds the schedule of jobs waiting out a backoff delay.
// Members are job IDs scored by the epoch millisecond they become due.
type RetryStore struct {
	rdb *redis.Client
}

// NewRetryStore creates a retry store on the shared client.
func NewRetryStore(c *Client) *RetryStore {
	return &RetryStore{rdb: c.rdb}
}

// Schedule records that a job should be retried at the given time.
func (s *RetryStore) Schedule(ctx context.Context, jobID string, due time.Time) error {
	err := s.rdb.ZAdd(ctx, retryScheduleKey, redis.Z{
		Score:  float64(due.UnixMilli()),
		Member: jobID,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}
	return nil
}

// PopDue atomically removes and returns the job IDs whose retry time
// has passed.
func (s *RetryStore) PopDue(ctx context.Context, now time.Time) ([]string, error) {
	max := fmt.Sprintf("%d", now.UnixMilli())
	ids, err := s.rdb.ZRangeByScore(ctx, retryScheduleKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: max,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan retry schedule: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	if err := s.rdb.ZRem(ctx, retryScheduleKey, members...).Err(); err != nil {
		return nil, fmt.Errorf("failed to remove due retries: %w", err)
	}
	return ids, nil
}

// Remove drops a job from the schedule, used when a job is cancelled
// while waiting for its retry.
func (s *RetryStore) Remove(ctx context.Context, jobID string) error {
	return s.rdb.ZRem(ctx, retryScheduleKey, jobID).Err()
}

// Pending returns how many retries are waiting.
func (s *RetryStore) Pending(ctx context.Context) (int64, error) {
	return s.rdb.ZCard(ctx, retryScheduleKey).Result()
}
