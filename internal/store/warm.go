package store

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/medscribe/dispatch/internal/core/domain"
)

func userSummaryKey(userID string) string {
	return fmt.Sprintf("user_summary:%s", userID)
}

const summaryTTL = 5 * time.Minute

// UserSummary is the precomputed per-user job overview served from
// cache.
type UserSummary struct {
	UserID     string                   `json:"user_id"`
	Total      int                      `json:"total"`
	ByStatus   map[domain.JobStatus]int `json:"by_status"`
	LastJobID  string                   `json:"last_job_id,omitempty"`
	ComputedAt time.Time                `json:"computed_at"`
}

// CacheWarmer precomputes user job summaries into Redis.
type CacheWarmer struct {
	jobs *JobStore
	rdb  *redis.Client
}

// NewCacheWarmer creates a warmer on the shared client.
func NewCacheWarmer(c *Client, jobs *JobStore) *CacheWarmer {
	return &CacheWarmer{jobs: jobs, rdb: c.rdb}
}

// Warm rebuilds and caches the summary for a user.
func (w *CacheWarmer) Warm(ctx context.Context, userID string) error {
	jobs, err := w.jobs.UserJobs(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load jobs for warmup: %w", err)
	}

	summary := &UserSummary{
		UserID:     userID,
		Total:      len(jobs),
		ByStatus:   make(map[domain.JobStatus]int),
		ComputedAt: time.Now(),
	}
	for _, j := range jobs {
		summary.ByStatus[j.Status]++
	}
	if len(jobs) > 0 {
		summary.LastJobID = jobs[0].JobID
	}

	data, err := sonic.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := w.rdb.Set(ctx, userSummaryKey(userID), data, summaryTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache summary: %w", err)
	}
	return nil
}

// Summary returns the cached summary, or ErrNotFound if it expired.
func (w *CacheWarmer) Summary(ctx context.Context, userID string) (*UserSummary, error) {
	data, err := w.rdb.Get(ctx, userSummaryKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}

	var s UserSummary
	if err := sonic.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}
	return &s, nil
}
