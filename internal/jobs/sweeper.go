package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/medscribe/dispatch/internal/store"
)

// Sweeper promotes due retries back onto their queues and expires old
// job records.
type Sweeper struct {
	jobs    *store.JobStore
	retries *store.RetryStore
	logger  *slog.Logger

	sweepInterval  time.Duration
	expiryInterval time.Duration
}

// NewSweeper creates the retry and expiry sweep worker.
func NewSweeper(jobs *store.JobStore, retries *store.RetryStore, sweepInterval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		jobs:           jobs,
		retries:        retries,
		logger:         logger.With("component", "sweeper"),
		sweepInterval:  sweepInterval,
		expiryInterval: time.Hour,
	}
}

// Start runs both sweep loops until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	retryTicker := time.NewTicker(s.sweepInterval)
	defer retryTicker.Stop()
	expiryTicker := time.NewTicker(s.expiryInterval)
	defer expiryTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-retryTicker.C:
			s.promoteDue(ctx)
		case <-expiryTicker.C:
			s.expireJobs(ctx)
		}
	}
}

// promoteDue moves jobs whose backoff elapsed back onto their queues.
func (s *Sweeper) promoteDue(ctx context.Context) {
	ids, err := s.retries.PopDue(ctx, time.Now())
	if err != nil {
		s.logger.Error("retry sweep failed", "error", err)
		return
	}

	for _, id := range ids {
		job, err := s.jobs.Get(ctx, id)
		if err != nil {
			s.logger.Warn("scheduled retry for missing job", "job_id", id, "error", err)
			continue
		}
		if job.Status.IsTerminal() {
			// cancelled while waiting out the backoff
			continue
		}
		if err := s.jobs.Requeue(ctx, job); err != nil {
			s.logger.Error("failed to requeue job", "job_id", id, "error", err)
			continue
		}
		s.logger.Info("retry promoted", "job_id", id, "queue", job.QueueName, "attempt", job.RetryCount)
	}
}

// expireJobs drops job records past their retention window.
func (s *Sweeper) expireJobs(ctx context.Context) {
	removed, err := s.jobs.CleanupExpired(ctx)
	if err != nil {
		s.logger.Error("expiry sweep failed", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info("expired job records removed", "count", removed)
	}
}
