// Package dlq triages terminally failed jobs. Entries carry enough
// context to decide, later, whether the job is worth putting back on
// its queue.
package dlq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/medscribe/dispatch/internal/core/domain"
	"github.com/medscribe/dispatch/internal/metrics"
	"github.com/medscribe/dispatch/internal/resilience/breaker"
	"github.com/medscribe/dispatch/internal/store"
)

// ErrNotEligible is returned when requeueing an entry whose failure
// category or cooldown rules it out.
var ErrNotEligible = errors.New("entry is not eligible for requeue")

// Service writes, inspects and drains dead letter entries.
type Service struct {
	entries  *store.DLQStore
	jobs     *store.JobStore
	breakers *breaker.Registry
	logger   *slog.Logger
	now      func() time.Time
}

// New creates the DLQ service.
func New(entries *store.DLQStore, jobs *store.JobStore, breakers *breaker.Registry, logger *slog.Logger) *Service {
	return &Service{
		entries:  entries,
		jobs:     jobs,
		breakers: breakers,
		logger:   logger.With("component", "dlq"),
		now:      time.Now,
	}
}

// Failure describes why a job is being dead-lettered.
type Failure struct {
	Reason      string
	Err         error
	Category    domain.ErrorCategory
	ServiceName string
}

// Record builds and stores the dead letter entry for a job.
func (s *Service) Record(ctx context.Context, job *domain.Job, f Failure) error {
	failedAt := s.now()

	breakerState := ""
	if f.ServiceName != "" {
		breakerState = string(s.breakers.For(f.ServiceName).State())
	}

	errMsg := ""
	if f.Err != nil {
		errMsg = f.Err.Error()
	}

	entry := &domain.DLQEntry{
		JobID:               job.JobID,
		UserID:              job.UserID,
		JobType:             job.JobType,
		QueueName:           job.QueueName,
		FailedAt:            failedAt,
		RetryAttempts:       job.RetryCount,
		MaxRetries:          job.MaxRetries,
		Reason:              f.Reason,
		OriginalError:       errMsg,
		ErrorCategory:       f.Category,
		ServiceName:         f.ServiceName,
		CircuitBreakerState: breakerState,
		ErrorMessage:        errMsg,
		RetryEligible:       requeueEligible(f.Category, breakerState),
		JobContext: map[string]any{
			"session_id":    job.SessionID,
			"transcript_id": job.TranscriptID,
		},
	}
	if entry.RetryEligible {
		at := failedAt.Add(cooldownFor(f.Category))
		entry.NextRetryEligibleAt = &at
	}

	if err := s.entries.Push(ctx, entry); err != nil {
		return fmt.Errorf("failed to dead-letter job %s: %w", job.JobID, err)
	}

	metrics.DLQEntries.WithLabelValues(job.QueueName, string(f.Category)).Inc()
	if depth, err := s.entries.Depth(ctx, job.QueueName); err == nil {
		metrics.DLQDepth.WithLabelValues(job.QueueName).Set(float64(depth))
	}

	s.logger.Warn("job dead-lettered",
		"job_id", job.JobID,
		"queue", job.QueueName,
		"category", f.Category,
		"reason", f.Reason,
		"retry_eligible", entry.RetryEligible)
	return nil
}

// ListFilter narrows a dead letter listing.
type ListFilter struct {
	Category     domain.ErrorCategory // empty matches all
	EligibleOnly bool                 // only entries flagged retry eligible
	Limit        int64                // 0 means no cap
}

// List returns entries for a queue, newest first, applying the filter.
func (s *Service) List(ctx context.Context, queue string, f ListFilter) ([]*domain.DLQEntry, error) {
	if f.Category == "" && !f.EligibleOnly {
		return s.entries.List(ctx, queue, f.Limit)
	}

	entries, err := s.entries.List(ctx, queue, 0)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.DLQEntry, 0, len(entries))
	for _, e := range entries {
		if f.Category != "" && e.ErrorCategory != f.Category {
			continue
		}
		if f.EligibleOnly && !e.RetryEligible {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && int64(len(out)) >= f.Limit {
			break
		}
	}
	return out, nil
}

// RetryEligible returns the entries that can be requeued right now:
// flagged eligible, cooldown elapsed, and the failing service's breaker
// no longer open.
func (s *Service) RetryEligible(ctx context.Context, queue string) ([]*domain.DLQEntry, error) {
	entries, err := s.entries.List(ctx, queue, 0)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]*domain.DLQEntry, 0, len(entries))
	for _, e := range entries {
		if !e.RetryEligible {
			continue
		}
		if e.NextRetryEligibleAt != nil && now.Before(*e.NextRetryEligibleAt) {
			continue
		}
		if e.ServiceName != "" && s.breakers.For(e.ServiceName).State() == breaker.StateOpen {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// RequeueEligible drains every currently eligible entry back onto its
// queue and reports how many were requeued.
func (s *Service) RequeueEligible(ctx context.Context, queue string) (int, error) {
	eligible, err := s.RetryEligible(ctx, queue)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, e := range eligible {
		if err := s.Requeue(ctx, queue, e.JobID, false); err != nil {
			s.logger.Warn("eligible entry failed to requeue",
				"job_id", e.JobID, "queue", queue, "error", err)
			continue
		}
		requeued++
	}
	return requeued, nil
}

// Requeue puts a dead-lettered job back on its queue with a fresh
// retry budget. Unless force is set, the entry must be retry eligible
// and past its cooldown, and the failing service's breaker must not be
// open.
func (s *Service) Requeue(ctx context.Context, queue, jobID string, force bool) error {
	entry, err := s.entries.Find(ctx, queue, jobID)
	if err != nil {
		return err
	}

	if !force {
		if !entry.RetryEligible {
			return ErrNotEligible
		}
		if entry.NextRetryEligibleAt != nil && s.now().Before(*entry.NextRetryEligibleAt) {
			return fmt.Errorf("%w: cooldown ends at %s", ErrNotEligible, entry.NextRetryEligibleAt.Format(time.RFC3339))
		}
		if entry.ServiceName != "" && s.breakers.For(entry.ServiceName).State() == breaker.StateOpen {
			return fmt.Errorf("%w: circuit breaker open for %s", ErrNotEligible, entry.ServiceName)
		}
	}

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load dead-lettered job: %w", err)
	}

	job.RetryCount = 0
	job.ErrorMessage = ""
	if err := s.jobs.Requeue(ctx, job); err != nil {
		return err
	}
	if _, err := s.entries.Remove(ctx, queue, jobID); err != nil {
		return err
	}

	s.logger.Info("job requeued from dead letter queue",
		"job_id", jobID, "queue", queue, "forced", force)
	return nil
}

// Discard drops an entry without requeueing its job.
func (s *Service) Discard(ctx context.Context, queue, jobID string) error {
	removed, err := s.entries.Remove(ctx, queue, jobID)
	if err != nil {
		return err
	}
	if !removed {
		return store.ErrNotFound
	}
	s.logger.Info("dead letter entry discarded", "job_id", jobID, "queue", queue)
	return nil
}

// Stats summarizes a queue's dead letter list.
type Stats struct {
	Queue      string                       `json:"queue"`
	Depth      int64                        `json:"depth"`
	Eligible   int                          `json:"retry_eligible"`
	ByCategory map[domain.ErrorCategory]int `json:"by_category"`
}

// QueueStats aggregates entry counts for one queue.
func (s *Service) QueueStats(ctx context.Context, queue string) (*Stats, error) {
	entries, err := s.entries.List(ctx, queue, 0)
	if err != nil {
		return nil, err
	}

	st := &Stats{Queue: queue, Depth: int64(len(entries)), ByCategory: make(map[domain.ErrorCategory]int)}
	for _, e := range entries {
		st.ByCategory[e.ErrorCategory]++
		if e.RetryEligible {
			st.Eligible++
		}
	}
	return st, nil
}

// requeueEligible reports whether a failure category may ever be
// requeued from the DLQ. An open breaker at dead-letter time rules the
// entry out permanently, matching how triage treats a melting service.
func requeueEligible(cat domain.ErrorCategory, breakerState string) bool {
	if breakerState == string(breaker.StateOpen) {
		return false
	}
	switch cat {
	case domain.CategoryTransientNetwork,
		domain.CategoryRateLimited,
		domain.CategoryServiceUnavailable,
		domain.CategoryResourceExhaustion:
		return true
	default:
		return false
	}
}

// cooldownFor returns how long a dead-lettered job waits before it may
// be requeued.
func cooldownFor(cat domain.ErrorCategory) time.Duration {
	switch cat {
	case domain.CategoryTransientNetwork:
		return 30 * time.Minute
	case domain.CategoryRateLimited:
		return time.Hour
	case domain.CategoryServiceUnavailable, domain.CategoryResourceExhaustion:
		return 15 * time.Minute
	default:
		return 24 * time.Hour
	}
}
