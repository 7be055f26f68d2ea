// Package jobs orchestrates the job lifecycle: submission, completion,
// failure handling with retry scheduling, and dead-lettering.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/medscribe/dispatch/internal/core/config"
	"github.com/medscribe/dispatch/internal/core/domain"
	"github.com/medscribe/dispatch/internal/dlq"
	"github.com/medscribe/dispatch/internal/metrics"
	"github.com/medscribe/dispatch/internal/process"
	"github.com/medscribe/dispatch/internal/resilience/classify"
	"github.com/medscribe/dispatch/internal/resilience/retry"
	"github.com/medscribe/dispatch/internal/store"
)

// Service is the job lifecycle orchestrator. It implements the
// worker.Sink interface for job outcomes.
type Service struct {
	jobs       *store.JobStore
	retries    *store.RetryStore
	deadLetter *dlq.Service
	engine     *retry.Engine
	classifier *classify.Classifier
	cfg        config.RetryConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewService wires the job orchestrator.
func NewService(
	jobs *store.JobStore,
	retries *store.RetryStore,
	deadLetter *dlq.Service,
	engine *retry.Engine,
	classifier *classify.Classifier,
	cfg config.RetryConfig,
	logger *slog.Logger,
) *Service {
	return &Service{
		jobs:       jobs,
		retries:    retries,
		deadLetter: deadLetter,
		engine:     engine,
		classifier: classifier,
		cfg:        cfg,
		logger:     logger.With("component", "jobs"),
		now:        time.Now,
	}
}

// SubmitRequest describes a new job.
type SubmitRequest struct {
	UserID       string
	JobType      domain.JobType
	InputData    map[string]any
	SessionID    string
	TranscriptID string
	MaxRetries   int // 0 uses the configured default
}

// Submit validates and enqueues a new job.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*domain.Job, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	switch req.JobType {
	case domain.JobTypeAudioProcessing, domain.JobTypeTextProcessing,
		domain.JobTypeTranscriptionOnly, domain.JobTypeCacheWarming:
	default:
		return nil, fmt.Errorf("unknown job type %q", req.JobType)
	}

	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.cfg.DefaultMaxRetries
	}

	job := &domain.Job{
		JobID:        uuid.NewString(),
		JobType:      req.JobType,
		Status:       domain.JobStatusQueued,
		UserID:       req.UserID,
		InputData:    req.InputData,
		CreatedAt:    s.now(),
		MaxRetries:   maxRetries,
		QueueName:    domain.QueueNameForType(req.JobType),
		SessionID:    req.SessionID,
		TranscriptID: req.TranscriptID,
	}

	if err := s.jobs.Submit(ctx, job); err != nil {
		return nil, err
	}

	metrics.JobsSubmitted.WithLabelValues(job.QueueName, string(job.JobType)).Inc()
	s.logger.Info("job submitted",
		"job_id", job.JobID,
		"job_type", job.JobType,
		"queue", job.QueueName,
		"user_id", job.UserID)
	return job, nil
}

// Get returns a job owned by the user.
func (s *Service) Get(ctx context.Context, jobID, userID string) (*domain.Job, error) {
	return s.jobs.GetOwned(ctx, jobID, userID)
}

// List returns the user's jobs, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]*domain.Job, error) {
	return s.jobs.UserJobs(ctx, userID)
}

// QueueDepths returns the pending job count per known queue.
func (s *Service) QueueDepths(ctx context.Context) map[string]int64 {
	out := make(map[string]int64)
	for _, q := range domain.KnownQueues() {
		if depth, err := s.jobs.QueueDepth(ctx, q); err == nil {
			out[q] = depth
			metrics.QueueDepth.WithLabelValues(q).Set(float64(depth))
		}
	}
	return out
}

// PendingRetries returns how many jobs are waiting out a backoff.
func (s *Service) PendingRetries(ctx context.Context) int64 {
	n, err := s.retries.Pending(ctx)
	if err != nil {
		return 0
	}
	return n
}

// Cancel cancels a queued job and drops any scheduled retry.
func (s *Service) Cancel(ctx context.Context, jobID, userID string) error {
	if err := s.jobs.Cancel(ctx, jobID, userID); err != nil {
		return err
	}
	if err := s.retries.Remove(ctx, jobID); err != nil {
		s.logger.Warn("failed to drop scheduled retry", "job_id", jobID, "error", err)
	}
	s.logger.Info("job cancelled", "job_id", jobID, "user_id", userID)
	return nil
}

// Complete stores a successful result. If the job had been retried,
// the success feeds back into the failing service's outcome stats.
func (s *Service) Complete(ctx context.Context, job *domain.Job, result map[string]any) error {
	if err := s.jobs.Complete(ctx, job.JobID, result); err != nil {
		if errors.Is(err, store.ErrTerminal) {
			// cancelled while the worker was processing; drop the result
			s.logger.Info("result discarded, job already terminal", "job_id", job.JobID)
			return nil
		}
		return err
	}

	if job.RetryCount > 0 && job.LastService != "" {
		s.engine.RecordOutcome(job.LastService, job.LastCategory, true)
	}

	metrics.JobsCompleted.WithLabelValues(job.QueueName, string(domain.JobStatusCompleted)).Inc()
	if job.StartedAt != nil {
		metrics.JobDuration.WithLabelValues(job.QueueName).Observe(s.now().Sub(*job.StartedAt).Seconds())
	}
	return nil
}

// HandleFailure classifies a processing error, then either schedules a
// retry or finalizes the job into the dead letter queue.
func (s *Service) HandleFailure(ctx context.Context, job *domain.Job, procErr error) error {
	service := ""
	var se *process.ServiceError
	if errors.As(procErr, &se) {
		service = se.Service
	}

	category := s.classifier.Classify(service, procErr)
	s.engine.RecordOutcome(service, category, false)

	decision := s.engine.Decide(category, service, job.RetryCount, job.MaxRetries)
	if decision.Retry {
		return s.scheduleRetry(ctx, job, service, category, decision.Delay, procErr)
	}
	return s.deadLetterJob(ctx, job, service, category, decision.Reason, procErr)
}

func (s *Service) scheduleRetry(ctx context.Context, job *domain.Job, service string, category domain.ErrorCategory, delay time.Duration, procErr error) error {
	// reload first: a cancel may have landed while the worker held the job
	current, err := s.jobs.Get(ctx, job.JobID)
	if err != nil {
		return err
	}
	if current.Status.IsTerminal() {
		s.logger.Info("retry skipped, job already terminal", "job_id", job.JobID)
		return nil
	}

	job.RetryCount++
	job.Status = domain.JobStatusQueued
	job.StartedAt = nil
	job.ErrorMessage = procErr.Error()
	job.LastService = service
	job.LastCategory = category
	if err := s.jobs.Update(ctx, job); err != nil {
		return err
	}

	due := s.now().Add(delay)
	if err := s.retries.Schedule(ctx, job.JobID, due); err != nil {
		return err
	}

	metrics.RetriesScheduled.WithLabelValues(job.QueueName, string(category)).Inc()
	s.logger.Info("retry scheduled",
		"job_id", job.JobID,
		"attempt", job.RetryCount,
		"category", category,
		"service", service,
		"delay", delay,
		"due", due.Format(time.RFC3339))
	return nil
}

func (s *Service) deadLetterJob(ctx context.Context, job *domain.Job, service string, category domain.ErrorCategory, reason string, procErr error) error {
	if err := s.jobs.Fail(ctx, job.JobID, procErr.Error()); err != nil {
		if errors.Is(err, store.ErrTerminal) {
			s.logger.Info("failure discarded, job already terminal", "job_id", job.JobID)
			return nil
		}
		return err
	}

	metrics.JobsCompleted.WithLabelValues(job.QueueName, string(domain.JobStatusFailed)).Inc()

	return s.deadLetter.Record(ctx, job, dlq.Failure{
		Reason:      reason,
		Err:         procErr,
		Category:    category,
		ServiceName: service,
	})
}
