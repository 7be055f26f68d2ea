// Package worker drains job queues. Each worker polls one queue,
// executes jobs through the processing pipeline, and reports its
// health to the registry. Pools keep workers alive and scale them
// with queue depth.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/medscribe/dispatch/internal/core/domain"
	"github.com/medscribe/dispatch/internal/process"
	"github.com/medscribe/dispatch/internal/store"
)

// Resolver selects the processor for a job type.
type Resolver interface {
	For(jobType domain.JobType) (process.Func, error)
}

// Sink receives job outcomes. Success stores the result; failure runs
// the retry and dead-letter machinery.
type Sink interface {
	Complete(ctx context.Context, job *domain.Job, result map[string]any) error
	HandleFailure(ctx context.Context, job *domain.Job, procErr error) error
}

// Worker polls one queue and processes claimed jobs.
type Worker struct {
	id             string
	queue          string
	jobs           *store.JobStore
	sink           Sink
	resolver       Resolver
	registry       *Registry
	logger         *slog.Logger
	pollInterval   time.Duration
	maxConsecFails int

	consecFails int
	failed      bool
	done        chan struct{}

	// set by the owning pool so individual workers can be retired
	cancel context.CancelFunc
}

// New creates a worker for a queue.
func New(
	id, queue string,
	jobs *store.JobStore,
	sink Sink,
	resolver Resolver,
	registry *Registry,
	pollInterval time.Duration,
	maxConsecFails int,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		id:             id,
		queue:          queue,
		jobs:           jobs,
		sink:           sink,
		resolver:       resolver,
		registry:       registry,
		logger:         logger.With("component", "worker", "worker_id", id, "queue", queue),
		pollInterval:   pollInterval,
		maxConsecFails: maxConsecFails,
		done:           make(chan struct{}),
	}
}

// Run polls the queue until ctx is cancelled or the worker flags
// itself failed. The pool monitor replaces failed workers.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	w.registry.Register(w.id, w.queue)
	defer w.registry.MarkStopped(w.id)

	w.logger.Info("worker started")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping")
			return
		case <-ticker.C:
			w.registry.Heartbeat(w.id)
			w.drain(ctx)
			if w.failed {
				w.logger.Error("worker flagged failed",
					"consecutive_failures", w.consecFails)
				w.registry.MarkFailed(w.id)
				return
			}
		}
	}
}

// drain processes jobs until the queue is empty or the worker trips
// its failure limit.
func (w *Worker) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil || w.failed {
			return
		}

		job, err := w.jobs.Claim(ctx, w.queue)
		if err != nil {
			w.logger.Error("failed to claim job", "error", err)
			w.recordFailure()
			return
		}
		if job == nil {
			return
		}

		w.processJob(ctx, job)
	}
}

func (w *Worker) processJob(ctx context.Context, job *domain.Job) {
	w.registry.StartJob(w.id, job.JobID)
	start := time.Now()

	result, err := w.runProcessor(ctx, job)
	elapsed := time.Since(start)

	if err != nil {
		w.logger.Warn("job failed",
			"job_id", job.JobID,
			"attempt", job.RetryCount,
			"elapsed", elapsed,
			"error", err)
		w.registry.FinishJob(w.id, elapsed, false)
		w.recordFailure()
		if herr := w.sink.HandleFailure(ctx, job, err); herr != nil {
			w.logger.Error("failure handling failed", "job_id", job.JobID, "error", herr)
		}
		return
	}

	if cerr := w.sink.Complete(ctx, job, result); cerr != nil {
		w.logger.Error("failed to store job result", "job_id", job.JobID, "error", cerr)
		w.registry.FinishJob(w.id, elapsed, false)
		w.recordFailure()
		return
	}

	w.logger.Info("job completed", "job_id", job.JobID, "elapsed", elapsed)
	w.registry.FinishJob(w.id, elapsed, true)
	w.consecFails = 0
}

func (w *Worker) runProcessor(ctx context.Context, job *domain.Job) (map[string]any, error) {
	fn, err := w.resolver.For(job.JobType)
	if err != nil {
		return nil, err
	}
	return fn(ctx, job)
}

func (w *Worker) recordFailure() {
	w.consecFails++
	if w.consecFails >= w.maxConsecFails {
		w.failed = true
	}
}

// Failed reports whether the worker gave up after repeated failures.
func (w *Worker) Failed() bool {
	select {
	case <-w.done:
		return w.failed
	default:
		return false
	}
}

// Stopped reports whether the worker's run loop has exited.
func (w *Worker) Stopped() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the worker's run loop exits or ctx expires.
func (w *Worker) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
