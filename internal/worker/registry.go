package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/medscribe/dispatch/internal/core/config"
	"github.com/medscribe/dispatch/internal/core/domain"
	"github.com/medscribe/dispatch/internal/metrics"
)

// Registry tracks worker heartbeats and processing stats. Stale
// entries are purged so crashed workers do not distort health and
// load numbers.
type Registry struct {
	cfg    config.HealthConfig
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	workers map[string]*domain.WorkerHealth
}

// NewRegistry creates the worker health registry.
func NewRegistry(cfg config.HealthConfig, logger *slog.Logger) *Registry {
	return &Registry{
		cfg:     cfg,
		logger:  logger.With("component", "health"),
		now:     time.Now,
		workers: make(map[string]*domain.WorkerHealth),
	}
}

// Register adds a worker in idle state.
func (r *Registry) Register(workerID, queue string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.workers[workerID] = &domain.WorkerHealth{
		WorkerID:      workerID,
		QueueName:     queue,
		Status:        domain.WorkerStatusIdle,
		LastHeartbeat: now,
		StartedAt:     now,
	}
	r.updateGaugesLocked(queue)
}

// Heartbeat refreshes a worker's liveness timestamp.
func (r *Registry) Heartbeat(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workers[workerID]; ok {
		w.LastHeartbeat = r.now()
	}
}

// StartJob marks a worker as processing a job.
func (r *Registry) StartJob(workerID, jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workers[workerID]; ok {
		w.Status = domain.WorkerStatusProcessing
		w.CurrentJobID = jobID
		w.LastHeartbeat = r.now()
	}
}

// FinishJob records a processing outcome and returns the worker to
// idle. Average duration uses a running mean over processed jobs.
func (r *Registry) FinishJob(workerID string, elapsed time.Duration, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[workerID]
	if !ok {
		return
	}
	w.Status = domain.WorkerStatusIdle
	w.CurrentJobID = ""
	w.LastHeartbeat = r.now()
	if success {
		w.JobsProcessed++
		w.ConsecutiveFailures = 0
	} else {
		w.JobsFailed++
		w.ConsecutiveFailures++
	}

	total := w.JobsProcessed + w.JobsFailed
	if total > 0 {
		w.AvgProcessingMillis += (elapsed.Milliseconds() - w.AvgProcessingMillis) / total
	}
}

// MarkFailed flags a worker that gave up.
func (r *Registry) MarkFailed(workerID string) {
	r.setStatus(workerID, domain.WorkerStatusFailed)
}

// MarkStopped flags a worker that shut down cleanly.
func (r *Registry) MarkStopped(workerID string) {
	r.setStatus(workerID, domain.WorkerStatusStopped)
}

func (r *Registry) setStatus(workerID string, s domain.WorkerStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workers[workerID]; ok {
		// a failed worker stays failed until replaced
		if w.Status != domain.WorkerStatusFailed {
			w.Status = s
		}
		w.CurrentJobID = ""
		r.updateGaugesLocked(w.QueueName)
	}
}

// Remove drops a worker from the registry.
func (r *Registry) Remove(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workers[workerID]; ok {
		delete(r.workers, workerID)
		r.updateGaugesLocked(w.QueueName)
	}
}

// Snapshot returns copies of every tracked worker.
func (r *Registry) Snapshot() []domain.WorkerHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.WorkerHealth, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, *w)
	}
	return out
}

// SystemLoad reports the fraction of workers currently processing,
// in [0, 1]. With no live workers the system counts as fully loaded
// since nothing can absorb new work.
func (r *Registry) SystemLoad() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	live, busy := 0, 0
	for _, w := range r.workers {
		switch w.Status {
		case domain.WorkerStatusIdle:
			live++
		case domain.WorkerStatusProcessing:
			live++
			busy++
		}
	}
	if live == 0 {
		return 1.0
	}
	return float64(busy) / float64(live)
}

// HealthScore condenses the registry into a 0-100 score. Deductions:
// 50 for having no live workers, the failure rate in points when it
// exceeds 10%, and 20 when average processing time passes 30 seconds.
func (r *Registry) HealthScore() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	score := 100

	live := 0
	var processed, failed, avgSum, avgCount int64
	for _, w := range r.workers {
		if w.Status == domain.WorkerStatusIdle || w.Status == domain.WorkerStatusProcessing {
			live++
		}
		processed += w.JobsProcessed
		failed += w.JobsFailed
		if w.AvgProcessingMillis > 0 {
			avgSum += w.AvgProcessingMillis
			avgCount++
		}
	}

	if live == 0 {
		score -= 50
	}
	if total := processed + failed; total > 0 {
		rate := float64(failed) / float64(total)
		if rate > 0.1 {
			score -= int(rate * 100)
		}
	}
	if avgCount > 0 && avgSum/avgCount > 30_000 {
		score -= 20
	}

	if score < 0 {
		score = 0
	}
	return score
}

// Start runs the stale-entry purge loop until ctx is cancelled.
func (r *Registry) Start(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.purgeStale()
		}
	}
}

func (r *Registry) purgeStale() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.cfg.StaleAfter)
	for id, w := range r.workers {
		// only live workers go stale; stopped and failed entries are
		// kept for the pool monitor to inspect
		if w.Status == domain.WorkerStatusStopped {
			continue
		}
		if w.LastHeartbeat.Before(cutoff) {
			r.logger.Warn("purging stale worker",
				"worker_id", id,
				"queue", w.QueueName,
				"last_heartbeat", w.LastHeartbeat)
			delete(r.workers, id)
			r.updateGaugesLocked(w.QueueName)
		}
	}
}

// updateGaugesLocked refreshes the active worker gauge for a queue.
// Must be called with the mutex held.
func (r *Registry) updateGaugesLocked(queue string) {
	n := 0
	for _, w := range r.workers {
		if w.QueueName != queue {
			continue
		}
		if w.Status == domain.WorkerStatusIdle || w.Status == domain.WorkerStatusProcessing {
			n++
		}
	}
	metrics.ActiveWorkers.WithLabelValues(queue).Set(float64(n))
}
