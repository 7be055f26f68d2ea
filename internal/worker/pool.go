package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medscribe/dispatch/internal/core/config"
	"github.com/medscribe/dispatch/internal/metrics"
	"github.com/medscribe/dispatch/internal/store"
)

// Pool owns the workers for one queue. A monitor loop replaces failed
// workers and scales the pool between its min and max with queue
// depth.
type Pool struct {
	cfg      config.PoolConfig
	jobs     *store.JobStore
	sink     Sink
	resolver Resolver
	registry *Registry
	logger   *slog.Logger

	mu      sync.Mutex
	workers map[string]*Worker
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool creates a pool for the configured queue.
func NewPool(
	cfg config.PoolConfig,
	jobs *store.JobStore,
	sink Sink,
	resolver Resolver,
	registry *Registry,
	logger *slog.Logger,
) *Pool {
	return &Pool{
		cfg:      cfg,
		jobs:     jobs,
		sink:     sink,
		resolver: resolver,
		registry: registry,
		logger:   logger.With("component", "pool", "queue", cfg.QueueName),
		workers:  make(map[string]*Worker),
	}
}

// Start spawns the minimum worker count and the monitor loop.
func (p *Pool) Start(ctx context.Context) {
	p.runCtx, p.cancel = context.WithCancel(ctx)

	p.mu.Lock()
	for i := 0; i < p.cfg.MinWorkers; i++ {
		p.spawnLocked()
	}
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.monitor(p.runCtx)
	}()

	p.logger.Info("pool started", "workers", p.cfg.MinWorkers)
}

// Stop cancels all workers and waits for them up to ctx's deadline.
func (p *Pool) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("pool stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool %s shutdown timed out: %w", p.cfg.QueueName, ctx.Err())
	}
}

// Size returns the current worker count.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Queue returns the queue this pool drains.
func (p *Pool) Queue() string {
	return p.cfg.QueueName
}

// Scale sets the pool to n workers, clamped to [min, max].
func (p *Pool) Scale(n int) int {
	if n < p.cfg.MinWorkers {
		n = p.cfg.MinWorkers
	}
	if n > p.cfg.MaxWorkers {
		n = p.cfg.MaxWorkers
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.workers) < n {
		p.spawnLocked()
	}
	for len(p.workers) > n {
		p.retireOneLocked()
	}
	p.logger.Info("pool scaled", "workers", len(p.workers))
	return len(p.workers)
}

// monitor replaces failed workers and adjusts the pool to queue depth.
func (p *Pool) monitor(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.replaceFailed()
			p.autoscale(ctx)
		}
	}
}

func (p *Pool) replaceFailed() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, w := range p.workers {
		if !w.Stopped() {
			continue
		}
		delete(p.workers, id)
		p.registry.Remove(id)
		if w.Failed() {
			p.logger.Warn("restarting failed worker", "worker_id", id)
			metrics.WorkerRestarts.WithLabelValues(p.cfg.QueueName).Inc()
			p.spawnLocked()
		}
	}
}

func (p *Pool) autoscale(ctx context.Context) {
	depth, err := p.jobs.QueueDepth(ctx, p.cfg.QueueName)
	if err != nil {
		p.logger.Error("failed to read queue depth", "error", err)
		return
	}
	metrics.QueueDepth.WithLabelValues(p.cfg.QueueName).Set(float64(depth))

	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case depth >= int64(p.cfg.ScaleUpDepth) && len(p.workers) < p.cfg.MaxWorkers:
		p.spawnLocked()
		p.logger.Info("scaled up", "depth", depth, "workers", len(p.workers))
	case depth <= int64(p.cfg.ScaleDownDepth) && len(p.workers) > p.cfg.MinWorkers:
		p.retireOneLocked()
		p.logger.Info("scaled down", "depth", depth, "workers", len(p.workers))
	}
}

// spawnLocked starts a new worker. Must be called with the mutex held.
func (p *Pool) spawnLocked() {
	id := fmt.Sprintf("%s-%s", p.cfg.QueueName, uuid.NewString()[:8])
	w := New(id, p.cfg.QueueName, p.jobs, p.sink, p.resolver, p.registry,
		p.cfg.PollInterval, p.cfg.MaxConsecFails, p.logger)
	p.workers[id] = w

	workerCtx, cancelWorker := context.WithCancel(p.runCtx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancelWorker()
		w.Run(workerCtx)
	}()
	w.cancel = cancelWorker
}

// retireOneLocked stops an arbitrary worker. Must be called with the
// mutex held.
func (p *Pool) retireOneLocked() {
	for id, w := range p.workers {
		delete(p.workers, id)
		if w.cancel != nil {
			w.cancel()
		}
		p.registry.Remove(id)
		return
	}
}
