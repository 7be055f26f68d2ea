package dlq

import (
	"context"
	"log/slog"
	"time"

	"github.com/medscribe/dispatch/internal/core/config"
	"github.com/medscribe/dispatch/internal/core/domain"
	"github.com/medscribe/dispatch/internal/metrics"
	"github.com/medscribe/dispatch/internal/store"
)

// Cleaner drops dead letter entries past the retention window.
type Cleaner struct {
	entries *store.DLQStore
	cfg     config.DLQConfig
	logger  *slog.Logger
}

// NewCleaner creates the retention sweep worker.
func NewCleaner(entries *store.DLQStore, cfg config.DLQConfig, logger *slog.Logger) *Cleaner {
	return &Cleaner{
		entries: entries,
		cfg:     cfg,
		logger:  logger.With("component", "dlq-cleaner"),
	}
}

// Start runs the cleanup loop until ctx is cancelled.
func (c *Cleaner) Start(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

func (c *Cleaner) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-c.cfg.Retention)

	for _, queue := range domain.KnownQueues() {
		pruned, err := c.entries.PruneExpired(ctx, queue, cutoff)
		if err != nil {
			c.logger.Error("dlq cleanup failed", "queue", queue, "error", err)
			continue
		}
		if depth, err := c.entries.Depth(ctx, queue); err == nil {
			metrics.DLQDepth.WithLabelValues(queue).Set(float64(depth))
		}
		if pruned > 0 {
			c.logger.Info("pruned expired dead letter entries", "queue", queue, "count", pruned)
		}
	}
}
