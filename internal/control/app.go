package control

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/medscribe/dispatch/internal/collab"
	"github.com/medscribe/dispatch/internal/core/config"
	"github.com/medscribe/dispatch/internal/dlq"
	"github.com/medscribe/dispatch/internal/infra/postgres"
	"github.com/medscribe/dispatch/internal/jobs"
	"github.com/medscribe/dispatch/internal/ops"
	"github.com/medscribe/dispatch/internal/process"
	"github.com/medscribe/dispatch/internal/resilience/backoff"
	"github.com/medscribe/dispatch/internal/resilience/breaker"
	"github.com/medscribe/dispatch/internal/resilience/classify"
	"github.com/medscribe/dispatch/internal/resilience/retry"
	"github.com/medscribe/dispatch/internal/store"
	"github.com/medscribe/dispatch/internal/worker"
)

// App is the main application struct that wires the job subsystem
// together and manages its lifecycle.
type App struct {
	cfg config.AppConfig
	log *slog.Logger

	redis    *store.Client
	db       *postgres.DB
	registry *worker.Registry
	breakers *breaker.Registry
	jobSvc   *jobs.Service
	sweeper  *jobs.Sweeper
	cleaner  *dlq.Cleaner
	pools    map[string]*worker.Pool
	ops      *ops.Server
}

// Pool returns the worker pool for a queue, if one is configured.
func (a *App) Pool(queue string) (*worker.Pool, bool) {
	p, ok := a.pools[queue]
	return p, ok
}

// NewApp creates an App with all dependencies initialized.
func NewApp(ctx context.Context, cfg config.AppConfig) (*App, error) {
	log := slog.Default()

	// 1. Storage
	redisClient, err := store.NewClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to init redis: %w", err)
	}

	jobStore := store.NewJobStore(redisClient)
	retryStore := store.NewRetryStore(redisClient)
	dlqStore := store.NewDLQStore(redisClient, cfg.DLQ.MaxEntriesPerQueue)
	warmer := store.NewCacheWarmer(redisClient, jobStore)

	var db *postgres.DB
	var transcripts process.TranscriptWriter
	var notes process.NoteWriter
	if cfg.Database.Host != "" {
		db, err = postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		transcripts = postgres.NewTranscriptRepo(db)
		notes = postgres.NewNoteRepo(db)
		log.Info("Using PostgreSQL persistence")
	} else {
		log.Warn("No database configured, transcripts and notes are not persisted")
	}

	// 2. Resilience
	breakers := breaker.NewRegistry(breaker.DefaultConfig(), log)
	registry := worker.NewRegistry(cfg.Health, log)
	engine := retry.NewEngine(breakers, backoff.NewCalculator(), registry.SystemLoad, log)
	classifier := classify.New()

	// 3. Dead letter queue
	deadLetter := dlq.New(dlqStore, jobStore, breakers, log)
	cleaner := dlq.NewCleaner(dlqStore, cfg.DLQ, log)

	// 4. Collaborators and processing pipeline
	transcriber := collab.NewTranscriptionClient(cfg.Collab, breakers)
	formatter := collab.NewAgentClient(cfg.Collab, breakers)
	pipeline := process.NewPipeline(transcriber, formatter, transcripts, notes, warmer)

	// 5. Job orchestration
	jobSvc := jobs.NewService(jobStore, retryStore, deadLetter, engine, classifier, cfg.Retry, log)
	sweeper := jobs.NewSweeper(jobStore, retryStore, cfg.Retry.SweepInterval, log)

	// 6. Worker pools, one per configured queue
	pools := make(map[string]*worker.Pool, len(cfg.Workers))
	for _, pc := range cfg.Workers {
		pools[pc.QueueName] = worker.NewPool(pc, jobStore, jobSvc, pipeline, registry, log)
	}

	app := &App{
		cfg:      cfg,
		log:      log,
		redis:    redisClient,
		db:       db,
		registry: registry,
		breakers: breakers,
		jobSvc:   jobSvc,
		sweeper:  sweeper,
		cleaner:  cleaner,
		pools:    pools,
	}

	app.ops = ops.NewServer(cfg.Server.Port, jobSvc, deadLetter, registry, breakers, app, log)

	return app, nil
}

// Start launches the ops server, background sweepers and worker pools.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.ops.Start(); err != nil && err != http.ErrServerClosed {
			a.log.Error("Ops server failed", "error", err)
		}
	}()

	go a.registry.Start(ctx)
	go a.sweeper.Start(ctx)
	go a.cleaner.Start(ctx)

	for queue, pool := range a.pools {
		a.log.Info("Starting worker pool", "queue", queue)
		pool.Start(ctx)
	}

	a.log.Info("Dispatch started", "port", a.cfg.Server.Port, "pools", len(a.pools))
	return nil
}

// Stop drains the worker pools and shuts down shared resources.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping Dispatch...")

	for queue, pool := range a.pools {
		if err := pool.Stop(ctx); err != nil {
			a.log.Warn("Pool did not drain in time", "queue", queue, "error", err)
		}
	}

	if err := a.redis.Close(); err != nil {
		a.log.Warn("Failed to close Redis", "error", err)
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}

	return a.ops.Stop(ctx)
}
