package app

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/joseph-ayodele/resume-ingest/internal/batch"
	"github.com/joseph-ayodele/resume-ingest/internal/common"
	"github.com/joseph-ayodele/resume-ingest/internal/count"
	"github.com/joseph-ayodele/resume-ingest/internal/export"
	"github.com/joseph-ayodele/resume-ingest/internal/failures"
	"github.com/joseph-ayodele/resume-ingest/internal/ingest"
	"github.com/joseph-ayodele/resume-ingest/internal/metrics"
	repo "github.com/joseph-ayodele/resume-ingest/internal/repository"
	"github.com/joseph-ayodele/resume-ingest/internal/upload"
)

// App is the fully wired orchestrator shared by the daemon and the CLI.
type App struct {
	Config   *common.Config
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Ingest   *ingest.Service
	Failures *failures.Registry
	Counter  *count.Reconciler
	Exporter *export.Service

	logger *slog.Logger
	pool   *pgxpool.Pool
	db     *sql.DB
}

// New builds every component from cfg. Close releases what it opened.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, logger: logger}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	uploader, err := upload.NewClient(cfg.Upload, logger, upload.WithRateLimit(cfg.Upload.RatePerSec, cfg.Upload.Burst))
	if err != nil {
		return nil, err
	}

	regOpts := []failures.Option{
		failures.WithGroupSize(cfg.Batch.GroupSize),
		failures.WithMetrics(a.Metrics),
		failures.WithLogger(logger),
	}
	if cfg.Failures.StorePath != "" {
		a.db, err = repo.OpenSQLite(ctx, cfg.Failures.StorePath, logger)
		if err != nil {
			return nil, err
		}
		regOpts = append(regOpts, failures.WithStore(repo.NewFailureStore(a.db)))
	}
	a.Failures = failures.NewRegistry(uploader, regOpts...)
	if err := a.Failures.Load(ctx); err != nil {
		a.Close()
		return nil, err
	}

	src, err := a.countSource(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Counter = count.NewReconciler(src,
		count.WithAnimation(cfg.Count.Animation),
		count.WithTimeout(cfg.Count.Timeout),
		count.WithMetrics(a.Metrics),
		count.WithLogger(logger),
	)

	sched := batch.NewScheduler(uploader,
		batch.WithGroupSize(cfg.Batch.GroupSize),
		batch.WithFailureSink(a.Failures),
		batch.WithMetrics(a.Metrics),
		batch.WithLogger(logger),
	)
	a.Ingest = ingest.NewService(sched, a.Failures, a.Counter,
		ingest.WithCoalescing(cfg.Batch.CoalesceWindow, cfg.Batch.CoalesceMaxWait),
		ingest.WithLogger(logger),
	)
	a.Exporter = export.NewService(a.Failures, logger)
	return a, nil
}

// countSource picks the candidates database when a DSN is configured and the
// HTTP endpoint otherwise. No source disables reconciliation.
func (a *App) countSource(ctx context.Context) (count.Source, error) {
	cfg := a.Config
	switch {
	case cfg.Count.DSN != "":
		pool, err := repo.OpenPool(ctx, repo.Config{
			DSN:             cfg.Count.DSN,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
			DialTimeout:     cfg.Database.DialTimeout,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		if err := repo.HealthCheck(ctx, pool, cfg.Database.DialTimeout, a.logger); err != nil {
			repo.ClosePool(pool, a.logger)
			return nil, err
		}
		a.pool = pool
		return repo.NewCountSource(pool, cfg.Count.Query), nil
	case cfg.Count.Endpoint != "":
		return count.NewHTTPSource(cfg.Count.Endpoint), nil
	default:
		a.logger.Warn("no count source configured; candidate count is session-local")
		return nil, nil
	}
}

// Close waits for background count refreshes and closes storage.
func (a *App) Close() {
	if a.Counter != nil {
		a.Counter.Wait()
	}
	if a.pool != nil {
		repo.ClosePool(a.pool, a.logger)
		a.pool = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close failure store", "error", err)
		}
		a.db = nil
	}
}
