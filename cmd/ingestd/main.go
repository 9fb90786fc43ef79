package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joseph-ayodele/resume-ingest/constants"
	"github.com/joseph-ayodele/resume-ingest/internal/app"
	"github.com/joseph-ayodele/resume-ingest/internal/async"
	"github.com/joseph-ayodele/resume-ingest/internal/common"
	"github.com/joseph-ayodele/resume-ingest/internal/entity"
	"github.com/joseph-ayodele/resume-ingest/internal/ingest"
	"github.com/joseph-ayodele/resume-ingest/internal/metrics"
	"github.com/joseph-ayodele/resume-ingest/internal/server"
)

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: common.ParseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build orchestrator", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// Keep the displayed count honest between batches
	go a.Counter.Run(ctx, cfg.Count.RefreshInterval)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	grpcServer, healthServer := server.NewGRPCServer(server.NewIngestService(a.Ingest, a.Exporter, logger), logger)

	var metricsSrv *http.Server
	if cfg.Server.MetricsAddr != "" {
		metricsSrv = &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           metrics.Handler(a.Registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("metrics listening", "addr", cfg.Server.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics serve error", "error", err)
			}
		}()
	}

	var queue async.Queue
	if len(cfg.Watch.Roots) > 0 {
		queue, err = startWatch(ctx, cfg, a, logger)
		if err != nil {
			logger.Error("failed to start watcher", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("resume-ingest listening", "addr", cfg.Server.GRPCAddr, "group_size", cfg.Batch.GroupSize)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("gRPC serve error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if queue != nil {
		queue.Shutdown(shutdownCtx)
	}
	grpcServer.GracefulStop()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

// startWatch feeds files dropped under the watch roots into batches.
func startWatch(ctx context.Context, cfg *common.Config, a *app.App, logger *slog.Logger) (async.Queue, error) {
	paths, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       cfg.Watch.Roots,
		AllowedExts: constants.AllowedExtensions,
		Debounce:    cfg.Watch.Debounce,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	submit := func(ctx context.Context, srcs []entity.Source) error {
		run, err := a.Ingest.SubmitBatch(ctx, srcs)
		if err != nil {
			return err
		}
		final, err := run.Wait(ctx)
		if err != nil {
			return err
		}
		logger.Info("watch.batch.done", "batch_id", run.ID(), "summary", ingest.Summarize(final))
		return nil
	}
	queue := async.NewBatchQueue(submit, logger,
		async.WithFlushSize(cfg.Watch.FlushSize),
		async.WithFlushInterval(cfg.Watch.FlushInterval),
	)

	go func() {
		for {
			select {
			case p, ok := <-paths:
				if !ok {
					return
				}
				src, err := entity.NewFileSource(p)
				if err != nil {
					logger.Warn("watch.source_failed", "path", p, "error", err)
					continue
				}
				if err := queue.Enqueue(ctx, src); err != nil {
					logger.Warn("watch.enqueue_failed", "path", p, "error", err)
				}
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				logger.Warn("watch.error", "error", err)
			}
		}
	}()
	return queue, nil
}
