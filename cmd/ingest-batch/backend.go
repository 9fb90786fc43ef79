package main

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/resume-ingest/internal/app"
	"github.com/joseph-ayodele/resume-ingest/internal/entity"
	"github.com/joseph-ayodele/resume-ingest/internal/ingest"
	"github.com/joseph-ayodele/resume-ingest/internal/server"
)

// backend is satisfied by server.Client (remote daemon) and localBackend
// (orchestrator running in this process).
type backend interface {
	SubmitBatch(ctx context.Context, req server.SubmitRequest, onUpdate func(server.BatchUpdate)) (server.BatchUpdate, error)
	ListFailures(ctx context.Context) ([]server.FailureView, error)
	RetryFailure(ctx context.Context, id string) (entity.Outcome, error)
	RetryAllFailures(ctx context.Context) ([]server.RetryView, error)
	RemoveFailure(ctx context.Context, id string) error
	ClearFailures(ctx context.Context) (int, error)
	CurrentCount(ctx context.Context) (entity.CountState, error)
	Totals(ctx context.Context) (entity.SessionTotals, error)
	ExportFailures(ctx context.Context) ([]byte, error)
}

var (
	_ backend = (*server.Client)(nil)
	_ backend = (*localBackend)(nil)
)

type localBackend struct {
	app    *app.App
	logger *slog.Logger
}

func (b *localBackend) SubmitBatch(ctx context.Context, req server.SubmitRequest, onUpdate func(server.BatchUpdate)) (server.BatchUpdate, error) {
	var last server.BatchUpdate
	srcs, err := server.Collect(req, b.logger)
	if err != nil {
		return last, err
	}
	run, err := b.app.Ingest.SubmitBatch(ctx, srcs)
	if err != nil {
		return last, err
	}
	for snap := range run.Updates() {
		last = server.BatchUpdate{BatchStats: snap}
		if snap.Terminal() {
			last.Summary = ingest.Summarize(snap)
		}
		if onUpdate != nil {
			onUpdate(last)
		}
	}
	final, err := run.Wait(ctx)
	if err != nil {
		return last, err
	}
	last.BatchStats = final
	last.Summary = ingest.Summarize(final)
	return last, nil
}

func (b *localBackend) ListFailures(context.Context) ([]server.FailureView, error) {
	return server.FailureViews(b.app.Ingest.ListFailures()), nil
}

func (b *localBackend) RetryFailure(ctx context.Context, id string) (entity.Outcome, error) {
	return b.app.Ingest.RetryFailure(ctx, id)
}

func (b *localBackend) RetryAllFailures(ctx context.Context) ([]server.RetryView, error) {
	results, err := b.app.Ingest.RetryAllFailures(ctx)
	if err != nil {
		return nil, err
	}
	return server.RetryViews(results), nil
}

func (b *localBackend) RemoveFailure(_ context.Context, id string) error {
	return b.app.Ingest.RemoveFailure(id)
}

func (b *localBackend) ClearFailures(ctx context.Context) (int, error) {
	return b.app.Ingest.ClearFailures(ctx)
}

func (b *localBackend) CurrentCount(ctx context.Context) (entity.CountState, error) {
	return b.app.Ingest.RefreshCount(ctx)
}

func (b *localBackend) Totals(context.Context) (entity.SessionTotals, error) {
	return b.app.Ingest.Totals(), nil
}

func (b *localBackend) ExportFailures(ctx context.Context) ([]byte, error) {
	totals := b.app.Ingest.Totals()
	return b.app.Exporter.ExportFailuresXLSX(ctx, &totals)
}
