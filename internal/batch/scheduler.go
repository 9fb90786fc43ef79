package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/resume-ingest/constants"
	"github.com/joseph-ayodele/resume-ingest/internal/common"
	"github.com/joseph-ayodele/resume-ingest/internal/entity"
	"github.com/joseph-ayodele/resume-ingest/internal/metrics"
	"github.com/joseph-ayodele/resume-ingest/internal/stats"
)

// Executor performs one upload attempt for an in-flight item.
type Executor interface {
	Submit(ctx context.Context, item *entity.WorkItem) entity.Outcome
}

// FailureSink receives a record for every failed attempt.
type FailureSink interface {
	Add(rec entity.FailureRecord) entity.FailureRecord
}

// Scheduler runs a batch of work items in sequential, bounded groups.
type Scheduler struct {
	exec      Executor
	groupSize int
	failures  FailureSink
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type Option func(*Scheduler)

func WithGroupSize(n int) Option {
	return func(s *Scheduler) { s.groupSize = n }
}

func WithFailureSink(f FailureSink) Option {
	return func(s *Scheduler) { s.failures = f }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewScheduler(exec Executor, opts ...Option) *Scheduler {
	s := &Scheduler{
		exec:      exec,
		groupSize: 2,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Scheduler) GroupSize() int { return s.groupSize }

// Run drives every item to a terminal status and returns the final snapshot.
//
// Item failures never abort the run. An error is returned only when the run
// cannot start or is abandoned through ctx; the snapshot is then sealed with
// Stage=Error. Calls already dispatched when ctx is cancelled still complete
// and still reach the failure sink.
func (s *Scheduler) Run(ctx context.Context, items []*entity.WorkItem, agg *stats.Aggregator) (entity.BatchStats, error) {
	batchID := agg.Live().BatchID
	ctx = common.WithBatchID(ctx, batchID)
	log := common.LoggerFrom(ctx, s.logger)

	agg.Begin(len(items))
	if s.groupSize <= 0 {
		return s.fail(agg, log, fmt.Errorf("batch %s: %w (got %d)", batchID, ErrInvalidGroupSize, s.groupSize))
	}

	start := time.Now()
	log.Info("batch.start", "items", len(items), "group_size", s.groupSize)
	agg.SetStage(constants.StageProcessing)

	process := func(callCtx context.Context, item *entity.WorkItem) {
		s.process(callCtx, log, agg, item)
	}
	if err := RunGroups(ctx, items, s.groupSize, process); err != nil {
		return s.fail(agg, log, fmt.Errorf("batch %s abandoned: %w", batchID, err))
	}

	agg.SetStage(constants.StageFinalizing)
	agg.SetStage(constants.StageComplete)
	s.metrics.BatchFinished(constants.StageComplete)

	final := agg.Snapshot()
	log.Info("batch.complete",
		"total", final.Total,
		"successful", final.Successful,
		"updated", final.Updated,
		"failed", final.Failed,
		"elapsed", time.Since(start),
	)
	return final, nil
}

func (s *Scheduler) process(ctx context.Context, log *slog.Logger, agg *stats.Aggregator, item *entity.WorkItem) {
	if err := item.Begin(); err != nil {
		// not pending: count it as failed so the batch still reaches its total
		log.Error("batch.item.begin", "item_id", item.ID, "error", err)
		agg.Record(entity.Failed(constants.ErrorUnknown, err.Error()))
		return
	}
	agg.Dispatched(item.DisplayName)

	s.metrics.UploadStarted()
	started := time.Now()
	outcome := s.exec.Submit(ctx, item)
	s.metrics.UploadFinished(outcome.Status, outcome.ErrorKind, time.Since(started).Seconds())

	if err := item.Complete(outcome); err != nil {
		log.Error("batch.item.complete", "item_id", item.ID, "error", err)
	}
	agg.Record(outcome)

	if outcome.Status == constants.ItemFailed {
		log.Warn("batch.item.failed",
			"item_id", item.ID,
			"file", item.DisplayName,
			"error_kind", outcome.ErrorKind,
			"error", outcome.ErrorMessage,
		)
		if s.failures != nil {
			s.failures.Add(entity.NewFailureRecord(item, outcome))
		}
		return
	}
	log.Debug("batch.item.done", "item_id", item.ID, "file", item.DisplayName, "status", outcome.Status)
}

func (s *Scheduler) fail(agg *stats.Aggregator, log *slog.Logger, err error) (entity.BatchStats, error) {
	agg.SetStage(constants.StageError)
	s.metrics.BatchFinished(constants.StageError)
	log.Error("batch.error", "error", err)
	return agg.Snapshot(), err
}
