package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/resume-ingest/constants"
	"github.com/joseph-ayodele/resume-ingest/internal/batch"
	"github.com/joseph-ayodele/resume-ingest/internal/common"
	"github.com/joseph-ayodele/resume-ingest/internal/count"
	"github.com/joseph-ayodele/resume-ingest/internal/entity"
	"github.com/joseph-ayodele/resume-ingest/internal/failures"
	"github.com/joseph-ayodele/resume-ingest/internal/stats"
)

// Service is the caller-facing orchestrator: it submits batches, exposes the
// failure registry and the candidate counter, and keeps session totals.
type Service struct {
	scheduler *batch.Scheduler
	failures  *failures.Registry
	counter   *count.Reconciler
	logger    *slog.Logger

	coalesceWindow  time.Duration
	coalesceMaxWait time.Duration

	mu     sync.Mutex
	totals entity.SessionTotals
	runs   map[string]*Run
}

type Option func(*Service)

func WithCoalescing(window, maxWait time.Duration) Option {
	return func(s *Service) {
		s.coalesceWindow, s.coalesceMaxWait = window, maxWait
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(sched *batch.Scheduler, reg *failures.Registry, counter *count.Reconciler, opts ...Option) *Service {
	s := &Service{
		scheduler: sched,
		failures:  reg,
		counter:   counter,
		logger:    slog.Default(),
		runs:      make(map[string]*Run),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SubmitBatch starts a batch over srcs and returns immediately. Cancelling
// ctx abandons the batch: no further groups are dispatched.
func (s *Service) SubmitBatch(ctx context.Context, srcs []entity.Source) (*Run, error) {
	for i, src := range srcs {
		if src == nil {
			return nil, common.InvalidArgumentErrorf("source %d is nil", i)
		}
	}

	id := uuid.NewString()
	agg := stats.New(id,
		stats.WithWindow(s.coalesceWindow),
		stats.WithMaxWait(s.coalesceMaxWait),
		stats.WithLogger(s.logger),
	)
	run := &Run{
		id:    id,
		agg:   agg,
		items: entity.NewWorkItems(srcs),
		done:  make(chan struct{}),
	}

	s.mu.Lock()
	s.runs[id] = run
	s.mu.Unlock()

	s.logger.Info("ingest.batch.submitted", "batch_id", id, "files", len(srcs))
	go func() {
		defer close(run.done)
		final, err := s.scheduler.Run(ctx, run.items, agg)
		run.finish(final, err)
		s.afterBatch(ctx, final, err)

		s.mu.Lock()
		delete(s.runs, id)
		s.mu.Unlock()
	}()
	return run, nil
}

// Run looks up an unfinished batch.
func (s *Service) Run(id string) (*Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	return r, ok
}

func (s *Service) afterBatch(ctx context.Context, final entity.BatchStats, err error) {
	s.mu.Lock()
	s.totals.Batches++
	s.totals.Successful += final.Successful
	s.totals.Updated += final.Updated
	s.totals.Failed += final.Failed
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("ingest.batch.abandoned", "batch_id", final.BatchID, "error", err, "completed", final.Completed, "total", final.Total)
	}
	if s.counter != nil {
		s.counter.ApplyDelta(context.WithoutCancel(ctx), final.Successful)
	}
	s.logger.Info("ingest.batch.summary", "batch_id", final.BatchID, "summary", Summarize(final))
}

func (s *Service) ListFailures() []entity.FailureRecord {
	return s.failures.List()
}

// RetryFailure resubmits one failure record.
func (s *Service) RetryFailure(ctx context.Context, id string) (entity.Outcome, error) {
	o, err := s.failures.Retry(ctx, id)
	if err != nil {
		return o, err
	}
	s.afterRetries(ctx, o)
	return o, nil
}

// RetryAllFailures resubmits every failure record in bounded groups.
func (s *Service) RetryAllFailures(ctx context.Context) ([]failures.RetryResult, error) {
	results, err := s.failures.RetryAll(ctx)
	if err != nil {
		return nil, err
	}
	outcomes := make([]entity.Outcome, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			outcomes = append(outcomes, r.Outcome)
		}
	}
	s.afterRetries(ctx, outcomes...)
	return results, nil
}

func (s *Service) afterRetries(ctx context.Context, outcomes ...entity.Outcome) {
	var added int
	s.mu.Lock()
	for _, o := range outcomes {
		s.totals.Retried++
		s.totals.Add(o)
		if o.OK() {
			s.totals.Recovered++
		}
		if o.Status == constants.ItemSucceeded {
			added++
		}
	}
	s.mu.Unlock()

	if added > 0 && s.counter != nil {
		s.counter.ApplyDelta(context.WithoutCancel(ctx), added)
	}
}

// RemoveFailure dismisses a failure record without retrying it.
func (s *Service) RemoveFailure(id string) error {
	if !s.failures.Remove(id) {
		return fmt.Errorf("failure %s: %w", id, common.ErrNotFound)
	}
	s.logger.Info("ingest.failure.removed", "record_id", id)
	return nil
}

// ClearFailures dismisses every failure record.
func (s *Service) ClearFailures(ctx context.Context) (int, error) {
	return s.failures.Clear(ctx)
}

func (s *Service) CurrentCount() entity.CountState {
	if s.counter == nil {
		return entity.CountState{}
	}
	return s.counter.State()
}

// RefreshCount forces a reconciliation with the count source.
func (s *Service) RefreshCount(ctx context.Context) (entity.CountState, error) {
	if s.counter == nil {
		return entity.CountState{}, nil
	}
	if _, err := s.counter.Refresh(ctx); err != nil {
		return s.counter.State(), err
	}
	return s.counter.State(), nil
}

func (s *Service) Totals() entity.SessionTotals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals
}

func (s *Service) Failures() *failures.Registry { return s.failures }
