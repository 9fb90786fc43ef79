package stats

import (
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/resume-ingest/constants"
	"github.com/joseph-ayodele/resume-ingest/internal/entity"
)

// Aggregator folds per-item outcomes into the progress snapshot of one batch.
//
// Record and Dispatched mutate a live copy and arm a coalescing timer; the
// published snapshot only changes when the timer fires (window since the last
// call, capped at maxWait since the first unpublished call) or when the stage
// changes. Once the stage is Complete or Error the aggregator is sealed.
type Aggregator struct {
	logger  *slog.Logger
	window  time.Duration
	maxWait time.Duration

	mu         sync.Mutex
	live       entity.BatchStats
	published  entity.BatchStats
	version    uint64
	dirty      bool
	dirtySince time.Time
	sealed     bool
	timer      *time.Timer
	subs       []chan entity.BatchStats
}

type Option func(*Aggregator)

func WithWindow(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.window = d
		}
	}
}

func WithMaxWait(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.maxWait = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

func New(batchID string, opts ...Option) *Aggregator {
	a := &Aggregator{
		logger:  slog.Default(),
		window:  100 * time.Millisecond,
		maxWait: time.Second,
	}
	for _, o := range opts {
		o(a)
	}
	a.live = entity.BatchStats{BatchID: batchID, Stage: constants.StageIdle}
	a.published = a.live
	return a
}

// Begin fixes the total and moves to Starting.
func (a *Aggregator) Begin(total int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sealed {
		return
	}
	a.live.Total = total
	a.live.Stage = constants.StageStarting
	a.publishLocked()
}

// SetStage publishes immediately. CurrentFile is only kept while Processing.
func (a *Aggregator) SetStage(stage constants.Stage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sealed {
		return
	}
	a.live.Stage = stage
	if stage != constants.StageProcessing {
		a.live.CurrentFile = ""
	}
	a.publishLocked()
	if stage.Terminal() {
		a.sealLocked()
	}
}

// Dispatched notes the most recently dispatched item.
func (a *Aggregator) Dispatched(displayName string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sealed || a.live.Stage != constants.StageProcessing {
		return
	}
	a.live.CurrentFile = displayName
	a.markDirtyLocked()
}

// Record folds one outcome in. It reports false when the outcome was dropped
// because the batch is sealed or already fully counted.
func (a *Aggregator) Record(o entity.Outcome) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sealed {
		a.logger.Debug("stats.record.sealed", "batch_id", a.live.BatchID, "status", o.Status)
		return false
	}
	if a.live.Completed >= a.live.Total {
		a.logger.Warn("stats.record.overflow", "batch_id", a.live.BatchID, "total", a.live.Total)
		return false
	}
	a.live.Completed++
	switch o.Status {
	case constants.ItemSucceeded:
		a.live.Successful++
	case constants.ItemUpdated:
		a.live.Updated++
	default:
		a.live.Failed++
	}
	if o.Retries > 0 {
		a.live.Retrying += o.Retries
	}
	a.markDirtyLocked()
	return true
}

// Flush publishes pending changes without waiting for the window.
func (a *Aggregator) Flush() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dirty {
		a.publishLocked()
	}
}

// Snapshot returns the last published snapshot.
func (a *Aggregator) Snapshot() entity.BatchStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.published
}

// Live returns the exact current counts, including unpublished changes.
func (a *Aggregator) Live() entity.BatchStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// Version increments with every published snapshot.
func (a *Aggregator) Version() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.version
}

// Subscribe returns a channel carrying the latest published snapshot. Slow
// readers only miss intermediate snapshots. The channel is closed after the
// terminal snapshot.
func (a *Aggregator) Subscribe() <-chan entity.BatchStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch := make(chan entity.BatchStats, 1)
	ch <- a.published
	if a.sealed {
		close(ch)
		return ch
	}
	a.subs = append(a.subs, ch)
	return ch
}

func (a *Aggregator) markDirtyLocked() {
	now := time.Now()
	if !a.dirty {
		a.dirty = true
		a.dirtySince = now
	}
	delay := a.window
	if remaining := a.maxWait - now.Sub(a.dirtySince); remaining < delay {
		delay = max(remaining, 0)
	}
	if a.timer == nil {
		a.timer = time.AfterFunc(delay, a.Flush)
		return
	}
	a.timer.Reset(delay)
}

func (a *Aggregator) publishLocked() {
	if a.timer != nil {
		a.timer.Stop()
	}
	a.dirty = false
	a.published = a.live
	a.version++
	for _, ch := range a.subs {
		select {
		case <-ch:
		default:
		}
		ch <- a.published
	}
}

func (a *Aggregator) sealLocked() {
	a.sealed = true
	for _, ch := range a.subs {
		close(ch)
	}
	a.subs = nil
	a.logger.Debug("stats.sealed", "batch_id", a.live.BatchID, "stage", a.live.Stage, "version", a.version)
}
