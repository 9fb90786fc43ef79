// Package failures holds work items that terminated in error until they are
// retried successfully or explicitly dismissed.
package failures

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/joseph-ayodele/resume-ingest/constants"
	"github.com/joseph-ayodele/resume-ingest/internal/batch"
	"github.com/joseph-ayodele/resume-ingest/internal/common"
	"github.com/joseph-ayodele/resume-ingest/internal/entity"
	"github.com/joseph-ayodele/resume-ingest/internal/metrics"
)

// ErrRetryInProgress is returned when a record is already being retried.
var ErrRetryInProgress = fmt.Errorf("%w: retry already in progress", common.ErrConflict)

// Store persists failure records. Writes are write-through; the in-memory
// registry stays authoritative if a write fails.
type Store interface {
	Save(ctx context.Context, rec entity.FailureRecord) error
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	Load(ctx context.Context) ([]entity.FailureRecord, error)
}

// RetryResult is the outcome of retrying one record.
type RetryResult struct {
	RecordID    string         `json:"record_id"`
	DisplayName string         `json:"display_name"`
	Outcome     entity.Outcome `json:"outcome"`
	Err         error          `json:"-"`
}

// Registry is safe for concurrent use.
type Registry struct {
	exec      batch.Executor
	store     Store
	groupSize int
	metrics   *metrics.Metrics
	logger    *slog.Logger

	// storeMu orders store writes; it is taken before mu, never after
	storeMu sync.Mutex

	mu       sync.Mutex
	byID     map[string]entity.FailureRecord
	byItem   map[string]string // item id -> record id
	retrying map[string]struct{}
}

type Option func(*Registry)

func WithStore(s Store) Option {
	return func(r *Registry) { r.store = s }
}

func WithGroupSize(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.groupSize = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRegistry(exec batch.Executor, opts ...Option) *Registry {
	r := &Registry{
		exec:      exec,
		groupSize: 2,
		logger:    slog.Default(),
		byID:      make(map[string]entity.FailureRecord),
		byItem:    make(map[string]string),
		retrying:  make(map[string]struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Load replaces the in-memory registry with the store's contents.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	recs, err := r.store.Load(ctx)
	if err != nil {
		return common.WrapError(err, "load failures")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.byID)
	clear(r.byItem)
	for _, rec := range recs {
		r.byID[rec.ID] = rec
		r.byItem[rec.ItemID] = rec.ID
	}
	r.metrics.SetOpenFailures(len(r.byID))
	r.logger.Info("failures.loaded", "count", len(recs))
	return nil
}

// Add records a failure. A record that already exists for the same item is
// updated in place and keeps its id.
func (r *Registry) Add(rec entity.FailureRecord) entity.FailureRecord {
	r.mu.Lock()
	if existingID, ok := r.byItem[rec.ItemID]; ok {
		prev := r.byID[existingID]
		prev.ErrorKind = rec.ErrorKind
		prev.ErrorMessage = rec.ErrorMessage
		prev.RetryCount = max(prev.RetryCount, rec.RetryCount)
		if rec.Source != nil {
			prev.Source = rec.Source
		}
		prev.UpdatedAt = time.Now().UTC()
		rec = prev
	}
	r.byID[rec.ID] = rec
	r.byItem[rec.ItemID] = rec.ID
	n := len(r.byID)
	r.mu.Unlock()

	r.metrics.SetOpenFailures(n)
	r.persist(rec.ID)
	return rec
}

// Remove drops a record. It reports whether the record existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	rec, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
		delete(r.byItem, rec.ItemID)
	}
	n := len(r.byID)
	r.mu.Unlock()
	if !ok {
		return false
	}
	r.metrics.SetOpenFailures(n)
	r.unpersist(id)
	return true
}

// Clear drops every record and returns how many were removed.
func (r *Registry) Clear(ctx context.Context) (int, error) {
	r.mu.Lock()
	n := len(r.byID)
	clear(r.byID)
	clear(r.byItem)
	r.mu.Unlock()

	r.metrics.SetOpenFailures(0)
	if r.store != nil {
		r.storeMu.Lock()
		err := r.store.Clear(ctx)
		r.storeMu.Unlock()
		if err != nil {
			return n, common.WrapError(err, "clear store")
		}
	}
	r.logger.Info("failures.cleared", "count", n)
	return n, nil
}

func (r *Registry) Get(id string) (entity.FailureRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	return rec, ok
}

// List returns every record, oldest first.
func (r *Registry) List() []entity.FailureRecord {
	r.mu.Lock()
	out := make([]entity.FailureRecord, 0, len(r.byID))
	for _, rec := range r.byID {
		out = append(out, rec)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// Retry resubmits one record from its retained source. Success removes the
// record; failure updates it in place.
func (r *Registry) Retry(ctx context.Context, id string) (entity.Outcome, error) {
	r.mu.Lock()
	rec, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return entity.Outcome{}, fmt.Errorf("failure %s: %w", id, common.ErrNotFound)
	}
	if _, busy := r.retrying[id]; busy {
		r.mu.Unlock()
		return entity.Outcome{}, fmt.Errorf("failure %s: %w", id, ErrRetryInProgress)
	}
	r.retrying[id] = struct{}{}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.retrying, id)
		r.mu.Unlock()
	}()

	log := common.LoggerFrom(ctx, r.logger).With("record_id", id, "file", rec.DisplayName)

	item := entity.RestoreWorkItem(rec)
	if err := item.Resubmit(); err != nil {
		return entity.Outcome{}, err
	}
	if err := item.Begin(); err != nil {
		return entity.Outcome{}, err
	}
	outcome := r.exec.Submit(ctx, item)
	if err := item.Complete(outcome); err != nil {
		return outcome, err
	}

	if outcome.OK() {
		r.Remove(id)
		r.metrics.RetryFinished(true)
		log.Info("failures.retry.recovered", "status", outcome.Status, "retry_count", item.State().RetryCount)
		return outcome, nil
	}

	r.mu.Lock()
	if cur, still := r.byID[id]; still {
		cur.ErrorKind = outcome.ErrorKind
		cur.ErrorMessage = outcome.ErrorMessage
		cur.RetryCount = item.State().RetryCount
		cur.UpdatedAt = time.Now().UTC()
		r.byID[id] = cur
	}
	r.mu.Unlock()
	r.persist(id)
	r.metrics.RetryFinished(false)
	log.Warn("failures.retry.failed", "error_kind", outcome.ErrorKind, "error", outcome.ErrorMessage)
	return outcome, nil
}

// RetryAll retries every record in groups of the registry's group size.
// Cancelling ctx stops dispatch of further groups.
func (r *Registry) RetryAll(ctx context.Context) ([]RetryResult, error) {
	recs := r.List()
	results := make([]RetryResult, len(recs))
	idx := make([]int, len(recs))
	for i := range idx {
		idx[i] = i
	}

	err := batch.RunGroups(ctx, idx, r.groupSize, func(callCtx context.Context, i int) {
		rec := recs[i]
		o, err := r.Retry(callCtx, rec.ID)
		results[i] = RetryResult{RecordID: rec.ID, DisplayName: rec.DisplayName, Outcome: o, Err: err}
	})
	if err != nil {
		return nil, err
	}

	var recovered int
	for _, res := range results {
		if res.Err == nil && res.Outcome.OK() {
			recovered++
		}
	}
	r.logger.Info("failures.retry_all.done", "attempted", len(results), "recovered", recovered)
	return results, nil
}

// Errors joins the per-record errors of a RetryAll run.
func Errors(results []RetryResult) error {
	var errs []error
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return errors.Join(errs...)
}

// ErrorKinds counts open records by error kind.
func (r *Registry) ErrorKinds() map[constants.ErrorKind]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[constants.ErrorKind]int)
	for _, rec := range r.byID {
		out[rec.ErrorKind]++
	}
	return out
}

// persist writes the current state of record id. A record dismissed since
// the caller released mu is not written back.
func (r *Registry) persist(id string) {
	if r.store == nil {
		return
	}
	r.storeMu.Lock()
	defer r.storeMu.Unlock()

	r.mu.Lock()
	rec, ok := r.byID[id]
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := r.store.Save(context.Background(), rec); err != nil {
		r.logger.Error("failures.store.save_error", "record_id", rec.ID, "error", err)
	}
}

func (r *Registry) unpersist(id string) {
	if r.store == nil {
		return
	}
	r.storeMu.Lock()
	defer r.storeMu.Unlock()
	if err := r.store.Delete(context.Background(), id); err != nil {
		r.logger.Error("failures.store.delete_error", "record_id", id, "error", err)
	}
}
