package ingest

import (
	"context"
	"sync"

	"github.com/joseph-ayodele/resume-ingest/internal/entity"
	"github.com/joseph-ayodele/resume-ingest/internal/stats"
)

// Run is one submitted batch.
type Run struct {
	id    string
	agg   *stats.Aggregator
	items []*entity.WorkItem
	done  chan struct{}

	mu    sync.Mutex
	final entity.BatchStats
	err   error
}

func (r *Run) ID() string { return r.id }

// Updates streams coalesced snapshots; the last one is terminal and the
// channel is then closed.
func (r *Run) Updates() <-chan entity.BatchStats {
	return r.agg.Subscribe()
}

// Snapshot returns the latest published snapshot.
func (r *Run) Snapshot() entity.BatchStats {
	return r.agg.Snapshot()
}

// Done is closed once the batch is terminal.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the batch is terminal or ctx is done.
func (r *Run) Wait(ctx context.Context) (entity.BatchStats, error) {
	select {
	case <-r.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.final, r.err
	case <-ctx.Done():
		return r.agg.Snapshot(), ctx.Err()
	}
}

// Items returns the per-item state of the batch.
func (r *Run) Items() []entity.ItemState {
	out := make([]entity.ItemState, 0, len(r.items))
	for _, it := range r.items {
		out = append(out, it.State())
	}
	return out
}

func (r *Run) finish(final entity.BatchStats, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.final, r.err = final, err
}
