// Package count keeps the optimistic "total candidates" counter in step with
// the authoritative count service.
package count

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/resume-ingest/internal/entity"
	"github.com/joseph-ayodele/resume-ingest/internal/metrics"
)

// Source returns the authoritative total. It has no side effects.
type Source interface {
	Count(ctx context.Context) (int, error)
}

// Reconciler merges optimistic deltas with refreshed authoritative counts.
//
// ApplyDelta moves Displayed immediately and marks the state as animating for
// a fixed window. Refreshes update Authoritative; while animating, Displayed
// is left alone and converges when the window closes.
type Reconciler struct {
	src       Source
	animation time.Duration
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu         sync.Mutex
	state      entity.CountState
	gen        uint64
	reconciled bool

	wg sync.WaitGroup
}

type Option func(*Reconciler)

func WithAnimation(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.animation = d
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewReconciler(src Source, opts ...Option) *Reconciler {
	r := &Reconciler{
		src:       src,
		animation: time.Second,
		timeout:   5 * time.Second,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ApplyDelta shows authoritative+n right away and reconciles in the background.
// Without a source the delta is folded into Authoritative, so the count is a
// running session total.
func (r *Reconciler) ApplyDelta(ctx context.Context, n int) entity.CountState {
	r.mu.Lock()
	if r.src == nil {
		r.state.Authoritative += n
		r.state.Displayed = r.state.Authoritative
	} else {
		r.state.Displayed = r.state.Authoritative + n
	}
	r.state.Animating = true
	r.gen++
	gen := r.gen
	r.reconciled = false
	st := r.state
	r.mu.Unlock()

	r.logger.Debug("count.delta", "delta", n, "displayed", st.Displayed)
	time.AfterFunc(r.animation, func() { r.endAnimation(gen) })

	if r.src != nil {
		bg := context.WithoutCancel(ctx)
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			_, _ = r.Refresh(bg)
		}()
	}
	return st
}

// Refresh fetches the authoritative count. A failure is recorded in
// LastError and never touches Displayed. A count fetched across a later
// ApplyDelta is discarded: it predates the delta.
func (r *Reconciler) Refresh(ctx context.Context) (int, error) {
	if r.src == nil {
		return r.State().Authoritative, nil
	}
	r.mu.Lock()
	startGen := r.gen
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	n, err := r.src.Count(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.state.LastError = err.Error()
		r.metrics.CountRefreshFailed()
		r.logger.Warn("count.refresh_failed", "error", err, "displayed", r.state.Displayed)
		return 0, err
	}
	if startGen != r.gen {
		r.logger.Debug("count.refresh_stale", "count", n)
		return n, nil
	}
	r.state.Authoritative = n
	r.state.LastError = ""
	r.state.RefreshedAt = time.Now().UTC()
	if r.state.Animating {
		r.reconciled = true
	} else {
		r.state.Displayed = n
	}
	r.logger.Debug("count.refreshed", "authoritative", n)
	return n, nil
}

// State returns a copy of the current count state.
func (r *Reconciler) State() entity.CountState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Run refreshes immediately and then every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	_, _ = r.Refresh(ctx)
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = r.Refresh(ctx)
		}
	}
}

// Wait blocks until background refreshes started by ApplyDelta have finished.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

func (r *Reconciler) endAnimation(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen {
		// a later delta owns the animation window
		return
	}
	r.state.Animating = false
	if r.reconciled {
		r.state.Displayed = r.state.Authoritative
	}
}
