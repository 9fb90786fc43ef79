package count

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu  sync.Mutex
	n   int
	err error
}

func (f *fakeSource) set(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n, f.err = n, err
}

func (f *fakeSource) Count(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n, f.err
}

func notAnimating(r *Reconciler) func() bool {
	return func() bool { return !r.State().Animating }
}

func TestReconciler_DeltaThenMatchingRefresh(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{n: 10}
	r := NewReconciler(src, WithAnimation(50*time.Millisecond))
	_, err := r.Refresh(ctx)
	require.NoError(t, err)

	src.set(13, nil)
	st := r.ApplyDelta(ctx, 3)
	assert.Equal(t, 13, st.Displayed)
	assert.True(t, st.Animating)

	r.Wait()
	require.Eventually(t, notAnimating(r), time.Second, 5*time.Millisecond)

	n, err := r.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 13, n)
	assert.Equal(t, 13, r.State().Displayed)
}

func TestReconciler_ConvergesToAuthoritative(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{n: 10}
	r := NewReconciler(src, WithAnimation(50*time.Millisecond))
	_, _ = r.Refresh(ctx)

	// another client deleted a record meanwhile
	src.set(12, nil)
	r.ApplyDelta(ctx, 3)
	r.Wait()
	assert.Equal(t, 13, r.State().Displayed, "displayed holds during the animation window")

	require.Eventually(t, notAnimating(r), time.Second, 5*time.Millisecond)
	st := r.State()
	assert.Equal(t, 12, st.Authoritative)
	assert.Equal(t, 12, st.Displayed)
}

func TestReconciler_RefreshFailureKeepsOptimisticValue(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{n: 10}
	r := NewReconciler(src, WithAnimation(30*time.Millisecond))
	_, _ = r.Refresh(ctx)

	src.set(0, errors.New("connection refused"))
	r.ApplyDelta(ctx, 2)
	r.Wait()
	require.Eventually(t, notAnimating(r), time.Second, 5*time.Millisecond)

	st := r.State()
	assert.Equal(t, 12, st.Displayed)
	assert.Equal(t, 10, st.Authoritative)
	assert.Contains(t, st.LastError, "connection refused")
}

func TestReconciler_OverlappingDeltas(t *testing.T) {
	ctx := context.Background()
	r := NewReconciler(nil, WithAnimation(80*time.Millisecond))
	r.ApplyDelta(ctx, 1)
	time.Sleep(50 * time.Millisecond)
	r.ApplyDelta(ctx, 4)
	time.Sleep(50 * time.Millisecond)
	assert.True(t, r.State().Animating, "first window must not end the second one")
	assert.Equal(t, 5, r.State().Displayed)
	require.Eventually(t, notAnimating(r), time.Second, 5*time.Millisecond)
}

func TestReconciler_NoSourceAccumulates(t *testing.T) {
	ctx := context.Background()
	r := NewReconciler(nil, WithAnimation(10*time.Millisecond))

	r.ApplyDelta(ctx, 5)
	require.Eventually(t, notAnimating(r), time.Second, 5*time.Millisecond)
	assert.Equal(t, 5, r.State().Displayed)

	r.ApplyDelta(ctx, 1)
	require.Eventually(t, notAnimating(r), time.Second, 5*time.Millisecond)
	st := r.State()
	assert.Equal(t, 6, st.Displayed)
	assert.Equal(t, 6, st.Authoritative)

	n, err := r.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

// gatedSource blocks the call after blockNext until release is closed.
type gatedSource struct {
	fakeSource
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSource) blockNext() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entered = make(chan struct{})
	g.release = make(chan struct{})
}

func (g *gatedSource) Count(ctx context.Context) (int, error) {
	g.mu.Lock()
	n, err := g.n, g.err
	entered, release := g.entered, g.release
	g.entered, g.release = nil, nil
	g.mu.Unlock()
	if release != nil {
		close(entered)
		<-release
	}
	return n, err
}

func TestReconciler_RefreshStartedBeforeDeltaIsDiscarded(t *testing.T) {
	ctx := context.Background()
	src := &gatedSource{fakeSource: fakeSource{n: 10}}
	r := NewReconciler(src, WithAnimation(40*time.Millisecond))
	_, err := r.Refresh(ctx)
	require.NoError(t, err)

	src.blockNext()
	entered, release := src.entered, src.release
	staleDone := make(chan struct{})
	go func() {
		defer close(staleDone)
		_, _ = r.Refresh(ctx)
	}()
	<-entered

	src.set(13, nil)
	r.ApplyDelta(ctx, 3)
	r.Wait()

	close(release)
	<-staleDone

	require.Eventually(t, notAnimating(r), time.Second, 5*time.Millisecond)
	st := r.State()
	assert.Equal(t, 13, st.Authoritative)
	assert.Equal(t, 13, st.Displayed)
}

func TestReconciler_RunStopsWithContext(t *testing.T) {
	src := &fakeSource{n: 7}
	r := NewReconciler(src)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	require.Eventually(t, func() bool { return r.State().Displayed == 7 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestHTTPSource(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    int
		wantErr bool
	}{
		{"count", 200, `{"count": 41}`, 41, false},
		{"total", 200, `{"total": 9}`, 9, false},
		{"neither", 200, `{}`, 0, true},
		{"server error", 500, `oops`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			n, err := NewHTTPSource(srv.URL).Count(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}
