package failures

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/resume-ingest/constants"
	"github.com/joseph-ayodele/resume-ingest/internal/common"
	"github.com/joseph-ayodele/resume-ingest/internal/entity"
)

type scriptedExecutor struct {
	mu      sync.Mutex
	next    []entity.Outcome
	delay   time.Duration
	block   chan struct{}
	started chan struct{}

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (e *scriptedExecutor) Submit(_ context.Context, _ *entity.WorkItem) entity.Outcome {
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		m := e.maxInFlight.Load()
		if n <= m || e.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if e.started != nil {
		e.started <- struct{}{}
	}
	if e.block != nil {
		<-e.block
	}
	time.Sleep(e.delay)

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.next) == 0 {
		return entity.Succeeded("ok")
	}
	o := e.next[0]
	e.next = e.next[1:]
	return o
}

type memStore struct {
	mu   sync.Mutex
	recs map[string]entity.FailureRecord
}

func newMemStore() *memStore { return &memStore{recs: map[string]entity.FailureRecord{}} }

func (s *memStore) Save(_ context.Context, rec entity.FailureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.ID] = rec
	return nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, id)
	return nil
}

func (s *memStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = map[string]entity.FailureRecord{}
	return nil
}

func (s *memStore) Load(context.Context) ([]entity.FailureRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.FailureRecord, 0, len(s.recs))
	for _, r := range s.recs {
		out = append(out, r)
	}
	return out, nil
}

func failedRecord(t *testing.T, name string) entity.FailureRecord {
	t.Helper()
	item := entity.NewWorkItem(entity.BytesSource{Filename: name, Data: []byte(name)})
	require.NoError(t, item.Begin())
	o := entity.Failed(constants.ErrorValidation, "missing email")
	require.NoError(t, item.Complete(o))
	return entity.NewFailureRecord(item, o)
}

func TestRegistry_AddSameItemUpdatesInPlace(t *testing.T) {
	r := NewRegistry(&scriptedExecutor{})
	first := r.Add(failedRecord(t, "a.pdf"))

	again := failedRecord(t, "a.pdf")
	again.ItemID = first.ItemID
	again.ErrorKind = constants.ErrorServer
	second := r.Add(again)

	assert.Equal(t, first.ID, second.ID)
	require.Len(t, r.List(), 1)
	assert.Equal(t, constants.ErrorServer, r.List()[0].ErrorKind)
}

func TestRegistry_RetrySuccessRemovesRecord(t *testing.T) {
	store := newMemStore()
	r := NewRegistry(&scriptedExecutor{}, WithStore(store))
	rec := r.Add(failedRecord(t, "two.pdf"))
	require.Len(t, store.recs, 1)

	o, err := r.Retry(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.ItemSucceeded, o.Status)
	assert.Empty(t, r.List())
	assert.Empty(t, store.recs)
}

func TestRegistry_RetryFailureUpdatesInPlace(t *testing.T) {
	exec := &scriptedExecutor{next: []entity.Outcome{entity.Failed(constants.ErrorServer, "503")}}
	r := NewRegistry(exec)
	rec := r.Add(failedRecord(t, "a.pdf"))

	o, err := r.Retry(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.ItemFailed, o.Status)

	list := r.List()
	require.Len(t, list, 1)
	assert.Equal(t, rec.ID, list[0].ID)
	assert.Equal(t, constants.ErrorServer, list[0].ErrorKind)
	assert.Equal(t, "503", list[0].ErrorMessage)
	assert.Equal(t, 1, list[0].RetryCount)
}

func TestRegistry_RetryUnknownRecord(t *testing.T) {
	r := NewRegistry(&scriptedExecutor{})
	_, err := r.Retry(context.Background(), "nope")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRegistry_ConcurrentRetryOfSameRecordRejected(t *testing.T) {
	exec := &scriptedExecutor{block: make(chan struct{}), started: make(chan struct{}, 1)}
	r := NewRegistry(exec)
	rec := r.Add(failedRecord(t, "a.pdf"))

	done := make(chan error, 1)
	go func() {
		_, err := r.Retry(context.Background(), rec.ID)
		done <- err
	}()
	<-exec.started

	_, err := r.Retry(context.Background(), rec.ID)
	assert.ErrorIs(t, err, ErrRetryInProgress)
	assert.ErrorIs(t, err, common.ErrConflict)

	close(exec.block)
	require.NoError(t, <-done)
}

func TestRegistry_RetryAllIsBounded(t *testing.T) {
	exec := &scriptedExecutor{delay: 20 * time.Millisecond}
	r := NewRegistry(exec, WithGroupSize(2))
	for _, n := range []string{"a", "b", "c", "d"} {
		r.Add(failedRecord(t, n))
	}

	results, err := r.RetryAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.NoError(t, Errors(results))
	assert.LessOrEqual(t, exec.maxInFlight.Load(), int32(2))
	assert.Zero(t, r.Len())
}

func TestRegistry_LoadFromStore(t *testing.T) {
	store := newMemStore()
	rec := failedRecord(t, "persisted.pdf")
	require.NoError(t, store.Save(context.Background(), rec))

	r := NewRegistry(&scriptedExecutor{}, WithStore(store))
	require.NoError(t, r.Load(context.Background()))
	got, ok := r.Get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, "persisted.pdf", got.DisplayName)

	n, err := r.Clear(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, store.recs)
}

func TestRegistry_RemoveAndErrorKinds(t *testing.T) {
	r := NewRegistry(&scriptedExecutor{})
	a := r.Add(failedRecord(t, "a"))
	r.Add(failedRecord(t, "b"))
	assert.Equal(t, map[constants.ErrorKind]int{constants.ErrorValidation: 2}, r.ErrorKinds())

	assert.True(t, r.Remove(a.ID))
	assert.False(t, r.Remove(a.ID))
	assert.Equal(t, 1, r.Len())
}

// slowSaveStore holds the next Save until release is closed.
type slowSaveStore struct {
	*memStore
	saving  chan struct{}
	release chan struct{}
}

func (s *slowSaveStore) Save(ctx context.Context, rec entity.FailureRecord) error {
	if s.saving != nil {
		close(s.saving)
		s.saving = nil
		<-s.release
	}
	return s.memStore.Save(ctx, rec)
}

func TestRegistry_RemoveDuringSaveStaysRemoved(t *testing.T) {
	store := &slowSaveStore{memStore: newMemStore(), saving: make(chan struct{}), release: make(chan struct{})}
	saving := store.saving
	r := NewRegistry(&scriptedExecutor{}, WithStore(store))

	rec := failedRecord(t, "a.pdf")
	added := make(chan struct{})
	go func() {
		defer close(added)
		r.Add(rec)
	}()
	<-saving

	removed := make(chan bool, 1)
	go func() { removed <- r.Remove(rec.ID) }()
	require.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, time.Millisecond)

	close(store.release)
	<-added
	assert.True(t, <-removed)

	recs, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs, "a dismissed record must not be written back")
}
