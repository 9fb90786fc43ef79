package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/resume-ingest/constants"
	"github.com/joseph-ayodele/resume-ingest/internal/entity"
	"github.com/joseph-ayodele/resume-ingest/internal/stats"
)

// stubExecutor returns a scripted outcome per display name and tracks concurrency.
type stubExecutor struct {
	delay    time.Duration
	outcomes map[string]entity.Outcome
	block    chan struct{}

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	calls       atomic.Int32
}

func (e *stubExecutor) Submit(ctx context.Context, item *entity.WorkItem) entity.Outcome {
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		m := e.maxInFlight.Load()
		if n <= m || e.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	e.calls.Add(1)
	if e.block != nil {
		<-e.block
	}
	time.Sleep(e.delay)
	if o, ok := e.outcomes[item.DisplayName]; ok {
		return o
	}
	return entity.Succeeded("rec-" + item.DisplayName)
}

type sliceSink struct {
	mu   sync.Mutex
	recs []entity.FailureRecord
}

func (s *sliceSink) Add(rec entity.FailureRecord) entity.FailureRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return rec
}

func (s *sliceSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

func makeItems(names ...string) []*entity.WorkItem {
	srcs := make([]entity.Source, 0, len(names))
	for _, n := range names {
		srcs = append(srcs, entity.BytesSource{Filename: n, Data: []byte(n)})
	}
	return entity.NewWorkItems(srcs)
}

func newAgg() *stats.Aggregator {
	return stats.New("batch-1", stats.WithWindow(10*time.Millisecond))
}

func TestPartition(t *testing.T) {
	groups := Partition([]int{1, 2, 3, 4, 5}, 2)
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, groups)
	assert.Nil(t, Partition([]int{1}, 0))
	assert.Nil(t, Partition([]int{}, 3))
}

func TestScheduler_AllSucceed(t *testing.T) {
	exec := &stubExecutor{delay: 5 * time.Millisecond}
	sink := &sliceSink{}
	s := NewScheduler(exec, WithGroupSize(2), WithFailureSink(sink))
	items := makeItems("a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf")

	final, err := s.Run(context.Background(), items, newAgg())
	require.NoError(t, err)

	assert.Equal(t, 5, final.Total)
	assert.Equal(t, 5, final.Completed)
	assert.Equal(t, 5, final.Successful)
	assert.Equal(t, 0, final.Failed)
	assert.Equal(t, constants.StageComplete, final.Stage)
	assert.Empty(t, final.CurrentFile)
	assert.Equal(t, 0, sink.len())
	for _, it := range items {
		assert.Equal(t, constants.ItemSucceeded, it.Status())
	}
}

func TestScheduler_ValidationFailureGoesToSink(t *testing.T) {
	exec := &stubExecutor{outcomes: map[string]entity.Outcome{
		"two.pdf": entity.Failed(constants.ErrorValidation, "unsupported layout"),
	}}
	sink := &sliceSink{}
	s := NewScheduler(exec, WithGroupSize(2), WithFailureSink(sink))

	final, err := s.Run(context.Background(), makeItems("one.pdf", "two.pdf", "three.pdf"), newAgg())
	require.NoError(t, err, "item failures never fail the batch")

	assert.Equal(t, 3, final.Total)
	assert.Equal(t, 3, final.Completed)
	assert.Equal(t, 2, final.Successful)
	assert.Equal(t, 1, final.Failed)
	assert.Equal(t, constants.StageComplete, final.Stage)

	require.Equal(t, 1, sink.len())
	assert.Equal(t, "two.pdf", sink.recs[0].DisplayName)
	assert.Equal(t, constants.ErrorValidation, sink.recs[0].ErrorKind)
}

func TestScheduler_NeverExceedsGroupSize(t *testing.T) {
	exec := &stubExecutor{delay: 10 * time.Millisecond}
	s := NewScheduler(exec, WithGroupSize(3))
	items := makeItems("1", "2", "3", "4", "5", "6", "7", "8", "9", "10")

	final, err := s.Run(context.Background(), items, newAgg())
	require.NoError(t, err)
	assert.Equal(t, 10, final.Completed)
	assert.LessOrEqual(t, exec.maxInFlight.Load(), int32(3))
	assert.Equal(t, final.Completed, final.Successful+final.Updated+final.Failed)
}

func TestScheduler_InvalidGroupSize(t *testing.T) {
	s := NewScheduler(&stubExecutor{}, WithGroupSize(0))
	final, err := s.Run(context.Background(), makeItems("a"), newAgg())
	require.ErrorIs(t, err, ErrInvalidGroupSize)
	assert.Equal(t, constants.StageError, final.Stage)
	assert.Equal(t, 1, final.Total)
}

func TestScheduler_EmptyBatchCompletes(t *testing.T) {
	s := NewScheduler(&stubExecutor{})
	final, err := s.Run(context.Background(), nil, newAgg())
	require.NoError(t, err)
	assert.Equal(t, constants.StageComplete, final.Stage)
	assert.Equal(t, 0, final.Total)
}

func TestScheduler_AbandonedRunStillRoutesFailures(t *testing.T) {
	exec := &stubExecutor{
		block: make(chan struct{}),
		outcomes: map[string]entity.Outcome{
			"a": entity.Failed(constants.ErrorServer, "502"),
			"b": entity.Failed(constants.ErrorServer, "502"),
		},
	}
	sink := &sliceSink{}
	s := NewScheduler(exec, WithGroupSize(2), WithFailureSink(sink))
	items := makeItems("a", "b", "c", "d")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	var final entity.BatchStats
	go func() {
		var err error
		final, err = s.Run(ctx, items, newAgg())
		errCh <- err
	}()

	require.Eventually(t, func() bool { return exec.calls.Load() == 2 }, time.Second, time.Millisecond)
	cancel()
	err := <-errCh
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, constants.StageError, final.Stage)

	close(exec.block)
	require.Eventually(t, func() bool { return sink.len() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(2), exec.calls.Load(), "second group is never dispatched")
	assert.Equal(t, constants.ItemPending, items[3].Status())
}
