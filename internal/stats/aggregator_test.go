package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/resume-ingest/constants"
	"github.com/joseph-ayodele/resume-ingest/internal/entity"
)

func TestAggregator_CoalescesRecords(t *testing.T) {
	a := New("b1", WithWindow(50*time.Millisecond), WithMaxWait(5*time.Second))
	a.Begin(3)
	a.SetStage(constants.StageProcessing)
	base := a.Version()

	a.Record(entity.Succeeded("1"))
	a.Record(entity.Updated("2"))
	a.Record(entity.Failed(constants.ErrorValidation, "bad"))

	// nothing published yet, but the live copy is exact
	assert.Equal(t, 0, a.Snapshot().Completed)
	assert.Equal(t, 3, a.Live().Completed)

	require.Eventually(t, func() bool { return a.Snapshot().Completed == 3 }, time.Second, 5*time.Millisecond)
	snap := a.Snapshot()
	assert.Equal(t, 1, snap.Successful)
	assert.Equal(t, 1, snap.Updated)
	assert.Equal(t, 1, snap.Failed)
	assert.Equal(t, base+1, a.Version(), "three records inside one window publish once")
}

func TestAggregator_MaxWaitBoundsSteadyStream(t *testing.T) {
	a := New("b1", WithWindow(80*time.Millisecond), WithMaxWait(150*time.Millisecond))
	a.Begin(100)
	a.SetStage(constants.StageProcessing)
	base := a.Version()

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		a.Record(entity.Succeeded(""))
		time.Sleep(20 * time.Millisecond)
	}
	assert.Greater(t, a.Version(), base, "a stream faster than the window must still publish")
}

func TestAggregator_CurrentFileOnlyWhileProcessing(t *testing.T) {
	a := New("b1")
	a.Begin(2)
	a.Dispatched("early.pdf")
	assert.Empty(t, a.Live().CurrentFile)

	a.SetStage(constants.StageProcessing)
	a.Dispatched("a.pdf")
	a.Dispatched("b.pdf")
	assert.Equal(t, "b.pdf", a.Live().CurrentFile)

	a.SetStage(constants.StageFinalizing)
	assert.Empty(t, a.Snapshot().CurrentFile)
}

func TestAggregator_CompletedNeverExceedsTotal(t *testing.T) {
	a := New("b1")
	a.Begin(1)
	a.SetStage(constants.StageProcessing)
	assert.True(t, a.Record(entity.Succeeded("")))
	assert.False(t, a.Record(entity.Succeeded("")))
	a.Flush()
	assert.Equal(t, 1, a.Snapshot().Completed)
}

func TestAggregator_SealedAfterTerminalStage(t *testing.T) {
	a := New("b1")
	sub := a.Subscribe()
	a.Begin(2)
	a.SetStage(constants.StageProcessing)
	a.Record(entity.Succeeded(""))
	a.SetStage(constants.StageComplete)

	assert.False(t, a.Record(entity.Succeeded("")))
	a.SetStage(constants.StageError)
	snap := a.Snapshot()
	assert.Equal(t, constants.StageComplete, snap.Stage)
	assert.Equal(t, 1, snap.Completed)

	var last entity.BatchStats
	for s := range sub {
		last = s
	}
	assert.Equal(t, constants.StageComplete, last.Stage)
}

func TestAggregator_RetryingAccumulatesServerRetries(t *testing.T) {
	a := New("b1")
	a.Begin(2)
	a.SetStage(constants.StageProcessing)
	o := entity.Succeeded("x")
	o.Retries = 2
	a.Record(o)
	a.Flush()
	assert.Equal(t, 2, a.Snapshot().Retrying)
}

func TestAggregator_SubscribeAfterSeal(t *testing.T) {
	a := New("b1")
	a.Begin(0)
	a.SetStage(constants.StageComplete)
	ch := a.Subscribe()
	s, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, constants.StageComplete, s.Stage)
	_, ok = <-ch
	assert.False(t, ok)
}
