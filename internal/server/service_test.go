package server

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/joseph-ayodele/resume-ingest/constants"
	"github.com/joseph-ayodele/resume-ingest/internal/batch"
	"github.com/joseph-ayodele/resume-ingest/internal/count"
	"github.com/joseph-ayodele/resume-ingest/internal/entity"
	"github.com/joseph-ayodele/resume-ingest/internal/export"
	"github.com/joseph-ayodele/resume-ingest/internal/failures"
	"github.com/joseph-ayodele/resume-ingest/internal/ingest"
)

type toggleExecutor struct {
	mu   sync.Mutex
	fail map[string]bool
}

func (e *toggleExecutor) Submit(_ context.Context, item *entity.WorkItem) entity.Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail[item.DisplayName] {
		return entity.Failed(constants.ErrorValidation, "unreadable resume")
	}
	return entity.Succeeded("id-" + item.DisplayName)
}

func (e *toggleExecutor) set(name string, fail bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fail[name] = fail
}

func startServer(t *testing.T, exec batch.Executor) (*Client, *grpc.ClientConn) {
	t.Helper()
	reg := failures.NewRegistry(exec)
	sched := batch.NewScheduler(exec, batch.WithFailureSink(reg))
	svc := ingest.NewService(sched, reg, count.NewReconciler(nil, count.WithAnimation(10*time.Millisecond)),
		ingest.WithCoalescing(5*time.Millisecond, 20*time.Millisecond))
	impl := NewIngestService(svc, export.NewService(reg, nil), nil)

	lis := bufconn.Listen(1 << 20)
	gs, _ := NewGRPCServer(impl, nil)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn), conn
}

func TestIngestService_SubmitRetryExport(t *testing.T) {
	ctx := context.Background()
	exec := &toggleExecutor{fail: map[string]bool{"b.pdf": true}}
	client, _ := startServer(t, exec)

	var updates int
	final, err := client.SubmitBatch(ctx, SubmitRequest{Files: []InlineFile{
		{Name: "a.pdf", Data: []byte("a")},
		{Name: "b.pdf", Data: []byte("b")},
		{Name: "c.pdf", Data: []byte("c")},
	}}, func(BatchUpdate) { updates++ })
	require.NoError(t, err)
	assert.GreaterOrEqual(t, updates, 1)
	assert.Equal(t, constants.StageComplete, final.Stage)
	assert.Equal(t, 3, final.Total)
	assert.Equal(t, 2, final.Successful)
	assert.Equal(t, 1, final.Failed)
	assert.Contains(t, final.Summary, "1 file failed")

	list, err := client.ListFailures(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b.pdf", list[0].DisplayName)
	assert.Equal(t, "mem://b.pdf", list[0].SourceURI)

	xlsx, err := client.ExportFailures(ctx)
	require.NoError(t, err)
	assert.Equal(t, "PK", string(xlsx[:2]))

	exec.set("b.pdf", false)
	o, err := client.RetryFailure(ctx, list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, constants.ItemSucceeded, o.Status)

	list, err = client.ListFailures(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	totals, err := client.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, totals.Successful)
	assert.Equal(t, 1, totals.Recovered)
}

func TestIngestService_Errors(t *testing.T) {
	ctx := context.Background()
	client, _ := startServer(t, &toggleExecutor{fail: map[string]bool{}})

	_, err := client.RetryFailure(ctx, uuid.NewString())
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.RetryFailure(ctx, "missing")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "UUID")

	err = client.RemoveFailure(ctx, " ")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.SubmitBatch(ctx, SubmitRequest{}, nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestIngestService_RetryAllAndClear(t *testing.T) {
	ctx := context.Background()
	exec := &toggleExecutor{fail: map[string]bool{"x": true, "y": true}}
	client, _ := startServer(t, exec)

	_, err := client.SubmitBatch(ctx, SubmitRequest{Files: []InlineFile{{Name: "x", Data: []byte("1")}, {Name: "y", Data: []byte("2")}}}, nil)
	require.NoError(t, err)

	exec.set("x", false)
	results, err := client.RetryAllFailures(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)

	n, err := client.ClearFailures(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	st, err := client.CurrentCount(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, st.Displayed, 0)
}

func TestNewGRPCServer_Health(t *testing.T) {
	_, conn := startServer(t, &toggleExecutor{fail: map[string]bool{}})
	resp, err := grpc_health_v1.NewHealthClient(conn).Check(context.Background(),
		&grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus())
}
