package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/resume-ingest/internal/common"
	"github.com/joseph-ayodele/resume-ingest/internal/entity"
	"github.com/joseph-ayodele/resume-ingest/internal/export"
	"github.com/joseph-ayodele/resume-ingest/internal/ingest"
)

// IngestService exposes ingest.Service over gRPC.
type IngestService struct {
	svc      *ingest.Service
	exporter *export.Service
	logger   *slog.Logger
}

var _ IngestServer = (*IngestService)(nil)

func NewIngestService(svc *ingest.Service, exporter *export.Service, logger *slog.Logger) *IngestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestService{svc: svc, exporter: exporter, logger: logger}
}

func (s *IngestService) SubmitBatch(in *structpb.Struct, stream grpc.ServerStream) error {
	ctx := common.WithRequestID(stream.Context(), uuid.NewString())
	var req SubmitRequest
	if err := fromStruct(in, &req); err != nil {
		return common.InvalidArgumentError(err.Error())
	}

	srcs, err := Collect(req, s.logger)
	if err != nil {
		return common.ToStatus(err)
	}

	run, err := s.svc.SubmitBatch(ctx, srcs)
	if err != nil {
		return common.ToStatus(err)
	}
	log := s.logger.With("batch_id", run.ID(), "request_id", common.RequestIDFromContext(ctx))
	log.Info("ingest.rpc.submit", "files", len(srcs))

	for snap := range run.Updates() {
		update := BatchUpdate{BatchStats: snap}
		if snap.Terminal() {
			update.Summary = ingest.Summarize(snap)
		}
		msg, err := toStruct(update)
		if err != nil {
			return common.InternalError(err.Error())
		}
		if err := stream.SendMsg(msg); err != nil {
			// client went away; cancellation of ctx abandons the batch
			log.Warn("ingest.rpc.submit.send_failed", "error", err)
			return err
		}
	}
	_, err = run.Wait(ctx)
	return common.ToStatus(err)
}

// Collect resolves a SubmitRequest into sources: the directory scan first,
// then explicit paths, then inline files.
func Collect(req SubmitRequest, logger *slog.Logger) ([]entity.Source, error) {
	fs := ingest.NewFSIngestor(req.Extensions, req.SkipHidden, logger)
	var srcs []entity.Source

	if dir := strings.TrimSpace(req.Directory); dir != "" {
		found, _, _, err := fs.CollectDirectory(dir)
		if err != nil {
			return nil, common.NewAppError("INVALID_DIRECTORY", dir, fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
		}
		srcs = append(srcs, found...)
	}
	if len(req.Paths) > 0 {
		found, results := fs.CollectPaths(req.Paths)
		for _, r := range results {
			if r.Err != "" {
				return nil, common.InvalidArgumentErrorf("%s: %s", r.Path, r.Err)
			}
		}
		srcs = append(srcs, found...)
	}
	for i, f := range req.Files {
		if strings.TrimSpace(f.Name) == "" {
			return nil, common.InvalidArgumentErrorf("files[%d]: name is required", i)
		}
		srcs = append(srcs, entity.BytesSource{Filename: f.Name, Data: f.Data})
	}
	if len(srcs) == 0 {
		return nil, common.InvalidArgumentError("no files to submit")
	}
	return srcs, nil
}

func (s *IngestService) ListFailures(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	out, err := toStruct(map[string]any{"failures": FailureViews(s.svc.ListFailures())})
	if err != nil {
		return nil, common.InternalError(err.Error())
	}
	return out, nil
}

func (s *IngestService) RetryFailure(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireID(in)
	if err != nil {
		return nil, err
	}
	o, err := s.svc.RetryFailure(ctx, id)
	if err != nil {
		s.logger.Warn("ingest.rpc.retry_failed", "record_id", id, "error", err)
		return nil, common.ToStatus(err)
	}
	out, err := toStruct(o)
	if err != nil {
		return nil, common.InternalError(err.Error())
	}
	return out, nil
}

func (s *IngestService) RetryAllFailures(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	results, err := s.svc.RetryAllFailures(ctx)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	out, err := toStruct(map[string]any{"results": RetryViews(results)})
	if err != nil {
		return nil, common.InternalError(err.Error())
	}
	return out, nil
}

func (s *IngestService) RemoveFailure(_ context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	id, err := requireID(in)
	if err != nil {
		return nil, err
	}
	if err := s.svc.RemoveFailure(id); err != nil {
		return nil, common.ToStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *IngestService) ClearFailures(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	n, err := s.svc.ClearFailures(ctx)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return structpb.NewStruct(map[string]any{"removed": n})
}

func (s *IngestService) CurrentCount(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	out, err := toStruct(s.svc.CurrentCount())
	if err != nil {
		return nil, common.InternalError(err.Error())
	}
	return out, nil
}

func (s *IngestService) Totals(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	out, err := toStruct(s.svc.Totals())
	if err != nil {
		return nil, common.InternalError(err.Error())
	}
	return out, nil
}

func (s *IngestService) ExportFailures(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	totals := s.svc.Totals()
	xlsx, err := s.exporter.ExportFailuresXLSX(ctx, &totals)
	if err != nil {
		s.logger.Error("export.xlsx.failed", "error", err)
		return nil, common.ToStatus(err)
	}
	return wrapperspb.Bytes(xlsx), nil
}

func requireID(in *structpb.Struct) (string, error) {
	var req idRequest
	if err := fromStruct(in, &req); err != nil {
		return "", common.InvalidArgumentError(err.Error())
	}
	id := strings.TrimSpace(req.ID)
	v := common.NewValidator().Field("id", id, common.Required)
	if !v.HasErrors() {
		// failure record ids are UUIDs
		v.Field("id", id, common.UUID)
	}
	if err := common.ValidateAndReturnError(v); err != nil {
		return "", err
	}
	return id, nil
}
