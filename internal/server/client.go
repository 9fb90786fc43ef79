package server

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/resume-ingest/internal/entity"
)

// Client calls IngestService on a remote daemon.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial opens a plaintext connection to addr.
func Dial(addr string) (*grpc.ClientConn, error) {
	return grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// SubmitBatch submits a batch and calls onUpdate for every snapshot received.
// It returns the last (terminal) update.
func (c *Client) SubmitBatch(ctx context.Context, req SubmitRequest, onUpdate func(BatchUpdate)) (BatchUpdate, error) {
	var last BatchUpdate
	in, err := toStruct(req)
	if err != nil {
		return last, err
	}
	stream, err := c.cc.NewStream(ctx, &IngestServiceDesc.Streams[0], fullMethod("SubmitBatch"))
	if err != nil {
		return last, err
	}
	if err := stream.SendMsg(in); err != nil {
		return last, err
	}
	if err := stream.CloseSend(); err != nil {
		return last, err
	}
	for {
		out := new(structpb.Struct)
		if err := stream.RecvMsg(out); err != nil {
			if errors.Is(err, io.EOF) {
				return last, nil
			}
			return last, err
		}
		var u BatchUpdate
		if err := fromStruct(out, &u); err != nil {
			return last, err
		}
		last = u
		if onUpdate != nil {
			onUpdate(u)
		}
	}
}

func (c *Client) ListFailures(ctx context.Context) ([]FailureView, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("ListFailures"), &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	var resp struct {
		Failures []FailureView `json:"failures"`
	}
	if err := fromStruct(out, &resp); err != nil {
		return nil, err
	}
	return resp.Failures, nil
}

func (c *Client) RetryFailure(ctx context.Context, id string) (entity.Outcome, error) {
	var o entity.Outcome
	in, err := structpb.NewStruct(map[string]any{"id": id})
	if err != nil {
		return o, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("RetryFailure"), in, out); err != nil {
		return o, err
	}
	err = fromStruct(out, &o)
	return o, err
}

func (c *Client) RetryAllFailures(ctx context.Context) ([]RetryView, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("RetryAllFailures"), &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	var resp struct {
		Results []RetryView `json:"results"`
	}
	if err := fromStruct(out, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *Client) RemoveFailure(ctx context.Context, id string) error {
	in, err := structpb.NewStruct(map[string]any{"id": id})
	if err != nil {
		return err
	}
	return c.cc.Invoke(ctx, fullMethod("RemoveFailure"), in, &emptypb.Empty{})
}

func (c *Client) ClearFailures(ctx context.Context) (int, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("ClearFailures"), &emptypb.Empty{}, out); err != nil {
		return 0, err
	}
	return int(out.GetFields()["removed"].GetNumberValue()), nil
}

func (c *Client) CurrentCount(ctx context.Context) (entity.CountState, error) {
	var st entity.CountState
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("CurrentCount"), &emptypb.Empty{}, out); err != nil {
		return st, err
	}
	err := fromStruct(out, &st)
	return st, err
}

func (c *Client) Totals(ctx context.Context) (entity.SessionTotals, error) {
	var t entity.SessionTotals
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("Totals"), &emptypb.Empty{}, out); err != nil {
		return t, err
	}
	err := fromStruct(out, &t)
	return t, err
}

func (c *Client) ExportFailures(ctx context.Context) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, fullMethod("ExportFailures"), &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}
