package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "ingest.v1.IngestService"

// Messages are protobuf well-known types; field layouts are documented on
// each IngestServer method.
type IngestServer interface {
	// SubmitBatch streams snapshots of a new batch. Request:
	// {"paths": [...], "directory": "...", "skip_hidden": bool, "extensions": [...],
	//  "files": [{"name": "...", "data": "<base64>"}]}.
	SubmitBatch(req *structpb.Struct, stream grpc.ServerStream) error
	ListFailures(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	// RetryFailure request: {"id": "..."}.
	RetryFailure(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RetryAllFailures(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	// RemoveFailure request: {"id": "..."}.
	RemoveFailure(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
	ClearFailures(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	CurrentCount(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	Totals(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	ExportFailures(ctx context.Context, req *emptypb.Empty) (*wrapperspb.BytesValue, error)
}

// RegisterIngestServer registers srv on s.
func RegisterIngestServer(s grpc.ServiceRegistrar, srv IngestServer) {
	s.RegisterService(&IngestServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// unary adapts a typed IngestServer method into a grpc.MethodHandler.
func unary[Req any, Resp any, PReq interface{ *Req }](name string, call func(IngestServer, context.Context, PReq) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := PReq(new(Req))
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(IngestServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(IngestServer), ctx, req.(PReq))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func submitBatchHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(IngestServer).SubmitBatch(in, stream)
}

// IngestServiceDesc describes IngestService without generated stubs.
var IngestServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IngestServer)(nil),
	Methods: []grpc.MethodDesc{
		unary[emptypb.Empty]("ListFailures", IngestServer.ListFailures),
		unary[structpb.Struct]("RetryFailure", IngestServer.RetryFailure),
		unary[emptypb.Empty]("RetryAllFailures", IngestServer.RetryAllFailures),
		unary[structpb.Struct]("RemoveFailure", IngestServer.RemoveFailure),
		unary[emptypb.Empty]("ClearFailures", IngestServer.ClearFailures),
		unary[emptypb.Empty]("CurrentCount", IngestServer.CurrentCount),
		unary[emptypb.Empty]("Totals", IngestServer.Totals),
		unary[emptypb.Empty]("ExportFailures", IngestServer.ExportFailures),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "SubmitBatch",
			Handler:       submitBatchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "ingest/v1/ingest.proto",
}
