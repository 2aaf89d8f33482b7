package grpcbridge

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rbright/pinbridge/internal/bridge"
)

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*bridge.Client)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Call",
		Handler:    callHandler,
	}},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pinbridge/bridge/v1/bridge.proto",
}

// Register exposes backend on s so remote pinbridge instances can reach it.
func Register(s grpc.ServiceRegistrar, backend bridge.Client) {
	s.RegisterService(&serviceDesc, backend)
}

func callHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	handle := func(ctx context.Context, req any) (any, error) {
		return serveCall(ctx, srv.(bridge.Client), req.(*structpb.Struct))
	}
	if interceptor == nil {
		return handle(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: callMethod}
	return interceptor(ctx, in, info, handle)
}

func serveCall(ctx context.Context, backend bridge.Client, req *structpb.Struct) (*structpb.Value, error) {
	method := req.GetFields()["method"].GetStringValue()
	if method == "" {
		return nil, status.Error(codes.InvalidArgument, "method is required")
	}
	params := req.GetFields()["params"].GetListValue().AsSlice()

	result, err := backend.Call(ctx, bridge.Operation(method), params...)
	if err != nil {
		code := codes.Unknown
		switch {
		case errors.Is(err, bridge.ErrUnsupported):
			code = codes.Unimplemented
		case errors.Is(err, context.DeadlineExceeded):
			code = codes.DeadlineExceeded
		case errors.Is(err, context.Canceled):
			code = codes.Canceled
		}
		return nil, status.Error(code, err.Error())
	}

	value, err := structpb.NewValue(result)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode %s result: %v", method, err)
	}
	return value, nil
}
