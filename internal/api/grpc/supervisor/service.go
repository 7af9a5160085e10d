package supervisor

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "bundlelauncher.v1.SupervisorService"

// Method names.
const (
	MethodStartedAt     = "StartedAt"
	MethodListProcesses = "ListProcesses"
	MethodGetPids       = "GetPids"
	MethodSpawn         = "Spawn"
	MethodClose         = "Close"
	MethodDelete        = "Delete"
	MethodConsole       = "Console"
)

// SupervisorServer is the server API of the supervisor service.
type SupervisorServer interface {
	// StartedAt returns when the daemon started; it doubles as a reachability check.
	StartedAt(ctx context.Context, request *emptypb.Empty) (*timestamppb.Timestamp, error)
	// ListProcesses returns {"processes": [record...]}.
	ListProcesses(ctx context.Context, request *emptypb.Empty) (*structpb.Struct, error)
	// GetPids returns the live pids of an instance in ascending order.
	GetPids(ctx context.Context, instance *wrapperspb.StringValue) (*structpb.ListValue, error)
	// Spawn starts a built command and returns its record.
	Spawn(ctx context.Context, spec *structpb.Struct) (*structpb.Struct, error)
	// Close terminates a pid and waits for its exit.
	Close(ctx context.Context, pid *wrapperspb.Int64Value) (*emptypb.Empty, error)
	// Delete removes an instance directory.
	Delete(ctx context.Context, instance *wrapperspb.StringValue) (*emptypb.Empty, error)
	// Console streams console lines and the exit of an instance until the client leaves.
	Console(instance *wrapperspb.StringValue, stream grpc.ServerStream) error
}

// FullMethod returns "/<service>/<method>".
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// ServiceDesc describes the supervisor service for grpc.Server.RegisterService.
//
//nolint:gochecknoglobals // Service descriptors are package-level by convention.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SupervisorServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodStartedAt, SupervisorServer.StartedAt),
		unary(MethodListProcesses, SupervisorServer.ListProcesses),
		unary(MethodGetPids, SupervisorServer.GetPids),
		unary(MethodSpawn, SupervisorServer.Spawn),
		unary(MethodClose, SupervisorServer.Close),
		unary(MethodDelete, SupervisorServer.Delete),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    MethodConsole,
			Handler:       consoleHandler,
			ServerStreams: true,
		},
	},
	Metadata: "bundlelauncher/v1/supervisor.proto",
}

// ConsoleStreamDesc is the descriptor clients open Console streams with.
//
//nolint:gochecknoglobals // Mirrors ServiceDesc.Streams[0].
var ConsoleStreamDesc = &ServiceDesc.Streams[0]

// RegisterSupervisorServer registers srv on registrar.
func RegisterSupervisorServer(registrar grpc.ServiceRegistrar, srv SupervisorServer) {
	registrar.RegisterService(&ServiceDesc, srv)
}

// unary builds the method descriptor of one request/response call.
func unary[Req, Resp proto.Message](
	method string,
	call func(SupervisorServer, context.Context, Req) (Resp, error),
) grpc.MethodDesc {
	fullMethod := FullMethod(method)

	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(
			srv any,
			ctx context.Context,
			dec func(any) error,
			interceptor grpc.UnaryServerInterceptor,
		) (any, error) {
			var zero Req

			request, _ := zero.ProtoReflect().New().Interface().(Req)
			if err := dec(request); err != nil {
				return nil, err
			}

			if interceptor == nil {
				return call(srv.(SupervisorServer), ctx, request) //nolint:forcetypeassert // HandlerType guarantees it.
			}

			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod,
			}

			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(SupervisorServer), ctx, req.(Req)) //nolint:forcetypeassert // See above.
			}

			return interceptor(ctx, request, info, handler)
		},
	}
}

func consoleHandler(srv any, stream grpc.ServerStream) error {
	request := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(request); err != nil {
		return err
	}

	return srv.(SupervisorServer).Console(request, stream) //nolint:forcetypeassert // HandlerType guarantees it.
}
