package supervisor

import (
	"context"
	"errors"
	"math"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
	"github.com/oshokin/bundle-launcher/internal/events"
	"github.com/oshokin/bundle-launcher/internal/logger"
	domain "github.com/oshokin/bundle-launcher/internal/supervisor"
)

// Service abstracts the business operations the transport layer depends on.
type Service interface {
	Processes() ([]domain.ProcessInfo, error)
	GetPids(name string) []int
	Spawn(ctx context.Context, spec *domain.Spec) (*domain.Handle, error)
	Close(ctx context.Context, pid int) error
	Delete(ctx context.Context, name string) error
}

// Subscriber hands out event subscriptions for console streams.
type Subscriber interface {
	Subscribe() (<-chan events.Event, func())
}

// Server implements SupervisorServer.
type Server struct {
	// service provides the business logic for process operations.
	service Service
	// subscriber feeds Console streams; nil disables them.
	subscriber Subscriber
	// startedAt is reported by StartedAt.
	startedAt time.Time
}

var _ SupervisorServer = (*Server)(nil)

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service, subscriber Subscriber) *Server {
	return &Server{
		service:    service,
		subscriber: subscriber,
		startedAt:  time.Now(),
	}
}

// StartedAt returns when the server was created.
func (s *Server) StartedAt(context.Context, *emptypb.Empty) (*timestamppb.Timestamp, error) {
	return timestamppb.New(s.startedAt), nil
}

// ListProcesses returns every live process.
func (s *Server) ListProcesses(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	infos, err := s.service.Processes()
	if err != nil {
		logger.ErrorKV(ctx, "Listing processes failed", "error", err)

		return nil, status.Error(codes.Internal, "unable to list processes")
	}

	processes := make([]*structpb.Value, 0, len(infos))

	for i := range infos {
		item, err := InfoToStruct(&infos[i])
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}

		processes = append(processes, structpb.NewStructValue(item))
	}

	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			FieldProcesses: structpb.NewListValue(&structpb.ListValue{Values: processes}),
		},
	}, nil
}

// GetPids returns the live pids of an instance.
func (s *Server) GetPids(_ context.Context, instance *wrapperspb.StringValue) (*structpb.ListValue, error) {
	if instance.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "instance is required")
	}

	pids := s.service.GetPids(instance.GetValue())
	values := make([]*structpb.Value, 0, len(pids))

	for _, pid := range pids {
		values = append(values, structpb.NewNumberValue(float64(pid)))
	}

	return &structpb.ListValue{Values: values}, nil
}

// Spawn starts the command described by spec.
func (s *Server) Spawn(ctx context.Context, spec *structpb.Struct) (*structpb.Struct, error) {
	decoded, err := SpecFromStruct(spec)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if decoded.Instance == "" || decoded.Path == "" {
		return nil, status.Error(codes.InvalidArgument, "instance and path are required")
	}

	// The process outlives the call.
	handle, err := s.service.Spawn(context.WithoutCancel(ctx), decoded)
	if err != nil {
		return nil, toStatus(err)
	}

	info, err := domain.Describe(handle.Record())
	if err != nil {
		logger.WarnKV(ctx, "Inspecting spawned process failed", "pid", handle.PID(), "error", err)

		info = domain.ProcessInfo{ProcessRecord: handle.Record(), Alive: handle.State() == domain.StateRunning}
	}

	response, err := InfoToStruct(&info)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	return response, nil
}

// Close terminates a pid.
func (s *Server) Close(ctx context.Context, pid *wrapperspb.Int64Value) (*emptypb.Empty, error) {
	value := pid.GetValue()
	if value <= 0 || value > math.MaxInt32 {
		return nil, status.Error(codes.InvalidArgument, "pid is out of range")
	}

	if err := s.service.Close(ctx, int(value)); err != nil {
		return nil, toStatus(err)
	}

	return new(emptypb.Empty), nil
}

// Delete removes an instance directory.
func (s *Server) Delete(ctx context.Context, instance *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if instance.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "instance is required")
	}

	if err := s.service.Delete(ctx, instance.GetValue()); err != nil {
		return nil, toStatus(err)
	}

	return new(emptypb.Empty), nil
}

// Console streams console lines and exits of one instance until the client leaves.
func (s *Server) Console(instance *wrapperspb.StringValue, stream grpc.ServerStream) error {
	if s.subscriber == nil {
		return status.Error(codes.Unimplemented, "console streaming is disabled")
	}

	name := instance.GetValue()
	if name == "" {
		return status.Error(codes.InvalidArgument, "instance is required")
	}

	feed, unsubscribe := s.subscriber.Subscribe()
	defer unsubscribe()

	ctx := stream.Context()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-feed:
			if !ok {
				return nil
			}

			if event.Instance != name ||
				(event.Kind != events.KindConsoleLine && event.Kind != events.KindProcessExited) {
				continue
			}

			message, err := EventToStruct(&event)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}

			if err = stream.SendMsg(message); err != nil {
				return err
			}
		}
	}
}

// toStatus maps domain errors to gRPC codes the client maps back.
func toStatus(err error) error {
	switch {
	case errors.Is(err, bundle.ErrProcessNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, bundle.ErrInstanceRunning):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, bundle.ErrProcessSpawnFailed):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// FromStatus maps gRPC codes produced by the server back to domain errors.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	var sentinel error

	switch st.Code() { //nolint:exhaustive // Other codes carry no domain meaning.
	case codes.NotFound:
		sentinel = bundle.ErrProcessNotFound
	case codes.FailedPrecondition:
		sentinel = bundle.ErrInstanceRunning
	case codes.Aborted:
		sentinel = bundle.ErrProcessSpawnFailed
	default:
		return err
	}

	return &remoteError{message: st.Message(), sentinel: sentinel}
}

// remoteError keeps the server message while matching the domain sentinel.
type remoteError struct {
	message  string
	sentinel error
}

func (e *remoteError) Error() string {
	return e.message
}

func (e *remoteError) Unwrap() error {
	return e.sentinel
}
