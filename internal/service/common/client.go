//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	api "github.com/oshokin/bundle-launcher/internal/api/grpc/supervisor"
	"github.com/oshokin/bundle-launcher/internal/config"
	"github.com/oshokin/bundle-launcher/internal/events"
	"github.com/oshokin/bundle-launcher/internal/supervisor"
)

// Client wraps the supervisor gRPC service with convenience helpers.
type Client struct {
	// conn is the underlying gRPC connection to the supervisor daemon.
	conn *grpc.ClientConn

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

var (
	// errAddressRequired is returned when a required address value is missing.
	errAddressRequired = errors.New("address must be provided")
	// errSpecRequired is returned when Spawn gets no spec.
	errSpecRequired = errors.New("spawn spec must be provided")
	// errNotConnected is returned by calls on a client that was never dialed.
	errNotConnected = errors.New("client is not connected")
)

// Dial creates a client of the supervisor daemon.
// Note: this uses insecure transport credentials; the daemon listens on
// loopback by default.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	// Use the non-context NewClient API recommended by grpc-go
	// (DialContext is deprecated as of grpc-go v1.60+).
	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial supervisor: %w", err)
	}

	client := &Client{
		conn:        conn,
		callTimeout: config.DefaultCallTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// StartedAt returns when the daemon started; it fails when the daemon is unreachable.
func (c *Client) StartedAt(ctx context.Context) (time.Time, error) {
	response := new(timestamppb.Timestamp)
	if err := c.invoke(ctx, api.MethodStartedAt, new(emptypb.Empty), response); err != nil {
		return time.Time{}, fmt.Errorf("reach supervisor: %w", err)
	}

	return response.AsTime(), nil
}

// ListProcesses returns every process the daemon supervises.
func (c *Client) ListProcesses(ctx context.Context) ([]supervisor.ProcessInfo, error) {
	response := new(structpb.Struct)
	if err := c.invoke(ctx, api.MethodListProcesses, new(emptypb.Empty), response); err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	values := response.GetFields()[api.FieldProcesses].GetListValue().GetValues()
	infos := make([]supervisor.ProcessInfo, 0, len(values))

	for _, value := range values {
		info, err := api.InfoFromStruct(value.GetStructValue())
		if err != nil {
			return nil, fmt.Errorf("decode process: %w", err)
		}

		infos = append(infos, *info)
	}

	return infos, nil
}

// GetPids returns the live pids of instance.
func (c *Client) GetPids(ctx context.Context, instance string) ([]int, error) {
	response := new(structpb.ListValue)
	if err := c.invoke(ctx, api.MethodGetPids, wrapperspb.String(instance), response); err != nil {
		return nil, fmt.Errorf("get pids of %s: %w", instance, err)
	}

	pids := make([]int, 0, len(response.GetValues()))
	for _, value := range response.GetValues() {
		pids = append(pids, int(value.GetNumberValue()))
	}

	return pids, nil
}

// Spawn asks the daemon to start a built command.
func (c *Client) Spawn(ctx context.Context, spec *supervisor.Spec) (*supervisor.ProcessInfo, error) {
	if spec == nil {
		return nil, errSpecRequired
	}

	request, err := api.SpecToStruct(spec)
	if err != nil {
		return nil, fmt.Errorf("encode spawn spec: %w", err)
	}

	response := new(structpb.Struct)
	if err = c.invoke(ctx, api.MethodSpawn, request, response); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", spec.Instance, err)
	}

	return api.InfoFromStruct(response)
}

// ClosePid terminates pid and waits for its exit. The call timeout does not
// apply because the daemon waits for the grace period.
func (c *Client) ClosePid(ctx context.Context, pid int) error {
	if err := c.invokeUntimed(ctx, api.MethodClose, wrapperspb.Int64(int64(pid)), new(emptypb.Empty)); err != nil {
		return fmt.Errorf("close pid %d: %w", pid, err)
	}

	return nil
}

// Delete removes the instance directory unless a process of it is live.
func (c *Client) Delete(ctx context.Context, instance string) error {
	if err := c.invoke(ctx, api.MethodDelete, wrapperspb.String(instance), new(emptypb.Empty)); err != nil {
		return fmt.Errorf("delete %s: %w", instance, err)
	}

	return nil
}

// Console calls handle for every console line and exit of instance until ctx
// ends or handle returns false.
func (c *Client) Console(ctx context.Context, instance string, handle func(events.Event) bool) error {
	if c == nil || c.conn == nil {
		return errNotConnected
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.conn.NewStream(ctx, api.ConsoleStreamDesc, api.FullMethod(api.MethodConsole))
	if err != nil {
		return fmt.Errorf("open console of %s: %w", instance, api.FromStatus(err))
	}

	if err = stream.SendMsg(wrapperspb.String(instance)); err != nil {
		return fmt.Errorf("open console of %s: %w", instance, api.FromStatus(err))
	}

	if err = stream.CloseSend(); err != nil {
		return fmt.Errorf("open console of %s: %w", instance, err)
	}

	for {
		message := new(structpb.Struct)

		err = stream.RecvMsg(message)
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			if ctx.Err() != nil {
				return nil //nolint:nilerr // Leaving the stream is not an error.
			}

			return fmt.Errorf("read console of %s: %w", instance, api.FromStatus(err))
		}

		if !handle(api.EventFromStruct(message)) {
			return nil
		}
	}
}

func (c *Client) invoke(ctx context.Context, method string, request, response any) error {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	return c.invokeUntimed(callCtx, method, request, response)
}

func (c *Client) invokeUntimed(ctx context.Context, method string, request, response any) error {
	if c == nil || c.conn == nil {
		return errNotConnected
	}

	return api.FromStatus(c.conn.Invoke(ctx, api.FullMethod(method), request, response))
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
