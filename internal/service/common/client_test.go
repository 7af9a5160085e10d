//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	api "github.com/oshokin/bundle-launcher/internal/api/grpc/supervisor"
	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
	"github.com/oshokin/bundle-launcher/internal/events"
	"github.com/oshokin/bundle-launcher/internal/supervisor"
)

// fakeService answers supervisor calls from memory.
type fakeService struct {
	infos   []supervisor.ProcessInfo
	spawned *supervisor.Spec
}

func (f *fakeService) Processes() ([]supervisor.ProcessInfo, error) {
	return f.infos, nil
}

func (f *fakeService) GetPids(name string) []int {
	var pids []int

	for _, info := range f.infos {
		if info.Instance == name {
			pids = append(pids, info.PID)
		}
	}

	return pids
}

func (f *fakeService) Spawn(context.Context, *supervisor.Spec) (*supervisor.Handle, error) {
	return nil, fmt.Errorf("fake: %w", bundle.ErrProcessSpawnFailed)
}

func (f *fakeService) Close(_ context.Context, pid int) error {
	for _, info := range f.infos {
		if info.PID == pid {
			return nil
		}
	}

	return fmt.Errorf("pid %d: %w", pid, bundle.ErrProcessNotFound)
}

func (f *fakeService) Delete(_ context.Context, name string) error {
	if len(f.GetPids(name)) > 0 {
		return fmt.Errorf("%s: %w", name, bundle.ErrInstanceRunning)
	}

	return nil
}

// startServer serves service on a loopback port and returns a connected client.
func startServer(t *testing.T, service api.Service, bus *events.Bus) *Client {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var subscriber api.Subscriber
	if bus != nil {
		subscriber = bus
	}

	server := grpc.NewServer()
	api.RegisterSupervisorServer(server, api.NewServer(service, subscriber))

	go func() {
		_ = server.Serve(listener) //nolint:errcheck // Stopped by cleanup.
	}()

	t.Cleanup(server.Stop)

	client, err := Dial(context.Background(), listener.Addr().String(), WithCallTimeout(3*time.Second))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

// TestDial_ValidatesAddress verifies that Dial rejects empty addresses.
func TestDial_ValidatesAddress(t *testing.T) {
	t.Parallel()

	c, err := Dial(context.Background(), "")
	require.Error(t, err)
	require.Nil(t, c)
}

// TestClient_callContext checks timeout vs cancel-only behavior of callContext.
func TestClient_callContext(t *testing.T) {
	t.Parallel()

	c := &Client{
		callTimeout: 0,
	}

	ctx, cancel := c.callContext(context.Background())
	cancel()

	require.NotNil(t, ctx)

	c.callTimeout = 10 * time.Millisecond

	ctx, cancel = c.callContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 30*time.Millisecond)
}

// TestClient_RequiresConnectionAndSpec rejects calls that cannot be sent.
func TestClient_RequiresConnectionAndSpec(t *testing.T) {
	t.Parallel()

	c := new(Client)

	_, err := c.Spawn(context.Background(), nil)
	require.Error(t, err)

	_, err = c.GetPids(context.Background(), "survival")
	require.ErrorIs(t, err, errNotConnected)
}

// TestClient_Roundtrip exercises every call against a real gRPC server.
func TestClient_Roundtrip(t *testing.T) {
	t.Parallel()

	startedAt := time.Date(2024, 8, 8, 12, 0, 0, 0, time.UTC)
	service := &fakeService{
		infos: []supervisor.ProcessInfo{
			{
				ProcessRecord: bundle.ProcessRecord{
					PID:       4242,
					Instance:  "survival",
					Version:   "1.21.1",
					User:      "Steve",
					WorkDir:   "/data/instances/survival",
					StartedAt: startedAt,
				},
				Executable: "java",
				Alive:      true,
			},
		},
	}

	client := startServer(t, service, nil)
	ctx := context.Background()

	up, err := client.StartedAt(ctx)
	require.NoError(t, err)
	require.False(t, up.IsZero())

	infos, err := client.ListProcesses(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, service.infos[0].ProcessRecord.PID, infos[0].PID)
	require.True(t, startedAt.Equal(infos[0].StartedAt))
	require.Equal(t, "java", infos[0].Executable)
	require.True(t, infos[0].Alive)

	pids, err := client.GetPids(ctx, "survival")
	require.NoError(t, err)
	require.Equal(t, []int{4242}, pids)

	require.NoError(t, client.ClosePid(ctx, 4242))
	require.ErrorIs(t, client.ClosePid(ctx, 1), bundle.ErrProcessNotFound)

	require.ErrorIs(t, client.Delete(ctx, "survival"), bundle.ErrInstanceRunning)
	require.NoError(t, client.Delete(ctx, "creative"))

	_, err = client.Spawn(ctx, &supervisor.Spec{Instance: "survival", Path: "java", Args: []string{"-version"}})
	require.ErrorIs(t, err, bundle.ErrProcessSpawnFailed)
}

// TestClient_Console streams the lines of one instance.
func TestClient_Console(t *testing.T) {
	t.Parallel()

	bus := events.NewBus(16)
	client := startServer(t, new(fakeService), bus)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	go func() {
		// Publish until the stream subscribes; the bus drops events nobody listens to.
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				bus.Publish(events.Event{Kind: events.KindConsoleLine, Instance: "creative", Line: "skip"})
				bus.Publish(events.Event{
					Kind:     events.KindConsoleLine,
					Instance: "survival",
					PID:      7,
					Stream:   events.StreamStdout,
					Line:     "Setting user: Steve",
				})
			}
		}
	}()

	var received events.Event

	err := client.Console(ctx, "survival", func(event events.Event) bool {
		received = event

		return false
	})
	require.NoError(t, err)
	require.Equal(t, events.KindConsoleLine, received.Kind)
	require.Equal(t, "Setting user: Steve", received.Line)
	require.Equal(t, events.StreamStdout, received.Stream)
	require.Equal(t, 7, received.PID)
}
