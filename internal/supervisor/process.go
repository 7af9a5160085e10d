package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
	"github.com/oshokin/bundle-launcher/internal/events"
	"github.com/oshokin/bundle-launcher/internal/logger"
)

// State is the lifecycle state of a supervised process.
type State string

const (
	StateRunning State = "running"
	StateExited  State = "exited"
	StateClosing State = "closing"
	StateClosed  State = "closed"
)

// maxLineSize bounds a single console line. A longer line stops line parsing
// of its stream and the rest of the stream is discarded.
const maxLineSize = 1 << 20

// Exit describes how a process ended.
type Exit struct {
	// Code is -1 when the process was terminated without an exit status.
	Code int
	// Closed reports that the exit followed a Close request.
	Closed bool
	At     time.Time
}

// Handle follows a spawned process.
type Handle struct {
	record bundle.ProcessRecord
	done   chan struct{}

	mu    sync.Mutex
	state State
	exit  Exit
}

// PID returns the process identifier.
func (h *Handle) PID() int {
	return h.record.PID
}

// Record returns the record the process was registered with.
func (h *Handle) Record() bundle.ProcessRecord {
	return h.record
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.state
}

// Done is closed once the exit is observed and the record is removed.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the process exits or ctx ends.
func (h *Handle) Wait(ctx context.Context) (Exit, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()

		return h.exit, nil
	case <-ctx.Done():
		return Exit{}, ctx.Err()
	}
}

type process struct {
	cmd    *exec.Cmd
	record bundle.ProcessRecord
	handle *Handle

	nativesDir string
	// sinkMu serializes writes of both streams into sink.
	sinkMu sync.Mutex
	sink   io.WriteCloser
}

func newProcess(cmd *exec.Cmd, spec *Spec, sink io.WriteCloser, startedAt time.Time) *process {
	record := bundle.ProcessRecord{
		PID:       cmd.Process.Pid,
		Instance:  spec.Instance,
		Version:   spec.Version,
		User:      spec.User,
		WorkDir:   spec.Dir,
		StartedAt: startedAt,
	}

	return &process{
		cmd:    cmd,
		record: record,
		handle: &Handle{
			record: record,
			done:   make(chan struct{}),
			state:  StateRunning,
		},
		nativesDir: spec.NativesDir,
		sink:       sink,
	}
}

func (p *process) markClosing() {
	p.handle.mu.Lock()
	defer p.handle.mu.Unlock()

	if p.handle.state == StateRunning {
		p.handle.state = StateClosing
	}
}

// finish stores the exit and returns it.
func (p *process) finish(code int, at time.Time) Exit {
	p.handle.mu.Lock()
	defer p.handle.mu.Unlock()

	exit := Exit{Code: code, At: at}

	if p.handle.state == StateClosing {
		exit.Closed = true
		p.handle.state = StateClosed
	} else {
		p.handle.state = StateExited
	}

	p.handle.exit = exit

	return exit
}

// watch drains both streams, waits for the exit and tears the record down.
// The record is removed before the exit event is published.
func (s *Supervisor) watch(ctx context.Context, p *process, stdout, stderr io.Reader) {
	var readers sync.WaitGroup

	readers.Add(2) //nolint:mnd // One reader per stream.

	go s.pump(ctx, p, events.StreamStdout, stdout, &readers)
	go s.pump(ctx, p, events.StreamStderr, stderr, &readers)

	// Wait must not run before the pipes are drained.
	readers.Wait()

	code := 0

	if err := p.cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			logger.WarnKV(ctx, "Waiting for process failed", "error", err)
		}
	}

	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}

	exit := p.finish(code, s.clock())
	running := s.unregister(p)

	if p.sink != nil {
		if err := p.sink.Close(); err != nil {
			logger.DebugKV(ctx, "Closing console log failed", "error", err)
		}
	}

	s.collector.ProcessExited(p.record.Instance, exit.Code, exit.Closed)
	s.collector.ProcessesRunning(running)

	logger.InfoKV(ctx, "Process exited",
		"instance", p.record.Instance,
		"exit_code", exit.Code,
		"closed", exit.Closed,
		"uptime", exit.At.Sub(p.record.StartedAt).Round(time.Millisecond),
	)

	s.publisher.Publish(events.Event{
		Kind:     events.KindProcessExited,
		Time:     exit.At,
		PID:      p.record.PID,
		Instance: p.record.Instance,
		ExitCode: exit.Code,
	})

	if p.nativesDir != "" && s.reclaim != nil {
		if err := s.reclaim(p.nativesDir); err != nil {
			logger.WarnKV(ctx, "Native staging directory was not reclaimed", "dir", p.nativesDir, "error", err)
		}
	}

	close(p.handle.done)
}

// pump publishes every line of one stream.
func (s *Supervisor) pump(
	ctx context.Context,
	p *process,
	stream events.Stream,
	reader io.Reader,
	readers *sync.WaitGroup,
) {
	defer readers.Done()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLineSize)

	for scanner.Scan() {
		line := scanner.Text()

		s.publisher.Publish(events.Event{
			Kind:     events.KindConsoleLine,
			Time:     s.clock(),
			PID:      p.record.PID,
			Instance: p.record.Instance,
			Stream:   stream,
			Line:     line,
		})

		p.writeSink(stream, line)
	}

	if err := scanner.Err(); err != nil {
		logger.DebugKV(ctx, "Console stream ended with an error", "stream", stream, "error", err)

		// Keep draining so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, reader)
	}
}

func (p *process) writeSink(stream events.Stream, line string) {
	if p.sink == nil {
		return
	}

	p.sinkMu.Lock()
	defer p.sinkMu.Unlock()

	_, _ = fmt.Fprintf(p.sink, "[%s] %s\n", stream, line)
}
