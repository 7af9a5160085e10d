package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"sync"
	"time"

	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
	"github.com/oshokin/bundle-launcher/internal/events"
	"github.com/oshokin/bundle-launcher/internal/layout"
	"github.com/oshokin/bundle-launcher/internal/logger"
	"github.com/oshokin/bundle-launcher/internal/metrics"
)

// DefaultCloseGrace is how long Close waits after the termination request before killing.
const DefaultCloseGrace = 10 * time.Second

var errEmptyCommand = errors.New("command path is empty")

// Spec describes a process to spawn.
type Spec struct {
	// Instance is the logical name the process is registered under.
	Instance string
	// Version and User are recorded for listings.
	Version string
	User    string
	// Path, Args and Dir form the command line and its working directory.
	Path string
	Args []string
	Dir  string
	// Env is appended to the supervisor's environment.
	Env []string
	// NativesDir is reclaimed after the process exits when a reclaimer is configured.
	NativesDir string
}

// SinkFactory opens the console log of a spawned process; nil sinks are allowed.
type SinkFactory func(spec *Spec) (io.WriteCloser, error)

// Reclaimer removes a native staging directory.
type Reclaimer func(dir string) error

// Supervisor owns the process registry.
type Supervisor struct {
	mu     sync.Mutex
	byPID  map[int]*process
	byName map[string]map[int]*process

	layout     *layout.Layout
	publisher  events.Publisher
	collector  metrics.Collector
	sinks      SinkFactory
	reclaim    Reclaimer
	closeGrace time.Duration
	clock      func() time.Time
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithPublisher streams lifecycle and console events to publisher.
func WithPublisher(publisher events.Publisher) Option {
	return func(s *Supervisor) {
		s.publisher = events.OrNop(publisher)
	}
}

// WithMetrics reports process lifecycle to collector.
func WithMetrics(collector metrics.Collector) Option {
	return func(s *Supervisor) {
		s.collector = metrics.OrNoop(collector)
	}
}

// WithConsoleSinks also writes console lines to the sinks produced by factory.
func WithConsoleSinks(factory SinkFactory) Option {
	return func(s *Supervisor) {
		s.sinks = factory
	}
}

// WithReclaimer removes native staging directories after exit.
func WithReclaimer(reclaim Reclaimer) Option {
	return func(s *Supervisor) {
		s.reclaim = reclaim
	}
}

// WithCloseGrace sets how long Close waits before killing.
func WithCloseGrace(grace time.Duration) Option {
	return func(s *Supervisor) {
		if grace > 0 {
			s.closeGrace = grace
		}
	}
}

// New creates a supervisor whose Delete removes instance directories of storeLayout.
func New(storeLayout *layout.Layout, opts ...Option) *Supervisor {
	s := &Supervisor{
		byPID:      make(map[int]*process),
		byName:     make(map[string]map[int]*process),
		layout:     storeLayout,
		publisher:  events.Nop{},
		collector:  metrics.NewNoop(),
		closeGrace: DefaultCloseGrace,
		clock:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Spawn starts the process and registers it. The process is registered
// under the same lock that starts it, so no caller observes a started but
// unregistered process. A failed start registers nothing.
func (s *Supervisor) Spawn(ctx context.Context, spec *Spec) (*Handle, error) {
	if spec.Path == "" {
		return nil, fmt.Errorf("%s: %w: %w", spec.Instance, bundle.ErrProcessSpawnFailed, errEmptyCommand)
	}

	cmd := exec.Command(spec.Path, spec.Args...) //nolint:gosec // The command line is built by the launcher.
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.SysProcAttr = sysProcAttr()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", spec.Instance, bundle.ErrProcessSpawnFailed, err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", spec.Instance, bundle.ErrProcessSpawnFailed, err)
	}

	var sink io.WriteCloser

	if s.sinks != nil {
		if sink, err = s.sinks(spec); err != nil {
			logger.WarnKV(ctx, "Console log is unavailable", "instance", spec.Instance, "error", err)
		}
	}

	s.mu.Lock()

	if err = cmd.Start(); err != nil {
		s.mu.Unlock()

		if sink != nil {
			_ = sink.Close()
		}

		return nil, fmt.Errorf("start %s for %s: %w: %w", spec.Path, spec.Instance, bundle.ErrProcessSpawnFailed, err)
	}

	p := newProcess(cmd, spec, sink, s.clock())
	s.register(p)
	running := len(s.byPID)

	s.mu.Unlock()

	s.collector.ProcessStarted(spec.Instance)
	s.collector.ProcessesRunning(running)
	s.publisher.Publish(events.Event{
		Kind:     events.KindProcessLaunched,
		Time:     p.record.StartedAt,
		PID:      p.record.PID,
		Instance: spec.Instance,
		Resource: spec.Path,
	})

	logger.InfoKV(ctx, "Process started", "instance", spec.Instance, "pid", p.record.PID)

	go s.watch(logger.WithKV(context.WithoutCancel(ctx), "pid", p.record.PID), p, stdout, stderr)

	return p.handle, nil
}

// GetPid returns the most recently started live pid of name.
func (s *Supervisor) GetPid(name string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *process

	for _, p := range s.byName[name] {
		if latest == nil || p.record.StartedAt.After(latest.record.StartedAt) ||
			(p.record.StartedAt.Equal(latest.record.StartedAt) && p.record.PID > latest.record.PID) {
			latest = p
		}
	}

	if latest == nil {
		return 0, false
	}

	return latest.record.PID, true
}

// GetPids returns every live pid of name in ascending order.
func (s *Supervisor) GetPids(name string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	pids := make([]int, 0, len(s.byName[name]))
	for pid := range s.byName[name] {
		pids = append(pids, pid)
	}

	slices.Sort(pids)

	return pids
}

// Records returns a copy of every live record ordered by pid.
func (s *Supervisor) Records() []bundle.ProcessRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]bundle.ProcessRecord, 0, len(s.byPID))
	for _, p := range s.byPID {
		records = append(records, p.record)
	}

	slices.SortFunc(records, func(left, right bundle.ProcessRecord) int {
		return left.PID - right.PID
	})

	return records
}

// NativesDirs returns the staging directories of live processes.
func (s *Supervisor) NativesDirs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirs := make([]string, 0, len(s.byPID))

	for _, p := range s.byPID {
		if p.nativesDir != "" {
			dirs = append(dirs, p.nativesDir)
		}
	}

	return dirs
}

// Close asks the process to terminate and waits until its exit is observed,
// killing it once the grace period passes. Unknown pids fail with ErrProcessNotFound.
func (s *Supervisor) Close(ctx context.Context, pid int) error {
	s.mu.Lock()

	p, ok := s.byPID[pid]
	if ok {
		p.markClosing()
	}

	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("pid %d: %w", pid, bundle.ErrProcessNotFound)
	}

	logger.InfoKV(ctx, "Closing process", "instance", p.record.Instance, "pid", pid)

	if err := terminate(p.cmd.Process); err != nil {
		logger.DebugKV(ctx, "Termination request failed", "pid", pid, "error", err)
	}

	grace := time.NewTimer(s.closeGrace)
	defer grace.Stop()

	select {
	case <-p.handle.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-grace.C:
	}

	logger.WarnKV(ctx, "Process ignored the termination request, killing", "pid", pid)

	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}

	select {
	case <-p.handle.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseAll closes every live process and returns the first error.
func (s *Supervisor) CloseAll(ctx context.Context) error {
	var firstErr error

	for _, record := range s.Records() {
		err := s.Close(ctx, record.PID)
		if err != nil && !errors.Is(err, bundle.ErrProcessNotFound) && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// Delete removes the instance directory of name. It fails with
// ErrInstanceRunning, touching nothing, while any process of name is live.
// The registry stays locked during removal, so no process of name can start meanwhile.
func (s *Supervisor) Delete(ctx context.Context, name string) error {
	dir, err := s.layout.Instance(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if live := len(s.byName[name]); live > 0 {
		return fmt.Errorf("instance %s has %d live processes: %w", name, live, bundle.ErrInstanceRunning)
	}

	if err = os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete instance %s: %w", name, err)
	}

	logger.InfoKV(ctx, "Instance deleted", "instance", name, "dir", dir)

	return nil
}

// register must be called with s.mu held.
func (s *Supervisor) register(p *process) {
	s.byPID[p.record.PID] = p

	named, ok := s.byName[p.record.Instance]
	if !ok {
		named = make(map[int]*process)
		s.byName[p.record.Instance] = named
	}

	named[p.record.PID] = p
}

// unregister removes p and returns the number of live records left.
func (s *Supervisor) unregister(p *process) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.byPID, p.record.PID)

	if named, ok := s.byName[p.record.Instance]; ok {
		delete(named, p.record.PID)

		if len(named) == 0 {
			delete(s.byName, p.record.Instance)
		}
	}

	return len(s.byPID)
}
