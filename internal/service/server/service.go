package server

import (
	"context"
	"fmt"

	"github.com/oshokin/bundle-launcher/internal/app"
	"github.com/oshokin/bundle-launcher/internal/logger"
	"github.com/oshokin/bundle-launcher/internal/supervisor"
)

// service adapts the application to the transport and logs every control call.
// It is unexported to keep the transport decoupled from the implementation.
type service struct {
	// app owns the process registry.
	app *app.App
}

// newService creates a service backed by application.
func newService(application *app.App) *service {
	return &service{app: application}
}

// startup removes staging directories left behind by a previous run and
// reports runtime processes nobody supervises.
func (s *service) startup(ctx context.Context) {
	if err := s.app.SweepNatives(ctx); err != nil {
		logger.WarnKV(ctx, "Sweeping native staging directories failed", "error", err)
	}

	orphans, err := s.app.Orphans()
	if err != nil {
		logger.DebugKV(ctx, "Orphan detection failed", "error", err)

		return
	}

	if len(orphans) > 0 {
		logger.WarnKV(ctx, "Unsupervised runtime processes found", "pids", orphans)
	}
}

// Processes lists live processes.
func (s *service) Processes() ([]supervisor.ProcessInfo, error) {
	return s.app.Processes()
}

// GetPids lists the live pids of name.
func (s *service) GetPids(name string) []int {
	return s.app.GetPids(name)
}

// Spawn starts a built command.
func (s *service) Spawn(ctx context.Context, spec *supervisor.Spec) (*supervisor.Handle, error) {
	ctx = logger.WithKV(ctx, "instance", spec.Instance)

	handle, err := s.app.Spawn(ctx, spec)
	if err != nil {
		logger.ErrorKV(ctx, "Spawn failed", "path", spec.Path, "error", err)

		return nil, fmt.Errorf("spawn: %w", err)
	}

	logger.InfoKV(ctx, "Spawned on request", "pid", handle.PID(), "user", spec.User)

	return handle, nil
}

// Close terminates pid.
func (s *service) Close(ctx context.Context, pid int) error {
	if err := s.app.Close(ctx, pid); err != nil {
		logger.WarnKV(ctx, "Close refused", "pid", pid, "error", err)

		return err
	}

	logger.InfoKV(ctx, "Process closed on request", "pid", pid)

	return nil
}

// Delete removes the instance directory of name.
func (s *service) Delete(ctx context.Context, name string) error {
	if err := s.app.Delete(ctx, name); err != nil {
		logger.WarnKV(ctx, "Delete refused", "instance", name, "error", err)

		return err
	}

	return nil
}
