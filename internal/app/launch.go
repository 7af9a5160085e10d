package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/oshokin/bundle-launcher/internal/config"
	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
	"github.com/oshokin/bundle-launcher/internal/launch"
	"github.com/oshokin/bundle-launcher/internal/logger"
	"github.com/oshokin/bundle-launcher/internal/repository/instance"
	"github.com/oshokin/bundle-launcher/internal/supervisor"
)

// LaunchRequest describes one launch of an installed instance.
type LaunchRequest struct {
	// Instance is the name the process is registered under.
	Instance   string
	Descriptor *bundle.Descriptor
	Profile    bundle.Profile
	// NativesDir is the staging directory returned by Install.
	NativesDir string
	// RuntimePath overrides the configured runtime executable.
	RuntimePath string
	// Overrides win over computed placeholder values.
	Overrides map[string]string
	// ExtraJVMArgs are appended to the configured extra arguments.
	ExtraJVMArgs []string
	// SkipRuntimeCheck disables the minimum runtime version check.
	SkipRuntimeCheck bool
}

// Command builds the command line of request without starting anything.
func (a *App) Command(ctx context.Context, request *LaunchRequest) (*launch.Command, error) {
	if request.Descriptor == nil {
		return nil, errNoDescriptor
	}

	instanceDir, err := a.layout.Instance(request.Instance)
	if err != nil {
		return nil, err
	}

	if err = os.MkdirAll(instanceDir, config.DefaultDirPermissions); err != nil {
		return nil, fmt.Errorf("create instance directory: %w", err)
	}

	runtimePath := request.RuntimePath
	if runtimePath == "" {
		runtimePath = a.cfg.Runtime.JavaPath
	}

	if !request.SkipRuntimeCheck {
		if err = launch.CheckRuntime(ctx, runtimePath, request.Descriptor.MinRuntime); err != nil {
			return nil, err
		}
	}

	extra := make([]string, 0, len(a.cfg.Runtime.ExtraJVMArgs)+len(request.ExtraJVMArgs))
	extra = append(extra, a.cfg.Runtime.ExtraJVMArgs...)
	extra = append(extra, request.ExtraJVMArgs...)

	return a.builder.Build(&launch.Request{
		Descriptor:       request.Descriptor,
		Profile:          request.Profile,
		RuntimePath:      runtimePath,
		GameDirectory:    instanceDir,
		NativesDirectory: request.NativesDir,
		Overrides:        request.Overrides,
		ExtraJVMArgs:     extra,
		MinMemoryMB:      a.cfg.Runtime.MinMemoryMB,
		MaxMemoryMB:      a.cfg.Runtime.MaxMemoryMB,
	})
}

// Launch builds the command line of request and spawns it under the supervisor.
// The natives staging directory is reclaimed once the process exits.
func (a *App) Launch(ctx context.Context, request *LaunchRequest) (*supervisor.Handle, error) {
	ctx = logger.WithKV(ctx, "instance", request.Instance)

	command, err := a.Command(ctx, request)
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Launching", "command", describe(command))

	handle, err := a.Spawn(ctx, SpawnSpec(request, command))
	if err != nil {
		return nil, err
	}

	return handle, nil
}

// Spawn starts an already built command under the supervisor.
func (a *App) Spawn(ctx context.Context, spec *supervisor.Spec) (*supervisor.Handle, error) {
	handle, err := a.supervisor.Spawn(ctx, spec)
	if err != nil {
		return nil, err
	}

	err = a.instances.Touch(ctx, spec.Instance, a.clock())
	if err != nil && !errors.Is(err, instance.ErrNotFound) {
		logger.WarnKV(ctx, "Launch time was not recorded", "error", err)
	}

	return handle, nil
}

// SpawnSpec turns a built command into a supervisor spec.
func SpawnSpec(request *LaunchRequest, command *launch.Command) *supervisor.Spec {
	return &supervisor.Spec{
		Instance:   request.Instance,
		Version:    request.Descriptor.ID,
		User:       request.Profile.Name,
		Path:       command.Path,
		Args:       command.Args,
		Dir:        command.Dir,
		NativesDir: request.NativesDir,
	}
}

// describe renders a command line for logs without leaking tokens in arguments.
func describe(command *launch.Command) string {
	return fmt.Sprintf("%s (%d arguments) in %s", command.Path, len(command.Args), command.Dir)
}
