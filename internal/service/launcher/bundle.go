package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/oshokin/bundle-launcher/internal/app"
	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
	"github.com/oshokin/bundle-launcher/internal/events"
	"github.com/oshokin/bundle-launcher/internal/logger"
	"github.com/oshokin/bundle-launcher/internal/service/common"
	"github.com/oshokin/bundle-launcher/internal/source/vanilla"
	"github.com/oshokin/bundle-launcher/internal/supervisor"
)

// ResolveOptions configure the resolve subcommand.
type ResolveOptions struct {
	BundleOptions

	// List prints the versions known to Source instead of a descriptor.
	List bool
}

// LaunchOptions configure the launch subcommand.
type LaunchOptions struct {
	BundleOptions

	// User is the offline player name; defaults to the operating system user.
	User string
	// RuntimePath overrides the configured runtime executable.
	RuntimePath string
	// ExtraJVMArgs are appended to the configured ones.
	ExtraJVMArgs []string
	// SkipRuntimeCheck disables the minimum runtime version check.
	SkipRuntimeCheck bool
	// Detach hands the process to the supervisor daemon instead of waiting for it.
	Detach bool
}

// Resolve prints the merged descriptor, or the version list with List set.
func Resolve(ctx context.Context, opts *ResolveOptions) error {
	s, err := open(ctx, &opts.Options, "resolve")
	if err != nil {
		return err
	}

	application, err := app.New(s.cfg)
	if err != nil {
		return err
	}

	if opts.List {
		source := opts.Source
		if source == "" {
			source = vanilla.Name
		}

		versions, err := application.Versions(s.ctx, source, opts.Version)
		if err != nil {
			return fmt.Errorf("list versions: %w", err)
		}

		return s.print(versions)
	}

	descriptor, _, err := resolve(s.ctx, application, &opts.BundleOptions)
	if err != nil {
		return err
	}

	return s.print(descriptor)
}

// Install resolves and installs a bundle.
func Install(ctx context.Context, opts *BundleOptions) error {
	s, err := open(ctx, &opts.Options, "install")
	if err != nil {
		return err
	}

	application, err := app.New(s.cfg, app.WithPublisher(progressLogger(s.ctx)))
	if err != nil {
		return err
	}

	descriptor, selected, err := resolve(s.ctx, application, opts)
	if err != nil {
		return err
	}

	result, err := application.Install(s.ctx, selected.instance, descriptor)
	if err != nil {
		return fmt.Errorf("install: %w", err)
	}

	// Nothing runs from this staging directory; the next launch stages again.
	if err = application.ReclaimNatives(result.NativesDir); err != nil {
		logger.WarnKV(s.ctx, "Reclaiming native staging directory failed", "error", err)
	}

	logger.InfoKV(s.ctx, "Installed",
		"instance", selected.instance,
		"downloaded", result.Downloaded,
		"bytes", result.Bytes,
	)

	return nil
}

// Size prints the declared sizes of a bundle per category.
func Size(ctx context.Context, opts *BundleOptions) error {
	s, err := open(ctx, &opts.Options, "size")
	if err != nil {
		return err
	}

	application, err := app.New(s.cfg)
	if err != nil {
		return err
	}

	descriptor, _, err := resolve(s.ctx, application, opts)
	if err != nil {
		return err
	}

	return s.print(application.InstanceSize(descriptor))
}

// Launch resolves, installs and starts a bundle. In the foreground it streams
// the console and closes the process when ctx is canceled; detached it hands
// the process to the supervisor daemon and prints its record.
//
//nolint:funlen // The launch flow reads best in one place.
func Launch(ctx context.Context, opts *LaunchOptions) error {
	s, err := open(ctx, &opts.Options, "launch")
	if err != nil {
		return err
	}

	publisher := events.Multi{progressLogger(s.ctx)}
	if !opts.Detach {
		publisher = append(publisher, consolePrinter(s.output))
	}

	application, err := app.New(s.cfg, app.WithPublisher(publisher))
	if err != nil {
		return err
	}

	descriptor, selected, err := resolve(s.ctx, application, &opts.BundleOptions)
	if err != nil {
		return err
	}

	profile, err := common.DetectProfile(opts.User)
	if err != nil {
		return err
	}

	result, err := application.Install(s.ctx, selected.instance, descriptor)
	if err != nil {
		return fmt.Errorf("install: %w", err)
	}

	request := &app.LaunchRequest{
		Instance:         selected.instance,
		Descriptor:       descriptor,
		Profile:          profile,
		NativesDir:       result.NativesDir,
		RuntimePath:      opts.RuntimePath,
		ExtraJVMArgs:     opts.ExtraJVMArgs,
		SkipRuntimeCheck: opts.SkipRuntimeCheck,
	}

	if opts.Detach {
		err = launchDetached(s, application, request)
	} else {
		var handle *supervisor.Handle

		handle, err = application.Launch(s.ctx, request)
		if err == nil {
			return waitForeground(s.ctx, application, handle)
		}
	}

	// A started process reclaims its staging directory on exit.
	if err != nil {
		if reclaimErr := application.ReclaimNatives(request.NativesDir); reclaimErr != nil {
			logger.WarnKV(s.ctx, "Reclaiming native staging directory failed", "error", reclaimErr)
		}
	}

	return err
}

// launchDetached spawns request through the supervisor daemon.
func launchDetached(s *session, application *app.App, request *app.LaunchRequest) error {
	command, err := application.Command(s.ctx, request)
	if err != nil {
		return err
	}

	client, err := s.dial()
	if err != nil {
		return err
	}

	// Best-effort cleanup.
	defer func() {
		_ = client.Close()
	}()

	info, err := client.Spawn(s.ctx, app.SpawnSpec(request, command))
	if err != nil {
		return fmt.Errorf("spawn through supervisor: %w", err)
	}

	logger.InfoKV(s.ctx, "Launched under supervisor", "pid", info.PID, "address", s.cfg.Supervisor.Address)

	return s.print(info)
}

// waitForeground blocks until handle exits. Canceling ctx closes the process.
func waitForeground(ctx context.Context, application *app.App, handle *supervisor.Handle) error {
	exit, err := handle.Wait(ctx)
	if errors.Is(err, context.Canceled) {
		logger.InfoKV(ctx, "Interrupted, closing process", "pid", handle.PID())

		closeCtx := context.WithoutCancel(ctx)

		if err = application.Close(closeCtx, handle.PID()); err != nil && !errors.Is(err, bundle.ErrProcessNotFound) {
			return fmt.Errorf("close pid %d: %w", handle.PID(), err)
		}

		exit, err = handle.Wait(closeCtx)
	}

	if err != nil {
		return err
	}

	if exit.Code != 0 && !exit.Closed {
		return fmt.Errorf("%w: %d", errExitStatus, exit.Code)
	}

	return nil
}

// resolve resolves the selected bundle and records it for the instance.
func resolve(ctx context.Context, application *app.App, opts *BundleOptions) (*bundle.Descriptor, *target, error) {
	selected, err := opts.target(ctx, application)
	if err != nil {
		return nil, nil, err
	}

	descriptor, err := application.ResolveBundle(ctx, selected.instance, selected.base, selected.overlay)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve %s: %w", selected.base, err)
	}

	return descriptor, selected, nil
}

// progressLogger reports install progress through the logger.
func progressLogger(ctx context.Context) events.Func {
	return func(event events.Event) {
		switch event.Kind {
		case events.KindInstallStarted:
			logger.InfoKV(ctx, "Install started", "files", event.Total)
		case events.KindDownloadProgress:
			logger.DebugKV(ctx, "Download progress",
				"category", event.Category,
				"done", event.Done,
				"total", event.Total,
			)
		case events.KindInstallCompleted:
			logger.InfoKV(ctx, "Install completed", "files", event.Total)
		case events.KindProcessExited:
			logger.InfoKV(ctx, "Process exited", "pid", event.PID, "exit_code", event.ExitCode)
		default:
		}
	}
}

// consolePrinter copies console lines of the child to w.
func consolePrinter(w io.Writer) events.Func {
	return func(event events.Event) {
		if event.Kind == events.KindConsoleLine {
			_, _ = fmt.Fprintln(w, event.Line)
		}
	}
}
