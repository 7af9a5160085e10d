package launcher

import (
	"context"
	"fmt"

	"github.com/oshokin/bundle-launcher/internal/events"
	"github.com/oshokin/bundle-launcher/internal/logger"
	"github.com/oshokin/bundle-launcher/internal/service/common"
)

// Processes prints the processes supervised by the daemon.
func Processes(ctx context.Context, opts *Options) error {
	return withClient(ctx, opts, "ps", func(s *session, client *common.Client) error {
		infos, err := client.ListProcesses(s.ctx)
		if err != nil {
			return fmt.Errorf("list processes: %w", err)
		}

		return s.print(infos)
	})
}

// Close terminates a supervised process and waits for its exit.
func Close(ctx context.Context, opts *Options, pid int) error {
	return withClient(ctx, opts, "close", func(s *session, client *common.Client) error {
		if err := client.ClosePid(s.ctx, pid); err != nil {
			return fmt.Errorf("close pid %d: %w", pid, err)
		}

		logger.InfoKV(s.ctx, "Process closed", "pid", pid)

		return nil
	})
}

// Delete removes an instance directory unless one of its processes is running.
func Delete(ctx context.Context, opts *Options, instance string) error {
	return withClient(ctx, opts, "delete", func(s *session, client *common.Client) error {
		if err := client.Delete(s.ctx, instance); err != nil {
			return fmt.Errorf("delete %s: %w", instance, err)
		}

		logger.InfoKV(s.ctx, "Instance deleted", "instance", instance)

		return nil
	})
}

// Logs follows the console of an instance until its last process exits or ctx ends.
func Logs(ctx context.Context, opts *Options, instance string) error {
	return withClient(ctx, opts, "logs", func(s *session, client *common.Client) error {
		pids, err := client.GetPids(s.ctx, instance)
		if err != nil {
			return fmt.Errorf("get pids of %s: %w", instance, err)
		}

		if len(pids) == 0 {
			logger.InfoKV(s.ctx, "Instance is not running", "instance", instance)

			return nil
		}

		live := make(map[int]struct{}, len(pids))
		for _, pid := range pids {
			live[pid] = struct{}{}
		}

		return client.Console(s.ctx, instance, func(event events.Event) bool {
			switch event.Kind {
			case events.KindConsoleLine:
				_, _ = fmt.Fprintln(s.output, event.Line)
			case events.KindProcessExited:
				delete(live, event.PID)
				logger.InfoKV(s.ctx, "Process exited", "pid", event.PID, "exit_code", event.ExitCode)
			default:
			}

			return len(live) > 0
		})
	})
}

// withClient opens a session, dials the daemon and runs call.
func withClient(ctx context.Context, opts *Options, name string, call func(*session, *common.Client) error) error {
	s, err := open(ctx, opts, name)
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

	return call(s, client)
}
