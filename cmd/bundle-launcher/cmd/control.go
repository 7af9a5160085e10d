package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/oshokin/bundle-launcher/internal/service/launcher"
)

var (
	psCmd = &cobra.Command{
		Use:   "ps",
		Short: "List processes supervised by the daemon.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			return launcher.Processes(ctx, common)
		},
	}

	closeCmd = &cobra.Command{
		Use:   "close [pid]",
		Short: "Close a supervised process and wait for its exit.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			pid, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid pid %q: %w", args[0], err)
			}

			return launcher.Close(ctx, common, pid)
		},
	}

	deleteCmd = &cobra.Command{
		Use:   "delete [instance]",
		Short: "Delete an instance directory unless it is running.",
		Long: `Deletes the per-instance directory. The shared library and asset store is kept.
The daemon refuses while any process of the instance is running.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			return launcher.Delete(ctx, common, args[0])
		},
	}

	logsCmd = &cobra.Command{
		Use:   "logs [instance]",
		Short: "Follow the console of a running instance.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			return launcher.Logs(ctx, common, args[0])
		},
	}
)
