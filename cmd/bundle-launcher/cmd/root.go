package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/bundle-launcher/internal/service/launcher"
	"github.com/oshokin/bundle-launcher/internal/version"
)

var (
	// common holds flags shared by every subcommand.
	common = new(launcher.Options)

	// rootCmd represents the base command of the launcher.
	rootCmd = &cobra.Command{
		Use:   "bundle-launcher",
		Short: "Resolve, install and launch versioned client bundles.",
		Long: `Resolves a base version plus an optional overlay into one descriptor,
downloads and verifies every artifact into a shared store, and launches the
client with the computed class path and arguments.

Detached launches and the process commands (ps, close, delete, logs) need a
running bundle-supervisor daemon.`,
		SilenceUsage: true,
	}
)

// Execute runs the bundle-launcher CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext is canceled on SIGTERM or SIGINT.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

// bundleFlags registers the bundle selection flags on command.
func bundleFlags(command *cobra.Command, options *launcher.BundleOptions) {
	flags := command.Flags()

	flags.StringVarP(&options.Instance, "instance", "i", "", "instance name (default: the version)")
	flags.StringVarP(&options.Source, "source", "s", "", "base metadata source (default vanilla)")
	flags.StringVarP(&options.Overlay, "overlay", "o", "", "overlay reference such as loader-0.16.9")
}

// bundleArgs fills the version from the optional positional argument.
func bundleArgs(options *launcher.BundleOptions, args []string) {
	options.Options = *common

	if len(args) > 0 {
		options.Version = args[0]
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&common.ConfigPath, "config", "c", "", "path to configuration file (default bundle-launcher.yaml)")

	rootCmd.AddCommand(resolveCmd, installCmd, sizeCmd, launchCmd, psCmd, closeCmd, deleteCmd, logsCmd)
}
