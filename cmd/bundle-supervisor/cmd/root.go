package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/bundle-launcher/internal/service/server"
	"github.com/oshokin/bundle-launcher/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// metricsAddress overrides where Prometheus metrics are served.
	metricsAddress string

	// rootCmd represents the base command for running the supervisor daemon.
	rootCmd = &cobra.Command{
		Use:   "bundle-supervisor [listen-address]",
		Short: "Run the process supervisor daemon.",
		Long: `Starts the gRPC daemon that owns the registry of launched client processes.

The daemon spawns processes on behalf of bundle-launcher --detach, streams their
console, closes them on request and refuses to delete instance directories
while one of their processes is running.
Listen address can be provided as argument to override config (e.g., 127.0.0.1:9090).
Prometheus metrics are served on the configured metrics address; pass
--metrics-address=- to disable them.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &server.Options{
				ConfigPath:     configPath,
				ListenAddress:  listenAddress,
				MetricsAddress: metricsAddress,
			}

			return server.Run(ctx, options)
		},
	}
)

// Execute runs the bundle-supervisor CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file (default bundle-launcher.yaml)")
	rootCmd.Flags().StringVarP(&metricsAddress, "metrics-address", "m", "", "override the metrics listen address, - disables metrics")
}
