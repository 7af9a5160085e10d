package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/bundle-launcher/internal/service/launcher"
)

var (
	resolveOptions = new(launcher.ResolveOptions)
	installOptions = new(launcher.BundleOptions)
	sizeOptions    = new(launcher.BundleOptions)
	launchOptions  = new(launcher.LaunchOptions)

	resolveCmd = &cobra.Command{
		Use:   "resolve [version]",
		Short: "Print the merged descriptor of a bundle.",
		Long: `Prints the descriptor resolved from the base version and the optional overlay.
With --list prints the versions known to the source instead; for overlay
sources the version argument selects the supported base.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			bundleArgs(&resolveOptions.BundleOptions, args)

			return launcher.Resolve(ctx, resolveOptions)
		},
	}

	installCmd = &cobra.Command{
		Use:   "install [version]",
		Short: "Download and verify everything a bundle needs.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			bundleArgs(installOptions, args)

			return launcher.Install(ctx, installOptions)
		},
	}

	sizeCmd = &cobra.Command{
		Use:   "size [version]",
		Short: "Print the declared download size of a bundle per category.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			bundleArgs(sizeOptions, args)

			return launcher.Size(ctx, sizeOptions)
		},
	}

	launchCmd = &cobra.Command{
		Use:   "launch [version]",
		Short: "Install and start a bundle.",
		Long: `Installs the bundle and starts the client. In the foreground the console is
printed until the client exits; interrupting the launcher closes the client.
With --detach the client is handed over to the bundle-supervisor daemon.
Without a version the queries recorded for --instance are reused.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			bundleArgs(&launchOptions.BundleOptions, args)

			return launcher.Launch(ctx, launchOptions)
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	bundleFlags(resolveCmd, &resolveOptions.BundleOptions)
	resolveCmd.Flags().BoolVarP(&resolveOptions.List, "list", "l", false, "list versions instead of resolving")

	bundleFlags(installCmd, installOptions)
	bundleFlags(sizeCmd, sizeOptions)

	bundleFlags(launchCmd, &launchOptions.BundleOptions)

	flags := launchCmd.Flags()
	flags.StringVarP(&launchOptions.User, "user", "u", "", "offline player name (default: the operating system user)")
	flags.StringVar(&launchOptions.RuntimePath, "java", "", "runtime executable (default: the configured one)")
	flags.StringArrayVar(&launchOptions.ExtraJVMArgs, "jvm-arg", nil, "extra JVM argument, repeatable")
	flags.BoolVar(&launchOptions.SkipRuntimeCheck, "skip-runtime-check", false, "skip the minimum runtime version check")
	flags.BoolVarP(&launchOptions.Detach, "detach", "d", false, "hand the process over to the supervisor daemon")
}
