package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/bundle-launcher/internal/service/packager"
	"github.com/oshokin/bundle-launcher/internal/version"
)

var (
	// options collects flag values for the packager.
	options = new(packager.Options)

	// rootCmd represents the base command for authoring local descriptors.
	rootCmd = &cobra.Command{
		Use:   "bundle-packager [library-folder] [base-url]",
		Short: "Author a descriptor for the local metadata source.",
		Long: `Walks a folder of jars laid out like a maven repository, computes their
SHA-256 digests and sizes, and writes a descriptor YAML into the local source
directory. Upload the folder contents under base-url afterwards.

With --overlay the descriptor is an overlay inheriting from --version.`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options.Dir = args[0]
			options.BaseURL = args[1]

			return packager.Run(ctx, options)
		},
	}
)

// Execute runs the bundle-packager CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.Flags()

	flags.StringVarP(&options.ConfigPath, "config", "c", "", "path to configuration file (default bundle-launcher.yaml)")
	flags.StringVarP(&options.Version, "version", "v", "", "descriptor version, or the inherited base with --overlay")
	flags.StringVarP(&options.Overlay, "overlay", "o", "", "overlay version")
	flags.StringVar(&options.MainClass, "main-class", "", "entry point of the client")
	flags.StringVar(&options.MainArtifact, "main-artifact", "", "path of the client jar inside library-folder")
	flags.IntVar(&options.MinRuntime, "min-runtime", 0, "minimum runtime major version")
	flags.StringArrayVar(&options.JVMArgs, "jvm-arg", nil, "JVM argument template, repeatable")
	flags.StringArrayVar(&options.GameArgs, "game-arg", nil, "game argument template, repeatable")
	flags.StringVar(&options.OutputDir, "output", "", "descriptor directory (default: the configured local source directory)")
	flags.BoolVarP(&options.Force, "force", "f", false, "overwrite an existing descriptor")

	if err := rootCmd.MarkFlagRequired("version"); err != nil {
		panic(err)
	}
}
