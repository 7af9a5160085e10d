package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/bundle-launcher/internal/app"
	"github.com/oshokin/bundle-launcher/internal/config"
	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
	"github.com/oshokin/bundle-launcher/internal/logger"
	"github.com/oshokin/bundle-launcher/internal/service/common"
	"github.com/oshokin/bundle-launcher/internal/source/vanilla"
)

// Options are shared by every subcommand.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string
	// Output receives command results; defaults to stdout.
	Output io.Writer
}

// BundleOptions select the bundle a subcommand works on.
type BundleOptions struct {
	Options

	// Instance names the instance directory; defaults to Version.
	Instance string
	// Source is the base source; defaults to vanilla.
	Source string
	// Version is the base version. When empty the queries recorded for
	// Instance are reused.
	Version string
	// Overlay is an optional "<source>-<version>" reference.
	Overlay string
}

// yamlIndent matches the indentation of the settings file.
const yamlIndent = 2

var (
	// errVersionRequired is returned when neither a version nor a known instance is given.
	errVersionRequired = errors.New("a version or the name of an existing instance is required")
	// errExitStatus is returned when a foreground process exits unsuccessfully.
	errExitStatus = errors.New("process exited with non-zero status")
)

// session is the loaded configuration and a logger-bearing context.
type session struct {
	ctx    context.Context //nolint:containedctx // Lives only for one command.
	cfg    *config.Config
	output io.Writer
}

// open loads settings and configures logging for a subcommand.
func open(ctx context.Context, opts *Options, name string) (*session, error) {
	// Load settings from configuration file.
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	common.ConfigureLogger(ctx, cfg)

	output := opts.Output
	if output == nil {
		output = os.Stdout
	}

	return &session{
		ctx:    logger.WithName(ctx, "bundle-launcher."+name),
		cfg:    cfg,
		output: output,
	}, nil
}

// print writes value as YAML.
func (s *session) print(value any) error {
	encoder := yaml.NewEncoder(s.output)
	encoder.SetIndent(yamlIndent)

	if err := encoder.Encode(value); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	return encoder.Close()
}

// dial connects to the supervisor daemon.
func (s *session) dial() (*common.Client, error) {
	return common.Dial(s.ctx, s.cfg.Supervisor.Address, common.WithCallTimeout(s.cfg.Supervisor.CallTimeout))
}

// target is a resolved bundle selection.
type target struct {
	instance string
	base     bundle.Query
	overlay  *bundle.Query
}

// target turns the options into queries, falling back to the queries
// recorded for an existing instance.
func (o *BundleOptions) target(ctx context.Context, application *app.App) (*target, error) {
	if o.Version == "" {
		if o.Instance == "" {
			return nil, errVersionRequired
		}

		record, err := application.LoadInstance(ctx, o.Instance)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errVersionRequired, err)
		}

		return &target{instance: o.Instance, base: record.Base, overlay: record.Overlay}, nil
	}

	result := &target{
		instance: o.Instance,
		base: bundle.Query{
			Source:  o.Source,
			Kind:    bundle.QueryDescriptor,
			Version: o.Version,
		},
	}

	if result.instance == "" {
		result.instance = o.Version
	}

	if result.base.Source == "" {
		result.base.Source = vanilla.Name
	}

	if o.Overlay != "" {
		overlay, err := bundle.ParseOverlay(o.Overlay, o.Version)
		if err != nil {
			return nil, err
		}

		result.overlay = &overlay
	}

	return result, nil
}
