package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/oshokin/bundle-launcher/internal/config"
	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
	"github.com/oshokin/bundle-launcher/internal/events"
	"github.com/oshokin/bundle-launcher/internal/install"
	"github.com/oshokin/bundle-launcher/internal/launch"
	"github.com/oshokin/bundle-launcher/internal/layout"
	"github.com/oshokin/bundle-launcher/internal/logger"
	"github.com/oshokin/bundle-launcher/internal/metrics"
	"github.com/oshokin/bundle-launcher/internal/natives"
	"github.com/oshokin/bundle-launcher/internal/repository/instance"
	"github.com/oshokin/bundle-launcher/internal/repository/metadata"
	"github.com/oshokin/bundle-launcher/internal/resolver"
	"github.com/oshokin/bundle-launcher/internal/source"
	"github.com/oshokin/bundle-launcher/internal/source/loader"
	"github.com/oshokin/bundle-launcher/internal/source/local"
	"github.com/oshokin/bundle-launcher/internal/source/vanilla"
	"github.com/oshokin/bundle-launcher/internal/source/versiondoc"
	"github.com/oshokin/bundle-launcher/internal/supervisor"
	"github.com/oshokin/bundle-launcher/internal/transport"
)

// App is the application context shared by every operation.
type App struct {
	cfg        *config.Config
	layout     *layout.Layout
	registry   *source.Registry
	repository *metadata.Repository
	resolver   *resolver.Resolver
	installer  *install.Coordinator
	stager     *natives.Stager
	builder    *launch.Builder
	supervisor *supervisor.Supervisor
	instances  *instance.FileRepository
	clock      func() time.Time
}

type options struct {
	publisher  events.Publisher
	collector  metrics.Collector
	httpClient *http.Client
	platform   *versiondoc.Platform
	adapters   []source.Adapter
}

// Option configures an App.
type Option func(*options)

// WithPublisher streams events of every component to publisher.
func WithPublisher(publisher events.Publisher) Option {
	return func(o *options) {
		o.publisher = publisher
	}
}

// WithMetrics reports every component to collector.
func WithMetrics(collector metrics.Collector) Option {
	return func(o *options) {
		o.collector = collector
	}
}

// WithHTTPClient replaces the HTTP client of the transport.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithPlatform evaluates library and argument rules for platform instead of the host.
func WithPlatform(platform versiondoc.Platform) Option {
	return func(o *options) {
		o.platform = &platform
	}
}

// WithAdapters registers extra metadata sources next to the built-in ones.
func WithAdapters(adapters ...source.Adapter) Option {
	return func(o *options) {
		o.adapters = append(o.adapters, adapters...)
	}
}

var (
	errConfigIsNotSet = errors.New("configuration is not set")
	errNoDescriptor   = errors.New("descriptor is required")
)

// New wires an App from cfg. The configuration must already be validated.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errConfigIsNotSet
	}

	o := new(options)
	for _, opt := range opts {
		opt(o)
	}

	publisher := events.OrNop(o.publisher)
	collector := metrics.OrNoop(o.collector)

	platform := versiondoc.CurrentPlatform()
	if o.platform != nil {
		platform = *o.platform
	}

	client := transport.New(
		transport.WithTimeout(cfg.Download.Timeout),
		transport.WithRateLimit(cfg.Download.RequestsPerSecond),
		transport.WithHTTPClient(o.httpClient),
	)

	registry := source.NewRegistry(
		vanilla.New(client, vanilla.Options{
			ManifestURL:  cfg.Sources.VanillaManifestURL,
			ResourcesURL: cfg.Sources.ResourcesURL,
			RawTTL:       cfg.Cache.RawTTL,
			VersionsTTL:  cfg.Cache.VersionsTTL,
			Platform:     platform,
		}),
		loader.New(client, loader.Options{
			MetaURL:     cfg.Sources.LoaderMetaURL,
			RawTTL:      cfg.Cache.RawTTL,
			VersionsTTL: cfg.Cache.VersionsTTL,
			Platform:    platform,
		}),
		local.New(cfg.Sources.LocalDir, cfg.Cache.RawTTL),
	)

	for _, adapter := range o.adapters {
		registry.Register(adapter)
	}

	repository := metadata.New(registry,
		metadata.WithDerivedTTL(cfg.Cache.DerivedTTL),
		metadata.WithMetrics(collector),
		metadata.WithPublisher(publisher),
	)

	storeLayout := layout.New(cfg.DataDir)
	stager := natives.New(storeLayout.NativesDir())

	installer := install.New(client, stager, storeLayout,
		install.WithConcurrency(cfg.Download.Concurrency),
		install.WithAssetBatchSize(cfg.Download.AssetBatchSize),
		install.WithRetry(cfg.Download.Attempts, cfg.Download.RetryDelay),
		install.WithMetrics(collector),
		install.WithPublisher(publisher),
	)

	sup := supervisor.New(storeLayout,
		supervisor.WithPublisher(publisher),
		supervisor.WithMetrics(collector),
		supervisor.WithReclaimer(stager.Reclaim),
		supervisor.WithConsoleSinks(supervisor.RotatingConsoleLogs(
			cfg.Supervisor.ConsoleLogMaxAge,
			cfg.Supervisor.ConsoleLogRotation,
		)),
	)

	return &App{
		cfg:        cfg,
		layout:     storeLayout,
		registry:   registry,
		repository: repository,
		resolver:   resolver.New(repository),
		installer:  installer,
		stager:     stager,
		builder:    launch.NewBuilder(storeLayout),
		supervisor: sup,
		instances:  instance.NewFileRepository(storeLayout),
		clock:      time.Now,
	}, nil
}

// Layout returns the on-disk layout of the data root.
func (a *App) Layout() *layout.Layout {
	return a.layout
}

// Sources lists the registered metadata sources.
func (a *App) Sources() []string {
	return a.registry.Names()
}

// ResolveBundle resolves base and the optional overlay into one descriptor
// and records the queries in the metadata file of instanceName.
func (a *App) ResolveBundle(
	ctx context.Context,
	instanceName string,
	base bundle.Query,
	overlay *bundle.Query,
) (*bundle.Descriptor, error) {
	ctx = logger.WithKV(ctx, "instance", instanceName)

	descriptor, err := a.resolver.Resolve(ctx, base, overlay)
	if err != nil {
		return nil, err
	}

	if err = a.rememberInstance(ctx, instanceName, base, overlay); err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Bundle resolved",
		"id", descriptor.ID,
		"libraries", len(descriptor.Libraries),
		"assets", len(descriptor.Assets),
	)

	return descriptor, nil
}

// Versions lists the versions known to sourceName. For overlay sources,
// baseVersion selects which base the overlay versions must support.
func (a *App) Versions(ctx context.Context, sourceName, baseVersion string) ([]bundle.VersionInfo, error) {
	data, err := a.repository.Resolve(ctx, bundle.Query{
		Source:  sourceName,
		Kind:    bundle.QueryVersions,
		Version: baseVersion,
	})
	if err != nil {
		return nil, err
	}

	return data.Versions, nil
}

// Install downloads everything descriptor needs for instanceName and stages natives.
func (a *App) Install(ctx context.Context, instanceName string, descriptor *bundle.Descriptor) (*install.Result, error) {
	if descriptor == nil {
		return nil, errNoDescriptor
	}

	instanceDir, err := a.layout.Instance(instanceName)
	if err != nil {
		return nil, err
	}

	return a.installer.Install(logger.WithKV(ctx, "instance", instanceName), descriptor, instanceDir)
}

// InstanceSize reports declared sizes per category.
func (a *App) InstanceSize(descriptor *bundle.Descriptor) bundle.SizeReport {
	return descriptor.SizeReport()
}

// Instances lists every instance with a metadata file.
func (a *App) Instances(ctx context.Context) ([]*bundle.Instance, error) {
	return a.instances.List(ctx)
}

// LoadInstance returns the metadata of the instance called name.
func (a *App) LoadInstance(ctx context.Context, name string) (*bundle.Instance, error) {
	return a.instances.Load(ctx, name)
}

// GetPid returns the most recently started live pid of name.
func (a *App) GetPid(name string) (int, bool) {
	return a.supervisor.GetPid(name)
}

// GetPids returns every live pid of name.
func (a *App) GetPids(name string) []int {
	return a.supervisor.GetPids(name)
}

// Processes lists live processes with their operating system view.
func (a *App) Processes() ([]supervisor.ProcessInfo, error) {
	return a.supervisor.Inspect()
}

// Orphans returns pids of runtime processes nobody supervises.
func (a *App) Orphans() ([]int, error) {
	return a.supervisor.Orphans(a.cfg.Runtime.JavaPath)
}

// Close terminates pid and waits for its exit.
func (a *App) Close(ctx context.Context, pid int) error {
	return a.supervisor.Close(ctx, pid)
}

// Delete removes the instance directory of name unless a process of it is live.
func (a *App) Delete(ctx context.Context, name string) error {
	return a.supervisor.Delete(ctx, name)
}

// Shutdown closes every live process.
func (a *App) Shutdown(ctx context.Context) error {
	return a.supervisor.CloseAll(ctx)
}

// SweepNatives removes staging directories no live process uses.
func (a *App) SweepNatives(ctx context.Context) error {
	removed, err := a.stager.Sweep(a.supervisor.NativesDirs())
	if err != nil {
		return fmt.Errorf("sweep native staging directories: %w", err)
	}

	if removed > 0 {
		logger.InfoKV(ctx, "Stale native staging directories removed", "count", removed)
	}

	return nil
}

// ReclaimNatives removes one staging directory created by Install.
func (a *App) ReclaimNatives(dir string) error {
	if dir == "" {
		return nil
	}

	return a.stager.Reclaim(dir)
}

// PurgeMetadata drops both metadata caches and returns the number of dropped entries.
func (a *App) PurgeMetadata() int {
	return a.repository.Purge()
}

// rememberInstance writes instance.yaml, keeping the creation time of an existing instance.
func (a *App) rememberInstance(ctx context.Context, name string, base bundle.Query, overlay *bundle.Query) error {
	record, err := a.instances.Load(ctx, name)

	switch {
	case err == nil:
	case errors.Is(err, instance.ErrNotFound):
		record = &bundle.Instance{Name: name, CreatedAt: a.clock()}
	default:
		return fmt.Errorf("load instance: %w", err)
	}

	record.Base = base
	record.Base.Kind = bundle.QueryDescriptor
	record.Overlay = nil

	if overlay != nil {
		overlayQuery := *overlay
		overlayQuery.Kind = bundle.QueryDescriptor
		record.Overlay = &overlayQuery
	}

	if err = a.instances.Save(ctx, record); err != nil {
		return fmt.Errorf("save instance: %w", err)
	}

	return nil
}
