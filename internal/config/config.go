package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/bundle-launcher/internal/version"
)

// Config holds every setting shared by the launcher binaries.
type Config struct {
	// DataDir is the root of the shared store, instances and staging directories.
	DataDir string `yaml:"data_dir"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// LogFormat is console or json.
	LogFormat string `yaml:"log_format"`
	// Sources configures the metadata source adapters.
	Sources Sources `yaml:"sources"`
	// Cache configures the TTLs of both metadata caches.
	Cache Cache `yaml:"cache"`
	// Download configures the download coordinator and the HTTP transport.
	Download Download `yaml:"download"`
	// Supervisor configures the process supervisor daemon.
	Supervisor Supervisor `yaml:"supervisor"`
	// Runtime configures the defaults used when launching the client.
	Runtime Runtime `yaml:"runtime"`
}

// Sources holds endpoints for the built-in metadata adapters.
type Sources struct {
	// VanillaManifestURL is the version manifest of the base source.
	VanillaManifestURL string `yaml:"vanilla_manifest_url"`
	// ResourcesURL is the base URL of content-addressed asset objects.
	ResourcesURL string `yaml:"resources_url"`
	// LoaderMetaURL is the base URL of the overlay loader metadata service.
	LoaderMetaURL string `yaml:"loader_meta_url"`
	// LocalDir holds hand-authored descriptor YAML files for the local source.
	LocalDir string `yaml:"local_dir"`
}

// Cache holds TTLs of the raw and derived metadata caches.
type Cache struct {
	// RawTTL applies to source documents such as version manifests.
	RawTTL time.Duration `yaml:"raw_ttl"`
	// DerivedTTL applies to extracted descriptors.
	DerivedTTL time.Duration `yaml:"derived_ttl"`
	// VersionsTTL applies to extracted version lists, which change more often.
	VersionsTTL time.Duration `yaml:"versions_ttl"`
}

// Download holds transfer limits.
type Download struct {
	// Concurrency bounds simultaneous transfers within a category.
	Concurrency int `yaml:"concurrency"`
	// AssetBatchSize bounds simultaneous asset transfers.
	AssetBatchSize int `yaml:"asset_batch_size"`
	// Attempts is the per-file attempt ceiling.
	Attempts int `yaml:"attempts"`
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration `yaml:"retry_delay"`
	// Timeout bounds connecting, waiting for headers and each stall while
	// reading a body; a transfer that keeps moving is never cut off.
	Timeout time.Duration `yaml:"timeout"`
	// RequestsPerSecond limits request starts; zero disables the limit.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// Supervisor holds daemon endpoints.
type Supervisor struct {
	// Address is the gRPC listen/dial address of the supervisor daemon.
	Address string `yaml:"address"`
	// MetricsAddress is where Prometheus metrics are served; empty disables them.
	MetricsAddress string `yaml:"metrics_address"`
	// CallTimeout bounds each control call made by the CLI.
	CallTimeout time.Duration `yaml:"call_timeout"`
	// ConsoleLogMaxAge is how long rotated console logs are kept.
	ConsoleLogMaxAge time.Duration `yaml:"console_log_max_age"`
	// ConsoleLogRotation is how often console logs rotate.
	ConsoleLogRotation time.Duration `yaml:"console_log_rotation"`
}

// Runtime holds launch defaults.
type Runtime struct {
	// JavaPath is the runtime executable used when none is given on the command line.
	JavaPath string `yaml:"java_path"`
	// MinMemoryMB and MaxMemoryMB become -Xms and -Xmx; zero omits them.
	MinMemoryMB int `yaml:"min_memory_mb"`
	MaxMemoryMB int `yaml:"max_memory_mb"`
	// ExtraJVMArgs are appended after the descriptor JVM arguments.
	ExtraJVMArgs []string `yaml:"extra_jvm_args"`
}

const (
	// DefaultConfigFilename is the default filename of the settings file.
	DefaultConfigFilename = "bundle-launcher.yaml"

	// DefaultFilePermissions is used for config and metadata files.
	DefaultFilePermissions = 0o600

	// DefaultDirPermissions is used for every directory the launcher creates.
	DefaultDirPermissions = 0o755

	// DefaultVanillaManifestURL is the public version manifest of the base source.
	DefaultVanillaManifestURL = "https://piston-meta.mojang.com/mc/game/version_manifest_v2.json"

	// DefaultResourcesURL is the public asset object host.
	DefaultResourcesURL = "https://resources.download.minecraft.net"

	// DefaultLoaderMetaURL is the public loader metadata service.
	DefaultLoaderMetaURL = "https://meta.fabricmc.net"

	// DefaultSupervisorAddress is where the supervisor daemon listens.
	DefaultSupervisorAddress = "127.0.0.1:50071"

	// DefaultCallTimeout bounds control calls to the supervisor daemon.
	DefaultCallTimeout = 5 * time.Second

	defaultRawTTL             = 10 * time.Minute
	defaultDerivedTTL         = time.Hour
	defaultVersionsTTL        = 5 * time.Minute
	defaultConcurrency        = 16
	defaultAssetBatchSize     = 50
	defaultAttempts           = 3
	defaultRetryDelay         = 500 * time.Millisecond
	defaultTimeout            = 30 * time.Second
	defaultConsoleLogMaxAge   = 7 * 24 * time.Hour
	defaultConsoleLogRotation = 24 * time.Hour
	defaultJavaPath           = "java"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errNegativeLimit is returned for negative numeric limits.
	errNegativeLimit = errors.New("limit must not be negative")
)

// Default returns a configuration with every default filled in.
func Default() *Config {
	cfg := new(Config)

	// Validate only fails on malformed explicit values, never on an empty config.
	_ = Validate(cfg)

	return cfg
}

// Load reads configuration from path and fills in defaults.
// A missing file at the default location yields the defaults; a missing
// explicit path is an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes cfg to path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks formats and fills in defaults for unset fields.
//
//nolint:cyclop // A flat list of defaults reads better than a table here.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(xdg.DataHome, version.Name)
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
	}

	if err := validateSources(&cfg.Sources, cfg.DataDir); err != nil {
		return err
	}

	setDuration(&cfg.Cache.RawTTL, defaultRawTTL)
	setDuration(&cfg.Cache.DerivedTTL, defaultDerivedTTL)
	setDuration(&cfg.Cache.VersionsTTL, defaultVersionsTTL)

	if err := validateDownload(&cfg.Download); err != nil {
		return err
	}

	if cfg.Supervisor.Address == "" {
		cfg.Supervisor.Address = DefaultSupervisorAddress
	}

	if _, err := net.ResolveTCPAddr("tcp", cfg.Supervisor.Address); err != nil {
		return fmt.Errorf("invalid supervisor address: %w", err)
	}

	setDuration(&cfg.Supervisor.CallTimeout, DefaultCallTimeout)
	setDuration(&cfg.Supervisor.ConsoleLogMaxAge, defaultConsoleLogMaxAge)
	setDuration(&cfg.Supervisor.ConsoleLogRotation, defaultConsoleLogRotation)

	if cfg.Runtime.JavaPath == "" {
		cfg.Runtime.JavaPath = defaultJavaPath
	}

	if cfg.Runtime.MinMemoryMB < 0 || cfg.Runtime.MaxMemoryMB < 0 {
		return fmt.Errorf("runtime memory: %w", errNegativeLimit)
	}

	return nil
}

// validateSources checks source URLs and fills default endpoints.
func validateSources(sources *Sources, dataDir string) error {
	if sources.VanillaManifestURL == "" {
		sources.VanillaManifestURL = DefaultVanillaManifestURL
	}

	if sources.ResourcesURL == "" {
		sources.ResourcesURL = DefaultResourcesURL
	}

	if sources.LoaderMetaURL == "" {
		sources.LoaderMetaURL = DefaultLoaderMetaURL
	}

	if sources.LocalDir == "" {
		sources.LocalDir = filepath.Join(dataDir, "descriptors")
	}

	for name, raw := range map[string]string{
		"vanilla manifest": sources.VanillaManifestURL,
		"resources":        sources.ResourcesURL,
		"loader meta":      sources.LoaderMetaURL,
	} {
		if _, err := url.ParseRequestURI(raw); err != nil {
			return fmt.Errorf("invalid %s URL: %w", name, err)
		}
	}

	return nil
}

// validateDownload checks transfer limits and fills defaults.
func validateDownload(download *Download) error {
	if download.Concurrency < 0 || download.AssetBatchSize < 0 || download.Attempts < 0 ||
		download.RequestsPerSecond < 0 {
		return fmt.Errorf("download: %w", errNegativeLimit)
	}

	if download.Concurrency == 0 {
		download.Concurrency = defaultConcurrency
	}

	if download.AssetBatchSize == 0 {
		download.AssetBatchSize = defaultAssetBatchSize
	}

	if download.Attempts == 0 {
		download.Attempts = defaultAttempts
	}

	setDuration(&download.RetryDelay, defaultRetryDelay)
	setDuration(&download.Timeout, defaultTimeout)

	return nil
}

func setDuration(target *time.Duration, fallback time.Duration) {
	if *target <= 0 {
		*target = fallback
	}
}
