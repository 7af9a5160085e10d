package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestValidate checks defaults and format validations for Config.
func TestValidate(t *testing.T) {
	t.Parallel()

	require.Error(t, Validate(nil))

	// Defaults.
	cfg := new(Config)
	require.NoError(t, Validate(cfg))
	require.NotEmpty(t, cfg.DataDir)
	require.Equal(t, filepath.Join(cfg.DataDir, "descriptors"), cfg.Sources.LocalDir)
	require.Equal(t, DefaultSupervisorAddress, cfg.Supervisor.Address)
	require.Equal(t, 50, cfg.Download.AssetBatchSize)
	require.Equal(t, 3, cfg.Download.Attempts)
	require.Equal(t, "java", cfg.Runtime.JavaPath)

	// Bad supervisor address.
	cfg = &Config{Supervisor: Supervisor{Address: "bad:address"}}
	require.Error(t, Validate(cfg))

	// Bad source URL.
	cfg = &Config{Sources: Sources{LoaderMetaURL: "not a url"}}
	require.Error(t, Validate(cfg))

	// Negative limits.
	cfg = &Config{Download: Download{Attempts: -1}}
	require.ErrorIs(t, Validate(cfg), errNegativeLimit)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	cfg := &Config{
		DataDir: filepath.Join(dir, "data"),
		Download: Download{
			Concurrency: 4,
			RetryDelay:  2 * time.Second,
		},
		Supervisor: Supervisor{Address: "127.0.0.1:50100"},
	}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.DataDir, loaded.DataDir)
	require.Equal(t, 4, loaded.Download.Concurrency)
	require.Equal(t, 2*time.Second, loaded.Download.RetryDelay)
	require.Equal(t, "127.0.0.1:50100", loaded.Supervisor.Address)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

// TestLoad_MissingExplicitPath fails while the default path falls back to defaults.
func TestLoad_MissingExplicitPath(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

// TestDefault fills every field.
func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.Equal(t, DefaultVanillaManifestURL, cfg.Sources.VanillaManifestURL)
	require.Positive(t, cfg.Cache.RawTTL)
	require.Positive(t, cfg.Download.Timeout)
}
