//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"

	"github.com/oshokin/bundle-launcher/internal/config"
	"github.com/oshokin/bundle-launcher/internal/logger"
)

// ConfigureLogger applies the configured log format and level to the global logger.
// It must run before any named logger is derived from the global one.
// Unknown levels fall back to info with a warning.
func ConfigureLogger(ctx context.Context, cfg *config.Config) {
	logger.SetLogger(logger.New(logger.Format(cfg.LogFormat)))

	level, ok := logger.ParseLogLevel(cfg.LogLevel)
	logger.SetLevel(level)

	if !ok {
		logger.WarnKV(ctx, "Unknown log level, using info", "log_level", cfg.LogLevel)
	}
}
