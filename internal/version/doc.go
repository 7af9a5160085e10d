// Package version exposes build metadata for the launcher binaries.
//
// Version, Commit and BuildTime are injected through ldflags; Short and Full
// render them for the `version` subcommand and for the launcher brand
// placeholders passed to the client.
package version
