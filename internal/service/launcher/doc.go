// Package launcher implements the bundle-launcher subcommands.
//
// Resolve, install, size and foreground launches run in-process. Detached
// launches and the process control commands (ps, close, delete, logs) talk to
// the bundle-supervisor daemon, which owns the process registry.
package launcher
