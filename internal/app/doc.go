// Package app wires every component into one application context.
//
// An App owns the metadata caches, the download coordinator, the native
// stager and the process registry of a single launcher process. There are no
// package-level singletons: tests and binaries create as many Apps as they need.
package app
