// Package packager authors descriptor files for the local metadata source.
//
// It walks a directory of libraries laid out like a maven repository, computes
// digests and sizes, and writes a descriptor YAML that the local source serves.
// The listed files are expected to be uploaded under the given base URL.
package packager
