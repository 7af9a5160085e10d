// Package verify decides whether a file on disk must be (re-)downloaded by
// comparing its streamed content hash with the declared one.
//
// Declared hashes come in three shapes: bare 40-hex (SHA-1), bare 64-hex
// (SHA-256) and OCI-style "algorithm:hex" digests.
package verify
