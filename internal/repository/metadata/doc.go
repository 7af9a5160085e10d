// Package metadata implements the cache-first metadata repository.
//
// Resolve answers a query from the derived cache, then from the raw cache,
// and only then asks the source adapter to fetch. Concurrent fetches of the
// same raw key are collapsed into one. Errors are returned as-is and never
// retried here.
package metadata
