// Package cache implements the TTL-keyed content store used twice by the
// metadata layer: once for raw source documents and once for derived query
// results.
//
// Expiry is lazy. Validity is re-checked on every read against the entry's
// creation time and TTL; an expired entry reads as absent and is replaced by
// the next Put. There is no size-based eviction.
package cache
