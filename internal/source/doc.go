// Package source defines the capability every metadata source implements and
// the registry that dispatches queries to sources by discriminant.
//
// A source fetches one raw document set per raw key (source, base version,
// overlay version) and extracts query results from it. Which documents are
// fetched must depend only on the raw key, never on the query kind, because
// the raw cache shares one entry between every kind.
package source
