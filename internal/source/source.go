package source

import (
	"context"
	"time"

	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
)

// Raw is the set of documents fetched for one raw key, indexed by part name.
// It is shared through the raw cache and must not be modified after FetchRaw returns.
type Raw map[string][]byte

// Data is the result of one query: a descriptor or a version list.
type Data struct {
	Descriptor *bundle.Descriptor
	Versions   []bundle.VersionInfo
}

// Adapter is implemented by every metadata source.
type Adapter interface {
	// Name is the discriminant the adapter is registered under.
	Name() string
	// FetchRaw fetches the documents for the raw key of query.
	FetchRaw(ctx context.Context, query bundle.Query) (Raw, error)
	// Extract derives the query result from raw documents without I/O.
	Extract(query bundle.Query, raw Raw) (*Data, error)
	// RawTTL is how long fetched documents stay valid.
	RawTTL() time.Duration
}

// DerivedTTLer is implemented by adapters that want a per-query TTL for
// extracted results instead of the repository default.
type DerivedTTLer interface {
	DerivedTTL(query bundle.Query) time.Duration
}
