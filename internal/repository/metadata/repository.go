package metadata

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/oshokin/bundle-launcher/internal/cache"
	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
	"github.com/oshokin/bundle-launcher/internal/events"
	"github.com/oshokin/bundle-launcher/internal/logger"
	"github.com/oshokin/bundle-launcher/internal/metrics"
	"github.com/oshokin/bundle-launcher/internal/source"
)

// Cache tiers reported to metrics.
const (
	TierRaw     = "raw"
	TierDerived = "derived"
)

// DefaultDerivedTTL is used for extracted results when the adapter declares no TTL.
const DefaultDerivedTTL = time.Hour

// Resolver is the behavior the bundle resolver depends on.
type Resolver interface {
	Resolve(ctx context.Context, query bundle.Query) (*source.Data, error)
}

// Repository dispatches queries to source adapters through two TTL caches.
type Repository struct {
	registry   *source.Registry
	raw        *cache.Cache[string, source.Raw]
	derived    *cache.Cache[string, *source.Data]
	derivedTTL time.Duration
	inflight   singleflight.Group
	collector  metrics.Collector
	publisher  events.Publisher
	clock      cache.Clock
}

// Option configures a Repository.
type Option func(*Repository)

// WithDerivedTTL sets the default TTL of extracted results.
func WithDerivedTTL(ttl time.Duration) Option {
	return func(r *Repository) {
		if ttl > 0 {
			r.derivedTTL = ttl
		}
	}
}

// WithMetrics reports cache lookups and fetches to collector.
func WithMetrics(collector metrics.Collector) Option {
	return func(r *Repository) {
		r.collector = metrics.OrNoop(collector)
	}
}

// WithPublisher reports fetches to publisher.
func WithPublisher(publisher events.Publisher) Option {
	return func(r *Repository) {
		r.publisher = events.OrNop(publisher)
	}
}

// WithClock replaces the clock of both caches.
func WithClock(clock cache.Clock) Option {
	return func(r *Repository) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// New creates a repository over registry.
func New(registry *source.Registry, opts ...Option) *Repository {
	r := &Repository{
		registry:   registry,
		derivedTTL: DefaultDerivedTTL,
		collector:  metrics.NewNoop(),
		publisher:  events.Nop{},
		clock:      time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	r.raw = cache.New[string, source.Raw](cache.WithClock(r.clock))
	r.derived = cache.New[string, *source.Data](cache.WithClock(r.clock))

	return r
}

// Resolve returns the result of query. The returned data is shared and must not be modified.
func (r *Repository) Resolve(ctx context.Context, query bundle.Query) (*source.Data, error) {
	adapter, err := r.registry.Lookup(query.Source)
	if err != nil {
		return nil, err
	}

	derivedKey := source.DerivedKey(query)

	data, hit := r.derived.Get(derivedKey)
	r.collector.CacheLookup(TierDerived, hit)

	if hit {
		logger.DebugKV(ctx, "Derived cache hit", "query", query.String())
		return data, nil
	}

	raw, err := r.rawDocuments(ctx, adapter, query)
	if err != nil {
		return nil, err
	}

	data, err = adapter.Extract(query, raw)
	if err != nil {
		return nil, err
	}

	r.derived.Put(derivedKey, data, r.derivedTTLFor(adapter, query))

	return data, nil
}

// Purge drops expired entries from both caches and returns how many were removed.
func (r *Repository) Purge() int {
	return r.raw.Purge() + r.derived.Purge()
}

func (r *Repository) rawDocuments(ctx context.Context, adapter source.Adapter, query bundle.Query) (source.Raw, error) {
	rawKey := source.RawKey(query)

	raw, hit := r.raw.Get(rawKey)
	r.collector.CacheLookup(TierRaw, hit)

	if hit {
		logger.DebugKV(ctx, "Raw cache hit", "query", query.String())
		return raw, nil
	}

	// The fetch outlives a cancelled caller so that other waiters still get the result;
	// the transport bounds it with its own per-request timeout.
	fetchCtx := context.WithoutCancel(ctx)

	resultChan := r.inflight.DoChan(rawKey, func() (any, error) {
		if cached, ok := r.raw.Get(rawKey); ok {
			return cached, nil
		}

		return r.fetch(fetchCtx, adapter, query, rawKey)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-resultChan:
		if result.Err != nil {
			return nil, result.Err
		}

		raw, _ = result.Val.(source.Raw)

		return raw, nil
	}
}

func (r *Repository) fetch(ctx context.Context, adapter source.Adapter, query bundle.Query, rawKey string) (source.Raw, error) {
	r.publisher.Publish(events.Event{Kind: events.KindFetchStarted, Time: r.clock(), Resource: query.String()})
	logger.DebugKV(ctx, "Fetching metadata", "query", query.String())

	started := time.Now()
	raw, err := adapter.FetchRaw(ctx, query)
	r.collector.SourceFetch(adapter.Name(), time.Since(started), err)

	r.publisher.Publish(events.Event{Kind: events.KindFetchDone, Time: r.clock(), Resource: query.String()})

	if err != nil {
		logger.WarnKV(ctx, "Metadata fetch failed", "query", query.String(), "error", err)
		return nil, err
	}

	r.raw.Put(rawKey, raw, adapter.RawTTL())

	return raw, nil
}

func (r *Repository) derivedTTLFor(adapter source.Adapter, query bundle.Query) time.Duration {
	if ttler, ok := adapter.(source.DerivedTTLer); ok {
		if ttl := ttler.DerivedTTL(query); ttl > 0 {
			return ttl
		}
	}

	return r.derivedTTL
}
