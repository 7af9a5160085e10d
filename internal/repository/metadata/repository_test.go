package metadata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
	"github.com/oshokin/bundle-launcher/internal/events"
	"github.com/oshokin/bundle-launcher/internal/source"
)

// fakeAdapter counts fetches and extracts and can be gated or made to fail.
type fakeAdapter struct {
	fetches  atomic.Int32
	extracts atomic.Int32
	gate     chan struct{}
	fail     atomic.Bool
}

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) RawTTL() time.Duration { return time.Minute }

func (f *fakeAdapter) DerivedTTL(query bundle.Query) time.Duration {
	if query.Kind == bundle.QueryVersions {
		return 10 * time.Second
	}

	return 0
}

func (f *fakeAdapter) FetchRaw(_ context.Context, query bundle.Query) (source.Raw, error) {
	f.fetches.Add(1)

	if f.gate != nil {
		<-f.gate
	}

	if f.fail.Load() {
		return nil, fmt.Errorf("fake %s: %w", query.Version, bundle.ErrMetadataNetwork)
	}

	return source.Raw{"doc": []byte(query.Version)}, nil
}

func (f *fakeAdapter) Extract(query bundle.Query, raw source.Raw) (*source.Data, error) {
	f.extracts.Add(1)

	if query.Kind == bundle.QueryVersions {
		return &source.Data{Versions: []bundle.VersionInfo{{ID: string(raw["doc"])}}}, nil
	}

	return &source.Data{Descriptor: &bundle.Descriptor{ID: string(raw["doc"])}}, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func descriptorQuery(version string) bundle.Query {
	return bundle.Query{Source: "fake", Kind: bundle.QueryDescriptor, Version: version}
}

// TestRepository_CachesBothTiers answers repeated queries without fetching.
func TestRepository_CachesBothTiers(t *testing.T) {
	t.Parallel()

	adapter := new(fakeAdapter)
	clock := &fakeClock{now: time.Unix(1000, 0)}
	repository := New(source.NewRegistry(adapter), WithClock(clock.Now), WithDerivedTTL(30*time.Minute))

	data, err := repository.Resolve(context.Background(), descriptorQuery("1.21.1"))
	require.NoError(t, err)
	require.Equal(t, "1.21.1", data.Descriptor.ID)

	again, err := repository.Resolve(context.Background(), descriptorQuery("1.21.1"))
	require.NoError(t, err)
	require.Same(t, data, again)
	require.EqualValues(t, 1, adapter.fetches.Load())
	require.EqualValues(t, 1, adapter.extracts.Load())

	// Another kind on the same raw key reuses the raw documents.
	versions := bundle.Query{Source: "fake", Kind: bundle.QueryVersions, Version: "1.21.1"}
	_, err = repository.Resolve(context.Background(), versions)
	require.NoError(t, err)
	require.EqualValues(t, 1, adapter.fetches.Load())
	require.EqualValues(t, 2, adapter.extracts.Load())

	// The version list uses the adapter TTL and expires first.
	clock.Advance(15 * time.Second)

	_, err = repository.Resolve(context.Background(), versions)
	require.NoError(t, err)
	require.EqualValues(t, 1, adapter.fetches.Load())
	require.EqualValues(t, 3, adapter.extracts.Load())

	// Past the raw TTL but inside the derived TTL nothing is fetched.
	clock.Advance(2 * time.Minute)

	_, err = repository.Resolve(context.Background(), descriptorQuery("1.21.1"))
	require.NoError(t, err)
	require.EqualValues(t, 1, adapter.fetches.Load())

	// Past both TTLs the adapter is asked again.
	clock.Advance(time.Hour)

	_, err = repository.Resolve(context.Background(), descriptorQuery("1.21.1"))
	require.NoError(t, err)
	require.EqualValues(t, 2, adapter.fetches.Load())
	require.Positive(t, repository.Purge())
}

// TestRepository_DeduplicatesConcurrentFetches collapses fetches of one raw key.
func TestRepository_DeduplicatesConcurrentFetches(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{gate: make(chan struct{})}
	repository := New(source.NewRegistry(adapter))

	const callers = 8

	var wg sync.WaitGroup

	errs := make(chan error, callers)

	for range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := repository.Resolve(context.Background(), descriptorQuery("1.20.4"))
			errs <- err
		}()
	}

	time.Sleep(100 * time.Millisecond)
	close(adapter.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	require.EqualValues(t, 1, adapter.fetches.Load())
}

// TestRepository_ErrorsAreNotCached returns typed errors and fetches again next time.
func TestRepository_ErrorsAreNotCached(t *testing.T) {
	t.Parallel()

	adapter := new(fakeAdapter)
	adapter.fail.Store(true)

	repository := New(source.NewRegistry(adapter))

	_, err := repository.Resolve(context.Background(), descriptorQuery("1.21.1"))
	require.ErrorIs(t, err, bundle.ErrMetadataNetwork)

	adapter.fail.Store(false)

	_, err = repository.Resolve(context.Background(), descriptorQuery("1.21.1"))
	require.NoError(t, err)
	require.EqualValues(t, 2, adapter.fetches.Load())

	_, err = repository.Resolve(context.Background(), bundle.Query{Source: "unknown", Kind: bundle.QueryDescriptor})
	require.ErrorIs(t, err, bundle.ErrUnsupportedSource)
}

// TestRepository_CancelledCallerReturnsEarly stops waiting on a cancelled context.
func TestRepository_CancelledCallerReturnsEarly(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{gate: make(chan struct{})}
	repository := New(source.NewRegistry(adapter))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := repository.Resolve(ctx, descriptorQuery("1.21.1"))
	require.True(t, errors.Is(err, context.DeadlineExceeded))

	close(adapter.gate)

	require.Eventually(t, func() bool {
		data, err := repository.Resolve(context.Background(), descriptorQuery("1.21.1"))
		return err == nil && data.Descriptor.ID == "1.21.1"
	}, time.Second, 10*time.Millisecond)
	require.EqualValues(t, 1, adapter.fetches.Load())
}

// TestRepository_PublishesFetchEvents reports fetch start and end.
func TestRepository_PublishesFetchEvents(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		kinds []events.Kind
	)

	publisher := events.Func(func(event events.Event) {
		mu.Lock()
		defer mu.Unlock()

		kinds = append(kinds, event.Kind)
	})

	repository := New(source.NewRegistry(new(fakeAdapter)), WithPublisher(publisher))

	_, err := repository.Resolve(context.Background(), descriptorQuery("1.21.1"))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()

	require.Equal(t, []events.Kind{events.KindFetchStarted, events.KindFetchDone}, kinds)
}
