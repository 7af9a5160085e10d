// Package resolver composes a base descriptor and an optional overlay into
// the single descriptor that is installed and launched.
package resolver

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
	"github.com/oshokin/bundle-launcher/internal/logger"
	"github.com/oshokin/bundle-launcher/internal/repository/metadata"
)

// Resolver fetches descriptors through a metadata repository and merges them.
type Resolver struct {
	repository metadata.Resolver
}

// New creates a resolver over repository.
func New(repository metadata.Resolver) *Resolver {
	return &Resolver{repository: repository}
}

// Resolve returns the base descriptor, merged with the overlay when one is given.
// The base and overlay are fetched concurrently.
func (r *Resolver) Resolve(ctx context.Context, base bundle.Query, overlay *bundle.Query) (*bundle.Descriptor, error) {
	base.Kind = bundle.QueryDescriptor

	if overlay == nil {
		return r.descriptor(ctx, base)
	}

	overlayQuery := *overlay
	overlayQuery.Kind = bundle.QueryDescriptor

	if overlayQuery.Version == "" {
		overlayQuery.Version = base.Version
	}

	var baseDescriptor, overlayDescriptor *bundle.Descriptor

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		var err error

		baseDescriptor, err = r.descriptor(groupCtx, base)

		return err
	})

	group.Go(func() error {
		var err error

		overlayDescriptor, err = r.descriptor(groupCtx, overlayQuery)

		return err
	})

	if err := group.Wait(); err != nil {
		return nil, err
	}

	if parent := overlayDescriptor.InheritsFrom; parent != "" && parent != baseDescriptor.BaseID() && parent != base.Version {
		return nil, fmt.Errorf("overlay %s inherits from %s, not %s: %w",
			overlayQuery, parent, baseDescriptor.ID, bundle.ErrMetadataParse)
	}

	merged := Merge(baseDescriptor, overlayDescriptor)

	logger.DebugKV(ctx, "Merged overlay",
		"base", base.String(),
		"overlay", overlayQuery.String(),
		"libraries", len(merged.Libraries),
		"main_class", merged.MainClass)

	return merged, nil
}

func (r *Resolver) descriptor(ctx context.Context, query bundle.Query) (*bundle.Descriptor, error) {
	data, err := r.repository.Resolve(ctx, query)
	if err != nil {
		return nil, err
	}

	if data == nil || data.Descriptor == nil {
		return nil, fmt.Errorf("%s returned no descriptor: %w", query, bundle.ErrMetadataParse)
	}

	return data.Descriptor, nil
}
