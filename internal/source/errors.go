package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
	"github.com/oshokin/bundle-launcher/internal/transport"
)

// FetchError maps a transport failure for resource onto the metadata error taxonomy.
// Context cancellation is passed through unchanged.
func FetchError(resource string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, transport.ErrNotFound):
		return fmt.Errorf("%s: %w: %w", resource, bundle.ErrMetadataNotFound, err)
	case errors.Is(err, transport.ErrDecode):
		return fmt.Errorf("%s: %w: %w", resource, bundle.ErrMetadataParse, err)
	default:
		return fmt.Errorf("%s: %w: %w", resource, bundle.ErrMetadataNetwork, err)
	}
}

// ParseError wraps a decoding failure of resource.
func ParseError(resource string, err error) error {
	return fmt.Errorf("%s: %w: %w", resource, bundle.ErrMetadataParse, err)
}

// UnsupportedKind reports a query kind the adapter cannot answer.
func UnsupportedKind(query bundle.Query) error {
	return fmt.Errorf("%s: query kind %q: %w", query.Source, query.Kind, bundle.ErrUnsupportedSource)
}
