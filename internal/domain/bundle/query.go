package bundle

import (
	"fmt"
	"strings"
)

// QueryKind discriminates what a metadata query asks for.
type QueryKind string

const (
	// QueryDescriptor asks for the descriptor of one version.
	QueryDescriptor QueryKind = "descriptor"
	// QueryVersions asks for the list of versions a source knows about.
	QueryVersions QueryKind = "versions"
)

// Query identifies one request against a metadata source.
type Query struct {
	// Source is the adapter discriminant, e.g. "vanilla" or "loader".
	Source string `json:"source" yaml:"source"`
	// Kind selects what is extracted from the source document.
	Kind QueryKind `json:"kind" yaml:"kind"`
	// Version is the base version, e.g. "1.21.1".
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	// Overlay is the overlay version for overlay sources, e.g. "0.16.9".
	Overlay string `json:"overlay,omitempty" yaml:"overlay,omitempty"`
}

// String renders the query for logs and error messages.
func (q Query) String() string {
	var builder strings.Builder

	builder.WriteString(q.Source)
	builder.WriteString("/")
	builder.WriteString(string(q.Kind))

	if q.Version != "" {
		builder.WriteString("/")
		builder.WriteString(q.Version)
	}

	if q.Overlay != "" {
		builder.WriteString("+")
		builder.WriteString(q.Overlay)
	}

	return builder.String()
}

// ParseOverlay parses an overlay reference of the form "<source>-<version>",
// such as "loader-0.16.9", into a descriptor query layered on base.
func ParseOverlay(reference, base string) (Query, error) {
	source, overlayVersion, found := strings.Cut(strings.TrimSpace(reference), "-")
	if !found || source == "" || overlayVersion == "" {
		return Query{}, fmt.Errorf("overlay %q must look like <source>-<version>: %w", reference, ErrUnsupportedSource)
	}

	return Query{
		Source:  source,
		Kind:    QueryDescriptor,
		Version: base,
		Overlay: overlayVersion,
	}, nil
}

// VersionInfo is one entry returned by a QueryVersions query.
type VersionInfo struct {
	ID     string `json:"id" yaml:"id"`
	Type   string `json:"type,omitempty" yaml:"type,omitempty"`
	Stable bool   `json:"stable" yaml:"stable"`
}
