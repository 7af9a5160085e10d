// Package loader is the overlay metadata source: a loader metadata service
// publishing, per base version, the list of loader versions and one profile
// document per loader version that inherits from the base version.
package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
	"github.com/oshokin/bundle-launcher/internal/source"
	"github.com/oshokin/bundle-launcher/internal/source/versiondoc"
)

// Name is the discriminant of the loader source.
const Name = "loader"

// Raw document parts.
const (
	PartLoaders = "loaders"
	PartProfile = "profile"
)

// Fetcher downloads whole documents.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Options configures the adapter.
type Options struct {
	// MetaURL is the base URL of the loader metadata service.
	MetaURL string
	// RawTTL bounds the lifetime of fetched documents.
	RawTTL time.Duration
	// VersionsTTL bounds the lifetime of extracted loader version lists.
	VersionsTTL time.Duration
	// Platform is what library and argument rules are evaluated against.
	Platform versiondoc.Platform
}

// Adapter implements source.Adapter for the loader source.
type Adapter struct {
	fetcher Fetcher
	options Options
}

// New creates the adapter.
func New(fetcher Fetcher, options Options) *Adapter {
	if options.Platform.OS == "" {
		options.Platform = versiondoc.CurrentPlatform()
	}

	options.MetaURL = strings.TrimSuffix(options.MetaURL, "/")

	return &Adapter{fetcher: fetcher, options: options}
}

// loaderEntry is one element of the loader list of a base version.
type loaderEntry struct {
	Loader struct {
		Version string `json:"version"`
		Maven   string `json:"maven"`
		Stable  bool   `json:"stable"`
	} `json:"loader"`
}

// Name implements source.Adapter.
func (a *Adapter) Name() string {
	return Name
}

// RawTTL implements source.Adapter.
func (a *Adapter) RawTTL() time.Duration {
	return a.options.RawTTL
}

// DerivedTTL gives loader version lists their own TTL.
func (a *Adapter) DerivedTTL(query bundle.Query) time.Duration {
	if query.Kind == bundle.QueryVersions {
		return a.options.VersionsTTL
	}

	return 0
}

// FetchRaw fetches the loader list of the base version and, when an overlay
// version is set, its profile document.
func (a *Adapter) FetchRaw(ctx context.Context, query bundle.Query) (source.Raw, error) {
	if query.Version == "" {
		return nil, fmt.Errorf("%s: base version is required: %w", Name, bundle.ErrMetadataNotFound)
	}

	base := url.PathEscape(query.Version)

	loaders, err := a.fetcher.Fetch(ctx, a.options.MetaURL+"/v2/versions/loader/"+base)
	if err != nil {
		return nil, source.FetchError("loaders for "+query.Version, err)
	}

	raw := source.Raw{PartLoaders: loaders}
	if query.Overlay == "" {
		return raw, nil
	}

	profileURL := a.options.MetaURL + "/v2/versions/loader/" + base + "/" + url.PathEscape(query.Overlay) + "/profile/json"

	profile, err := a.fetcher.Fetch(ctx, profileURL)
	if err != nil {
		return nil, source.FetchError("loader profile "+query.Overlay, err)
	}

	raw[PartProfile] = profile

	return raw, nil
}

// Extract implements source.Adapter.
func (a *Adapter) Extract(query bundle.Query, raw source.Raw) (*source.Data, error) {
	switch query.Kind {
	case bundle.QueryVersions:
		versions, err := parseLoaders(query, raw[PartLoaders])
		if err != nil {
			return nil, err
		}

		return &source.Data{Versions: versions}, nil
	case bundle.QueryDescriptor:
		profile, ok := raw[PartProfile]
		if !ok {
			return nil, fmt.Errorf("%s: overlay version is required: %w", query, bundle.ErrMetadataNotFound)
		}

		document, err := versiondoc.Parse(profile)
		if err != nil {
			return nil, source.ParseError("loader profile "+query.Overlay, err)
		}

		return &source.Data{Descriptor: document.Descriptor(a.options.Platform)}, nil
	default:
		return nil, source.UnsupportedKind(query)
	}
}

func parseLoaders(query bundle.Query, data []byte) ([]bundle.VersionInfo, error) {
	var entries []loaderEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, source.ParseError("loaders for "+query.Version, err)
	}

	versions := make([]bundle.VersionInfo, 0, len(entries))
	for _, entry := range entries {
		versions = append(versions, bundle.VersionInfo{
			ID:     entry.Loader.Version,
			Type:   Name,
			Stable: entry.Loader.Stable,
		})
	}

	return versions, nil
}
