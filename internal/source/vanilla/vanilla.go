// Package vanilla is the base metadata source: a version manifest listing
// every version, one version document per version and one asset index per
// version.
package vanilla

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
	"github.com/oshokin/bundle-launcher/internal/source"
	"github.com/oshokin/bundle-launcher/internal/source/versiondoc"
)

// Name is the discriminant of the vanilla source.
const Name = "vanilla"

// Raw document parts.
const (
	PartManifest = "manifest"
	PartVersion  = "version"
	PartAssets   = "assets"
)

const releaseType = "release"

// Fetcher downloads whole documents.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Options configures the adapter.
type Options struct {
	// ManifestURL is the version manifest location.
	ManifestURL string
	// ResourcesURL is the base URL of asset objects.
	ResourcesURL string
	// RawTTL bounds the lifetime of fetched documents.
	RawTTL time.Duration
	// VersionsTTL bounds the lifetime of extracted version lists.
	VersionsTTL time.Duration
	// Platform is what library and argument rules are evaluated against.
	Platform versiondoc.Platform
}

// Adapter implements source.Adapter for the vanilla source.
type Adapter struct {
	fetcher Fetcher
	options Options
}

// New creates the adapter.
func New(fetcher Fetcher, options Options) *Adapter {
	if options.Platform.OS == "" {
		options.Platform = versiondoc.CurrentPlatform()
	}

	return &Adapter{fetcher: fetcher, options: options}
}

// manifest is the version manifest document.
type manifest struct {
	Latest struct {
		Release  string `json:"release"`
		Snapshot string `json:"snapshot"`
	} `json:"latest"`
	Versions []manifestVersion `json:"versions"`
}

type manifestVersion struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	URL         string    `json:"url"`
	ReleaseTime time.Time `json:"releaseTime"`
}

// Name implements source.Adapter.
func (a *Adapter) Name() string {
	return Name
}

// RawTTL implements source.Adapter.
func (a *Adapter) RawTTL() time.Duration {
	return a.options.RawTTL
}

// DerivedTTL keeps version lists shorter than descriptors, which never change once published.
func (a *Adapter) DerivedTTL(query bundle.Query) time.Duration {
	if query.Kind == bundle.QueryVersions {
		return a.options.VersionsTTL
	}

	return 0
}

// FetchRaw fetches the manifest and, when a version is set, its version document and asset index.
func (a *Adapter) FetchRaw(ctx context.Context, query bundle.Query) (source.Raw, error) {
	manifestData, err := a.fetcher.Fetch(ctx, a.options.ManifestURL)
	if err != nil {
		return nil, source.FetchError("version manifest", err)
	}

	raw := source.Raw{PartManifest: manifestData}
	if query.Version == "" {
		return raw, nil
	}

	parsed, err := parseManifest(manifestData)
	if err != nil {
		return nil, err
	}

	entry, ok := parsed.find(query.Version)
	if !ok {
		return nil, fmt.Errorf("version %s: %w", query.Version, bundle.ErrMetadataNotFound)
	}

	versionData, err := a.fetcher.Fetch(ctx, entry.URL)
	if err != nil {
		return nil, source.FetchError("version "+query.Version, err)
	}

	raw[PartVersion] = versionData

	document, err := versiondoc.Parse(versionData)
	if err != nil {
		return nil, source.ParseError("version "+query.Version, err)
	}

	if document.AssetIndex == nil || document.AssetIndex.URL == "" {
		return raw, nil
	}

	assetsData, err := a.fetcher.Fetch(ctx, document.AssetIndex.URL)
	if err != nil {
		return nil, source.FetchError("asset index "+document.AssetIndex.ID, err)
	}

	raw[PartAssets] = assetsData

	return raw, nil
}

// Extract implements source.Adapter.
func (a *Adapter) Extract(query bundle.Query, raw source.Raw) (*source.Data, error) {
	switch query.Kind {
	case bundle.QueryVersions:
		parsed, err := parseManifest(raw[PartManifest])
		if err != nil {
			return nil, err
		}

		return &source.Data{Versions: parsed.versions()}, nil
	case bundle.QueryDescriptor:
		descriptor, err := a.descriptor(query, raw)
		if err != nil {
			return nil, err
		}

		return &source.Data{Descriptor: descriptor}, nil
	default:
		return nil, source.UnsupportedKind(query)
	}
}

func (a *Adapter) descriptor(query bundle.Query, raw source.Raw) (*bundle.Descriptor, error) {
	versionData, ok := raw[PartVersion]
	if !ok {
		return nil, fmt.Errorf("version %q: %w", query.Version, bundle.ErrMetadataNotFound)
	}

	document, err := versiondoc.Parse(versionData)
	if err != nil {
		return nil, source.ParseError("version "+query.Version, err)
	}

	descriptor := document.Descriptor(a.options.Platform)

	if assetsData, ok := raw[PartAssets]; ok {
		descriptor.Assets, err = a.assets(assetsData)
		if err != nil {
			return nil, source.ParseError("asset index "+descriptor.AssetIndex.ID, err)
		}
	}

	return descriptor, nil
}

// assets expands the asset index into content-addressed objects sorted by name.
func (a *Adapter) assets(data []byte) ([]bundle.Asset, error) {
	var index versiondoc.AssetObjects
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(a.options.ResourcesURL, "/")
	assets := make([]bundle.Asset, 0, len(index.Objects))

	for name, object := range index.Objects {
		asset := bundle.Asset{Name: name, Hash: object.Hash, Size: object.Size}
		asset.URL = base + "/" + asset.ObjectPath()
		assets = append(assets, asset)
	}

	slices.SortFunc(assets, func(left, right bundle.Asset) int {
		return strings.Compare(left.Name, right.Name)
	})

	return assets, nil
}

func parseManifest(data []byte) (*manifest, error) {
	var parsed manifest
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, source.ParseError("version manifest", err)
	}

	return &parsed, nil
}

// find looks a version up; "latest" and "latest-snapshot" resolve through the latest block.
func (m *manifest) find(id string) (manifestVersion, bool) {
	switch id {
	case "latest", "latest-release":
		id = m.Latest.Release
	case "latest-snapshot":
		id = m.Latest.Snapshot
	}

	for _, version := range m.Versions {
		if version.ID == id {
			return version, true
		}
	}

	return manifestVersion{}, false
}

func (m *manifest) versions() []bundle.VersionInfo {
	result := make([]bundle.VersionInfo, 0, len(m.Versions))

	for _, version := range m.Versions {
		result = append(result, bundle.VersionInfo{
			ID:     version.ID,
			Type:   version.Type,
			Stable: version.Type == releaseType,
		})
	}

	return result
}
