// Package local is a metadata source backed by hand-authored descriptor YAML
// files, one per version: "<version>.yaml" for base descriptors and
// "<version>+<overlay>.yaml" for overlays.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
	"github.com/oshokin/bundle-launcher/internal/source"
)

// Name is the discriminant of the local source.
const Name = "local"

// Extension is the file extension of descriptor files.
const Extension = ".yaml"

// overlaySeparator joins base and overlay versions in file names.
const overlaySeparator = "+"

var errEmptyDescriptor = errors.New("descriptor has no id")

// Adapter implements source.Adapter over a directory.
type Adapter struct {
	dir    string
	rawTTL time.Duration
}

// New creates the adapter reading descriptors from dir.
func New(dir string, rawTTL time.Duration) *Adapter {
	return &Adapter{dir: dir, rawTTL: rawTTL}
}

// FileName returns the descriptor file name for a base and optional overlay version.
func FileName(version, overlay string) string {
	if overlay == "" {
		return version + Extension
	}

	return version + overlaySeparator + overlay + Extension
}

// Name implements source.Adapter.
func (a *Adapter) Name() string {
	return Name
}

// RawTTL implements source.Adapter.
func (a *Adapter) RawTTL() time.Duration {
	return a.rawTTL
}

// FetchRaw reads every descriptor file in the directory.
func (a *Adapter) FetchRaw(ctx context.Context, _ bundle.Query) (source.Raw, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("descriptor directory %s: %w", a.dir, bundle.ErrMetadataNotFound)
		}

		return nil, fmt.Errorf("descriptor directory %s: %w: %w", a.dir, bundle.ErrMetadataNetwork, err)
	}

	raw := make(source.Raw, len(entries))

	for _, entry := range entries {
		if err = ctx.Err(); err != nil {
			return nil, err
		}

		if entry.IsDir() || filepath.Ext(entry.Name()) != Extension {
			continue
		}

		data, err := os.ReadFile(filepath.Join(a.dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("descriptor %s: %w: %w", entry.Name(), bundle.ErrMetadataNetwork, err)
		}

		raw[entry.Name()] = data
	}

	return raw, nil
}

// Extract implements source.Adapter.
func (a *Adapter) Extract(query bundle.Query, raw source.Raw) (*source.Data, error) {
	switch query.Kind {
	case bundle.QueryVersions:
		return a.versions(raw)
	case bundle.QueryDescriptor:
		name := FileName(query.Version, query.Overlay)

		data, ok := raw[name]
		if !ok {
			return nil, fmt.Errorf("descriptor %s: %w", name, bundle.ErrMetadataNotFound)
		}

		descriptor, err := Decode(data)
		if err != nil {
			return nil, source.ParseError("descriptor "+name, err)
		}

		return &source.Data{Descriptor: descriptor}, nil
	default:
		return nil, source.UnsupportedKind(query)
	}
}

func (a *Adapter) versions(raw source.Raw) (*source.Data, error) {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}

	// Compare IDs, not file names: '+' sorts before the extension dot.
	slices.SortFunc(names, func(a, b string) int {
		return strings.Compare(strings.TrimSuffix(a, Extension), strings.TrimSuffix(b, Extension))
	})

	versions := make([]bundle.VersionInfo, 0, len(names))

	for _, name := range names {
		descriptor, err := Decode(raw[name])
		if err != nil {
			return nil, source.ParseError("descriptor "+name, err)
		}

		versions = append(versions, bundle.VersionInfo{
			ID:     strings.TrimSuffix(name, Extension),
			Type:   descriptor.Type,
			Stable: true,
		})
	}

	return &source.Data{Versions: versions}, nil
}

// Decode parses a descriptor file.
func Decode(data []byte) (*bundle.Descriptor, error) {
	var descriptor bundle.Descriptor
	if err := yaml.Unmarshal(data, &descriptor); err != nil {
		return nil, err
	}

	if descriptor.ID == "" {
		return nil, errEmptyDescriptor
	}

	return &descriptor, nil
}

// Encode renders a descriptor file.
func Encode(descriptor *bundle.Descriptor) ([]byte, error) {
	data, err := yaml.Marshal(descriptor)
	if err != nil {
		return nil, fmt.Errorf("marshal descriptor %s: %w", descriptor.ID, err)
	}

	return data, nil
}
