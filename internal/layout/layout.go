// Package layout maps domain objects onto the on-disk store.
//
//	<root>/libraries/<maven path>        shared library store
//	<root>/versions/<id>/<id>.jar        main artifacts
//	<root>/assets/indexes/<id>.json      asset indexes
//	<root>/assets/objects/<hh>/<hash>    content-addressed asset objects
//	<root>/instances/<name>/             per-instance state
//	<root>/natives/natives-<uuid>/       per-launch native staging
package layout

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
)

// errInvalidInstanceName is returned for names that would escape the instances directory.
var errInvalidInstanceName = errors.New("invalid instance name")

// Layout resolves paths below one data root.
type Layout struct {
	root string
}

// New returns a layout rooted at root.
func New(root string) *Layout {
	return &Layout{root: filepath.Clean(root)}
}

// Root returns the data root.
func (l *Layout) Root() string {
	return l.root
}

// LibrariesDir is the shared library store; it becomes ${library_directory}.
func (l *Layout) LibrariesDir() string {
	return filepath.Join(l.root, "libraries")
}

// Library returns where a library lives in the shared store.
func (l *Layout) Library(library *bundle.Library) string {
	return filepath.Join(l.LibrariesDir(), filepath.FromSlash(library.StorePath()))
}

// VersionsDir holds main artifacts.
func (l *Layout) VersionsDir() string {
	return filepath.Join(l.root, "versions")
}

// MainArtifact returns the path of a descriptor's main artifact.
func (l *Layout) MainArtifact(descriptorID string) string {
	return filepath.Join(l.VersionsDir(), descriptorID, descriptorID+".jar")
}

// AssetsDir is the asset root; it becomes ${assets_root}.
func (l *Layout) AssetsDir() string {
	return filepath.Join(l.root, "assets")
}

// AssetIndex returns where an asset index document is stored.
func (l *Layout) AssetIndex(id string) string {
	return filepath.Join(l.AssetsDir(), "indexes", id+".json")
}

// AssetObject returns where one asset object is stored.
func (l *Layout) AssetObject(asset *bundle.Asset) string {
	return filepath.Join(l.AssetsDir(), "objects", filepath.FromSlash(asset.ObjectPath()))
}

// InstancesDir holds every per-instance directory.
func (l *Layout) InstancesDir() string {
	return filepath.Join(l.root, "instances")
}

// Instance returns the per-instance directory, rejecting names that are
// empty, contain separators or point at a parent directory.
func (l *Layout) Instance(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", fmt.Errorf("%q: %w", name, errInvalidInstanceName)
	}

	return filepath.Join(l.InstancesDir(), name), nil
}

// ContentPack returns where a content pack is stored inside an instance directory.
func (l *Layout) ContentPack(instanceDir string, pack *bundle.ContentPack) string {
	target := pack.Path
	if target == "" {
		target = pack.Name
	}

	return filepath.Join(instanceDir, filepath.FromSlash(target))
}

// NativesDir is the parent of every staging directory.
func (l *Layout) NativesDir() string {
	return filepath.Join(l.root, "natives")
}
