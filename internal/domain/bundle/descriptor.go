package bundle

import (
	"path"
	"strings"
)

// Library is one entry of the runtime class path or one native archive.
type Library struct {
	// Name is the maven coordinate group:artifact:version[:classifier].
	Name string `json:"name" yaml:"name"`
	// URL is where the artifact is downloaded from.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
	// Hash is the declared content hash; empty when the source omits it.
	Hash string `json:"hash,omitempty" yaml:"hash,omitempty"`
	// Size is the declared size in bytes; zero when unknown.
	Size int64 `json:"size,omitempty" yaml:"size,omitempty"`
	// Natives is the platform qualifier. A non-empty value marks a native
	// archive that is extracted into the staging directory instead of being
	// placed on the class path.
	Natives string `json:"natives,omitempty" yaml:"natives,omitempty"`
	// Path overrides the location inside the shared library store.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// IsNative reports whether the library must be extracted rather than class-path placed.
func (l *Library) IsNative() bool {
	return l.Natives != ""
}

// StorePath returns the slash-separated location inside the library store.
func (l *Library) StorePath() string {
	if l.Path != "" {
		return l.Path
	}

	return MavenPath(l.Name)
}

// Identity is the name+hash pair used to deduplicate libraries during merges.
func (l *Library) Identity() string {
	return l.Name + "@" + l.Hash
}

// Artifact is a single downloadable file, such as the main client jar.
type Artifact struct {
	URL  string `json:"url" yaml:"url"`
	Hash string `json:"hash,omitempty" yaml:"hash,omitempty"`
	Size int64  `json:"size,omitempty" yaml:"size,omitempty"`
}

// AssetIndex points at the document listing every asset object.
type AssetIndex struct {
	ID        string `json:"id" yaml:"id"`
	URL       string `json:"url" yaml:"url"`
	Hash      string `json:"hash,omitempty" yaml:"hash,omitempty"`
	Size      int64  `json:"size,omitempty" yaml:"size,omitempty"`
	TotalSize int64  `json:"totalSize,omitempty" yaml:"total_size,omitempty"`
}

// Asset is one content-addressed object from the asset index.
type Asset struct {
	// Name is the logical path of the asset, e.g. "minecraft/sounds/ambient/cave/cave1.ogg".
	Name string `json:"name" yaml:"name"`
	Hash string `json:"hash" yaml:"hash"`
	Size int64  `json:"size" yaml:"size"`
	URL  string `json:"url" yaml:"url"`
}

// ObjectPath returns the slash-separated location inside the asset object store.
func (a *Asset) ObjectPath() string {
	if len(a.Hash) < 2 {
		return a.Hash
	}

	return a.Hash[:2] + "/" + a.Hash
}

// ContentPack is an optional archive installed into the instance directory.
type ContentPack struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
	Hash string `json:"hash,omitempty" yaml:"hash,omitempty"`
	Size int64  `json:"size,omitempty" yaml:"size,omitempty"`
	// Path is relative to the instance directory, e.g. "resourcepacks/faithful.zip".
	Path string `json:"path" yaml:"path"`
}

// Arguments are the argument templates with ${placeholder} tokens.
// Rules have already been evaluated for the current platform.
type Arguments struct {
	Game []string `json:"game,omitempty" yaml:"game,omitempty"`
	JVM  []string `json:"jvm,omitempty" yaml:"jvm,omitempty"`
}

// Descriptor is the canonical resolved bundle.
// It is shared by pointer and must not be modified after construction.
type Descriptor struct {
	ID           string        `json:"id" yaml:"id"`
	Type         string        `json:"type,omitempty" yaml:"type,omitempty"`
	InheritsFrom string        `json:"inheritsFrom,omitempty" yaml:"inherits_from,omitempty"`
	MainClass    string        `json:"mainClass" yaml:"main_class"`
	MainArtifact *Artifact     `json:"mainArtifact,omitempty" yaml:"main_artifact,omitempty"`
	Libraries    []Library     `json:"libraries,omitempty" yaml:"libraries,omitempty"`
	Natives      []Library     `json:"natives,omitempty" yaml:"natives,omitempty"`
	AssetIndex   *AssetIndex   `json:"assetIndex,omitempty" yaml:"asset_index,omitempty"`
	Assets       []Asset       `json:"assets,omitempty" yaml:"assets,omitempty"`
	ContentPacks []ContentPack `json:"contentPacks,omitempty" yaml:"content_packs,omitempty"`
	Arguments    Arguments     `json:"arguments" yaml:"arguments"`
	// MinRuntime is the minimum major version of the runtime, 0 when unspecified.
	MinRuntime int `json:"minRuntime,omitempty" yaml:"min_runtime,omitempty"`
}

// BaseID is the ID of the base version: InheritsFrom for overlays and merged
// descriptors, ID otherwise. Main artifacts are stored under it.
func (d *Descriptor) BaseID() string {
	if d.InheritsFrom != "" {
		return d.InheritsFrom
	}

	return d.ID
}

// ClasspathLibraries returns the libraries placed on the class path, in order.
func (d *Descriptor) ClasspathLibraries() []Library {
	result := make([]Library, 0, len(d.Libraries))

	for i := range d.Libraries {
		if !d.Libraries[i].IsNative() {
			result = append(result, d.Libraries[i])
		}
	}

	return result
}

// NativeLibraries returns every native archive, both the explicit natives
// list and libraries carrying a platform qualifier.
func (d *Descriptor) NativeLibraries() []Library {
	result := make([]Library, 0, len(d.Natives))
	result = append(result, d.Natives...)

	for i := range d.Libraries {
		if d.Libraries[i].IsNative() {
			result = append(result, d.Libraries[i])
		}
	}

	return result
}

// MavenPath converts group:artifact:version[:classifier][@ext] into the
// repository layout group/path/artifact/version/artifact-version[-classifier].ext.
// Malformed coordinates are returned unchanged.
func MavenPath(coordinate string) string {
	extension := "jar"

	if before, after, found := strings.Cut(coordinate, "@"); found {
		coordinate, extension = before, after
	}

	parts := strings.Split(coordinate, ":")
	if len(parts) < 3 {
		return coordinate
	}

	group, artifact, ver := parts[0], parts[1], parts[2]

	fileName := artifact + "-" + ver
	if len(parts) > 3 && parts[3] != "" {
		fileName += "-" + parts[3]
	}

	return path.Join(strings.ReplaceAll(group, ".", "/"), artifact, ver, fileName+"."+extension)
}

// MavenKey returns group:artifact[:classifier] so that two versions of the
// same library can be recognised.
func MavenKey(coordinate string) string {
	coordinate, _, _ = strings.Cut(coordinate, "@")

	parts := strings.Split(coordinate, ":")
	if len(parts) < 3 {
		return coordinate
	}

	key := parts[0] + ":" + parts[1]
	if len(parts) > 3 && parts[3] != "" {
		key += ":" + parts[3]
	}

	return key
}
