package versiondoc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
)

// DefaultLibraryRepository is used for libraries that declare neither downloads nor a repository.
const DefaultLibraryRepository = "https://libraries.minecraft.net/"

const nativesClassifierPrefix = "natives-"

var (
	errInvalidArgument = errors.New("argument must be a string or an object with rules and value")
	errMissingID       = errors.New("version document has no id")
)

// Document is one version document.
type Document struct {
	ID           string `json:"id"`
	Type         string `json:"type,omitempty"`
	InheritsFrom string `json:"inheritsFrom,omitempty"`
	MainClass    string `json:"mainClass,omitempty"`
	// MinecraftArguments is the legacy space-separated game argument string.
	MinecraftArguments string              `json:"minecraftArguments,omitempty"`
	Arguments          *Arguments          `json:"arguments,omitempty"`
	AssetIndex         *AssetIndex         `json:"assetIndex,omitempty"`
	Downloads          map[string]Download `json:"downloads,omitempty"`
	JavaVersion        *JavaVersion        `json:"javaVersion,omitempty"`
	Libraries          []Library           `json:"libraries,omitempty"`
}

// Arguments holds modern argument lists.
type Arguments struct {
	Game []Argument `json:"game,omitempty"`
	JVM  []Argument `json:"jvm,omitempty"`
}

// Argument is either a plain token or a rule-guarded group of tokens.
type Argument struct {
	Rules  []Rule
	Values []string
}

// UnmarshalJSON accepts "token" and {"rules": [...], "value": "token" | ["a", "b"]}.
func (a *Argument) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		a.Values = []string{plain}
		return nil
	}

	var guarded struct {
		Rules []Rule          `json:"rules"`
		Value json.RawMessage `json:"value"`
	}

	if err := json.Unmarshal(data, &guarded); err != nil {
		return fmt.Errorf("%w: %w", errInvalidArgument, err)
	}

	a.Rules = guarded.Rules

	if err := json.Unmarshal(guarded.Value, &plain); err == nil {
		a.Values = []string{plain}
		return nil
	}

	if err := json.Unmarshal(guarded.Value, &a.Values); err != nil {
		return fmt.Errorf("%w: %w", errInvalidArgument, err)
	}

	return nil
}

// AssetIndex references the asset index document.
type AssetIndex struct {
	ID        string `json:"id"`
	SHA1      string `json:"sha1,omitempty"`
	Size      int64  `json:"size,omitempty"`
	TotalSize int64  `json:"totalSize,omitempty"`
	URL       string `json:"url"`
}

// Download is one downloadable file.
type Download struct {
	Path string `json:"path,omitempty"`
	SHA1 string `json:"sha1,omitempty"`
	Size int64  `json:"size,omitempty"`
	URL  string `json:"url"`
}

// JavaVersion is the runtime requirement.
type JavaVersion struct {
	Component    string `json:"component,omitempty"`
	MajorVersion int    `json:"majorVersion"`
}

// Library is one library entry. Vanilla documents use Downloads; loader
// documents use a maven repository URL plus optional hashes.
type Library struct {
	Name      string            `json:"name"`
	URL       string            `json:"url,omitempty"`
	SHA1      string            `json:"sha1,omitempty"`
	SHA256    string            `json:"sha256,omitempty"`
	Size      int64             `json:"size,omitempty"`
	Downloads *LibraryDownloads `json:"downloads,omitempty"`
	Natives   map[string]string `json:"natives,omitempty"`
	Rules     []Rule            `json:"rules,omitempty"`
}

// LibraryDownloads holds the main artifact and legacy native classifiers.
type LibraryDownloads struct {
	Artifact    *Download           `json:"artifact,omitempty"`
	Classifiers map[string]Download `json:"classifiers,omitempty"`
}

// AssetObjects is the asset index document.
type AssetObjects struct {
	Objects map[string]AssetObject `json:"objects"`
}

// AssetObject is one entry of the asset index.
type AssetObject struct {
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// Parse decodes a version document.
func Parse(data []byte) (*Document, error) {
	var document Document
	if err := json.Unmarshal(data, &document); err != nil {
		return nil, err
	}

	if document.ID == "" {
		return nil, errMissingID
	}

	return &document, nil
}

// Descriptor converts the document into a descriptor for platform.
// Libraries and arguments whose rules reject platform are dropped.
func (d *Document) Descriptor(platform Platform) *bundle.Descriptor {
	descriptor := &bundle.Descriptor{
		ID:           d.ID,
		Type:         d.Type,
		InheritsFrom: d.InheritsFrom,
		MainClass:    d.MainClass,
	}

	if client, ok := d.Downloads["client"]; ok && client.URL != "" {
		descriptor.MainArtifact = &bundle.Artifact{URL: client.URL, Hash: client.SHA1, Size: client.Size}
	}

	if d.AssetIndex != nil {
		descriptor.AssetIndex = &bundle.AssetIndex{
			ID:        d.AssetIndex.ID,
			URL:       d.AssetIndex.URL,
			Hash:      d.AssetIndex.SHA1,
			Size:      d.AssetIndex.Size,
			TotalSize: d.AssetIndex.TotalSize,
		}
	}

	if d.JavaVersion != nil {
		descriptor.MinRuntime = d.JavaVersion.MajorVersion
	}

	for i := range d.Libraries {
		library := &d.Libraries[i]
		if !Allowed(library.Rules, platform) {
			continue
		}

		if entry, ok := library.artifact(); ok {
			descriptor.Libraries = append(descriptor.Libraries, entry)
		}

		if native, ok := library.legacyNative(platform); ok {
			descriptor.Natives = append(descriptor.Natives, native)
		}
	}

	switch {
	case d.Arguments != nil:
		descriptor.Arguments.Game = flatten(d.Arguments.Game, platform)
		descriptor.Arguments.JVM = flatten(d.Arguments.JVM, platform)
	case d.MinecraftArguments != "":
		descriptor.Arguments.Game = strings.Fields(d.MinecraftArguments)
	}

	return descriptor
}

// artifact returns the class path (or modern native) entry of the library.
func (l *Library) artifact() (bundle.Library, bool) {
	entry := bundle.Library{Name: l.Name}

	if classifier := classifierOf(l.Name); strings.HasPrefix(classifier, nativesClassifierPrefix) {
		entry.Natives = classifier
	}

	switch {
	case l.Downloads != nil && l.Downloads.Artifact != nil:
		artifact := l.Downloads.Artifact
		entry.URL, entry.Hash, entry.Size, entry.Path = artifact.URL, artifact.SHA1, artifact.Size, artifact.Path
	case l.Downloads != nil:
		// Legacy native-only libraries have classifiers but no main artifact.
		return bundle.Library{}, false
	default:
		repository := l.URL
		if repository == "" {
			repository = DefaultLibraryRepository
		}

		entry.URL = strings.TrimSuffix(repository, "/") + "/" + bundle.MavenPath(l.Name)
		entry.Size = l.Size

		entry.Hash = l.SHA1
		if entry.Hash == "" {
			entry.Hash = l.SHA256
		}
	}

	return entry, entry.URL != ""
}

// legacyNative returns the native classifier download of pre-1.19 documents.
func (l *Library) legacyNative(platform Platform) (bundle.Library, bool) {
	classifier, ok := l.Natives[platform.OS]
	if !ok || l.Downloads == nil {
		return bundle.Library{}, false
	}

	classifier = strings.ReplaceAll(classifier, "${arch}", platform.Bitness())

	download, ok := l.Downloads.Classifiers[classifier]
	if !ok || download.URL == "" {
		return bundle.Library{}, false
	}

	return bundle.Library{
		Name:    l.Name + ":" + classifier,
		URL:     download.URL,
		Hash:    download.SHA1,
		Size:    download.Size,
		Natives: classifier,
		Path:    download.Path,
	}, true
}

func classifierOf(coordinate string) string {
	coordinate, _, _ = strings.Cut(coordinate, "@")

	parts := strings.Split(coordinate, ":")
	if len(parts) < 4 {
		return ""
	}

	return parts[3]
}

func flatten(arguments []Argument, platform Platform) []string {
	var result []string

	for i := range arguments {
		if Allowed(arguments[i].Rules, platform) {
			result = append(result, arguments[i].Values...)
		}
	}

	return result
}
