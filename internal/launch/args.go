package launch

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
	"github.com/oshokin/bundle-launcher/internal/layout"
	"github.com/oshokin/bundle-launcher/internal/version"
)

// Placeholder names understood by the builder.
const (
	PlaceholderPlayerName       = "auth_player_name"
	PlaceholderUUID             = "auth_uuid"
	PlaceholderAccessToken      = "auth_access_token"
	PlaceholderSession          = "auth_session"
	PlaceholderUserType         = "user_type"
	PlaceholderUserProperties   = "user_properties"
	PlaceholderVersionName      = "version_name"
	PlaceholderVersionType      = "version_type"
	PlaceholderGameDirectory    = "game_directory"
	PlaceholderAssetsRoot       = "assets_root"
	PlaceholderGameAssets       = "game_assets"
	PlaceholderAssetsIndexName  = "assets_index_name"
	PlaceholderNativesDirectory = "natives_directory"
	PlaceholderLauncherName     = "launcher_name"
	PlaceholderLauncherVersion  = "launcher_version"
	PlaceholderClasspath        = "classpath"
	PlaceholderClasspathSep     = "classpath_separator"
	PlaceholderLibraryDirectory = "library_directory"
	PlaceholderClientID         = "clientid"
	PlaceholderXUID             = "auth_xuid"
)

var (
	errNoMainClass   = errors.New("descriptor has no main class")
	errNoRuntimePath = errors.New("runtime path is not set")
	errNoGameDir     = errors.New("game directory is not set")
)

// Request holds everything needed to build a command line.
type Request struct {
	Descriptor *bundle.Descriptor
	Profile    bundle.Profile
	// RuntimePath is the runtime executable.
	RuntimePath string
	// GameDirectory is the per-instance directory the process runs in.
	GameDirectory string
	// NativesDirectory is the staging directory produced by the install.
	NativesDirectory string
	// Overrides win over computed placeholder values.
	Overrides map[string]string
	// ExtraJVMArgs are appended after the descriptor JVM arguments.
	ExtraJVMArgs []string
	// MinMemoryMB and MaxMemoryMB become -Xms and -Xmx when positive.
	MinMemoryMB int
	MaxMemoryMB int
}

// Command is a ready-to-spawn command line.
type Command struct {
	Path string
	Args []string
	Dir  string
}

// Builder turns requests into commands.
type Builder struct {
	layout *layout.Layout
}

// NewBuilder creates a builder resolving store paths through storeLayout.
func NewBuilder(storeLayout *layout.Layout) *Builder {
	return &Builder{layout: storeLayout}
}

// Build returns the command line: memory flags, JVM arguments, extra JVM
// arguments, the main class and the game arguments.
func (b *Builder) Build(request *Request) (*Command, error) {
	descriptor := request.Descriptor

	switch {
	case descriptor == nil || descriptor.MainClass == "":
		return nil, errNoMainClass
	case request.RuntimePath == "":
		return nil, errNoRuntimePath
	case request.GameDirectory == "":
		return nil, errNoGameDir
	}

	values := b.Placeholders(request)

	jvm := slices.Clone(descriptor.Arguments.JVM)
	if !containsPlaceholder(jvm, PlaceholderNativesDirectory) {
		jvm = append(jvm, "-Djava.library.path=${"+PlaceholderNativesDirectory+"}")
	}

	if !containsPlaceholder(jvm, PlaceholderClasspath) {
		jvm = append(jvm, "-cp", "${"+PlaceholderClasspath+"}")
	}

	args := make([]string, 0, len(jvm)+len(request.ExtraJVMArgs)+len(descriptor.Arguments.Game)+3)

	if request.MinMemoryMB > 0 {
		args = append(args, "-Xms"+strconv.Itoa(request.MinMemoryMB)+"M")
	}

	if request.MaxMemoryMB > 0 {
		args = append(args, "-Xmx"+strconv.Itoa(request.MaxMemoryMB)+"M")
	}

	for _, token := range jvm {
		args = append(args, Substitute(token, values))
	}

	args = append(args, request.ExtraJVMArgs...)
	args = append(args, descriptor.MainClass)

	for _, token := range descriptor.Arguments.Game {
		args = append(args, Substitute(token, values))
	}

	return &Command{
		Path: request.RuntimePath,
		Args: args,
		Dir:  request.GameDirectory,
	}, nil
}

// Placeholders returns computed defaults merged with the request overrides; overrides win.
func (b *Builder) Placeholders(request *Request) map[string]string {
	descriptor := request.Descriptor
	profile := request.Profile

	values := map[string]string{
		PlaceholderPlayerName:       profile.Name,
		PlaceholderUUID:             profile.ID,
		PlaceholderAccessToken:      profile.AccessToken,
		PlaceholderSession:          fmt.Sprintf("token:%s:%s", profile.AccessToken, profile.ID),
		PlaceholderUserType:         profile.UserType,
		PlaceholderUserProperties:   "{}",
		PlaceholderClientID:         "",
		PlaceholderXUID:             "",
		PlaceholderVersionName:      descriptor.ID,
		PlaceholderVersionType:      descriptor.Type,
		PlaceholderGameDirectory:    request.GameDirectory,
		PlaceholderAssetsRoot:       b.layout.AssetsDir(),
		PlaceholderGameAssets:       b.layout.AssetsDir(),
		PlaceholderNativesDirectory: request.NativesDirectory,
		PlaceholderLauncherName:     version.Name,
		PlaceholderLauncherVersion:  version.Version,
		PlaceholderClasspath:        strings.Join(b.Classpath(descriptor), string(os.PathListSeparator)),
		PlaceholderClasspathSep:     string(os.PathListSeparator),
		PlaceholderLibraryDirectory: b.layout.LibrariesDir(),
	}

	if descriptor.AssetIndex != nil {
		values[PlaceholderAssetsIndexName] = descriptor.AssetIndex.ID
	}

	for key, value := range request.Overrides {
		values[key] = value
	}

	return values
}

// Classpath lists the class path entries: libraries in order, then the main artifact.
func (b *Builder) Classpath(descriptor *bundle.Descriptor) []string {
	libraries := descriptor.ClasspathLibraries()
	entries := make([]string, 0, len(libraries)+1)

	for i := range libraries {
		entries = append(entries, b.layout.Library(&libraries[i]))
	}

	if descriptor.MainArtifact != nil {
		entries = append(entries, b.layout.MainArtifact(descriptor.BaseID()))
	}

	return entries
}

// Substitute replaces every known ${name} in template; unknown names are kept verbatim.
func Substitute(template string, values map[string]string) string {
	if !strings.Contains(template, "${") {
		return template
	}

	var builder strings.Builder

	for {
		start := strings.Index(template, "${")
		if start < 0 {
			break
		}

		end := strings.IndexByte(template[start:], '}')
		if end < 0 {
			break
		}

		end += start
		name := template[start+2 : end]

		builder.WriteString(template[:start])

		if value, ok := values[name]; ok {
			builder.WriteString(value)
		} else {
			builder.WriteString(template[start : end+1])
		}

		template = template[end+1:]
	}

	builder.WriteString(template)

	return builder.String()
}

func containsPlaceholder(tokens []string, name string) bool {
	needle := "${" + name + "}"

	for _, token := range tokens {
		if strings.Contains(token, needle) {
			return true
		}
	}

	return false
}
