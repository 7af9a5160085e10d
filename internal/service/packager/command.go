package packager

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/oshokin/bundle-launcher/internal/config"
	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
	"github.com/oshokin/bundle-launcher/internal/logger"
	"github.com/oshokin/bundle-launcher/internal/service/common"
	"github.com/oshokin/bundle-launcher/internal/source/local"
	"github.com/oshokin/bundle-launcher/internal/verify"
)

// Options contains inputs for the packager entry point.
type Options struct {
	// ConfigPath is an optional path to the settings file.
	ConfigPath string
	// Dir holds the libraries, laid out like a maven repository.
	Dir string
	// BaseURL is where the contents of Dir will be uploaded.
	BaseURL string
	// Version is the descriptor version; with Overlay set it is the inherited base.
	Version string
	// Overlay is the optional overlay version.
	Overlay string
	// MainClass is the entry point of the client.
	MainClass string
	// MainArtifact is an optional path inside Dir of the client jar.
	MainArtifact string
	// MinRuntime is the minimum runtime major version; zero omits it.
	MinRuntime int
	// JVMArgs and GameArgs are argument templates copied into the descriptor.
	JVMArgs  []string
	GameArgs []string
	// OutputDir overrides the descriptor directory of the local source.
	OutputDir string
	// Force overwrites an existing descriptor.
	Force bool
}

const (
	// jarExtension marks files that become libraries.
	jarExtension = ".jar"
	// nativesPrefix marks classifiers of native archives.
	nativesPrefix = "natives-"
	// fallbackGroup is the group of jars found outside a maven layout.
	fallbackGroup = "local"
)

var (
	errDirRequired       = errors.New("library directory is required")
	errBaseURLRequired   = errors.New("base URL is required")
	errVersionRequired   = errors.New("version is required")
	errMainClassRequired = errors.New("main class is required for base descriptors")
	// errDescriptorExists protects hand-edited descriptors from being replaced.
	errDescriptorExists = errors.New("descriptor already exists, use --force to overwrite")
)

// packager builds one descriptor file.
// It is unexported: callers should use Run, which encapsulates setup and validation.
type packager struct {
	// opts are the validated inputs.
	opts *Options
	// outputDir is where the descriptor is written.
	outputDir string
	// files lists every file that has to be uploaded, relative to Dir.
	files []string
}

// Run executes the packaging workflow.
func Run(ctx context.Context, opts *Options) error {
	// Load settings from configuration file.
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	common.ConfigureLogger(ctx, settings)

	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "bundle-packager")

	target, err := Package(ctx, settings, opts)
	if err != nil {
		return fmt.Errorf("packager failed: %w", err)
	}

	logger.InfoKV(ctx, "Packager completed successfully", "descriptor", target)

	return nil
}

// Package writes the descriptor described by opts and returns its path.
func Package(ctx context.Context, settings *config.Config, opts *Options) (string, error) {
	if err := validate(opts); err != nil {
		return "", err
	}

	pkg := &packager{opts: opts, outputDir: opts.OutputDir}
	if pkg.outputDir == "" {
		pkg.outputDir = settings.Sources.LocalDir
	}

	descriptor, err := pkg.describe(ctx)
	if err != nil {
		return "", err
	}

	target, err := pkg.save(descriptor)
	if err != nil {
		return "", err
	}

	pkg.printNextSteps(ctx)

	return target, nil
}

func validate(opts *Options) error {
	switch {
	case opts.Dir == "":
		return errDirRequired
	case opts.BaseURL == "":
		return errBaseURLRequired
	case opts.Version == "":
		return errVersionRequired
	case opts.Overlay == "" && opts.MainClass == "":
		return errMainClassRequired
	default:
		return nil
	}
}

// describe walks the library directory and fills the descriptor.
func (p *packager) describe(ctx context.Context) (*bundle.Descriptor, error) {
	descriptor := &bundle.Descriptor{
		ID:         p.opts.Version,
		Type:       local.Name,
		MainClass:  p.opts.MainClass,
		Arguments:  bundle.Arguments{Game: p.opts.GameArgs, JVM: p.opts.JVMArgs},
		MinRuntime: p.opts.MinRuntime,
	}

	if p.opts.Overlay != "" {
		descriptor.ID = p.opts.Overlay
		descriptor.InheritsFrom = p.opts.Version
	}

	mainArtifact := filepath.ToSlash(filepath.Clean(p.opts.MainArtifact))

	err := filepath.WalkDir(p.opts.Dir, func(filePath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if err = ctx.Err(); err != nil {
			return err
		}

		if entry.IsDir() || !strings.EqualFold(filepath.Ext(filePath), jarExtension) {
			return nil
		}

		rel, err := filepath.Rel(p.opts.Dir, filePath)
		if err != nil {
			return err
		}

		rel = filepath.ToSlash(rel)

		fileDigest, size, err := verify.FileDigest(filePath)
		if err != nil {
			return err
		}

		p.files = append(p.files, rel)

		if p.opts.MainArtifact != "" && rel == mainArtifact {
			descriptor.MainArtifact = &bundle.Artifact{URL: p.url(rel), Hash: fileDigest.String(), Size: size}

			return nil
		}

		library := libraryFor(rel, p.opts.Version)
		library.URL = p.url(rel)
		library.Hash = fileDigest.String()
		library.Size = size

		logger.DebugKV(ctx, "Library packaged", "name", library.Name, "size", size)

		descriptor.Libraries = append(descriptor.Libraries, library)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", p.opts.Dir, err)
	}

	if p.opts.MainArtifact != "" && descriptor.MainArtifact == nil {
		return nil, fmt.Errorf("main artifact %s: %w", p.opts.MainArtifact, os.ErrNotExist)
	}

	return descriptor, nil
}

// url joins the base URL and a slash-separated relative path.
func (p *packager) url(rel string) string {
	return strings.TrimSuffix(p.opts.BaseURL, "/") + "/" + rel
}

// save writes the descriptor into the local source directory.
func (p *packager) save(descriptor *bundle.Descriptor) (string, error) {
	target := filepath.Join(p.outputDir, local.FileName(p.opts.Version, p.opts.Overlay))

	if !p.opts.Force {
		if _, err := os.Stat(target); err == nil {
			return "", fmt.Errorf("%s: %w", target, errDescriptorExists)
		}
	}

	data, err := local.Encode(descriptor)
	if err != nil {
		return "", err
	}

	if err = os.MkdirAll(p.outputDir, config.DefaultDirPermissions); err != nil {
		return "", fmt.Errorf("create %s: %w", p.outputDir, err)
	}

	if err = os.WriteFile(target, data, config.DefaultFilePermissions); err != nil {
		return "", fmt.Errorf("write descriptor: %w", err)
	}

	return target, nil
}

// printNextSteps logs human-readable guidance for uploading the packaged files.
func (p *packager) printNextSteps(ctx context.Context) {
	files := slices.Clone(p.files)
	slices.Sort(files)

	var builder strings.Builder

	builder.WriteString("You should upload the following files to ")
	builder.WriteString(p.opts.BaseURL)
	builder.WriteString(":\n")
	builder.WriteString(strings.Join(files, ",\n"))

	logger.Info(ctx, builder.String())
}

// libraryFor derives the library coordinate from a path inside a maven layout:
// group/path/artifact/version/artifact-version[-classifier].jar.
// Jars outside that layout keep their path and get a local coordinate.
func libraryFor(rel, fallbackVersion string) bundle.Library {
	parts := strings.Split(rel, "/")
	fileName := parts[len(parts)-1]
	stem := strings.TrimSuffix(fileName, path.Ext(fileName))

	if len(parts) >= 4 {
		ver := parts[len(parts)-2]
		artifact := parts[len(parts)-3]
		group := strings.Join(parts[:len(parts)-3], ".")

		if rest, ok := strings.CutPrefix(stem, artifact+"-"+ver); ok {
			switch {
			case rest == "":
				return bundle.Library{Name: group + ":" + artifact + ":" + ver}
			case strings.HasPrefix(rest, "-"):
				classifier := rest[1:]
				library := bundle.Library{Name: group + ":" + artifact + ":" + ver + ":" + classifier}

				if strings.HasPrefix(classifier, nativesPrefix) {
					library.Natives = classifier
				}

				return library
			}
		}
	}

	return bundle.Library{
		Name: fallbackGroup + ":" + stem + ":" + fallbackVersion,
		Path: rel,
	}
}
