// Package natives stages platform binaries for one launch.
//
// Every Stage call extracts into a fresh "natives-<uuid>" directory, so a
// launch never sees files left behind by another one. Directories are
// reclaimed after the process exits.
package natives

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/oshokin/bundle-launcher/internal/archive"
	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
	"github.com/oshokin/bundle-launcher/internal/logger"
)

// DirPrefix starts the name of every staging directory.
const DirPrefix = "natives-"

// metadataPrefix holds signatures and manifests that are never needed at run time.
const metadataPrefix = "META-INF/"

const dirPermissions = 0o755

var errForeignDirectory = errors.New("not a staging directory")

// Stager extracts native archives below root.
type Stager struct {
	root string
}

// New creates a stager that places staging directories below root.
func New(root string) *Stager {
	return &Stager{root: filepath.Clean(root)}
}

// Root returns the directory holding every staging directory.
func (s *Stager) Root() string {
	return s.root
}

// Stage creates a new staging directory and extracts every archive into it,
// skipping metadata entries and flattening directories. The directory is
// created even when there is nothing to extract.
func (s *Stager) Stage(ctx context.Context, descriptor *bundle.Descriptor, archives []string) (string, error) {
	dir := filepath.Join(s.root, DirPrefix+uuid.NewString())

	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return "", fmt.Errorf("create staging directory %s: %w: %w", dir, bundle.ErrExtractionFailed, err)
	}

	var files int

	for _, path := range archives {
		if err := ctx.Err(); err != nil {
			_ = os.RemoveAll(dir)
			return "", err
		}

		written, err := archive.Extract(path, dir, archive.WithExclude(metadataPrefix), archive.WithFlatten())
		if err != nil {
			_ = os.RemoveAll(dir)
			return "", fmt.Errorf("stage %s: %w: %w", path, bundle.ErrExtractionFailed, err)
		}

		files += written
	}

	logger.DebugKV(ctx, "Staged natives", "descriptor", descriptor.ID, "dir", dir, "archives", len(archives), "files", files)

	return dir, nil
}

// Reclaim removes a staging directory created by Stage.
func (s *Stager) Reclaim(dir string) error {
	if !s.owns(dir) {
		return fmt.Errorf("%s: %w", dir, errForeignDirectory)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("reclaim %s: %w", dir, err)
	}

	return nil
}

// Sweep removes every staging directory except those in active and returns how many were removed.
func (s *Stager) Sweep(active []string) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}

		return 0, fmt.Errorf("list %s: %w", s.root, err)
	}

	keep := make(map[string]struct{}, len(active))
	for _, dir := range active {
		keep[filepath.Clean(dir)] = struct{}{}
	}

	var removed int

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), DirPrefix) {
			continue
		}

		dir := filepath.Join(s.root, entry.Name())
		if _, ok := keep[dir]; ok {
			continue
		}

		if err = os.RemoveAll(dir); err != nil {
			return removed, fmt.Errorf("reclaim %s: %w", dir, err)
		}

		removed++
	}

	return removed, nil
}

func (s *Stager) owns(dir string) bool {
	dir = filepath.Clean(dir)

	return filepath.Dir(dir) == s.root && strings.HasPrefix(filepath.Base(dir), DirPrefix)
}
