// Package archive unpacks zip archives such as native libraries and content packs.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	dirPermissions  = 0o755
	filePermissions = 0o644
)

// ErrUnsafePath is returned for entries that would be written outside the destination.
var ErrUnsafePath = errors.New("archive entry escapes destination")

// Option configures Extract.
type Option func(*options)

type options struct {
	exclude []string
	flatten bool
}

// WithExclude skips entries whose slash-separated name starts with any of prefixes.
func WithExclude(prefixes ...string) Option {
	return func(o *options) {
		o.exclude = append(o.exclude, prefixes...)
	}
}

// WithFlatten writes every file directly into the destination, dropping directories.
func WithFlatten() Option {
	return func(o *options) {
		o.flatten = true
	}
}

// Extract unpacks the zip archive at archivePath into destination and returns
// the number of files written.
func Extract(archivePath, destination string, opts ...Option) (int, error) {
	var settings options
	for _, opt := range opts {
		opt(&settings)
	}

	reader, err := zip.OpenReader(filepath.Clean(archivePath))
	if err != nil {
		return 0, fmt.Errorf("open archive %s: %w", archivePath, err)
	}

	defer func() {
		_ = reader.Close()
	}()

	if err = os.MkdirAll(destination, dirPermissions); err != nil {
		return 0, fmt.Errorf("create %s: %w", destination, err)
	}

	var written int

	for _, file := range reader.File {
		name := path.Clean(strings.ReplaceAll(file.Name, "\\", "/"))
		if file.FileInfo().IsDir() || settings.excluded(name) {
			continue
		}

		target, err := settings.target(destination, name)
		if err != nil {
			return written, fmt.Errorf("%s: %w", archivePath, err)
		}

		if err = extractFile(file, target); err != nil {
			return written, fmt.Errorf("%s: %w", archivePath, err)
		}

		written++
	}

	return written, nil
}

func (o *options) excluded(name string) bool {
	for _, prefix := range o.exclude {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}

	return false
}

func (o *options) target(destination, name string) (string, error) {
	if o.flatten {
		name = path.Base(name)
	}

	target := filepath.Join(destination, filepath.FromSlash(name))

	relative, err := filepath.Rel(destination, target)
	if err != nil || relative == "." || strings.HasPrefix(relative, "..") {
		return "", fmt.Errorf("%q: %w", name, ErrUnsafePath)
	}

	return target, nil
}

func extractFile(file *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), dirPermissions); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(target), err)
	}

	source, err := file.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", file.Name, err)
	}

	defer func() {
		_ = source.Close()
	}()

	destination, err := os.OpenFile(filepath.Clean(target), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermissions)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}

	//nolint:gosec // Archives come from verified downloads.
	if _, err = io.Copy(destination, source); err != nil {
		_ = destination.Close()

		return fmt.Errorf("write %s: %w", target, err)
	}

	return destination.Close()
}
