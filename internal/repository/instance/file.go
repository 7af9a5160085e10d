package instance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/bundle-launcher/internal/config"
	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
	"github.com/oshokin/bundle-launcher/internal/layout"
)

// FileName is the metadata file inside every instance directory.
const FileName = "instance.yaml"

// Repository defines persistence operations for instance metadata.
type Repository interface {
	Load(ctx context.Context, name string) (*bundle.Instance, error)
	Save(ctx context.Context, instance *bundle.Instance) error
	List(ctx context.Context) ([]*bundle.Instance, error)
}

// FileRepository persists instances as YAML files under the instances directory.
type FileRepository struct {
	// layout resolves instance directories.
	layout *layout.Layout
	// mu protects concurrent access to the metadata files.
	mu sync.Mutex
}

var (
	// ErrNotFound is returned when an instance has no metadata file yet.
	ErrNotFound = errors.New("instance not found")

	errInstanceIsNotSet = errors.New("instance is not set")
)

// NewFileRepository creates a repository rooted at the instances directory of storeLayout.
func NewFileRepository(storeLayout *layout.Layout) *FileRepository {
	return &FileRepository{
		layout: storeLayout,
	}
}

// Load reads the metadata of name.
func (r *FileRepository) Load(_ context.Context, name string) (*bundle.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.load(name)
}

// Save writes the metadata, creating the instance directory when needed.
func (r *FileRepository) Save(_ context.Context, instance *bundle.Instance) error {
	if instance == nil {
		return errInstanceIsNotSet
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.save(instance)
}

// Touch records a launch of name at the given time.
func (r *FileRepository) Touch(_ context.Context, name string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	instance, err := r.load(name)
	if err != nil {
		return err
	}

	instance.LastLaunchedAt = at

	return r.save(instance)
}

// List returns every instance with readable metadata, sorted by name.
// Directories without a metadata file are skipped.
func (r *FileRepository) List(_ context.Context) ([]*bundle.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(r.layout.InstancesDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read instances directory: %w", err)
	}

	instances := make([]*bundle.Instance, 0, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		instance, err := r.load(entry.Name())
		if errors.Is(err, ErrNotFound) {
			continue
		}

		if err != nil {
			return nil, err
		}

		instances = append(instances, instance)
	}

	slices.SortFunc(instances, func(left, right *bundle.Instance) int {
		return strings.Compare(left.Name, right.Name)
	})

	return instances, nil
}

func (r *FileRepository) load(name string) (*bundle.Instance, error) {
	dir, err := r.layout.Instance(name)
	if err != nil {
		return nil, err
	}

	contents, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}

		return nil, fmt.Errorf("read instance file: %w", err)
	}

	var instance bundle.Instance
	if err = yaml.Unmarshal(contents, &instance); err != nil {
		return nil, fmt.Errorf("decode instance file: %w", err)
	}

	// The directory name is authoritative.
	instance.Name = name

	return &instance, nil
}

func (r *FileRepository) save(instance *bundle.Instance) error {
	dir, err := r.layout.Instance(instance.Name)
	if err != nil {
		return err
	}

	if err = os.MkdirAll(dir, config.DefaultDirPermissions); err != nil {
		return fmt.Errorf("create instance directory: %w", err)
	}

	data, err := yaml.Marshal(instance)
	if err != nil {
		return fmt.Errorf("encode instance: %w", err)
	}

	if err = os.WriteFile(filepath.Join(dir, FileName), data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write instance file: %w", err)
	}

	return nil
}
