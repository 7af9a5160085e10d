package install

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
	"github.com/oshokin/bundle-launcher/internal/verify"
)

// Category groups files that are planned and transferred together.
type Category string

const (
	CategoryLibraries    Category = "libraries"
	CategoryNatives      Category = "natives"
	CategoryMainArtifact Category = "main_artifact"
	CategoryAssets       Category = "assets"
	CategoryContentPacks Category = "content_packs"
)

// Categories lists every category in planning order.
//
//nolint:gochecknoglobals // Read-only list.
var Categories = []Category{
	CategoryLibraries,
	CategoryNatives,
	CategoryMainArtifact,
	CategoryAssets,
	CategoryContentPacks,
}

// Task is one file to download.
type Task struct {
	URL         string
	Destination string
	// Hash is optional; without it only existence (and Size, when set) is checked.
	Hash     string
	Size     int64
	Category Category
}

// Plan holds the tasks of every category plus the on-disk native archives to stage.
type Plan struct {
	Tasks map[Category][]Task
	// Natives are the paths of every native archive, whether downloaded or already valid.
	Natives []string
}

// Total returns the number of planned transfers.
func (p *Plan) Total() int {
	var total int
	for _, tasks := range p.Tasks {
		total += len(tasks)
	}

	return total
}

// candidates lists every file of a category, valid or not.
func (c *Coordinator) candidates(descriptor *bundle.Descriptor, instanceDir string) (map[Category][]Task, error) {
	result := make(map[Category][]Task, len(Categories))

	for _, library := range descriptor.ClasspathLibraries() {
		result[CategoryLibraries] = append(result[CategoryLibraries], Task{
			URL:         library.URL,
			Destination: c.layout.Library(&library),
			Hash:        library.Hash,
			Size:        library.Size,
			Category:    CategoryLibraries,
		})
	}

	for _, library := range descriptor.NativeLibraries() {
		result[CategoryNatives] = append(result[CategoryNatives], Task{
			URL:         library.URL,
			Destination: c.layout.Library(&library),
			Hash:        library.Hash,
			Size:        library.Size,
			Category:    CategoryNatives,
		})
	}

	if artifact := descriptor.MainArtifact; artifact != nil {
		result[CategoryMainArtifact] = append(result[CategoryMainArtifact], Task{
			URL:         artifact.URL,
			Destination: c.layout.MainArtifact(descriptor.BaseID()),
			Hash:        artifact.Hash,
			Size:        artifact.Size,
			Category:    CategoryMainArtifact,
		})
	}

	if index := descriptor.AssetIndex; index != nil && index.URL != "" {
		result[CategoryAssets] = append(result[CategoryAssets], Task{
			URL:         index.URL,
			Destination: c.layout.AssetIndex(index.ID),
			Hash:        index.Hash,
			Size:        index.Size,
			Category:    CategoryAssets,
		})
	}

	for _, asset := range descriptor.Assets {
		result[CategoryAssets] = append(result[CategoryAssets], Task{
			URL:         asset.URL,
			Destination: c.layout.AssetObject(&asset),
			Hash:        asset.Hash,
			Size:        asset.Size,
			Category:    CategoryAssets,
		})
	}

	for _, pack := range descriptor.ContentPacks {
		if instanceDir == "" {
			return nil, fmt.Errorf("content pack %s: %w", pack.Name, errNoInstanceDir)
		}

		destination := c.layout.ContentPack(instanceDir, &pack)

		relative, err := filepath.Rel(instanceDir, destination)
		if err != nil || strings.HasPrefix(relative, "..") {
			return nil, fmt.Errorf("content pack %s path %q: %w", pack.Name, pack.Path, errPathOutsideInstance)
		}

		result[CategoryContentPacks] = append(result[CategoryContentPacks], Task{
			URL:         pack.URL,
			Destination: destination,
			Hash:        pack.Hash,
			Size:        pack.Size,
			Category:    CategoryContentPacks,
		})
	}

	return result, nil
}

// plan verifies every candidate, categories in parallel, and keeps the ones that need a download.
// Tasks sharing a destination are planned once.
func (c *Coordinator) plan(ctx context.Context, descriptor *bundle.Descriptor, instanceDir string) (*Plan, error) {
	candidates, err := c.candidates(descriptor, instanceDir)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Tasks: make(map[Category][]Task, len(Categories))}
	for _, task := range candidates[CategoryNatives] {
		plan.Natives = append(plan.Natives, task.Destination)
	}

	results := make([][]Task, len(Categories))
	group, groupCtx := errgroup.WithContext(ctx)

	for i, category := range Categories {
		group.Go(func() error {
			tasks, err := needed(groupCtx, candidates[category])
			results[i] = tasks

			return err
		})
	}

	if err = group.Wait(); err != nil {
		return nil, err
	}

	for i, category := range Categories {
		if len(results[i]) > 0 {
			plan.Tasks[category] = results[i]
		}
	}

	return plan, nil
}

func needed(ctx context.Context, candidates []Task) ([]Task, error) {
	var (
		result []Task
		seen   = make(map[string]struct{}, len(candidates))
	)

	for _, task := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if _, dup := seen[task.Destination]; dup {
			continue
		}

		seen[task.Destination] = struct{}{}

		if task.URL == "" {
			continue
		}

		missing, err := verify.NeedsDownloadSized(task.Destination, task.Hash, task.Size)
		if err != nil {
			return nil, fmt.Errorf("verify %s: %w", task.Destination, err)
		}

		if missing {
			result = append(result, task)
		}
	}

	return result, nil
}
