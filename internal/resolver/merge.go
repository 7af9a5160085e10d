package resolver

import (
	"slices"

	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
)

// Merge layers overlay on top of base and returns a new descriptor; neither input is modified.
//
// Overlay libraries are appended after base libraries. A base library sharing
// the maven group and artifact (and classifier) of an overlay library is
// dropped in favour of the overlay one. The overlay entry point and main
// artifact win when declared. Arguments are appended base-first unless base
// already ends with them. Merging the result with the same overlay again
// returns an equal descriptor.
func Merge(base, overlay *bundle.Descriptor) *bundle.Descriptor {
	if overlay == nil {
		return base
	}

	merged := &bundle.Descriptor{
		ID:           base.ID,
		Type:         base.Type,
		InheritsFrom: base.InheritsFrom,
		MainClass:    base.MainClass,
		MainArtifact: base.MainArtifact,
		AssetIndex:   base.AssetIndex,
		Assets:       base.Assets,
		MinRuntime:   max(base.MinRuntime, overlay.MinRuntime),
	}

	if overlay.ID != "" && overlay.ID != base.ID {
		merged.ID = overlay.ID
		merged.InheritsFrom = base.BaseID()
	}

	if overlay.MainClass != "" {
		merged.MainClass = overlay.MainClass
	}

	if overlay.MainArtifact != nil {
		merged.MainArtifact = overlay.MainArtifact
	}

	if overlay.AssetIndex != nil {
		merged.AssetIndex = overlay.AssetIndex
		merged.Assets = overlay.Assets
	}

	merged.Libraries = mergeLibraries(base.Libraries, overlay.Libraries)
	merged.Natives = mergeLibraries(base.Natives, overlay.Natives)
	merged.ContentPacks = mergeContentPacks(base.ContentPacks, overlay.ContentPacks)
	merged.Arguments = bundle.Arguments{
		Game: appendArguments(base.Arguments.Game, overlay.Arguments.Game),
		JVM:  appendArguments(base.Arguments.JVM, overlay.Arguments.JVM),
	}

	return merged
}

// mergeLibraries appends overlay after base, replacing base entries with the
// same maven key and dropping repeated name+hash identities.
func mergeLibraries(base, overlay []bundle.Library) []bundle.Library {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}

	replaced := make(map[string]struct{}, len(overlay))
	for i := range overlay {
		replaced[bundle.MavenKey(overlay[i].Name)] = struct{}{}
	}

	result := make([]bundle.Library, 0, len(base)+len(overlay))
	seen := make(map[string]struct{}, len(base)+len(overlay))

	add := func(library bundle.Library) {
		identity := library.Identity()
		if _, dup := seen[identity]; dup {
			return
		}

		seen[identity] = struct{}{}
		result = append(result, library)
	}

	for i := range base {
		if _, ok := replaced[bundle.MavenKey(base[i].Name)]; !ok {
			add(base[i])
		}
	}

	for i := range overlay {
		add(overlay[i])
	}

	return result
}

// mergeContentPacks keys packs by their destination inside the instance; overlay packs win.
func mergeContentPacks(base, overlay []bundle.ContentPack) []bundle.ContentPack {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}

	replaced := make(map[string]struct{}, len(overlay))
	for i := range overlay {
		replaced[overlay[i].Path] = struct{}{}
	}

	result := make([]bundle.ContentPack, 0, len(base)+len(overlay))

	for i := range base {
		if _, ok := replaced[base[i].Path]; !ok {
			result = append(result, base[i])
		}
	}

	seen := make(map[string]struct{}, len(overlay))

	for i := range overlay {
		if _, dup := seen[overlay[i].Path]; dup {
			continue
		}

		seen[overlay[i].Path] = struct{}{}
		result = append(result, overlay[i])
	}

	return result
}

// appendArguments returns base followed by extra, unless base already ends with extra.
func appendArguments(base, extra []string) []string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}

	result := slices.Clone(base)

	if len(extra) == 0 || (len(base) >= len(extra) && slices.Equal(base[len(base)-len(extra):], extra)) {
		return result
	}

	return append(result, extra...)
}
