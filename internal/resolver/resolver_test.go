package resolver

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
	"github.com/oshokin/bundle-launcher/internal/source"
)

// fakeRepository answers descriptor queries from memory.
type fakeRepository map[string]*bundle.Descriptor

func (f fakeRepository) Resolve(_ context.Context, query bundle.Query) (*source.Data, error) {
	descriptor, ok := f[query.String()]
	if !ok {
		return nil, fmt.Errorf("%s: %w", query, bundle.ErrMetadataNotFound)
	}

	return &source.Data{Descriptor: descriptor}, nil
}

func baseDescriptor() *bundle.Descriptor {
	return &bundle.Descriptor{
		ID:           "1.21.1",
		Type:         "release",
		MainClass:    "net.minecraft.client.main.Main",
		MainArtifact: &bundle.Artifact{URL: "https://data.test/client.jar", Size: 100},
		Libraries: []bundle.Library{
			{Name: "com.mojang:brigadier:1.3.10", Hash: "aa"},
			{Name: "org.ow2.asm:asm:9.6", Hash: "bb"},
			{Name: "org.lwjgl:lwjgl:3.3.3", Hash: "cc"},
			{Name: "org.lwjgl:lwjgl:3.3.3:natives-linux", Hash: "dd", Natives: "natives-linux"},
		},
		AssetIndex: &bundle.AssetIndex{ID: "17"},
		Arguments: bundle.Arguments{
			Game: []string{"--version", "${version_name}"},
			JVM:  []string{"-cp", "${classpath}"},
		},
		MinRuntime: 21,
	}
}

func overlayDescriptor() *bundle.Descriptor {
	return &bundle.Descriptor{
		ID:           "fabric-loader-0.16.9-1.21.1",
		InheritsFrom: "1.21.1",
		MainClass:    "net.fabricmc.loader.impl.launch.knot.KnotClient",
		Libraries: []bundle.Library{
			{Name: "net.fabricmc:sponge-mixin:0.15.4+mixin.0.8.7", Hash: "ee"},
			{Name: "net.fabricmc:intermediary:1.21.1", Hash: "ff"},
			{Name: "net.fabricmc:fabric-loader:0.16.9", Hash: "11"},
		},
		Arguments: bundle.Arguments{JVM: []string{"-DFabricMcEmu= net.minecraft.client.main.Main "}},
	}
}

func newResolver() *Resolver {
	return New(fakeRepository{
		"vanilla/descriptor/1.21.1":        baseDescriptor(),
		"loader/descriptor/1.21.1+0.16.9":  overlayDescriptor(),
		"loader/descriptor/1.20.4+0.16.9":  {ID: "fabric-loader-0.16.9-1.20.4", InheritsFrom: "1.20.4"},
		"vanilla/descriptor/1.20.4":        {ID: "1.20.4"},
		"loader/descriptor/1.21.1+0.16.10": {ID: "fabric-loader-0.16.10-1.21.1", InheritsFrom: "1.20.4"},
	})
}

// TestResolve_Scenario covers the base-only and overlay library counts and entry point.
func TestResolve_Scenario(t *testing.T) {
	t.Parallel()

	resolver := newResolver()
	base := bundle.Query{Source: "vanilla", Version: "1.21.1"}

	alone, err := resolver.Resolve(context.Background(), base, nil)
	require.NoError(t, err)
	require.Len(t, alone.Libraries, len(baseDescriptor().Libraries))
	require.Equal(t, "net.minecraft.client.main.Main", alone.MainClass)

	overlay, err := bundle.ParseOverlay("loader-0.16.9", "1.21.1")
	require.NoError(t, err)

	merged, err := resolver.Resolve(context.Background(), base, &overlay)
	require.NoError(t, err)
	require.Len(t, merged.Libraries, len(baseDescriptor().Libraries)+len(overlayDescriptor().Libraries))
	require.Equal(t, "net.fabricmc.loader.impl.launch.knot.KnotClient", merged.MainClass)
	require.Equal(t, "fabric-loader-0.16.9-1.21.1", merged.ID)
	require.Equal(t, "1.21.1", merged.BaseID())
	require.Equal(t, "https://data.test/client.jar", merged.MainArtifact.URL)
	require.Equal(t, []string{"-cp", "${classpath}", "-DFabricMcEmu= net.minecraft.client.main.Main "}, merged.Arguments.JVM)
	require.Equal(t, "com.mojang:brigadier:1.3.10", merged.Libraries[0].Name)
	require.Equal(t, "net.fabricmc:fabric-loader:0.16.9", merged.Libraries[len(merged.Libraries)-1].Name)

	// The cached base descriptor is untouched.
	require.Len(t, alone.Libraries, 4)
	require.Equal(t, "net.minecraft.client.main.Main", alone.MainClass)

	again, err := resolver.Resolve(context.Background(), base, &overlay)
	require.NoError(t, err)
	require.Equal(t, merged, again)
}

// TestMerge_Idempotent merging the same overlay twice changes nothing.
func TestMerge_Idempotent(t *testing.T) {
	t.Parallel()

	once := Merge(baseDescriptor(), overlayDescriptor())
	twice := Merge(once, overlayDescriptor())

	require.Equal(t, once, twice)

	identities := make(map[string]struct{}, len(twice.Libraries))
	for _, library := range twice.Libraries {
		_, duplicate := identities[library.Identity()]
		require.False(t, duplicate, library.Name)

		identities[library.Identity()] = struct{}{}
	}
}

// TestMerge_OverlayReplacesSameArtifact keeps only the overlay version of a shared library.
func TestMerge_OverlayReplacesSameArtifact(t *testing.T) {
	t.Parallel()

	overlay := overlayDescriptor()
	overlay.Libraries = append(overlay.Libraries, bundle.Library{Name: "org.ow2.asm:asm:9.7.1", Hash: "22"})

	merged := Merge(baseDescriptor(), overlay)

	var asm []string

	for _, library := range merged.Libraries {
		if bundle.MavenKey(library.Name) == "org.ow2.asm:asm" {
			asm = append(asm, library.Name)
		}
	}

	require.Equal(t, []string{"org.ow2.asm:asm:9.7.1"}, asm)
	require.Len(t, merged.Libraries, 4-1+4)
	require.Len(t, merged.NativeLibraries(), 1)
}

// TestMerge_ContentPacksAndArguments appends packs and arguments base-first.
func TestMerge_ContentPacksAndArguments(t *testing.T) {
	t.Parallel()

	base := &bundle.Descriptor{
		ID:           "pack",
		ContentPacks: []bundle.ContentPack{{Name: "a", Path: "resourcepacks/a.zip"}, {Name: "b", Path: "resourcepacks/b.zip"}},
		Arguments:    bundle.Arguments{Game: []string{"--fullscreen"}},
	}
	overlay := &bundle.Descriptor{
		ContentPacks: []bundle.ContentPack{{Name: "b2", Path: "resourcepacks/b.zip"}},
		Arguments:    bundle.Arguments{Game: []string{"--width", "800"}},
		MinRuntime:   17,
	}

	merged := Merge(base, overlay)
	require.Equal(t, "pack", merged.ID)
	require.Empty(t, merged.InheritsFrom)
	require.Equal(t, []bundle.ContentPack{{Name: "a", Path: "resourcepacks/a.zip"}, {Name: "b2", Path: "resourcepacks/b.zip"}}, merged.ContentPacks)
	require.Equal(t, []string{"--fullscreen", "--width", "800"}, merged.Arguments.Game)
	require.Equal(t, 17, merged.MinRuntime)
	require.Equal(t, []string{"--fullscreen"}, base.Arguments.Game)
	require.Same(t, base, Merge(base, nil))
}

// TestResolve_Errors propagates repository failures and inheritance mismatches.
func TestResolve_Errors(t *testing.T) {
	t.Parallel()

	resolver := newResolver()

	_, err := resolver.Resolve(context.Background(), bundle.Query{Source: "vanilla", Version: "0.0.1"}, nil)
	require.ErrorIs(t, err, bundle.ErrMetadataNotFound)

	mismatch := bundle.Query{Source: "loader", Version: "1.21.1", Overlay: "0.16.10"}
	_, err = resolver.Resolve(context.Background(), bundle.Query{Source: "vanilla", Version: "1.21.1"}, &mismatch)
	require.ErrorIs(t, err, bundle.ErrMetadataParse)

	// An overlay without a version inherits the base version.
	implicit := bundle.Query{Source: "loader", Overlay: "0.16.9"}
	merged, err := resolver.Resolve(context.Background(), bundle.Query{Source: "vanilla", Version: "1.20.4"}, &implicit)
	require.NoError(t, err)
	require.Equal(t, "fabric-loader-0.16.9-1.20.4", merged.ID)
}
