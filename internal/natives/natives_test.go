package natives

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
)

func writeNativeJar(t *testing.T, dir, name string, entries map[string]string) string {
	t.Helper()

	path := filepath.Join(dir, name)

	file, err := os.Create(path)
	require.NoError(t, err)

	writer := zip.NewWriter(file)

	for entryName, content := range entries {
		entry, err := writer.Create(entryName)
		require.NoError(t, err)

		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, writer.Close())
	require.NoError(t, file.Close())

	return path
}

// TestStager_StageIsFreshEveryTime extracts into a new directory per call.
func TestStager_StageIsFreshEveryTime(t *testing.T) {
	t.Parallel()

	jars := t.TempDir()
	jar := writeNativeJar(t, jars, "lwjgl-natives-linux.jar", map[string]string{
		"META-INF/MANIFEST.MF":      "x",
		"META-INF/LWJGL.SF":         "x",
		"linux/x64/org/liblwjgl.so": "elf",
	})

	stager := New(filepath.Join(t.TempDir(), "natives"))
	descriptor := &bundle.Descriptor{ID: "1.21.1"}

	first, err := stager.Stage(context.Background(), descriptor, []string{jar})
	require.NoError(t, err)

	second, err := stager.Stage(context.Background(), descriptor, []string{jar})
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	entries, err := os.ReadDir(first)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "liblwjgl.so", entries[0].Name())

	empty, err := stager.Stage(context.Background(), descriptor, nil)
	require.NoError(t, err)
	require.DirExists(t, empty)
}

// TestStager_ReclaimAndSweep removes only staging directories.
func TestStager_ReclaimAndSweep(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "natives")
	stager := New(root)
	descriptor := &bundle.Descriptor{ID: "1.21.1"}

	active, err := stager.Stage(context.Background(), descriptor, nil)
	require.NoError(t, err)

	stale, err := stager.Stage(context.Background(), descriptor, nil)
	require.NoError(t, err)

	reclaimed, err := stager.Stage(context.Background(), descriptor, nil)
	require.NoError(t, err)

	require.NoError(t, stager.Reclaim(reclaimed))
	require.NoDirExists(t, reclaimed)
	require.Error(t, stager.Reclaim(t.TempDir()))

	require.NoError(t, os.MkdirAll(filepath.Join(root, "keep-me"), 0o755))

	removed, err := stager.Sweep([]string{active})
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.DirExists(t, active)
	require.NoDirExists(t, stale)
	require.DirExists(t, filepath.Join(root, "keep-me"))
}

// TestStager_BrokenArchive reports an extraction failure and leaves nothing behind.
func TestStager_BrokenArchive(t *testing.T) {
	t.Parallel()

	broken := filepath.Join(t.TempDir(), "broken.jar")
	require.NoError(t, os.WriteFile(broken, []byte("not a zip"), 0o600))

	root := filepath.Join(t.TempDir(), "natives")
	stager := New(root)

	_, err := stager.Stage(context.Background(), &bundle.Descriptor{ID: "x"}, []string{broken})
	require.ErrorIs(t, err, bundle.ErrExtractionFailed)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Empty(t, entries)
}
