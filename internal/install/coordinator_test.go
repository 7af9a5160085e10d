package install

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec // Matches the hash format of the metadata sources.
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
	"github.com/oshokin/bundle-launcher/internal/layout"
	"github.com/oshokin/bundle-launcher/internal/natives"
	"github.com/oshokin/bundle-launcher/internal/transport"
)

// fileServer serves fixed content, counts requests and can fail a path a given number of times.
type fileServer struct {
	*httptest.Server

	mu          sync.Mutex
	files       map[string][]byte
	requests    map[string]int
	failures    map[string]int
	inflight    int
	maxInflight int
	delay       time.Duration
}

func newFileServer(t *testing.T) *fileServer {
	t.Helper()

	fs := &fileServer{
		files:    make(map[string][]byte),
		requests: make(map[string]int),
		failures: make(map[string]int),
	}

	fs.Server = httptest.NewServer(http.HandlerFunc(fs.serve))
	t.Cleanup(fs.Close)

	return fs
}

func (fs *fileServer) serve(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	fs.requests[r.URL.Path]++
	fs.inflight++
	fs.maxInflight = max(fs.maxInflight, fs.inflight)
	content, ok := fs.files[r.URL.Path]
	fail := fs.failures[r.URL.Path] > 0

	if fail {
		fs.failures[r.URL.Path]--
	}

	delay := fs.delay
	fs.mu.Unlock()

	defer func() {
		fs.mu.Lock()
		fs.inflight--
		fs.mu.Unlock()
	}()

	time.Sleep(delay)

	switch {
	case fail:
		w.WriteHeader(http.StatusServiceUnavailable)
	case !ok:
		w.WriteHeader(http.StatusNotFound)
	default:
		_, _ = w.Write(content)
	}
}

func (fs *fileServer) add(path string, content []byte) (string, string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.files[path] = content

	return fs.URL + path, sha1Hex(content)
}

func (fs *fileServer) totalRequests() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var total int
	for _, count := range fs.requests {
		total += count
	}

	return total
}

func (fs *fileServer) requestsFor(path string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.requests[path]
}

func sha1Hex(content []byte) string {
	sum := sha1.Sum(content) //nolint:gosec // Test fixture.
	return hex.EncodeToString(sum[:])
}

func nativeJar(t *testing.T) []byte {
	t.Helper()

	var buffer bytes.Buffer

	writer := zip.NewWriter(&buffer)

	for name, content := range map[string]string{"META-INF/MANIFEST.MF": "m", "linux/x64/liblwjgl.so": "elf"} {
		entry, err := writer.Create(name)
		require.NoError(t, err)

		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, writer.Close())

	return buffer.Bytes()
}

// fixture builds a descriptor whose every file is served by fs.
func fixture(t *testing.T, fs *fileServer, assets int) *bundle.Descriptor {
	t.Helper()

	descriptor := &bundle.Descriptor{ID: "1.21.1", MainClass: "net.minecraft.client.main.Main"}

	for _, name := range []string{"a", "b"} {
		url, hash := fs.add("/libs/"+name+".jar", []byte("library "+name))
		descriptor.Libraries = append(descriptor.Libraries, bundle.Library{Name: "org.test:" + name + ":1.0", URL: url, Hash: hash})
	}

	url, hash := fs.add("/libs/lwjgl-natives-linux.jar", nativeJar(t))
	descriptor.Libraries = append(descriptor.Libraries, bundle.Library{
		Name: "org.lwjgl:lwjgl:3.3.3:natives-linux", URL: url, Hash: hash, Natives: "natives-linux",
	})

	url, hash = fs.add("/client.jar", []byte("client"))
	descriptor.MainArtifact = &bundle.Artifact{URL: url, Hash: hash, Size: int64(len("client"))}

	url, hash = fs.add("/indexes/17.json", []byte(`{"objects":{}}`))
	descriptor.AssetIndex = &bundle.AssetIndex{ID: "17", URL: url, Hash: hash}

	for i := range assets {
		content := []byte(fmt.Sprintf("asset %d", i))
		hash := sha1Hex(content)
		url, _ := fs.add("/objects/"+hash[:2]+"/"+hash, content)
		descriptor.Assets = append(descriptor.Assets, bundle.Asset{Name: fmt.Sprintf("a/%d.ogg", i), Hash: hash, Size: int64(len(content)), URL: url})
	}

	// A pack without hash is checked by size only.
	url, _ = fs.add("/packs/faithful.zip", []byte("pack"))
	descriptor.ContentPacks = []bundle.ContentPack{{Name: "faithful", URL: url, Size: 4, Path: "resourcepacks/faithful.zip"}}

	return descriptor
}

func newCoordinator(t *testing.T, opts ...Option) (*Coordinator, *layout.Layout) {
	t.Helper()

	storeLayout := layout.New(t.TempDir())
	opts = append([]Option{WithRetry(3, time.Millisecond)}, opts...)

	return New(transport.New(), natives.New(storeLayout.NativesDir()), storeLayout, opts...), storeLayout
}

// TestInstall_ValidDescriptorTransfersNothingButStages performs zero transfers on the second run.
func TestInstall_ValidDescriptorTransfersNothingButStages(t *testing.T) {
	t.Parallel()

	fs := newFileServer(t)
	descriptor := fixture(t, fs, 3)
	coordinator, storeLayout := newCoordinator(t)
	instanceDir := filepath.Join(storeLayout.InstancesDir(), "survival")

	first, err := coordinator.Install(context.Background(), descriptor, instanceDir)
	require.NoError(t, err)
	require.Equal(t, 2+1+1+1+3+1, first.Downloaded)
	require.Equal(t, fs.totalRequests(), first.Downloaded)
	require.FileExists(t, storeLayout.MainArtifact("1.21.1"))
	require.FileExists(t, filepath.Join(instanceDir, "resourcepacks", "faithful.zip"))
	require.FileExists(t, filepath.Join(first.NativesDir, "liblwjgl.so"))
	require.NoFileExists(t, filepath.Join(first.NativesDir, "MANIFEST.MF"))

	requestsBefore := fs.totalRequests()

	second, err := coordinator.Install(context.Background(), descriptor, instanceDir)
	require.NoError(t, err)
	require.Zero(t, second.Downloaded)
	require.Equal(t, requestsBefore, fs.totalRequests())
	require.NotEqual(t, first.NativesDir, second.NativesDir)
	require.FileExists(t, filepath.Join(second.NativesDir, "liblwjgl.so"))
}

// TestInstall_RetriesTransientFailures succeeds when a file fails twice then succeeds.
func TestInstall_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	fs := newFileServer(t)
	descriptor := fixture(t, fs, 1)
	fs.failures["/libs/a.jar"] = 2

	coordinator, storeLayout := newCoordinator(t)

	result, err := coordinator.Install(context.Background(), descriptor, t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 3, fs.requestsFor("/libs/a.jar"))
	require.FileExists(t, storeLayout.Library(&descriptor.Libraries[0]))
	require.Equal(t, 1, result.Planned[CategoryNatives])
}

// TestInstall_FailsAfterAttemptsAreExhausted names the URL and leaves no file behind.
func TestInstall_FailsAfterAttemptsAreExhausted(t *testing.T) {
	t.Parallel()

	fs := newFileServer(t)
	descriptor := fixture(t, fs, 1)
	fs.failures["/libs/b.jar"] = 10

	coordinator, storeLayout := newCoordinator(t)

	_, err := coordinator.Install(context.Background(), descriptor, t.TempDir())
	require.ErrorIs(t, err, bundle.ErrDownloadFailed)
	require.Contains(t, err.Error(), "/libs/b.jar")
	require.Equal(t, 3, fs.requestsFor("/libs/b.jar"))
	require.NoFileExists(t, storeLayout.Library(&descriptor.Libraries[1]))
}

// TestInstall_HashMismatchIsRetriedNotSurfaced rejects content that does not match the declared hash.
func TestInstall_HashMismatchIsRetriedNotSurfaced(t *testing.T) {
	t.Parallel()

	fs := newFileServer(t)
	descriptor := fixture(t, fs, 0)
	descriptor.Libraries[0].Hash = sha1Hex([]byte("something else"))

	coordinator, storeLayout := newCoordinator(t)

	_, err := coordinator.Install(context.Background(), descriptor, t.TempDir())
	require.ErrorIs(t, err, bundle.ErrDownloadFailed)
	require.NotErrorIs(t, err, bundle.ErrVerificationMismatch)
	require.Equal(t, 3, fs.requestsFor("/libs/a.jar"))
	require.NoFileExists(t, storeLayout.Library(&descriptor.Libraries[0]))

	entries, err := os.ReadDir(filepath.Dir(storeLayout.Library(&descriptor.Libraries[0])))
	require.NoError(t, err)

	for _, entry := range entries {
		require.False(t, strings.HasPrefix(entry.Name(), ".download-"), entry.Name())
	}
}

// TestInstall_RedownloadsCorruptedFiles replaces files whose hash no longer matches.
func TestInstall_RedownloadsCorruptedFiles(t *testing.T) {
	t.Parallel()

	fs := newFileServer(t)
	descriptor := fixture(t, fs, 2)
	coordinator, storeLayout := newCoordinator(t)
	instanceDir := t.TempDir()

	_, err := coordinator.Install(context.Background(), descriptor, instanceDir)
	require.NoError(t, err)

	target := storeLayout.Library(&descriptor.Libraries[0])
	require.NoError(t, os.WriteFile(target, []byte("corrupted"), 0o600))

	plan, err := coordinator.Plan(context.Background(), descriptor, instanceDir)
	require.NoError(t, err)
	require.Equal(t, 1, plan.Total())
	require.Len(t, plan.Natives, 1)

	result, err := coordinator.Install(context.Background(), descriptor, instanceDir)
	require.NoError(t, err)
	require.Equal(t, 1, result.Downloaded)
	require.Equal(t, 2, fs.requestsFor("/libs/a.jar"))

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "library a", string(content))
}

// TestInstall_BoundsAssetConcurrency never runs more asset transfers than the batch size.
func TestInstall_BoundsAssetConcurrency(t *testing.T) {
	t.Parallel()

	fs := newFileServer(t)
	descriptor := fixture(t, fs, 12)
	descriptor.Libraries = nil
	descriptor.MainArtifact = nil
	descriptor.AssetIndex = nil
	descriptor.ContentPacks = nil
	fs.delay = 10 * time.Millisecond

	coordinator, _ := newCoordinator(t, WithAssetBatchSize(4))

	result, err := coordinator.Install(context.Background(), descriptor, "")
	require.NoError(t, err)
	require.Equal(t, 12, result.Downloaded)

	fs.mu.Lock()
	defer fs.mu.Unlock()

	require.LessOrEqual(t, fs.maxInflight, 4)
}

// TestInstall_RejectsPacksOutsideInstance refuses pack paths escaping the instance directory.
func TestInstall_RejectsPacksOutsideInstance(t *testing.T) {
	t.Parallel()

	fs := newFileServer(t)
	descriptor := fixture(t, fs, 0)
	descriptor.ContentPacks[0].Path = "../../evil.zip"

	coordinator, _ := newCoordinator(t)

	_, err := coordinator.Install(context.Background(), descriptor, t.TempDir())
	require.ErrorIs(t, err, errPathOutsideInstance)

	_, err = coordinator.Install(context.Background(), fixture(t, fs, 0), "")
	require.ErrorIs(t, err, errNoInstanceDir)
}
