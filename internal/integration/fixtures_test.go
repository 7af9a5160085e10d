package integration

import (
	"archive/zip"
	"bytes"
	"crypto/sha1" //nolint:gosec // The served documents declare SHA-1 hashes.
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// nativeFileName is the shared library packed into the served native archive.
const nativeFileName = "libintegration.so"

// bundleServer serves a manifest, one version document, its asset index and
// every artifact it references.
type bundleServer struct {
	*httptest.Server

	files map[string][]byte
}

func sha1Hex(data []byte) string {
	sum := sha1.Sum(data) //nolint:gosec // The served documents declare SHA-1 hashes.

	return hex.EncodeToString(sum[:])
}

func nativeArchive(t *testing.T) []byte {
	t.Helper()

	var buffer bytes.Buffer

	writer := zip.NewWriter(&buffer)

	for name, content := range map[string]string{
		nativeFileName:         "ELF",
		"META-INF/MANIFEST.MF": "Manifest-Version: 1.0",
	} {
		file, err := writer.Create(name)
		require.NoError(t, err)

		_, err = file.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, writer.Close())

	return buffer.Bytes()
}

// newBundleServer builds the documents with real hashes and starts serving them.
//
//nolint:funlen // Fixture documents are long but flat.
func newBundleServer(t *testing.T) *bundleServer {
	t.Helper()

	server := &bundleServer{files: make(map[string][]byte)}
	server.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := server.files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)

			return
		}

		_, _ = w.Write(data)
	}))
	t.Cleanup(server.Close)

	base := server.URL

	core := []byte("core library bytes")
	native := nativeArchive(t)
	client := []byte("client jar bytes")
	asset := []byte("icon bytes")
	assetHash := sha1Hex(asset)

	index, err := json.Marshal(map[string]any{
		"objects": map[string]any{
			"icons/icon.png": map[string]any{"hash": assetHash, "size": len(asset)},
		},
	})
	require.NoError(t, err)

	version, err := json.Marshal(map[string]any{
		"id":        "1.0",
		"type":      "release",
		"mainClass": helperMainClass,
		"arguments": map[string]any{
			"game": []any{"--username", "${auth_player_name}", "--version", "${version_name}"},
			"jvm":  []any{"-Djava.library.path=${natives_directory}", "-cp", "${classpath}"},
		},
		"assetIndex": map[string]any{
			"id": "1", "sha1": sha1Hex(index), "size": len(index), "totalSize": len(asset), "url": base + "/indexes/1.json",
		},
		"downloads": map[string]any{
			"client": map[string]any{"sha1": sha1Hex(client), "size": len(client), "url": base + "/client.jar"},
		},
		"javaVersion": map[string]any{"majorVersion": 21},
		"libraries": []any{
			map[string]any{
				"name": "com.example:core:1.0",
				"downloads": map[string]any{"artifact": map[string]any{
					"path": "com/example/core/1.0/core-1.0.jar",
					"sha1": sha1Hex(core), "size": len(core),
					"url": base + "/libraries/com/example/core/1.0/core-1.0.jar",
				}},
			},
			map[string]any{
				"name": "com.example:native:1.0:natives-linux",
				"downloads": map[string]any{"artifact": map[string]any{
					"path": "com/example/native/1.0/native-1.0-natives-linux.jar",
					"sha1": sha1Hex(native), "size": len(native),
					"url": base + "/libraries/com/example/native/1.0/native-1.0-natives-linux.jar",
				}},
			},
		},
	})
	require.NoError(t, err)

	manifest, err := json.Marshal(map[string]any{
		"latest":   map[string]any{"release": "1.0", "snapshot": "1.0"},
		"versions": []any{map[string]any{"id": "1.0", "type": "release", "url": base + "/versions/1.0.json"}},
	})
	require.NoError(t, err)

	server.files["/manifest.json"] = manifest
	server.files["/versions/1.0.json"] = version
	server.files["/indexes/1.json"] = index
	server.files["/client.jar"] = client
	server.files["/libraries/com/example/core/1.0/core-1.0.jar"] = core
	server.files["/libraries/com/example/native/1.0/native-1.0-natives-linux.jar"] = native
	server.files["/objects/"+assetHash[:2]+"/"+assetHash] = asset

	return server
}
