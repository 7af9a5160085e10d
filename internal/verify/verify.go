package verify

import (
	"bytes"
	"crypto"
	_ "crypto/sha1" // Registers SHA-1 for crypto.Hash.New and go-update checksums.
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
)

// chunkSize is the read size used while hashing files.
const chunkSize = 64 * 1024

var (
	// ErrUnsupportedHash is returned for hashes of unknown shape or algorithm.
	ErrUnsupportedHash = errors.New("unsupported hash")

	//nolint:gochecknoglobals // Static lookup table.
	digestAlgorithms = map[digest.Algorithm]crypto.Hash{
		digest.SHA256: crypto.SHA256,
		digest.SHA384: crypto.SHA384,
		digest.SHA512: crypto.SHA512,
		"sha1":        crypto.SHA1,
	}
)

// Checksum is a parsed declared hash.
type Checksum struct {
	// Hash is the algorithm.
	Hash crypto.Hash
	// Sum is the expected raw digest.
	Sum []byte
}

// ParseHash parses a declared hash. Empty input yields a zero Checksum and no error.
func ParseHash(declared string) (Checksum, error) {
	declared = strings.TrimSpace(declared)
	if declared == "" {
		return Checksum{}, nil
	}

	if strings.Contains(declared, ":") {
		return parseDigest(declared)
	}

	var algorithm crypto.Hash

	switch len(declared) {
	case crypto.SHA1.Size() * 2:
		algorithm = crypto.SHA1
	case crypto.SHA256.Size() * 2:
		algorithm = crypto.SHA256
	case crypto.SHA512.Size() * 2:
		algorithm = crypto.SHA512
	default:
		return Checksum{}, fmt.Errorf("%q: %w", declared, ErrUnsupportedHash)
	}

	sum, err := hex.DecodeString(strings.ToLower(declared))
	if err != nil {
		return Checksum{}, fmt.Errorf("%q: %w: %w", declared, ErrUnsupportedHash, err)
	}

	return Checksum{Hash: algorithm, Sum: sum}, nil
}

func parseDigest(declared string) (Checksum, error) {
	algorithmName, encoded, _ := strings.Cut(declared, ":")
	algorithm := digest.Algorithm(strings.ToLower(algorithmName))

	hash, ok := digestAlgorithms[algorithm]
	if !ok {
		return Checksum{}, fmt.Errorf("%q: %w", declared, ErrUnsupportedHash)
	}

	if algorithm.Available() {
		// Validates the encoded part against the algorithm's length and alphabet.
		if _, err := digest.Parse(string(algorithm) + ":" + strings.ToLower(encoded)); err != nil {
			return Checksum{}, fmt.Errorf("%q: %w: %w", declared, ErrUnsupportedHash, err)
		}
	}

	sum, err := hex.DecodeString(strings.ToLower(encoded))
	if err != nil || len(sum) != hash.Size() {
		return Checksum{}, fmt.Errorf("%q: %w", declared, ErrUnsupportedHash)
	}

	return Checksum{Hash: hash, Sum: sum}, nil
}

// IsZero reports whether no hash was declared.
func (c Checksum) IsZero() bool {
	return len(c.Sum) == 0
}

// Matches streams r and compares its hash with the expected one.
func (c Checksum) Matches(r io.Reader) (bool, error) {
	if c.IsZero() {
		return true, nil
	}

	hasher := c.Hash.New()
	if _, err := io.CopyBuffer(hasher, r, make([]byte, chunkSize)); err != nil {
		return false, err
	}

	return bytes.Equal(hasher.Sum(nil), c.Sum), nil
}

// NeedsDownload reports whether path is absent or, when expectedHash is set,
// whether its content does not match expectedHash. Without a hash, existence suffices.
func NeedsDownload(path, expectedHash string) (bool, error) {
	return NeedsDownloadSized(path, expectedHash, 0)
}

// NeedsDownloadSized is NeedsDownload with an extra size check that applies
// only when no hash is declared and expectedSize is positive.
func NeedsDownloadSized(path, expectedHash string, expectedSize int64) (bool, error) {
	checksum, err := ParseHash(expectedHash)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return true, nil
		}

		return false, fmt.Errorf("stat %s: %w", path, err)
	}

	if info.IsDir() {
		return true, nil
	}

	if checksum.IsZero() {
		return expectedSize > 0 && info.Size() != expectedSize, nil
	}

	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return false, fmt.Errorf("open %s: %w", path, err)
	}

	defer func() {
		_ = file.Close()
	}()

	matches, err := checksum.Matches(file)
	if err != nil {
		return false, fmt.Errorf("hash %s: %w", path, err)
	}

	return !matches, nil
}

// FileDigest computes the canonical (SHA-256) digest of path.
func FileDigest(path string) (digest.Digest, int64, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", 0, fmt.Errorf("open %s: %w", path, err)
	}

	defer func() {
		_ = file.Close()
	}()

	digester := digest.Canonical.Digester()

	size, err := io.CopyBuffer(digester.Hash(), file, make([]byte, chunkSize))
	if err != nil {
		return "", 0, fmt.Errorf("hash %s: %w", path, err)
	}

	return digester.Digest(), size, nil
}
