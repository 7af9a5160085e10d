package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
	"github.com/oshokin/bundle-launcher/internal/verify"
)

const (
	dirPermissions  = 0o755
	filePermissions = 0o644
)

// destinationLocks serializes swaps per destination inside this process.
// go-update stages through fixed ".<name>.new" and ".<name>.old" siblings,
// so separate processes must not install into one store at the same time.
//
//nolint:gochecknoglobals // Installs sharing a store may use different coordinators.
var destinationLocks = newKeyedMutex()

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// lock blocks until key is free and returns the matching unlock.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()

	entry, ok := k.locks[key]
	if !ok {
		entry = new(keyedLock)
		k.locks[key] = entry
	}

	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		defer k.mu.Unlock()

		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
	}
}

// fetch downloads task into a temporary file next to the destination and
// swaps it in with go-update, which refuses content whose checksum differs.
// The destination is only ever replaced by a complete, verified file.
func (c *Coordinator) fetch(ctx context.Context, task Task) (int64, error) {
	checksum, err := verify.ParseHash(task.Hash)
	if err != nil {
		return 0, err
	}

	dir := filepath.Dir(task.Destination)
	if err = os.MkdirAll(dir, dirPermissions); err != nil {
		return 0, fmt.Errorf("create %s: %w", dir, err)
	}

	temporary, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return 0, fmt.Errorf("create temporary file in %s: %w", dir, err)
	}

	defer func() {
		_ = temporary.Close()
		_ = os.Remove(temporary.Name())
	}()

	written, err := c.downloader.Download(ctx, task.URL, temporary, nil)
	if err != nil {
		return 0, err
	}

	if checksum.IsZero() && task.Size > 0 && written != task.Size {
		return 0, fmt.Errorf("%s: got %d bytes, want %d: %w", task.URL, written, task.Size, bundle.ErrVerificationMismatch)
	}

	if _, err = temporary.Seek(0, 0); err != nil {
		return 0, fmt.Errorf("rewind %s: %w", temporary.Name(), err)
	}

	if err = apply(temporary, task.Destination, checksum); err != nil {
		return 0, fmt.Errorf("%s: %w", task.URL, err)
	}

	return written, nil
}

// apply atomically replaces destination with the content of source.
func apply(source *os.File, destination string, checksum verify.Checksum) error {
	unlock := destinationLocks.lock(filepath.Clean(destination))
	defer unlock()

	// go-update moves the current target aside before renaming the new file in,
	// so the target has to exist.
	created := false

	if _, err := os.Stat(destination); errors.Is(err, os.ErrNotExist) {
		placeholder, err := os.OpenFile(destination, os.O_CREATE|os.O_WRONLY, filePermissions)
		if err != nil {
			return fmt.Errorf("create %s: %w", destination, err)
		}

		_ = placeholder.Close()
		created = true
	}

	options := goupdate.Options{
		TargetPath: destination,
		TargetMode: filePermissions,
	}

	if !checksum.IsZero() {
		options.Checksum = checksum.Sum
		options.Hash = checksum.Hash
	}

	if err := goupdate.Apply(source, options); err != nil {
		if created {
			// An empty placeholder would pass an existence-only check later.
			_ = os.Remove(destination)
		}

		if options.Checksum != nil && isChecksumError(err) {
			return fmt.Errorf("%s: %w: %w", destination, bundle.ErrVerificationMismatch, err)
		}

		return fmt.Errorf("apply %s: %w", destination, err)
	}

	return nil
}

// isChecksumError tells a rejected checksum apart from file system failures,
// which go-update reports as *os.PathError or *os.LinkError.
func isChecksumError(err error) bool {
	var (
		pathErr *os.PathError
		linkErr *os.LinkError
	)

	return !errors.As(err, &pathErr) && !errors.As(err, &linkErr)
}
