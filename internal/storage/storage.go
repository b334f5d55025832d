// Package storage persists assembled voice prompts and rendered samples.
// Paths are forward-slash separated and relative to the store root.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// FileStore is a minimal file-oriented store. Implementations must be safe
// for concurrent use.
type FileStore interface {
	// Read opens the named file. Missing files yield an error wrapping
	// os.ErrNotExist.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write truncates or creates the named file. The caller must close the
	// writer to flush data.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named file; missing files are not an error.
	Delete(ctx context.Context, path string) error

	Exists(ctx context.Context, path string) (bool, error)

	// Locate returns a location string a human or external tool can use to
	// find the file (an absolute path or an s3:// URL).
	Locate(path string) string
}

// LocalPather is implemented by stores whose files live on this host.
type LocalPather interface {
	LocalPath(path string) string
}

// WriteFile stores data at path in one call.
func WriteFile(ctx context.Context, fs FileStore, path string, data []byte) error {
	w, err := fs.Write(ctx, path)
	if err != nil {
		return fmt.Errorf("storage: open %s: %w", path, err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("storage: close %s: %w", path, err)
	}
	return nil
}

// ReadFile loads the whole file at path.
func ReadFile(ctx context.Context, fs FileStore, path string) ([]byte, error) {
	r, err := fs.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Materialize returns a path on the local filesystem holding the file. Remote
// stores are copied to a temporary file that cleanup removes.
func Materialize(ctx context.Context, fs FileStore, path string) (string, func(), error) {
	if lp, ok := fs.(LocalPather); ok {
		local := lp.LocalPath(path)
		if _, err := os.Stat(local); err != nil {
			return "", func() {}, err
		}
		return local, func() {}, nil
	}

	r, err := fs.Read(ctx, path)
	if err != nil {
		return "", func() {}, err
	}
	defer r.Close()

	tmp, err := os.CreateTemp("", "voiceclone-prompt-*.wav")
	if err != nil {
		return "", func() {}, err
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", func() {}, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", func() {}, err
	}
	return tmp.Name(), cleanup, nil
}

// IsNotExist reports whether err means the file is missing.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
