package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	fileDirPermissions = 0750
	filePermissions    = 0600
)

// FileBackend persists the whole image as one indented JSON document.
//
// Each Commit writes a temporary file next to the target, fsyncs it and
// renames it over the target, so readers only ever see a complete document.
type FileBackend struct {
	path string
}

// NewFileBackend returns a backend writing to path. The parent directory is
// created on first commit.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the document location.
func (b *FileBackend) Path() string {
	return b.path
}

// Load reads the document. A missing file yields ErrNoImage.
func (b *FileBackend) Load(_ context.Context) (*Image, error) {
	f, err := os.Open(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoImage
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	defer f.Close()

	// Keep raw payload numbers exact across restarts.
	dec := json.NewDecoder(f)
	dec.UseNumber()

	img := NewImage()
	if err := dec.Decode(img); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", ErrLoadFailed, b.path, err)
	}
	if img.Latest == nil {
		img.Latest = NewImage().Latest
	}
	if img.Logs == nil {
		img.Logs = NewImage().Logs
	}
	return img, nil
}

// Commit writes the full image.
func (b *FileBackend) Commit(_ context.Context, c Change) error {
	data, err := json.MarshalIndent(c.Image, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding store image: %w", err)
	}
	return writeFileAtomic(b.path, data)
}

// Close is a no-op; the file is not held open between commits.
func (b *FileBackend) Close() error {
	return nil
}

// writeFileAtomic replaces path with data via a synced temporary file.
func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, fileDirPermissions); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()        //nolint:errcheck // Already failing
			os.Remove(tmpName) //nolint:errcheck // Best effort cleanup
		}
	}()

	if err = tmp.Chmod(filePermissions); err != nil {
		return fmt.Errorf("setting store file permissions: %w", err)
	}
	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing store file: %w", err)
	}

	// Persist the rename itself. Not every platform supports syncing a
	// directory, so failure here is ignored.
	if d, dirErr := os.Open(dir); dirErr == nil {
		_ = d.Sync() //nolint:errcheck // See above
		d.Close()    //nolint:errcheck // Read-only handle
	}

	return nil
}
