// Package localstore keeps uploaded images on the local filesystem. The
// server exposes the base directory read-only under the public URL.
package localstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sakif/pinboard/internal/storage"
)

var _ storage.ImageStore = (*Store)(nil)

type Store struct {
	dir       string
	publicURL string
}

// New creates dir if needed.
func New(dir, publicURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("localstore: creating %s: %w", dir, err)
	}
	return &Store{dir: dir, publicURL: publicURL}, nil
}

// Dir is the directory files are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Put writes body to a temporary file and renames it into place, so a
// reader never sees a half-written image.
func (s *Store) Put(ctx context.Context, key, _ string, body io.Reader) (string, error) {
	if key == "" || !filepath.IsLocal(filepath.FromSlash(key)) {
		return "", fmt.Errorf("%w: %q", storage.ErrInvalidKey, key)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dst := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("localstore: creating parent of %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("localstore: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("localstore: writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("localstore: closing %s: %w", key, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("localstore: chmod %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("localstore: moving %s into place: %w", key, err)
	}

	return storage.JoinURL(s.publicURL, key), nil
}
