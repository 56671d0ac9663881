// Package storage declares where uploaded images end up. Implementations
// live in subpackages (localstore, s3store).
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrInvalidKey is returned for keys that are empty, absolute or try to
// escape the store with "..".
var ErrInvalidKey = errors.New("storage: invalid object key")

// ImageStore persists an image body under key and returns the public URL
// clients should use to fetch it.
type ImageStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (url string, err error)
}

// JoinURL appends key to base with exactly one slash between them.
func JoinURL(base, key string) string {
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	for len(key) > 0 && key[0] == '/' {
		key = key[1:]
	}
	return base + "/" + key
}
