package store

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Driver.Read when the key does not exist.
var ErrNotFound = errors.New("document not found")

// Driver is the durable key/value boundary under the cache. Documents are
// opaque byte blobs addressed by key.
type Driver interface {
	// Read returns the document stored under key, or ErrNotFound.
	Read(ctx context.Context, key string) ([]byte, error)
	// Write replaces the document stored under key.
	Write(ctx context.Context, key string, data []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	Close() error
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
