// Package storage defines the blob store abstraction used by the data stores
// and artifact writers. Implementations live in the local, memory and gcs
// subpackages.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by GetObject when the path does not exist.
var ErrNotFound = errors.New("object not found")

// BlobStore persists named objects.
type BlobStore interface {
	// PutObject stores the reader's content at path and returns a URI.
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
	// GetObject reads the content at path. Missing objects yield ErrNotFound.
	GetObject(ctx context.Context, path string) ([]byte, error)
}
