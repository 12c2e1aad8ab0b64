// Package storage persists model artifacts. Stores address artifacts by
// slash-separated keys; the local store maps keys onto a directory tree and
// the Azure store maps them onto blobs, so a processing tree dumps and loads
// the same way against either.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound indicates a key with no stored artifact.
var ErrNotFound = errors.New("artifact not found")

// ArtifactStore reads and writes model artifacts by key.
type ArtifactStore interface {
	// Put stores data under key, replacing any previous artifact.
	Put(ctx context.Context, key string, data []byte) error
	// Get returns the artifact stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Exists reports whether key holds an artifact.
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes the artifact under key. Deleting a missing key is
	// not an error.
	Delete(ctx context.Context, key string) error
	// List returns every key with the given prefix, in sorted order.
	List(ctx context.Context, prefix string) ([]string, error)
}
