// Package storage defines the object storage interface used to archive audit entries
// and the registry of backends (local, s3, gcs, azure).
//
// Backends register themselves with the factory from an init() function in their
// own package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (storage.Storage, error) {
//	        return New(&cfg.Storage.MyBackend)
//	    })
//	}
//
// The server imports each backend with a blank import to trigger init().
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotExist is returned by Get when no object is stored under the key.
var ErrNotExist = errors.New("object does not exist")

// Storage is a flat key/value object store. Keys use forward slashes.
type Storage interface {
	// Put stores the contents of r under key, replacing any existing object
	Put(ctx context.Context, key string, r io.Reader, contentType string) error

	// Get returns a reader for the object; callers must close it
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether an object is stored under key
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
}
