// Package storage defines the object storage abstraction that holds extraction artifacts.
// Buckets map to directories and object names to files for the local implementation.
package storage

import (
	"context"
	"io"

	coreAdapter "github.com/tigerroll/feeder/pkg/feeder/core/adapter"
)

// ObjectWriter streams an object that becomes visible under its final name only on Commit.
// Until then readers and listings do not observe it. Abort discards everything written.
type ObjectWriter interface {
	io.Writer
	// Commit flushes and publishes the object. It is an error to call Commit after Abort.
	Commit() error
	// Abort discards the object. Calling Abort after Commit is a no-op.
	Abort() error
}

// StorageExecutor defines generic storage operations.
type StorageExecutor interface {
	// Create starts writing a new object, replacing any existing one on Commit.
	Create(ctx context.Context, bucket, objectName string) (ObjectWriter, error)
	// Upload writes data to the object atomically.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader) error
	// Download opens the object. The returned ReadCloser must be closed by the caller.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// Exists reports whether the object has been published.
	Exists(ctx context.Context, bucket, objectName string) (bool, error)
	// ListObjects calls fn for each published object whose name starts with prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject deletes the object. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection represents a named data storage connection.
type StorageConnection interface {
	coreAdapter.ResourceConnection // Inherits Close(), Type(), Name()
	StorageExecutor
}
