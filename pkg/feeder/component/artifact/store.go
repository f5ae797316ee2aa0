package artifact

import (
	"context"
	"fmt"

	"github.com/tigerroll/feeder/pkg/feeder/adapter/storage"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/exception"
)

// Store locates artifacts: a storage bucket plus the encoding they are written in.
// Extractors write through Writer; loaders read through Open.
type Store struct {
	writer *Writer
}

// NewStore creates a Store. An empty bucket uses the storage connection's default bucket.
func NewStore(store storage.StorageExecutor, bucket string, format Format) (*Store, error) {
	w, err := NewWriter(store, bucket, format)
	if err != nil {
		return nil, err
	}
	return &Store{writer: w}, nil
}

// Writer returns the writer for this store.
func (s *Store) Writer() *Writer { return s.writer }

// Format returns the artifact encoding.
func (s *Store) Format() Format { return s.writer.format }

// Open opens a published artifact for reading.
func (s *Store) Open(ctx context.Context, name string) (*Reader, error) {
	return Open(ctx, s.writer.store, s.writer.bucket, name, s.writer.format)
}

// Exists reports whether the artifact has been published.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	ok, err := s.writer.store.Exists(ctx, s.writer.bucket, name)
	if err != nil {
		return false, exception.NewArtifactError(writerModule, fmt.Sprintf("failed to stat artifact '%s'", name), err)
	}
	return ok, nil
}

// Remove deletes a published artifact. Removing a missing artifact is not an error.
func (s *Store) Remove(ctx context.Context, name string) error {
	if err := s.writer.store.DeleteObject(ctx, s.writer.bucket, name); err != nil {
		return exception.NewArtifactError(writerModule, fmt.Sprintf("failed to remove artifact '%s'", name), err)
	}
	return nil
}
