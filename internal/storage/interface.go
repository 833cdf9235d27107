package storage

import (
	"context"
	"io"
)

// ObjectStorage is the external file store holding uploaded document bytes.
// The upload flow writes objects before enqueueing ingestion; the worker
// only ever reads them back by storage key.
type ObjectStorage interface {
	// Download opens an object for reading
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)

	// GetURL returns the URL for accessing an object
	GetURL(key string) string

	// Delete deletes an object from storage
	Delete(ctx context.Context, key string) error
}

// FetchBytes reads a whole object into memory. Documents are bounded in
// size by the upload flow, so buffering the full file is acceptable for
// the extraction stage, which needs random access anyway.
func FetchBytes(ctx context.Context, store ObjectStorage, key string) ([]byte, error) {
	rc, err := store.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
