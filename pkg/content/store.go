// Package content defines blob storage for WS Cloud.
//
// Content is split into two planes:
//
//   - A staging area (always local filesystem) that holds the temporary blob
//     of an in-flight upload session. Chunks land here at their computed
//     offsets, in any order.
//   - A durable store holding committed content, addressed by ContentID
//     (the SHA-256 hex digest of the bytes). Implementations exist for the
//     local filesystem and for S3-compatible object storage.
//
// Ownership of a blob transfers from the session (staging) to the metadata
// store's ContentID reference at commit time, via IngestFile.
package content

import (
	"context"
	"errors"

	"github.com/farid-asgarli/ws-cloud/pkg/metadata"
)

// ID aliases metadata.ContentID for brevity within the content plane.
type ID = metadata.ContentID

// ErrContentNotFound indicates the requested content does not exist in the
// store. Implementations wrap this sentinel so callers can use errors.Is.
var ErrContentNotFound = errors.New("content not found")

// Store is the durable content store contract.
//
// Thread Safety: implementations must be safe for concurrent use. Concurrent
// ingest of the same ContentID is last-write-wins, which is harmless because
// ids are content-addressed (identical id implies identical bytes).
type Store interface {
	// ReadAt reads len(p) bytes starting at the given offset. A short read
	// is an error; reads past the end of the content fail.
	ReadAt(ctx context.Context, id ID, p []byte, offset int64) error

	// Size returns the content size in bytes.
	Size(ctx context.Context, id ID) (int64, error)

	// Exists reports whether the content is present.
	Exists(ctx context.Context, id ID) (bool, error)

	// IngestFile moves a fully assembled local file into the store under the
	// given id. The source file is consumed on success. Ingesting an id that
	// already exists is a no-op (the source is discarded).
	IngestFile(ctx context.Context, localPath string, id ID) error

	// Delete removes the content. Deleting absent content is not an error.
	Delete(ctx context.Context, id ID) error

	// Close releases underlying resources.
	Close() error
}

// GarbageCollectableStore is implemented by stores that support the orphan
// collector: enumerating their content and deleting it in batches.
type GarbageCollectableStore interface {
	// ListAll returns every ContentID currently present in the store.
	ListAll(ctx context.Context) ([]ID, error)

	// DeleteBatch removes a batch of blobs, returning per-id failures.
	// Absent ids are not failures. A non-nil error means the batch as a
	// whole could not be attempted.
	DeleteBatch(ctx context.Context, ids []ID) (map[ID]error, error)
}
