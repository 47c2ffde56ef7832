// Package fs implements filesystem-based durable content storage.
//
// Committed blobs are stored under the base directory, fanned out by the
// first two characters of the content-addressed id to keep directory sizes
// bounded (e.g. "ab/abc123...").
package fs

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/farid-asgarli/ws-cloud/pkg/content"
)

// FSContentStore implements content.Store using the local filesystem.
//
// Thread Safety: filesystem operations are safe at the OS level. Ingest of
// the same content-addressed id from concurrent sessions is last-write-wins
// with identical bytes, so no extra locking is needed.
type FSContentStore struct {
	basePath string
}

// NewFSContentStore creates a filesystem content store rooted at basePath,
// creating the directory if it doesn't exist.
func NewFSContentStore(ctx context.Context, basePath string) (*FSContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create content directory: %w", err)
	}

	return &FSContentStore{basePath: basePath}, nil
}

// getFilePath returns the fanned-out path for a content id.
func (r *FSContentStore) getFilePath(id content.ID) string {
	s := string(id)
	if len(s) < 2 {
		return filepath.Join(r.basePath, s)
	}
	return filepath.Join(r.basePath, s[:2], s)
}

// ReadAt reads exactly len(p) bytes starting at offset.
func (r *FSContentStore) ReadAt(ctx context.Context, id content.ID, p []byte, offset int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.Open(r.getFilePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
		}
		return fmt.Errorf("failed to open content: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.ReadAt(p, offset); err != nil {
		return fmt.Errorf("failed to read content at offset %d: %w", offset, err)
	}

	return nil
}

// Size returns the content size in bytes.
func (r *FSContentStore) Size(ctx context.Context, id content.ID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	info, err := os.Stat(r.getFilePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
		}
		return 0, fmt.Errorf("failed to stat content: %w", err)
	}

	return info.Size(), nil
}

// Exists reports whether the content is present.
func (r *FSContentStore) Exists(ctx context.Context, id content.ID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := os.Stat(r.getFilePath(id))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat content: %w", err)
}

// IngestFile promotes a fully assembled local file into the store.
//
// A plain rename is attempted first (atomic when staging and content live on
// the same filesystem); on cross-device errors the file is copied and the
// source removed.
func (r *FSContentStore) IngestFile(ctx context.Context, localPath string, id content.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dest := r.getFilePath(id)

	// Content-addressed: an existing blob already holds identical bytes.
	if _, err := os.Stat(dest); err == nil {
		return os.Remove(localPath)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create content fanout directory: %w", err)
	}

	if err := os.Rename(localPath, dest); err == nil {
		return nil
	}

	// Rename failed (likely EXDEV): fall back to copy + remove.
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open staged file: %w", err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create content file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dest)
		return fmt.Errorf("failed to copy staged file: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to finalize content file: %w", err)
	}

	return os.Remove(localPath)
}

// Delete removes the content. Deleting absent content is not an error.
func (r *FSContentStore) Delete(ctx context.Context, id content.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(r.getFilePath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete content: %w", err)
	}

	return nil
}

// ListAll enumerates every ContentID in the store for the orphan collector.
func (r *FSContentStore) ListAll(ctx context.Context) ([]content.ID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []content.ID
	err := filepath.WalkDir(r.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if !d.IsDir() {
			ids = append(ids, content.ID(d.Name()))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list content: %w", err)
	}

	return ids, nil
}

// DeleteBatch removes blobs one by one; the filesystem has no bulk delete.
// Per-id failures are collected rather than aborting the batch.
func (r *FSContentStore) DeleteBatch(ctx context.Context, ids []content.ID) (map[content.ID]error, error) {
	failures := make(map[content.ID]error)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return failures, err
		}
		if err := r.Delete(ctx, id); err != nil {
			failures[id] = err
		}
	}
	return failures, nil
}

// Close implements content.Store. The filesystem store holds no resources.
func (r *FSContentStore) Close() error {
	return nil
}
