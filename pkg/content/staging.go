package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// StagingArea manages the temporary blobs of in-flight upload sessions on the
// local filesystem.
//
// Each session owns exactly one staging blob, named by the session id. Chunks
// are written at their computed offsets, so out-of-order and concurrent
// delivery across chunk indices never corrupts the assembled content.
//
// Thread Safety: safe for concurrent use across blobs. Writes to the same
// blob are serialized by the upload session's guard, not here.
type StagingArea struct {
	dir string
}

// NewStagingArea creates the staging directory if needed.
func NewStagingArea(ctx context.Context, dir string) (*StagingArea, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	return &StagingArea{dir: dir}, nil
}

// Path returns the filesystem path of a staging blob.
func (a *StagingArea) Path(name string) string {
	return filepath.Join(a.dir, name)
}

// CreateSized allocates a fresh staging blob of the given size. An existing
// blob with the same name is truncated.
func (a *StagingArea) CreateSized(ctx context.Context, name string, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.OpenFile(a.Path(name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return wrapDiskErr("failed to create staging blob", err)
	}
	defer func() { _ = f.Close() }()

	if size > 0 {
		if err := f.Truncate(size); err != nil {
			return wrapDiskErr("failed to size staging blob", err)
		}
	}

	return nil
}

// WriteAt writes data at the given byte offset of a staging blob.
func (a *StagingArea) WriteAt(ctx context.Context, name string, data []byte, offset int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.OpenFile(a.Path(name), os.O_WRONLY, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("staging blob %s: %w", name, ErrContentNotFound)
		}
		return wrapDiskErr("failed to open staging blob", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteAt(data, offset); err != nil {
		return wrapDiskErr("failed to write staging blob", err)
	}

	return nil
}

// Hash computes the SHA-256 hex digest of an assembled staging blob.
func (a *StagingArea) Hash(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := os.Open(a.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("staging blob %s: %w", name, ErrContentNotFound)
		}
		return "", fmt.Errorf("failed to open staging blob: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash staging blob: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Remove deletes a staging blob. Removing an absent blob is not an error.
func (a *StagingArea) Remove(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(a.Path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove staging blob: %w", err)
	}

	return nil
}

// wrapDiskErr distinguishes out-of-space failures so callers can surface
// them as DiskFull rather than Unknown.
func wrapDiskErr(msg string, err error) error {
	if isNoSpace(err) {
		return fmt.Errorf("%s: disk full: %w", msg, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// IsNoSpace reports whether an error chain contains ENOSPC.
func IsNoSpace(err error) bool {
	return isNoSpace(err)
}

func isNoSpace(err error) bool {
	return errors.Is(err, syscall.ENOSPC)
}
