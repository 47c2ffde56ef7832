// Package drive is the operation facade of WS Cloud.
//
// It binds the metadata tree, the content stores, and the transfer session
// managers into the method-shaped boundary collaborators call: file
// operations (write, read, stat, readdir, mkdir, rename, delete), tree
// operations (move, copy, soft delete, restore, permanent delete, trash,
// search, recent files, storage stats), chunked transfer passthroughs, and
// change-notification subscriptions.
//
// The facade owns cross-store coordination: physical deletion of blobs whose
// last metadata reference vanished, and event emission for watchers. Wire
// encoding of the boundary is an external concern.
package drive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"

	"github.com/farid-asgarli/ws-cloud/internal/logger"
	"github.com/farid-asgarli/ws-cloud/pkg/content"
	"github.com/farid-asgarli/ws-cloud/pkg/metadata"
	"github.com/farid-asgarli/ws-cloud/pkg/transfer"
	"github.com/farid-asgarli/ws-cloud/pkg/vpath"
)

// Service is the drive facade. Construct with NewService; the zero value is
// not usable.
//
// Thread Safety: safe for concurrent use; it holds no mutable state of its
// own beyond the watch registry.
type Service struct {
	meta      metadata.MetadataStore
	durable   content.Store
	uploads   *transfer.UploadManager
	downloads *transfer.DownloadManager
	watches   *watchRegistry
}

// ServiceConfig wires the stores and managers into a Service.
type ServiceConfig struct {
	Metadata  metadata.MetadataStore
	Durable   content.Store
	Uploads   *transfer.UploadManager
	Downloads *transfer.DownloadManager
}

// NewService creates the facade.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		meta:      cfg.Metadata,
		durable:   cfg.Durable,
		uploads:   cfg.Uploads,
		downloads: cfg.Downloads,
		watches:   newWatchRegistry(),
	}
}

// WriteOptions controls WriteFile behavior.
type WriteOptions struct {
	// Overwrite replaces an existing file at the destination
	Overwrite bool

	// CreateParents materializes missing parent folders
	CreateParents bool

	// MimeType declares the content type; empty falls back to the extension
	MimeType string
}

// WriteFile writes a whole small file in one call. Internally it runs a
// single-chunk upload session so the commit path (hashing, content
// addressing, node materialization) is identical to chunked uploads.
func (s *Service) WriteFile(ctx context.Context, owner metadata.OwnerID, path string, data []byte, opts WriteOptions) (*metadata.Node, error) {
	canonical, err := vpath.Normalize(path)
	if err != nil {
		return nil, err
	}

	chunkSize := int64(len(data))
	if chunkSize == 0 {
		chunkSize = 1
	}
	info, err := s.uploads.Start(ctx, owner, transfer.UploadRequest{
		Path:          canonical,
		TotalSize:     int64(len(data)),
		ChunkSize:     chunkSize,
		MimeType:      opts.MimeType,
		Overwrite:     opts.Overwrite,
		CreateParents: opts.CreateParents,
	})
	if err != nil {
		return nil, err
	}

	if len(data) > 0 {
		if _, err := s.uploads.WriteChunk(ctx, info.SessionID, 0, data); err != nil {
			_ = s.uploads.Abort(ctx, info.SessionID)
			return nil, err
		}
	}

	sum := sha256.Sum256(data)
	result, err := s.uploads.Complete(ctx, info.SessionID, hex.EncodeToString(sum[:]))
	if err != nil {
		return nil, err
	}

	eventType := EventChanged
	if result.Created {
		eventType = EventCreated
	}
	s.watches.notify(owner, eventType, result.Node.Path, result.Node.ID)
	return result.Node, nil
}

// ReadFile reads a whole file and records a view access.
func (s *Service) ReadFile(ctx context.Context, owner metadata.OwnerID, path string) ([]byte, *metadata.Node, error) {
	node, err := s.meta.GetByPath(ctx, owner, path)
	if err != nil {
		return nil, nil, err
	}
	if node.IsFolder() {
		return nil, nil, &metadata.StoreError{
			Code:    metadata.ErrNotFound,
			Message: "path is a folder, not a readable file",
			Path:    node.Path,
		}
	}

	buf := make([]byte, node.Size)
	if node.Size > 0 {
		if err := s.durable.ReadAt(ctx, node.StorageRef, buf, 0); err != nil {
			return nil, nil, err
		}
	}

	if err := s.meta.RecordAccess(ctx, owner, node.ID, metadata.AccessView); err != nil {
		logger.Warn("failed to record view access for %s: %v", node.Path, err)
	}
	return buf, node, nil
}

// Stat returns the node at a path.
func (s *Service) Stat(ctx context.Context, owner metadata.OwnerID, path string) (*metadata.Node, error) {
	return s.meta.GetByPath(ctx, owner, path)
}

// ReadDir lists the non-deleted children of a folder path ("/" for the root
// level), folders first, then alphabetical.
func (s *Service) ReadDir(ctx context.Context, owner metadata.OwnerID, path string) ([]*metadata.Node, error) {
	canonical, err := vpath.Normalize(path)
	if err != nil {
		return nil, err
	}

	parentID := uuid.Nil
	if canonical != vpath.Root {
		folder, err := s.meta.GetByPath(ctx, owner, canonical)
		if err != nil {
			return nil, err
		}
		parentID = folder.ID
	}
	return s.meta.GetChildren(ctx, owner, parentID)
}

// Mkdir creates a folder. With createParents set, missing intermediate
// folders are materialized; without it, the parent must exist. Fails with
// AlreadyExists when the leaf is taken.
func (s *Service) Mkdir(ctx context.Context, owner metadata.OwnerID, path string, createParents bool) (*metadata.Node, error) {
	canonical, err := vpath.Normalize(path)
	if err != nil {
		return nil, err
	}
	if canonical == vpath.Root {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrAlreadyExists,
			Message: "the root always exists",
			Path:    canonical,
		}
	}

	if _, err := s.meta.GetByPath(ctx, owner, canonical); err == nil {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrAlreadyExists,
			Message: "a node with this path already exists",
			Path:    canonical,
		}
	} else if !metadata.IsCode(err, metadata.ErrNotFound) {
		return nil, err
	}

	parentPath := vpath.Parent(canonical)
	parentID := uuid.Nil
	if parentPath != vpath.Root {
		var parent *metadata.Node
		if createParents {
			parent, err = s.meta.EnsurePathExists(ctx, owner, parentPath)
		} else {
			parent, err = s.meta.GetByPath(ctx, owner, parentPath)
		}
		if err != nil {
			return nil, err
		}
		parentID = parent.ID
	}

	folder, err := s.meta.Create(ctx, owner, &metadata.Node{
		ParentID: parentID,
		Name:     vpath.Base(canonical),
		Type:     metadata.NodeTypeFolder,
	})
	if err != nil {
		return nil, err
	}

	s.watches.notify(owner, EventCreated, folder.Path, folder.ID)
	return folder, nil
}

// Rename changes the name of the node at a path.
func (s *Service) Rename(ctx context.Context, owner metadata.OwnerID, path, newName string) (*metadata.Node, error) {
	node, err := s.meta.GetByPath(ctx, owner, path)
	if err != nil {
		return nil, err
	}

	renamed, err := s.meta.Rename(ctx, owner, node.ID, newName)
	if err != nil {
		return nil, err
	}

	s.watches.notify(owner, EventChanged, renamed.Path, renamed.ID)
	return renamed, nil
}

// Delete soft-deletes the node at a path (and its subtree) into the trash.
func (s *Service) Delete(ctx context.Context, owner metadata.OwnerID, path string) error {
	node, err := s.meta.GetByPath(ctx, owner, path)
	if err != nil {
		return err
	}
	if err := s.meta.SoftDelete(ctx, owner, []uuid.UUID{node.ID}); err != nil {
		return err
	}

	s.watches.notify(owner, EventDeleted, node.Path, node.ID)
	return nil
}

// Move relocates nodes under a destination folder (uuid.Nil for the root
// level).
func (s *Service) Move(ctx context.Context, owner metadata.OwnerID, ids []uuid.UUID, destFolderID uuid.UUID) error {
	if err := s.meta.Move(ctx, owner, ids, destFolderID); err != nil {
		return err
	}

	for _, id := range ids {
		if node, err := s.meta.GetByID(ctx, owner, id); err == nil {
			s.watches.notify(owner, EventChanged, node.Path, node.ID)
		}
	}
	return nil
}

// Copy duplicates nodes under a destination folder and returns the new
// top-level nodes.
func (s *Service) Copy(ctx context.Context, owner metadata.OwnerID, ids []uuid.UUID, destFolderID uuid.UUID) ([]*metadata.Node, error) {
	copies, err := s.meta.Copy(ctx, owner, ids, destFolderID)
	if err != nil {
		return nil, err
	}

	for _, node := range copies {
		s.watches.notify(owner, EventCreated, node.Path, node.ID)
	}
	return copies, nil
}

// SoftDelete moves nodes (with their subtrees) into the trash.
func (s *Service) SoftDelete(ctx context.Context, owner metadata.OwnerID, ids []uuid.UUID) error {
	// Resolve paths first: after the delete they are no longer reachable
	// by path lookups.
	paths := make(map[uuid.UUID]string, len(ids))
	for _, id := range ids {
		node, err := s.meta.GetByID(ctx, owner, id)
		if err != nil {
			return err
		}
		paths[id] = node.Path
	}

	if err := s.meta.SoftDelete(ctx, owner, ids); err != nil {
		return err
	}

	for _, id := range ids {
		s.watches.notify(owner, EventDeleted, paths[id], id)
	}
	return nil
}

// Restore brings trashed nodes (with their subtrees) back into the tree.
func (s *Service) Restore(ctx context.Context, owner metadata.OwnerID, ids []uuid.UUID) ([]*metadata.Node, error) {
	restored, err := s.meta.Restore(ctx, owner, ids)
	if err != nil {
		return nil, err
	}

	for _, node := range restored {
		s.watches.notify(owner, EventCreated, node.Path, node.ID)
	}
	return restored, nil
}

// PermanentDelete removes nodes and their subtrees irreversibly and deletes
// any blobs whose last reference vanished.
func (s *Service) PermanentDelete(ctx context.Context, owner metadata.OwnerID, ids []uuid.UUID) error {
	paths := make(map[uuid.UUID]string, len(ids))
	for _, id := range ids {
		node, err := s.meta.GetByID(ctx, owner, id)
		if err != nil {
			return err
		}
		paths[id] = node.Path
	}

	released, err := s.meta.HardDelete(ctx, owner, ids)
	if err != nil {
		return err
	}
	s.deleteReleased(ctx, released)

	for _, id := range ids {
		s.watches.notify(owner, EventDeleted, paths[id], id)
	}
	return nil
}

// ListTrash returns the top-level trashed nodes.
func (s *Service) ListTrash(ctx context.Context, owner metadata.OwnerID) ([]*metadata.Node, error) {
	return s.meta.ListTrash(ctx, owner)
}

// EmptyTrash permanently removes everything in the trash.
func (s *Service) EmptyTrash(ctx context.Context, owner metadata.OwnerID) error {
	released, err := s.meta.EmptyTrash(ctx, owner)
	if err != nil {
		return err
	}
	s.deleteReleased(ctx, released)
	return nil
}

// Search matches non-deleted nodes by name substring and filters.
func (s *Service) Search(ctx context.Context, owner metadata.OwnerID, query metadata.SearchQuery) ([]*metadata.Node, error) {
	return s.meta.Search(ctx, owner, query)
}

// RecentFiles returns the most recently accessed distinct files.
func (s *Service) RecentFiles(ctx context.Context, owner metadata.OwnerID, limit int) ([]metadata.RecentFile, error) {
	return s.meta.RecentFiles(ctx, owner, limit)
}

// StorageStats summarizes the owner's usage.
func (s *Service) StorageStats(ctx context.Context, owner metadata.OwnerID) (*metadata.StorageStats, error) {
	return s.meta.StorageStats(ctx, owner)
}

// StartUpload opens a chunked upload session.
func (s *Service) StartUpload(ctx context.Context, owner metadata.OwnerID, req transfer.UploadRequest) (*transfer.UploadInfo, error) {
	return s.uploads.Start(ctx, owner, req)
}

// WriteChunk delivers one upload chunk.
func (s *Service) WriteChunk(ctx context.Context, sessionID string, chunkIndex int, data []byte) (*transfer.ChunkAck, error) {
	return s.uploads.WriteChunk(ctx, sessionID, chunkIndex, data)
}

// CompleteUpload commits a chunked upload and notifies watchers.
func (s *Service) CompleteUpload(ctx context.Context, sessionID string, checksum string) (*transfer.CommitResult, error) {
	result, err := s.uploads.Complete(ctx, sessionID, checksum)
	if err != nil {
		return nil, err
	}

	eventType := EventChanged
	if result.Created {
		eventType = EventCreated
	}
	s.watches.notify(result.Node.OwnerID, eventType, result.Node.Path, result.Node.ID)
	return result, nil
}

// AbortUpload discards a chunked upload session.
func (s *Service) AbortUpload(ctx context.Context, sessionID string) error {
	return s.uploads.Abort(ctx, sessionID)
}

// StartDownload opens a chunked download session.
func (s *Service) StartDownload(ctx context.Context, owner metadata.OwnerID, path string, chunkSize int64) (*transfer.DownloadInfo, error) {
	return s.downloads.Start(ctx, owner, path, chunkSize)
}

// ReadChunk serves one download chunk.
func (s *Service) ReadChunk(ctx context.Context, sessionID string, chunkIndex int) (*transfer.DownloadChunk, error) {
	return s.downloads.ReadChunk(ctx, sessionID, chunkIndex)
}

// Watch subscribes to change events at or under a path prefix ("/" watches
// the owner's whole tree). Returns the subscription id and the event
// channel; the channel closes on Unwatch.
func (s *Service) Watch(owner metadata.OwnerID, pathPrefix string) (string, <-chan Event, error) {
	canonical, err := vpath.Normalize(pathPrefix)
	if err != nil {
		return "", nil, err
	}

	id, ch := s.watches.subscribe(owner, canonical)
	return id, ch, nil
}

// Unwatch removes a subscription. Unknown ids report SessionNotFound.
func (s *Service) Unwatch(subscriptionID string) error {
	if !s.watches.unsubscribe(subscriptionID) {
		return &metadata.StoreError{
			Code:    metadata.ErrSessionNotFound,
			Message: "subscription " + subscriptionID + " not found",
		}
	}
	return nil
}

// Healthcheck verifies the backing metadata store is operational.
func (s *Service) Healthcheck(ctx context.Context) error {
	return s.meta.Healthcheck(ctx)
}

// deleteReleased physically removes blobs whose last reference vanished.
// Failures are logged; the orphan collector retries later.
func (s *Service) deleteReleased(ctx context.Context, released []metadata.ContentID) {
	for _, id := range released {
		if err := s.durable.Delete(ctx, id); err != nil {
			logger.Warn("failed to delete released blob %s: %v", id, err)
		}
	}
}
