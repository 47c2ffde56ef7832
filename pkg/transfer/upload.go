package transfer

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/farid-asgarli/ws-cloud/internal/logger"
	"github.com/farid-asgarli/ws-cloud/pkg/content"
	"github.com/farid-asgarli/ws-cloud/pkg/metadata"
	"github.com/farid-asgarli/ws-cloud/pkg/vpath"
)

// DefaultChunkSize is the negotiated chunk size when the caller supplies no
// hint.
const DefaultChunkSize = 1 * 1024 * 1024

// DefaultIdleTimeout is how long a session may sit without activity before
// the reaper (or a late lookup) reclaims it.
const DefaultIdleTimeout = 30 * time.Minute

// sessionState tracks the upload lifecycle.
type sessionState int

const (
	statePending sessionState = iota // created, no chunks yet
	stateReceiving
	stateCompleting
	stateCommitted // terminal
	stateAborted   // terminal
)

// UploadSession is the in-flight state of one chunked upload.
//
// All mutable fields are guarded by mu. The staging blob is exclusively owned
// by the session until commit, at which point ownership transfers to the
// durable content store.
type UploadSession struct {
	ID          string
	Owner       metadata.OwnerID
	Path        string // canonical destination path
	MimeType    string
	TotalSize   int64
	ChunkSize   int64
	TotalChunks int
	Overwrite   bool

	// CreateParents makes completion materialize missing parent folders
	// instead of failing.
	CreateParents bool

	mu            sync.Mutex
	state         sessionState
	received      map[int]struct{}
	bytesReceived int64
	createdAt     time.Time
	lastActivity  time.Time
}

// UploadRequest describes a new upload.
type UploadRequest struct {
	// Path is the destination virtual path of the file
	Path string

	// TotalSize is the declared size of the full content in bytes
	TotalSize int64

	// ChunkSize is the caller's chunk size hint; 0 selects the default
	ChunkSize int64

	// MimeType is the declared MIME type; empty falls back to the
	// extension
	MimeType string

	// Overwrite allows replacing an existing file at the destination
	Overwrite bool

	// CreateParents materializes missing parent folders at commit
	CreateParents bool
}

// UploadInfo is returned by Start: the negotiated session parameters.
type UploadInfo struct {
	SessionID   string
	ChunkSize   int64
	TotalChunks int
}

// ChunkAck reports the outcome of one chunk write.
type ChunkAck struct {
	// BytesWritten is the length of this chunk
	BytesWritten int64

	// TotalReceived is the cumulative distinct-chunk byte count
	TotalReceived int64
}

// CommitResult is returned by Complete.
type CommitResult struct {
	Node       *metadata.Node
	Path       string
	Size       int64
	ChecksumOK bool

	// Created distinguishes a fresh node from an overwrite of an existing
	// one.
	Created bool
}

// UploadManager tracks in-flight chunked uploads, reassembles their content
// in the staging area, and commits completed uploads to the durable content
// store and the metadata tree.
type UploadManager struct {
	registry    *registry[*UploadSession]
	staging     *content.StagingArea
	durable     content.Store
	meta        metadata.MetadataStore
	chunkSize   int64
	idleTimeout time.Duration
}

// UploadManagerConfig configures an UploadManager.
type UploadManagerConfig struct {
	// Staging holds in-flight session blobs (always local filesystem)
	Staging *content.StagingArea

	// Durable receives committed, content-addressed blobs
	Durable content.Store

	// Metadata materializes committed uploads as file nodes
	Metadata metadata.MetadataStore

	// DefaultChunkSize overrides the package default when positive
	DefaultChunkSize int64

	// IdleTimeout overrides the package default when positive
	IdleTimeout time.Duration
}

// NewUploadManager creates an upload manager with an empty session registry.
func NewUploadManager(cfg UploadManagerConfig) *UploadManager {
	chunkSize := cfg.DefaultChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &UploadManager{
		registry:    newRegistry[*UploadSession](),
		staging:     cfg.Staging,
		durable:     cfg.Durable,
		meta:        cfg.Metadata,
		chunkSize:   chunkSize,
		idleTimeout: idle,
	}
}

// Start creates an upload session and allocates its staging blob sized to
// the declared total.
func (m *UploadManager) Start(ctx context.Context, owner metadata.OwnerID, req UploadRequest) (*UploadInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if req.TotalSize < 0 {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrInvalidArgument,
			Message: "total size must not be negative",
		}
	}
	if req.ChunkSize < 0 {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrInvalidArgument,
			Message: "chunk size must be positive",
		}
	}

	canonical, err := vpath.Normalize(req.Path)
	if err != nil {
		return nil, err
	}
	if canonical == vpath.Root {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrInvalidPath,
			Message: "destination must not be the root",
			Path:    canonical,
		}
	}

	// Fail fast on conflicts the commit would hit anyway.
	existing, err := m.meta.GetByPath(ctx, owner, canonical)
	switch {
	case err == nil && existing.IsFolder():
		return nil, &metadata.StoreError{
			Code:    metadata.ErrAlreadyExists,
			Message: "destination is an existing folder",
			Path:    canonical,
		}
	case err == nil && !req.Overwrite:
		return nil, &metadata.StoreError{
			Code:    metadata.ErrAlreadyExists,
			Message: "destination file already exists",
			Path:    canonical,
		}
	case err != nil && !metadata.IsCode(err, metadata.ErrNotFound):
		return nil, err
	}

	if !req.CreateParents {
		if parent := vpath.Parent(canonical); parent != vpath.Root {
			if _, err := m.meta.GetByPath(ctx, owner, parent); err != nil {
				return nil, err
			}
		}
	}

	chunkSize := req.ChunkSize
	if chunkSize == 0 {
		chunkSize = m.chunkSize
	}

	session := &UploadSession{
		ID:            uuid.New().String(),
		Owner:         owner,
		Path:          canonical,
		MimeType:      req.MimeType,
		TotalSize:     req.TotalSize,
		ChunkSize:     chunkSize,
		TotalChunks:   chunkCount(req.TotalSize, chunkSize),
		Overwrite:     req.Overwrite,
		CreateParents: req.CreateParents,
		received:      make(map[int]struct{}),
		createdAt:     time.Now(),
		lastActivity:  time.Now(),
	}

	if err := m.staging.CreateSized(ctx, session.ID, session.TotalSize); err != nil {
		return nil, mapDiskErr(err)
	}

	m.registry.put(session.ID, session)
	logger.Debug("upload session %s started: %s (%d bytes, %d chunks)",
		session.ID, canonical, session.TotalSize, session.TotalChunks)

	return &UploadInfo{
		SessionID:   session.ID,
		ChunkSize:   chunkSize,
		TotalChunks: session.TotalChunks,
	}, nil
}

// WriteChunk writes one chunk at its computed offset.
//
// Re-delivery of an already-received index overwrites the same byte range
// (harmless, identical offsets) but never double-counts the byte total.
func (m *UploadManager) WriteChunk(ctx context.Context, sessionID string, chunkIndex int, data []byte) (*ChunkAck, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	session, err := m.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.state == stateCommitted || session.state == stateAborted {
		return nil, errSessionNotFound(sessionID)
	}
	if chunkIndex < 0 || chunkIndex >= session.TotalChunks {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrChunkIndexOutOfRange,
			Message: "chunk index out of range",
		}
	}

	expected := session.chunkLen(chunkIndex)
	if int64(len(data)) != expected {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrInvalidArgument,
			Message: "chunk length does not match the expected length for this index",
		}
	}

	offset := int64(chunkIndex) * session.ChunkSize
	if err := m.staging.WriteAt(ctx, session.ID, data, offset); err != nil {
		return nil, mapDiskErr(err)
	}

	if _, dup := session.received[chunkIndex]; !dup {
		session.received[chunkIndex] = struct{}{}
		session.bytesReceived += int64(len(data))
	}
	session.state = stateReceiving
	session.lastActivity = time.Now()

	return &ChunkAck{
		BytesWritten:  int64(len(data)),
		TotalReceived: session.bytesReceived,
	}, nil
}

// chunkLen returns the expected byte length of a chunk index: ChunkSize for
// every chunk except possibly the last.
func (s *UploadSession) chunkLen(index int) int64 {
	if index == s.TotalChunks-1 {
		if rem := s.TotalSize % s.ChunkSize; rem != 0 {
			return rem
		}
	}
	return s.ChunkSize
}

// Complete verifies, promotes, and materializes an upload.
//
// When a checksum is supplied and does not match the assembled content, the
// session aborts: the staging blob is discarded and no node is created or
// overwritten.
func (m *UploadManager) Complete(ctx context.Context, sessionID string, checksum string) (*CommitResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	session, err := m.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.state == stateCommitted || session.state == stateAborted {
		return nil, errSessionNotFound(sessionID)
	}
	if len(session.received) != session.TotalChunks {
		return nil, &metadata.StoreError{
			Code: metadata.ErrInvalidArgument,
			Message: fmt.Sprintf("upload incomplete: received %d of %d chunks",
				len(session.received), session.TotalChunks),
		}
	}
	session.state = stateCompleting

	hash, err := m.staging.Hash(ctx, session.ID)
	if err != nil {
		session.state = stateReceiving
		return nil, err
	}

	if checksum != "" && !strings.EqualFold(hash, checksum) {
		m.discardLocked(ctx, session)
		return nil, &metadata.StoreError{
			Code:    metadata.ErrChecksumMismatch,
			Message: "assembled content does not match the supplied checksum",
			Path:    session.Path,
		}
	}

	contentID := metadata.ContentID(hash)
	if err := m.durable.IngestFile(ctx, m.staging.Path(session.ID), contentID); err != nil {
		session.state = stateReceiving
		return nil, mapDiskErr(err)
	}

	node, created, err := m.materialize(ctx, session, contentID)
	if err != nil {
		// The blob stayed durable but unreferenced; the orphan collector
		// reclaims it.
		session.state = stateReceiving
		return nil, err
	}

	session.state = stateCommitted
	m.registry.remove(session.ID)
	logger.Info("upload session %s committed: %s (%d bytes)",
		session.ID, node.Path, node.Size)

	return &CommitResult{
		Node:       node,
		Path:       node.Path,
		Size:       node.Size,
		ChecksumOK: checksum != "",
		Created:    created,
	}, nil
}

// materialize creates or overwrites the destination file node for a
// committed upload, reporting created=true for a fresh node.
func (m *UploadManager) materialize(ctx context.Context, session *UploadSession, contentID metadata.ContentID) (*metadata.Node, bool, error) {
	fc := metadata.FileContent{
		Size:        session.TotalSize,
		MimeType:    session.mimeType(),
		ContentHash: string(contentID),
		StorageRef:  contentID,
	}

	existing, err := m.meta.GetByPath(ctx, session.Owner, session.Path)
	switch {
	case err == nil && existing.IsFolder():
		return nil, false, &metadata.StoreError{
			Code:    metadata.ErrAlreadyExists,
			Message: "destination is an existing folder",
			Path:    session.Path,
		}
	case err == nil && !session.Overwrite:
		return nil, false, &metadata.StoreError{
			Code:    metadata.ErrAlreadyExists,
			Message: "destination file already exists",
			Path:    session.Path,
		}
	case err == nil:
		node, released, uerr := m.meta.UpdateFileContent(ctx, session.Owner, existing.ID, fc)
		if uerr != nil {
			return nil, false, uerr
		}
		m.deleteReleased(ctx, released)
		return node, false, nil
	case !metadata.IsCode(err, metadata.ErrNotFound):
		return nil, false, err
	}

	parentPath := vpath.Parent(session.Path)
	var parentID uuid.UUID
	if parentPath != vpath.Root {
		var parent *metadata.Node
		if session.CreateParents {
			parent, err = m.meta.EnsurePathExists(ctx, session.Owner, parentPath)
		} else {
			parent, err = m.meta.GetByPath(ctx, session.Owner, parentPath)
		}
		if err != nil {
			return nil, false, err
		}
		parentID = parent.ID
	}

	node, err := m.meta.Create(ctx, session.Owner, &metadata.Node{
		ParentID:    parentID,
		Name:        vpath.Base(session.Path),
		Type:        metadata.NodeTypeFile,
		Size:        fc.Size,
		MimeType:    fc.MimeType,
		ContentHash: fc.ContentHash,
		StorageRef:  fc.StorageRef,
	})
	if err != nil {
		return nil, false, err
	}
	return node, true, nil
}

// mimeType returns the declared MIME type, falling back to the destination
// extension.
func (s *UploadSession) mimeType() string {
	if s.MimeType != "" {
		return s.MimeType
	}
	return mime.TypeByExtension(path.Ext(s.Path))
}

// deleteReleased physically removes blobs whose last reference vanished with
// an overwrite. Failures are logged, not surfaced: the orphan collector
// retries later.
func (m *UploadManager) deleteReleased(ctx context.Context, released []metadata.ContentID) {
	for _, id := range released {
		if err := m.durable.Delete(ctx, id); err != nil {
			logger.Warn("failed to delete released blob %s: %v", id, err)
		}
	}
}

// Abort removes the session and deletes its staging blob. Unknown or already
// terminal sessions report SessionNotFound.
func (m *UploadManager) Abort(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	session, ok := m.registry.get(sessionID)
	if !ok {
		return errSessionNotFound(sessionID)
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.state == stateCommitted || session.state == stateAborted {
		return errSessionNotFound(sessionID)
	}
	m.discardLocked(ctx, session)
	logger.Debug("upload session %s aborted", sessionID)
	return nil
}

// discardLocked transitions a session to Aborted, removing it from the
// registry and deleting its staging blob. Caller holds session.mu.
func (m *UploadManager) discardLocked(ctx context.Context, session *UploadSession) {
	session.state = stateAborted
	m.registry.remove(session.ID)
	if err := m.staging.Remove(ctx, session.ID); err != nil {
		logger.Warn("failed to remove staging blob %s: %v", session.ID, err)
	}
}

// lookup fetches a live session, reclaiming it on the spot when its idle
// timeout already passed (the reaper may simply not have run yet).
func (m *UploadManager) lookup(ctx context.Context, sessionID string) (*UploadSession, error) {
	session, ok := m.registry.get(sessionID)
	if !ok {
		return nil, errSessionNotFound(sessionID)
	}

	session.mu.Lock()
	if time.Since(session.lastActivity) > m.idleTimeout {
		m.discardLocked(ctx, session)
		session.mu.Unlock()
		return nil, &metadata.StoreError{
			Code:    metadata.ErrSessionExpired,
			Message: "session expired after idle timeout",
		}
	}
	session.mu.Unlock()
	return session, nil
}

// ReapIdle aborts every session idle past the timeout and returns how many
// were reclaimed. Called by the reaper.
func (m *UploadManager) ReapIdle(ctx context.Context, timeout time.Duration) int {
	reaped := 0
	for _, session := range m.registry.snapshot() {
		session.mu.Lock()
		if session.state != stateCommitted && session.state != stateAborted &&
			time.Since(session.lastActivity) > timeout {
			m.discardLocked(ctx, session)
			reaped++
		}
		session.mu.Unlock()
	}
	return reaped
}

// ActiveSessions returns the number of live upload sessions.
func (m *UploadManager) ActiveSessions() int {
	return m.registry.size()
}

// chunkCount computes ceil(totalSize / chunkSize).
func chunkCount(totalSize, chunkSize int64) int {
	return int((totalSize + chunkSize - 1) / chunkSize)
}

// mapDiskErr converts out-of-space failures into the DiskFull error kind.
func mapDiskErr(err error) error {
	if err == nil {
		return nil
	}
	if content.IsNoSpace(err) {
		return &metadata.StoreError{
			Code:    metadata.ErrDiskFull,
			Message: "durable storage is out of space",
		}
	}
	return err
}

// errSessionNotFound builds the canonical unknown-session error.
func errSessionNotFound(id string) *metadata.StoreError {
	return &metadata.StoreError{
		Code:    metadata.ErrSessionNotFound,
		Message: "session " + id + " not found",
	}
}
