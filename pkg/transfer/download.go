package transfer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/farid-asgarli/ws-cloud/internal/logger"
	"github.com/farid-asgarli/ws-cloud/pkg/content"
	"github.com/farid-asgarli/ws-cloud/pkg/metadata"
)

// DownloadSession is the state of one chunked read. There is no completion
// step: the client stops requesting and the reaper reclaims the session
// after the idle timeout.
type DownloadSession struct {
	ID          string
	Owner       metadata.OwnerID
	NodeID      uuid.UUID
	StorageRef  metadata.ContentID
	TotalSize   int64
	ChunkSize   int64
	TotalChunks int

	mu           sync.Mutex
	lastActivity time.Time
}

// DownloadInfo is returned by Start.
type DownloadInfo struct {
	SessionID   string
	Size        int64
	ChunkSize   int64
	TotalChunks int
	MimeType    string
}

// DownloadChunk is one positional read result.
type DownloadChunk struct {
	Data []byte

	// Final marks the last chunk of the transfer.
	Final bool
}

// DownloadManager serves chunked reads of committed content.
type DownloadManager struct {
	registry    *registry[*DownloadSession]
	durable     content.Store
	meta        metadata.MetadataStore
	chunkSize   int64
	idleTimeout time.Duration
}

// DownloadManagerConfig configures a DownloadManager.
type DownloadManagerConfig struct {
	// Durable is the committed content store reads come from
	Durable content.Store

	// Metadata resolves paths to file nodes
	Metadata metadata.MetadataStore

	// DefaultChunkSize overrides the package default when positive
	DefaultChunkSize int64

	// IdleTimeout overrides the package default when positive
	IdleTimeout time.Duration
}

// NewDownloadManager creates a download manager with an empty session
// registry.
func NewDownloadManager(cfg DownloadManagerConfig) *DownloadManager {
	chunkSize := cfg.DefaultChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &DownloadManager{
		registry:    newRegistry[*DownloadSession](),
		durable:     cfg.Durable,
		meta:        cfg.Metadata,
		chunkSize:   chunkSize,
		idleTimeout: idle,
	}
}

// Start resolves the source file and creates a download session. Folders
// cannot be downloaded and report NotFound like absent paths.
func (m *DownloadManager) Start(ctx context.Context, owner metadata.OwnerID, path string, chunkSize int64) (*DownloadInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if chunkSize < 0 {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrInvalidArgument,
			Message: "chunk size must be positive",
		}
	}
	if chunkSize == 0 {
		chunkSize = m.chunkSize
	}

	node, err := m.meta.GetByPath(ctx, owner, path)
	if err != nil {
		return nil, err
	}
	if node.IsFolder() {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrNotFound,
			Message: "path is a folder, not a downloadable file",
			Path:    node.Path,
		}
	}

	session := &DownloadSession{
		ID:           uuid.New().String(),
		Owner:        owner,
		NodeID:       node.ID,
		StorageRef:   node.StorageRef,
		TotalSize:    node.Size,
		ChunkSize:    chunkSize,
		TotalChunks:  chunkCount(node.Size, chunkSize),
		lastActivity: time.Now(),
	}
	m.registry.put(session.ID, session)

	if err := m.meta.RecordAccess(ctx, owner, node.ID, metadata.AccessDownload); err != nil {
		logger.Warn("failed to record download access for %s: %v", node.Path, err)
	}

	logger.Debug("download session %s started: %s (%d bytes, %d chunks)",
		session.ID, node.Path, node.Size, session.TotalChunks)

	return &DownloadInfo{
		SessionID:   session.ID,
		Size:        node.Size,
		ChunkSize:   chunkSize,
		TotalChunks: session.TotalChunks,
		MimeType:    node.MimeType,
	}, nil
}

// ReadChunk performs a positional read of exactly the expected byte length
// for the index and reports whether this is the final chunk.
func (m *DownloadManager) ReadChunk(ctx context.Context, sessionID string, chunkIndex int) (*DownloadChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	session, ok := m.registry.get(sessionID)
	if !ok {
		return nil, errSessionNotFound(sessionID)
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if time.Since(session.lastActivity) > m.idleTimeout {
		m.registry.remove(session.ID)
		return nil, &metadata.StoreError{
			Code:    metadata.ErrSessionExpired,
			Message: "session expired after idle timeout",
		}
	}

	if chunkIndex < 0 || chunkIndex >= session.TotalChunks {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrChunkIndexOutOfRange,
			Message: "chunk index out of range",
		}
	}

	length := session.ChunkSize
	if chunkIndex == session.TotalChunks-1 {
		if rem := session.TotalSize % session.ChunkSize; rem != 0 {
			length = rem
		}
	}

	buf := make([]byte, length)
	offset := int64(chunkIndex) * session.ChunkSize
	if err := m.durable.ReadAt(ctx, session.StorageRef, buf, offset); err != nil {
		return nil, err
	}
	session.lastActivity = time.Now()

	return &DownloadChunk{
		Data:  buf,
		Final: chunkIndex == session.TotalChunks-1,
	}, nil
}

// ReapIdle removes every session idle past the timeout and returns how many
// were reclaimed. Download sessions hold no staging state, so removal is the
// whole cleanup.
func (m *DownloadManager) ReapIdle(_ context.Context, timeout time.Duration) int {
	reaped := 0
	for _, session := range m.registry.snapshot() {
		session.mu.Lock()
		if time.Since(session.lastActivity) > timeout {
			if m.registry.remove(session.ID) {
				reaped++
			}
		}
		session.mu.Unlock()
	}
	return reaped
}

// ActiveSessions returns the number of live download sessions.
func (m *DownloadManager) ActiveSessions() int {
	return m.registry.size()
}
