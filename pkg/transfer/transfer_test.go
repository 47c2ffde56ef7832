package transfer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farid-asgarli/ws-cloud/pkg/content"
	contentfs "github.com/farid-asgarli/ws-cloud/pkg/content/fs"
	"github.com/farid-asgarli/ws-cloud/pkg/metadata"
	metabadger "github.com/farid-asgarli/ws-cloud/pkg/metadata/badger"
)

const testOwner = metadata.OwnerID("owner-1")

type testEnv struct {
	uploads   *UploadManager
	downloads *DownloadManager
	meta      metadata.MetadataStore
	durable   content.Store
	staging   *content.StagingArea
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	base := t.TempDir()

	meta, err := metabadger.NewBadgerMetadataStoreWithDefaults(ctx, filepath.Join(base, "meta"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, meta.Close()) })

	durable, err := contentfs.NewFSContentStore(ctx, filepath.Join(base, "content"))
	require.NoError(t, err)

	staging, err := content.NewStagingArea(ctx, filepath.Join(base, "staging"))
	require.NoError(t, err)

	return &testEnv{
		uploads: NewUploadManager(UploadManagerConfig{
			Staging:  staging,
			Durable:  durable,
			Metadata: meta,
		}),
		downloads: NewDownloadManager(DownloadManagerConfig{
			Durable:  durable,
			Metadata: meta,
		}),
		meta:    meta,
		durable: durable,
		staging: staging,
	}
}

// chunksOf slices data into chunkSize pieces, the last possibly shorter.
func chunksOf(data []byte, chunkSize int64) [][]byte {
	var chunks [][]byte
	for off := int64(0); off < int64(len(data)); off += chunkSize {
		end := off + chunkSize
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		chunks = append(chunks, data[off:end])
	}
	return chunks
}

func sha256hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func uploadAll(t *testing.T, env *testEnv, path string, data []byte, chunkSize int64, order []int) *CommitResult {
	t.Helper()
	ctx := context.Background()

	info, err := env.uploads.Start(ctx, testOwner, UploadRequest{
		Path:          path,
		TotalSize:     int64(len(data)),
		ChunkSize:     chunkSize,
		CreateParents: true,
	})
	require.NoError(t, err)

	chunks := chunksOf(data, info.ChunkSize)
	require.Len(t, chunks, info.TotalChunks)

	if order == nil {
		order = rand.Perm(len(chunks))
	}
	for _, idx := range order {
		_, err := env.uploads.WriteChunk(ctx, info.SessionID, idx, chunks[idx])
		require.NoError(t, err)
	}

	result, err := env.uploads.Complete(ctx, info.SessionID, sha256hex(data))
	require.NoError(t, err)
	return result
}

func TestUploadCommitScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	data := make([]byte, 3500000)
	rnd := rand.New(rand.NewSource(42))
	_, _ = rnd.Read(data)

	info, err := env.uploads.Start(ctx, testOwner, UploadRequest{
		Path:          "/docs/report.pdf",
		TotalSize:     3500000,
		CreateParents: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1048576), info.ChunkSize)
	assert.Equal(t, 4, info.TotalChunks)

	chunks := chunksOf(data, info.ChunkSize)
	require.Len(t, chunks, 4)
	assert.Len(t, chunks[3], 354272)

	for _, idx := range []int{2, 0, 3, 1} {
		ack, err := env.uploads.WriteChunk(ctx, info.SessionID, idx, chunks[idx])
		require.NoError(t, err)
		assert.Equal(t, int64(len(chunks[idx])), ack.BytesWritten)
	}

	result, err := env.uploads.Complete(ctx, info.SessionID, sha256hex(data))
	require.NoError(t, err)
	assert.Equal(t, "/docs/report.pdf", result.Path)
	assert.Equal(t, int64(3500000), result.Size)
	assert.True(t, result.ChecksumOK)

	node, err := env.meta.GetByPath(ctx, testOwner, "/docs/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(3500000), node.Size)
	assert.Equal(t, sha256hex(data), node.ContentHash)

	// The committed session is gone.
	_, err = env.uploads.Complete(ctx, info.SessionID, "")
	assert.True(t, metadata.IsCode(err, metadata.ErrSessionNotFound))
	assert.Equal(t, 0, env.uploads.ActiveSessions())
}

func TestChunkArrivalPermutations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	data := []byte("abcdefghijklmnopqrstuvwxyz0123456789")
	orders := [][]int{
		{0, 1, 2, 3},
		{3, 2, 1, 0},
		{2, 0, 3, 1},
		{1, 3, 0, 2},
	}

	for i, order := range orders {
		path := "/perm/file-" + string(rune('a'+i)) + ".bin"
		result := uploadAll(t, env, path, data, 10, order)
		require.Equal(t, int64(len(data)), result.Size)

		// Read the content back and verify byte identity.
		info, err := env.downloads.Start(ctx, testOwner, path, 10)
		require.NoError(t, err)

		var got []byte
		for idx := 0; idx < info.TotalChunks; idx++ {
			chunk, err := env.downloads.ReadChunk(ctx, info.SessionID, idx)
			require.NoError(t, err)
			got = append(got, chunk.Data...)
			assert.Equal(t, idx == info.TotalChunks-1, chunk.Final)
		}
		assert.True(t, bytes.Equal(data, got), "order %v reassembled incorrectly", order)
	}
}

func TestDuplicateChunkDoesNotDoubleCount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	data := []byte("0123456789abcdef")
	info, err := env.uploads.Start(ctx, testOwner, UploadRequest{
		Path:      "/dup.bin",
		TotalSize: int64(len(data)),
		ChunkSize: 8,
	})
	require.NoError(t, err)

	chunks := chunksOf(data, 8)
	ack, err := env.uploads.WriteChunk(ctx, info.SessionID, 0, chunks[0])
	require.NoError(t, err)
	assert.Equal(t, int64(8), ack.TotalReceived)

	// Re-delivery writes again but never double-counts.
	ack, err = env.uploads.WriteChunk(ctx, info.SessionID, 0, chunks[0])
	require.NoError(t, err)
	assert.Equal(t, int64(8), ack.TotalReceived)

	ack, err = env.uploads.WriteChunk(ctx, info.SessionID, 1, chunks[1])
	require.NoError(t, err)
	assert.Equal(t, int64(16), ack.TotalReceived)

	result, err := env.uploads.Complete(ctx, info.SessionID, sha256hex(data))
	require.NoError(t, err)
	assert.Equal(t, int64(16), result.Size)
}

func TestWriteChunkValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	info, err := env.uploads.Start(ctx, testOwner, UploadRequest{
		Path:      "/v.bin",
		TotalSize: 20,
		ChunkSize: 8,
	})
	require.NoError(t, err)

	_, err = env.uploads.WriteChunk(ctx, info.SessionID, 3, make([]byte, 8))
	assert.True(t, metadata.IsCode(err, metadata.ErrChunkIndexOutOfRange))

	_, err = env.uploads.WriteChunk(ctx, info.SessionID, -1, make([]byte, 8))
	assert.True(t, metadata.IsCode(err, metadata.ErrChunkIndexOutOfRange))

	// Middle chunk must be exactly chunk-sized.
	_, err = env.uploads.WriteChunk(ctx, info.SessionID, 0, make([]byte, 5))
	assert.True(t, metadata.IsCode(err, metadata.ErrInvalidArgument))

	// Last chunk must be the remainder (20 mod 8 = 4).
	_, err = env.uploads.WriteChunk(ctx, info.SessionID, 2, make([]byte, 8))
	assert.True(t, metadata.IsCode(err, metadata.ErrInvalidArgument))
	_, err = env.uploads.WriteChunk(ctx, info.SessionID, 2, make([]byte, 4))
	assert.NoError(t, err)

	_, err = env.uploads.WriteChunk(ctx, "no-such-session", 0, make([]byte, 8))
	assert.True(t, metadata.IsCode(err, metadata.ErrSessionNotFound))
}

func TestStartValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.uploads.Start(ctx, testOwner, UploadRequest{Path: "/x.bin", TotalSize: -1})
	assert.True(t, metadata.IsCode(err, metadata.ErrInvalidArgument))

	_, err = env.uploads.Start(ctx, testOwner, UploadRequest{Path: "/", TotalSize: 1})
	assert.True(t, metadata.IsCode(err, metadata.ErrInvalidPath))

	// Parent must exist unless CreateParents is set.
	_, err = env.uploads.Start(ctx, testOwner, UploadRequest{Path: "/missing/x.bin", TotalSize: 1})
	assert.True(t, metadata.IsCode(err, metadata.ErrNotFound))
}

func TestCompleteIncomplete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	info, err := env.uploads.Start(ctx, testOwner, UploadRequest{
		Path:      "/partial.bin",
		TotalSize: 16,
		ChunkSize: 8,
	})
	require.NoError(t, err)

	_, err = env.uploads.WriteChunk(ctx, info.SessionID, 0, make([]byte, 8))
	require.NoError(t, err)

	_, err = env.uploads.Complete(ctx, info.SessionID, "")
	assert.True(t, metadata.IsCode(err, metadata.ErrInvalidArgument))

	// The session survives a failed completion attempt.
	_, err = env.uploads.WriteChunk(ctx, info.SessionID, 1, make([]byte, 8))
	assert.NoError(t, err)
}

func TestChecksumMismatchAborts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	data := []byte("some content")
	info, err := env.uploads.Start(ctx, testOwner, UploadRequest{
		Path:      "/c.bin",
		TotalSize: int64(len(data)),
	})
	require.NoError(t, err)

	_, err = env.uploads.WriteChunk(ctx, info.SessionID, 0, data)
	require.NoError(t, err)

	_, err = env.uploads.Complete(ctx, info.SessionID, sha256hex([]byte("other content")))
	assert.True(t, metadata.IsCode(err, metadata.ErrChecksumMismatch))

	// Terminal: no node, no session, no staging blob.
	_, err = env.meta.GetByPath(ctx, testOwner, "/c.bin")
	assert.True(t, metadata.IsCode(err, metadata.ErrNotFound))
	_, err = env.uploads.Complete(ctx, info.SessionID, "")
	assert.True(t, metadata.IsCode(err, metadata.ErrSessionNotFound))
	assert.Equal(t, 0, env.uploads.ActiveSessions())
}

func TestOverwrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := []byte("first version of the file")
	uploadAll(t, env, "/doc.txt", first, 8, nil)

	// Without overwrite the destination is occupied.
	_, err := env.uploads.Start(ctx, testOwner, UploadRequest{
		Path:      "/doc.txt",
		TotalSize: 4,
	})
	assert.True(t, metadata.IsCode(err, metadata.ErrAlreadyExists))

	second := []byte("v2")
	info, err := env.uploads.Start(ctx, testOwner, UploadRequest{
		Path:      "/doc.txt",
		TotalSize: int64(len(second)),
		Overwrite: true,
	})
	require.NoError(t, err)
	_, err = env.uploads.WriteChunk(ctx, info.SessionID, 0, second)
	require.NoError(t, err)
	result, err := env.uploads.Complete(ctx, info.SessionID, sha256hex(second))
	require.NoError(t, err)

	node, err := env.meta.GetByPath(ctx, testOwner, "/doc.txt")
	require.NoError(t, err)
	assert.Equal(t, result.Node.ID, node.ID)
	assert.Equal(t, int64(2), node.Size)

	// The replaced blob lost its last reference and was deleted.
	exists, err := env.durable.Exists(ctx, metadata.ContentID(sha256hex(first)))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestZeroByteUpload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	info, err := env.uploads.Start(ctx, testOwner, UploadRequest{
		Path:      "/empty.txt",
		TotalSize: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, info.TotalChunks)

	result, err := env.uploads.Complete(ctx, info.SessionID, sha256hex(nil))
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Size)
}

func TestAbortRemovesStaging(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	info, err := env.uploads.Start(ctx, testOwner, UploadRequest{
		Path:      "/a.bin",
		TotalSize: 8,
	})
	require.NoError(t, err)

	require.NoError(t, env.uploads.Abort(ctx, info.SessionID))
	assert.Equal(t, 0, env.uploads.ActiveSessions())

	err = env.uploads.Abort(ctx, info.SessionID)
	assert.True(t, metadata.IsCode(err, metadata.ErrSessionNotFound))
}

func TestDownloadStart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	data := []byte("download me please, twelve chars and more")
	uploadAll(t, env, "/dl/data.bin", data, 16, nil)

	info, err := env.downloads.Start(ctx, testOwner, "/dl/data.bin", 16)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), info.Size)
	assert.Equal(t, chunkCount(int64(len(data)), 16), info.TotalChunks)

	// Folders report NotFound just like absent paths.
	_, err = env.downloads.Start(ctx, testOwner, "/dl", 16)
	assert.True(t, metadata.IsCode(err, metadata.ErrNotFound))

	_, err = env.downloads.Start(ctx, testOwner, "/nope.bin", 16)
	assert.True(t, metadata.IsCode(err, metadata.ErrNotFound))

	// Starting a download records an access-log entry.
	recent, err := env.meta.RecentFiles(ctx, testOwner, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, metadata.AccessDownload, recent[0].AccessType)
}

func TestDownloadReadChunkValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	uploadAll(t, env, "/x.bin", []byte("0123456789"), 4, nil)

	info, err := env.downloads.Start(ctx, testOwner, "/x.bin", 4)
	require.NoError(t, err)

	_, err = env.downloads.ReadChunk(ctx, info.SessionID, 3)
	assert.True(t, metadata.IsCode(err, metadata.ErrChunkIndexOutOfRange))

	chunk, err := env.downloads.ReadChunk(ctx, info.SessionID, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("89"), chunk.Data)
	assert.True(t, chunk.Final)

	_, err = env.downloads.ReadChunk(ctx, "no-such-session", 0)
	assert.True(t, metadata.IsCode(err, metadata.ErrSessionNotFound))
}

func TestReaperReclaimsIdleSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.uploads.idleTimeout = 10 * time.Millisecond
	env.downloads.idleTimeout = 10 * time.Millisecond

	_, err := env.uploads.Start(ctx, testOwner, UploadRequest{
		Path:      "/idle.bin",
		TotalSize: 8,
	})
	require.NoError(t, err)

	uploadAll(t, env, "/live.bin", []byte("12345678"), 8, nil)
	_, err = env.downloads.Start(ctx, testOwner, "/live.bin", 8)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	reaper := NewReaper(env.uploads, env.downloads, ReaperConfig{
		Enabled:     true,
		IdleTimeout: 10 * time.Millisecond,
	})
	stats := reaper.RunNow(ctx)
	assert.Equal(t, 1, stats.UploadsReaped)
	assert.Equal(t, 1, stats.DownloadsReaped)
	assert.Equal(t, 0, env.uploads.ActiveSessions())
	assert.Equal(t, 0, env.downloads.ActiveSessions())
}

func TestExpiredSessionLookup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.uploads.idleTimeout = 10 * time.Millisecond
	info, err := env.uploads.Start(ctx, testOwner, UploadRequest{
		Path:      "/exp.bin",
		TotalSize: 8,
	})
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	// A stale session is reclaimed on the spot even before the reaper runs.
	_, err = env.uploads.WriteChunk(ctx, info.SessionID, 0, make([]byte, 8))
	assert.True(t, metadata.IsCode(err, metadata.ErrSessionExpired))

	_, err = env.uploads.WriteChunk(ctx, info.SessionID, 0, make([]byte, 8))
	assert.True(t, metadata.IsCode(err, metadata.ErrSessionNotFound))
}
