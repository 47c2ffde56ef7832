package badger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farid-asgarli/ws-cloud/pkg/metadata"
)

const testOwner = metadata.OwnerID("owner-1")

func newTestStore(t *testing.T) *BadgerMetadataStore {
	t.Helper()

	store, err := NewBadgerMetadataStoreWithDefaults(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func createFolder(t *testing.T, store *BadgerMetadataStore, owner metadata.OwnerID, parentID uuid.UUID, name string) *metadata.Node {
	t.Helper()

	node, err := store.Create(context.Background(), owner, &metadata.Node{
		ParentID: parentID,
		Name:     name,
		Type:     metadata.NodeTypeFolder,
	})
	require.NoError(t, err)
	return node
}

func createFile(t *testing.T, store *BadgerMetadataStore, owner metadata.OwnerID, parentID uuid.UUID, name string, size int64, ref metadata.ContentID) *metadata.Node {
	t.Helper()

	node, err := store.Create(context.Background(), owner, &metadata.Node{
		ParentID:   parentID,
		Name:       name,
		Type:       metadata.NodeTypeFile,
		Size:       size,
		MimeType:   "application/octet-stream",
		StorageRef: ref,
	})
	require.NoError(t, err)
	return node
}

func TestCreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docs := createFolder(t, store, testOwner, uuid.Nil, "Documents")
	assert.Equal(t, "/Documents", docs.Path)
	assert.Equal(t, 0, docs.Depth)

	file := createFile(t, store, testOwner, docs.ID, "report.pdf", 1024, "blob-1")
	assert.Equal(t, "/Documents/report.pdf", file.Path)
	assert.Equal(t, 1, file.Depth)

	byID, err := store.GetByID(ctx, testOwner, file.ID)
	require.NoError(t, err)
	assert.Equal(t, file.Path, byID.Path)

	byPath, err := store.GetByPath(ctx, testOwner, "/Documents/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, file.ID, byPath.ID)

	// Unnormalized input resolves to the same node.
	byPath, err = store.GetByPath(ctx, testOwner, "Documents//report.pdf/")
	require.NoError(t, err)
	assert.Equal(t, file.ID, byPath.ID)
}

func TestOwnerIsolation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	file := createFile(t, store, testOwner, uuid.Nil, "secret.txt", 10, "blob-1")

	other := metadata.OwnerID("owner-2")
	_, err := store.GetByID(ctx, other, file.ID)
	assert.True(t, metadata.IsCode(err, metadata.ErrNotFound))

	_, err = store.GetByPath(ctx, other, "/secret.txt")
	assert.True(t, metadata.IsCode(err, metadata.ErrNotFound))

	err = store.SoftDelete(ctx, other, []uuid.UUID{file.ID})
	assert.True(t, metadata.IsCode(err, metadata.ErrNotFound))
}

func TestOwnerIsolationWithColonInID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Without escaping, the "tenant" prefix scans would also match keys of
	// "tenant:eu".
	short := metadata.OwnerID("tenant")
	long := metadata.OwnerID("tenant:eu")

	theirs := createFile(t, store, long, uuid.Nil, "report.pdf", 10, "blob-1")
	createFile(t, store, short, uuid.Nil, "own.txt", 5, "blob-2")

	children, err := store.GetChildren(ctx, short, uuid.Nil)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "own.txt", children[0].Name)

	_, err = store.GetByPath(ctx, short, "/report.pdf")
	assert.True(t, metadata.IsCode(err, metadata.ErrNotFound))

	// The colon owner still resolves its own node.
	byPath, err := store.GetByPath(ctx, long, "/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, theirs.ID, byPath.ID)

	require.NoError(t, store.SoftDelete(ctx, long, []uuid.UUID{theirs.ID}))
	trash, err := store.ListTrash(ctx, short)
	require.NoError(t, err)
	assert.Empty(t, trash)

	trash, err = store.ListTrash(ctx, long)
	require.NoError(t, err)
	require.Len(t, trash, 1)
	assert.Equal(t, theirs.ID, trash[0].ID)
}

func TestCreateDuplicateName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	createFile(t, store, testOwner, uuid.Nil, "notes.txt", 10, "blob-1")

	_, err := store.Create(ctx, testOwner, &metadata.Node{
		Name: "notes.txt",
		Type: metadata.NodeTypeFile,
	})
	assert.True(t, metadata.IsCode(err, metadata.ErrAlreadyExists))
}

func TestTrashedNameIsReusable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := createFile(t, store, testOwner, uuid.Nil, "notes.txt", 10, "blob-1")
	require.NoError(t, store.SoftDelete(ctx, testOwner, []uuid.UUID{old.ID}))

	// Uniqueness applies among non-deleted siblings only.
	replacement := createFile(t, store, testOwner, uuid.Nil, "notes.txt", 20, "blob-2")
	assert.NotEqual(t, old.ID, replacement.ID)

	byPath, err := store.GetByPath(ctx, testOwner, "/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, replacement.ID, byPath.ID)
}

func TestCreateUnderFileFails(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	file := createFile(t, store, testOwner, uuid.Nil, "data.bin", 10, "blob-1")

	_, err := store.Create(ctx, testOwner, &metadata.Node{
		ParentID: file.ID,
		Name:     "child.txt",
		Type:     metadata.NodeTypeFile,
	})
	assert.True(t, metadata.IsCode(err, metadata.ErrNotADirectory))
}

func TestGetChildrenOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	createFile(t, store, testOwner, uuid.Nil, "beta.txt", 1, "b1")
	createFolder(t, store, testOwner, uuid.Nil, "zeta")
	createFile(t, store, testOwner, uuid.Nil, "alpha.txt", 1, "b2")
	createFolder(t, store, testOwner, uuid.Nil, "acme")

	children, err := store.GetChildren(ctx, testOwner, uuid.Nil)
	require.NoError(t, err)
	require.Len(t, children, 4)

	names := []string{children[0].Name, children[1].Name, children[2].Name, children[3].Name}
	assert.Equal(t, []string{"acme", "zeta", "alpha.txt", "beta.txt"}, names)
}

func TestGetChildrenExcludesTrashed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	keep := createFile(t, store, testOwner, uuid.Nil, "keep.txt", 1, "b1")
	gone := createFile(t, store, testOwner, uuid.Nil, "gone.txt", 1, "b2")
	require.NoError(t, store.SoftDelete(ctx, testOwner, []uuid.UUID{gone.ID}))

	children, err := store.GetChildren(ctx, testOwner, uuid.Nil)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, keep.ID, children[0].ID)
}

func TestEnsurePathExists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	deepest, err := store.EnsurePathExists(ctx, testOwner, "/a/b/c")
	require.NoError(t, err)
	assert.Equal(t, "/a/b/c", deepest.Path)
	assert.Equal(t, 2, deepest.Depth)

	// Idempotent: same folders are reused.
	again, err := store.EnsurePathExists(ctx, testOwner, "/a/b/c")
	require.NoError(t, err)
	assert.Equal(t, deepest.ID, again.ID)

	// The root path has no node.
	root, err := store.EnsurePathExists(ctx, testOwner, "/")
	require.NoError(t, err)
	assert.Nil(t, root)
}

func TestEnsurePathExistsFileConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	createFile(t, store, testOwner, uuid.Nil, "a", 1, "b1")

	_, err := store.EnsurePathExists(ctx, testOwner, "/a/b")
	assert.True(t, metadata.IsCode(err, metadata.ErrNotADirectory))
}

func TestRenameRewritesDescendants(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docs := createFolder(t, store, testOwner, uuid.Nil, "docs")
	sub := createFolder(t, store, testOwner, docs.ID, "sub")
	file := createFile(t, store, testOwner, sub.ID, "f.txt", 1, "b1")

	renamed, err := store.Rename(ctx, testOwner, docs.ID, "archive")
	require.NoError(t, err)
	assert.Equal(t, "/archive", renamed.Path)

	got, err := store.GetByPath(ctx, testOwner, "/archive/sub/f.txt")
	require.NoError(t, err)
	assert.Equal(t, file.ID, got.ID)

	_, err = store.GetByPath(ctx, testOwner, "/docs/sub/f.txt")
	assert.True(t, metadata.IsCode(err, metadata.ErrNotFound))
}

func TestMoveRewritesPathsAndDepths(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	src := createFolder(t, store, testOwner, uuid.Nil, "src")
	dst := createFolder(t, store, testOwner, uuid.Nil, "dst")
	inner := createFolder(t, store, testOwner, src.ID, "inner")
	file := createFile(t, store, testOwner, inner.ID, "f.txt", 1, "b1")

	require.NoError(t, store.Move(ctx, testOwner, []uuid.UUID{src.ID}, dst.ID))

	moved, err := store.GetByID(ctx, testOwner, file.ID)
	require.NoError(t, err)
	assert.Equal(t, "/dst/src/inner/f.txt", moved.Path)
	assert.Equal(t, 3, moved.Depth)

	movedInner, err := store.GetByID(ctx, testOwner, inner.ID)
	require.NoError(t, err)
	assert.Equal(t, "/dst/src/inner", movedInner.Path)
	assert.Equal(t, 2, movedInner.Depth)
}

func TestMoveCycleDetection(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := createFolder(t, store, testOwner, uuid.Nil, "a")
	b := createFolder(t, store, testOwner, a.ID, "b")
	c := createFolder(t, store, testOwner, b.ID, "c")

	err := store.Move(ctx, testOwner, []uuid.UUID{a.ID}, c.ID)
	assert.True(t, metadata.IsCode(err, metadata.ErrCycleDetected))

	err = store.Move(ctx, testOwner, []uuid.UUID{a.ID}, a.ID)
	assert.True(t, metadata.IsCode(err, metadata.ErrCycleDetected))

	// A sibling prefix is not a cycle: "/ab" does not extend "/a".
	ab := createFolder(t, store, testOwner, uuid.Nil, "ab")
	err = store.Move(ctx, testOwner, []uuid.UUID{a.ID}, ab.ID)
	assert.NoError(t, err)
}

func TestMoveNameConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	dst := createFolder(t, store, testOwner, uuid.Nil, "dst")
	createFile(t, store, testOwner, dst.ID, "f.txt", 1, "b1")
	file := createFile(t, store, testOwner, uuid.Nil, "f.txt", 1, "b2")

	err := store.Move(ctx, testOwner, []uuid.UUID{file.ID}, dst.ID)
	assert.True(t, metadata.IsCode(err, metadata.ErrAlreadyExists))
}

func TestMoveToRootLevel(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docs := createFolder(t, store, testOwner, uuid.Nil, "docs")
	file := createFile(t, store, testOwner, docs.ID, "f.txt", 1, "b1")

	require.NoError(t, store.Move(ctx, testOwner, []uuid.UUID{file.ID}, uuid.Nil))

	moved, err := store.GetByID(ctx, testOwner, file.ID)
	require.NoError(t, err)
	assert.Equal(t, "/f.txt", moved.Path)
	assert.Equal(t, 0, moved.Depth)
	assert.Equal(t, uuid.Nil, moved.ParentID)
}

func TestCopyDisambiguatesNames(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	file := createFile(t, store, testOwner, uuid.Nil, "report.pdf", 100, "blob-1")

	first, err := store.Copy(ctx, testOwner, []uuid.UUID{file.ID}, uuid.Nil)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "report (Copy).pdf", first[0].Name)

	second, err := store.Copy(ctx, testOwner, []uuid.UUID{file.ID}, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, "report (Copy 2).pdf", second[0].Name)

	// Copies alias the source content.
	assert.Equal(t, metadata.ContentID("blob-1"), first[0].StorageRef)
}

func TestCopyFolderRecursive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docs := createFolder(t, store, testOwner, uuid.Nil, "docs")
	sub := createFolder(t, store, testOwner, docs.ID, "sub")
	createFile(t, store, testOwner, sub.ID, "f.txt", 1, "b1")
	dst := createFolder(t, store, testOwner, uuid.Nil, "dst")

	copies, err := store.Copy(ctx, testOwner, []uuid.UUID{docs.ID}, dst.ID)
	require.NoError(t, err)
	require.Len(t, copies, 1)
	assert.Equal(t, "/dst/docs", copies[0].Path)

	copied, err := store.GetByPath(ctx, testOwner, "/dst/docs/sub/f.txt")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, copied.ID)

	// The original stays in place.
	_, err = store.GetByPath(ctx, testOwner, "/docs/sub/f.txt")
	require.NoError(t, err)
}

func TestCopySharedBlobSurvivesSourceDeletion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	file := createFile(t, store, testOwner, uuid.Nil, "a.bin", 10, "shared-blob")
	copies, err := store.Copy(ctx, testOwner, []uuid.UUID{file.ID}, uuid.Nil)
	require.NoError(t, err)

	// Deleting the source must not release the blob: the copy still uses it.
	released, err := store.HardDelete(ctx, testOwner, []uuid.UUID{file.ID})
	require.NoError(t, err)
	assert.Empty(t, released)

	released, err = store.HardDelete(ctx, testOwner, []uuid.UUID{copies[0].ID})
	require.NoError(t, err)
	assert.Equal(t, []metadata.ContentID{"shared-blob"}, released)
}

func TestSoftDeleteCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docs := createFolder(t, store, testOwner, uuid.Nil, "docs")
	sub := createFolder(t, store, testOwner, docs.ID, "sub")
	file := createFile(t, store, testOwner, sub.ID, "f.txt", 1, "b1")

	require.NoError(t, store.SoftDelete(ctx, testOwner, []uuid.UUID{docs.ID}))

	for _, id := range []uuid.UUID{docs.ID, sub.ID, file.ID} {
		node, err := store.GetByID(ctx, testOwner, id)
		require.NoError(t, err)
		assert.True(t, node.Deleted)
		require.NotNil(t, node.DeletedAt)
	}

	_, err := store.GetByPath(ctx, testOwner, "/docs/sub/f.txt")
	assert.True(t, metadata.IsCode(err, metadata.ErrNotFound))
}

func TestListTrashTopLevelOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docs := createFolder(t, store, testOwner, uuid.Nil, "docs")
	createFile(t, store, testOwner, docs.ID, "f.txt", 1, "b1")
	loose := createFile(t, store, testOwner, uuid.Nil, "loose.txt", 1, "b2")

	require.NoError(t, store.SoftDelete(ctx, testOwner, []uuid.UUID{docs.ID, loose.ID}))

	trash, err := store.ListTrash(ctx, testOwner)
	require.NoError(t, err)
	require.Len(t, trash, 2)
	assert.Equal(t, "docs", trash[0].Name)
	assert.Equal(t, "loose.txt", trash[1].Name)
}

func TestRestoreSubtree(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docs := createFolder(t, store, testOwner, uuid.Nil, "docs")
	sub := createFolder(t, store, testOwner, docs.ID, "sub")
	file := createFile(t, store, testOwner, sub.ID, "f.txt", 1, "b1")

	require.NoError(t, store.SoftDelete(ctx, testOwner, []uuid.UUID{docs.ID}))

	restored, err := store.Restore(ctx, testOwner, []uuid.UUID{docs.ID})
	require.NoError(t, err)
	require.Len(t, restored, 1)
	assert.Equal(t, "/docs", restored[0].Path)
	assert.False(t, restored[0].Deleted)

	got, err := store.GetByPath(ctx, testOwner, "/docs/sub/f.txt")
	require.NoError(t, err)
	assert.Equal(t, file.ID, got.ID)
	assert.False(t, got.Deleted)

	midway, err := store.GetByID(ctx, testOwner, sub.ID)
	require.NoError(t, err)
	assert.False(t, midway.Deleted)
	assert.Equal(t, "/docs/sub", midway.Path)

	trash, err := store.ListTrash(ctx, testOwner)
	require.NoError(t, err)
	assert.Empty(t, trash)
}

func TestRestoreWithNameConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := createFile(t, store, testOwner, uuid.Nil, "notes.txt", 10, "b1")
	require.NoError(t, store.SoftDelete(ctx, testOwner, []uuid.UUID{old.ID}))
	createFile(t, store, testOwner, uuid.Nil, "notes.txt", 20, "b2")

	restored, err := store.Restore(ctx, testOwner, []uuid.UUID{old.ID})
	require.NoError(t, err)
	require.Len(t, restored, 1)

	name := restored[0].Name
	assert.NotEqual(t, "notes.txt", name)
	assert.Regexp(t, `^notes_\d{8}_\d{6}\.txt$`, name)
}

func TestRestoreReattachesToRoot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docs := createFolder(t, store, testOwner, uuid.Nil, "docs")
	file := createFile(t, store, testOwner, docs.ID, "f.txt", 1, "b1")

	require.NoError(t, store.SoftDelete(ctx, testOwner, []uuid.UUID{file.ID}))
	_, err := store.HardDelete(ctx, testOwner, []uuid.UUID{docs.ID})
	require.NoError(t, err)

	restored, err := store.Restore(ctx, testOwner, []uuid.UUID{file.ID})
	require.NoError(t, err)
	require.Len(t, restored, 1)
	assert.Equal(t, uuid.Nil, restored[0].ParentID)
	assert.Equal(t, "/f.txt", restored[0].Path)
	assert.Equal(t, 0, restored[0].Depth)
}

func TestHardDeleteReleasesBlobs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docs := createFolder(t, store, testOwner, uuid.Nil, "docs")
	createFile(t, store, testOwner, docs.ID, "a.txt", 1, "blob-a")
	createFile(t, store, testOwner, docs.ID, "b.txt", 1, "blob-b")

	released, err := store.HardDelete(ctx, testOwner, []uuid.UUID{docs.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []metadata.ContentID{"blob-a", "blob-b"}, released)

	_, err = store.GetByID(ctx, testOwner, docs.ID)
	assert.True(t, metadata.IsCode(err, metadata.ErrNotFound))
}

func TestEmptyTrash(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docs := createFolder(t, store, testOwner, uuid.Nil, "docs")
	createFile(t, store, testOwner, docs.ID, "a.txt", 1, "blob-a")
	keep := createFile(t, store, testOwner, uuid.Nil, "keep.txt", 1, "blob-k")

	require.NoError(t, store.SoftDelete(ctx, testOwner, []uuid.UUID{docs.ID}))

	released, err := store.EmptyTrash(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, []metadata.ContentID{"blob-a"}, released)

	trash, err := store.ListTrash(ctx, testOwner)
	require.NoError(t, err)
	assert.Empty(t, trash)

	// Live nodes are untouched.
	_, err = store.GetByID(ctx, testOwner, keep.ID)
	require.NoError(t, err)
}

func TestSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docs := createFolder(t, store, testOwner, uuid.Nil, "Reports")
	createFile(t, store, testOwner, docs.ID, "annual-report.pdf", 5000, "b1")
	createFile(t, store, testOwner, docs.ID, "report-draft.docx", 100, "b2")
	createFile(t, store, testOwner, docs.ID, "photo.jpg", 900, "b3")

	results, err := store.Search(ctx, testOwner, metadata.SearchQuery{Query: "REPORT"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	// Folders come first.
	assert.Equal(t, "Reports", results[0].Name)

	results, err = store.Search(ctx, testOwner, metadata.SearchQuery{Query: "report", MinSize: 1000})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "annual-report.pdf", results[0].Name)

	results, err = store.Search(ctx, testOwner, metadata.SearchQuery{
		Query:  "report",
		Bucket: metadata.BucketDocument,
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	_, err = store.Search(ctx, testOwner, metadata.SearchQuery{Query: "   "})
	assert.True(t, metadata.IsCode(err, metadata.ErrInvalidArgument))
}

func TestSearchExcludesTrashed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	file := createFile(t, store, testOwner, uuid.Nil, "findme.txt", 1, "b1")
	require.NoError(t, store.SoftDelete(ctx, testOwner, []uuid.UUID{file.ID}))

	results, err := store.Search(ctx, testOwner, metadata.SearchQuery{Query: "findme"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRecentFiles(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := createFile(t, store, testOwner, uuid.Nil, "a.txt", 1, "b1")
	b := createFile(t, store, testOwner, uuid.Nil, "b.txt", 1, "b2")

	require.NoError(t, store.RecordAccess(ctx, testOwner, a.ID, metadata.AccessView))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, store.RecordAccess(ctx, testOwner, b.ID, metadata.AccessDownload))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, store.RecordAccess(ctx, testOwner, a.ID, metadata.AccessEdit))

	recent, err := store.RecentFiles(ctx, testOwner, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)

	// One entry per distinct file, latest access wins, newest first.
	assert.Equal(t, a.ID, recent[0].Node.ID)
	assert.Equal(t, metadata.AccessEdit, recent[0].AccessType)
	assert.Equal(t, b.ID, recent[1].Node.ID)
}

func TestRecentFilesSkipsTrashed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := createFile(t, store, testOwner, uuid.Nil, "a.txt", 1, "b1")
	require.NoError(t, store.RecordAccess(ctx, testOwner, a.ID, metadata.AccessView))
	require.NoError(t, store.SoftDelete(ctx, testOwner, []uuid.UUID{a.ID}))

	recent, err := store.RecentFiles(ctx, testOwner, 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestRecordAccessRejectsFolders(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docs := createFolder(t, store, testOwner, uuid.Nil, "docs")
	err := store.RecordAccess(ctx, testOwner, docs.ID, metadata.AccessView)
	assert.True(t, metadata.IsCode(err, metadata.ErrInvalidArgument))
}

func TestStorageStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docs := createFolder(t, store, testOwner, uuid.Nil, "docs")
	createFile(t, store, testOwner, docs.ID, "a.pdf", 1000, "b1")
	photo := createFile(t, store, testOwner, docs.ID, "b.jpg", 500, "b2")
	require.NoError(t, store.SoftDelete(ctx, testOwner, []uuid.UUID{photo.ID}))

	// The cache was invalidated by the delete, so stats are fresh.
	stats, err := store.StorageStats(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), stats.TotalBytes)
	assert.Equal(t, int64(1), stats.FileCount)
	assert.Equal(t, int64(1), stats.FolderCount)
	assert.Equal(t, int64(1), stats.TrashedCount)
	assert.Equal(t, int64(1000), stats.BucketBytes[metadata.BucketDocument])
}

func TestUpdateFileContent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	file := createFile(t, store, testOwner, uuid.Nil, "doc.txt", 100, "old-blob")

	updated, released, err := store.UpdateFileContent(ctx, testOwner, file.ID, metadata.FileContent{
		Size:        250,
		MimeType:    "text/plain",
		ContentHash: "deadbeef",
		StorageRef:  "new-blob",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(250), updated.Size)
	assert.Equal(t, metadata.ContentID("new-blob"), updated.StorageRef)
	assert.Equal(t, []metadata.ContentID{"old-blob"}, released)
}

func TestHealthcheck(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.Healthcheck(context.Background()))
}
