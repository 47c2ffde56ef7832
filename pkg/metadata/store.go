package metadata

import (
	"context"

	"github.com/google/uuid"
)

// MetadataStore provides owner-scoped metadata management for virtual trees.
//
// Every operation is implicitly scoped to the calling owner: no operation can
// observe or mutate another owner's nodes, and looking up a foreign node id
// reports ErrNotFound rather than leaking its existence.
//
// Multi-step cascades (move, copy, soft delete, restore, hard delete) execute
// within a single store transaction per top-level call, so a crash mid-cascade
// never leaves siblings with duplicate names or orphaned paths. Cascades over
// deep subtrees are implemented with explicit work lists, not call recursion.
//
// Content Coordination:
//
// The store tracks which ContentIDs are referenced and by how many nodes.
// HardDelete and EmptyTrash return the ContentIDs whose reference count
// reached zero; the caller coordinates physical deletion with the content
// store. The store never touches blob bytes itself.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
type MetadataStore interface {
	// GetByID retrieves a node by id. Returns ErrNotFound for unknown ids
	// and for nodes belonging to a different owner.
	GetByID(ctx context.Context, owner OwnerID, id uuid.UUID) (*Node, error)

	// GetByPath retrieves a non-deleted node by its canonical path.
	GetByPath(ctx context.Context, owner OwnerID, path string) (*Node, error)

	// GetChildren returns the non-deleted children of a folder, folders
	// first, then alphabetical by name. parentID uuid.Nil lists the root
	// level. Soft-deleted nodes are never returned.
	GetChildren(ctx context.Context, owner OwnerID, parentID uuid.UUID) ([]*Node, error)

	// Create inserts a new node. The store fills ID (when Nil), Path, and
	// Depth from the parent chain. Fails with ErrAlreadyExists when a
	// non-deleted sibling with the same name exists, ErrNotADirectory when
	// the parent is a file, and ErrNotFound when the parent is missing.
	Create(ctx context.Context, owner OwnerID, node *Node) (*Node, error)

	// EnsurePathExists idempotently creates every missing folder along the
	// path, reusing existing folders. Fails with ErrNotADirectory when an
	// existing segment is a file. Returns the deepest folder, or nil for the
	// root path (the root is not a node).
	EnsurePathExists(ctx context.Context, owner OwnerID, path string) (*Node, error)

	// UpdateFileContent overwrites a file node's content attributes after an
	// upload commits over an existing file. Adjusts blob reference counts
	// and returns any ContentID released by the overwrite.
	UpdateFileContent(ctx context.Context, owner OwnerID, id uuid.UUID, fc FileContent) (*Node, []ContentID, error)

	// Rename changes a node's name in place, rewriting descendant paths.
	// Fails with ErrAlreadyExists when the new name is taken by a
	// non-deleted sibling.
	Rename(ctx context.Context, owner OwnerID, id uuid.UUID, newName string) (*Node, error)

	// Move relocates nodes under a destination folder (uuid.Nil = root
	// level), rewriting every descendant's path and depth by prefix
	// substitution. Fails with ErrCycleDetected when the destination is a
	// node itself or one of its descendants, and ErrAlreadyExists on a name
	// conflict at the destination.
	Move(ctx context.Context, owner OwnerID, ids []uuid.UUID, destFolderID uuid.UUID) error

	// Copy duplicates nodes (recursively for folders) under a destination
	// folder. Name conflicts are disambiguated with the sequence
	// "Name", "Name (Copy)", "Name (Copy 2)", ... applied before the
	// extension for files. File copies alias the source ContentID and
	// increment its reference count. Returns the new top-level nodes.
	Copy(ctx context.Context, owner OwnerID, ids []uuid.UUID, destFolderID uuid.UUID) ([]*Node, error)

	// SoftDelete sets the delete flag and timestamp on each node and
	// explicitly on every descendant.
	SoftDelete(ctx context.Context, owner OwnerID, ids []uuid.UUID) error

	// Restore clears delete flags on the nodes and their descendants. When
	// the original parent is gone or deleted, the node reattaches to the
	// root level; when a non-deleted sibling occupies the original name, the
	// restored node gains a timestamp suffix before the extension. Returns
	// the restored top-level nodes at their final paths.
	Restore(ctx context.Context, owner OwnerID, ids []uuid.UUID) ([]*Node, error)

	// HardDelete permanently removes the nodes and their descendants,
	// returning the ContentIDs whose reference count reached zero.
	HardDelete(ctx context.Context, owner OwnerID, ids []uuid.UUID) ([]ContentID, error)

	// ListTrash returns the top-level soft-deleted nodes: nodes whose own
	// delete flag is set and whose parent is absent or not itself deleted.
	ListTrash(ctx context.Context, owner OwnerID) ([]*Node, error)

	// EmptyTrash hard-deletes everything in the trash and returns the
	// released ContentIDs.
	EmptyTrash(ctx context.Context, owner OwnerID) ([]ContentID, error)

	// Search matches non-deleted nodes by case-insensitive name substring,
	// optionally narrowed by the query's filters. Returns at most
	// SearchResultLimit nodes, folders first, then most recently modified.
	Search(ctx context.Context, owner OwnerID, query SearchQuery) ([]*Node, error)

	// RecordAccess appends an access-log entry for a file node.
	RecordAccess(ctx context.Context, owner OwnerID, nodeID uuid.UUID, accessType AccessType) error

	// RecentFiles returns the most recent access per distinct file, newest
	// first. The limit is clamped to [1, 200].
	RecentFiles(ctx context.Context, owner OwnerID, limit int) ([]RecentFile, error)

	// StorageStats summarizes the owner's usage.
	StorageStats(ctx context.Context, owner OwnerID) (*StorageStats, error)

	// Healthcheck verifies the store is operational.
	Healthcheck(ctx context.Context) error

	// Close releases underlying resources.
	Close() error
}

// ReferenceEnumerator is implemented by stores that can enumerate every
// referenced ContentID, across all owners. The orphan collector uses it to
// distinguish live blobs from garbage.
type ReferenceEnumerator interface {
	ReferencedContentIDs(ctx context.Context) ([]ContentID, error)
}
