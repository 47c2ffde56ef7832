// Package metadata defines the owner-scoped virtual filesystem model for
// WS Cloud: node records, the metadata store contract, and the error
// taxonomy shared by every component.
//
// Separation of Concerns:
//
// The metadata store manages tree structure and node attributes (names,
// paths, depths, delete flags, access history) but does NOT manage file
// content. Content lives in a content store and is referenced from nodes by
// an opaque ContentID. This separation allows content deduplication
// (multiple nodes referencing the same ContentID after a copy) and flexible
// content backends (local disk, S3).
package metadata

import (
	"time"

	"github.com/google/uuid"
)

// OwnerID identifies the authenticated owner of a subtree. Every store
// operation is scoped to exactly one owner; the value comes from the
// authentication layer, never from a request payload.
type OwnerID string

// ContentID is an opaque locator into the content store.
//
// Committed content is addressed by its SHA-256 hex digest, which makes
// copies free (both nodes alias the same ContentID) and lets the store
// reference-count blobs. Staging content uses session-scoped temporary ids.
type ContentID string

// NodeType distinguishes files from folders.
type NodeType int

const (
	NodeTypeFile NodeType = iota
	NodeTypeFolder
)

// String returns the lowercase name of the node type.
func (t NodeType) String() string {
	switch t {
	case NodeTypeFile:
		return "file"
	case NodeTypeFolder:
		return "folder"
	default:
		return "unknown"
	}
}

// Node is a file or folder in an owner's virtual tree.
//
// Invariants maintained by the store:
//   - Path is always Parent.Path + "/" + Name, normalized with a single
//     leading slash and no trailing slash.
//   - Depth is 0 for root-level nodes, else parent depth + 1.
//   - Among non-deleted children of the same parent, Name is unique.
//   - Path is unique per owner among non-deleted nodes.
//   - Delete flags cascade explicitly to every descendant.
type Node struct {
	// ID is the opaque unique identity of the node
	ID uuid.UUID `json:"id"`

	// OwnerID scopes the node to its owner's tree
	OwnerID OwnerID `json:"owner_id"`

	// ParentID is the containing folder; uuid.Nil means root-level
	ParentID uuid.UUID `json:"parent_id"`

	// Name is the entry name within the parent (max 255 chars)
	Name string `json:"name"`

	// Path is the canonical virtual path (max 2048 chars)
	Path string `json:"path"`

	// Type is file or folder
	Type NodeType `json:"type"`

	// Depth is the distance from the root (0 = root-level)
	Depth int `json:"depth"`

	// Size is the content size in bytes (always 0 for folders)
	Size int64 `json:"size"`

	// MimeType is the declared MIME type (files only, may be empty)
	MimeType string `json:"mime_type,omitempty"`

	// ContentHash is the SHA-256 hex digest of the content (files only)
	ContentHash string `json:"content_hash,omitempty"`

	// StorageRef locates the content in the content store (files only)
	StorageRef ContentID `json:"storage_ref,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`

	// Deleted marks the node as soft-deleted (trashed)
	Deleted bool `json:"deleted"`

	// DeletedAt records when the delete flag was set
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// IsFolder reports whether the node is a folder.
func (n *Node) IsFolder() bool {
	return n.Type == NodeTypeFolder
}

// FileContent carries the content attributes applied to a file node when an
// upload commits, either creating a new node or overwriting an existing one.
type FileContent struct {
	Size        int64
	MimeType    string
	ContentHash string
	StorageRef  ContentID
}

// AccessType categorizes entries in the access log.
type AccessType string

const (
	AccessView     AccessType = "view"
	AccessDownload AccessType = "download"
	AccessEdit     AccessType = "edit"
)

// AccessEntry is one access-log record.
type AccessEntry struct {
	NodeID     uuid.UUID  `json:"node_id"`
	AccessType AccessType `json:"access_type"`
	AccessedAt time.Time  `json:"accessed_at"`
}

// RecentFile pairs a file node with its most recent access.
type RecentFile struct {
	Node       *Node
	AccessType AccessType
	AccessedAt time.Time
}

// SearchQuery narrows a name search.
//
// Query is matched case-insensitively as a substring of the node name.
// Zero-valued filters are ignored.
type SearchQuery struct {
	// Query is the name substring to match (required)
	Query string

	// Bucket narrows results to a semantic type bucket
	Bucket TypeBucket

	// ModifiedAfter / ModifiedBefore bound the modified-at timestamp
	ModifiedAfter  time.Time
	ModifiedBefore time.Time

	// MinSize / MaxSize bound the size in bytes (MaxSize 0 = unbounded)
	MinSize int64
	MaxSize int64
}

// SearchResultLimit caps the number of nodes returned by Search.
const SearchResultLimit = 100

// StorageStats summarizes an owner's usage.
type StorageStats struct {
	// TotalBytes is the sum of the sizes of all non-deleted files
	TotalBytes int64 `json:"total_bytes"`

	// FileCount and FolderCount count non-deleted nodes
	FileCount   int64 `json:"file_count"`
	FolderCount int64 `json:"folder_count"`

	// TrashedCount counts soft-deleted nodes (files and folders)
	TrashedCount int64 `json:"trashed_count"`

	// BucketBytes breaks TotalBytes down by semantic type bucket
	BucketBytes map[TypeBucket]int64 `json:"bucket_bytes"`
}
