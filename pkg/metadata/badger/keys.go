package badger

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/farid-asgarli/ws-cloud/pkg/metadata"
)

// Database Key Namespace Design
// ==============================
//
// BadgerDB is a key-value store, so we use prefixed keys to organize the
// different data types into logical namespaces. This design:
//   - Prevents key collisions between data types
//   - Enables efficient range scans (children of a folder, an owner's paths,
//     an owner's trash, an owner's access log)
//   - Makes the database structure self-documenting
//
// Nodes are identified by UUID v4, stable across renames and moves.
//
// Key Namespace Prefixes:
//
// Data Type             Prefix  Key Format                            Value
// ===========================================================================
// Node Data             "n:"    n:<uuid>                              Node (JSON)
// Path Index            "p:"    p:<owner>:<path>                      uuid (bytes)
// Name Index            "c:"    c:<owner>:<parentUUID>:<name>         uuid (bytes)
// Child Index           "k:"    k:<owner>:<parentUUID>:<childUUID>    uuid (bytes)
// Trash Set             "d:"    d:<owner>:<uuid>                      uuid (bytes)
// Blob Refcounts        "r:"    r:<contentID>                         uint64 (BE)
// Access Log            "a:"    a:<owner>:<invNanos>:<uuid>           AccessEntry (JSON)
//
// Index Semantics:
//
// 1. Path Index (p:) and Name Index (c:) contain only NON-DELETED nodes.
//    This makes them double as the visibility and uniqueness constraints:
//    a name is free exactly when its c: key is absent, and GetByPath only
//    ever sees live nodes. Soft delete removes these entries; restore
//    recreates them.
//
// 2. Child Index (k:) is structural and includes soft-deleted nodes. It is
//    the index used by cascade work lists (move, copy, soft delete, restore,
//    hard delete) which must visit every descendant regardless of delete
//    state.
//
// 3. Trash Set (d:) holds every soft-deleted node of an owner. Trash
//    listings scan it and keep only top-level entries (parent absent or not
//    itself deleted).
//
// 4. Blob Refcounts (r:) track how many file nodes reference a ContentID.
//    Copies increment, hard deletes decrement; a blob is physically released
//    only when its count reaches zero. Keys are not owner-scoped because
//    content is content-addressed and deduplicated across owners.
//
// 5. Access Log (a:) keys embed an inverted nanosecond timestamp
//    (math.MaxInt64 - now) zero-padded to 20 digits, so an ascending prefix
//    scan yields newest-first order without a reverse iterator.

const (
	prefixNode     = "n:"
	prefixPath     = "p:"
	prefixName     = "c:"
	prefixChild    = "k:"
	prefixTrash    = "d:"
	prefixRefCount = "r:"
	prefixAccess   = "a:"
)

// keyNode generates the key for node data: "n:<uuid>".
func keyNode(id uuid.UUID) []byte {
	return []byte(prefixNode + id.String())
}

// ownerKey escapes an owner id for use as a key component. Owner ids are
// opaque caller-supplied strings, so a ":" inside one must not read as a
// component separator and widen another owner's prefix scans. The escaped
// form contains no raw ":", which keeps "<ownerKey>:" prefixes unambiguous.
func ownerKey(owner metadata.OwnerID) string {
	s := string(owner)
	if !strings.ContainsAny(s, ":%") {
		return s
	}
	s = strings.ReplaceAll(s, "%", "%25")
	return strings.ReplaceAll(s, ":", "%3A")
}

// keyPath generates the path index key: "p:<owner>:<path>".
func keyPath(owner metadata.OwnerID, path string) []byte {
	return []byte(prefixPath + ownerKey(owner) + ":" + path)
}

// keyPathPrefix generates the prefix for scanning an owner's live paths.
func keyPathPrefix(owner metadata.OwnerID) []byte {
	return []byte(prefixPath + ownerKey(owner) + ":")
}

// keyName generates the name index key: "c:<owner>:<parentUUID>:<name>".
func keyName(owner metadata.OwnerID, parentID uuid.UUID, name string) []byte {
	return []byte(prefixName + ownerKey(owner) + ":" + parentID.String() + ":" + name)
}

// keyNamePrefix generates the prefix for scanning a folder's live children.
func keyNamePrefix(owner metadata.OwnerID, parentID uuid.UUID) []byte {
	return []byte(prefixName + ownerKey(owner) + ":" + parentID.String() + ":")
}

// keyChild generates the structural child index key:
// "k:<owner>:<parentUUID>:<childUUID>".
func keyChild(owner metadata.OwnerID, parentID, childID uuid.UUID) []byte {
	return []byte(prefixChild + ownerKey(owner) + ":" + parentID.String() + ":" + childID.String())
}

// keyChildPrefix generates the prefix for scanning all children of a folder,
// including soft-deleted ones.
func keyChildPrefix(owner metadata.OwnerID, parentID uuid.UUID) []byte {
	return []byte(prefixChild + ownerKey(owner) + ":" + parentID.String() + ":")
}

// keyTrash generates the trash set key: "d:<owner>:<uuid>".
func keyTrash(owner metadata.OwnerID, id uuid.UUID) []byte {
	return []byte(prefixTrash + ownerKey(owner) + ":" + id.String())
}

// keyTrashPrefix generates the prefix for scanning an owner's trash set.
func keyTrashPrefix(owner metadata.OwnerID) []byte {
	return []byte(prefixTrash + ownerKey(owner) + ":")
}

// keyRefCount generates the blob refcount key: "r:<contentID>".
func keyRefCount(id metadata.ContentID) []byte {
	return []byte(prefixRefCount + string(id))
}

// keyAccess generates an access log key with inverted-timestamp ordering.
func keyAccess(owner metadata.OwnerID, invNanos int64, nodeID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixAccess, ownerKey(owner), invNanos, nodeID))
}

// keyAccessPrefix generates the prefix for scanning an owner's access log,
// newest first.
func keyAccessPrefix(owner metadata.OwnerID) []byte {
	return []byte(prefixAccess + ownerKey(owner) + ":")
}

// invertNanos maps a nanosecond timestamp to its scan-ordering complement.
func invertNanos(nanos int64) int64 {
	return math.MaxInt64 - nanos
}
