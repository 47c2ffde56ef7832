package badger

import (
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/farid-asgarli/ws-cloud/pkg/metadata"
)

// Transaction-level helpers shared by every operation. All of these run
// inside an open badger.Txn; the public methods own transaction boundaries.

// errNodeNotFound builds the canonical not-found error for a node id.
func errNodeNotFound(id uuid.UUID) *metadata.StoreError {
	return &metadata.StoreError{
		Code:    metadata.ErrNotFound,
		Message: fmt.Sprintf("node %s not found", id),
	}
}

// errPathNotFound builds the canonical not-found error for a path.
func errPathNotFound(path string) *metadata.StoreError {
	return &metadata.StoreError{
		Code:    metadata.ErrNotFound,
		Message: "path not found",
		Path:    path,
	}
}

// getNodeTxn loads a node by id and verifies ownership. Foreign nodes report
// NotFound so owners cannot probe for each other's ids.
func getNodeTxn(txn *badger.Txn, owner metadata.OwnerID, id uuid.UUID) (*metadata.Node, error) {
	item, err := txn.Get(keyNode(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errNodeNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node %s: %w", id, err)
	}

	var node *metadata.Node
	if err := item.Value(func(val []byte) error {
		node, err = decodeNode(val)
		return err
	}); err != nil {
		return nil, err
	}

	if node.OwnerID != owner {
		return nil, errNodeNotFound(id)
	}

	return node, nil
}

// putNodeTxn writes a node record.
func putNodeTxn(txn *badger.Txn, node *metadata.Node) error {
	data, err := encodeNode(node)
	if err != nil {
		return err
	}
	if err := txn.Set(keyNode(node.ID), data); err != nil {
		return fmt.Errorf("failed to store node %s: %w", node.ID, err)
	}
	return nil
}

// lookupPathTxn resolves a canonical path to a node id through the path
// index. Only non-deleted nodes are indexed.
func lookupPathTxn(txn *badger.Txn, owner metadata.OwnerID, path string) (uuid.UUID, error) {
	item, err := txn.Get(keyPath(owner, path))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return uuid.Nil, errPathNotFound(path)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to look up path: %w", err)
	}

	var id uuid.UUID
	if err := item.Value(func(val []byte) error {
		id, err = decodeUUID(val)
		return err
	}); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// nameTakenTxn reports whether a non-deleted child with the given name exists
// under the parent, returning its id when present.
func nameTakenTxn(txn *badger.Txn, owner metadata.OwnerID, parentID uuid.UUID, name string) (bool, uuid.UUID, error) {
	item, err := txn.Get(keyName(owner, parentID, name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, uuid.Nil, nil
	}
	if err != nil {
		return false, uuid.Nil, fmt.Errorf("failed to check name index: %w", err)
	}

	var id uuid.UUID
	if err := item.Value(func(val []byte) error {
		id, err = decodeUUID(val)
		return err
	}); err != nil {
		return false, uuid.Nil, err
	}
	return true, id, nil
}

// addLiveIndexesTxn registers a non-deleted node in the path and name
// indexes.
func addLiveIndexesTxn(txn *badger.Txn, node *metadata.Node) error {
	idBytes := encodeUUID(node.ID)
	if err := txn.Set(keyPath(node.OwnerID, node.Path), idBytes); err != nil {
		return fmt.Errorf("failed to index path: %w", err)
	}
	if err := txn.Set(keyName(node.OwnerID, node.ParentID, node.Name), idBytes); err != nil {
		return fmt.Errorf("failed to index name: %w", err)
	}
	return nil
}

// removeLiveIndexesTxn removes a node from the path and name indexes, using
// the node's current Path/ParentID/Name values.
func removeLiveIndexesTxn(txn *badger.Txn, node *metadata.Node) error {
	if err := txn.Delete(keyPath(node.OwnerID, node.Path)); err != nil {
		return fmt.Errorf("failed to unindex path: %w", err)
	}
	if err := txn.Delete(keyName(node.OwnerID, node.ParentID, node.Name)); err != nil {
		return fmt.Errorf("failed to unindex name: %w", err)
	}
	return nil
}

// addChildIndexTxn registers a node in its parent's structural child index.
func addChildIndexTxn(txn *badger.Txn, node *metadata.Node) error {
	if err := txn.Set(keyChild(node.OwnerID, node.ParentID, node.ID), encodeUUID(node.ID)); err != nil {
		return fmt.Errorf("failed to index child: %w", err)
	}
	return nil
}

// removeChildIndexTxn removes a node from a parent's structural child index.
func removeChildIndexTxn(txn *badger.Txn, owner metadata.OwnerID, parentID, childID uuid.UUID) error {
	if err := txn.Delete(keyChild(owner, parentID, childID)); err != nil {
		return fmt.Errorf("failed to unindex child: %w", err)
	}
	return nil
}

// childIDsTxn lists the ids of all children of a folder, including
// soft-deleted ones, via the structural child index.
func childIDsTxn(txn *badger.Txn, owner metadata.OwnerID, parentID uuid.UUID) ([]uuid.UUID, error) {
	prefix := keyChildPrefix(owner, parentID)

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = true
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []uuid.UUID
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var id uuid.UUID
		err := it.Item().Value(func(val []byte) error {
			var derr error
			id, derr = decodeUUID(val)
			return derr
		})
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// collectSubtreeTxn returns every descendant of a node (NOT including the
// node itself), parents before children, including soft-deleted descendants.
//
// The traversal is an explicit work list rather than recursion, so arbitrarily
// deep trees cannot exhaust the stack.
func collectSubtreeTxn(txn *badger.Txn, owner metadata.OwnerID, rootID uuid.UUID) ([]*metadata.Node, error) {
	var result []*metadata.Node

	queue := []uuid.UUID{rootID}
	for len(queue) > 0 {
		parentID := queue[0]
		queue = queue[1:]

		childIDs, err := childIDsTxn(txn, owner, parentID)
		if err != nil {
			return nil, err
		}
		for _, childID := range childIDs {
			child, err := getNodeTxn(txn, owner, childID)
			if err != nil {
				return nil, err
			}
			result = append(result, child)
			if child.IsFolder() {
				queue = append(queue, child.ID)
			}
		}
	}

	return result, nil
}

// incrementRefTxn adds one reference to a blob.
func incrementRefTxn(txn *badger.Txn, id metadata.ContentID) error {
	if id == "" {
		return nil
	}

	var count uint64
	item, err := txn.Get(keyRefCount(id))
	if err == nil {
		if verr := item.Value(func(val []byte) error {
			var derr error
			count, derr = decodeUint64(val)
			return derr
		}); verr != nil {
			return verr
		}
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("failed to get refcount for %s: %w", id, err)
	}

	if err := txn.Set(keyRefCount(id), encodeUint64(count+1)); err != nil {
		return fmt.Errorf("failed to set refcount for %s: %w", id, err)
	}
	return nil
}

// decrementRefTxn drops one reference to a blob. It reports released=true
// when the count reached zero, in which case the refcount key is removed and
// the caller should schedule physical deletion.
func decrementRefTxn(txn *badger.Txn, id metadata.ContentID) (released bool, err error) {
	if id == "" {
		return false, nil
	}

	item, err := txn.Get(keyRefCount(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		// Untracked blob: treat as released so orphans still get cleaned.
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get refcount for %s: %w", id, err)
	}

	var count uint64
	if verr := item.Value(func(val []byte) error {
		var derr error
		count, derr = decodeUint64(val)
		return derr
	}); verr != nil {
		return false, verr
	}

	if count <= 1 {
		if err := txn.Delete(keyRefCount(id)); err != nil {
			return false, fmt.Errorf("failed to delete refcount for %s: %w", id, err)
		}
		return true, nil
	}

	if err := txn.Set(keyRefCount(id), encodeUint64(count-1)); err != nil {
		return false, fmt.Errorf("failed to set refcount for %s: %w", id, err)
	}
	return false, nil
}
