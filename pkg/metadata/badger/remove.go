package badger

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/farid-asgarli/ws-cloud/pkg/metadata"
	"github.com/farid-asgarli/ws-cloud/pkg/vpath"
)

// SoftDelete sets the delete flag and timestamp on each node and explicitly
// on every descendant, removing them from the live indexes. The cascade runs
// in a single transaction.
func (s *BadgerMetadataStore) SoftDelete(ctx context.Context, owner metadata.OwnerID, ids []uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		now := time.Now()

		for _, id := range ids {
			node, terr := getNodeTxn(txn, owner, id)
			if terr != nil {
				return terr
			}
			if node.Deleted {
				continue
			}

			targets, terr := collectSubtreeTxn(txn, owner, node.ID)
			if terr != nil {
				return terr
			}
			targets = append(targets, node)

			for _, t := range targets {
				if t.Deleted {
					// Already-trashed descendant keeps its original
					// timestamp and trash entry.
					continue
				}
				if terr := removeLiveIndexesTxn(txn, t); terr != nil {
					return terr
				}

				deletedAt := now
				t.Deleted = true
				t.DeletedAt = &deletedAt
				if terr := putNodeTxn(txn, t); terr != nil {
					return terr
				}
				if terr := txn.Set(keyTrash(owner, t.ID), encodeUUID(t.ID)); terr != nil {
					return fmt.Errorf("failed to add trash entry: %w", terr)
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateStatsCache(owner)
	return nil
}

// Restore clears delete flags on the nodes and their descendants.
//
// When the original parent is gone or itself deleted, the node reattaches to
// the root level. When a non-deleted sibling took the original name while the
// node sat in the trash, the restored node gains a timestamp suffix before
// the extension ("report.pdf" becomes "report_20260831_154500.pdf").
func (s *BadgerMetadataStore) Restore(ctx context.Context, owner metadata.OwnerID, ids []uuid.UUID) ([]*metadata.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var restored []*metadata.Node
	err := s.db.Update(func(txn *badger.Txn) error {
		restored = nil

		for _, id := range ids {
			node, terr := getNodeTxn(txn, owner, id)
			if terr != nil {
				return terr
			}
			if !node.Deleted {
				restored = append(restored, node)
				continue
			}

			// Pick the reattachment point: the original parent when it is
			// still alive, otherwise the root level.
			parentID := node.ParentID
			parentPath := vpath.Root
			parentDepth := -1
			if parentID != uuid.Nil {
				parent, perr := getNodeTxn(txn, owner, parentID)
				switch {
				case perr != nil && metadata.IsCode(perr, metadata.ErrNotFound):
					parentID = uuid.Nil
				case perr != nil:
					return perr
				case parent.Deleted || !parent.IsFolder():
					parentID = uuid.Nil
				default:
					parentPath = parent.Path
					parentDepth = parent.Depth
				}
			}

			name, terr := resolveRestoreNameTxn(txn, owner, parentID, node.Name, node.IsFolder())
			if terr != nil {
				return terr
			}

			oldPath := node.Path
			oldDepth := node.Depth
			if parentID != node.ParentID {
				if terr := removeChildIndexTxn(txn, owner, node.ParentID, node.ID); terr != nil {
					return terr
				}
			}

			node.ParentID = parentID
			node.Name = name
			node.Path = vpath.Join(parentPath, name)
			node.Depth = parentDepth + 1
			node.Deleted = false
			node.DeletedAt = nil
			node.ModifiedAt = time.Now()
			if terr := checkCanonicalLen(node.Path); terr != nil {
				return terr
			}

			if terr := putNodeTxn(txn, node); terr != nil {
				return terr
			}
			if terr := addChildIndexTxn(txn, node); terr != nil {
				return terr
			}
			if terr := addLiveIndexesTxn(txn, node); terr != nil {
				return terr
			}
			if terr := txn.Delete(keyTrash(owner, node.ID)); terr != nil {
				return fmt.Errorf("failed to remove trash entry: %w", terr)
			}

			if terr := restoreSubtreeTxn(txn, owner, node.ID, oldPath, node.Path, node.Depth-oldDepth); terr != nil {
				return terr
			}

			restored = append(restored, node)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateStatsCache(owner)
	return restored, nil
}

// restoreSubtreeTxn clears delete flags on every descendant of a restored
// root, rewriting paths and depths and rebuilding the live indexes.
//
// Every descendant of a trashed root is itself trashed (delete cascades and
// restore detaches), so sibling names inside the subtree cannot conflict.
func restoreSubtreeTxn(txn *badger.Txn, owner metadata.OwnerID, rootID uuid.UUID, oldPrefix, newPrefix string, depthDelta int) error {
	descendants, err := collectSubtreeTxn(txn, owner, rootID)
	if err != nil {
		return err
	}

	for _, d := range descendants {
		oldPath := d.Path
		if !strings.HasPrefix(oldPath, oldPrefix+"/") {
			return fmt.Errorf("descendant %s path %q does not extend %q", d.ID, oldPath, oldPrefix)
		}

		d.Path = newPrefix + strings.TrimPrefix(oldPath, oldPrefix)
		d.Depth += depthDelta
		d.Deleted = false
		d.DeletedAt = nil
		if err := checkCanonicalLen(d.Path); err != nil {
			return err
		}

		if err := putNodeTxn(txn, d); err != nil {
			return err
		}
		if err := addLiveIndexesTxn(txn, d); err != nil {
			return err
		}
		if err := txn.Delete(keyTrash(owner, d.ID)); err != nil {
			return fmt.Errorf("failed to remove trash entry: %w", err)
		}
	}
	return nil
}

// resolveRestoreNameTxn keeps the original name when free, otherwise appends
// a timestamp suffix before the extension, extending with a counter in the
// degenerate case of a second conflict within the same second.
func resolveRestoreNameTxn(txn *badger.Txn, owner metadata.OwnerID, parentID uuid.UUID, name string, isFolder bool) (string, error) {
	taken, _, err := nameTakenTxn(txn, owner, parentID, name)
	if err != nil {
		return "", err
	}
	if !taken {
		return name, nil
	}

	stem, ext := name, ""
	if !isFolder {
		ext = path.Ext(name)
		stem = strings.TrimSuffix(name, ext)
	}
	stamp := time.Now().Format("20060102_150405")

	for n := 0; ; n++ {
		candidate := fmt.Sprintf("%s_%s%s", stem, stamp, ext)
		if n > 0 {
			candidate = fmt.Sprintf("%s_%s_%d%s", stem, stamp, n, ext)
		}
		if err := vpath.ValidateName(candidate); err != nil {
			return "", err
		}

		taken, _, err := nameTakenTxn(txn, owner, parentID, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
}

// HardDelete permanently removes the nodes and their descendants, returning
// the ContentIDs whose reference count reached zero.
func (s *BadgerMetadataStore) HardDelete(ctx context.Context, owner metadata.OwnerID, ids []uuid.UUID) ([]metadata.ContentID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var released []metadata.ContentID
	err := s.db.Update(func(txn *badger.Txn) error {
		released = nil

		for _, id := range ids {
			node, terr := getNodeTxn(txn, owner, id)
			if terr != nil {
				return terr
			}

			targets, terr := collectSubtreeTxn(txn, owner, node.ID)
			if terr != nil {
				return terr
			}
			targets = append(targets, node)

			for _, t := range targets {
				freed, terr := purgeNodeTxn(txn, t)
				if terr != nil {
					return terr
				}
				released = append(released, freed...)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateStatsCache(owner)
	return released, nil
}

// purgeNodeTxn erases one node record with all its index entries and drops
// its blob reference, returning any released ContentID.
func purgeNodeTxn(txn *badger.Txn, node *metadata.Node) ([]metadata.ContentID, error) {
	if node.Deleted {
		if err := txn.Delete(keyTrash(node.OwnerID, node.ID)); err != nil {
			return nil, fmt.Errorf("failed to remove trash entry: %w", err)
		}
	} else {
		if err := removeLiveIndexesTxn(txn, node); err != nil {
			return nil, err
		}
	}

	if err := removeChildIndexTxn(txn, node.OwnerID, node.ParentID, node.ID); err != nil {
		return nil, err
	}
	if err := txn.Delete(keyNode(node.ID)); err != nil {
		return nil, fmt.Errorf("failed to delete node %s: %w", node.ID, err)
	}

	if node.IsFolder() || node.StorageRef == "" {
		return nil, nil
	}
	wasReleased, err := decrementRefTxn(txn, node.StorageRef)
	if err != nil {
		return nil, err
	}
	if wasReleased {
		return []metadata.ContentID{node.StorageRef}, nil
	}
	return nil, nil
}

// ListTrash returns the top-level soft-deleted nodes: those whose own delete
// flag is set and whose parent is absent or not itself deleted.
func (s *BadgerMetadataStore) ListTrash(ctx context.Context, owner metadata.OwnerID) ([]*metadata.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var trash []*metadata.Node
	err := s.db.View(func(txn *badger.Txn) error {
		nodes, terr := trashedNodesTxn(txn, owner)
		if terr != nil {
			return terr
		}

		for _, node := range nodes {
			topLevel := true
			if node.ParentID != uuid.Nil {
				parent, perr := getNodeTxn(txn, owner, node.ParentID)
				switch {
				case perr != nil && metadata.IsCode(perr, metadata.ErrNotFound):
					// Parent gone, the node stands on its own in the trash.
				case perr != nil:
					return perr
				case parent.Deleted:
					topLevel = false
				}
			}
			if topLevel {
				trash = append(trash, node)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortNodes(trash)
	return trash, nil
}

// trashedNodesTxn loads every soft-deleted node of an owner.
func trashedNodesTxn(txn *badger.Txn, owner metadata.OwnerID) ([]*metadata.Node, error) {
	prefix := keyTrashPrefix(owner)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var nodes []*metadata.Node
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var id uuid.UUID
		if err := it.Item().Value(func(val []byte) error {
			var derr error
			id, derr = decodeUUID(val)
			return derr
		}); err != nil {
			return nil, err
		}

		node, err := getNodeTxn(txn, owner, id)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// EmptyTrash hard-deletes every soft-deleted node of the owner and returns
// the released ContentIDs.
//
// Every trashed descendant carries its own trash entry, so a flat scan over
// the trash set covers entire subtrees without tree walking.
func (s *BadgerMetadataStore) EmptyTrash(ctx context.Context, owner metadata.OwnerID) ([]metadata.ContentID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var released []metadata.ContentID
	err := s.db.Update(func(txn *badger.Txn) error {
		released = nil

		nodes, terr := trashedNodesTxn(txn, owner)
		if terr != nil {
			return terr
		}
		for _, node := range nodes {
			freed, terr := purgeNodeTxn(txn, node)
			if terr != nil {
				return terr
			}
			released = append(released, freed...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateStatsCache(owner)
	return released, nil
}
