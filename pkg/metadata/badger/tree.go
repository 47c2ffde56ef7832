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

// Rename changes a node's name in place and rewrites every descendant path
// by prefix substitution, all in one transaction.
func (s *BadgerMetadataStore) Rename(ctx context.Context, owner metadata.OwnerID, id uuid.UUID, newName string) (*metadata.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := vpath.ValidateName(newName); err != nil {
		return nil, err
	}

	var node *metadata.Node
	err := s.db.Update(func(txn *badger.Txn) error {
		var terr error
		node, terr = getNodeTxn(txn, owner, id)
		if terr != nil {
			return terr
		}
		if node.Deleted {
			return errNodeNotFound(id)
		}
		if node.Name == newName {
			return nil
		}

		taken, _, terr := nameTakenTxn(txn, owner, node.ParentID, newName)
		if terr != nil {
			return terr
		}
		if taken {
			return &metadata.StoreError{
				Code:    metadata.ErrAlreadyExists,
				Message: "a sibling with this name already exists",
				Path:    vpath.Join(vpath.Parent(node.Path), newName),
			}
		}

		if terr := removeLiveIndexesTxn(txn, node); terr != nil {
			return terr
		}

		oldPath := node.Path
		node.Name = newName
		node.Path = vpath.Join(vpath.Parent(oldPath), newName)
		node.ModifiedAt = time.Now()
		if terr := checkCanonicalLen(node.Path); terr != nil {
			return terr
		}

		if terr := putNodeTxn(txn, node); terr != nil {
			return terr
		}
		if terr := addLiveIndexesTxn(txn, node); terr != nil {
			return terr
		}

		return rewriteSubtreePathsTxn(txn, owner, node.ID, oldPath, node.Path, 0)
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// Move relocates nodes under a destination folder, rewriting every
// descendant's path and depth. The whole batch commits atomically.
func (s *BadgerMetadataStore) Move(ctx context.Context, owner metadata.OwnerID, ids []uuid.UUID, destFolderID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		destPath, destDepth, terr := resolveParentTxn(txn, owner, destFolderID)
		if terr != nil {
			return terr
		}

		for _, id := range ids {
			node, terr := getNodeTxn(txn, owner, id)
			if terr != nil {
				return terr
			}
			if node.Deleted {
				return errNodeNotFound(id)
			}
			if node.ParentID == destFolderID {
				continue
			}

			// A folder can never move into itself or its own subtree.
			if node.IsFolder() {
				if destFolderID == node.ID || destPath == node.Path || strings.HasPrefix(destPath, node.Path+"/") {
					return &metadata.StoreError{
						Code:    metadata.ErrCycleDetected,
						Message: "cannot move a folder into its own subtree",
						Path:    node.Path,
					}
				}
			}

			taken, _, terr := nameTakenTxn(txn, owner, destFolderID, node.Name)
			if terr != nil {
				return terr
			}
			if taken {
				return &metadata.StoreError{
					Code:    metadata.ErrAlreadyExists,
					Message: "a node with this name already exists at the destination",
					Path:    vpath.Join(destPath, node.Name),
				}
			}

			if terr := removeLiveIndexesTxn(txn, node); terr != nil {
				return terr
			}
			if terr := removeChildIndexTxn(txn, owner, node.ParentID, node.ID); terr != nil {
				return terr
			}

			oldPath := node.Path
			oldDepth := node.Depth
			node.ParentID = destFolderID
			node.Path = vpath.Join(destPath, node.Name)
			node.Depth = destDepth + 1
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

			if terr := rewriteSubtreePathsTxn(txn, owner, node.ID, oldPath, node.Path, node.Depth-oldDepth); terr != nil {
				return terr
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

// rewriteSubtreePathsTxn rewrites the Path and Depth of every descendant of
// rootID by substituting oldPrefix with newPrefix. Soft-deleted descendants
// keep no live index entries, so only their node records change.
func rewriteSubtreePathsTxn(txn *badger.Txn, owner metadata.OwnerID, rootID uuid.UUID, oldPrefix, newPrefix string, depthDelta int) error {
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
		if err := checkCanonicalLen(d.Path); err != nil {
			return err
		}

		if err := putNodeTxn(txn, d); err != nil {
			return err
		}
		if !d.Deleted {
			if err := txn.Delete(keyPath(owner, oldPath)); err != nil {
				return fmt.Errorf("failed to unindex path: %w", err)
			}
			if err := txn.Set(keyPath(owner, d.Path), encodeUUID(d.ID)); err != nil {
				return fmt.Errorf("failed to index path: %w", err)
			}
		}
	}
	return nil
}

// checkCanonicalLen guards rebuilt paths against the canonical length limit.
func checkCanonicalLen(canonical string) error {
	if len(canonical) > vpath.MaxCanonicalLen {
		return &metadata.StoreError{
			Code:    metadata.ErrPathTooLong,
			Message: "canonical path exceeds maximum length",
			Path:    canonical[:64] + "...",
		}
	}
	return nil
}

// Copy duplicates nodes (recursively for folders) under a destination folder.
//
// The source subtree is snapshotted before any copy is written, so copying a
// folder into itself terminates and reproduces the pre-copy state. File
// copies alias the source ContentID and increment its reference count;
// soft-deleted descendants are not carried into the copy.
func (s *BadgerMetadataStore) Copy(ctx context.Context, owner metadata.OwnerID, ids []uuid.UUID, destFolderID uuid.UUID) ([]*metadata.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var roots []*metadata.Node
	err := s.db.Update(func(txn *badger.Txn) error {
		roots = nil

		destPath, destDepth, terr := resolveParentTxn(txn, owner, destFolderID)
		if terr != nil {
			return terr
		}

		for _, id := range ids {
			source, terr := getNodeTxn(txn, owner, id)
			if terr != nil {
				return terr
			}
			if source.Deleted {
				return errNodeNotFound(id)
			}

			// Snapshot before writing so the iteration never observes the
			// copies it is creating.
			var descendants []*metadata.Node
			if source.IsFolder() {
				descendants, terr = collectSubtreeTxn(txn, owner, source.ID)
				if terr != nil {
					return terr
				}
			}

			name, terr := resolveCopyNameTxn(txn, owner, destFolderID, source.Name, source.IsFolder())
			if terr != nil {
				return terr
			}

			now := time.Now()
			rootCopy := &metadata.Node{
				ID:          uuid.New(),
				OwnerID:     owner,
				ParentID:    destFolderID,
				Name:        name,
				Path:        vpath.Join(destPath, name),
				Type:        source.Type,
				Depth:       destDepth + 1,
				Size:        source.Size,
				MimeType:    source.MimeType,
				ContentHash: source.ContentHash,
				StorageRef:  source.StorageRef,
				CreatedAt:   now,
				ModifiedAt:  now,
			}
			if terr := writeCopyTxn(txn, rootCopy); terr != nil {
				return terr
			}

			// Old id to new id and path, parents always processed first.
			newID := map[uuid.UUID]uuid.UUID{source.ID: rootCopy.ID}
			newPath := map[uuid.UUID]string{source.ID: rootCopy.Path}
			newDepth := map[uuid.UUID]int{source.ID: rootCopy.Depth}

			for _, d := range descendants {
				if d.Deleted {
					continue
				}
				parentCopyID, ok := newID[d.ParentID]
				if !ok {
					// Parent was soft-deleted and skipped; skip the branch.
					continue
				}

				copyNode := &metadata.Node{
					ID:          uuid.New(),
					OwnerID:     owner,
					ParentID:    parentCopyID,
					Name:        d.Name,
					Path:        vpath.Join(newPath[d.ParentID], d.Name),
					Type:        d.Type,
					Depth:       newDepth[d.ParentID] + 1,
					Size:        d.Size,
					MimeType:    d.MimeType,
					ContentHash: d.ContentHash,
					StorageRef:  d.StorageRef,
					CreatedAt:   now,
					ModifiedAt:  now,
				}
				if terr := writeCopyTxn(txn, copyNode); terr != nil {
					return terr
				}

				newID[d.ID] = copyNode.ID
				newPath[d.ID] = copyNode.Path
				newDepth[d.ID] = copyNode.Depth
			}

			roots = append(roots, rootCopy)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateStatsCache(owner)
	return roots, nil
}

// writeCopyTxn persists one copied node with its indexes and blob reference.
func writeCopyTxn(txn *badger.Txn, node *metadata.Node) error {
	if err := checkCanonicalLen(node.Path); err != nil {
		return err
	}
	if err := putNodeTxn(txn, node); err != nil {
		return err
	}
	if err := addChildIndexTxn(txn, node); err != nil {
		return err
	}
	if err := addLiveIndexesTxn(txn, node); err != nil {
		return err
	}
	if !node.IsFolder() {
		if err := incrementRefTxn(txn, node.StorageRef); err != nil {
			return err
		}
	}
	return nil
}

// resolveCopyNameTxn disambiguates a copy destination name with the sequence
// "Name", "Name (Copy)", "Name (Copy 2)", ... For files the suffix goes
// before the extension: "report.pdf" becomes "report (Copy).pdf".
func resolveCopyNameTxn(txn *badger.Txn, owner metadata.OwnerID, parentID uuid.UUID, name string, isFolder bool) (string, error) {
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

	for n := 1; ; n++ {
		candidate := stem + " (Copy)" + ext
		if n > 1 {
			candidate = fmt.Sprintf("%s (Copy %d)%s", stem, n, ext)
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
