package badger

import (
	"context"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/farid-asgarli/ws-cloud/pkg/metadata"
	"github.com/farid-asgarli/ws-cloud/pkg/vpath"
)

// GetByID retrieves a node by id. Foreign and unknown ids both report
// NotFound.
func (s *BadgerMetadataStore) GetByID(ctx context.Context, owner metadata.OwnerID, id uuid.UUID) (*metadata.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var node *metadata.Node
	err := s.db.View(func(txn *badger.Txn) error {
		var terr error
		node, terr = getNodeTxn(txn, owner, id)
		return terr
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// GetByPath retrieves a non-deleted node by its canonical path. The supplied
// path is normalized first, so clients may pass unnormalized input.
func (s *BadgerMetadataStore) GetByPath(ctx context.Context, owner metadata.OwnerID, path string) (*metadata.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	canonical, err := vpath.Normalize(path)
	if err != nil {
		return nil, err
	}
	if canonical == vpath.Root {
		// The root is implicit, not a node.
		return nil, errPathNotFound(canonical)
	}

	var node *metadata.Node
	err = s.db.View(func(txn *badger.Txn) error {
		id, terr := lookupPathTxn(txn, owner, canonical)
		if terr != nil {
			return terr
		}
		node, terr = getNodeTxn(txn, owner, id)
		return terr
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// GetChildren returns the non-deleted children of a folder, folders first,
// then alphabetical by name. parentID uuid.Nil lists the root level.
func (s *BadgerMetadataStore) GetChildren(ctx context.Context, owner metadata.OwnerID, parentID uuid.UUID) ([]*metadata.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var children []*metadata.Node
	err := s.db.View(func(txn *badger.Txn) error {
		if parentID != uuid.Nil {
			parent, terr := getNodeTxn(txn, owner, parentID)
			if terr != nil {
				return terr
			}
			if !parent.IsFolder() {
				return &metadata.StoreError{
					Code:    metadata.ErrNotADirectory,
					Message: "node is not a folder",
					Path:    parent.Path,
				}
			}
			if parent.Deleted {
				return errNodeNotFound(parentID)
			}
		}

		// The name index holds only live children, so no delete filtering
		// is needed here.
		prefix := keyNamePrefix(owner, parentID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var childID uuid.UUID
			if verr := it.Item().Value(func(val []byte) error {
				var derr error
				childID, derr = decodeUUID(val)
				return derr
			}); verr != nil {
				return verr
			}

			child, terr := getNodeTxn(txn, owner, childID)
			if terr != nil {
				return terr
			}
			children = append(children, child)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortNodes(children)
	return children, nil
}

// sortNodes orders a listing folders first, then alphabetical by name.
func sortNodes(nodes []*metadata.Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].IsFolder() != nodes[j].IsFolder() {
			return nodes[i].IsFolder()
		}
		return nodes[i].Name < nodes[j].Name
	})
}

// Create inserts a new node under node.ParentID. The store fills ID (when
// Nil), Path, and Depth; Name must already be a valid segment name.
func (s *BadgerMetadataStore) Create(ctx context.Context, owner metadata.OwnerID, node *metadata.Node) (*metadata.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := vpath.ValidateName(node.Name); err != nil {
		return nil, err
	}

	created := *node
	created.OwnerID = owner
	created.Deleted = false
	created.DeletedAt = nil
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}

	now := time.Now()
	if created.CreatedAt.IsZero() {
		created.CreatedAt = now
	}
	if created.ModifiedAt.IsZero() {
		created.ModifiedAt = now
	}
	if created.IsFolder() {
		created.Size = 0
		created.MimeType = ""
		created.ContentHash = ""
		created.StorageRef = ""
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		parentPath, parentDepth, terr := resolveParentTxn(txn, owner, created.ParentID)
		if terr != nil {
			return terr
		}

		taken, _, terr := nameTakenTxn(txn, owner, created.ParentID, created.Name)
		if terr != nil {
			return terr
		}
		if taken {
			return &metadata.StoreError{
				Code:    metadata.ErrAlreadyExists,
				Message: "a sibling with this name already exists",
				Path:    vpath.Join(parentPath, created.Name),
			}
		}

		created.Path = vpath.Join(parentPath, created.Name)
		created.Depth = parentDepth + 1
		if len(created.Path) > vpath.MaxCanonicalLen {
			return &metadata.StoreError{
				Code:    metadata.ErrPathTooLong,
				Message: "canonical path exceeds maximum length",
				Path:    created.Path[:64] + "...",
			}
		}

		if terr := putNodeTxn(txn, &created); terr != nil {
			return terr
		}
		if terr := addChildIndexTxn(txn, &created); terr != nil {
			return terr
		}
		if terr := addLiveIndexesTxn(txn, &created); terr != nil {
			return terr
		}

		if !created.IsFolder() {
			if terr := incrementRefTxn(txn, created.StorageRef); terr != nil {
				return terr
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateStatsCache(owner)
	return &created, nil
}

// resolveParentTxn validates a parent reference and returns its canonical
// path and depth. uuid.Nil resolves to the implicit root ("/", depth -1 so
// children land at depth 0).
func resolveParentTxn(txn *badger.Txn, owner metadata.OwnerID, parentID uuid.UUID) (string, int, error) {
	if parentID == uuid.Nil {
		return vpath.Root, -1, nil
	}

	parent, err := getNodeTxn(txn, owner, parentID)
	if err != nil {
		return "", 0, err
	}
	if !parent.IsFolder() {
		return "", 0, &metadata.StoreError{
			Code:    metadata.ErrNotADirectory,
			Message: "parent is not a folder",
			Path:    parent.Path,
		}
	}
	if parent.Deleted {
		return "", 0, errNodeNotFound(parentID)
	}
	return parent.Path, parent.Depth, nil
}

// EnsurePathExists idempotently creates every missing folder along the path.
// Returns the deepest folder, or nil for the root path.
func (s *BadgerMetadataStore) EnsurePathExists(ctx context.Context, owner metadata.OwnerID, path string) (*metadata.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	canonical, err := vpath.Normalize(path)
	if err != nil {
		return nil, err
	}
	if canonical == vpath.Root {
		return nil, nil
	}

	var deepest *metadata.Node
	created := false
	err = s.db.Update(func(txn *badger.Txn) error {
		deepest = nil
		parentID := uuid.Nil
		parentPath := vpath.Root
		depth := 0

		for _, name := range vpath.Split(canonical) {
			segPath := vpath.Join(parentPath, name)

			taken, existingID, terr := nameTakenTxn(txn, owner, parentID, name)
			if terr != nil {
				return terr
			}

			if taken {
				existing, terr := getNodeTxn(txn, owner, existingID)
				if terr != nil {
					return terr
				}
				if !existing.IsFolder() {
					return &metadata.StoreError{
						Code:    metadata.ErrNotADirectory,
						Message: "path segment exists as a file",
						Path:    segPath,
					}
				}
				deepest = existing
			} else {
				now := time.Now()
				folder := &metadata.Node{
					ID:         uuid.New(),
					OwnerID:    owner,
					ParentID:   parentID,
					Name:       name,
					Path:       segPath,
					Type:       metadata.NodeTypeFolder,
					Depth:      depth,
					CreatedAt:  now,
					ModifiedAt: now,
				}
				if terr := putNodeTxn(txn, folder); terr != nil {
					return terr
				}
				if terr := addChildIndexTxn(txn, folder); terr != nil {
					return terr
				}
				if terr := addLiveIndexesTxn(txn, folder); terr != nil {
					return terr
				}
				deepest = folder
				created = true
			}

			parentID = deepest.ID
			parentPath = deepest.Path
			depth++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.invalidateStatsCache(owner)
	}
	return deepest, nil
}

// UpdateFileContent overwrites a file node's content attributes after an
// upload commits over an existing file, adjusting blob reference counts.
func (s *BadgerMetadataStore) UpdateFileContent(ctx context.Context, owner metadata.OwnerID, id uuid.UUID, fc metadata.FileContent) (*metadata.Node, []metadata.ContentID, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var (
		node     *metadata.Node
		released []metadata.ContentID
	)
	err := s.db.Update(func(txn *badger.Txn) error {
		released = nil

		var terr error
		node, terr = getNodeTxn(txn, owner, id)
		if terr != nil {
			return terr
		}
		if node.IsFolder() {
			return &metadata.StoreError{
				Code:    metadata.ErrInvalidArgument,
				Message: "cannot write content to a folder",
				Path:    node.Path,
			}
		}
		if node.Deleted {
			return errNodeNotFound(id)
		}

		oldRef := node.StorageRef
		node.Size = fc.Size
		node.MimeType = fc.MimeType
		node.ContentHash = fc.ContentHash
		node.StorageRef = fc.StorageRef
		node.ModifiedAt = time.Now()

		if terr := putNodeTxn(txn, node); terr != nil {
			return terr
		}

		if oldRef != fc.StorageRef {
			if terr := incrementRefTxn(txn, fc.StorageRef); terr != nil {
				return terr
			}
			wasReleased, terr := decrementRefTxn(txn, oldRef)
			if terr != nil {
				return terr
			}
			if wasReleased && oldRef != "" {
				released = append(released, oldRef)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.invalidateStatsCache(owner)
	return node, released, nil
}
