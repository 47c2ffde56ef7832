package badger

import (
	"context"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/farid-asgarli/ws-cloud/pkg/metadata"
)

// RecordAccess appends an access-log entry for a file node.
func (s *BadgerMetadataStore) RecordAccess(ctx context.Context, owner metadata.OwnerID, nodeID uuid.UUID, accessType metadata.AccessType) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		node, terr := getNodeTxn(txn, owner, nodeID)
		if terr != nil {
			return terr
		}
		if node.Deleted {
			return errNodeNotFound(nodeID)
		}
		if node.IsFolder() {
			return &metadata.StoreError{
				Code:    metadata.ErrInvalidArgument,
				Message: "access log entries apply to files only",
				Path:    node.Path,
			}
		}

		now := time.Now()
		entry := &metadata.AccessEntry{
			NodeID:     nodeID,
			AccessType: accessType,
			AccessedAt: now,
		}
		data, terr := encodeAccessEntry(entry)
		if terr != nil {
			return terr
		}

		key := keyAccess(owner, invertNanos(now.UnixNano()), nodeID)
		if terr := txn.Set(key, data); terr != nil {
			return fmt.Errorf("failed to store access entry: %w", terr)
		}
		return nil
	})
}

// RecentFiles returns the most recent access per distinct file, newest first.
// The limit is clamped to [1, 200].
//
// The access log is keyed by inverted timestamp, so a forward scan visits
// entries newest first; the first entry seen for a file is its latest access.
// Entries referencing trashed or hard-deleted files are skipped.
func (s *BadgerMetadataStore) RecentFiles(ctx context.Context, owner metadata.OwnerID, limit int) ([]metadata.RecentFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if limit < 1 {
		limit = 1
	}
	if limit > 200 {
		limit = 200
	}

	var recent []metadata.RecentFile
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := keyAccessPrefix(owner)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seen := make(map[uuid.UUID]struct{})
		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(recent) < limit; it.Next() {
			var entry *metadata.AccessEntry
			if verr := it.Item().Value(func(val []byte) error {
				var derr error
				entry, derr = decodeAccessEntry(val)
				return derr
			}); verr != nil {
				return verr
			}

			if _, dup := seen[entry.NodeID]; dup {
				continue
			}
			seen[entry.NodeID] = struct{}{}

			node, terr := getNodeTxn(txn, owner, entry.NodeID)
			if terr != nil {
				if metadata.IsCode(terr, metadata.ErrNotFound) {
					continue
				}
				return terr
			}
			if node.Deleted || node.IsFolder() {
				continue
			}

			recent = append(recent, metadata.RecentFile{
				Node:       node,
				AccessType: entry.AccessType,
				AccessedAt: entry.AccessedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recent, nil
}
