package badger

import (
	"context"
	"sort"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/farid-asgarli/ws-cloud/pkg/metadata"
)

// Search matches non-deleted nodes by case-insensitive name substring,
// narrowed by the query's optional filters. Results are capped at
// SearchResultLimit, folders first, then most recently modified.
//
// The scan walks the owner's path index, which holds exactly the live nodes,
// so deleted nodes never surface and no per-node delete check is needed.
func (s *BadgerMetadataStore) Search(ctx context.Context, owner metadata.OwnerID, query metadata.SearchQuery) ([]*metadata.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(query.Query))
	if needle == "" {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrInvalidArgument,
			Message: "search query must not be empty",
		}
	}

	var matches []*metadata.Node
	err := s.db.View(func(txn *badger.Txn) error {
		return s.scanLiveNodes(txn, owner, func(node *metadata.Node) error {
			if !strings.Contains(strings.ToLower(node.Name), needle) {
				return nil
			}
			if !matchesFilters(node, &query) {
				return nil
			}
			matches = append(matches, node)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].IsFolder() != matches[j].IsFolder() {
			return matches[i].IsFolder()
		}
		return matches[i].ModifiedAt.After(matches[j].ModifiedAt)
	})
	if len(matches) > metadata.SearchResultLimit {
		matches = matches[:metadata.SearchResultLimit]
	}
	return matches, nil
}

// matchesFilters applies the optional search filters; zero values pass.
func matchesFilters(node *metadata.Node, q *metadata.SearchQuery) bool {
	if q.Bucket != metadata.BucketAny && metadata.BucketOf(node) != q.Bucket {
		return false
	}
	if !q.ModifiedAfter.IsZero() && node.ModifiedAt.Before(q.ModifiedAfter) {
		return false
	}
	if !q.ModifiedBefore.IsZero() && node.ModifiedAt.After(q.ModifiedBefore) {
		return false
	}
	if q.MinSize > 0 && node.Size < q.MinSize {
		return false
	}
	if q.MaxSize > 0 && node.Size > q.MaxSize {
		return false
	}
	return true
}

// scanLiveNodes walks every non-deleted node of an owner via the path index.
func (s *BadgerMetadataStore) scanLiveNodes(txn *badger.Txn, owner metadata.OwnerID, visit func(*metadata.Node) error) error {
	prefix := keyPathPrefix(owner)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var node *metadata.Node
		if err := it.Item().Value(func(val []byte) error {
			id, derr := decodeUUID(val)
			if derr != nil {
				return derr
			}
			node, derr = getNodeTxn(txn, owner, id)
			return derr
		}); err != nil {
			return err
		}
		if err := visit(node); err != nil {
			return err
		}
	}
	return nil
}

// ReferencedContentIDs returns every ContentID with a live reference count.
// The refcount namespace is content-addressed, not owner-scoped, so a single
// key-only scan covers all owners.
func (s *BadgerMetadataStore) ReferencedContentIDs(ctx context.Context) ([]metadata.ContentID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []metadata.ContentID
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixRefCount)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			ids = append(ids, metadata.ContentID(key[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// StorageStats summarizes the owner's usage. Results are cached with a short
// TTL because the computation scans every node of the owner.
func (s *BadgerMetadataStore) StorageStats(ctx context.Context, owner metadata.OwnerID) (*metadata.StorageStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.statsCache.mu.RLock()
	if entry, ok := s.statsCache.entries[owner]; ok && time.Since(entry.timestamp) < s.statsCache.ttl {
		stats := *entry.stats
		s.statsCache.mu.RUnlock()
		return &stats, nil
	}
	s.statsCache.mu.RUnlock()

	stats := &metadata.StorageStats{
		BucketBytes: make(map[metadata.TypeBucket]int64),
	}
	err := s.db.View(func(txn *badger.Txn) error {
		if err := s.scanLiveNodes(txn, owner, func(node *metadata.Node) error {
			if node.IsFolder() {
				stats.FolderCount++
				return nil
			}
			stats.FileCount++
			stats.TotalBytes += node.Size
			stats.BucketBytes[metadata.BucketOf(node)] += node.Size
			return nil
		}); err != nil {
			return err
		}

		// Trash entries are one key per trashed node, a key-only count.
		prefix := keyTrashPrefix(owner)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			stats.TrashedCount++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.statsCache.mu.Lock()
	s.statsCache.entries[owner] = &statsCacheEntry{stats: stats, timestamp: time.Now()}
	s.statsCache.mu.Unlock()

	result := *stats
	return &result, nil
}
