// Package gc removes orphaned blobs from the durable content store.
//
// The metadata store reference-counts ContentIDs and tells callers which
// blobs to delete, but physical deletion can still be missed:
//   - Crashes between upload ingest and metadata commit
//   - Crashes between hard delete and blob removal
//   - Failed deletes that were logged and skipped
//
// The collector periodically diffs the content store against the metadata
// reference counts and batch-deletes the difference. It works with any
// MetadataStore and content.Store pair that supports the required
// enumeration interfaces.
package gc

import (
	"context"
	"fmt"
	"time"

	"github.com/farid-asgarli/ws-cloud/internal/logger"
	"github.com/farid-asgarli/ws-cloud/pkg/content"
	"github.com/farid-asgarli/ws-cloud/pkg/metadata"
)

// Collector performs periodic orphan collection on a content store.
//
// Thread Safety: safe for concurrent use.
type Collector struct {
	metadataStore metadata.MetadataStore
	contentStore  content.Store
	config        Config
	stopCh        chan struct{}
	doneCh        chan struct{}
}

// Config contains configuration for the orphan collector.
type Config struct {
	// Enabled controls whether collection is active (default: true)
	Enabled bool `mapstructure:"enabled"`

	// Interval is how often to run collection (default: 24h)
	Interval time.Duration `mapstructure:"interval"`

	// BatchSize is how many orphaned blobs to delete per batch (default: 1000,
	// the S3 DeleteObjects per-request limit)
	BatchSize int `mapstructure:"batch_size"`

	// DryRun logs what would be deleted without deleting (default: false)
	DryRun bool `mapstructure:"dry_run"`
}

// NewCollector creates an orphan collector.
//
// The collector is initialized but not started; call Start to begin
// background collection.
//
// Returns an error when either store lacks the enumeration support the
// collector needs.
func NewCollector(
	metadataStore metadata.MetadataStore,
	contentStore content.Store,
	config Config,
) (*Collector, error) {
	if _, ok := contentStore.(content.GarbageCollectableStore); !ok {
		return nil, fmt.Errorf("content store does not implement GarbageCollectableStore")
	}
	if _, ok := metadataStore.(metadata.ReferenceEnumerator); !ok {
		return nil, fmt.Errorf("metadata store does not implement ReferenceEnumerator")
	}

	if config.Interval == 0 {
		config.Interval = 24 * time.Hour
	}
	if config.BatchSize == 0 {
		config.BatchSize = 1000
	}

	return &Collector{
		metadataStore: metadataStore,
		contentStore:  contentStore,
		config:        config,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}, nil
}

// Start begins background collection at the configured interval. The worker
// runs until Stop is called.
func (c *Collector) Start() {
	if !c.config.Enabled {
		logger.Info("Orphan collection disabled")
		return
	}

	logger.Info("Starting orphan collector: interval=%s batch_size=%d dry_run=%v",
		c.config.Interval, c.config.BatchSize, c.config.DryRun)

	go c.worker()
}

// Stop stops the collector and waits for the worker to finish, bounded by
// the context.
func (c *Collector) Stop(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	logger.Info("Stopping orphan collector...")

	close(c.stopCh)

	select {
	case <-c.doneCh:
		logger.Info("Orphan collector stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Orphan collector shutdown timeout")
		return ctx.Err()
	}
}

// RunNow triggers an immediate collection run and blocks until it completes
// or the context is cancelled. Useful for startup cleanup and tests.
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	logger.Info("Running orphan collection (manual trigger)...")
	return c.collect(ctx)
}

// worker is the background goroutine driving periodic collection.
func (c *Collector) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	logger.Info("Orphan collector worker started")

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			stats, err := c.collect(ctx)
			cancel()

			if err != nil {
				logger.Error("Orphan collection failed: %v", err)
			} else {
				logger.Info("Orphan collection completed: %s", stats.Summary())
			}

		case <-c.stopCh:
			logger.Info("Orphan collector worker stopping...")
			return
		}
	}
}

// collect performs a single collection run:
//
//  1. List every blob in the content store
//  2. List every ContentID referenced by metadata
//  3. orphaned = existing - referenced
//  4. Batch delete orphaned blobs
//
// Content is listed before references so a commit landing between the two
// scans is biased toward keeping its blob: ingest writes the blob first, the
// reference after, and the later scan sees the reference.
func (c *Collector) collect(ctx context.Context) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}

	gcStore := c.contentStore.(content.GarbageCollectableStore)
	refStore := c.metadataStore.(metadata.ReferenceEnumerator)

	existing, err := gcStore.ListAll(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list content: %w", err)
	}
	stats.ExistingCount = uint64(len(existing))

	referenced, err := refStore.ReferencedContentIDs(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to get referenced content: %w", err)
	}
	stats.ReferencedCount = uint64(len(referenced))

	referencedSet := make(map[metadata.ContentID]struct{}, len(referenced))
	for _, id := range referenced {
		referencedSet[id] = struct{}{}
	}

	orphaned := make([]metadata.ContentID, 0)
	for _, id := range existing {
		if _, ok := referencedSet[id]; !ok {
			orphaned = append(orphaned, id)
		}
	}
	stats.OrphanedCount = uint64(len(orphaned))

	if len(orphaned) == 0 {
		logger.Debug("GC: no orphaned blobs found (existing=%d referenced=%d)",
			stats.ExistingCount, stats.ReferencedCount)
		stats.EndTime = time.Now()
		return stats, nil
	}

	logger.Info("GC: found %d orphaned blobs", stats.OrphanedCount)

	if c.config.DryRun {
		logger.Info("GC: DRY RUN - would delete %d blobs:", stats.OrphanedCount)
		for i, id := range orphaned {
			if i >= 10 {
				logger.Info("  ... and %d more", len(orphaned)-10)
				break
			}
			logger.Info("  - %s", id)
		}
		stats.EndTime = time.Now()
		return stats, nil
	}

	for i := 0; i < len(orphaned); i += c.config.BatchSize {
		if err := ctx.Err(); err != nil {
			stats.EndTime = time.Now()
			return stats, err
		}

		end := i + c.config.BatchSize
		if end > len(orphaned) {
			end = len(orphaned)
		}
		batch := orphaned[i:end]

		failures, err := gcStore.DeleteBatch(ctx, batch)
		if err != nil {
			logger.Warn("GC: batch delete failed: %v", err)
			stats.FailedCount += uint64(len(batch))
			continue
		}

		stats.DeletedCount += uint64(len(batch) - len(failures))
		stats.FailedCount += uint64(len(failures))

		for id, ferr := range failures {
			logger.Debug("GC: failed to delete %s: %v", id, ferr)
		}
	}

	stats.EndTime = time.Now()

	logger.Info("GC: completed - deleted %d blobs, %d failed, duration=%s",
		stats.DeletedCount, stats.FailedCount, stats.Duration())

	return stats, nil
}

// Stats contains statistics from one collection run.
type Stats struct {
	StartTime       time.Time
	EndTime         time.Time
	ExistingCount   uint64 // blobs present in the content store
	ReferencedCount uint64 // ContentIDs referenced by metadata
	OrphanedCount   uint64 // blobs with no reference
	DeletedCount    uint64 // orphans successfully deleted
	FailedCount     uint64 // orphans that failed to delete
}

// Duration returns the total collection duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the run.
func (s *Stats) Summary() string {
	return fmt.Sprintf("existing=%d referenced=%d orphaned=%d deleted=%d failed=%d duration=%s",
		s.ExistingCount, s.ReferencedCount, s.OrphanedCount,
		s.DeletedCount, s.FailedCount, s.Duration())
}
