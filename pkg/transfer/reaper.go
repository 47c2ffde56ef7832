package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/farid-asgarli/ws-cloud/internal/logger"
)

// Reaper periodically sweeps upload and download sessions, aborting those
// idle beyond the timeout and reclaiming their staging storage.
//
// The sweep acquires each session's exclusive guard before reclaiming it, so
// an in-flight chunk write (which refreshes last-activity under the same
// guard) can never race with removal.
//
// Thread Safety: Safe for concurrent use.
type Reaper struct {
	uploads   *UploadManager
	downloads *DownloadManager
	config    ReaperConfig
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// ReaperConfig contains configuration for the stale session reaper.
type ReaperConfig struct {
	// Enabled controls whether the reaper runs (default: true when built
	// through the config factory)
	Enabled bool

	// Interval is how often to sweep for stale sessions (default: 5m)
	Interval time.Duration

	// IdleTimeout is the inactivity threshold after which a session is
	// reclaimed (default: 30m)
	IdleTimeout time.Duration
}

// NewReaper creates a stale session reaper. Call Start() to begin sweeping.
func NewReaper(uploads *UploadManager, downloads *DownloadManager, config ReaperConfig) *Reaper {
	if config.Interval == 0 {
		config.Interval = 5 * time.Minute
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}

	return &Reaper{
		uploads:   uploads,
		downloads: downloads,
		config:    config,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background sweep goroutine. Safe to call once.
func (r *Reaper) Start() {
	if !r.config.Enabled {
		logger.Info("Session reaper disabled")
		return
	}

	logger.Info("Starting session reaper: interval=%s idle_timeout=%s",
		r.config.Interval, r.config.IdleTimeout)

	go r.worker()
}

// Stop stops the reaper and waits for the worker to finish, bounded by the
// context.
func (r *Reaper) Stop(ctx context.Context) error {
	if !r.config.Enabled {
		return nil
	}

	close(r.stopCh)

	select {
	case <-r.doneCh:
		logger.Info("Session reaper stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Session reaper shutdown timeout")
		return ctx.Err()
	}
}

// RunNow triggers an immediate sweep. Useful for tests and admin triggers.
func (r *Reaper) RunNow(ctx context.Context) *ReapStats {
	return r.sweep(ctx)
}

// worker runs the periodic sweep until stopped.
func (r *Reaper) worker() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			stats := r.sweep(ctx)
			cancel()

			if stats.UploadsReaped > 0 || stats.DownloadsReaped > 0 {
				logger.Info("Session sweep completed: %s", stats.Summary())
			}

		case <-r.stopCh:
			return
		}
	}
}

// sweep performs one pass over both registries.
func (r *Reaper) sweep(ctx context.Context) *ReapStats {
	stats := &ReapStats{StartTime: time.Now()}
	if r.uploads != nil {
		stats.UploadsReaped = r.uploads.ReapIdle(ctx, r.config.IdleTimeout)
	}
	if r.downloads != nil {
		stats.DownloadsReaped = r.downloads.ReapIdle(ctx, r.config.IdleTimeout)
	}
	stats.EndTime = time.Now()
	return stats
}

// ReapStats contains statistics from one sweep.
type ReapStats struct {
	StartTime       time.Time
	EndTime         time.Time
	UploadsReaped   int
	DownloadsReaped int
}

// Summary returns a human-readable summary of the sweep.
func (s *ReapStats) Summary() string {
	return fmt.Sprintf("uploads_reaped=%d downloads_reaped=%d duration=%s",
		s.UploadsReaped, s.DownloadsReaped, s.EndTime.Sub(s.StartTime))
}
