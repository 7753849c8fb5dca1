// Package gc provides garbage collection for orphaned fragment payloads.
//
// The garbage collector identifies and removes payloads that no metadata
// record refers to (orphaned content). This can occur when:
//   - A metadata write fails after its payload write succeeded
//   - A delete removed the metadata record but not the payload
//   - The process crashed between the two halves of either operation
//
// The collector works with any MetadataStore and any ContentStore that
// implements content.GarbageCollectableStore.
package gc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/fragments/internal/logger"
	"github.com/marmos91/fragments/pkg/content"
	"github.com/marmos91/fragments/pkg/metadata"
)

// DefaultInterval is how often a started collector runs.
const DefaultInterval = 24 * time.Hour

// runTimeout bounds a single periodic run.
const runTimeout = 10 * time.Minute

// Collector performs periodic garbage collection on content stores.
//
// The collector runs in the background and periodically scans for orphaned
// content (payloads not referenced by metadata) and deletes it.
//
// Races:
// Payloads are written before their metadata, so a fragment being created
// looks orphaned for a moment. Each candidate is re-checked against the
// metadata store immediately before it is deleted, which narrows that window
// to the gap between the re-check and the delete.
//
// Thread Safety: Safe for concurrent use.
type Collector struct {
	metadataStore metadata.MetadataStore
	contentStore  content.GarbageCollectableStore
	config        Config

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	mu        sync.Mutex
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// Config contains configuration for the garbage collector.
type Config struct {
	// Enabled controls whether Start launches the background worker
	Enabled bool

	// Interval is how often to run garbage collection (default: 24h)
	Interval time.Duration

	// DryRun mode logs what would be deleted without actually deleting.
	// Useful for testing and validation.
	DryRun bool
}

// NewCollector creates a new garbage collector.
//
// The collector will be initialized but not started. Call Start() to begin
// background garbage collection, or RunNow() for a single pass.
//
// Parameters:
//   - metadataStore: Metadata store to query referenced payloads
//   - contentStore: Content store to scan and delete orphaned payloads
//   - config: Garbage collection configuration
//
// Returns:
//   - *Collector: Initialized collector (not started)
//   - error: Returns error if the content store cannot enumerate payloads
func NewCollector(
	metadataStore metadata.MetadataStore,
	contentStore content.ContentStore,
	config Config,
) (*Collector, error) {
	gcStore, ok := contentStore.(content.GarbageCollectableStore)
	if !ok {
		return nil, fmt.Errorf("content store does not implement GarbageCollectableStore interface")
	}

	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}

	return &Collector{
		metadataStore: metadataStore,
		contentStore:  gcStore,
		config:        config,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}, nil
}

// Start begins background garbage collection.
//
// This starts a goroutine that periodically runs garbage collection at the
// configured interval. The goroutine will run until Stop() is called.
//
// Safe to call multiple times (subsequent calls are no-ops).
func (c *Collector) Start() {
	if !c.config.Enabled {
		logger.Info("Garbage collection disabled")
		return
	}

	c.startOnce.Do(func() {
		logger.Info("Starting garbage collector: interval=%s dry_run=%v",
			c.config.Interval, c.config.DryRun)

		c.mu.Lock()
		c.started = true
		c.mu.Unlock()

		go c.worker()
	})
}

// Stop stops the garbage collector and waits for it to finish.
//
// This signals the worker goroutine to stop and waits for it to complete
// any in-progress collection. Safe to call multiple times.
//
// Parameters:
//   - ctx: Bounds how long to wait for the worker
//
// Returns:
//   - error: Returns error if context expires before shutdown completes
func (c *Collector) Stop(ctx context.Context) error {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return nil
	}

	c.stopOnce.Do(func() {
		logger.Info("Stopping garbage collector...")
		close(c.stopCh)
	})

	select {
	case <-c.doneCh:
		logger.Debug("Garbage collector stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Garbage collector shutdown timeout")
		return ctx.Err()
	}
}

// RunNow triggers an immediate garbage collection run.
//
// This is useful for:
//   - Testing
//   - Manual triggers from the command line
//   - Initial cleanup on startup
//
// The method blocks until collection completes or context is cancelled.
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	logger.Info("Running garbage collection (manual trigger)...")
	return c.collect(ctx)
}

// worker is the background goroutine that runs periodic garbage collection.
func (c *Collector) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
			stats, err := c.collect(ctx)
			cancel()

			if err != nil {
				logger.Error("Garbage collection failed: %v", err)
			} else {
				logger.Info("Garbage collection completed: %s", stats.Summary())
			}

		case <-c.stopCh:
			return
		}
	}
}

// collect performs a single garbage collection run.
//
// This is the core GC algorithm:
//  1. List every payload key in the content store
//  2. For each owner seen, list the ids that have metadata
//  3. Compute orphaned = existing - referenced
//  4. Re-check and delete each orphan
func (c *Collector) collect(ctx context.Context) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	defer func() { stats.EndTime = time.Now() }()

	// Phase 1: every payload key
	existing, err := c.contentStore.ListAllContent(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list content: %w", err)
	}
	stats.ExistingCount = uint64(len(existing))

	logger.Debug("GC: Found %d payloads", stats.ExistingCount)

	// Phase 2: referenced ids, one metadata listing per owner
	byOwner := make(map[string][]string)
	for _, key := range existing {
		byOwner[key.OwnerID] = append(byOwner[key.OwnerID], key.ID)
	}

	var orphaned []content.Key
	for ownerID, ids := range byOwner {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		referenced, err := c.metadataStore.List(ctx, ownerID)
		if err != nil {
			return stats, fmt.Errorf("failed to list metadata for owner %s: %w", ownerID, err)
		}
		stats.ReferencedCount += uint64(len(referenced))

		// Phase 3: orphaned = existing - referenced
		referencedSet := make(map[string]struct{}, len(referenced))
		for _, id := range referenced {
			referencedSet[id] = struct{}{}
		}
		for _, id := range ids {
			if _, ok := referencedSet[id]; !ok {
				orphaned = append(orphaned, content.Key{OwnerID: ownerID, ID: id})
			}
		}
	}
	stats.OrphanedCount = uint64(len(orphaned))

	if len(orphaned) == 0 {
		logger.Debug("GC: No orphaned content found")
		return stats, nil
	}

	logger.Info("GC: Found %d orphaned payloads", stats.OrphanedCount)

	if c.config.DryRun {
		for i, key := range orphaned {
			if i == 10 {
				logger.Info("  ... and %d more", len(orphaned)-10)
				break
			}
			logger.Info("GC: DRY RUN - would delete %s/%s", key.OwnerID, key.ID)
		}
		return stats, nil
	}

	// Phase 4: re-check and delete
	for _, key := range orphaned {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		_, found, err := c.metadataStore.Read(ctx, key.OwnerID, key.ID)
		if err != nil {
			logger.Warn("GC: Re-check of %s/%s failed: %v", key.OwnerID, key.ID, err)
			stats.FailedCount++
			continue
		}
		if found {
			// Metadata appeared since the scan: a create completed.
			stats.ReclaimedCount++
			continue
		}

		if err := c.contentStore.Delete(ctx, key.OwnerID, key.ID); err != nil {
			logger.Debug("GC: Failed to delete %s/%s: %v", key.OwnerID, key.ID, err)
			stats.FailedCount++
			continue
		}
		stats.DeletedCount++
	}

	logger.Info("GC: Completed - deleted %d payloads, %d failed", stats.DeletedCount, stats.FailedCount)

	return stats, nil
}

// Stats contains statistics from a garbage collection run.
type Stats struct {
	StartTime       time.Time // When collection started
	EndTime         time.Time // When collection ended
	ReferencedCount uint64    // Metadata records found for the owners scanned
	ExistingCount   uint64    // Payloads in the content store
	OrphanedCount   uint64    // Payloads with no metadata at scan time
	ReclaimedCount  uint64    // Orphans whose metadata appeared before deletion
	DeletedCount    uint64    // Orphans successfully deleted
	FailedCount     uint64    // Orphans that failed to delete
}

// Duration returns the total collection duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the collection.
func (s *Stats) Summary() string {
	return fmt.Sprintf("referenced=%d existing=%d orphaned=%d reclaimed=%d deleted=%d failed=%d duration=%s",
		s.ReferencedCount, s.ExistingCount, s.OrphanedCount, s.ReclaimedCount,
		s.DeletedCount, s.FailedCount, s.Duration())
}
