package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/vsdesk/internal/collections"
	"github.com/MrSnakeDoc/vsdesk/internal/domain"
	"github.com/MrSnakeDoc/vsdesk/internal/logger"
	"github.com/MrSnakeDoc/vsdesk/internal/recordstore"
)

const (
	// DefaultGCInterval is the time between two collections
	DefaultGCInterval = time.Hour
)

// GarbageCollector removes bookmarks whose workspace no longer exists, e.g.
// when a workspace delete hook failed or an import carried dangling scopes.
// Unscoped legacy bookmarks are left for the startup claim.
type GarbageCollector struct {
	accounts *collections.Set
	logger   logger.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewGarbageCollector creates a new garbage collector
func NewGarbageCollector(accounts *collections.Set, log logger.Logger, interval time.Duration) *GarbageCollector {
	if interval <= 0 {
		interval = DefaultGCInterval
	}

	return &GarbageCollector{
		accounts: accounts,
		logger:   log,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic garbage collection process
func (gc *GarbageCollector) Start(ctx context.Context) error {
	// Run immediately on start
	if _, err := gc.Collect(ctx); err != nil {
		gc.logger.Warn("initial garbage collection failed",
			logger.Error(err))
	}

	// Start periodic collection
	ticker := time.NewTicker(gc.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := gc.Collect(ctx); err != nil {
					gc.logger.Error("garbage collection failed",
						logger.Error(err))
				}
			case <-gc.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the garbage collector
func (gc *GarbageCollector) Stop() {
	gc.stopOnce.Do(func() { close(gc.stopCh) })
}

// Collect deletes orphaned bookmarks and returns how many were removed.
// Workspaces and bookmarks are read in the same transaction as the deletes,
// so a workspace created meanwhile cannot lose its tree.
func (gc *GarbageCollector) Collect(ctx context.Context) (int, error) {
	gc.logger.Debug("running garbage collection for orphaned bookmarks")

	perScope := map[string]int{}
	deleted := 0
	colls := []string{collections.WorkspacesCollection, collections.BookmarksCollection}
	err := gc.accounts.Store.RunTransaction(ctx, colls, recordstore.ReadWrite, func(tx *recordstore.Txn) error {
		raws, err := tx.GetAll(collections.WorkspacesCollection)
		if err != nil {
			return err
		}
		workspaces, err := recordstore.Decode[domain.Workspace](raws)
		if err != nil {
			return err
		}
		known := make(map[string]bool, len(workspaces))
		for _, ws := range workspaces {
			known[ws.ID] = true
		}

		raws, err = tx.GetAll(collections.BookmarksCollection)
		if err != nil {
			return err
		}
		records, err := recordstore.Decode[domain.BookmarkRecord](raws)
		if err != nil {
			return err
		}
		for _, r := range records {
			h := r.Meta()
			if h.Scope == "" || known[h.Scope] {
				continue
			}
			if err := tx.Delete(collections.BookmarksCollection, h.ID); err != nil {
				return err
			}
			perScope[h.Scope]++
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("collect orphaned bookmarks: %w", err)
	}

	for scope, n := range perScope {
		gc.logger.Info("garbage collected orphaned bookmarks",
			logger.String("scope", scope),
			logger.Int("count", n))
	}
	if deleted == 0 {
		gc.logger.Debug("no items to garbage collect")
	}
	return deleted, nil
}
