package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/vsdesk/internal/account"
	"github.com/MrSnakeDoc/vsdesk/internal/backup"
	"github.com/MrSnakeDoc/vsdesk/internal/bookmarks"
	"github.com/MrSnakeDoc/vsdesk/internal/collections"
	"github.com/MrSnakeDoc/vsdesk/internal/config"
	"github.com/MrSnakeDoc/vsdesk/internal/logger"
	"github.com/MrSnakeDoc/vsdesk/internal/recordstore"
	"github.com/MrSnakeDoc/vsdesk/internal/scheduler"
	"github.com/MrSnakeDoc/vsdesk/internal/sources/homepage"
	"github.com/MrSnakeDoc/vsdesk/internal/theme"
	"github.com/MrSnakeDoc/vsdesk/internal/tree"
)

// Core wires the orchestrators over one store.
type Core struct {
	Collections *collections.Set
	Account     *account.Session
	Bookmarks   *bookmarks.Manager
	Themes      *theme.Manager
	Backup      *backup.Service

	gc     *scheduler.GarbageCollector
	logger logger.Logger
}

func NewCore(s *recordstore.Store, cfg *config.Config, log logger.Logger) (*Core, error) {
	set := collections.New(s)

	svc, err := backup.New(s, log)
	if err != nil {
		return nil, fmt.Errorf("backup: %w", err)
	}

	session := account.NewSession(set, log, account.Options{WriteTimeout: cfg.PersistTimeout})
	bm := bookmarks.NewManager(set.Bookmarks, log, bookmarks.Options{
		Seed:         loadSeed(cfg.SeedFile, log),
		WriteTimeout: cfg.PersistTimeout,
	})
	session.OnWorkspaceDeleted(bm.DropScope)

	return &Core{
		Collections: set,
		Account:     session,
		Bookmarks:   bm,
		Themes:      theme.NewManager(set.Themes, session, log),
		Backup:      svc,
		gc:          scheduler.NewGarbageCollector(set, log, cfg.GCInterval),
		logger:      log,
	}, nil
}

// loadSeed reads the Homepage file used to seed new workspaces. Any problem
// falls back to the built-in seed.
func loadSeed(path string, log logger.Logger) []*tree.Node {
	if path == "" {
		return nil
	}
	nodes, err := homepage.NewLoader(path).Load()
	if err != nil {
		log.Warn("seed file ignored", logger.String("file", path), logger.Error(err))
		return nil
	}
	log.Info("seed file loaded", logger.String("file", path), logger.Int("folders", len(nodes)))
	return nodes
}

// Start launches the write queues, loads the account, the themes and the
// active workspace's bookmarks, then starts the garbage collector.
func (c *Core) Start(ctx context.Context) error {
	c.Account.Start(ctx)
	c.Bookmarks.Start(ctx)

	if err := c.load(ctx); err != nil {
		return err
	}
	snap, err := c.Account.Snapshot()
	if err != nil {
		return err
	}
	if _, err := c.Bookmarks.Load(ctx, snap.Active().ID); err != nil {
		return fmt.Errorf("load bookmarks: %w", err)
	}
	return c.gc.Start(ctx)
}

func (c *Core) load(ctx context.Context) error {
	if err := c.Account.Init(ctx); err != nil {
		return fmt.Errorf("init account: %w", err)
	}
	if err := c.claimUnscoped(ctx); err != nil {
		return err
	}
	if err := c.Themes.Init(ctx); err != nil {
		return fmt.Errorf("init themes: %w", err)
	}
	return nil
}

// claimUnscoped hands bookmarks written before workspaces existed to the
// default workspace.
func (c *Core) claimUnscoped(ctx context.Context) error {
	ws, err := c.Account.DefaultWorkspace()
	if err != nil {
		return err
	}
	n, err := c.Collections.Bookmarks.ClaimUnscoped(ctx, ws.ID)
	if err != nil {
		return fmt.Errorf("claim legacy bookmarks: %w", err)
	}
	if n > 0 {
		c.logger.Info("legacy bookmarks claimed", logger.String("workspace", ws.ID), logger.Int("count", n))
	}
	return nil
}

// Flush waits for every pending background write.
func (c *Core) Flush(ctx context.Context) error {
	return errors.Join(c.Account.Flush(ctx), c.Bookmarks.Flush(ctx))
}

// AfterImport reloads every orchestrator from the replaced store.
func (c *Core) AfterImport(ctx context.Context) error {
	if err := c.Account.Reload(ctx); err != nil {
		return fmt.Errorf("reload account: %w", err)
	}
	if err := c.claimUnscoped(ctx); err != nil {
		return err
	}
	if _, err := c.gc.Collect(ctx); err != nil {
		c.logger.Warn("garbage collection after import failed", logger.Error(err))
	}
	if err := c.Bookmarks.Reset(ctx); err != nil {
		return fmt.Errorf("reload bookmarks: %w", err)
	}
	if err := c.Themes.Init(ctx); err != nil {
		return fmt.Errorf("reload themes: %w", err)
	}
	return nil
}

// Stop halts the garbage collector and drains the write queues.
func (c *Core) Stop() {
	c.gc.Stop()
	c.Bookmarks.Stop()
	c.Account.Stop()
}
