// Package bookmarks keeps the in-memory bookmark tree of each workspace and
// persists its changes in the background.
package bookmarks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/vsdesk/internal/collections"
	"github.com/MrSnakeDoc/vsdesk/internal/domain"
	"github.com/MrSnakeDoc/vsdesk/internal/logger"
	"github.com/MrSnakeDoc/vsdesk/internal/scheduler"
	"github.com/MrSnakeDoc/vsdesk/internal/tree"
)

// Options tunes a Manager.
type Options struct {
	// Seed is planted into workspaces that have no bookmark yet. DefaultSeed
	// is used when nil.
	Seed []*tree.Node

	// WriteTimeout bounds each background write.
	WriteTimeout time.Duration
}

// DefaultSeed is the starter tree of a new workspace.
func DefaultSeed() []*tree.Node {
	return []*tree.Node{
		{ID: "seed-folder", Label: "My Bookmarks", Kind: domain.KindFolder, Children: []*tree.Node{
			{ID: "seed-link", Label: "GitHub", Kind: domain.KindLink, URL: "https://github.com"},
		}},
	}
}

// Manager hands out one Scope per workspace and owns the write queue they
// share.
type Manager struct {
	store  *collections.Bookmarks
	logger logger.Logger
	seed   []*tree.Node
	queue  *scheduler.WriteQueue

	mu     sync.Mutex
	scopes map[string]*Scope
}

func NewManager(store *collections.Bookmarks, log logger.Logger, opts Options) *Manager {
	seed := opts.Seed
	if len(seed) == 0 {
		seed = DefaultSeed()
	}
	return &Manager{
		store:  store,
		logger: log,
		seed:   tree.Clone(seed),
		queue:  scheduler.NewWriteQueue("bookmarks", log, opts.WriteTimeout, nil),
		scopes: make(map[string]*Scope),
	}
}

// Start runs the write queue.
func (m *Manager) Start(ctx context.Context) { m.queue.Start(ctx) }

// Stop drains pending writes.
func (m *Manager) Stop() { m.queue.Stop() }

// Flush waits for every write enqueued so far.
func (m *Manager) Flush(ctx context.Context) error { return m.queue.Flush(ctx) }

// Load returns the scope of a workspace, reading it from the store on first
// use. A workspace without bookmarks is seeded with a fresh copy of the
// starter tree.
func (m *Manager) Load(ctx context.Context, scope string) (*Scope, error) {
	if scope == "" {
		return nil, fmt.Errorf("%w: empty scope", ErrInvalidItem)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.scopes[scope]; ok {
		return s, nil
	}

	records, err := m.store.ForScope(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("load bookmarks of %s: %w", scope, err)
	}

	s := &Scope{id: scope, m: m}
	if len(records) == 0 {
		records = tree.Flatten(tree.Reassign(m.seed, domain.NewID), scope)
		s.persist("seed", records)
		m.logger.Info("seeded workspace bookmarks",
			logger.String("scope", scope),
			logger.Int("count", len(records)))
	}
	s.records = records
	s.nodes = tree.Build(records)
	m.scopes[scope] = s
	return s, nil
}

// DropScope forgets a workspace and deletes its bookmarks after every write
// already queued for it.
func (m *Manager) DropScope(ctx context.Context, scope string) error {
	m.mu.Lock()
	delete(m.scopes, scope)
	m.mu.Unlock()

	var dropErr error
	m.queue.Enqueue("delete scope", func(ctx context.Context) error {
		dropErr = m.store.DeleteScope(ctx, scope)
		return dropErr
	})
	if err := m.queue.Flush(ctx); err != nil {
		return err
	}
	return dropErr
}

// Reset reloads every loaded scope from the store, e.g. after an import
// replaced the collection. Subscribers receive the reloaded trees.
func (m *Manager) Reset(ctx context.Context) error {
	if err := m.queue.Flush(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	scopes := make([]*Scope, 0, len(m.scopes))
	for _, s := range m.scopes {
		scopes = append(scopes, s)
	}
	m.mu.Unlock()

	for _, s := range scopes {
		records, err := m.store.ForScope(ctx, s.id)
		if err != nil {
			return fmt.Errorf("reload bookmarks of %s: %w", s.id, err)
		}
		s.replace(records)
	}
	return nil
}
