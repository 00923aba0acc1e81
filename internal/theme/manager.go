// Package theme manages the built-in and imported color themes.
package theme

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/vsdesk/internal/collections"
	"github.com/MrSnakeDoc/vsdesk/internal/domain"
	"github.com/MrSnakeDoc/vsdesk/internal/logger"
	"github.com/MrSnakeDoc/vsdesk/internal/observe"
)

var (
	ErrThemeNotFound = errors.New("theme not found")
	ErrBuiltinTheme  = errors.New("built-in themes cannot be deleted")
)

// ActiveStore persists which theme is active, e.g. on the active workspace.
type ActiveStore interface {
	ActiveTheme() string
	SetWorkspaceTheme(themeID string) error
}

// Manager lists themes, imports user documents and switches the active
// theme. Imports and deletes are written before the call returns.
type Manager struct {
	store  *collections.Themes
	active ActiveStore
	logger logger.Logger
	now    func() time.Time

	mu       sync.RWMutex
	builtins []domain.Theme
	imported map[string]domain.Theme

	notifier observe.Notifier[domain.Theme]
}

func NewManager(store *collections.Themes, active ActiveStore, log logger.Logger) *Manager {
	return &Manager{
		store:    store,
		active:   active,
		logger:   log,
		now:      time.Now,
		imported: make(map[string]domain.Theme),
	}
}

// Init loads the built-ins and every imported theme.
func (m *Manager) Init(ctx context.Context) error {
	builtins, err := loadBuiltins()
	if err != nil {
		return err
	}
	stored, err := m.store.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load themes: %w", err)
	}

	m.mu.Lock()
	m.builtins = builtins
	m.imported = make(map[string]domain.Theme, len(stored))
	for _, t := range stored {
		t.Builtin = false
		m.imported[t.ID] = t
	}
	m.mu.Unlock()

	m.logger.Debug("themes loaded",
		logger.Int("builtin", len(builtins)),
		logger.Int("imported", len(stored)))
	return nil
}

// ListThemes returns the built-ins followed by imported themes, oldest
// import first.
func (m *Manager) ListThemes() []domain.Theme {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Theme, 0, len(m.builtins)+len(m.imported))
	for _, t := range m.builtins {
		out = append(out, clone(t))
	}
	imported := make([]domain.Theme, 0, len(m.imported))
	for _, t := range m.imported {
		imported = append(imported, clone(t))
	}
	slices.SortFunc(imported, func(a, b domain.Theme) int {
		if c := cmp.Compare(a.ImportedAt, b.ImportedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return append(out, imported...)
}

// Get returns a theme by id.
func (m *Manager) Get(id string) (domain.Theme, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.lookup(id); ok {
		return clone(t), nil
	}
	return domain.Theme{}, fmt.Errorf("%w: %s", ErrThemeNotFound, id)
}

// ActiveTheme returns the active theme, or the default theme when the
// stored id is unset or unknown.
func (m *Manager) ActiveTheme() domain.Theme {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.lookup(m.active.ActiveTheme()); ok {
		return clone(t)
	}
	t, _ := m.lookup(DefaultThemeID)
	return clone(t)
}

// SetActiveTheme switches to id and notifies subscribers.
func (m *Manager) SetActiveTheme(id string) error {
	m.mu.RLock()
	t, ok := m.lookup(id)
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrThemeNotFound, id)
	}
	if err := m.active.SetWorkspaceTheme(id); err != nil {
		return err
	}
	m.notifier.Publish(clone(t))
	return nil
}

// ImportTheme parses and stores a user theme document under a new id.
func (m *Manager) ImportTheme(ctx context.Context, data []byte) (domain.Theme, error) {
	t, err := parse(data)
	if err != nil {
		return domain.Theme{}, err
	}
	t.ID = "imported-" + uuid.NewString()
	t.ImportedAt = domain.Millis(m.now())
	if t.Name == "" {
		t.Name = "Imported theme"
	}

	if err := m.store.Put(ctx, t); err != nil {
		return domain.Theme{}, fmt.Errorf("store theme: %w", err)
	}

	m.mu.Lock()
	m.imported[t.ID] = t
	m.mu.Unlock()

	m.logger.Info("theme imported",
		logger.String("theme_id", t.ID),
		logger.String("name", t.Name),
		logger.Int("colors", len(t.Colors)))
	return clone(t), nil
}

// DeleteTheme removes an imported theme. Unknown ids are ignored. Deleting
// the active theme switches back to the default theme.
func (m *Manager) DeleteTheme(ctx context.Context, id string) error {
	m.mu.RLock()
	_, imported := m.imported[id]
	builtin := slices.ContainsFunc(m.builtins, func(t domain.Theme) bool { return t.ID == id })
	m.mu.RUnlock()

	switch {
	case builtin:
		return fmt.Errorf("%w: %s", ErrBuiltinTheme, id)
	case !imported:
		return nil
	}

	if err := m.store.DeleteByKey(ctx, id); err != nil {
		return fmt.Errorf("delete theme: %w", err)
	}
	m.mu.Lock()
	delete(m.imported, id)
	m.mu.Unlock()

	m.logger.Info("theme deleted", logger.String("theme_id", id))
	if m.active.ActiveTheme() == id {
		return m.SetActiveTheme(DefaultThemeID)
	}
	return nil
}

// Subscribe registers fn for every active theme change.
func (m *Manager) Subscribe(fn func(domain.Theme)) (unsubscribe func()) {
	return m.notifier.Subscribe(fn)
}

// lookup requires m.mu.
func (m *Manager) lookup(id string) (domain.Theme, bool) {
	if t, ok := m.imported[id]; ok {
		return t, true
	}
	for _, t := range m.builtins {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Theme{}, false
}
