package theme

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/vsdesk/internal/collections"
	"github.com/MrSnakeDoc/vsdesk/internal/domain"
	"github.com/MrSnakeDoc/vsdesk/internal/logger"
	"github.com/MrSnakeDoc/vsdesk/internal/recordstore"
	"github.com/MrSnakeDoc/vsdesk/internal/store/memory"
)

// activeStub stands in for the account session.
type activeStub struct{ id string }

func (a *activeStub) ActiveTheme() string               { return a.id }
func (a *activeStub) SetWorkspaceTheme(id string) error { a.id = id; return nil }

func newManager(t *testing.T) (*Manager, *activeStub, *collections.Themes) {
	t.Helper()
	s, err := recordstore.NewOpener(func(context.Context) (recordstore.Engine, error) {
		return memory.New(), nil
	}, collections.Migrations, logger.NewNop()).Open(context.Background())
	require.NoError(t, err)

	store := collections.NewThemes(s)
	active := &activeStub{}
	m := NewManager(store, active, logger.NewNop())
	require.NoError(t, m.Init(context.Background()))
	return m, active, store
}

func TestBuiltinsLoad(t *testing.T) {
	m, _, _ := newManager(t)

	themes := m.ListThemes()
	require.Len(t, themes, 3)
	for i, id := range []string{"dark-plus", "light-plus", "monokai"} {
		require.Equal(t, id, themes[i].ID)
		require.True(t, themes[i].Builtin)
		require.NotEmpty(t, themes[i].Colors)
	}
	require.Equal(t, domain.BaseLight, themes[1].Base)
	require.Equal(t, DefaultThemeID, m.ActiveTheme().ID)
}

func TestImportTheme(t *testing.T) {
	ctx := context.Background()
	m, _, store := newManager(t)

	_, err := m.ImportTheme(ctx, []byte(`{"name":"X","colors":{}}`))
	require.ErrorIs(t, err, ErrInvalidThemeFormat)
	_, err = m.ImportTheme(ctx, []byte(`{"name":"X"}`))
	require.ErrorIs(t, err, ErrInvalidThemeFormat)
	_, err = m.ImportTheme(ctx, []byte(`not json`))
	require.ErrorIs(t, err, ErrInvalidThemeFormat)

	stored, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Empty(t, stored)

	th, err := m.ImportTheme(ctx, []byte(`{
		// exported from an editor
		"name": "X",
		"type": "light",
		"colors": {"editor.background": "#111",},
	}`))
	require.NoError(t, err)
	require.Regexp(t, `^imported-[0-9a-f-]{36}$`, th.ID)
	require.Equal(t, domain.BaseLight, th.Base)

	got, err := m.Get(th.ID)
	require.NoError(t, err)
	require.Equal(t, "#111", got.Colors["editor.background"])

	persisted, err := store.Get(ctx, th.ID)
	require.NoError(t, err)
	require.Equal(t, "X", persisted.Name)

	again, _, _ := newManager(t)
	_, err = again.Get(th.ID)
	require.ErrorIs(t, err, ErrThemeNotFound)
}

func TestActiveThemeAndDelete(t *testing.T) {
	ctx := context.Background()
	m, active, store := newManager(t)

	var changes []string
	m.Subscribe(func(th domain.Theme) { changes = append(changes, th.ID) })

	require.ErrorIs(t, m.SetActiveTheme("nope"), ErrThemeNotFound)
	require.NoError(t, m.SetActiveTheme("monokai"))
	require.Equal(t, "monokai", active.id)
	require.Equal(t, "monokai", m.ActiveTheme().ID)

	require.ErrorIs(t, m.DeleteTheme(ctx, "dark-plus"), ErrBuiltinTheme)
	require.NoError(t, m.DeleteTheme(ctx, "unknown"))

	th, err := m.ImportTheme(ctx, []byte(`{"name":"Mine","colors":{"editor.background":"#222"}}`))
	require.NoError(t, err)
	require.NoError(t, m.SetActiveTheme(th.ID))
	require.NoError(t, m.DeleteTheme(ctx, th.ID))

	require.Equal(t, DefaultThemeID, m.ActiveTheme().ID)
	require.Equal(t, DefaultThemeID, active.id)
	require.Equal(t, []string{"monokai", th.ID, DefaultThemeID}, changes)

	_, err = store.Get(ctx, th.ID)
	require.ErrorIs(t, err, recordstore.ErrRecordNotFound)
	require.Len(t, m.ListThemes(), 3)
}

func TestUnknownActiveFallsBack(t *testing.T) {
	m, active, _ := newManager(t)
	active.id = "imported-gone"
	require.Equal(t, DefaultThemeID, m.ActiveTheme().ID)
}
