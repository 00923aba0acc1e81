package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/vsdesk/internal/collections"
	"github.com/MrSnakeDoc/vsdesk/internal/config"
	"github.com/MrSnakeDoc/vsdesk/internal/domain"
	"github.com/MrSnakeDoc/vsdesk/internal/logger"
	"github.com/MrSnakeDoc/vsdesk/internal/recordstore"
)

func testConfig(dsn string) *config.Config {
	return &config.Config{
		StoreDSN:         dsn,
		FallbackToMemory: true,
		PersistTimeout:   time.Second,
	}
}

func unreachableDSN(t *testing.T) string {
	t.Helper()
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	return "sqlite://" + filepath.Join(blocker, "sub", "vsdesk.db")
}

func TestOpenStoreFallsBackToMemory(t *testing.T) {
	opener, s, storage, err := OpenStore(context.Background(), testConfig(unreachableDSN(t)), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = opener.Close() })

	require.Equal(t, "memory", s.Engine())
	require.True(t, storage.Degraded)
	require.Contains(t, storage.Reason, "storage unavailable")
	require.Equal(t, recordstore.Latest(collections.Migrations), storage.SchemaVersion)
}

func TestOpenStoreWithoutFallback(t *testing.T) {
	cfg := testConfig(unreachableDSN(t))
	cfg.FallbackToMemory = false

	_, _, _, err := OpenStore(context.Background(), cfg, logger.NewNop())
	require.ErrorIs(t, err, recordstore.ErrStorageUnavailable)
}

func newCore(t *testing.T, cfg *config.Config) (*Core, *recordstore.Store) {
	t.Helper()
	opener, s, _, err := OpenStore(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	core, err := NewCore(s, cfg, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		core.Stop()
		_ = opener.Close()
	})
	return core, s
}

func TestStartSeedsFirstLaunch(t *testing.T) {
	ctx := context.Background()
	core, _ := newCore(t, testConfig("memory://"))
	require.NoError(t, core.Start(ctx))

	snap, err := core.Account.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Workspaces, 1)
	require.Equal(t, snap.Workspaces[0].ID, snap.User.ActiveWorkspaceID)

	require.NoError(t, core.Flush(ctx))
	stored, err := core.Collections.Bookmarks.ForScope(ctx, snap.Active().ID)
	require.NoError(t, err)
	require.Len(t, stored, 2, "default seed is one folder with one link")

	require.Equal(t, "dark-plus", core.Themes.ActiveTheme().ID)
}

func TestStartUsesSeedFile(t *testing.T) {
	ctx := context.Background()
	seedFile := filepath.Join(t.TempDir(), "bookmarks.yaml")
	require.NoError(t, os.WriteFile(seedFile, []byte(`
- Dev:
    - Go:
        - href: https://go.dev
    - Chi:
        - href: https://go-chi.io
`), 0o600))
	cfg := testConfig("memory://")
	cfg.SeedFile = seedFile

	core, _ := newCore(t, cfg)
	require.NoError(t, core.Start(ctx))

	snap, err := core.Account.Snapshot()
	require.NoError(t, err)
	scope, err := core.Bookmarks.Load(ctx, snap.Active().ID)
	require.NoError(t, err)
	nodes := scope.Tree()
	require.Len(t, nodes, 1)
	require.Equal(t, "Dev", nodes[0].Label)
	require.Len(t, nodes[0].Children, 2)
}

func TestStartClaimsLegacyBookmarks(t *testing.T) {
	ctx := context.Background()
	core, s := newCore(t, testConfig("memory://"))
	require.NoError(t, s.Put(ctx, collections.BookmarksCollection,
		json.RawMessage(`{"id":"old","label":"Old","type":"link","url":"https://old.example","parentId":null,"sortOrder":0}`)))

	require.NoError(t, core.Start(ctx))

	ws, err := core.Account.DefaultWorkspace()
	require.NoError(t, err)
	bm, err := core.Collections.Bookmarks.Get(ctx, "old")
	require.NoError(t, err)
	require.Equal(t, ws.ID, bm.Meta().Scope)

	scope, err := core.Bookmarks.Load(ctx, ws.ID)
	require.NoError(t, err)
	require.Len(t, scope.Tree(), 1, "a claimed workspace is not seeded")
}

func TestDeletingWorkspaceDropsItsBookmarks(t *testing.T) {
	ctx := context.Background()
	core, _ := newCore(t, testConfig("memory://"))
	require.NoError(t, core.Start(ctx))

	first, err := core.Account.DefaultWorkspace()
	require.NoError(t, err)
	ws, err := core.Account.CreateWorkspace(ctx, "Side")
	require.NoError(t, err)
	scope, err := core.Bookmarks.Load(ctx, ws.ID)
	require.NoError(t, err)
	_, err = scope.AddItem("", "Extra", domain.KindFolder, "")
	require.NoError(t, err)
	require.NoError(t, core.Flush(ctx))

	require.NoError(t, core.Account.SetActiveWorkspace(first.ID))
	require.NoError(t, core.Account.DeleteWorkspace(ctx, ws.ID))

	left, err := core.Collections.Bookmarks.ForScope(ctx, ws.ID)
	require.NoError(t, err)
	require.Empty(t, left)
}

func TestAfterImportReloads(t *testing.T) {
	ctx := context.Background()
	core, _ := newCore(t, testConfig("memory://"))
	require.NoError(t, core.Start(ctx))

	doc := `{
	  "version": 2,
	  "timestamp": 1,
	  "users": [{"id": "u9", "activeWorkspaceId": "w9", "createdAt": 1}],
	  "profiles": [{"id": "u9", "displayName": "Grace", "updatedAt": 1}],
	  "workspaces": [{"id": "w9", "userId": "u9", "name": "Imported", "createdAt": 1, "lastUsedAt": 1}],
	  "bookmarks": [{"id": "b9", "label": "Legacy", "type": "folder", "parentId": null, "sortOrder": 0}]
	}`
	require.NoError(t, core.Flush(ctx))
	_, err := core.Backup.Import(ctx, []byte(doc))
	require.NoError(t, err)
	require.NoError(t, core.AfterImport(ctx))

	snap, err := core.Account.Snapshot()
	require.NoError(t, err)
	require.Equal(t, "u9", snap.User.ID)
	require.Equal(t, "Grace", snap.Profile.DisplayName)
	require.Equal(t, "w9", snap.Active().ID)

	scope, err := core.Bookmarks.Load(ctx, "w9")
	require.NoError(t, err)
	nodes := scope.Tree()
	require.Len(t, nodes, 1)
	require.Equal(t, "Legacy", nodes[0].Label)
}
