package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/MrSnakeDoc/vsdesk/internal/collections"
	"github.com/MrSnakeDoc/vsdesk/internal/domain"
	"github.com/MrSnakeDoc/vsdesk/internal/logger"
	"github.com/MrSnakeDoc/vsdesk/internal/recordstore"
	"github.com/MrSnakeDoc/vsdesk/internal/store/memory"
)

func newAccounts(t *testing.T) *collections.Set {
	t.Helper()
	s, err := recordstore.NewOpener(func(context.Context) (recordstore.Engine, error) {
		return memory.New(), nil
	}, collections.Migrations, logger.NewNop()).Open(context.Background())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return collections.New(s)
}

func TestGarbageCollector_Collect(t *testing.T) {
	ctx := context.Background()
	log := logger.New("error", false)
	set := newAccounts(t)

	if err := set.Workspaces.Put(ctx, domain.Workspace{ID: "w1", UserID: "u1", Name: "Default"}); err != nil {
		t.Fatalf("put workspace: %v", err)
	}
	err := set.Bookmarks.PutMany(ctx, []domain.Bookmark{
		&domain.Folder{Header: domain.Header{ID: "kept", Scope: "w1", Label: "Kept"}},
		&domain.Link{Header: domain.Header{ID: "legacy", Label: "Legacy"}, URL: "https://legacy.example"},
		&domain.Folder{Header: domain.Header{ID: "gone-1", Scope: "w2", Label: "Gone"}},
		&domain.Link{Header: domain.Header{ID: "gone-2", ParentID: "gone-1", Scope: "w2", Label: "Gone too"}, URL: "https://gone.example"},
	})
	if err != nil {
		t.Fatalf("put bookmarks: %v", err)
	}

	gc := NewGarbageCollector(set, log, time.Hour)
	deleted, err := gc.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 bookmarks deleted, got %d", deleted)
	}

	all, err := set.Bookmarks.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	left := map[string]bool{}
	for _, bm := range all {
		left[bm.Meta().ID] = true
	}
	if !left["kept"] {
		t.Error("Bookmark of an existing workspace was incorrectly removed")
	}
	if !left["legacy"] {
		t.Error("Unscoped legacy bookmark was incorrectly removed")
	}
	if left["gone-1"] || left["gone-2"] {
		t.Errorf("Orphaned bookmarks were not removed: %v", left)
	}

	// A second pass has nothing left to do
	deleted, err = gc.Collect(ctx)
	if err != nil {
		t.Fatalf("second Collect failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("Expected nothing to collect, got %d", deleted)
	}
}

func TestGarbageCollector_StartStop(t *testing.T) {
	ctx := context.Background()
	set := newAccounts(t)
	if err := set.Bookmarks.Put(ctx, &domain.Folder{Header: domain.Header{ID: "orphan", Scope: "missing", Label: "x"}}); err != nil {
		t.Fatalf("put bookmark: %v", err)
	}

	gc := NewGarbageCollector(set, logger.New("error", false), 0)
	if gc.interval != DefaultGCInterval {
		t.Errorf("interval = %v, want default %v", gc.interval, DefaultGCInterval)
	}
	if err := gc.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	gc.Stop()
	gc.Stop() // idempotent

	if _, err := set.Bookmarks.Get(ctx, "orphan"); err == nil {
		t.Error("Start should collect once immediately")
	}
}
