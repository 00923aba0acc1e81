package recordstore_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/vsdesk/internal/logger"
	"github.com/MrSnakeDoc/vsdesk/internal/recordstore"
	"github.com/MrSnakeDoc/vsdesk/internal/store/memory"
)

func countingSteps(applied *atomic.Int32) []recordstore.Migration {
	return []recordstore.Migration{
		{
			Version: 1,
			Name:    "items",
			Apply: func(tx recordstore.EngineTx) error {
				applied.Add(1)
				if err := recordstore.EnsureCollection(tx, "items"); err != nil {
					return err
				}
				return recordstore.EnsureIndex(tx, "items", recordstore.Index{Name: "group", Field: "group"})
			},
		},
		{
			Version: 2,
			Name:    "items by color",
			Apply: func(tx recordstore.EngineTx) error {
				applied.Add(1)
				return recordstore.EnsureIndex(tx, "items", recordstore.Index{Name: "color", Field: "color"})
			},
		},
	}
}

func TestConcurrentOpenMigratesOnce(t *testing.T) {
	var applied, opened atomic.Int32
	engine := memory.New()
	opener := recordstore.NewOpener(func(context.Context) (recordstore.Engine, error) {
		opened.Add(1)
		return engine, nil
	}, countingSteps(&applied), logger.NewNop())

	const callers = 16
	stores := make([]*recordstore.Store, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stores[i], errs[i] = opener.Open(context.Background())
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	require.EqualValues(t, 1, opened.Load())
	require.EqualValues(t, 2, applied.Load())
	for _, s := range stores {
		require.Same(t, stores[0], s)
	}
	require.Equal(t, 2, stores[0].SchemaVersion())
	require.True(t, stores[0].HasIndex("items", "color"))
	require.NoError(t, opener.Close())
}

func TestOpenRetriesAfterFailure(t *testing.T) {
	var attempts atomic.Int32
	engine := memory.New()
	var applied atomic.Int32
	opener := recordstore.NewOpener(func(context.Context) (recordstore.Engine, error) {
		if attempts.Add(1) == 1 {
			return nil, recordstore.Unavailable("memory", errors.New("disk full"))
		}
		return engine, nil
	}, countingSteps(&applied), logger.NewNop())

	_, err := opener.Open(context.Background())
	require.ErrorIs(t, err, recordstore.ErrStorageUnavailable)

	s, err := opener.Open(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, s.SchemaVersion())
}

func TestMigrateFromEveryVersion(t *testing.T) {
	ctx := context.Background()
	var applied atomic.Int32
	steps := countingSteps(&applied)

	engine := memory.New()
	// stop at version 1 and write a row that predates the color index
	v, err := recordstore.Migrate(ctx, engine, steps[:1], logger.NewNop())
	require.NoError(t, err)
	require.Equal(t, 1, v)

	tx, err := engine.Begin(ctx, recordstore.ReadWrite)
	require.NoError(t, err)
	require.NoError(t, tx.Put("items", "a", []byte(`{"id":"a","group":"g","color":"red"}`), map[string][]string{"group": {"g"}}))
	require.NoError(t, tx.Commit())

	v, err = recordstore.Migrate(ctx, engine, steps, logger.NewNop())
	require.NoError(t, err)
	require.Equal(t, 2, v)
	require.EqualValues(t, 2, applied.Load())

	s, err := recordstore.NewOpener(func(context.Context) (recordstore.Engine, error) { return engine, nil }, steps, logger.NewNop()).Open(ctx)
	require.NoError(t, err)
	all, err := s.GetAll(ctx, "items")
	require.NoError(t, err)
	require.Len(t, all, 1)

	// the new index is empty until the row is written again
	red, err := s.GetAllByIndex(ctx, "items", "color", "red")
	require.NoError(t, err)
	require.Empty(t, red)
	require.NoError(t, s.Put(ctx, "items", all[0]))
	red, err = s.GetAllByIndex(ctx, "items", "color", "red")
	require.NoError(t, err)
	require.Len(t, red, 1)
}

func TestNewerSchemaRefusesToOpen(t *testing.T) {
	ctx := context.Background()
	engine := memory.New()
	tx, err := engine.Begin(ctx, recordstore.ReadWrite)
	require.NoError(t, err)
	require.NoError(t, tx.SetSchemaVersion(9))
	require.NoError(t, tx.Commit())

	var applied atomic.Int32
	_, err = recordstore.NewOpener(func(context.Context) (recordstore.Engine, error) { return engine, nil }, countingSteps(&applied), logger.NewNop()).Open(ctx)
	require.ErrorIs(t, err, recordstore.ErrUnsupportedSchema)
	require.Zero(t, applied.Load())
}

func TestMigrationStepFailureKeepsVersion(t *testing.T) {
	ctx := context.Background()
	engine := memory.New()
	boom := errors.New("boom")
	steps := []recordstore.Migration{
		{Version: 1, Name: "ok", Apply: func(tx recordstore.EngineTx) error { return recordstore.EnsureCollection(tx, "items") }},
		{Version: 2, Name: "fails", Apply: func(tx recordstore.EngineTx) error {
			if err := recordstore.EnsureCollection(tx, "half"); err != nil {
				return err
			}
			return boom
		}},
	}

	v, err := recordstore.Migrate(ctx, engine, steps, logger.NewNop())
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, v)

	stored, err := engine.SchemaVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stored)

	tx, err := engine.Begin(ctx, recordstore.ReadOnly)
	require.NoError(t, err)
	ok, err := tx.HasCollection("half")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, tx.Rollback())
}

func TestMigrationsMustBeContiguous(t *testing.T) {
	steps := []recordstore.Migration{
		{Version: 1, Name: "a", Apply: func(recordstore.EngineTx) error { return nil }},
		{Version: 3, Name: "b", Apply: func(recordstore.EngineTx) error { return nil }},
	}
	_, err := recordstore.Migrate(context.Background(), memory.New(), steps, logger.NewNop())
	require.Error(t, err)
}

func TestIndexValues(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"string", `"w1"`, []string{"w1"}},
		{"number", `42`, []string{"42"}},
		{"float", `1.5`, []string{"1.5"}},
		{"bool", `true`, []string{"true"}},
		{"null", `null`, nil},
		{"array", `["a", 1, null, {"x": 1}]`, []string{"a", "1"}},
		{"object", `{"a": 1}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := recordstore.IndexValues(json.RawMessage(tt.raw))
			if len(tt.want) == 0 {
				require.Empty(t, got)
				return
			}
			require.Equal(t, tt.want, got)
		})
	}
}
