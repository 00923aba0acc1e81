// Package recordstoretest holds the behaviour every record engine must share.
package recordstoretest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/vsdesk/internal/logger"
	"github.com/MrSnakeDoc/vsdesk/internal/recordstore"
)

// Factory returns a fresh engine. reopen is nil for engines that do not
// persist across Close; otherwise it opens the same location again.
type Factory func(t *testing.T) (engine recordstore.Engine, reopen func() (recordstore.Engine, error))

const (
	notes  = "notes"
	people = "people"
)

// Steps is the schema the suite migrates every engine to.
var Steps = []recordstore.Migration{
	{
		Version: 1,
		Name:    "notes and people",
		Apply: func(tx recordstore.EngineTx) error {
			if err := recordstore.EnsureCollection(tx, notes); err != nil {
				return err
			}
			if err := recordstore.EnsureIndex(tx, notes, recordstore.Index{Name: "tag", Field: "tags"}); err != nil {
				return err
			}
			if err := recordstore.EnsureIndex(tx, notes, recordstore.Index{Name: "parent", Field: "parentId"}); err != nil {
				return err
			}
			return recordstore.EnsureCollection(tx, people)
		},
	},
}

type note struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Tags     []string `json:"tags,omitempty"`
	ParentID *string  `json:"parentId"`
}

func open(t *testing.T, e recordstore.Engine) *recordstore.Store {
	t.Helper()
	s, err := recordstore.NewOpener(func(context.Context) (recordstore.Engine, error) { return e, nil }, Steps, logger.NewNop()).Open(context.Background())
	require.NoError(t, err)
	return s
}

func ids(t *testing.T, raws []json.RawMessage) []string {
	t.Helper()
	out := make([]string, 0, len(raws))
	for _, raw := range raws {
		n, err := recordstore.DecodeOne[note](raw)
		require.NoError(t, err)
		out = append(out, n.ID)
	}
	return out
}

// Run executes the conformance suite against engines built by newEngine.
func Run(t *testing.T, newEngine Factory) {
	ctx := context.Background()

	setup := func(t *testing.T) *recordstore.Store {
		e, _ := newEngine(t)
		s := open(t, e)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	t.Run("migrates schema", func(t *testing.T) {
		e, _ := newEngine(t)
		v, err := e.SchemaVersion(ctx)
		require.NoError(t, err)
		require.Equal(t, 0, v)

		v, err = recordstore.Migrate(ctx, e, Steps, logger.NewNop())
		require.NoError(t, err)
		require.Equal(t, 1, v)

		// a second run finds nothing to do
		v, err = recordstore.Migrate(ctx, e, Steps, logger.NewNop())
		require.NoError(t, err)
		require.Equal(t, 1, v)

		tx, err := e.Begin(ctx, recordstore.ReadOnly)
		require.NoError(t, err)
		names, err := tx.Collections()
		require.NoError(t, err)
		require.Equal(t, []string{notes, people}, names)
		idxs, err := tx.Indexes(notes)
		require.NoError(t, err)
		require.ElementsMatch(t, []recordstore.Index{{Name: "tag", Field: "tags"}, {Name: "parent", Field: "parentId"}}, idxs)
		require.NoError(t, tx.Rollback())
		require.NoError(t, e.Close())
	})

	t.Run("put get replace", func(t *testing.T) {
		s := setup(t)
		require.NoError(t, s.Put(ctx, notes, note{ID: "a", Title: "first", Tags: []string{"go", "db"}}))

		raw, err := s.Get(ctx, notes, "a")
		require.NoError(t, err)
		n, err := recordstore.DecodeOne[note](raw)
		require.NoError(t, err)
		require.Equal(t, "first", n.Title)

		_, err = s.Get(ctx, notes, "missing")
		require.ErrorIs(t, err, recordstore.ErrRecordNotFound)

		require.NoError(t, s.Put(ctx, notes, note{ID: "a", Title: "second", Tags: []string{"db"}}))
		got, err := s.GetAllByIndex(ctx, notes, "tag", "go")
		require.NoError(t, err)
		require.Empty(t, got)
		got, err = s.GetAllByIndex(ctx, notes, "tag", "db")
		require.NoError(t, err)
		require.Equal(t, []string{"a"}, ids(t, got))

		all, err := s.GetAll(ctx, notes)
		require.NoError(t, err)
		require.Len(t, all, 1)
	})

	t.Run("scans are ordered by key", func(t *testing.T) {
		s := setup(t)
		parent := "p"
		for _, id := range []string{"c", "a", "b"} {
			require.NoError(t, s.Put(ctx, notes, note{ID: id, ParentID: &parent}))
		}
		require.NoError(t, s.Put(ctx, notes, note{ID: "root"}))

		all, err := s.GetAll(ctx, notes)
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b", "c", "root"}, ids(t, all))

		children, err := s.GetAllByIndex(ctx, notes, "parent", "p")
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b", "c"}, ids(t, children))
	})

	t.Run("delete and clear drop index entries", func(t *testing.T) {
		s := setup(t)
		require.NoError(t, s.Put(ctx, notes, note{ID: "a", Tags: []string{"x"}}))
		require.NoError(t, s.Put(ctx, notes, note{ID: "b", Tags: []string{"x"}}))

		require.NoError(t, s.Delete(ctx, notes, "a"))
		got, err := s.GetAllByIndex(ctx, notes, "tag", "x")
		require.NoError(t, err)
		require.Equal(t, []string{"b"}, ids(t, got))

		// deleting an absent key is not an error
		require.NoError(t, s.Delete(ctx, notes, "a"))

		require.NoError(t, s.Clear(ctx, notes))
		all, err := s.GetAll(ctx, notes)
		require.NoError(t, err)
		require.Empty(t, all)
		got, err = s.GetAllByIndex(ctx, notes, "tag", "x")
		require.NoError(t, err)
		require.Empty(t, got)

		require.NoError(t, s.Put(ctx, notes, note{ID: "c", Tags: []string{"x"}}))
		got, err = s.GetAllByIndex(ctx, notes, "tag", "x")
		require.NoError(t, err)
		require.Equal(t, []string{"c"}, ids(t, got))
	})

	t.Run("transaction reads its own writes", func(t *testing.T) {
		s := setup(t)
		require.NoError(t, s.Put(ctx, notes, note{ID: "a", Title: "old"}))
		err := s.RunTransaction(ctx, []string{notes}, recordstore.ReadWrite, func(tx *recordstore.Txn) error {
			if err := tx.Put(notes, note{ID: "a", Title: "new"}); err != nil {
				return err
			}
			if err := tx.Put(notes, note{ID: "b", Tags: []string{"t"}}); err != nil {
				return err
			}
			raw, err := tx.Get(notes, "a")
			require.NoError(t, err)
			n, err := recordstore.DecodeOne[note](raw)
			require.NoError(t, err)
			require.Equal(t, "new", n.Title)

			all, err := tx.GetAll(notes)
			require.NoError(t, err)
			require.Equal(t, []string{"a", "b"}, ids(t, all))

			tagged, err := tx.GetAllByIndex(notes, "tag", "t")
			require.NoError(t, err)
			require.Equal(t, []string{"b"}, ids(t, tagged))
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("failed body rolls back every collection", func(t *testing.T) {
		s := setup(t)
		require.NoError(t, s.Put(ctx, notes, note{ID: "keep"}))

		boom := errors.New("boom")
		err := s.RunTransaction(ctx, []string{notes, people}, recordstore.ReadWrite, func(tx *recordstore.Txn) error {
			require.NoError(t, tx.Clear(notes))
			require.NoError(t, tx.Put(notes, note{ID: "new"}))
			require.NoError(t, tx.Put(people, map[string]any{"id": "p1"}))
			return boom
		})
		require.ErrorIs(t, err, boom)

		all, err := s.GetAll(ctx, notes)
		require.NoError(t, err)
		require.Equal(t, []string{"keep"}, ids(t, all))
		all, err = s.GetAll(ctx, people)
		require.NoError(t, err)
		require.Empty(t, all)
	})

	t.Run("read only transaction refuses writes", func(t *testing.T) {
		s := setup(t)
		err := s.RunTransaction(ctx, []string{notes}, recordstore.ReadOnly, func(tx *recordstore.Txn) error {
			return tx.Put(notes, note{ID: "a"})
		})
		require.ErrorIs(t, err, recordstore.ErrReadOnly)
	})

	t.Run("transaction is limited to declared collections", func(t *testing.T) {
		s := setup(t)
		err := s.RunTransaction(ctx, []string{notes}, recordstore.ReadWrite, func(tx *recordstore.Txn) error {
			return tx.Put(people, map[string]any{"id": "p1"})
		})
		require.ErrorIs(t, err, recordstore.ErrCollectionNotInScope)

		_, err = s.GetAll(ctx, "unknown")
		require.ErrorIs(t, err, recordstore.ErrUnknownCollection)
	})

	t.Run("records need an id", func(t *testing.T) {
		s := setup(t)
		require.ErrorIs(t, s.Put(ctx, people, map[string]any{"name": "nobody"}), recordstore.ErrMissingKey)
	})

	t.Run("data survives reopen", func(t *testing.T) {
		e, reopen := newEngine(t)
		if reopen == nil {
			t.Skip("engine is not durable")
		}
		s := open(t, e)
		require.NoError(t, s.Put(ctx, notes, note{ID: "a", Tags: []string{"kept"}}))
		require.NoError(t, s.Close())

		e2, err := reopen()
		require.NoError(t, err)
		s2 := open(t, e2)
		t.Cleanup(func() { _ = s2.Close() })
		require.Equal(t, 1, s2.SchemaVersion())

		got, err := s2.GetAllByIndex(ctx, notes, "tag", "kept")
		require.NoError(t, err)
		require.Equal(t, []string{"a"}, ids(t, got))
	})
}
