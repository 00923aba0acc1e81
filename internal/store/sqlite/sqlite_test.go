package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/vsdesk/internal/recordstore"
	"github.com/MrSnakeDoc/vsdesk/internal/recordstore/recordstoretest"
)

func TestConformance(t *testing.T) {
	recordstoretest.Run(t, func(t *testing.T) (recordstore.Engine, func() (recordstore.Engine, error)) {
		path := filepath.Join(t.TempDir(), "nested", "vsdesk.db")
		e, err := Open(context.Background(), path)
		require.NoError(t, err)
		return e, func() (recordstore.Engine, error) {
			return Open(context.Background(), path)
		}
	})
}

func TestOpenUnwritablePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	// a regular file where a directory is expected cannot be created
	_, err := Open(context.Background(), filepath.Join(blocker, "sub", "vsdesk.db"))
	require.ErrorIs(t, err, recordstore.ErrStorageUnavailable)
}

func TestUserVersionCommitsWithStep(t *testing.T) {
	ctx := context.Background()
	e, err := Open(ctx, filepath.Join(t.TempDir(), "v.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	tx, err := e.Begin(ctx, recordstore.ReadWrite)
	require.NoError(t, err)
	require.NoError(t, tx.SetSchemaVersion(7))
	require.NoError(t, tx.Rollback())

	v, err := e.SchemaVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, v)

	tx, err = e.Begin(ctx, recordstore.ReadWrite)
	require.NoError(t, err)
	require.NoError(t, tx.SetSchemaVersion(7))
	require.NoError(t, tx.Commit())

	v, err = e.SchemaVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, 7, v)
}
