package leveldb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/vsdesk/internal/recordstore"
	"github.com/MrSnakeDoc/vsdesk/internal/recordstore/recordstoretest"
)

func TestConformance(t *testing.T) {
	recordstoretest.Run(t, func(t *testing.T) (recordstore.Engine, func() (recordstore.Engine, error)) {
		dir := t.TempDir()
		e, err := Open(dir)
		require.NoError(t, err)
		return e, func() (recordstore.Engine, error) { return Open(dir) }
	})
}

func TestOpenLockedDirectory(t *testing.T) {
	dir := t.TempDir()
	first, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Close() })

	_, err = Open(dir)
	require.ErrorIs(t, err, recordstore.ErrStorageUnavailable)
}

func TestKeyLayout(t *testing.T) {
	require.Equal(t, []byte("r\x00bookmarks\x00abc"), key("r", "bookmarks", "abc"))
	require.Equal(t, []byte("x\x00bookmarks\x00scope\x00w1\x00"), prefix("x", "bookmarks", "scope", "w1"))
}
