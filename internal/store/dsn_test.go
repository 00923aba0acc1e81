package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScheme(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"sqlite:///var/lib/vsdesk.db", "sqlite"},
		{"LevelDB:///tmp/db", "leveldb"},
		{"redis://localhost:6379/0", "redis"},
		{"memory://", "memory"},
		{"/home/me/vsdesk.db", "sqlite"},
		{"vsdesk.db", "sqlite"},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			require.Equal(t, tt.want, Scheme(tt.dsn))
		})
	}
}

func TestDSNPath(t *testing.T) {
	tests := []struct {
		dsn     string
		want    string
		wantErr bool
	}{
		{dsn: "sqlite:///var/lib/vsdesk.db", want: "/var/lib/vsdesk.db"},
		{dsn: "sqlite://data/vsdesk.db", want: "data/vsdesk.db"},
		{dsn: "leveldb:///tmp/my%20db", want: "/tmp/my db"},
		{dsn: "/plain/path.db", want: "/plain/path.db"},
		{dsn: "sqlite://", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			got, err := dsnPath(tt.dsn)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestOpenEngines(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		dsn  string
		name string
	}{
		{"memory://", "memory"},
		{"sqlite://" + filepath.Join(dir, "a.db"), "sqlite"},
		{filepath.Join(dir, "b.db"), "sqlite"},
		{"leveldb://" + filepath.Join(dir, "ldb"), "leveldb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Open(ctx, tt.dsn, Options{})
			require.NoError(t, err)
			t.Cleanup(func() { _ = e.Close() })
			require.Equal(t, tt.name, e.Name())
		})
	}

	_, err := Open(ctx, "postgres://localhost/db", Options{})
	require.Error(t, err)
}
