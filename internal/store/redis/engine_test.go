package redis

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/vsdesk/internal/recordstore"
	"github.com/MrSnakeDoc/vsdesk/internal/recordstore/recordstoretest"
)

// Runs only against a disposable server, e.g.
// VSDESK_TEST_REDIS_URL=redis://localhost:6379/15
func TestConformance(t *testing.T) {
	url := os.Getenv("VSDESK_TEST_REDIS_URL")
	if url == "" {
		t.Skip("VSDESK_TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)

	recordstoretest.Run(t, func(t *testing.T) (recordstore.Engine, func() (recordstore.Engine, error)) {
		prefix := "vsdesk-test-" + uuid.NewString() + ":"
		t.Cleanup(func() { flush(t, opts, prefix) })
		return New(redis.NewClient(opts), prefix), func() (recordstore.Engine, error) {
			return New(redis.NewClient(opts), prefix), nil
		}
	})
}

func flush(t *testing.T, opts *redis.Options, prefix string) {
	ctx := context.Background()
	client := redis.NewClient(opts)
	defer func() { _ = client.Close() }()
	iter := client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		_ = client.Del(ctx, iter.Val()).Err()
	}
	if err := iter.Err(); err != nil {
		t.Logf("cleanup: %v", err)
	}
}

func TestKeys(t *testing.T) {
	k := keys{prefix: DefaultPrefix}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"version", k.VersionKey(), "vsdesk:meta:version"},
		{"collections", k.CollectionsKey(), "vsdesk:meta:collections"},
		{"indexes", k.IndexesKey("bookmarks"), "vsdesk:meta:indexes:bookmarks"},
		{"records", k.RecordsKey("bookmarks"), "vsdesk:rec:bookmarks"},
		{"entries", k.EntriesKey("bookmarks"), "vsdesk:ent:bookmarks"},
		{"index", k.IndexKey("bookmarks", "scope", "w1"), "vsdesk:idx:bookmarks:scope:w1"},
		{"pattern", k.IndexPattern("bookmarks"), "vsdesk:idx:bookmarks:*"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}
