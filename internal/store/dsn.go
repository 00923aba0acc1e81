// Package store selects and opens the record engine named by a DSN.
package store

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MrSnakeDoc/vsdesk/internal/logger"
	"github.com/MrSnakeDoc/vsdesk/internal/recordstore"
	"github.com/MrSnakeDoc/vsdesk/internal/redis"
	"github.com/MrSnakeDoc/vsdesk/internal/store/leveldb"
	"github.com/MrSnakeDoc/vsdesk/internal/store/memory"
	redisstore "github.com/MrSnakeDoc/vsdesk/internal/store/redis"
	"github.com/MrSnakeDoc/vsdesk/internal/store/sqlite"
)

// Options carries engine tuning that does not fit in a DSN.
type Options struct {
	Redis redis.ConnectOptions // URL is taken from the DSN
	Log   logger.Logger
}

// DefaultRedisOptions are used when no tuning is configured.
var DefaultRedisOptions = redis.ConnectOptions{
	ConnectTimeout: 15 * time.Second,
	RetryInterval:  time.Second,
	MaxWait:        5 * time.Second,
	PingTimeout:    2 * time.Second,
	WarnThreshold:  3,
}

// Scheme returns the lower-cased scheme of dsn; a bare path is "sqlite".
func Scheme(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	i := strings.Index(dsn, "://")
	if i <= 0 {
		return "sqlite"
	}
	return strings.ToLower(dsn[:i])
}

// dsnPath returns the location part of a file-based DSN.
func dsnPath(dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	path := dsn
	if i := strings.Index(dsn, "://"); i > 0 {
		path = dsn[i+3:]
	}
	if path == "" {
		return "", fmt.Errorf("dsn %q has no path", dsn)
	}
	if unescaped, err := url.PathUnescape(path); err == nil {
		path = unescaped
	}
	return path, nil
}

// Open builds the engine named by dsn:
//
//	sqlite:///path/vsdesk.db (or a bare path)
//	leveldb:///path/dir
//	redis://[user:pass@]host:port[/db]
//	memory://
func Open(ctx context.Context, dsn string, opts Options) (recordstore.Engine, error) {
	log := opts.Log
	if log == nil {
		log = logger.NewNop()
	}

	switch scheme := Scheme(dsn); scheme {
	case "sqlite", "sqlite3", "file":
		path, err := dsnPath(dsn)
		if err != nil {
			return nil, err
		}
		return sqlite.Open(ctx, path)
	case "leveldb":
		path, err := dsnPath(dsn)
		if err != nil {
			return nil, err
		}
		return leveldb.Open(path)
	case "redis", "rediss":
		ropts := opts.Redis
		if ropts.ConnectTimeout == 0 {
			ropts = DefaultRedisOptions
		}
		ropts.URL = strings.TrimSpace(dsn)
		client, err := redis.New(ctx, ropts, log)
		if err != nil {
			return nil, recordstore.Unavailable("redis", err)
		}
		return redisstore.New(client, redisstore.DefaultPrefix), nil
	case "memory", "mem":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported store scheme %q", scheme)
	}
}
