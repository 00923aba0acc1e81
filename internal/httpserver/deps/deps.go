package deps

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/vsdesk/internal/account"
	"github.com/MrSnakeDoc/vsdesk/internal/backup"
	"github.com/MrSnakeDoc/vsdesk/internal/bookmarks"
	"github.com/MrSnakeDoc/vsdesk/internal/logger"
	"github.com/MrSnakeDoc/vsdesk/internal/theme"
)

// Storage describes the store the process ended up with.
type Storage struct {
	Engine        string // sqlite, leveldb, redis or memory
	SchemaVersion int
	Degraded      bool   // true when the configured store failed and memory is used
	Reason        string // why the store is degraded
}

type Deps struct {
	Logger       logger.Logger
	StartTime    time.Time
	Version      string
	Commit       string
	BuildDate    string
	GoVersion    string
	TimeNow      func() time.Time // for testing, defaults to time.Now
	AllowedHosts []string         // Host headers allowed to reach the API (DNS rebinding guard)
	AllowedCIDRS []string         // IPs allowed to access the API
	TrustProxy   bool             // true if running behind a trusted reverse proxy

	Storage   Storage
	Bookmarks *bookmarks.Manager
	Account   *account.Session
	Themes    *theme.Manager
	Backup    *backup.Service

	// Flush waits for every orchestrator's pending writes, e.g. before an export.
	Flush func(ctx context.Context) error
	// AfterImport reloads the orchestrators once an import replaced the store.
	AfterImport func(ctx context.Context) error
}
