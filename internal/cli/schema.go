package cli

import (
	"context"
	"fmt"

	"github.com/MrSnakeDoc/vsdesk/internal/collections"
	"github.com/MrSnakeDoc/vsdesk/internal/config"
	"github.com/MrSnakeDoc/vsdesk/internal/recordstore"
	"github.com/MrSnakeDoc/vsdesk/internal/utils"
)

// cmdSchema opens (and so migrates) the store and reports where it stands.
func cmdSchema(ctx context.Context, e env) error {
	opener, s, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer utils.MustClose(opener, "store", e.log)

	fmt.Fprintf(e.out, "dsn:     %s\n", config.RedactDSN(e.cfg.StoreDSN))
	fmt.Fprintf(e.out, "engine:  %s\n", s.Engine())
	fmt.Fprintf(e.out, "schema:  %d (latest %d)\n", s.SchemaVersion(), recordstore.Latest(collections.Migrations))
	fmt.Fprintf(e.out, "scoped:  %v\n", s.HasIndex(collections.BookmarksCollection, collections.ScopeIndex))
	return nil
}
