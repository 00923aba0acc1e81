package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	flag "github.com/spf13/pflag"

	"github.com/MrSnakeDoc/vsdesk/internal/backup"
	"github.com/MrSnakeDoc/vsdesk/internal/utils"
)

var errInputRequired = errors.New("an input file is required (-i)")

func cmdImport(ctx context.Context, e env, args []string) error {
	flags := flag.NewFlagSet("import", flag.ContinueOnError)
	flags.SetOutput(&strings.Builder{}) // discard
	input := flags.StringP("input", "i", "", "export document to import")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return errInputRequired
	}

	data, err := os.ReadFile(*input)
	if err != nil {
		return err
	}

	opener, s, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer utils.MustClose(opener, "store", e.log)

	svc, err := backup.New(s, e.log)
	if err != nil {
		return err
	}
	summary, err := svc.Import(ctx, data)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "imported %s: %d users, %d profiles, %d workspaces, %d bookmarks\n",
		humanize.Bytes(uint64(len(data))), summary.Users, summary.Profiles, summary.Workspaces, summary.Bookmarks)
	return nil
}
