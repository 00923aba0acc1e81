package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"

	"github.com/MrSnakeDoc/vsdesk/internal/backup"
	"github.com/MrSnakeDoc/vsdesk/internal/logger"
	"github.com/MrSnakeDoc/vsdesk/internal/utils"
)

func cmdExport(ctx context.Context, e env, args []string) error {
	flags := flag.NewFlagSet("export", flag.ContinueOnError)
	flags.SetOutput(&strings.Builder{}) // discard
	output := flags.StringP("output", "o", "", "file to write (stdout when empty)")
	if err := flags.Parse(args); err != nil {
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
	doc, err := svc.Export(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	data = append(data, '\n')

	if *output == "" {
		_, err := e.out.Write(data)
		return err
	}
	// The previous export stays intact until the new one is complete.
	if err := atomic.WriteFile(*output, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write %s: %w", *output, err)
	}
	e.log.Debug("export written", logger.String("file", *output), logger.Int("bytes", len(data)))
	fmt.Fprintf(e.errOut, "exported %d workspaces and %d bookmarks to %s (%s)\n",
		len(doc.Workspaces), len(doc.Bookmarks), *output, humanize.Bytes(uint64(len(data))))
	return nil
}
