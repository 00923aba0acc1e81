// Package cli implements vsdeskctl, the offline companion of the vsdesk
// server. It works on the store directly, so the server should be stopped.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/MrSnakeDoc/vsdesk/internal/app"
	"github.com/MrSnakeDoc/vsdesk/internal/config"
	"github.com/MrSnakeDoc/vsdesk/internal/logger"
	"github.com/MrSnakeDoc/vsdesk/internal/recordstore"
	"github.com/MrSnakeDoc/vsdesk/internal/version"
)

var errUnknownCommand = errors.New("unknown command")

const usage = `Usage: vsdeskctl [--dsn DSN] [-v] <command> [flags]

Commands:
  export [-o file]       Write an export document (stdout by default)
  import -i file         Replace the store content with an export document
  schema                 Print the engine and schema version
  version                Print build information

Global flags:
  --dsn DSN              Store to open (default $VSDESK_STORE_DSN)
  -v, --verbose          Log store activity to stderr
`

// env bundles what every command needs.
type env struct {
	out    io.Writer
	errOut io.Writer
	cfg    *config.Config
	log    logger.Logger
}

// open opens the configured store without the in-memory fallback: an
// offline tool has nothing to gain from an empty store.
func (e env) open(ctx context.Context) (*recordstore.Opener, *recordstore.Store, error) {
	cfg := *e.cfg
	cfg.FallbackToMemory = false
	opener, s, _, err := app.OpenStore(ctx, &cfg, e.log)
	return opener, s, err
}

// Run is the main entry point. Returns exit code.
func Run(ctx context.Context, out, errOut io.Writer, args []string) int {
	flags := flag.NewFlagSet("vsdeskctl", flag.ContinueOnError)
	flags.SetOutput(&strings.Builder{}) // discard
	flags.SetInterspersed(false)
	dsn := flags.String("dsn", "", "store DSN")
	verbose := flags.BoolP("verbose", "v", false, "log to stderr")
	help := flags.BoolP("help", "h", false, "show usage")

	if len(args) > 0 {
		args = args[1:]
	}
	if err := flags.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		fmt.Fprint(errOut, usage)
		return 1
	}
	if *help || flags.NArg() == 0 {
		fmt.Fprint(out, usage)
		return 0
	}
	if flags.Arg(0) == "version" {
		fmt.Fprintln(out, version.Get())
		return 0
	}

	cfg := config.Load()
	if *dsn != "" {
		cfg.StoreDSN = *dsn
	}
	log := logger.NewNop()
	if *verbose {
		log = logger.New("debug", true)
	}
	e := env{out: out, errOut: errOut, cfg: cfg, log: log}

	var err error
	switch cmd, rest := flags.Arg(0), flags.Args()[1:]; cmd {
	case "export":
		err = cmdExport(ctx, e, rest)
	case "import":
		err = cmdImport(ctx, e, rest)
	case "schema":
		err = cmdSchema(ctx, e)
	default:
		err = fmt.Errorf("%w: %s", errUnknownCommand, cmd)
	}
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		if errors.Is(err, errUnknownCommand) {
			fmt.Fprint(errOut, usage)
		}
		return 1
	}
	return 0
}
