package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/juanclpzq/digital-library/internal/shelf/guard"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

var errUsage = errors.New("usage")

// action is a parsed command ready to run.
type action func(ctx context.Context) error

type command struct {
	summary   string
	protected bool
	parse     func(a *Application, args []string) (action, error)
}

var commands = map[string]command{
	"login":    {summary: "sign in", parse: (*Application).loginCmd},
	"register": {summary: "create an account and sign in", parse: (*Application).registerCmd},
	"logout":   {summary: "sign out everywhere this store is shared", parse: (*Application).logoutCmd},
	"whoami":   {summary: "show the signed-in user", protected: true, parse: (*Application).whoamiCmd},
	"books":    {summary: "list your books", protected: true, parse: (*Application).booksCmd},
	"stats":    {summary: "reading statistics", protected: true, parse: (*Application).statsCmd},
	"profile":  {summary: "show or change your profile", protected: true, parse: (*Application).profileCmd},
	"prefs":    {summary: "show or change preferences", protected: true, parse: (*Application).prefsCmd},
	"watch":    {summary: "follow session changes until interrupted", protected: true, parse: (*Application).watchCmd},
}

// Main loads configuration from the environment, runs one command and
// returns the process exit code.
func Main(ctx context.Context, args []string) int {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "shelf:", err)
		return ExitFailure
	}

	a, err := New(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "shelf:", err)
		return ExitFailure
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.Warn("failed to close session storage", "err", err)
		}
	}()

	return a.Run(ctx, args)
}

// Run executes args[0] with the remaining arguments.
func (a *Application) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		a.usage(a.errOut)
		return ExitUsage
	}

	name := args[0]
	if name == "help" || name == "-h" || name == "--help" {
		a.usage(a.out)
		return ExitOK
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(a.errOut, "shelf: unknown command %q\n\n", name)
		a.usage(a.errOut)
		return ExitUsage
	}

	act, err := cmd.parse(a, args[1:])
	switch {
	case errors.Is(err, flag.ErrHelp):
		return ExitOK
	case err != nil:
		fmt.Fprintf(a.errOut, "shelf %s: %v\n", name, err)
		return ExitUsage
	}

	if cmd.protected {
		err = a.protect(ctx, act)
	} else {
		err = act(ctx)
	}

	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, guard.ErrAborted):
		fmt.Fprintln(a.errOut, "shelf: not signed in")
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(a.errOut, "shelf: interrupted")
	default:
		fmt.Fprintf(a.errOut, "shelf %s: %v\n", name, err)
	}
	return ExitFailure
}

func (a *Application) usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Usage: shelf <command> [flags]\n\nCommands:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %-9s %s\n", name, commands[name].summary)
	}
	b.WriteString("\nRun 'shelf <command> -h' for command flags.\n")
	fmt.Fprint(w, b.String())
}

func (a *Application) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("shelf "+name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

// parseFlags rejects positional arguments.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected argument %q", errUsage, fs.Arg(0))
	}
	return nil
}

// setFlags lists the flags given on the command line.
func setFlags(fs *flag.FlagSet) map[string]bool {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}
