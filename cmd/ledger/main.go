// Command ledger is the terminal client of the expense ledger.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"expense-ledger/internal/config"
	"expense-ledger/internal/format"

	"github.com/google/subcommands"
	"golang.org/x/term"
)

// env is what every command shares: settings and the terminal.
type env struct {
	cfg    *config.Config
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time

	lines *bufio.Scanner
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	cfg, err := config.Load(".", config.UserDir())
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	e := &env{cfg: cfg, stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr, now: time.Now}
	os.Exit(int(execute(ctx, e, os.Args[1:])))
}

// execute parses args and runs the selected command.
func execute(ctx context.Context, e *env, args []string) subcommands.ExitStatus {
	fs := flag.NewFlagSet("ledger", flag.ContinueOnError)
	fs.SetOutput(e.stderr)

	commander := subcommands.NewCommander(fs, "ledger")
	commander.Output = e.stdout
	commander.Error = e.stderr
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	commander.Register(&signupCmd{env: e}, "account")
	commander.Register(&loginCmd{env: e}, "account")
	commander.Register(&loginTokenCmd{env: e}, "account")
	commander.Register(&logoutCmd{env: e}, "account")
	commander.Register(&whoamiCmd{env: e}, "account")

	commander.Register(&addCmd{env: e}, "expenses")
	commander.Register(&listCmd{env: e}, "expenses")
	commander.Register(&editCmd{env: e}, "expenses")
	commander.Register(&rmCmd{env: e}, "expenses")
	commander.Register(&refreshCmd{env: e}, "expenses")
	commander.Register(&insightsCmd{env: e}, "expenses")

	commander.Register(&askCmd{env: e}, "assistant")

	if err := fs.Parse(args); err != nil {
		return subcommands.ExitUsageError
	}
	return commander.Execute(ctx)
}

// currency is the configured currency, else the one of the user's locale.
func (e *env) currency() string {
	if e.cfg.Currency != "" {
		return strings.ToUpper(e.cfg.Currency)
	}
	for _, k := range []string{"LC_ALL", "LC_MONETARY", "LANG"} {
		if code := format.DeviceCurrencyCode(os.Getenv(k)); code != "" {
			return code
		}
	}
	return ""
}

// readLine reads one line of input.
func (e *env) readLine() (string, error) {
	if e.lines == nil {
		e.lines = bufio.NewScanner(e.stdin)
	}
	if e.lines.Scan() {
		return e.lines.Text(), nil
	}
	if err := e.lines.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// readPassword prompts without echo on a terminal, else reads a line.
func (e *env) readPassword(prompt string) (string, error) {
	fmt.Fprint(e.stdout, prompt)
	defer fmt.Fprintln(e.stdout)
	if f, ok := e.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return e.readLine()
}

func (e *env) fail(msg string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(e.stderr, "Error: "+msg+"\n", args...)
	return subcommands.ExitFailure
}
