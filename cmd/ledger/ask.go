package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"expense-ledger/internal/assistant"
	"expense-ledger/internal/format"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"
)

type askCmd struct {
	*env
	raw bool
}

func (*askCmd) Name() string     { return "ask" }
func (*askCmd) Synopsis() string { return "ask the assistant about your expenses" }
func (*askCmd) Usage() string {
	return `ledger ask [-raw] [question...]

  Answers a question about the signed-in user's expenses. Without a question
  an interactive session starts; an empty line or end of input ends it.

Usage Examples:
$ ledger ask "How much did I spend on food this month?"
`
}

func (c *askCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.raw, "raw", false, "Print replies as plain markdown")
}

func (c *askCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := c.open(ctx)
	if err != nil {
		return c.fail("%v", err)
	}
	defer a.Close()
	if _, ok := a.userID(); !ok {
		return subcommands.ExitFailure
	}

	chat := c.cfg.Chat
	provider, err := assistant.New(ctx, chat.Provider, chat.APIKey, chat.URL, chat.Model)
	if err != nil {
		return c.fail("%v", err)
	}
	if err := a.book.Refresh(ctx); err != nil {
		fmt.Fprintf(c.stderr, "Warning: answering from cached expenses: %v\n", err)
	}
	conv := assistant.NewConversation(provider, a.book.List)

	render, err := c.renderer()
	if err != nil {
		return c.fail("%v", err)
	}

	if f.NArg() > 0 {
		reply := conv.Ask(ctx, strings.Join(f.Args(), " "))
		c.print(render, reply)
		return subcommands.ExitSuccess
	}

	c.print(render, conv.Messages()[0])
	for {
		fmt.Fprint(c.stdout, "> ")
		q, err := c.readLine()
		if errors.Is(err, io.EOF) || (err == nil && strings.TrimSpace(q) == "") {
			return subcommands.ExitSuccess
		}
		if err != nil {
			return c.fail("%v", err)
		}
		if err := a.remote.RefreshIfStale(ctx); err != nil {
			fmt.Fprintf(c.stderr, "Warning: %s\n", authMessage(err))
		}
		c.print(render, conv.Ask(ctx, q))
	}
}

func (c *askCmd) renderer() (func(string) (string, error), error) {
	if c.raw {
		return func(s string) (string, error) { return s + "\n", nil }, nil
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	if err != nil {
		return nil, err
	}
	return r.Render, nil
}

func (c *askCmd) print(render func(string) (string, error), m assistant.Message) {
	out, err := render(m.Text)
	if err != nil {
		out = m.Text + "\n"
	}
	fmt.Fprintf(c.stdout, "%s  %s\n", out, format.FormatTime(m.CreatedAt.Local()))
}
