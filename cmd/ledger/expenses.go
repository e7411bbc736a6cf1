package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"expense-ledger/internal/format"
	"expense-ledger/internal/ledger"
	"expense-ledger/internal/models"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// parseDate reads a calendar day in local time; "" is today.
func (e *env) parseDate(s string) (time.Time, error) {
	if s == "" {
		return e.now(), nil
	}
	d, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	// Keep the time of day so that same-day entries stay ordered.
	now := e.now()
	return time.Date(d.Year(), d.Month(), d.Day(), now.Hour(), now.Minute(), now.Second(), 0, time.Local), nil
}

type addCmd struct {
	*env
	amount, desc, category, date string
}

func (*addCmd) Name() string     { return "add" }
func (*addCmd) Synopsis() string { return "record an expense" }
func (*addCmd) Usage() string {
	return `ledger add -amount <amount> -desc <description> -category <category> [-date YYYY-MM-DD]

  Records an expense. Categories: ` + categoryNames() + `

Usage Examples:
$ ledger add -amount 42.50 -desc Lunch -category Food
`
}

func (c *addCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.amount, "amount", "", "Amount, e.g. 42.50")
	f.StringVar(&c.desc, "desc", "", "Description")
	f.StringVar(&c.category, "category", "", "Category")
	f.StringVar(&c.date, "date", "", "Date (default today)")
}

func (c *addCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	date, err := c.parseDate(c.date)
	if err != nil {
		return c.fail("%v", err)
	}
	a, err := c.open(ctx)
	if err != nil {
		return c.fail("%v", err)
	}
	defer a.Close()
	if _, ok := a.userID(); !ok {
		return subcommands.ExitFailure
	}

	e, err := a.book.Add(ctx, ledger.Candidate{
		Amount:      c.amount,
		Description: c.desc,
		Category:    c.category,
		Date:        date,
	})
	if err != nil {
		return c.fail("%v", err)
	}
	fmt.Fprintf(c.stdout, "Added %s %s %s (%s)\n",
		models.CategoryGlyph(e.Category), e.Description,
		format.FormatAmount(e.Amount, c.currency()), e.ID)
	return subcommands.ExitSuccess
}

type listCmd struct {
	*env
	period, category string
	offline          bool
}

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "list expenses, newest first" }
func (*listCmd) Usage() string {
	return `ledger list [-period today|week|month|year] [-category <category>] [-offline]

  Lists the signed-in user's expenses. With -offline the local cache is shown
  without contacting the server.
`
}

func (c *listCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.period, "period", "", "Only show this period")
	f.StringVar(&c.category, "category", "", "Only show this category")
	f.BoolVar(&c.offline, "offline", false, "Use the local cache only")
}

func (c *listCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := c.open(ctx)
	if err != nil {
		return c.fail("%v", err)
	}
	defer a.Close()
	if _, ok := a.userID(); !ok {
		return subcommands.ExitFailure
	}
	if !c.offline {
		if err := a.book.Refresh(ctx); err != nil {
			fmt.Fprintf(c.stderr, "Warning: showing cached expenses: %v\n", err)
		}
	}

	expenses := a.book.List()
	if c.period != "" {
		p, err := ledger.ParsePeriod(c.period)
		if err != nil {
			return c.fail("%v", err)
		}
		expenses = ledger.Filter(expenses, p, c.now())
	}
	if c.category != "" {
		cat, ok := models.LookupCategory(c.category)
		if !ok {
			return c.fail("%v: %s", ledger.ErrUnknownCategory, c.category)
		}
		kept := expenses[:0]
		for _, e := range expenses {
			if e.Category == cat.Name {
				kept = append(kept, e)
			}
		}
		expenses = kept
	}

	if len(expenses) == 0 {
		fmt.Fprintln(c.stdout, "No expenses yet.")
		return subcommands.ExitSuccess
	}
	printExpenses(c.env, expenses)
	return subcommands.ExitSuccess
}

func printExpenses(e *env, expenses []models.Expense) {
	cur := e.currency()
	w := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tTIME\tCATEGORY\tDESCRIPTION\tAMOUNT\tID")
	for _, x := range expenses {
		local := x.Date.Local()
		fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\t%s\t%s\n",
			local.Format(dateLayout), format.FormatTime(local),
			models.CategoryGlyph(x.Category), x.Category,
			x.Description, format.FormatAmount(x.Amount, cur), x.ID)
	}
	fmt.Fprintf(w, "\t\t\tTotal\t%s\t\n", format.FormatAmount(ledger.Total(expenses), cur))
	w.Flush()
}

type editCmd struct {
	*env
	amount, desc, category, date string
}

func (*editCmd) Name() string     { return "edit" }
func (*editCmd) Synopsis() string { return "change fields of an expense" }
func (*editCmd) Usage() string {
	return `ledger edit [-amount <amount>] [-desc <description>] [-category <category>] [-date YYYY-MM-DD] <id>

  Changes only the fields given.
`
}

func (c *editCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.amount, "amount", "", "New amount")
	f.StringVar(&c.desc, "desc", "", "New description")
	f.StringVar(&c.category, "category", "", "New category")
	f.StringVar(&c.date, "date", "", "New date")
}

func (c *editCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return c.fail("expected exactly one expense id")
	}
	id := f.Arg(0)

	var u models.ExpenseUpdate
	var err error
	f.Visit(func(fl *flag.Flag) {
		if err != nil {
			return
		}
		switch fl.Name {
		case "amount":
			var d decimal.Decimal
			if d, err = ledger.ParseAmount(c.amount); err == nil {
				u.Amount = &d
			}
		case "desc":
			u.Description = &c.desc
		case "category":
			u.Category = &c.category
		case "date":
			var t time.Time
			if t, err = c.parseDate(c.date); err == nil {
				u.Date = &t
			}
		}
	})
	if err != nil {
		return c.fail("%v", err)
	}
	if u.IsEmpty() {
		return c.fail("nothing to change")
	}

	a, err := c.open(ctx)
	if err != nil {
		return c.fail("%v", err)
	}
	defer a.Close()
	if _, ok := a.userID(); !ok {
		return subcommands.ExitFailure
	}
	if err := a.book.Refresh(ctx); err != nil {
		return c.fail("%v", err)
	}
	if err := a.book.Modify(ctx, id, u); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return c.fail("no expense with id %s", id)
		}
		return c.fail("%v", err)
	}
	fmt.Fprintf(c.stdout, "Updated %s\n", id)
	return subcommands.ExitSuccess
}

type rmCmd struct{ *env }

func (*rmCmd) Name() string             { return "rm" }
func (*rmCmd) Synopsis() string         { return "delete expenses" }
func (*rmCmd) Usage() string            { return "ledger rm <id>...\n" }
func (*rmCmd) SetFlags(_ *flag.FlagSet) {}

func (c *rmCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		return c.fail("expected at least one expense id")
	}
	a, err := c.open(ctx)
	if err != nil {
		return c.fail("%v", err)
	}
	defer a.Close()
	if _, ok := a.userID(); !ok {
		return subcommands.ExitFailure
	}
	for _, id := range f.Args() {
		if err := a.book.Remove(ctx, id); err != nil {
			return c.fail("%v", err)
		}
		fmt.Fprintf(c.stdout, "Deleted %s\n", id)
	}
	return subcommands.ExitSuccess
}

type refreshCmd struct{ *env }

func (*refreshCmd) Name() string             { return "refresh" }
func (*refreshCmd) Synopsis() string         { return "download expenses into the local cache" }
func (*refreshCmd) Usage() string            { return "ledger refresh\n" }
func (*refreshCmd) SetFlags(_ *flag.FlagSet) {}

func (c *refreshCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := c.open(ctx)
	if err != nil {
		return c.fail("%v", err)
	}
	defer a.Close()
	if _, ok := a.userID(); !ok {
		return subcommands.ExitFailure
	}
	if err := a.book.Refresh(ctx); err != nil {
		return c.fail("%v", err)
	}
	fmt.Fprintf(c.stdout, "%d expenses synced.\n", len(a.book.List()))
	return subcommands.ExitSuccess
}

type insightsCmd struct {
	*env
	period string
	server bool
}

func (*insightsCmd) Name() string     { return "insights" }
func (*insightsCmd) Synopsis() string { return "spending by category for a period" }
func (*insightsCmd) Usage() string {
	return `ledger insights [-period today|week|month|year] [-server]

  Shows the total and the share of each category. With -server the summary
  is computed by the server instead of locally.
`
}

func (c *insightsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.period, "period", ledger.ThisMonth.String(), "Period")
	f.BoolVar(&c.server, "server", false, "Ask the server for the summary")
}

func (c *insightsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	period, err := ledger.ParsePeriod(c.period)
	if err != nil {
		return c.fail("%v", err)
	}
	a, err := c.open(ctx)
	if err != nil {
		return c.fail("%v", err)
	}
	defer a.Close()
	uid, ok := a.userID()
	if !ok {
		return subcommands.ExitFailure
	}
	cur := c.currency()

	if c.server {
		s, err := a.remote.Insights(ctx, uid, period.String())
		if err != nil {
			return c.fail("%v", err)
		}
		fmt.Fprintf(c.stdout, "%s\n", s.Title)
		total, _ := decimal.NewFromString(s.Total)
		fmt.Fprintf(c.stdout, "Total: %s (%d expenses)\n", format.FormatAmount(total, cur), s.Count)
		w := tabwriter.NewWriter(c.stdout, 0, 0, 2, ' ', 0)
		for _, row := range s.Categories {
			amount, _ := decimal.NewFromString(row.Total)
			fmt.Fprintf(w, "%s %s\t%s\t%s%%\n", row.Glyph, row.Category, format.FormatAmount(amount, cur), row.Percentage)
		}
		w.Flush()
		return subcommands.ExitSuccess
	}

	if err := a.book.Refresh(ctx); err != nil {
		fmt.Fprintf(c.stderr, "Warning: using cached expenses: %v\n", err)
	}
	now := c.now()
	inPeriod := ledger.Filter(a.book.List(), period, now)
	fmt.Fprintf(c.stdout, "%s\n", period.Title(now))
	fmt.Fprintf(c.stdout, "Total: %s (%d expenses)\n", format.FormatAmount(ledger.Total(inPeriod), cur), len(inPeriod))
	w := tabwriter.NewWriter(c.stdout, 0, 0, 2, ' ', 0)
	for _, row := range ledger.ByCategory(inPeriod) {
		fmt.Fprintf(w, "%s %s\t%s\t%s%%\n", row.Category.Glyph, row.Category.Name,
			format.FormatAmount(row.Total, cur), row.Percent.StringFixed(1))
	}
	w.Flush()
	return subcommands.ExitSuccess
}

func categoryNames() string {
	names := make([]string, 0, len(models.Categories))
	for _, c := range models.Categories {
		names = append(names, c.Name)
	}
	return strings.Join(names, ", ")
}
