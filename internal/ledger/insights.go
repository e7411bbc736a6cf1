package ledger

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"expense-ledger/internal/models"

	"github.com/shopspring/decimal"
)

// Period is a reporting window anchored on the current local time.
type Period int

const (
	Today Period = iota
	ThisWeek
	ThisMonth
	ThisYear
)

var periodNames = map[Period]string{
	Today:     "Today",
	ThisWeek:  "This Week",
	ThisMonth: "This Month",
	ThisYear:  "Year",
}

func (p Period) String() string {
	if name, ok := periodNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Period(%d)", int(p))
}

// Short forms for the command line.
var periodAliases = map[string]Period{
	"week":  ThisWeek,
	"month": ThisMonth,
	"year":  ThisYear,
}

// ParsePeriod accepts the period names shown to users, ignoring case.
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(s)
	if p, ok := periodAliases[strings.ToLower(s)]; ok {
		return p, nil
	}
	for p, name := range periodNames {
		if strings.EqualFold(name, s) || strings.EqualFold(strings.ReplaceAll(name, " ", "-"), s) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown period %q", s)
}

// Bounds returns the half-open window [start, end) containing now.
// Weeks start on Sunday.
func (p Period) Bounds(now time.Time) (start, end time.Time) {
	y, m, d := now.Date()
	loc := now.Location()
	today := time.Date(y, m, d, 0, 0, 0, 0, loc)
	switch p {
	case ThisWeek:
		start = today.AddDate(0, 0, -int(today.Weekday()))
		return start, start.AddDate(0, 0, 7)
	case ThisMonth:
		start = time.Date(y, m, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 1, 0)
	case ThisYear:
		start = time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(1, 0, 0)
	default:
		return today, today.AddDate(0, 0, 1)
	}
}

// Title is the heading shown above a period's total.
func (p Period) Title(now time.Time) string {
	switch p {
	case ThisWeek:
		start, end := p.Bounds(now)
		return fmt.Sprintf("This Week (%s - %s)", start.Format("Jan 2"), end.AddDate(0, 0, -1).Format("Jan 2"))
	case ThisMonth:
		return now.Format("January 2006")
	case ThisYear:
		return now.Format("2006")
	default:
		return "Today, " + now.Format("Jan 2")
	}
}

// Filter returns the expenses dated inside the period, keeping their order.
func Filter(expenses []models.Expense, p Period, now time.Time) []models.Expense {
	start, end := p.Bounds(now)
	out := []models.Expense{}
	for _, e := range expenses {
		if !e.Date.Before(start) && e.Date.Before(end) {
			out = append(out, e)
		}
	}
	return out
}

// Total sums the amounts.
func Total(expenses []models.Expense) decimal.Decimal {
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	return total
}

// CategoryTotal is one row of the spending breakdown.
type CategoryTotal struct {
	Category models.Category
	Total    decimal.Decimal
	// Percent of the overall total, rounded to one decimal place.
	Percent decimal.Decimal
}

// ByCategory groups spending by category, largest first.
func ByCategory(expenses []models.Expense) []CategoryTotal {
	sums := map[string]decimal.Decimal{}
	var order []string
	for _, e := range expenses {
		if _, seen := sums[e.Category]; !seen {
			order = append(order, e.Category)
			sums[e.Category] = decimal.Zero
		}
		sums[e.Category] = sums[e.Category].Add(e.Amount)
	}

	overall := Total(expenses)
	rows := make([]CategoryTotal, 0, len(order))
	for _, name := range order {
		cat, ok := models.LookupCategory(name)
		if !ok {
			cat = models.Category{Name: name, Glyph: models.CategoryGlyph(name)}
		}
		row := CategoryTotal{Category: cat, Total: sums[name], Percent: decimal.Zero}
		if overall.IsPositive() {
			row.Percent = sums[name].Div(overall).Mul(decimal.NewFromInt(100)).Round(1)
		}
		rows = append(rows, row)
	}
	slices.SortStableFunc(rows, func(a, b CategoryTotal) int {
		return b.Total.Cmp(a.Total)
	})
	return rows
}
