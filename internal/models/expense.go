package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Expense represents a financial expense record.
type Expense struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Date        time.Time       `json:"date"`
}

// ExpenseUpdate carries the fields of a partial edit. Nil fields are left untouched.
type ExpenseUpdate struct {
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Description *string          `json:"description,omitempty"`
	Category    *string          `json:"category,omitempty"`
	Date        *time.Time       `json:"date,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u ExpenseUpdate) IsEmpty() bool {
	return u.Amount == nil && u.Description == nil && u.Category == nil && u.Date == nil
}

// Apply returns a copy of e with the update merged in.
func (u ExpenseUpdate) Apply(e Expense) Expense {
	if u.Amount != nil {
		e.Amount = *u.Amount
	}
	if u.Description != nil {
		e.Description = *u.Description
	}
	if u.Category != nil {
		e.Category = *u.Category
	}
	if u.Date != nil {
		e.Date = *u.Date
	}
	return e
}

// Category is one of the fixed expense labels with its display glyph.
type Category struct {
	Name  string `json:"name"`
	Glyph string `json:"glyph"`
}

// Categories is the fixed set of labels an expense can carry.
var Categories = []Category{
	{"Food", "🍜"},
	{"Rent", "🏠"},
	{"Transport", "🚌"},
	{"Shopping", "🛍️"},
	{"Bills", "💡"},
	{"Entertainment", "🎫"},
	{"Health", "💊"},
	{"Utilities", "🔌"},
	{"Travel", "✈️"},
	{"Groceries", "🛒"},
	{"Dining Out", "🍽️"},
	{"Clothing", "👕"},
	{"Education", "🎓"},
	{"Gifts", "🎁"},
	{"Subscriptions", "💳"},
	{"Miscellaneous", "💬"},
}

// LookupCategory finds a category by name, ignoring case.
func LookupCategory(name string) (Category, bool) {
	for _, c := range Categories {
		if strings.EqualFold(c.Name, strings.TrimSpace(name)) {
			return c, true
		}
	}
	return Category{}, false
}

// CategoryGlyph returns the glyph for a category, or the Miscellaneous one.
func CategoryGlyph(name string) string {
	if c, ok := LookupCategory(name); ok {
		return c.Glyph
	}
	return "💬"
}
