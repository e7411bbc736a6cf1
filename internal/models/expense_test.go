package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestExpenseUpdateApply(t *testing.T) {
	date := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	e := Expense{ID: "a", Amount: decimal.RequireFromString("42.50"), Description: "Lunch", Category: "Food", Date: date}

	amount := decimal.NewFromInt(10)
	got := ExpenseUpdate{Amount: &amount}.Apply(e)

	assert.True(t, got.Amount.Equal(amount))
	assert.Equal(t, "Lunch", got.Description)
	assert.Equal(t, "Food", got.Category)
	assert.Equal(t, date, got.Date)
	assert.True(t, e.Amount.Equal(decimal.RequireFromString("42.50")), "original must not change")
}

func TestExpenseUpdateIsEmpty(t *testing.T) {
	assert.True(t, ExpenseUpdate{}.IsEmpty())
	desc := "x"
	assert.False(t, ExpenseUpdate{Description: &desc}.IsEmpty())
}

func TestLookupCategory(t *testing.T) {
	c, ok := LookupCategory("dining out")
	assert.True(t, ok)
	assert.Equal(t, "Dining Out", c.Name)

	_, ok = LookupCategory("Yachts")
	assert.False(t, ok)

	assert.Equal(t, "🍜", CategoryGlyph("Food"))
	assert.Equal(t, "💬", CategoryGlyph("Yachts"))
}
