package format

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCurrencySymbol(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"EUR", "€"},
		{"eur", "€"},
		{"USD", "$"},
		{"GBP", "£"},
		{"XYZ", "¤"},
		{"", "¤"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, CurrencySymbol(tt.code))
		})
	}
}

func TestDeviceCurrency(t *testing.T) {
	assert.Equal(t, "EUR", DeviceCurrencyCode("de-DE"))
	assert.Equal(t, "USD", DeviceCurrencyCode("en_US.UTF-8"))
	assert.Equal(t, "GBP", DeviceCurrencyCode("en-GB"))
	assert.Equal(t, "", DeviceCurrencyCode(""))
	assert.Equal(t, "", DeviceCurrencyCode("C"))
	assert.Equal(t, "", DeviceCurrencyCode("!!"))

	assert.Equal(t, "€", DeviceCurrencySymbol("fr-FR"))
	assert.Equal(t, "¤", DeviceCurrencySymbol("POSIX"))
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "$42.50", FormatAmount(decimal.RequireFromString("42.5"), "USD"))
	assert.Equal(t, "$1,234.50", FormatAmount(decimal.RequireFromString("1234.5"), "USD"))
	assert.Equal(t, "¤3.00", FormatAmount(decimal.NewFromInt(3), "XYZ"))
}

func TestGreeting(t *testing.T) {
	tests := []struct {
		hour int
		want string
	}{
		{9, "Good morning!"},
		{5, "Good morning!"},
		{12, "Good afternoon!"},
		{15, "Good afternoon!"},
		{17, "Good evening!"},
		{19, "Good evening!"},
		{21, "Good night!"},
		{23, "Good night!"},
		{2, "Good night!"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Greeting(tt.hour), "hour %d", tt.hour)
	}

	morning := time.Date(2024, 1, 1, 9, 30, 0, 0, time.Local)
	assert.Equal(t, "Good morning!", CurrentGreeting(morning))
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "09:05 AM", FormatTime(time.Date(2024, 1, 1, 9, 5, 0, 0, time.UTC)))
	assert.Equal(t, "07:45 PM", FormatTime(time.Date(2024, 1, 1, 19, 45, 0, 0, time.UTC)))
}

func TestNewIDUnique(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		id := NewID()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestInitials(t *testing.T) {
	assert.Equal(t, "AL", Initials("ada", "Lovelace"))
	assert.Equal(t, "É", Initials("élodie", ""))
	assert.Equal(t, "?", Initials("", " "))
}
