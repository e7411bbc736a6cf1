// Package format holds the display helpers shared by the terminal front end:
// currency symbols, greetings, times and identifiers.
package format

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
)

// GenericCurrencySign is shown when the currency cannot be determined.
const GenericCurrencySign = "¤"

// CurrencySymbol returns the symbol for an ISO-4217 code, e.g. "EUR" → "€".
func CurrencySymbol(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return GenericCurrencySign
	}
	cur := money.GetCurrency(code)
	if cur == nil || cur.Grapheme == "" {
		return GenericCurrencySign
	}
	return cur.Grapheme
}

// DeviceCurrencyCode returns the currency of the region named by a locale such
// as "en-IE" or "en_US.UTF-8", or "" when it cannot be determined.
func DeviceCurrencyCode(locale string) string {
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	locale = strings.ReplaceAll(strings.TrimSpace(locale), "_", "-")
	if locale == "" || locale == "C" || locale == "POSIX" {
		return ""
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return ""
	}
	region, conf := tag.Region()
	if conf == language.No {
		return ""
	}
	unit, ok := currency.FromRegion(region)
	if !ok {
		return ""
	}
	return unit.String()
}

// DeviceCurrencySymbol is CurrencySymbol(DeviceCurrencyCode(locale)).
func DeviceCurrencySymbol(locale string) string {
	return CurrencySymbol(DeviceCurrencyCode(locale))
}

// FormatAmount renders amount in the given currency with two decimals.
func FormatAmount(amount decimal.Decimal, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	cur := money.GetCurrency(code)
	if cur == nil {
		return CurrencySymbol(code) + amount.StringFixed(2)
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, code).Display()
}
