package format

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Greeting picks the salutation for a local hour of the day.
func Greeting(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "Good morning!"
	case hour >= 12 && hour < 17:
		return "Good afternoon!"
	case hour >= 17 && hour < 21:
		return "Good evening!"
	default:
		return "Good night!"
	}
}

// CurrentGreeting is Greeting for now's local hour.
func CurrentGreeting(now time.Time) string {
	return Greeting(now.Hour())
}

// FormatTime renders the time of day on a 12-hour clock, e.g. "09:05 AM".
func FormatTime(t time.Time) string {
	return t.Format("03:04 PM")
}

// NewID returns a fresh identifier for records and chat messages.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Initials returns the upper-cased first letters of the given names.
func Initials(first, last string) string {
	var b strings.Builder
	for _, s := range []string{first, last} {
		s = strings.TrimSpace(s)
		if r, _ := utf8.DecodeRuneInString(s); r != utf8.RuneError {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	if b.Len() == 0 {
		return "?"
	}
	return b.String()
}
