package parser

import (
	"net/mail"
	"strings"
	"time"
)

// dateFormats covers Date headers that net/mail rejects
var dateFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
	time.RFC850,
	time.ANSIC,
	time.UnixDate,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 2006 15:04:05",
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 MST",
	"Mon, 02 Jan 06 15:04:05 -0700",
	"Mon Jan 2 15:04:05 2006",
	"02.01.2006 15:04:05",
	"02.01.2006",
	"02/01/2006 15:04:05",
	"02/01/2006",
}

// ParseDate parses a Date header leniently. The zero time is returned when
// nothing matches; callers decide on a substitute.
func ParseDate(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}

	if t, err := mail.ParseDate(value); err == nil {
		return t
	}

	// Drop a trailing "(UTC)" style zone comment
	if i := strings.Index(value, "("); i > 0 {
		value = strings.TrimSpace(value[:i])
	}

	for _, format := range dateFormats {
		if t, err := time.Parse(format, value); err == nil {
			return t
		}
	}

	return time.Time{}
}
