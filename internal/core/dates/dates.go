// Package dates parses provider issuance dates and applies the
// minimum-eligible cutoff
package dates

import (
	"strings"
	"time"
)

// MinEligible is the earliest issuance date accepted by verification.
// Credentials issued strictly before it fail eligibility regardless of name
var MinEligible = time.Date(2025, time.October, 27, 0, 0, 0, 0, time.UTC)

// layouts in priority order. US-style month-first resolves ambiguous
// numeric dates, matching the provider locale
var layouts = []string{
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"2006-01-02",
	"01/02/2006",
	"01-02-2006",
	time.RFC3339, // completedAt timestamps embedded in badge payloads
}

// Parse tries each known provider date layout in order and returns the
// first successful parse as a UTC calendar date
func Parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range layouts {
		t, err := time.Parse(l, s)
		if err != nil {
			continue
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// Eligible reports whether d is on or after the cutoff
func Eligible(d time.Time) bool {
	return !d.Before(MinEligible)
}
