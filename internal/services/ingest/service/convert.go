package service

import (
	"strconv"
	"strings"
	"time"

	perr "skillproof/internal/platform/errors"
)

// boolCols are the columns that take yes/no style cell values
var boolCols = map[string]bool{
	"valid":                     true,
	"live":                      true,
	"recorded":                  true,
	"participated_in_academy_1": true,
}

// durationCols take MM:SS or HH:MM:SS cell values and store total minutes
var durationCols = map[string]bool{
	"watch_time":     true,
	"total_duration": true,
	"time_watched":   true,
}

// nullish reports whether a cell is one of the sheet's empty markers
func nullish(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "-", "null", "none":
		return true
	}
	return false
}

// parseBool maps the sheet's yes/no spellings onto a boolean
func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "1":
		return true, true
	case "no", "false", "0":
		return false, true
	}
	return false, false
}

// parseMinutes converts MM:SS or HH:MM:SS to total minutes, seconds dropped.
// A bare integer passes through as minutes
func parseMinutes(s string) (int, error) {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, ":") {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, perr.InvalidArgf("bad duration %q", s)
		}
		return n, nil
	}

	parts := strings.Split(s, ":")
	switch len(parts) {
	case 2:
		if m, err := strconv.Atoi(strings.TrimSpace(parts[0])); err == nil {
			return m, nil
		}
	case 3:
		h, herr := strconv.Atoi(strings.TrimSpace(parts[0]))
		m, merr := strconv.Atoi(strings.TrimSpace(parts[1]))
		if herr == nil && merr == nil {
			return h*60 + m, nil
		}
	}
	// salvage the leading figure when the tail is garbage
	if m, err := strconv.Atoi(strings.TrimSpace(parts[0])); err == nil {
		return m, nil
	}
	return 0, perr.InvalidArgf("bad duration %q", s)
}

// parseDate accepts ISO timestamps and plain dates. An unparseable cell is
// returned as-is so the database gets the final word
func parseDate(s string) any {
	if strings.Contains(s, "T") {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		}
		return s
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t
	}
	return s
}

// convert turns one raw cell into its typed column value. keep=false drops
// the cell from the row, mirroring how blank sheet cells never reach storage
func convert(col, raw string) (val any, keep bool, err error) {
	trimmed := strings.TrimSpace(raw)
	switch {
	case boolCols[col]:
		if nullish(trimmed) {
			return nil, true, nil
		}
		b, ok := parseBool(trimmed)
		if !ok {
			return nil, false, perr.InvalidArgf("column %s: %q is not a yes/no value", col, trimmed)
		}
		return b, true, nil

	case durationCols[col]:
		if nullish(trimmed) {
			return nil, true, nil
		}
		m, err := parseMinutes(trimmed)
		if err != nil {
			return nil, false, err
		}
		return m, true, nil

	case col == "date_of_birth":
		if trimmed == "" {
			return nil, false, nil
		}
		return parseDate(trimmed), true, nil

	default:
		if trimmed == "" {
			return nil, false, nil
		}
		return trimmed, true, nil
	}
}
