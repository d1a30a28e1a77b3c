package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var absoluteLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ResolveTime turns a user-supplied time into an instant relative to now.
// Accepted forms: "15m", "+1h30m", "10 minutes", "2 days", "until 18:00",
// "18:00" (next occurrence of that clock time), "tomorrow 09:00",
// RFC 3339, and "2006-01-02[ T]15:04" read in now's location.
func ResolveTime(raw string, now time.Time) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if rest, ok := cutPrefixFold(s, "until "); ok {
		s = strings.TrimSpace(rest)
	}
	if s == "" {
		return time.Time{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "time is empty"}
	}

	if d, err := time.ParseDuration(strings.TrimPrefix(s, "+")); err == nil {
		return now.Add(d), nil
	}
	if d, ok := spelledDuration(s); ok {
		return now.Add(d), nil
	}
	if rest, ok := cutPrefixFold(s, "tomorrow"); ok {
		day := now.AddDate(0, 0, 1)
		clock := strings.TrimSpace(rest)
		if clock == "" {
			clock = now.Format("15:04")
		}
		if at, ok := onDay(day, clock); ok {
			return at, nil
		}
	}
	if at, ok := onDay(now, s); ok {
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		return at, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("cannot read time %q", raw)}
}

func onDay(day time.Time, clock string) (time.Time, bool) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, false
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, day.Location()), true
}

func spelledDuration(s string) (time.Duration, bool) {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) != 2 {
		return 0, false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 {
		return 0, false
	}
	unit := strings.TrimSuffix(fields[1], "s")
	switch unit {
	case "min", "minute":
		return time.Duration(n) * time.Minute, true
	case "hour", "hr":
		return time.Duration(n) * time.Hour, true
	case "day":
		return time.Duration(n) * 24 * time.Hour, true
	case "week":
		return time.Duration(n) * 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}
