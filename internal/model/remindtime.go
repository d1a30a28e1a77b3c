package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

type TimingType string

const (
	TimingAbsolute TimingType = "absolute"
	TimingRelative TimingType = "relative"
)

// AlertTiming says when an alert fires: at a fixed time, or a number of
// minutes before the anchor.
type AlertTiming struct {
	Type          TimingType `json:"type" yaml:"type"`
	At            *time.Time `json:"at,omitempty" yaml:"at,omitempty"`
	MinutesBefore *int       `json:"minutes_before,omitempty" yaml:"minutes_before,omitempty"`
}

func Absolute(at time.Time) AlertTiming {
	return AlertTiming{Type: TimingAbsolute, At: &at}
}

func Relative(minutesBefore int) AlertTiming {
	return AlertTiming{Type: TimingRelative, MinutesBefore: &minutesBefore}
}

func (t AlertTiming) IsRelative() bool {
	return t.Type == TimingRelative && t.MinutesBefore != nil
}

// FireTime maps an alert timing to a concrete fire time. Absolute timings are
// returned as configured regardless of the anchor. A timing with neither field
// populated fires at the anchor itself.
func FireTime(t AlertTiming, anchor time.Time) time.Time {
	switch {
	case t.Type == TimingAbsolute && t.At != nil:
		return *t.At
	case t.Type == TimingRelative && t.MinutesBefore != nil:
		return anchor.Add(-time.Duration(*t.MinutesBefore) * time.Minute)
	case t.At != nil:
		return *t.At
	case t.MinutesBefore != nil:
		return anchor.Add(-time.Duration(*t.MinutesBefore) * time.Minute)
	default:
		return anchor
	}
}

// DescribeTiming renders a timing for humans: "15 minutes before",
// "1 hour 30 minutes before", "at 2025-01-01 08:00", "at due time".
func DescribeTiming(t AlertTiming) string {
	switch {
	case t.At != nil && t.Type != TimingRelative:
		return "at " + t.At.Format("2006-01-02 15:04")
	case t.MinutesBefore != nil:
		if *t.MinutesBefore <= 0 {
			return "at due time"
		}
		return FormatLead(*t.MinutesBefore) + " before"
	default:
		return "at due time"
	}
}

// FormatLead renders a minute count as days/hours/minutes.
func FormatLead(minutes int) string {
	if minutes <= 0 {
		return "0 minutes"
	}
	days := minutes / (24 * 60)
	hours := (minutes % (24 * 60)) / 60
	mins := minutes % 60

	parts := make([]string, 0, 3)
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if mins > 0 {
		parts = append(parts, plural(mins, "minute"))
	}
	return strings.Join(parts, " ")
}

// FormatUntil renders the distance from now to at, e.g. "15 minutes from now".
func FormatUntil(now, at time.Time) string {
	return humanize.RelTime(at, now, "ago", "from now")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
