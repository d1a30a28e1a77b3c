package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type RecurrenceKind string

const (
	RecurrenceNone    RecurrenceKind = "none"
	RecurrenceDaily   RecurrenceKind = "daily"
	RecurrenceWeekly  RecurrenceKind = "weekly"
	RecurrenceMonthly RecurrenceKind = "monthly"
	RecurrenceYearly  RecurrenceKind = "yearly"
	RecurrenceCustom  RecurrenceKind = "custom"
)

var (
	ErrInvalidRecurrenceType = errors.New("model: invalid recurrence type")
	ErrInvalidInterval       = errors.New("model: invalid recurrence interval")
	ErrInvalidEndCondition   = errors.New("model: invalid recurrence end condition")
	ErrInvalidCronExpression = errors.New("model: invalid custom recurrence expression")
)

// Pattern is the closed set of recurrence shapes. Only the types in this file
// implement it.
type Pattern interface {
	Kind() RecurrenceKind
	validate() error
}

type Once struct{}

type Daily struct{ Interval int }

type Weekly struct {
	Interval int
	Weekdays []time.Weekday
}

type Monthly struct{ Interval int }

type Yearly struct{ Interval int }

// Custom is a cron expression (5 or 6 fields, or a descriptor such as @daily)
// evaluated in the base time's location.
type Custom struct{ Expr string }

func (Once) Kind() RecurrenceKind    { return RecurrenceNone }
func (Daily) Kind() RecurrenceKind   { return RecurrenceDaily }
func (Weekly) Kind() RecurrenceKind  { return RecurrenceWeekly }
func (Monthly) Kind() RecurrenceKind { return RecurrenceMonthly }
func (Yearly) Kind() RecurrenceKind  { return RecurrenceYearly }
func (Custom) Kind() RecurrenceKind  { return RecurrenceCustom }

func (Once) validate() error      { return nil }
func (p Daily) validate() error   { return checkInterval(p.Interval) }
func (p Monthly) validate() error { return checkInterval(p.Interval) }
func (p Yearly) validate() error  { return checkInterval(p.Interval) }

func (p Weekly) validate() error {
	if err := checkInterval(p.Interval); err != nil {
		return err
	}
	seen := make(map[time.Weekday]bool, len(p.Weekdays))
	for _, d := range p.Weekdays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("model: weekday out of range: %d", d)
		}
		if seen[d] {
			return errors.New("model: duplicate weekday in recurrence")
		}
		seen[d] = true
	}
	return nil
}

func (p Custom) validate() error {
	if _, err := cronParser.Parse(p.Expr); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidCronExpression, p.Expr, err)
	}
	return nil
}

func checkInterval(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidInterval, n)
	}
	return nil
}

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type EndKind string

const (
	EndNever  EndKind = "none"
	EndOnDate EndKind = "on_date"
	EndAfterN EndKind = "after_count"
)

type EndCondition struct {
	Kind  EndKind
	Date  time.Time
	Count int
}

func NeverEnds() EndCondition         { return EndCondition{Kind: EndNever} }
func EndsOn(d time.Time) EndCondition { return EndCondition{Kind: EndOnDate, Date: d} }
func EndsAfter(n int) EndCondition    { return EndCondition{Kind: EndAfterN, Count: n} }

func (c EndCondition) validate() error {
	switch c.Kind {
	case EndNever:
		return nil
	case EndOnDate:
		if c.Date.IsZero() {
			return fmt.Errorf("%w: end date is required", ErrInvalidEndCondition)
		}
		return nil
	case EndAfterN:
		if c.Count <= 0 {
			return fmt.Errorf("%w: count must be positive, got %d", ErrInvalidEndCondition, c.Count)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidEndCondition, c.Kind)
	}
}

type RecurrenceRule struct {
	Pattern Pattern
	End     EndCondition
}

func (r RecurrenceRule) Kind() RecurrenceKind {
	if r.Pattern == nil {
		return ""
	}
	return r.Pattern.Kind()
}

func (r RecurrenceRule) Validate() error {
	if r.Pattern == nil {
		return fmt.Errorf("%w: missing pattern", ErrInvalidRecurrenceType)
	}
	if err := r.Pattern.validate(); err != nil {
		return err
	}
	return r.End.validate()
}

// NextOccurrence returns the first occurrence of rule strictly after from.
// ok is false when the rule produces no further occurrence, including when the
// rule is malformed. AfterCount end conditions are counted by the caller.
func NextOccurrence(rule RecurrenceRule, base, from time.Time) (next time.Time, ok bool) {
	if rule.Validate() != nil {
		return time.Time{}, false
	}
	if rule.End.Kind == EndOnDate && from.After(rule.End.Date) {
		return time.Time{}, false
	}

	switch p := rule.Pattern.(type) {
	case Once:
		if base.After(from) {
			next, ok = base, true
		}
	case Daily:
		candidate := later(base, from)
		if candidate.Equal(from) {
			candidate = candidate.AddDate(0, 0, p.Interval)
		}
		next, ok = candidate, true
	case Weekly:
		if len(p.Weekdays) == 0 {
			next, ok = later(base, from).AddDate(0, 0, 7*p.Interval), true
		} else {
			next, ok = nextWeekday(p, base, from), true
		}
	case Monthly:
		next, ok = addMonthsClamped(later(base, from), base, p.Interval), true
	case Yearly:
		next, ok = addMonthsClamped(later(base, from), base, 12*p.Interval), true
	case Custom:
		sched, err := cronParser.Parse(p.Expr)
		if err != nil {
			return time.Time{}, false
		}
		next = sched.Next(later(base.Add(-time.Nanosecond), from).In(base.Location()))
		ok = !next.IsZero()
	}

	if ok && rule.End.Kind == EndOnDate && next.After(rule.End.Date) {
		return time.Time{}, false
	}
	return next, ok
}

// seedBefore returns an occurrence of rule at or shortly before t that lies on
// the same cadence a walk from base would reach, so a walk can start there
// instead of at base. ok is false when no occurrence remains after t.
func seedBefore(rule RecurrenceRule, base, t time.Time) (seed time.Time, ok bool) {
	if !t.After(base) {
		return base, true
	}
	t = t.In(base.Location())
	switch p := rule.Pattern.(type) {
	case Daily:
		return stepDays(base, t, p.Interval), true
	case Weekly:
		if len(p.Weekdays) == 0 {
			return stepDays(base, t, 7*p.Interval), true
		}
		first := int(p.Weekdays[0])
		for _, d := range p.Weekdays {
			first = min(first, int(d))
		}
		baseWeek := base.AddDate(0, 0, -int(base.Weekday()))
		tWeek := t.AddDate(0, 0, -int(t.Weekday()))
		n := civilDays(baseWeek, tWeek) / 7 / p.Interval * p.Interval
		if n < p.Interval {
			return base, true
		}
		return withClock(baseWeek.AddDate(0, 0, 7*n+first), base), true
	case Monthly:
		return stepMonths(base, t, p.Interval), true
	case Yearly:
		return stepMonths(base, t, 12*p.Interval), true
	case Custom:
		return NextOccurrence(rule, base, t.Add(-time.Nanosecond))
	}
	return base, true
}

// stepDays returns the last base+n*k days slot not after t, or base.
func stepDays(base, t time.Time, k int) time.Time {
	n := civilDays(base, t) / k * k
	seed := base.AddDate(0, 0, n)
	if seed.After(t) {
		if n -= k; n <= 0 {
			return base
		}
		seed = base.AddDate(0, 0, n)
	}
	return seed
}

func stepMonths(base, t time.Time, k int) time.Time {
	months := (t.Year()-base.Year())*12 + int(t.Month()-base.Month())
	n := months / k * k
	if n <= 0 {
		return base
	}
	seed := addMonthsClamped(base, base, n)
	if seed.After(t) {
		if n -= k; n <= 0 {
			return base
		}
		seed = addMonthsClamped(base, base, n)
	}
	return seed
}

// civilDays counts calendar days from a's date to b's date.
func civilDays(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return int(time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC).Sub(time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)).Hours() / 24)
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// nextWeekday scans the remaining configured weekdays of the current week and
// otherwise jumps interval weeks ahead to the smallest configured weekday. The
// clock comes from base. A configured weekday equal to today still qualifies if
// its slot lies after from.
func nextWeekday(p Weekly, base, from time.Time) time.Time {
	ref := from
	if base.After(from) {
		ref = base.Add(-time.Nanosecond)
	}
	ref = ref.In(base.Location())

	days := make([]int, 0, len(p.Weekdays))
	for _, d := range p.Weekdays {
		days = append(days, int(d))
	}
	sort.Ints(days)

	current := int(ref.Weekday())
	for _, d := range days {
		if d < current {
			continue
		}
		candidate := withClock(ref.AddDate(0, 0, d-current), base)
		if candidate.After(ref) {
			return candidate
		}
	}
	return withClock(ref.AddDate(0, 0, 7*p.Interval+days[0]-current), base)
}

// addMonthsClamped moves from by n months, keeping base's day of month and
// clock. When base's day does not exist in the target month the result is the
// last day of that month.
func addMonthsClamped(from, base time.Time, n int) time.Time {
	from = from.In(base.Location())
	first := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, base.Location()).AddDate(0, n, 0)
	day := base.Day()
	if last := daysIn(first.Year(), first.Month(), base.Location()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, base.Hour(), base.Minute(), base.Second(), base.Nanosecond(), base.Location())
}

func daysIn(y int, m time.Month, loc *time.Location) int {
	// Day 0 of the following month is the last day of m.
	return time.Date(y, m+1, 0, 0, 0, 0, 0, loc).Day()
}

func withClock(date time.Time, clock time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, clock.Hour(), clock.Minute(), clock.Second(), clock.Nanosecond(), clock.Location())
}

// ParseWeekday accepts 0-6 (Sunday first) or an English day name/abbreviation.
func ParseWeekday(raw string) (time.Weekday, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	names := map[string]time.Weekday{
		"0": time.Sunday, "sun": time.Sunday, "sunday": time.Sunday,
		"1": time.Monday, "mon": time.Monday, "monday": time.Monday,
		"2": time.Tuesday, "tue": time.Tuesday, "tuesday": time.Tuesday,
		"3": time.Wednesday, "wed": time.Wednesday, "wednesday": time.Wednesday,
		"4": time.Thursday, "thu": time.Thursday, "thursday": time.Thursday,
		"5": time.Friday, "fri": time.Friday, "friday": time.Friday,
		"6": time.Saturday, "sat": time.Saturday, "saturday": time.Saturday,
	}
	if d, ok := names[s]; ok {
		return d, nil
	}
	return 0, fmt.Errorf("model: unknown weekday %q", raw)
}
