package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RecurrenceSpec is the flat data shape of a RecurrenceRule as it appears in
// storage and template files.
type RecurrenceSpec struct {
	Kind     string   `json:"kind" yaml:"kind"`
	Interval int      `json:"interval,omitempty" yaml:"interval,omitempty"`
	Weekdays []string `json:"weekdays,omitempty" yaml:"weekdays,omitempty"`
	Expr     string   `json:"expr,omitempty" yaml:"expr,omitempty"`
	End      EndSpec  `json:"end" yaml:"end"`
}

type EndSpec struct {
	Kind  string     `json:"kind,omitempty" yaml:"kind,omitempty"`
	Date  *time.Time `json:"date,omitempty" yaml:"date,omitempty"`
	Count int        `json:"count,omitempty" yaml:"count,omitempty"`
}

// ParseRecurrence converts a spec into a validated rule. An empty kind means
// "none"; an empty end kind means the rule never ends. A missing interval
// defaults to 1.
func ParseRecurrence(spec RecurrenceSpec) (RecurrenceRule, error) {
	interval := spec.Interval
	if interval == 0 {
		interval = 1
	}

	var rule RecurrenceRule
	switch RecurrenceKind(strings.ToLower(strings.TrimSpace(spec.Kind))) {
	case "", RecurrenceNone:
		rule.Pattern = Once{}
	case RecurrenceDaily:
		rule.Pattern = Daily{Interval: interval}
	case RecurrenceWeekly:
		days := make([]time.Weekday, 0, len(spec.Weekdays))
		for _, raw := range spec.Weekdays {
			d, err := ParseWeekday(raw)
			if err != nil {
				return RecurrenceRule{}, err
			}
			days = append(days, d)
		}
		rule.Pattern = Weekly{Interval: interval, Weekdays: days}
	case RecurrenceMonthly:
		rule.Pattern = Monthly{Interval: interval}
	case RecurrenceYearly:
		rule.Pattern = Yearly{Interval: interval}
	case RecurrenceCustom:
		rule.Pattern = Custom{Expr: strings.TrimSpace(spec.Expr)}
	default:
		return RecurrenceRule{}, fmt.Errorf("%w: %q", ErrInvalidRecurrenceType, spec.Kind)
	}

	switch EndKind(strings.ToLower(strings.TrimSpace(spec.End.Kind))) {
	case "", EndNever:
		rule.End = NeverEnds()
	case EndOnDate:
		if spec.End.Date == nil {
			return RecurrenceRule{}, fmt.Errorf("%w: end date is required", ErrInvalidEndCondition)
		}
		rule.End = EndsOn(*spec.End.Date)
	case EndAfterN:
		rule.End = EndsAfter(spec.End.Count)
	default:
		return RecurrenceRule{}, fmt.Errorf("%w: %q", ErrInvalidEndCondition, spec.End.Kind)
	}

	if err := rule.Validate(); err != nil {
		return RecurrenceRule{}, err
	}
	return rule, nil
}

// Spec flattens the rule back into its data shape.
func (r RecurrenceRule) Spec() RecurrenceSpec {
	out := RecurrenceSpec{Kind: string(r.Kind()), End: EndSpec{Kind: string(r.End.Kind)}}
	switch p := r.Pattern.(type) {
	case Daily:
		out.Interval = p.Interval
	case Weekly:
		out.Interval = p.Interval
		for _, d := range p.Weekdays {
			out.Weekdays = append(out.Weekdays, strings.ToLower(d.String()[:3]))
		}
	case Monthly:
		out.Interval = p.Interval
	case Yearly:
		out.Interval = p.Interval
	case Custom:
		out.Expr = p.Expr
	}
	switch r.End.Kind {
	case EndOnDate:
		d := r.End.Date
		out.End.Date = &d
	case EndAfterN:
		out.End.Count = r.End.Count
	}
	return out
}

func (r RecurrenceRule) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Spec())
}

func (r *RecurrenceRule) UnmarshalJSON(b []byte) error {
	var spec RecurrenceSpec
	if err := json.Unmarshal(b, &spec); err != nil {
		return err
	}
	rule, err := ParseRecurrence(spec)
	if err != nil {
		return err
	}
	*r = rule
	return nil
}

// String renders the rule for humans, e.g. "every 2 weeks on mon, wed".
func (r RecurrenceRule) String() string {
	var b strings.Builder
	switch p := r.Pattern.(type) {
	case Once:
		b.WriteString("once")
	case Daily:
		b.WriteString(every(p.Interval, "day"))
	case Weekly:
		b.WriteString(every(p.Interval, "week"))
		if spec := r.Spec(); len(spec.Weekdays) > 0 {
			b.WriteString(" on " + strings.Join(spec.Weekdays, ", "))
		}
	case Monthly:
		b.WriteString(every(p.Interval, "month"))
	case Yearly:
		b.WriteString(every(p.Interval, "year"))
	case Custom:
		b.WriteString("cron " + p.Expr)
	default:
		return "invalid"
	}
	switch r.End.Kind {
	case EndOnDate:
		b.WriteString(" until " + r.End.Date.Format("2006-01-02"))
	case EndAfterN:
		fmt.Fprintf(&b, " for %d occurrences", r.End.Count)
	}
	return b.String()
}

func every(n int, unit string) string {
	if n == 1 {
		return "every " + unit
	}
	return fmt.Sprintf("every %d %ss", n, unit)
}
