package model

import (
	"fmt"
	"testing"
	"time"

	"github.com/sandeepkv93/taskd/internal/logx"
)

func testTemplate(t *testing.T, rule RecurrenceRule) TaskTemplate {
	t.Helper()
	return TaskTemplate{
		ID:         "tpl-1",
		Title:      "Standup",
		Status:     TemplateActive,
		BaseTime:   BaseTime{Start: mustTime(t, "2025-01-01T09:00"), DurationMinutes: 15},
		Recurrence: rule,
		Reminder: ReminderConfig{
			Enabled: true,
			Alerts:  []AlertConfig{{ID: "a1", Timing: Relative(15), Type: "notification"}},
			Snooze:  SnoozeConfig{Enabled: true, IntervalMinutes: 5, MaxCount: 2},
		},
	}
}

func testGenerator(now time.Time) *Generator {
	g := NewGenerator(NewManualClock(now), logx.Nop())
	n := 0
	g.newID = func() string {
		n++
		return fmt.Sprintf("inst-%d", n)
	}
	return g
}

func TestGenerateStopsAtAfterCount(t *testing.T) {
	tpl := testTemplate(t, RecurrenceRule{Pattern: Daily{Interval: 1}, End: EndsAfter(3)})
	g := testGenerator(mustTime(t, "2024-12-31T00:00"))

	got := g.Generate(tpl, GenerateOptions{Count: 5})
	if len(got) != 3 {
		t.Fatalf("expected 3 instances, got %d", len(got))
	}
	want := []string{"2025-01-01 09:00", "2025-01-02 09:00", "2025-01-03 09:00"}
	for i, inst := range got {
		if s := inst.Time.ScheduledTime.Format("2006-01-02 15:04"); s != want[i] {
			t.Fatalf("instance %d: expected %s, got %s", i, want[i], s)
		}
		if inst.Status != StatusPending || inst.TemplateID != "tpl-1" {
			t.Fatalf("instance %d: unexpected state %#v", i, inst)
		}
		if inst.Time.EndTime == nil || inst.Time.EndTime.Sub(inst.Time.ScheduledTime) != 15*time.Minute {
			t.Fatalf("instance %d: expected 15 minute span", i)
		}
	}
}

func TestGenerateRelativeAlertFiresBeforeSlot(t *testing.T) {
	tpl := testTemplate(t, RecurrenceRule{Pattern: Once{}, End: NeverEnds()})
	g := testGenerator(mustTime(t, "2024-12-31T00:00"))

	got := g.Generate(tpl, GenerateOptions{})
	if len(got) != 1 {
		t.Fatalf("expected one instance, got %d", len(got))
	}
	alerts := got[0].Alerts()
	if len(alerts) != 1 {
		t.Fatalf("expected one alert, got %d", len(alerts))
	}
	if s := alerts[0].ScheduledTime.Format("2006-01-02 15:04"); s != "2025-01-01 08:45" {
		t.Fatalf("unexpected alert time: %s", s)
	}
	if alerts[0].Status != AlertPending {
		t.Fatalf("expected pending alert, got %s", alerts[0].Status)
	}
}

func TestGenerateDropsAlertsAlreadyDue(t *testing.T) {
	tpl := testTemplate(t, RecurrenceRule{Pattern: Daily{Interval: 1}, End: EndsAfter(2)})
	g := testGenerator(mustTime(t, "2025-01-01T08:50"))

	got := g.Generate(tpl, GenerateOptions{})
	if len(got) != 2 {
		t.Fatalf("expected 2 instances, got %d", len(got))
	}
	if n := len(got[0].Reminder.Alerts); n != 0 {
		t.Fatalf("expected first instance alert to be dropped, got %d", n)
	}
	if n := len(got[1].Reminder.Alerts); n != 1 {
		t.Fatalf("expected second instance to keep its alert, got %d", n)
	}
}

func TestGenerateRequiresActiveTemplate(t *testing.T) {
	tpl := testTemplate(t, RecurrenceRule{Pattern: Daily{Interval: 1}, End: NeverEnds()})
	tpl.Status = TemplatePaused
	g := testGenerator(mustTime(t, "2024-12-31T00:00"))
	if got := g.Generate(tpl, GenerateOptions{}); len(got) != 0 {
		t.Fatalf("expected paused template to generate nothing, got %d", len(got))
	}
}

func TestGenerateDefaultAndMaxCount(t *testing.T) {
	tpl := testTemplate(t, RecurrenceRule{Pattern: Daily{Interval: 1}, End: NeverEnds()})
	g := testGenerator(mustTime(t, "2024-12-31T00:00"))

	if got := g.Occurrences(tpl, GenerateOptions{}); len(got) != DefaultGenerateCount {
		t.Fatalf("expected default count %d, got %d", DefaultGenerateCount, len(got))
	}
	if got := g.Occurrences(tpl, GenerateOptions{Count: 10_000}); len(got) != MaxGenerateCount {
		t.Fatalf("expected cap %d, got %d", MaxGenerateCount, len(got))
	}
}

func TestGenerateIsDeterministicForSameInputs(t *testing.T) {
	tpl := testTemplate(t, RecurrenceRule{Pattern: Weekly{Interval: 1, Weekdays: []time.Weekday{time.Monday, time.Thursday}}, End: NeverEnds()})
	now := mustTime(t, "2024-12-31T00:00")

	first := testGenerator(now).Generate(tpl, GenerateOptions{Count: 6})
	second := testGenerator(now).Generate(tpl, GenerateOptions{Count: 6})
	if len(first) != len(second) {
		t.Fatalf("length mismatch: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].Time.ScheduledTime.Equal(second[i].Time.ScheduledTime) {
			t.Fatalf("instance %d differs: %s vs %s", i, first[i].Time.ScheduledTime, second[i].Time.ScheduledTime)
		}
		if len(first[i].Reminder.Alerts) != len(second[i].Reminder.Alerts) {
			t.Fatalf("instance %d alert count differs", i)
		}
	}
}

func TestGenerateSkipsWeekends(t *testing.T) {
	tpl := testTemplate(t, RecurrenceRule{Pattern: Daily{Interval: 1}, End: NeverEnds()})
	tpl.BaseTime.Start = mustTime(t, "2025-01-03T09:00") // Friday
	tpl.Scheduling.SkipWeekends = true
	g := testGenerator(mustTime(t, "2024-12-31T00:00"))

	got := g.Occurrences(tpl, GenerateOptions{Count: 3})
	want := []string{"2025-01-03", "2025-01-06", "2025-01-07"}
	if len(got) != len(want) {
		t.Fatalf("expected %d occurrences, got %d", len(want), len(got))
	}
	for i := range want {
		if s := got[i].Format("2006-01-02"); s != want[i] {
			t.Fatalf("occurrence %d: expected %s, got %s", i, want[i], s)
		}
	}
}

func TestGenerateAfterCountIncludesSkippedOccurrences(t *testing.T) {
	tpl := testTemplate(t, RecurrenceRule{Pattern: Daily{Interval: 1}, End: EndsAfter(3)})
	tpl.BaseTime.Start = mustTime(t, "2025-01-03T09:00") // Friday, Sat, Sun
	tpl.Scheduling.SkipWeekends = true
	g := testGenerator(mustTime(t, "2024-12-31T00:00"))

	if got := g.Occurrences(tpl, GenerateOptions{Count: 5}); len(got) != 1 {
		t.Fatalf("expected only the Friday occurrence, got %d", len(got))
	}
}

func TestGenerateWorkingHoursOnly(t *testing.T) {
	tpl := testTemplate(t, RecurrenceRule{Pattern: Daily{Interval: 1}, End: EndsAfter(2)})
	tpl.BaseTime.Start = mustTime(t, "2025-01-01T20:00")
	tpl.Scheduling.WorkingHoursOnly = true
	g := testGenerator(mustTime(t, "2024-12-31T00:00"))

	if got := g.Occurrences(tpl, GenerateOptions{}); len(got) != 0 {
		t.Fatalf("expected evening occurrences to be filtered, got %d", len(got))
	}
	if got := g.Occurrences(tpl, GenerateOptions{WorkingHours: WorkingHours{Start: 18, End: 22}}); len(got) != 2 {
		t.Fatalf("expected custom window to accept both occurrences, got %d", len(got))
	}
}

func TestGenerateWithinRange(t *testing.T) {
	tpl := testTemplate(t, RecurrenceRule{Pattern: Daily{Interval: 1}, End: NeverEnds()})
	g := testGenerator(mustTime(t, "2024-12-31T00:00"))

	got := g.Occurrences(tpl, GenerateOptions{Range: &DateRange{
		Start: mustTime(t, "2025-01-10T00:00"),
		End:   mustTime(t, "2025-01-14T23:59"),
	}})
	if len(got) != 5 {
		t.Fatalf("expected 5 occurrences in range, got %d", len(got))
	}
	if s := got[0].Format("2006-01-02"); s != "2025-01-10" {
		t.Fatalf("unexpected first occurrence %s", s)
	}
}

// walkFromBase lists every occurrence in [start, end] by stepping from base.
func walkFromBase(rule RecurrenceRule, base, start, end time.Time) []time.Time {
	var out []time.Time
	for cur, ok := base, true; ok && !cur.After(end); cur, ok = NextOccurrence(rule, base, cur) {
		if !cur.Before(start) {
			out = append(out, cur)
		}
	}
	return out
}

func TestGenerateRangeFarFromBaseMatchesFullWalk(t *testing.T) {
	cases := map[string]struct {
		rule  RecurrenceRule
		base  string
		start string
		end   string
	}{
		"hourly cron 200 days on": {RecurrenceRule{Pattern: Custom{Expr: "0 * * * *"}, End: NeverEnds()}, "2024-11-13T09:00", "2025-06-01T00:30", "2025-06-02T00:30"},
		"every third day":         {RecurrenceRule{Pattern: Daily{Interval: 3}, End: NeverEnds()}, "2015-03-04T07:15", "2025-02-10T00:00", "2025-03-10T00:00"},
		"fortnightly mon wed":     {RecurrenceRule{Pattern: Weekly{Interval: 2, Weekdays: []time.Weekday{time.Wednesday, time.Monday}}, End: NeverEnds()}, "2015-01-07T09:00", "2025-01-01T00:00", "2025-02-15T00:00"},
		"weekly plain":            {RecurrenceRule{Pattern: Weekly{Interval: 3}, End: NeverEnds()}, "2016-05-05T18:00", "2025-01-01T00:00", "2025-04-01T00:00"},
		"month end":               {RecurrenceRule{Pattern: Monthly{Interval: 1}, End: NeverEnds()}, "2015-01-31T10:00", "2025-04-01T00:00", "2025-06-30T23:00"},
		"quarterly mid window":    {RecurrenceRule{Pattern: Monthly{Interval: 3}, End: NeverEnds()}, "2014-02-15T10:00", "2025-05-20T00:00", "2026-05-20T00:00"},
		"leap day yearly":         {RecurrenceRule{Pattern: Yearly{Interval: 1}, End: NeverEnds()}, "2012-02-29T08:00", "2025-01-01T00:00", "2029-01-01T00:00"},
		"ended before window":     {RecurrenceRule{Pattern: Daily{Interval: 1}, End: EndsOn(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))}, "2019-01-01T09:00", "2025-01-01T00:00", "2025-02-01T00:00"},
	}
	for name, tc := range cases {
		tpl := testTemplate(t, tc.rule)
		tpl.BaseTime.Start = mustTime(t, tc.base)
		start, end := mustTime(t, tc.start), mustTime(t, tc.end)

		got := testGenerator(start).Occurrences(tpl, GenerateOptions{Range: &DateRange{Start: start, End: end}})
		want := walkFromBase(tc.rule, tpl.BaseTime.Start, start, end)
		if len(got) != len(want) {
			t.Fatalf("%s: expected %d occurrences, got %d", name, len(want), len(got))
		}
		for i := range want {
			if !got[i].Equal(want[i]) {
				t.Fatalf("%s: occurrence %d: expected %s, got %s", name, i, want[i], got[i])
			}
		}
	}
}

func TestGenerateHourlyRuleKeepsProducingLongAfterBase(t *testing.T) {
	tpl := testTemplate(t, RecurrenceRule{Pattern: Custom{Expr: "0 * * * *"}, End: NeverEnds()})
	tpl.BaseTime.Start = mustTime(t, "2024-11-13T09:00")
	now := mustTime(t, "2025-06-01T00:30")

	got := testGenerator(now).Occurrences(tpl, GenerateOptions{Range: &DateRange{Start: now, End: now.Add(24 * time.Hour)}})
	if len(got) != 24 {
		t.Fatalf("expected 24 hourly occurrences, got %d", len(got))
	}
	if s := got[0].Format("2006-01-02 15:04"); s != "2025-06-01 01:00" {
		t.Fatalf("unexpected first occurrence %s", s)
	}
}

func TestFilterConflictsDropsOverlaps(t *testing.T) {
	span := func(id, start, end string, status InstanceStatus) TaskInstance {
		e := mustTime(t, end)
		return TaskInstance{ID: id, Status: status, Time: TimeConfig{ScheduledTime: mustTime(t, start), EndTime: &e}}
	}
	existing := []TaskInstance{
		span("busy", "2025-01-01T09:00", "2025-01-01T10:00", StatusPending),
		span("done", "2025-01-01T12:00", "2025-01-01T13:00", StatusCompleted),
	}
	candidates := []TaskInstance{
		span("c1", "2025-01-01T09:30", "2025-01-01T09:45", StatusPending),
		span("c2", "2025-01-01T10:00", "2025-01-01T10:30", StatusPending),
		span("c3", "2025-01-01T12:15", "2025-01-01T12:30", StatusPending),
		span("c4", "2025-01-01T14:00", "2025-01-01T15:00", StatusPending),
	}

	got := FilterConflicts(candidates, existing)
	if len(got) != 2 || got[0].ID != "c3" || got[1].ID != "c4" {
		ids := make([]string, 0, len(got))
		for _, c := range got {
			ids = append(ids, c.ID)
		}
		t.Fatalf("unexpected survivors: %v", ids)
	}
}
