package templatefile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sandeepkv93/taskd/internal/logx"
	"github.com/sandeepkv93/taskd/internal/model"
	"github.com/sandeepkv93/taskd/internal/reminders"
	"github.com/sandeepkv93/taskd/internal/storage"
)

const sample = `
templates:
  - id: standup
    title: Daily standup
    start: 2025-01-06T09:30
    duration_minutes: 15
    timezone: Europe/Berlin
    recurrence:
      kind: weekly
      weekdays: [mon, wed, fri]
      count: 6
    reminders:
      alerts:
        - id: heads-up
          minutes_before: 10
          message: grab a coffee
        - id: fixed
          at: 2025-01-06T07:00
      snooze: {enabled: true, interval_minutes: 5, max_count: 3}
    scheduling: {allow_reschedule: true, max_delay_days: 2, skip_weekends: true}
  - id: rent
    title: Pay rent
    status: paused
    start: 2025-01-31T10:00:00Z
    recurrence: {kind: monthly, until: 2025-12-31}
    reminders:
      enabled: false
`

func TestParseAndConvert(t *testing.T) {
	f, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(f.Templates) != 2 {
		t.Fatalf("templates = %d, want 2", len(f.Templates))
	}

	standup, err := f.Templates[0].Convert()
	if err != nil {
		t.Fatalf("convert standup: %v", err)
	}
	berlin, _ := time.LoadLocation("Europe/Berlin")
	if want := time.Date(2025, 1, 6, 9, 30, 0, 0, berlin); !standup.BaseTime.Start.Equal(want) {
		t.Fatalf("start = %s, want %s", standup.BaseTime.Start, want)
	}
	if standup.Status != model.TemplateActive || !standup.Reminder.Enabled {
		t.Fatalf("unexpected defaults: status=%s enabled=%v", standup.Status, standup.Reminder.Enabled)
	}
	weekly, ok := standup.Recurrence.Pattern.(model.Weekly)
	if !ok || len(weekly.Weekdays) != 3 || weekly.Interval != 1 {
		t.Fatalf("unexpected pattern: %#v", standup.Recurrence.Pattern)
	}
	if standup.Recurrence.End != model.EndsAfter(6) {
		t.Fatalf("unexpected end: %#v", standup.Recurrence.End)
	}
	if len(standup.Reminder.Alerts) != 2 {
		t.Fatalf("alerts = %d, want 2", len(standup.Reminder.Alerts))
	}
	if a := standup.Reminder.Alerts[0]; !a.Timing.IsRelative() || *a.Timing.MinutesBefore != 10 || a.Message != "grab a coffee" {
		t.Fatalf("unexpected relative alert: %#v", a)
	}
	if a := standup.Reminder.Alerts[1]; a.Timing.Type != model.TimingAbsolute || a.Timing.At.Hour() != 7 {
		t.Fatalf("unexpected absolute alert: %#v", a)
	}
	if !standup.Scheduling.SkipWeekends || standup.Scheduling.MaxDelayDays != 2 {
		t.Fatalf("unexpected scheduling: %#v", standup.Scheduling)
	}

	rent, err := f.Templates[1].Convert()
	if err != nil {
		t.Fatalf("convert rent: %v", err)
	}
	if rent.Status != model.TemplatePaused || rent.Reminder.Enabled {
		t.Fatalf("unexpected rent: status=%s enabled=%v", rent.Status, rent.Reminder.Enabled)
	}
	if rent.Recurrence.End.Kind != model.EndOnDate || rent.Recurrence.End.Date.Month() != time.December {
		t.Fatalf("unexpected rent end: %#v", rent.Recurrence.End)
	}
}

func TestParseRejectsUnknownKeysAndEmptyFiles(t *testing.T) {
	if _, err := Parse([]byte("templates:\n  - id: x\n    colour: red\n")); err == nil {
		t.Fatal("expected unknown key error")
	}
	if _, err := Parse([]byte("templates: []\n")); !errors.Is(err, ErrNoTemplates) {
		t.Fatalf("expected ErrNoTemplates, got %v", err)
	}
}

func TestConvertRejectsBadEntries(t *testing.T) {
	five := 5
	cases := map[string]Template{
		"bad start":     {ID: "a", Title: "A", Start: "yesterday", Recurrence: Recurrence{Kind: "daily"}},
		"bad tz":        {ID: "a", Title: "A", Start: "2025-01-01", Timezone: "Nowhere/Land", Recurrence: Recurrence{Kind: "daily"}},
		"bad kind":      {ID: "a", Title: "A", Start: "2025-01-01", Recurrence: Recurrence{Kind: "hourly"}},
		"until & count": {ID: "a", Title: "A", Start: "2025-01-01", Recurrence: Recurrence{Kind: "daily", Until: "2025-02-01", Count: 3}},
		"both timings":  {ID: "a", Title: "A", Start: "2025-01-01", Reminders: Reminders{Alerts: []Alert{{ID: "x", MinutesBefore: &five, At: "2025-01-01"}}}},
		"no title":      {ID: "a", Start: "2025-01-01"},
	}
	for name, tpl := range cases {
		if _, err := tpl.Convert(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func newService(t *testing.T) *reminders.Service {
	t.Helper()
	svc, err := reminders.New(reminders.Options{
		Repo:   storage.NewMemoryRepository(),
		Clock:  model.NewManualClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		Logger: logx.Nop(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestImportSkipsInvalidAndKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	path := filepath.Join(t.TempDir(), "templates.yaml")
	writeFile(t, path, sample+`
  - id: broken
    title: Broken
    start: 2025-01-01
    recurrence: {kind: weekly, weekdays: [someday]}
`)

	res, err := Import(ctx, path, svc, logx.Nop())
	if err == nil {
		t.Fatal("expected joined error for the broken entry")
	}
	if len(res.Imported) != 2 || len(res.Skipped) != 1 || res.Skipped[0] != "broken" {
		t.Fatalf("unexpected result: %#v", res)
	}
	first, err := svc.Template(ctx, "standup")
	if err != nil {
		t.Fatalf("get standup: %v", err)
	}

	if _, err := Import(ctx, path, svc, logx.Nop()); err == nil {
		t.Fatal("expected joined error on re-import")
	}
	again, err := svc.Template(ctx, "standup")
	if err != nil {
		t.Fatalf("get standup: %v", err)
	}
	if !again.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("created_at changed: %s -> %s", first.CreatedAt, again.CreatedAt)
	}
}

func TestReimportKeepsStoredStatus(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	path := filepath.Join(t.TempDir(), "templates.yaml")
	writeFile(t, path, sample)

	if _, err := Import(ctx, path, svc, logx.Nop()); err != nil {
		t.Fatalf("import: %v", err)
	}
	if err := svc.SetTemplateStatus(ctx, "standup", model.TemplatePaused); err != nil {
		t.Fatalf("pause standup: %v", err)
	}
	if err := svc.SetTemplateStatus(ctx, "rent", model.TemplateActive); err != nil {
		t.Fatalf("resume rent: %v", err)
	}

	if _, err := Import(ctx, path, svc, logx.Nop()); err != nil {
		t.Fatalf("re-import: %v", err)
	}
	for id, want := range map[string]model.TemplateStatus{"standup": model.TemplatePaused, "rent": model.TemplateActive} {
		got, err := svc.Template(ctx, id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if got.Status != want {
			t.Fatalf("%s: status after re-import = %s, want %s", id, got.Status, want)
		}
	}
}

func TestWatcherFiresOnContentChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	writeFile(t, path, sample)

	var calls atomic.Int32
	changed := make(chan struct{}, 4)
	w := &Watcher{
		Path:     path,
		Debounce: 20 * time.Millisecond,
		Log:      logx.Nop(),
		OnChange: func(context.Context) {
			calls.Add(1)
			select {
			case changed <- struct{}{}:
			default:
			}
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	deadline := time.After(3 * time.Second)
	for {
		// Keep rewriting until the watcher is up and reports a change.
		writeFile(t, path, sample+"\n# edit "+time.Now().String()+"\n")
		select {
		case <-changed:
		case <-time.After(100 * time.Millisecond):
			continue
		case <-deadline:
			t.Fatal("timed out waiting for change callback")
		}
		break
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
	if calls.Load() == 0 {
		t.Fatal("expected at least one callback")
	}
}
