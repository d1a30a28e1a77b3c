package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sandeepkv93/taskd/internal/model"
)

func setupRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "taskd-test.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := MigrateUp(db); err != nil {
		t.Fatalf("migrate up: %v", err)
	}

	repo, err := NewSQLiteRepository(db)
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	return repo
}

func parseRFC3339(t *testing.T, value string) time.Time {
	t.Helper()
	out, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	return out
}

func sampleTemplate(t *testing.T) model.TaskTemplate {
	t.Helper()
	created := parseRFC3339(t, "2026-02-09T12:00:00Z")
	end := parseRFC3339(t, "2026-06-30T00:00:00Z")
	return model.TaskTemplate{
		ID:          "tpl-1",
		Title:       "Water plants",
		Description: "balcony and kitchen",
		Status:      model.TemplateActive,
		BaseTime:    model.BaseTime{Start: parseRFC3339(t, "2026-02-10T08:00:00Z"), DurationMinutes: 20},
		Recurrence: model.RecurrenceRule{
			Pattern: model.Weekly{Interval: 1, Weekdays: []time.Weekday{time.Tuesday, time.Friday}},
			End:     model.EndsOn(end),
		},
		Timezone: "Europe/Berlin",
		Reminder: model.ReminderConfig{
			Enabled: true,
			Alerts:  []model.AlertConfig{{ID: "a1", Timing: model.Relative(30), Type: "notification", Message: "get the can"}},
			Snooze:  model.SnoozeConfig{Enabled: true, IntervalMinutes: 10, MaxCount: 3},
		},
		Scheduling: model.SchedulingPolicy{AllowReschedule: true, MaxDelayDays: 2, SkipWeekends: true},
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func sampleInstance(t *testing.T, id, templateID, at string, status model.InstanceStatus) model.TaskInstance {
	t.Helper()
	scheduled := parseRFC3339(t, at)
	end := scheduled.Add(20 * time.Minute)
	fire := scheduled.Add(-30 * time.Minute)
	return model.TaskInstance{
		ID:         id,
		TemplateID: templateID,
		Title:      "Water plants",
		Status:     status,
		Time: model.TimeConfig{
			Type:            model.TimeScheduled,
			ScheduledTime:   scheduled,
			EndTime:         &end,
			OriginalTime:    scheduled,
			AllowReschedule: true,
			MaxDelayDays:    2,
		},
		Reminder: model.ReminderStatus{
			Enabled: true,
			Alerts:  []model.AlertState{model.NewAlertState(model.AlertConfig{ID: "a1", Timing: model.Relative(30)}, fire)},
		},
		Snooze:    model.SnoozeConfig{Enabled: true, IntervalMinutes: 10, MaxCount: 3},
		CreatedAt: parseRFC3339(t, "2026-02-09T12:00:00Z"),
		UpdatedAt: parseRFC3339(t, "2026-02-09T12:00:00Z"),
	}
}

func repositories(t *testing.T) map[string]Repository {
	return map[string]Repository{
		"sqlite": setupRepo(t),
		"memory": NewMemoryRepository(),
	}
}

func TestTemplateSaveGetList(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tpl := sampleTemplate(t)
			if err := repo.SaveTemplate(ctx, tpl); err != nil {
				t.Fatalf("save template: %v", err)
			}

			got, err := repo.GetTemplate(ctx, tpl.ID)
			if err != nil {
				t.Fatalf("get template: %v", err)
			}
			if got.Title != tpl.Title || got.Timezone != "Europe/Berlin" || got.Recurrence.String() != tpl.Recurrence.String() {
				t.Fatalf("unexpected template get result: %#v", got)
			}
			if len(got.Reminder.Alerts) != 1 || got.Reminder.Alerts[0].Message != "get the can" {
				t.Fatalf("unexpected reminder config: %#v", got.Reminder)
			}
			if !got.Scheduling.SkipWeekends || got.BaseTime.Duration() != 20*time.Minute {
				t.Fatalf("unexpected scheduling/base time: %#v %#v", got.Scheduling, got.BaseTime)
			}

			tpl.Status = model.TemplatePaused
			if err := repo.SaveTemplate(ctx, tpl); err != nil {
				t.Fatalf("upsert template: %v", err)
			}
			paused, err := repo.ListTemplates(ctx, TemplateListFilter{Status: model.TemplatePaused})
			if err != nil {
				t.Fatalf("list templates: %v", err)
			}
			if len(paused) != 1 || paused[0].ID != tpl.ID {
				t.Fatalf("unexpected paused list: %#v", paused)
			}
			active, _ := repo.ListTemplates(ctx, TemplateListFilter{Status: model.TemplateActive})
			if len(active) != 0 {
				t.Fatalf("expected no active templates, got %d", len(active))
			}

			if _, err := repo.GetTemplate(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got: %v", err)
			}
		})
	}
}

func TestInstanceCRUDAndList(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := repo.SaveTemplate(ctx, sampleTemplate(t)); err != nil {
				t.Fatalf("save template: %v", err)
			}

			first := sampleInstance(t, "inst-1", "tpl-1", "2026-02-10T08:00:00Z", model.StatusPending)
			second := sampleInstance(t, "inst-2", "tpl-1", "2026-02-13T08:00:00Z", model.StatusPending)
			adhoc := sampleInstance(t, "inst-3", "", "2026-02-11T08:00:00Z", model.StatusInProgress)
			for _, in := range []model.TaskInstance{second, first, adhoc} {
				if err := repo.SaveInstance(ctx, in); err != nil {
					t.Fatalf("save instance %s: %v", in.ID, err)
				}
			}

			got, err := repo.GetInstance(ctx, "inst-1")
			if err != nil {
				t.Fatalf("get instance: %v", err)
			}
			if got.TemplateID != "tpl-1" || got.Time.EndTime == nil || !got.Time.EndTime.Equal(*first.Time.EndTime) {
				t.Fatalf("unexpected instance: %#v", got)
			}
			alert, err := got.Alert("a1")
			if err != nil || !alert.ScheduledTime.Equal(parseRFC3339(t, "2026-02-10T07:30:00Z")) {
				t.Fatalf("unexpected alert: %#v err=%v", alert, err)
			}

			if _, err := got.TriggerAlert("a1", parseRFC3339(t, "2026-02-10T07:30:00Z")); err != nil {
				t.Fatalf("trigger: %v", err)
			}
			if err := repo.UpdateInstance(ctx, got); err != nil {
				t.Fatalf("update instance: %v", err)
			}
			reloaded, _ := repo.GetInstance(ctx, "inst-1")
			if a, _ := reloaded.Alert("a1"); a.Status != model.AlertTriggered || a.TriggeredAt == nil {
				t.Fatalf("alert transition not persisted: %#v", a)
			}

			byTemplate, err := repo.FindInstancesByTemplateID(ctx, "tpl-1")
			if err != nil {
				t.Fatalf("find by template: %v", err)
			}
			if len(byTemplate) != 2 || byTemplate[0].ID != "inst-1" || byTemplate[1].ID != "inst-2" {
				t.Fatalf("unexpected template instances: %d", len(byTemplate))
			}

			pending, err := repo.ListInstances(ctx, InstanceListFilter{Statuses: []model.InstanceStatus{model.StatusPending}})
			if err != nil {
				t.Fatalf("list pending: %v", err)
			}
			if len(pending) != 2 {
				t.Fatalf("expected 2 pending instances, got %d", len(pending))
			}

			from := parseRFC3339(t, "2026-02-10T12:00:00Z")
			to := parseRFC3339(t, "2026-02-12T00:00:00Z")
			window, _ := repo.ListInstances(ctx, InstanceListFilter{From: &from, To: &to})
			if len(window) != 1 || window[0].ID != "inst-3" {
				t.Fatalf("unexpected window result: %d", len(window))
			}

			page, _ := repo.ListInstances(ctx, InstanceListFilter{Limit: 1, Offset: 1})
			if len(page) != 1 || page[0].ID != "inst-3" {
				t.Fatalf("unexpected page: %d", len(page))
			}

			if err := repo.DeleteInstance(ctx, "inst-3"); err != nil {
				t.Fatalf("delete instance: %v", err)
			}
			if err := repo.DeleteInstance(ctx, "inst-3"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got: %v", err)
			}
			if err := repo.UpdateInstance(ctx, adhoc); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound on update of deleted instance, got: %v", err)
			}
		})
	}
}

func TestDeleteTemplateCascadesToInstances(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := repo.SaveTemplate(ctx, sampleTemplate(t)); err != nil {
				t.Fatalf("save template: %v", err)
			}
			for _, in := range []model.TaskInstance{
				sampleInstance(t, "inst-1", "tpl-1", "2026-02-10T08:00:00Z", model.StatusPending),
				sampleInstance(t, "inst-2", "tpl-1", "2026-02-13T08:00:00Z", model.StatusCompleted),
				sampleInstance(t, "keep", "", "2026-02-13T09:00:00Z", model.StatusPending),
			} {
				if err := repo.SaveInstance(ctx, in); err != nil {
					t.Fatalf("save instance: %v", err)
				}
			}

			if err := repo.DeleteTemplate(ctx, "tpl-1"); err != nil {
				t.Fatalf("delete template: %v", err)
			}
			left, _ := repo.ListInstances(ctx, InstanceListFilter{})
			if len(left) != 1 || left[0].ID != "keep" {
				t.Fatalf("expected only the unrelated instance to remain, got %d", len(left))
			}
			if err := repo.DeleteTemplate(ctx, "tpl-1"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got: %v", err)
			}
		})
	}
}

func TestOpenSQLiteCreatesDirectoryAndSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "taskd.db")
	repo, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer repo.Close()

	if err := repo.SaveTemplate(context.Background(), sampleTemplate(t)); err != nil {
		t.Fatalf("save template on fresh db: %v", err)
	}
}
