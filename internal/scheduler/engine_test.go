package scheduler

import (
	"testing"
	"time"

	"github.com/sandeepkv93/taskd/internal/logx"
	"github.com/sandeepkv93/taskd/internal/model"
)

func newTestEngine(bufferSize int, clock model.Clock) *Engine {
	return NewEngine(bufferSize, clock, logx.Nop())
}

func instanceWithAlerts(id string, fireAts ...time.Time) model.TaskInstance {
	inst := model.TaskInstance{
		ID:       id,
		Title:    "task " + id,
		Status:   model.StatusPending,
		Reminder: model.ReminderStatus{Enabled: true},
	}
	for i, at := range fireAts {
		cfg := model.AlertConfig{ID: string(rune('a' + i)), Timing: model.Absolute(at)}
		inst.Reminder.Alerts = append(inst.Reminder.Alerts, model.NewAlertState(cfg, at))
	}
	return inst
}

func TestEngineEmitsInTriggerOrder(t *testing.T) {
	engine := newTestEngine(8, nil)
	engine.Start()
	defer engine.Stop()

	now := time.Now()
	if err := engine.Schedule(Alarm{InstanceID: "i1", AlertID: "later", FireAt: now.Add(80 * time.Millisecond)}); err != nil {
		t.Fatalf("schedule later: %v", err)
	}
	if err := engine.Schedule(Alarm{InstanceID: "i1", AlertID: "sooner", FireAt: now.Add(20 * time.Millisecond)}); err != nil {
		t.Fatalf("schedule sooner: %v", err)
	}

	first := waitAlarm(t, engine.C(), time.Second)
	second := waitAlarm(t, engine.C(), time.Second)
	if first.AlertID != "sooner" || second.AlertID != "later" {
		t.Fatalf("unexpected order: first=%s second=%s", first.AlertID, second.AlertID)
	}
	if engine.Armed("i1") != 0 {
		t.Fatalf("fired alarms should leave the instance index, got %d", engine.Armed("i1"))
	}
}

func TestEngineNonBlockingDropsWhenConsumerIsSlow(t *testing.T) {
	engine := newTestEngine(1, nil)
	engine.Start()
	defer engine.Stop()

	at := time.Now().Add(20 * time.Millisecond)
	for i := 0; i < 25; i++ {
		if err := engine.Schedule(Alarm{InstanceID: "i1", AlertID: string(rune('a' + i)), FireAt: at}); err != nil {
			t.Fatalf("schedule alarm: %v", err)
		}
	}

	time.Sleep(120 * time.Millisecond)
	if engine.Dropped() == 0 {
		t.Fatalf("expected dropped alarms > 0, got %d", engine.Dropped())
	}
}

func TestScheduleValidatesTriggerTime(t *testing.T) {
	engine := newTestEngine(1, nil)
	if err := engine.Schedule(Alarm{InstanceID: "i1", AlertID: "bad"}); err != ErrInvalidTriggerTime {
		t.Fatalf("expected ErrInvalidTriggerTime, got %v", err)
	}
	engine.Stop()
	if err := engine.Schedule(Alarm{InstanceID: "i1", AlertID: "a", FireAt: time.Now()}); err != ErrStopped {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestScheduleReplacesSameKey(t *testing.T) {
	engine := newTestEngine(1, nil)
	now := time.Now()
	_ = engine.Schedule(Alarm{InstanceID: "i1", AlertID: "a", FireAt: now.Add(time.Hour)})
	_ = engine.Schedule(Alarm{InstanceID: "i1", AlertID: "a", FireAt: now.Add(time.Minute)})

	if engine.Len() != 1 {
		t.Fatalf("expected a single armed alarm, got %d", engine.Len())
	}
	up := engine.Upcoming(2 * time.Minute)
	if len(up) != 1 || !up[0].FireAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("expected replaced fire time, got %#v", up)
	}
}

func TestRegisterNeverArmsPastAlerts(t *testing.T) {
	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	engine := newTestEngine(4, model.NewManualClock(now))

	inst := instanceWithAlerts("i1", now.Add(-time.Minute), now, now.Add(time.Hour))
	if armed := engine.Register(inst); armed != 1 {
		t.Fatalf("expected one armed alert, got %d", armed)
	}
	up := engine.Upcoming(24 * time.Hour)
	if len(up) != 1 || up[0].AlertID != "c" {
		t.Fatalf("unexpected upcoming: %#v", up)
	}
}

func TestRegisterArmsLapsedSnoozeAsDue(t *testing.T) {
	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	engine := newTestEngine(4, model.NewManualClock(now))

	inst := instanceWithAlerts("i1", now.Add(-10*time.Minute), now.Add(-10*time.Minute))
	inst.Snooze = model.SnoozeConfig{Enabled: true, MaxCount: 3}
	if _, err := inst.TriggerAlert("a", now.Add(-10*time.Minute)); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	lapsed := now.Add(-3 * time.Minute)
	if _, err := inst.SnoozeAlert("a", now.Add(-5*time.Minute), lapsed, ""); err != nil {
		t.Fatalf("snooze: %v", err)
	}

	if armed := engine.Register(inst); armed != 1 {
		t.Fatalf("expected only the snoozed alert to arm, got %d", armed)
	}
	up := engine.Upcoming(0)
	if len(up) != 1 || up[0].AlertID != "a" || !up[0].FireAt.Equal(lapsed) {
		t.Fatalf("unexpected upcoming: %#v", up)
	}
}

func TestRegisterSkipsInactiveReminders(t *testing.T) {
	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	engine := newTestEngine(4, model.NewManualClock(now))

	disabled := instanceWithAlerts("i1", now.Add(time.Hour))
	disabled.Reminder.Enabled = false
	if armed := engine.Register(disabled); armed != 0 {
		t.Fatalf("disabled reminders must not arm, got %d", armed)
	}

	done := instanceWithAlerts("i2", now.Add(time.Hour))
	done.Status = model.StatusCompleted
	if armed := engine.Register(done); armed != 0 {
		t.Fatalf("completed instance must not arm, got %d", armed)
	}

	dismissed := instanceWithAlerts("i3", now.Add(time.Hour))
	dismissed.Reminder.Alerts[0].Status = model.AlertDismissed
	if armed := engine.Register(dismissed); armed != 0 {
		t.Fatalf("dismissed alert must not arm, got %d", armed)
	}
}

func TestCancelRemovesEveryAlarmOfInstance(t *testing.T) {
	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	engine := newTestEngine(4, model.NewManualClock(now))

	engine.Register(instanceWithAlerts("i1", now.Add(time.Hour), now.Add(2*time.Hour)))
	engine.Register(instanceWithAlerts("i2", now.Add(90*time.Minute)))

	if removed := engine.Cancel("i1"); removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if engine.Cancel("i1") != 0 {
		t.Fatal("second cancel should be a no-op")
	}
	up := engine.Upcoming(24 * time.Hour)
	if len(up) != 1 || up[0].InstanceID != "i2" {
		t.Fatalf("unexpected remaining alarms: %#v", up)
	}
	if !engine.CancelAlarm("i2", "a") || engine.Len() != 0 {
		t.Fatal("expected single alarm cancel to empty the queue")
	}
}

func TestReinitializeRebuildsFromInstances(t *testing.T) {
	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	engine := newTestEngine(4, model.NewManualClock(now))

	engine.Register(instanceWithAlerts("stale", now.Add(time.Hour)))
	armed := engine.Reinitialize([]model.TaskInstance{
		instanceWithAlerts("i1", now.Add(30*time.Minute)),
		instanceWithAlerts("i2", now.Add(-30*time.Minute), now.Add(45*time.Minute)),
	})
	if armed != 2 {
		t.Fatalf("expected 2 armed, got %d", armed)
	}
	if engine.Armed("stale") != 0 {
		t.Fatal("stale alarms should be gone after reinitialize")
	}
	up := engine.Upcoming(time.Hour)
	if len(up) != 2 || up[0].InstanceID != "i1" || up[1].InstanceID != "i2" {
		t.Fatalf("unexpected upcoming order: %#v", up)
	}
}

func TestUpcomingHonorsWindow(t *testing.T) {
	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	engine := newTestEngine(4, model.NewManualClock(now))
	engine.Register(instanceWithAlerts("i1", now.Add(10*time.Minute), now.Add(3*time.Hour)))

	if got := engine.Upcoming(time.Hour); len(got) != 1 {
		t.Fatalf("expected one alarm within an hour, got %d", len(got))
	}
	if got := engine.Upcoming(4 * time.Hour); len(got) != 2 {
		t.Fatalf("expected two alarms within four hours, got %d", len(got))
	}
}

func TestSnoozedAlertRearmsAndFires(t *testing.T) {
	engine := newTestEngine(4, nil)
	engine.Start()
	defer engine.Stop()

	now := time.Now()
	inst := instanceWithAlerts("i1", now.Add(-time.Minute))
	inst.Snooze = model.SnoozeConfig{Enabled: true, MaxCount: 3}
	if _, err := inst.TriggerAlert("a", now); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if _, err := inst.SnoozeAlert("a", now, now.Add(30*time.Millisecond), ""); err != nil {
		t.Fatalf("snooze: %v", err)
	}
	if armed := engine.Register(inst); armed != 1 {
		t.Fatalf("expected snoozed alert to arm, got %d", armed)
	}
	got := waitAlarm(t, engine.C(), time.Second)
	if got.Key() != "i1/a" {
		t.Fatalf("unexpected alarm %s", got.Key())
	}
}

func waitAlarm(t *testing.T, ch <-chan Alarm, timeout time.Duration) Alarm {
	t.Helper()
	select {
	case a := <-ch:
		return a
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for alarm")
		return Alarm{}
	}
}
