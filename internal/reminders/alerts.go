package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/sandeepkv93/taskd/internal/logx"
	"github.com/sandeepkv93/taskd/internal/model"
	"github.com/sandeepkv93/taskd/internal/scheduler"
)

// TriggerAlert fires an alert by hand. A pending alert armed for later is
// disarmed first so it cannot fire twice.
func (s *Service) TriggerAlert(ctx context.Context, instanceID, alertID string) (bool, error) {
	_, changed, err := s.mutate(ctx, instanceID, func(inst *model.TaskInstance, now time.Time) (bool, error) {
		return inst.TriggerAlert(alertID, now)
	})
	if err != nil {
		return false, err
	}
	if changed {
		s.engine.CancelAlarm(instanceID, alertID)
	}
	return changed, nil
}

// SnoozeAlert postpones a triggered or snoozed alert until the given time and
// re-arms it. A zero until means now plus the instance's snooze interval.
// Requests the state machine ignores report false without error.
func (s *Service) SnoozeAlert(ctx context.Context, instanceID, alertID string, until time.Time, reason string) (bool, error) {
	inst, changed, err := s.mutate(ctx, instanceID, func(inst *model.TaskInstance, now time.Time) (bool, error) {
		if until.IsZero() {
			until = now.Add(inst.Snooze.Interval())
		}
		if !until.After(now) {
			return false, fmt.Errorf("%w: %s", ErrSnoozeInPast, until.Format(time.RFC3339))
		}
		return inst.SnoozeAlert(alertID, now, until, reason)
	})
	if err != nil || !changed {
		return false, err
	}
	if inst.Reminder.Enabled {
		if err := s.engine.Schedule(scheduler.Alarm{InstanceID: inst.ID, AlertID: alertID, Title: inst.Title, FireAt: until}); err != nil {
			s.log.Warn("snoozed alert not re-armed", logx.String("instance_id", inst.ID), logx.String("alert_id", alertID), logx.Err(err))
		}
	}
	return true, nil
}

func (s *Service) DismissAlert(ctx context.Context, instanceID, alertID string) (bool, error) {
	_, changed, err := s.mutate(ctx, instanceID, func(inst *model.TaskInstance, now time.Time) (bool, error) {
		return inst.DismissAlert(alertID, now)
	})
	if err != nil {
		return false, err
	}
	if changed {
		s.engine.CancelAlarm(instanceID, alertID)
	}
	return changed, nil
}

// SetRemindersEnabled toggles delivery for an instance and arms or disarms
// its alerts to match.
func (s *Service) SetRemindersEnabled(ctx context.Context, instanceID string, enabled bool) error {
	inst, changed, err := s.mutate(ctx, instanceID, func(inst *model.TaskInstance, now time.Time) (bool, error) {
		was := inst.Reminder.Enabled
		inst.SetRemindersEnabled(enabled, now)
		return was != enabled, nil
	})
	if err != nil || !changed {
		return err
	}
	if enabled {
		s.engine.Register(inst)
	} else {
		s.engine.Cancel(inst.ID)
	}
	return nil
}
