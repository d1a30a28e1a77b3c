package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/taskd/internal/logx"
	"github.com/sandeepkv93/taskd/internal/model"
	"github.com/sandeepkv93/taskd/internal/scheduler"
	"github.com/sandeepkv93/taskd/internal/storage"
)

// Run consumes alarms from the scheduler until ctx is done or the scheduler
// stops. Each alarm is handled on its own goroutine; Run waits for them
// before returning.
func (s *Service) Run(ctx context.Context) {
	defer s.inflight.Wait()
	alarms := s.engine.C()
	for {
		select {
		case <-ctx.Done():
			return
		case a, ok := <-alarms:
			if !ok {
				return
			}
			s.inflight.Add(1)
			go func() {
				defer s.inflight.Done()
				if err := s.Fire(ctx, a); err != nil {
					s.log.Error("reminder delivery failed",
						logx.String("instance_id", a.InstanceID), logx.String("alert_id", a.AlertID), logx.Err(err))
				}
			}()
		}
	}
}

// Fire triggers the alert behind an alarm and hands it to the notifier. The
// trigger is persisted before delivery, so a delivery failure leaves the
// alert triggered. Alarms for alerts that are gone or no longer armable are
// dropped quietly. An alarm whose fire time no longer matches the stored
// alert is stale: it never triggers, and the instance is re-registered so the
// alert fires at its current time.
func (s *Service) Fire(ctx context.Context, a scheduler.Alarm) error {
	log := s.log.With(logx.String("instance_id", a.InstanceID), logx.String("alert_id", a.AlertID))

	var (
		alert model.AlertState
		stale bool
	)
	inst, changed, err := s.mutate(ctx, a.InstanceID, func(inst *model.TaskInstance, now time.Time) (bool, error) {
		if !inst.Reminder.Enabled || inst.Status.IsTerminal() {
			return false, nil
		}
		current, err := inst.Alert(a.AlertID)
		if err != nil {
			return false, err
		}
		if !current.ScheduledTime.Equal(a.FireAt) {
			alert, stale = current, true
			return false, nil
		}
		changed, err := inst.TriggerAlert(a.AlertID, now)
		if err != nil || !changed {
			return false, err
		}
		alert, err = inst.Alert(a.AlertID)
		return true, err
	})
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, model.ErrAlertNotFound):
		log.Debug("alarm for missing alert ignored")
		return nil
	case err != nil:
		return err
	case stale:
		// Another process moved the alert; arm its current fire time instead.
		log.Debug("stale alarm ignored", logx.Time("fire_at", a.FireAt), logx.Time("scheduled", alert.ScheduledTime))
		s.engine.Register(inst)
		return nil
	case !changed:
		log.Debug("alarm ignored; alert not armable", logx.String("status", string(inst.Status)))
		return nil
	}

	title, body := message(inst, alert)
	if err := s.notifier.Notify(ctx, alert.ID, title, body); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	log.Info("reminder delivered", logx.Time("fire_at", a.FireAt))
	return nil
}

func message(inst model.TaskInstance, alert model.AlertState) (title, body string) {
	title = inst.Title
	body = alert.Config.Message
	if body == "" {
		body = "due " + model.FormatUntil(alert.ScheduledTime, inst.Time.ScheduledTime)
		if !inst.Time.ScheduledTime.After(alert.ScheduledTime) {
			body = "due now"
		}
	}
	return title, body
}
