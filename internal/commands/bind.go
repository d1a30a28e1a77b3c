package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sandeepkv93/taskd/internal/model"
	"github.com/sandeepkv93/taskd/internal/reminders"
	"github.com/sandeepkv93/taskd/internal/storage"
)

// Target is what the command grammar drives. *reminders.Service satisfies it.
type Target interface {
	TriggerAlert(ctx context.Context, instanceID, alertID string) (bool, error)
	SnoozeAlert(ctx context.Context, instanceID, alertID string, until time.Time, reason string) (bool, error)
	DismissAlert(ctx context.Context, instanceID, alertID string) (bool, error)
	RescheduleInstance(ctx context.Context, instanceID string, at time.Time) (model.TaskInstance, error)
	StartInstance(ctx context.Context, instanceID string) error
	CompleteInstance(ctx context.Context, instanceID string) error
	CancelInstance(ctx context.Context, instanceID string) error
	SetRemindersEnabled(ctx context.Context, instanceID string, enabled bool) error
}

var _ Target = (*reminders.Service)(nil)

// Bind returns handlers that run every command against t. Domain rejections
// come back as *CommandError.
func Bind(ctx context.Context, t Target, clock model.Clock) Handlers {
	if clock == nil {
		clock = model.SystemClock{}
	}
	alertOp := func(verb string, op func(context.Context, string, string) (bool, error)) func(AlertArgs) (Result, error) {
		return func(a AlertArgs) (Result, error) {
			changed, err := op(ctx, a.InstanceID, a.AlertID)
			if err != nil {
				return Result{}, classify(err)
			}
			if !changed {
				return Result{Message: fmt.Sprintf("alert %s on %s: nothing to %s", a.AlertID, a.InstanceID, verb)}, nil
			}
			return Result{Message: fmt.Sprintf("alert %s on %s %sed", a.AlertID, a.InstanceID, verb)}, nil
		}
	}
	instanceOp := func(done string, op func(context.Context, string) error) func(InstanceArgs) (Result, error) {
		return func(a InstanceArgs) (Result, error) {
			if err := op(ctx, a.InstanceID); err != nil {
				return Result{}, classify(err)
			}
			return Result{Message: fmt.Sprintf("%s %s", a.InstanceID, done)}, nil
		}
	}

	return Handlers{
		Trigger: alertOp("trigger", t.TriggerAlert),
		Dismiss: alertOp("dismiss", t.DismissAlert),
		Snooze: func(a SnoozeArgs) (Result, error) {
			var until time.Time
			if a.When != "" {
				at, err := ResolveTime(a.When, clock.Now())
				if err != nil {
					return Result{}, err
				}
				until = at
			}
			changed, err := t.SnoozeAlert(ctx, a.InstanceID, a.AlertID, until, a.Reason)
			if err != nil {
				return Result{}, classify(err)
			}
			if !changed {
				return Result{Message: fmt.Sprintf("alert %s on %s cannot be snoozed", a.AlertID, a.InstanceID)}, nil
			}
			msg := fmt.Sprintf("alert %s on %s snoozed", a.AlertID, a.InstanceID)
			if !until.IsZero() {
				msg += " until " + humanize.RelTime(until, clock.Now(), "ago", "from now")
			}
			return Result{Message: msg}, nil
		},
		Reschedule: func(a RescheduleArgs) (Result, error) {
			at, err := ResolveTime(a.When, clock.Now())
			if err != nil {
				return Result{}, err
			}
			inst, err := t.RescheduleInstance(ctx, a.InstanceID, at)
			if err != nil {
				return Result{}, classify(err)
			}
			return Result{Message: fmt.Sprintf("%s moved to %s", inst.ID, inst.Time.ScheduledTime.Format("Mon 2006-01-02 15:04"))}, nil
		},
		Start:    instanceOp("started", t.StartInstance),
		Complete: instanceOp("completed", t.CompleteInstance),
		Cancel:   instanceOp("cancelled", t.CancelInstance),
		Remind: func(a RemindArgs) (Result, error) {
			if err := t.SetRemindersEnabled(ctx, a.InstanceID, a.Enabled); err != nil {
				return Result{}, classify(err)
			}
			state := "off"
			if a.Enabled {
				state = "on"
			}
			return Result{Message: fmt.Sprintf("reminders for %s turned %s", a.InstanceID, state)}, nil
		},
	}
}

func classify(err error) error {
	var ce *CommandError
	switch {
	case errors.As(err, &ce):
		return err
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, model.ErrAlertNotFound):
		return &CommandError{Code: ErrCodeNotFound, Message: err.Error()}
	case errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrRescheduleNotAllowed),
		errors.Is(err, model.ErrRescheduleTooFar),
		errors.Is(err, model.ErrRescheduleInPast),
		errors.Is(err, reminders.ErrSnoozeInPast):
		return &CommandError{Code: ErrCodeRejected, Message: err.Error()}
	default:
		return err
	}
}
