package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidStatus        = errors.New("model: invalid instance status")
	ErrRescheduleNotAllowed = errors.New("model: reschedule not allowed")
	ErrRescheduleTooFar     = errors.New("model: reschedule beyond max delay")
	ErrRescheduleInPast     = errors.New("model: reschedule time already passed")
)

type InstanceStatus string

const (
	StatusPending    InstanceStatus = "pending"
	StatusInProgress InstanceStatus = "inProgress"
	StatusCompleted  InstanceStatus = "completed"
	StatusCancelled  InstanceStatus = "cancelled"
	StatusOverdue    InstanceStatus = "overdue"
)

func (s InstanceStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled, StatusOverdue:
		return true
	default:
		return false
	}
}

func (s InstanceStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsActive reports whether the status blocks overlapping instances.
func (s InstanceStatus) IsActive() bool {
	return s == StatusPending || s == StatusInProgress
}

type TimeType string

const (
	TimeScheduled TimeType = "scheduled"
	TimeDeadline  TimeType = "deadline"
)

type TimeConfig struct {
	Type            TimeType
	ScheduledTime   time.Time
	EndTime         *time.Time
	OriginalTime    time.Time
	AllowReschedule bool
	MaxDelayDays    int
}

type ReminderStatus struct {
	Enabled           bool
	Alerts            []AlertState
	GlobalSnoozeCount int
}

// TaskInstance is one occurrence of a template with its own execution state.
type TaskInstance struct {
	ID          string
	TemplateID  string
	Title       string
	Description string
	Time        TimeConfig
	Status      InstanceStatus
	Reminder    ReminderStatus
	Snooze      SnoozeConfig
	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
}

func (i TaskInstance) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return errors.New("model: instance id is required")
	}
	if !i.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, i.Status)
	}
	if i.Time.ScheduledTime.IsZero() {
		return errors.New("model: instance scheduled time is required")
	}
	if i.Time.EndTime != nil && i.Time.EndTime.Before(i.Time.ScheduledTime) {
		return errors.New("model: instance end time is before scheduled time")
	}
	if i.Status == StatusCompleted && i.CompletedAt == nil {
		return errors.New("model: completed_at is required when instance is completed")
	}
	return nil
}

// Span is the closed interval the instance occupies. Instances without an end
// occupy a single instant.
func (i TaskInstance) Span() (start, end time.Time) {
	start = i.Time.ScheduledTime
	end = start
	if i.Time.EndTime != nil {
		end = *i.Time.EndTime
	}
	return start, end
}

// Alerts returns a copy of the alert states.
func (i TaskInstance) Alerts() []AlertState {
	out := make([]AlertState, 0, len(i.Reminder.Alerts))
	for _, a := range i.Reminder.Alerts {
		out = append(out, a.clone())
	}
	return out
}

// Alert returns a copy of one alert state.
func (i TaskInstance) Alert(alertID string) (AlertState, error) {
	for _, a := range i.Reminder.Alerts {
		if a.ID == alertID {
			return a.clone(), nil
		}
	}
	return AlertState{}, fmt.Errorf("%w: %s/%s", ErrAlertNotFound, i.ID, alertID)
}

// Clone returns a deep copy that shares no mutable state with i.
func (i TaskInstance) Clone() TaskInstance {
	out := i
	out.Reminder.Alerts = i.Alerts()
	if i.Time.EndTime != nil {
		t := *i.Time.EndTime
		out.Time.EndTime = &t
	}
	out.StartedAt = copyTime(i.StartedAt)
	out.CompletedAt = copyTime(i.CompletedAt)
	out.CancelledAt = copyTime(i.CancelledAt)
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func (i *TaskInstance) Start(now time.Time) error {
	if i.Status != StatusPending && i.Status != StatusOverdue {
		return i.badTransition(StatusInProgress)
	}
	i.Status = StatusInProgress
	i.StartedAt = &now
	i.UpdatedAt = now
	return nil
}

func (i *TaskInstance) Complete(now time.Time) error {
	if i.Status.IsTerminal() {
		return i.badTransition(StatusCompleted)
	}
	i.Status = StatusCompleted
	i.CompletedAt = &now
	i.UpdatedAt = now
	return nil
}

func (i *TaskInstance) Cancel(now time.Time) error {
	if i.Status.IsTerminal() {
		return i.badTransition(StatusCancelled)
	}
	i.Status = StatusCancelled
	i.CancelledAt = &now
	i.UpdatedAt = now
	return nil
}

// MarkOverdue flags a pending instance whose slot has passed. It reports
// whether the status changed.
func (i *TaskInstance) MarkOverdue(now time.Time) bool {
	if i.Status != StatusPending {
		return false
	}
	_, end := i.Span()
	if end.After(now) {
		return false
	}
	i.Status = StatusOverdue
	i.UpdatedAt = now
	return true
}

func (i TaskInstance) badTransition(to InstanceStatus) error {
	return fmt.Errorf("%w: instance %s cannot go from %s to %s", ErrInvalidTransition, i.ID, i.Status, to)
}

// Reschedule moves the instance to at. The move must stay within
// MaxDelayDays of the original slot. Relative alerts follow the new anchor and
// restart as pending; absolute alerts keep their configured time. Alerts whose
// fire time is no longer in the future are dropped.
func (i *TaskInstance) Reschedule(at, now time.Time) error {
	if i.Status.IsTerminal() {
		return fmt.Errorf("%w: instance %s is %s and cannot be rescheduled", ErrInvalidTransition, i.ID, i.Status)
	}
	if !i.Time.AllowReschedule {
		return fmt.Errorf("%w: instance %s", ErrRescheduleNotAllowed, i.ID)
	}
	if !at.After(now) {
		return fmt.Errorf("%w: %s", ErrRescheduleInPast, at.Format(time.RFC3339))
	}
	original := i.Time.OriginalTime
	if original.IsZero() {
		original = i.Time.ScheduledTime
	}
	if limit := original.AddDate(0, 0, i.Time.MaxDelayDays); at.After(limit) {
		return fmt.Errorf("%w: cannot reschedule beyond %d days", ErrRescheduleTooFar, i.Time.MaxDelayDays)
	}

	shift := at.Sub(i.Time.ScheduledTime)
	i.Time.OriginalTime = original
	i.Time.ScheduledTime = at
	if i.Time.EndTime != nil {
		end := i.Time.EndTime.Add(shift)
		i.Time.EndTime = &end
	}
	if i.Status == StatusOverdue {
		i.Status = StatusPending
	}

	kept := make([]AlertState, 0, len(i.Reminder.Alerts))
	for _, a := range i.Reminder.Alerts {
		if a.Config.Timing.IsRelative() {
			a = NewAlertState(a.Config, FireTime(a.Config.Timing, at))
		}
		if a.Armable() && !a.ScheduledTime.After(now) {
			continue
		}
		kept = append(kept, a)
	}
	i.Reminder.Alerts = kept
	i.UpdatedAt = now
	return nil
}

// alert detaches the alert slice before handing out a pointer into it, so
// copies of the instance never observe the mutation.
func (i *TaskInstance) alert(alertID string) (*AlertState, error) {
	i.Reminder.Alerts = i.Alerts()
	for idx := range i.Reminder.Alerts {
		if i.Reminder.Alerts[idx].ID == alertID {
			return &i.Reminder.Alerts[idx], nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrAlertNotFound, i.ID, alertID)
}

// TriggerAlert applies the trigger transition. changed is false when the
// alert was not in a triggerable state.
func (i *TaskInstance) TriggerAlert(alertID string, now time.Time) (changed bool, err error) {
	a, err := i.alert(alertID)
	if err != nil {
		return false, err
	}
	if changed = a.Trigger(now); changed {
		i.UpdatedAt = now
	}
	return changed, nil
}

func (i *TaskInstance) SnoozeAlert(alertID string, now, until time.Time, reason string) (changed bool, err error) {
	a, err := i.alert(alertID)
	if err != nil {
		return false, err
	}
	if changed = a.Snooze(i.Snooze, now, until, reason); changed {
		i.Reminder.GlobalSnoozeCount++
		i.UpdatedAt = now
	}
	return changed, nil
}

func (i *TaskInstance) DismissAlert(alertID string, now time.Time) (changed bool, err error) {
	a, err := i.alert(alertID)
	if err != nil {
		return false, err
	}
	if changed = a.Dismiss(now); changed {
		i.UpdatedAt = now
	}
	return changed, nil
}

// SetRemindersEnabled toggles delivery for every alert of the instance. Alert
// data is left untouched.
func (i *TaskInstance) SetRemindersEnabled(enabled bool, now time.Time) {
	if i.Reminder.Enabled == enabled {
		return
	}
	i.Reminder.Enabled = enabled
	i.UpdatedAt = now
}
