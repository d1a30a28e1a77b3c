package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidTransition   = errors.New("model: invalid status transition")
	ErrInvalidTemplate     = errors.New("model: invalid template")
	ErrInvalidAlertConfig  = errors.New("model: invalid alert config")
	ErrInvalidSnoozeConfig = errors.New("model: invalid snooze config")
)

type TemplateStatus string

const (
	TemplateDraft    TemplateStatus = "draft"
	TemplateActive   TemplateStatus = "active"
	TemplatePaused   TemplateStatus = "paused"
	TemplateArchived TemplateStatus = "archived"
)

func (s TemplateStatus) IsValid() bool {
	switch s {
	case TemplateDraft, TemplateActive, TemplatePaused, TemplateArchived:
		return true
	default:
		return false
	}
}

type BaseTime struct {
	Start           time.Time
	End             *time.Time
	DurationMinutes int
}

// Duration is the length of one occurrence. End wins over DurationMinutes.
func (b BaseTime) Duration() time.Duration {
	if b.End != nil && b.End.After(b.Start) {
		return b.End.Sub(b.Start)
	}
	if b.DurationMinutes > 0 {
		return time.Duration(b.DurationMinutes) * time.Minute
	}
	return 0
}

type AlertConfig struct {
	ID      string      `json:"id" yaml:"id"`
	Timing  AlertTiming `json:"timing" yaml:"timing"`
	Type    string      `json:"type" yaml:"type"`
	Message string      `json:"message,omitempty" yaml:"message,omitempty"`
}

func (a AlertConfig) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidAlertConfig)
	}
	switch a.Timing.Type {
	case TimingAbsolute:
		if a.Timing.At == nil || a.Timing.At.IsZero() {
			return fmt.Errorf("%w: %s: absolute timing needs a time", ErrInvalidAlertConfig, a.ID)
		}
	case TimingRelative:
		if a.Timing.MinutesBefore == nil || *a.Timing.MinutesBefore < 0 {
			return fmt.Errorf("%w: %s: relative timing needs minutes_before >= 0", ErrInvalidAlertConfig, a.ID)
		}
	case "":
	default:
		return fmt.Errorf("%w: %s: timing type %q", ErrInvalidAlertConfig, a.ID, a.Timing.Type)
	}
	return nil
}

type SnoozeConfig struct {
	Enabled         bool `json:"enabled" yaml:"enabled"`
	IntervalMinutes int  `json:"interval_minutes" yaml:"interval_minutes"`
	MaxCount        int  `json:"max_count" yaml:"max_count"`
}

// Interval is the default snooze length.
func (s SnoozeConfig) Interval() time.Duration {
	if s.IntervalMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(s.IntervalMinutes) * time.Minute
}

type ReminderConfig struct {
	Enabled bool          `json:"enabled" yaml:"enabled"`
	Alerts  []AlertConfig `json:"alerts" yaml:"alerts"`
	Snooze  SnoozeConfig  `json:"snooze" yaml:"snooze"`
}

type SchedulingPolicy struct {
	AllowReschedule  bool `json:"allow_reschedule" yaml:"allow_reschedule"`
	MaxDelayDays     int  `json:"max_delay_days" yaml:"max_delay_days"`
	SkipWeekends     bool `json:"skip_weekends" yaml:"skip_weekends"`
	SkipHolidays     bool `json:"skip_holidays" yaml:"skip_holidays"`
	WorkingHoursOnly bool `json:"working_hours_only" yaml:"working_hours_only"`
}

// TaskTemplate owns the scheduling policy of a recurring task. Instances are
// derived from it but live independently.
type TaskTemplate struct {
	ID          string
	Title       string
	Description string
	Status      TemplateStatus
	BaseTime    BaseTime
	Recurrence  RecurrenceRule
	Timezone    string
	Reminder    ReminderConfig
	Scheduling  SchedulingPolicy
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (t TaskTemplate) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidTemplate)
	}
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidTemplate)
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("%w: status %q", ErrInvalidTemplate, t.Status)
	}
	if t.BaseTime.Start.IsZero() {
		return fmt.Errorf("%w: base start time is required", ErrInvalidTemplate)
	}
	if t.BaseTime.End != nil && t.BaseTime.End.Before(t.BaseTime.Start) {
		return fmt.Errorf("%w: base end time is before start", ErrInvalidTemplate)
	}
	if err := t.Recurrence.Validate(); err != nil {
		return err
	}
	if _, err := t.Location(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	seen := make(map[string]bool, len(t.Reminder.Alerts))
	for _, a := range t.Reminder.Alerts {
		if err := a.Validate(); err != nil {
			return err
		}
		if seen[a.ID] {
			return fmt.Errorf("%w: duplicate alert id %q", ErrInvalidAlertConfig, a.ID)
		}
		seen[a.ID] = true
	}
	if s := t.Reminder.Snooze; s.Enabled && s.MaxCount <= 0 {
		return fmt.Errorf("%w: max_count must be positive when snooze is enabled", ErrInvalidSnoozeConfig)
	}
	if t.Scheduling.MaxDelayDays < 0 {
		return fmt.Errorf("%w: max_delay_days must be >= 0", ErrInvalidTemplate)
	}
	return nil
}

// Location resolves Timezone; empty means UTC.
func (t TaskTemplate) Location() (*time.Location, error) {
	tz := strings.TrimSpace(t.Timezone)
	if tz == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(tz)
}

func (t *TaskTemplate) Activate(now time.Time) error {
	return t.transition(now, TemplateActive, TemplateDraft)
}

func (t *TaskTemplate) Pause(now time.Time) error {
	return t.transition(now, TemplatePaused, TemplateActive)
}

func (t *TaskTemplate) Resume(now time.Time) error {
	return t.transition(now, TemplateActive, TemplatePaused)
}

func (t *TaskTemplate) Archive(now time.Time) error {
	return t.transition(now, TemplateArchived, TemplateDraft, TemplateActive, TemplatePaused)
}

func (t *TaskTemplate) transition(now time.Time, to TemplateStatus, from ...TemplateStatus) error {
	for _, s := range from {
		if t.Status == s {
			t.Status = to
			t.UpdatedAt = now
			return nil
		}
	}
	return fmt.Errorf("%w: template %s cannot go from %s to %s", ErrInvalidTransition, t.ID, t.Status, to)
}
