// Package templatefile reads recurring task definitions from a YAML file and
// imports them into taskd's storage.
//
// A file looks like:
//
//	templates:
//	  - id: standup
//	    title: Daily standup
//	    start: 2025-01-06T09:30
//	    duration_minutes: 15
//	    timezone: Europe/Berlin
//	    recurrence: {kind: weekly, weekdays: [mon, tue, wed, thu, fri]}
//	    reminders:
//	      alerts:
//	        - {id: heads-up, minutes_before: 10}
package templatefile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"github.com/sandeepkv93/taskd/internal/model"
)

var ErrNoTemplates = errors.New("templatefile: no templates defined")

type File struct {
	Templates []Template `yaml:"templates"`
}

type Template struct {
	ID              string                 `yaml:"id"`
	Title           string                 `yaml:"title"`
	Description     string                 `yaml:"description,omitempty"`
	Status          string                 `yaml:"status,omitempty"`
	Start           string                 `yaml:"start"`
	End             string                 `yaml:"end,omitempty"`
	DurationMinutes int                    `yaml:"duration_minutes,omitempty"`
	Timezone        string                 `yaml:"timezone,omitempty"`
	Recurrence      Recurrence             `yaml:"recurrence"`
	Reminders       Reminders              `yaml:"reminders"`
	Scheduling      model.SchedulingPolicy `yaml:"scheduling"`
}

type Recurrence struct {
	Kind     string   `yaml:"kind"`
	Interval int      `yaml:"interval,omitempty"`
	Weekdays []string `yaml:"weekdays,omitempty"`
	Expr     string   `yaml:"expr,omitempty"`
	Until    string   `yaml:"until,omitempty"`
	Count    int      `yaml:"count,omitempty"`
}

type Reminders struct {
	// Enabled defaults to true.
	Enabled *bool              `yaml:"enabled,omitempty"`
	Alerts  []Alert            `yaml:"alerts,omitempty"`
	Snooze  model.SnoozeConfig `yaml:"snooze"`
}

// Alert sets exactly one of MinutesBefore or At.
type Alert struct {
	ID            string `yaml:"id"`
	Type          string `yaml:"type,omitempty"`
	MinutesBefore *int   `yaml:"minutes_before,omitempty"`
	At            string `yaml:"at,omitempty"`
	Message       string `yaml:"message,omitempty"`
}

// Load reads and decodes path. Unknown keys are rejected.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	return Parse(data)
}

func Parse(data []byte) (File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return File{}, fmt.Errorf("templatefile: decode: %w", err)
	}
	if len(f.Templates) == 0 {
		return File{}, ErrNoTemplates
	}
	return f, nil
}

// Convert turns a file entry into a validated model template.
func (t Template) Convert() (model.TaskTemplate, error) {
	loc := time.UTC
	if tz := strings.TrimSpace(t.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return model.TaskTemplate{}, fmt.Errorf("%s: timezone: %w", t.ID, err)
		}
		loc = l
	}

	start, err := parseTime(t.Start, loc)
	if err != nil {
		return model.TaskTemplate{}, fmt.Errorf("%s: start: %w", t.ID, err)
	}
	base := model.BaseTime{Start: start, DurationMinutes: t.DurationMinutes}
	if t.End != "" {
		end, err := parseTime(t.End, loc)
		if err != nil {
			return model.TaskTemplate{}, fmt.Errorf("%s: end: %w", t.ID, err)
		}
		base.End = &end
	}

	rule, err := t.Recurrence.rule(loc)
	if err != nil {
		return model.TaskTemplate{}, fmt.Errorf("%s: recurrence: %w", t.ID, err)
	}

	reminder := model.ReminderConfig{Enabled: true, Snooze: t.Reminders.Snooze}
	if t.Reminders.Enabled != nil {
		reminder.Enabled = *t.Reminders.Enabled
	}
	for _, a := range t.Reminders.Alerts {
		cfg, err := a.config(loc)
		if err != nil {
			return model.TaskTemplate{}, fmt.Errorf("%s: alert %s: %w", t.ID, a.ID, err)
		}
		reminder.Alerts = append(reminder.Alerts, cfg)
	}

	status := model.TemplateStatus(strings.ToLower(strings.TrimSpace(t.Status)))
	if status == "" {
		status = model.TemplateActive
	}

	tpl := model.TaskTemplate{
		ID:          strings.TrimSpace(t.ID),
		Title:       strings.TrimSpace(t.Title),
		Description: t.Description,
		Status:      status,
		BaseTime:    base,
		Recurrence:  rule,
		Timezone:    strings.TrimSpace(t.Timezone),
		Reminder:    reminder,
		Scheduling:  t.Scheduling,
	}
	if err := tpl.Validate(); err != nil {
		return model.TaskTemplate{}, fmt.Errorf("%s: %w", t.ID, err)
	}
	return tpl, nil
}

func (r Recurrence) rule(loc *time.Location) (model.RecurrenceRule, error) {
	spec := model.RecurrenceSpec{
		Kind:     r.Kind,
		Interval: r.Interval,
		Weekdays: r.Weekdays,
		Expr:     r.Expr,
	}
	switch {
	case r.Until != "" && r.Count > 0:
		return model.RecurrenceRule{}, fmt.Errorf("%w: until and count are mutually exclusive", model.ErrInvalidEndCondition)
	case r.Until != "":
		until, err := parseTime(r.Until, loc)
		if err != nil {
			return model.RecurrenceRule{}, err
		}
		spec.End = model.EndSpec{Kind: string(model.EndOnDate), Date: &until}
	case r.Count > 0:
		spec.End = model.EndSpec{Kind: string(model.EndAfterN), Count: r.Count}
	}
	return model.ParseRecurrence(spec)
}

func (a Alert) config(loc *time.Location) (model.AlertConfig, error) {
	cfg := model.AlertConfig{ID: strings.TrimSpace(a.ID), Type: a.Type, Message: a.Message}
	if cfg.Type == "" {
		cfg.Type = "notification"
	}
	switch {
	case a.MinutesBefore != nil && a.At != "":
		return model.AlertConfig{}, errors.New("set minutes_before or at, not both")
	case a.At != "":
		at, err := parseTime(a.At, loc)
		if err != nil {
			return model.AlertConfig{}, err
		}
		cfg.Timing = model.Absolute(at)
	case a.MinutesBefore != nil:
		cfg.Timing = model.Relative(*a.MinutesBefore)
	default:
		cfg.Timing = model.Relative(0)
	}
	return cfg, nil
}

var layouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTime accepts RFC 3339 or a zone-less local time read in loc.
func parseTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("time is required")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", raw)
}
