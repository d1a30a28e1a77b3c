package model

import (
	"errors"
	"time"
)

var ErrAlertNotFound = errors.New("model: alert not found")

type AlertStatus string

const (
	AlertPending   AlertStatus = "pending"
	AlertTriggered AlertStatus = "triggered"
	AlertSnoozed   AlertStatus = "snoozed"
	AlertDismissed AlertStatus = "dismissed"
)

func (s AlertStatus) IsTerminal() bool { return s == AlertDismissed }

type SnoozeRecord struct {
	SnoozedAt   time.Time `json:"snoozed_at"`
	SnoozeUntil time.Time `json:"snooze_until"`
	Reason      string    `json:"reason,omitempty"`
}

// AlertState is the lifecycle of one alert inside an instance:
//
//	pending   --trigger-->  triggered
//	triggered --snooze-->   snoozed
//	snoozed   --snooze-->   snoozed   (up to snooze.MaxCount)
//	snoozed   --trigger-->  triggered (snooze elapsed)
//	triggered|snoozed --dismiss--> dismissed
//
// Requests that do not match a transition are ignored and report false.
type AlertState struct {
	ID            string         `json:"id"`
	Config        AlertConfig    `json:"config"`
	Status        AlertStatus    `json:"status"`
	ScheduledTime time.Time      `json:"scheduled_time"`
	TriggeredAt   *time.Time     `json:"triggered_at,omitempty"`
	DismissedAt   *time.Time     `json:"dismissed_at,omitempty"`
	SnoozeHistory []SnoozeRecord `json:"snooze_history,omitempty"`
}

func NewAlertState(cfg AlertConfig, fireAt time.Time) AlertState {
	return AlertState{
		ID:            cfg.ID,
		Config:        cfg,
		Status:        AlertPending,
		ScheduledTime: fireAt,
	}
}

// Armable reports whether the alert still waits for a fire time.
func (a AlertState) Armable() bool {
	return a.Status == AlertPending || a.Status == AlertSnoozed
}

func (a *AlertState) Trigger(now time.Time) bool {
	if a.Status != AlertPending && a.Status != AlertSnoozed {
		return false
	}
	a.Status = AlertTriggered
	at := now
	a.TriggeredAt = &at
	return true
}

// Snooze moves a triggered or snoozed alert to snoozed until the given time.
// With snooze disabled, or once the history reaches MaxCount, it is a no-op.
func (a *AlertState) Snooze(cfg SnoozeConfig, now, until time.Time, reason string) bool {
	if a.Status != AlertTriggered && a.Status != AlertSnoozed {
		return false
	}
	if !cfg.Enabled || len(a.SnoozeHistory) >= cfg.MaxCount {
		return false
	}
	a.Status = AlertSnoozed
	a.ScheduledTime = until
	a.SnoozeHistory = append(a.SnoozeHistory, SnoozeRecord{SnoozedAt: now, SnoozeUntil: until, Reason: reason})
	return true
}

func (a *AlertState) Dismiss(now time.Time) bool {
	if a.Status != AlertTriggered && a.Status != AlertSnoozed {
		return false
	}
	a.Status = AlertDismissed
	at := now
	a.DismissedAt = &at
	return true
}

func (a AlertState) clone() AlertState {
	out := a
	if a.TriggeredAt != nil {
		t := *a.TriggeredAt
		out.TriggeredAt = &t
	}
	if a.DismissedAt != nil {
		t := *a.DismissedAt
		out.DismissedAt = &t
	}
	if a.SnoozeHistory != nil {
		out.SnoozeHistory = append([]SnoozeRecord(nil), a.SnoozeHistory...)
	}
	return out
}
