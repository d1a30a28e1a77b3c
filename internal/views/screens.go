package views

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/sandeepkv93/taskd/internal/model"
	"github.com/sandeepkv93/taskd/internal/scheduler"
)

const timeLayout = "Mon Jan 2 15:04"

// RenderInstances groups instances into Overdue, Today, Later and Done
// sections, each ordered by scheduled time.
func RenderInstances(instances []model.TaskInstance, now time.Time) string {
	sections := map[string][]model.TaskInstance{}
	for _, in := range instances {
		k := bucket(in, now)
		sections[k] = append(sections[k], in)
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("instances: %d\n", len(instances)))
	for _, name := range []string{"Overdue", "Today", "Later", "Done"} {
		items := sections[name]
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].Time.ScheduledTime.Before(items[j].Time.ScheduledTime)
		})
		renderSection(&b, name, items, now)
	}
	return strings.TrimSpace(b.String())
}

func bucket(in model.TaskInstance, now time.Time) string {
	switch {
	case in.Status.IsTerminal():
		return "Done"
	case in.Status == model.StatusOverdue:
		return "Overdue"
	}
	y, m, d := now.Date()
	ty, tm, td := in.Time.ScheduledTime.In(now.Location()).Date()
	if y == ty && m == tm && d == td {
		return "Today"
	}
	return "Later"
}

func renderSection(b *strings.Builder, title string, items []model.TaskInstance, now time.Time) {
	b.WriteString(fmt.Sprintf("\n%s:\n", title))
	if len(items) == 0 {
		b.WriteString("  (none)\n")
		return
	}
	for _, in := range items {
		line := fmt.Sprintf("%s %s %s @%s", statusBadge(in), in.ID, in.Title, in.Time.ScheduledTime.In(now.Location()).Format(timeLayout))
		if n := pendingAlerts(in); n > 0 {
			line += fmt.Sprintf(" alerts:%d", n)
		}
		if !in.Reminder.Enabled {
			line += " (muted)"
		}
		b.WriteString(line + "\n")
	}
}

func pendingAlerts(in model.TaskInstance) int {
	n := 0
	for _, a := range in.Reminder.Alerts {
		if a.Armable() {
			n++
		}
	}
	return n
}

func statusBadge(in model.TaskInstance) string {
	switch in.Status {
	case model.StatusOverdue:
		return errorStyle.Render("[OVERDUE]")
	case model.StatusInProgress:
		return warnStyle.Render("[ACTIVE]")
	case model.StatusCompleted:
		return dimStyle.Render("[DONE]")
	case model.StatusCancelled:
		return dimStyle.Render("[CANCELLED]")
	default:
		return statusStyle.Render("[PENDING]")
	}
}

// RenderUpcoming tabulates armed alarms in fire order with a relative
// countdown.
func RenderUpcoming(alarms []scheduler.Alarm, now time.Time) string {
	if len(alarms) == 0 {
		return "upcoming reminders: 0\n  (nothing armed)"
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("FIRES", "IN", "TASK", "INSTANCE", "ALERT")
	for _, a := range alarms {
		t.Row(
			a.FireAt.In(now.Location()).Format(timeLayout),
			humanize.RelTime(a.FireAt, now, "ago", "from now"),
			a.Title,
			a.InstanceID,
			a.AlertID,
		)
	}
	return fmt.Sprintf("upcoming reminders: %d\n%s", len(alarms), t.String())
}

// RenderOccurrences previews the next occurrences of a rule.
func RenderOccurrences(rule model.RecurrenceRule, occurrences []time.Time) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("rule: %s\n", rule))
	if len(occurrences) == 0 {
		b.WriteString("no further occurrences")
		return b.String()
	}
	b.WriteString("next:\n")
	for _, at := range occurrences {
		b.WriteString("- " + at.Format(timeLayout+" 2006 MST") + "\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// InstanceMarkdown describes one instance for RenderMarkdown.
func InstanceMarkdown(in model.TaskInstance, now time.Time) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("# %s\n\n", in.Title))
	if in.Description != "" {
		b.WriteString(in.Description + "\n\n")
	}
	b.WriteString(fmt.Sprintf("- **id:** `%s`\n", in.ID))
	if in.TemplateID != "" {
		b.WriteString(fmt.Sprintf("- **template:** `%s`\n", in.TemplateID))
	}
	b.WriteString(fmt.Sprintf("- **status:** %s\n", in.Status))
	b.WriteString(fmt.Sprintf("- **scheduled:** %s (%s)\n",
		in.Time.ScheduledTime.Format(timeLayout), humanize.RelTime(in.Time.ScheduledTime, now, "ago", "from now")))
	if in.Time.EndTime != nil {
		b.WriteString(fmt.Sprintf("- **ends:** %s\n", in.Time.EndTime.Format(timeLayout)))
	}
	if !in.Time.OriginalTime.IsZero() && !in.Time.OriginalTime.Equal(in.Time.ScheduledTime) {
		b.WriteString(fmt.Sprintf("- **originally:** %s\n", in.Time.OriginalTime.Format(timeLayout)))
	}
	if in.Time.AllowReschedule {
		b.WriteString(fmt.Sprintf("- **reschedulable:** up to %d days late\n", in.Time.MaxDelayDays))
	}

	b.WriteString("\n## Reminders\n\n")
	if !in.Reminder.Enabled {
		b.WriteString("_muted_\n\n")
	}
	if len(in.Reminder.Alerts) == 0 {
		b.WriteString("none\n")
		return b.String()
	}
	b.WriteString("| alert | timing | fires | status | snoozes |\n|---|---|---|---|---|\n")
	for _, a := range in.Reminder.Alerts {
		b.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %d |\n",
			a.ID, model.DescribeTiming(a.Config.Timing), a.ScheduledTime.Format(timeLayout), a.Status, len(a.SnoozeHistory)))
	}
	return b.String()
}
