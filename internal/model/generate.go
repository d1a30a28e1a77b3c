package model

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/sandeepkv93/taskd/internal/logx"
)

const (
	DefaultGenerateCount = 7
	MaxGenerateCount     = 366

	// maxWalkSteps bounds the walk when policy filters reject most occurrences.
	maxWalkSteps = 10 * MaxGenerateCount
)

type DateRange struct {
	Start time.Time
	End   time.Time
}

// WorkingHours is the half-open hour window [Start, End) used by the
// working-hours-only policy.
type WorkingHours struct {
	Start int
	End   int
}

func DefaultWorkingHours() WorkingHours { return WorkingHours{Start: 9, End: 18} }

func (w WorkingHours) contains(t time.Time) bool {
	if w.Start == 0 && w.End == 0 {
		w = DefaultWorkingHours()
	}
	h := t.Hour()
	return h >= w.Start && h < w.End
}

type GenerateOptions struct {
	// Count caps the number of produced instances. Zero means
	// DefaultGenerateCount without a range and MaxGenerateCount with one.
	Count        int
	Range        *DateRange
	WorkingHours WorkingHours
}

// Generator turns templates into task instances.
type Generator struct {
	clock Clock
	log   logx.Logger
	newID func() string
}

func NewGenerator(clock Clock, log logx.Logger) *Generator {
	if clock == nil {
		clock = SystemClock{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Generator{clock: clock, log: log, newID: uuid.NewString}
}

// Occurrences walks the template's rule from its base start. The base start
// is the first occurrence. AfterCount limits rule occurrences, including ones
// later dropped by the scheduling policy; Count limits accepted ones. Rules
// without AfterCount start the walk at the range instead of at base.
func (g *Generator) Occurrences(tpl TaskTemplate, opts GenerateOptions) []time.Time {
	log := g.log.With(logx.String("template_id", tpl.ID))
	loc, err := tpl.Location()
	if err != nil {
		log.Warn("template time zone invalid; skipping", logx.String("tz", tpl.Timezone), logx.Err(err))
		return nil
	}
	rule := tpl.Recurrence
	if err := rule.Validate(); err != nil {
		log.Warn("template recurrence invalid; skipping", logx.Err(err))
		return nil
	}
	if tpl.Scheduling.SkipHolidays {
		log.Debug("skip_holidays has no holiday calendar configured; ignoring")
	}

	limit := opts.Count
	if limit <= 0 {
		limit = DefaultGenerateCount
		if opts.Range != nil {
			limit = MaxGenerateCount
		}
	}
	if limit > MaxGenerateCount {
		limit = MaxGenerateCount
	}
	ruleLimit := math.MaxInt
	if rule.End.Kind == EndAfterN {
		ruleLimit = rule.End.Count
	}

	base := tpl.BaseTime.Start.In(loc)
	if rule.End.Kind == EndOnDate && base.After(rule.End.Date) {
		return nil
	}

	cur, ok := base, true
	if opts.Range != nil && ruleLimit == math.MaxInt {
		// Without a count to honour, start near the window instead of at base.
		if cur, ok = seedBefore(rule, base, opts.Range.Start); !ok {
			return nil
		}
	}

	out := make([]time.Time, 0, min(limit, 32))
	steps := 0
	for ; ok && len(out) < limit && steps < ruleLimit && steps < maxWalkSteps; steps++ {
		if opts.Range != nil && cur.After(opts.Range.End) {
			break
		}
		if rule.End.Kind == EndOnDate && cur.After(rule.End.Date) {
			break
		}
		if g.accept(tpl, opts, cur) {
			out = append(out, cur)
		}
		var next time.Time
		next, ok = NextOccurrence(rule, base, cur)
		if ok && !next.After(cur) {
			log.Warn("recurrence did not advance; stopping", logx.Time("at", cur))
			break
		}
		cur = next
	}
	if steps == maxWalkSteps {
		log.Warn("occurrence walk hit its step cap; later occurrences not generated",
			logx.Int("steps", steps), logx.Int("accepted", len(out)), logx.Time("stopped_at", cur))
	}
	return out
}

func (g *Generator) accept(tpl TaskTemplate, opts GenerateOptions, at time.Time) bool {
	if opts.Range != nil && at.Before(opts.Range.Start) {
		return false
	}
	if tpl.Scheduling.SkipWeekends {
		if wd := at.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return false
		}
	}
	if tpl.Scheduling.WorkingHoursOnly && !opts.WorkingHours.contains(at) {
		return false
	}
	return true
}

// Generate produces one pending instance per accepted occurrence. Only active
// templates generate. Alerts whose fire time is not in the future are not
// created.
func (g *Generator) Generate(tpl TaskTemplate, opts GenerateOptions) []TaskInstance {
	if tpl.Status != TemplateActive {
		g.log.Debug("template not active; nothing to generate", logx.String("template_id", tpl.ID), logx.String("status", string(tpl.Status)))
		return nil
	}
	occurrences := g.Occurrences(tpl, opts)
	now := g.clock.Now()
	out := make([]TaskInstance, 0, len(occurrences))
	for _, at := range occurrences {
		out = append(out, g.NewInstance(tpl, at, now))
	}
	return out
}

// NewInstance binds one occurrence of tpl to fresh execution state.
func (g *Generator) NewInstance(tpl TaskTemplate, at, now time.Time) TaskInstance {
	inst := TaskInstance{
		ID:          g.newID(),
		TemplateID:  tpl.ID,
		Title:       tpl.Title,
		Description: tpl.Description,
		Time: TimeConfig{
			Type:            TimeDeadline,
			ScheduledTime:   at,
			OriginalTime:    at,
			AllowReschedule: tpl.Scheduling.AllowReschedule,
			MaxDelayDays:    tpl.Scheduling.MaxDelayDays,
		},
		Status:    StatusPending,
		Reminder:  ReminderStatus{Enabled: tpl.Reminder.Enabled},
		Snooze:    tpl.Reminder.Snooze,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if d := tpl.BaseTime.Duration(); d > 0 {
		end := at.Add(d)
		inst.Time.Type = TimeScheduled
		inst.Time.EndTime = &end
	}

	for _, cfg := range tpl.Reminder.Alerts {
		cfg = copyAlertConfig(cfg)
		fireAt := FireTime(cfg.Timing, at)
		if !fireAt.After(now) {
			g.log.Debug("alert fire time already passed; dropping",
				logx.String("instance_id", inst.ID), logx.String("alert_id", cfg.ID), logx.Time("fire_at", fireAt))
			continue
		}
		inst.Reminder.Alerts = append(inst.Reminder.Alerts, NewAlertState(cfg, fireAt))
	}
	return inst
}

func copyAlertConfig(cfg AlertConfig) AlertConfig {
	if cfg.Timing.At != nil {
		at := *cfg.Timing.At
		cfg.Timing.At = &at
	}
	if cfg.Timing.MinutesBefore != nil {
		m := *cfg.Timing.MinutesBefore
		cfg.Timing.MinutesBefore = &m
	}
	return cfg
}
