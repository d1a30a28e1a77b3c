// Package reminders is the entry point other parts of taskd use to generate
// instances, drive alert state and keep the scheduler in sync with storage.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sandeepkv93/taskd/internal/logx"
	"github.com/sandeepkv93/taskd/internal/model"
	"github.com/sandeepkv93/taskd/internal/notify"
	"github.com/sandeepkv93/taskd/internal/scheduler"
	"github.com/sandeepkv93/taskd/internal/storage"
)

var ErrSnoozeInPast = errors.New("reminders: snooze time already passed")

type Options struct {
	Repo      storage.Repository
	Scheduler *scheduler.Engine
	Notifier  notify.Notifier
	Clock     model.Clock
	Logger    logx.Logger

	WorkingHours model.WorkingHours
	// AvoidConflicts drops generated instances that overlap active ones.
	AvoidConflicts bool
}

type Service struct {
	repo      storage.Repository
	engine    *scheduler.Engine
	notifier  notify.Notifier
	clock     model.Clock
	log       logx.Logger
	generator *model.Generator

	workingHours   model.WorkingHours
	avoidConflicts bool

	// mu serializes load-modify-save sequences on instances.
	mu       sync.Mutex
	inflight sync.WaitGroup
}

func New(opts Options) (*Service, error) {
	if opts.Repo == nil {
		return nil, errors.New("reminders: repository is required")
	}
	if opts.Clock == nil {
		opts.Clock = model.SystemClock{}
	}
	if opts.Logger.IsZero() {
		opts.Logger = logx.Nop()
	}
	log := opts.Logger.With(logx.String("component", "reminders"))
	if opts.Scheduler == nil {
		opts.Scheduler = scheduler.NewEngine(256, opts.Clock, opts.Logger)
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewLogNotifier(opts.Logger)
	}
	return &Service{
		repo:           opts.Repo,
		engine:         opts.Scheduler,
		notifier:       opts.Notifier,
		clock:          opts.Clock,
		log:            log,
		generator:      model.NewGenerator(opts.Clock, log),
		workingHours:   opts.WorkingHours,
		avoidConflicts: opts.AvoidConflicts,
	}, nil
}

func (s *Service) Scheduler() *scheduler.Engine { return s.engine }

func (s *Service) ComputeNextOccurrence(rule model.RecurrenceRule, base, from time.Time) (time.Time, bool) {
	return model.NextOccurrence(rule, base, from)
}

// GenerateInstances derives fresh instances from tpl without touching storage.
// A template that fails validation is logged and yields nothing.
func (s *Service) GenerateInstances(tpl model.TaskTemplate, opts model.GenerateOptions) []model.TaskInstance {
	if err := tpl.Validate(); err != nil {
		s.log.Warn("template invalid; skipping generation", logx.String("template_id", tpl.ID), logx.Err(err))
		return nil
	}
	if opts.WorkingHours == (model.WorkingHours{}) {
		opts.WorkingHours = s.workingHours
	}
	return s.generator.Generate(tpl, opts)
}

// PreviewOccurrences lists the next n occurrence times of tpl from now on
// without creating anything. The template's status is not consulted.
func (s *Service) PreviewOccurrences(tpl model.TaskTemplate, n int) []time.Time {
	now := s.clock.Now()
	return s.generator.Occurrences(tpl, model.GenerateOptions{
		Count:        n,
		Range:        &model.DateRange{Start: now, End: now.AddDate(100, 0, 0)},
		WorkingHours: s.workingHours,
	})
}

// Materialize generates instances for a stored template, skips slots that
// already have an instance, optionally drops conflicting ones, persists the
// rest and arms their reminders.
func (s *Service) Materialize(ctx context.Context, templateID string, opts model.GenerateOptions) ([]model.TaskInstance, error) {
	tpl, err := s.repo.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("load template %s: %w", templateID, err)
	}
	candidates := s.GenerateInstances(tpl, opts)
	if len(candidates) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.repo.FindInstancesByTemplateID(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("load instances of %s: %w", templateID, err)
	}
	taken := make(map[int64]bool, len(existing))
	for _, in := range existing {
		taken[in.Time.OriginalTime.UnixNano()] = true
	}
	fresh := make([]model.TaskInstance, 0, len(candidates))
	for _, c := range candidates {
		if !taken[c.Time.OriginalTime.UnixNano()] {
			fresh = append(fresh, c)
		}
	}

	if s.avoidConflicts && len(fresh) > 0 {
		active, err := s.repo.ListInstances(ctx, storage.InstanceListFilter{
			Statuses: []model.InstanceStatus{model.StatusPending, model.StatusInProgress},
		})
		if err != nil {
			return nil, fmt.Errorf("load active instances: %w", err)
		}
		before := len(fresh)
		fresh = model.FilterConflicts(fresh, active)
		if dropped := before - len(fresh); dropped > 0 {
			s.log.Info("conflicting instances dropped", logx.String("template_id", templateID), logx.Int("count", dropped))
		}
	}

	saved := make([]model.TaskInstance, 0, len(fresh))
	for _, in := range fresh {
		if err := s.repo.SaveInstance(ctx, in); err != nil {
			return saved, fmt.Errorf("save instance %s: %w", in.ID, err)
		}
		s.engine.Register(in)
		saved = append(saved, in)
	}
	if len(saved) > 0 {
		s.log.Info("instances generated", logx.String("template_id", templateID), logx.Int("count", len(saved)))
	}
	return saved, nil
}

// MaterializeAll runs Materialize for every active template. A failing
// template is logged and does not stop the others.
func (s *Service) MaterializeAll(ctx context.Context, opts model.GenerateOptions) (int, error) {
	templates, err := s.repo.ListTemplates(ctx, storage.TemplateListFilter{Status: model.TemplateActive})
	if err != nil {
		return 0, fmt.Errorf("list templates: %w", err)
	}
	total := 0
	for _, tpl := range templates {
		saved, err := s.Materialize(ctx, tpl.ID, opts)
		if err != nil {
			s.log.Error("generation failed", logx.String("template_id", tpl.ID), logx.Err(err))
		}
		total += len(saved)
	}
	return total, nil
}

func (s *Service) RegisterReminders(inst model.TaskInstance) int {
	return s.engine.Register(inst)
}

func (s *Service) CancelReminders(instanceID string) int {
	return s.engine.Cancel(instanceID)
}

func (s *Service) ReinitializeReminders(instances []model.TaskInstance) int {
	return s.engine.Reinitialize(instances)
}

// Reload rebuilds every armed timer from the instances in storage.
func (s *Service) Reload(ctx context.Context) (int, error) {
	instances, err := s.repo.ListInstances(ctx, storage.InstanceListFilter{
		Statuses: []model.InstanceStatus{model.StatusPending, model.StatusInProgress, model.StatusOverdue},
	})
	if err != nil {
		return 0, fmt.Errorf("load instances: %w", err)
	}
	return s.engine.Reinitialize(instances), nil
}

func (s *Service) Upcoming(within time.Duration) []scheduler.Alarm {
	return s.engine.Upcoming(within)
}

// Instance returns one stored instance.
func (s *Service) Instance(ctx context.Context, id string) (model.TaskInstance, error) {
	return s.repo.GetInstance(ctx, id)
}

func (s *Service) Template(ctx context.Context, id string) (model.TaskTemplate, error) {
	return s.repo.GetTemplate(ctx, id)
}

func (s *Service) Instances(ctx context.Context, filter storage.InstanceListFilter) ([]model.TaskInstance, error) {
	return s.repo.ListInstances(ctx, filter)
}

// mutate loads an instance, applies fn and persists the result when fn
// reports a change.
func (s *Service) mutate(ctx context.Context, instanceID string, fn func(inst *model.TaskInstance, now time.Time) (bool, error)) (model.TaskInstance, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, err := s.repo.GetInstance(ctx, instanceID)
	if err != nil {
		return model.TaskInstance{}, false, fmt.Errorf("load instance %s: %w", instanceID, err)
	}
	changed, err := fn(&inst, s.clock.Now())
	if err != nil || !changed {
		return inst, false, err
	}
	if err := s.repo.UpdateInstance(ctx, inst); err != nil {
		return inst, false, fmt.Errorf("save instance %s: %w", instanceID, err)
	}
	return inst, true, nil
}
