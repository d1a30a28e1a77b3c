package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/sandeepkv93/taskd/internal/logx"
	"github.com/sandeepkv93/taskd/internal/model"
	"github.com/sandeepkv93/taskd/internal/storage"
)

func (s *Service) StartInstance(ctx context.Context, instanceID string) error {
	_, _, err := s.mutate(ctx, instanceID, func(inst *model.TaskInstance, now time.Time) (bool, error) {
		return true, inst.Start(now)
	})
	return err
}

// CompleteInstance finishes the instance and disarms its reminders.
func (s *Service) CompleteInstance(ctx context.Context, instanceID string) error {
	_, _, err := s.mutate(ctx, instanceID, func(inst *model.TaskInstance, now time.Time) (bool, error) {
		return true, inst.Complete(now)
	})
	if err != nil {
		return err
	}
	s.engine.Cancel(instanceID)
	return nil
}

func (s *Service) CancelInstance(ctx context.Context, instanceID string) error {
	_, _, err := s.mutate(ctx, instanceID, func(inst *model.TaskInstance, now time.Time) (bool, error) {
		return true, inst.Cancel(now)
	})
	if err != nil {
		return err
	}
	s.engine.Cancel(instanceID)
	return nil
}

// RescheduleInstance moves an instance and re-arms its reminders against the
// new slot.
func (s *Service) RescheduleInstance(ctx context.Context, instanceID string, at time.Time) (model.TaskInstance, error) {
	inst, _, err := s.mutate(ctx, instanceID, func(inst *model.TaskInstance, now time.Time) (bool, error) {
		return true, inst.Reschedule(at, now)
	})
	if err != nil {
		return model.TaskInstance{}, err
	}
	s.engine.Cancel(instanceID)
	s.engine.Register(inst)
	return inst, nil
}

func (s *Service) DeleteInstance(ctx context.Context, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.Cancel(instanceID)
	if err := s.repo.DeleteInstance(ctx, instanceID); err != nil {
		return fmt.Errorf("delete instance %s: %w", instanceID, err)
	}
	return nil
}

// SaveTemplate validates and stores a template. Instances already generated
// from an older version are left as they are.
func (s *Service) SaveTemplate(ctx context.Context, tpl model.TaskTemplate) error {
	if err := tpl.Validate(); err != nil {
		return err
	}
	now := s.clock.Now()
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = now
	}
	tpl.UpdatedAt = now
	return s.repo.SaveTemplate(ctx, tpl)
}

// SetTemplateStatus applies a lifecycle transition. Pausing or archiving
// leaves existing instances and their reminders alone; it only stops future
// generation.
func (s *Service) SetTemplateStatus(ctx context.Context, templateID string, to model.TemplateStatus) error {
	tpl, err := s.repo.GetTemplate(ctx, templateID)
	if err != nil {
		return fmt.Errorf("load template %s: %w", templateID, err)
	}
	now := s.clock.Now()
	switch to {
	case model.TemplateActive:
		if tpl.Status == model.TemplatePaused {
			err = tpl.Resume(now)
		} else {
			err = tpl.Activate(now)
		}
	case model.TemplatePaused:
		err = tpl.Pause(now)
	case model.TemplateArchived:
		err = tpl.Archive(now)
	default:
		err = fmt.Errorf("%w: cannot move template to %q", model.ErrInvalidTransition, to)
	}
	if err != nil {
		return err
	}
	return s.repo.SaveTemplate(ctx, tpl)
}

// DeleteTemplate removes a template together with all its instances and
// disarms their reminders.
func (s *Service) DeleteTemplate(ctx context.Context, templateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	instances, err := s.repo.FindInstancesByTemplateID(ctx, templateID)
	if err != nil {
		return fmt.Errorf("load instances of %s: %w", templateID, err)
	}
	for _, in := range instances {
		s.engine.Cancel(in.ID)
	}
	if err := s.repo.DeleteTemplate(ctx, templateID); err != nil {
		return fmt.Errorf("delete template %s: %w", templateID, err)
	}
	s.log.Info("template deleted", logx.String("template_id", templateID), logx.Int("instances", len(instances)))
	return nil
}

// MarkOverdue flags every pending instance whose slot has passed.
func (s *Service) MarkOverdue(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	pending, err := s.repo.ListInstances(ctx, storage.InstanceListFilter{
		Statuses: []model.InstanceStatus{model.StatusPending},
		To:       &now,
	})
	if err != nil {
		return 0, fmt.Errorf("load pending instances: %w", err)
	}
	marked := 0
	for _, in := range pending {
		if !in.MarkOverdue(now) {
			continue
		}
		if err := s.repo.UpdateInstance(ctx, in); err != nil {
			s.log.Error("mark overdue failed", logx.String("instance_id", in.ID), logx.Err(err))
			continue
		}
		marked++
	}
	if marked > 0 {
		s.log.Info("instances overdue", logx.Int("count", marked))
	}
	return marked, nil
}
