package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/sandeepkv93/taskd/internal/model"
)

// MemoryRepository keeps everything in maps. It backs dry runs and tests.
type MemoryRepository struct {
	mu        sync.RWMutex
	templates map[string]model.TaskTemplate
	instances map[string]model.TaskInstance
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		templates: make(map[string]model.TaskTemplate),
		instances: make(map[string]model.TaskInstance),
	}
}

func (r *MemoryRepository) SaveTemplate(_ context.Context, in model.TaskTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.templates[in.ID]; ok {
		in.CreatedAt = prev.CreatedAt
	}
	r.templates[in.ID] = in
	return nil
}

func (r *MemoryRepository) GetTemplate(_ context.Context, id string) (model.TaskTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tpl, ok := r.templates[id]
	if !ok {
		return model.TaskTemplate{}, ErrNotFound
	}
	return tpl, nil
}

func (r *MemoryRepository) ListTemplates(_ context.Context, filter TemplateListFilter) ([]model.TaskTemplate, error) {
	r.mu.RLock()
	out := make([]model.TaskTemplate, 0, len(r.templates))
	for _, tpl := range r.templates {
		if filter.Status == "" || tpl.Status == filter.Status {
			out = append(out, tpl)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (r *MemoryRepository) DeleteTemplate(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[id]; !ok {
		return ErrNotFound
	}
	delete(r.templates, id)
	for instID, inst := range r.instances {
		if inst.TemplateID == id {
			delete(r.instances, instID)
		}
	}
	return nil
}

func (r *MemoryRepository) SaveInstance(_ context.Context, in model.TaskInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[in.ID] = in.Clone()
	return nil
}

func (r *MemoryRepository) UpdateInstance(_ context.Context, in model.TaskInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[in.ID]; !ok {
		return ErrNotFound
	}
	r.instances[in.ID] = in.Clone()
	return nil
}

func (r *MemoryRepository) GetInstance(_ context.Context, id string) (model.TaskInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[id]
	if !ok {
		return model.TaskInstance{}, ErrNotFound
	}
	return inst.Clone(), nil
}

func (r *MemoryRepository) DeleteInstance(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[id]; !ok {
		return ErrNotFound
	}
	delete(r.instances, id)
	return nil
}

func (r *MemoryRepository) FindInstancesByTemplateID(_ context.Context, templateID string) ([]model.TaskInstance, error) {
	return r.collect(func(in model.TaskInstance) bool { return in.TemplateID == templateID }, 0, 0), nil
}

func (r *MemoryRepository) ListInstances(_ context.Context, filter InstanceListFilter) ([]model.TaskInstance, error) {
	return r.collect(filter.matches, filter.Limit, filter.Offset), nil
}

func (r *MemoryRepository) collect(keep func(model.TaskInstance) bool, limit, offset int) []model.TaskInstance {
	r.mu.RLock()
	out := make([]model.TaskInstance, 0)
	for _, inst := range r.instances {
		if keep(inst) {
			out = append(out, inst.Clone())
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Time.ScheduledTime, out[j].Time.ScheduledTime
		if a.Equal(b) {
			return out[i].ID < out[j].ID
		}
		return a.Before(b)
	})
	return paginate(out, limit, offset)
}

func paginate[T any](in []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(in) {
			return in[:0]
		}
		in = in[offset:]
	}
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
