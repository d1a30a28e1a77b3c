package storage

import (
	"context"
	"errors"

	"github.com/sandeepkv93/taskd/internal/model"
)

var ErrNotFound = errors.New("storage: not found")

// Repository persists templates and instances. Implementations return
// ErrNotFound for unknown ids and hand out copies that callers may mutate.
type Repository interface {
	SaveTemplate(ctx context.Context, in model.TaskTemplate) error
	GetTemplate(ctx context.Context, id string) (model.TaskTemplate, error)
	ListTemplates(ctx context.Context, filter TemplateListFilter) ([]model.TaskTemplate, error)
	// DeleteTemplate removes the template and every instance derived from it.
	DeleteTemplate(ctx context.Context, id string) error

	SaveInstance(ctx context.Context, in model.TaskInstance) error
	UpdateInstance(ctx context.Context, in model.TaskInstance) error
	GetInstance(ctx context.Context, id string) (model.TaskInstance, error)
	DeleteInstance(ctx context.Context, id string) error
	FindInstancesByTemplateID(ctx context.Context, templateID string) ([]model.TaskInstance, error)
	ListInstances(ctx context.Context, filter InstanceListFilter) ([]model.TaskInstance, error)
}
