package storage

import (
	"time"

	"github.com/sandeepkv93/taskd/internal/model"
)

type TemplateListFilter struct {
	Status model.TemplateStatus
	Limit  int
	Offset int
}

// InstanceListFilter selects instances by status and by a scheduled-time
// window. Zero values do not filter.
type InstanceListFilter struct {
	Statuses []model.InstanceStatus
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

func (f InstanceListFilter) matches(in model.TaskInstance) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if in.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.From != nil && in.Time.ScheduledTime.Before(*f.From) {
		return false
	}
	if f.To != nil && in.Time.ScheduledTime.After(*f.To) {
		return false
	}
	return true
}
