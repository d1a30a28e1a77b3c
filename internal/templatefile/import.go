package templatefile

import (
	"context"
	"errors"
	"fmt"

	"github.com/sandeepkv93/taskd/internal/logx"
	"github.com/sandeepkv93/taskd/internal/model"
	"github.com/sandeepkv93/taskd/internal/storage"
)

// Store is the part of the reminders service an import needs.
type Store interface {
	Template(ctx context.Context, id string) (model.TaskTemplate, error)
	SaveTemplate(ctx context.Context, tpl model.TaskTemplate) error
}

type Result struct {
	Imported []string
	Skipped  []string
}

// Import saves every valid template from path. Invalid entries are logged and
// skipped; their errors come back joined alongside the result. A template
// that already exists keeps its creation time and lifecycle status, so the
// file's status only applies on first import.
func Import(ctx context.Context, path string, store Store, log logx.Logger) (Result, error) {
	f, err := Load(path)
	if err != nil {
		return Result{}, err
	}
	return ImportFile(ctx, f, store, log)
}

func ImportFile(ctx context.Context, f File, store Store, log logx.Logger) (Result, error) {
	var (
		res  Result
		errs []error
	)
	for i, entry := range f.Templates {
		tpl, err := entry.Convert()
		if err != nil {
			log.Warn("template definition skipped", logx.Int("index", i), logx.String("template_id", entry.ID), logx.Err(err))
			res.Skipped = append(res.Skipped, entry.ID)
			errs = append(errs, err)
			continue
		}

		existing, err := store.Template(ctx, tpl.ID)
		switch {
		case err == nil:
			tpl.CreatedAt = existing.CreatedAt
			if existing.Status != tpl.Status {
				log.Debug("keeping stored template status", logx.String("template_id", tpl.ID),
					logx.String("stored", string(existing.Status)), logx.String("file", string(tpl.Status)))
			}
			tpl.Status = existing.Status
		case errors.Is(err, storage.ErrNotFound):
		default:
			return res, fmt.Errorf("load template %s: %w", tpl.ID, err)
		}

		if err := store.SaveTemplate(ctx, tpl); err != nil {
			return res, fmt.Errorf("save template %s: %w", tpl.ID, err)
		}
		res.Imported = append(res.Imported, tpl.ID)
	}
	log.Info("templates imported", logx.Int("imported", len(res.Imported)), logx.Int("skipped", len(res.Skipped)))
	return res, errors.Join(errs...)
}
