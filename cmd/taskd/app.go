package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sandeepkv93/taskd/internal/config"
	"github.com/sandeepkv93/taskd/internal/logx"
	"github.com/sandeepkv93/taskd/internal/model"
	"github.com/sandeepkv93/taskd/internal/notify"
	"github.com/sandeepkv93/taskd/internal/reminders"
	"github.com/sandeepkv93/taskd/internal/scheduler"
	"github.com/sandeepkv93/taskd/internal/storage"
)

// app holds everything a command needs. close releases it in reverse order.
type app struct {
	cfg   *config.Config
	log   logx.Logger
	clock model.Clock
	repo  *storage.SQLiteRepository
	svc   *reminders.Service

	closers []io.Closer
}

func openApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log, logCloser, err := logx.New(logx.Config{Level: cfg.Log.Level, Console: cfg.Log.Console, File: cfg.Log.File})
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	a := &app{cfg: cfg, log: log, clock: model.SystemClock{}, closers: []io.Closer{logCloser}}

	repo, err := storage.OpenSQLite(cfg.DBPath)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.repo = repo
	a.closers = append(a.closers, repo)

	notifier, err := buildNotifier(cfg.Notify, log)
	if err != nil {
		a.close()
		return nil, err
	}

	a.svc, err = reminders.New(reminders.Options{
		Repo:           repo,
		Scheduler:      scheduler.NewEngine(cfg.Scheduler.Buffer, a.clock, log),
		Notifier:       notifier,
		Clock:          a.clock,
		Logger:         log,
		WorkingHours:   model.WorkingHours{Start: cfg.WorkingHours.Start, End: cfg.WorkingHours.End},
		AvoidConflicts: cfg.Scheduler.AvoidConflicts,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func buildNotifier(cfg config.NotifyConfig, log logx.Logger) (notify.Notifier, error) {
	chain := notify.Multi{notify.NewLogNotifier(log)}
	if cfg.Desktop {
		desktop, err := notify.NewCommandNotifier(cfg.Command, 0)
		if err != nil {
			return nil, fmt.Errorf("desktop notifier: %w", err)
		}
		chain = append(chain, desktop)
	}
	return notify.NewLimited(chain, cfg.RatePerSec, cfg.Burst), nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
}

// horizon is the generation window used by generate and the daemon sweep.
func (a *app) horizon() time.Duration {
	return time.Duration(a.cfg.Scheduler.HorizonDays) * 24 * time.Hour
}

func (a *app) generateOptions() model.GenerateOptions {
	now := a.clock.Now()
	return model.GenerateOptions{
		Count: a.cfg.Scheduler.GenerateCount,
		Range: &model.DateRange{Start: now, End: now.Add(a.horizon())},
	}
}

// withApp opens the app for the duration of fn.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}
