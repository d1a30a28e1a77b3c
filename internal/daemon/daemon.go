// Package daemon runs taskd as a long-lived process: it keeps generated
// instances topped up, flags overdue ones and delivers reminders until
// its context is cancelled.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"github.com/sandeepkv93/taskd/internal/logx"
	"github.com/sandeepkv93/taskd/internal/model"
	"github.com/sandeepkv93/taskd/internal/reminders"
	"github.com/sandeepkv93/taskd/internal/templatefile"
)

// NotifyFunc reports service state to the supervisor. It matches
// sd.SdNotify with the environment left in place.
type NotifyFunc func(state string) error

type Options struct {
	Service *reminders.Service
	Clock   model.Clock
	Logger  logx.Logger

	// Sweep is a cron spec; descriptors such as "@every 5m" are accepted.
	Sweep         string
	GenerateCount int
	Horizon       time.Duration

	TemplatesFile  string
	WatchTemplates bool

	Notify NotifyFunc
}

type Daemon struct {
	svc   *reminders.Service
	clock model.Clock
	log   logx.Logger
	opts  Options

	sweepMu sync.Mutex
}

func New(opts Options) (*Daemon, error) {
	if opts.Service == nil {
		return nil, errors.New("daemon: reminders service is required")
	}
	if opts.Clock == nil {
		opts.Clock = model.SystemClock{}
	}
	if opts.Logger.IsZero() {
		opts.Logger = logx.Nop()
	}
	if opts.Sweep == "" {
		opts.Sweep = "@every 5m"
	}
	if opts.Horizon <= 0 {
		opts.Horizon = 14 * 24 * time.Hour
	}
	if opts.Notify == nil {
		opts.Notify = func(state string) error {
			_, err := sd.SdNotify(false, state)
			return err
		}
	}
	return &Daemon{
		svc:   opts.Service,
		clock: opts.Clock,
		log:   opts.Logger.With(logx.String("component", "daemon")),
		opts:  opts,
	}, nil
}

// Run imports templates, performs an initial sweep, starts the scheduler and
// blocks until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	c := cron.New(cron.WithLocation(time.Local))
	if _, err := c.AddFunc(d.opts.Sweep, func() { d.sweepLogged(ctx) }); err != nil {
		return fmt.Errorf("daemon: sweep spec %q: %w", d.opts.Sweep, err)
	}

	d.importTemplates(ctx)
	d.sweepLogged(ctx)

	engine := d.svc.Scheduler()
	engine.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.svc.Run(ctx)
	}()

	if d.opts.WatchTemplates && d.opts.TemplatesFile != "" {
		w := &templatefile.Watcher{
			Path: d.opts.TemplatesFile,
			Log:  d.log,
			OnChange: func(ctx context.Context) {
				d.importTemplates(ctx)
				d.sweepLogged(ctx)
			},
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Watch(ctx)
		}()
	}

	if interval, err := sd.SdWatchdogEnabled(false); err == nil && interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.watchdog(ctx, interval/2)
		}()
	}

	c.Start()
	if err := d.opts.Notify(sd.SdNotifyReady); err != nil {
		d.log.Warn("readiness notification failed", logx.Err(err))
	}
	d.log.Info("daemon started", logx.String("sweep", d.opts.Sweep), logx.Int("armed", engine.Len()))

	<-ctx.Done()

	_ = d.opts.Notify(sd.SdNotifyStopping)
	<-c.Stop().Done()
	wg.Wait()
	engine.Stop()
	d.log.Info("daemon stopped", logx.Int("dropped_alarms", int(engine.Dropped())))
	return nil
}

type SweepResult struct {
	Generated int
	Overdue   int
	Armed     int
}

// Sweep generates instances up to the horizon for every active template,
// marks missed instances overdue and rebuilds the timers from storage.
// Concurrent sweeps are skipped rather than queued.
func (d *Daemon) Sweep(ctx context.Context) (SweepResult, error) {
	if !d.sweepMu.TryLock() {
		d.log.Debug("sweep skipped; previous sweep still running")
		return SweepResult{}, nil
	}
	defer d.sweepMu.Unlock()

	var res SweepResult
	now := d.clock.Now()
	generated, err := d.svc.MaterializeAll(ctx, model.GenerateOptions{
		Count: d.opts.GenerateCount,
		Range: &model.DateRange{Start: now, End: now.Add(d.opts.Horizon)},
	})
	if err != nil {
		return res, err
	}
	res.Generated = generated

	if res.Overdue, err = d.svc.MarkOverdue(ctx); err != nil {
		return res, err
	}
	if res.Armed, err = d.svc.Reload(ctx); err != nil {
		return res, err
	}
	return res, nil
}

func (d *Daemon) sweepLogged(ctx context.Context) {
	start := time.Now()
	res, err := d.Sweep(ctx)
	if err != nil {
		d.log.Error("sweep failed", logx.Err(err))
		return
	}
	d.log.Debug("sweep finished",
		logx.Int("generated", res.Generated),
		logx.Int("overdue", res.Overdue),
		logx.Int("armed", res.Armed),
		logx.Duration("took", time.Since(start)))
}

func (d *Daemon) importTemplates(ctx context.Context) {
	path := d.opts.TemplatesFile
	if path == "" {
		return
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		d.log.Debug("no template file", logx.String("path", path))
		return
	}
	if _, err := templatefile.Import(ctx, path, d.svc, d.log); err != nil {
		d.log.Warn("template import incomplete", logx.String("path", path), logx.Err(err))
	}
}

func (d *Daemon) watchdog(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = d.opts.Notify(sd.SdNotifyWatchdog)
		}
	}
}
