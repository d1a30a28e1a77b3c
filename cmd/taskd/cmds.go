package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/taskd/internal/commands"
	"github.com/sandeepkv93/taskd/internal/daemon"
	"github.com/sandeepkv93/taskd/internal/model"
	"github.com/sandeepkv93/taskd/internal/storage"
	"github.com/sandeepkv93/taskd/internal/templatefile"
	"github.com/sandeepkv93/taskd/internal/views"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler daemon until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withApp(ctx, func(ctx context.Context, a *app) error {
				d, err := daemon.New(daemon.Options{
					Service:        a.svc,
					Clock:          a.clock,
					Logger:         a.log,
					Sweep:          a.cfg.Scheduler.Sweep,
					GenerateCount:  a.cfg.Scheduler.GenerateCount,
					Horizon:        a.horizon(),
					TemplatesFile:  a.cfg.TemplatesFile,
					WatchTemplates: a.cfg.Scheduler.WatchTemplates,
				})
				if err != nil {
					return err
				}
				return d.Run(ctx)
			})
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Import task templates from a YAML file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				path := a.cfg.TemplatesFile
				if len(args) == 1 {
					path = args[0]
				}
				res, err := templatefile.Import(ctx, path, a.svc, a.log)
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d template(s)", len(res.Imported))
				if len(res.Skipped) > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), ", skipped %s", strings.Join(res.Skipped, ", "))
				}
				fmt.Fprintln(cmd.OutOrStdout())
				return err
			})
		},
	}
}

func newGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate [template-id]",
		Short: "Generate instances up to the configured horizon",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if len(args) == 1 {
					got, err := a.svc.Materialize(ctx, args[0], a.generateOptions())
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "generated %d instance(s)\n", len(got))
					return nil
				}
				n, err := a.svc.MaterializeAll(ctx, a.generateOptions())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "generated %d instance(s)\n", n)
				return nil
			})
		},
	}
}

func newListCmd() *cobra.Command {
	var (
		all   bool
		limit int
	)
	c := &cobra.Command{
		Use:   "list",
		Short: "List task instances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				filter := storage.InstanceListFilter{Limit: limit}
				if !all {
					filter.Statuses = []model.InstanceStatus{model.StatusPending, model.StatusInProgress, model.StatusOverdue}
				}
				instances, err := a.svc.Instances(ctx, filter)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), views.RenderPage(views.Page{
					Header: "taskd",
					Body:   views.RenderInstances(instances, a.clock.Now()),
				}))
				return nil
			})
		},
	}
	c.Flags().BoolVarP(&all, "all", "a", false, "include completed and cancelled instances")
	c.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of instances")
	return c
}

func newUpcomingCmd() *cobra.Command {
	var within time.Duration
	c := &cobra.Command{
		Use:   "upcoming",
		Short: "Show reminders that fire within a window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if _, err := a.svc.Reload(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), views.RenderUpcoming(a.svc.Upcoming(within), a.clock.Now()))
				return nil
			})
		},
	}
	c.Flags().DurationVarP(&within, "within", "w", 24*time.Hour, "look-ahead window")
	return c
}

func newNextCmd() *cobra.Command {
	var count int
	c := &cobra.Command{
		Use:   "next <template-id>",
		Short: "Preview the next occurrences of a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				tpl, err := a.svc.Template(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), views.RenderOccurrences(tpl.Recurrence, a.svc.PreviewOccurrences(tpl, count)))
				return nil
			})
		},
	}
	c.Flags().IntVarP(&count, "count", "n", 5, "number of occurrences")
	return c
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <instance-id>",
		Short: "Show one instance with its reminders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				inst, err := a.svc.Instance(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), views.RenderMarkdown(views.InstanceMarkdown(inst, a.clock.Now())))
				return nil
			})
		},
	}
}

func newDoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "do <command...>",
		Short: "Run a reminder or instance command, e.g. \"snooze <instance> <alert> 10m\"",
		Long: `Commands:
  trigger <instance> <alert>
  snooze <instance> <alert> [<duration>|until <time>] [-- <reason>]
  dismiss <instance> <alert>
  reschedule <instance> <time>
  start|complete|cancel <instance>
  remind <instance> on|off`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			line := strings.Join(args, " ")
			// cobra swallows "--"; put it back for the reason separator.
			if i := cmd.ArgsLenAtDash(); i >= 0 {
				line = strings.Join(args[:i], " ") + " -- " + strings.Join(args[i:], " ")
			}
			parsed, err := commands.Parse(line)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				res, err := commands.Execute(parsed, commands.Bind(ctx, a.svc, a.clock))
				if err != nil {
					var ce *commands.CommandError
					if errors.As(err, &ce) {
						return errors.New(ce.Message)
					}
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.Message)
				return nil
			})
		},
	}
}

func newTemplateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "template",
		Short: "Manage task templates",
	}
	status := func(use string, to model.TemplateStatus) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <template-id>",
			Short: fmt.Sprintf("Move a template to %s", to),
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
					if err := a.svc.SetTemplateStatus(ctx, args[0], to); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[0], to)
					return nil
				})
			},
		}
	}
	c.AddCommand(
		status("activate", model.TemplateActive),
		status("pause", model.TemplatePaused),
		status("archive", model.TemplateArchived),
		&cobra.Command{
			Use:   "delete <template-id>",
			Short: "Delete a template and all of its instances",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
					if err := a.svc.DeleteTemplate(ctx, args[0]); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s deleted\n", args[0])
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List templates",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
					templates, err := a.repo.ListTemplates(ctx, storage.TemplateListFilter{})
					if err != nil {
						return err
					}
					for _, tpl := range templates {
						fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-9s %s (%s)\n", tpl.ID, tpl.Status, tpl.Title, tpl.Recurrence)
					}
					return nil
				})
			},
		},
	)
	return c
}
