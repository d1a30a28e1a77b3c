package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/taskd/internal/config"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "taskd",
		Short: "taskd schedules recurring tasks and delivers their reminders",
		Long: `taskd turns recurring task templates into concrete instances and fires
their reminders on time.

Run "taskd run" to start the daemon; the other commands inspect or change
the shared database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.GetDefaultConfigPath(), "config file")

	root.AddCommand(
		newRunCmd(),
		newImportCmd(),
		newGenerateCmd(),
		newListCmd(),
		newUpcomingCmd(),
		newNextCmd(),
		newShowCmd(),
		newDoCmd(),
		newTemplateCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "taskd failed: %v\n", err)
		os.Exit(1)
	}
}
