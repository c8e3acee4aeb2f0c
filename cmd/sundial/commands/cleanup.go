package commands

import (
	"github.com/spf13/cobra"

	"github.com/mbrevik/sundial/pkg/scheduler"
)

func newCleanupCmd(configDir *string) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "cleanup <module>...",
		Short: "Remove the files a module created, restoring backups",
		Long: `Removes every file the named modules created, restoring any file that
was backed up before a symlink replaced it. Setup actions are not
reversed; see reset-setup.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := loadSession(*configDir)
			if err != nil {
				return err
			}
			manager, err := scheduler.New(scheduler.Options{
				Resolved: session.resolved,
				Globals:  session.globals,
				Paths:    session.paths,
			})
			if err != nil {
				return err
			}
			return manager.Cleanup(args, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only report what would be removed")
	return cmd
}

func newResetSetupCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-setup <module>...",
		Short: "Forget a module's executed setup actions so they run again",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := loadSession(*configDir)
			if err != nil {
				return err
			}
			manager, err := scheduler.New(scheduler.Options{
				Resolved: session.resolved,
				Globals:  session.globals,
				Paths:    session.paths,
			})
			if err != nil {
				return err
			}
			return manager.ResetSetup(args)
		},
	}
}
