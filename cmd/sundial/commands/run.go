package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mbrevik/sundial/pkg/action"
	"github.com/mbrevik/sundial/pkg/scheduler"
)

func newRunCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run [module...]",
		Short: "Run startup actions and enter the scheduling loop",
		Long: `Runs every enabled module's setup and startup actions, then waits for
event changes and file modifications until interrupted. With module
names given, only those modules are scheduled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := loadSession(*configDir)
			if err != nil {
				return err
			}
			manager, err := scheduler.New(scheduler.Options{
				Resolved: session.resolved,
				Globals:  session.globals,
				Paths:    session.paths,
				Only:     args,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return manager.Run(ctx)
		},
	}
}

func newOnceCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "once [module...]",
		Short: "Run a single pass of setup, startup and exit actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := loadSession(*configDir)
			if err != nil {
				return err
			}
			manager, err := scheduler.New(scheduler.Options{
				Resolved: session.resolved,
				Globals:  session.globals,
				Paths:    session.paths,
				Only:     args,
			})
			if err != nil {
				return err
			}
			manager.Once()
			return nil
		},
	}
}

func newDryRunCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "dry-run [module...]",
		Short: "Report the actions a single pass would perform, without executing",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := loadSession(*configDir)
			if err != nil {
				return err
			}
			plan := &action.Plan{}
			manager, err := scheduler.New(scheduler.Options{
				Resolved: session.resolved,
				Globals:  session.globals,
				Paths:    session.paths,
				Only:     args,
				DryRun:   true,
				Plan:     plan,
			})
			if err != nil {
				return err
			}
			manager.Once()

			if lines := plan.Lines(); len(lines) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), plan.String())
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to do.")
			}
			return nil
		},
	}
}
