package commands

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/mbrevik/sundial/pkg/scheduler"
)

var (
	moduleNameStyle = lipgloss.NewStyle().Bold(true)
	enabledStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	disabledStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Faint(true)
	detailStyle     = lipgloss.NewStyle().Faint(true)
)

func newModulesCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List defined modules with their enablement and current event",
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

			out := cmd.OutOrStdout()
			for _, status := range manager.Statuses() {
				state := disabledStyle.Render("disabled")
				detail := ""
				if status.Enabled {
					state = enabledStyle.Render("enabled")
					detail = detailStyle.Render(
						fmt.Sprintf("  %s: %s", status.Listener, status.Event))
				}
				fmt.Fprintf(out, "%s  %s%s\n",
					moduleNameStyle.Render(status.Name), state, detail)
			}
			return nil
		},
	}
}
