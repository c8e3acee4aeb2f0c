// Package commands holds the sundial CLI. The commands stay thin: they
// load configuration, hand it to the scheduler and render the result.
package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mbrevik/sundial/internal/version"
	"github.com/mbrevik/sundial/pkg/config"
	"github.com/mbrevik/sundial/pkg/logging"
	"github.com/mbrevik/sundial/pkg/paths"
)

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	var (
		verbosity int
		configDir string
	)

	rootCmd := &cobra.Command{
		Use:   "sundial",
		Short: "A time-aware manager for configuration files",
		Long: `sundial schedules actions for your configuration files: it compiles
templates, copies, links and stows files, and runs commands when the
time of day, the weekday or the sun says so.`,
		Version: version.Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return fmt.Errorf("no command specified")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v",
		"Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "",
		"Configuration directory (default $XDG_CONFIG_HOME/sundial)")

	rootCmd.AddCommand(newRunCmd(&configDir))
	rootCmd.AddCommand(newOnceCmd(&configDir))
	rootCmd.AddCommand(newDryRunCmd(&configDir))
	rootCmd.AddCommand(newModulesCmd(&configDir))
	rootCmd.AddCommand(newCleanupCmd(&configDir))
	rootCmd.AddCommand(newResetSetupCmd(&configDir))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// session bundles everything a command needs from disk
type session struct {
	paths    paths.Paths
	globals  config.Options
	resolved *config.Resolved
}

func loadSession(configDir string) (*session, error) {
	p, err := paths.New(configDir)
	if err != nil {
		return nil, err
	}
	globals, err := config.LoadOptions(p.OptionsFilePath())
	if err != nil {
		return nil, err
	}
	resolved, err := config.LoadFile(p.ConfigFilePath())
	if err != nil {
		return nil, err
	}
	return &session{paths: p, globals: globals, resolved: resolved}, nil
}
