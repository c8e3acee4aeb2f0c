// Package requires evaluates module enablement predicates: environment
// variables, programs on PATH, shell commands, and dependencies on other
// modules.
package requires

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/mbrevik/sundial/pkg/logging"
	"github.com/mbrevik/sundial/pkg/shell"
)

// Clause is one requirement. Exactly the set fields are checked; a clause
// with several fields set must satisfy all of them.
type Clause struct {
	// Env requires the named environment variable to be set
	Env string `yaml:"env"`

	// Installed requires the named program to be on PATH
	Installed string `yaml:"installed"`

	// Shell requires the command to exit zero within the timeout
	Shell string `yaml:"shell"`

	// Timeout overrides the default shell timeout, in seconds
	Timeout float64 `yaml:"timeout"`

	// Module requires another module to be enabled. Resolved by the
	// scheduler against the full module set, not here.
	Module string `yaml:"module"`
}

// Checker evaluates requirement clauses
type Checker struct {
	runner         shell.Runner
	defaultTimeout time.Duration
}

// NewChecker returns a Checker. defaultTimeout bounds shell clauses with
// no per-clause timeout; zero means one second.
func NewChecker(runner shell.Runner, defaultTimeout time.Duration) *Checker {
	if runner == nil {
		runner = shell.New()
	}
	if defaultTimeout <= 0 {
		defaultTimeout = shell.DefaultTimeout
	}
	return &Checker{runner: runner, defaultTimeout: defaultTimeout}
}

// Satisfied reports whether all non-module clauses hold. A shell command
// exceeding its timeout counts as a failed requirement, never as a fatal
// error. Module clauses are skipped; see Resolve.
func (c *Checker) Satisfied(clauses []Clause, dir string) bool {
	logger := logging.GetLogger("requires")

	for _, clause := range clauses {
		if clause.Env != "" {
			if _, ok := os.LookupEnv(clause.Env); !ok {
				logger.Info().Str("env", clause.Env).Msg("Missing environment variable")
				return false
			}
		}

		if clause.Installed != "" {
			if _, err := exec.LookPath(clause.Installed); err != nil {
				logger.Info().Str("program", clause.Installed).Msg("Program not installed")
				return false
			}
		}

		if clause.Shell != "" {
			timeout := c.defaultTimeout
			if clause.Timeout > 0 {
				timeout = time.Duration(clause.Timeout * float64(time.Second))
			}
			result, err := c.runner.Run(context.Background(), clause.Shell, dir, timeout)
			if err != nil || result.ExitCode != 0 {
				logger.Info().
					Str("command", clause.Shell).
					Int("exit_code", result.ExitCode).
					Err(err).
					Msg("Requirement command unsuccessful")
				return false
			}
		}
	}
	return true
}

// ModuleClauses extracts the module-dependency names from a clause list
func ModuleClauses(clauses []Clause) []string {
	var deps []string
	for _, clause := range clauses {
		if clause.Module != "" {
			deps = append(deps, clause.Module)
		}
	}
	return deps
}
