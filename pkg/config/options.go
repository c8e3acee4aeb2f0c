// Package config loads the global options file and the module
// configuration tree, and validates the result before the scheduler
// starts. Validation failures here are fatal; nothing later in the
// process should encounter a malformed configuration.
package config

import (
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/mbrevik/sundial/pkg/errors"
)

// Options are the global settings from sundial.toml
type Options struct {
	Scheduler SchedulerOptions `toml:"scheduler"`
	Paths     PathOptions      `toml:"paths"`
}

// SchedulerOptions tune the control loop
type SchedulerOptions struct {
	// StartupDelay is the pause in seconds before the first pass
	StartupDelay float64 `toml:"startup_delay"`

	// HotReload reinitializes all modules when the configuration file
	// changes.
	HotReload bool `toml:"hot_reload"`

	// RunTimeout is the default timeout in seconds for run actions
	RunTimeout float64 `toml:"run_timeout"`

	// ReprocessModifiedFiles recompiles a template when its source file
	// changes on disk.
	ReprocessModifiedFiles bool `toml:"reprocess_modified_files"`
}

// PathOptions override the XDG-derived directories
type PathOptions struct {
	DataDir string `toml:"data_dir"`
}

// DefaultOptions returns the options used when no file is present
func DefaultOptions() Options {
	return Options{
		Scheduler: SchedulerOptions{
			RunTimeout: 600,
		},
	}
}

// StartupDelay returns the configured delay as a duration
func (o Options) StartupDelay() time.Duration {
	return time.Duration(o.Scheduler.StartupDelay * float64(time.Second))
}

// RunTimeout returns the default run-action timeout as a duration
func (o Options) RunTimeout() time.Duration {
	return time.Duration(o.Scheduler.RunTimeout * float64(time.Second))
}

// LoadOptions reads the options file at path. A missing file yields the
// defaults; a malformed file is a configuration error.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return opts, nil
	}
	if err != nil {
		return opts, errors.Wrapf(err, errors.ErrConfigInvalid,
			"could not read options file %q", path)
	}
	if err := toml.Unmarshal(data, &opts); err != nil {
		return opts, errors.Wrapf(err, errors.ErrConfigInvalid,
			"could not parse options file %q", path)
	}
	if opts.Scheduler.RunTimeout <= 0 {
		opts.Scheduler.RunTimeout = 600
	}
	return opts, nil
}
