// Package shell executes user-configured commands through the system
// shell, with a timeout and captured stdout.
package shell

import (
	"bytes"
	"context"
	stderrors "errors"
	"os/exec"
	"time"

	"github.com/mbrevik/sundial/pkg/errors"
	"github.com/mbrevik/sundial/pkg/logging"
)

// DefaultTimeout bounds commands with no explicit timeout configured
const DefaultTimeout = 1 * time.Second

// Result holds the outcome of a shell command
type Result struct {
	ExitCode int
	Stdout   string
}

// Runner executes a shell command. Implementations must block until the
// command exits or the timeout elapses.
type Runner interface {
	Run(ctx context.Context, command string, dir string, timeout time.Duration) (Result, error)
}

type execRunner struct{}

// New returns a Runner backed by `sh -c`
func New() Runner {
	return execRunner{}
}

// Run executes command in dir. A non-zero exit status is reported through
// Result, not through the error: callers decide whether that is fatal. The
// returned error is reserved for timeouts and failures to start the
// command at all.
func (execRunner) Run(ctx context.Context, command string, dir string, timeout time.Duration) (Result, error) {
	logger := logging.GetLogger("shell")

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	logger.Debug().Str("command", command).Str("dir", dir).Msg("Running shell command")
	err := cmd.Run()

	result := Result{Stdout: stdout.String()}

	if ctx.Err() == context.DeadlineExceeded {
		return result, errors.Wrapf(ctx.Err(), errors.ErrShellTimeout,
			"command %q timed out after %s", command, timeout)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, errors.Wrapf(err, errors.ErrShellFailed,
			"command %q could not be run", command)
	}

	return result, nil
}
