package action

import (
	"context"
	"strings"
	"time"

	ctxstore "github.com/mbrevik/sundial/pkg/context"
	"github.com/mbrevik/sundial/pkg/logging"
	"github.com/mbrevik/sundial/pkg/paths"
	"github.com/mbrevik/sundial/pkg/render"
	"github.com/mbrevik/sundial/pkg/shell"
	"github.com/mbrevik/sundial/pkg/state"
)

// Env is the per-module environment an action executes in
type Env struct {
	// Module is the owning module's name, used for logging and the
	// action log.
	Module string

	// Directory anchors relative paths in action options
	Directory string

	// Context is the shared context store
	Context *ctxstore.Store

	// Replace substitutes {event} and template shortname placeholders
	// in string options. Nil means no substitution.
	Replace func(string) string
}

func (e Env) expand(s string) string {
	if e.Replace == nil {
		return s
	}
	return e.Replace(s)
}

func (e Env) path(s string) string {
	return paths.Resolve(e.expand(s), e.Directory)
}

// Executor performs actions. All execution is synchronous; an executor is
// only ever used from the scheduler's control goroutine.
type Executor struct {
	renderer render.Renderer
	runner   shell.Runner
	created  *state.CreatedFiles

	// compiledDir receives compile output when no target is configured
	compiledDir string

	// runTimeout bounds run actions with no per-action timeout
	runTimeout time.Duration

	// dryRun reports planned operations without performing them
	dryRun bool

	plan *Plan
}

// Options configures an executor
type Options struct {
	Renderer    render.Renderer
	Runner      shell.Runner
	Created     *state.CreatedFiles
	CompiledDir string
	RunTimeout  time.Duration
	DryRun      bool
	Plan        *Plan
}

// NewExecutor returns an executor. Renderer and Runner default to the
// standard implementations.
func NewExecutor(opts Options) *Executor {
	if opts.Renderer == nil {
		opts.Renderer = render.New()
	}
	if opts.Runner == nil {
		opts.Runner = shell.New()
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 600 * time.Second
	}
	return &Executor{
		renderer:    opts.Renderer,
		runner:      opts.Runner,
		created:     opts.Created,
		compiledDir: opts.CompiledDir,
		runTimeout:  opts.RunTimeout,
		dryRun:      opts.DryRun,
		plan:        opts.Plan,
	}
}

// DryRun reports whether the executor only plans
func (x *Executor) DryRun() bool { return x.dryRun }

func (x *Executor) note(format string, args ...interface{}) {
	if x.plan != nil {
		x.plan.Addf(format, args...)
	}
}

// record adds a produced file to the persisted action log
func (x *Executor) record(env Env, method state.Method, content string, target string, backup string) {
	if x.created == nil || x.dryRun {
		return
	}
	if err := x.created.Insert(env.Module, method, content, target, backup); err != nil {
		logger := logging.GetLogger("action")
		logger.Warn().Err(err).
			Str("module", env.Module).
			Str("target", target).
			Msg("Could not record created file")
	}
}

// ExecuteImport merges context values from a YAML file into the shared
// store. Missing files or sections are module-level warnings, except for
// the to_section/from_section asymmetry, which is a configuration error.
func (x *Executor) ExecuteImport(env Env, a ImportContext) error {
	logger := logging.GetLogger("action")

	fromPath := env.path(a.FromPath)
	x.note("[%s] import_context %s", env.Module, fromPath)
	if x.dryRun {
		return nil
	}

	err := env.Context.ImportFile(fromPath, env.expand(a.FromSection), env.expand(a.ToSection))
	if err != nil {
		logger.Warn().Err(err).
			Str("module", env.Module).
			Str("from_path", fromPath).
			Msg("Context import failed")
	}
	return err
}

// ExecuteRun executes a shell command with placeholder substitution. The
// executed command and its stdout are returned; a non-zero exit or a
// timeout is logged and reported through the error, never fatal.
func (x *Executor) ExecuteRun(env Env, a Run) (string, string, error) {
	logger := logging.GetLogger("action")

	command := env.expand(a.Shell)
	timeout := x.runTimeout
	if a.Timeout > 0 {
		timeout = time.Duration(a.Timeout * float64(time.Second))
	}

	x.note("[%s] run %q", env.Module, command)
	if x.dryRun {
		return command, "", nil
	}

	logger.Info().Str("module", env.Module).Str("command", command).Msg("Running command")
	result, err := x.runner.Run(context.Background(), command, env.Directory, timeout)
	result.Stdout = strings.TrimRight(result.Stdout, "\n")
	if err != nil {
		logger.Warn().Err(err).
			Str("module", env.Module).
			Str("command", command).
			Msg("Run action failed")
		return command, result.Stdout, err
	}
	if result.ExitCode != 0 {
		logger.Warn().
			Str("module", env.Module).
			Str("command", command).
			Int("exit_code", result.ExitCode).
			Msg("Run action exited non-zero")
	}
	return command, result.Stdout, nil
}
