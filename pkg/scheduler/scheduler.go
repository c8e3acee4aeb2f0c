// Package scheduler owns the control loop: it constructs modules from
// resolved configuration, prunes the disabled ones, dispatches their
// action blocks with the global import, materialize, run ordering, and
// waits on the earliest event-label change or a file modification.
// Everything runs on the caller's goroutine; the watcher only feeds a
// queue.
package scheduler

import (
	"context"
	"time"

	"github.com/mbrevik/sundial/pkg/action"
	"github.com/mbrevik/sundial/pkg/config"
	ctxstore "github.com/mbrevik/sundial/pkg/context"
	"github.com/mbrevik/sundial/pkg/errors"
	"github.com/mbrevik/sundial/pkg/event"
	"github.com/mbrevik/sundial/pkg/logging"
	"github.com/mbrevik/sundial/pkg/module"
	"github.com/mbrevik/sundial/pkg/paths"
	"github.com/mbrevik/sundial/pkg/requires"
	"github.com/mbrevik/sundial/pkg/shell"
	"github.com/mbrevik/sundial/pkg/state"
	"github.com/mbrevik/sundial/pkg/watcher"
)

// noPendingHorizon separates real label changes from the static
// listener's century-away stand-in.
const noPendingHorizon = 50 * 365 * 24 * time.Hour

// Options configures a manager
type Options struct {
	Resolved *config.Resolved
	Globals  config.Options
	Paths    paths.Paths

	// Only restricts scheduling to the named modules when non-empty
	Only []string

	// Clock defaults to the system clock
	Clock event.Clock

	// Runner defaults to the sh-backed runner
	Runner shell.Runner

	// DryRun reports planned actions into Plan without executing
	DryRun bool
	Plan   *action.Plan
}

// Manager is the module manager and scheduler
type Manager struct {
	resolved *config.Resolved
	globals  config.Options
	paths    paths.Paths
	only     []string
	clock    event.Clock
	runner   shell.Runner
	dryRun   bool
	plan     *action.Plan

	store    *ctxstore.Store
	created  *state.CreatedFiles
	setup    *state.SetupLog
	executor *action.Executor
	modules  []*module.Module
	watch    *watcher.Watcher
}

// New constructs a manager: loads persisted state, evaluates module
// requirements, prunes disabled modules and builds the rest.
func New(opts Options) (*Manager, error) {
	if opts.Clock == nil {
		opts.Clock = event.SystemClock()
	}
	if opts.Runner == nil {
		opts.Runner = shell.New()
	}

	created, err := state.LoadCreatedFiles(opts.Paths.CreatedFilesPath())
	if err != nil {
		return nil, err
	}
	setup, err := state.LoadSetupLog(opts.Paths.SetupLogPath())
	if err != nil {
		return nil, err
	}

	m := &Manager{
		resolved: opts.Resolved,
		globals:  opts.Globals,
		paths:    opts.Paths,
		only:     opts.Only,
		clock:    opts.Clock,
		runner:   opts.Runner,
		dryRun:   opts.DryRun,
		plan:     opts.Plan,
		created:  created,
		setup:    setup,
	}
	if err := m.build(); err != nil {
		return nil, err
	}
	return m, nil
}

// build constructs the enabled module set from the resolved config
func (m *Manager) build() error {
	logger := logging.GetLogger("scheduler")

	m.store = m.resolved.Context.Copy()
	m.executor = action.NewExecutor(action.Options{
		Runner:      m.runner,
		Created:     m.created,
		CompiledDir: m.paths.CompiledDir(),
		RunTimeout:  m.globals.RunTimeout(),
		DryRun:      m.dryRun,
		Plan:        m.plan,
	})

	definitions := m.selectedDefinitions()

	checker := requires.NewChecker(m.runner, 0)
	disabled := make(map[string]bool, len(definitions))
	deps := make(map[string][]string, len(definitions))
	for _, def := range definitions {
		deps[def.Name] = requires.ModuleClauses(def.Requires)
		if !def.Enabled {
			logger.Debug().Str("module", def.Name).Msg("Module disabled in configuration")
			disabled[def.Name] = true
			continue
		}
		if !checker.Satisfied(def.Requires, def.Directory) {
			logger.Info().Str("module", def.Name).Msg("Module requirements not satisfied, disabling")
			disabled[def.Name] = true
		}
	}
	disabled = requires.PropagateDisabled(deps, disabled)

	m.modules = m.modules[:0]
	for _, def := range definitions {
		if disabled[def.Name] {
			continue
		}
		mod, err := module.New(def, m.clock, m.executor, m.store)
		if err != nil {
			return err
		}
		m.modules = append(m.modules, mod)
	}

	logger.Info().
		Int("enabled", len(m.modules)).
		Int("defined", len(definitions)).
		Msg("Constructed modules")
	return nil
}

// selectedDefinitions applies the named-module filter, preserving the
// declared order.
func (m *Manager) selectedDefinitions() []module.Definition {
	if len(m.only) == 0 {
		return m.resolved.Modules
	}
	wanted := make(map[string]bool, len(m.only))
	for _, name := range m.only {
		wanted[name] = true
	}
	var out []module.Definition
	for _, def := range m.resolved.Modules {
		if wanted[def.Name] {
			out = append(out, def)
		}
	}
	return out
}

// dispatchItem pairs a module with one expanded block
type dispatchItem struct {
	mod   *module.Module
	block action.Block
}

// dispatch executes a set of blocks preserving the global phase order:
// every module's context imports, then every module's file actions,
// then every module's run actions.
func (m *Manager) dispatch(items []dispatchItem) {
	for _, item := range items {
		item.mod.RunImports(item.block)
	}
	for _, item := range items {
		item.mod.RunFiles(item.block)
	}
	for _, item := range items {
		item.mod.RunCommands(item.block)
	}
}

// expandAll expands one block id across the module set, skipping
// modules whose block is empty or fails to expand. Expansion failures
// are configuration errors already reported at validation; here they
// only disable the one block.
func (m *Manager) expandAll(id module.BlockID, mods []*module.Module) []dispatchItem {
	logger := logging.GetLogger("scheduler")

	items := make([]dispatchItem, 0, len(mods))
	for _, mod := range mods {
		block, err := mod.Expand(id, "")
		if err != nil {
			logger.Error().Err(err).
				Str("module", mod.Name()).
				Str("block", string(id)).
				Msg("Could not expand block")
			continue
		}
		if block.IsEmpty() {
			continue
		}
		items = append(items, dispatchItem{mod: mod, block: block})
	}
	return items
}

// Startup runs the setup-once pass followed by on_startup for every
// enabled module.
func (m *Manager) Startup() {
	if delay := m.globals.StartupDelay(); delay > 0 && !m.dryRun {
		logger := logging.GetLogger("scheduler")
		logger.Info().
			Dur("delay", delay).
			Msg("Delaying startup")
		time.Sleep(delay)
	}

	m.dispatch(m.setupItems())
	m.dispatch(m.expandAll(module.BlockStartup, m.modules))
}

// setupItems selects the on_setup blocks which have never run with
// their current configuration.
func (m *Manager) setupItems() []dispatchItem {
	logger := logging.GetLogger("scheduler")

	var mods []*module.Module
	for _, mod := range m.modules {
		fingerprint := mod.SetupFingerprint()
		if fingerprint == "" {
			continue
		}
		if m.dryRun {
			if !m.setup.Contains(mod.Name(), fingerprint) {
				mods = append(mods, mod)
			}
			continue
		}
		isNew, err := m.setup.IsNew(mod.Name(), fingerprint)
		if err != nil {
			logger.Warn().Err(err).Str("module", mod.Name()).Msg("Could not persist setup record")
		}
		if isNew {
			mods = append(mods, mod)
		} else {
			logger.Debug().Str("module", mod.Name()).Msg("Setup block already executed, skipping")
		}
	}
	return m.expandAll(module.BlockSetup, mods)
}

// Exit runs on_exit for every enabled module
func (m *Manager) Exit() {
	m.dispatch(m.expandAll(module.BlockExit, m.modules))
}

// Once performs a single pass: setup, startup, exit. No waiting loop.
func (m *Manager) Once() {
	m.Startup()
	m.Exit()
}

// Run performs startup and enters the wait loop until ctx is cancelled
// or nothing is left to wait for. On return the on_exit pass has run.
func (m *Manager) Run(ctx context.Context) error {
	logger := logging.GetLogger("scheduler")

	m.Startup()

	watch, err := watcher.New(0)
	if err != nil {
		logger.Warn().Err(err).Msg("File watching unavailable")
	} else {
		m.watch = watch
		defer watch.Close()
		m.registerWatches()
	}

	for {
		wake, pending := m.nextChange()
		if !pending && (m.watch == nil || !m.watch.Active()) {
			logger.Info().Msg("No pending event changes and no watched files, exiting")
			break
		}

		var timer *time.Timer
		var timerC <-chan time.Time
		if pending {
			wait := time.Until(wake)
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
			timerC = timer.C
		}

		var events <-chan string
		if m.watch != nil {
			events = m.watch.Events()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			m.Exit()
			return nil

		case path := <-events:
			if timer != nil {
				timer.Stop()
			}
			if m.globals.Scheduler.HotReload && path == m.resolved.Path {
				m.reload()
			} else {
				m.dispatchModified(path)
			}

		case <-timerC:
			m.dispatchEvents()
		}
	}

	m.Exit()
	return nil
}

// nextChange returns the earliest upcoming label change across all
// listeners, and whether any change is actually pending.
func (m *Manager) nextChange() (time.Time, bool) {
	now := m.clock.Now()
	var earliest time.Time
	pending := false
	for _, mod := range m.modules {
		next := mod.Listener().NextChange()
		if next.Sub(now) > noPendingHorizon {
			continue
		}
		if !pending || next.Before(earliest) {
			earliest = next
			pending = true
		}
	}
	return earliest, pending
}

// dispatchEvents runs on_event for every module whose label changed,
// preserving the global phase order across them.
func (m *Manager) dispatchEvents() {
	logger := logging.GetLogger("scheduler")

	var changed []*module.Module
	for _, mod := range m.modules {
		if mod.HasNewEvent() {
			logger.Info().
				Str("module", mod.Name()).
				Str("event", mod.Listener().Event()).
				Msg("Event changed")
			changed = append(changed, mod)
		}
	}
	if len(changed) == 0 {
		return
	}
	m.dispatch(m.expandAll(module.BlockEvent, changed))
}

// dispatchModified routes a file modification to the owning module's
// on_modified block, or recompiles a modified template source.
func (m *Manager) dispatchModified(path string) {
	logger := logging.GetLogger("scheduler")

	var items []dispatchItem
	for _, mod := range m.modules {
		if key, ok := mod.ModifiedKey(path); ok {
			block, err := mod.Expand(module.BlockModified, key)
			if err != nil {
				logger.Error().Err(err).
					Str("module", mod.Name()).
					Str("path", key).
					Msg("Could not expand on_modified block")
				continue
			}
			logger.Info().
				Str("module", mod.Name()).
				Str("path", path).
				Msg("Watched file modified")
			items = append(items, dispatchItem{mod: mod, block: block})
			continue
		}
		if m.globals.Scheduler.ReprocessModifiedFiles {
			mod.Recompile(path)
		}
	}
	m.dispatch(items)
}

// registerWatches adds every path of interest to the watcher
func (m *Manager) registerWatches() {
	logger := logging.GetLogger("scheduler")

	add := func(path string) {
		if err := m.watch.Add(path); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Could not watch path")
		}
	}

	for _, mod := range m.modules {
		for _, path := range mod.ModifiedPaths() {
			add(path)
		}
		if m.globals.Scheduler.ReprocessModifiedFiles {
			for _, source := range mod.CompiledSources() {
				add(source)
			}
		}
	}
	if m.globals.Scheduler.HotReload && m.resolved.Path != "" {
		add(m.resolved.Path)
	}
}

// reload reinitializes the whole module set from the configuration
// file: on_exit for the old set, reconstruct, on_startup for the new.
func (m *Manager) reload() {
	logger := logging.GetLogger("scheduler")
	logger.Info().Str("path", m.resolved.Path).Msg("Configuration changed, reloading")

	resolved, err := config.LoadFile(m.resolved.Path)
	if err != nil {
		logger.Error().Err(err).Msg("Could not reload configuration, keeping current modules")
		return
	}

	m.Exit()
	m.resolved = resolved
	if err := m.build(); err != nil {
		logger.Error().Err(err).Msg("Could not rebuild modules after reload")
		m.modules = nil
	} else {
		m.Startup()
	}
	if m.watch != nil {
		m.watch.Reset()
		m.registerWatches()
	}
}

// Status describes one defined module for listings
type Status struct {
	Name     string
	Enabled  bool
	Listener string
	Event    string
}

// Statuses reports every defined module with its enablement and current
// event label. Disabled modules show no label.
func (m *Manager) Statuses() []Status {
	enabled := make(map[string]*module.Module, len(m.modules))
	for _, mod := range m.modules {
		enabled[mod.Name()] = mod
	}

	out := make([]Status, 0, len(m.resolved.Modules))
	for _, def := range m.resolved.Modules {
		listener := def.Listener.Type
		if listener == "" {
			listener = event.TypeStatic
		}
		status := Status{Name: def.Name, Listener: listener}
		if mod, ok := enabled[def.Name]; ok {
			status.Enabled = true
			status.Event = mod.Listener().Event()
		}
		out = append(out, status)
	}
	return out
}

// Cleanup reverses the recorded file creations of the named modules,
// restoring backups. Unknown names are errors.
func (m *Manager) Cleanup(names []string, dryRun bool) error {
	recorded := make(map[string]bool)
	for _, name := range m.created.Modules() {
		recorded[name] = true
	}
	for _, name := range names {
		if !recorded[name] {
			return errors.Newf(errors.ErrModuleUndefined,
				"no recorded creations for module %q", name)
		}
		if err := m.created.Cleanup(name, dryRun); err != nil {
			return err
		}
	}
	return nil
}

// ResetSetup forgets the named modules' executed setup actions so their
// on_setup blocks run again on the next startup.
func (m *Manager) ResetSetup(names []string) error {
	for _, name := range names {
		if err := m.setup.Reset(name); err != nil {
			return err
		}
	}
	return nil
}
