// Package module ties one functional unit together: an event listener,
// a requirement list and five action blocks. Modules are constructed
// from resolved configuration at startup and are immutable afterwards,
// except for the template targets they accumulate while compiling.
package module

import (
	"sort"
	"strings"

	"github.com/mbrevik/sundial/pkg/action"
	ctxstore "github.com/mbrevik/sundial/pkg/context"
	"github.com/mbrevik/sundial/pkg/errors"
	"github.com/mbrevik/sundial/pkg/event"
	"github.com/mbrevik/sundial/pkg/logging"
	"github.com/mbrevik/sundial/pkg/paths"
	"github.com/mbrevik/sundial/pkg/requires"
)

// BlockID names one of a module's action blocks
type BlockID string

const (
	BlockSetup    BlockID = "on_setup"
	BlockStartup  BlockID = "on_startup"
	BlockEvent    BlockID = "on_event"
	BlockExit     BlockID = "on_exit"
	BlockModified BlockID = "on_modified"
)

// maxTriggerDepth bounds trigger expansion. Chains deeper than this are
// treated as cyclic and reported as a configuration error.
const maxTriggerDepth = 16

// Definition is a module's resolved configuration
type Definition struct {
	Name      string
	Directory string

	// Enabled mirrors the config flag; requirement checking may still
	// disable an enabled module.
	Enabled bool

	Requires []requires.Clause

	Listener event.Config

	// Templates declares shortnames for template files, resolved
	// relative to Directory. A compiled template's target becomes the
	// value of its {shortname} placeholder.
	Templates map[string]string

	OnSetup    action.Block
	OnStartup  action.Block
	OnEvent    action.Block
	OnExit     action.Block
	OnModified map[string]action.Block
}

// Module is a constructed, runnable module
type Module struct {
	def      Definition
	listener event.Listener
	executor *action.Executor
	context  *ctxstore.Store

	// lastEvent is the label seen by the previous change check
	lastEvent string

	// targets maps a declared shortname to its most recent compilation
	// target.
	targets map[string]string

	// compiled remembers every compiled source so modified templates
	// can be recompiled in place.
	compiled map[string]compiledRecord
}

type compiledRecord struct {
	target      string
	permissions string
}

// New constructs a module from its definition. The listener is built
// from the definition's config; an empty config yields the static
// listener, an unknown type is a configuration error.
func New(def Definition, clock event.Clock, executor *action.Executor, store *ctxstore.Store) (*Module, error) {
	listener, err := event.New(def.Listener, clock)
	if err != nil {
		return nil, err
	}
	return &Module{
		def:       def,
		listener:  listener,
		executor:  executor,
		context:   store,
		lastEvent: listener.Event(),
		targets:   make(map[string]string),
		compiled:  make(map[string]compiledRecord),
	}, nil
}

// Name returns the module's unique name
func (m *Module) Name() string { return m.def.Name }

// Directory returns the directory relative paths resolve against
func (m *Module) Directory() string { return m.def.Directory }

// Requires returns the module's requirement clauses
func (m *Module) Requires() []requires.Clause { return m.def.Requires }

// Listener returns the module's event listener
func (m *Module) Listener() event.Listener { return m.listener }

// HasNewEvent reports whether the listener's label changed since the
// last check, updating the stored label.
func (m *Module) HasNewEvent() bool {
	current := m.listener.Event()
	if current == m.lastEvent {
		return false
	}
	m.lastEvent = current
	return true
}

// ModifiedPaths returns the absolute paths the module's on_modified
// blocks watch, sorted.
func (m *Module) ModifiedPaths() []string {
	out := make([]string, 0, len(m.def.OnModified))
	for key := range m.def.OnModified {
		out = append(out, paths.Resolve(key, m.def.Directory))
	}
	sort.Strings(out)
	return out
}

// ModifiedKey returns the on_modified block key matching an absolute
// path, if any.
func (m *Module) ModifiedKey(path string) (string, bool) {
	for key := range m.def.OnModified {
		if paths.Resolve(key, m.def.Directory) == path {
			return key, true
		}
	}
	return "", false
}

// CompiledSources returns every template source compiled so far, sorted
func (m *Module) CompiledSources() []string {
	out := make([]string, 0, len(m.compiled))
	for source := range m.compiled {
		out = append(out, source)
	}
	sort.Strings(out)
	return out
}

// SetupFingerprint identifies the on_setup block's configuration, used
// by the setup log's run-once rule. An empty block has an empty
// fingerprint.
func (m *Module) SetupFingerprint() string {
	b := m.def.OnSetup
	if b.IsEmpty() {
		return ""
	}
	var parts []string
	for _, a := range b.ImportContext {
		parts = append(parts, action.Fingerprint(action.KindImportContext, a))
	}
	for _, a := range b.Compile {
		parts = append(parts, action.Fingerprint(action.KindCompile, a))
	}
	for _, a := range b.Copy {
		parts = append(parts, action.Fingerprint(action.KindCopy, a))
	}
	for _, a := range b.Symlink {
		parts = append(parts, action.Fingerprint(action.KindSymlink, a))
	}
	for _, a := range b.Stow {
		parts = append(parts, action.Fingerprint(action.KindStow, a))
	}
	for _, a := range b.Run {
		parts = append(parts, action.Fingerprint(action.KindRun, a))
	}
	for _, a := range b.Trigger {
		parts = append(parts, action.Fingerprint(action.KindTrigger, a))
	}
	return strings.Join(parts, "\n")
}

// block returns the named raw block, before trigger expansion
func (m *Module) block(id BlockID, path string) (action.Block, bool) {
	switch id {
	case BlockSetup:
		return m.def.OnSetup, true
	case BlockStartup:
		return m.def.OnStartup, true
	case BlockEvent:
		return m.def.OnEvent, true
	case BlockExit:
		return m.def.OnExit, true
	case BlockModified:
		b, ok := m.def.OnModified[path]
		return b, ok
	}
	return action.Block{}, false
}

// Expand returns the named block with every trigger inlined at its
// position, kind by kind. Chains deeper than the expansion bound are
// reported as a configuration error.
func (m *Module) Expand(id BlockID, path string) (action.Block, error) {
	return m.expand(id, path, 0)
}

func (m *Module) expand(id BlockID, path string, depth int) (action.Block, error) {
	if depth > maxTriggerDepth {
		return action.Block{}, errors.Newf(errors.ErrTriggerDepth,
			"module %q: trigger chain in block %q exceeds depth %d, suspected cycle",
			m.def.Name, id, maxTriggerDepth)
	}

	raw, ok := m.block(id, path)
	if !ok {
		return action.Block{}, errors.Newf(errors.ErrTriggerTarget,
			"module %q has no block %q (path %q)", m.def.Name, id, path)
	}

	base := raw
	base.Trigger = nil
	var expanded action.Block
	expanded.Append(base)
	for _, t := range raw.Trigger {
		inner, err := m.expand(BlockID(t.Block), t.Path, depth+1)
		if err != nil {
			return action.Block{}, err
		}
		expanded.Append(inner)
	}
	return expanded, nil
}

// env is the execution environment every action of this module sees
func (m *Module) env() action.Env {
	return action.Env{
		Module:    m.def.Name,
		Directory: m.def.Directory,
		Context:   m.context,
		Replace:   m.replace,
	}
}

// replace substitutes {event} / {period} and declared {shortname}
// placeholders. A declared but not-yet-compiled shortname is left
// literal with a logged error.
func (m *Module) replace(s string) string {
	label := m.listener.Event()
	s = strings.ReplaceAll(s, "{event}", label)
	s = strings.ReplaceAll(s, "{period}", label)

	for shortname := range m.def.Templates {
		placeholder := "{" + shortname + "}"
		if !strings.Contains(s, placeholder) {
			continue
		}
		target, ok := m.targets[shortname]
		if !ok {
			logger := logging.GetLogger("module")
			logger.Error().
				Str("module", m.def.Name).
				Str("shortname", shortname).
				Msg("Template not yet compiled, placeholder left untouched")
			continue
		}
		s = strings.ReplaceAll(s, placeholder, target)
	}
	return s
}

// RunImports executes the block's import_context actions
func (m *Module) RunImports(block action.Block) {
	env := m.env()
	for _, a := range block.ImportContext {
		_ = m.executor.ExecuteImport(env, a)
	}
}

// RunFiles executes the block's file-producing actions in kind order,
// recording compiled targets for shortname placeholders.
func (m *Module) RunFiles(block action.Block) {
	logger := logging.GetLogger("module")
	env := m.env()

	for _, a := range block.Compile {
		compiled, err := m.executor.ExecuteCompile(env, a)
		if err != nil {
			continue
		}
		m.noteCompiled(compiled, a.Permissions)
	}
	for _, a := range block.Copy {
		if err := m.executor.ExecuteCopy(env, a); err != nil {
			logger.Warn().Err(err).Str("module", m.def.Name).Msg("Copy action failed")
		}
	}
	for _, a := range block.Symlink {
		if err := m.executor.ExecuteSymlink(env, a); err != nil {
			logger.Warn().Err(err).Str("module", m.def.Name).Msg("Symlink action failed")
		}
	}
	for _, a := range block.Stow {
		compiled, err := m.executor.ExecuteStow(env, a)
		if err != nil {
			logger.Warn().Err(err).Str("module", m.def.Name).Msg("Stow action failed")
			continue
		}
		m.noteCompiled(compiled, a.Permissions)
	}
}

// RunCommands executes the block's run actions in declared order
func (m *Module) RunCommands(block action.Block) {
	env := m.env()
	for _, a := range block.Run {
		_, _, _ = m.executor.ExecuteRun(env, a)
	}
}

// RunBlock expands and executes one block on its own, honoring the
// import, materialize, run ordering within the block. The scheduler
// uses the phase methods directly when several modules dispatch in the
// same pass.
func (m *Module) RunBlock(id BlockID, path string) error {
	block, err := m.Expand(id, path)
	if err != nil {
		return err
	}
	m.RunImports(block)
	m.RunFiles(block)
	m.RunCommands(block)
	return nil
}

// Recompile re-renders a previously compiled template in place, used
// when its source file is modified.
func (m *Module) Recompile(source string) {
	record, ok := m.compiled[source]
	if !ok {
		return
	}
	compiled, err := m.executor.ExecuteCompile(m.env(), action.Compile{
		Content:     source,
		Target:      record.target,
		Permissions: record.permissions,
	})
	if err != nil {
		return
	}
	m.noteCompiled(compiled, record.permissions)
}

// noteCompiled records compile results for shortname placeholders and
// source-modification recompiles.
func (m *Module) noteCompiled(compiled map[string]string, permissions string) {
	for source, target := range compiled {
		m.compiled[source] = compiledRecord{target: target, permissions: permissions}
		for shortname, declared := range m.def.Templates {
			if paths.Resolve(declared, m.def.Directory) == source {
				m.targets[shortname] = target
			}
		}
	}
}
