package config

import (
	"github.com/mbrevik/sundial/pkg/action"
	"github.com/mbrevik/sundial/pkg/errors"
	"github.com/mbrevik/sundial/pkg/event"
	"github.com/mbrevik/sundial/pkg/module"
	"github.com/mbrevik/sundial/pkg/requires"
)

// Validate checks a loaded configuration tree. Everything caught here is
// fatal at startup, before any action executes.
func Validate(resolved *Resolved) error {
	seen := make(map[string]bool, len(resolved.Modules))
	deps := make(map[string][]string, len(resolved.Modules))

	for _, def := range resolved.Modules {
		if seen[def.Name] {
			return errors.Newf(errors.ErrConfigInvalid,
				"module %q is defined more than once", def.Name)
		}
		seen[def.Name] = true
		deps[def.Name] = requires.ModuleClauses(def.Requires)

		if err := validateListener(def); err != nil {
			return err
		}
		if err := validateTriggers(def); err != nil {
			return err
		}
		if err := validateImports(def); err != nil {
			return err
		}
	}

	return requires.ValidateDependencies(deps)
}

func validateListener(def module.Definition) error {
	switch def.Listener.Type {
	case "", event.TypeStatic, event.TypeWeekday, event.TypeTimeOfDay,
		event.TypePeriodic, event.TypeSolar, event.TypeDaylight:
		return nil
	}
	return errors.Newf(errors.ErrListenerUnknown,
		"module %q: unknown event listener type %q", def.Name, def.Listener.Type)
}

// validateTriggers checks every trigger references an existing block and
// that trigger chains terminate.
func validateTriggers(def module.Definition) error {
	blocks := map[string]action.Block{
		string(module.BlockSetup):   def.OnSetup,
		string(module.BlockStartup): def.OnStartup,
		string(module.BlockEvent):   def.OnEvent,
		string(module.BlockExit):    def.OnExit,
	}
	for path, block := range def.OnModified {
		blocks[string(module.BlockModified)+":"+path] = block
	}

	key := func(t action.Trigger) string {
		if t.Block == string(module.BlockModified) {
			return t.Block + ":" + t.Path
		}
		return t.Block
	}

	for name, block := range blocks {
		for _, t := range block.Trigger {
			if _, ok := blocks[key(t)]; !ok {
				return errors.Newf(errors.ErrTriggerTarget,
					"module %q block %q: trigger references undefined block %q (path %q)",
					def.Name, name, t.Block, t.Path)
			}
		}
	}

	// cycle check over the block trigger graph
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(blocks))
	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visiting:
			return errors.Newf(errors.ErrTriggerDepth,
				"module %q: trigger cycle through block %q", def.Name, name)
		case done:
			return nil
		}
		state[name] = visiting
		for _, t := range blocks[name].Trigger {
			if err := visit(key(t)); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}
	for name := range blocks {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// validateImports enforces the import_context section symmetry: a
// to_section requires a from_section.
func validateImports(def module.Definition) error {
	check := func(blockName string, block action.Block) error {
		for _, a := range block.ImportContext {
			if a.ToSection != "" && a.FromSection == "" {
				return errors.Newf(errors.ErrSectionImport,
					"module %q block %q: import_context sets to_section %q without from_section",
					def.Name, blockName, a.ToSection)
			}
		}
		return nil
	}

	if err := check(string(module.BlockSetup), def.OnSetup); err != nil {
		return err
	}
	if err := check(string(module.BlockStartup), def.OnStartup); err != nil {
		return err
	}
	if err := check(string(module.BlockEvent), def.OnEvent); err != nil {
		return err
	}
	if err := check(string(module.BlockExit), def.OnExit); err != nil {
		return err
	}
	for path, block := range def.OnModified {
		if err := check(string(module.BlockModified)+":"+path, block); err != nil {
			return err
		}
	}
	return nil
}
