package requires

import (
	"sort"
	"strings"

	"github.com/mbrevik/sundial/pkg/errors"
	"github.com/mbrevik/sundial/pkg/logging"
)

// ValidateDependencies checks the module-requirement graph at startup.
// Referencing a module that is never defined, or forming a cycle, is a
// configuration error.
func ValidateDependencies(deps map[string][]string) error {
	for module, required := range deps {
		for _, dep := range required {
			if _, ok := deps[dep]; !ok {
				return errors.Newf(errors.ErrModuleUndefined,
					"module %q requires undefined module %q", module, dep)
			}
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	states := make(map[string]int, len(deps))

	var visit func(module string, trail []string) error
	visit = func(module string, trail []string) error {
		switch states[module] {
		case done:
			return nil
		case visiting:
			return errors.Newf(errors.ErrModuleCycle,
				"module requirements form a cycle: %s",
				strings.Join(append(trail, module), " -> "))
		}
		states[module] = visiting
		for _, dep := range deps[module] {
			if err := visit(dep, append(trail, module)); err != nil {
				return err
			}
		}
		states[module] = done
		return nil
	}

	modules := make([]string, 0, len(deps))
	for module := range deps {
		modules = append(modules, module)
	}
	sort.Strings(modules)

	for _, module := range modules {
		if err := visit(module, nil); err != nil {
			return err
		}
	}
	return nil
}

// PropagateDisabled extends the disabled set until it is closed under
// module requirements: a module requiring a disabled module is itself
// disabled.
func PropagateDisabled(deps map[string][]string, disabled map[string]bool) map[string]bool {
	logger := logging.GetLogger("requires")

	result := make(map[string]bool, len(disabled))
	for module, off := range disabled {
		if off {
			result[module] = true
		}
	}

	for changed := true; changed; {
		changed = false
		for module, required := range deps {
			if result[module] {
				continue
			}
			for _, dep := range required {
				if result[dep] {
					logger.Info().
						Str("module", module).
						Str("requires", dep).
						Msg("Disabling module with disabled dependency")
					result[module] = true
					changed = true
					break
				}
			}
		}
	}
	return result
}
