package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mbrevik/sundial/pkg/action"
	ctxstore "github.com/mbrevik/sundial/pkg/context"
	"github.com/mbrevik/sundial/pkg/errors"
	"github.com/mbrevik/sundial/pkg/event"
	"github.com/mbrevik/sundial/pkg/module"
	"github.com/mbrevik/sundial/pkg/requires"
)

// section key prefixes in the configuration file
const (
	modulePrefix  = "module/"
	contextPrefix = "context/"
)

// Resolved is a fully loaded and validated configuration tree
type Resolved struct {
	// Path is the configuration file the tree was loaded from
	Path string

	// Modules in declared order
	Modules []module.Definition

	// Context holds the baseline context sections from the file
	Context *ctxstore.Store
}

// moduleConfig is the YAML shape of one module/<name> section
type moduleConfig struct {
	Enabled       interface{}             `yaml:"enabled"`
	Requires      []requires.Clause       `yaml:"requires"`
	EventListener event.Config            `yaml:"event_listener"`
	Templates     map[string]string       `yaml:"templates"`
	OnSetup       action.Block            `yaml:"on_setup"`
	OnStartup     action.Block            `yaml:"on_startup"`
	OnEvent       action.Block            `yaml:"on_event"`
	OnExit        action.Block            `yaml:"on_exit"`
	OnModified    map[string]action.Block `yaml:"on_modified"`
}

// LoadFile reads and validates the configuration tree at path. Module
// declaration order in the file is preserved; the scheduler dispatches
// in that order.
func LoadFile(path string) (*Resolved, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrConfigInvalid,
			"could not read configuration file %q", path)
	}
	return parse(path, data)
}

func parse(path string, data []byte) (*Resolved, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, errors.ErrConfigInvalid,
			"could not parse configuration file %q", path)
	}

	resolved := &Resolved{
		Path:    path,
		Context: ctxstore.New(),
	}
	if len(doc.Content) == 0 {
		return resolved, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.Newf(errors.ErrConfigInvalid,
			"configuration file %q must hold a mapping at the top level", path)
	}

	dir := filepath.Dir(path)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		value := root.Content[i+1]

		switch {
		case strings.HasPrefix(key, modulePrefix):
			def, err := decodeModule(strings.TrimPrefix(key, modulePrefix), dir, value)
			if err != nil {
				return nil, err
			}
			resolved.Modules = append(resolved.Modules, def)

		case strings.HasPrefix(key, contextPrefix):
			var section map[string]interface{}
			if err := value.Decode(&section); err != nil {
				return nil, errors.Wrapf(err, errors.ErrConfigInvalid,
					"could not decode context section %q", key)
			}
			resolved.Context.Set(strings.TrimPrefix(key, contextPrefix),
				ctxstore.FromMap(section))

		default:
			return nil, errors.Newf(errors.ErrConfigInvalid,
				"unknown configuration section %q, expected module/<name> or context/<name>", key)
		}
	}

	if err := Validate(resolved); err != nil {
		return nil, err
	}
	return resolved, nil
}

func decodeModule(name string, dir string, node *yaml.Node) (module.Definition, error) {
	if name == "" {
		return module.Definition{}, errors.New(errors.ErrConfigInvalid,
			"module section with empty name")
	}
	if err := checkBlockKeys(name, node); err != nil {
		return module.Definition{}, err
	}

	var cfg moduleConfig
	if err := node.Decode(&cfg); err != nil {
		return module.Definition{}, errors.Wrapf(err, errors.ErrConfigInvalid,
			"could not decode module %q", name)
	}

	return module.Definition{
		Name:       name,
		Directory:  dir,
		Enabled:    enabledValue(cfg.Enabled),
		Requires:   cfg.Requires,
		Listener:   cfg.EventListener,
		Templates:  cfg.Templates,
		OnSetup:    cfg.OnSetup,
		OnStartup:  cfg.OnStartup,
		OnEvent:    cfg.OnEvent,
		OnExit:     cfg.OnExit,
		OnModified: cfg.OnModified,
	}, nil
}

// blockKeys is the closed set of action kinds a block may hold
var blockKeys = func() map[string]bool {
	keys := make(map[string]bool, len(action.Kinds))
	for _, kind := range action.Kinds {
		keys[string(kind)] = true
	}
	return keys
}()

var moduleBlockNames = []string{
	string(module.BlockSetup),
	string(module.BlockStartup),
	string(module.BlockEvent),
	string(module.BlockExit),
}

// checkBlockKeys rejects unknown action kinds inside a module's blocks.
// Action kinds are a closed set; a typo must fail at startup, not be
// silently dropped.
func checkBlockKeys(moduleName string, node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		value := node.Content[i+1]

		for _, blockName := range moduleBlockNames {
			if key == blockName {
				if err := checkActionKeys(moduleName, key, value); err != nil {
					return err
				}
			}
		}
		if key == string(module.BlockModified) && value.Kind == yaml.MappingNode {
			for j := 0; j+1 < len(value.Content); j += 2 {
				blockName := string(module.BlockModified) + ":" + value.Content[j].Value
				if err := checkActionKeys(moduleName, blockName, value.Content[j+1]); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func checkActionKeys(moduleName string, blockName string, node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i < len(node.Content); i += 2 {
		if !blockKeys[node.Content[i].Value] {
			return errors.Newf(errors.ErrConfigInvalid,
				"module %q block %q: unknown action kind %q",
				moduleName, blockName, node.Content[i].Value)
		}
	}
	return nil
}

// enabledValue interprets the enabled flag. Missing means enabled; the
// strings "false", "off" and "0" count as disabled alongside the
// boolean.
func enabledValue(v interface{}) bool {
	switch value := v.(type) {
	case nil:
		return true
	case bool:
		return value
	case string:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "false", "off", "0", "":
			return false
		}
		return true
	case int:
		return value != 0
	}
	return true
}
