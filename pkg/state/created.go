// Package state persists the side effects of module actions between runs:
// which files were created (and what they backed up), and which on_setup
// actions have already executed. Both records are flat YAML files in the
// sundial data directory, so cleanup works across process restarts.
package state

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/mbrevik/sundial/pkg/errors"
	"github.com/mbrevik/sundial/pkg/logging"
)

// Method records how an action produced a file
type Method string

const (
	MethodCompiled  Method = "compiled"
	MethodCopied    Method = "copied"
	MethodSymlinked Method = "symlinked"
)

// Creation is the persisted record for one file produced by a module
type Creation struct {
	// Content is the source file the creation was produced from
	Content string `yaml:"content"`

	// Method is how the file was produced
	Method Method `yaml:"method"`

	// Hash is the content hash of the created file at creation time
	Hash string `yaml:"hash,omitempty"`

	// Backup is the path a pre-existing file was moved to, if any
	Backup string `yaml:"backup,omitempty"`
}

// CreatedFiles persists which files have been created by which module
type CreatedFiles struct {
	path      string
	creations map[string]map[string]Creation
}

// LoadCreatedFiles reads the created-files record at path, which need not
// exist yet.
func LoadCreatedFiles(path string) (*CreatedFiles, error) {
	c := &CreatedFiles{
		path:      path,
		creations: make(map[string]map[string]Creation),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrStateLoad,
			"could not read created files record %q", path)
	}
	if err := yaml.Unmarshal(data, &c.creations); err != nil {
		return nil, errors.Wrapf(err, errors.ErrStateLoad,
			"could not parse created files record %q", path)
	}
	if c.creations == nil {
		c.creations = make(map[string]map[string]Creation)
	}
	return c, nil
}

// Insert records a file created by a module and persists the record.
// Targets that do not exist on disk are skipped.
func (c *CreatedFiles) Insert(module string, method Method, content string, target string, backup string) error {
	if _, err := os.Lstat(target); err != nil {
		return nil
	}

	moduleSection := c.creations[module]
	if moduleSection == nil {
		moduleSection = make(map[string]Creation)
		c.creations[module] = moduleSection
	}

	moduleSection[target] = Creation{
		Content: content,
		Method:  method,
		Hash:    fileHash(target),
		Backup:  backup,
	}
	return c.write()
}

// By returns the paths created by a module, sorted by target path
func (c *CreatedFiles) By(module string) []Creation {
	section := c.creations[module]
	targets := make([]string, 0, len(section))
	for target := range section {
		targets = append(targets, target)
	}
	sort.Strings(targets)

	out := make([]Creation, 0, len(targets))
	for _, target := range targets {
		out = append(out, section[target])
	}
	return out
}

// Targets returns the created file paths for a module, sorted
func (c *CreatedFiles) Targets(module string) []string {
	section := c.creations[module]
	targets := make([]string, 0, len(section))
	for target := range section {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	return targets
}

// Modules returns every module with recorded creations, sorted
func (c *CreatedFiles) Modules() []string {
	modules := make([]string, 0, len(c.creations))
	for module := range c.creations {
		modules = append(modules, module)
	}
	sort.Strings(modules)
	return modules
}

// Cleanup removes every file created by a module, restoring any recorded
// backups, and drops the module from the record. With dryRun set it only
// logs what would happen.
func (c *CreatedFiles) Cleanup(module string, dryRun bool) error {
	logger := logging.GetLogger("state")

	for _, target := range c.Targets(module) {
		info := c.creations[module][target]
		event := logger.Info().
			Str("module", module).
			Str("target", target).
			Str("method", string(info.Method))

		if dryRun {
			event.Msg("Would remove created file")
			continue
		}

		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("target", target).Msg("Could not remove created file")
		} else {
			event.Msg("Removed created file")
		}

		if info.Backup != "" {
			if err := os.Rename(info.Backup, target); err != nil {
				logger.Warn().Err(err).
					Str("backup", info.Backup).
					Str("target", target).
					Msg("Could not restore backup")
			} else {
				logger.Info().Str("target", target).Msg("Restored backup")
			}
		}
	}

	if dryRun {
		return nil
	}
	delete(c.creations, module)
	return c.write()
}

func (c *CreatedFiles) write() error {
	data, err := yaml.Marshal(c.creations)
	if err != nil {
		return errors.Wrap(err, errors.ErrStateWrite, "could not encode created files record")
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return errors.Wrap(err, errors.ErrStateWrite, "could not create state directory")
	}
	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return errors.Wrapf(err, errors.ErrStateWrite,
			"could not write created files record %q", c.path)
	}
	return nil
}

func fileHash(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		// Symlinks to directories and unreadable targets carry no hash
		return ""
	}
	return fmt.Sprintf("%x", sha256.Sum256(data))
}
