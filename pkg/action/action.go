// Package action implements the seven module action kinds and their
// executor. Actions are a closed set of tagged variants; configuration
// decoding rejects anything else.
package action

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Kind identifies an action variant
type Kind string

const (
	KindImportContext Kind = "import_context"
	KindCompile       Kind = "compile"
	KindCopy          Kind = "copy"
	KindSymlink       Kind = "symlink"
	KindStow          Kind = "stow"
	KindRun           Kind = "run"
	KindTrigger       Kind = "trigger"
)

// Kinds lists every action kind, in global execution-phase order
var Kinds = []Kind{
	KindImportContext,
	KindCompile,
	KindCopy,
	KindSymlink,
	KindStow,
	KindRun,
	KindTrigger,
}

// ImportContext merges a YAML file, or one section of it, into the
// shared context store.
type ImportContext struct {
	FromPath    string `yaml:"from_path"`
	FromSection string `yaml:"from_section,omitempty"`
	ToSection   string `yaml:"to_section,omitempty"`
}

// Compile renders a template file, or all matching files under a
// directory, into a target location.
type Compile struct {
	Content string `yaml:"content"`

	// Target defaults to a deterministic path in the persistent
	// compiled-output directory, derived from the content path.
	Target string `yaml:"target,omitempty"`

	// Include selects and renames files in directory mode. The text of
	// the last capture group becomes the target filename.
	Include string `yaml:"include,omitempty"`

	// Permissions is an octal string or symbolic chmod expression
	// applied on top of the source permission bits.
	Permissions string `yaml:"permissions,omitempty"`
}

// Copy copies a file or directory tree to a target location
type Copy struct {
	Content     string `yaml:"content"`
	Target      string `yaml:"target"`
	Include     string `yaml:"include,omitempty"`
	Permissions string `yaml:"permissions,omitempty"`
}

// Symlink links a file or directory tree into a target location. A
// pre-existing regular file at a link path is renamed to <name>.bak
// first.
type Symlink struct {
	Content string `yaml:"content"`
	Target  string `yaml:"target"`
	Include string `yaml:"include,omitempty"`
}

// Stow bisects a directory into templates, which are compiled, and
// everything else, which is symlinked, copied or ignored.
type Stow struct {
	Content string `yaml:"content"`
	Target  string `yaml:"target"`

	// Templates selects which filenames are templates. The default
	// matches "template.<rest>" and renames the target to <rest>.
	Templates string `yaml:"templates,omitempty"`

	// NonTemplates is one of symlink, copy or ignore (default symlink)
	NonTemplates string `yaml:"non_templates,omitempty"`

	Permissions string `yaml:"permissions,omitempty"`
}

// Run executes a shell command with a timeout
type Run struct {
	Shell string `yaml:"shell"`

	// Timeout in seconds; zero uses the scheduler's default
	Timeout float64 `yaml:"timeout,omitempty"`
}

// Trigger executes another action block inline
type Trigger struct {
	Block string `yaml:"block"`

	// Path qualifies which on_modified block to trigger
	Path string `yaml:"path,omitempty"`
}

// Block is an ordered set of actions grouped by kind. Kind order within a
// dispatch is fixed: context imports, then file actions, then runs.
// Triggers are expanded before execution.
type Block struct {
	ImportContext []ImportContext `yaml:"import_context,omitempty"`
	Compile       []Compile       `yaml:"compile,omitempty"`
	Copy          []Copy          `yaml:"copy,omitempty"`
	Symlink       []Symlink       `yaml:"symlink,omitempty"`
	Stow          []Stow          `yaml:"stow,omitempty"`
	Run           []Run           `yaml:"run,omitempty"`
	Trigger       []Trigger       `yaml:"trigger,omitempty"`
}

// IsEmpty reports whether the block holds no actions at all
func (b Block) IsEmpty() bool {
	return len(b.ImportContext) == 0 &&
		len(b.Compile) == 0 &&
		len(b.Copy) == 0 &&
		len(b.Symlink) == 0 &&
		len(b.Stow) == 0 &&
		len(b.Run) == 0 &&
		len(b.Trigger) == 0
}

// Append merges other's actions after b's, kind by kind. This is how a
// triggered block is inlined at the trigger point.
func (b *Block) Append(other Block) {
	b.ImportContext = append(b.ImportContext, other.ImportContext...)
	b.Compile = append(b.Compile, other.Compile...)
	b.Copy = append(b.Copy, other.Copy...)
	b.Symlink = append(b.Symlink, other.Symlink...)
	b.Stow = append(b.Stow, other.Stow...)
	b.Run = append(b.Run, other.Run...)
}

// Fingerprint returns a stable identity for an action configuration,
// used by the setup log to decide whether it has executed before.
func Fingerprint(kind Kind, action interface{}) string {
	data, err := yaml.Marshal(action)
	if err != nil {
		return fmt.Sprintf("%s: %v", kind, action)
	}
	return fmt.Sprintf("%s: %s", kind, data)
}
