package action

import (
	"crypto/sha256"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/mbrevik/sundial/pkg/errors"
	"github.com/mbrevik/sundial/pkg/logging"
	"github.com/mbrevik/sundial/pkg/state"
)

// default filename patterns
const (
	defaultInclude      = "(.+)"
	defaultStowTemplate = `template\.(.+)`
)

// ExecuteCompile renders a template file, or every matching file under a
// directory, into its target. The returned map has source keys and target
// values for each performed compilation.
func (x *Executor) ExecuteCompile(env Env, a Compile) (map[string]string, error) {
	logger := logging.GetLogger("action")

	content := env.path(a.Content)
	info, err := os.Stat(content)
	if err != nil {
		logger.Error().
			Str("module", env.Module).
			Str("content", content).
			Msg("Compile content path does not exist")
		return nil, errors.Wrapf(err, errors.ErrFileNotFound,
			"compile content %q does not exist", content)
	}

	if !info.IsDir() {
		target := x.defaultTarget(content)
		if a.Target != "" {
			target = env.path(a.Target)
		}
		if err := x.compileOne(env, content, target, a.Permissions); err != nil {
			return nil, err
		}
		return map[string]string{content: target}, nil
	}

	include, err := includeRegex(a.Include)
	if err != nil {
		return nil, err
	}
	targetRoot := env.path(a.Target)

	compiled := make(map[string]string)
	walkFiles(content, func(source string, rel string) {
		name, ok := renamed(include, filepath.Base(rel))
		if !ok {
			return
		}
		target := filepath.Join(targetRoot, filepath.Dir(rel), name)
		if err := x.compileOne(env, source, target, a.Permissions); err == nil {
			compiled[source] = target
		}
	})
	return compiled, nil
}

// ExecuteCopy copies a file or every matching file under a directory
func (x *Executor) ExecuteCopy(env Env, a Copy) error {
	content := env.path(a.Content)
	target := env.path(a.Target)

	return x.eachFile(env, content, target, a.Include, func(source, dest string) error {
		return x.copyOne(env, source, dest, a.Permissions)
	})
}

// ExecuteSymlink links a file or every matching file under a directory.
// A pre-existing regular file at a link path is renamed to <name>.bak
// before the link is created.
func (x *Executor) ExecuteSymlink(env Env, a Symlink) error {
	content := env.path(a.Content)
	target := env.path(a.Target)

	return x.eachFile(env, content, target, a.Include, func(source, dest string) error {
		return x.linkOne(env, source, dest)
	})
}

// ExecuteStow bisects a content directory by the templates pattern:
// matches are compiled with compile's renaming rule, everything else is
// symlinked, copied or ignored per non_templates.
func (x *Executor) ExecuteStow(env Env, a Stow) (map[string]string, error) {
	logger := logging.GetLogger("action")

	content := env.path(a.Content)
	info, err := os.Stat(content)
	if err != nil || !info.IsDir() {
		logger.Error().
			Str("module", env.Module).
			Str("content", content).
			Msg("Stow content path is not a directory")
		return nil, errors.Newf(errors.ErrActionExecute,
			"stow content %q is not a directory", content)
	}

	pattern := defaultStowTemplate
	if a.Templates != "" {
		pattern = env.expand(a.Templates)
	}
	templates, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrActionInvalid,
			"invalid stow templates pattern %q", pattern)
	}

	nonTemplates := a.NonTemplates
	if nonTemplates == "" {
		nonTemplates = "symlink"
	}
	switch nonTemplates {
	case "symlink", "copy", "ignore":
	default:
		logger.Error().
			Str("module", env.Module).
			Str("non_templates", nonTemplates).
			Msg(`Unsupported non_templates option, should be "symlink", "copy" or "ignore"`)
		nonTemplates = "symlink"
	}

	targetRoot := env.path(a.Target)
	compiled := make(map[string]string)

	walkFiles(content, func(source string, rel string) {
		base := filepath.Base(rel)
		if name, ok := renamed(templates, base); ok {
			target := filepath.Join(targetRoot, filepath.Dir(rel), name)
			if err := x.compileOne(env, source, target, a.Permissions); err == nil {
				compiled[source] = target
			}
			return
		}

		dest := filepath.Join(targetRoot, rel)
		switch nonTemplates {
		case "symlink":
			_ = x.linkOne(env, source, dest)
		case "copy":
			_ = x.copyOne(env, source, dest, "")
		}
	})
	return compiled, nil
}

// eachFile applies fn to a single file, or to every matching file under a
// directory tree with the include/rename rule applied.
func (x *Executor) eachFile(env Env, content string, target string, includeSpec string, fn func(source, dest string) error) error {
	logger := logging.GetLogger("action")

	info, err := os.Stat(content)
	if err != nil {
		logger.Error().
			Str("module", env.Module).
			Str("content", content).
			Msg("Content path does not exist")
		return errors.Wrapf(err, errors.ErrFileNotFound,
			"content %q does not exist", content)
	}

	if !info.IsDir() {
		return fn(content, target)
	}

	include, err := includeRegex(includeSpec)
	if err != nil {
		return err
	}
	walkFiles(content, func(source string, rel string) {
		name, ok := renamed(include, filepath.Base(rel))
		if !ok {
			return
		}
		_ = fn(source, filepath.Join(target, filepath.Dir(rel), name))
	})
	return nil
}

// compileOne renders a single template to target
func (x *Executor) compileOne(env Env, source string, target string, permissions string) error {
	logger := logging.GetLogger("action")

	x.note("[%s] compile %s -> %s", env.Module, source, target)
	if x.dryRun {
		return nil
	}

	data, err := os.ReadFile(source)
	if err != nil {
		logger.Error().Err(err).
			Str("module", env.Module).
			Str("template", source).
			Msg("Could not read template")
		return errors.Wrapf(err, errors.ErrFileNotFound, "could not read template %q", source)
	}

	rendered, err := x.renderer.Render(string(data), env.Context)
	if err != nil {
		logger.Error().Err(err).
			Str("module", env.Module).
			Str("template", source).
			Msg("Template rendering failed")
		return err
	}

	sourceInfo, err := os.Stat(source)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "could not stat %q", source)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrFileCreate, "could not create target directory for %q", target)
	}
	if err := os.WriteFile(target, []byte(rendered), sourceInfo.Mode().Perm()); err != nil {
		return errors.Wrapf(err, errors.ErrFileCreate, "could not write compiled target %q", target)
	}
	// WriteFile only applies the mode on creation
	if err := os.Chmod(target, sourceInfo.Mode().Perm()); err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "could not set permissions on %q", target)
	}

	if err := x.applyPermissions(env, target, permissions); err != nil {
		return err
	}

	logger.Info().
		Str("module", env.Module).
		Str("template", source).
		Str("target", target).
		Msg("Compiled template")
	x.record(env, state.MethodCompiled, source, target, "")
	return nil
}

// copyOne copies one file to dest, preserving permissions
func (x *Executor) copyOne(env Env, source string, dest string, permissions string) error {
	logger := logging.GetLogger("action")

	x.note("[%s] copy %s -> %s", env.Module, source, dest)
	if x.dryRun {
		return nil
	}

	data, err := os.ReadFile(source)
	if err != nil {
		logger.Error().Err(err).
			Str("module", env.Module).
			Str("source", source).
			Msg("Could not read copy source")
		return errors.Wrapf(err, errors.ErrFileNotFound, "could not read %q", source)
	}
	info, err := os.Stat(source)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "could not stat %q", source)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrFileCreate, "could not create target directory for %q", dest)
	}
	if err := os.WriteFile(dest, data, info.Mode().Perm()); err != nil {
		return errors.Wrapf(err, errors.ErrFileCreate, "could not write %q", dest)
	}
	if err := os.Chmod(dest, info.Mode().Perm()); err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "could not set permissions on %q", dest)
	}

	if err := x.applyPermissions(env, dest, permissions); err != nil {
		return err
	}

	x.record(env, state.MethodCopied, source, dest, "")
	return nil
}

// linkOne symlinks source at dest, backing up a pre-existing regular file
func (x *Executor) linkOne(env Env, source string, dest string) error {
	logger := logging.GetLogger("action")

	x.note("[%s] symlink %s -> %s", env.Module, dest, source)
	if x.dryRun {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrFileCreate, "could not create target directory for %q", dest)
	}

	backup := ""
	if info, err := os.Lstat(dest); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			if err := os.Remove(dest); err != nil {
				return errors.Wrapf(err, errors.ErrSymlinkCreate,
					"could not replace existing symlink %q", dest)
			}
		} else if info.Mode().IsRegular() {
			backup = dest + ".bak"
			if err := os.Rename(dest, backup); err != nil {
				return errors.Wrapf(err, errors.ErrSymlinkCreate,
					"could not back up existing file %q", dest)
			}
			logger.Info().
				Str("module", env.Module).
				Str("target", dest).
				Str("backup", backup).
				Msg("Backed up existing file before symlinking")
		} else {
			logger.Error().
				Str("module", env.Module).
				Str("target", dest).
				Msg("Symlink target exists and is not a file")
			return errors.Newf(errors.ErrSymlinkCreate,
				"symlink target %q exists and is not a file", dest)
		}
	}

	if err := os.Symlink(source, dest); err != nil {
		logger.Error().Err(err).
			Str("module", env.Module).
			Str("target", dest).
			Msg("Could not create symlink")
		return errors.Wrapf(err, errors.ErrSymlinkCreate, "could not symlink %q", dest)
	}

	x.record(env, state.MethodSymlinked, source, dest, backup)
	return nil
}

// defaultTarget returns the persistent compile target for a template with
// no configured target. The path is derived from the template's absolute
// path so restarts find prior output.
func (x *Executor) defaultTarget(content string) string {
	sum := sha256.Sum256([]byte(content))
	name := fmt.Sprintf("%x-%s", sum[:8], filepath.Base(content))
	return filepath.Join(x.compiledDir, name)
}

func includeRegex(spec string) (*regexp.Regexp, error) {
	if spec == "" {
		spec = defaultInclude
	}
	re, err := regexp.Compile(spec)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrActionInvalid,
			"invalid include pattern %q", spec)
	}
	return re, nil
}

// renamed applies the include/rename rule to a filename: no match means
// skip; with capture groups, the text of the last matched group becomes
// the new filename.
func renamed(re *regexp.Regexp, name string) (string, bool) {
	groups := re.FindStringSubmatch(name)
	if groups == nil {
		return "", false
	}
	for i := len(groups) - 1; i >= 1; i-- {
		if groups[i] != "" {
			return groups[i], true
		}
	}
	return name, true
}

// walkFiles calls fn for every regular file under root with its path
// relative to root
func walkFiles(root string, fn func(path string, rel string)) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		fn(path, rel)
		return nil
	})
}

// applyPermissions applies an octal or symbolic chmod expression on top
// of the target's current mode
func (x *Executor) applyPermissions(env Env, target string, expr string) error {
	if expr == "" {
		return nil
	}

	expanded := env.expand(expr)
	info, err := os.Stat(target)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "could not stat %q", target)
	}

	mode, err := parseChmod(info.Mode().Perm(), expanded)
	if err != nil {
		logger := logging.GetLogger("action")
		logger.Error().Err(err).
			Str("module", env.Module).
			Str("permissions", expanded).
			Msg("Invalid permissions expression")
		return err
	}
	if err := os.Chmod(target, mode); err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess,
			"could not apply permissions %q to %q", expanded, target)
	}
	return nil
}
