package action

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ctxstore "github.com/mbrevik/sundial/pkg/context"
	"github.com/mbrevik/sundial/pkg/state"
)

func testEnv(t *testing.T, store *ctxstore.Store) Env {
	t.Helper()
	if store == nil {
		store = ctxstore.New()
	}
	return Env{
		Module:    "test",
		Directory: t.TempDir(),
		Context:   store,
	}
}

func testExecutor(t *testing.T) (*Executor, *state.CreatedFiles) {
	t.Helper()
	created, err := state.LoadCreatedFiles(filepath.Join(t.TempDir(), "created_files.yml"))
	require.NoError(t, err)
	return NewExecutor(Options{
		Created:     created,
		CompiledDir: t.TempDir(),
	}), created
}

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestExecuteCompileFile(t *testing.T) {
	x, created := testExecutor(t)
	store := ctxstore.FromMap(map[string]interface{}{
		"host": map[string]interface{}{"name": "laptop"},
	})
	env := testEnv(t, store)

	source := filepath.Join(env.Directory, "motd.template")
	target := filepath.Join(env.Directory, "motd")
	writeFile(t, source, "welcome to {{ value \"host.name\" }}")

	compiled, err := x.ExecuteCompile(env, Compile{Content: "motd.template", Target: "motd"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{source: target}, compiled)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "welcome to laptop", string(data))
	assert.Contains(t, created.Targets("test"), target)
}

func TestExecuteCompileDefaultTarget(t *testing.T) {
	x, _ := testExecutor(t)
	env := testEnv(t, nil)
	writeFile(t, filepath.Join(env.Directory, "conf.template"), "static")

	first, err := x.ExecuteCompile(env, Compile{Content: "conf.template"})
	require.NoError(t, err)
	second, err := x.ExecuteCompile(env, Compile{Content: "conf.template"})
	require.NoError(t, err)

	// no configured target: output goes to a deterministic path in the
	// compiled directory, stable across invocations
	assert.Equal(t, first, second)
	for _, target := range first {
		assert.Equal(t, x.compiledDir, filepath.Dir(target))
	}
}

func TestExecuteCompileIdempotent(t *testing.T) {
	x, _ := testExecutor(t)
	store := ctxstore.FromMap(map[string]interface{}{"user": "kari"})
	env := testEnv(t, store)
	writeFile(t, filepath.Join(env.Directory, "conf.template"), "name={{ value \"user\" }}")

	a := Compile{Content: "conf.template", Target: "conf", Permissions: "640"}
	_, err := x.ExecuteCompile(env, a)
	require.NoError(t, err)
	first, err := os.ReadFile(filepath.Join(env.Directory, "conf"))
	require.NoError(t, err)

	_, err = x.ExecuteCompile(env, a)
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(env.Directory, "conf"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	info, err := os.Stat(filepath.Join(env.Directory, "conf"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode().Perm())
}

func TestExecuteCompileDirectoryWithInclude(t *testing.T) {
	x, _ := testExecutor(t)
	env := testEnv(t, nil)
	writeFile(t, filepath.Join(env.Directory, "templates", "template.bashrc"), "a")
	writeFile(t, filepath.Join(env.Directory, "templates", "sub", "template.vimrc"), "b")
	writeFile(t, filepath.Join(env.Directory, "templates", "README"), "not me")

	target := filepath.Join(env.Directory, "out")
	_, err := x.ExecuteCompile(env, Compile{
		Content: "templates",
		Target:  "out",
		Include: `template\.(.+)`,
	})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(target, "bashrc"))
	assert.FileExists(t, filepath.Join(target, "sub", "vimrc"))
	assert.NoFileExists(t, filepath.Join(target, "README"))
}

func TestExecuteCompileMissingContent(t *testing.T) {
	x, _ := testExecutor(t)
	env := testEnv(t, nil)

	_, err := x.ExecuteCompile(env, Compile{Content: "no-such-file"})
	assert.Error(t, err)
}

func TestExecuteCompilePermissions(t *testing.T) {
	x, _ := testExecutor(t)
	env := testEnv(t, nil)
	writeFile(t, filepath.Join(env.Directory, "script.template"), "#!/bin/sh")

	_, err := x.ExecuteCompile(env, Compile{
		Content:     "script.template",
		Target:      "script",
		Permissions: "755",
	})
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(env.Directory, "script"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())
}

func TestExecuteCopyFile(t *testing.T) {
	x, created := testExecutor(t)
	env := testEnv(t, nil)
	writeFile(t, filepath.Join(env.Directory, "src"), "payload")

	require.NoError(t, x.ExecuteCopy(env, Copy{Content: "src", Target: "dst"}))

	data, err := os.ReadFile(filepath.Join(env.Directory, "dst"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.Contains(t, created.Targets("test"), filepath.Join(env.Directory, "dst"))
}

func TestExecuteCopyDirectory(t *testing.T) {
	x, _ := testExecutor(t)
	env := testEnv(t, nil)
	writeFile(t, filepath.Join(env.Directory, "tree", "one"), "1")
	writeFile(t, filepath.Join(env.Directory, "tree", "deep", "two"), "2")

	require.NoError(t, x.ExecuteCopy(env, Copy{Content: "tree", Target: "out"}))

	assert.FileExists(t, filepath.Join(env.Directory, "out", "one"))
	assert.FileExists(t, filepath.Join(env.Directory, "out", "deep", "two"))
}

func TestExecuteSymlinkFile(t *testing.T) {
	x, _ := testExecutor(t)
	env := testEnv(t, nil)
	source := filepath.Join(env.Directory, "src")
	writeFile(t, source, "linked")

	require.NoError(t, x.ExecuteSymlink(env, Symlink{Content: "src", Target: "dst"}))

	resolved, err := os.Readlink(filepath.Join(env.Directory, "dst"))
	require.NoError(t, err)
	assert.Equal(t, source, resolved)
}

func TestExecuteSymlinkBacksUpExistingFile(t *testing.T) {
	x, created := testExecutor(t)
	env := testEnv(t, nil)
	source := filepath.Join(env.Directory, "src")
	target := filepath.Join(env.Directory, "dst")
	writeFile(t, source, "new")
	writeFile(t, target, "precious")

	require.NoError(t, x.ExecuteSymlink(env, Symlink{Content: "src", Target: "dst"}))

	backup, err := os.ReadFile(target + ".bak")
	require.NoError(t, err)
	assert.Equal(t, "precious", string(backup))

	resolved, err := os.Readlink(target)
	require.NoError(t, err)
	assert.Equal(t, source, resolved)

	creations := created.By("test")
	require.Len(t, creations, 1)
	assert.Equal(t, target+".bak", creations[0].Backup)
}

func TestExecuteSymlinkReplacesExistingLink(t *testing.T) {
	x, _ := testExecutor(t)
	env := testEnv(t, nil)
	source := filepath.Join(env.Directory, "src")
	stale := filepath.Join(env.Directory, "stale")
	target := filepath.Join(env.Directory, "dst")
	writeFile(t, source, "new")
	writeFile(t, stale, "old")
	require.NoError(t, os.Symlink(stale, target))

	require.NoError(t, x.ExecuteSymlink(env, Symlink{Content: "src", Target: "dst"}))

	resolved, err := os.Readlink(target)
	require.NoError(t, err)
	assert.Equal(t, source, resolved)
	assert.NoFileExists(t, target+".bak")
}

func TestExecuteStow(t *testing.T) {
	x, _ := testExecutor(t)
	store := ctxstore.FromMap(map[string]interface{}{"user": "kari"})
	env := testEnv(t, store)

	writeFile(t, filepath.Join(env.Directory, "dotfiles", "template.gitconfig"), "name = {{ value \"user\" }}")
	writeFile(t, filepath.Join(env.Directory, "dotfiles", "plain.conf"), "untouched")

	target := filepath.Join(env.Directory, "home")
	compiled, err := x.ExecuteStow(env, Stow{Content: "dotfiles", Target: "home"})
	require.NoError(t, err)
	assert.Len(t, compiled, 1)

	data, err := os.ReadFile(filepath.Join(target, "gitconfig"))
	require.NoError(t, err)
	assert.Equal(t, "name = kari", string(data))

	// non-templates default to symlinks
	info, err := os.Lstat(filepath.Join(target, "plain.conf"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink)
}

func TestExecuteStowNonTemplatesCopy(t *testing.T) {
	x, _ := testExecutor(t)
	env := testEnv(t, nil)
	writeFile(t, filepath.Join(env.Directory, "dotfiles", "plain.conf"), "untouched")

	_, err := x.ExecuteStow(env, Stow{
		Content:      "dotfiles",
		Target:       "home",
		NonTemplates: "copy",
	})
	require.NoError(t, err)

	info, err := os.Lstat(filepath.Join(env.Directory, "home", "plain.conf"))
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())
}

func TestExecuteStowNonTemplatesIgnore(t *testing.T) {
	x, _ := testExecutor(t)
	env := testEnv(t, nil)
	writeFile(t, filepath.Join(env.Directory, "dotfiles", "plain.conf"), "untouched")

	_, err := x.ExecuteStow(env, Stow{
		Content:      "dotfiles",
		Target:       "home",
		NonTemplates: "ignore",
	})
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(env.Directory, "home", "plain.conf"))
}

func TestDryRunPerformsNothing(t *testing.T) {
	created, err := state.LoadCreatedFiles(filepath.Join(t.TempDir(), "created_files.yml"))
	require.NoError(t, err)
	plan := &Plan{}
	x := NewExecutor(Options{
		Created:     created,
		CompiledDir: t.TempDir(),
		DryRun:      true,
		Plan:        plan,
	})
	env := testEnv(t, nil)
	writeFile(t, filepath.Join(env.Directory, "src"), "payload")

	require.NoError(t, x.ExecuteCopy(env, Copy{Content: "src", Target: "dst"}))
	command, _, err := x.ExecuteRun(env, Run{Shell: "touch ran"})
	require.NoError(t, err)
	assert.Equal(t, "touch ran", command)

	assert.NoFileExists(t, filepath.Join(env.Directory, "dst"))
	assert.NoFileExists(t, filepath.Join(env.Directory, "ran"))
	assert.Empty(t, created.Modules())
	assert.Len(t, plan.Lines(), 2)
}

func TestExecuteRunCapturesStdout(t *testing.T) {
	x, _ := testExecutor(t)
	env := testEnv(t, nil)

	command, stdout, err := x.ExecuteRun(env, Run{Shell: "echo hello"})
	require.NoError(t, err)
	assert.Equal(t, "echo hello", command)
	assert.Equal(t, "hello", stdout)
}

func TestExecuteRunSubstitutesPlaceholders(t *testing.T) {
	x, _ := testExecutor(t)
	env := testEnv(t, nil)
	env.Replace = func(s string) string {
		return regexp.MustCompile(`\{event\}`).ReplaceAllString(s, "monday")
	}

	command, stdout, err := x.ExecuteRun(env, Run{Shell: "echo {event}"})
	require.NoError(t, err)
	assert.Equal(t, "echo monday", command)
	assert.Equal(t, "monday", stdout)
}

func TestRenamedRule(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		file    string
		want    string
		ok      bool
	}{
		{"no match skips", `template\.(.+)`, "README", "", false},
		{"capture renames", `template\.(.+)`, "template.bashrc", "bashrc", true},
		{"no groups keeps name", `.+\.conf`, "app.conf", "app.conf", true},
		{"last group wins", `(a)\.(.+)`, "a.vimrc", "vimrc", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re := regexp.MustCompile(tt.pattern)
			got, ok := renamed(re, tt.file)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseChmod(t *testing.T) {
	tests := []struct {
		name    string
		current os.FileMode
		expr    string
		want    os.FileMode
		wantErr bool
	}{
		{"octal", 0644, "600", 0600, false},
		{"add execute", 0644, "u+x", 0744, false},
		{"remove write", 0666, "go-w", 0644, false},
		{"assign all", 0777, "a=r", 0444, false},
		{"clauses", 0644, "u+x,o-r", 0740, false},
		{"garbage", 0644, "banana", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseChmod(tt.current, tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBlockAppendExcludesTriggers(t *testing.T) {
	block := Block{Run: []Run{{Shell: "first"}}}
	block.Append(Block{
		Run:     []Run{{Shell: "second"}},
		Trigger: []Trigger{{Block: "on_startup"}},
	})

	assert.Equal(t, []Run{{Shell: "first"}, {Shell: "second"}}, block.Run)
	assert.Empty(t, block.Trigger)
}

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint(KindRun, Run{Shell: "echo hi", Timeout: 2})
	b := Fingerprint(KindRun, Run{Shell: "echo hi", Timeout: 2})
	c := Fingerprint(KindRun, Run{Shell: "echo bye", Timeout: 2})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
