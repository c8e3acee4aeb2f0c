package module

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbrevik/sundial/pkg/action"
	ctxstore "github.com/mbrevik/sundial/pkg/context"
	"github.com/mbrevik/sundial/pkg/errors"
	"github.com/mbrevik/sundial/pkg/event"
	"github.com/mbrevik/sundial/pkg/state"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// a Monday
var monday = time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC)

func testModule(t *testing.T, def Definition, clock event.Clock) *Module {
	t.Helper()
	if def.Directory == "" {
		def.Directory = t.TempDir()
	}
	created, err := state.LoadCreatedFiles(filepath.Join(t.TempDir(), "created_files.yml"))
	require.NoError(t, err)
	executor := action.NewExecutor(action.Options{
		Created:     created,
		CompiledDir: t.TempDir(),
	})
	m, err := New(def, clock, executor, ctxstore.New())
	require.NoError(t, err)
	return m
}

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestNewUnknownListenerType(t *testing.T) {
	_, err := New(Definition{
		Name:     "broken",
		Listener: event.Config{Type: "lunar"},
	}, nil, nil, ctxstore.New())
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrListenerUnknown))
}

func TestHasNewEvent(t *testing.T) {
	clock := &fakeClock{now: monday}
	m := testModule(t, Definition{
		Name:     "wallpaper",
		Listener: event.Config{Type: event.TypeWeekday},
	}, clock)

	assert.False(t, m.HasNewEvent())

	clock.now = monday.AddDate(0, 0, 1)
	assert.True(t, m.HasNewEvent())
	assert.False(t, m.HasNewEvent())
}

func TestReplaceEventPlaceholder(t *testing.T) {
	m := testModule(t, Definition{
		Name:     "wallpaper",
		Listener: event.Config{Type: event.TypeWeekday},
	}, &fakeClock{now: monday})

	assert.Equal(t, "set-wallpaper monday", m.replace("set-wallpaper {event}"))
	assert.Equal(t, "set-wallpaper monday", m.replace("set-wallpaper {period}"))
}

func TestReplaceShortnameAfterCompile(t *testing.T) {
	dir := t.TempDir()
	m := testModule(t, Definition{
		Name:      "terminal",
		Directory: dir,
		Templates: map[string]string{"colors": "colors.template"},
		OnStartup: action.Block{
			Compile: []action.Compile{{Content: "colors.template", Target: "colors.conf"}},
		},
	}, nil)
	writeFile(t, filepath.Join(dir, "colors.template"), "bg=black")

	// declared but not yet compiled: placeholder stays literal
	assert.Equal(t, "cat {colors}", m.replace("cat {colors}"))

	require.NoError(t, m.RunBlock(BlockStartup, ""))
	assert.Equal(t, "cat "+filepath.Join(dir, "colors.conf"), m.replace("cat {colors}"))
}

func TestRunBlockOrdering(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "out")
	m := testModule(t, Definition{
		Name:      "ordered",
		Directory: dir,
		Templates: map[string]string{"conf": "conf.template"},
		OnStartup: action.Block{
			// the run action reads the file the compile action produces
			Compile: []action.Compile{{Content: "conf.template", Target: "conf"}},
			Run:     []action.Run{{Shell: "cat {conf} > " + marker, Timeout: 5}},
		},
	}, nil)
	writeFile(t, filepath.Join(dir, "conf.template"), "materialized")

	require.NoError(t, m.RunBlock(BlockStartup, ""))

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "materialized", string(data))
}

func TestExpandInlinesTrigger(t *testing.T) {
	m := testModule(t, Definition{
		Name: "chained",
		OnEvent: action.Block{
			Run:     []action.Run{{Shell: "first"}},
			Trigger: []action.Trigger{{Block: string(BlockStartup)}},
		},
		OnStartup: action.Block{
			Run: []action.Run{{Shell: "second"}},
		},
	}, nil)

	block, err := m.Expand(BlockEvent, "")
	require.NoError(t, err)
	assert.Equal(t, []action.Run{{Shell: "first"}, {Shell: "second"}}, block.Run)
	assert.Empty(t, block.Trigger)
}

func TestExpandOnModifiedTrigger(t *testing.T) {
	m := testModule(t, Definition{
		Name: "watcher",
		OnEvent: action.Block{
			Trigger: []action.Trigger{{Block: string(BlockModified), Path: "colors.conf"}},
		},
		OnModified: map[string]action.Block{
			"colors.conf": {Run: []action.Run{{Shell: "reload"}}},
		},
	}, nil)

	block, err := m.Expand(BlockEvent, "")
	require.NoError(t, err)
	assert.Equal(t, []action.Run{{Shell: "reload"}}, block.Run)
}

func TestExpandUnknownTarget(t *testing.T) {
	m := testModule(t, Definition{
		Name: "dangling",
		OnEvent: action.Block{
			Trigger: []action.Trigger{{Block: string(BlockModified), Path: "nope"}},
		},
	}, nil)

	_, err := m.Expand(BlockEvent, "")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrTriggerTarget))
}

func TestExpandCycleBounded(t *testing.T) {
	m := testModule(t, Definition{
		Name: "loop",
		OnEvent: action.Block{
			Trigger: []action.Trigger{{Block: string(BlockStartup)}},
		},
		OnStartup: action.Block{
			Trigger: []action.Trigger{{Block: string(BlockEvent)}},
		},
	}, nil)

	_, err := m.Expand(BlockEvent, "")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrTriggerDepth))
}

func TestExpandDoesNotMutateDefinition(t *testing.T) {
	m := testModule(t, Definition{
		Name: "pristine",
		OnEvent: action.Block{
			Run:     []action.Run{{Shell: "first"}},
			Trigger: []action.Trigger{{Block: string(BlockStartup)}},
		},
		OnStartup: action.Block{Run: []action.Run{{Shell: "second"}}},
	}, nil)

	_, err := m.Expand(BlockEvent, "")
	require.NoError(t, err)
	_, err = m.Expand(BlockEvent, "")
	require.NoError(t, err)

	assert.Len(t, m.def.OnEvent.Run, 1)
	assert.Len(t, m.def.OnEvent.Trigger, 1)
}

func TestModifiedPaths(t *testing.T) {
	dir := t.TempDir()
	m := testModule(t, Definition{
		Name:      "watched",
		Directory: dir,
		OnModified: map[string]action.Block{
			"b.conf": {},
			"a.conf": {},
		},
	}, nil)

	assert.Equal(t, []string{
		filepath.Join(dir, "a.conf"),
		filepath.Join(dir, "b.conf"),
	}, m.ModifiedPaths())
}

func TestSetupFingerprint(t *testing.T) {
	a := testModule(t, Definition{
		Name:    "a",
		OnSetup: action.Block{Run: []action.Run{{Shell: "install"}}},
	}, nil)
	b := testModule(t, Definition{
		Name:    "b",
		OnSetup: action.Block{Run: []action.Run{{Shell: "install"}}},
	}, nil)
	c := testModule(t, Definition{
		Name:    "c",
		OnSetup: action.Block{Run: []action.Run{{Shell: "install --force"}}},
	}, nil)
	empty := testModule(t, Definition{Name: "empty"}, nil)

	assert.Equal(t, a.SetupFingerprint(), b.SetupFingerprint())
	assert.NotEqual(t, a.SetupFingerprint(), c.SetupFingerprint())
	assert.Empty(t, empty.SetupFingerprint())
}

func TestRecompileAfterSourceChange(t *testing.T) {
	dir := t.TempDir()
	m := testModule(t, Definition{
		Name:      "live",
		Directory: dir,
		OnStartup: action.Block{
			Compile: []action.Compile{{Content: "conf.template", Target: "conf"}},
		},
	}, nil)
	source := filepath.Join(dir, "conf.template")
	target := filepath.Join(dir, "conf")
	writeFile(t, source, "v1")

	require.NoError(t, m.RunBlock(BlockStartup, ""))
	assert.Equal(t, []string{source}, m.CompiledSources())

	writeFile(t, source, "v2")
	m.Recompile(source)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}
