package context

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbrevik/sundial/pkg/errors"
)

func TestNumericFallbackResolution(t *testing.T) {
	store := FromMap(map[string]interface{}{
		"fonts": map[interface{}]interface{}{
			1: "A",
			2: "B",
		},
	})

	v, ok := store.Resolve("fonts.1")
	require.True(t, ok)
	assert.Equal(t, "A", v)

	v, ok = store.Resolve("fonts.2")
	require.True(t, ok)
	assert.Equal(t, "B", v)

	// Misses resolve to the greatest available key at that level
	v, ok = store.Resolve("fonts.3")
	require.True(t, ok)
	assert.Equal(t, "B", v)
}

func TestNumericFallbackSingleKey(t *testing.T) {
	store := FromMap(map[string]interface{}{
		"fonts": map[interface{}]interface{}{1: "A"},
	})

	v, ok := store.Resolve("fonts.5")
	require.True(t, ok)
	assert.Equal(t, "A", v)
}

func TestNumericFallbackBelowSmallest(t *testing.T) {
	store := New()
	store.SetIndex(2, "B")
	store.SetIndex(4, "D")

	v, ok := store.GetIndex(1)
	require.True(t, ok)
	assert.Equal(t, "B", v)

	v, ok = store.GetIndex(3)
	require.True(t, ok)
	assert.Equal(t, "B", v)
}

func TestStringKeysHaveNoFallback(t *testing.T) {
	store := New()
	store.Set("primary", "red")

	_, ok := store.Get("secondary")
	assert.False(t, ok)
}

func TestDigitStringKeysAreNumeric(t *testing.T) {
	store := New()
	store.Set("1", "one")

	v, ok := store.GetIndex(7)
	require.True(t, ok)
	assert.Equal(t, "one", v)
}

func TestUpdateDeepMerges(t *testing.T) {
	store := FromMap(map[string]interface{}{
		"colors": map[string]interface{}{"primary": "red", "accent": "blue"},
		"host":   "alpha",
	})
	store.Update(FromMap(map[string]interface{}{
		"colors": map[string]interface{}{"primary": "green"},
	}))

	v, _ := store.Resolve("colors.primary")
	assert.Equal(t, "green", v)
	v, _ = store.Resolve("colors.accent")
	assert.Equal(t, "blue", v)
	v, _ = store.Resolve("host")
	assert.Equal(t, "alpha", v)
}

func TestReverseUpdateKeepsExisting(t *testing.T) {
	store := FromMap(map[string]interface{}{"host": "alpha"})
	store.ReverseUpdate(FromMap(map[string]interface{}{
		"host":  "beta",
		"extra": true,
	}))

	v, _ := store.Resolve("host")
	assert.Equal(t, "alpha", v)
	v, _ = store.Resolve("extra")
	assert.Equal(t, true, v)
}

func TestCopyIsIndependent(t *testing.T) {
	store := FromMap(map[string]interface{}{
		"colors": map[string]interface{}{"primary": "red"},
	})
	clone := store.Copy()
	clone.Update(FromMap(map[string]interface{}{
		"colors": map[string]interface{}{"primary": "green"},
	}))

	v, _ := store.Resolve("colors.primary")
	assert.Equal(t, "red", v)
}

func TestAsMapFlattens(t *testing.T) {
	store := FromMap(map[string]interface{}{
		"fonts": map[interface{}]interface{}{1: "A"},
		"host":  "alpha",
	})

	m := store.AsMap()
	assert.Equal(t, "alpha", m["host"])
	fonts, ok := m["fonts"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "A", fonts["1"])
}

func writeContextFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "context.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestImportFileAllSections(t *testing.T) {
	path := writeContextFile(t, "colors:\n  primary: red\nhost: alpha\n")

	store := New()
	require.NoError(t, store.ImportFile(path, "", ""))

	v, _ := store.Resolve("colors.primary")
	assert.Equal(t, "red", v)
	v, _ = store.Resolve("host")
	assert.Equal(t, "alpha", v)
}

func TestImportFileSingleSection(t *testing.T) {
	path := writeContextFile(t, "colors:\n  primary: red\nhost: alpha\n")

	store := New()
	require.NoError(t, store.ImportFile(path, "colors", ""))

	v, ok := store.Resolve("colors.primary")
	require.True(t, ok)
	assert.Equal(t, "red", v)
	_, ok = store.Get("host")
	assert.False(t, ok)
}

func TestImportFileRenamedSection(t *testing.T) {
	path := writeContextFile(t, "colors:\n  primary: red\n")

	store := New()
	require.NoError(t, store.ImportFile(path, "colors", "palette"))

	v, ok := store.Resolve("palette.primary")
	require.True(t, ok)
	assert.Equal(t, "red", v)
}

func TestImportFileToSectionWithoutFromSection(t *testing.T) {
	path := writeContextFile(t, "colors:\n  primary: red\n")

	store := New()
	err := store.ImportFile(path, "", "palette")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrSectionImport))
}

func TestImportFileMissingFile(t *testing.T) {
	store := New()
	err := store.ImportFile("/nonexistent/context.yml", "", "")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrFileNotFound))
}

func TestImportFileMissingSection(t *testing.T) {
	path := writeContextFile(t, "colors:\n  primary: red\n")

	store := New()
	err := store.ImportFile(path, "fonts", "")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound))
}

func TestImportNumericKeysFromYAML(t *testing.T) {
	path := writeContextFile(t, "fonts:\n  1: FuraCode\n  2: FuraMono\n")

	store := New()
	require.NoError(t, store.ImportFile(path, "", ""))

	v, ok := store.Resolve("fonts.4")
	require.True(t, ok)
	assert.Equal(t, "FuraMono", v)
}
