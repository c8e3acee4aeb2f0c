package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbrevik/sundial/pkg/context"
	"github.com/mbrevik/sundial/pkg/errors"
)

func testStore() *context.Store {
	return context.FromMap(map[string]interface{}{
		"colors": map[string]interface{}{"primary": "#CACCFD"},
		"fonts":  map[interface{}]interface{}{1: "FuraCode", 2: "FuraMono"},
	})
}

func TestRenderFieldAccess(t *testing.T) {
	out, err := New().Render("color {{ .colors.primary }}", testStore())
	require.NoError(t, err)
	assert.Equal(t, "color #CACCFD", out)
}

func TestRenderValueFunctionAppliesNumericFallback(t *testing.T) {
	out, err := New().Render(`font {{ value "fonts.7" }}`, testStore())
	require.NoError(t, err)
	assert.Equal(t, "font FuraMono", out)
}

func TestRenderMissingValueIsEmpty(t *testing.T) {
	out, err := New().Render(`{{ value "missing.key" }}`, testStore())
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestRenderParseError(t *testing.T) {
	_, err := New().Render("{{ .unclosed", testStore())
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrRenderFailed))
}

func TestRenderIsDeterministic(t *testing.T) {
	store := testStore()
	first, err := New().Render(`{{ .colors.primary }}/{{ value "fonts.1" }}`, store)
	require.NoError(t, err)
	second, err := New().Render(`{{ .colors.primary }}/{{ value "fonts.1" }}`, store)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
