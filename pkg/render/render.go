// Package render defines the template rendering capability consumed by
// compile actions. The engine itself is pluggable; the default renders Go
// text/template syntax against the context store.
package render

import (
	"strings"
	"text/template"

	"github.com/mbrevik/sundial/pkg/context"
	"github.com/mbrevik/sundial/pkg/errors"
)

// Renderer renders template source text against a context store
type Renderer interface {
	Render(source string, store *context.Store) (string, error)
}

type templateRenderer struct{}

// New returns the default text/template backed renderer.
//
// Context values are reachable both as fields (`{{ .colors.primary }}`)
// and through the `value` function (`{{ value "fonts.1" }}`), which
// applies the numeric-key fallback rule.
func New() Renderer {
	return templateRenderer{}
}

func (templateRenderer) Render(source string, store *context.Store) (string, error) {
	funcs := template.FuncMap{
		"value": func(path string) interface{} {
			v, ok := store.Resolve(path)
			if !ok {
				return ""
			}
			return v
		},
	}

	tmpl, err := template.New("template").Funcs(funcs).Option("missingkey=zero").Parse(source)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrRenderFailed, "template parse failed")
	}

	var out strings.Builder
	if err := tmpl.Execute(&out, store.AsMap()); err != nil {
		return "", errors.Wrap(err, errors.ErrRenderFailed, "template execution failed")
	}
	return out.String(), nil
}
