package action

import (
	"fmt"
	"strings"
)

// Plan collects the operations an executor performs, or would perform in
// dry-run mode, for reporting.
type Plan struct {
	entries []string
}

// Addf appends a formatted entry
func (p *Plan) Addf(format string, args ...interface{}) {
	p.entries = append(p.entries, fmt.Sprintf(format, args...))
}

// Lines returns the collected entries in order
func (p *Plan) Lines() []string {
	return p.entries
}

// String renders the plan one entry per line
func (p *Plan) String() string {
	return strings.Join(p.entries, "\n")
}
