// Package passes holds the program-wide transformations that run between
// parsing and instruction selection.
package passes

import (
	"tilec/internal/diag"
	"tilec/internal/ir"
)

// Pass transforms a program in place.
type Pass interface {
	Name() string
	Run(prog *ir.Prog) error
}

// Manager runs passes in registration order and stops at the first failure.
type Manager struct {
	passes   []Pass
	reporter *diag.Reporter
}

// NewManager returns an empty manager. reporter may be nil.
func NewManager(reporter *diag.Reporter) *Manager {
	return &Manager{reporter: reporter}
}

// Add appends a pass.
func (m *Manager) Add(p Pass) {
	m.passes = append(m.passes, p)
}

// Run executes every pass over prog.
func (m *Manager) Run(prog *ir.Prog) error {
	if prog == nil {
		return diag.Errorf(diag.UnknownError, "pass manager requires a non-nil program")
	}
	for _, p := range m.passes {
		m.reporter.Notef("running %s", p.Name())
		if err := p.Run(prog); err != nil {
			return err
		}
	}
	return nil
}

// Default returns the manager the compile pipeline uses: call inlining
// followed by type inference.
func Default(reporter *diag.Reporter) *Manager {
	m := NewManager(reporter)
	m.Add(NewInline(reporter))
	m.Add(NewTypeInference(reporter))
	return m
}
