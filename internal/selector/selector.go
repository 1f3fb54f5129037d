// Package selector tiles forest trees with library patterns by dynamic
// programming and emits the resulting assembly program.
package selector

import (
	"slices"
	"strings"

	"tilec/internal/diag"
	"tilec/internal/forest"
	"tilec/internal/ir"
)

// DefaultPhases is the order in which primitive classes get to claim
// nodes: DSP slices first, LUT fabric for everything left.
var DefaultPhases = []ir.Prim{ir.PrimDsp, ir.PrimLut}

type compiled struct {
	pat  *ir.Pattern
	tree *forest.Tree
}

// Selector holds the compiled pattern trees. It is safe for concurrent use
// once built; all per-run state lives in the forest.
type Selector struct {
	phases   []ir.Prim
	byPrim   map[ir.Prim][]compiled
	patterns map[string]*ir.Pattern
}

// Option configures a Selector.
type Option func(*Selector)

// WithPhases overrides the phase order.
func WithPhases(phases ...ir.Prim) Option {
	return func(s *Selector) { s.phases = phases }
}

// New compiles patterns into trees. Patterns within a phase are tried in
// name order.
func New(patterns []*ir.Pattern, opts ...Option) (*Selector, error) {
	s := &Selector{
		phases:   DefaultPhases,
		byPrim:   make(map[ir.Prim][]compiled),
		patterns: make(map[string]*ir.Pattern, len(patterns)),
	}
	for _, o := range opts {
		o(s)
	}
	sorted := slices.Clone(patterns)
	slices.SortStableFunc(sorted, func(a, b *ir.Pattern) int {
		return strings.Compare(a.Name, b.Name)
	})
	for _, p := range sorted {
		t, err := forest.FromPattern(p)
		if err != nil {
			return nil, err
		}
		s.byPrim[p.Prim] = append(s.byPrim[p.Prim], compiled{pat: p, tree: t})
		s.patterns[p.Name] = p
	}
	return s, nil
}

// Result is the outcome of selecting one definition.
type Result struct {
	Asm    *ir.Def
	Forest *forest.Forest
	// Tiles counts emitted assembly instructions per pattern.
	Tiles map[string]int
}

// Select tiles def and returns its assembly program.
func (s *Selector) Select(def *ir.Def) (*Result, error) {
	f, err := forest.Build(def)
	if err != nil {
		return nil, err
	}
	for i, prim := range s.phases {
		final := i == len(s.phases)-1
		for _, t := range f.Trees {
			s.tileTree(t, prim, final)
		}
		for _, t := range f.Trees {
			for _, n := range t.Nodes {
				if n.Committed {
					n.Locked = true
				}
			}
		}
	}
	return s.codegen(f)
}

func (s *Selector) tileTree(t *forest.Tree, prim ir.Prim, final bool) {
	for _, idx := range t.PostOrder() {
		n := t.Node(idx)
		switch n.Kind {
		case forest.Wire:
			n.Cost = 0
			for _, c := range t.Children(idx) {
				n.Cost = forest.AddCost(n.Cost, childCost(t.Node(c), final))
			}
			continue
		case forest.Inp:
			continue
		}
		if n.Locked {
			continue
		}
		for _, cp := range s.byPrim[prim] {
			s.try(t, idx, cp, final)
		}
	}
}

// childCost is what a node contributes to the tile above it.
func childCost(n *forest.Node, final bool) int {
	switch {
	case n.Kind != forest.Comp:
		return n.Cost
	case n.Committed:
		return n.Cost
	case final:
		return forest.MaxCost
	default:
		return 0
	}
}

// try matches pattern cp at node idx and commits it if it is cheaper than
// the node's current tile.
func (s *Selector) try(t *forest.Tree, idx int, cp compiled, final bool) {
	n := t.Node(idx)
	lanes := laneSplit(cp.tree.RootNode().Ty, n.Ty)
	if lanes == 0 {
		return
	}
	m := &matcher{ir: t, pat: cp.tree, lanes: lanes, binding: make(map[string]int)}
	ok := m.match(cp.tree.Root, idx)
	defer m.unstage()
	if !ok {
		return
	}
	cost := cp.pat.Area * lanes
	for _, leaf := range m.leaves {
		cost = forest.AddCost(cost, childCost(t.Node(leaf), final))
	}
	if cost >= n.Cost {
		return
	}
	n.Cost = cost
	n.Committed = true
	n.Tile = &forest.Tile{
		Pattern:  cp.pat.Name,
		Lanes:    lanes,
		Binding:  m.binding,
		Interior: append([]int(nil), m.staged...),
	}
}

// laneSplit returns 1 when a pattern type fits a node type directly, the
// lane count when a scalar pattern can be replicated across a vector node,
// and 0 when the types are incompatible.
func laneSplit(pat, node ir.Ty) int {
	if !pat.IsKnown() || pat.Equal(node) {
		return 1
	}
	if !pat.IsVector() && node.IsVector() && node.ElemTy().Equal(pat) {
		return node.Lanes
	}
	return 0
}

type matcher struct {
	ir      *forest.Tree
	pat     *forest.Tree
	lanes   int
	binding map[string]int
	leaves  []int
	staged  []int
}

func (m *matcher) unstage() {
	for _, i := range m.staged {
		m.ir.Node(i).Staged = false
	}
}

// typeFits checks a pattern type against a node type. In a lane-split tile
// interior nodes must be vectors of the pattern type while leaves may also
// be scalars broadcast to every lane.
func (m *matcher) typeFits(pat, node ir.Ty, leaf bool) bool {
	if m.lanes == 1 {
		return !pat.IsKnown() || pat.Equal(node)
	}
	if !pat.IsKnown() {
		return (node.IsVector() && node.Lanes == m.lanes) || (leaf && !node.IsVector())
	}
	if node.Equal(ir.Vec(pat, m.lanes)) {
		return true
	}
	return leaf && pat.Equal(node)
}

func (m *matcher) match(pi, ni int) bool {
	p, n := m.pat.Node(pi), m.ir.Node(ni)
	if p.Kind == forest.Inp {
		if !m.typeFits(p.Ty, n.Ty, true) {
			return false
		}
		if prev, ok := m.binding[p.ID]; ok {
			return m.ir.Node(prev).ID == n.ID
		}
		m.binding[p.ID] = ni
		m.leaves = append(m.leaves, ni)
		return true
	}
	if n.Kind != p.Kind || n.Staged {
		return false
	}
	if pi != m.pat.Root {
		// Interior IR nodes keep the tile an earlier phase gave them.
		if n.Locked {
			return false
		}
	}
	switch p.Kind {
	case forest.Comp:
		if n.Comp != p.Comp {
			return false
		}
		if n.Prim != ir.PrimAny && n.Prim != p.Prim {
			return false
		}
	case forest.Wire:
		if n.Wire != p.Wire {
			return false
		}
	}
	if !attrMatch(p.Attr, n.Attr) || !m.typeFits(p.Ty, n.Ty, false) {
		return false
	}
	pc, nc := m.pat.Children(pi), m.ir.Children(ni)
	if len(pc) != len(nc) {
		return false
	}
	if pi != m.pat.Root {
		n.Staged = true
		m.staged = append(m.staged, ni)
	}
	for k := range pc {
		if !m.match(pc[k], nc[k]) {
			return false
		}
	}
	return true
}

func attrMatch(pat, node ir.Expr) bool {
	if len(pat) != len(node) {
		return false
	}
	for i, t := range pat {
		if t.Kind == ir.AnyTerm {
			continue
		}
		if t.Kind != node[i].Kind || (t.IsVal() && t.Val != node[i].Val) {
			return false
		}
	}
	return true
}

// Pattern returns the compiled pattern called name.
func (s *Selector) Pattern(name string) (*ir.Pattern, bool) {
	p, ok := s.patterns[name]
	return p, ok
}

// Candidates returns the effective cost of every pattern of the given
// phase that matches node idx of t, keyed by pattern name. Selection
// state is left untouched.
func (s *Selector) Candidates(t *forest.Tree, idx int, prim ir.Prim, final bool) map[string]int {
	out := make(map[string]int)
	n := t.Node(idx)
	for _, cp := range s.byPrim[prim] {
		lanes := laneSplit(cp.tree.RootNode().Ty, n.Ty)
		if lanes == 0 {
			continue
		}
		m := &matcher{ir: t, pat: cp.tree, lanes: lanes, binding: make(map[string]int)}
		ok := m.match(cp.tree.Root, idx)
		m.unstage()
		if !ok {
			continue
		}
		cost := cp.pat.Area * lanes
		for _, leaf := range m.leaves {
			cost = forest.AddCost(cost, childCost(t.Node(leaf), final))
		}
		out[cp.pat.Name] = cost
	}
	return out
}

func uncoverable(def string, n *forest.Node) error {
	return diag.Errorf(diag.SelectorError, "%s: no pattern covers %s = %s (%s @%s)", def, n.ID, n.Op(), n.Ty, n.Prim)
}
