// Package forest partitions a definition's dataflow graph into trees, one
// per root value, and compiles patterns into the same tree shape so the
// selector can match one against the other.
package forest

import (
	"math"
	"strings"

	"github.com/hashicorp/go-set/v3"

	"tilec/internal/diag"
	"tilec/internal/ir"
)

// MaxCost marks a node nothing has covered yet.
const MaxCost = math.MaxInt

// AddCost is saturating addition on costs.
func AddCost(a, b int) int {
	if a == MaxCost || b == MaxCost || a > MaxCost-b {
		return MaxCost
	}
	return a + b
}

// Kind tells leaves from wire and computation nodes.
type Kind uint8

const (
	// Inp is a leaf: an input of the definition or a value rooted in
	// another tree.
	Inp Kind = iota
	Wire
	Comp
)

// Node is one value of a tree. Selection state lives next to the IR
// shape it annotates.
type Node struct {
	Index int
	ID    string
	Ty    ir.Ty
	Kind  Kind
	Wire  ir.WireOp
	Comp  ir.CompOp
	Attr  ir.Expr
	Prim  ir.Prim
	Instr ir.Instr

	Cost      int
	Staged    bool
	Committed bool
	// Locked is set on nodes committed by an earlier selection phase.
	Locked bool
	Tile   *Tile
}

// Tile records the pattern a committed node was covered with.
type Tile struct {
	Pattern string
	// Lanes is 1 unless a scalar pattern was split across a vector node.
	Lanes int
	// Binding maps pattern input ids to the tree nodes they matched.
	Binding map[string]int
	// Interior lists the tree nodes the tile covers besides its root.
	Interior []int
}

// Op renders the node operation.
func (n *Node) Op() string {
	switch n.Kind {
	case Wire:
		return n.Wire.String()
	case Comp:
		return n.Comp.String()
	default:
		return "inp"
	}
}

// Tree is a rooted tree of nodes with positional successors.
type Tree struct {
	Root  int
	Nodes []*Node
	Succ  [][]int
}

// Node returns the node at index i.
func (t *Tree) Node(i int) *Node { return t.Nodes[i] }

// Children returns the successors of i in operand order.
func (t *Tree) Children(i int) []int { return t.Succ[i] }

// RootNode returns the root node.
func (t *Tree) RootNode() *Node { return t.Nodes[t.Root] }

// PostOrder lists node indices children first.
func (t *Tree) PostOrder() []int {
	out := make([]int, 0, len(t.Nodes))
	var visit func(int)
	visit = func(i int) {
		for _, c := range t.Succ[i] {
			visit(c)
		}
		out = append(out, i)
	}
	visit(t.Root)
	return out
}

func (t *Tree) add(n *Node) int {
	n.Index = len(t.Nodes)
	t.Nodes = append(t.Nodes, n)
	t.Succ = append(t.Succ, nil)
	return n.Index
}

// String renders the tree as a nested expression, e.g. "add(mul(a, b), c)".
func (t *Tree) String() string {
	var b strings.Builder
	var visit func(int)
	visit = func(i int) {
		n := t.Nodes[i]
		if n.Kind == Inp {
			b.WriteString(n.ID)
			return
		}
		b.WriteString(n.Op())
		if len(n.Attr) > 0 {
			b.WriteString("[" + n.Attr.String() + "]")
		}
		b.WriteString("(")
		for k, c := range t.Succ[i] {
			if k > 0 {
				b.WriteString(", ")
			}
			visit(c)
		}
		b.WriteString(")")
	}
	visit(t.Root)
	return b.String()
}

// Forest is the tree partition of one definition.
type Forest struct {
	Def   *ir.Def
	Trees []*Tree
	roots *set.Set[string]
}

// IsRoot reports whether id starts its own tree.
func (f *Forest) IsRoot(id string) bool { return f.roots.Contains(id) }

// Roots lists root ids in body order.
func (f *Forest) Roots() []string {
	out := make([]string, 0, len(f.Trees))
	for _, t := range f.Trees {
		out = append(out, t.RootNode().ID)
	}
	return out
}

// Build partitions def. Calls must have been inlined; every computation
// instruction ends up as an interior node of exactly one tree.
func Build(def *ir.Def) (*Forest, error) {
	producers := ir.Producers(def.Body)
	for _, instr := range def.Body {
		if c, ok := instr.(*ir.CallInstr); ok {
			return nil, diag.Errorf(diag.ConversionError, "%s: call to %s must be inlined before selection", def.Sig.ID, c.Name)
		}
	}
	sinks := terminalUses(def, producers)

	roots := set.New[string](len(def.Body))
	for _, instr := range def.Body {
		c, ok := instr.(*ir.CompInstr)
		if !ok {
			continue
		}
		id := c.Dst[0].ID
		// Only a value feeding exactly one computation may be absorbed.
		if c.Op == ir.Reg || sinks[id] != (useCount{comps: 1}) {
			roots.Insert(id)
		}
	}

	f := &Forest{Def: def, roots: roots}
	for _, instr := range def.Body {
		c, ok := instr.(*ir.CompInstr)
		if !ok || !roots.Contains(c.Dst[0].ID) {
			continue
		}
		t := &Tree{}
		b := &builder{producers: producers, roots: roots, tree: t}
		t.Root = b.visitInstr(c)
		f.Trees = append(f.Trees, t)
	}
	return f, nil
}

type useCount struct {
	comps   int
	outputs int
	// dangling counts wire chains that end without reaching a computation
	// or an output.
	dangling int
}

// terminalUses counts, for every value, the computation operands and
// outputs it reaches through chains of wire instructions.
func terminalUses(def *ir.Def, producers map[string]ir.Instr) map[string]useCount {
	direct := make(map[string][]ir.Instr)
	for _, instr := range def.Body {
		for _, t := range instr.Base().Args {
			if t.IsVar() {
				direct[t.ID] = append(direct[t.ID], instr)
			}
		}
	}
	memo := make(map[string]useCount)
	var count func(id string, depth int) useCount
	count = func(id string, depth int) useCount {
		if u, ok := memo[id]; ok {
			return u
		}
		var u useCount
		if def.IsOutput(id) {
			u.outputs++
		}
		for _, user := range direct[id] {
			w, ok := user.(*ir.WireInstr)
			if !ok {
				u.comps++
				continue
			}
			if depth > len(def.Body) {
				continue
			}
			inner := count(w.Dst[0].ID, depth+1)
			if inner == (useCount{}) {
				u.dangling++
				continue
			}
			u.comps += inner.comps
			u.outputs += inner.outputs
			u.dangling += inner.dangling
		}
		memo[id] = u
		return u
	}
	out := make(map[string]useCount)
	for id := range producers {
		out[id] = count(id, 0)
	}
	return out
}

type builder struct {
	producers map[string]ir.Instr
	roots     *set.Set[string]
	tree      *Tree
}

func (b *builder) visitInstr(instr ir.Instr) int {
	f := instr.Base()
	n := &Node{ID: f.Dst[0].ID, Ty: f.Dst[0].Ty, Attr: f.Attr, Instr: instr, Cost: MaxCost}
	switch in := instr.(type) {
	case *ir.CompInstr:
		n.Kind, n.Comp, n.Prim = Comp, in.Op, in.Prim
	case *ir.WireInstr:
		n.Kind, n.Wire = Wire, in.Op
		n.Cost = 0
	}
	idx := b.tree.add(n)
	var succ []int
	for _, a := range f.Args {
		succ = append(succ, b.visitArg(a))
	}
	b.tree.Succ[idx] = succ
	return idx
}

func (b *builder) visitArg(a ir.Term) int {
	p, ok := b.producers[a.ID]
	if !ok || b.roots.Contains(a.ID) {
		return b.tree.add(&Node{ID: a.ID, Ty: a.Ty, Kind: Inp})
	}
	return b.visitInstr(p)
}

// FromPattern compiles a pattern into a tree rooted at its single output.
// Computation nodes without a primitive class inherit the pattern's.
func FromPattern(p *ir.Pattern) (*Tree, error) {
	def := p.Def
	if len(def.Sig.Outputs) != 1 {
		return nil, diag.Errorf(diag.TypeError, "pattern %s must have exactly one output", p.Name)
	}
	producers := ir.Producers(def.Body)
	root, ok := producers[def.Sig.Outputs[0].ID]
	if !ok {
		return nil, diag.Errorf(diag.TypeError, "pattern %s never defines its output", p.Name)
	}
	t := &Tree{}
	b := &builder{producers: producers, roots: set.New[string](0), tree: t}
	t.Root = b.visitInstr(root)
	for _, n := range t.Nodes {
		if n.Kind == Comp && n.Prim == ir.PrimAny {
			n.Prim = p.Prim
		}
	}
	return t, nil
}
