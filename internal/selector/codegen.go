package selector

import (
	"fmt"
	"slices"

	"github.com/hashicorp/go-set/v3"

	"tilec/internal/asm"
	"tilec/internal/diag"
	"tilec/internal/forest"
	"tilec/internal/ir"
)

type selection struct {
	tree *forest.Tree
	node *forest.Node
}

// cover walks every tree from its root through the tiles that were chosen
// and returns the tile roots in use, keyed by their IR instruction.
func cover(f *forest.Forest) (map[ir.Instr]selection, error) {
	selected := make(map[ir.Instr]selection)
	for _, t := range f.Trees {
		var walk func(idx int) error
		walk = func(idx int) error {
			n := t.Node(idx)
			switch n.Kind {
			case forest.Inp:
				return nil
			case forest.Wire:
				for _, c := range t.Children(idx) {
					if err := walk(c); err != nil {
						return err
					}
				}
				return nil
			}
			if !n.Committed || n.Tile == nil {
				return uncoverable(f.Def.Sig.ID, n)
			}
			selected[n.Instr] = selection{tree: t, node: n}
			for _, leaf := range n.Tile.Binding {
				if err := walk(leaf); err != nil {
					return err
				}
			}
			return nil
		}
		if err := walk(t.Root); err != nil {
			return nil, err
		}
	}
	return selected, nil
}

func (s *Selector) codegen(f *forest.Forest) (*Result, error) {
	selected, err := cover(f)
	if err != nil {
		return nil, err
	}
	def := f.Def
	out := &ir.Def{Sig: ir.Sig{
		ID:      def.Sig.ID,
		Inputs:  def.Sig.Inputs.Clone(),
		Outputs: def.Sig.Outputs.Clone(),
	}}
	res := &Result{Asm: out, Forest: f, Tiles: make(map[string]int)}
	names := ir.NewNamer(def)
	// absorbed holds values computed inside a tile. Wires reading them were
	// matched by that tile too.
	absorbed := set.New[string](0)
	for _, instr := range def.Body {
		switch in := instr.(type) {
		case *ir.WireInstr:
			if slices.ContainsFunc(in.Args.IDs(), absorbed.Contains) {
				absorbed.InsertSlice(in.Dst.IDs())
				continue
			}
			out.Body = append(out.Body, in.Clone())
		case *ir.CompInstr:
			sel, ok := selected[instr]
			if !ok {
				absorbed.InsertSlice(in.Dst.IDs())
				continue
			}
			p, ok := s.Pattern(sel.node.Tile.Pattern)
			if !ok {
				return nil, diag.Errorf(diag.SelectorError, "%s: unknown pattern %s", def.Sig.ID, sel.node.Tile.Pattern)
			}
			emitted, err := emitTile(def.Sig.ID, names, sel.tree, sel.node, p)
			if err != nil {
				return nil, err
			}
			out.Body = append(out.Body, emitted...)
			res.Tiles[p.Name] += sel.node.Tile.Lanes
		default:
			return nil, diag.Errorf(diag.SelectorError, "%s: cannot select %s", def.Sig.ID, instr.Mnemonic())
		}
	}
	return res, nil
}

// tileArgs lists the bound leaves of a tile in pattern input order.
func tileArgs(def string, t *forest.Tree, n *forest.Node, p *ir.Pattern) (ir.Expr, error) {
	var args ir.Expr
	for _, in := range p.Def.Sig.Inputs {
		idx, ok := n.Tile.Binding[in.ID]
		if !ok {
			return nil, diag.Errorf(diag.SelectorError, "%s: pattern %s never uses its input %s", def, p.Name, in.ID)
		}
		leaf := t.Node(idx)
		args = append(args, ir.Var(leaf.ID, leaf.Ty))
	}
	return args, nil
}

func newAsm(p *ir.Pattern, dst ir.Term, attr, args ir.Expr) *asm.Instr {
	return &asm.Instr{
		Op:   p.Name,
		Area: p.Area,
		Lat:  p.Lat,
		Loc:  ir.Loc{Prim: p.Prim},
		Fields: ir.Fields{
			Dst:  ir.Expr{dst},
			Attr: attr.Clone(),
			Args: args,
		},
	}
}

// emitTile produces the assembly for one selected tile. A lane-split tile
// becomes per-lane extracts, one instruction per lane and a concatenation,
// with temporaries drawn from names.
func emitTile(def string, names *ir.Namer, t *forest.Tree, n *forest.Node, p *ir.Pattern) ([]ir.Instr, error) {
	args, err := tileArgs(def, t, n, p)
	if err != nil {
		return nil, err
	}
	dst := ir.Var(n.ID, n.Ty)
	if n.Tile.Lanes <= 1 {
		return []ir.Instr{newAsm(p, dst, n.Attr, args)}, nil
	}

	var out []ir.Instr
	lanes := n.Tile.Lanes
	split := make(map[string][]ir.Term)
	for _, a := range args {
		if !a.Ty.IsVector() {
			continue
		}
		if _, done := split[a.ID]; done {
			continue
		}
		elem := a.Ty.ElemTy()
		parts := make([]ir.Term, lanes)
		for l := 0; l < lanes; l++ {
			parts[l] = ir.Var(names.Fresh(fmt.Sprintf("__%s_%s_%d", n.ID, a.ID, l)), elem)
			out = append(out, &ir.WireInstr{Op: ir.Ext, Fields: ir.Fields{
				Dst:  ir.Expr{parts[l]},
				Attr: ir.Expr{ir.Val(int64(l))},
				Args: ir.Expr{a},
			}})
		}
		split[a.ID] = parts
	}
	elem := n.Ty.ElemTy()
	results := make(ir.Expr, lanes)
	for l := 0; l < lanes; l++ {
		laneArgs := make(ir.Expr, len(args))
		for i, a := range args {
			if parts, ok := split[a.ID]; ok {
				laneArgs[i] = parts[l]
			} else {
				laneArgs[i] = a
			}
		}
		results[l] = ir.Var(names.Fresh(fmt.Sprintf("__%s_%d", n.ID, l)), elem)
		out = append(out, newAsm(p, results[l], n.Attr, laneArgs))
	}
	out = append(out, &ir.WireInstr{Op: ir.Cat, Fields: ir.Fields{
		Dst:  ir.Expr{dst},
		Args: results,
	}})
	return out, nil
}
