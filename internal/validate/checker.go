// Package validate checks that a pattern and implementation library is
// usable by the selector and the assembler.
package validate

import (
	"fmt"

	"github.com/hashicorp/go-set/v3"

	"tilec/internal/diag"
	"tilec/internal/ir"
	"tilec/internal/machine"
)

// CheckLibrary validates patterns and imps. Bodies must already carry
// argument types. The first issue is returned; Issues lists all of them.
func CheckLibrary(pats []*ir.Pattern, imps []*machine.Imp) error {
	if issues := Issues(pats, imps); len(issues) > 0 {
		if len(issues) == 1 {
			return issues[0]
		}
		return fmt.Errorf("%w (and %d more library issue(s))", issues[0], len(issues)-1)
	}
	return nil
}

// Issues returns every problem found in the library.
func Issues(pats []*ir.Pattern, imps []*machine.Imp) []error {
	c := &checker{imps: make(map[string]*machine.Imp, len(imps))}
	seenImp := set.New[string](len(imps))
	for _, m := range imps {
		if !seenImp.Insert(m.Name) {
			c.error(diag.TypeError, "implementation %s declared more than once", m.Name)
			continue
		}
		c.imps[m.Name] = m
		c.checkImp(m)
	}
	seenPat := set.New[string](len(pats))
	for _, p := range pats {
		if !seenPat.Insert(p.Name) {
			c.error(diag.TypeError, "pattern %s declared more than once", p.Name)
			continue
		}
		c.checkPattern(p)
	}
	return c.errs
}

type checker struct {
	imps map[string]*machine.Imp
	errs []error
}

func (c *checker) error(kind diag.Kind, format string, args ...any) {
	c.errs = append(c.errs, diag.Errorf(kind, format, args...))
}

func (c *checker) checkPattern(p *ir.Pattern) {
	def := p.Def
	if len(def.Sig.Outputs) != 1 {
		c.error(diag.TypeError, "pattern %s must have exactly one output, has %d", p.Name, len(def.Sig.Outputs))
		return
	}
	if p.Prim == ir.PrimAny {
		c.error(diag.TypeError, "pattern %s must target a concrete primitive class", p.Name)
	}
	root := def.Sig.Outputs[0].ID
	producers := ir.Producers(def.Body)
	if _, ok := producers[root].(*ir.CompInstr); !ok {
		c.error(diag.TypeError, "pattern %s: output %s must be produced by a computation", p.Name, root)
	}

	uses := ir.UseCounts(def)
	for _, instr := range def.Body {
		for _, id := range instr.Base().Dst.IDs() {
			if uses[id] != 1 {
				c.error(diag.TypeError, "pattern %s: %s is used %d time(s); pattern bodies must form a tree", p.Name, id, uses[id])
			}
		}
		comp, ok := instr.(*ir.CompInstr)
		if !ok {
			continue
		}
		if comp.Prim != ir.PrimAny && comp.Prim != p.Prim {
			c.error(diag.TypeError, "pattern %s targets %s but contains %s @%s", p.Name, p.Prim, comp.Op, comp.Prim)
		}
		if comp.Op == ir.Mux && len(comp.Args) == 3 {
			cond := comp.Args[0].Ty
			if cond.IsKnown() && cond.ElemTy().Kind != ir.TyBool {
				c.error(diag.TypeError, "pattern %s: mux operands are (cond, then, else) but the condition %s is %s", p.Name, comp.Args[0].ID, cond)
			}
		}
	}

	m, ok := c.imps[p.Name]
	if !ok {
		c.error(diag.AssemblerError, "pattern %s has no implementation", p.Name)
		return
	}
	if len(m.Def.Sig.Inputs) != len(def.Sig.Inputs) || len(m.Def.Sig.Outputs) != len(def.Sig.Outputs) {
		c.error(diag.AssemblerError, "pattern %s takes %d input(s) and %d output(s) but its implementation has %d and %d",
			p.Name, len(def.Sig.Inputs), len(def.Sig.Outputs), len(m.Def.Sig.Inputs), len(m.Def.Sig.Outputs))
	}
}

func (c *checker) checkImp(m *machine.Imp) {
	if len(m.Def.Sig.Outputs) == 0 {
		c.error(diag.AssemblerError, "implementation %s has no outputs", m.Name)
	}
	for _, instr := range m.Def.Body {
		switch in := instr.(type) {
		case *ir.WireInstr:
		case *machine.Instr:
			c.checkMachine(m.Name, in)
		default:
			c.error(diag.AssemblerError, "implementation %s: %s is not a machine primitive", m.Name, instr.Mnemonic())
		}
	}
}

func (c *checker) checkMachine(imp string, in *machine.Instr) {
	want := -1
	switch {
	case in.Op.IsLut():
		want = in.Op.LutInputs()
		if len(in.Attr) != 1 {
			c.error(diag.AssemblerError, "implementation %s: %s needs an INIT attribute", imp, in.Op)
			break
		}
		if k := in.Op.LutInputs(); k < 6 && in.Attr[0].IsVal() && uint64(in.Attr[0].Val) >= 1<<(1<<k) {
			c.error(diag.AssemblerError, "implementation %s: INIT %s does not fit %s", imp, in.Attr[0], in.Op)
		}
	case in.Op.IsFlop():
		want = 2
	case in.Op == machine.Carry8:
		want = 3
	case in.Op == machine.Gnd || in.Op == machine.Vcc:
		want = 0
	case in.Op == machine.DspMulAdd:
		if len(in.Args) != 3 && len(in.Args) != 4 {
			c.error(diag.AssemblerError, "implementation %s: %s takes 3 or 4 argument(s), got %d", imp, in.Op, len(in.Args))
		}
	case in.Op.IsDsp():
		want = 2
	}
	if want >= 0 && len(in.Args) != want {
		c.error(diag.AssemblerError, "implementation %s: %s takes %d argument(s), got %d", imp, in.Op, want, len(in.Args))
	}
	if in.Loc != nil && in.Op.IsDsp() != (in.Loc.Bel == machine.BelDsp) {
		c.error(diag.AssemblerError, "implementation %s: %s cannot be placed at %s", imp, in.Op, in.Loc.Bel)
	}
}
