package passes

import (
	"fmt"

	"tilec/internal/diag"
	"tilec/internal/ir"
)

// Inline replaces every call instruction by a renamed copy of the callee's
// body so that selection sees one flat definition.
type Inline struct {
	reporter *diag.Reporter
	counter  int
}

// NewInline constructs the pass. reporter is optional.
func NewInline(reporter *diag.Reporter) *Inline {
	return &Inline{reporter: reporter}
}

// Name implements the Pass interface.
func (p *Inline) Name() string {
	return "inline"
}

// Run flattens every definition of prog.
func (p *Inline) Run(prog *ir.Prog) error {
	flat := make(map[string]*ir.Def, len(prog.Defs))
	for _, def := range prog.Defs {
		out, err := p.flatten(prog, def, flat, nil)
		if err != nil {
			p.reporter.Report(err)
			return err
		}
		def.Body = out.Body
	}
	return nil
}

// flatten returns a call-free copy of def. flat memoizes finished
// definitions; stack holds the ids currently being expanded.
func (p *Inline) flatten(prog *ir.Prog, def *ir.Def, flat map[string]*ir.Def, stack []string) (*ir.Def, error) {
	if done, ok := flat[def.Sig.ID]; ok {
		return done, nil
	}
	for _, id := range stack {
		if id == def.Sig.ID {
			return nil, diag.Errorf(diag.TypeError, "recursive call cycle through %q", id)
		}
	}
	stack = append(stack, def.Sig.ID)

	out := &ir.Def{Sig: def.Sig}
	names := ir.NewNamer(def)
	for _, instr := range def.Body {
		call, ok := instr.(*ir.CallInstr)
		if !ok {
			out.Body = append(out.Body, instr)
			continue
		}
		callee, ok := prog.Lookup(call.Name)
		if !ok {
			return nil, diag.Errorf(diag.TypeError, "%s: call to undefined %q", def.Sig.ID, call.Name)
		}
		body, err := p.flatten(prog, callee, flat, stack)
		if err != nil {
			return nil, err
		}
		expanded, err := p.expand(def.Sig.ID, names, call, body)
		if err != nil {
			return nil, err
		}
		out.Body = append(out.Body, expanded...)
		p.reporter.Notef("%s: inlined %s (%d instruction(s))", def.Sig.ID, call.Name, len(expanded))
	}
	flat[def.Sig.ID] = out
	return out, nil
}

// expand returns the renamed body of callee for one call. Callee-local ids
// are drawn from names so they never clash with ids of the caller.
func (p *Inline) expand(caller string, names *ir.Namer, call *ir.CallInstr, callee *ir.Def) ([]ir.Instr, error) {
	ins, outs := callee.Sig.Inputs, callee.Sig.Outputs
	if len(call.Args) != len(ins) {
		return nil, diag.Errorf(diag.ConversionError, "%s: %s takes %d argument(s), got %d", caller, call.Name, len(ins), len(call.Args))
	}
	if len(call.Dst) != len(outs) {
		return nil, diag.Errorf(diag.ConversionError, "%s: %s returns %d value(s), got %d", caller, call.Name, len(outs), len(call.Dst))
	}
	for i, t := range outs {
		want := call.Dst[i].Ty
		if want.IsKnown() && t.Ty.IsKnown() && !want.Equal(t.Ty) {
			return nil, diag.Errorf(diag.TypeError, "%s: %s returns %s for %q declared as %s", caller, call.Name, t.Ty, call.Dst[i].ID, want)
		}
	}
	p.counter++
	prefix := fmt.Sprintf("__inl%d_", p.counter)

	rename := make(map[string]string)
	for i, t := range ins {
		a := call.Args[i]
		if !a.IsVar() {
			return nil, diag.Errorf(diag.ConversionError, "%s: argument %s of %s is not a variable", caller, a, call.Name)
		}
		rename[t.ID] = a.ID
	}
	produced := ir.Producers(callee.Body)
	for i, t := range outs {
		if _, ok := produced[t.ID]; ok {
			rename[t.ID] = call.Dst[i].ID
		}
	}
	fresh := func(t ir.Term) ir.Term {
		id, ok := rename[t.ID]
		if !ok {
			id = names.Fresh(prefix + t.ID)
			rename[t.ID] = id
		}
		t.ID = id
		return t
	}

	var body []ir.Instr
	for _, instr := range callee.Body {
		c := instr.Clone()
		ir.RenameVars(c, fresh)
		body = append(body, c)
	}
	// Outputs that are inputs of the callee, or listed twice, need a copy.
	for i, t := range outs {
		if rename[t.ID] == call.Dst[i].ID {
			continue
		}
		body = append(body, &ir.WireInstr{
			Op: ir.Id,
			Fields: ir.Fields{
				Dst:  ir.Expr{call.Dst[i]},
				Args: ir.Expr{fresh(ir.Term{Kind: ir.VarTerm, ID: t.ID})},
			},
		})
	}
	return body, nil
}
