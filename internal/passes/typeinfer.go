package passes

import (
	"tilec/internal/diag"
	"tilec/internal/ir"
)

// TypeInference orders each definition body topologically, annotates every
// argument with the type of the value it names, and checks operand widths.
// Running it twice yields the same program.
type TypeInference struct {
	reporter *diag.Reporter
}

// NewTypeInference constructs the pass. reporter is optional.
func NewTypeInference(reporter *diag.Reporter) *TypeInference {
	return &TypeInference{reporter: reporter}
}

// Name implements the Pass interface.
func (t *TypeInference) Name() string {
	return "type-inference"
}

// Run infers every definition of prog. Each failing definition is
// reported; the first error is returned.
func (t *TypeInference) Run(prog *ir.Prog) error {
	var first error
	for _, def := range prog.Defs {
		if err := InferDef(def); err != nil {
			t.reporter.Report(err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// InferDef runs type inference on one IR definition or pattern body.
func InferDef(def *ir.Def) error {
	env, err := buildEnv(def)
	if err != nil {
		return err
	}
	order, err := topoOrder(def)
	if err != nil {
		return err
	}
	def.Body = order
	if err := annotate(def, env); err != nil {
		return err
	}
	for _, instr := range def.Body {
		if err := checkWidths(def.Sig.ID, instr); err != nil {
			return err
		}
	}
	return nil
}

// FillTypes annotates arguments of an assembly or machine level definition
// without reordering or width checks.
func FillTypes(def *ir.Def) error {
	env, err := buildEnv(def)
	if err != nil {
		return err
	}
	return annotate(def, env)
}

func buildEnv(def *ir.Def) (map[string]ir.Ty, error) {
	env := make(map[string]ir.Ty)
	bind := func(t ir.Term, what string) error {
		if !t.IsVar() {
			return diag.Errorf(diag.ConversionError, "%s: %s %s is not a variable", def.Sig.ID, what, t)
		}
		if prev, ok := env[t.ID]; ok {
			if !prev.Equal(t.Ty) {
				return diag.Errorf(diag.TypeError, "%s: %q declared as %s and %s", def.Sig.ID, t.ID, prev, t.Ty)
			}
			return diag.Errorf(diag.TypeError, "%s: %q defined more than once", def.Sig.ID, t.ID)
		}
		env[t.ID] = t.Ty
		return nil
	}
	for _, t := range def.Sig.Inputs {
		if err := bind(t, "input"); err != nil {
			return nil, err
		}
	}
	for _, instr := range def.Body {
		for _, t := range instr.Base().Dst {
			if err := bind(t, "destination"); err != nil {
				return nil, err
			}
		}
	}
	for _, t := range def.Sig.Outputs {
		if !t.IsVar() {
			return nil, diag.Errorf(diag.ConversionError, "%s: output %s is not a variable", def.Sig.ID, t)
		}
		ty, ok := env[t.ID]
		if !ok {
			return nil, diag.Errorf(diag.TypeError, "%s: output %q is never defined", def.Sig.ID, t.ID)
		}
		if !ty.Equal(t.Ty) {
			return nil, diag.Errorf(diag.TypeError, "%s: output %q declared as %s but defined as %s", def.Sig.ID, t.ID, t.Ty, ty)
		}
	}
	return env, nil
}

// topoOrder is a stable Kahn sort: among ready instructions the earliest in
// source order goes first. Register arguments do not constrain the order.
func topoOrder(def *ir.Def) ([]ir.Instr, error) {
	n := len(def.Body)
	producer := make(map[string]int, n)
	for i, instr := range def.Body {
		for _, t := range instr.Base().Dst {
			producer[t.ID] = i
		}
	}
	indeg := make([]int, n)
	users := make([][]int, n)
	for i, instr := range def.Body {
		if isReg(instr) {
			continue
		}
		for _, t := range instr.Base().Args {
			if !t.IsVar() {
				continue
			}
			p, ok := producer[t.ID]
			if !ok {
				continue
			}
			indeg[i]++
			users[p] = append(users[p], i)
		}
	}

	done := make([]bool, n)
	order := make([]ir.Instr, 0, n)
	for len(order) < n {
		next := -1
		for i := 0; i < n; i++ {
			if !done[i] && indeg[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			for i := 0; i < n; i++ {
				if !done[i] {
					return nil, diag.Errorf(diag.TypeError, "%s: combinational cycle through %q", def.Sig.ID, def.Body[i].Base().Dst.IDs())
				}
			}
		}
		done[next] = true
		order = append(order, def.Body[next])
		for _, u := range users[next] {
			indeg[u]--
		}
	}
	return order, nil
}

func isReg(instr ir.Instr) bool {
	c, ok := instr.(*ir.CompInstr)
	return ok && c.Op == ir.Reg
}

func annotate(def *ir.Def, env map[string]ir.Ty) error {
	for _, instr := range def.Body {
		args := instr.Base().Args
		for i, t := range args {
			if !t.IsVar() {
				return diag.Errorf(diag.ConversionError, "%s: argument %s of %s is not a variable", def.Sig.ID, t, instr.Mnemonic())
			}
			ty, ok := env[t.ID]
			if !ok {
				return diag.Errorf(diag.TypeError, "%s: %q is used but never defined", def.Sig.ID, t.ID)
			}
			if t.Ty.Kind != ir.TyNone && !t.Ty.Equal(ty) {
				return diag.Errorf(diag.TypeError, "%s: %q annotated as %s but defined as %s", def.Sig.ID, t.ID, t.Ty, ty)
			}
			args[i].Ty = ty
		}
	}
	return nil
}

func known(tys ...ir.Ty) bool {
	for _, t := range tys {
		if !t.IsKnown() {
			return false
		}
	}
	return true
}

func hasHole(e ir.Expr) bool {
	for _, t := range e {
		if t.Kind == ir.AnyTerm {
			return true
		}
	}
	return false
}

func arity(def string, instr ir.Instr, args, dsts int) error {
	f := instr.Base()
	if args >= 0 && len(f.Args) != args {
		return diag.Errorf(diag.ConversionError, "%s: %s takes %d argument(s), got %d", def, instr.Mnemonic(), args, len(f.Args))
	}
	if len(f.Dst) != dsts {
		return diag.Errorf(diag.ConversionError, "%s: %s defines %d value(s), got %d", def, instr.Mnemonic(), dsts, len(f.Dst))
	}
	return nil
}

func mismatch(def string, instr ir.Instr, what string, want, got ir.Ty) error {
	dst := instr.Base().Dst
	return diag.Errorf(diag.TypeError, "%s: %s of %s (%s) is %s, want %s", def, what, instr.Mnemonic(), dst.IDs(), got, want)
}

func checkWidths(def string, instr ir.Instr) error {
	switch in := instr.(type) {
	case *ir.CompInstr:
		return checkComp(def, in)
	case *ir.WireInstr:
		return checkWire(def, in)
	}
	return nil
}

func checkComp(def string, in *ir.CompInstr) error {
	switch in.Op {
	case ir.Not:
		if err := arity(def, in, 1, 1); err != nil {
			return err
		}
	case ir.Mux:
		if err := arity(def, in, 3, 1); err != nil {
			return err
		}
	case ir.Reg:
		if err := arity(def, in, 2, 1); err != nil {
			return err
		}
	default:
		if err := arity(def, in, 2, 1); err != nil {
			return err
		}
	}
	dst := in.Dst[0].Ty
	args := in.Args
	switch {
	case in.Op.IsCompare():
		a, b := args[0].Ty, args[1].Ty
		if !known(a, b, dst) {
			return nil
		}
		if !a.Equal(b) {
			return mismatch(def, in, "second operand", a, b)
		}
		if dst.ElemTy().Kind != ir.TyBool || dst.Length() != a.Length() {
			return mismatch(def, in, "result", boolLike(a), dst)
		}
	case in.Op == ir.Mux:
		c, t, f := args[0].Ty, args[1].Ty, args[2].Ty
		if known(c, dst) && !c.Equal(boolLike(dst)) && !c.Equal(ir.Bool()) {
			return mismatch(def, in, "condition", boolLike(dst), c)
		}
		for i, ty := range []ir.Ty{t, f} {
			if known(ty, dst) && !ty.Equal(dst) {
				return mismatch(def, in, []string{"then operand", "else operand"}[i], dst, ty)
			}
		}
	case in.Op == ir.Reg:
		d, en := args[0].Ty, args[1].Ty
		if known(d, dst) && !d.Equal(dst) {
			return mismatch(def, in, "data operand", dst, d)
		}
		if known(en) && !en.Equal(ir.Bool()) {
			return mismatch(def, in, "enable operand", ir.Bool(), en)
		}
	default:
		for i, a := range args {
			if known(a.Ty, dst) && !a.Ty.Equal(dst) {
				return mismatch(def, in, []string{"first operand", "second operand"}[i], dst, a.Ty)
			}
		}
	}
	return nil
}

// boolLike is b for scalars and bvN for N-lane vectors.
func boolLike(t ir.Ty) ir.Ty {
	if t.IsVector() {
		return ir.Vec(ir.Bool(), t.Lanes)
	}
	return ir.Bool()
}

func checkWire(def string, in *ir.WireInstr) error {
	if hasHole(in.Attr) {
		return nil
	}
	for _, a := range in.Attr {
		if !a.IsVal() {
			return diag.Errorf(diag.ConversionError, "%s: attribute %s of %s is not a literal", def, a, in.Op)
		}
	}
	switch in.Op {
	case ir.Id:
		if err := arity(def, in, 1, 1); err != nil {
			return err
		}
		a, dst := in.Args[0].Ty, in.Dst[0].Ty
		if known(a, dst) && a.TotalBits() != dst.TotalBits() {
			return mismatch(def, in, "operand", dst, a)
		}
	case ir.Con:
		if err := arity(def, in, 0, 1); err != nil {
			return err
		}
		if len(in.Attr) != 1 {
			return diag.Errorf(diag.ConversionError, "%s: const needs one value attribute, got %d", def, len(in.Attr))
		}
	case ir.Sll, ir.Srl, ir.Sra:
		if err := arity(def, in, 1, 1); err != nil {
			return err
		}
		if len(in.Attr) != 1 || in.Attr[0].Val < 0 {
			return diag.Errorf(diag.ConversionError, "%s: %s needs one non-negative shift amount", def, in.Op)
		}
		a, dst := in.Args[0].Ty, in.Dst[0].Ty
		if known(a, dst) && !a.Equal(dst) {
			return mismatch(def, in, "operand", dst, a)
		}
	case ir.Ext:
		if err := arity(def, in, 1, 1); err != nil {
			return err
		}
		a, dst := in.Args[0].Ty, in.Dst[0].Ty
		if !known(a, dst) {
			return nil
		}
		lo, hi, err := ExtRange(in.Attr)
		if err != nil {
			return diag.Wrap(diag.ConversionError, err, "%s: ext", def)
		}
		if a.IsVector() {
			if lo != hi || hi >= a.Lanes {
				return diag.Errorf(diag.TypeError, "%s: ext[%d] out of range for %s", def, lo, a)
			}
			if !dst.Equal(a.ElemTy()) {
				return mismatch(def, in, "result", a.ElemTy(), dst)
			}
			return nil
		}
		if hi >= a.TotalBits() || lo > hi {
			return diag.Errorf(diag.TypeError, "%s: ext[%d, %d] out of range for %s", def, lo, hi, a)
		}
		if dst.TotalBits() != hi-lo+1 {
			return diag.Errorf(diag.TypeError, "%s: ext[%d, %d] yields %d bit(s) but %s is %s", def, lo, hi, hi-lo+1, in.Dst[0].ID, dst)
		}
	case ir.Cat:
		if err := arity(def, in, -1, 1); err != nil {
			return err
		}
		if len(in.Args) == 0 {
			return diag.Errorf(diag.ConversionError, "%s: cat needs at least one argument", def)
		}
		total := 0
		for _, a := range in.Args {
			if !known(a.Ty) {
				return nil
			}
			total += a.Ty.TotalBits()
		}
		dst := in.Dst[0].Ty
		if known(dst) && dst.TotalBits() != total {
			return diag.Errorf(diag.TypeError, "%s: cat yields %d bit(s) but %s is %s", def, total, in.Dst[0].ID, dst)
		}
	}
	return nil
}

// ExtRange decodes the attribute of an ext instruction: [i] or [lo, hi].
func ExtRange(attr ir.Expr) (int, int, error) {
	switch len(attr) {
	case 1:
		if attr[0].Val < 0 {
			return 0, 0, diag.Errorf(diag.ConversionError, "negative index %d", attr[0].Val)
		}
		return int(attr[0].Val), int(attr[0].Val), nil
	case 2:
		lo, hi := attr[0].Val, attr[1].Val
		if lo < 0 || hi < lo {
			return 0, 0, diag.Errorf(diag.ConversionError, "invalid range [%d, %d]", lo, hi)
		}
		return int(lo), int(hi), nil
	}
	return 0, 0, diag.Errorf(diag.ConversionError, "expected one or two indices, got %d", len(attr))
}
