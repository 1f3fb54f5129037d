package backend

import (
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/go-set/v3"

	"tilec/internal/diag"
	"tilec/internal/ir"
	"tilec/internal/machine"
	"tilec/internal/passes"
	"tilec/internal/prim"
)

// Implicit ports added to modules holding sequential primitives.
const (
	ClockPort = "clock"
	ResetPort = "reset"
)

// WriteModule prints def, a primitive program, as a structural Verilog
// module.
func WriteModule(w io.Writer, def *ir.Def) error {
	pr := &printer{
		w:     w,
		def:   def,
		env:   ir.Env(def),
		names: set.New[string](len(def.Body)),
	}
	return pr.emitModule()
}

type printer struct {
	w      io.Writer
	indent int
	def    *ir.Def
	env    map[string]ir.Ty
	names  *set.Set[string]
	// aux holds the extra nets of DSP instances in declaration order.
	aux []auxNet
}

type auxNet struct {
	name  string
	width int
}

func (p *printer) emitModule() error {
	body, err := p.lower()
	if err != nil {
		return err
	}
	var ports []string
	if sequential(p.def) {
		ports = append(ports, "input wire "+ClockPort, "input wire "+ResetPort)
	}
	for _, t := range p.def.Sig.Inputs {
		decl, err := p.decl(t.ID)
		if err != nil {
			return err
		}
		ports = append(ports, "input wire "+decl)
	}
	for _, t := range p.def.Sig.Outputs {
		decl, err := p.decl(t.ID)
		if err != nil {
			return err
		}
		ports = append(ports, "output wire "+decl)
	}

	fmt.Fprintf(p.w, "module %s (\n", net(p.def.Sig.ID))
	p.indent++
	for i, port := range ports {
		sep := ","
		if i == len(ports)-1 {
			sep = ""
		}
		p.printIndent()
		fmt.Fprintf(p.w, "%s%s\n", port, sep)
	}
	p.indent--
	fmt.Fprintln(p.w, ");")

	p.indent++
	for _, instr := range p.def.Body {
		for _, d := range instr.Base().Dst {
			if p.def.IsOutput(d.ID) {
				continue
			}
			decl, err := p.decl(d.ID)
			if err != nil {
				return err
			}
			p.printIndent()
			fmt.Fprintf(p.w, "wire %s;\n", decl)
		}
	}
	for _, a := range p.aux {
		p.printIndent()
		fmt.Fprintf(p.w, "wire %s%s;\n", rangeDecl(a.width), a.name)
	}
	if len(body) > 0 {
		fmt.Fprintln(p.w)
	}
	for _, item := range body {
		item(p)
	}
	p.indent--
	fmt.Fprintln(p.w, "endmodule")
	return nil
}

// lower translates the body into deferred print actions so that every
// auxiliary net is known before the declarations are written.
func (p *printer) lower() ([]func(*printer), error) {
	var out []func(*printer)
	for _, instr := range p.def.Body {
		switch in := instr.(type) {
		case *ir.WireInstr:
			lhs, rhs, err := p.wire(in)
			if err != nil {
				return nil, err
			}
			out = append(out, assign(lhs, rhs))
		case *machine.Instr:
			items, err := p.machine(in)
			if err != nil {
				return nil, err
			}
			out = append(out, items...)
		default:
			return nil, diag.Errorf(diag.ConversionError, "%s: %s is not a primitive; assemble the program first", p.def.Sig.ID, instr.Mnemonic())
		}
	}
	return out, nil
}

func assign(lhs, rhs string) func(*printer) {
	return func(p *printer) {
		p.printIndent()
		fmt.Fprintf(p.w, "assign %s = %s;\n", lhs, rhs)
	}
}

func instance(in *prim.Instance) func(*printer) {
	return func(p *printer) {
		in.Emit(p.w, strings.Repeat("    ", p.indent))
	}
}

func (p *printer) wire(in *ir.WireInstr) (string, string, error) {
	if len(in.Dst) != 1 {
		return "", "", diag.Errorf(diag.ConversionError, "%s: %s must define one value", p.def.Sig.ID, in.Op)
	}
	dst := in.Dst[0].ID
	lhs := net(dst)
	width := p.width(dst)
	switch in.Op {
	case ir.Con:
		if len(in.Attr) != 1 {
			return "", "", diag.Errorf(diag.ConversionError, "%s: const %s needs one value", p.def.Sig.ID, dst)
		}
		return lhs, prim.Hex(width, uint64(in.Attr[0].Val)).Verilog(), nil
	case ir.Cat:
		parts := make([]string, len(in.Args))
		for i, a := range in.Args {
			e, err := p.term(a)
			if err != nil {
				return "", "", err
			}
			parts[len(in.Args)-1-i] = e
		}
		return lhs, "{" + strings.Join(parts, ", ") + "}", nil
	}
	if len(in.Args) != 1 {
		return "", "", diag.Errorf(diag.ConversionError, "%s: %s takes one argument", p.def.Sig.ID, in.Op)
	}
	arg, err := p.term(in.Args[0])
	if err != nil {
		return "", "", err
	}
	switch in.Op {
	case ir.Id:
		return lhs, arg, nil
	case ir.Ext:
		lo, hi, err := passes.ExtRange(in.Attr)
		if err != nil {
			return "", "", diag.Wrap(diag.ConversionError, err, "%s: ext %s", p.def.Sig.ID, dst)
		}
		ty := p.env[in.Args[0].ID]
		if ty.IsVector() {
			w := ty.Width()
			lo, hi = lo*w, (lo+1)*w-1
		}
		return lhs, p.slice(in.Args[0].ID, lo, hi), nil
	case ir.Sll, ir.Srl, ir.Sra:
		if len(in.Attr) != 1 {
			return "", "", diag.Errorf(diag.ConversionError, "%s: %s %s needs a shift amount", p.def.Sig.ID, in.Op, dst)
		}
		k := in.Attr[0].Val
		switch in.Op {
		case ir.Sll:
			return lhs, fmt.Sprintf("%s << %d", arg, k), nil
		case ir.Srl:
			return lhs, fmt.Sprintf("%s >> %d", arg, k), nil
		default:
			return lhs, fmt.Sprintf("$signed(%s) >>> %d", arg, k), nil
		}
	}
	return "", "", diag.Errorf(diag.ConversionError, "%s: unsupported wire %s", p.def.Sig.ID, in.Op)
}

func (p *printer) machine(in *machine.Instr) ([]func(*printer), error) {
	if len(in.Dst) == 0 {
		return nil, diag.Errorf(diag.ConversionError, "%s: %s defines nothing", p.def.Sig.ID, in.Op)
	}
	args := make([]string, len(in.Args))
	for i, a := range in.Args {
		e, err := p.term(a)
		if err != nil {
			return nil, err
		}
		args[i] = e
	}
	dst := in.Dst[0].ID
	inst := &prim.Instance{Name: p.instName(dst), Placement: placement(in.Loc)}
	switch {
	case in.Op == machine.Gnd:
		inst.Cell = "GND"
		inst.Out("G", net(dst))
	case in.Op == machine.Vcc:
		inst.Cell = "VCC"
		inst.Out("P", net(dst))
	case in.Op.IsLut():
		k := in.Op.LutInputs()
		if len(args) != k {
			return nil, arityErr(p.def, in, k)
		}
		inst.Cell = fmt.Sprintf("LUT%d", k)
		inst.Param("INIT", prim.Hex(1<<uint(k), uint64(attrVal(in.Attr, 0))))
		for i, a := range args {
			inst.In(fmt.Sprintf("I%d", i), a)
		}
		inst.Out("O", net(dst))
	case in.Op.IsFlop():
		if len(args) != 2 {
			return nil, arityErr(p.def, in, 2)
		}
		inst.Cell = "FDRE"
		rst := "R"
		if in.Op == machine.Fdse {
			inst.Cell = "FDSE"
			rst = "S"
		}
		inst.Param("INIT", prim.Bin(1, uint64(attrVal(in.Attr, 0))))
		inst.In("C", ClockPort)
		inst.In("CE", args[1])
		inst.In("D", args[0])
		inst.In(rst, ResetPort)
		inst.Out("Q", net(dst))
	case in.Op == machine.Carry8:
		if len(args) != 3 {
			return nil, arityErr(p.def, in, 3)
		}
		inst.Cell = "CARRY8"
		inst.Param("CARRY_TYPE", prim.Str("SINGLE_CY8"))
		inst.In("CI", args[0])
		inst.In("CI_TOP", prim.Bin(1, 0).Verilog())
		inst.In("DI", args[1])
		inst.In("S", args[2])
		inst.Out("O", net(dst))
		co := ""
		if len(in.Dst) > 1 {
			co = net(in.Dst[1].ID)
		}
		inst.Out("CO", co)
	case in.Op.IsDsp():
		return p.dsp(in, inst)
	default:
		return nil, diag.Errorf(diag.ConversionError, "%s: unsupported primitive %s", p.def.Sig.ID, in.Op)
	}
	return []func(*printer){instance(inst)}, nil
}

// DSP48E2 OPMODE values, W[8:7] Z[6:4] Y[3:2] X[1:0].
var (
	opmodeAB        = prim.Bin(9, 0b00_000_00_11)
	opmodeABPlusC   = prim.Bin(9, 0b00_011_00_11)
	opmodeMul       = prim.Bin(9, 0b00_000_01_01)
	opmodeMulPlusC  = prim.Bin(9, 0b00_011_01_01)
	opmodeMulPlusPC = prim.Bin(9, 0b00_001_01_01)
)

func (p *printer) dsp(in *machine.Instr, inst *prim.Instance) ([]func(*printer), error) {
	cfg := machine.DecodeDsp(in.Attr)
	dst := in.Dst[0].ID
	var want int
	switch in.Op {
	case machine.DspMulAdd:
		want = 3
	default:
		want = 2
	}
	en := ""
	switch {
	case in.Op == machine.DspReg:
		if len(in.Args) != 2 {
			return nil, arityErr(p.def, in, 2)
		}
		en = p.mustTerm(in.Args[1])
	case len(in.Args) == want+1:
		en = p.mustTerm(in.Args[want])
	case len(in.Args) != want:
		return nil, arityErr(p.def, in, want)
	}
	one := prim.Bin(1, 1).Verilog()
	if en == "" {
		en = one
	}

	var items []func(*printer)
	var a, b, c, pcin string
	c = prim.Hex(machine.DspCWidth, 0).Verilog()
	opmode := opmodeAB
	alumode := prim.Bin(4, 0)
	useMult := "NONE"
	packAB := func(t ir.Term) {
		ab := net(dst) + "_ab"
		p.aux = append(p.aux, auxNet{name: ab, width: machine.DspPWidth})
		items = append(items, assign(ab, p.extend(t, machine.DspPWidth)))
		a = fmt.Sprintf("%s[%d:%d]", ab, machine.DspPWidth-1, machine.DspBWidth)
		b = fmt.Sprintf("%s[%d:0]", ab, machine.DspBWidth-1)
	}
	switch in.Op {
	case machine.DspAdd:
		packAB(in.Args[0])
		c = p.extend(in.Args[1], machine.DspCWidth)
		opmode = opmodeABPlusC
	case machine.DspSub:
		// ALUMODE 0011 computes Z - (X + Y).
		packAB(in.Args[1])
		c = p.extend(in.Args[0], machine.DspCWidth)
		opmode = opmodeABPlusC
		alumode = prim.Bin(4, 0b0011)
	case machine.DspReg:
		packAB(in.Args[0])
	case machine.DspMul, machine.DspMulAdd:
		useMult = "MULTIPLY"
		a = p.extend(in.Args[0], machine.DspAWidth)
		b = p.extend(in.Args[1], machine.DspBWidth)
		opmode = opmodeMul
		if in.Op == machine.DspMulAdd {
			switch {
			case cfg.PCIn:
				if !in.Args[2].IsVar() {
					return nil, diag.Errorf(diag.ConversionError, "%s: cascade input of %s must be a value", p.def.Sig.ID, dst)
				}
				pcin = machine.PCOutNet(net(in.Args[2].ID))
				opmode = opmodeMulPlusPC
			default:
				c = p.extend(in.Args[2], machine.DspCWidth)
				opmode = opmodeMulPlusC
			}
		}
	}

	bit := func(b bool) int64 {
		if b {
			return 1
		}
		return 0
	}
	preg := cfg.PReg || in.Op == machine.DspReg
	inst.Cell = "DSP48E2"
	inst.Param("AREG", prim.Int(bit(cfg.AReg)))
	inst.Param("ACASCREG", prim.Int(bit(cfg.AReg)))
	inst.Param("BREG", prim.Int(bit(cfg.BReg)))
	inst.Param("BCASCREG", prim.Int(bit(cfg.BReg)))
	inst.Param("CREG", prim.Int(bit(cfg.CReg)))
	inst.Param("MREG", prim.Int(0))
	inst.Param("PREG", prim.Int(bit(preg)))
	inst.Param("ADREG", prim.Int(0))
	inst.Param("DREG", prim.Int(0))
	inst.Param("OPMODEREG", prim.Int(0))
	inst.Param("ALUMODEREG", prim.Int(0))
	inst.Param("INMODEREG", prim.Int(0))
	inst.Param("CARRYINREG", prim.Int(0))
	inst.Param("CARRYINSELREG", prim.Int(0))
	inst.Param("USE_MULT", prim.Str(useMult))

	ce := func(on bool) string {
		if on {
			return en
		}
		return one
	}
	rst := ResetPort
	inst.In("CLK", ClockPort)
	inst.In("A", a)
	inst.In("B", b)
	inst.In("C", c)
	if pcin != "" {
		inst.In("PCIN", pcin)
	}
	inst.In("OPMODE", opmode.Verilog())
	inst.In("ALUMODE", alumode.Verilog())
	inst.In("INMODE", prim.Bin(5, 0).Verilog())
	inst.In("CARRYIN", prim.Bin(1, 0).Verilog())
	inst.In("CARRYINSEL", prim.Bin(3, 0).Verilog())
	inst.In("CEA1", ce(cfg.AReg))
	inst.In("CEA2", ce(cfg.AReg))
	inst.In("CEB1", ce(cfg.BReg))
	inst.In("CEB2", ce(cfg.BReg))
	inst.In("CEC", ce(cfg.CReg))
	inst.In("CEP", ce(preg))
	inst.In("RSTA", rst)
	inst.In("RSTB", rst)
	inst.In("RSTC", rst)
	inst.In("RSTP", rst)

	pnet := net(dst) + "_p"
	p.aux = append(p.aux, auxNet{name: pnet, width: machine.DspPWidth})
	inst.Out("P", pnet)
	if cfg.PCOut {
		pcout := machine.PCOutNet(net(dst))
		p.aux = append(p.aux, auxNet{name: pcout, width: machine.DspPWidth})
		inst.Out("PCOUT", pcout)
	}
	items = append(items, instance(inst))
	items = append(items, assign(net(dst), p.slice(pnet, 0, p.width(dst)-1)))
	return items, nil
}

// extend sign- or zero-extends t to width bits, or truncates it.
func (p *printer) extend(t ir.Term, width int) string {
	e := p.mustTerm(t)
	if !t.IsVar() {
		return e
	}
	ty := p.env[t.ID]
	w := ty.TotalBits()
	switch {
	case w == width:
		return e
	case w > width:
		return p.slice(t.ID, 0, width-1)
	}
	fill := prim.Bin(1, 0).Verilog()
	if ty.Signed() {
		fill = p.slice(t.ID, w-1, w-1)
	}
	return fmt.Sprintf("{{%d{%s}}, %s}", width-w, fill, e)
}

// slice selects bits [hi:lo] of the net id. Aux nets are not in env and
// are always sliced explicitly.
func (p *printer) slice(id string, lo, hi int) string {
	name := net(id)
	if ty, ok := p.env[id]; ok && ty.TotalBits() == 1 && lo == 0 && hi == 0 {
		return name
	}
	if lo == hi {
		return fmt.Sprintf("%s[%d]", name, lo)
	}
	return fmt.Sprintf("%s[%d:%d]", name, hi, lo)
}

func (p *printer) term(t ir.Term) (string, error) {
	switch t.Kind {
	case ir.VarTerm:
		if _, ok := p.env[t.ID]; !ok {
			return "", diag.Errorf(diag.ConversionError, "%s: %s is not defined", p.def.Sig.ID, t.ID)
		}
		return net(t.ID), nil
	case ir.ValTerm:
		w := t.Ty.TotalBits()
		if w <= 0 {
			w = 32
		}
		return prim.Hex(w, uint64(t.Val)).Verilog(), nil
	}
	return "", diag.Errorf(diag.ConversionError, "%s: unresolved operand ??", p.def.Sig.ID)
}

// mustTerm is term for operands already checked by machine.
func (p *printer) mustTerm(t ir.Term) string {
	e, _ := p.term(t)
	return e
}

func (p *printer) width(id string) int {
	return p.env[id].TotalBits()
}

func (p *printer) decl(id string) (string, error) {
	w := p.width(id)
	if w <= 0 {
		return "", diag.Errorf(diag.ConversionError, "%s: %s has no known width", p.def.Sig.ID, id)
	}
	return rangeDecl(w) + net(id), nil
}

func rangeDecl(width int) string {
	if width == 1 {
		return ""
	}
	return fmt.Sprintf("[%d:0] ", width-1)
}

func (p *printer) instName(dst string) string {
	base := net(dst) + "_i"
	name := base
	for n := 1; !p.names.Insert(name); n++ {
		name = fmt.Sprintf("%s%d", base, n)
	}
	return name
}

func (p *printer) printIndent() {
	for i := 0; i < p.indent; i++ {
		fmt.Fprint(p.w, "    ")
	}
}

func placement(loc *machine.Loc) *prim.Placement {
	if loc == nil || loc.Bel == machine.BelNone {
		return nil
	}
	pl := &prim.Placement{Bel: loc.Bel.Verilog(), Site: loc.Bel.Site()}
	if loc.X.IsVal() && loc.Y.IsVal() {
		pl.X, pl.Y, pl.Fixed = loc.X.Val, loc.Y.Val, true
	}
	return pl
}

func sequential(def *ir.Def) bool {
	for _, m := range machine.Instrs(def.Body) {
		if m.Op.IsSequential() {
			return true
		}
	}
	return false
}

func attrVal(attr ir.Expr, i int) int64 {
	if i < len(attr) && attr[i].IsVal() {
		return attr[i].Val
	}
	return 0
}

func arityErr(def *ir.Def, in *machine.Instr, want int) error {
	return diag.Errorf(diag.ConversionError, "%s: %s %s takes %d argument(s), got %d", def.Sig.ID, in.Op, in.Dst[0].ID, want, len(in.Args))
}

var keywords = set.From([]string{
	"always", "and", "assign", "begin", "buf", "case", "default", "else",
	"end", "endcase", "endmodule", "for", "function", "if", "initial",
	"inout", "input", "integer", "module", "nand", "nor", "not", "or",
	"output", "parameter", "reg", "signed", "supply0", "supply1", "task",
	"wire", "xnor", "xor", ClockPort, ResetPort,
})

// net maps an identifier to a legal Verilog name. Reserved words and the
// implicit ports get a trailing underscore.
func net(name string) string {
	if name == "" {
		return "unnamed"
	}
	var b strings.Builder
	for i, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_' || (r >= '0' && r <= '9' && i > 0) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	s := b.String()
	if keywords.Contains(s) {
		s += "_"
	}
	return s
}
