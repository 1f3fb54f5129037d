// Package assembler expands an assembly program into a primitive program by
// instantiating the implementation of every assembly opcode.
package assembler

import (
	"fmt"
	"sort"
	"strings"

	"tilec/internal/asm"
	"tilec/internal/diag"
	"tilec/internal/ir"
	"tilec/internal/machine"
)

// Names of the shared constant nets.
const (
	VccNet = "__vcc"
	GndNet = "__gnd"
)

// DefaultPrefix starts every id the assembler invents.
const DefaultPrefix = "__asm"

// Imps resolves implementation names. *library.Library satisfies it.
type Imps interface {
	Imp(name string) (*machine.Imp, bool)
}

// Assembler expands assembly programs. Fresh names are unique within one
// Assemble call.
type Assembler struct {
	reporter *diag.Reporter
	imps     Imps
	prefix   string

	counter  int
	names    *ir.Namer
	vcc, gnd string
	body     []ir.Instr
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithPrefix changes the fresh-name prefix.
func WithPrefix(prefix string) Option {
	return func(a *Assembler) { a.prefix = prefix }
}

// New returns an assembler over imps.
func New(reporter *diag.Reporter, imps Imps, opts ...Option) *Assembler {
	a := &Assembler{reporter: reporter, imps: imps, prefix: DefaultPrefix}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Name implements passes.Pass.
func (a *Assembler) Name() string { return "assemble" }

// Run implements passes.Pass by replacing every definition with its
// primitive program.
func (a *Assembler) Run(prog *ir.Prog) error {
	for _, def := range prog.Defs {
		out, err := a.Assemble(def)
		if err != nil {
			return err
		}
		prog.Add(out)
		if a.reporter != nil {
			a.reporter.Notef("assembled %s into %d primitive(s)", def.Sig.ID, len(machine.Instrs(out.Body)))
		}
	}
	return nil
}

// Assemble returns the primitive program of def. The input is left
// untouched.
func (a *Assembler) Assemble(def *ir.Def) (*ir.Def, error) {
	a.counter, a.vcc, a.gnd, a.body = 0, "", "", nil
	a.names = ir.NewNamer(def)
	out := &ir.Def{Sig: ir.Sig{
		ID:      def.Sig.ID,
		Inputs:  def.Sig.Inputs.Clone(),
		Outputs: def.Sig.Outputs.Clone(),
	}}
	for _, instr := range def.Body {
		var err error
		switch in := instr.(type) {
		case *ir.WireInstr:
			err = a.wire(def.Sig.ID, in.Clone().(*ir.WireInstr))
		case *asm.Instr:
			err = a.expand(def.Sig.ID, in)
		case *machine.Instr:
			a.emit(in.Clone())
		default:
			err = diag.Errorf(diag.AssemblerError, "%s: %s must be selected before assembly", def.Sig.ID, instr.Mnemonic())
		}
		if err != nil {
			return nil, err
		}
	}
	out.Body = a.body
	a.body = nil
	return out, nil
}

func (a *Assembler) emit(instr ir.Instr) {
	a.body = append(a.body, instr)
}

// fresh starts a new group of invented ids. Ids built on the prefix still
// go through a.names.
func (a *Assembler) fresh() string {
	a.counter++
	return fmt.Sprintf("%s%d_", a.prefix, a.counter)
}

// constant returns the net carrying bit, instantiating the source the first
// time it is needed.
func (a *Assembler) constant(bit bool) ir.Term {
	if bit {
		if a.vcc == "" {
			a.vcc = a.names.Fresh(VccNet)
			a.emit(&machine.Instr{Op: machine.Vcc, Fields: ir.Fields{Dst: ir.Expr{ir.Var(a.vcc, ir.Bool())}}})
		}
		return ir.Var(a.vcc, ir.Bool())
	}
	if a.gnd == "" {
		a.gnd = a.names.Fresh(GndNet)
		a.emit(&machine.Instr{Op: machine.Gnd, Fields: ir.Fields{Dst: ir.Expr{ir.Var(a.gnd, ir.Bool())}}})
	}
	return ir.Var(a.gnd, ir.Bool())
}

func wire(op ir.WireOp, dst ir.Term, attr, args ir.Expr) *ir.WireInstr {
	return &ir.WireInstr{Op: op, Fields: ir.Fields{Dst: ir.Expr{dst}, Attr: attr, Args: args}}
}

func bitsTy(n int) ir.Ty {
	if n == 1 {
		return ir.Bool()
	}
	return ir.Uint(n)
}

// wire lowers constants and shifts; other wires are kept.
func (a *Assembler) wire(def string, in *ir.WireInstr) error {
	switch in.Op {
	case ir.Con:
		if len(in.Attr) != 1 || !in.Attr[0].IsVal() || len(in.Dst) != 1 {
			return diag.Errorf(diag.AssemblerError, "%s: malformed constant %s", def, ir.FormatInstr(in))
		}
		a.lowerConst(in.Dst[0], uint64(in.Attr[0].Val))
	case ir.Sll, ir.Srl, ir.Sra:
		return a.lowerShift(def, in)
	default:
		a.emit(in)
	}
	return nil
}

// lowerConst ties every bit of dst to the shared VCC or GND net: const[3]
// at i8 becomes eight bit wires over 00000011 and a cat, with a single VCC
// and a single GND instance.
func (a *Assembler) lowerConst(dst ir.Term, v uint64) {
	n := dst.Ty.TotalBits()
	if n <= 1 {
		a.emit(wire(ir.Id, dst, nil, ir.Expr{a.constant(v&1 == 1)}))
		return
	}
	base := a.fresh() + dst.ID
	bits := make(ir.Expr, n)
	for i := range n {
		bit := i < 64 && v>>uint(i)&1 == 1
		bits[i] = ir.Var(a.names.Fresh(fmt.Sprintf("%s_%d", base, i)), ir.Bool())
		a.emit(wire(ir.Id, bits[i], nil, ir.Expr{a.constant(bit)}))
	}
	a.emit(wire(ir.Cat, dst, nil, bits))
}

// lowerShift rewrites a shift by a constant as a slice of the operand
// concatenated with fill bits.
func (a *Assembler) lowerShift(def string, in *ir.WireInstr) error {
	if len(in.Attr) != 1 || !in.Attr[0].IsVal() || len(in.Args) != 1 || len(in.Dst) != 1 {
		return diag.Errorf(diag.AssemblerError, "%s: malformed shift %s", def, ir.FormatInstr(in))
	}
	x, dst := in.Args[0], in.Dst[0]
	if x.Ty.IsVector() || !x.Ty.IsKnown() {
		return diag.Errorf(diag.AssemblerError, "%s: cannot lower %s of %s", def, in.Op, x.Ty)
	}
	w, k := x.Ty.TotalBits(), int(in.Attr[0].Val)
	if k == 0 {
		a.emit(wire(ir.Id, dst, nil, ir.Expr{x}))
		return nil
	}
	base := a.fresh() + dst.ID
	fill := func(bit ir.Term, n int) ir.Expr {
		out := make(ir.Expr, n)
		for i := range out {
			out[i] = bit
		}
		return out
	}
	slice := func(lo, hi int) ir.Term {
		t := ir.Var(a.names.Fresh(fmt.Sprintf("%s_%d_%d", base, lo, hi)), bitsTy(hi-lo+1))
		a.emit(wire(ir.Ext, t, ir.Expr{ir.Val(int64(lo)), ir.Val(int64(hi))}, ir.Expr{x}))
		return t
	}
	var fillBit ir.Term
	if in.Op == ir.Sra {
		fillBit = ir.Var(a.names.Fresh(base+"_sign"), ir.Bool())
		a.emit(wire(ir.Ext, fillBit, ir.Expr{ir.Val(int64(w - 1))}, ir.Expr{x}))
	} else {
		fillBit = a.constant(false)
	}
	if k >= w {
		a.emit(wire(ir.Cat, dst, nil, fill(fillBit, w)))
		return nil
	}
	var parts ir.Expr
	switch in.Op {
	case ir.Sll:
		parts = append(fill(fillBit, k), slice(0, w-1-k))
	default:
		parts = append(ir.Expr{slice(k, w-1)}, fill(fillBit, k)...)
	}
	a.emit(wire(ir.Cat, dst, nil, parts))
	return nil
}

// expand instantiates the implementation of one assembly instruction.
func (a *Assembler) expand(def string, in *asm.Instr) error {
	m, ok := a.imps.Imp(in.Op)
	if !ok {
		return diag.Errorf(diag.AssemblerError, "%s: no implementation for %s", def, in.Op)
	}
	sig := m.Def.Sig
	if len(sig.Inputs) != len(in.Args) || len(sig.Outputs) != len(in.Dst) {
		return diag.Errorf(diag.AssemblerError, "%s: %s takes %d argument(s) and %d result(s), got %d and %d",
			def, in.Op, len(sig.Inputs), len(sig.Outputs), len(in.Args), len(in.Dst))
	}
	subst := make(map[string]ir.Term, len(sig.Inputs)+len(sig.Outputs))
	for i, t := range sig.Inputs {
		arg := in.Args[i]
		if !arg.IsVar() {
			return diag.Errorf(diag.ConversionError, "%s: argument %s of %s is not a variable", def, arg, in.Op)
		}
		if !arg.Ty.IsKnown() {
			arg.Ty = t.Ty
		}
		subst[t.ID] = arg
	}
	for i, t := range sig.Outputs {
		subst[t.ID] = in.Dst[i]
	}
	prefix := a.fresh()
	rename := func(t ir.Term) ir.Term {
		if s, ok := subst[t.ID]; ok {
			return s
		}
		local := t.ID
		t.ID = a.names.Fresh(prefix + local)
		subst[local] = t
		return t
	}

	flop := 0
	for _, instr := range m.Def.Body {
		c := instr.Clone()
		ir.RenameVars(c, rename)
		switch body := c.(type) {
		case *ir.WireInstr:
			if err := a.wire(def, body); err != nil {
				return err
			}
		case *machine.Instr:
			if body.Loc != nil {
				body.Loc.X = resolve(body.Loc.X, in.Loc.X)
				body.Loc.Y = resolve(body.Loc.Y, in.Loc.Y)
			}
			if body.Op.IsFlop() && (len(body.Attr) == 0 || !body.Attr[0].IsVal()) {
				setFlopInit(body, in.Attr, flop)
			}
			if body.Op.IsFlop() {
				flop++
			}
			a.emit(body)
		default:
			return diag.Errorf(diag.AssemblerError, "%s: implementation %s contains %s", def, in.Op, instr.Mnemonic())
		}
	}
	return nil
}

// resolve fills a coordinate the implementation leaves open with the
// assembly instruction's site.
func resolve(c, site ir.Coord) ir.Coord {
	if c.IsVal() {
		return c
	}
	return site
}

// setFlopInit takes bit k of the instruction's initial value; a set bit
// needs a flop that resets high.
func setFlopInit(f *machine.Instr, attr ir.Expr, k int) {
	set := len(attr) > 0 && attr[0].IsVal() && k < 64 && uint64(attr[0].Val)>>uint(k)&1 == 1
	if set {
		f.Op = machine.Fdse
		f.Attr = ir.Expr{ir.Val(1)}
		return
	}
	f.Op = machine.Fdre
	f.Attr = ir.Expr{ir.Val(0)}
}

// Census counts the primitives of a machine program by mnemonic.
func Census(def *ir.Def) map[string]int {
	out := make(map[string]int)
	for _, m := range machine.Instrs(def.Body) {
		out[m.Op.String()]++
	}
	return out
}

// FormatCensus renders a census as "op=n" pairs in name order.
func FormatCensus(c map[string]int) string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%d", name, c[name])
	}
	return strings.Join(parts, " ")
}
