// Package cascade rewrites DSP multiply-add sequences of an assembly
// program into variants that use the DSP48E2 input register and the
// dedicated PCOUT/PCIN cascade.
package cascade

import (
	"strings"

	"github.com/hashicorp/go-set/v3"

	"tilec/internal/asm"
	"tilec/internal/diag"
	"tilec/internal/ir"
	"tilec/internal/machine"
)

// Imps resolves implementation names. *library.Library satisfies it.
type Imps interface {
	Imp(name string) (*machine.Imp, bool)
}

// Family names the DSP patterns of one operand width.
type Family struct {
	Mul    string
	Add    string
	MulAdd string
	Reg    string
}

// DefaultFamilies matches the shipped library.
var DefaultFamilies = []Family{{
	Mul:    "dmul_i8",
	Add:    "dadd_i8",
	MulAdd: "dmuladd_i8",
	Reg:    "dreg_i8",
}}

// Variant suffixes.
const (
	RegA     = "_rega"
	CascOut  = "_co"
	CascIO   = "_cio"
	CascIn   = "_ci"
	minChain = 2
)

// Stats counts the rewrites of one run.
type Stats struct {
	Fused    int
	Absorbed int
	Chains   int
	Links    int
}

func (s *Stats) add(o Stats) {
	s.Fused += o.Fused
	s.Absorbed += o.Absorbed
	s.Chains += o.Chains
	s.Links += o.Links
}

// Cascader is a pass over assembly programs.
type Cascader struct {
	reporter *diag.Reporter
	imps     Imps
	families []Family
	stats    Stats
}

// New returns a cascader over the given implementations.
func New(reporter *diag.Reporter, imps Imps, families ...Family) *Cascader {
	if len(families) == 0 {
		families = DefaultFamilies
	}
	return &Cascader{reporter: reporter, imps: imps, families: families}
}

// Name implements passes.Pass.
func (c *Cascader) Name() string { return "cascade" }

// Stats returns the totals of every Run so far.
func (c *Cascader) Stats() Stats { return c.stats }

// Run implements passes.Pass.
func (c *Cascader) Run(prog *ir.Prog) error {
	for _, def := range prog.Defs {
		st := c.Def(def)
		c.stats.add(st)
		if c.reporter != nil {
			c.reporter.Notef("cascade %s: %d fused, %d register(s) absorbed, %d chain(s) over %d slice(s)",
				def.Sig.ID, st.Fused, st.Absorbed, st.Chains, st.Links)
		}
	}
	return nil
}

// Def rewrites def in place until no fusion applies, then marks cascade
// chains.
func (c *Cascader) Def(def *ir.Def) Stats {
	var st Stats
	for {
		fused := c.fuse(def)
		absorbed := c.absorb(def)
		st.Fused += fused
		st.Absorbed += absorbed
		if fused+absorbed == 0 {
			break
		}
	}
	st.Chains, st.Links = c.chain(def)
	return st
}

func fits(t ir.Term, width int) bool {
	return t.Ty.IsKnown() && t.Ty.TotalBits() <= width
}

func onDsp(instrs ...*asm.Instr) bool {
	for _, a := range instrs {
		if a.Loc.Prim != ir.PrimDsp {
			return false
		}
	}
	return true
}

// singleUse reports whether the value a defines feeds exactly one operand
// and is not an output.
func singleUse(def *ir.Def, uses map[string]int, a *asm.Instr) bool {
	if len(a.Dst) != 1 {
		return false
	}
	id := a.Dst[0].ID
	return uses[id] == 1 && !def.IsOutput(id)
}

func (c *Cascader) retarget(a *asm.Instr, op string) bool {
	m, ok := c.imps.Imp(op)
	if !ok {
		return false
	}
	a.Op = op
	a.Area = m.Area
	a.Lat = m.Lat
	return true
}

func sweep(def *ir.Def, dead *set.Set[ir.Instr]) {
	if dead.Empty() {
		return
	}
	body := def.Body[:0]
	for _, instr := range def.Body {
		if !dead.Contains(instr) {
			body = append(body, instr)
		}
	}
	def.Body = body
}

// fuse turns add(mul(a, b), c) into muladd(a, b, c).
func (c *Cascader) fuse(def *ir.Def) int {
	uses := ir.UseCounts(def)
	producers := ir.Producers(def.Body)
	dead := set.New[ir.Instr](0)
	n := 0
	for _, a := range asm.Instrs(def.Body) {
		for _, fam := range c.families {
			if a.Op != fam.Add || len(a.Args) != 2 {
				continue
			}
			for k := range 2 {
				m, ok := producers[a.Args[k].ID].(*asm.Instr)
				if !ok || m.Op != fam.Mul || len(m.Args) != 2 || dead.Contains(m) {
					continue
				}
				acc := a.Args[1-k]
				if !onDsp(a, m) || !singleUse(def, uses, m) ||
					!fits(m.Args[0], machine.DspMulAWidth) || !fits(m.Args[1], machine.DspBWidth) ||
					!fits(acc, machine.DspCWidth) || !fits(a.Dst[0], machine.DspPWidth) {
					continue
				}
				if !c.retarget(a, fam.MulAdd) {
					continue
				}
				a.Args = ir.Expr{m.Args[0], m.Args[1], acc}
				dead.Insert(m)
				n++
				break
			}
		}
	}
	sweep(def, dead)
	return n
}

// absorb folds a DSP register feeding the multiplier's a operand into the
// slice's A register.
func (c *Cascader) absorb(def *ir.Def) int {
	uses := ir.UseCounts(def)
	producers := ir.Producers(def.Body)
	dead := set.New[ir.Instr](0)
	n := 0
	for _, a := range asm.Instrs(def.Body) {
		for _, fam := range c.families {
			if a.Op != fam.MulAdd || len(a.Args) != 3 {
				continue
			}
			r, ok := producers[a.Args[0].ID].(*asm.Instr)
			if !ok || r.Op != fam.Reg || len(r.Args) != 2 || dead.Contains(r) {
				continue
			}
			if !onDsp(a, r) || !singleUse(def, uses, r) || !zeroInit(r.Attr) || !fits(r.Args[0], machine.DspMulAWidth) {
				continue
			}
			if !c.retarget(a, fam.MulAdd+RegA) {
				continue
			}
			a.Args = ir.Expr{r.Args[0], a.Args[1], a.Args[2], r.Args[1]}
			dead.Insert(r)
			n++
		}
	}
	sweep(def, dead)
	return n
}

// The A register of a DSP slice resets to zero.
func zeroInit(attr ir.Expr) bool {
	return len(attr) == 0 || !attr[0].IsVal() || attr[0].Val == 0
}

type link struct {
	instr *asm.Instr
	base  string
}

// linkBase strips a cascade suffix and returns the multiply-add opcode the
// instruction is a variant of.
func (c *Cascader) linkBase(op string) (string, bool) {
	for _, suffix := range []string{CascIO, CascOut, CascIn} {
		if s, ok := strings.CutSuffix(op, suffix); ok {
			op = s
			break
		}
	}
	for _, fam := range c.families {
		if op == fam.MulAdd || op == fam.MulAdd+RegA {
			return op, true
		}
	}
	return "", false
}

// chain marks maximal runs of multiply-adds where each result is the sole
// accumulator input of the next. Runs shorter than two keep the plain
// opcode.
func (c *Cascader) chain(def *ir.Def) (chains, links int) {
	uses := ir.UseCounts(def)
	byDst := make(map[string]*link)
	var order []*link
	for _, a := range asm.Instrs(def.Body) {
		base, ok := c.linkBase(a.Op)
		if !ok || len(a.Dst) != 1 || len(a.Args) < 3 || !onDsp(a) {
			continue
		}
		l := &link{instr: a, base: base}
		byDst[a.Dst[0].ID] = l
		order = append(order, l)
	}
	next := make(map[*link]*link)
	hasPrev := set.New[*link](len(order))
	for _, l := range order {
		prev, ok := byDst[l.instr.Args[2].ID]
		if !ok || prev == l || !singleUse(def, uses, prev.instr) {
			continue
		}
		next[prev] = l
		hasPrev.Insert(l)
	}
	for _, l := range order {
		if !hasPrev.Contains(l) {
			c.retarget(l.instr, l.base)
		}
	}
	for _, head := range order {
		if hasPrev.Contains(head) {
			continue
		}
		var run []*link
		for l := head; l != nil; l = next[l] {
			run = append(run, l)
		}
		if len(run) < minChain || !c.variantsExist(run) {
			for _, l := range run {
				c.retarget(l.instr, l.base)
			}
			continue
		}
		for i, l := range run {
			c.retarget(l.instr, l.base+suffixAt(i, len(run)))
		}
		chains++
		links += len(run)
	}
	return chains, links
}

func suffixAt(i, n int) string {
	switch i {
	case 0:
		return CascOut
	case n - 1:
		return CascIn
	default:
		return CascIO
	}
}

func (c *Cascader) variantsExist(run []*link) bool {
	for i, l := range run {
		if _, ok := c.imps.Imp(l.base + suffixAt(i, len(run))); !ok {
			return false
		}
	}
	return true
}
