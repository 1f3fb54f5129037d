package cascade

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"tilec/internal/frontend"
	"tilec/internal/ir"
	"tilec/internal/library"
	"tilec/internal/passes"
)

func newCascader(t *testing.T) *Cascader {
	t.Helper()
	lib, err := library.Default()
	if err != nil {
		t.Fatalf("library: %v", err)
	}
	return New(nil, lib)
}

func mustAsm(t *testing.T, src string) *ir.Prog {
	t.Helper()
	prog, err := frontend.ParseAsm("test.asm", []byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, def := range prog.Defs {
		if err := passes.FillTypes(def); err != nil {
			t.Fatalf("types: %v", err)
		}
	}
	return prog
}

func TestCascadeChainOfThree(t *testing.T) {
	prog := mustAsm(t, `def main(a0:i8, b0:i8, a1:i8, b1:i8, a2:i8, b2:i8, c:i8) -> (y:i8) {
    m0:i8 = dmul_i8(a0, b0) @dsp(??, ??);
    s0:i8 = dadd_i8(m0, c) @dsp(??, ??);
    m1:i8 = dmul_i8(a1, b1) @dsp(??, ??);
    s1:i8 = dadd_i8(m1, s0) @dsp(??, ??);
    m2:i8 = dmul_i8(a2, b2) @dsp(??, ??);
    y:i8 = dadd_i8(s1, m2) @dsp(??, ??);
}`)
	c := newCascader(t)
	if err := c.Run(prog); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := `def main(a0:i8, b0:i8, a1:i8, b1:i8, a2:i8, b2:i8, c:i8) -> (y:i8) {
    s0:i8 = dmuladd_i8_co(a0, b0, c) @dsp(??, ??);
    s1:i8 = dmuladd_i8_cio(a1, b1, s0) @dsp(??, ??);
    y:i8 = dmuladd_i8_ci(a2, b2, s1) @dsp(??, ??);
}
`
	if diff := cmp.Diff(want, prog.Defs[0].String()); diff != "" {
		t.Fatalf("asm mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Stats{Fused: 3, Chains: 1, Links: 3}, c.Stats()); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestCascadeAbsorbsInputRegister(t *testing.T) {
	prog := mustAsm(t, `def main(d:i8, b:i8, c:i8, en:b, b1:i8, a1:i8) -> (y:i8) {
    r:i8 = dreg_i8[0](d, en) @dsp(??, ??);
    s:i8 = dmuladd_i8(r, b, c) @dsp(??, ??);
    y:i8 = dmuladd_i8(a1, b1, s) @dsp(??, ??);
}`)
	c := newCascader(t)
	st := c.Def(prog.Defs[0])
	want := `def main(d:i8, b:i8, c:i8, en:b, b1:i8, a1:i8) -> (y:i8) {
    s:i8 = dmuladd_i8_rega_co(d, b, c, en) @dsp(??, ??);
    y:i8 = dmuladd_i8_ci(a1, b1, s) @dsp(??, ??);
}
`
	if diff := cmp.Diff(want, prog.Defs[0].String()); diff != "" {
		t.Fatalf("asm mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Stats{Absorbed: 1, Chains: 1, Links: 2}, st); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestCascadeIsIdempotent(t *testing.T) {
	prog := mustAsm(t, `def main(a0:i8, b0:i8, a1:i8, b1:i8, c:i8) -> (y:i8) {
    s0:i8 = dmuladd_i8(a0, b0, c) @dsp(??, ??);
    y:i8 = dmuladd_i8(a1, b1, s0) @dsp(??, ??);
}`)
	c := newCascader(t)
	c.Def(prog.Defs[0])
	first := prog.Defs[0].String()
	c.Def(prog.Defs[0])
	if diff := cmp.Diff(first, prog.Defs[0].String()); diff != "" {
		t.Fatalf("second run changed the program (-first +second):\n%s", diff)
	}
}

func TestCascadeLeavesIneligibleSequences(t *testing.T) {
	for _, tc := range []struct {
		name string
		src  string
	}{
		{
			name: "shared multiply",
			src: `def main(a:i8, b:i8, c:i8) -> (y:i8, z:i8) {
    m:i8 = dmul_i8(a, b) @dsp(??, ??);
    y:i8 = dadd_i8(m, c) @dsp(??, ??);
    z:i8 = dadd_i8(m, a) @dsp(??, ??);
}`,
		},
		{
			name: "multiply is an output",
			src: `def main(a:i8, b:i8, c:i8) -> (y:i8, m:i8) {
    m:i8 = dmul_i8(a, b) @dsp(??, ??);
    y:i8 = dadd_i8(m, c) @dsp(??, ??);
}`,
		},
		{
			name: "add on fabric",
			src: `def main(a:i8, b:i8, c:i8) -> (y:i8) {
    m:i8 = dmul_i8(a, b) @dsp(??, ??);
    y:i8 = ladd_i8(m, c) @lut(??, ??);
}`,
		},
		{
			name: "register with init",
			src: `def main(d:i8, b:i8, c:i8, en:b) -> (y:i8) {
    r:i8 = lreg_i8[5](d, en) @lut(??, ??);
    y:i8 = dmuladd_i8(r, b, c) @dsp(??, ??);
}`,
		},
		{
			name: "accumulator used twice",
			src: `def main(a:i8, b:i8, c:i8) -> (y:i8, z:i8) {
    s:i8 = dmuladd_i8(a, b, c) @dsp(??, ??);
    y:i8 = dmuladd_i8(a, b, s) @dsp(??, ??);
    z:i8 = dadd_i8(s, c) @dsp(??, ??);
}`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			prog := mustAsm(t, tc.src)
			before := prog.Defs[0].String()
			st := newCascader(t).Def(prog.Defs[0])
			if diff := cmp.Diff(before, prog.Defs[0].String()); diff != "" {
				t.Fatalf("program rewritten (-want +got):\n%s", diff)
			}
			if st != (Stats{}) {
				t.Fatalf("stats = %+v, want none", st)
			}
		})
	}
}

func TestCascadeRespectsPortWidths(t *testing.T) {
	prog := mustAsm(t, `def main(a:i32, b:i32, c:i32) -> (y:i32) {
    m:i32 = dmul_i8(a, b) @dsp(??, ??);
    y:i32 = dadd_i8(m, c) @dsp(??, ??);
}`)
	if st := newCascader(t).Def(prog.Defs[0]); st.Fused != 0 {
		t.Fatalf("fused a 32-bit multiplier operand")
	}
}
