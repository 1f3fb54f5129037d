package forest

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"tilec/internal/diag"
	"tilec/internal/frontend"
	"tilec/internal/ir"
	"tilec/internal/passes"
)

func mustDef(t *testing.T, src string) *ir.Def {
	t.Helper()
	prog, err := frontend.ParseProg("test.ir", []byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	def, ok := prog.Entry()
	if !ok {
		t.Fatalf("no main definition")
	}
	if err := passes.InferDef(def); err != nil {
		t.Fatalf("infer: %v", err)
	}
	return def
}

func treeStrings(f *Forest) []string {
	var out []string
	for _, tr := range f.Trees {
		out = append(out, tr.String())
	}
	return out
}

func TestBuildRoots(t *testing.T) {
	def := mustDef(t, `def main(a:i8, b:i8, c:i8) -> (y:i8, z:i8) {
    m:i8 = mul(a, b) @??;
    s:i8 = add(m, c) @??;
    y:i8 = xor(s, a) @lut;
    z:i8 = and(s, b) @lut;
}`)
	f, err := Build(def)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if diff := cmp.Diff([]string{"s", "y", "z"}, f.Roots()); diff != "" {
		t.Fatalf("roots mismatch (-want +got):\n%s", diff)
	}
	want := []string{
		"add(mul(a, b), c)",
		"xor(s, a)",
		"and(s, b)",
	}
	if diff := cmp.Diff(want, treeStrings(f)); diff != "" {
		t.Fatalf("trees mismatch (-want +got):\n%s", diff)
	}
	if f.IsRoot("m") {
		t.Fatalf("single-use m must not be a root")
	}
	for _, tr := range f.Trees {
		if tr.Root != 0 {
			t.Fatalf("root index = %d, want 0", tr.Root)
		}
	}
}

func TestBuildCoversEveryComputationOnce(t *testing.T) {
	def := mustDef(t, `def main(a:i8, b:i8, c:b, en:b) -> (y:i8) {
    t0:i8 = add(a, b) @??;
    t1:i8 = sub(t0, a) @??;
    t2:i8 = mux(c, t1, t0) @lut;
    q:i8 = reg[0](t2, en) @??;
    w:i8 = id(q);
    y:i8 = xor(w, t1) @lut;
}`)
	f, err := Build(def)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	seen := make(map[string]int)
	for _, tr := range f.Trees {
		for _, n := range tr.Nodes {
			if n.Kind == Comp {
				seen[n.ID]++
			}
		}
	}
	for _, instr := range def.Body {
		c, ok := instr.(*ir.CompInstr)
		if !ok {
			continue
		}
		if got := seen[c.Dst[0].ID]; got != 1 {
			t.Errorf("%s appears as interior node %d time(s), want 1", c.Dst[0].ID, got)
		}
	}
	if !f.IsRoot("q") {
		t.Fatalf("register q must be a root")
	}
}

func TestBuildDuplicatesWires(t *testing.T) {
	def := mustDef(t, `def main(a:i8v2, b:i8) -> (y:i8) {
    w:i8 = ext[0](a);
    p:i8 = add(w, b) @??;
    q:i8 = xor(w, b) @??;
    y:i8 = and(p, q) @lut;
}`)
	f, err := Build(def)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := []string{"and(add(ext[0](a), b), xor(ext[0](a), b))"}
	if diff := cmp.Diff(want, treeStrings(f)); diff != "" {
		t.Fatalf("trees mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildCountsUsesThroughWires(t *testing.T) {
	def := mustDef(t, `def main(a:i8, b:i8) -> (y:i8, z:i8) {
    s:i8 = add(a, b) @??;
    w:i8 = id(s);
    y:i8 = xor(w, a) @lut;
    z:i8 = and(w, b) @lut;
}`)
	f, err := Build(def)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !f.IsRoot("s") {
		t.Fatalf("s reaches two computations through w and must be a root")
	}
	if diff := cmp.Diff([]string{"add(a, b)", "xor(id(s), a)", "and(id(s), b)"}, treeStrings(f)); diff != "" {
		t.Fatalf("trees mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildRootsValueWithDeadWire(t *testing.T) {
	def := mustDef(t, `def main(a:i8, b:i8, c:i8) -> (y:i8) {
    t:i8 = mul(a, b) @dsp;
    w:b = ext[0](t);
    y:i8 = add(t, c) @dsp;
}`)
	f, err := Build(def)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !f.IsRoot("t") {
		t.Fatalf("t also feeds the unused wire w and must be a root")
	}
	if diff := cmp.Diff([]string{"mul(a, b)", "add(t, c)"}, treeStrings(f)); diff != "" {
		t.Fatalf("trees mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildRootsValueBehindDeadWireChain(t *testing.T) {
	def := mustDef(t, `def main(a:i8, b:i8, c:i8) -> (y:i8) {
    t:i8 = mul(a, b) @dsp;
    w:i8 = id(t);
    v:b = ext[0](w);
    y:i8 = add(w, c) @dsp;
}`)
	f, err := Build(def)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !f.IsRoot("t") {
		t.Fatalf("t reaches the unused wire v through w and must be a root")
	}
}

func TestBuildRegisterFeedback(t *testing.T) {
	def := mustDef(t, `def main(a:i8, b:i8, en:b) -> (x:i8) {
    y:i8 = reg[0](x, en) @??;
    x:i8 = add(y, b) @??;
}`)
	f, err := Build(def)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if diff := cmp.Diff([]string{"reg[0](x, en)", "add(y, b)"}, treeStrings(f)); diff != "" {
		t.Fatalf("trees mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildRejectsCalls(t *testing.T) {
	prog, err := frontend.ParseProg("test.ir", []byte(`def main(a:i8) -> (y:i8) {
    y:i8 = inc[](a);
}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	def, _ := prog.Entry()
	if _, err := Build(def); !diag.Is(err, diag.ConversionError) {
		t.Fatalf("Build error = %v, want conversion error", err)
	}
}

func TestFromPatternInheritsPrimitive(t *testing.T) {
	pats, err := frontend.ParsePatterns("test.pat", []byte(`pat dmuladd_i8[dsp, 1, 1](a:i8, b:i8, c:i8) -> (y:i8) {
    t:i8 = mul(a, b) @??;
    y:i8 = add(t, c) @??;
}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	tr, err := FromPattern(pats[0])
	if err != nil {
		t.Fatalf("FromPattern: %v", err)
	}
	if got := tr.String(); got != "add(mul(a, b), c)" {
		t.Fatalf("pattern tree = %q", got)
	}
	for _, n := range tr.Nodes {
		if n.Kind == Comp && n.Prim != ir.PrimDsp {
			t.Fatalf("%s has prim %s, want dsp", n.ID, n.Prim)
		}
	}
	if got := AddCost(MaxCost, 1); got != MaxCost {
		t.Fatalf("AddCost saturation = %d", got)
	}
}
