package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/tools/txtar"

	"tilec/internal/asm"
	"tilec/internal/backend"
	"tilec/internal/cascade"
	"tilec/internal/diag"
	"tilec/internal/frontend"
	"tilec/internal/ir"
	"tilec/internal/library"
	"tilec/internal/machine"
	"tilec/internal/placer"
)

func newPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func parse(t *testing.T, src string) *ir.Prog {
	t.Helper()
	prog, err := frontend.ParseProg("test.ir", []byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return prog
}

func parseAsm(t *testing.T, src string) *ir.Prog {
	t.Helper()
	prog, err := frontend.ParseAsm("test.asm", []byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return prog
}

func entry(t *testing.T, prog *ir.Prog) *ir.Def {
	t.Helper()
	def, ok := prog.Entry()
	if !ok {
		t.Fatalf("program has no entry")
	}
	return def
}

func TestLoadLibrary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib.txtar")
	if err := os.WriteFile(path, library.DefaultArchive(), 0o644); err != nil {
		t.Fatalf("write library: %v", err)
	}
	want, err := library.Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}

	lib, err := LoadLibrary(path)
	if err != nil {
		t.Fatalf("LoadLibrary(%s): %v", path, err)
	}
	if diff := cmp.Diff(want.ImpNames(), lib.ImpNames()); diff != "" {
		t.Fatalf("imp names mismatch (-want +got):\n%s", diff)
	}

	t.Setenv(LibraryEnv, path)
	if _, err := LoadLibrary(""); err != nil {
		t.Fatalf("LoadLibrary from %s: %v", LibraryEnv, err)
	}

	t.Setenv(LibraryEnv, filepath.Join(t.TempDir(), "missing"))
	if _, err := LoadLibrary(""); !diag.Is(err, diag.IOError) {
		t.Fatalf("error = %v, want io error", err)
	}
}

func TestNewOracle(t *testing.T) {
	for _, tc := range []struct {
		spec string
		want placer.Oracle
	}{
		{spec: "", want: placer.Grid{Columns: 4}},
		{spec: "grid", want: placer.Grid{Columns: 4}},
		{spec: "/opt/bin/place --fast", want: placer.Command{Path: "/opt/bin/place", Args: []string{"--fast"}}},
	} {
		if diff := cmp.Diff(tc.want, NewOracle(tc.spec, 4)); diff != "" {
			t.Errorf("NewOracle(%q) mismatch (-want +got):\n%s", tc.spec, diff)
		}
	}
}

func TestTranslateInlinesAndSelects(t *testing.T) {
	prog := parse(t, `def xor3(a:b, b:b, c:b) -> (y:b) {
    t:b = xor(a, b) @??;
    y:b = xor(t, c) @??;
}

def main(p:b, q:b, r:b) -> (out:b) {
    out:b = xor3(p, q, r);
}`)
	if err := newPipeline(t).Translate(prog); err != nil {
		t.Fatalf("Translate: %v", err)
	}
	def := entry(t, prog)
	var ops []string
	for _, instr := range def.Body {
		a, ok := instr.(*asm.Instr)
		if !ok {
			t.Fatalf("%s survived selection", instr.Mnemonic())
		}
		ops = append(ops, a.Op)
	}
	if diff := cmp.Diff([]string{"lxor_b", "lxor_b"}, ops); diff != "" {
		t.Fatalf("opcodes mismatch (-want +got):\n%s", diff)
	}
}

func TestTranslateReportsUncoverable(t *testing.T) {
	prog := parse(t, `def main(a:i16, b:i16) -> (y:i16) {
    y:i16 = add(a, b) @lut;
}`)
	if err := newPipeline(t).Translate(prog); !diag.Is(err, diag.SelectorError) {
		t.Fatalf("error = %v, want selector error", err)
	}
}

func TestCompileKeepsValuesReadByUnusedWires(t *testing.T) {
	prog := parse(t, `def main(a:i8, b:i8, c:i8) -> (y:i8) {
    t:i8 = mul(a, b) @dsp;
    w:b = ext[0](t);
    y:i8 = add(t, c) @dsp;
}`)
	p := newPipeline(t)
	if err := p.Translate(prog); err != nil {
		t.Fatalf("Translate: %v", err)
	}
	want := `def main(a:i8, b:i8, c:i8) -> (y:i8) {
    t:i8 = dmul_i8(a, b) @dsp(??, ??);
    w:b = ext[0](t);
    y:i8 = dadd_i8(t, c) @dsp(??, ??);
}
`
	if diff := cmp.Diff(want, entry(t, prog).String()); diff != "" {
		t.Fatalf("translated program mismatch (-want +got):\n%s", diff)
	}
	if err := p.Optimize(prog); err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if err := p.Place(context.Background(), prog); err != nil {
		t.Fatalf("Place: %v", err)
	}
	if err := p.Assemble(prog); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if _, _, err := backend.Render(prog); err != nil {
		t.Fatalf("Render: %v", err)
	}
}

func TestOptimizeFusesDspPair(t *testing.T) {
	prog := parseAsm(t, `def main(a:i8, b:i8, c:i8) -> (y:i8) {
    t:i8 = dmul_i8(a, b) @dsp(??, ??);
    y:i8 = dadd_i8(t, c) @dsp(??, ??);
}`)
	p := newPipeline(t)
	if err := p.Optimize(prog); err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	want := `def main(a:i8, b:i8, c:i8) -> (y:i8) {
    y:i8 = dmuladd_i8(a, b, c) @dsp(??, ??);
}
`
	if diff := cmp.Diff(want, entry(t, prog).String()); diff != "" {
		t.Fatalf("optimized program mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(cascade.Stats{Fused: 1}, p.CascadeStats()); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestPlaceAnnotatesParsedAssembly(t *testing.T) {
	prog := parseAsm(t, `def main(a:i8, b:i8) -> (y:i8) {
    t:i8 = ladd_i8(a, b);
    y:i8 = lxor_i8(t, b);
}`)
	if err := newPipeline(t).Place(context.Background(), prog); err != nil {
		t.Fatalf("Place: %v", err)
	}
	for _, a := range asm.Instrs(entry(t, prog).Body) {
		if a.Loc.Prim != ir.PrimLut || !a.Loc.IsPlaced() {
			t.Fatalf("%s left at %s", a.Op, a.Loc)
		}
	}
}

func TestCompileToVerilog(t *testing.T) {
	prog := parse(t, `def main(a:i8, b:i8, c:i8, en:b) -> (y:i8) {
    t:i8 = mul(a, b) @dsp;
    s:i8 = add(t, c) @dsp;
    y:i8 = reg[0](s, en) @lut;
}`)
	if err := newPipeline(t).Compile(context.Background(), prog); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	def := entry(t, prog)
	for _, m := range machine.Instrs(def.Body) {
		if m.Loc != nil && (!m.Loc.X.IsVal() || !m.Loc.Y.IsVal()) {
			t.Fatalf("%s left unplaced: %s", m.Op, m.Loc)
		}
	}
	src, modules, err := backend.Render(prog)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if diff := cmp.Diff([]string{"main"}, modules); diff != "" {
		t.Fatalf("modules mismatch (-want +got):\n%s", diff)
	}
	for _, want := range []string{"input wire clock,", "DSP48E2 #(", "FDRE #(", "endmodule"} {
		if !strings.Contains(string(src), want) {
			t.Fatalf("verilog lacks %q:\n%s", want, src)
		}
	}
}

// TestStageGoldens runs each IR program of testdata/stages.txtar through
// translate and optimize and compares against the golden members.
func TestStageGoldens(t *testing.T) {
	ar, err := txtar.ParseFile(filepath.Join("testdata", "stages.txtar"))
	if err != nil {
		t.Fatalf("read fixtures: %v", err)
	}
	members := make(map[string]string, len(ar.Files))
	var cases []string
	for _, f := range ar.Files {
		members[f.Name] = string(f.Data)
		if name, ok := strings.CutSuffix(f.Name, ".ir"); ok {
			cases = append(cases, name)
		}
	}
	if len(cases) == 0 {
		t.Fatalf("no cases")
	}
	for _, name := range cases {
		t.Run(name, func(t *testing.T) {
			prog := parse(t, members[name+".ir"])
			p := newPipeline(t)
			if err := p.Translate(prog); err != nil {
				t.Fatalf("Translate: %v", err)
			}
			if diff := cmp.Diff(members[name+".translate.golden"], prog.String()); diff != "" {
				t.Fatalf("translate mismatch (-want +got):\n%s", diff)
			}
			want, ok := members[name+".optimize.golden"]
			if !ok {
				return
			}
			if err := p.Optimize(prog); err != nil {
				t.Fatalf("Optimize: %v", err)
			}
			if diff := cmp.Diff(want, prog.String()); diff != "" {
				t.Fatalf("optimize mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
