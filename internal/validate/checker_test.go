package validate

import (
	"strings"
	"testing"

	"tilec/internal/diag"
	"tilec/internal/frontend"
	"tilec/internal/ir"
	"tilec/internal/machine"
	"tilec/internal/passes"
)

func parseLibrary(t *testing.T, patSrc, impSrc string) ([]*ir.Pattern, []*machine.Imp) {
	t.Helper()
	pats, err := frontend.ParsePatterns("test.pat", []byte(patSrc))
	if err != nil {
		t.Fatalf("parse patterns: %v", err)
	}
	for _, p := range pats {
		if err := passes.FillTypes(p.Def); err != nil {
			t.Fatalf("fill %s: %v", p.Name, err)
		}
	}
	imps, err := frontend.ParseImps("test.imp", []byte(impSrc))
	if err != nil {
		t.Fatalf("parse imps: %v", err)
	}
	for _, m := range imps {
		if err := passes.FillTypes(m.Def); err != nil {
			t.Fatalf("fill %s: %v", m.Name, err)
		}
	}
	return pats, imps
}

const goodPats = `pat lxor_b[lut, 1, 1](a:b, b:b) -> (y:b) {
    y:b = xor(a, b) @??;
}
`

const goodImps = `imp lxor_b[1, 1](a:b, b:b) -> (y:b) {
    y:b = lut2[6](a, b) @a6lut(??, ??);
}
`

func TestCheckLibraryAcceptsConsistentLibrary(t *testing.T) {
	pats, imps := parseLibrary(t, goodPats, goodImps)
	if err := CheckLibrary(pats, imps); err != nil {
		t.Fatalf("expected library to validate, got %v", err)
	}
}

func TestCheckLibraryRejects(t *testing.T) {
	tests := []struct {
		name string
		pats string
		imps string
		kind diag.Kind
		want string
	}{
		{
			name: "missing implementation",
			pats: goodPats,
			imps: "",
			kind: diag.AssemblerError,
			want: "has no implementation",
		},
		{
			name: "arity mismatch",
			pats: goodPats,
			imps: `imp lxor_b[1, 1](a:b) -> (y:b) {
    y:b = lut1[1](a);
}
`,
			kind: diag.AssemblerError,
			want: "takes 2 input(s)",
		},
		{
			name: "two outputs",
			pats: `pat two[lut, 1, 1](a:b) -> (y:b, z:b) {
    y:b = not(a) @??;
    z:b = not(a) @??;
}
`,
			imps: "",
			kind: diag.TypeError,
			want: "exactly one output",
		},
		{
			name: "mux condition last",
			pats: `pat badmux[lut, 1, 1](t:i8, f:i8, c:b) -> (y:i8) {
    y:i8 = mux(t, f, c) @??;
}
`,
			imps: `imp badmux[1, 1](t:i8, f:i8, c:b) -> (y:i8) {
    y:i8 = id(t);
}
`,
			kind: diag.TypeError,
			want: "(cond, then, else)",
		},
		{
			name: "shared interior value",
			pats: `pat dag[lut, 1, 1](a:b) -> (y:b) {
    t:b = not(a) @??;
    y:b = and(t, t) @??;
}
`,
			imps: `imp dag[1, 1](a:b) -> (y:b) {
    y:b = lut1[2](a);
}
`,
			kind: diag.TypeError,
			want: "must form a tree",
		},
		{
			name: "wrong primitive class",
			pats: `pat mixed[lut, 1, 1](a:i8, b:i8) -> (y:i8) {
    y:i8 = mul(a, b) @dsp;
}
`,
			imps: `imp mixed[1, 1](a:i8, b:i8) -> (y:i8) {
    y:i8 = dsp_mul[0, 0, 0, 0, 0, 0](a, b);
}
`,
			kind: diag.TypeError,
			want: "targets lut but contains mul @dsp",
		},
		{
			name: "lut arity",
			pats: goodPats,
			imps: `imp lxor_b[1, 1](a:b, b:b) -> (y:b) {
    y:b = lut3[6](a, b);
}
`,
			kind: diag.AssemblerError,
			want: "lut3 takes 3 argument(s), got 2",
		},
		{
			name: "init too wide",
			pats: goodPats,
			imps: `imp lxor_b[1, 1](a:b, b:b) -> (y:b) {
    y:b = lut2[0x1f](a, b);
}
`,
			kind: diag.AssemblerError,
			want: "does not fit lut2",
		},
		{
			name: "dsp on slice bel",
			pats: `pat dm[dsp, 1, 1](a:i8, b:i8) -> (y:i8) {
    y:i8 = mul(a, b) @??;
}
`,
			imps: `imp dm[1, 1](a:i8, b:i8) -> (y:i8) {
    y:i8 = dsp_mul[0, 0, 0, 0, 0, 0](a, b) @a6lut(??, ??);
}
`,
			kind: diag.AssemblerError,
			want: "cannot be placed at a6lut",
		},
		{
			name: "duplicate pattern",
			pats: goodPats + goodPats,
			imps: goodImps,
			kind: diag.TypeError,
			want: "declared more than once",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pats, imps := parseLibrary(t, tt.pats, tt.imps)
			issues := Issues(pats, imps)
			var found error
			for _, issue := range issues {
				if strings.Contains(issue.Error(), tt.want) {
					found = issue
					break
				}
			}
			if found == nil {
				t.Fatalf("expected issue containing %q, got %v", tt.want, issues)
			}
			if got := diag.KindOf(found); got != tt.kind {
				t.Fatalf("expected %s error, got %s", tt.kind, got)
			}
			if CheckLibrary(pats, imps) == nil {
				t.Fatalf("CheckLibrary must fail when issues exist")
			}
		})
	}
}
