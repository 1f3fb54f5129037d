package machine

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"tilec/internal/ir"
)

func TestOpClasses(t *testing.T) {
	for _, tc := range []struct {
		name       string
		inputs     int
		flop       bool
		dsp        bool
		sequential bool
	}{
		{name: "gnd"},
		{name: "lut1", inputs: 1},
		{name: "lut6", inputs: 6},
		{name: "fdse", flop: true, sequential: true},
		{name: "carry8"},
		{name: "dsp_muladd", dsp: true, sequential: true},
		{name: "dsp_reg", dsp: true, sequential: true},
	} {
		op, ok := ParseOp(tc.name)
		if !ok {
			t.Fatalf("ParseOp(%q) failed", tc.name)
		}
		if op.String() != tc.name {
			t.Errorf("String() = %q, want %q", op, tc.name)
		}
		if op.LutInputs() != tc.inputs || op.IsFlop() != tc.flop || op.IsDsp() != tc.dsp || op.IsSequential() != tc.sequential {
			t.Errorf("%s: inputs %d flop %v dsp %v sequential %v", op, op.LutInputs(), op.IsFlop(), op.IsDsp(), op.IsSequential())
		}
	}
	if _, ok := ParseOp("lut7"); ok {
		t.Fatalf("ParseOp accepted lut7")
	}
}

func TestBelNames(t *testing.T) {
	for _, tc := range []struct {
		name    string
		verilog string
		site    string
	}{
		{name: "a6lut", verilog: "A6LUT", site: "SLICE"},
		{name: "hff2", verilog: "HFF2", site: "SLICE"},
		{name: "carry8", verilog: "CARRY8", site: "SLICE"},
		{name: "dsp", verilog: "DSP48E2", site: "DSP48E2"},
	} {
		bel, ok := ParseBel(tc.name)
		if !ok {
			t.Fatalf("ParseBel(%q) failed", tc.name)
		}
		if bel.Verilog() != tc.verilog || bel.Site() != tc.site {
			t.Errorf("%s: verilog %q site %q", tc.name, bel.Verilog(), bel.Site())
		}
	}
	if _, ok := ParseBel(""); ok {
		t.Fatalf("ParseBel accepted the empty name")
	}
}

func TestDspConfig(t *testing.T) {
	got := DecodeDsp(ir.Expr{ir.Val(1), ir.Val(0), ir.Val(1)})
	want := DspConfig{AReg: true, CReg: true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("decode mismatch (-want +got):\n%s", diff)
	}
	full := DspConfig{BReg: true, PReg: true, PCIn: true, PCOut: true}
	if diff := cmp.Diff(full, DecodeDsp(full.Encode())); diff != "" {
		t.Fatalf("encode/decode mismatch (-want +got):\n%s", diff)
	}
	if got := len(full.Encode()); got != 6 {
		t.Fatalf("encoded %d entries, want 6", got)
	}
}

func TestLocString(t *testing.T) {
	loc := Loc{Bel: A6Lut, X: ir.At(3), Y: ir.Coord{}}
	if got := loc.String(); got != "@a6lut(3, ??)" {
		t.Fatalf("String() = %q", got)
	}
}
