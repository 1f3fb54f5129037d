// Package machine models the target primitives of the UltraScale fabric and
// the implementation fragments that expand an assembly opcode into them.
package machine

import (
	"fmt"
	"strings"

	"tilec/internal/ir"
)

// Op enumerates the machine primitives.
type Op uint8

const (
	Gnd Op = iota
	Vcc
	Lut1
	Lut2
	Lut3
	Lut4
	Lut5
	Lut6
	Fdre
	Fdse
	Carry8
	DspAdd
	DspSub
	DspMul
	DspMulAdd
	DspReg
)

var opNames = [...]string{
	Gnd:       "gnd",
	Vcc:       "vcc",
	Lut1:      "lut1",
	Lut2:      "lut2",
	Lut3:      "lut3",
	Lut4:      "lut4",
	Lut5:      "lut5",
	Lut6:      "lut6",
	Fdre:      "fdre",
	Fdse:      "fdse",
	Carry8:    "carry8",
	DspAdd:    "dsp_add",
	DspSub:    "dsp_sub",
	DspMul:    "dsp_mul",
	DspMulAdd: "dsp_muladd",
	DspReg:    "dsp_reg",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "?"
}

// ParseOp maps a mnemonic to an Op.
func ParseOp(s string) (Op, bool) {
	for i, name := range opNames {
		if name == s {
			return Op(i), true
		}
	}
	return 0, false
}

// IsLut reports whether op is a LUT of any size.
func (op Op) IsLut() bool { return op >= Lut1 && op <= Lut6 }

// LutInputs is the input count of a LUT op, 0 otherwise.
func (op Op) LutInputs() int {
	if !op.IsLut() {
		return 0
	}
	return int(op-Lut1) + 1
}

// IsFlop reports whether op is a flip-flop.
func (op Op) IsFlop() bool { return op == Fdre || op == Fdse }

// IsDsp reports whether op occupies a DSP48E2 slice.
func (op Op) IsDsp() bool { return op >= DspAdd && op <= DspReg }

// IsSequential reports whether op needs the module clock.
func (op Op) IsSequential() bool {
	return op.IsFlop() || op.IsDsp()
}

// Bel is a placement site inside a slice or a hard block.
type Bel uint8

const (
	BelNone Bel = iota
	A5Lut
	B5Lut
	C5Lut
	D5Lut
	E5Lut
	F5Lut
	G5Lut
	H5Lut
	A6Lut
	B6Lut
	C6Lut
	D6Lut
	E6Lut
	F6Lut
	G6Lut
	H6Lut
	AFF
	BFF
	CFF
	DFF
	EFF
	FFF
	GFF
	HFF
	AFF2
	BFF2
	CFF2
	DFF2
	EFF2
	FFF2
	GFF2
	HFF2
	BelCarry8
	BelDsp
)

var belNames = [...]string{
	BelNone:   "",
	A5Lut:     "a5lut",
	B5Lut:     "b5lut",
	C5Lut:     "c5lut",
	D5Lut:     "d5lut",
	E5Lut:     "e5lut",
	F5Lut:     "f5lut",
	G5Lut:     "g5lut",
	H5Lut:     "h5lut",
	A6Lut:     "a6lut",
	B6Lut:     "b6lut",
	C6Lut:     "c6lut",
	D6Lut:     "d6lut",
	E6Lut:     "e6lut",
	F6Lut:     "f6lut",
	G6Lut:     "g6lut",
	H6Lut:     "h6lut",
	AFF:       "aff",
	BFF:       "bff",
	CFF:       "cff",
	DFF:       "dff",
	EFF:       "eff",
	FFF:       "fff",
	GFF:       "gff",
	HFF:       "hff",
	AFF2:      "aff2",
	BFF2:      "bff2",
	CFF2:      "cff2",
	DFF2:      "dff2",
	EFF2:      "eff2",
	FFF2:      "fff2",
	GFF2:      "gff2",
	HFF2:      "hff2",
	BelCarry8: "carry8",
	BelDsp:    "dsp",
}

func (b Bel) String() string {
	if int(b) < len(belNames) {
		return belNames[b]
	}
	return "?"
}

// Verilog is the BEL name used in the placement attribute.
func (b Bel) Verilog() string {
	if b == BelDsp {
		return "DSP48E2"
	}
	return strings.ToUpper(b.String())
}

// ParseBel maps a textual BEL name to a Bel.
func ParseBel(s string) (Bel, bool) {
	for i, name := range belNames {
		if i > 0 && name == s {
			return Bel(i), true
		}
	}
	return BelNone, false
}

// Site is the Verilog LOC prefix of the tile holding the BEL.
func (b Bel) Site() string {
	if b == BelDsp {
		return "DSP48E2"
	}
	return "SLICE"
}

// Loc is an optional machine placement: a BEL plus slice coordinates.
type Loc struct {
	Bel  Bel
	X, Y ir.Coord
}

func (l Loc) String() string {
	return fmt.Sprintf("@%s(%s, %s)", l.Bel, l.X, l.Y)
}

// Instr is one target primitive instance.
type Instr struct {
	Op  Op
	Loc *Loc
	ir.Fields
}

// Mnemonic implements ir.Instr.
func (i *Instr) Mnemonic() string { return i.Op.String() }

// Clone implements ir.Instr.
func (i *Instr) Clone() ir.Instr {
	c := &Instr{Op: i.Op, Fields: i.Fields.Clone()}
	if i.Loc != nil {
		loc := *i.Loc
		c.Loc = &loc
	}
	return c
}

// LocSuffix implements ir.LocSuffixer.
func (i *Instr) LocSuffix() string {
	if i.Loc == nil {
		return ""
	}
	return " " + i.Loc.String()
}

// Imp expands one assembly opcode into machine instructions.
type Imp struct {
	Name string
	Area int
	Lat  int
	Def  *ir.Def
}

func (m *Imp) String() string {
	var b strings.Builder
	ir.FprintDef(&b, "imp", fmt.Sprintf("%s[%d, %d]", m.Name, m.Area, m.Lat), m.Def)
	return b.String()
}

// Instrs returns the machine instructions of a body in order.
func Instrs(body []ir.Instr) []*Instr {
	var out []*Instr
	for _, instr := range body {
		if m, ok := instr.(*Instr); ok {
			out = append(out, m)
		}
	}
	return out
}
