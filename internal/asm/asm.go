// Package asm holds the assembly level that sits between tree selection and
// expansion: every selected pattern tile becomes one opaque Instr.
package asm

import (
	"tilec/internal/ir"
)

// Instr is a placeholder for one pattern tile. Op names the pattern (or a
// cascader variant of it) and Loc the primitive site it will occupy.
type Instr struct {
	Op   string
	Area int
	Lat  int
	Loc  ir.Loc
	ir.Fields
}

// Mnemonic implements ir.Instr.
func (i *Instr) Mnemonic() string { return i.Op }

// Clone implements ir.Instr.
func (i *Instr) Clone() ir.Instr {
	c := *i
	c.Fields = i.Fields.Clone()
	return &c
}

// LocSuffix implements ir.LocSuffixer.
func (i *Instr) LocSuffix() string {
	return " " + i.Loc.String()
}

// Instrs returns the assembly instructions of a body in order, skipping
// wires.
func Instrs(body []ir.Instr) []*Instr {
	var out []*Instr
	for _, instr := range body {
		if a, ok := instr.(*Instr); ok {
			out = append(out, a)
		}
	}
	return out
}

// Annotate fills Area, Lat and Loc.Prim of assembly instructions from the
// pattern library when they are unset, e.g. after parsing a text file that
// carries only opcodes and locations.
func Annotate(def *ir.Def, patterns map[string]*ir.Pattern) {
	for _, a := range Instrs(def.Body) {
		p, ok := patterns[a.Op]
		if !ok {
			continue
		}
		if a.Area == 0 {
			a.Area = p.Area
		}
		if a.Lat == 0 {
			a.Lat = p.Lat
		}
		if a.Loc.Prim == ir.PrimAny {
			a.Loc.Prim = p.Prim
		}
	}
}

// TotalArea sums the area of every assembly instruction.
func TotalArea(def *ir.Def) int {
	total := 0
	for _, a := range Instrs(def.Body) {
		total += a.Area
	}
	return total
}
