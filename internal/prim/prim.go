// Package prim models instantiated device primitives: a cell type with
// parameters, connected ports and an optional placement, printable as a
// structural Verilog instantiation.
package prim

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ValueKind enumerates the parameter value forms.
type ValueKind uint8

const (
	IntValue ValueKind = iota
	BinValue
	HexValue
	StringValue
)

// Value is a typed parameter value.
type Value struct {
	Kind  ValueKind
	Width int
	Bits  uint64
	Int   int64
	Str   string
}

// Int is a plain decimal parameter.
func Int(v int64) Value { return Value{Kind: IntValue, Int: v} }

// Bin is a sized binary literal, e.g. 9'b000110101.
func Bin(width int, v uint64) Value { return Value{Kind: BinValue, Width: width, Bits: v} }

// Hex is a sized hexadecimal literal, e.g. 64'h9009000000009009.
func Hex(width int, v uint64) Value { return Value{Kind: HexValue, Width: width, Bits: v} }

// Str is a string parameter.
func Str(s string) Value { return Value{Kind: StringValue, Str: s} }

func mask(width int, v uint64) uint64 {
	if width >= 64 {
		return v
	}
	return v & (1<<uint(width) - 1)
}

// Verilog renders the value as a Verilog literal.
func (v Value) Verilog() string {
	switch v.Kind {
	case BinValue:
		s := strconv.FormatUint(mask(v.Width, v.Bits), 2)
		if pad := v.Width - len(s); pad > 0 {
			s = strings.Repeat("0", pad) + s
		}
		return fmt.Sprintf("%d'b%s", v.Width, s)
	case HexValue:
		digits := (v.Width + 3) / 4
		return fmt.Sprintf("%d'h%0*X", v.Width, digits, mask(v.Width, v.Bits))
	case StringValue:
		return strconv.Quote(v.Str)
	default:
		return strconv.FormatInt(v.Int, 10)
	}
}

// Param is one named parameter.
type Param struct {
	Name  string
	Value Value
}

// Port connects a cell pin to a Verilog expression. An empty Expr leaves
// the pin unconnected.
type Port struct {
	Name string
	Expr string
}

// Placement pins an instance to a BEL of a site.
type Placement struct {
	Bel  string
	Site string
	X, Y int
	// Fixed is false when only the BEL is known.
	Fixed bool
}

// Attribute renders the Verilog attribute instance.
func (p Placement) Attribute() string {
	if !p.Fixed {
		return fmt.Sprintf("(* BEL = %q *)", p.Bel)
	}
	return fmt.Sprintf("(* BEL = %q, LOC = \"%s_X%dY%d\" *)", p.Bel, p.Site, p.X, p.Y)
}

// Instance is one primitive cell.
type Instance struct {
	Cell      string
	Name      string
	Params    []Param
	Inputs    []Port
	Outputs   []Port
	Placement *Placement
}

// Param appends a parameter.
func (in *Instance) Param(name string, v Value) {
	in.Params = append(in.Params, Param{Name: name, Value: v})
}

// In connects an input pin.
func (in *Instance) In(name, expr string) {
	in.Inputs = append(in.Inputs, Port{Name: name, Expr: expr})
}

// Out connects an output pin.
func (in *Instance) Out(name, expr string) {
	in.Outputs = append(in.Outputs, Port{Name: name, Expr: expr})
}

// Emit writes the instantiation at the given indentation.
func (in *Instance) Emit(w io.Writer, indent string) {
	if in.Placement != nil {
		fmt.Fprintf(w, "%s%s\n", indent, in.Placement.Attribute())
	}
	fmt.Fprintf(w, "%s%s", indent, in.Cell)
	if len(in.Params) > 0 {
		fmt.Fprint(w, " #(\n")
		for i, p := range in.Params {
			sep := ","
			if i == len(in.Params)-1 {
				sep = ""
			}
			fmt.Fprintf(w, "%s    .%s(%s)%s\n", indent, p.Name, p.Value.Verilog(), sep)
		}
		fmt.Fprintf(w, "%s)", indent)
	}
	fmt.Fprintf(w, " %s (\n", in.Name)
	ports := append(append([]Port(nil), in.Inputs...), in.Outputs...)
	for i, p := range ports {
		sep := ","
		if i == len(ports)-1 {
			sep = ""
		}
		fmt.Fprintf(w, "%s    .%s(%s)%s\n", indent, p.Name, p.Expr, sep)
	}
	fmt.Fprintf(w, "%s);\n", indent)
}
