package ir

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

const indentUnit = "    "

// LocSuffixer is implemented by instructions that print a location suffix
// after their argument list (" @lut", " @dsp(1, 2)", ...).
type LocSuffixer interface {
	LocSuffix() string
}

func (t Term) String() string {
	switch t.Kind {
	case AnyTerm:
		return "??"
	case ValTerm:
		if t.Hex {
			return "0x" + strconv.FormatUint(uint64(t.Val), 16)
		}
		return strconv.FormatInt(t.Val, 10)
	default:
		if t.Ty.Kind == TyNone {
			return t.ID
		}
		return t.ID + ":" + t.Ty.String()
	}
}

// untyped prints a variable without its type annotation.
func (t Term) untyped() string {
	if t.IsVar() {
		return t.ID
	}
	return t.String()
}

func (e Expr) String() string {
	parts := make([]string, len(e))
	for i, t := range e {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

func (e Expr) untyped() string {
	parts := make([]string, len(e))
	for i, t := range e {
		parts[i] = t.untyped()
	}
	return strings.Join(parts, ", ")
}

func (c Coord) String() string {
	switch c.Kind {
	case CoordVal:
		return strconv.Itoa(c.Val)
	case CoordVar:
		return c.Name
	default:
		return "??"
	}
}

func (l Loc) String() string {
	return fmt.Sprintf("@%s(%s, %s)", l.Prim, l.X, l.Y)
}

// LocSuffix implements LocSuffixer.
func (i *CompInstr) LocSuffix() string {
	return " @" + i.Prim.String()
}

// FormatInstr renders one instruction without the trailing newline.
func FormatInstr(instr Instr) string {
	f := instr.Base()
	var b strings.Builder
	if len(f.Dst) == 1 {
		b.WriteString(f.Dst[0].String())
	} else {
		b.WriteString("(")
		b.WriteString(f.Dst.String())
		b.WriteString(")")
	}
	b.WriteString(" = ")
	b.WriteString(instr.Mnemonic())
	if len(f.Attr) > 0 {
		b.WriteString("[")
		b.WriteString(f.Attr.String())
		b.WriteString("]")
	}
	b.WriteString("(")
	b.WriteString(f.Args.untyped())
	b.WriteString(")")
	if s, ok := instr.(LocSuffixer); ok {
		b.WriteString(s.LocSuffix())
	}
	b.WriteString(";")
	return b.String()
}

// FprintDef writes a definition under the given keyword and header. The
// header is the definition id plus any bracketed parameters.
func FprintDef(w io.Writer, keyword, header string, def *Def) {
	fmt.Fprintf(w, "%s %s(%s) -> (%s) {\n", keyword, header, def.Sig.Inputs, def.Sig.Outputs)
	for _, instr := range def.Body {
		fmt.Fprintf(w, "%s%s\n", indentUnit, FormatInstr(instr))
	}
	fmt.Fprintln(w, "}")
}

func (d *Def) String() string {
	var b strings.Builder
	FprintDef(&b, "def", d.Sig.ID, d)
	return b.String()
}

// Dump writes every definition of the program in source order, separated
// by blank lines.
func Dump(prog *Prog, w io.Writer) {
	if prog == nil {
		fmt.Fprintln(w, "<nil program>")
		return
	}
	for i, def := range prog.Defs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		FprintDef(w, "def", def.Sig.ID, def)
	}
}

func (p *Prog) String() string {
	var b strings.Builder
	Dump(p, &b)
	return b.String()
}

func (p *Pattern) String() string {
	var b strings.Builder
	header := fmt.Sprintf("%s[%s, %d, %d]", p.Name, p.Prim, p.Area, p.Lat)
	FprintDef(&b, "pat", header, p.Def)
	return b.String()
}

// DumpPatterns writes patterns separated by blank lines.
func DumpPatterns(pats []*Pattern, w io.Writer) {
	for i, p := range pats {
		if i > 0 {
			fmt.Fprintln(w)
		}
		io.WriteString(w, p.String())
	}
}
