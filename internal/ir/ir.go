package ir

// TermKind enumerates the variants of Term.
type TermKind uint8

const (
	AnyTerm TermKind = iota
	ValTerm
	VarTerm
)

// Term is the wildcard "??", a numeric literal, or a typed variable.
type Term struct {
	Kind TermKind
	Val  int64
	// Hex records that a literal was written in hexadecimal so the printer
	// can reproduce it.
	Hex bool
	ID  string
	Ty  Ty
}

// Var builds a typed variable term.
func Var(id string, ty Ty) Term { return Term{Kind: VarTerm, ID: id, Ty: ty} }

// Val builds a literal term.
func Val(v int64) Term { return Term{Kind: ValTerm, Val: v} }

// Hole builds the "??" term.
func Hole() Term { return Term{Kind: AnyTerm} }

// IsVar reports whether the term is a variable.
func (t Term) IsVar() bool { return t.Kind == VarTerm }

// IsVal reports whether the term is a literal.
func (t Term) IsVal() bool { return t.Kind == ValTerm }

// Expr is a single term or an ordered tuple of terms.
type Expr []Term

// IDs returns the variable ids of the expression in order.
func (e Expr) IDs() []string {
	ids := make([]string, 0, len(e))
	for _, t := range e {
		if t.IsVar() {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// Clone returns a deep copy of the expression.
func (e Expr) Clone() Expr {
	if e == nil {
		return nil
	}
	out := make(Expr, len(e))
	copy(out, e)
	return out
}

// WireOp enumerates the pure data reshaping operations.
type WireOp uint8

const (
	Id WireOp = iota
	Con
	Sll
	Srl
	Sra
	Ext
	Cat
)

var wireNames = [...]string{
	Id:  "id",
	Con: "const",
	Sll: "sll",
	Srl: "srl",
	Sra: "sra",
	Ext: "ext",
	Cat: "cat",
}

func (op WireOp) String() string {
	if int(op) < len(wireNames) {
		return wireNames[op]
	}
	return "?"
}

// ParseWireOp maps a mnemonic to a WireOp.
func ParseWireOp(s string) (WireOp, bool) {
	for i, name := range wireNames {
		if name == s {
			return WireOp(i), true
		}
	}
	return 0, false
}

// CompOp enumerates the logic and arithmetic operations.
type CompOp uint8

const (
	Reg CompOp = iota
	Add
	Sub
	Mul
	Not
	And
	Or
	Xor
	Mux
	Eql
	Neql
	Gt
	Lt
	Ge
	Le
)

var compNames = [...]string{
	Reg:  "reg",
	Add:  "add",
	Sub:  "sub",
	Mul:  "mul",
	Not:  "not",
	And:  "and",
	Or:   "or",
	Xor:  "xor",
	Mux:  "mux",
	Eql:  "eq",
	Neql: "neq",
	Gt:   "gt",
	Lt:   "lt",
	Ge:   "ge",
	Le:   "le",
}

func (op CompOp) String() string {
	if int(op) < len(compNames) {
		return compNames[op]
	}
	return "?"
}

// ParseCompOp maps a mnemonic to a CompOp.
func ParseCompOp(s string) (CompOp, bool) {
	for i, name := range compNames {
		if name == s {
			return CompOp(i), true
		}
	}
	return 0, false
}

// IsCompare reports whether the op yields a boolean.
func (op CompOp) IsCompare() bool {
	switch op {
	case Eql, Neql, Gt, Lt, Ge, Le:
		return true
	}
	return false
}

// Fields holds the three-address operands every instruction carries.
type Fields struct {
	Dst  Expr
	Attr Expr
	Args Expr
}

// Base returns the operand record shared by every Instr.
func (f *Fields) Base() *Fields { return f }

// Clone deep-copies the operands.
func (f Fields) Clone() Fields {
	return Fields{Dst: f.Dst.Clone(), Attr: f.Attr.Clone(), Args: f.Args.Clone()}
}

// Instr is implemented by every instruction of every program level: IR
// (wire, comp, call), assembly and machine instructions.
type Instr interface {
	Base() *Fields
	Mnemonic() string
	Clone() Instr
}

// WireInstr is a pure reshaping instruction.
type WireInstr struct {
	Op WireOp
	Fields
}

// Mnemonic implements Instr.
func (i *WireInstr) Mnemonic() string { return i.Op.String() }

// Clone implements Instr.
func (i *WireInstr) Clone() Instr {
	return &WireInstr{Op: i.Op, Fields: i.Fields.Clone()}
}

// CompInstr is a logic/arithmetic instruction bound to a primitive class.
type CompInstr struct {
	Op   CompOp
	Prim Prim
	Fields
}

// Mnemonic implements Instr.
func (i *CompInstr) Mnemonic() string { return i.Op.String() }

// Clone implements Instr.
func (i *CompInstr) Clone() Instr {
	return &CompInstr{Op: i.Op, Prim: i.Prim, Fields: i.Fields.Clone()}
}

// CallInstr invokes another definition of the program.
type CallInstr struct {
	Name string
	Fields
}

// Mnemonic implements Instr.
func (i *CallInstr) Mnemonic() string { return i.Name }

// Clone implements Instr.
func (i *CallInstr) Clone() Instr {
	return &CallInstr{Name: i.Name, Fields: i.Fields.Clone()}
}

// Sig is a definition signature.
type Sig struct {
	ID      string
	Inputs  Expr
	Outputs Expr
}

// Def is a signature with an ordered body.
type Def struct {
	Sig  Sig
	Body []Instr
}

// Prog maps definition ids to definitions, keeping source order.
type Prog struct {
	Defs  []*Def
	index map[string]int
}

// EntryID is the distinguished entry definition.
const EntryID = "main"

// NewProg builds a program from defs; later duplicates replace earlier ones.
func NewProg(defs ...*Def) *Prog {
	p := &Prog{}
	for _, d := range defs {
		p.Add(d)
	}
	return p
}

// Add inserts or replaces a definition.
func (p *Prog) Add(d *Def) {
	if p.index == nil {
		p.index = make(map[string]int)
	}
	if idx, ok := p.index[d.Sig.ID]; ok {
		p.Defs[idx] = d
		return
	}
	p.index[d.Sig.ID] = len(p.Defs)
	p.Defs = append(p.Defs, d)
}

// Lookup returns the definition named id.
func (p *Prog) Lookup(id string) (*Def, bool) {
	if p == nil || p.index == nil {
		return nil, false
	}
	idx, ok := p.index[id]
	if !ok {
		return nil, false
	}
	return p.Defs[idx], true
}

// Entry returns the "main" definition.
func (p *Prog) Entry() (*Def, bool) {
	return p.Lookup(EntryID)
}

// Pattern is an IR fragment a selector tile matches, tagged with its target
// primitive and costs.
type Pattern struct {
	Name string
	Prim Prim
	Area int
	Lat  int
	Def  *Def
}

// CoordKind enumerates the variants of Coord.
type CoordKind uint8

const (
	CoordAny CoordKind = iota
	CoordVal
	CoordVar
)

// Coord is a placement coordinate: a concrete integer, a named variable, or
// the "??" hole.
type Coord struct {
	Kind CoordKind
	Val  int
	Name string
}

// At returns a concrete coordinate.
func At(v int) Coord { return Coord{Kind: CoordVal, Val: v} }

// IsVal reports whether the coordinate is concrete.
func (c Coord) IsVal() bool { return c.Kind == CoordVal }

// Loc binds an assembly instruction to a primitive class and a site.
type Loc struct {
	Prim Prim
	X, Y Coord
}

// IsPlaced reports whether both coordinates are concrete.
func (l Loc) IsPlaced() bool {
	return l.X.IsVal() && l.Y.IsVal()
}
