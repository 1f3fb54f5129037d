package frontend

import (
	"strconv"
	"strings"

	"tilec/internal/asm"
	"tilec/internal/diag"
	"tilec/internal/ir"
	"tilec/internal/machine"
)

// bodyMode selects how instruction mnemonics are classified.
type bodyMode int

const (
	// modeIR: wire, comp and call instructions (def and pat bodies).
	modeIR bodyMode = iota
	// modeAsm: wire and assembly instructions.
	modeAsm
	// modeMachine: wire and machine instructions (imp bodies, assembled
	// programs).
	modeMachine
)

type parser struct {
	toks []token
	pos  int
	mode bodyMode
}

func newParser(file string, src []byte, mode bodyMode) (*parser, error) {
	toks, err := tokenize(file, src)
	if err != nil {
		return nil, err
	}
	return &parser{toks: toks, mode: mode}, nil
}

// ParseProg parses IR definitions.
func ParseProg(file string, src []byte) (*ir.Prog, error) {
	return parseDefs(file, src, modeIR)
}

// ParseAsm parses definitions whose bodies hold assembly instructions.
func ParseAsm(file string, src []byte) (*ir.Prog, error) {
	return parseDefs(file, src, modeAsm)
}

// ParseMachine parses definitions whose bodies hold machine instructions,
// the form printed for assembled programs.
func ParseMachine(file string, src []byte) (*ir.Prog, error) {
	return parseDefs(file, src, modeMachine)
}

func parseDefs(file string, src []byte, mode bodyMode) (*ir.Prog, error) {
	p, err := newParser(file, src, mode)
	if err != nil {
		return nil, err
	}
	prog := ir.NewProg()
	for !p.at(tokEOF) {
		kw, err := p.keyword("def")
		if err != nil {
			return nil, err
		}
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		def, err := p.defRest(name.text)
		if err != nil {
			return nil, err
		}
		if _, dup := prog.Lookup(def.Sig.ID); dup {
			return nil, diag.At(diag.ParseError, kw.pos, "duplicate definition %q", def.Sig.ID)
		}
		prog.Add(def)
	}
	return prog, nil
}

// ParsePatterns parses a pattern file.
func ParsePatterns(file string, src []byte) ([]*ir.Pattern, error) {
	p, err := newParser(file, src, modeIR)
	if err != nil {
		return nil, err
	}
	var pats []*ir.Pattern
	for !p.at(tokEOF) {
		if _, err := p.keyword("pat"); err != nil {
			return nil, err
		}
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		if err := p.expect("["); err != nil {
			return nil, err
		}
		primTok := p.next()
		prim, ok := ir.ParsePrim(primTok.text)
		if !ok || (primTok.kind != tokIdent && primTok.kind != tokHole) {
			return nil, diag.At(diag.ParseError, primTok.pos, "expected primitive class, found %s", primTok)
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
		area, err := p.integer()
		if err != nil {
			return nil, err
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
		lat, err := p.integer()
		if err != nil {
			return nil, err
		}
		if err := p.expect("]"); err != nil {
			return nil, err
		}
		def, err := p.defRest(name.text)
		if err != nil {
			return nil, err
		}
		pats = append(pats, &ir.Pattern{Name: name.text, Prim: prim, Area: area, Lat: lat, Def: def})
	}
	return pats, nil
}

// ParseImps parses an implementation file.
func ParseImps(file string, src []byte) ([]*machine.Imp, error) {
	p, err := newParser(file, src, modeMachine)
	if err != nil {
		return nil, err
	}
	var imps []*machine.Imp
	for !p.at(tokEOF) {
		if _, err := p.keyword("imp"); err != nil {
			return nil, err
		}
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		if err := p.expect("["); err != nil {
			return nil, err
		}
		area, err := p.integer()
		if err != nil {
			return nil, err
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
		lat, err := p.integer()
		if err != nil {
			return nil, err
		}
		if err := p.expect("]"); err != nil {
			return nil, err
		}
		def, err := p.defRest(name.text)
		if err != nil {
			return nil, err
		}
		imps = append(imps, &machine.Imp{Name: name.text, Area: area, Lat: lat, Def: def})
	}
	return imps, nil
}

// defRest parses "(inputs) -> (outputs) { body }".
func (p *parser) defRest(id string) (*ir.Def, error) {
	inputs, err := p.declList()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokArrow {
		return nil, p.unexpected("->")
	}
	p.next()
	outputs, err := p.declList()
	if err != nil {
		return nil, err
	}
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	def := &ir.Def{Sig: ir.Sig{ID: id, Inputs: inputs, Outputs: outputs}}
	for !p.atPunct("}") {
		if p.at(tokEOF) {
			return nil, p.unexpected("}")
		}
		instr, err := p.instr()
		if err != nil {
			return nil, err
		}
		def.Body = append(def.Body, instr)
	}
	p.next()
	return def, nil
}

// declList parses a parenthesized, possibly empty, list of typed variables.
func (p *parser) declList() (ir.Expr, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	var out ir.Expr
	if p.atPunct(")") {
		p.next()
		return out, nil
	}
	for {
		t, err := p.decl()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		if p.atPunct(",") {
			p.next()
			continue
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// decl parses "id:ty".
func (p *parser) decl() (ir.Term, error) {
	name, err := p.ident()
	if err != nil {
		return ir.Term{}, err
	}
	if err := p.expect(":"); err != nil {
		return ir.Term{}, err
	}
	ty, err := p.ty()
	if err != nil {
		return ir.Term{}, err
	}
	return ir.Var(name.text, ty), nil
}

func (p *parser) ty() (ir.Ty, error) {
	tok := p.next()
	switch tok.kind {
	case tokHole:
		return ir.AnyTy(), nil
	case tokIdent:
		ty, err := ir.ParseTy(tok.text)
		if err != nil {
			return ir.Ty{}, diag.At(diag.ParseError, tok.pos, "%v", err)
		}
		return ty, nil
	}
	return ir.Ty{}, diag.At(diag.ParseError, tok.pos, "expected type, found %s", tok)
}

func (p *parser) instr() (ir.Instr, error) {
	start := p.peek()
	var dst ir.Expr
	if p.atPunct("(") {
		list, err := p.declList()
		if err != nil {
			return nil, err
		}
		dst = list
	} else {
		t, err := p.decl()
		if err != nil {
			return nil, err
		}
		dst = ir.Expr{t}
	}
	if err := p.expect("="); err != nil {
		return nil, err
	}
	opTok, err := p.ident()
	if err != nil {
		return nil, err
	}
	var attr ir.Expr
	if p.atPunct("[") {
		p.next()
		attr, err = p.termList("]")
		if err != nil {
			return nil, err
		}
	}
	if err := p.expect("("); err != nil {
		return nil, err
	}
	args, err := p.termList(")")
	if err != nil {
		return nil, err
	}
	fields := ir.Fields{Dst: dst, Attr: attr, Args: args}

	var instr ir.Instr
	if op, ok := ir.ParseWireOp(opTok.text); ok {
		if p.atPunct("@") {
			return nil, diag.At(diag.ParseError, p.peek().pos, "wire instruction %q takes no location", opTok.text)
		}
		instr = &ir.WireInstr{Op: op, Fields: fields}
	} else {
		switch p.mode {
		case modeIR:
			instr, err = p.irInstr(opTok, fields)
		case modeAsm:
			instr, err = p.asmInstr(opTok, fields)
		default:
			instr, err = p.machineInstr(opTok, fields)
		}
		if err != nil {
			return nil, err
		}
	}
	if err := p.expect(";"); err != nil {
		return nil, err
	}
	if len(dst) == 0 {
		return nil, diag.At(diag.ParseError, start.pos, "instruction without destination")
	}
	return instr, nil
}

func (p *parser) irInstr(opTok token, fields ir.Fields) (ir.Instr, error) {
	op, ok := ir.ParseCompOp(opTok.text)
	if !ok {
		if p.atPunct("@") {
			return nil, diag.At(diag.ParseError, opTok.pos, "unknown operation %q", opTok.text)
		}
		return &ir.CallInstr{Name: opTok.text, Fields: fields}, nil
	}
	prim := ir.PrimAny
	if p.atPunct("@") {
		p.next()
		tok := p.next()
		var ok bool
		prim, ok = ir.ParsePrim(tok.text)
		if !ok || (tok.kind != tokIdent && tok.kind != tokHole) {
			return nil, diag.At(diag.ParseError, tok.pos, "expected primitive class, found %s", tok)
		}
	}
	return &ir.CompInstr{Op: op, Prim: prim, Fields: fields}, nil
}

func (p *parser) asmInstr(opTok token, fields ir.Fields) (ir.Instr, error) {
	a := &asm.Instr{
		Op:     opTok.text,
		Loc:    ir.Loc{Prim: ir.PrimAny, X: ir.Coord{}, Y: ir.Coord{}},
		Fields: fields,
	}
	if !p.atPunct("@") {
		return a, nil
	}
	p.next()
	tok := p.next()
	prim, ok := ir.ParsePrim(tok.text)
	if !ok || (tok.kind != tokIdent && tok.kind != tokHole) {
		return nil, diag.At(diag.ParseError, tok.pos, "expected primitive class, found %s", tok)
	}
	x, y, err := p.coordPair()
	if err != nil {
		return nil, err
	}
	a.Loc = ir.Loc{Prim: prim, X: x, Y: y}
	return a, nil
}

func (p *parser) machineInstr(opTok token, fields ir.Fields) (ir.Instr, error) {
	op, ok := machine.ParseOp(opTok.text)
	if !ok {
		return nil, diag.At(diag.ParseError, opTok.pos, "unknown machine primitive %q", opTok.text)
	}
	m := &machine.Instr{Op: op, Fields: fields}
	if !p.atPunct("@") {
		return m, nil
	}
	p.next()
	belTok, err := p.ident()
	if err != nil {
		return nil, err
	}
	bel, ok := machine.ParseBel(belTok.text)
	if !ok {
		return nil, diag.At(diag.ParseError, belTok.pos, "unknown bel %q", belTok.text)
	}
	x, y, err := p.coordPair()
	if err != nil {
		return nil, err
	}
	m.Loc = &machine.Loc{Bel: bel, X: x, Y: y}
	return m, nil
}

func (p *parser) coordPair() (ir.Coord, ir.Coord, error) {
	if err := p.expect("("); err != nil {
		return ir.Coord{}, ir.Coord{}, err
	}
	x, err := p.coord()
	if err != nil {
		return ir.Coord{}, ir.Coord{}, err
	}
	if err := p.expect(","); err != nil {
		return ir.Coord{}, ir.Coord{}, err
	}
	y, err := p.coord()
	if err != nil {
		return ir.Coord{}, ir.Coord{}, err
	}
	if err := p.expect(")"); err != nil {
		return ir.Coord{}, ir.Coord{}, err
	}
	return x, y, nil
}

func (p *parser) coord() (ir.Coord, error) {
	tok := p.next()
	switch tok.kind {
	case tokHole:
		return ir.Coord{Kind: ir.CoordAny}, nil
	case tokIdent:
		return ir.Coord{Kind: ir.CoordVar, Name: tok.text}, nil
	case tokNumber:
		v, err := strconv.Atoi(tok.text)
		if err != nil || v < 0 {
			return ir.Coord{}, diag.At(diag.ParseError, tok.pos, "coordinate must be a non-negative integer, found %s", tok)
		}
		return ir.At(v), nil
	}
	return ir.Coord{}, diag.At(diag.ParseError, tok.pos, "expected coordinate, found %s", tok)
}

// termList parses terms up to and including the closing delimiter.
func (p *parser) termList(closing string) (ir.Expr, error) {
	var out ir.Expr
	if p.atPunct(closing) {
		p.next()
		return out, nil
	}
	for {
		t, err := p.term()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		if p.atPunct(",") {
			p.next()
			continue
		}
		if err := p.expect(closing); err != nil {
			return nil, err
		}
		return out, nil
	}
}

func (p *parser) term() (ir.Term, error) {
	tok := p.next()
	switch tok.kind {
	case tokHole:
		return ir.Hole(), nil
	case tokNumber:
		return parseLiteral(tok)
	case tokIdent:
		t := ir.Term{Kind: ir.VarTerm, ID: tok.text}
		if p.atPunct(":") {
			p.next()
			ty, err := p.ty()
			if err != nil {
				return ir.Term{}, err
			}
			t.Ty = ty
		}
		return t, nil
	}
	return ir.Term{}, diag.At(diag.ParseError, tok.pos, "expected term, found %s", tok)
}

func parseLiteral(tok token) (ir.Term, error) {
	text := tok.text
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		u, err := strconv.ParseUint(text[2:], 16, 64)
		if err != nil {
			return ir.Term{}, diag.At(diag.ParseError, tok.pos, "invalid hex literal %s", tok)
		}
		return ir.Term{Kind: ir.ValTerm, Val: int64(u), Hex: true}, nil
	}
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return ir.Term{}, diag.At(diag.ParseError, tok.pos, "invalid literal %s", tok)
	}
	return ir.Val(v), nil
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) at(kind tokenKind) bool {
	return p.peek().kind == kind
}

func (p *parser) atPunct(text string) bool {
	tok := p.peek()
	return tok.kind == tokPunct && tok.text == text
}

func (p *parser) expect(text string) error {
	if !p.atPunct(text) {
		return p.unexpected(text)
	}
	p.next()
	return nil
}

func (p *parser) unexpected(want string) error {
	tok := p.peek()
	return diag.At(diag.ParseError, tok.pos, "expected %q, found %s", want, tok)
}

func (p *parser) ident() (token, error) {
	tok := p.peek()
	if tok.kind != tokIdent {
		return tok, diag.At(diag.ParseError, tok.pos, "expected identifier, found %s", tok)
	}
	return p.next(), nil
}

func (p *parser) keyword(kw string) (token, error) {
	tok := p.peek()
	if tok.kind != tokIdent || tok.text != kw {
		return tok, diag.At(diag.ParseError, tok.pos, "expected %q, found %s", kw, tok)
	}
	return p.next(), nil
}

func (p *parser) integer() (int, error) {
	tok := p.next()
	if tok.kind != tokNumber {
		return 0, diag.At(diag.ParseError, tok.pos, "expected integer, found %s", tok)
	}
	v, err := strconv.Atoi(tok.text)
	if err != nil {
		return 0, diag.At(diag.ParseError, tok.pos, "invalid integer %s", tok)
	}
	return v, nil
}
