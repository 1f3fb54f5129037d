package frontend

import (
	"fmt"

	"tilec/internal/diag"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokHole
	tokArrow
	tokPunct
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of file"
	case tokIdent:
		return "identifier"
	case tokNumber:
		return "number"
	case tokHole:
		return "??"
	case tokArrow:
		return "->"
	default:
		return "punctuation"
	}
}

type token struct {
	kind tokenKind
	text string
	pos  diag.Pos
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of file"
	}
	return fmt.Sprintf("%q", t.text)
}

type scanner struct {
	file string
	src  []byte
	off  int
	line int
	col  int
}

func newScanner(file string, src []byte) *scanner {
	return &scanner{file: file, src: src, line: 1, col: 1}
}

func isLetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || c == '_'
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func isHexDigit(c byte) bool {
	return isDigit(c) || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t'
}

func (s *scanner) peek(ahead int) byte {
	if s.off+ahead < len(s.src) {
		return s.src[s.off+ahead]
	}
	return 0
}

func (s *scanner) advance() byte {
	c := s.src[s.off]
	s.off++
	if c == '\n' {
		s.line++
		s.col = 1
	} else {
		s.col++
	}
	return c
}

func (s *scanner) skipSpaceAndComments() {
	for s.off < len(s.src) {
		c := s.peek(0)
		switch {
		case isSpace(c):
			s.advance()
		case c == '/' && s.peek(1) == '/':
			for s.off < len(s.src) && s.peek(0) != '\n' {
				s.advance()
			}
		default:
			return
		}
	}
}

func (s *scanner) position() diag.Pos {
	return diag.Pos{File: s.file, Line: s.line, Col: s.col}
}

func (s *scanner) next() (token, error) {
	s.skipSpaceAndComments()
	pos := s.position()
	if s.off >= len(s.src) {
		return token{kind: tokEOF, pos: pos}, nil
	}
	start := s.off
	c := s.peek(0)
	switch {
	case isLetter(c):
		for s.off < len(s.src) && (isLetter(s.peek(0)) || isDigit(s.peek(0))) {
			s.advance()
		}
		return token{kind: tokIdent, text: string(s.src[start:s.off]), pos: pos}, nil
	case isDigit(c) || (c == '-' && isDigit(s.peek(1))):
		s.advance()
		if c == '0' && (s.peek(0) == 'x' || s.peek(0) == 'X') {
			s.advance()
			for s.off < len(s.src) && isHexDigit(s.peek(0)) {
				s.advance()
			}
		} else {
			for s.off < len(s.src) && isDigit(s.peek(0)) {
				s.advance()
			}
		}
		return token{kind: tokNumber, text: string(s.src[start:s.off]), pos: pos}, nil
	case c == '?' && s.peek(1) == '?':
		s.advance()
		s.advance()
		return token{kind: tokHole, text: "??", pos: pos}, nil
	case c == '-' && s.peek(1) == '>':
		s.advance()
		s.advance()
		return token{kind: tokArrow, text: "->", pos: pos}, nil
	}
	switch c {
	case '(', ')', '[', ']', '{', '}', ',', ';', ':', '=', '@':
		s.advance()
		return token{kind: tokPunct, text: string(c), pos: pos}, nil
	}
	return token{}, diag.At(diag.ParseError, pos, "unexpected character %q", c)
}

func tokenize(file string, src []byte) ([]token, error) {
	s := newScanner(file, src)
	var toks []token
	for {
		tok, err := s.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.kind == tokEOF {
			return toks, nil
		}
	}
}
