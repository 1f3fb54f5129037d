package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// TyKind enumerates the variants of Ty.
type TyKind uint8

const (
	// TyNone marks a type that has not been inferred yet.
	TyNone TyKind = iota
	// TyAny is the pattern wildcard, written "??".
	TyAny
	TyBool
	TyUint
	TySint
	TyVec
)

// Ty is a hardware value type: bool, unsigned or signed N-bit integer, or a
// vector of an inner type.
type Ty struct {
	Kind  TyKind
	Bits  int
	Elem  *Ty
	Lanes int
}

// Bool returns the boolean type.
func Bool() Ty { return Ty{Kind: TyBool} }

// Uint returns the unsigned n-bit type.
func Uint(n int) Ty { return Ty{Kind: TyUint, Bits: n} }

// Sint returns the signed n-bit type.
func Sint(n int) Ty { return Ty{Kind: TySint, Bits: n} }

// Vec returns a vector of lanes elements of elem.
func Vec(elem Ty, lanes int) Ty {
	e := elem
	return Ty{Kind: TyVec, Elem: &e, Lanes: lanes}
}

// AnyTy returns the wildcard type.
func AnyTy() Ty { return Ty{Kind: TyAny} }

// IsKnown reports whether t is neither unset nor a wildcard.
func (t Ty) IsKnown() bool {
	return t.Kind != TyNone && t.Kind != TyAny
}

// IsVector reports whether t is a vector type.
func (t Ty) IsVector() bool {
	return t.Kind == TyVec
}

// Signed reports whether the element type is signed.
func (t Ty) Signed() bool {
	if t.Kind == TyVec && t.Elem != nil {
		return t.Elem.Signed()
	}
	return t.Kind == TySint
}

// Width is the element width in bits.
func (t Ty) Width() int {
	switch t.Kind {
	case TyBool:
		return 1
	case TyUint, TySint:
		return t.Bits
	case TyVec:
		if t.Elem == nil {
			return 0
		}
		return t.Elem.Width()
	default:
		return 0
	}
}

// Length is 1 for scalars and the lane count for vectors.
func (t Ty) Length() int {
	if t.Kind == TyVec {
		if t.Elem != nil && t.Elem.IsVector() {
			return t.Lanes * t.Elem.Length()
		}
		return t.Lanes
	}
	return 1
}

// TotalBits is Width * Length.
func (t Ty) TotalBits() int {
	return t.Width() * t.Length()
}

// ElemTy returns the lane type of a vector, or t itself for scalars.
func (t Ty) ElemTy() Ty {
	if t.Kind == TyVec && t.Elem != nil {
		return *t.Elem
	}
	return t
}

// Equal is structural equality.
func (t Ty) Equal(o Ty) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case TyUint, TySint:
		return t.Bits == o.Bits
	case TyVec:
		if t.Lanes != o.Lanes {
			return false
		}
		if t.Elem == nil || o.Elem == nil {
			return t.Elem == o.Elem
		}
		return t.Elem.Equal(*o.Elem)
	default:
		return true
	}
}

func (t Ty) String() string {
	switch t.Kind {
	case TyNone:
		return ""
	case TyAny:
		return "??"
	case TyBool:
		return "b"
	case TyUint:
		return "u" + strconv.Itoa(t.Bits)
	case TySint:
		return "i" + strconv.Itoa(t.Bits)
	case TyVec:
		if t.Elem == nil {
			return "?v" + strconv.Itoa(t.Lanes)
		}
		return t.Elem.String() + "v" + strconv.Itoa(t.Lanes)
	default:
		return "?"
	}
}

// ParseTy parses the textual type syntax: b, i<N>, u<N>, <inner>v<K>, ??.
func ParseTy(s string) (Ty, error) {
	if s == "??" {
		return AnyTy(), nil
	}
	if s == "" {
		return Ty{}, fmt.Errorf("empty type")
	}
	if idx := strings.LastIndexByte(s, 'v'); idx > 0 {
		lanes, err := strconv.Atoi(s[idx+1:])
		if err != nil || lanes <= 0 {
			return Ty{}, fmt.Errorf("invalid vector length in type %q", s)
		}
		inner, err := ParseTy(s[:idx])
		if err != nil {
			return Ty{}, err
		}
		if !inner.IsKnown() {
			return Ty{}, fmt.Errorf("invalid vector element in type %q", s)
		}
		return Vec(inner, lanes), nil
	}
	if s == "b" {
		return Bool(), nil
	}
	kind := TyNone
	switch s[0] {
	case 'i':
		kind = TySint
	case 'u':
		kind = TyUint
	default:
		return Ty{}, fmt.Errorf("unknown type %q", s)
	}
	bits, err := strconv.Atoi(s[1:])
	if err != nil || bits <= 0 {
		return Ty{}, fmt.Errorf("invalid width in type %q", s)
	}
	return Ty{Kind: kind, Bits: bits}, nil
}

// Prim is the physical resource class an operation binds to.
type Prim uint8

const (
	PrimAny Prim = iota
	PrimLut
	PrimDsp
	PrimBram
	PrimLram
	PrimUram
)

var primNames = [...]string{
	PrimAny:  "??",
	PrimLut:  "lut",
	PrimDsp:  "dsp",
	PrimBram: "bram",
	PrimLram: "lram",
	PrimUram: "uram",
}

func (p Prim) String() string {
	if int(p) < len(primNames) {
		return primNames[p]
	}
	return "?"
}

// ParsePrim maps the textual primitive class name to a Prim.
func ParsePrim(s string) (Prim, bool) {
	for i, name := range primNames {
		if name == s {
			return Prim(i), true
		}
	}
	return PrimAny, false
}

// Prims lists every concrete primitive class in declaration order.
func Prims() []Prim {
	return []Prim{PrimLut, PrimDsp, PrimBram, PrimLram, PrimUram}
}
