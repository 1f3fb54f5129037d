package diag

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the error taxonomy shared by every stage of the compiler.
type Kind int

const (
	UnknownError Kind = iota
	ParseError
	TypeError
	ConversionError
	SelectorError
	AssemblerError
	PlacerError
	IOError
)

func (k Kind) String() string {
	switch k {
	case ParseError:
		return "parse"
	case TypeError:
		return "type"
	case ConversionError:
		return "conversion"
	case SelectorError:
		return "selector"
	case AssemblerError:
		return "assembler"
	case PlacerError:
		return "placer"
	case IOError:
		return "io"
	default:
		return "unknown"
	}
}

// Error is a classified compiler error.
type Error struct {
	Kind Kind
	Pos  Pos
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s error at %s: %s", e.Kind, e.Pos, e.detail())
	}
	return e.Message()
}

// Message renders the error without its position.
func (e *Error) Message() string {
	return fmt.Sprintf("%s error: %s", e.Kind, e.detail())
}

func (e *Error) detail() string {
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds a classified error with a stack trace attached.
func Errorf(kind Kind, format string, args ...any) error {
	return errors.WithStack(&Error{Kind: kind, Msg: fmt.Sprintf(format, args...)})
}

// At is Errorf with a source position.
func At(kind Kind, pos Pos, format string, args ...any) error {
	return errors.WithStack(&Error{Kind: kind, Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

// Wrap classifies err under kind, keeping it as the cause.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err})
}

// AsError returns the outermost *Error in err's chain, or nil.
func AsError(err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return nil
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	if de := AsError(err); de != nil {
		return de.Kind
	}
	return UnknownError
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
