package ngc

import (
	"errors"
	"fmt"
)

// Kind classifies interpreter errors.
type Kind int

const (
	SyntaxError Kind = iota + 1
	SemanticError
	ParameterError
	ArithmeticError
	ControlFlowError
)

func (k Kind) String() string {
	switch k {
	case SyntaxError:
		return "syntax error"
	case SemanticError:
		return "semantic error"
	case ParameterError:
		return "parameter error"
	case ArithmeticError:
		return "arithmetic error"
	case ControlFlowError:
		return "control flow error"
	}
	return fmt.Sprintf("error kind %d", int(k))
}

// Error is returned by every stage of the interpreter. Line and Col are
// 1-based; zero means unknown. Seq is the N number of the block, or -1.
type Error struct {
	Kind Kind
	Line int
	Col  int
	Seq  int
	Msg  string
}

func (e *Error) Error() string {
	var where string
	if e.Line > 0 {
		where = fmt.Sprintf("%d", e.Line)
		if e.Col > 0 {
			where = fmt.Sprintf("%s:%d", where, e.Col)
		}
		if e.Seq >= 0 {
			where = fmt.Sprintf("%s(N%d)", where, e.Seq)
		}
		where += ": "
	}
	return fmt.Sprintf("%s%s: %s", where, e.Kind, e.Msg)
}

func errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Seq: -1, Msg: fmt.Sprintf(format, args...)}
}

func errorAt(kind Kind, col int, format string, args ...interface{}) *Error {
	e := errorf(kind, format, args...)
	e.Col = col
	return e
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// locate fills in the position of err if it is an *Error without one.
func locate(err error, line, seq int) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	if e.Line == 0 {
		e.Line = line
	}
	if e.Seq < 0 {
		e.Seq = seq
	}
	return err
}
