// Package berr defines the backend's closed taxonomy of fatal error kinds
// (see SPEC_FULL.md §7) and wraps them with tlog.app/go/errors so every
// fatal surfaces to the driver with an attributable chain of causes rather
// than a bare string.
package berr

import (
	"fmt"

	"tlog.app/go/errors"
)

// Kind is the closed set of backend error kinds.
type Kind int

const (
	// UnknownFunction: a call references an undeclared function.
	UnknownFunction Kind = iota
	// Unreachable: an internal assertion failed (a value tag outside the
	// known variants reached a switch's default case) — a codegen bug.
	Unreachable
	// NotImplemented: a placeholder path (global Ref, MultLoadStore
	// rewrite) was reached at compile time.
	NotImplemented
	// UndefinedTerminator: a block's jump kind is Undefined.
	UndefinedTerminator
	// BadCast: a MIR instruction variant was not recognized during
	// dispatch.
	BadCast
	// InvalidImmediate: an immediate expected to be Operand2-encodable is
	// not. Unlike the other kinds this one is recoverable by the caller
	// (materializing a mov/movt sequence instead), so it is reported
	// through this type only when that recovery itself is impossible.
	InvalidImmediate
)

func (k Kind) String() string {
	switch k {
	case UnknownFunction:
		return "UnknownFunction"
	case Unreachable:
		return "Unreachable"
	case NotImplemented:
		return "NotImplemented"
	case UndefinedTerminator:
		return "UndefinedTerminator"
	case BadCast:
		return "BadCast"
	case InvalidImmediate:
		return "InvalidImmediate"
	default:
		return "UnknownKind"
	}
}

// Error is a backend fatal error tagged with its Kind.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

// New creates a Kind-tagged error with a formatted message.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches additional context (e.g. a pass or function name) to an
// existing error without losing its Kind, using tlog's wrapped-error chain.
func Wrap(err error, format string, args ...any) error {
	return errors.Wrap(err, format, args...)
}

// As reports whether err (or a cause in its chain) is a *Error of kind k.
func As(err error, k Kind) bool {
	for err != nil {
		if be, ok := err.(*Error); ok {
			return be.Kind == k
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
