package vm

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the VM wraps exactly one of these.
var (
	ErrLoad              = errors.New("class load error")
	ErrUnsupportedOpcode = errors.New("unsupported opcode")
	ErrNotImplemented    = errors.New("not implemented")
	ErrArithmetic        = errors.New("arithmetic error")
	ErrHeapAccess        = errors.New("heap access error")
	ErrType              = errors.New("type error")
	ErrBadCode           = errors.New("malformed bytecode")
	ErrStackOverflow     = errors.New("stack overflow")
	ErrEntryNotFound     = errors.New("entry method not found")
)

// Error is a fault raised while executing an instruction. HasOpcode is
// false when no instruction was fetched, e.g. when pc ran past the code.
type Error struct {
	Method    string // fully qualified, e.g. "Fib.fib(I)I"
	PC        int
	Opcode    byte
	HasOpcode bool
	Err       error
}

func (e *Error) Error() string {
	if !e.HasOpcode {
		return fmt.Sprintf("%s pc=%d: %v", e.Method, e.PC, e.Err)
	}
	return fmt.Sprintf("%s pc=%d (%s): %v", e.Method, e.PC, OpcodeName(e.Opcode), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// fault builds an error of the given kind.
func fault(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// throw raises a fault from code paths that have no error return, such as
// typed operand stack pops. It is recovered per instruction.
func throw(kind error, format string, args ...any) {
	panic(fault(kind, format, args...))
}

// recoverFault turns a panic raised by throw into *err. Other panics
// propagate.
func recoverFault(err *error) {
	r := recover()
	if r == nil {
		return
	}
	e, ok := r.(error)
	if !ok || !isFault(e) {
		panic(r)
	}
	*err = e
}

func isFault(err error) bool {
	for _, kind := range []error{
		ErrLoad, ErrUnsupportedOpcode, ErrNotImplemented, ErrArithmetic,
		ErrHeapAccess, ErrType, ErrBadCode, ErrStackOverflow, ErrEntryNotFound,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
