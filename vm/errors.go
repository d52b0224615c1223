package vm

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match them with errors.Is; the wrapping error carries
// the address, id or opcode involved.
var (
	ErrAddressOutOfRange  = errors.New("address out of range")
	ErrTypeMismatch       = errors.New("type mismatch")
	ErrNoSuchFunction     = errors.New("no such function")
	ErrNullFunctionCall   = errors.New("call to null function")
	ErrCallStackOverflow  = errors.New("call stack overflow")
	ErrCallStackUnderflow = errors.New("call stack underflow")
	ErrLocalStackOverflow = errors.New("local stack overflow")
	ErrProgramRunaway     = errors.New("runaway program")
	ErrInvalidStringID    = errors.New("invalid string id")
	ErrInvalidString      = errors.New("invalid string")
	ErrInvalidEntity      = errors.New("invalid entity")
	ErrInvalidField       = errors.New("invalid field")
	ErrMalformedOpcode    = errors.New("malformed opcode")
)

// RuntimeError reports a failure inside a running program together with
// the statement that was executing when it happened.
type RuntimeError struct {
	Function  string    // name of the function executing
	PC        int       // statement index
	Statement Statement // the failing statement
	Err       error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: pc=%d %s: %v", e.Function, e.PC, e.Statement, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsRuntimeError returns the RuntimeError in err's chain, if any.
func IsRuntimeError(err error) (*RuntimeError, bool) {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
