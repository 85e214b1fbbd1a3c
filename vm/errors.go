package vm

import (
	"errors"
	"fmt"
)

// ErrorCode selects one of the fixed messages raised by the raise_error primitive.
type ErrorCode int32

const (
	ErrorIntegerExpected ErrorCode = iota
	ErrorNumberExpected
	ErrorIntegerArrayExpected
	ErrorNumberArrayExpected
	ErrorTableExpected
	ErrorUpvalIntegerMismatch
	ErrorUpvalNumberMismatch
	ErrorUpvalIntegerArrayMismatch
	ErrorUpvalNumberArrayMismatch
	ErrorUpvalTableMismatch
	ErrorForLimitNotNumber
	ErrorForStepNotNumber
	ErrorForInitNotNumber
	ErrorArrayOutOfBounds
	ErrorStringExpected
	ErrorClosureExpected
	ErrorTypeMismatch

	errorCodeCount
)

var errorTexts = [errorCodeCount]string{
	"integer expected",
	"number expected",
	"integer[] expected",
	"number[] expected",
	"table expected",
	"upvalue of integer type, cannot be set to non integer value",
	"upvalue of number type, cannot be set to non number value",
	"upvalue of integer[] type, cannot be set to non integer[] value",
	"upvalue of number[] type, cannot be set to non number[] value",
	"upvalue of table type, cannot be set to non table value",
	"for llimit must be a number",
	"for step must be a number",
	"for initial value must be a number",
	"array index is out of bounds",
	"string expected",
	"closure expected",
	"type mismatch: wrong userdata type",
}

func (c ErrorCode) String() string {
	if c >= 0 && c < errorCodeCount {
		return errorTexts[c]
	}
	return fmt.Sprintf("error %d", int32(c))
}

// Error implements error so an ErrorCode can be raised directly.
func (c ErrorCode) Error() string {
	return c.String()
}

// RuntimeError is a Lua error raised while running a function, interpreted or compiled.
type RuntimeError struct {
	// Function is the name of the proto that raised the error.
	Function string
	// PC is the bytecode position, or -1 when raised from compiled code.
	PC  int
	Msg string
}

// Error implements error.
func (e *RuntimeError) Error() string {
	if e.PC >= 0 {
		return fmt.Sprintf("%s:%d: %s", e.Function, e.PC, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Function, e.Msg)
}

var (
	// ErrStackOverflow is returned when calls nest deeper than the maximum call depth.
	ErrStackOverflow = errors.New("stack overflow")
	// ErrInvalidHandle is returned by primitives given a handle of a closed or unknown State.
	ErrInvalidHandle = errors.New("invalid lua state handle")
	// ErrClosed is returned by State.Call after Close.
	ErrClosed = errors.New("lua state closed")
)

func typeError(op string, v Value) error {
	return fmt.Errorf("attempt to %s a %s value", op, v.Type())
}

func compareError(a, b Value) error {
	ta, tb := a.Type(), b.Type()
	if ta == tb {
		return fmt.Errorf("attempt to compare two %s values", ta)
	}
	return fmt.Errorf("attempt to compare %s with %s", ta, tb)
}
