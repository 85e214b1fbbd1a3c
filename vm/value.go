package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Type is a Lua type tag as returned by lua_type.
type Type int32

const (
	TypeNone    Type = -1
	TypeNil     Type = 0
	TypeBoolean Type = 1
	TypeNumber  Type = 3
	TypeString  Type = 4
	TypeTable   Type = 5
)

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "no value"
	case TypeNil:
		return "nil"
	case TypeBoolean:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeTable:
		return "table"
	}
	return fmt.Sprintf("unknown(%d)", int32(t))
}

// kind distinguishes the two number subtypes which share TypeNumber.
type kind byte

const (
	kindNil kind = iota
	kindBoolean
	kindInteger
	kindFloat
	kindString
	kindTable
)

// Value is a Lua value. The zero value is nil.
//
// Values are comparable with == using raw equality, so they are usable as map keys.
type Value struct {
	k kind
	// n holds the bits of a boolean, integer or float.
	n uint64
	s string
	t *Table
}

// Nil is the nil value.
var Nil = Value{}

// Bool returns a boolean value.
func Bool(b bool) Value {
	if b {
		return Value{k: kindBoolean, n: 1}
	}
	return Value{k: kindBoolean}
}

// Int returns an integer value.
func Int(i int64) Value { return Value{k: kindInteger, n: uint64(i)} }

// Float returns a float value.
func Float(f float64) Value { return Value{k: kindFloat, n: math.Float64bits(f)} }

// String returns a string value.
func String(s string) Value { return Value{k: kindString, s: s} }

// TableValue wraps t.
func TableValue(t *Table) Value {
	if t == nil {
		return Nil
	}
	return Value{k: kindTable, t: t}
}

// Type returns the Lua type tag of v.
func (v Value) Type() Type {
	switch v.k {
	case kindBoolean:
		return TypeBoolean
	case kindInteger, kindFloat:
		return TypeNumber
	case kindString:
		return TypeString
	case kindTable:
		return TypeTable
	}
	return TypeNil
}

// IsNil returns true for nil.
func (v Value) IsNil() bool { return v.k == kindNil }

// IsInteger returns true when v has the integer subtype.
func (v Value) IsInteger() bool { return v.k == kindInteger }

// IsFloat returns true when v has the float subtype.
func (v Value) IsFloat() bool { return v.k == kindFloat }

// Integer returns the integer payload. Only meaningful when IsInteger.
func (v Value) Integer() int64 { return int64(v.n) }

// Float returns the float payload. Only meaningful when IsFloat.
func (v Value) Float() float64 { return math.Float64frombits(v.n) }

// Str returns the string payload. Only meaningful for TypeString.
func (v Value) Str() string { return v.s }

// Table returns the table payload or nil.
func (v Value) Table() *Table { return v.t }

// Truthy returns false for nil and false, true otherwise.
func (v Value) Truthy() bool {
	switch v.k {
	case kindNil:
		return false
	case kindBoolean:
		return v.n != 0
	}
	return true
}

// ToNumber converts v to a float following Lua's coercion rules, including strings.
func (v Value) ToNumber() (float64, bool) {
	switch v.k {
	case kindInteger:
		return float64(v.Integer()), true
	case kindFloat:
		return v.Float(), true
	case kindString:
		if n, ok := stringToNumber(v.s); ok {
			return n.ToNumber()
		}
	}
	return 0, false
}

// ToInteger converts v to an integer when it has an exact integer representation.
func (v Value) ToInteger() (int64, bool) {
	switch v.k {
	case kindInteger:
		return v.Integer(), true
	case kindFloat:
		return floatToInteger(v.Float())
	case kindString:
		if n, ok := stringToNumber(v.s); ok {
			return n.ToInteger()
		}
	}
	return 0, false
}

// toArith converts strings to numbers and leaves numbers untouched.
func (v Value) toArith() (Value, bool) {
	switch v.k {
	case kindInteger, kindFloat:
		return v, true
	case kindString:
		return stringToNumber(v.s)
	}
	return Nil, false
}

func floatToInteger(f float64) (int64, bool) {
	if math.Floor(f) != f || f < -(1<<63) || f >= 1<<63 {
		return 0, false
	}
	return int64(f), true
}

func stringToNumber(s string) (Value, bool) {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(i), true
	}
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		// Hexadecimal integers wrap around.
		if u, err := strconv.ParseUint(s[2:], 16, 64); err == nil {
			return Int(int64(u)), true
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || strings.ContainsAny(s, "iInN_") {
		return Nil, false
	}
	return Float(f), true
}

// String implements fmt.Stringer using Lua's tostring format.
func (v Value) String() string {
	switch v.k {
	case kindNil:
		return "nil"
	case kindBoolean:
		if v.n != 0 {
			return "true"
		}
		return "false"
	case kindInteger:
		return strconv.FormatInt(v.Integer(), 10)
	case kindFloat:
		f := v.Float()
		switch {
		case math.IsInf(f, 1):
			return "inf"
		case math.IsInf(f, -1):
			return "-inf"
		case math.IsNaN(f):
			return "nan"
		case f == math.Floor(f) && math.Abs(f) < 1e16:
			return strconv.FormatFloat(f, 'f', 1, 64)
		}
		return strconv.FormatFloat(f, 'g', 14, 64)
	case kindString:
		return v.s
	case kindTable:
		return fmt.Sprintf("table: %p", v.t)
	}
	return "?"
}

// normalizeKey converts floats with an integral value to integers as Lua does for table keys.
func normalizeKey(k Value) Value {
	if k.k == kindFloat {
		if i, ok := floatToInteger(k.Float()); ok {
			return Int(i)
		}
	}
	return k
}
