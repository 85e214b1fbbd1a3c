package vm

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Arith applies op to a and b with Lua 5.3 semantics. Unary operators ignore b.
func Arith(op ArithOp, a, b Value) (Value, error) {
	switch op {
	case ArithBAnd, ArithBOr, ArithBXor, ArithShl, ArithShr, ArithBNot:
		return bitwise(op, a, b)
	case ArithUnm:
		b = a
	}

	x, ok := a.toArith()
	if !ok {
		return Nil, typeError("perform arithmetic on", a)
	}
	y, ok := b.toArith()
	if !ok {
		return Nil, typeError("perform arithmetic on", b)
	}

	if x.IsInteger() && y.IsInteger() && op != ArithPow && op != ArithDiv {
		m, n := x.Integer(), y.Integer()
		switch op {
		case ArithAdd:
			return Int(m + n), nil
		case ArithSub:
			return Int(m - n), nil
		case ArithMul:
			return Int(m * n), nil
		case ArithMod:
			if n == 0 {
				return Nil, errors.New("attempt to perform 'n%0'")
			}
			return Int(intMod(m, n)), nil
		case ArithIDiv:
			if n == 0 {
				return Nil, errors.New("attempt to perform 'n//0'")
			}
			return Int(intDiv(m, n)), nil
		case ArithUnm:
			return Int(-m), nil
		}
	}

	m, _ := x.ToNumber()
	n, _ := y.ToNumber()
	switch op {
	case ArithAdd:
		return Float(m + n), nil
	case ArithSub:
		return Float(m - n), nil
	case ArithMul:
		return Float(m * n), nil
	case ArithDiv:
		return Float(m / n), nil
	case ArithPow:
		return Float(math.Pow(m, n)), nil
	case ArithMod:
		return Float(floatMod(m, n)), nil
	case ArithIDiv:
		return Float(math.Floor(m / n)), nil
	case ArithUnm:
		return Float(-m), nil
	}
	return Nil, fmt.Errorf("invalid arithmetic operator %d", int32(op))
}

func bitwise(op ArithOp, a, b Value) (Value, error) {
	if op == ArithBNot {
		b = a
	}
	m, err := toBitwiseOperand(a)
	if err != nil {
		return Nil, err
	}
	n, err := toBitwiseOperand(b)
	if err != nil {
		return Nil, err
	}
	switch op {
	case ArithBAnd:
		return Int(m & n), nil
	case ArithBOr:
		return Int(m | n), nil
	case ArithBXor:
		return Int(m ^ n), nil
	case ArithShl:
		return Int(shiftLeft(m, n)), nil
	case ArithShr:
		return Int(shiftLeft(m, -n)), nil
	default: // ArithBNot
		return Int(^m), nil
	}
}

func toBitwiseOperand(v Value) (int64, error) {
	x, ok := v.toArith()
	if !ok {
		return 0, typeError("perform bitwise operation on", v)
	}
	i, ok := x.ToInteger()
	if !ok {
		return 0, errors.New("number has no integer representation")
	}
	return i, nil
}

func shiftLeft(x, y int64) int64 {
	switch {
	case y <= -64 || y >= 64:
		return 0
	case y < 0:
		return int64(uint64(x) >> uint(-y))
	}
	return int64(uint64(x) << uint(y))
}

func intMod(m, n int64) int64 {
	if n == -1 {
		return 0
	}
	r := m % n
	if r != 0 && (r^n) < 0 {
		r += n
	}
	return r
}

func intDiv(m, n int64) int64 {
	if n == -1 {
		return -m
	}
	q := m / n
	if (m^n) < 0 && m%n != 0 {
		q--
	}
	return q
}

func floatMod(a, b float64) float64 {
	m := math.Mod(a, b)
	if m*b < 0 {
		m += b
	}
	return m
}

// Equal is raw equality: numbers compare by mathematical value.
func Equal(a, b Value) bool {
	if a.Type() == TypeNumber && b.Type() == TypeNumber {
		if a.IsInteger() && b.IsInteger() {
			return a.Integer() == b.Integer()
		}
		x, _ := a.ToNumber()
		y, _ := b.ToNumber()
		return x == y
	}
	return a == b
}

// LessThan implements a < b.
func LessThan(a, b Value) (bool, error) {
	switch {
	case a.IsInteger() && b.IsInteger():
		return a.Integer() < b.Integer(), nil
	case a.Type() == TypeNumber && b.Type() == TypeNumber:
		x, _ := a.ToNumber()
		y, _ := b.ToNumber()
		return x < y, nil
	case a.Type() == TypeString && b.Type() == TypeString:
		return a.s < b.s, nil
	}
	return false, compareError(a, b)
}

// LessEqual implements a <= b.
func LessEqual(a, b Value) (bool, error) {
	switch {
	case a.IsInteger() && b.IsInteger():
		return a.Integer() <= b.Integer(), nil
	case a.Type() == TypeNumber && b.Type() == TypeNumber:
		x, _ := a.ToNumber()
		y, _ := b.ToNumber()
		return x <= y, nil
	case a.Type() == TypeString && b.Type() == TypeString:
		return a.s <= b.s, nil
	}
	return false, compareError(a, b)
}

// Compare dispatches on op as lua_compare does.
func Compare(op CompareOp, a, b Value) (bool, error) {
	switch op {
	case CompareEq:
		return Equal(a, b), nil
	case CompareLt:
		return LessThan(a, b)
	case CompareLe:
		return LessEqual(a, b)
	}
	return false, fmt.Errorf("invalid comparison operator %d", int32(op))
}

// Len implements the length operator.
func Len(v Value) (Value, error) {
	switch v.Type() {
	case TypeString:
		return Int(int64(len(v.s))), nil
	case TypeTable:
		return Int(v.t.Len()), nil
	}
	return Nil, typeError("get length of", v)
}

// Concat joins values which must be strings or numbers.
func Concat(vs []Value) (Value, error) {
	var b strings.Builder
	for _, v := range vs {
		switch v.Type() {
		case TypeString, TypeNumber:
			b.WriteString(v.String())
		default:
			return Nil, typeError("concatenate", v)
		}
	}
	return String(b.String()), nil
}

// forPrep prepares the numeric loop whose control registers start at r[0].
func forPrep(r []Value) error {
	init, limit, step := r[0], r[1], r[2]
	if init.IsInteger() && step.IsInteger() {
		if ilimit, stop, ok := forLimit(limit, step.Integer()); ok {
			initv := init.Integer()
			if stop {
				initv = 0
			}
			r[1] = Int(ilimit)
			r[0] = Int(initv - step.Integer())
			return nil
		}
	}
	nlimit, ok := limit.ToNumber()
	if !ok || limit.Type() != TypeNumber {
		return ErrorForLimitNotNumber
	}
	nstep, ok := step.ToNumber()
	if !ok || step.Type() != TypeNumber {
		return ErrorForStepNotNumber
	}
	ninit, ok := init.ToNumber()
	if !ok || init.Type() != TypeNumber {
		return ErrorForInitNotNumber
	}
	r[1] = Float(nlimit)
	r[2] = Float(nstep)
	r[0] = Float(ninit - nstep)
	return nil
}

// forLimit converts a loop limit to an integer. stop is true when the loop
// must not run at all.
func forLimit(limit Value, step int64) (ilimit int64, stop, ok bool) {
	if limit.IsInteger() {
		return limit.Integer(), false, true
	}
	if limit.Type() != TypeNumber {
		return 0, false, false
	}
	f := limit.Float()
	if math.IsNaN(f) {
		return 0, false, false
	}
	if step < 0 {
		f = math.Ceil(f)
	} else {
		f = math.Floor(f)
	}
	if i, ok := floatToInteger(f); ok {
		return i, false, true
	}
	if f > 0 {
		return math.MaxInt64, step < 0, true
	}
	return math.MinInt64, step > 0, true
}

// forLoop advances the numeric loop whose control registers start at r[0] and
// returns true when the body must run again.
func forLoop(r []Value) bool {
	if r[0].IsInteger() {
		step := r[2].Integer()
		idx := r[0].Integer() + step
		limit := r[1].Integer()
		if (step > 0 && idx <= limit) || (step <= 0 && limit <= idx) {
			r[0], r[3] = Int(idx), Int(idx)
			return true
		}
		return false
	}
	step := r[2].Float()
	idx := r[0].Float() + step
	limit := r[1].Float()
	if (step > 0 && idx <= limit) || (step <= 0 && limit <= idx) {
		r[0], r[3] = Float(idx), Float(idx)
		return true
	}
	return false
}
