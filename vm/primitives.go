package vm

import (
	"math"
	"sync"

	"github.com/ravilang/ravijit/internal/symbols"
)

var (
	registryOnce sync.Once
	registry     *symbols.Registry
	registryErr  error
)

// Registry returns the process-wide symbol registry that binds every runtime
// primitive to its implementation in this package. It is built on first use.
func Registry() *symbols.Registry {
	registryOnce.Do(func() {
		registry, registryErr = symbols.NewRegistry(implementations)
	})
	if registryErr != nil {
		panic(registryErr) // The table below is static.
	}
	return registry
}

var implementations = symbols.Implementations{
	symbols.PrimitiveRaiseError:   primRaiseError,
	symbols.PrimitiveArith:        primArith,
	symbols.PrimitiveToNumber:     primToNumber,
	symbols.PrimitiveToInteger:    primToInteger,
	symbols.PrimitiveObjLen:       primObjLen,
	symbols.PrimitiveEqualObj:     primEqualObj,
	symbols.PrimitiveLessThan:     primLessThan,
	symbols.PrimitiveLessEqual:    primLessEqual,
	symbols.PrimitiveForPrep:      primForPrep,
	symbols.PrimitiveForLoop:      primForLoop,
	symbols.PrimitiveGetTable:     primGetTable,
	symbols.PrimitiveSetTable:     primSetTable,
	symbols.PrimitivePosCall:      primPosCall,
	symbols.PrimitiveOpLoadK:      primOpLoadK,
	symbols.PrimitiveOpLoadNil:    primOpLoadNil,
	symbols.PrimitiveOpLoadBool:   primOpLoadBool,
	symbols.PrimitiveOpMove:       primOpMove,
	symbols.PrimitiveOpNewTable:   primOpNewTable,
	symbols.PrimitiveOpNot:        primOpNot,
	symbols.PrimitiveOpTest:       primOpTest,
	symbols.PrimitiveGetTop:       primGetTop,
	symbols.PrimitiveSetTop:       primSetTop,
	symbols.PrimitiveAbsIndex:     primAbsIndex,
	symbols.PrimitivePushValue:    primPushValue,
	symbols.PrimitiveCopy:         primCopy,
	symbols.PrimitiveType:         primType,
	symbols.PrimitiveIsInteger:    primIsInteger,
	symbols.PrimitiveIsNumber:     primIsNumber,
	symbols.PrimitiveToBoolean:    primToBoolean,
	symbols.PrimitiveToIntegerX:   primToIntegerX,
	symbols.PrimitiveToNumberX:    primToNumberX,
	symbols.PrimitiveRawLen:       primRawLen,
	symbols.PrimitivePushNil:      primPushNil,
	symbols.PrimitivePushInteger:  primPushInteger,
	symbols.PrimitivePushNumber:   primPushNumber,
	symbols.PrimitivePushBoolean:  primPushBoolean,
	symbols.PrimitiveCreateTable:  primCreateTable,
	symbols.PrimitiveRawGetI:      primRawGetI,
	symbols.PrimitiveRawSetI:      primRawSetI,
	symbols.PrimitiveRawEqual:     primRawEqual,
	symbols.PrimitiveCompare:      primCompare,
	symbols.PrimitiveLuaArith:     primLuaArith,
}

// Raw slot conversions. Every primitive receives the state handle in args[0].

func argI32(args []uint64, i int) int32   { return int32(uint32(args[i])) }
func argI64(args []uint64, i int) int64   { return int64(args[i]) }
func argF64(args []uint64, i int) float64 { return math.Float64frombits(args[i]) }

func retI32(v int32) []uint64   { return []uint64{uint64(uint32(v))} }
func retI64(v int64) []uint64   { return []uint64{uint64(v)} }
func retF64(v float64) []uint64 { return []uint64{math.Float64bits(v)} }

func retBool(b bool) []uint64 {
	if b {
		return retI32(1)
	}
	return retI32(0)
}

func frame(args []uint64) (*State, *callInfo, error) {
	s, err := stateOf(argI64(args, 0))
	if err != nil {
		return nil, nil, err
	}
	return s, s.ci, nil
}

func primRaiseError(args []uint64) ([]uint64, error) {
	s, _, err := frame(args)
	if err != nil {
		return nil, err
	}
	return nil, s.runtimeError(ErrorCode(argI32(args, 1)))
}

func primArith(args []uint64) ([]uint64, error) {
	s, ci, err := frame(args)
	if err != nil {
		return nil, err
	}
	ra, err := ci.reg(argI32(args, 2))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	b, err := ci.rk(argI32(args, 3))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	c, err := ci.rk(argI32(args, 4))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	v, err := Arith(ArithOp(argI32(args, 1)), b, c)
	if err != nil {
		return nil, s.runtimeError(err)
	}
	*ra = v
	return nil, nil
}

func primToNumber(args []uint64) ([]uint64, error) {
	s, ci, err := frame(args)
	if err != nil {
		return nil, err
	}
	v, err := ci.rk(argI32(args, 1))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	n, ok := v.ToNumber()
	if !ok {
		return nil, s.runtimeError(ErrorNumberExpected)
	}
	return retF64(n), nil
}

func primToInteger(args []uint64) ([]uint64, error) {
	s, ci, err := frame(args)
	if err != nil {
		return nil, err
	}
	v, err := ci.rk(argI32(args, 1))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	i, ok := v.ToInteger()
	if !ok {
		return nil, s.runtimeError(ErrorIntegerExpected)
	}
	return retI64(i), nil
}

func primObjLen(args []uint64) ([]uint64, error) {
	s, ci, err := frame(args)
	if err != nil {
		return nil, err
	}
	ra, err := ci.reg(argI32(args, 1))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	rb, err := ci.reg(argI32(args, 2))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	v, err := Len(*rb)
	if err != nil {
		return nil, s.runtimeError(err)
	}
	*ra = v
	return nil, nil
}

func compareRK(args []uint64, cmp func(a, b Value) (bool, error)) ([]uint64, error) {
	s, ci, err := frame(args)
	if err != nil {
		return nil, err
	}
	b, err := ci.rk(argI32(args, 1))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	c, err := ci.rk(argI32(args, 2))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	res, err := cmp(b, c)
	if err != nil {
		return nil, s.runtimeError(err)
	}
	return retBool(res), nil
}

func primEqualObj(args []uint64) ([]uint64, error) {
	return compareRK(args, func(a, b Value) (bool, error) { return Equal(a, b), nil })
}

func primLessThan(args []uint64) ([]uint64, error) {
	return compareRK(args, LessThan)
}

func primLessEqual(args []uint64) ([]uint64, error) {
	return compareRK(args, LessEqual)
}

func loopRegisters(ci *callInfo, ra int32) ([]Value, error) {
	if _, err := ci.reg(ra + 3); err != nil {
		return nil, err
	}
	if _, err := ci.reg(ra); err != nil {
		return nil, err
	}
	return ci.stack[ra : ra+4], nil
}

func primForPrep(args []uint64) ([]uint64, error) {
	s, ci, err := frame(args)
	if err != nil {
		return nil, err
	}
	r, err := loopRegisters(ci, argI32(args, 1))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	if err = forPrep(r); err != nil {
		return nil, s.runtimeError(err)
	}
	return nil, nil
}

func primForLoop(args []uint64) ([]uint64, error) {
	s, ci, err := frame(args)
	if err != nil {
		return nil, err
	}
	r, err := loopRegisters(ci, argI32(args, 1))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	return retBool(forLoop(r)), nil
}

func primGetTable(args []uint64) ([]uint64, error) {
	s, ci, err := frame(args)
	if err != nil {
		return nil, err
	}
	ra, err := ci.reg(argI32(args, 1))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	rb, err := ci.reg(argI32(args, 2))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	k, err := ci.rk(argI32(args, 3))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	v, err := getTable(*rb, k)
	if err != nil {
		return nil, s.runtimeError(err)
	}
	*ra = v
	return nil, nil
}

func primSetTable(args []uint64) ([]uint64, error) {
	s, ci, err := frame(args)
	if err != nil {
		return nil, err
	}
	ra, err := ci.reg(argI32(args, 1))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	k, err := ci.rk(argI32(args, 2))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	v, err := ci.rk(argI32(args, 3))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	if err = setTable(*ra, k, v); err != nil {
		return nil, s.runtimeError(err)
	}
	return nil, nil
}

func primPosCall(args []uint64) ([]uint64, error) {
	s, ci, err := frame(args)
	if err != nil {
		return nil, err
	}
	n, err := ci.poscall(argI32(args, 1), argI32(args, 2))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	return retI32(n), nil
}

func primOpLoadK(args []uint64) ([]uint64, error) {
	s, ci, err := frame(args)
	if err != nil {
		return nil, err
	}
	ra, err := ci.reg(argI32(args, 1))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	k, err := ci.rk(RK(argI32(args, 2)))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	*ra = k
	return nil, nil
}

func primOpLoadNil(args []uint64) ([]uint64, error) {
	s, ci, err := frame(args)
	if err != nil {
		return nil, err
	}
	a, n := argI32(args, 1), argI32(args, 2)
	if _, err = ci.reg(a + n); err != nil {
		return nil, s.runtimeError(err)
	}
	for i := a; i <= a+n; i++ {
		ci.stack[i] = Nil
	}
	return nil, nil
}

func primOpLoadBool(args []uint64) ([]uint64, error) {
	s, ci, err := frame(args)
	if err != nil {
		return nil, err
	}
	ra, err := ci.reg(argI32(args, 1))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	*ra = Bool(argI32(args, 2) != 0)
	return nil, nil
}

func primOpMove(args []uint64) ([]uint64, error) {
	s, ci, err := frame(args)
	if err != nil {
		return nil, err
	}
	ra, err := ci.reg(argI32(args, 1))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	rb, err := ci.reg(argI32(args, 2))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	*ra = *rb
	return nil, nil
}

func primOpNewTable(args []uint64) ([]uint64, error) {
	s, ci, err := frame(args)
	if err != nil {
		return nil, err
	}
	ra, err := ci.reg(argI32(args, 1))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	*ra = TableValue(NewTable(0, 0))
	return nil, nil
}

func primOpNot(args []uint64) ([]uint64, error) {
	s, ci, err := frame(args)
	if err != nil {
		return nil, err
	}
	ra, err := ci.reg(argI32(args, 1))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	rb, err := ci.reg(argI32(args, 2))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	*ra = Bool(!rb.Truthy())
	return nil, nil
}

func primOpTest(args []uint64) ([]uint64, error) {
	s, ci, err := frame(args)
	if err != nil {
		return nil, err
	}
	ra, err := ci.reg(argI32(args, 1))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	return retBool(ra.Truthy()), nil
}

func primGetTop(args []uint64) ([]uint64, error) {
	s, _, err := frame(args)
	if err != nil {
		return nil, err
	}
	return retI32(int32(s.GetTop())), nil
}

func primSetTop(args []uint64) ([]uint64, error) {
	s, _, err := frame(args)
	if err != nil {
		return nil, err
	}
	s.SetTop(int(argI32(args, 1)))
	return nil, nil
}

func primAbsIndex(args []uint64) ([]uint64, error) {
	s, _, err := frame(args)
	if err != nil {
		return nil, err
	}
	return retI32(int32(s.AbsIndex(int(argI32(args, 1))))), nil
}

func primPushValue(args []uint64) ([]uint64, error) {
	s, _, err := frame(args)
	if err != nil {
		return nil, err
	}
	s.PushValue(int(argI32(args, 1)))
	return nil, nil
}

func primCopy(args []uint64) ([]uint64, error) {
	s, _, err := frame(args)
	if err != nil {
		return nil, err
	}
	if err = s.Copy(int(argI32(args, 1)), int(argI32(args, 2))); err != nil {
		return nil, s.runtimeError(err)
	}
	return nil, nil
}

func primType(args []uint64) ([]uint64, error) {
	s, _, err := frame(args)
	if err != nil {
		return nil, err
	}
	return retI32(int32(s.TypeAt(int(argI32(args, 1))))), nil
}

func primIsInteger(args []uint64) ([]uint64, error) {
	s, _, err := frame(args)
	if err != nil {
		return nil, err
	}
	return retBool(s.IsInteger(int(argI32(args, 1)))), nil
}

func primIsNumber(args []uint64) ([]uint64, error) {
	s, _, err := frame(args)
	if err != nil {
		return nil, err
	}
	return retBool(s.IsNumber(int(argI32(args, 1)))), nil
}

func primToBoolean(args []uint64) ([]uint64, error) {
	s, _, err := frame(args)
	if err != nil {
		return nil, err
	}
	return retBool(s.ToBoolean(int(argI32(args, 1)))), nil
}

// primToIntegerX returns zero for values without an integer representation.
func primToIntegerX(args []uint64) ([]uint64, error) {
	s, _, err := frame(args)
	if err != nil {
		return nil, err
	}
	i, _ := s.ToIntegerX(int(argI32(args, 1)))
	return retI64(i), nil
}

// primToNumberX returns zero for values that are not numbers.
func primToNumberX(args []uint64) ([]uint64, error) {
	s, _, err := frame(args)
	if err != nil {
		return nil, err
	}
	f, _ := s.ToNumberX(int(argI32(args, 1)))
	return retF64(f), nil
}

func primRawLen(args []uint64) ([]uint64, error) {
	s, _, err := frame(args)
	if err != nil {
		return nil, err
	}
	return retI64(s.RawLen(int(argI32(args, 1)))), nil
}

func primPushNil(args []uint64) ([]uint64, error) {
	s, _, err := frame(args)
	if err != nil {
		return nil, err
	}
	s.PushNil()
	return nil, nil
}

func primPushInteger(args []uint64) ([]uint64, error) {
	s, _, err := frame(args)
	if err != nil {
		return nil, err
	}
	s.PushInteger(argI64(args, 1))
	return nil, nil
}

func primPushNumber(args []uint64) ([]uint64, error) {
	s, _, err := frame(args)
	if err != nil {
		return nil, err
	}
	s.PushNumber(argF64(args, 1))
	return nil, nil
}

func primPushBoolean(args []uint64) ([]uint64, error) {
	s, _, err := frame(args)
	if err != nil {
		return nil, err
	}
	s.PushBoolean(argI32(args, 1) != 0)
	return nil, nil
}

func primCreateTable(args []uint64) ([]uint64, error) {
	s, _, err := frame(args)
	if err != nil {
		return nil, err
	}
	s.CreateTable(int(argI32(args, 1)), int(argI32(args, 2)))
	return nil, nil
}

func primRawGetI(args []uint64) ([]uint64, error) {
	s, _, err := frame(args)
	if err != nil {
		return nil, err
	}
	t, err := s.RawGetI(int(argI32(args, 1)), argI64(args, 2))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	return retI32(int32(t)), nil
}

func primRawSetI(args []uint64) ([]uint64, error) {
	s, _, err := frame(args)
	if err != nil {
		return nil, err
	}
	if err = s.RawSetI(int(argI32(args, 1)), argI64(args, 2)); err != nil {
		return nil, s.runtimeError(err)
	}
	return nil, nil
}

func primRawEqual(args []uint64) ([]uint64, error) {
	s, _, err := frame(args)
	if err != nil {
		return nil, err
	}
	return retBool(s.RawEqual(int(argI32(args, 1)), int(argI32(args, 2)))), nil
}

func primCompare(args []uint64) ([]uint64, error) {
	s, _, err := frame(args)
	if err != nil {
		return nil, err
	}
	res, err := s.Compare(int(argI32(args, 1)), int(argI32(args, 2)), CompareOp(argI32(args, 3)))
	if err != nil {
		return nil, s.runtimeError(err)
	}
	return retBool(res), nil
}

func primLuaArith(args []uint64) ([]uint64, error) {
	s, _, err := frame(args)
	if err != nil {
		return nil, err
	}
	if err = s.Arith(ArithOp(argI32(args, 1))); err != nil {
		return nil, s.runtimeError(err)
	}
	return nil, nil
}
