package symbols

import "fmt"

// ValueType is the type of a parameter or result of a primitive as seen by generated code.
//
// Values cross the native boundary as raw uint64 slots: integer types are stored
// as-is (sign extended where needed) and ValueTypeF64 is stored as math.Float64bits.
type ValueType byte

const (
	ValueTypeI32 ValueType = iota + 1
	ValueTypeI64
	ValueTypeF64
)

// String returns the WebAssembly text format name of the type.
func (t ValueType) String() string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF64:
		return "f64"
	}
	return fmt.Sprintf("unknown(%d)", byte(t))
}

// Signature describes the parameters and results of a primitive.
type Signature struct {
	Params, Results []ValueType
}

// String returns the signature in the form "(i64, i32) -> i32".
func (s Signature) String() string {
	ret := "("
	for i, p := range s.Params {
		if i > 0 {
			ret += ", "
		}
		ret += p.String()
	}
	ret += ")"
	switch len(s.Results) {
	case 0:
	case 1:
		ret += " -> " + s.Results[0].String()
	default:
		ret += " -> ("
		for i, r := range s.Results {
			if i > 0 {
				ret += ", "
			}
			ret += r.String()
		}
		ret += ")"
	}
	return ret
}

// Primitive enumerates the runtime functions which generated code may call.
//
// The set is a versioned ABI: the names returned by Name are exactly the import
// names that generated code references, and the first parameter of every
// primitive is the state handle of the calling Lua state.
type Primitive uint16

const (
	// Errors.

	PrimitiveRaiseError Primitive = iota

	// Arithmetic, coercion and comparison.

	PrimitiveArith
	PrimitiveToNumber
	PrimitiveToInteger
	PrimitiveObjLen
	PrimitiveEqualObj
	PrimitiveLessThan
	PrimitiveLessEqual
	PrimitiveForPrep
	PrimitiveForLoop

	// Table access.

	PrimitiveGetTable
	PrimitiveSetTable

	// Call dispatch.

	PrimitivePosCall

	// Register operations.

	PrimitiveOpLoadK
	PrimitiveOpLoadNil
	PrimitiveOpLoadBool
	PrimitiveOpMove
	PrimitiveOpNewTable
	PrimitiveOpNot
	PrimitiveOpTest

	// Embedding API.

	PrimitiveGetTop
	PrimitiveSetTop
	PrimitiveAbsIndex
	PrimitivePushValue
	PrimitiveCopy
	PrimitiveType
	PrimitiveIsInteger
	PrimitiveIsNumber
	PrimitiveToBoolean
	PrimitiveToIntegerX
	PrimitiveToNumberX
	PrimitiveRawLen
	PrimitivePushNil
	PrimitivePushInteger
	PrimitivePushNumber
	PrimitivePushBoolean
	PrimitiveCreateTable
	PrimitiveRawGetI
	PrimitiveRawSetI
	PrimitiveRawEqual
	PrimitiveCompare
	PrimitiveLuaArith

	// PrimitiveCount is the number of primitives. Keep this last.
	PrimitiveCount
)

var (
	h   = ValueTypeI64 // state handle
	i32 = ValueTypeI32
	i64 = ValueTypeI64
	f64 = ValueTypeF64
)

// primitiveTable is indexed by Primitive. NewRegistry rejects any entry left empty.
var primitiveTable = [PrimitiveCount]struct {
	name string
	sig  Signature
}{
	PrimitiveRaiseError: {"raise_error", Signature{Params: []ValueType{h, i32}}},

	PrimitiveArith:     {"luaO_arith", Signature{Params: []ValueType{h, i32, i32, i32, i32}}},
	PrimitiveToNumber:  {"luaV_tonumber_", Signature{Params: []ValueType{h, i32}, Results: []ValueType{f64}}},
	PrimitiveToInteger: {"luaV_tointeger", Signature{Params: []ValueType{h, i32}, Results: []ValueType{i64}}},
	PrimitiveObjLen:    {"luaV_objlen", Signature{Params: []ValueType{h, i32, i32}}},
	PrimitiveEqualObj:  {"luaV_equalobj", Signature{Params: []ValueType{h, i32, i32}, Results: []ValueType{i32}}},
	PrimitiveLessThan:  {"luaV_lessthan", Signature{Params: []ValueType{h, i32, i32}, Results: []ValueType{i32}}},
	PrimitiveLessEqual: {"luaV_lessequal", Signature{Params: []ValueType{h, i32, i32}, Results: []ValueType{i32}}},
	PrimitiveForPrep:   {"luaV_forprep", Signature{Params: []ValueType{h, i32}}},
	PrimitiveForLoop:   {"luaV_forloop", Signature{Params: []ValueType{h, i32}, Results: []ValueType{i32}}},

	PrimitiveGetTable: {"luaV_gettable", Signature{Params: []ValueType{h, i32, i32, i32}}},
	PrimitiveSetTable: {"luaV_settable", Signature{Params: []ValueType{h, i32, i32, i32}}},

	PrimitivePosCall: {"luaD_poscall", Signature{Params: []ValueType{h, i32, i32}, Results: []ValueType{i32}}},

	PrimitiveOpLoadK:    {"raviV_op_loadk", Signature{Params: []ValueType{h, i32, i32}}},
	PrimitiveOpLoadNil:  {"raviV_op_loadnil", Signature{Params: []ValueType{h, i32, i32}}},
	PrimitiveOpLoadBool: {"raviV_op_loadbool", Signature{Params: []ValueType{h, i32, i32}}},
	PrimitiveOpMove:     {"raviV_op_move", Signature{Params: []ValueType{h, i32, i32}}},
	PrimitiveOpNewTable: {"raviV_op_newtable", Signature{Params: []ValueType{h, i32}}},
	PrimitiveOpNot:      {"raviV_op_not", Signature{Params: []ValueType{h, i32, i32}}},
	PrimitiveOpTest:     {"raviV_op_test", Signature{Params: []ValueType{h, i32}, Results: []ValueType{i32}}},

	PrimitiveGetTop:      {"lua_gettop", Signature{Params: []ValueType{h}, Results: []ValueType{i32}}},
	PrimitiveSetTop:      {"lua_settop", Signature{Params: []ValueType{h, i32}}},
	PrimitiveAbsIndex:    {"lua_absindex", Signature{Params: []ValueType{h, i32}, Results: []ValueType{i32}}},
	PrimitivePushValue:   {"lua_pushvalue", Signature{Params: []ValueType{h, i32}}},
	PrimitiveCopy:        {"lua_copy", Signature{Params: []ValueType{h, i32, i32}}},
	PrimitiveType:        {"lua_type", Signature{Params: []ValueType{h, i32}, Results: []ValueType{i32}}},
	PrimitiveIsInteger:   {"lua_isinteger", Signature{Params: []ValueType{h, i32}, Results: []ValueType{i32}}},
	PrimitiveIsNumber:    {"lua_isnumber", Signature{Params: []ValueType{h, i32}, Results: []ValueType{i32}}},
	PrimitiveToBoolean:   {"lua_toboolean", Signature{Params: []ValueType{h, i32}, Results: []ValueType{i32}}},
	PrimitiveToIntegerX:  {"lua_tointegerx", Signature{Params: []ValueType{h, i32}, Results: []ValueType{i64}}},
	PrimitiveToNumberX:   {"lua_tonumberx", Signature{Params: []ValueType{h, i32}, Results: []ValueType{f64}}},
	PrimitiveRawLen:      {"lua_rawlen", Signature{Params: []ValueType{h, i32}, Results: []ValueType{i64}}},
	PrimitivePushNil:     {"lua_pushnil", Signature{Params: []ValueType{h}}},
	PrimitivePushInteger: {"lua_pushinteger", Signature{Params: []ValueType{h, i64}}},
	PrimitivePushNumber:  {"lua_pushnumber", Signature{Params: []ValueType{h, f64}}},
	PrimitivePushBoolean: {"lua_pushboolean", Signature{Params: []ValueType{h, i32}}},
	PrimitiveCreateTable: {"lua_createtable", Signature{Params: []ValueType{h, i32, i32}}},
	PrimitiveRawGetI:     {"lua_rawgeti", Signature{Params: []ValueType{h, i32, i64}, Results: []ValueType{i32}}},
	PrimitiveRawSetI:     {"lua_rawseti", Signature{Params: []ValueType{h, i32, i64}}},
	PrimitiveRawEqual:    {"lua_rawequal", Signature{Params: []ValueType{h, i32, i32}, Results: []ValueType{i32}}},
	PrimitiveCompare:     {"lua_compare", Signature{Params: []ValueType{h, i32, i32, i32}, Results: []ValueType{i32}}},
	PrimitiveLuaArith:    {"lua_arith", Signature{Params: []ValueType{h, i32}}},
}

// Name returns the symbol name generated code uses to import this primitive.
func (p Primitive) Name() string {
	if p >= PrimitiveCount {
		return fmt.Sprintf("unknown(%d)", uint16(p))
	}
	return primitiveTable[p].name
}

// Signature returns the native signature of this primitive.
func (p Primitive) Signature() Signature {
	if p >= PrimitiveCount {
		return Signature{}
	}
	return primitiveTable[p].sig
}

// String implements fmt.Stringer.
func (p Primitive) String() string {
	return p.Name()
}
