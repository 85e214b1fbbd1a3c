package vm

import "fmt"

// Opcode is a bytecode operation. Operands follow Lua 5.3: R(x) is a register,
// K(x) a constant and RK(x) either, depending on BitRK.
type Opcode byte

const (
	// OpMove is R(A) := R(B).
	OpMove Opcode = iota
	// OpLoadK is R(A) := K(B).
	OpLoadK
	// OpLoadNil is R(A), ..., R(A+B) := nil.
	OpLoadNil
	// OpLoadBool is R(A) := (B != 0); if C != 0 skip the next instruction.
	OpLoadBool
	// OpAdd is R(A) := RK(B) + RK(C).
	OpAdd
	OpSub
	OpMul
	OpMod
	OpPow
	OpDiv
	OpIDiv
	OpBAnd
	OpBOr
	OpBXor
	OpShl
	// OpShr is R(A) := RK(B) >> RK(C).
	OpShr
	// OpUnm is R(A) := -R(B).
	OpUnm
	// OpNot is R(A) := not R(B).
	OpNot
	// OpLen is R(A) := #R(B).
	OpLen
	// OpNewTable is R(A) := {} with size hints B and C.
	OpNewTable
	// OpGetTable is R(A) := R(B)[RK(C)].
	OpGetTable
	// OpSetTable is R(A)[RK(B)] := RK(C).
	OpSetTable
	// OpConcat is R(A) := R(B) .. ... .. R(C).
	OpConcat
	// OpJmp is pc += B.
	OpJmp
	// OpEq is: if (RK(B) == RK(C)) != A then skip the next instruction.
	OpEq
	// OpLt is: if (RK(B) < RK(C)) != A then skip the next instruction.
	OpLt
	// OpLe is: if (RK(B) <= RK(C)) != A then skip the next instruction.
	OpLe
	// OpTest is: if truthy(R(A)) != C then skip the next instruction.
	OpTest
	// OpForPrep is R(A) -= R(A+2); pc += B.
	OpForPrep
	// OpForLoop is R(A) += R(A+2); if R(A) <?= R(A+1) then { pc += B; R(A+3) := R(A) }.
	OpForLoop
	// OpReturn returns R(A), ..., R(A+B-2).
	OpReturn

	opcodeCount
)

var opcodeNames = [opcodeCount]string{
	OpMove:     "MOVE",
	OpLoadK:    "LOADK",
	OpLoadNil:  "LOADNIL",
	OpLoadBool: "LOADBOOL",
	OpAdd:      "ADD",
	OpSub:      "SUB",
	OpMul:      "MUL",
	OpMod:      "MOD",
	OpPow:      "POW",
	OpDiv:      "DIV",
	OpIDiv:     "IDIV",
	OpBAnd:     "BAND",
	OpBOr:      "BOR",
	OpBXor:     "BXOR",
	OpShl:      "SHL",
	OpShr:      "SHR",
	OpUnm:      "UNM",
	OpNot:      "NOT",
	OpLen:      "LEN",
	OpNewTable: "NEWTABLE",
	OpGetTable: "GETTABLE",
	OpSetTable: "SETTABLE",
	OpConcat:   "CONCAT",
	OpJmp:      "JMP",
	OpEq:       "EQ",
	OpLt:       "LT",
	OpLe:       "LE",
	OpTest:     "TEST",
	OpForPrep:  "FORPREP",
	OpForLoop:  "FORLOOP",
	OpReturn:   "RETURN",
}

func (o Opcode) String() string {
	if o < opcodeCount {
		return opcodeNames[o]
	}
	return fmt.Sprintf("OP%d", byte(o))
}

// Valid returns true when o is a known opcode.
func (o Opcode) Valid() bool { return o < opcodeCount }

// ArithOp returns the arithmetic operator implemented by o.
func (o Opcode) ArithOp() (ArithOp, bool) {
	if o >= OpAdd && o <= OpShr {
		return ArithOp(o - OpAdd), true
	}
	if o == OpUnm {
		return ArithUnm, true
	}
	return 0, false
}

// IsJump returns true for instructions that transfer control with a B offset.
func (o Opcode) IsJump() bool {
	return o == OpJmp || o == OpForPrep || o == OpForLoop
}

// IsTest returns true for instructions that conditionally skip the next one.
func (o Opcode) IsTest() bool {
	return o == OpEq || o == OpLt || o == OpLe || o == OpTest
}

// BitRK marks an RK operand as a constant index.
const BitRK = 1 << 8

// IsK returns true when the RK operand x refers to a constant.
func IsK(x int32) bool { return x&BitRK != 0 }

// IndexK returns the constant index of the RK operand x.
func IndexK(x int32) int32 { return x &^ BitRK }

// RK encodes constant index k as an RK operand.
func RK(k int32) int32 { return k | BitRK }

// Instruction is a decoded bytecode instruction.
type Instruction struct {
	Op      Opcode
	A, B, C int32
}

// Jump returns the target pc of a jump instruction at pc.
func (i Instruction) Jump(pc int) int {
	return pc + 1 + int(i.B)
}

func (i Instruction) String() string {
	return fmt.Sprintf("%-8s %d %d %d", i.Op, i.A, i.B, i.C)
}

// ArithOp is the operator argument of luaO_arith and lua_arith, numbered as LUA_OP*.
type ArithOp int32

const (
	ArithAdd ArithOp = iota
	ArithSub
	ArithMul
	ArithMod
	ArithPow
	ArithDiv
	ArithIDiv
	ArithBAnd
	ArithBOr
	ArithBXor
	ArithShl
	ArithShr
	ArithUnm
	ArithBNot
)

// CompareOp is the operator argument of lua_compare, numbered as LUA_OP*.
type CompareOp int32

const (
	CompareEq CompareOp = iota
	CompareLt
	CompareLe
)
