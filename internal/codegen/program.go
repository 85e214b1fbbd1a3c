package codegen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ravilang/ravijit/internal/symbols"
	"github.com/ravilang/ravijit/vm"
)

// Program is a lowered function: basic blocks of primitive calls.
type Program struct {
	// Name is the exported name of the entry function.
	Name   string
	Blocks []*Block
	// Imports lists every primitive called, in order of first use.
	Imports []symbols.Primitive
}

// Block is a basic block. Control enters at the first call and leaves through Term.
type Block struct {
	Index int
	// PC is the bytecode position of the first instruction.
	PC    int
	Calls []Call
	Term  Terminator
}

// Call invokes a primitive with the state handle followed by Args.
type Call struct {
	Primitive symbols.Primitive
	Args      []int32
	// Source is the bytecode instruction this call implements.
	PC     int
	Source vm.Instruction
}

func (c Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = fmt.Sprint(a)
	}
	return fmt.Sprintf("%s(L, %s)", c.Primitive, strings.Join(args, ", "))
}

// TermKind is the kind of a block terminator.
type TermKind byte

const (
	// TermJump continues at Target. Fallthrough is set when Target is the next block.
	TermJump TermKind = iota
	// TermBranch runs Call and continues at Target when its result differs from
	// Expect, at Else otherwise.
	TermBranch
	// TermReturn runs Call and returns its result.
	TermReturn
)

// Terminator ends a Block.
type Terminator struct {
	Kind   TermKind
	Call   *Call
	Expect int32
	Target int
	Else   int
	// Fallthrough is true for a TermJump that only exists because the next
	// instruction starts a new block.
	Fallthrough bool
}

// lower splits p into basic blocks. p must have passed check.
func lower(p *vm.Proto, name string) *Program {
	code := p.Code
	n := len(code)

	leader := make([]bool, n+2)
	leader[0] = true
	for pc, inst := range code {
		switch op := inst.Op; {
		case op.IsJump():
			leader[inst.Jump(pc)] = true
			leader[pc+1] = true
		case op.IsTest():
			leader[pc+1] = true
			leader[pc+2] = true
		case op == vm.OpLoadBool && inst.C != 0:
			leader[pc+1] = true
			leader[pc+2] = true
		case op == vm.OpReturn:
			leader[pc+1] = true
		}
	}

	blockOf := make([]int, n)
	var starts []int
	for pc := 0; pc < n; pc++ {
		if leader[pc] {
			starts = append(starts, pc)
		}
		blockOf[pc] = len(starts) - 1
	}

	prog := &Program{Name: name}
	seen := map[symbols.Primitive]bool{}
	use := func(c *Call) {
		if !seen[c.Primitive] {
			seen[c.Primitive] = true
			prog.Imports = append(prog.Imports, c.Primitive)
		}
	}

	for i, start := range starts {
		end := n
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		b := &Block{Index: i, PC: start}
		for pc := start; pc < end-1; pc++ {
			c := translate(pc, code[pc])
			use(&c)
			b.Calls = append(b.Calls, c)
		}

		pc := end - 1
		inst := code[pc]
		next := i + 1
		switch op := inst.Op; {
		case op == vm.OpJmp:
			b.Term = Terminator{Kind: TermJump, Target: blockOf[inst.Jump(pc)]}
		case op == vm.OpForPrep:
			c := call(pc, inst, symbols.PrimitiveForPrep, inst.A)
			use(&c)
			b.Calls = append(b.Calls, c)
			b.Term = Terminator{Kind: TermJump, Target: blockOf[inst.Jump(pc)]}
		case op == vm.OpForLoop:
			c := call(pc, inst, symbols.PrimitiveForLoop, inst.A)
			use(&c)
			b.Term = Terminator{Kind: TermBranch, Call: &c, Expect: 0, Target: blockOf[inst.Jump(pc)], Else: next}
		case op.IsTest():
			c := testCall(pc, inst)
			use(&c)
			expect := inst.A
			if op == vm.OpTest {
				expect = inst.C
			}
			b.Term = Terminator{Kind: TermBranch, Call: &c, Expect: expect, Target: blockOf[pc+2], Else: next}
		case op == vm.OpLoadBool && inst.C != 0:
			c := translate(pc, inst)
			use(&c)
			b.Calls = append(b.Calls, c)
			b.Term = Terminator{Kind: TermJump, Target: blockOf[pc+2]}
		case op == vm.OpReturn:
			c := call(pc, inst, symbols.PrimitivePosCall, inst.A, inst.B-1)
			use(&c)
			b.Term = Terminator{Kind: TermReturn, Call: &c}
		default:
			c := translate(pc, inst)
			use(&c)
			b.Calls = append(b.Calls, c)
			b.Term = Terminator{Kind: TermJump, Target: next, Fallthrough: true}
		}
		if b.Term.Kind == TermJump && b.Term.Target == next {
			b.Term.Fallthrough = true
		}
		prog.Blocks = append(prog.Blocks, b)
	}
	return prog
}

func call(pc int, inst vm.Instruction, p symbols.Primitive, args ...int32) Call {
	return Call{Primitive: p, Args: args, PC: pc, Source: inst}
}

// translate maps a straight-line instruction to its primitive call.
func translate(pc int, inst vm.Instruction) Call {
	switch op := inst.Op; op {
	case vm.OpMove:
		return call(pc, inst, symbols.PrimitiveOpMove, inst.A, inst.B)
	case vm.OpLoadK:
		return call(pc, inst, symbols.PrimitiveOpLoadK, inst.A, inst.B)
	case vm.OpLoadNil:
		return call(pc, inst, symbols.PrimitiveOpLoadNil, inst.A, inst.B)
	case vm.OpLoadBool:
		return call(pc, inst, symbols.PrimitiveOpLoadBool, inst.A, inst.B)
	case vm.OpNot:
		return call(pc, inst, symbols.PrimitiveOpNot, inst.A, inst.B)
	case vm.OpLen:
		return call(pc, inst, symbols.PrimitiveObjLen, inst.A, inst.B)
	case vm.OpNewTable:
		return call(pc, inst, symbols.PrimitiveOpNewTable, inst.A)
	case vm.OpGetTable:
		return call(pc, inst, symbols.PrimitiveGetTable, inst.A, inst.B, inst.C)
	case vm.OpSetTable:
		return call(pc, inst, symbols.PrimitiveSetTable, inst.A, inst.B, inst.C)
	case vm.OpUnm:
		return call(pc, inst, symbols.PrimitiveArith, int32(vm.ArithUnm), inst.A, inst.B, inst.B)
	default:
		aop, ok := op.ArithOp()
		if !ok {
			panic(fmt.Sprintf("BUG: %s is not a straight-line instruction", op))
		}
		return call(pc, inst, symbols.PrimitiveArith, int32(aop), inst.A, inst.B, inst.C)
	}
}

func testCall(pc int, inst vm.Instruction) Call {
	switch inst.Op {
	case vm.OpEq:
		return call(pc, inst, symbols.PrimitiveEqualObj, inst.B, inst.C)
	case vm.OpLt:
		return call(pc, inst, symbols.PrimitiveLessThan, inst.B, inst.C)
	case vm.OpLe:
		return call(pc, inst, symbols.PrimitiveLessEqual, inst.B, inst.C)
	default: // vm.OpTest
		return call(pc, inst, symbols.PrimitiveOpTest, inst.A)
	}
}

// ImportNames returns the sorted import names of the program.
func (p *Program) ImportNames() []string {
	names := make([]string, len(p.Imports))
	for i, imp := range p.Imports {
		names[i] = imp.Name()
	}
	sort.Strings(names)
	return names
}
