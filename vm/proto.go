package vm

import (
	"math"
	"runtime"
	"sync"

	"github.com/ravilang/ravijit/internal/artifact"
)

// Proto is a function unit: bytecode plus everything the JIT decides on.
//
// A Proto owns exactly one compiled-artifact slot. Close, or the finalizer if
// Close was never called, releases the native code attached to it.
type Proto struct {
	Name      string
	NumParams int
	Code      []Instruction
	Constants []Value
	// MaxStack is the number of registers a frame of this function needs.
	MaxStack int

	hasForLoop bool
	execCount  uint32

	artifact  artifact.Artifact
	closeOnce sync.Once
	closeErr  error
}

// NewProto returns a Proto for code. MaxStack and the counted-loop marker are
// derived from the instructions.
func NewProto(name string, numParams int, code []Instruction, constants []Value) *Proto {
	p := &Proto{
		Name:      name,
		NumParams: numParams,
		Code:      code,
		Constants: constants,
		MaxStack:  maxStack(numParams, code),
	}
	for _, inst := range code {
		if inst.Op == OpForPrep {
			p.hasForLoop = true
			break
		}
	}
	runtime.SetFinalizer(p, (*Proto).Close)
	return p
}

func maxStack(numParams int, code []Instruction) int {
	n := numParams
	use := func(r int32) {
		if int(r)+1 > n {
			n = int(r) + 1
		}
	}
	useRK := func(r int32) {
		if !IsK(r) {
			use(r)
		}
	}
	for _, inst := range code {
		switch inst.Op {
		case OpMove, OpUnm, OpNot, OpLen:
			use(inst.A)
			use(inst.B)
		case OpLoadK, OpLoadBool, OpNewTable:
			use(inst.A)
		case OpLoadNil:
			use(inst.A + inst.B)
		case OpAdd, OpSub, OpMul, OpMod, OpPow, OpDiv, OpIDiv,
			OpBAnd, OpBOr, OpBXor, OpShl, OpShr:
			use(inst.A)
			useRK(inst.B)
			useRK(inst.C)
		case OpGetTable:
			use(inst.A)
			use(inst.B)
			useRK(inst.C)
		case OpSetTable:
			use(inst.A)
			useRK(inst.B)
			useRK(inst.C)
		case OpConcat:
			use(inst.A)
			use(inst.C)
		case OpEq, OpLt, OpLe:
			useRK(inst.B)
			useRK(inst.C)
		case OpTest:
			use(inst.A)
		case OpForPrep, OpForLoop:
			use(inst.A + 3)
		case OpReturn:
			if inst.B > 1 {
				use(inst.A + inst.B - 2)
			}
		}
	}
	return n
}

// CodeSize returns the number of bytecode instructions.
func (p *Proto) CodeSize() uint32 {
	return uint32(len(p.Code))
}

// HasCountedLoop returns true when the function contains a numeric for loop.
func (p *Proto) HasCountedLoop() bool {
	return p.hasForLoop
}

// ExecCount returns how many times the automatic policy has seen this function.
func (p *Proto) ExecCount() uint32 {
	return p.execCount
}

// IncrementExecCount increments the execution counter, saturating at its
// maximum, and returns the new value.
func (p *Proto) IncrementExecCount() uint32 {
	if p.execCount < math.MaxUint32 {
		p.execCount++
	}
	return p.execCount
}

// Artifact returns the compiled-artifact slot of this function.
func (p *Proto) Artifact() *artifact.Artifact {
	return &p.artifact
}

// Close runs the release hook of the compiled artifact. It is safe to call
// more than once and returns the result of the first call.
func (p *Proto) Close() error {
	p.closeOnce.Do(func() {
		runtime.SetFinalizer(p, nil)
		p.closeErr = p.artifact.Release()
	})
	return p.closeErr
}
