package codegen

import "github.com/ravilang/ravijit/vm"

func unsupported(pc int, op vm.Opcode, reason string) error {
	return &UnsupportedError{PC: pc, Op: op, Reason: reason}
}

// check rejects functions the generator cannot translate.
func check(p *vm.Proto) error {
	n := len(p.Code)
	if n == 0 {
		return &UnsupportedError{PC: -1, Reason: "empty function"}
	}
	inRange := func(target int) bool { return target >= 0 && target < n }
	constant := func(k int32) bool { return k >= 0 && int(k) < len(p.Constants) }
	rk := func(x int32) bool { return !vm.IsK(x) || constant(vm.IndexK(x)) }

	for pc, inst := range p.Code {
		op := inst.Op
		switch {
		case !op.Valid():
			return unsupported(pc, op, "invalid opcode")
		case op == vm.OpConcat:
			return unsupported(pc, op, "string concatenation is not compiled")
		case op.IsJump() && !inRange(inst.Jump(pc)):
			return unsupported(pc, op, "jump target out of range")
		case op.IsTest() && pc+2 > n-1:
			return unsupported(pc, op, "conditional skip out of range")
		case op == vm.OpLoadBool && inst.C != 0 && pc+2 > n-1:
			return unsupported(pc, op, "conditional skip out of range")
		case op == vm.OpLoadK && !constant(inst.B):
			return unsupported(pc, op, "constant out of range")
		case op == vm.OpReturn && inst.B == 0:
			return unsupported(pc, op, "variable number of results")
		}
		switch op {
		case vm.OpAdd, vm.OpSub, vm.OpMul, vm.OpMod, vm.OpPow, vm.OpDiv, vm.OpIDiv,
			vm.OpBAnd, vm.OpBOr, vm.OpBXor, vm.OpShl, vm.OpShr,
			vm.OpEq, vm.OpLt, vm.OpLe, vm.OpSetTable:
			if !rk(inst.B) || !rk(inst.C) {
				return unsupported(pc, op, "constant out of range")
			}
		case vm.OpGetTable:
			if !rk(inst.C) {
				return unsupported(pc, op, "constant out of range")
			}
		}
	}

	switch last := p.Code[n-1]; last.Op {
	case vm.OpReturn, vm.OpJmp:
	default:
		return unsupported(n-1, last.Op, "control falls off the end")
	}
	return nil
}
