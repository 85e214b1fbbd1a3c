package vm

import "fmt"

// execute interprets ci.proto until it returns.
func (s *State) execute(ci *callInfo) ([]Value, error) {
	p := ci.proto
	r := ci.stack
	rk := func(x int32) Value {
		if IsK(x) {
			return p.Constants[IndexK(x)]
		}
		return r[x]
	}

	pc := 0
	for {
		if pc < 0 || pc >= len(p.Code) {
			return nil, &RuntimeError{Function: p.Name, PC: pc, Msg: "pc out of range"}
		}
		inst := p.Code[pc]
		pc++

		switch op := inst.Op; op {
		case OpMove:
			r[inst.A] = r[inst.B]
		case OpLoadK:
			r[inst.A] = p.Constants[inst.B]
		case OpLoadNil:
			for i := inst.A; i <= inst.A+inst.B; i++ {
				r[i] = Nil
			}
		case OpLoadBool:
			r[inst.A] = Bool(inst.B != 0)
			if inst.C != 0 {
				pc++
			}
		case OpAdd, OpSub, OpMul, OpMod, OpPow, OpDiv, OpIDiv,
			OpBAnd, OpBOr, OpBXor, OpShl, OpShr:
			aop, _ := op.ArithOp()
			v, err := Arith(aop, rk(inst.B), rk(inst.C))
			if err != nil {
				return nil, p.errorAt(pc-1, err)
			}
			r[inst.A] = v
		case OpUnm:
			v, err := Arith(ArithUnm, r[inst.B], r[inst.B])
			if err != nil {
				return nil, p.errorAt(pc-1, err)
			}
			r[inst.A] = v
		case OpNot:
			r[inst.A] = Bool(!r[inst.B].Truthy())
		case OpLen:
			v, err := Len(r[inst.B])
			if err != nil {
				return nil, p.errorAt(pc-1, err)
			}
			r[inst.A] = v
		case OpNewTable:
			r[inst.A] = TableValue(NewTable(int(inst.B), int(inst.C)))
		case OpGetTable:
			v, err := getTable(r[inst.B], rk(inst.C))
			if err != nil {
				return nil, p.errorAt(pc-1, err)
			}
			r[inst.A] = v
		case OpSetTable:
			if err := setTable(r[inst.A], rk(inst.B), rk(inst.C)); err != nil {
				return nil, p.errorAt(pc-1, err)
			}
		case OpConcat:
			v, err := Concat(r[inst.B : inst.C+1])
			if err != nil {
				return nil, p.errorAt(pc-1, err)
			}
			r[inst.A] = v
		case OpJmp:
			pc += int(inst.B)
		case OpEq:
			if Equal(rk(inst.B), rk(inst.C)) != (inst.A != 0) {
				pc++
			}
		case OpLt, OpLe:
			cmp := LessThan
			if op == OpLe {
				cmp = LessEqual
			}
			res, err := cmp(rk(inst.B), rk(inst.C))
			if err != nil {
				return nil, p.errorAt(pc-1, err)
			}
			if res != (inst.A != 0) {
				pc++
			}
		case OpTest:
			if r[inst.A].Truthy() != (inst.C != 0) {
				pc++
			}
		case OpForPrep:
			if err := forPrep(r[inst.A : inst.A+4]); err != nil {
				return nil, p.errorAt(pc-1, err)
			}
			pc += int(inst.B)
		case OpForLoop:
			if forLoop(r[inst.A : inst.A+4]) {
				pc += int(inst.B)
			}
		case OpReturn:
			n := inst.B - 1
			if n < 0 {
				n = 0
			}
			return append([]Value(nil), r[inst.A:inst.A+n]...), nil
		default:
			return nil, p.errorAt(pc-1, fmt.Errorf("invalid opcode %s", op))
		}
	}
}

func getTable(t, k Value) (Value, error) {
	if t.Type() != TypeTable {
		return Nil, typeError("index", t)
	}
	return t.t.Get(k), nil
}

func setTable(t, k, v Value) error {
	if t.Type() != TypeTable {
		return typeError("index", t)
	}
	return t.t.Set(k, v)
}

func (p *Proto) errorAt(pc int, err error) error {
	return &RuntimeError{Function: p.Name, PC: pc, Msg: err.Error()}
}
