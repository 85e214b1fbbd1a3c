package asm

import (
	"fmt"

	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/ravilang/ravijit/internal/codegen"
	"github.com/ravilang/ravijit/internal/symbols"
)

// argRegisters hold the primitive arguments after the state handle, which
// goes in DI. The handle is kept in the callee-saved BX across calls.
var argRegisters = [...]int16{x86.REG_SI, x86.REG_DX, x86.REG_CX, x86.REG_R8, x86.REG_R9}

// Lower assembles prog for amd64. Every primitive call becomes an absolute
// call to the address registered for it in registry.
func Lower(prog *codegen.Program, registry *symbols.Registry) ([]byte, error) {
	a, err := newAssembler()
	if err != nil {
		return nil, err
	}

	n := len(prog.Blocks)
	starts := make([]*obj.Prog, n)
	type pendingJump struct {
		p      *obj.Prog
		target int
	}
	var jumps []pendingJump
	jumpTo := func(inst obj.As, target int) {
		jumps = append(jumps, pendingJump{p: a.jump(inst), target: target})
	}

	emitCall := func(c *codegen.Call) error {
		sym, ok := registry.LookupPrimitive(c.Primitive)
		if !ok {
			return fmt.Errorf("%s is not registered", c.Primitive)
		}
		if len(c.Args) > len(argRegisters) {
			return fmt.Errorf("%s: too many arguments", c.Primitive)
		}
		a.registerToRegister(x86.AMOVQ, x86.REG_BX, x86.REG_DI)
		for i, arg := range c.Args {
			a.constToRegister(x86.AMOVQ, int64(arg), argRegisters[i])
		}
		a.constToRegister(x86.AMOVQ, int64(sym.Address), x86.REG_AX)
		a.toRegister(obj.ACALL, x86.REG_AX)
		return nil
	}

	a.register(x86.APUSHQ, x86.REG_BX)
	a.registerToRegister(x86.AMOVQ, x86.REG_DI, x86.REG_BX)

	for i, b := range prog.Blocks {
		i := i
		a.whenNext(func(p *obj.Prog) { starts[i] = p })

		for j := range b.Calls {
			if err = emitCall(&b.Calls[j]); err != nil {
				return nil, err
			}
		}
		switch t := b.Term; t.Kind {
		case codegen.TermJump:
			if t.Target != i+1 {
				jumpTo(obj.AJMP, t.Target)
			}
		case codegen.TermBranch:
			if err = emitCall(t.Call); err != nil {
				return nil, err
			}
			a.registerToConst(x86.ACMPL, x86.REG_AX, int64(t.Expect))
			jumpTo(x86.AJNE, t.Target)
			if t.Else != i+1 {
				jumpTo(obj.AJMP, t.Else)
			}
		case codegen.TermReturn:
			if err = emitCall(t.Call); err != nil {
				return nil, err
			}
			a.toRegister(x86.APOPQ, x86.REG_BX)
			a.none(obj.ARET)
		}
	}
	// Blocks that emitted nothing start at the trap.
	a.none(x86.AUD2)

	for _, j := range jumps {
		if j.target < 0 || j.target >= n || starts[j.target] == nil {
			return nil, fmt.Errorf("jump to block %d has no destination", j.target)
		}
		j.p.To.SetTarget(starts[j.target])
	}
	return a.assemble(), nil
}
