// Package asm lowers codegen Programs to amd64 machine code with golang-asm.
//
// The output is only used for listings: the native backends compile the
// WebAssembly text themselves. Calls are emitted against the registry
// addresses of the primitives so the listing shows what a direct native
// translation of the Program looks like.
package asm

import (
	"fmt"

	goasm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
)

// assembler wraps goasm.Builder.
type assembler struct {
	b *goasm.Builder
	// setBranchTargetOnNext holds branch instructions whose destination is the
	// next instruction added.
	setBranchTargetOnNext []*obj.Prog
	// onNext is called with the next instruction added.
	onNext []func(*obj.Prog)
}

func newAssembler() (*assembler, error) {
	b, err := goasm.NewBuilder("amd64", 1024)
	if err != nil {
		return nil, fmt.Errorf("failed to create a new assembly builder: %w", err)
	}
	return &assembler{b: b}, nil
}

func (a *assembler) newProg() *obj.Prog {
	return a.b.NewProg()
}

func (a *assembler) addInstruction(next *obj.Prog) {
	a.b.AddInstruction(next)
	for _, p := range a.setBranchTargetOnNext {
		p.To.SetTarget(next)
	}
	a.setBranchTargetOnNext = nil
	for _, fn := range a.onNext {
		fn(next)
	}
	a.onNext = nil
}

// whenNext registers fn to receive the next instruction added.
func (a *assembler) whenNext(fn func(*obj.Prog)) {
	a.onNext = append(a.onNext, fn)
}

func (a *assembler) assemble() []byte {
	return a.b.Assemble()
}

func (a *assembler) none(inst obj.As) *obj.Prog {
	p := a.newProg()
	p.As = inst
	a.addInstruction(p)
	return p
}

func (a *assembler) registerToRegister(inst obj.As, from, to int16) {
	p := a.newProg()
	p.As = inst
	p.From.Type = obj.TYPE_REG
	p.From.Reg = from
	p.To.Type = obj.TYPE_REG
	p.To.Reg = to
	a.addInstruction(p)
}

func (a *assembler) constToRegister(inst obj.As, value int64, to int16) {
	p := a.newProg()
	p.As = inst
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = value
	p.To.Type = obj.TYPE_REG
	p.To.Reg = to
	a.addInstruction(p)
}

func (a *assembler) registerToConst(inst obj.As, from int16, value int64) {
	p := a.newProg()
	p.As = inst
	p.From.Type = obj.TYPE_REG
	p.From.Reg = from
	p.To.Type = obj.TYPE_CONST
	p.To.Offset = value
	a.addInstruction(p)
}

func (a *assembler) register(inst obj.As, reg int16) {
	p := a.newProg()
	p.As = inst
	p.From.Type = obj.TYPE_REG
	p.From.Reg = reg
	a.addInstruction(p)
}

func (a *assembler) toRegister(inst obj.As, reg int16) {
	p := a.newProg()
	p.As = inst
	p.To.Type = obj.TYPE_REG
	p.To.Reg = reg
	a.addInstruction(p)
}

func (a *assembler) jump(inst obj.As) *obj.Prog {
	p := a.newProg()
	p.As = inst
	p.To.Type = obj.TYPE_BRANCH
	a.addInstruction(p)
	return p
}
