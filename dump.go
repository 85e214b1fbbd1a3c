package ravijit

import (
	"fmt"
	"io"

	"github.com/ravilang/ravijit/internal/asm"
	"github.com/ravilang/ravijit/internal/codegen"
	"github.com/ravilang/ravijit/vm"
)

// dumpName is the entry name used for code generated only to be printed.
const dumpName = "jit_function"

// DumpIR writes the code generated for p to w, annotated with the bytecode it
// came from. Nothing is compiled and the artifact of p is left alone.
func (s *State) DumpIR(w io.Writer, p *vm.Proto) error {
	if !s.live() {
		return ErrNotInitialized
	}
	code, err := s.generator.Generate(p, s.dumpOptions(), dumpName)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", code)
	return err
}

// DumpASM lowers p to amd64 machine code calling the registered primitives
// directly and writes its disassembly to w.
func (s *State) DumpASM(w io.Writer, p *vm.Proto) error {
	if !s.live() {
		return ErrNotInitialized
	}
	prog, err := codegen.New(s.registry).Lower(p, dumpName, s.dumpOptions())
	if err != nil {
		return err
	}
	code, err := asm.Lower(prog, s.registry)
	if err != nil {
		return err
	}
	return asm.Disassemble(w, code)
}

func (s *State) dumpOptions() codegen.Options {
	return codegen.Options{OptLevel: s.optLevel, Validate: s.validation, Annotate: true}
}
