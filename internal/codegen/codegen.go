// Package codegen translates bytecode into self-contained WebAssembly text
// units that a native backend compiles and links against the symbol registry.
//
// Translation goes bytecode -> basic blocks -> Program -> text. Every
// bytecode instruction becomes a call to a runtime primitive, and control flow
// is a dispatch loop over block indices.
package codegen

import (
	"errors"
	"fmt"

	"github.com/ravilang/ravijit/internal/symbols"
	"github.com/ravilang/ravijit/vm"
)

// Options control a single translation.
type Options struct {
	// OptLevel zero dispatches every edge through the loop. One and above let
	// fall-through edges run straight into the next block.
	OptLevel uint8
	// Validate checks the lowered Program before rendering it.
	Validate bool
	// Annotate interleaves the bytecode as comments.
	Annotate bool
}

// ErrUnsupported matches every *UnsupportedError with errors.Is.
var ErrUnsupported = errors.New("unsupported bytecode")

// UnsupportedError is returned when a function contains something the
// generator cannot translate. It is permanent for that function.
type UnsupportedError struct {
	PC     int
	Op     vm.Opcode
	Reason string
}

// Error implements error.
func (e *UnsupportedError) Error() string {
	if e.PC < 0 {
		return fmt.Sprintf("%s: %s", ErrUnsupported, e.Reason)
	}
	return fmt.Sprintf("%s at pc %d (%s): %s", ErrUnsupported, e.PC, e.Op, e.Reason)
}

// Is allows errors.Is(err, ErrUnsupported).
func (e *UnsupportedError) Is(target error) bool {
	return target == ErrUnsupported
}

// Generator produces code for the registry it was created with.
type Generator struct {
	registry *symbols.Registry
}

// New returns a Generator whose output only imports symbols of registry.
func New(registry *symbols.Registry) *Generator {
	return &Generator{registry: registry}
}

// CanCompile reports, without generating anything, whether p can be translated.
func (g *Generator) CanCompile(p *vm.Proto) error {
	return check(p)
}

// Lower translates p into a Program.
func (g *Generator) Lower(p *vm.Proto, name string, opts Options) (*Program, error) {
	if err := check(p); err != nil {
		return nil, err
	}
	prog := lower(p, name)
	if opts.Validate {
		if err := g.validate(prog); err != nil {
			return nil, err
		}
	}
	return prog, nil
}

// Generate translates p into a WebAssembly text module exporting one function
// called name with signature (param i64) (result i32). The parameter is the
// Lua state handle and the result is the number of values returned.
func (g *Generator) Generate(p *vm.Proto, opts Options, name string) ([]byte, error) {
	prog, err := g.Lower(p, name, opts)
	if err != nil {
		return nil, err
	}
	return render(prog, opts), nil
}
