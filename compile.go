package ravijit

import (
	"fmt"

	"github.com/docker/go-units"
	"github.com/rs/zerolog"

	"github.com/ravilang/ravijit/internal/artifact"
	"github.com/ravilang/ravijit/internal/codegen"
	"github.com/ravilang/ravijit/internal/native"
	"github.com/ravilang/ravijit/internal/symbols"
	"github.com/ravilang/ravijit/vm"
)

// CodeGenerator translates a function into code for the native backend.
//
// Note: codegen.Generator is the implementation used unless a test overrides it.
type CodeGenerator interface {
	// CanCompile returns an error when p contains constructs that can never be
	// translated. It must not have side effects.
	CanCompile(p *vm.Proto) error

	// Generate translates p into a translation unit exporting one entry called name.
	Generate(p *vm.Proto, opts codegen.Options, name string) ([]byte, error)
}

// NativeCompiler turns generated code into a callable entry point.
//
// Note: native.Adapter is the implementation.
type NativeCompiler interface {
	LinkAndGenerate(code []byte, name string, registry *symbols.Registry) (*native.EntryPoint, error)

	// Close releases every entry point still alive and the backend.
	Close() error
}

var (
	_ CodeGenerator  = (*codegen.Generator)(nil)
	_ NativeCompiler = (*native.Adapter)(nil)
)

// CompileRequest parameterizes one call to State.Compile.
type CompileRequest struct {
	// Manual bypasses the automatic thresholds. A manual request also echoes the
	// generated code to the diagnostics writer when the verbosity is non-zero.
	Manual bool

	// Options are passed to the code generator, except OptLevel and Validate,
	// which always come from the State.
	Options codegen.Options
}

// Compile compiles p if the policy allows it and returns true when p is
// compiled afterwards. Failures are never returned: a function that failed to
// compile once is marked uncompilable and is interpreted from then on.
//
// The policy, in order:
//   - a compiled function returns true while its entry point is valid. An
//     uncompilable or destroyed one returns false. Neither touches the backend.
//   - nothing is compiled when the State is nil, shut down or disabled.
//   - a manual request compiles.
//   - in auto mode, a function with a counted loop compiles, as does one with
//     more instructions than MinCodeSize. Otherwise its execution counter is
//     incremented and it compiles once the counter reaches MinExecCount.
func (s *State) Compile(p *vm.Proto, req CompileRequest) bool {
	a := p.Artifact()
	if a.Destroyed() {
		return false
	}
	switch a.Status() {
	case artifact.StatusCompiled:
		// False once the backend released the entry, e.g. after Shutdown.
		return a.Compiled()
	case artifact.StatusUncompilable:
		return false
	}

	if !s.live() || !s.enabled || !s.shouldCompile(p, req) {
		return false
	}
	return s.compile(p, req)
}

func (s *State) shouldCompile(p *vm.Proto, req CompileRequest) bool {
	switch {
	case req.Manual:
		return true
	case !s.autoMode:
		return false
	case p.HasCountedLoop():
		return true
	case p.CodeSize() > s.minCodeSize:
		return true
	}
	return p.IncrementExecCount() >= s.minExecCount
}

func (s *State) compile(p *vm.Proto, req CompileRequest) bool {
	if err := s.generator.CanCompile(p); err != nil {
		s.fail(p, "", err)
		return false
	}

	guard, err := s.acquireGuard()
	if err != nil {
		s.event(2, zerolog.DebugLevel).Str("unit", p.Name).Msg("compilation skipped: " + err.Error())
		return false
	}
	defer guard.release()

	name := s.nextArtifactName()
	opts := req.Options
	opts.OptLevel, opts.Validate = s.optLevel, s.validation
	code, err := s.generator.Generate(p, opts, name)
	if err != nil {
		s.fail(p, name, err)
		return false
	}
	if req.Manual && s.verbosity > 0 {
		_, _ = fmt.Fprintf(s.diagnostics, "%s\n", code)
	}

	entry, err := s.linker.LinkAndGenerate(code, name, s.registry)
	if err != nil {
		s.fail(p, name, err)
		return false
	}
	if err = p.Artifact().MarkCompiled(entry); err != nil {
		_ = entry.Release()
		s.fail(p, name, err)
		return false
	}

	s.event(2, zerolog.DebugLevel).
		Str("unit", p.Name).
		Str("name", name).
		Str("size", units.HumanSize(float64(len(code)))).
		Msg("compiled")
	return true
}

// fail marks p uncompilable and reports err.
func (s *State) fail(p *vm.Proto, name string, err error) {
	_ = p.Artifact().MarkUncompilable()
	s.event(1, zerolog.WarnLevel).
		Str("unit", p.Name).
		Str("name", name).
		Str("reason", err.Error()).
		Msg("compilation failed")
}

// CompileMany compiles each function independently and returns true when at
// least one of them is compiled afterwards.
func (s *State) CompileMany(ps []*vm.Proto, req CompileRequest) bool {
	ok := false
	for _, p := range ps {
		if s.Compile(p, req) {
			ok = true
		}
	}
	return ok
}

// AutoCompile implements vm.Compiler.
func (s *State) AutoCompile(p *vm.Proto) bool {
	return s.Compile(p, CompileRequest{})
}
