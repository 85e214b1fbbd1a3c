// Package ravijit is the adaptive JIT compilation orchestrator of the vm package.
//
// A State is attached to one VM instance (vm.Global) by Initialize. From then on
// the interpreter offers every function it is about to run to State.AutoCompile,
// and embedders can request compilation with State.Compile. Whether a function
// is compiled is decided per call by the policy in State.Compile, and the
// outcome is recorded in the function's artifact so it is never attempted twice.
package ravijit

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/ravilang/ravijit/internal/codegen"
	"github.com/ravilang/ravijit/internal/native"
	"github.com/ravilang/ravijit/internal/symbols"
	"github.com/ravilang/ravijit/vm"
)

var (
	// ErrAlreadyInitialized is returned by Initialize when the VM already has a JIT state.
	ErrAlreadyInitialized = errors.New("jit already initialized")
	// ErrNotInitialized is returned by operations which need a live State.
	ErrNotInitialized = errors.New("jit not initialized")
	// ErrNoBackend is returned by Initialize when no native backend is compiled in.
	ErrNoBackend = errors.New("no native backend available")
	// ErrNilGlobal is returned by Initialize when there is no VM to attach to.
	ErrNilGlobal = errors.New("nil vm global")
)

// State is the JIT state of one VM instance.
//
// A State is not safe for concurrent use: it belongs to the single thread of
// execution of its VM, like the interpreter calling into it.
type State struct {
	g *vm.Global

	enabled      bool
	autoMode     bool
	minCodeSize  uint32
	minExecCount uint32
	optLevel     uint8
	validation   bool
	verbosity    uint8

	nextArtifactID uint64
	// compiling is held by compileGuard for one in-flight compilation.
	compiling bool

	backend   native.Backend
	linker    NativeCompiler
	generator CodeGenerator
	registry  *symbols.Registry

	logger      zerolog.Logger
	diagnostics io.Writer

	closed bool
}

var _ vm.Compiler = (*State)(nil)

// Initialize creates the JIT state of g from config, which defaults to NewConfig
// when nil, and attaches it so the interpreter consults it from now on.
//
// This fails with ErrAlreadyInitialized when g already has a State, and when
// the native backend cannot be created.
func Initialize(g *vm.Global, config *Config) (*State, error) {
	if g == nil {
		return nil, ErrNilGlobal
	}
	if config == nil {
		config = NewConfig()
	}
	// Checked early so no backend is created for an initialized VM. The
	// attachment below is what decides.
	if g.Compiler() != nil {
		return nil, ErrAlreadyInitialized
	}

	newBackend := config.newBackend
	if newBackend == nil {
		name := config.backend
		if name == "" {
			if name = native.Default(); name == "" {
				return nil, ErrNoBackend
			}
		}
		newBackend = func() (native.Backend, error) { return native.New(name) }
	}
	backend, err := newBackend()
	if err != nil {
		return nil, fmt.Errorf("create native backend: %w", err)
	}

	registry := vm.Registry()
	generator := config.generator
	if generator == nil {
		generator = codegen.New(registry)
	}

	s := &State{
		g:            g,
		enabled:      config.enabled,
		autoMode:     config.autoMode,
		minCodeSize:  config.minCodeSize,
		minExecCount: config.minExecCount,
		optLevel:     config.optLevel,
		validation:   config.validation,
		verbosity:    config.verbosity,
		backend:      backend,
		linker:       native.NewAdapter(backend),
		generator:    generator,
		registry:     registry,
		logger:       zerolog.New(config.diagnostics).With().Str("vm", g.ID()).Logger(),
		diagnostics:  config.diagnostics,
	}
	if !g.AttachCompiler(s) {
		_ = s.linker.Close()
		return nil, ErrAlreadyInitialized
	}

	s.event(1, zerolog.InfoLevel).
		Str("backend", backend.Name()).
		Bool("auto", s.autoMode).
		Msg("jit initialized")
	return s, nil
}

// FromGlobal returns the State attached to g, or nil.
func FromGlobal(g *vm.Global) *State {
	s, _ := g.Compiler().(*State)
	return s
}

// Shutdown detaches the State from its VM and tears down the native backend,
// which releases every function it compiled. Those functions are interpreted
// afterwards.
//
// Calling Shutdown more than once, or on a nil State, does nothing.
func (s *State) Shutdown() error {
	if !s.live() {
		return nil
	}
	s.closed = true
	s.g.DetachCompiler(s)
	err := s.linker.Close()
	s.event(1, zerolog.InfoLevel).Err(err).Msg("jit shut down")
	return err
}

// live returns true when s is non-nil and not shut down.
func (s *State) live() bool {
	return s != nil && !s.closed
}

// event returns a log event at level when the verbosity is at least verbosity.
// A nil event discards everything written to it.
func (s *State) event(verbosity uint8, level zerolog.Level) *zerolog.Event {
	if s.verbosity < verbosity {
		return nil
	}
	return s.logger.WithLevel(level)
}

// nextArtifactName returns a name unique within this State. Every attempt
// consumes a name, including failed ones.
func (s *State) nextArtifactName() string {
	name := fmt.Sprintf("jit%d", s.nextArtifactID)
	s.nextArtifactID++
	return name
}

// Backend returns the name of the native backend, or an empty string when not live.
func (s *State) Backend() string {
	if !s.live() {
		return ""
	}
	return s.backend.Name()
}

// Enabled returns false when compilation is turned off.
func (s *State) Enabled() bool {
	return s.live() && s.enabled
}

// SetEnabled turns compilation on or off.
func (s *State) SetEnabled(enabled bool) {
	if s.live() {
		s.enabled = enabled
	}
}

// AutoMode returns true when the interpreter compiles functions by itself.
func (s *State) AutoMode() bool {
	return s.live() && s.autoMode
}

// SetAutoMode is documented on Config.WithAutoMode.
func (s *State) SetAutoMode(autoMode bool) {
	if s.live() {
		s.autoMode = autoMode
	}
}

// MinCodeSize returns the instruction count above which auto mode compiles on
// the first call, or zero when the State is not live.
func (s *State) MinCodeSize() uint32 {
	if !s.live() {
		return 0
	}
	return s.minCodeSize
}

// SetMinCodeSize is documented on Config.WithMinCodeSize.
func (s *State) SetMinCodeSize(minCodeSize uint32) {
	if s.live() {
		s.minCodeSize = minCodeSize
	}
}

// MinExecCount returns the number of calls after which auto mode compiles, or
// zero when the State is not live.
func (s *State) MinExecCount() uint32 {
	if !s.live() {
		return 0
	}
	return s.minExecCount
}

// SetMinExecCount is documented on Config.WithMinExecCount.
func (s *State) SetMinExecCount(minExecCount uint32) {
	if s.live() {
		s.minExecCount = minExecCount
	}
}

// OptLevel returns the code generator optimization level, or zero when the
// State is not live.
func (s *State) OptLevel() uint8 {
	if !s.live() {
		return 0
	}
	return s.optLevel
}

// SetOptLevel is documented on Config.WithOptLevel.
func (s *State) SetOptLevel(optLevel uint8) {
	if s.live() {
		s.optLevel = optLevel
	}
}

// Validation returns true when generated programs are validated. It is false
// when the State is not live.
func (s *State) Validation() bool {
	return s.live() && s.validation
}

// SetValidation is documented on Config.WithValidation.
func (s *State) SetValidation(validation bool) {
	if s.live() {
		s.validation = validation
	}
}

// Verbosity returns the diagnostics verbosity, or zero when the State is not live.
func (s *State) Verbosity() uint8 {
	if !s.live() {
		return 0
	}
	return s.verbosity
}

// SetVerbosity is documented on Config.WithVerbosity.
func (s *State) SetVerbosity(verbosity uint8) {
	if s.live() {
		s.verbosity = verbosity
	}
}
