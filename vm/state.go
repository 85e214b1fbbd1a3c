package vm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ravilang/ravijit/internal/artifact"
)

// Compiler is attached to a Global to compile functions as the interpreter
// reaches them.
type Compiler interface {
	// AutoCompile applies the automatic compilation policy to p and returns
	// true when p is compiled afterwards.
	AutoCompile(p *Proto) bool
}

// Global is the state shared by all threads of one VM instance.
type Global struct {
	id uuid.UUID

	mu       sync.Mutex
	compiler Compiler
}

// NewGlobal returns a new VM instance with a random identity.
func NewGlobal() *Global {
	return &Global{id: uuid.New()}
}

// ID returns the identity of this VM instance, used to tag diagnostics.
func (g *Global) ID() string {
	return g.id.String()
}

// Compiler returns the attached compiler or nil.
func (g *Global) Compiler() Compiler {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.compiler
}

// SetCompiler attaches c, replacing any previous compiler. A nil c detaches.
func (g *Global) SetCompiler(c Compiler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.compiler = c
}

// AttachCompiler attaches c unless a compiler is already attached, and returns
// true when it did.
func (g *Global) AttachCompiler(c Compiler) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.compiler != nil {
		return false
	}
	g.compiler = c
	return true
}

// DetachCompiler detaches c if it is the attached compiler, and returns true
// when it did.
func (g *Global) DetachCompiler(c Compiler) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.compiler != c {
		return false
	}
	g.compiler = nil
	return true
}

// MaxCallDepth bounds the nesting of State.Call.
const MaxCallDepth = 200

// State is a thread of execution. Compiled code refers to it by Handle.
type State struct {
	g      *Global
	handle int64
	ci     *callInfo
	depth  int
	closed bool
}

// callInfo is one activation. For Lua functions the first MaxStack slots of
// stack are the registers; the embedding API operates on the whole slice.
type callInfo struct {
	proto   *Proto
	stack   []Value
	results []Value
	// returned is set by luaD_poscall.
	returned bool
	prev     *callInfo
}

var handles = struct {
	sync.Mutex
	next   int64
	states map[int64]*State
}{states: map[int64]*State{}}

// NewState returns a new thread of g and registers its handle.
func NewState(g *Global) *State {
	s := &State{g: g, ci: &callInfo{}}
	handles.Lock()
	handles.next++
	s.handle = handles.next
	handles.states[s.handle] = s
	handles.Unlock()
	return s
}

func stateOf(h int64) (*State, error) {
	handles.Lock()
	s, ok := handles.states[h]
	handles.Unlock()
	if !ok {
		return nil, ErrInvalidHandle
	}
	return s, nil
}

// Global returns the VM instance of s.
func (s *State) Global() *Global {
	return s.g
}

// Handle returns the value compiled code receives as its state argument.
func (s *State) Handle() int64 {
	return s.handle
}

// Close unregisters the handle. Compiled code called afterwards fails with ErrInvalidHandle.
func (s *State) Close() {
	if s.closed {
		return
	}
	s.closed = true
	handles.Lock()
	delete(handles.states, s.handle)
	handles.Unlock()
}

// Call runs p with args and returns its results.
//
// Before running an uncompiled function the attached Compiler, if any, is
// given the chance to compile it. Compiled functions are entered through
// their native entry point and everything else is interpreted.
func (s *State) Call(p *Proto, args ...Value) ([]Value, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.depth >= MaxCallDepth {
		return nil, ErrStackOverflow
	}

	a := p.Artifact()
	if c := s.g.Compiler(); c != nil && a.Status() == artifact.StatusUnattempted {
		c.AutoCompile(p)
	}

	ci := &callInfo{proto: p, stack: make([]Value, p.MaxStack), prev: s.ci}
	for i := 0; i < p.NumParams && i < len(args); i++ {
		ci.stack[i] = args[i]
	}
	s.ci = ci
	s.depth++
	defer func() {
		s.ci = ci.prev
		s.depth--
	}()

	if a.Compiled() {
		n, err := a.Invoke(s.handle)
		if errors.Is(err, artifact.ErrReleased) {
			// The JIT was shut down underneath this function.
			return s.execute(ci)
		} else if err != nil {
			return nil, err
		}
		if !ci.returned || int(n) != len(ci.results) {
			return nil, &RuntimeError{Function: p.Name, PC: -1, Msg: fmt.Sprintf("compiled code returned %d without a matching return", n)}
		}
		return ci.results, nil
	}
	return s.execute(ci)
}

func (s *State) runtimeError(err error) error {
	if _, ok := err.(*RuntimeError); ok {
		return err
	}
	name := "?"
	if s.ci.proto != nil {
		name = s.ci.proto.Name
	}
	return &RuntimeError{Function: name, PC: -1, Msg: err.Error()}
}

func (ci *callInfo) reg(r int32) (*Value, error) {
	if r < 0 || int(r) >= len(ci.stack) || ci.proto == nil || int(r) >= ci.proto.MaxStack {
		return nil, fmt.Errorf("register %d out of range", r)
	}
	return &ci.stack[r], nil
}

func (ci *callInfo) rk(x int32) (Value, error) {
	if IsK(x) {
		k := IndexK(x)
		if ci.proto == nil || int(k) >= len(ci.proto.Constants) {
			return Nil, fmt.Errorf("constant %d out of range", k)
		}
		return ci.proto.Constants[k], nil
	}
	r, err := ci.reg(x)
	if err != nil {
		return Nil, err
	}
	return *r, nil
}

func (ci *callInfo) poscall(ra, n int32) (int32, error) {
	if n < 0 || ra < 0 || int(ra)+int(n) > len(ci.stack) {
		return 0, fmt.Errorf("invalid return of %d values from register %d", n, ra)
	}
	ci.results = append([]Value(nil), ci.stack[ra:ra+n]...)
	ci.returned = true
	return n, nil
}
