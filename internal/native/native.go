// Package native adapts native code generation and linking backends to the JIT.
//
// A Backend turns the text produced by the code generator into directly callable
// native code. Each compilation attempt runs in its own Context so that a failed
// attempt can release everything it allocated, while the Backend itself lives as
// long as the JIT state that created it.
package native

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ravilang/ravijit/internal/symbols"
)

// ImportModule is the only module name generated code may import symbols from.
const ImportModule = "env"

// Backend is a native code generation and linking engine.
type Backend interface {
	// Name returns the name the backend was registered with.
	Name() string

	// NewContext opens a context for one compilation attempt.
	NewContext() (Context, error)

	// Close tears down the backend. Functions linked by this backend must not be
	// called afterwards.
	Close() error
}

// Import is an external symbol referenced by a loaded translation unit.
type Import struct {
	Module, Name string
}

// Context is a compilation context owned by one attempt.
//
// Until Link succeeds the caller must Close the context. After Link succeeds the
// returned Function owns the context, and closing the context releases the Function.
type Context interface {
	// Load parses and compiles code as a self-contained translation unit.
	Load(code []byte) error

	// Exports returns the names of all callable entries of the loaded unit.
	Exports() []string

	// Imports returns every external symbol referenced by the loaded unit.
	Imports() []Import

	// Link binds every import to the corresponding resolved symbol, which is
	// given in the same order as Imports, and returns the entry named entry.
	Link(entry string, resolved []*symbols.Symbol) (Function, error)

	// Close releases all resources held by this context.
	Close() error
}

// Function is a linked native function taking a Lua state handle.
type Function interface {
	// Call runs the function and returns the number of results it produced.
	Call(l int64) (int32, error)
}

// Factory creates a Backend.
type Factory func() (Backend, error)

var (
	factoriesMu sync.Mutex
	factories   = map[string]Factory{}
)

// ErrUnknownBackend is returned by New when no backend is registered under the name.
var ErrUnknownBackend = errors.New("unknown native backend")

// Register makes a backend available under name. This is called from init functions
// of backend packages, which are compiled in depending on the platform.
func Register(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, ok := factories[name]; ok {
		panic(fmt.Sprintf("BUG: native backend %q registered twice", name))
	}
	factories[name] = f
}

// New creates the backend registered under name.
func New(name string) (Backend, error) {
	factoriesMu.Lock()
	f, ok := factories[name]
	factoriesMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, name, Backends())
	}
	return f()
}

// Backends returns the names of all registered backends in sorted order.
func Backends() []string {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	ret := make([]string, 0, len(factories))
	for name := range factories {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// preferredBackends is the order Default picks from.
var preferredBackends = []string{"wasmtime", "wasmer"}

// Default returns the most preferred registered backend, or an empty string if
// none is compiled in.
func Default() string {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	for _, name := range preferredBackends {
		if _, ok := factories[name]; ok {
			return name
		}
	}
	return ""
}
