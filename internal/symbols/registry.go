// Package symbols holds the fixed table of runtime primitives that generated code links against.
package symbols

import (
	"errors"
	"fmt"
	"reflect"
)

// NativeAddress is the address of the native code implementing a primitive.
type NativeAddress uintptr

// Func is the implementation of a primitive.
//
// args holds one raw slot per Signature.Params, and the returned slice must have
// one raw slot per Signature.Results. A non-nil error aborts the generated code
// that called the primitive and is surfaced to the caller of the compiled entry.
type Func func(args []uint64) ([]uint64, error)

// Implementations binds every Primitive to its Func.
type Implementations [PrimitiveCount]Func

// Symbol is one entry of the Registry.
type Symbol struct {
	Primitive Primitive
	Name      string
	Signature Signature
	Address   NativeAddress
	Func      Func
}

// Registry is an immutable, ordered name to primitive table.
//
// A Registry is safe for concurrent use as nothing mutates it after NewRegistry returns.
type Registry struct {
	symbols []Symbol
	byName  map[string]int
}

// ErrMissingImplementation is returned by NewRegistry when a Primitive has no Func.
var ErrMissingImplementation = errors.New("missing primitive implementation")

// NewRegistry builds the registry from the implementations of every Primitive.
func NewRegistry(impls Implementations) (*Registry, error) {
	r := &Registry{
		symbols: make([]Symbol, 0, PrimitiveCount),
		byName:  make(map[string]int, PrimitiveCount),
	}
	for p := Primitive(0); p < PrimitiveCount; p++ {
		name := primitiveTable[p].name
		if name == "" {
			return nil, fmt.Errorf("primitive %d has no name", uint16(p))
		}
		fn := impls[p]
		if fn == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingImplementation, name)
		}
		if _, ok := r.byName[name]; ok {
			return nil, fmt.Errorf("duplicate primitive name: %s", name)
		}
		r.byName[name] = len(r.symbols)
		r.symbols = append(r.symbols, Symbol{
			Primitive: p,
			Name:      name,
			Signature: primitiveTable[p].sig,
			Address:   NativeAddress(reflect.ValueOf(fn).Pointer()),
			Func:      fn,
		})
	}
	return r, nil
}

// Lookup returns the symbol whose name exactly matches name.
func (r *Registry) Lookup(name string) (*Symbol, bool) {
	if r == nil {
		return nil, false
	}
	i, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return &r.symbols[i], true
}

// LookupPrimitive returns the symbol of the given primitive.
func (r *Registry) LookupPrimitive(p Primitive) (*Symbol, bool) {
	if r == nil || p >= PrimitiveCount {
		return nil, false
	}
	return &r.symbols[p], true
}

// Len returns the number of symbols.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.symbols)
}

// Symbols returns a copy of all symbols in enumeration order.
func (r *Registry) Symbols() []Symbol {
	if r == nil {
		return nil
	}
	ret := make([]Symbol, len(r.symbols))
	copy(ret, r.symbols)
	return ret
}
