//go:build amd64 && cgo && !windows

// Package wasmer registers the "wasmer" native backend.
package wasmer

import (
	"errors"
	"fmt"
	"math"

	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/ravilang/ravijit/internal/native"
	"github.com/ravilang/ravijit/internal/symbols"
)

// Name is the name this backend is registered with.
const Name = "wasmer"

func init() {
	native.Register(Name, func() (native.Backend, error) { return New(), nil })
}

// New returns a backend using the default wasmer engine.
func New() native.Backend {
	return &backend{engine: wasmer.NewEngine()}
}

type backend struct {
	engine *wasmer.Engine
}

func (b *backend) Name() string {
	return Name
}

func (b *backend) NewContext() (native.Context, error) {
	if b.engine == nil {
		return nil, errors.New("wasmer: backend closed")
	}
	return &context{store: wasmer.NewStore(b.engine)}, nil
}

func (b *backend) Close() error {
	b.engine = nil
	return nil
}

type context struct {
	store    *wasmer.Store
	module   *wasmer.Module
	instance *wasmer.Instance

	// lastErr is the error returned by the primitive that trapped the current call.
	lastErr error
}

func (c *context) Load(code []byte) error {
	if c.store == nil {
		return errors.New("wasmer: context closed")
	}
	wasm, err := wasmer.Wat2Wasm(string(code))
	if err != nil {
		return err
	}
	c.module, err = wasmer.NewModule(c.store, wasm)
	return err
}

func (c *context) Exports() (ret []string) {
	if c.module == nil {
		return
	}
	for _, e := range c.module.Exports() {
		if e.Type().Kind() == wasmer.FUNCTION {
			ret = append(ret, e.Name())
		}
	}
	return
}

func (c *context) Imports() (ret []native.Import) {
	if c.module == nil {
		return
	}
	for _, i := range c.module.Imports() {
		ret = append(ret, native.Import{Module: i.Module(), Name: i.Name()})
	}
	return
}

func (c *context) Link(entry string, resolved []*symbols.Symbol) (native.Function, error) {
	if c.module == nil {
		return nil, errors.New("wasmer: nothing loaded")
	}
	externs := make(map[string]wasmer.IntoExtern, len(resolved))
	for _, s := range resolved {
		externs[s.Name] = c.hostFunc(s)
	}
	importObject := wasmer.NewImportObject()
	importObject.Register(native.ImportModule, externs)

	instance, err := wasmer.NewInstance(c.module, importObject)
	if err != nil {
		return nil, err
	}
	fn, err := instance.Exports.GetRawFunction(entry)
	if err != nil {
		instance.Close()
		return nil, err
	} else if fn == nil {
		instance.Close()
		return nil, fmt.Errorf("%s is not an exported function", entry)
	}
	c.instance = instance
	return &function{c: c, fn: fn}, nil
}

func (c *context) hostFunc(s *symbols.Symbol) *wasmer.Function {
	sig, impl := s.Signature, s.Func
	ty := wasmer.NewFunctionType(valueTypes(sig.Params), valueTypes(sig.Results))
	return wasmer.NewFunction(c.store, ty, func(args []wasmer.Value) ([]wasmer.Value, error) {
		slots := make([]uint64, len(args))
		for i, a := range args {
			slots[i] = toSlot(a)
		}
		results, err := impl(slots)
		if err != nil {
			c.lastErr = err
			return nil, err
		}
		ret := make([]wasmer.Value, len(sig.Results))
		for i, t := range sig.Results {
			ret[i] = fromSlot(t, results[i])
		}
		return ret, nil
	})
}

func (c *context) Close() error {
	if c.store == nil {
		return errors.New("wasmer: context closed twice")
	}
	if instance := c.instance; instance != nil {
		instance.Close()
	}
	c.instance = nil
	if mod := c.module; mod != nil {
		mod.Close()
	}
	c.module = nil
	c.store.Close()
	c.store = nil
	return nil
}

type function struct {
	c  *context
	fn *wasmer.Function
}

func (f *function) Call(l int64) (int32, error) {
	if f.c.store == nil {
		return 0, errors.New("wasmer: function released")
	}
	f.c.lastErr = nil
	result, err := f.fn.Call(l)
	if err != nil {
		if f.c.lastErr != nil {
			err, f.c.lastErr = f.c.lastErr, nil
		}
		return 0, err
	}
	return result.(int32), nil
}

func valueTypes(ts []symbols.ValueType) []*wasmer.ValueType {
	kinds := make([]wasmer.ValueKind, len(ts))
	for i, t := range ts {
		switch t {
		case symbols.ValueTypeI32:
			kinds[i] = wasmer.I32
		case symbols.ValueTypeI64:
			kinds[i] = wasmer.I64
		case symbols.ValueTypeF64:
			kinds[i] = wasmer.F64
		default:
			panic(fmt.Sprintf("BUG: unsupported value type %s", t))
		}
	}
	return wasmer.NewValueTypes(kinds...)
}

func toSlot(v wasmer.Value) uint64 {
	switch v.Kind() {
	case wasmer.I32:
		return uint64(uint32(v.I32()))
	case wasmer.I64:
		return uint64(v.I64())
	case wasmer.F64:
		return math.Float64bits(v.F64())
	}
	panic(fmt.Sprintf("BUG: unsupported value kind %v", v.Kind()))
}

func fromSlot(t symbols.ValueType, slot uint64) wasmer.Value {
	switch t {
	case symbols.ValueTypeI32:
		return wasmer.NewI32(int32(uint32(slot)))
	case symbols.ValueTypeI64:
		return wasmer.NewI64(int64(slot))
	case symbols.ValueTypeF64:
		return wasmer.NewF64(math.Float64frombits(slot))
	}
	panic(fmt.Sprintf("BUG: unsupported value type %s", t))
}
