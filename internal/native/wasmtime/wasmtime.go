//go:build amd64 && cgo

// Package wasmtime registers the "wasmtime" native backend, which compiles generated
// WebAssembly text with Cranelift and binds primitives as host functions.
package wasmtime

import (
	"errors"
	"fmt"
	"math"

	"github.com/bytecodealliance/wasmtime-go"

	"github.com/ravilang/ravijit/internal/native"
	"github.com/ravilang/ravijit/internal/symbols"
)

// Name is the name this backend is registered with.
const Name = "wasmtime"

func init() {
	native.Register(Name, func() (native.Backend, error) { return New(), nil })
}

// New returns a backend with an engine optimizing for speed.
func New() native.Backend {
	cfg := wasmtime.NewConfig()
	cfg.SetCraneliftOptLevel(wasmtime.OptLevelSpeed)
	return &backend{engine: wasmtime.NewEngineWithConfig(cfg)}
}

type backend struct {
	engine *wasmtime.Engine
}

func (b *backend) Name() string {
	return Name
}

func (b *backend) NewContext() (native.Context, error) {
	if b.engine == nil {
		return nil, errors.New("wasmtime: backend closed")
	}
	// A store per attempt: stores cannot drop instances, so sharing one would keep
	// every released function alive until the backend goes away.
	return &context{store: wasmtime.NewStore(b.engine)}, nil
}

func (b *backend) Close() error {
	b.engine = nil
	return nil // wasmtime only closes via finalizer
}

type context struct {
	store    *wasmtime.Store
	module   *wasmtime.Module
	instance *wasmtime.Instance

	// lastErr is the error returned by the primitive that trapped the current call.
	lastErr error
}

func (c *context) Load(code []byte) error {
	if c.store == nil {
		return errors.New("wasmtime: context closed")
	}
	wasm, err := wasmtime.Wat2Wasm(string(code))
	if err != nil {
		return err
	}
	c.module, err = wasmtime.NewModule(c.store.Engine, wasm)
	return err
}

func (c *context) Exports() (ret []string) {
	if c.module == nil {
		return
	}
	for _, e := range c.module.Type().Exports() {
		if e.Type().FuncType() != nil {
			ret = append(ret, e.Name())
		}
	}
	return
}

func (c *context) Imports() (ret []native.Import) {
	if c.module == nil {
		return
	}
	for _, i := range c.module.Type().Imports() {
		imp := native.Import{Module: i.Module()}
		if name := i.Name(); name != nil {
			imp.Name = *name
		}
		ret = append(ret, imp)
	}
	return
}

func (c *context) Link(entry string, resolved []*symbols.Symbol) (native.Function, error) {
	if c.module == nil {
		return nil, errors.New("wasmtime: nothing loaded")
	}
	linker := wasmtime.NewLinker(c.store.Engine)
	for _, s := range resolved {
		if err := linker.Define(native.ImportModule, s.Name, c.hostFunc(s)); err != nil {
			return nil, err
		}
	}

	instance, err := linker.Instantiate(c.store, c.module)
	if err != nil {
		return nil, err
	}
	fn := instance.GetFunc(c.store, entry)
	if fn == nil {
		return nil, fmt.Errorf("%s is not an exported function", entry)
	}
	c.instance = instance
	return &function{c: c, fn: fn}, nil
}

// hostFunc binds s to a host function converting between wasmtime values and raw slots.
func (c *context) hostFunc(s *symbols.Symbol) *wasmtime.Func {
	sig, impl, name := s.Signature, s.Func, s.Name
	return wasmtime.NewFunc(c.store, funcType(sig), func(_ *wasmtime.Caller, args []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
		slots := make([]uint64, len(args))
		for i, a := range args {
			slots[i] = toSlot(a)
		}
		results, err := impl(slots)
		if err != nil {
			c.lastErr = err
			return nil, wasmtime.NewTrap(name + ": " + err.Error())
		}
		ret := make([]wasmtime.Val, len(sig.Results))
		for i, t := range sig.Results {
			ret[i] = fromSlot(t, results[i])
		}
		return ret, nil
	})
}

func (c *context) Close() error {
	if c.store == nil {
		return errors.New("wasmtime: context closed twice")
	}
	c.store, c.module, c.instance = nil, nil, nil
	return nil // wasmtime only closes via finalizer
}

type function struct {
	c  *context
	fn *wasmtime.Func
}

func (f *function) Call(l int64) (int32, error) {
	if f.c.store == nil {
		return 0, errors.New("wasmtime: function released")
	}
	f.c.lastErr = nil
	result, err := f.fn.Call(f.c.store, l)
	if err != nil {
		if f.c.lastErr != nil {
			err, f.c.lastErr = f.c.lastErr, nil
		}
		return 0, err
	}
	return result.(int32), nil
}

func funcType(sig symbols.Signature) *wasmtime.FuncType {
	return wasmtime.NewFuncType(valTypes(sig.Params), valTypes(sig.Results))
}

func valTypes(ts []symbols.ValueType) []*wasmtime.ValType {
	ret := make([]*wasmtime.ValType, len(ts))
	for i, t := range ts {
		switch t {
		case symbols.ValueTypeI32:
			ret[i] = wasmtime.NewValType(wasmtime.KindI32)
		case symbols.ValueTypeI64:
			ret[i] = wasmtime.NewValType(wasmtime.KindI64)
		case symbols.ValueTypeF64:
			ret[i] = wasmtime.NewValType(wasmtime.KindF64)
		default:
			panic(fmt.Sprintf("BUG: unsupported value type %s", t))
		}
	}
	return ret
}

func toSlot(v wasmtime.Val) uint64 {
	switch v.Kind() {
	case wasmtime.KindI32:
		return uint64(uint32(v.I32()))
	case wasmtime.KindI64:
		return uint64(v.I64())
	case wasmtime.KindF64:
		return math.Float64bits(v.F64())
	}
	panic(fmt.Sprintf("BUG: unsupported value kind %v", v.Kind()))
}

func fromSlot(t symbols.ValueType, slot uint64) wasmtime.Val {
	switch t {
	case symbols.ValueTypeI32:
		return wasmtime.ValI32(int32(uint32(slot)))
	case symbols.ValueTypeI64:
		return wasmtime.ValI64(int64(slot))
	case symbols.ValueTypeF64:
		return wasmtime.ValF64(math.Float64frombits(slot))
	}
	panic(fmt.Sprintf("BUG: unsupported value type %s", t))
}
