// Package backendtest holds the test suite every native backend must pass.
package backendtest

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ravilang/ravijit/internal/native"
	"github.com/ravilang/ravijit/internal/symbols"
)

const pushAndCount = `(module
  (import "env" "lua_pushinteger" (func $pushinteger (param i64 i64)))
  (import "env" "lua_gettop" (func $gettop (param i64) (result i32)))
  (func $jit0 (export "jit0") (param $L i64) (result i32)
    local.get $L
    i64.const 42
    call $pushinteger
    local.get $L
    call $gettop))
`

const roundTrip = `(module
  (import "env" "lua_tonumberx" (func $tonumberx (param i64 i32) (result f64)))
  (import "env" "lua_pushnumber" (func $pushnumber (param i64 f64)))
  (func $jit1 (export "jit1") (param $L i64) (result i32)
    local.get $L
    local.get $L
    i32.const -1
    call $tonumberx
    call $pushnumber
    i32.const 0))
`

const raising = `(module
  (import "env" "raise_error" (func $raise (param i64 i32)))
  (func $jit2 (export "jit2") (param $L i64) (result i32)
    local.get $L
    i32.const 3
    call $raise
    i32.const 1))
`

const mixedExports = `(module
  (memory (export "mem") 1)
  (global (export "depth") i32 (i32.const 0))
  (func (export "jit3") (param i64) (result i32) i32.const 0)
  (func (export "jit4") (param i64) (result i32) i32.const 1))
`

type recorder struct {
	calls map[string][][]uint64
	impls symbols.Implementations
}

func newRecorder() *recorder {
	r := &recorder{calls: map[string][][]uint64{}}
	for p := symbols.Primitive(0); p < symbols.PrimitiveCount; p++ {
		name := p.Name()
		r.impls[p] = func(args []uint64) ([]uint64, error) {
			r.calls[name] = append(r.calls[name], append([]uint64(nil), args...))
			return nil, nil
		}
	}
	return r
}

func (r *recorder) set(p symbols.Primitive, fn symbols.Func) {
	name := p.Name()
	r.impls[p] = func(args []uint64) ([]uint64, error) {
		r.calls[name] = append(r.calls[name], append([]uint64(nil), args...))
		return fn(args)
	}
}

func (r *recorder) registry(t *testing.T) *symbols.Registry {
	reg, err := symbols.NewRegistry(r.impls)
	require.NoError(t, err)
	return reg
}

// link loads code into a fresh context of b and links entry against reg.
func link(t *testing.T, b native.Backend, code, entry string, reg *symbols.Registry) (native.Context, native.Function) {
	ctx, err := b.NewContext()
	require.NoError(t, err)
	require.NoError(t, ctx.Load([]byte(code)))
	require.Equal(t, []string{entry}, ctx.Exports())

	var resolved []*symbols.Symbol
	for _, imp := range ctx.Imports() {
		require.Equal(t, native.ImportModule, imp.Module)
		s, ok := reg.Lookup(imp.Name)
		require.True(t, ok, imp.Name)
		resolved = append(resolved, s)
	}
	fn, err := ctx.Link(entry, resolved)
	require.NoError(t, err)
	return ctx, fn
}

// RunTests runs the backend suite against backends created by newBackend.
func RunTests(t *testing.T, newBackend native.Factory) {
	b, err := newBackend()
	require.NoError(t, err)
	defer func() { require.NoError(t, b.Close()) }()

	t.Run("imports in declaration order", func(t *testing.T) {
		ctx, err := b.NewContext()
		require.NoError(t, err)
		defer ctx.Close()

		require.NoError(t, ctx.Load([]byte(pushAndCount)))
		require.Equal(t, []native.Import{
			{Module: "env", Name: "lua_pushinteger"},
			{Module: "env", Name: "lua_gettop"},
		}, ctx.Imports())
	})

	t.Run("exports are functions only", func(t *testing.T) {
		ctx, err := b.NewContext()
		require.NoError(t, err)
		defer ctx.Close()

		require.Empty(t, ctx.Exports())
		require.Empty(t, ctx.Imports())
		require.NoError(t, ctx.Load([]byte(mixedExports)))
		require.Equal(t, []string{"jit3", "jit4"}, ctx.Exports())
		require.Empty(t, ctx.Imports())
	})

	t.Run("call primitives", func(t *testing.T) {
		r := newRecorder()
		r.set(symbols.PrimitiveGetTop, func([]uint64) ([]uint64, error) { return []uint64{5}, nil })
		ctx, fn := link(t, b, pushAndCount, "jit0", r.registry(t))
		defer ctx.Close()

		n, err := fn.Call(7)
		require.NoError(t, err)
		require.Equal(t, int32(5), n)
		require.Equal(t, [][]uint64{{7, 42}}, r.calls["lua_pushinteger"])
		require.Equal(t, [][]uint64{{7}}, r.calls["lua_gettop"])
	})

	t.Run("slot encoding", func(t *testing.T) {
		r := newRecorder()
		r.set(symbols.PrimitiveToNumberX, func([]uint64) ([]uint64, error) {
			return []uint64{math.Float64bits(1.25)}, nil
		})
		ctx, fn := link(t, b, roundTrip, "jit1", r.registry(t))
		defer ctx.Close()

		n, err := fn.Call(-2)
		require.NoError(t, err)
		require.Zero(t, n)
		// i32 slots are zero extended, handles keep all 64 bits.
		require.Equal(t, [][]uint64{{uint64(math.MaxUint64 - 1), 0xffffffff}}, r.calls["lua_tonumberx"])
		require.Equal(t, [][]uint64{{uint64(math.MaxUint64 - 1), math.Float64bits(1.25)}}, r.calls["lua_pushnumber"])
	})

	t.Run("primitive error", func(t *testing.T) {
		boom := errors.New("boom")
		r := newRecorder()
		r.set(symbols.PrimitiveRaiseError, func([]uint64) ([]uint64, error) { return nil, boom })
		ctx, fn := link(t, b, raising, "jit2", r.registry(t))
		defer ctx.Close()

		_, err := fn.Call(1)
		require.Equal(t, boom, err)
		require.Equal(t, [][]uint64{{1, 3}}, r.calls["raise_error"])
	})

	t.Run("invalid code", func(t *testing.T) {
		ctx, err := b.NewContext()
		require.NoError(t, err)
		defer ctx.Close()

		require.Error(t, ctx.Load([]byte("(module (func $f (result i32) i64.const 1))")))
		require.Error(t, ctx.Load([]byte("this is not a module")))
	})

	t.Run("closed context", func(t *testing.T) {
		r := newRecorder()
		ctx, fn := link(t, b, pushAndCount, "jit0", r.registry(t))
		require.NoError(t, ctx.Close())

		_, err := fn.Call(0)
		require.Error(t, err)
		require.Error(t, ctx.Close())
	})
}
