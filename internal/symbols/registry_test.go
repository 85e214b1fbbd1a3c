package symbols

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func nopFunc(args []uint64) ([]uint64, error) { return nil, nil }

func allImplementations() (impls Implementations) {
	for i := range impls {
		impls[i] = nopFunc
	}
	return
}

func TestPrimitive_Names(t *testing.T) {
	seen := map[string]Primitive{}
	for p := Primitive(0); p < PrimitiveCount; p++ {
		name := p.Name()
		require.NotEmpty(t, name, "primitive %d", p)
		prev, ok := seen[name]
		require.False(t, ok, "%s used by both %d and %d", name, prev, p)
		seen[name] = p

		sig := p.Signature()
		require.NotEmpty(t, sig.Params, name)
		require.Equal(t, ValueTypeI64, sig.Params[0], "%s must take the state handle first", name)
	}
	require.Equal(t, "unknown(65535)", Primitive(0xffff).Name())
}

func TestSignature_String(t *testing.T) {
	tests := []struct {
		sig Signature
		exp string
	}{
		{sig: Signature{}, exp: "()"},
		{sig: PrimitivePushNil.Signature(), exp: "(i64)"},
		{sig: PrimitiveForLoop.Signature(), exp: "(i64, i32) -> i32"},
		{sig: PrimitiveToNumberX.Signature(), exp: "(i64, i32) -> f64"},
		{sig: Signature{Results: []ValueType{ValueTypeI32, ValueTypeF64}}, exp: "() -> (i32, f64)"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.exp, func(t *testing.T) {
			require.Equal(t, tc.exp, tc.sig.String())
		})
	}
}

func TestNewRegistry(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		r, err := NewRegistry(allImplementations())
		require.NoError(t, err)
		require.Equal(t, int(PrimitiveCount), r.Len())

		for i, s := range r.Symbols() {
			require.Equal(t, Primitive(i), s.Primitive)
			require.NotZero(t, s.Address)
		}
	})
	t.Run("missing implementation", func(t *testing.T) {
		impls := allImplementations()
		impls[PrimitiveForLoop] = nil
		_, err := NewRegistry(impls)
		require.True(t, errors.Is(err, ErrMissingImplementation))
		require.Contains(t, err.Error(), "luaV_forloop")
	})
}

func TestRegistry_Lookup(t *testing.T) {
	r, err := NewRegistry(allImplementations())
	require.NoError(t, err)

	t.Run("exact match", func(t *testing.T) {
		for p := Primitive(0); p < PrimitiveCount; p++ {
			s, ok := r.Lookup(p.Name())
			require.True(t, ok, p.Name())
			require.Equal(t, p, s.Primitive)
			require.Equal(t, p.Signature(), s.Signature)
		}
	})
	t.Run("deterministic", func(t *testing.T) {
		first, ok := r.Lookup("luaO_arith")
		require.True(t, ok)
		for i := 0; i < 10; i++ {
			s, ok := r.Lookup("luaO_arith")
			require.True(t, ok)
			require.Same(t, first, s)
		}
	})
	t.Run("unknown", func(t *testing.T) {
		for _, name := range []string{"", "luaO_Arith", "luaO_arith ", "printf"} {
			_, ok := r.Lookup(name)
			require.False(t, ok, name)
		}
	})
	t.Run("by primitive", func(t *testing.T) {
		s, ok := r.LookupPrimitive(PrimitivePosCall)
		require.True(t, ok)
		require.Equal(t, "luaD_poscall", s.Name)
		_, ok = r.LookupPrimitive(PrimitiveCount)
		require.False(t, ok)
	})
	t.Run("nil registry", func(t *testing.T) {
		var nilRegistry *Registry
		_, ok := nilRegistry.Lookup("lua_gettop")
		require.False(t, ok)
		require.Zero(t, nilRegistry.Len())
		require.Nil(t, nilRegistry.Symbols())
	})
}

func TestRegistry_SymbolsIsACopy(t *testing.T) {
	r, err := NewRegistry(allImplementations())
	require.NoError(t, err)

	listed := r.Symbols()
	listed[0].Name = "mutated"

	s, ok := r.Lookup(PrimitiveRaiseError.Name())
	require.True(t, ok)
	require.Equal(t, "raise_error", s.Name)
}
