//go:build amd64 && cgo

package ravijit_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ravilang/ravijit"
	"github.com/ravilang/ravijit/internal/native"
	"github.com/ravilang/ravijit/internal/samples"
	"github.com/ravilang/ravijit/vm"
)

// interpret runs p without any JIT attached.
func interpret(t *testing.T, p *vm.Proto, args ...vm.Value) ([]vm.Value, error) {
	st := vm.NewState(vm.NewGlobal())
	defer st.Close()
	return st.Call(p, args...)
}

func TestJIT_MatchesInterpreter(t *testing.T) {
	require.True(t, ravijit.NativeSupported)
	require.Contains(t, native.Backends(), "wasmtime")

	for _, backend := range native.Backends() {
		backend := backend
		t.Run(backend, func(t *testing.T) {
			for _, name := range samples.Names() {
				prog, _ := samples.Lookup(name)
				t.Run(name, func(t *testing.T) {
					expected, err := interpret(t, prog.New(), prog.Args...)
					require.NoError(t, err)

					g := vm.NewGlobal()
					s, err := ravijit.Initialize(g, ravijit.NewConfig().WithBackend(backend).WithValidation(true))
					require.NoError(t, err)
					defer func() { require.NoError(t, s.Shutdown()) }()
					st := vm.NewState(g)
					defer st.Close()

					p := prog.New()
					compiled := s.Compile(p, ravijit.CompileRequest{Manual: true})
					require.Equal(t, name != "concat", compiled)

					for i := 0; i < 3; i++ {
						actual, err := st.Call(p, prog.Args...)
						require.NoError(t, err)
						require.Equal(t, expected, actual)
					}
				})
			}
		})
	}
}

func TestJIT_AutoMode(t *testing.T) {
	g := vm.NewGlobal()
	s, err := ravijit.Initialize(g, ravijit.NewConfig().WithAutoMode(true).WithMinExecCount(2))
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Shutdown()) }()
	st := vm.NewState(g)
	defer st.Close()

	// A counted loop compiles on its first call.
	fib := samples.Fib()
	ret, err := st.Call(fib, vm.Int(10))
	require.NoError(t, err)
	require.Equal(t, []vm.Value{vm.Int(55)}, ret)
	require.True(t, fib.Artifact().Compiled())

	// Otherwise the second call compiles.
	larger := samples.Max()
	ret, err = st.Call(larger, vm.Int(1), vm.Int(2))
	require.NoError(t, err)
	require.Equal(t, []vm.Value{vm.Int(2)}, ret)
	require.False(t, larger.Artifact().Compiled())

	ret, err = st.Call(larger, vm.Int(4), vm.Int(2))
	require.NoError(t, err)
	require.Equal(t, []vm.Value{vm.Int(4)}, ret)
	require.True(t, larger.Artifact().Compiled())

	// Uncompilable functions keep running in the interpreter.
	concat := samples.Concat()
	for i := 0; i < 3; i++ {
		ret, err = st.Call(concat, vm.Int(1))
		require.NoError(t, err)
		require.Equal(t, []vm.Value{vm.String("n=1")}, ret)
	}
	require.True(t, concat.Artifact().Uncompilable())
}

func TestJIT_RuntimeError(t *testing.T) {
	p := samples.Sum()
	_, expected := interpret(t, samples.Sum(), vm.String("many"))
	var expRE *vm.RuntimeError
	require.True(t, errors.As(expected, &expRE))

	g := vm.NewGlobal()
	s, err := ravijit.Initialize(g, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Shutdown()) }()
	st := vm.NewState(g)
	defer st.Close()

	require.True(t, s.Compile(p, ravijit.CompileRequest{Manual: true}))
	_, err = st.Call(p, vm.String("many"))
	var re *vm.RuntimeError
	require.True(t, errors.As(err, &re), err)
	require.Equal(t, expRE.Msg, re.Msg)
	require.Equal(t, "sum", re.Function)

	// The compiled function is still usable after an error.
	ret, err := st.Call(p, vm.Int(4))
	require.NoError(t, err)
	require.Equal(t, []vm.Value{vm.Int(10)}, ret)
}

func TestJIT_ProtoClose(t *testing.T) {
	g := vm.NewGlobal()
	s, err := ravijit.Initialize(g, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Shutdown()) }()
	st := vm.NewState(g)
	defer st.Close()

	p := samples.Sum()
	require.True(t, s.Compile(p, ravijit.CompileRequest{Manual: true}))
	require.NoError(t, p.Close())
	require.False(t, p.Artifact().Compiled())

	// Destroyed functions are interpreted and never recompiled.
	ret, err := st.Call(p, vm.Int(3))
	require.NoError(t, err)
	require.Equal(t, []vm.Value{vm.Int(6)}, ret)
	require.False(t, s.Compile(p, ravijit.CompileRequest{Manual: true}))
}
