package ravijit

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ravilang/ravijit/internal/artifact"
	"github.com/ravilang/ravijit/internal/codegen"
	"github.com/ravilang/ravijit/internal/native/nativetest"
	"github.com/ravilang/ravijit/vm"
)

func TestState_Compile_Idempotent(t *testing.T) {
	s, gen, b := newTestState(t, NewConfig())
	p := straightLine(2)

	require.True(t, s.Compile(p, CompileRequest{Manual: true}))
	require.True(t, p.Artifact().Compiled())
	require.Equal(t, "jit0", p.Artifact().Entry().Name())

	for i := 0; i < 3; i++ {
		require.True(t, s.Compile(p, CompileRequest{Manual: true}))
		require.True(t, s.AutoCompile(p))
	}
	require.Equal(t, 1, gen.canCompileCalls)
	require.Equal(t, 1, gen.generateCalls)
	require.Equal(t, 1, b.LinkCalls)
}

func TestState_Compile_Permanent(t *testing.T) {
	tests := []struct {
		name           string
		setup          func(*mockGenerator, *nativetest.Backend)
		expGenerations int
		expContexts    int
	}{
		{
			name:  "cannot compile",
			setup: func(g *mockGenerator, _ *nativetest.Backend) { g.canCompileErr = codegen.ErrUnsupported },
		},
		{
			name:           "generation failure",
			setup:          func(g *mockGenerator, _ *nativetest.Backend) { g.generateErr = errors.New("too many registers") },
			expGenerations: 1,
		},
		{
			name:           "backend failure",
			setup:          func(_ *mockGenerator, b *nativetest.Backend) { b.FailLink = true },
			expGenerations: 1,
			expContexts:    1,
		},
		{
			name:           "unresolved symbol",
			setup:          func(g *mockGenerator, _ *nativetest.Backend) { g.imports = []string{"lua_gettop", "luaV_execute"} },
			expGenerations: 1,
			expContexts:    1,
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			s, gen, b := newTestState(t, NewConfig().WithAutoMode(true).WithMinExecCount(1))
			tc.setup(gen, b)
			p := straightLine(2)

			require.False(t, s.Compile(p, CompileRequest{Manual: true}))
			require.True(t, p.Artifact().Uncompilable())

			// Never attempted again, whatever the request.
			require.False(t, s.Compile(p, CompileRequest{Manual: true}))
			require.False(t, s.AutoCompile(p))
			require.Equal(t, 1, gen.canCompileCalls)
			require.Equal(t, tc.expGenerations, gen.generateCalls)
			require.Equal(t, tc.expContexts, b.NewContextCalls)

			// Nothing leaks from the failed attempt.
			require.Zero(t, b.OpenContexts())
			require.Zero(t, s.linker.(interface{ Live() int }).Live())
			require.False(t, s.compiling)
		})
	}
}

func TestState_Compile_Threshold(t *testing.T) {
	s, gen, _ := newTestState(t, NewConfig().WithAutoMode(true).WithMinExecCount(3))
	p := straightLine(2)

	require.False(t, s.AutoCompile(p))
	require.Equal(t, uint32(1), p.ExecCount())
	require.False(t, s.AutoCompile(p))
	require.Equal(t, uint32(2), p.ExecCount())
	require.Zero(t, gen.generateCalls)
	require.Equal(t, artifact.StatusUnattempted, p.Artifact().Status())

	require.True(t, s.AutoCompile(p))
	require.Equal(t, uint32(3), p.ExecCount())
	require.Equal(t, 1, gen.generateCalls)

	// A compiled function no longer counts.
	require.True(t, s.AutoCompile(p))
	require.Equal(t, uint32(3), p.ExecCount())
}

func TestState_Compile_Policy(t *testing.T) {
	tests := []struct {
		name       string
		config     *Config
		proto      func() *vm.Proto
		req        CompileRequest
		expected   bool
		expCounted bool
	}{
		{
			name:     "manual mode declines automatic requests",
			config:   NewConfig().WithMinExecCount(0),
			proto:    countedLoop,
			expected: false,
		},
		{
			name:     "manual request",
			config:   NewConfig(),
			proto:    func() *vm.Proto { return straightLine(2) },
			req:      CompileRequest{Manual: true},
			expected: true,
		},
		{
			name:     "disabled ignores manual request",
			config:   NewConfig().WithEnabled(false),
			proto:    func() *vm.Proto { return straightLine(2) },
			req:      CompileRequest{Manual: true},
			expected: false,
		},
		{
			name:     "disabled ignores auto mode",
			config:   NewConfig().WithEnabled(false).WithAutoMode(true),
			proto:    countedLoop,
			expected: false,
		},
		{
			name:     "counted loop",
			config:   NewConfig().WithAutoMode(true).WithMinExecCount(1000),
			proto:    countedLoop,
			expected: true,
		},
		{
			name:     "above minimum code size",
			config:   NewConfig().WithAutoMode(true).WithMinCodeSize(4).WithMinExecCount(1000),
			proto:    func() *vm.Proto { return straightLine(5) },
			expected: true,
		},
		{
			name:       "at minimum code size",
			config:     NewConfig().WithAutoMode(true).WithMinCodeSize(5).WithMinExecCount(1000),
			proto:      func() *vm.Proto { return straightLine(5) },
			expected:   false,
			expCounted: true,
		},
		{
			name:       "zero minimum execution count",
			config:     NewConfig().WithAutoMode(true).WithMinExecCount(0),
			proto:      func() *vm.Proto { return straightLine(2) },
			expected:   true,
			expCounted: true,
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			s, _, _ := newTestState(t, tc.config)
			p := tc.proto()

			require.Equal(t, tc.expected, s.Compile(p, tc.req))
			require.Equal(t, tc.expected, p.Artifact().Compiled())
			if !tc.expected {
				require.Equal(t, artifact.StatusUnattempted, p.Artifact().Status())
			}
			if tc.expCounted {
				require.Equal(t, uint32(1), p.ExecCount())
			} else {
				require.Zero(t, p.ExecCount())
			}
		})
	}
}

func TestState_Compile_Reentrant(t *testing.T) {
	s, gen, _ := newTestState(t, NewConfig())
	outer, inner := straightLine(2), straightLine(3)

	var innerResult bool
	gen.onGenerate = func() {
		if gen.generateCalls == 1 {
			innerResult = s.Compile(inner, CompileRequest{Manual: true})
		}
	}

	require.True(t, s.Compile(outer, CompileRequest{Manual: true}))
	require.False(t, innerResult)
	// The skipped function may be compiled later.
	require.Equal(t, artifact.StatusUnattempted, inner.Artifact().Status())
	require.Equal(t, 1, gen.generateCalls)
	require.Equal(t, 2, gen.canCompileCalls)

	require.True(t, s.Compile(inner, CompileRequest{Manual: true}))
	require.Equal(t, []string{"jit0", "jit1"}, gen.names)
}

func TestState_Compile_Names(t *testing.T) {
	s, gen, b := newTestState(t, NewConfig())

	b.FailLink = true
	require.False(t, s.Compile(straightLine(2), CompileRequest{Manual: true}))
	b.FailLink = false

	p1, p2 := straightLine(2), straightLine(2)
	require.True(t, s.Compile(p1, CompileRequest{Manual: true}))
	require.True(t, s.Compile(p2, CompileRequest{Manual: true}))

	// Failed attempts consume a name too.
	require.Equal(t, []string{"jit0", "jit1", "jit2"}, gen.names)
	require.Equal(t, "jit1", p1.Artifact().Entry().Name())
	require.Equal(t, "jit2", p2.Artifact().Entry().Name())
}

func TestState_Compile_Options(t *testing.T) {
	s, gen, _ := newTestState(t, NewConfig().WithOptLevel(3).WithValidation(true))

	req := CompileRequest{Manual: true, Options: codegen.Options{OptLevel: 0, Annotate: true}}
	require.True(t, s.Compile(straightLine(2), req))

	s.SetOptLevel(0)
	s.SetValidation(false)
	require.True(t, s.Compile(straightLine(2), CompileRequest{Manual: true}))

	require.Equal(t, []codegen.Options{
		{OptLevel: 3, Validate: true, Annotate: true},
		{OptLevel: 0, Validate: false},
	}, gen.opts)
}

func TestState_Compile_ReleaseOnce(t *testing.T) {
	s, _, b := newTestState(t, NewConfig())
	p := straightLine(2)
	require.True(t, s.Compile(p, CompileRequest{Manual: true}))

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	require.Equal(t, 1, b.Released)

	// A destroyed function is never compiled again.
	require.False(t, p.Artifact().Compiled())
	require.False(t, s.Compile(p, CompileRequest{Manual: true}))
	require.Equal(t, 1, b.LinkCalls)

	// Shutdown does not release it a second time.
	require.NoError(t, s.Shutdown())
	require.Equal(t, 1, b.Released)
}

func TestState_Compile_Destroyed(t *testing.T) {
	s, gen, b := newTestState(t, NewConfig().WithAutoMode(true).WithMinExecCount(0))
	p := straightLine(2)

	// Destroyed before any attempt.
	require.NoError(t, p.Close())
	require.False(t, s.Compile(p, CompileRequest{Manual: true}))
	require.False(t, s.AutoCompile(p))
	require.False(t, p.Artifact().Compiled())
	require.Zero(t, gen.canCompileCalls)
	require.Zero(t, b.LinkCalls)
	require.Equal(t, artifact.StatusUnattempted, p.Artifact().Status())

	require.NoError(t, p.Close())
	require.Zero(t, b.Released)
}

func TestState_Compile_AfterShutdown(t *testing.T) {
	s, gen, b := newTestState(t, NewConfig())
	p := straightLine(2)
	require.True(t, s.Compile(p, CompileRequest{Manual: true}))

	require.NoError(t, s.Shutdown())
	require.Equal(t, 1, b.Released)

	// The entry point went away with the backend.
	require.False(t, p.Artifact().Compiled())
	require.Nil(t, p.Artifact().Entry())
	require.False(t, s.Compile(p, CompileRequest{Manual: true}))
	_, err := p.Artifact().Invoke(0)
	require.Equal(t, artifact.ErrNotCompiled, err)
	require.Equal(t, 1, gen.generateCalls)

	// Destroying the function afterwards releases nothing twice.
	require.NoError(t, p.Close())
	require.Equal(t, 1, b.Released)
}

func TestState_CompileMany(t *testing.T) {
	s, gen, _ := newTestState(t, NewConfig())

	bad := straightLine(2)
	gen.generateErr = errors.New("nope")
	require.False(t, s.Compile(bad, CompileRequest{Manual: true}))
	gen.generateErr = nil

	require.False(t, s.CompileMany(nil, CompileRequest{Manual: true}))
	require.False(t, s.CompileMany([]*vm.Proto{bad}, CompileRequest{Manual: true}))

	good1, good2 := straightLine(2), straightLine(2)
	require.True(t, s.CompileMany([]*vm.Proto{bad, good1, good2}, CompileRequest{Manual: true}))
	require.True(t, good1.Artifact().Compiled())
	require.True(t, good2.Artifact().Compiled())
	require.True(t, bad.Artifact().Uncompilable())

	// Not a manual request: nothing new is compiled, but the result reflects compiled members.
	require.True(t, s.CompileMany([]*vm.Proto{bad, good1}, CompileRequest{}))
}

func TestState_Compile_Diagnostics(t *testing.T) {
	t.Run("silent", func(t *testing.T) {
		var buf bytes.Buffer
		s, gen, _ := newTestState(t, NewConfig().WithDiagnostics(&buf))
		require.True(t, s.Compile(straightLine(2), CompileRequest{Manual: true}))
		gen.generateErr = errors.New("nope")
		require.False(t, s.Compile(straightLine(2), CompileRequest{Manual: true}))
		require.Zero(t, buf.Len())
	})

	t.Run("failures", func(t *testing.T) {
		var buf bytes.Buffer
		s, gen, _ := newTestState(t, NewConfig().WithDiagnostics(&buf).WithVerbosity(1))
		buf.Reset() // initialized event

		gen.generateErr = errors.New("too many registers")
		require.False(t, s.Compile(straightLine(2), CompileRequest{}))
		require.Zero(t, buf.Len(), "automatic requests in manual mode are not attempted")

		require.False(t, s.Compile(straightLine(2), CompileRequest{Manual: true}))
		out := buf.String()
		require.Equal(t, 1, strings.Count(out, "\n"), out)
		require.Contains(t, out, `"level":"warn"`)
		require.Contains(t, out, `"vm":"`+s.g.ID()+`"`)
		require.Contains(t, out, `"unit":"straight"`)
		require.Contains(t, out, `"name":"jit0"`)
		require.Contains(t, out, `"reason":"too many registers"`)
		require.Contains(t, out, `"message":"compilation failed"`)
	})

	t.Run("manual echo", func(t *testing.T) {
		var buf bytes.Buffer
		s, _, _ := newTestState(t, NewConfig().WithDiagnostics(&buf).WithVerbosity(1).WithAutoMode(true).WithMinExecCount(1))
		buf.Reset()

		require.True(t, s.Compile(straightLine(2), CompileRequest{Manual: true}))
		require.Equal(t, "export jit0 1\n\n", buf.String())

		buf.Reset()
		require.True(t, s.AutoCompile(straightLine(2)))
		require.Zero(t, buf.Len())
	})

	t.Run("every compilation", func(t *testing.T) {
		var buf bytes.Buffer
		s, gen, _ := newTestState(t, NewConfig().WithDiagnostics(&buf).WithVerbosity(2))
		buf.Reset()

		require.True(t, s.Compile(straightLine(2), CompileRequest{Manual: true}))
		require.Contains(t, buf.String(), `"message":"compiled"`)
		require.Contains(t, buf.String(), `"size":"14B"`)

		buf.Reset()
		gen.onGenerate = func() { s.Compile(straightLine(2), CompileRequest{Manual: true}) }
		require.True(t, s.Compile(straightLine(2), CompileRequest{Manual: true}))
		require.Contains(t, buf.String(), `"message":"compilation skipped: compilation already in progress"`)
	})
}
