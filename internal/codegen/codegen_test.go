package codegen

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ravilang/ravijit/internal/samples"
	"github.com/ravilang/ravijit/internal/symbols"
	"github.com/ravilang/ravijit/vm"
)

func TestGenerator_CanCompile(t *testing.T) {
	g := New(vm.Registry())
	ret := vm.Instruction{Op: vm.OpReturn, A: 0, B: 1}

	tests := []struct {
		name     string
		code     []vm.Instruction
		consts   []vm.Value
		expError string
	}{
		{name: "fib", code: samples.Fib().Code, consts: samples.Fib().Constants},
		{name: "max", code: samples.Max().Code},
		{
			name:     "concat",
			code:     samples.Concat().Code,
			consts:   samples.Concat().Constants,
			expError: "unsupported bytecode at pc 2 (CONCAT): string concatenation is not compiled",
		},
		{
			name:     "empty",
			expError: "unsupported bytecode: empty function",
		},
		{
			name:     "jump out of range",
			code:     []vm.Instruction{{Op: vm.OpJmp, B: 5}, ret},
			expError: "unsupported bytecode at pc 0 (JMP): jump target out of range",
		},
		{
			name:     "skip out of range",
			code:     []vm.Instruction{{Op: vm.OpTest, A: 0}, ret},
			expError: "unsupported bytecode at pc 0 (TEST): conditional skip out of range",
		},
		{
			name:     "loadbool skip out of range",
			code:     []vm.Instruction{{Op: vm.OpLoadBool, A: 0, B: 1, C: 1}, ret},
			expError: "unsupported bytecode at pc 0 (LOADBOOL): conditional skip out of range",
		},
		{
			name:     "falls off the end",
			code:     []vm.Instruction{{Op: vm.OpLoadNil}},
			expError: "unsupported bytecode at pc 0 (LOADNIL): control falls off the end",
		},
		{
			name:     "constant out of range",
			code:     []vm.Instruction{{Op: vm.OpAdd, A: 0, B: vm.RK(3), C: 0}, ret},
			consts:   []vm.Value{vm.Int(1)},
			expError: "unsupported bytecode at pc 0 (ADD): constant out of range",
		},
		{
			name:     "variable results",
			code:     []vm.Instruction{{Op: vm.OpReturn, A: 0, B: 0}},
			expError: "unsupported bytecode at pc 0 (RETURN): variable number of results",
		},
		{
			name:     "invalid opcode",
			code:     []vm.Instruction{{Op: 200}, ret},
			expError: "unsupported bytecode at pc 0 (OP200): invalid opcode",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := g.CanCompile(vm.NewProto(tc.name, 1, tc.code, tc.consts))
			if tc.expError == "" {
				require.NoError(t, err)
				return
			}
			require.EqualError(t, err, tc.expError)
			require.True(t, errors.Is(err, ErrUnsupported))
			var ue *UnsupportedError
			require.True(t, errors.As(err, &ue))
		})
	}
}

func TestGenerator_Lower(t *testing.T) {
	g := New(vm.Registry())

	t.Run("fib", func(t *testing.T) {
		prog, err := g.Lower(samples.Fib(), "jit0", Options{Validate: true})
		require.NoError(t, err)
		require.Equal(t, "jit0", prog.Name)
		require.Equal(t, []symbols.Primitive{
			symbols.PrimitiveOpLoadK,
			symbols.PrimitiveOpMove,
			symbols.PrimitiveForPrep,
			symbols.PrimitiveArith,
			symbols.PrimitiveForLoop,
			symbols.PrimitivePosCall,
		}, prog.Imports)

		require.Len(t, prog.Blocks, 4)
		b0, b1, b2, b3 := prog.Blocks[0], prog.Blocks[1], prog.Blocks[2], prog.Blocks[3]

		require.Equal(t, 0, b0.PC)
		require.Len(t, b0.Calls, 6)
		require.Equal(t, Terminator{Kind: TermJump, Target: 2}, b0.Term)

		require.Equal(t, 6, b1.PC)
		require.Equal(t, "luaO_arith(L, 0, 2, 1, 2)", b1.Calls[1].String())
		require.Equal(t, Terminator{Kind: TermJump, Target: 2, Fallthrough: true}, b1.Term)

		require.Equal(t, 9, b2.PC)
		require.Empty(t, b2.Calls)
		require.Equal(t, TermBranch, b2.Term.Kind)
		require.Equal(t, 1, b2.Term.Target)
		require.Equal(t, 3, b2.Term.Else)
		require.Equal(t, "luaV_forloop(L, 3)", b2.Term.Call.String())

		require.Equal(t, TermReturn, b3.Term.Kind)
		require.Equal(t, "luaD_poscall(L, 1, 1)", b3.Term.Call.String())

		require.Equal(t, []string{"luaD_poscall", "luaO_arith", "luaV_forloop", "luaV_forprep", "raviV_op_loadk", "raviV_op_move"}, prog.ImportNames())
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := g.Lower(samples.Concat(), "jit0", Options{})
		require.True(t, errors.Is(err, ErrUnsupported))
	})

	t.Run("validation needs registered symbols", func(t *testing.T) {
		_, err := New(nil).Lower(samples.Max(), "jit0", Options{Validate: true})
		require.EqualError(t, err, "invalid program: block 0: luaV_lessthan is not registered")

		_, err = New(nil).Lower(samples.Max(), "jit0", Options{})
		require.NoError(t, err)
	})
}

func TestGenerator_Generate(t *testing.T) {
	g := New(vm.Registry())

	code, err := g.Generate(samples.Max(), Options{OptLevel: 1}, "jit0")
	require.NoError(t, err)
	require.Equal(t, `(module
  (import "env" "luaV_lessthan" (func $luaV_lessthan (param i64 i32 i32) (result i32)))
  (import "env" "luaD_poscall" (func $luaD_poscall (param i64 i32 i32) (result i32)))
  (func $entry (export "jit0") (param $L i64) (result i32)
    (local $pc i32)
    loop $dispatch
      block $b3
        block $b2
          block $b1
            block $b0
              local.get $pc
              br_table $b0 $b1 $b2 $b3 $b3
            end
            ;; block 0 (pc 0)
            local.get $L
            i32.const 0
            i32.const 1
            call $luaV_lessthan
            i32.const 1
            i32.ne
            if
              i32.const 2
              local.set $pc
              br $dispatch
            end
          end
          ;; block 1 (pc 1)
          i32.const 3
          local.set $pc
          br $dispatch
        end
        ;; block 2 (pc 2)
        local.get $L
        i32.const 0
        i32.const 1
        call $luaD_poscall
        return
      end
      ;; block 3 (pc 3)
      local.get $L
      i32.const 1
      i32.const 1
      call $luaD_poscall
      return
    end
    unreachable
  )
)
`, string(code))
}

func TestGenerator_Generate_OptLevel(t *testing.T) {
	g := New(vm.Registry())

	tests := []struct {
		name      string
		proto     func() *vm.Proto
		optLevel  uint8
		expBranch int
	}{
		{name: "fib O0", proto: samples.Fib, optLevel: 0, expBranch: 4},
		{name: "fib O1", proto: samples.Fib, optLevel: 1, expBranch: 2},
		{name: "max O0", proto: samples.Max, optLevel: 0, expBranch: 3},
		{name: "max O2", proto: samples.Max, optLevel: 2, expBranch: 2},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			code, err := g.Generate(tc.proto(), Options{OptLevel: tc.optLevel}, "f")
			require.NoError(t, err)
			require.Equal(t, tc.expBranch, strings.Count(string(code), "br $dispatch"))
		})
	}
}

func TestGenerator_Generate_Annotate(t *testing.T) {
	code, err := New(vm.Registry()).Generate(samples.Squares(), Options{Annotate: true, OptLevel: 1}, "jit_function")
	require.NoError(t, err)
	wat := string(code)
	require.Contains(t, wat, `(export "jit_function")`)
	require.Contains(t, wat, ";; [6] SETTABLE 1 5 6")
	require.Contains(t, wat, ";; [5] MUL      6 5 5")
	require.Contains(t, wat, ";; -> block 2")
	require.Contains(t, wat, `(import "env" "luaV_settable" (func $luaV_settable (param i64 i32 i32 i32)))`)
	require.NotContains(t, wat, "luaV_gettable (param i64 i32 i32 i32) (result")
}
