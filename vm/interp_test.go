package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fibProto returns the iterative fibonacci function:
//
//	local a, b = 0, 1
//	for i = 1, n do a, b = b, a + b end
//	return a
func fibProto() *Proto {
	return NewProto("fib", 1, []Instruction{
		{Op: OpLoadK, A: 1, B: 0},
		{Op: OpLoadK, A: 2, B: 1},
		{Op: OpLoadK, A: 3, B: 1},
		{Op: OpMove, A: 4, B: 0},
		{Op: OpLoadK, A: 5, B: 1},
		{Op: OpForPrep, A: 3, B: 3},
		{Op: OpMove, A: 7, B: 2},
		{Op: OpAdd, A: 2, B: 1, C: 2},
		{Op: OpMove, A: 1, B: 7},
		{Op: OpForLoop, A: 3, B: -4},
		{Op: OpReturn, A: 1, B: 2},
	}, []Value{Int(0), Int(1)})
}

func TestState_Call_Interpreted(t *testing.T) {
	s := NewState(NewGlobal())
	defer s.Close()

	t.Run("fib", func(t *testing.T) {
		p := fibProto()
		require.Equal(t, 8, p.MaxStack)
		require.True(t, p.HasCountedLoop())
		for _, tc := range []struct{ n, exp int64 }{{0, 0}, {1, 1}, {10, 55}, {50, 12586269025}} {
			res, err := s.Call(p, Int(tc.n))
			require.NoError(t, err)
			require.Equal(t, []Value{Int(tc.exp)}, res)
		}
	})

	t.Run("branches", func(t *testing.T) {
		// if a < b then return b else return a end
		p := NewProto("max", 2, []Instruction{
			{Op: OpLt, A: 1, B: 0, C: 1},
			{Op: OpJmp, B: 1},
			{Op: OpReturn, A: 0, B: 2},
			{Op: OpReturn, A: 1, B: 2},
		}, nil)
		require.False(t, p.HasCountedLoop())

		res, err := s.Call(p, Int(3), Int(9))
		require.NoError(t, err)
		require.Equal(t, []Value{Int(9)}, res)

		res, err = s.Call(p, Float(3.5), Int(1))
		require.NoError(t, err)
		require.Equal(t, []Value{Float(3.5)}, res)

		_, err = s.Call(p, Int(1), String("x"))
		require.EqualError(t, err, "max:0: attempt to compare number with string")
	})

	t.Run("tables", func(t *testing.T) {
		// local t = {}; t.x = n; t[1] = not n; return t.x, t[1], #t
		p := NewProto("tables", 1, []Instruction{
			{Op: OpNewTable, A: 1},
			{Op: OpSetTable, A: 1, B: RK(0), C: 0},
			{Op: OpNot, A: 2, B: 0},
			{Op: OpSetTable, A: 1, B: RK(1), C: 2},
			{Op: OpGetTable, A: 2, B: 1, C: RK(0)},
			{Op: OpGetTable, A: 3, B: 1, C: RK(1)},
			{Op: OpLen, A: 4, B: 1},
			{Op: OpReturn, A: 2, B: 4},
		}, []Value{String("x"), Int(1)})

		res, err := s.Call(p, Int(7))
		require.NoError(t, err)
		require.Equal(t, []Value{Int(7), Bool(false), Int(1)}, res)
	})

	t.Run("loadbool and test", func(t *testing.T) {
		// return n and 1 or 2, using TEST and LOADBOOL skip
		p := NewProto("test", 1, []Instruction{
			{Op: OpTest, A: 0, C: 0},
			{Op: OpJmp, B: 1},
			{Op: OpLoadBool, A: 1, B: 1, C: 1},
			{Op: OpLoadBool, A: 1, B: 0},
			{Op: OpLoadNil, A: 2, B: 0},
			{Op: OpReturn, A: 1, B: 3},
		}, nil)

		res, err := s.Call(p, Bool(true))
		require.NoError(t, err)
		require.Equal(t, []Value{Bool(true), Nil}, res)

		res, err = s.Call(p, Nil)
		require.NoError(t, err)
		require.Equal(t, []Value{Bool(false), Nil}, res)
	})

	t.Run("concat", func(t *testing.T) {
		p := NewProto("concat", 1, []Instruction{
			{Op: OpLoadK, A: 1, B: 0},
			{Op: OpMove, A: 2, B: 0},
			{Op: OpConcat, A: 1, B: 1, C: 2},
			{Op: OpReturn, A: 1, B: 2},
		}, []Value{String("n=")})

		res, err := s.Call(p, Int(4))
		require.NoError(t, err)
		require.Equal(t, []Value{String("n=4")}, res)
	})

	t.Run("runtime error", func(t *testing.T) {
		p := NewProto("index", 1, []Instruction{
			{Op: OpGetTable, A: 1, B: 0, C: RK(0)},
			{Op: OpReturn, A: 1, B: 2},
		}, []Value{String("k")})

		_, err := s.Call(p, Int(1))
		require.EqualError(t, err, "index:0: attempt to index a number value")
		var re *RuntimeError
		require.ErrorAs(t, err, &re)
		require.Equal(t, 0, re.PC)
	})

	t.Run("falls off the end", func(t *testing.T) {
		p := NewProto("open", 0, []Instruction{{Op: OpLoadNil, A: 0}}, nil)
		_, err := s.Call(p)
		require.EqualError(t, err, "open:1: pc out of range")
	})
}

func TestState_Call_Closed(t *testing.T) {
	s := NewState(NewGlobal())
	s.Close()
	s.Close()
	_, err := s.Call(fibProto(), Int(1))
	require.Equal(t, ErrClosed, err)
}
