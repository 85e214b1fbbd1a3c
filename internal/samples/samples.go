// Package samples holds hand assembled bytecode programs used by the CLI and
// the end to end tests.
package samples

import (
	"sort"

	"github.com/ravilang/ravijit/vm"
)

// Program is a sample function with a default argument list.
type Program struct {
	Name        string
	Description string
	// New returns a fresh Proto, so every caller gets its own artifact slot.
	New  func() *vm.Proto
	Args []vm.Value
}

var programs = map[string]Program{
	"fib": {
		Name:        "fib",
		Description: "iterative fibonacci: a counted loop, compiled on first call in auto mode",
		New:         Fib,
		Args:        []vm.Value{vm.Int(30)},
	},
	"sum": {
		Name:        "sum",
		Description: "sum of the integers 1..n",
		New:         Sum,
		Args:        []vm.Value{vm.Int(100)},
	},
	"table": {
		Name:        "table",
		Description: "fills t[i] = i*i and returns #t and t[n]",
		New:         Squares,
		Args:        []vm.Value{vm.Int(10)},
	},
	"max": {
		Name:        "max",
		Description: "larger of two numbers: branches without loops",
		New:         Max,
		Args:        []vm.Value{vm.Int(3), vm.Float(7.5)},
	},
	"concat": {
		Name:        "concat",
		Description: "string concatenation, which the code generator rejects",
		New:         Concat,
		Args:        []vm.Value{vm.Int(42)},
	},
}

// Lookup returns the program named name.
func Lookup(name string) (Program, bool) {
	p, ok := programs[name]
	return p, ok
}

// Names returns the names of all programs in sorted order.
func Names() []string {
	names := make([]string, 0, len(programs))
	for name := range programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fib is:
//
//	local a, b = 0, 1
//	for i = 1, n do a, b = b, a + b end
//	return a
func Fib() *vm.Proto {
	return vm.NewProto("fib", 1, []vm.Instruction{
		{Op: vm.OpLoadK, A: 1, B: 0},
		{Op: vm.OpLoadK, A: 2, B: 1},
		{Op: vm.OpLoadK, A: 3, B: 1},
		{Op: vm.OpMove, A: 4, B: 0},
		{Op: vm.OpLoadK, A: 5, B: 1},
		{Op: vm.OpForPrep, A: 3, B: 3},
		{Op: vm.OpMove, A: 7, B: 2},
		{Op: vm.OpAdd, A: 2, B: 1, C: 2},
		{Op: vm.OpMove, A: 1, B: 7},
		{Op: vm.OpForLoop, A: 3, B: -4},
		{Op: vm.OpReturn, A: 1, B: 2},
	}, []vm.Value{vm.Int(0), vm.Int(1)})
}

// Sum is:
//
//	local s = 0
//	for i = 1, n do s = s + i end
//	return s
func Sum() *vm.Proto {
	return vm.NewProto("sum", 1, []vm.Instruction{
		{Op: vm.OpLoadK, A: 1, B: 0},
		{Op: vm.OpLoadK, A: 2, B: 1},
		{Op: vm.OpMove, A: 3, B: 0},
		{Op: vm.OpLoadK, A: 4, B: 1},
		{Op: vm.OpForPrep, A: 2, B: 1},
		{Op: vm.OpAdd, A: 1, B: 1, C: 5},
		{Op: vm.OpForLoop, A: 2, B: -2},
		{Op: vm.OpReturn, A: 1, B: 2},
	}, []vm.Value{vm.Int(0), vm.Int(1)})
}

// Squares is:
//
//	local t = {}
//	for i = 1, n do t[i] = i * i end
//	return #t, t[n]
func Squares() *vm.Proto {
	return vm.NewProto("table", 1, []vm.Instruction{
		{Op: vm.OpNewTable, A: 1},
		{Op: vm.OpLoadK, A: 2, B: 0},
		{Op: vm.OpMove, A: 3, B: 0},
		{Op: vm.OpLoadK, A: 4, B: 0},
		{Op: vm.OpForPrep, A: 2, B: 2},
		{Op: vm.OpMul, A: 6, B: 5, C: 5},
		{Op: vm.OpSetTable, A: 1, B: 5, C: 6},
		{Op: vm.OpForLoop, A: 2, B: -3},
		{Op: vm.OpLen, A: 2, B: 1},
		{Op: vm.OpGetTable, A: 3, B: 1, C: 0},
		{Op: vm.OpReturn, A: 2, B: 3},
	}, []vm.Value{vm.Int(1)})
}

// Max is:
//
//	if a < b then return b end
//	return a
func Max() *vm.Proto {
	return vm.NewProto("max", 2, []vm.Instruction{
		{Op: vm.OpLt, A: 1, B: 0, C: 1},
		{Op: vm.OpJmp, B: 1},
		{Op: vm.OpReturn, A: 0, B: 2},
		{Op: vm.OpReturn, A: 1, B: 2},
	}, nil)
}

// Concat is:
//
//	return "n=" .. n
func Concat() *vm.Proto {
	return vm.NewProto("concat", 1, []vm.Instruction{
		{Op: vm.OpLoadK, A: 1, B: 0},
		{Op: vm.OpMove, A: 2, B: 0},
		{Op: vm.OpConcat, A: 1, B: 1, C: 2},
		{Op: vm.OpReturn, A: 1, B: 2},
	}, []vm.Value{vm.String("n=")})
}
