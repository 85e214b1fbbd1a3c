// Package nativetest provides an in-memory native.Backend for tests.
//
// The fake "compiles" a tiny line-based unit format:
//
//	import env.lua_gettop
//	export jit0 3
//
// where the number after an export is the value its Function returns when called.
// Counters record every interaction so tests can assert on backend traffic.
package nativetest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ravilang/ravijit/internal/native"
	"github.com/ravilang/ravijit/internal/symbols"
)

// Unit renders the fake unit format for the given exports and imports.
func Unit(exports map[string]int32, imports ...string) []byte {
	var b strings.Builder
	for _, imp := range imports {
		fmt.Fprintf(&b, "import %s\n", imp)
	}
	for name, ret := range exports {
		fmt.Fprintf(&b, "export %s %d\n", name, ret)
	}
	return []byte(b.String())
}

// Backend is a fake native.Backend.
type Backend struct {
	// FailNewContext makes NewContext fail.
	FailNewContext bool
	// FailLink makes Context.Link fail.
	FailLink bool
	// CloseErr is returned by Backend.Close.
	CloseErr error

	NewContextCalls, LoadCalls, LinkCalls, ContextCloses, Closes int
	// Released counts contexts closed after a successful Link.
	Released int

	opened int
}

var _ native.Backend = (*Backend)(nil)

// Name implements native.Backend.
func (b *Backend) Name() string { return "nativetest" }

// NewContext implements native.Backend.
func (b *Backend) NewContext() (native.Context, error) {
	b.NewContextCalls++
	if b.FailNewContext {
		return nil, errors.New("out of memory")
	}
	b.opened++
	return &context{b: b}, nil
}

// Close implements native.Backend.
func (b *Backend) Close() error {
	b.Closes++
	return b.CloseErr
}

// OpenContexts returns the number of contexts opened and not closed yet.
func (b *Backend) OpenContexts() int {
	return b.opened - b.ContextCloses
}

type context struct {
	b       *Backend
	exports []string
	returns map[string]int32
	imports []native.Import
	linked  bool
	closed  bool
}

func (c *context) Load(code []byte) error {
	c.b.LoadCalls++
	c.returns = map[string]int32{}
	s := bufio.NewScanner(bytes.NewReader(code))
	for line := 1; s.Scan(); line++ {
		fields := strings.Fields(s.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "import":
			if len(fields) != 2 {
				return fmt.Errorf("line %d: malformed import", line)
			}
			module, name := native.ImportModule, fields[1]
			if i := strings.IndexByte(name, '.'); i >= 0 {
				module, name = name[:i], name[i+1:]
			}
			c.imports = append(c.imports, native.Import{Module: module, Name: name})
		case "export":
			if len(fields) != 3 {
				return fmt.Errorf("line %d: malformed export", line)
			}
			ret, err := strconv.ParseInt(fields[2], 10, 32)
			if err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			c.exports = append(c.exports, fields[1])
			c.returns[fields[1]] = int32(ret)
		default:
			return fmt.Errorf("line %d: syntax error", line)
		}
	}
	return nil
}

func (c *context) Exports() []string { return c.exports }

func (c *context) Imports() []native.Import { return c.imports }

func (c *context) Link(entry string, resolved []*symbols.Symbol) (native.Function, error) {
	c.b.LinkCalls++
	if c.b.FailLink {
		return nil, errors.New("relocation out of range")
	}
	if len(resolved) != len(c.imports) {
		return nil, fmt.Errorf("BUG: %d imports but %d symbols", len(c.imports), len(resolved))
	}
	c.linked = true
	return function(c.returns[entry]), nil
}

func (c *context) Close() error {
	if c.closed {
		return errors.New("context closed twice")
	}
	c.closed = true
	c.b.ContextCloses++
	if c.linked {
		c.b.Released++
	}
	return nil
}

type function int32

func (f function) Call(int64) (int32, error) { return int32(f), nil }
