package codegen

import (
	"fmt"

	"github.com/ravilang/ravijit/internal/symbols"
)

// ValidationError is returned when a lowered Program is inconsistent.
type ValidationError struct {
	Block int
	Msg   string
}

// Error implements error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid program: block %d: %s", e.Block, e.Msg)
}

func (g *Generator) validate(prog *Program) error {
	n := len(prog.Blocks)
	if n == 0 {
		return &ValidationError{Block: -1, Msg: "no blocks"}
	}
	checkCall := func(b *Block, c *Call) error {
		sym, ok := g.registry.LookupPrimitive(c.Primitive)
		if !ok {
			return &ValidationError{Block: b.Index, Msg: fmt.Sprintf("%s is not registered", c.Primitive)}
		}
		params := sym.Signature.Params
		if len(params) != len(c.Args)+1 {
			return &ValidationError{Block: b.Index, Msg: fmt.Sprintf("%s takes %d arguments, got %d", c.Primitive, len(params)-1, len(c.Args))}
		}
		for _, t := range params[1:] {
			if t != symbols.ValueTypeI32 {
				return &ValidationError{Block: b.Index, Msg: fmt.Sprintf("%s has a non i32 parameter", c.Primitive)}
			}
		}
		return nil
	}
	checkTarget := func(b *Block, target int) error {
		if target < 0 || target >= n {
			return &ValidationError{Block: b.Index, Msg: fmt.Sprintf("target %d out of range", target)}
		}
		return nil
	}

	for i, b := range prog.Blocks {
		if b.Index != i {
			return &ValidationError{Block: i, Msg: fmt.Sprintf("index %d out of order", b.Index)}
		}
		for j := range b.Calls {
			c := &b.Calls[j]
			if err := checkCall(b, c); err != nil {
				return err
			}
			if len(c.Primitive.Signature().Results) != 0 {
				return &ValidationError{Block: i, Msg: fmt.Sprintf("result of %s is dropped", c.Primitive)}
			}
		}
		switch t := b.Term; t.Kind {
		case TermJump:
			if err := checkTarget(b, t.Target); err != nil {
				return err
			}
		case TermBranch, TermReturn:
			if t.Call == nil {
				return &ValidationError{Block: i, Msg: "terminator without call"}
			}
			if err := checkCall(b, t.Call); err != nil {
				return err
			}
			res := t.Call.Primitive.Signature().Results
			if len(res) != 1 || res[0] != symbols.ValueTypeI32 {
				return &ValidationError{Block: i, Msg: fmt.Sprintf("%s does not return i32", t.Call.Primitive)}
			}
			if t.Kind == TermBranch {
				if err := checkTarget(b, t.Target); err != nil {
					return err
				}
				if err := checkTarget(b, t.Else); err != nil {
					return err
				}
			}
		default:
			return &ValidationError{Block: i, Msg: fmt.Sprintf("unknown terminator %d", t.Kind)}
		}
	}
	return nil
}
