package codegen

import (
	"fmt"
	"strings"

	"github.com/ravilang/ravijit/internal/native"
)

// render prints prog as a WebAssembly text module.
//
// Blocks are laid out inside a dispatch loop:
//
//	loop $dispatch
//	  block $b1
//	    block $b0
//	      local.get $pc
//	      br_table $b0 $b1 $b1
//	    end
//	    ;; block 0
//	  end
//	  ;; block 1
//	end
//
// so leaving block $bN by its end starts block N, and falling off block N
// starts block N+1.
func render(prog *Program, opts Options) []byte {
	w := &watWriter{}
	w.line("(module")
	w.indent++
	for _, imp := range prog.Imports {
		sig := imp.Signature()
		var b strings.Builder
		fmt.Fprintf(&b, "(import %q %q (func $%s", native.ImportModule, imp.Name(), imp.Name())
		if len(sig.Params) > 0 {
			b.WriteString(" (param")
			for _, t := range sig.Params {
				b.WriteString(" " + t.String())
			}
			b.WriteString(")")
		}
		if len(sig.Results) > 0 {
			b.WriteString(" (result")
			for _, t := range sig.Results {
				b.WriteString(" " + t.String())
			}
			b.WriteString(")")
		}
		b.WriteString("))")
		w.line(b.String())
	}

	w.line("(func $entry (export %q) (param $L i64) (result i32)", prog.Name)
	w.indent++
	w.line("(local $pc i32)")
	w.line("loop $dispatch")
	w.indent++
	n := len(prog.Blocks)
	for i := n - 1; i >= 0; i-- {
		w.line("block $b%d", i)
		w.indent++
	}
	var labels strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&labels, " $b%d", i)
	}
	w.line("local.get $pc")
	w.line("br_table%s $b%d", labels.String(), n-1)

	for i, b := range prog.Blocks {
		w.indent--
		w.line("end")
		w.block(b, i, opts)
	}

	w.indent--
	w.line("end")
	w.line("unreachable")
	w.indent--
	w.line(")")
	w.indent--
	w.line(")")
	return []byte(w.String())
}

type watWriter struct {
	strings.Builder
	indent int
}

func (w *watWriter) line(format string, args ...interface{}) {
	w.WriteString(strings.Repeat("  ", w.indent))
	if len(args) == 0 {
		w.WriteString(format)
	} else {
		fmt.Fprintf(w, format, args...)
	}
	w.WriteByte('\n')
}

func (w *watWriter) block(b *Block, i int, opts Options) {
	w.line(";; block %d (pc %d)", i, b.PC)
	for j := range b.Calls {
		w.call(&b.Calls[j], opts)
	}
	switch t := b.Term; t.Kind {
	case TermJump:
		if opts.Annotate && !t.Fallthrough {
			w.line(";; -> block %d", t.Target)
		}
		if t.Target != i+1 || opts.OptLevel == 0 {
			w.jump(t.Target)
		}
	case TermBranch:
		w.call(t.Call, opts)
		w.line("i32.const %d", t.Expect)
		w.line("i32.ne")
		w.line("if")
		w.indent++
		w.jump(t.Target)
		w.indent--
		w.line("end")
		if t.Else != i+1 || opts.OptLevel == 0 {
			w.jump(t.Else)
		}
	case TermReturn:
		w.call(t.Call, opts)
		w.line("return")
	}
}

func (w *watWriter) call(c *Call, opts Options) {
	if opts.Annotate {
		w.line(";; [%d] %s", c.PC, c.Source)
	}
	w.line("local.get $L")
	for _, a := range c.Args {
		w.line("i32.const %d", a)
	}
	w.line("call $%s", c.Primitive.Name())
}

func (w *watWriter) jump(target int) {
	w.line("i32.const %d", target)
	w.line("local.set $pc")
	w.line("br $dispatch")
}
