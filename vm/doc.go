// Package vm is the reference runtime the JIT is attached to: a register based
// interpreter for a subset of Lua 5.3 bytecode, plus the runtime primitives
// generated code calls back into.
//
// A Global is one VM instance. Functions are Protos. A State runs Protos and
// hands its Handle to compiled code, which passes it back to every primitive.
package vm
