// Package stdlib populates a VM's read-only core scope: the handful of
// built-ins every Rela program sees regardless of host registrations
// (§4.D "Source language surface" — print, lib, type, sort, collect,
// assert, setmeta/getmeta, the math ops), plus the domain-stack modules
// (db, net) a host opts into separately.
package stdlib

import (
	"github.com/seanpringle/rela/internal/bytecode"
	"github.com/seanpringle/rela/internal/value"
	"github.com/seanpringle/rela/internal/vm"
)

// installCore publishes the built-ins every program sees into v.Core.
// Each built-in is a tiny, real Subroutine — a couple of bytecode
// instructions appended to the shared chunk, exactly the way rela.c
// wires "print" as OP_PRINT;OP_RETURN behind a core scope entry, rather
// than a host callback — so they cost nothing beyond an ordinary call.
func installCore(v *vm.VM) {
	builtin := func(name string, ops ...bytecode.Op) {
		ip := v.ChunkLen()
		for _, op := range ops {
			v.Emit(op, value.Nil())
		}
		v.Emit(bytecode.OpReturn, value.Nil())
		v.SetCore(name, value.Sub(ip))
	}

	builtin("print", bytecode.OpPrint)
	builtin("type", bytecode.OpType)
	builtin("sort", bytecode.OpSort)
	builtin("assert", bytecode.OpAssert)
	builtin("collect", bytecode.OpGc)
	builtin("coroutine", bytecode.OpCoroutine)
	builtin("resume", bytecode.OpResume)
	builtin("yield", bytecode.OpYield)
	builtin("getmeta", bytecode.OpMetaGet)
	builtin("setmeta", bytecode.OpMetaSet)

	mathOps := []struct {
		name string
		op   bytecode.Op
	}{
		{"sin", bytecode.OpSin}, {"cos", bytecode.OpCos}, {"tan", bytecode.OpTan},
		{"asin", bytecode.OpAsin}, {"acos", bytecode.OpAcos}, {"atan", bytecode.OpAtan},
		{"sqrt", bytecode.OpSqrt}, {"abs", bytecode.OpAbs},
		{"floor", bytecode.OpFloor}, {"ceil", bytecode.OpCeil},
		{"pow", bytecode.OpPow}, {"min", bytecode.OpMin}, {"max", bytecode.OpMax},
	}
	for _, m := range mathOps {
		builtin(m.name, m.op)
	}

	lib := v.AllocMap()
	for _, name := range []string{
		"print", "type", "sort", "assert", "collect", "coroutine", "resume",
		"yield", "getmeta", "setmeta", "sin", "cos", "tan", "asin", "acos",
		"atan", "sqrt", "abs", "floor", "ceil", "pow", "min", "max",
	} {
		fn, _ := v.CoreGet(name)
		lib.Set(value.String(v.Intern(name)), fn)
	}
	v.SetCore("lib", value.MapItem(lib))
}
