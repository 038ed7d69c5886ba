package vm

import (
	"bytes"
	"testing"

	"github.com/seanpringle/rela/internal/bytecode"
	"github.com/seanpringle/rela/internal/pool"
	"github.com/seanpringle/rela/internal/value"
)

func newTestVM(chunk *bytecode.Chunk, out *bytes.Buffer) *VM {
	return New(chunk, pool.NewInterner(), DefaultConfig(), out, nil)
}

func TestAssignFindTopLevel(t *testing.T) {
	interner := pool.NewInterner()
	key := interner.Intern("x")

	chunk := bytecode.NewChunk()
	chunk.Emit(bytecode.OpLit, value.Int(42), bytecode.Debug{})
	chunk.Emit(bytecode.OpLit, value.String(key), bytecode.Debug{})
	chunk.Emit(bytecode.OpAssign, value.Int(0), bytecode.Debug{})

	v := New(chunk, interner, DefaultConfig(), &bytes.Buffer{}, nil)
	if err := v.Run(0); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got, ok := v.Global.GetOk(value.String(key))
	if !ok || got.I != 42 {
		t.Fatalf("global[x] = %v, %v; want 42, true", got, ok)
	}
}

func TestFindUnknownNameFails(t *testing.T) {
	interner := pool.NewInterner()
	key := interner.Intern("nope")

	chunk := bytecode.NewChunk()
	chunk.Emit(bytecode.OpLit, value.String(key), bytecode.Debug{})
	chunk.Emit(bytecode.OpFind, value.Nil(), bytecode.Debug{})

	v := New(chunk, interner, DefaultConfig(), &bytes.Buffer{}, nil)
	if err := v.Run(0); err == nil {
		t.Fatal("Run should fail looking up an unknown name")
	}
}

func TestOpPrintWritesTabSeparated(t *testing.T) {
	chunk := bytecode.NewChunk()
	chunk.Emit(bytecode.OpMark, value.Nil(), bytecode.Debug{})
	chunk.Emit(bytecode.OpLit, value.Int(1), bytecode.Debug{})
	chunk.Emit(bytecode.OpLit, value.Int(2), bytecode.Debug{})
	chunk.Emit(bytecode.OpPrint, value.Nil(), bytecode.Debug{})

	var out bytes.Buffer
	v := newTestVM(chunk, &out)
	if err := v.Run(0); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := "1\t2\n"
	if out.String() != want {
		t.Fatalf("print output = %q; want %q", out.String(), want)
	}
}

func TestArithOpSub(t *testing.T) {
	interner := pool.NewInterner()

	chunk := bytecode.NewChunk()
	chunk.Emit(bytecode.OpLit, value.Int(10), bytecode.Debug{})
	chunk.Emit(bytecode.OpLit, value.Int(3), bytecode.Debug{})
	chunk.Emit(bytecode.OpSub, value.Nil(), bytecode.Debug{})

	v := New(chunk, interner, DefaultConfig(), &bytes.Buffer{}, nil)
	if err := v.Run(0); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := v.cor().Top(); got.I != 7 {
		t.Fatalf("10-3 = %v; want 7", got)
	}
}
