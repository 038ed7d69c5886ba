package compiler

import (
	"testing"

	"github.com/seanpringle/rela/internal/bytecode"
	"github.com/seanpringle/rela/internal/value"
)

func emit(c *bytecode.Chunk, op bytecode.Op, imm value.Item) int {
	return c.Emit(op, imm, bytecode.Debug{})
}

func TestPeepholeFindFusion(t *testing.T) {
	c := bytecode.NewChunk()
	emit(c, bytecode.OpLit, value.String(strp("x")))
	emit(c, bytecode.OpFind, value.Nil())
	emit(c, bytecode.OpReturn, value.Nil())

	Peephole(c, map[int]bool{})

	if c.Code[0].Op != bytecode.OpFname {
		t.Fatalf("instr 0 = %v; want OpFname", c.Code[0].Op)
	}
	if c.Code[1].Op != bytecode.OpNop {
		t.Fatalf("instr 1 = %v; want OpNop", c.Code[1].Op)
	}
	if len(c.Code) != 3 {
		t.Fatalf("fusion must not change instruction count, got %d", len(c.Code))
	}
}

func TestPeepholeSkipsWhenJumpTarget(t *testing.T) {
	c := bytecode.NewChunk()
	emit(c, bytecode.OpLit, value.String(strp("x")))
	emit(c, bytecode.OpFind, value.Nil())

	Peephole(c, map[int]bool{1: true})

	if c.Code[0].Op != bytecode.OpLit {
		t.Fatalf("fusion should be skipped when instr 1 is a jump target, got %v", c.Code[0].Op)
	}
	if c.Code[1].Op != bytecode.OpFind {
		t.Fatalf("jump-targeted instruction must survive unmodified, got %v", c.Code[1].Op)
	}
}

func TestPeepholeConstantFoldNeg(t *testing.T) {
	c := bytecode.NewChunk()
	emit(c, bytecode.OpLit, value.Int(5))
	emit(c, bytecode.OpNeg, value.Nil())

	Peephole(c, map[int]bool{})

	if c.Code[0].Op != bytecode.OpLit || c.Code[0].Imm.I != -5 {
		t.Fatalf("instr 0 = %v %v; want OpLit -5", c.Code[0].Op, c.Code[0].Imm)
	}
	if c.Code[1].Op != bytecode.OpNop {
		t.Fatalf("instr 1 = %v; want OpNop", c.Code[1].Op)
	}
}

func TestPeepholeAssignPairFusion(t *testing.T) {
	c := bytecode.NewChunk()
	emit(c, bytecode.OpMark, value.Nil())
	emit(c, bytecode.OpAssignL, value.String(strp("k")))
	emit(c, bytecode.OpLimit, value.Int(0))

	Peephole(c, map[int]bool{})

	if c.Code[0].Op != bytecode.OpAssignP {
		t.Fatalf("instr 0 = %v; want OpAssignP", c.Code[0].Op)
	}
	if c.Code[1].Op != bytecode.OpNop || c.Code[2].Op != bytecode.OpNop {
		t.Fatalf("instrs 1,2 = %v,%v; want both OpNop", c.Code[1].Op, c.Code[2].Op)
	}
}

func strp(s string) *string { return &s }
