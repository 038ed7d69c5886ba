package compiler

import "github.com/seanpringle/rela/internal/bytecode"
import "github.com/seanpringle/rela/internal/value"

// Peephole fuses short, frequent instruction sequences into single
// fused opcodes (§4.E). A fusion replaces the sequence in place: the
// first slot becomes the fused instruction and every other slot in the
// matched run becomes OP_NOP. Instruction indices never shift, so every
// jump immediate, module start offset, function entry ip and the late
// OP_FOR end-ip append all stay valid without any renumbering pass.
//
// A fusion is skipped whenever any instruction after the first in the
// matched run is itself a jump target — collapsing it would strand
// anything that jumps there expecting the original opcode to still run.
func Peephole(chunk *bytecode.Chunk, jumpTargets map[int]bool) {
	code := chunk.Code
	n := len(code)

	isTarget := func(ip int) bool { return jumpTargets[ip] }

	nop := func(ip int) {
		code[ip] = bytecode.Instr{Op: bytecode.OpNop, Imm: value.Nil(), Debug: code[ip].Debug}
	}

	nextCacheSlot := func() int {
		slot := chunk.CacheSlots
		chunk.CacheSlots++
		return slot
	}

	for i := 0; i < n; i++ {
		switch {
		// LIT k ; FIND -> FNAME k
		case code[i].Op == bytecode.OpLit && i+1 < n && code[i+1].Op == bytecode.OpFind && !isTarget(i+1):
			imm := code[i].Imm
			dbg := code[i].Debug
			code[i] = bytecode.Instr{Op: bytecode.OpFname, Imm: imm, Debug: dbg}
			nop(i + 1)
			i++

		// LIT k ; GET -> GNAME k
		case code[i].Op == bytecode.OpLit && i+1 < n && code[i+1].Op == bytecode.OpGet && !isTarget(i+1):
			imm := code[i].Imm
			dbg := code[i].Debug
			code[i] = bytecode.Instr{Op: bytecode.OpGname, Imm: imm, Debug: dbg}
			nop(i + 1)
			i++

		// FNAME k ; CALL -> CFUNC k, with a dense call-site cache slot
		case code[i].Op == bytecode.OpFname && i+1 < n && code[i+1].Op == bytecode.OpCall && !isTarget(i+1):
			imm := code[i].Imm
			dbg := code[i].Debug
			code[i] = bytecode.Instr{Op: bytecode.OpCfunc, Imm: imm, Cache: nextCacheSlot(), Debug: dbg}
			nop(i + 1)
			i++

		// LIT n ; NEG -> constant-folded LIT(-n)
		case code[i].Op == bytecode.OpLit && i+1 < n && code[i+1].Op == bytecode.OpNeg && !isTarget(i+1) && isNumericLit(code[i].Imm):
			dbg := code[i].Debug
			code[i] = bytecode.Instr{Op: bytecode.OpLit, Imm: negateLit(code[i].Imm), Debug: dbg}
			nop(i + 1)
			i++

		// LIT c ; ADD -> ADD_LIT c
		case code[i].Op == bytecode.OpLit && i+1 < n && code[i+1].Op == bytecode.OpAdd && !isTarget(i+1):
			imm := code[i].Imm
			dbg := code[i].Debug
			code[i] = bytecode.Instr{Op: bytecode.OpAddLit, Imm: imm, Debug: dbg}
			nop(i + 1)
			i++

		// LIT c ; MUL -> MUL_LIT c
		case code[i].Op == bytecode.OpLit && i+1 < n && code[i+1].Op == bytecode.OpMul && !isTarget(i+1):
			imm := code[i].Imm
			dbg := code[i].Debug
			code[i] = bytecode.Instr{Op: bytecode.OpMulLit, Imm: imm, Debug: dbg}
			nop(i + 1)
			i++

		// LIT k ; ASSIGN 0 -> ASSIGNL k
		case code[i].Op == bytecode.OpLit && i+1 < n && code[i+1].Op == bytecode.OpAssign && code[i+1].Imm.I == 0 && !isTarget(i+1):
			imm := code[i].Imm
			dbg := code[i].Debug
			code[i] = bytecode.Instr{Op: bytecode.OpAssignL, Imm: imm, Debug: dbg}
			nop(i + 1)
			i++

		// MARK ; ASSIGNL k ; LIMIT 0 -> ASSIGNP k. Matches only an ASSIGNL
		// already present when the scan reaches the MARK: the "LIT k ;
		// ASSIGN 0" fusion above runs later in this same forward scan.
		case code[i].Op == bytecode.OpMark && i+2 < n &&
			code[i+1].Op == bytecode.OpAssignL &&
			code[i+2].Op == bytecode.OpLimit && code[i+2].Imm.I == 0 &&
			!isTarget(i+1) && !isTarget(i+2):
			imm := code[i+1].Imm
			dbg := code[i].Debug
			code[i] = bytecode.Instr{Op: bytecode.OpAssignP, Imm: imm, Debug: dbg}
			nop(i + 1)
			nop(i + 2)
			i += 2
		}
	}
}

func isNumericLit(it value.Item) bool {
	return it.Kind == value.KindInt || it.Kind == value.KindFloat
}

func negateLit(it value.Item) value.Item {
	if it.Kind == value.KindFloat {
		return value.Float(-it.F)
	}
	return value.Int(-it.I)
}
