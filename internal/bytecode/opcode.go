// Package bytecode defines the flat instruction format shared by the
// compiler and the virtual machine.
package bytecode

// Op is a single VM instruction. Every instruction carries an opcode plus
// an immediate Item (Nil when unused, see internal/value) and an integer
// cache slot used by the call-site cache (CFUNC) and left at zero for
// every other opcode.
type Op byte

const (
	OpNop Op = iota

	// Stack / frame plumbing.
	OpMark  // push current operand-stack depth onto the mark stack
	OpLimit // pad/truncate operand stack to mark+n (imm: int n, n<0 keeps all)
	OpClean // drop everything above zero depth
	OpShunt // move top of operand stack to the "other" stash
	OpShift // move top of "other" stash back onto the operand stack
	OpCopy  // duplicate top of operand stack
	OpDrop  // pop and discard
	OpNil
	OpTrue
	OpFalse
	OpLit // push imm

	// Control flow.
	OpJmp      // imm: target ip
	OpJfalse   // imm: target ip, consumes nothing, jumps if !truth(top)
	OpJtrue    // imm: target ip, jumps if truth(top)
	OpAnd      // short-circuit &&: jumps like Jfalse, else pops
	OpOr       // short-circuit ||: jumps like Jtrue, else pops
	OpLoop     // imm: end ip, pushes a loop-stack entry
	OpUnloop   // pops the loop-stack entry, asserts mark-stack balance
	OpBreak    // unwind to the innermost loop's end
	OpContinue // unwind and re-enter the innermost loop
	OpStop     // halts the coroutine immediately (used by top-level escape)
	OpReturn
	OpCall
	OpFor // imm: vector of induction-variable name Items, with the loop's end ip as its last element
	OpPid // imm: scope-id int, recorded onto the routine's scope-path stack

	// Coroutines.
	OpCoroutine
	OpResume
	OpYield

	// Names & values.
	OpGlobal // pushes the global scope as a Map value
	OpAssign // imm: stack index (0 = first value above the current mark); key popped from stack
	OpFind   // key popped from stack, resolved via locals/scope-path/global/core
	OpGet
	OpSet
	OpCount
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg
	OpNot
	OpEq
	OpNe
	OpLt
	OpGt
	OpLte
	OpGte
	OpConcat
	OpMatch
	OpSort
	OpAssert
	OpGc
	OpUnpack // spreads a Vector's elements onto the operand stack as separate values

	OpPrint // writes every value in the current sub-frame, tab-separated, newline-terminated

	OpVector // collapses the current sub-frame into a Vector value
	OpMap    // opens a map-under-construction
	OpUnmap  // closes it, pushes the finished Map value

	OpMetaGet
	OpMetaSet
	OpType

	// Math library ops (also reachable via core.lib).
	OpSin
	OpCos
	OpTan
	OpAsin
	OpAcos
	OpAtan
	OpSqrt
	OpAbs
	OpFloor
	OpCeil
	OpPow
	OpMin
	OpMax

	// Peephole-fused forms. Each preserves the exact semantics of the
	// sequence it replaces; see internal/compiler/peephole.go.
	OpFname   // LIT k ; FIND
	OpGname   // LIT k ; GET
	OpCfunc   // FNAME k ; CALL, imm: name, cache slot dense-indexed
	OpAssignL // LIT k ; ASSIGN 0
	OpAssignP // MARK ; ASSIGNL k ; LIMIT 0
	OpAddLit  // LIT c ; ADD
	OpMulLit  // LIT c ; MUL
	OpCopies  // FNAME k ; FNAME k (same name resolved twice), imm: repeat count
	OpUpdate  // MARK ; UPDATE ; op ; LIMIT 0 in-place compound-assign fusion

	OpCount_ // sentinel, number of opcodes
)

var names = [...]string{
	OpNop: "nop", OpMark: "mark", OpLimit: "limit", OpClean: "clean",
	OpShunt: "shunt", OpShift: "shift", OpCopy: "copy", OpDrop: "drop",
	OpNil: "nil", OpTrue: "true", OpFalse: "false", OpLit: "lit",
	OpJmp: "jmp", OpJfalse: "jfalse", OpJtrue: "jtrue", OpAnd: "and", OpOr: "or",
	OpLoop: "loop", OpUnloop: "unloop", OpBreak: "break", OpContinue: "continue",
	OpStop: "stop", OpReturn: "return", OpCall: "call", OpFor: "for", OpPid: "pid",
	OpCoroutine: "coroutine", OpResume: "resume", OpYield: "yield",
	OpGlobal: "global", OpAssign: "assign", OpFind: "find", OpGet: "get", OpSet: "set",
	OpCount: "count", OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpMod: "mod",
	OpNeg: "neg", OpNot: "not", OpEq: "eq", OpNe: "ne", OpLt: "lt", OpGt: "gt",
	OpLte: "lte", OpGte: "gte", OpConcat: "concat", OpMatch: "match", OpSort: "sort",
	OpAssert: "assert", OpGc: "gc", OpUnpack: "unpack", OpPrint: "print",
	OpVector: "vector", OpMap: "map", OpUnmap: "unmap",
	OpMetaGet: "metaget", OpMetaSet: "metaset", OpType: "type",
	OpSin: "sin", OpCos: "cos", OpTan: "tan", OpAsin: "asin", OpAcos: "acos",
	OpAtan: "atan", OpSqrt: "sqrt", OpAbs: "abs", OpFloor: "floor", OpCeil: "ceil",
	OpPow: "pow", OpMin: "min", OpMax: "max",
	OpFname: "fname", OpGname: "gname", OpCfunc: "cfunc", OpAssignL: "assignl",
	OpAssignP: "assignp", OpAddLit: "add_lit", OpMulLit: "mul_lit",
	OpCopies: "copies", OpUpdate: "update",
}

func (op Op) String() string {
	if int(op) < len(names) && names[op] != "" {
		return names[op]
	}
	return "???"
}
