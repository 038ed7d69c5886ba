// Package vm is the stack machine that executes bytecode.Chunk. It keeps
// one Routines stack of value.Coroutine; the bottom entry is the
// top-level program, so resume/yield reuse the exact same call/frame
// machinery a real coroutine uses (§4.F).
package vm

import (
	"fmt"
	"io"
	"math"

	"github.com/seanpringle/rela/internal/bytecode"
	"github.com/seanpringle/rela/internal/pool"
	"github.com/seanpringle/rela/internal/rerr"
	"github.com/seanpringle/rela/internal/value"
)

// Config holds the VM's sizing settings. Only PoolPageSize is read (by
// New, for the vector and map pools); the other fields are carried but no
// limit is enforced from them.
type Config struct {
	PoolPageSize   int
	InitialStack   int
	MaxLocals      int
	MaxScopeDepth  int
	MaxLoopNesting int
}

func DefaultConfig() Config {
	return Config{PoolPageSize: 64, InitialStack: 64, MaxLocals: 1 << 20, MaxScopeDepth: 8, MaxLoopNesting: 1 << 16}
}

// VM holds everything one program run needs: the compiled code, the two
// resident scope maps (global, user-writable; core, host/stdlib
// read-only), the interned-string tables, and the pooled heap the
// collector sweeps.
type VM struct {
	Chunk  *bytecode.Chunk
	Global *value.Map
	Core   *value.Map

	Interner *pool.Interner
	Vectors  *pool.Pool[value.Vector]
	Maps     *pool.Pool[value.Map]
	Coros    *pool.Pool[value.Coroutine]

	Routines []*value.Coroutine

	Out io.Writer

	config Config
	custom any

	// dense call-site cache for OP_CFUNC, indexed by Instr.Cache.
	callCache []value.Item
}

func New(chunk *bytecode.Chunk, interner *pool.Interner, cfg Config, out io.Writer, custom any) *VM {
	m := &VM{
		Chunk:     chunk,
		Global:    value.NewMap(),
		Core:      value.NewMap(),
		Interner:  interner,
		Vectors:   pool.New[value.Vector](cfg.PoolPageSize),
		Maps:      pool.New[value.Map](cfg.PoolPageSize),
		Coros:     pool.New[value.Coroutine](4),
		Out:       out,
		config:    cfg,
		custom:    custom,
		callCache: make([]value.Item, chunk.CacheSlots),
	}
	main := value.NewCoroutine()
	main.State = value.Running
	m.Routines = append(m.Routines, main)
	return m
}

// runtimeFault is the internal unwind signal, the Go analogue of the
// original's setjmp/longjmp ensure(). Run's top frame recovers it and
// turns it into a *rerr.RelaError; nothing above the VM package ever
// observes a panic.
type runtimeFault struct{ err *rerr.RelaError }

func (vm *VM) fail(format string, args ...any) {
	panic(runtimeFault{rerr.NewRuntime(vm.cor().IP, format, args...)})
}

func (vm *VM) cor() *value.Coroutine { return vm.Routines[len(vm.Routines)-1] }

// Run executes the chunk starting at ip to completion (the top-level
// program reaching the OP_STOP that closes its module, or a top-level
// OP_RETURN).
func (vm *VM) Run(ip int) (err *rerr.RelaError) {
	defer func() {
		if r := recover(); r != nil {
			if rf, ok := r.(runtimeFault); ok {
				err = rf.err
				return
			}
			panic(r)
		}
	}()
	vm.cor().IP = ip
	vm.loop()
	return nil
}

// loop is the fetch/decode/execute cycle. Every handler that wants to
// redirect control flow sets cor.IP to the exact index of the next
// instruction to run — the fetch below already advanced past the
// instruction being executed, so "jump to X" is simply cor.IP = X.
func (vm *VM) loop() {
	for {
		cor := vm.cor()
		if cor.IP >= vm.Chunk.Len() {
			return
		}
		instr := vm.Chunk.At(cor.IP)
		cor.IP++
		if vm.step(instr) {
			return
		}
	}
}

// step executes one instruction. It returns true when the whole Run call
// should stop (OP_STOP, or the top-level program's own OP_RETURN).
func (vm *VM) step(instr bytecode.Instr) (stop bool) {
	cor := vm.cor()
	switch instr.Op {

	case bytecode.OpNop:

	case bytecode.OpMark:
		cor.Marks = append(cor.Marks, len(cor.Stack))
	case bytecode.OpLimit:
		vm.limit(int(instr.Imm.I))
	case bytecode.OpClean:
		for vm.depth() > 0 {
			cor.Pop()
		}
	case bytecode.OpShunt:
		cor.Other = append(cor.Other, cor.Pop())
	case bytecode.OpShift:
		top := cor.Other[len(cor.Other)-1]
		cor.Other = cor.Other[:len(cor.Other)-1]
		cor.Push(top)
	case bytecode.OpCopy:
		cor.Push(cor.Top())
	case bytecode.OpDrop:
		cor.Pop()
	case bytecode.OpNil:
		cor.Push(value.Nil())
	case bytecode.OpTrue:
		cor.Push(value.Bool(true))
	case bytecode.OpFalse:
		cor.Push(value.Bool(false))
	case bytecode.OpLit:
		cor.Push(instr.Imm)

	case bytecode.OpJmp:
		cor.IP = int(instr.Imm.I)
	case bytecode.OpJfalse:
		if !value.Truth(cor.Top()) {
			cor.IP = int(instr.Imm.I)
		}
	case bytecode.OpJtrue:
		if value.Truth(cor.Top()) {
			cor.IP = int(instr.Imm.I)
		}
	case bytecode.OpAnd:
		if !value.Truth(cor.Top()) {
			cor.IP = int(instr.Imm.I)
		} else {
			cor.Pop()
		}
	case bytecode.OpOr:
		if value.Truth(cor.Top()) {
			cor.IP = int(instr.Imm.I)
		} else {
			cor.Pop()
		}
	case bytecode.OpLoop:
		cor.Loops = append(cor.Loops, value.Loop{MarkBase: len(cor.Marks), EndIP: int(instr.Imm.I)})
	case bytecode.OpUnloop:
		top := cor.Loops[len(cor.Loops)-1]
		cor.Loops = cor.Loops[:len(cor.Loops)-1]
		if len(cor.Marks) != top.MarkBase {
			vm.fail("mark stack mismatch (unloop)")
		}
	case bytecode.OpBreak:
		top := cor.Loops[len(cor.Loops)-1]
		cor.IP = top.EndIP
		for len(cor.Marks) > top.MarkBase {
			cor.Marks = cor.Marks[:len(cor.Marks)-1]
		}
		for vm.depth() > 0 {
			cor.Pop()
		}
	case bytecode.OpContinue:
		top := cor.Loops[len(cor.Loops)-1]
		cor.IP = top.EndIP - 1
		for len(cor.Marks) > top.MarkBase {
			cor.Marks = cor.Marks[:len(cor.Marks)-1]
		}
		for vm.depth() > 0 {
			cor.Pop()
		}
	case bytecode.OpStop:
		return true
	case bytecode.OpReturn:
		return vm.opReturn()
	case bytecode.OpCall:
		vm.call(cor.Pop())
	case bytecode.OpFor:
		vm.opFor(instr)
	case bytecode.OpPid:
		cor.Paths = append(cor.Paths, instr.Imm.I)

	case bytecode.OpCoroutine:
		vm.opCoroutine()
	case bytecode.OpResume:
		vm.opResume()
	case bytecode.OpYield:
		vm.opYield()

	case bytecode.OpGlobal:
		cor.Push(value.MapItem(vm.Global))
	case bytecode.OpAssign:
		key := cor.Pop()
		idx := int(instr.Imm.I)
		var val value.Item
		if vm.depth() > 0 {
			val = cor.At(idx)
		} else {
			val = value.Nil()
		}
		vm.assign(key, val)
	case bytecode.OpFind:
		key := cor.Pop()
		val, ok := vm.find(key)
		if !ok {
			vm.fail("unknown name: %s", key.String())
		}
		cor.Push(val)
	case bytecode.OpGet:
		key := cor.Pop()
		src := cor.Pop()
		cor.Push(vm.get(src, key))
	case bytecode.OpSet:
		key := cor.Pop()
		dst := cor.Pop()
		idx := int(instr.Imm.I)
		var val value.Item
		if vm.depth() > 0 {
			val = cor.At(idx)
		} else {
			val = value.Nil()
		}
		vm.set(dst, key, val)
	case bytecode.OpCount:
		a := cor.Pop()
		n, err := vm.count(a)
		if err != nil {
			vm.fail("%v", err)
		}
		cor.Push(value.Int(n))
	case bytecode.OpAdd:
		b, a := cor.Pop(), cor.Pop()
		cor.Push(vm.arith(value.MetaAdd, a, b))
	case bytecode.OpSub:
		b, a := cor.Pop(), cor.Pop()
		cor.Push(vm.arith(value.MetaSub, a, b))
	case bytecode.OpMul:
		b, a := cor.Pop(), cor.Pop()
		cor.Push(vm.arith(value.MetaMul, a, b))
	case bytecode.OpDiv:
		b, a := cor.Pop(), cor.Pop()
		cor.Push(vm.arith(value.MetaDiv, a, b))
	case bytecode.OpMod:
		b, a := cor.Pop(), cor.Pop()
		if a.Kind != value.KindInt || b.Kind != value.KindInt {
			vm.fail("mod requires integers")
		}
		if b.I == 0 {
			vm.fail("division by zero")
		}
		cor.Push(value.Int(a.I % b.I))
	case bytecode.OpNeg:
		top := cor.Top()
		switch top.Kind {
		case value.KindInt:
			cor.Stack[len(cor.Stack)-1] = value.Int(-top.I)
		case value.KindFloat:
			cor.Stack[len(cor.Stack)-1] = value.Float(-top.F)
		default:
			vm.fail("cannot negate %s", top.String())
		}
	case bytecode.OpNot:
		cor.Push(value.Bool(!value.Truth(cor.Pop())))
	case bytecode.OpEq:
		b, a := cor.Pop(), cor.Pop()
		cor.Push(value.Bool(vm.equal(a, b)))
	case bytecode.OpNe:
		b, a := cor.Pop(), cor.Pop()
		cor.Push(value.Bool(!vm.equal(a, b)))
	case bytecode.OpLt:
		b, a := cor.Pop(), cor.Pop()
		cor.Push(value.Bool(vm.less(a, b)))
	case bytecode.OpGt:
		b, a := cor.Pop(), cor.Pop()
		cor.Push(value.Bool(vm.less(b, a)))
	case bytecode.OpLte:
		b, a := cor.Pop(), cor.Pop()
		cor.Push(value.Bool(!vm.less(b, a)))
	case bytecode.OpGte:
		b, a := cor.Pop(), cor.Pop()
		cor.Push(value.Bool(!vm.less(a, b)))
	case bytecode.OpConcat:
		b, a := cor.Pop(), cor.Pop()
		s := stringify(a) + stringify(b)
		cor.Push(value.String(vm.Interner.Intern(s)))
	case bytecode.OpMatch:
		b, a := cor.Pop(), cor.Pop()
		ok, err := vm.match(a, b)
		if err != nil {
			vm.fail("%v", err)
		}
		cor.Push(value.Bool(ok))
	case bytecode.OpSort:
		vm.opSort()
	case bytecode.OpPrint:
		vm.opPrint()
	case bytecode.OpAssert:
		top := cor.Pop()
		if !value.Truth(top) {
			vm.fail("assertion failed")
		}
	case bytecode.OpGc:
		vm.Collect()
	case bytecode.OpUnpack:
		v := cor.Pop()
		if v.Kind != value.KindVector {
			vm.fail("cannot unpack %s", v.String())
		}
		for _, it := range v.Vec.Items {
			cor.Push(it)
		}

	case bytecode.OpVector:
		vm.opVector()
	case bytecode.OpMap:
		_, m := vm.Maps.Alloc()
		*m = *value.NewMap()
		cor.Maps = append(cor.Maps, m)
	case bytecode.OpUnmap:
		m := cor.Maps[len(cor.Maps)-1]
		cor.Maps = cor.Maps[:len(cor.Maps)-1]
		cor.Push(value.MapItem(m))

	case bytecode.OpMetaGet:
		v := cor.Pop()
		cor.Push(metaOf(v))
	case bytecode.OpMetaSet:
		meta, v := cor.Pop(), cor.Pop()
		setMeta(v, meta)
	case bytecode.OpType:
		cor.Push(value.String(vm.Interner.Intern(cor.Pop().Kind.String())))

	case bytecode.OpSin, bytecode.OpCos, bytecode.OpTan, bytecode.OpAsin, bytecode.OpAcos,
		bytecode.OpAtan, bytecode.OpSqrt, bytecode.OpAbs, bytecode.OpFloor, bytecode.OpCeil:
		cor.Push(value.Float(math1(instr.Op, floatOf(cor.Pop()))))
	case bytecode.OpPow:
		b, a := cor.Pop(), cor.Pop()
		cor.Push(value.Float(math.Pow(floatOf(a), floatOf(b))))
	case bytecode.OpMin:
		b, a := cor.Pop(), cor.Pop()
		if value.Less(b, a) {
			cor.Push(b)
		} else {
			cor.Push(a)
		}
	case bytecode.OpMax:
		b, a := cor.Pop(), cor.Pop()
		if value.Less(a, b) {
			cor.Push(b)
		} else {
			cor.Push(a)
		}

	// fused forms
	case bytecode.OpFname:
		val, ok := vm.find(instr.Imm)
		if !ok {
			vm.fail("unknown name: %s", instr.Imm.String())
		}
		cor.Push(val)
	case bytecode.OpGname:
		src := cor.Pop()
		cor.Push(vm.get(src, instr.Imm))
	case bytecode.OpCfunc:
		fn := vm.callCache[instr.Cache]
		if fn.IsNil() {
			var ok bool
			fn, ok = vm.find(instr.Imm)
			if !ok {
				vm.fail("unknown name: %s", instr.Imm.String())
			}
			vm.callCache[instr.Cache] = fn
		}
		vm.call(fn)
	case bytecode.OpAssignL:
		var val value.Item
		if vm.depth() > 0 {
			val = cor.At(0)
		} else {
			val = value.Nil()
		}
		vm.assign(instr.Imm, val)
	case bytecode.OpAssignP:
		var val value.Item
		if vm.depth() > 0 {
			val = cor.At(0)
		} else {
			val = value.Nil()
		}
		vm.assign(instr.Imm, val)
		vm.limit(0)
	case bytecode.OpAddLit:
		a := cor.Pop()
		cor.Push(vm.arith(value.MetaAdd, a, instr.Imm))
	case bytecode.OpMulLit:
		a := cor.Pop()
		cor.Push(vm.arith(value.MetaMul, a, instr.Imm))
	case bytecode.OpCopies, bytecode.OpUpdate:
		vm.fail("unreachable opcode %s: never emitted by this compiler", instr.Op)

	default:
		vm.fail("unimplemented opcode %s", instr.Op)
	}
	return false
}

func (vm *VM) depth() int {
	cor := vm.cor()
	base := 0
	if len(cor.Marks) > 0 {
		base = cor.Marks[len(cor.Marks)-1]
	}
	return len(cor.Stack) - base
}

func (vm *VM) limit(count int) {
	cor := vm.cor()
	base := cor.Marks[len(cor.Marks)-1]
	cor.Marks = cor.Marks[:len(cor.Marks)-1]
	if count < 0 {
		return
	}
	want := base + count
	for want < len(cor.Stack) {
		cor.Pop()
	}
	for want > len(cor.Stack) {
		cor.Push(value.Nil())
	}
}

func stringify(it value.Item) string {
	if it.Kind == value.KindString {
		return *it.Str
	}
	return it.String()
}

func floatOf(it value.Item) float64 {
	if it.Kind == value.KindInt {
		return float64(it.I)
	}
	return it.F
}

func math1(op bytecode.Op, x float64) float64 {
	switch op {
	case bytecode.OpSin:
		return math.Sin(x)
	case bytecode.OpCos:
		return math.Cos(x)
	case bytecode.OpTan:
		return math.Tan(x)
	case bytecode.OpAsin:
		return math.Asin(x)
	case bytecode.OpAcos:
		return math.Acos(x)
	case bytecode.OpAtan:
		return math.Atan(x)
	case bytecode.OpSqrt:
		return math.Sqrt(x)
	case bytecode.OpAbs:
		return math.Abs(x)
	case bytecode.OpFloor:
		return math.Floor(x)
	case bytecode.OpCeil:
		return math.Ceil(x)
	}
	return x
}

func (vm *VM) arith(op value.MetaOp, a, b value.Item) value.Item {
	if isNumericOrString(a) && isNumericOrString(b) && !(a.Kind == value.KindString || b.Kind == value.KindString) {
		switch op {
		case value.MetaAdd:
			return value.Add(a, b)
		case value.MetaSub:
			return value.Subtract(a, b)
		case value.MetaMul:
			return value.Mul(a, b)
		case value.MetaDiv:
			v, ok := value.Div(a, b)
			if !ok {
				vm.fail("division by zero")
			}
			return v
		}
	}
	res, ok, err := value.TryMeta(op, a, b, true, vm.invokeMeta)
	if err != nil {
		vm.fail("%v", err)
	}
	if ok {
		return res
	}
	vm.fail("cannot %s %s and %s", metaVerb(op), a.String(), b.String())
	return value.Nil()
}

func metaVerb(op value.MetaOp) string {
	switch op {
	case value.MetaAdd:
		return "add"
	case value.MetaSub:
		return "subtract"
	case value.MetaMul:
		return "multiply"
	case value.MetaDiv:
		return "divide"
	}
	return string(op)
}

func isNumericOrString(it value.Item) bool {
	return it.Kind == value.KindInt || it.Kind == value.KindFloat || it.Kind == value.KindString
}

func (vm *VM) equal(a, b value.Item) bool {
	if value.Equal(a, b) {
		return true
	}
	res, ok, err := value.TryMeta(value.MetaEq, a, b, true, vm.invokeMeta)
	if err == nil && ok {
		return value.Truth(res)
	}
	return false
}

// less implements "<", preferring a MetaLt meta-method the same way
// equal/arith prefer MetaEq/MetaAdd-etc, so setmeta(a, {"<"=fn}) is
// honored by every comparison opcode built on it (<, >, <=, >=).
func (vm *VM) less(a, b value.Item) bool {
	res, ok, err := value.TryMeta(value.MetaLt, a, b, true, vm.invokeMeta)
	if err == nil && ok {
		return value.Truth(res)
	}
	return value.Less(a, b)
}

func (vm *VM) count(a value.Item) (int64, error) {
	if a.Kind == value.KindVector || a.Kind == value.KindMap || a.Kind == value.KindString {
		return value.Count(a), nil
	}
	res, ok, err := value.TryMeta(value.MetaCount, a, value.Nil(), false, vm.invokeMeta)
	if err != nil {
		return 0, err
	}
	if ok {
		return value.Count(res), nil
	}
	return 0, fmt.Errorf("cannot count %s", a.String())
}

// invokeMeta calls a meta handler (Sub or Callback) with the given
// arguments, reusing the VM's own call machinery so a Rela-defined meta
// method runs exactly like any other function call.
func (vm *VM) invokeMeta(fn value.Item, args []value.Item) (value.Item, error) {
	cor := vm.cor()
	cor.Marks = append(cor.Marks, len(cor.Stack))
	for _, a := range args {
		cor.Push(a)
	}
	vm.call(fn)
	if fn.Kind == value.KindSub {
		vm.runUntilDepart(len(cor.Calls))
	}
	vm.limit(1)
	return cor.Pop(), nil
}

// runUntilDepart drives the dispatch loop until the call stack shrinks
// back below targetDepth — used to run a meta-method or host-driven call
// synchronously to completion from Go code.
func (vm *VM) runUntilDepart(targetDepth int) {
	cor := vm.cor()
	for len(cor.Calls) >= targetDepth && cor.IP < vm.Chunk.Len() {
		instr := vm.Chunk.At(cor.IP)
		cor.IP++
		if vm.step(instr) {
			return
		}
	}
}
