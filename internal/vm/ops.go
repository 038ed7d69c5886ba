package vm

import (
	"fmt"
	"regexp"

	"github.com/seanpringle/rela/internal/bytecode"
	"github.com/seanpringle/rela/internal/value"
)

// locate finds a local variable cell by key, walking at most `frames`
// call frames outward from the innermost, filtered by whether a
// candidate frame's own function id appears in the *current* frame's
// scope-path — i.e. whether it is a lexically enclosing function, not
// merely a dynamic caller. Grounded directly in rela.c's locate(): see
// SPEC_FULL.md "Scope-id path / upvalue resolution".
func (vm *VM) locate(key value.Item, frames int) *value.Item {
	cor := vm.cor()
	if len(cor.Calls) == 0 {
		return nil
	}

	frameLast := len(cor.Calls) - 1
	frame := frameLast

	pidsBase := cor.Calls[frame].PathBase
	depth := len(cor.Paths) - pidsBase

	for frames > 0 && frame >= 0 {
		pathsBase := cor.Calls[frame].PathBase
		pid := cor.Paths[pathsBase]

		// Index 0 of the current path is the current function's own id; an
		// outer frame matching only that is a recursive caller, not an
		// enclosing scope, so outer frames are matched from index 1.
		start := 1
		if frame == frameLast {
			start = 0
		}
		check := false
		for i := start; i < depth && !check; i++ {
			if pid == cor.Paths[pidsBase+i] {
				check = true
			}
		}

		if check {
			localBase := cor.Calls[frame].LocalBase
			localLast := len(cor.Locals)
			if frame < frameLast {
				localLast = cor.Calls[frame+1].LocalBase
			}
			for i := localBase; i < localLast; i++ {
				if value.Equal(cor.Locals[i].Key, key) {
					return &cor.Locals[i].Val
				}
			}
		}

		frame--
		frames--
	}
	return nil
}

// assign implements §4.E's overloaded OP_ASSIGN: writes into the
// map-under-construction if one is open, else into the current call
// frame's locals (creating the slot if absent), else — with no open call
// frame, i.e. top-level code — into the global scope.
func (vm *VM) assign(key, val value.Item) {
	cor := vm.cor()
	m := cor.CurrentMap()

	if m == nil && len(cor.Calls) > 0 {
		if local := vm.locate(key, 1); local != nil {
			*local = val
			return
		}
		cor.Locals = append(cor.Locals, value.Local{Key: key, Val: val})
		return
	}

	if m != nil {
		m.Set(key, val)
		return
	}
	vm.Global.Set(key, val)
}

// find resolves a name: local scope chain first, then the user global
// table, then the host/stdlib core table.
func (vm *VM) find(key value.Item) (value.Item, bool) {
	if local := vm.locate(key, 100); local != nil {
		return *local, true
	}
	if v, ok := vm.Global.GetOk(key); ok {
		return v, true
	}
	if v, ok := vm.Core.GetOk(key); ok {
		return v, true
	}
	return value.Nil(), false
}

func (vm *VM) get(src, key value.Item) value.Item {
	switch src.Kind {
	case value.KindVector:
		if key.Kind != value.KindInt {
			vm.fail("cannot index vector with %s", key.String())
		}
		v, ok := src.Vec.Get(int(key.I))
		if !ok {
			return value.Nil()
		}
		return v
	case value.KindMap:
		return src.Map.Get(key)
	}
	res, ok, err := value.TryMeta(value.MetaString, src, key, true, vm.invokeMeta)
	if err == nil && ok {
		return res
	}
	vm.fail("cannot get %s from %s", key.String(), src.String())
	return value.Nil()
}

func (vm *VM) set(dst, key, val value.Item) {
	switch dst.Kind {
	case value.KindVector:
		if key.Kind != value.KindInt {
			vm.fail("cannot index vector with %s", key.String())
		}
		if !dst.Vec.Set(int(key.I), val) {
			vm.fail("vector index out of range: %d", key.I)
		}
		return
	case value.KindMap:
		dst.Map.Set(key, val)
		return
	}
	vm.fail("cannot set %s in %s", key.String(), dst.String())
}

// metaOf/setMeta expose the meta Item carried by Vector/Map/Userdata —
// only these three kinds carry one (§4.C); Coroutine cannot.
func metaOf(it value.Item) value.Item {
	switch it.Kind {
	case value.KindVector:
		return it.Vec.Meta
	case value.KindMap:
		return it.Map.Meta
	case value.KindUserdata:
		return it.User.Meta
	}
	return value.Nil()
}

func setMeta(it, meta value.Item) {
	switch it.Kind {
	case value.KindVector:
		it.Vec.Meta = meta
	case value.KindMap:
		it.Map.Meta = meta
	case value.KindUserdata:
		it.User.Meta = meta
	}
}

// arrive pushes a new call frame, recording the depths to restore on
// departure, then jumps. The "other" stash absorbs any open maps the
// caller has under construction so op_map/op_unmap in the new frame
// don't confuse them with the caller's (rela.c arrive()/depart()).
func (vm *VM) arrive(ip int) {
	cor := vm.cor()
	cor.Calls = append(cor.Calls, value.Frame{
		LocalBase: len(cor.Locals),
		PathBase:  len(cor.Paths),
		LoopBase:  len(cor.Loops),
		MarkBase:  len(cor.Marks),
		ReturnIP:  cor.IP,
	})
	cor.IP = ip

	n := len(cor.Maps)
	cor.Other = append(cor.Other, value.Int(int64(n)))
	for i := 0; i < n; i++ {
		cor.Other = append(cor.Other, value.MapItem(cor.Maps[len(cor.Maps)-1]))
		cor.Maps = cor.Maps[:len(cor.Maps)-1]
	}
}

func (vm *VM) depart() {
	cor := vm.cor()

	n := int(cor.Other[len(cor.Other)-1].I)
	cor.Other = cor.Other[:len(cor.Other)-1]
	for i := 0; i < n; i++ {
		top := cor.Other[len(cor.Other)-1]
		cor.Other = cor.Other[:len(cor.Other)-1]
		cor.Maps = append(cor.Maps, top.Map)
	}

	frame := cor.Calls[len(cor.Calls)-1]
	cor.Calls = cor.Calls[:len(cor.Calls)-1]

	cor.Locals = cor.Locals[:frame.LocalBase]
	cor.Paths = cor.Paths[:frame.PathBase]
	cor.Loops = cor.Loops[:frame.LoopBase]
	cor.Marks = cor.Marks[:frame.MarkBase]
	cor.IP = frame.ReturnIP
}

// call dispatches a Subroutine (by arriving at its entry ip) or invokes a
// native Callback synchronously.
func (vm *VM) call(fn value.Item) {
	switch fn.Kind {
	case value.KindCallback:
		_, err := fn.Cb(vm)
		if err != nil {
			vm.fail("%v", err)
		}
	case value.KindSub:
		vm.arrive(fn.Sub)
	default:
		vm.fail("invalid function: %s", fn.String())
	}
}

// opReturn departs the current frame; if that empties the call stack
// (control fell off the top of a coroutine body), the routine dies. A
// child coroutine then implicitly yields whatever it left on its stack
// to its resumer; the top-level routine has no resumer, so its death
// simply ends the run. A return with no call frame open (a top-level
// `return` statement) ends the routine the same way.
func (vm *VM) opReturn() (stop bool) {
	cor := vm.cor()
	if len(cor.Calls) == 0 {
		cor.State = value.Dead
		return true
	}
	vm.depart()
	if cor.IP == 0 {
		cor.State = value.Dead
		if len(vm.Routines) > 1 {
			vm.opYield()
			return false
		}
		return true
	}
	return false
}

func (vm *VM) opVector() {
	cor := vm.cor()
	base := cor.Marks[len(cor.Marks)-1]
	n := len(cor.Stack) - base
	_, vec := vm.Vectors.Alloc()
	*vec = *value.NewVector()
	for i := 0; i < n; i++ {
		vec.Push(cor.Stack[base+i])
	}
	cor.Stack = cor.Stack[:base]
	cor.Push(value.VecItem(vec))
}

// opPrint writes every value currently in the active sub-frame to vm.Out,
// tab-separated and newline-terminated, then drops them — rela.c's
// op_print, adapted to an injectable io.Writer instead of stdout.
func (vm *VM) opPrint() {
	cor := vm.cor()
	n := vm.depth()
	if n == 0 {
		return
	}
	base := len(cor.Stack) - n
	for i := 0; i < n; i++ {
		if i > 0 {
			fmt.Fprint(vm.Out, "\t")
		}
		fmt.Fprint(vm.Out, stringify(cor.Stack[base+i]))
	}
	fmt.Fprintln(vm.Out)
	cor.Stack = cor.Stack[:base]
}

func (vm *VM) opSort() {
	top := vm.cor().Pop()
	if top.Kind != value.KindVector {
		vm.fail("sort requires a vector")
	}
	top.Vec.Sort(value.Less)
	vm.cor().Push(top)
}

func (vm *VM) match(a, b value.Item) (bool, error) {
	if a.Kind != value.KindString || b.Kind != value.KindString {
		return false, fmt.Errorf("match requires two strings")
	}
	re, err := regexp.Compile(*b.Str)
	if err != nil {
		return false, fmt.Errorf("bad pattern: %v", err)
	}
	return re.MatchString(*a.Str), nil
}

// opFor drives one iteration step of a for-loop over an Integer range, a
// Vector, or a Map (rela.c op_for, same three cases; any other iterable
// kind ends the loop immediately rather than erroring, matching the
// original's silent fallthrough). The immediate is the *value.Vector of
// induction-variable name Items the compiler built, with the loop's end
// ip appended as its last element once the body had been compiled.
func (vm *VM) opFor(instr bytecode.Instr) {
	cor := vm.cor()
	vars := instr.Imm.Vec
	nVars := vars.Size() - 1
	quit := int(mustGet(vars, vars.Size()-1).I)

	step := cor.Pop()
	iter := cor.Top()

	varAt := func(i int) value.Item { return mustGet(vars, i) }

	switch iter.Kind {
	case value.KindInt:
		s := step.I
		if s == iter.I {
			cor.IP = quit
			return
		}
		idx := 0
		if nVars > 1 {
			vm.assign(varAt(idx), value.Int(s))
			idx++
		}
		vm.assign(varAt(idx), value.Int(s))
		cor.Push(value.Int(s + 1))

	case value.KindVector:
		s := int(step.I)
		if s >= iter.Vec.Size() {
			cor.IP = quit
			return
		}
		idx := 0
		if nVars > 1 {
			vm.assign(varAt(idx), value.Int(int64(s)))
			idx++
		}
		v, _ := iter.Vec.Get(s)
		vm.assign(varAt(idx), v)
		cor.Push(value.Int(int64(s + 1)))

	case value.KindMap:
		s := int(step.I)
		if s >= iter.Map.Size() {
			cor.IP = quit
			return
		}
		idx := 0
		if nVars > 1 {
			k, _ := iter.Map.Keys.Get(s)
			vm.assign(varAt(idx), k)
			idx++
		}
		v, _ := iter.Map.Vals.Get(s)
		vm.assign(varAt(idx), v)
		cor.Push(value.Int(int64(s + 1)))

	default:
		cor.IP = quit
	}
}

func mustGet(v *value.Vector, i int) value.Item {
	it, _ := v.Get(i)
	return it
}

// opCoroutine spawns a suspended Coroutine value from a Subroutine: it
// arrives into the entry ip on a fresh routine (so the frame/locals
// bookkeeping is ready) then immediately suspends without executing
// anything — the OP_PID/param-bind prologue itself only runs once the
// coroutine is first resumed. Mirrors rela.c's op_coroutine.
func (vm *VM) opCoroutine() {
	top := vm.cor()
	fn := top.Pop()
	if fn.Kind != value.KindSub {
		vm.fail("coroutine requires a function")
	}

	_, cor := vm.Coros.Alloc()
	*cor = *value.NewCoroutine()
	cor.State = value.Running

	vm.Routines = append(vm.Routines, cor)
	vm.arrive(fn.Sub)
	vm.Routines = vm.Routines[:len(vm.Routines)-1]
	cor.State = value.Suspended

	top.Push(value.CorItem(cor))
}

// opResume transfers every stack item above the coroutine handle itself
// into the resumed coroutine's stack, then switches the active routine
// to it; the VM's main loop keeps dispatching from the child's own ip.
func (vm *VM) opResume() {
	top := vm.cor()
	n := vm.depth()
	if n == 0 || top.At(0).Kind != value.KindCoroutine {
		vm.fail("resume requires a coroutine")
	}
	cor := top.At(0).Cor

	if cor.State == value.Dead {
		for i := 0; i < n; i++ {
			top.Pop()
		}
		top.Push(value.Nil())
		return
	}

	cor.State = value.Running
	for i := 1; i < n; i++ {
		cor.Stack = append(cor.Stack, top.At(i))
	}
	for i := 0; i < n; i++ {
		top.Pop()
	}

	vm.Routines = append(vm.Routines, cor)
}

// opYield transfers every item on the yielding routine's stack (relative
// to its own top mark) to its resumer's stack, switches back to the
// resumer, and widens the resumer's top mark by the yielded count so the
// values land inside whatever sub-frame called RESUME.
func (vm *VM) opYield() {
	src := vm.cor()
	n := vm.depth()

	vm.Routines = vm.Routines[:len(vm.Routines)-1]
	if len(vm.Routines) == 0 {
		// top-level routine yielding with nobody to resume it: treat as
		// a no-op drain, nothing left to transfer to.
		vm.Routines = append(vm.Routines, src)
		return
	}
	dst := vm.cor()

	base := len(src.Stack) - n
	for i := 0; i < n; i++ {
		dst.Push(src.Stack[base+i])
	}
	src.Stack = src.Stack[:base]

	if src.State != value.Dead {
		src.State = value.Suspended
	}
	if len(dst.Marks) > 0 {
		dst.Marks[len(dst.Marks)-1] += n
	}
}
