package vm

import "github.com/seanpringle/rela/internal/value"

// Collect runs one mark-and-sweep pass (§4.A, grounded in rela.c's gc()/
// gc_mark_item and friends). Roots are the two resident scope maps, every
// routine's six stacks (plus its nested maps-under-construction), the
// dense call-site cache, and every literal Item embedded in the compiled
// chunk. Only Vector/Map/Coroutine pool slots and the interner's young
// string region are swept; the old string region and the chunk itself
// are permanent for the life of the VM.
func (vm *VM) Collect() {
	vm.Vectors.ClearMarks()
	vm.Maps.ClearMarks()
	vm.Coros.ClearMarks()

	live := map[*string]bool{}

	var markItem func(it value.Item)

	markVector := func(vec *value.Vector) {
		if vec == nil {
			return
		}
		if idx := vm.Vectors.IndexOf(vec); idx >= 0 {
			if vm.Vectors.Marked(idx) {
				return
			}
			vm.Vectors.Mark(idx)
		}
		for _, it := range vec.Items {
			markItem(it)
		}
		markItem(vec.Meta)
	}

	var markMap func(m *value.Map)
	markMap = func(m *value.Map) {
		if m == nil {
			return
		}
		if idx := vm.Maps.IndexOf(m); idx >= 0 {
			if vm.Maps.Marked(idx) {
				return
			}
			vm.Maps.Mark(idx)
		}
		for _, it := range m.Keys.Items {
			markItem(it)
		}
		for _, it := range m.Vals.Items {
			markItem(it)
		}
		markItem(m.Meta)
	}

	markCor := func(c *value.Coroutine) {
		if c == nil {
			return
		}
		if idx := vm.Coros.IndexOf(c); idx >= 0 {
			if vm.Coros.Marked(idx) {
				return
			}
			vm.Coros.Mark(idx)
		}
		for _, it := range c.Stack {
			markItem(it)
		}
		for _, it := range c.Other {
			markItem(it)
		}
		for _, l := range c.Locals {
			markItem(l.Key)
			markItem(l.Val)
		}
		for _, m := range c.Maps {
			markMap(m)
		}
	}

	markItem = func(it value.Item) {
		switch it.Kind {
		case value.KindString:
			if it.Str != nil {
				live[it.Str] = true
			}
		case value.KindVector:
			markVector(it.Vec)
		case value.KindMap:
			markMap(it.Map)
		case value.KindCoroutine:
			markCor(it.Cor)
		case value.KindUserdata:
			if it.User != nil {
				markItem(it.User.Meta)
			}
		}
	}

	markMap(vm.Global)
	markMap(vm.Core)
	for _, cor := range vm.Routines {
		markCor(cor)
	}
	for i := 0; i < vm.Chunk.Len(); i++ {
		markItem(vm.Chunk.At(i).Imm)
	}
	for _, it := range vm.callCache {
		markItem(it)
	}

	vm.Vectors.Sweep(nil)
	vm.Maps.Sweep(nil)
	vm.Coros.Sweep(nil)
	vm.Interner.Sweep(func(s *string) bool { return live[s] })
}
