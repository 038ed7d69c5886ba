package vm

import (
	"fmt"
	"io"

	"github.com/seanpringle/rela/internal/bytecode"
	"github.com/seanpringle/rela/internal/value"
)

// The methods below are the embedding surface (§4.I): a native callback,
// given the *VM as its opaque Context, drives the active coroutine's
// operand stack exactly the way bytecode does.

func (vm *VM) Depth() int           { return vm.depth() }
func (vm *VM) Push(it value.Item)   { vm.cor().Push(it) }
func (vm *VM) Pop() value.Item      { return vm.cor().Pop() }
func (vm *VM) Top() value.Item      { return vm.cor().Top() }
func (vm *VM) Pick(i int) value.Item { return vm.cor().At(i) }

// Custom returns the opaque host pointer configured at VM construction,
// passed through unchanged to native callbacks.
func (vm *VM) Custom() any { return vm.custom }

// RegisterNative installs a native callback into the read-only core
// scope under name, where script code finds it via the usual find()
// scope-chain/global/core lookup.
func (vm *VM) RegisterNative(name string, fn func(any) (int, error)) {
	key := value.String(vm.Interner.Intern(name))
	vm.Core.Set(key, value.CbItem(value.Callback(fn)))
}

// AllocVector/AllocMap let native callbacks build container values the
// same pooled way the VM's own OP_VECTOR/OP_MAP do, so they participate in
// GC like any script-constructed value. NewUserdata below is not pooled.
func (vm *VM) AllocVector() *value.Vector {
	_, v := vm.Vectors.Alloc()
	*v = *value.NewVector()
	return v
}

func (vm *VM) AllocMap() *value.Map {
	_, m := vm.Maps.Alloc()
	*m = *value.NewMap()
	return m
}

func (vm *VM) NewUserdata(id string, data any) *value.Userdata {
	return &value.Userdata{ID: id, Data: data}
}

// ChunkLen, Emit, SetCore, CoreGet and Intern let internal/stdlib append
// built-in bytecode stubs and populate the core scope without reaching
// into VM internals directly.
func (vm *VM) ChunkLen() int { return vm.Chunk.Len() }

func (vm *VM) Emit(op bytecode.Op, imm value.Item) {
	vm.Chunk.Emit(op, imm, bytecode.Debug{})
}

func (vm *VM) SetCore(name string, it value.Item) {
	vm.Core.Set(value.String(vm.Interner.Intern(name)), it)
}

func (vm *VM) CoreGet(name string) (value.Item, bool) {
	return vm.Core.GetOk(value.String(vm.Interner.Intern(name)))
}

func (vm *VM) Intern(s string) *string { return vm.Interner.Intern(s) }

// Decompile writes one "ip  cache  opcode  literal" line per instruction,
// per §6's CLI contract.
func Decompile(chunk *bytecode.Chunk, w io.Writer) {
	for ip, instr := range chunk.Code {
		lit := ""
		if !instr.Imm.IsNil() {
			lit = instr.Imm.String()
		}
		fmt.Fprintf(w, "%04d  %4d  %-10s  %s\n", ip, instr.Cache, instr.Op.String(), lit)
	}
}
