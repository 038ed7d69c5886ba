// Package rela is the embeddable scripting runtime's public API: parse
// and compile one or more named modules into a shared bytecode Chunk,
// run them, and let native Go callbacks exchange values with the VM
// through opaque Item handles (§4.I "Embedding API").
package rela

import (
	"io"
	"os"

	"github.com/seanpringle/rela/internal/ast"
	"github.com/seanpringle/rela/internal/bytecode"
	"github.com/seanpringle/rela/internal/compiler"
	"github.com/seanpringle/rela/internal/pool"
	"github.com/seanpringle/rela/internal/rerr"
	"github.com/seanpringle/rela/internal/stdlib"
	"github.com/seanpringle/rela/internal/token"
	"github.com/seanpringle/rela/internal/value"
	"github.com/seanpringle/rela/internal/vm"
)

// Config controls the structures a Machine allocates, per SPEC_FULL.md's
// ambient configuration section.
type Config = vm.Config

func DefaultConfig() Config { return vm.DefaultConfig() }

// Error is the single error type every API surface returns; its Kind
// distinguishes OutOfMemory/ParseError/CompileError/TypeError/NameError/
// RuntimeError/HostError per §7.
type Error = rerr.RelaError

// Item is an opaque runtime value handle, passed to and returned from
// native callbacks. Its zero value is nil.
type Item struct{ it value.Item }

func (i Item) IsNil() bool    { return i.it.IsNil() }
func (i Item) String() string { return i.it.String() }

// Callback is a native function registered by the host, given a Context
// to interact with the calling VM's operand stack.
type Callback func(ctx Context) (int, error)

// Context is what a Callback sees: the operand stack of the VM that
// invoked it, per §4.I's "depth, push, pop, top, pick(i)" contract.
type Context interface {
	Depth() int
	Push(Item)
	Pop() Item
	Top() Item
	Pick(i int) Item

	IsNil(Item) bool
	IsInt(Item) bool
	IsFloat(Item) bool
	IsBool(Item) bool
	IsString(Item) bool
	IsVector(Item) bool
	IsMap(Item) bool
	IsCoroutine(Item) bool
	IsCallback(Item) bool
	IsUserdata(Item) bool

	ToInt(Item) int64
	ToFloat(Item) float64
	ToBool(Item) bool
	ToString(Item) string

	Nil() Item
	Int(int64) Item
	Float(float64) Item
	Bool(bool) Item
	String(string) Item
	Vector() Item
	Map() Item
	Userdata(id string, data any) Item

	VectorGet(v Item, i int) Item
	VectorPush(v Item, x Item)
	VectorSize(v Item) int
	MapGet(m Item, k Item) Item
	MapSet(m Item, k, v Item)
	MapSize(m Item) int

	MetaGet(Item) Item
	MetaSet(it, meta Item)

	UserdataValue(Item) any

	// Custom is the host pointer passed through unchanged from Config,
	// per §4.I "custom pointer pass-through".
	Custom() any
}

// Machine is one compiled program: its bytecode Chunk plus the resources
// (interner, VM) a Run needs. Modules can be added and compiled
// incrementally (multi-module programs, per component I).
type Machine struct {
	chunk    *bytecode.Chunk
	interner *pool.Interner
	cfg      Config
	out      io.Writer
	custom   any
	natives  map[string]Callback
	vm       *vm.VM
}

// New creates a Machine ready to compile and run modules.
func New(cfg Config, out io.Writer, custom any) *Machine {
	if out == nil {
		out = os.Stderr
	}
	return &Machine{
		chunk:    bytecode.NewChunk(),
		interner: pool.NewInterner(),
		cfg:      cfg,
		out:      out,
		custom:   custom,
		natives:  map[string]Callback{},
	}
}

// Register installs a native callback under name, made visible to script
// code through the read-only core scope (§4.I "register native callbacks
// by name (populated into core)").
func (m *Machine) Register(name string, fn Callback) {
	m.natives[name] = fn
}

// Compile parses and compiles src as a named module, appending to the
// shared Chunk. The returned ip is the module's entry point for Run.
func (m *Machine) Compile(name, src string) (ip int, err *Error) {
	toks, perr := scan(src, name)
	if perr != nil {
		return 0, perr
	}
	p := ast.NewParser(toks, src, name)
	root, e := p.Parse()
	if e != nil {
		return 0, asRelaError(e)
	}

	c := compiler.New(m.chunk, m.interner, name)
	if err := c.Module(name, root); err != nil {
		return 0, asRelaError(err)
	}
	compiler.Peephole(m.chunk, c.JumpTargets())
	m.interner.Promote()

	return m.chunk.ModuleStart[name], nil
}

func scan(src, file string) ([]token.Token, *Error) {
	sc := token.NewScanner(src, file)
	toks := sc.Scan()
	if err := sc.Err(); err != nil {
		return nil, rerr.NewParse(file, 1, 1, "", "%v", err)
	}
	return toks, nil
}

func asRelaError(err error) *Error {
	if re, ok := err.(*rerr.RelaError); ok {
		return re
	}
	return rerr.New(rerr.CompileError, "%v", err)
}

// Run executes the module whose Compile call returned ip, lazily
// building the underlying VM (and its core scope of natives plus the
// standard library) on first use so additional Compile calls can still
// extend the Chunk beforehand.
func (m *Machine) Run(ip int) *Error {
	if m.vm == nil {
		m.vm = vm.New(m.chunk, m.interner, m.cfg, m.out, m.custom)
		stdlib.Install(m.vm)
		for name, fn := range m.natives {
			m.vm.RegisterNative(name, adaptCallback(fn, m))
		}
	}
	return m.vm.Run(ip)
}

func adaptCallback(fn Callback, m *Machine) func(raw any) (int, error) {
	return func(raw any) (int, error) {
		v := raw.(*vm.VM)
		return fn(&context{vm: v, custom: m.custom})
	}
}

// Collect runs one mark-and-sweep GC pass over the VM's pooled heap and
// the interner's young string region (§4.I "collect").
func (m *Machine) Collect() {
	if m.vm != nil {
		m.vm.Collect()
	}
}

// Decompile writes one "NNNN  CACHE  OPCODE  LITERAL" line per
// instruction to w, per §6's CLI contract.
func (m *Machine) Decompile(w io.Writer) {
	vm.Decompile(m.chunk, w)
}
