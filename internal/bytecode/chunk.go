package bytecode

import "github.com/seanpringle/rela/internal/value"

// Debug carries source-position info for one instruction, used to format
// §7's "(ip <n>)" runtime error suffix and the -d decompile listing.
type Debug struct {
	Line int
	Col  int
	File string
}

// Instr is a single compiled instruction: an opcode, its immediate Item
// (value.Nil() when unused), and a dense cache-slot index used only by
// OpCfunc (§4.E "Call-site cache").
type Instr struct {
	Op    Op
	Imm   value.Item
	Cache int
	Debug Debug
}

// Chunk is the flat, append-only bytecode array produced by the compiler.
// Jump targets are instruction indices within the same Chunk (§3
// Invariants: "jump targets resolve to instruction indices within the
// same module").
type Chunk struct {
	Code []Instr
	// ModuleStart records, per module name, the instruction index its
	// compiled code begins at (component I: "bytecode array with a start
	// offset per module").
	ModuleStart map[string]int
	ModuleOrder []string
	CacheSlots  int
}

func NewChunk() *Chunk {
	return &Chunk{ModuleStart: map[string]int{}}
}

func (c *Chunk) Len() int { return len(c.Code) }

func (c *Chunk) Emit(op Op, imm value.Item, dbg Debug) int {
	c.Code = append(c.Code, Instr{Op: op, Imm: imm, Debug: dbg})
	return len(c.Code) - 1
}

func (c *Chunk) At(ip int) Instr { return c.Code[ip] }

func (c *Chunk) Patch(ip int, imm value.Item) {
	c.Code[ip].Imm = imm
}

func (c *Chunk) NextCacheSlot() int {
	slot := c.CacheSlots
	c.CacheSlots++
	return slot
}

func (c *Chunk) StartModule(name string) {
	if _, ok := c.ModuleStart[name]; ok {
		return
	}
	c.ModuleStart[name] = len(c.Code)
	c.ModuleOrder = append(c.ModuleOrder, name)
}
