// Package value implements Rela's tagged-union runtime value ("Item"),
// its containers (Vector, Map), and the equality/ordering/arithmetic/
// truthiness rules that the compiler-emitted opcodes rely on.
package value

import "fmt"

// Kind is the tag of an Item.
type Kind uint8

const (
	KindNil Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindVector
	KindMap
	KindSub
	KindCoroutine
	KindCallback
	KindUserdata
	KindNode // AST node, only meaningful during compilation
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindBool:
		return "boolean"
	case KindString:
		return "string"
	case KindVector:
		return "vector"
	case KindMap:
		return "map"
	case KindSub:
		return "subroutine"
	case KindCoroutine:
		return "coroutine"
	case KindCallback:
		return "callback"
	case KindUserdata:
		return "userdata"
	case KindNode:
		return "node"
	}
	return "???"
}

// Callback is a native function registered by the host. It receives the
// active VM through the opaque Context interface defined by the embedding
// API (package rela) — value does not depend on vm, so the function type
// is expressed over an interface{} the caller type-asserts back to
// rela.Context. It returns the number of result values it pushed onto the
// operand stack (mirroring the original rela_callback's "@return number
// of relevant stack items"), or an error to raise a HostError.
type Callback func(ctx any) (int, error)

// Item is Rela's tagged-union runtime value. It is small enough to pass
// by value, which every container and every VM operand-stack slot does.
type Item struct {
	Kind Kind

	I    int64
	F    float64
	B    bool
	Str  *string // canonical pointer into the intern table; equality is pointer identity
	Vec  *Vector
	Map  *Map
	Sub  int // bytecode entry-point index
	Cor  *Coroutine
	Cb   Callback
	User *Userdata
	Node any // *ast.Node, opaque here to avoid an import cycle
}

func Nil() Item                { return Item{Kind: KindNil} }
func Int(i int64) Item         { return Item{Kind: KindInt, I: i} }
func Float(f float64) Item     { return Item{Kind: KindFloat, F: f} }
func Bool(b bool) Item         { return Item{Kind: KindBool, B: b} }
func String(s *string) Item    { return Item{Kind: KindString, Str: s} }
func VecItem(v *Vector) Item   { return Item{Kind: KindVector, Vec: v} }
func MapItem(m *Map) Item      { return Item{Kind: KindMap, Map: m} }
func Sub(ip int) Item          { return Item{Kind: KindSub, Sub: ip} }
func CorItem(c *Coroutine) Item { return Item{Kind: KindCoroutine, Cor: c} }
func CbItem(cb Callback) Item  { return Item{Kind: KindCallback, Cb: cb} }
func UserItem(u *Userdata) Item { return Item{Kind: KindUserdata, User: u} }
func NodeItem(n any) Item      { return Item{Kind: KindNode, Node: n} }

func (it Item) IsNil() bool { return it.Kind == KindNil }

// Userdata carries an opaque host pointer plus a meta Item for operator
// dispatch. Unlike Vector/Map/Coroutine it is an ordinary Go allocation,
// not drawn from a VM pool, and the VM's Collect does not sweep it.
type Userdata struct {
	ID   string // host-visible identity tag (uuid), see internal/value/userdata.go
	Data any
	Meta Item
}

func (it Item) String() string {
	switch it.Kind {
	case KindNil:
		return "nil"
	case KindInt:
		return fmt.Sprintf("%d", it.I)
	case KindFloat:
		return fmt.Sprintf("%g", it.F)
	case KindBool:
		if it.B {
			return "true"
		}
		return "false"
	case KindString:
		if it.Str == nil {
			return ""
		}
		return *it.Str
	case KindVector:
		return it.Vec.debugString()
	case KindMap:
		return it.Map.debugString()
	case KindSub:
		return fmt.Sprintf("<function %d>", it.Sub)
	case KindCoroutine:
		return "<coroutine>"
	case KindCallback:
		return "<callback>"
	case KindUserdata:
		return fmt.Sprintf("<userdata %s>", it.User.ID)
	case KindNode:
		return "<node>"
	}
	return "???"
}
