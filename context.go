package rela

import (
	"github.com/seanpringle/rela/internal/value"
	"github.com/seanpringle/rela/internal/vm"
)

// context adapts a *vm.VM to the Context interface a Callback sees,
// translating between the public Item handle and the internal
// value.Item it wraps (§4.I "opaque item handles").
type context struct {
	vm     *vm.VM
	custom any
}

func wrap(it value.Item) Item  { return Item{it: it} }
func unwrap(it Item) value.Item { return it.it }

func (c *context) Depth() int      { return c.vm.Depth() }
func (c *context) Push(it Item)    { c.vm.Push(unwrap(it)) }
func (c *context) Pop() Item       { return wrap(c.vm.Pop()) }
func (c *context) Top() Item       { return wrap(c.vm.Top()) }
func (c *context) Pick(i int) Item { return wrap(c.vm.Pick(i)) }

func (c *context) IsNil(it Item) bool       { return unwrap(it).Kind == value.KindNil }
func (c *context) IsInt(it Item) bool       { return unwrap(it).Kind == value.KindInt }
func (c *context) IsFloat(it Item) bool     { return unwrap(it).Kind == value.KindFloat }
func (c *context) IsBool(it Item) bool      { return unwrap(it).Kind == value.KindBool }
func (c *context) IsString(it Item) bool    { return unwrap(it).Kind == value.KindString }
func (c *context) IsVector(it Item) bool    { return unwrap(it).Kind == value.KindVector }
func (c *context) IsMap(it Item) bool       { return unwrap(it).Kind == value.KindMap }
func (c *context) IsCoroutine(it Item) bool { return unwrap(it).Kind == value.KindCoroutine }
func (c *context) IsCallback(it Item) bool  { return unwrap(it).Kind == value.KindCallback }
func (c *context) IsUserdata(it Item) bool  { return unwrap(it).Kind == value.KindUserdata }

func (c *context) ToInt(it Item) int64 {
	v := unwrap(it)
	if v.Kind == value.KindFloat {
		return int64(v.F)
	}
	return v.I
}
func (c *context) ToFloat(it Item) float64 {
	v := unwrap(it)
	if v.Kind == value.KindInt {
		return float64(v.I)
	}
	return v.F
}
func (c *context) ToBool(it Item) bool     { return value.Truth(unwrap(it)) }
func (c *context) ToString(it Item) string { return unwrap(it).String() }

func (c *context) Nil() Item           { return wrap(value.Nil()) }
func (c *context) Int(i int64) Item    { return wrap(value.Int(i)) }
func (c *context) Float(f float64) Item { return wrap(value.Float(f)) }
func (c *context) Bool(b bool) Item    { return wrap(value.Bool(b)) }
func (c *context) String(s string) Item {
	return wrap(value.String(c.vm.Interner.Intern(s)))
}
func (c *context) Vector() Item { return wrap(value.VecItem(c.vm.AllocVector())) }
func (c *context) Map() Item    { return wrap(value.MapItem(c.vm.AllocMap())) }
func (c *context) Userdata(id string, data any) Item {
	return wrap(value.UserItem(c.vm.NewUserdata(id, data)))
}

func (c *context) VectorGet(v Item, i int) Item {
	it, _ := unwrap(v).Vec.Get(i)
	return wrap(it)
}
func (c *context) VectorPush(v Item, x Item) { unwrap(v).Vec.Push(unwrap(x)) }
func (c *context) VectorSize(v Item) int     { return unwrap(v).Vec.Size() }

func (c *context) MapGet(m Item, k Item) Item  { return wrap(unwrap(m).Map.Get(unwrap(k))) }
func (c *context) MapSet(m Item, k, v Item)    { unwrap(m).Map.Set(unwrap(k), unwrap(v)) }
func (c *context) MapSize(m Item) int          { return unwrap(m).Map.Size() }

func (c *context) MetaGet(it Item) Item {
	switch unwrap(it).Kind {
	case value.KindVector:
		return wrap(unwrap(it).Vec.Meta)
	case value.KindMap:
		return wrap(unwrap(it).Map.Meta)
	case value.KindUserdata:
		return wrap(unwrap(it).User.Meta)
	}
	return wrap(value.Nil())
}

func (c *context) MetaSet(it, meta Item) {
	switch unwrap(it).Kind {
	case value.KindVector:
		unwrap(it).Vec.Meta = unwrap(meta)
	case value.KindMap:
		unwrap(it).Map.Meta = unwrap(meta)
	case value.KindUserdata:
		unwrap(it).User.Meta = unwrap(meta)
	}
}

func (c *context) UserdataValue(it Item) any { return unwrap(it).User.Data }

func (c *context) Custom() any { return c.custom }
