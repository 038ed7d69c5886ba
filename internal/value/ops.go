package value

import "math"

// MetaOp names the operators that fall through to a meta-method lookup
// when a Vector, Map or Userdata carries a non-nil meta Item, per §4.C
// and the GLOSSARY entry for "Meta". Taken verbatim from the original
// rela.c dispatch table (op names "+","-","*","/","==","<","#","$").
type MetaOp string

const (
	MetaAdd    MetaOp = "+"
	MetaSub    MetaOp = "-"
	MetaMul    MetaOp = "*"
	MetaDiv    MetaOp = "/"
	MetaEq     MetaOp = "=="
	MetaLt     MetaOp = "<"
	MetaCount  MetaOp = "#"
	MetaString MetaOp = "$"
)

// MetaInvoker is supplied by the VM (package vm) so that value-level
// operators can fall through to a script-level meta-method without
// value importing vm. It calls sub/callback `fn` with args and returns
// its first result.
type MetaInvoker func(fn Item, args []Item) (Item, error)

func metaOf(it Item) Item {
	switch it.Kind {
	case KindVector:
		return it.Vec.Meta
	case KindMap:
		return it.Map.Meta
	case KindUserdata:
		return it.User.Meta
	}
	return Nil()
}

// lookupMeta fetches meta[name] when meta is a Map, or returns meta
// itself when it is directly callable (Sub/Callback).
func lookupMeta(meta Item, name MetaOp) Item {
	switch meta.Kind {
	case KindMap:
		var key = Item{Kind: KindString, Str: internedOp(name)}
		return meta.Map.Get(key)
	case KindSub, KindCallback:
		return meta
	}
	return Nil()
}

// internedOp is a process-local cache of the short operator-name strings
// used as meta keys; they never need full interning since they are
// compared by Equal, which falls back to byte comparison for non-pointer
// strings built this way (see Equal below).
var opStrings = map[MetaOp]*string{}

func internedOp(op MetaOp) *string {
	if s, ok := opStrings[op]; ok {
		return s
	}
	s := string(op)
	opStrings[op] = &s
	return &s
}

// Equal implements §4.C: type-equal then value-equal; Vector/Map compare
// by identity first, then structural recursion when no meta "==" exists;
// strings compare by interned pointer (falling back to byte equality for
// the rare non-interned string, e.g. meta-operator keys).
func Equal(a, b Item) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNil:
		return true
	case KindInt:
		return a.I == b.I
	case KindFloat:
		return a.F == b.F
	case KindBool:
		return a.B == b.B
	case KindString:
		if a.Str == b.Str {
			return true
		}
		if a.Str == nil || b.Str == nil {
			return false
		}
		return *a.Str == *b.Str
	case KindVector:
		if a.Vec == b.Vec {
			return true
		}
		return structuralVectorEqual(a.Vec, b.Vec)
	case KindMap:
		if a.Map == b.Map {
			return true
		}
		return structuralMapEqual(a.Map, b.Map)
	case KindSub:
		return a.Sub == b.Sub
	case KindCoroutine:
		return a.Cor == b.Cor
	case KindCallback:
		return sameCallback(a.Cb, b.Cb)
	case KindUserdata:
		return a.User == b.User
	}
	return false
}

func structuralVectorEqual(a, b *Vector) bool {
	if a.Size() != b.Size() {
		return false
	}
	for i := 0; i < a.Size(); i++ {
		ai, _ := a.Get(i)
		bi, _ := b.Get(i)
		if !Equal(ai, bi) {
			return false
		}
	}
	return true
}

func structuralMapEqual(a, b *Map) bool {
	if a.Size() != b.Size() {
		return false
	}
	for i := 0; i < a.Size(); i++ {
		ak, _ := a.Keys.Get(i)
		av, _ := a.Vals.Get(i)
		bv, ok := b.GetOk(ak)
		if !ok || !Equal(av, bv) {
			return false
		}
	}
	return true
}

// Less implements §4.C ordering: numeric for Integer/Float, lexicographic
// for String, by-length for Vector/Map; mixed types are never less.
func Less(a, b Item) bool {
	if a.Kind != b.Kind {
		if isNumeric(a) && isNumeric(b) {
			return asFloat(a) < asFloat(b)
		}
		return false
	}
	switch a.Kind {
	case KindInt:
		return a.I < b.I
	case KindFloat:
		return a.F < b.F
	case KindString:
		if a.Str == b.Str {
			return false
		}
		return *a.Str < *b.Str
	case KindVector:
		return a.Vec.Size() < b.Vec.Size()
	case KindMap:
		return a.Map.Size() < b.Map.Size()
	case KindBool:
		return !a.B && b.B
	}
	return false
}

func isNumeric(it Item) bool { return it.Kind == KindInt || it.Kind == KindFloat }

func asFloat(it Item) float64 {
	if it.Kind == KindInt {
		return float64(it.I)
	}
	return it.F
}

// Truth implements §4.C truthiness.
func Truth(it Item) bool {
	switch it.Kind {
	case KindNil:
		return false
	case KindBool:
		return it.B
	case KindInt:
		return it.I != 0
	case KindFloat:
		return it.F != 0
	case KindString:
		return it.Str != nil && *it.Str != ""
	case KindVector:
		return it.Vec.Size() > 0
	case KindMap:
		return it.Map.Size() > 0
	}
	return true
}

// Count implements §4.C: int-value, floor of float, string byte length,
// container size.
func Count(it Item) int64 {
	switch it.Kind {
	case KindInt:
		return it.I
	case KindFloat:
		return int64(math.Floor(it.F))
	case KindString:
		if it.Str == nil {
			return 0
		}
		return int64(len(*it.Str))
	case KindVector:
		return int64(it.Vec.Size())
	case KindMap:
		return int64(it.Map.Size())
	}
	return 0
}

// Arithmetic promotion table per §4.C: int+int->int, int+float->int
// (truncating, preserving the original's observable — if unusual —
// behavior per the Design Notes open question), float+int->float,
// float+float->float.
func Add(a, b Item) Item {
	if a.Kind == KindInt && b.Kind == KindInt {
		return Int(a.I + b.I)
	}
	if a.Kind == KindInt && b.Kind == KindFloat {
		return Int(a.I + int64(b.F))
	}
	if a.Kind == KindFloat && b.Kind == KindInt {
		return Float(a.F + float64(b.I))
	}
	return Float(asFloat(a) + asFloat(b))
}

func Neg(a Item) Item {
	if a.Kind == KindInt {
		return Int(-a.I)
	}
	return Float(-asFloat(a))
}

// Subtract implements the "-" operator (named to avoid colliding with
// the Sub Item constructor for KindSub subroutine values).
func Subtract(a, b Item) Item { return Add(a, Neg(b)) }

func Mul(a, b Item) Item {
	if a.Kind == KindInt && b.Kind == KindInt {
		return Int(a.I * b.I)
	}
	if a.Kind == KindInt && b.Kind == KindFloat {
		return Int(a.I * int64(b.F))
	}
	if a.Kind == KindFloat && b.Kind == KindInt {
		return Float(a.F * float64(b.I))
	}
	return Float(asFloat(a) * asFloat(b))
}

func Div(a, b Item) (Item, bool) {
	if a.Kind == KindInt && b.Kind == KindInt {
		if b.I == 0 {
			return Nil(), false
		}
		return Int(a.I / b.I), true
	}
	if a.Kind == KindInt && b.Kind == KindFloat {
		if b.F == 0 {
			return Nil(), false
		}
		return Int(int64(float64(a.I) / b.F)), true
	}
	if a.Kind == KindFloat && b.Kind == KindInt {
		if b.I == 0 {
			return Nil(), false
		}
		return Float(a.F / float64(b.I)), true
	}
	if b.F == 0 {
		return Nil(), false
	}
	return Float(asFloat(a) / asFloat(b)), true
}

// Mod is defined for integers only, per §4.C.
func Mod(a, b Item) (Item, bool) {
	if a.Kind != KindInt || b.Kind != KindInt || b.I == 0 {
		return Nil(), false
	}
	return Int(a.I % b.I), true
}

// TryMeta looks up MetaOp `op` on `a` (falling back to `b` when `a` has no
// meta and b is given) and, if found, invokes it with [a, b] (or [a] when
// b is the zero Item) via invoke. ok is false when neither operand
// carries a matching meta-method, in which case the caller should apply
// its own default behavior or raise a TypeError.
func TryMeta(op MetaOp, a, b Item, hasB bool, invoke MetaInvoker) (Item, bool, error) {
	meta := metaOf(a)
	if meta.IsNil() && hasB {
		meta = metaOf(b)
	}
	if meta.IsNil() {
		return Nil(), false, nil
	}
	fn := lookupMeta(meta, op)
	if fn.IsNil() {
		return Nil(), false, nil
	}
	args := []Item{a}
	if hasB {
		args = append(args, b)
	}
	res, err := invoke(fn, args)
	if err != nil {
		return Nil(), true, err
	}
	return res, true, nil
}

func sameCallback(a, b Callback) bool {
	// Go function values are not comparable in the general case; native
	// callbacks are only ever compared by identity through their
	// registration slot, which the VM's core-scope map already keys by
	// interned name, so two distinct Go closures are never equal here.
	return false
}
