package pool

import "sort"

// Interner implements the two-region interned-string table of §4.A: a
// stable "old" region and a GC-sweepable "young" region, both sorted so
// that intern() is a binary search. Interning makes string equality
// collapse to pointer identity (§3 Invariants).
type Interner struct {
	old   []*string
	young []*string
}

func NewInterner() *Interner {
	return &Interner{}
}

func search(region []*string, s string) (int, bool) {
	i := sort.Search(len(region), func(i int) bool { return *region[i] >= s })
	if i < len(region) && *region[i] == s {
		return i, true
	}
	return i, false
}

// Intern returns the canonical pointer for s, inserting into the young
// region if s has never been seen.
func (in *Interner) Intern(s string) *string {
	if i, ok := search(in.old, s); ok {
		return in.old[i]
	}
	i, ok := search(in.young, s)
	if ok {
		return in.young[i]
	}
	owned := s
	in.young = append(in.young, nil)
	copy(in.young[i+1:], in.young[i:])
	in.young[i] = &owned
	return &owned
}

// Promote moves the current young region into old, called at the end of
// compilation so every literal referenced by bytecode survives GC sweeps
// of subsequent runs. young starts empty afterward.
func (in *Interner) Promote() {
	if len(in.young) == 0 {
		return
	}
	merged := make([]*string, 0, len(in.old)+len(in.young))
	oi, yi := 0, 0
	for oi < len(in.old) && yi < len(in.young) {
		if *in.old[oi] <= *in.young[yi] {
			merged = append(merged, in.old[oi])
			oi++
		} else {
			merged = append(merged, in.young[yi])
			yi++
		}
	}
	merged = append(merged, in.old[oi:]...)
	merged = append(merged, in.young[yi:]...)
	in.old = merged
	in.young = nil
}

// Sweep drops every young string not referenced by the liveness
// predicate `live`. Called by the GC; the old region is never swept
// (§4.H: "GC sweeps young only").
func (in *Interner) Sweep(live func(s *string) bool) {
	kept := in.young[:0]
	for _, s := range in.young {
		if live(s) {
			kept = append(kept, s)
		}
	}
	in.young = kept
}

// YoungLen and OldLen expose region sizes for GC/decompile diagnostics.
func (in *Interner) YoungLen() int { return len(in.young) }
func (in *Interner) OldLen() int   { return len(in.old) }
