// Package pool implements fixed-object pools with bitmap liveness
// (§4.A): objects are allocated from growable pages and freed only by the
// garbage collector's sweep, never individually by the mutator.
package pool

// Pool holds objects of type T in page-sized slabs, tracked by two
// parallel bitmaps: used (currently allocated) and mark (live as of the
// last GC mark phase). alloc scans from a next cursor for a free slot
// before growing by one page; index_of supports the GC's pointer-to-slot
// lookup when marking roots it discovers through Items.
type Pool[T any] struct {
	pageSize int
	pages    [][]T
	used     []bool
	mark     []bool
	next     int
	extant   int
}

// New creates a pool with the given page size (objects per growth step).
func New[T any](pageSize int) *Pool[T] {
	if pageSize <= 0 {
		pageSize = 64
	}
	return &Pool[T]{pageSize: pageSize}
}

func (p *Pool[T]) Depth() int { return len(p.used) }

func (p *Pool[T]) Extant() int { return p.extant }

func (p *Pool[T]) grow() {
	page := make([]T, p.pageSize)
	p.pages = append(p.pages, page)
	p.used = append(p.used, make([]bool, p.pageSize)...)
	p.mark = append(p.mark, make([]bool, p.pageSize)...)
}

func (p *Pool[T]) slot(index int) *T {
	page := index / p.pageSize
	cell := index % p.pageSize
	return &p.pages[page][cell]
}

// Alloc returns a slot index and a pointer to its (zeroed) storage.
func (p *Pool[T]) Alloc() (int, *T) {
	for i := p.next; i < len(p.used); i++ {
		if !p.used[i] {
			return p.allot(i)
		}
	}
	for i := 0; i < p.next && i < len(p.used); i++ {
		if !p.used[i] {
			return p.allot(i)
		}
	}
	index := len(p.used)
	p.grow()
	return p.allot(index)
}

func (p *Pool[T]) allot(index int) (int, *T) {
	p.used[index] = true
	ptr := p.slot(index)
	var zero T
	*ptr = zero
	p.next = index + 1
	p.extant++
	return index, ptr
}

// Free releases a slot for reuse. Called only by GC sweep.
func (p *Pool[T]) Free(index int) {
	if index < 0 || index >= len(p.used) || !p.used[index] {
		return
	}
	p.used[index] = false
	p.mark[index] = false
	p.extant--
}

func (p *Pool[T]) At(index int) *T { return p.slot(index) }

func (p *Pool[T]) IsUsed(index int) bool { return index >= 0 && index < len(p.used) && p.used[index] }

// IndexOf returns the slot index owning ptr, or -1. Used by the GC when it
// needs to map a live Go pointer back to a pool slot for marking.
func (p *Pool[T]) IndexOf(ptr *T) int {
	for page := 0; page*p.pageSize < len(p.used); page++ {
		base := &p.pages[page][0]
		off := uintptrDiff(ptr, base)
		if off >= 0 && off < p.pageSize {
			return page*p.pageSize + off
		}
	}
	return -1
}

// ClearMarks resets the mark bitmap ahead of a GC mark phase.
func (p *Pool[T]) ClearMarks() {
	for i := range p.mark {
		p.mark[i] = false
	}
}

func (p *Pool[T]) Mark(index int) {
	if index >= 0 && index < len(p.mark) {
		p.mark[index] = true
	}
}

func (p *Pool[T]) Marked(index int) bool {
	return index >= 0 && index < len(p.mark) && p.mark[index]
}

// Sweep frees every used-but-unmarked slot, invoking release on each
// before reclaiming it so the caller can drop owned buffers. Returns the
// number of slots freed.
func (p *Pool[T]) Sweep(release func(index int, obj *T)) int {
	freed := 0
	for i := range p.used {
		if p.used[i] && !p.mark[i] {
			if release != nil {
				release(i, p.slot(i))
			}
			p.Free(i)
			freed++
		}
	}
	return freed
}

// Each iterates every currently-used slot.
func (p *Pool[T]) Each(fn func(index int, obj *T)) {
	for i := range p.used {
		if p.used[i] {
			fn(i, p.slot(i))
		}
	}
}
