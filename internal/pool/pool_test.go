package pool

import "testing"

func TestAllocReusesFreedSlots(t *testing.T) {
	p := New[int](2)

	i0, v0 := p.Alloc()
	*v0 = 10
	i1, v1 := p.Alloc()
	*v1 = 20

	p.Free(i0)
	if p.IsUsed(i0) {
		t.Fatal("slot should be free after Free")
	}

	i2, v2 := p.Alloc()
	*v2 = 30
	if i2 != i0 {
		t.Fatalf("Alloc after Free should reuse slot %d, got %d", i0, i2)
	}
	if *p.At(i1) != 20 {
		t.Fatalf("unrelated slot %d corrupted: %d", i1, *p.At(i1))
	}
}

func TestGrowsAcrossPages(t *testing.T) {
	p := New[int](2)
	indices := make([]int, 0, 10)
	for i := 0; i < 10; i++ {
		idx, v := p.Alloc()
		*v = i
		indices = append(indices, idx)
	}
	if p.Extant() != 10 {
		t.Fatalf("Extant = %d; want 10", p.Extant())
	}
	for i, idx := range indices {
		if *p.At(idx) != i {
			t.Fatalf("At(%d) = %d; want %d", idx, *p.At(idx), i)
		}
	}
}

func TestMarkSweep(t *testing.T) {
	p := New[int](8)
	keep, _ := p.Alloc()
	drop, _ := p.Alloc()

	p.ClearMarks()
	p.Mark(keep)

	var released []int
	freed := p.Sweep(func(index int, obj *int) { released = append(released, index) })

	if freed != 1 || len(released) != 1 || released[0] != drop {
		t.Fatalf("Sweep freed %v (count %d); want only %d", released, freed, drop)
	}
	if !p.IsUsed(keep) {
		t.Fatal("marked slot should survive sweep")
	}
	if p.IsUsed(drop) {
		t.Fatal("unmarked slot should be freed by sweep")
	}
}

func TestIndexOf(t *testing.T) {
	p := New[int](4)
	idx, ptr := p.Alloc()
	if got := p.IndexOf(ptr); got != idx {
		t.Fatalf("IndexOf(ptr) = %d; want %d", got, idx)
	}
	var stray int
	if got := p.IndexOf(&stray); got != -1 {
		t.Fatalf("IndexOf(unrelated ptr) = %d; want -1", got)
	}
}
