package value

import "testing"

func TestVectorNegativeIndex(t *testing.T) {
	v := NewVector()
	v.Push(Int(1))
	v.Push(Int(2))
	v.Push(Int(3))

	it, ok := v.Get(-1)
	if !ok || it.I != 3 {
		t.Fatalf("Get(-1) = %v, %v; want 3, true", it, ok)
	}

	if ok := v.Set(-1, Int(30)); !ok {
		t.Fatalf("Set(-1) failed")
	}
	if it, _ := v.Get(2); it.I != 30 {
		t.Fatalf("after Set(-1, 30), Get(2) = %v; want 30", it)
	}
}

func TestVectorInsertDelete(t *testing.T) {
	v := NewVector()
	v.Push(Int(1))
	v.Push(Int(3))
	v.Insert(1, Int(2))

	if v.Size() != 3 {
		t.Fatalf("Size = %d; want 3", v.Size())
	}
	for i, want := range []int64{1, 2, 3} {
		it, _ := v.Get(i)
		if it.I != want {
			t.Errorf("Get(%d) = %d; want %d", i, it.I, want)
		}
	}

	v.Delete(1)
	if v.Size() != 2 {
		t.Fatalf("Size after Delete = %d; want 2", v.Size())
	}
	it, _ := v.Get(1)
	if it.I != 3 {
		t.Fatalf("Get(1) after Delete = %d; want 3", it.I)
	}
}

func TestVectorSort(t *testing.T) {
	v := NewVector()
	for _, n := range []int64{5, 3, 8, 1, 9, 2, 7} {
		v.Push(Int(n))
	}
	v.Sort(Less)

	prev := int64(-1 << 62)
	for i := 0; i < v.Size(); i++ {
		it, _ := v.Get(i)
		if it.I < prev {
			t.Fatalf("not sorted at %d: %d < %d", i, it.I, prev)
		}
		prev = it.I
	}
}

func TestVectorLowerBound(t *testing.T) {
	v := NewVector()
	for _, n := range []int64{1, 3, 5, 7, 9} {
		v.Push(Int(n))
	}
	idx := v.LowerBound(Int(5), Less)
	if idx != 2 {
		t.Fatalf("LowerBound(5) = %d; want 2", idx)
	}
	idx = v.LowerBound(Int(4), Less)
	if idx != 2 {
		t.Fatalf("LowerBound(4) = %d; want 2", idx)
	}
	idx = v.LowerBound(Int(10), Less)
	if idx != 5 {
		t.Fatalf("LowerBound(10) = %d; want 5", idx)
	}
}
