package pool

import "testing"

func TestInternIdentity(t *testing.T) {
	in := NewInterner()
	a := in.Intern("hello")
	b := in.Intern("hello")
	if a != b {
		t.Fatal("interning the same string twice should return the same pointer")
	}
	c := in.Intern("world")
	if a == c {
		t.Fatal("interning different strings should return different pointers")
	}
}

func TestPromoteMovesYoungToOld(t *testing.T) {
	in := NewInterner()
	in.Intern("a")
	in.Intern("b")
	if in.YoungLen() != 2 || in.OldLen() != 0 {
		t.Fatalf("before Promote: young=%d old=%d; want 2,0", in.YoungLen(), in.OldLen())
	}
	in.Promote()
	if in.YoungLen() != 0 || in.OldLen() != 2 {
		t.Fatalf("after Promote: young=%d old=%d; want 0,2", in.YoungLen(), in.OldLen())
	}
	// Old strings stay canonical after promotion.
	p := in.Intern("a")
	if *p != "a" {
		t.Fatalf("Intern(a) after Promote = %q", *p)
	}
}

func TestSweepDropsDeadYoungOnly(t *testing.T) {
	in := NewInterner()
	keep := in.Intern("keep")
	in.Intern("drop")
	in.Promote()
	permanent := in.Intern("permanent")

	in.Sweep(func(s *string) bool { return s == keep })

	if in.YoungLen() != 0 {
		t.Fatalf("YoungLen after Sweep = %d; want 0", in.YoungLen())
	}
	if in.OldLen() != 2 {
		t.Fatalf("old region should be untouched by Sweep, got %d", in.OldLen())
	}
	_ = permanent
}
