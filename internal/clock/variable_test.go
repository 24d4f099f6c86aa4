package clock

import "testing"

func TestUnifyUnknownWithUnknownSharesRepresentative(t *testing.T) {
	v1 := CreateUnknown()
	v2 := CreateUnknown()

	if err := Unify(v1, v2); err != nil {
		t.Fatalf("unexpected error unifying two unknowns: %v", err)
	}
	if IsKnown(v1) || IsKnown(v2) {
		t.Fatal("expected both variables to remain unknown after merge")
	}
	if find(v1) != find(v2) {
		t.Fatal("expected v1 and v2 to share a representative after unify")
	}
}

func TestUnifyUnknownWithKnownBindsBoth(t *testing.T) {
	c := NewClock("t", false, nil)
	unknown := CreateUnknown()
	known := CreateKnown(c)

	if err := Unify(unknown, known); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if unknown.Clock() != c {
		t.Fatalf("expected previously-unknown variable bound to %v, got %v", c, unknown.Clock())
	}
}

func TestUnifySameClockIsNoop(t *testing.T) {
	c := NewClock("t", false, nil)
	v1 := CreateKnown(c)
	v2 := CreateKnown(c)

	if err := Unify(v1, v2); err != nil {
		t.Fatalf("unifying two variables bound to the same clock should not error: %v", err)
	}
}

func TestUnifyConflictingClocksErrors(t *testing.T) {
	c1 := NewClock("c1", false, nil)
	c2 := NewClock("c2", false, nil)
	v1 := CreateKnown(c1)
	v2 := CreateKnown(c2)

	err := Unify(v1, v2)
	if err == nil {
		t.Fatal("expected ErrClockConflict unifying two distinct bound clocks")
	}
	var conflict *ErrClockConflict
	if !isClockConflict(err, &conflict) {
		t.Fatalf("expected *ErrClockConflict, got %T: %v", err, err)
	}
	if conflict.A != c1 || conflict.B != c2 {
		t.Fatalf("expected conflict to name c1/c2, got %v/%v", conflict.A, conflict.B)
	}
}

func isClockConflict(err error, target **ErrClockConflict) bool {
	c, ok := err.(*ErrClockConflict)
	if ok {
		*target = c
	}
	return ok
}

func TestUnifyIsIdempotentOnSameRepresentative(t *testing.T) {
	v := CreateUnknown()
	if err := Unify(v, v); err != nil {
		t.Fatalf("unifying a variable with itself should be a no-op, got %v", err)
	}
}
