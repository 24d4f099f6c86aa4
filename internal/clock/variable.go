package clock

import "fmt"

// ErrClockConflict is returned by Unify when both sides are already
// known and bound to different clocks.
type ErrClockConflict struct {
	A, B *Clock
}

func (e *ErrClockConflict) Error() string {
	return fmt.Sprintf("clock conflict: %q already bound, cannot unify with %q", e.A.ID, e.B.ID)
}

// Variable is a union-find cell that is either unknown or known(clock).
// Sources hold a Variable so they can be created before the clock that
// will eventually drive them is decided.
type Variable struct {
	// parent is nil for a representative cell, otherwise points to the
	// cell it was merged into. find() follows parent chains and
	// path-compresses.
	parent *Variable
	clock  *Clock
}

// CreateUnknown returns a fresh variable with no bound clock.
func CreateUnknown() *Variable {
	return &Variable{}
}

// CreateKnown returns a variable already bound to c.
func CreateKnown(c *Clock) *Variable {
	return &Variable{clock: c}
}

// find returns the representative cell for v, path-compressing along
// the way. Not safe for concurrent use; the collector calls it while
// holding its own mutex.
func find(v *Variable) *Variable {
	for v.parent != nil {
		if v.parent.parent != nil {
			v.parent = v.parent.parent
		}
		v = v.parent
	}
	return v
}

// IsKnown reports whether v's equivalence class is bound to a clock.
// Not safe for concurrent use (see find).
func IsKnown(v *Variable) bool {
	return find(v).clock != nil
}

// Clock returns the bound clock, or nil if still unknown. Not safe for
// concurrent use (see find).
func (v *Variable) Clock() *Clock {
	return find(v).clock
}

// Unify merges the equivalence classes of v1 and v2.
//
//   - unknown ∪ unknown → one shared unknown representative.
//   - unknown ∪ known(c) → known(c).
//   - known(c1) ∪ known(c2) → ErrClockConflict unless c1 == c2.
//
// Not safe for concurrent use; the collector unifies while holding its
// own mutex.
func Unify(v1, v2 *Variable) error {
	r1, r2 := find(v1), find(v2)
	if r1 == r2 {
		return nil
	}

	switch {
	case r1.clock == nil && r2.clock == nil:
		r1.parent = r2
	case r1.clock == nil:
		r1.parent = r2
	case r2.clock == nil:
		r2.parent = r1
	case r1.clock == r2.clock:
		r1.parent = r2
	default:
		return &ErrClockConflict{A: r1.clock, B: r2.clock}
	}
	return nil
}
