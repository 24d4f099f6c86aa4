package clock

import (
	"runtime"
	"sync"
	"weak"
)

// registry is a process-wide weak set of live clocks. Weak pointers let
// unreferenced clocks be reclaimed without explicit unregistration; a
// runtime.AddCleanup hook prunes the dead entry as soon as the garbage
// collector notices the clock is gone.
type registry struct {
	mu      sync.Mutex
	clocks  map[weak.Pointer[Clock]]struct{}
}

var globalRegistry = &registry{clocks: make(map[weak.Pointer[Clock]]struct{})}

// Register records c in the weak registry. NewClock calls it for every
// Clock it builds, including the ones embedded in Wallclock and
// SelfSyncWallclock.
func Register(c *Clock) {
	wp := weak.Make(c)

	globalRegistry.mu.Lock()
	globalRegistry.clocks[wp] = struct{}{}
	globalRegistry.mu.Unlock()

	runtime.AddCleanup(c, func(p weak.Pointer[Clock]) {
		globalRegistry.mu.Lock()
		delete(globalRegistry.clocks, p)
		globalRegistry.mu.Unlock()
	}, wp)
}

// Live returns strong references to every clock that is still alive,
// pruning dead weak pointers it encounters along the way.
func Live() []*Clock {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	live := make([]*Clock, 0, len(globalRegistry.clocks))
	for wp := range globalRegistry.clocks {
		if c := wp.Value(); c != nil {
			live = append(live, c)
		} else {
			delete(globalRegistry.clocks, wp)
		}
	}
	return live
}

// Size returns the number of currently live clocks, used by the
// housekeeping tick (SPEC_FULL.md §9.6).
func Size() int {
	return len(Live())
}
