package clock

import (
	"log/slog"
	"sync"
	"time"
)

// startedState is the collector's one-shot monotonic boot indicator.
type startedState int

const (
	startedNo startedState = iota
	startedSoon
	startedYes
)

// Collector holds the process-wide scheduler state: the default clock,
// the after-collect task counter that defers collection until safe, and
// the one-shot started/stopped lifecycle.
type Collector struct {
	mu sync.Mutex

	afterCollectTasks int
	started           startedState

	defaultClock     *Wallclock
	defaultClockOnce sync.Once

	defaultFrameDuration time.Duration
	maxLatency           time.Duration
	allowStreamingErrors bool

	logger *slog.Logger
}

// NewCollector builds a collector whose lazily-constructed default
// clock ("main") uses the given frame duration and latency/error
// policy. The initial after_collect_tasks counter is 1 (a fake task
// held open until Start is called), matching §4.6.
func NewCollector(defaultFrameDuration, maxLatency time.Duration, allowStreamingErrors bool, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		afterCollectTasks:    1,
		defaultFrameDuration: defaultFrameDuration,
		maxLatency:           maxLatency,
		allowStreamingErrors: allowStreamingErrors,
		logger:               logger,
	}
}

// DefaultClock lazily constructs and returns the "main" wallclock.
func (col *Collector) DefaultClock() *Wallclock {
	col.defaultClockOnce.Do(func() {
		col.defaultClock = NewWallclock("main", col.defaultFrameDuration, col.maxLatency, col.allowStreamingErrors, col.logger)
		col.defaultClock.OnShutdownRequested(col.Stop)
	})
	return col.defaultClock
}

// AfterCollectTasks returns the current counter value, for housekeeping
// introspection (SPEC_FULL.md §9.6).
func (col *Collector) AfterCollectTasks() int {
	col.mu.Lock()
	defer col.mu.Unlock()
	return col.afterCollectTasks
}

// Collect runs one collection pass, acquiring mu itself. A positive
// after_collect_tasks counter defers collection entirely (invariant 5,
// §8). All clock-variable unification happens while mu is held, per
// §4.1. A StartupFailure surfacing while the collector hasn't yet
// completed its initial boot (started != startedYes) requests a global
// shutdown, per §7.
func (col *Collector) Collect() {
	col.mu.Lock()
	if col.afterCollectTasks > 0 {
		col.mu.Unlock()
		return
	}

	iterateNewOutputs(func(s ActiveSource) {
		if !IsKnown(s.ClockVariable()) {
			_ = Unify(s.ClockVariable(), CreateKnown(col.DefaultClock().Clock))
		}
	})

	live := Live()

	bootPhase := col.started != startedYes
	var announceMainPhase bool
	if col.started == startedNo {
		col.started = startedSoon
		announceMainPhase = true
	}

	col.mu.Unlock()

	var errs []error
	for _, c := range live {
		errs = append(errs, c.StartOutputsDispatch(func(ActiveSource) bool { return true })...)
	}

	if len(errs) > 0 {
		for _, err := range errs {
			col.logger.Error("startup failure during collection", slog.Any("error", err))
		}
		if bootPhase {
			col.logger.Error("startup failure during initial boot, requesting global shutdown")
			col.Stop()
		}
	}

	if announceMainPhase {
		col.logger.Info("main phase starts")
		col.mu.Lock()
		col.started = startedYes
		col.mu.Unlock()
	}
}

// CollectAfter runs f with the after_collect_tasks counter incremented,
// guaranteeing no collection happens while f is in flight, then
// decrements the counter and runs a deferred collection.
func (col *Collector) CollectAfter(f func()) {
	col.mu.Lock()
	col.afterCollectTasks++
	col.mu.Unlock()

	defer func() {
		col.mu.Lock()
		col.afterCollectTasks--
		col.mu.Unlock()
		col.Collect()
	}()

	f()
}

// ForceInit is the synchronous variant used at early boot: it assigns
// the default clock to every filtered new source, then runs
// StartOutputs on every registered clock directly, returning the
// concatenated error list.
func (col *Collector) ForceInit(filter func(ActiveSource) bool) []error {
	col.mu.Lock()
	iterateNewOutputs(func(s ActiveSource) {
		if filter(s) && !IsKnown(s.ClockVariable()) {
			_ = Unify(s.ClockVariable(), CreateKnown(col.DefaultClock().Clock))
		}
	})
	col.mu.Unlock()

	var errs []error
	for _, c := range Live() {
		errs = append(errs, c.StartOutputsDispatch(filter)...)
	}
	return errs
}

// Start must be called exactly once, after initial configuration is
// loaded. It releases the initial fake task and runs a collection.
func (col *Collector) Start() {
	col.mu.Lock()
	col.afterCollectTasks--
	col.mu.Unlock()
	col.Collect()
}

// Stop detaches every source from every registered clock. Driving
// threads observe empty outputs at their next loop iteration and exit.
func (col *Collector) Stop() {
	for _, c := range Live() {
		c.Detach(func(ActiveSource) bool { return true })
	}
	if col.defaultClock != nil {
		col.defaultClock.Stop()
	}
}
