package clock

import (
	"log/slog"
	"sync"
)

// entry pairs a source's flag with the source itself.
type entry struct {
	flag SourceFlag
	src  ActiveSource
}

// Clock is a named scheduler owning a mutable list of (flag, source)
// pairs and a set of sub-clock variables. Outputs are modified only
// while holding mu.
type Clock struct {
	ID string

	mu         sync.Mutex
	outputs    []entry
	subClocks  map[*Variable]struct{}
	round      uint64
	allowError bool

	logger *slog.Logger

	// driveHook, when set, replaces StartOutputs's default behavior.
	// Wallclock sets this to its own override so the collector (which
	// only ever holds the embedded *Clock) still spawns the driving
	// thread after startup.
	driveHook func(filter func(ActiveSource) bool) []error
}

// NewClock builds an empty clock with the given id. allowStreamingErrors
// controls whether a StreamingFailure during end_tick requests a global
// shutdown (false) or is merely logged and the source dropped (true).
func NewClock(id string, allowStreamingErrors bool, logger *slog.Logger) *Clock {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Clock{
		ID:         id,
		subClocks:  make(map[*Variable]struct{}),
		allowError: allowStreamingErrors,
		logger:     logger.With(slog.String("clock", id)),
	}
	Register(c)
	return c
}

// Attach adds (New, s) if s is not already present. Idempotent.
func (c *Clock) Attach(s ActiveSource) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.outputs {
		if e.src == s {
			return
		}
	}
	c.outputs = append(c.outputs, entry{flag: FlagNew, src: s})
}

// Detach transitions every (flag, s) with pred(s) == true:
// New -> removed, Starting -> Aborted, Active -> Old, Old/Aborted unchanged.
func (c *Clock) Detach(pred func(ActiveSource) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.outputs[:0]
	for _, e := range c.outputs {
		if !pred(e.src) {
			kept = append(kept, e)
			continue
		}
		switch e.flag {
		case FlagNew:
			// removed: drop the entry entirely.
		case FlagStarting:
			kept = append(kept, entry{flag: FlagAborted, src: e.src})
		case FlagActive:
			kept = append(kept, entry{flag: FlagOld, src: e.src})
		case FlagOld, FlagAborted:
			kept = append(kept, e)
		}
	}
	c.outputs = kept
}

// AttachClock records v as a sub-clock of c.
func (c *Clock) AttachClock(v *Variable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subClocks[v] = struct{}{}
}

// DetachClock removes v from c's sub-clocks. v must already be a member.
func (c *Clock) DetachClock(v *Variable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subClocks[v]; !ok {
		panic("clock: DetachClock on a variable that was never attached")
	}
	delete(c.subClocks, v)
}

// GetTick returns the current round.
func (c *Clock) GetTick() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.round
}

// startResult tags the outcome of starting one source.
type startResult struct {
	src ActiveSource
	err error
}

// StartOutputs runs the two-phase startup protocol: harvest every New
// source matching filter under the lock, then initialize each outside
// the lock, then re-enter the lock to commit the outcomes. It returns
// the list of startup errors (StartupFailure), one per source that
// failed get_ready/output_get_ready.
func (c *Clock) StartOutputs(filter func(ActiveSource) bool) []error {
	toStart := c.harvest(filter)
	if len(toStart) == 0 {
		return nil
	}
	results := startup(toStart)
	return c.commitStartup(results)
}

// harvest moves every (New, s) matching filter to Starting and returns
// the collected sources. Critical section.
func (c *Clock) harvest(filter func(ActiveSource) bool) []ActiveSource {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toStart []ActiveSource
	for i, e := range c.outputs {
		if e.flag == FlagNew && filter(e.src) {
			c.outputs[i].flag = FlagStarting
			toStart = append(toStart, e.src)
		}
	}
	return toStart
}

// startup runs get_ready/output_get_ready outside any lock.
func startup(sources []ActiveSource) []startResult {
	results := make([]startResult, len(sources))
	for i, s := range sources {
		err := s.GetReady(sources)
		if err == nil {
			err = s.OutputGetReady()
		}
		results[i] = startResult{src: s, err: err}
	}
	return results
}

// commitStartup re-enters the lock to apply startup outcomes: Starting
// becomes Active on success, Aborted sources are left (torn down),
// and Starting sources that errored are reported and left.
func (c *Clock) commitStartup(results []startResult) []error {
	var toLeave []ActiveSource
	var errs []error

	c.mu.Lock()
	for _, r := range results {
		idx := c.indexOf(r.src)
		if idx < 0 {
			continue
		}
		switch c.outputs[idx].flag {
		case FlagAborted:
			toLeave = append(toLeave, r.src)
			c.removeAt(idx)
		case FlagStarting:
			if r.err != nil {
				errs = append(errs, r.err)
				toLeave = append(toLeave, r.src)
				c.removeAt(idx)
			} else {
				c.outputs[idx].flag = FlagActive
			}
		}
	}
	c.mu.Unlock()

	for _, s := range toLeave {
		if err := s.Leave(true); err != nil {
			c.logger.Warn("leave failed during startup teardown",
				slog.String("source", s.ID()), slog.Any("error", err))
		}
	}
	return errs
}

// indexOf returns the index of s in c.outputs, or -1. Caller must hold mu.
func (c *Clock) indexOf(s ActiveSource) int {
	for i, e := range c.outputs {
		if e.src == s {
			return i
		}
	}
	return -1
}

// removeAt deletes the entry at idx, preserving order. Caller must hold mu.
func (c *Clock) removeAt(idx int) {
	c.outputs = append(c.outputs[:idx], c.outputs[idx+1:]...)
}

// EndTick runs one streaming tick: leaves Old sources, outputs every
// Active source, removes any that failed, advances round, and finally
// runs after_output on the surviving Active sources. It returns true if
// a StreamingFailure occurred that should request global shutdown
// (i.e. allowStreamingErrors is false and at least one source failed).
func (c *Clock) EndTick() (shutdownRequested bool) {
	c.mu.Lock()
	var leaving, active []ActiveSource
	kept := c.outputs[:0]
	for _, e := range c.outputs {
		switch e.flag {
		case FlagOld:
			leaving = append(leaving, e.src)
		case FlagActive:
			active = append(active, e.src)
			kept = append(kept, e)
		default:
			kept = append(kept, e)
		}
	}
	c.outputs = kept
	c.mu.Unlock()

	for _, s := range leaving {
		if err := s.Leave(false); err != nil {
			c.logger.Warn("leave failed", slog.String("source", s.ID()), slog.Any("error", err))
		}
	}

	var failed []ActiveSource
	for _, s := range active {
		if err := s.Output(); err != nil {
			c.logger.Error("streaming failure", slog.String("source", s.ID()), slog.Any("error", err))
			failed = append(failed, s)
			if leaveErr := s.Leave(false); leaveErr != nil {
				c.logger.Warn("leave failed after streaming failure",
					slog.String("source", s.ID()), slog.Any("error", leaveErr))
			}
		}
	}

	if len(failed) > 0 {
		c.mu.Lock()
		failedSet := make(map[ActiveSource]struct{}, len(failed))
		for _, s := range failed {
			failedSet[s] = struct{}{}
		}
		kept := c.outputs[:0]
		for _, e := range c.outputs {
			if _, drop := failedSet[e.src]; !drop {
				kept = append(kept, e)
			}
		}
		c.outputs = kept
		c.mu.Unlock()

		if !c.allowError {
			shutdownRequested = true
		}
	}

	c.mu.Lock()
	c.round++
	survivors := make([]ActiveSource, 0, len(active))
	for _, e := range c.outputs {
		if e.flag == FlagActive {
			survivors = append(survivors, e.src)
		}
	}
	c.mu.Unlock()

	for _, s := range survivors {
		s.AfterOutput()
	}
	return shutdownRequested
}

// snapshot returns a defensive copy of the (flag, source) entries, used
// by Outputs and by the wallclock's latency reset.
func (c *Clock) snapshot() []entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]entry, len(c.outputs))
	copy(out, c.outputs)
	return out
}

// StartOutputsDispatch calls driveHook if one was installed (by
// Wallclock), otherwise runs the base two-phase startup directly. The
// collector always goes through this method rather than calling
// StartOutputs, since it only ever holds the embedded *Clock (from Live).
func (c *Clock) StartOutputsDispatch(filter func(ActiveSource) bool) []error {
	if c.driveHook != nil {
		return c.driveHook(filter)
	}
	return c.StartOutputs(filter)
}

// OutputInfo is a defensive snapshot of one output's id and flag, used by
// the HTTP introspection surface.
type OutputInfo struct {
	SourceID string
	Flag     SourceFlag
}

// Outputs returns a snapshot of every (source id, flag) pair currently
// attached to c.
func (c *Clock) Outputs() []OutputInfo {
	entries := c.snapshot()
	out := make([]OutputInfo, len(entries))
	for i, e := range entries {
		out[i] = OutputInfo{SourceID: e.src.ID(), Flag: e.flag}
	}
	return out
}

// OutputCount returns the number of currently Active outputs.
func (c *Clock) OutputCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.outputs {
		if e.flag == FlagActive {
			n++
		}
	}
	return n
}
