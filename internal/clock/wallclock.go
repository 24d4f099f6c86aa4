package clock

import (
	"log/slog"
	"sync"
	"time"
)

// sleepMonotonic sleeps for d, clamped to zero. time.Sleep is already
// immune to signal interruption in Go, but the call is named to match
// the usleep-style helpers the rest of this codebase reaches for.
func sleepMonotonic(d time.Duration) {
	if d <= 0 {
		return
	}
	time.Sleep(d)
}

// Wallclock extends Clock with a driving thread that paces end_tick in
// wall time, with latency detection and catch-up logging.
type Wallclock struct {
	*Clock

	frameDuration time.Duration
	maxLatency    time.Duration

	doRunning sync.Mutex
	running   bool

	// sync, when true, paces end_tick by real time; when false, pacing
	// is delegated to blocking sources' I/O (see SelfSyncWallclock).
	syncMu sync.Mutex
	sync   bool

	logger *slog.Logger

	// stopCh is closed by the collector's Stop() path so a wallclock
	// whose outputs never empty can still be asked to exit.
	stopCh   chan struct{}
	stopOnce sync.Once

	onShutdownRequested func()
}

// NewWallclock builds a wallclock named id, ticking once per
// frameDuration while in sync mode, resetting active sources whenever a
// tick falls more than maxLatency behind schedule.
func NewWallclock(id string, frameDuration, maxLatency time.Duration, allowStreamingErrors bool, logger *slog.Logger) *Wallclock {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Wallclock{
		Clock:         NewClock(id, allowStreamingErrors, logger),
		frameDuration: frameDuration,
		maxLatency:    maxLatency,
		sync:          true,
		logger:        logger.With(slog.String("clock", id)),
		stopCh:        make(chan struct{}),
	}
	w.Clock.driveHook = w.StartOutputs
	return w
}

// OnShutdownRequested registers a callback invoked when end_tick reports
// a StreamingFailure with allow_streaming_errors=false. The collector
// uses this to trigger Stop() on the whole registry.
func (w *Wallclock) OnShutdownRequested(f func()) {
	w.onShutdownRequested = f
}

// setSync toggles pacing mode under syncMu.
func (w *Wallclock) setSync(v bool) {
	w.syncMu.Lock()
	w.sync = v
	w.syncMu.Unlock()
}

func (w *Wallclock) isSync() bool {
	w.syncMu.Lock()
	defer w.syncMu.Unlock()
	return w.sync
}

// IsSync reports whether the wallclock currently paces end_tick by real
// time (true) or delegates pacing to a registered blocking source (false).
// Used by the HTTP introspection surface.
func (w *Wallclock) IsSync() bool {
	return w.isSync()
}

// StartOutputs wraps Clock.StartOutputs: after startup, if any source is
// now active, it spawns the driving thread idempotently.
func (w *Wallclock) StartOutputs(filter func(ActiveSource) bool) []error {
	errs := w.Clock.StartOutputs(filter)
	if w.OutputCount() > 0 {
		w.maybeStartDriver()
	}
	return errs
}

func (w *Wallclock) maybeStartDriver() {
	w.doRunning.Lock()
	defer w.doRunning.Unlock()
	if w.running {
		return
	}
	w.running = true
	go w.drive()
}

// Stop asks the driving thread to exit at the next loop head even if
// outputs has not emptied naturally (used during process shutdown).
func (w *Wallclock) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *Wallclock) stopped() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

// drive is the wallclock's main loop. It is spawned at most once per
// period of non-empty outputs; it exits when outputs becomes empty or
// Stop is called, and may be restarted by a later StartOutputs call.
func (w *Wallclock) drive() {
	defer func() {
		w.doRunning.Lock()
		w.running = false
		w.doRunning.Unlock()
	}()

	t0 := time.Now()
	var ticks int64
	var acc int
	var lastLatencyLog time.Time

	for {
		if w.stopped() || w.OutputCount() == 0 {
			return
		}

		var rem time.Duration
		if w.isSync() {
			scheduled := t0.Add(w.frameDuration * time.Duration(ticks+1))
			rem = time.Until(scheduled)
		}

		switch {
		case rem > 0 || !w.isSync():
			if w.isSync() {
				sleepMonotonic(rem)
			}
			acc = 0
		case rem < -w.maxLatency:
			w.resetActiveSources()
			t0 = time.Now()
			ticks = 0
			acc = 0
			w.logger.Error("wallclock latency overrun, resetting active sources",
				slog.Duration("overrun", -rem))
		case (rem <= -time.Second || acc >= 100) && time.Since(lastLatencyLog) >= time.Second:
			w.logger.Warn("wallclock catching up", slog.Duration("behind_by", -rem))
			lastLatencyLog = time.Now()
			acc = 0
		default:
			acc++
		}

		ticks++
		if w.EndTick() && w.onShutdownRequested != nil {
			w.onShutdownRequested()
		}
	}
}

// resetActiveSources calls OutputReset on every active, still-usable
// source; used after a latency overrun that blew the budget.
func (w *Wallclock) resetActiveSources() {
	for _, e := range w.snapshot() {
		if e.flag == FlagActive && e.src.IsActive() {
			e.src.OutputReset()
		}
	}
}
