package clock

import "sync"

// StreamType classifies whether a source's failures should bring the
// clock down or are expected and recoverable.
type StreamType int

const (
	// Infallible sources are not expected to fail during output.
	Infallible StreamType = iota
	// Fallible sources may legitimately fail (e.g. a network input
	// whose peer disconnected) without that being a scheduling bug.
	Fallible
)

func (t StreamType) String() string {
	if t == Fallible {
		return "fallible"
	}
	return "infallible"
}

// Source is the capability set shared by every producer/consumer
// attached to a clock.
type Source interface {
	// ID returns the source's stable identifier, used for logging and
	// telemetry namespacing.
	ID() string
	// ClockVariable returns the clock variable this source is (or will
	// be) bound to.
	ClockVariable() *Variable
	// StreamType reports whether failures are expected.
	StreamType() StreamType
}

// ActiveSource is a Source that also participates in end_tick: it is
// started, produces one frame per tick, and torn down on removal.
type ActiveSource interface {
	Source

	// GetReady initializes the source against its resolved clock. May
	// return an error (StartupFailure).
	GetReady(roots []ActiveSource) error
	// OutputGetReady finalizes initialization after the startup thunk
	// runs outside the harvesting lock.
	OutputGetReady() error
	// Output produces one frame. An error here is a StreamingFailure.
	Output() error
	// AfterOutput runs once per tick after every active source in that
	// tick has been output.
	AfterOutput()
	// IsActive reports whether the source is still usable.
	IsActive() bool
	// OutputReset drops internal pacing state after a latency reset.
	OutputReset()
	// Leave releases resources. Must be called exactly once per started
	// source. Errors are logged and swallowed by the caller.
	Leave(root bool) error
}

// newSourceQueue is the process-wide queue of active sources created
// since the last collection. The collector drains it during Collect()
// to assign the default clock to any source whose clock variable is
// still unknown.
type newSourceQueue struct {
	mu  sync.Mutex
	buf []ActiveSource
}

var globalNewSources newSourceQueue

// RegisterNewSource enqueues a freshly constructed active source so the
// next collection pass can resolve its clock variable. The queue does
// not attach the source to a clock; a collection pass starts it only if
// it is already attached to a live clock. Call this once, right after
// construction.
func RegisterNewSource(s ActiveSource) {
	globalNewSources.mu.Lock()
	defer globalNewSources.mu.Unlock()
	globalNewSources.buf = append(globalNewSources.buf, s)
}

// iterateNewOutputs drains the queue and invokes f for each source that
// had been registered since the last drain. The queue is empty again
// once this returns.
func iterateNewOutputs(f func(ActiveSource)) {
	globalNewSources.mu.Lock()
	drained := globalNewSources.buf
	globalNewSources.buf = nil
	globalNewSources.mu.Unlock()

	for _, s := range drained {
		f(s)
	}
}
