// Package clock implements the clock-driven streaming scheduler: named
// clocks that drive a set of attached active sources tick by tick,
// tolerating latency, failures and dynamic attach/detach.
package clock

// SourceFlag marks where an attached source sits in its lifecycle inside
// one clock's outputs list.
type SourceFlag int

const (
	// FlagNew means the source was just attached and has not started.
	FlagNew SourceFlag = iota
	// FlagStarting means the source was selected for startup in the
	// current collection pass but has not yet been initialized.
	FlagStarting
	// FlagAborted means the source was detached while still Starting;
	// it must be torn down once startup finishes.
	FlagAborted
	// FlagActive means the source is initialized and participates in
	// end_tick.
	FlagActive
	// FlagOld means the source was detached while Active; it is torn
	// down at the next end_tick.
	FlagOld
)

func (f SourceFlag) String() string {
	switch f {
	case FlagNew:
		return "new"
	case FlagStarting:
		return "starting"
	case FlagAborted:
		return "aborted"
	case FlagActive:
		return "active"
	case FlagOld:
		return "old"
	default:
		return "unknown"
	}
}
