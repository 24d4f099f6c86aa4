package clock

import (
	"errors"
	"testing"
)

type fakeSource struct {
	id         string
	streamType StreamType
	variable   *Variable

	getReadyErr       error
	outputGetReadyErr error
	outputErr         error
	leaveErr          error
	outputFunc        func() error

	leaveCalls       int
	afterOutputCalls int
	outputResetCalls int
	active           bool
}

func newFakeSource(id string) *fakeSource {
	return &fakeSource{id: id, active: true}
}

func (f *fakeSource) ID() string                      { return f.id }
func (f *fakeSource) ClockVariable() *Variable         { return f.variable }
func (f *fakeSource) StreamType() StreamType           { return f.streamType }
func (f *fakeSource) GetReady(_ []ActiveSource) error  { return f.getReadyErr }
func (f *fakeSource) OutputGetReady() error            { return f.outputGetReadyErr }
func (f *fakeSource) Output() error {
	if f.outputFunc != nil {
		return f.outputFunc()
	}
	return f.outputErr
}
func (f *fakeSource) AfterOutput()                     { f.afterOutputCalls++ }
func (f *fakeSource) IsActive() bool                   { return f.active }
func (f *fakeSource) OutputReset()                     { f.outputResetCalls++ }
func (f *fakeSource) Leave(_ bool) error {
	f.leaveCalls++
	return f.leaveErr
}

func flagFor(t *testing.T, c *Clock, id string) SourceFlag {
	t.Helper()
	for _, o := range c.Outputs() {
		if o.SourceID == id {
			return o.Flag
		}
	}
	t.Fatalf("source %q not found in clock outputs", id)
	return -1
}

func TestAttachIsIdempotent(t *testing.T) {
	c := NewClock("t", false, nil)
	s := newFakeSource("a")
	c.Attach(s)
	c.Attach(s)

	if n := len(c.Outputs()); n != 1 {
		t.Fatalf("expected one output after duplicate attach, got %d", n)
	}
	if got := flagFor(t, c, "a"); got != FlagNew {
		t.Fatalf("expected FlagNew, got %v", got)
	}
}

func TestStartOutputsPromotesNewToActive(t *testing.T) {
	c := NewClock("t", false, nil)
	s := newFakeSource("a")
	c.Attach(s)

	errs := c.StartOutputs(func(ActiveSource) bool { return true })
	if len(errs) != 0 {
		t.Fatalf("unexpected startup errors: %v", errs)
	}
	if got := flagFor(t, c, "a"); got != FlagActive {
		t.Fatalf("expected FlagActive after startup, got %v", got)
	}
}

func TestStartOutputsReportsStartupFailureAndRemoves(t *testing.T) {
	c := NewClock("t", false, nil)
	s := newFakeSource("a")
	s.getReadyErr = errors.New("boom")
	c.Attach(s)

	errs := c.StartOutputs(func(ActiveSource) bool { return true })
	if len(errs) != 1 {
		t.Fatalf("expected one startup error, got %d", len(errs))
	}
	if n := len(c.Outputs()); n != 0 {
		t.Fatalf("expected failed source removed from outputs, got %d remaining", n)
	}
	if s.leaveCalls != 1 {
		t.Fatalf("expected Leave called once on startup failure, got %d", s.leaveCalls)
	}
}

func TestDetachTransitionsByFlag(t *testing.T) {
	cases := []struct {
		name string
		flag SourceFlag
		want SourceFlag
		kept bool
	}{
		{"new becomes removed", FlagNew, 0, false},
		{"starting becomes aborted", FlagStarting, FlagAborted, true},
		{"active becomes old", FlagActive, FlagOld, true},
		{"old stays old", FlagOld, FlagOld, true},
		{"aborted stays aborted", FlagAborted, FlagAborted, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewClock("t", false, nil)
			s := newFakeSource("a")
			c.outputs = []entry{{flag: tc.flag, src: s}}

			c.Detach(func(ActiveSource) bool { return true })

			outs := c.Outputs()
			if !tc.kept {
				if len(outs) != 0 {
					t.Fatalf("expected source removed, got %v", outs)
				}
				return
			}
			if len(outs) != 1 || outs[0].Flag != tc.want {
				t.Fatalf("expected flag %v, got %v", tc.want, outs)
			}
		})
	}
}

func TestDetachStartingThenCommitLeavesAbortedSource(t *testing.T) {
	c := NewClock("t", false, nil)
	s := newFakeSource("a")
	c.Attach(s)

	toStart := c.harvest(func(ActiveSource) bool { return true })
	if len(toStart) != 1 {
		t.Fatalf("expected one source harvested, got %d", len(toStart))
	}

	c.Detach(func(ActiveSource) bool { return true })
	if got := flagFor(t, c, "a"); got != FlagAborted {
		t.Fatalf("expected FlagAborted after detach mid-startup, got %v", got)
	}

	results := startup(toStart)
	errs := c.commitStartup(results)
	if len(errs) != 0 {
		t.Fatalf("aborted startup should not surface as a startup error, got %v", errs)
	}
	if n := len(c.Outputs()); n != 0 {
		t.Fatalf("expected aborted source removed after commit, got %d", n)
	}
	if s.leaveCalls != 1 {
		t.Fatalf("expected Leave called once for aborted source, got %d", s.leaveCalls)
	}
}

func TestEndTickLeavesOldAndAdvancesRound(t *testing.T) {
	c := NewClock("t", false, nil)
	old := newFakeSource("old")
	active := newFakeSource("active")
	c.outputs = []entry{
		{flag: FlagOld, src: old},
		{flag: FlagActive, src: active},
	}

	startRound := c.GetTick()
	shutdown := c.EndTick()
	if shutdown {
		t.Fatal("expected no shutdown requested on clean tick")
	}
	if old.leaveCalls != 1 {
		t.Fatalf("expected old source Leave called once, got %d", old.leaveCalls)
	}
	if active.afterOutputCalls != 1 {
		t.Fatalf("expected active source AfterOutput called once, got %d", active.afterOutputCalls)
	}
	if c.GetTick() != startRound+1 {
		t.Fatalf("expected round to advance by one, got %d -> %d", startRound, c.GetTick())
	}
	if n := len(c.Outputs()); n != 1 {
		t.Fatalf("expected only the active source to remain, got %d", n)
	}
}

func TestEndTickStreamingFailureRemovesSourceAndRequestsShutdown(t *testing.T) {
	c := NewClock("t", false, nil)
	failing := newFakeSource("failing")
	failing.outputErr = errors.New("stream broke")
	c.outputs = []entry{{flag: FlagActive, src: failing}}

	if shutdown := c.EndTick(); !shutdown {
		t.Fatal("expected shutdown requested when allowStreamingErrors is false")
	}
	if n := len(c.Outputs()); n != 0 {
		t.Fatalf("expected failed source removed, got %d", n)
	}
	if failing.leaveCalls != 1 {
		t.Fatalf("expected Leave called once on streaming failure, got %d", failing.leaveCalls)
	}
}

func TestEndTickStreamingFailureToleratedWhenAllowed(t *testing.T) {
	c := NewClock("t", true, nil)
	failing := newFakeSource("failing")
	failing.outputErr = errors.New("stream broke")
	c.outputs = []entry{{flag: FlagActive, src: failing}}

	if shutdown := c.EndTick(); shutdown {
		t.Fatal("expected no shutdown requested when allowStreamingErrors is true")
	}
}

func TestOutputCountOnlyCountsActive(t *testing.T) {
	c := NewClock("t", false, nil)
	c.outputs = []entry{
		{flag: FlagNew, src: newFakeSource("a")},
		{flag: FlagActive, src: newFakeSource("b")},
		{flag: FlagActive, src: newFakeSource("c")},
		{flag: FlagOld, src: newFakeSource("d")},
	}
	if got := c.OutputCount(); got != 2 {
		t.Fatalf("expected 2 active outputs, got %d", got)
	}
}

func TestStartOutputsDispatchUsesDriveHook(t *testing.T) {
	c := NewClock("t", false, nil)
	called := false
	c.driveHook = func(filter func(ActiveSource) bool) []error {
		called = true
		return c.StartOutputs(filter)
	}
	s := newFakeSource("a")
	c.Attach(s)

	c.StartOutputsDispatch(func(ActiveSource) bool { return true })
	if !called {
		t.Fatal("expected driveHook to be invoked")
	}
	if got := flagFor(t, c, "a"); got != FlagActive {
		t.Fatalf("expected FlagActive via driveHook path, got %v", got)
	}
}
