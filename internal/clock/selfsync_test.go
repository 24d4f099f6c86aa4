package clock

import "testing"

func TestSelfSyncTogglesPacingWithBlockingSourceCount(t *testing.T) {
	s := NewSelfSyncWallclock("s", 0, 0, false, nil)
	if !s.IsSync() {
		t.Fatal("expected self-sync wallclock to start in sync mode")
	}

	s.RegisterBlockingSource()
	if s.IsSync() {
		t.Fatal("expected sync mode to switch off once a blocking source registers")
	}
	if got := s.BlockingSources(); got != 1 {
		t.Fatalf("expected blocking source count 1, got %d", got)
	}

	s.RegisterBlockingSource()
	s.UnregisterBlockingSource()
	if s.IsSync() {
		t.Fatal("expected sync mode to stay off while one blocking source remains")
	}

	s.UnregisterBlockingSource()
	if !s.IsSync() {
		t.Fatal("expected sync mode to resume once the last blocking source unregisters")
	}
	if got := s.BlockingSources(); got != 0 {
		t.Fatalf("expected blocking source count 0, got %d", got)
	}
}
