package clock

import (
	"runtime"
	"testing"
)

func TestLiveIncludesRegisteredClock(t *testing.T) {
	before := Size()
	c := NewClock("registry-test", false, nil)

	found := false
	for _, live := range Live() {
		if live == c {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("expected newly constructed clock to appear in Live()")
	}
	if Size() < before+1 {
		t.Fatalf("expected registry size to grow by at least one, got %d -> %d", before, Size())
	}
	runtime.KeepAlive(c)
}
