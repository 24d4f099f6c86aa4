package housekeeping

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dhannyz/liquidsoap-go/internal/clock"
	"github.com/dhannyz/liquidsoap-go/internal/config"
)

// countingHandler counts how many records it receives, for asserting a
// cron tick actually fired without depending on log output formatting.
type countingHandler struct {
	mu    sync.Mutex
	count int
}

func (h *countingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *countingHandler) Handle(context.Context, slog.Record) error {
	h.mu.Lock()
	h.count++
	h.mu.Unlock()
	return nil
}
func (h *countingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *countingHandler) WithGroup(string) slog.Handler      { return h }

func (h *countingHandler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func TestNewRejectsInvalidCronExpression(t *testing.T) {
	col := clock.NewCollector(0, 0, false, nil)
	_, err := New(config.HousekeepingConfig{Enabled: true, Cron: "not a cron expression"}, col, nil)
	if err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}
}

func TestDisabledHousekeeperNeverTicks(t *testing.T) {
	handler := &countingHandler{}
	logger := slog.New(handler)
	col := clock.NewCollector(0, 0, false, nil)

	h, err := New(config.HousekeepingConfig{Enabled: false}, col, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.Start()
	time.Sleep(50 * time.Millisecond)
	h.Stop()

	if handler.Count() != 0 {
		t.Fatalf("expected no log records from a disabled housekeeper, got %d", handler.Count())
	}
}

func TestEnabledHousekeeperTicksOnSchedule(t *testing.T) {
	handler := &countingHandler{}
	logger := slog.New(handler)
	col := clock.NewCollector(0, 0, false, nil)
	col.Start()

	h, err := New(config.HousekeepingConfig{Enabled: true, Cron: "* * * * * *"}, col, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.Start()
	defer h.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for handler.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if handler.Count() == 0 {
		t.Fatal("expected at least one housekeeping tick to log within 3 seconds")
	}
}
