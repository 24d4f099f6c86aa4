// Package housekeeping runs the periodic registry/collector health
// check: a cheap external observation that the collector isn't stuck
// with a non-zero after_collect_tasks counter, which would silently
// suspend all collection (§4.6 invariant 5).
package housekeeping

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/dhannyz/liquidsoap-go/internal/clock"
	"github.com/dhannyz/liquidsoap-go/internal/config"
)

// Housekeeper drives a single cron-scheduled tick that logs registry
// size and the collector's pending-task counter.
type Housekeeper struct {
	cron      *cron.Cron
	collector *clock.Collector
	logger    *slog.Logger
	entryID   cron.EntryID
}

// New builds a housekeeper from cfg. It does not start the underlying
// cron scheduler; call Start for that.
func New(cfg config.HousekeepingConfig, collector *clock.Collector, logger *slog.Logger) (*Housekeeper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "housekeeping"))

	c := cron.New(cron.WithSeconds())
	h := &Housekeeper{cron: c, collector: collector, logger: logger}

	if !cfg.Enabled {
		return h, nil
	}

	id, err := c.AddFunc(cfg.Cron, h.tick)
	if err != nil {
		return nil, fmt.Errorf("scheduling housekeeping cron %q: %w", cfg.Cron, err)
	}
	h.entryID = id
	return h, nil
}

// Start begins running the cron scheduler in the background.
func (h *Housekeeper) Start() {
	h.cron.Start()
}

// Stop halts the cron scheduler, waiting for any in-flight tick.
func (h *Housekeeper) Stop() {
	<-h.cron.Stop().Done()
}

func (h *Housekeeper) tick() {
	size := clock.Size()
	pending := h.collector.AfterCollectTasks()

	if pending > 0 {
		h.logger.Warn("housekeeping tick: collector has pending after_collect_tasks",
			slog.Int("live_clocks", size),
			slog.Int("after_collect_tasks", pending))
		return
	}

	h.logger.Debug("housekeeping tick",
		slog.Int("live_clocks", size),
		slog.Int("after_collect_tasks", pending))
}
