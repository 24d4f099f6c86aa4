package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// MetricsSampler periodically samples host CPU and memory usage and logs
// them at debug level; the samples carry no clock latency. It exists so
// that a logged wallclock latency overrun ("ticked late by X") can be
// matched by time against host-level contention rather than a bug in a
// source.
type MetricsSampler struct {
	logger   *slog.Logger
	interval time.Duration
}

// NewMetricsSampler builds a sampler that logs at the given interval.
// A non-positive interval disables sampling; Run returns immediately.
func NewMetricsSampler(logger *slog.Logger, interval time.Duration) *MetricsSampler {
	return &MetricsSampler{logger: WithComponent(logger, "metrics"), interval: interval}
}

// Run samples on a fixed ticker until ctx is cancelled.
func (m *MetricsSampler) Run(ctx context.Context) {
	if m.interval <= 0 {
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample(ctx)
		}
	}
}

func (m *MetricsSampler) sample(ctx context.Context) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		m.logger.WarnContext(ctx, "cpu sample failed", slog.String("error", err.Error()))
		return
	}

	vmem, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "memory sample failed", slog.String("error", err.Error()))
		return
	}

	cpuPercent := 0.0
	if len(percents) > 0 {
		cpuPercent = percents[0]
	}

	m.logger.DebugContext(ctx, "host sample",
		slog.Float64("cpu_percent", cpuPercent),
		slog.Float64("mem_percent", vmem.UsedPercent),
		slog.Uint64("mem_used_bytes", vmem.Used),
	)
}
