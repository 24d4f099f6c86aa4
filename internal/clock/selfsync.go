package clock

import (
	"log/slog"
	"sync"
	"time"
)

// SelfSyncWallclock is a Wallclock that switches its pacing off while at
// least one registered blocking source (e.g. a soundcard write) is
// running, letting its own I/O provide the tick instead of a busy-wait
// real-time loop.
type SelfSyncWallclock struct {
	*Wallclock

	bsLock  sync.Mutex
	blocking int
}

// NewSelfSyncWallclock builds a self-sync wallclock named id.
func NewSelfSyncWallclock(id string, frameDuration, maxLatency time.Duration, allowStreamingErrors bool, logger *slog.Logger) *SelfSyncWallclock {
	return &SelfSyncWallclock{
		Wallclock: NewWallclock(id, frameDuration, maxLatency, allowStreamingErrors, logger),
	}
}

// RegisterBlockingSource marks one more blocking source as running. The
// first registration switches the clock out of sync mode.
func (s *SelfSyncWallclock) RegisterBlockingSource() {
	s.bsLock.Lock()
	defer s.bsLock.Unlock()

	if s.blocking == 0 {
		s.logger.Info("delegating pacing to blocking source")
		s.setSync(false)
	}
	s.blocking++
}

// UnregisterBlockingSource marks one blocking source as stopped. Once
// the last one unregisters, the clock resumes real-time pacing.
func (s *SelfSyncWallclock) UnregisterBlockingSource() {
	s.bsLock.Lock()
	defer s.bsLock.Unlock()

	s.blocking--
	if s.blocking == 0 {
		s.logger.Info("resynching to wall clock")
		s.setSync(true)
	}
}

// BlockingSources returns the current count, for introspection/tests.
func (s *SelfSyncWallclock) BlockingSources() int {
	s.bsLock.Lock()
	defer s.bsLock.Unlock()
	return s.blocking
}
