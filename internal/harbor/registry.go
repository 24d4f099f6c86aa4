package harbor

import (
	"log/slog"
	"sync"

	"github.com/dhannyz/liquidsoap-go/internal/clock"
)

// Registry maps mountpoints to harbor sources. input.harbor(mount)
// returns an existing source if present, otherwise creates and
// registers one, matching §4.7's routing contract.
type Registry struct {
	mu       sync.Mutex
	sources  map[string]*Source
	decoders *DecoderRegistry
	logger   *slog.Logger
}

// NewRegistry builds an empty mountpoint registry sharing one decoder
// registry across every mount.
func NewRegistry(decoders *DecoderRegistry, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sources:  make(map[string]*Source),
		decoders: decoders,
		logger:   logger,
	}
}

// GetOrCreate returns the source for mount, creating it with cfg if
// this is the first request for that mountpoint, and registering it
// with the collector's new-source queue on creation.
func (r *Registry) GetOrCreate(cfg Config) *Source {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sources[cfg.Mount]; ok {
		return s
	}

	s := NewSource(cfg, r.decoders, r.logger)
	r.sources[cfg.Mount] = s
	clock.RegisterNewSource(s)
	return s
}

// Get returns the source for mount, if it has been created.
func (r *Registry) Get(mount string) (*Source, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sources[mount]
	return s, ok
}

// Mounts returns every registered mountpoint name.
func (r *Registry) Mounts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	mounts := make([]string, 0, len(r.sources))
	for m := range r.sources {
		mounts = append(mounts, m)
	}
	return mounts
}
