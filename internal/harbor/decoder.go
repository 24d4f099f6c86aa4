package harbor

import (
	"sync"

	"github.com/dhannyz/liquidsoap-go/internal/frame"
)

// Sink is what a decoder runs against: it may push decoded samples,
// pull raw bytes off the wire and attach metadata. It has no close
// callback; the decoder learns the connection is gone from a Read or
// Put error.
type Sink interface {
	Put(sampleFreq int, data []byte) error
	Read(n int) ([]byte, error)
	InsertMetadata(m frame.Metadata)
}

// DecoderFunc decodes a single connection's stream, driving Sink until
// the peer disconnects or a decode error occurs. feed() calls this in
// its own goroutine and treats any returned error (including one
// raised internally by Sink.Read/Put) as terminal for that connection.
type DecoderFunc func(sink Sink) error

// DecoderRegistry maps codec names to decoder functions. Codecs
// themselves are out of scope (§1 Non-goals); this registry is the
// narrow interface the spec requires harbor to route through.
type DecoderRegistry struct {
	mu       sync.RWMutex
	decoders map[string]DecoderFunc
}

// NewDecoderRegistry builds an empty registry.
func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: make(map[string]DecoderFunc)}
}

// Register adds or replaces the decoder for codec.
func (r *DecoderRegistry) Register(codec string, fn DecoderFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[codec] = fn
}

// Lookup returns the decoder for codec, or ErrUnknownCodec.
func (r *DecoderRegistry) Lookup(codec string) (DecoderFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.decoders[codec]
	if !ok {
		return nil, ErrUnknownCodec
	}
	return fn, nil
}
