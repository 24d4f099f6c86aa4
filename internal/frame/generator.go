// Package frame implements the bounded PCM sample buffer shared by
// input sources: an ordered byte sequence with interleaved metadata
// markers, capacity-limited with a drop-oldest eviction policy.
package frame

// Metadata is an ordered key/value marker attached at a sample offset.
type Metadata map[string]string

// marker pairs a metadata map with the sample offset it applies from.
type marker struct {
	offset int
	data   Metadata
}

// Generator is a bounded FIFO of PCM samples with metadata markers.
// It carries no internal locking: callers (the harbor input source)
// serialize access under their own lock so the backpressure sleep can
// release it between a capacity check and a retry.
type Generator struct {
	samplesPerSecond int
	maxLen           int // abg_max_len: samplesPerSecond * max_seconds

	samples  []byte
	bytesPer int // bytes per sample, for offset/length bookkeeping
	metadata []marker
}

// NewGenerator builds a Generator capped at samplesPerSecond*maxSeconds
// samples, each bytesPerSample bytes wide.
func NewGenerator(samplesPerSecond, bytesPerSample, maxSeconds int) *Generator {
	return &Generator{
		samplesPerSecond: samplesPerSecond,
		maxLen:           samplesPerSecond * maxSeconds,
		bytesPer:         bytesPerSample,
	}
}

// Len returns the current buffer length in samples.
func (g *Generator) Len() int {
	return len(g.samples) / g.bytesPer
}

// MaxLen returns abg_max_len, the capacity enforced by the drop policy.
func (g *Generator) MaxLen() int {
	return g.maxLen
}

// Feed appends data (bytesPer-aligned) at the given sample rate,
// retiming any metadata offsets is not needed since offsets are
// absolute from the start of the live buffer window.
func (g *Generator) Feed(sampleFreq int, data []byte) {
	_ = sampleFreq // the decoder is responsible for resampling upstream; kept for call-site symmetry with the source spec.
	g.samples = append(g.samples, data...)
}

// InsertMetadata appends a marker at sample offset 0, matching the
// harbor source's insert_metadata behavior (§4.7): the marker always
// lands at the start of the still-unconsumed window.
func (g *Generator) InsertMetadata(m Metadata) {
	g.metadata = append(g.metadata, marker{offset: 0, data: m})
}

// Metadata returns a copy of the pending markers' maps in insertion
// order; their sample offsets are not included.
func (g *Generator) Metadata() []Metadata {
	out := make([]Metadata, len(g.metadata))
	for i, m := range g.metadata {
		out[i] = m.data
	}
	return out
}

// DropExcess trims the buffer so exactly MaxLen samples remain,
// discarding the oldest ones, and shifts every metadata marker's
// offset to stay within [0, len(samples)). Returns the number of
// samples dropped.
func (g *Generator) DropExcess() int {
	over := g.Len() - g.maxLen
	if over <= 0 {
		return 0
	}

	dropBytes := over * g.bytesPer
	g.samples = g.samples[dropBytes:]

	for i := range g.metadata {
		g.metadata[i].offset -= over
		if g.metadata[i].offset < 0 {
			g.metadata[i].offset = 0
		}
	}
	return over
}

// Reset drops all buffered samples and metadata, e.g. on disconnect.
func (g *Generator) Reset() {
	g.samples = g.samples[:0]
	g.metadata = g.metadata[:0]
}
