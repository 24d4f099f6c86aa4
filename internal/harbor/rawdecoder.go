package harbor

// NewRawDecoder returns a DecoderFunc that copies bytes from sink.Read
// straight into sink.Put at the given sample rate, performing no framing
// or container parsing whatsoever. Real codecs are an external
// collaborator per §1's non-goals; this exists so a harbor mountpoint has
// at least one usable decoder out of the box for raw PCM feeds and for
// exercising the ingest path end to end.
func NewRawDecoder(sampleFreq, readSize int) DecoderFunc {
	return func(sink Sink) error {
		for {
			data, err := sink.Read(readSize)
			if err != nil {
				return err
			}
			if err := sink.Put(sampleFreq, data); err != nil {
				return err
			}
		}
	}
}
