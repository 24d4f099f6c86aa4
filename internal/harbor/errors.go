// Package harbor implements the harbor input source: a socket-fed
// decoder cooperating with a bounded sample buffer, handling
// backpressure by dropping old samples, and integrating with the
// clock scheduler as a fallible source.
package harbor

import "errors"

// Domain error kinds (§7). Decoder exceptions and transport errors
// outside these are logged and treated as opaque decode failures.
var (
	// ErrNoDecoder / ErrUnknownCodec: the harbor could not decode the
	// incoming stream. Recovered by rejecting the connection.
	ErrNoDecoder       = errors.New("harbor: no decoder registered for this source")
	ErrUnknownCodec    = errors.New("harbor: unknown codec")
	ErrRelayingStopped = errors.New("harbor: put called after disconnection")
	ErrEndOfFile       = errors.New("harbor: end of file")
)
