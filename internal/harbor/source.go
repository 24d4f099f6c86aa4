package harbor

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/dhannyz/liquidsoap-go/internal/clock"
	"github.com/dhannyz/liquidsoap-go/internal/frame"
)

// Login authenticates an incoming connection. User is the expected
// username if set; Check is run against whatever credentials the
// transport layer (out of scope) extracted from the connection.
type Login struct {
	User  string
	Check func(user, pass string) bool
}

// Config configures one harbor mountpoint's source.
type Config struct {
	Mount            string
	SamplesPerSecond int
	BytesPerSample   int
	// Max is the harbor's maximum buffered duration; it sizes the
	// Generator (samples_per_second * whole seconds of Max, at least 1)
	// and the backpressure sleep (Max/3).
	Max time.Duration
	// DumpMaxSize caps the optional debug capture file; once exceeded
	// writes to it stop silently for the remainder of the connection.
	DumpMaxSize int64
	DumpPath    string
	Login       *Login
	OnConnect   func(remoteAddr string)
	OnDisconnect func(remoteAddr string)
}

// Source is the harbor input: a fallible clock.ActiveSource that
// accepts one client connection at a time, decodes it into a bounded
// Generator, and serves telemetry commands (stop/kick/status).
type Source struct {
	cfg    Config
	logger *slog.Logger

	clockVar *clock.Variable
	decoders *DecoderRegistry

	mu       sync.Mutex // protects abg (§4.7 "lock")
	abg      *frame.Generator
	relaying bool

	conn     net.Conn
	dump     *dumpFile
	wakeOnce sync.Once

	leaveOnce sync.Once
}

// NewSource builds an idle harbor source for the given mount.
func NewSource(cfg Config, decoders *DecoderRegistry, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	maxSeconds := int(cfg.Max.Seconds())
	if maxSeconds <= 0 {
		maxSeconds = 1
	}
	return &Source{
		cfg:      cfg,
		logger:   logger.With(slog.String("mount", cfg.Mount)),
		clockVar: clock.CreateUnknown(),
		decoders: decoders,
		abg:      frame.NewGenerator(cfg.SamplesPerSecond, cfg.BytesPerSample, maxSeconds),
	}
}

// ID identifies the source for telemetry namespacing and logging.
func (s *Source) ID() string { return "harbor:" + s.cfg.Mount }

// ClockVariable returns the source's (initially unknown) clock variable.
func (s *Source) ClockVariable() *clock.Variable { return s.clockVar }

// StreamType is always Fallible: a harbor input's failures (decode
// errors, disconnects) are expected, not scheduling bugs.
func (s *Source) StreamType() clock.StreamType { return clock.Fallible }

// GetReady registers telemetry commands, idempotently. Mirrors
// wake_up(_) from §4.7.
func (s *Source) GetReady(_ []clock.ActiveSource) error {
	s.wakeOnce.Do(func() {
		s.logger.Debug("harbor source waking up", slog.String("id", s.ID()))
	})
	return nil
}

// OutputGetReady has nothing to finalize for a harbor input.
func (s *Source) OutputGetReady() error { return nil }

// Output is the per-tick hook. The harbor input has no downstream
// pipeline in this scope (§1 Non-goals exclude codecs/transport); it
// simply reports success while usable.
func (s *Source) Output() error {
	if !s.IsActive() {
		return fmt.Errorf("harbor source %s is not active", s.ID())
	}
	return nil
}

// AfterOutput has no post-tick bookkeeping for harbor.
func (s *Source) AfterOutput() {}

// IsActive is always true: a harbor source survives client disconnects
// and waits for the next connection rather than deactivating.
func (s *Source) IsActive() bool { return true }

// OutputReset drops buffered samples after a latency reset so stale
// audio isn't replayed once the clock catches up.
func (s *Source) OutputReset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abg.Reset()
}

// Leave tears the source down exactly once: if a client is connected,
// disconnect it.
func (s *Source) Leave(_ bool) error {
	var err error
	s.leaveOnce.Do(func() {
		err = s.Disconnect()
	})
	return err
}

// registerDecoder looks up codec's decoder for this connection. Returns
// ErrUnknownCodec if none is registered.
func (s *Source) registerDecoder(codec string) (DecoderFunc, error) {
	fn, err := s.decoders.Lookup(codec)
	if err != nil {
		return nil, err
	}
	return fn, nil
}

// Relay accepts conn as the current client, negotiating codec, and
// spawns the decoder goroutine (feed). Only one client may be relaying
// at a time; callers are expected to have already resolved mountpoint
// routing before calling Relay.
func (s *Source) Relay(conn net.Conn, codec string) error {
	decode, err := s.registerDecoder(codec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.relaying = true
	s.conn = conn
	s.mu.Unlock()

	if s.cfg.OnConnect != nil {
		s.cfg.OnConnect(conn.RemoteAddr().String())
	}

	if s.cfg.DumpPath != "" {
		df, err := newDumpFile(s.cfg.DumpPath, s.cfg.DumpMaxSize)
		if err != nil {
			s.logger.Warn("could not open harbor dump file", slog.Any("error", err))
		} else {
			s.mu.Lock()
			s.dump = df
			s.mu.Unlock()
		}
	}

	go s.feed(decode)
	return nil
}

// feed runs the decoder against this connection until it returns,
// logging any error, then unconditionally disconnects and closes the
// socket.
func (s *Source) feed(decode DecoderFunc) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("harbor decoder panicked", slog.Any("panic", r))
		}
		if err := s.Disconnect(); err != nil {
			s.logger.Warn("disconnect failed", slog.Any("error", err))
		}
	}()

	if err := decode(s); err != nil {
		s.logger.Warn("harbor decoder exited", slog.Any("error", err))
	}
}

// Disconnect ends the current client session: runs OnDisconnect, closes
// the dump handle and socket, and clears relaying. Safe to call even if
// no client is connected.
func (s *Source) Disconnect() error {
	s.mu.Lock()
	wasRelaying := s.relaying
	conn := s.conn
	dump := s.dump
	s.relaying = false
	s.conn = nil
	s.dump = nil
	s.mu.Unlock()

	if !wasRelaying {
		return nil
	}

	if s.cfg.OnDisconnect != nil && conn != nil {
		s.cfg.OnDisconnect(conn.RemoteAddr().String())
	}
	if dump != nil {
		dump.Close()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Read reads up to n bytes from the active connection, tees them to the
// dump file if open. It returns ErrEndOfFile when no client is connected
// or a read yields no bytes at end of stream; other read errors are
// returned as is.
func (s *Source) Read(n int) ([]byte, error) {
	s.mu.Lock()
	conn := s.conn
	dump := s.dump
	s.mu.Unlock()

	if conn == nil {
		return nil, ErrEndOfFile
	}

	buf := make([]byte, n)
	read, err := conn.Read(buf)
	if read <= 0 {
		if err != nil && err != io.EOF {
			return nil, err
		}
		return nil, ErrEndOfFile
	}
	buf = buf[:read]

	if dump != nil {
		dump.Write(buf)
	}
	return buf, nil
}

// InsertMetadata logs the artist/title pair at info level and appends
// the marker to the Generator.
func (s *Source) InsertMetadata(m frame.Metadata) {
	s.logger.Info("harbor metadata",
		slog.String("artist", m["artist"]),
		slog.String("title", m["title"]))

	s.mu.Lock()
	s.abg.InsertMetadata(m)
	s.mu.Unlock()
}

// Put feeds decoded samples into the Generator, honoring backpressure:
// once full it releases the lock, sleeps Max/3, and on reacquiring
// drops the oldest samples if still over capacity (§4.7).
func (s *Source) Put(sampleFreq int, data []byte) error {
	s.mu.Lock()
	if !s.relaying {
		s.mu.Unlock()
		return ErrRelayingStopped
	}

	if s.abg.Len() >= s.abg.MaxLen() {
		s.mu.Unlock()
		time.Sleep(s.cfg.Max / 3)
		s.mu.Lock()
		if s.abg.Len() >= s.abg.MaxLen() {
			dropped := s.abg.DropExcess()
			s.logger.Warn("harbor buffer full, dropping oldest samples", slog.Int("dropped", dropped))
		}
	}

	s.abg.Feed(sampleFreq, data)
	if dropped := s.abg.DropExcess(); dropped > 0 {
		s.logger.Debug("harbor buffer trimmed to capacity after feed", slog.Int("dropped", dropped))
	}
	s.mu.Unlock()
	return nil
}

// Status returns one of two fixed telemetry strings (§6).
func (s *Source) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.relaying {
		return "source client connected"
	}
	return "no source client connected"
}

// Stop and Kick both disconnect the current client; they are the two
// destructive telemetry commands (§6).
func (s *Source) Stop() error { return s.Disconnect() }
func (s *Source) Kick() error { return s.Disconnect() }

// dumpFile wraps an os.File with a byte budget; once exceeded it closes
// itself and further writes are no-ops.
type dumpFile struct {
	f        *os.File
	max      int64
	written  int64
	exceeded bool
}

func newDumpFile(path string, max int64) (*dumpFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &dumpFile{f: f, max: max}, nil
}

func (d *dumpFile) Write(b []byte) {
	if d.exceeded {
		return
	}
	n, err := d.f.Write(b)
	d.written += int64(n)
	if err != nil || (d.max > 0 && d.written >= d.max) {
		d.exceeded = true
		d.f.Close()
	}
}

func (d *dumpFile) Close() {
	if !d.exceeded {
		d.f.Close()
	}
}
