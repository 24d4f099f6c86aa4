package harbor

import (
	"context"
	"errors"
	"log/slog"
	"net"
)

// Listener accepts harbor client connections on one TCP address and
// relays each into a single mountpoint source.
type Listener struct {
	addr   string
	cfg    Config
	codec  string
	source *Source
	logger *slog.Logger

	addrCh chan net.Addr
}

// NewListener builds a listener that serves cfg.Mount, created in
// registry on first use, negotiating codec for every accepted connection.
func NewListener(addr string, cfg Config, codec string, registry *Registry, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		addr:   addr,
		cfg:    cfg,
		codec:  codec,
		source: registry.GetOrCreate(cfg),
		logger: logger.With(slog.String("harbor_listener", addr)),
		addrCh: make(chan net.Addr, 1),
	}
}

// LocalAddr blocks until Serve has bound its listener and returns the
// actual address it is listening on, useful when addr uses an ephemeral
// port (":0"). Returns nil if ctx is cancelled first.
func (l *Listener) LocalAddr(ctx context.Context) net.Addr {
	select {
	case a := <-l.addrCh:
		l.addrCh <- a
		return a
	case <-ctx.Done():
		return nil
	}
}

// Serve accepts connections until ctx is cancelled or the listener errors.
// Only one client may relay to the mountpoint at a time; a second
// connection is rejected immediately.
func (l *Listener) Serve(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", l.addr)
	if err != nil {
		return err
	}
	l.addrCh <- ln.Addr()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	l.logger.Info("harbor listening", slog.String("mount", l.cfg.Mount), slog.String("codec", l.codec))
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		if l.source.Status() == "source client connected" {
			l.logger.Warn("rejecting harbor connection, mount already relaying",
				slog.String("remote_addr", conn.RemoteAddr().String()))
			conn.Close()
			continue
		}

		if err := l.source.Relay(conn, l.codec); err != nil {
			l.logger.Warn("harbor relay setup failed", slog.Any("error", err))
			conn.Close()
		}
	}
}
