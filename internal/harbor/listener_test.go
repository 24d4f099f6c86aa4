package harbor

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestListenerAcceptsAndRelaysConnection(t *testing.T) {
	decoders := NewDecoderRegistry()
	connected := make(chan struct{}, 1)
	decoders.Register("test", func(sink Sink) error {
		connected <- struct{}{}
		for {
			if _, err := sink.Read(16); err != nil {
				return err
			}
		}
	})

	registry := NewRegistry(decoders, nil)
	cfg := Config{Mount: "m", SamplesPerSecond: 10, BytesPerSample: 1, Max: time.Second}

	l := NewListener("127.0.0.1:0", cfg, "test", registry, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- l.Serve(ctx) }()

	addr := l.LocalAddr(ctx)
	if addr == nil {
		t.Fatal("expected Serve to bind and publish its address")
	}

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatal("decoder was never invoked for accepted connection")
	}

	source, ok := registry.Get("m")
	if !ok {
		t.Fatal("expected the mount's source to be registered")
	}
	if got := source.Status(); got != "source client connected" {
		t.Fatalf("expected connected status, got %q", got)
	}

	cancel()
	select {
	case err := <-serveErr:
		if err != nil {
			t.Fatalf("Serve() returned unexpected error after cancel: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not exit after context cancellation")
	}
}

func TestListenerRejectsSecondConcurrentConnection(t *testing.T) {
	decoders := NewDecoderRegistry()
	block := make(chan struct{})
	defer close(block)
	decoders.Register("test", func(sink Sink) error {
		<-block
		return nil
	})

	registry := NewRegistry(decoders, nil)
	cfg := Config{Mount: "m", SamplesPerSecond: 10, BytesPerSample: 1, Max: time.Second}

	l := NewListener("127.0.0.1:0", cfg, "test", registry, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go l.Serve(ctx)

	addr := l.LocalAddr(ctx)
	if addr == nil {
		t.Fatal("expected Serve to bind and publish its address")
	}

	first, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("first dial failed: %v", err)
	}
	defer first.Close()

	// Give the accept loop a moment to register the first connection as
	// relaying before the second dial races it.
	time.Sleep(20 * time.Millisecond)

	second, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("second dial failed: %v", err)
	}
	defer second.Close()

	second.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	if _, err := second.Read(buf); err == nil {
		t.Fatal("expected the second connection to be closed by the listener, got data instead")
	}
}
