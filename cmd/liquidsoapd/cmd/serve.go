package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dhannyz/liquidsoap-go/internal/clock"
	"github.com/dhannyz/liquidsoap-go/internal/config"
	"github.com/dhannyz/liquidsoap-go/internal/harbor"
	"github.com/dhannyz/liquidsoap-go/internal/historystore"
	"github.com/dhannyz/liquidsoap-go/internal/housekeeping"
	"github.com/dhannyz/liquidsoap-go/internal/httpapi"
	"github.com/dhannyz/liquidsoap-go/internal/observability"
	"github.com/dhannyz/liquidsoap-go/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the clock scheduler and harbor ingest daemon",
	Long: `Run liquidsoapd: start the default wallclock, listen for harbor
client connections on every configured bind address, serve the HTTP
control surface, and run periodic housekeeping until an OS signal is
received.`,
	RunE: runServe,
}

// defaultFrameDuration and defaultSampleRate describe the reference
// harbor feed this daemon drives: one scheduler tick per 20ms frame at
// 48kHz, 16-bit samples. A real deployment would source these from the
// negotiated stream rather than a fixed default.
const (
	defaultFrameDuration = 20 * time.Millisecond
	defaultSampleRate    = 48000
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "control surface host to bind to")
	serveCmd.Flags().Int("port", 8080, "control surface port to listen on")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	// config.Load reads its own viper instance, so the flags bound on the
	// global one (--host, --port, --log-level, --log-format) are applied here.
	cfg.Server.Host = viper.GetString("server.host")
	cfg.Server.Port = viper.GetInt("server.port")
	cfg.Logging.Level = viper.GetString("logging.level")
	cfg.Logging.Format = viper.GetString("logging.format")
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger := observability.NewLogger(cfg.Logging)
	observability.SetDefault(logger)

	store, err := historystore.Open(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("opening history store: %w", err)
	}
	defer store.Close()

	collector := clock.NewCollector(
		defaultFrameDuration,
		cfg.Root.MaxLatency,
		cfg.Clock.AllowStreamingErrors,
		logger,
	)

	decoders := harbor.NewDecoderRegistry()
	decoders.Register("raw", harbor.NewRawDecoder(defaultSampleRate, 4096))

	registry := harbor.NewRegistry(decoders, logger)
	bridge := newHistoryBridge(store, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for i, addr := range cfg.Harbor.BindAddrs {
		mount := fmt.Sprintf("mount-%d", i)
		hcfg := harbor.Config{
			Mount:            mount,
			SamplesPerSecond: defaultSampleRate,
			BytesPerSample:   2,
			Max:              cfg.Harbor.Max,
			DumpMaxSize:      cfg.Harbor.DumpMaxSize.Int64(),
			OnConnect:        bridge.connected(mount, "raw"),
			OnDisconnect:     bridge.disconnected(mount),
		}
		listener := harbor.NewListener(addr, hcfg, "raw", registry, logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Serve(ctx); err != nil {
				logger.Error("harbor listener exited", slog.String("addr", addr), slog.Any("error", err))
			}
		}()
	}

	housekeeper, err := housekeeping.New(cfg.Housekeeping, collector, logger)
	if err != nil {
		return fmt.Errorf("building housekeeper: %w", err)
	}
	housekeeper.Start()
	defer housekeeper.Stop()

	sampler := observability.NewMetricsSampler(logger, cfg.Metrics.SampleEvery)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sampler.Run(ctx)
	}()

	collector.Start()
	defer collector.Stop()

	server := httpapi.NewServer(cfg.Server, version.Version, registry, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("liquidsoapd starting",
		slog.String("control_surface", cfg.Server.Address()),
		slog.Any("harbor_bind_addrs", cfg.Harbor.BindAddrs),
		slog.String("version", version.Version))

	err = server.ListenAndServe(ctx)
	wg.Wait()
	return err
}

// historyBridge adapts harbor's OnConnect/OnDisconnect callbacks (which
// carry only a remote address) onto historystore's connect/disconnect
// pair (which needs the ULID handed back by RecordConnect). It tracks at
// most one open connection id per mountpoint, matching harbor's one
// client at a time constraint.
type historyBridge struct {
	store  *historystore.Store
	logger *slog.Logger

	mu   sync.Mutex
	open map[string]string
}

func newHistoryBridge(store *historystore.Store, logger *slog.Logger) *historyBridge {
	return &historyBridge{store: store, logger: logger, open: make(map[string]string)}
}

func (b *historyBridge) connected(mount, codec string) func(remoteAddr string) {
	return func(remoteAddr string) {
		id, err := b.store.RecordConnect(context.Background(), mount, remoteAddr, codec)
		if err != nil {
			b.logger.Warn("recording harbor connect failed", slog.Any("error", err))
			return
		}
		b.mu.Lock()
		b.open[mount] = id
		b.mu.Unlock()
	}
}

func (b *historyBridge) disconnected(mount string) func(remoteAddr string) {
	return func(_ string) {
		b.mu.Lock()
		id, ok := b.open[mount]
		delete(b.open, mount)
		b.mu.Unlock()
		if !ok {
			return
		}
		// harbor keeps no count of relayed bytes, so 0 is recorded
		if err := b.store.RecordDisconnect(context.Background(), id, 0); err != nil {
			b.logger.Warn("recording harbor disconnect failed", slog.Any("error", err))
		}
	}
}
