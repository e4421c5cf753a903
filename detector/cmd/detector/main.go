package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/telhawk-systems/airhawk/common/audit"
	"github.com/telhawk-systems/airhawk/common/config"
	"github.com/telhawk-systems/airhawk/common/logging"
	"github.com/telhawk-systems/airhawk/common/messaging"
	"github.com/telhawk-systems/airhawk/detector/internal/capture"
	"github.com/telhawk-systems/airhawk/detector/internal/handlers"
	"github.com/telhawk-systems/airhawk/detector/internal/ledger"
	"github.com/telhawk-systems/airhawk/detector/internal/localstore"
	"github.com/telhawk-systems/airhawk/detector/internal/pipeline"
	"github.com/telhawk-systems/airhawk/detector/internal/server"
	"github.com/telhawk-systems/airhawk/detector/internal/stats"
	"github.com/telhawk-systems/airhawk/enforcer/pkg/gateway"

	natsclient "github.com/telhawk-systems/airhawk/common/messaging/nats"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	sourceKind := flag.String("source", "", "override detector.source.kind (nats, file, stdin)")
	sourcePath := flag.String("file", "", "frames file for -source=file")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load("detector")
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *sourceKind != "" {
		cfg.Detector.Source.Kind = *sourceKind
	}
	if *sourcePath != "" {
		cfg.Detector.Source.Path = *sourcePath
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("detector"))
	logging.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("Detector failed", logging.Error(err))
		os.Exit(1)
	}
}

// run wires the detector and blocks until SIGINT or SIGTERM. Returning an
// error instead of exiting lets the deferred cleanups run.
func run(cfg *config.Config, logger *logging.Logger) error {
	slog.Info("Starting deauth detector",
		slog.Int("port", cfg.Detector.Server.Port),
		slog.String("enforcer_addr", cfg.Detector.Enforcer.Addr),
		slog.String("source", cfg.Detector.Source.Kind),
		slog.String("local_store", cfg.Detector.LocalStore),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Enforcer client
	gw := gateway.New(cfg.Detector.Enforcer.Addr,
		gateway.WithTimeout(cfg.Detector.Enforcer.Timeout),
		gateway.WithBreaker(cfg.Detector.Enforcer.BreakerThreshold, cfg.Detector.Enforcer.BreakerCooldown),
		gateway.WithLogger(logger.Logger),
	)

	// Local log store
	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s local store: %w", cfg.Detector.LocalStore, err)
	}
	defer store.Close()

	// NATS (frames in, ledger out)
	var js *natsclient.JetStreamClient
	if cfg.NATS.Enabled {
		js, err = natsclient.NewJetStreamClient(natsclient.Config{
			URL:           cfg.NATS.URL,
			Name:          "airhawk-detector",
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
			Timeout:       5 * time.Second,
			Logger:        logger.Logger,
		})
		if err != nil {
			slog.Warn("NATS unreachable, ledger and nats source disabled",
				slog.String("nats_url", cfg.NATS.URL), logging.Error(err))
		} else {
			defer js.Drain()
		}
	}

	// Ledger
	var (
		ledgerClient ledger.Client = ledger.NoOp{}
		recorder     *ledger.Recorder
		ledgerSink   pipeline.LedgerSink
	)
	if cfg.Ledger.Enabled && js != nil {
		signer := audit.NewSigner(cfg.Ledger.SigningSecret)
		jsLedger, err := ledger.NewJetStream(ctx, js, cfg.Ledger.Stream, signer, logger.Logger)
		if err != nil {
			slog.Warn("Ledger disabled: stream setup failed", logging.Error(err),
				logging.ErrorClass(logging.ClassLedger))
		} else {
			ledgerClient = jsLedger
			recorder = ledger.NewRecorder(jsLedger, ledger.RecorderConfig{
				Workers:     cfg.Ledger.Workers,
				QueueSize:   cfg.Ledger.QueueSize,
				Attempts:    cfg.Ledger.Attempts,
				BackoffUnit: cfg.Ledger.BackoffUnit,
			}, logger.Logger)
			ledgerSink = recorder
			slog.Info("Ledger enabled", slog.String("stream", cfg.Ledger.Stream),
				slog.Int("workers", cfg.Ledger.Workers))
		}
	} else {
		slog.Info("Ledger disabled")
	}

	// Sighting statistics
	var (
		collector   *stats.Collector
		sightings   pipeline.SightingRecorder
		statsReader handlers.StatsReader
	)
	if cfg.Detector.Stats.Enabled && cfg.Redis.Enabled {
		statsClient, err := stats.NewClient(cfg.Redis.URL, cfg.Detector.Stats.TTL)
		if err != nil {
			slog.Warn("Sighting statistics disabled", logging.Error(err))
		} else {
			collector = stats.NewCollector(statsClient, 10*time.Second, logger.Logger)
			sightings = collector
			statsReader = statsClient
			slog.Info("Sighting statistics enabled", slog.String("redis_url", cfg.Redis.URL))
		}
	}

	p := pipeline.New(pipeline.Deps{
		Gateway: gw,
		Store:   store,
		Ledger:  ledgerSink,
		Stats:   sightings,
		Logger:  logger.Logger,
	})

	// Reporting API
	hcfg := handlers.Config{
		Enforcer:  gw,
		Logs:      store,
		StoreKind: cfg.Detector.LocalStore,
		Ledger:    ledgerClient,
		Stats:     statsReader,
		Pipeline:  p,
		Logger:    logger.Logger,
	}
	if recorder != nil {
		hcfg.Recorder = recorder
	}
	if js != nil {
		hcfg.Broker = js
	}
	// Capture
	src, closeSrc, err := openSource(cfg, js, logger.Logger)
	if err != nil {
		return fmt.Errorf("open capture source: %w", err)
	}
	defer closeSrc()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Detector.Server.Port),
		Handler:      server.NewRouter(handlers.NewHandler(hcfg), logger.Logger),
		ReadTimeout:  cfg.Detector.Server.ReadTimeout,
		WriteTimeout: cfg.Detector.Server.WriteTimeout,
		IdleTimeout:  cfg.Detector.Server.IdleTimeout,
	}
	go func() {
		slog.Info("Reporting API listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", logging.Error(err))
			stop()
		}
	}()

	slog.Info("Monitoring for deauthentication frames")
	if err := src.Run(ctx, func(ctx context.Context, f capture.Frame) { p.Process(ctx, f) }); err != nil {
		slog.Error("Capture source failed", logging.Error(err))
	} else if ctx.Err() == nil {
		slog.Info("Capture source exhausted, API stays up until shutdown")
	}
	<-ctx.Done()

	slog.Info("Shutting down detector")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown error", logging.Error(err))
	}
	if recorder != nil {
		if err := recorder.Close(shutdownCtx); err != nil {
			slog.Warn("Ledger recorder did not drain", logging.Error(err))
		}
		rs := recorder.Stats()
		slog.Info("Ledger recorder stopped",
			slog.Uint64("appended", rs.Appended),
			slog.Uint64("exhausted", rs.Exhausted),
			slog.Uint64("dropped", rs.Dropped))
	}
	if collector != nil {
		collector.Stop()
		_ = collector.Client().Close()
	}

	ps := p.Stats()
	slog.Info("Detector stopped",
		slog.Uint64("events", ps.Events),
		slog.Uint64("logged", ps.Logged),
		slog.Uint64("blocked", ps.Blocked))
	return nil
}

// openStore selects the local log store named by detector.local_store.
func openStore(ctx context.Context, cfg *config.Config) (localstore.Store, error) {
	switch cfg.Detector.LocalStore {
	case localstore.KindPostgres:
		url := cfg.Database.Postgres.URL()
		if err := localstore.Migrate(url); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return localstore.NewPostgres(ctx, url)
	case localstore.KindOpenSearch:
		return localstore.NewOpenSearch(ctx, localstore.OpenSearchConfig{
			URL:           cfg.OpenSearch.URL,
			Username:      cfg.OpenSearch.Username,
			Password:      cfg.OpenSearch.Password,
			TLSSkipVerify: cfg.OpenSearch.TLSSkipVerify,
			Index:         cfg.OpenSearch.Index,
		})
	case localstore.KindMemory, "":
		return localstore.NewMemory(localstore.DefaultMemoryCapacity), nil
	default:
		return nil, fmt.Errorf("unknown local store %q (supported: memory, postgres, opensearch)", cfg.Detector.LocalStore)
	}
}

func openSource(cfg *config.Config, js *natsclient.JetStreamClient, logger *slog.Logger) (capture.Source, func(), error) {
	noop := func() {}
	switch cfg.Detector.Source.Kind {
	case "nats":
		if js == nil {
			return nil, nil, errors.New("nats source requires nats.enabled and a reachable server")
		}
		slog.Info("Reading frames from NATS", slog.String("subject", messaging.SubjectCaptureFrames))
		return capture.NewNATSSource(js, messaging.SubjectCaptureFrames, logger), noop, nil
	case "file":
		f, err := os.Open(cfg.Detector.Source.Path)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Reading frames from file", slog.String("path", cfg.Detector.Source.Path))
		return capture.NewReaderSource(f, logger), func() { _ = f.Close() }, nil
	case "stdin":
		return capture.NewReaderSource(os.Stdin, logger), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown source %q (supported: nats, file, stdin)", cfg.Detector.Source.Kind)
	}
}
