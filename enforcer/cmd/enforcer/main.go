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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/airhawk/common/config"
	"github.com/telhawk-systems/airhawk/common/logging"
	"github.com/telhawk-systems/airhawk/common/messaging"
	"github.com/telhawk-systems/airhawk/enforcer/internal/blockstore"
	"github.com/telhawk-systems/airhawk/enforcer/internal/server"

	natsclient "github.com/telhawk-systems/airhawk/common/messaging/nats"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	listenAddr := flag.String("listen", "", "override enforcer.listen_addr")
	snapshotPath := flag.String("snapshot", "", "override enforcer.snapshot_path")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load("enforcer")
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *listenAddr != "" {
		cfg.Enforcer.ListenAddr = *listenAddr
	}
	if *snapshotPath != "" {
		cfg.Enforcer.SnapshotPath = *snapshotPath
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("enforcer"))
	logging.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("Enforcer stopped", logging.Error(err))
		os.Exit(1)
	}
	slog.Info("Enforcer stopped")
}

// run serves the blocklist until SIGINT or SIGTERM. Errors are returned
// rather than fatal so the NATS connection is drained on every path.
func run(cfg *config.Config, logger *logging.Logger) error {
	store := blockstore.New(cfg.Enforcer.SnapshotPath, logger.Logger)
	loaded := store.Load()

	opts := []server.Option{
		server.WithLogger(logger.Logger),
		server.WithIdleTimeout(cfg.Enforcer.IdleTimeout),
		server.WithMaxLineBytes(cfg.Enforcer.MaxLineBytes),
	}

	if cfg.Enforcer.PublishChanges && cfg.NATS.Enabled {
		nc, err := natsclient.NewClient(natsclient.Config{
			URL:           cfg.NATS.URL,
			Name:          "airhawk-enforcer",
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
			Timeout:       5 * time.Second,
			Logger:        logger.Logger,
		})
		if err != nil {
			slog.Warn("Blocklist change events disabled: NATS unreachable",
				slog.String("nats_url", cfg.NATS.URL), logging.Error(err))
		} else {
			defer nc.Drain()
			opts = append(opts, server.WithPublisher(nc))
			slog.Info("Publishing blocklist changes",
				slog.String("subject", messaging.SubjectBlocklistChanged),
				slog.String("nats_url", cfg.NATS.URL))
		}
	}

	srv := server.New(store, opts...)

	slog.Info("Starting MAC enforcer",
		slog.String("listen_addr", cfg.Enforcer.ListenAddr),
		slog.String("snapshot", store.Path()),
		slog.Int("loaded", loaded),
		slog.String("commands", "BLOCK <mac> | UNBLOCK <mac> | LIST | CHECK <mac>"),
	)

	var metricsSrv *http.Server
	if cfg.Enforcer.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = fmt.Fprintf(w, "ok %d\n", srv.Len())
		})
		metricsSrv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Enforcer.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("Metrics listening", slog.String("addr", metricsSrv.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server error", logging.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := srv.ListenAndServe(ctx, cfg.Enforcer.ListenAddr)

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}
	return err
}
