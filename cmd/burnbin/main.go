package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"burnbin/internal/clock"
	"burnbin/internal/config"
	"burnbin/internal/httpserver"
	"burnbin/internal/id"
	"burnbin/internal/storage"
	"burnbin/internal/storage/boltstore"
	"burnbin/internal/storage/redisstore"
	"burnbin/internal/storage/sqlitestore"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	parseFlags(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed opening data store", "driver", cfg.Driver, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("store ready", "driver", cfg.Driver)

	clk := clock.New(cfg.TestMode)
	if cfg.TestMode {
		logger.Warn("test mode enabled, requests may override the clock")
	}

	srv, err := httpserver.New(httpserver.Config{
		Store:       store,
		IDGenerator: id.New(10),
		Clock:       clk,
		MaxBytes:    cfg.MaxBytes,
		TrustProxy:  behindProxy,
		BaseURL:     cfg.BaseURL,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to construct server", "error", err)
		os.Exit(1)
	}

	httpserver.StartJanitor(ctx, store, clk, time.Minute, logger)

	srvHTTP := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		if err := srvHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	case err := <-errCh:
		logger.Error("http server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

var behindProxy bool

func parseFlags(cfg *config.Config) {
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flag.StringVar(&cfg.Driver, "driver", cfg.Driver, "storage driver (sqlite, bolt or redis)")
	flag.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "path to the sqlite data file")
	flag.StringVar(&cfg.BoltPath, "bolt-path", cfg.BoltPath, "path to the bolt data file")
	flag.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "redis address or redis:// URL")
	flag.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "canonical base URL (optional)")
	flag.BoolVar(&behindProxy, "behind-proxy", false, "trust proxy headers for client address and scheme")
	flag.Parse()
}

// openStore selects the storage engine once at startup; nothing downstream
// knows which engine it is talking to.
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return sqlitestore.Open(cfg.SQLitePath)
	case config.DriverBolt:
		return boltstore.Open(cfg.BoltPath)
	case config.DriverRedis:
		return redisstore.Open(ctx, cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
	}
}
