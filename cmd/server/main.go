/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the folio ledger server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load environment configuration, then apply command-line flags
  2. Open the store (SQLite, PostgreSQL or memory)
  3. Build the folio lock (in-process or Redis)
  4. Create API handler and router
  5. Start the night audit scheduler (AUDIT_ENABLED)
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides APP_ADDR)
  -db      SQLite database path (overrides SQLITE_PATH)
           Use ":memory:" for in-memory database

ENVIRONMENT:
  See config/config.go. The most common settings:
  STORE_DRIVER=sqlite|postgres|memory   PG_DSN=postgres://...
  LOCK_DRIVER=local|redis               REDIS_ADDR=host:port
  TAX_RATES=5,5                         LOG_FORMAT=json
  AUDIT_ENABLED=true                    AUDIT_INTERVAL=1h

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (SHUTDOWN_TIMEOUT)
  3. Stop the audit scheduler
  4. Close store and lock connections
  5. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Default store
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/folio-engine/api"
	"github.com/warp/folio-engine/config"
	"github.com/warp/folio-engine/folio"
	memstore "github.com/warp/folio-engine/folio/store"
	"github.com/warp/folio-engine/lock"
	"github.com/warp/folio-engine/store/postgres"
	"github.com/warp/folio-engine/store/sqlite"
)

func main() {
	port := flag.Int("port", 0, "HTTP server port (overrides APP_ADDR)")
	dbPath := flag.String("db", "", "SQLite database path (overrides SQLITE_PATH)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.AppAddr = fmt.Sprintf(":%d", *port)
	}
	if *dbPath != "" {
		cfg.SQLitePath = *dbPath
	}

	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	locker, closeLocker, err := openLocker(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open locker: %w", err)
	}
	defer closeLocker()

	rates, err := cfg.Taxes()
	if err != nil {
		return err
	}

	handler := api.NewHandler(api.Deps{
		Store:  store,
		Locker: locker,
		Clock:  folio.SystemClock{},
		Taxes:  folio.StaticRates(rates),
		Logger: logger,
	})

	scheduler := api.NewAuditScheduler(handler.Audit, logger)
	scheduler.Enabled = cfg.AuditEnabled
	if cfg.AuditInterval > 0 {
		scheduler.CheckInterval = cfg.AuditInterval
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      api.NewRouter(handler, cfg),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("addr", cfg.AppAddr),
			slog.String("store", cfg.StoreDriver),
			slog.String("lock", cfg.LockDriver),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (folio.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		s, err := postgres.Open(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.StoreMemory:
		return memstore.NewMemory(), func() {}, nil
	default:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
}

func openLocker(ctx context.Context, cfg *config.Config) (folio.Locker, func(), error) {
	if cfg.LockDriver != config.LockRedis {
		l := lock.NewLocal()
		l.Wait = cfg.LockWait
		return l, func() {}, nil
	}
	client, err := lock.Dial(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, nil, err
	}
	l := lock.NewRedis(client, cfg.LockTTL)
	l.Wait = cfg.LockWait
	return l, func() { _ = client.Close() }, nil
}
