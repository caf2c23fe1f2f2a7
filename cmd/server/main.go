/*
main.go - Application entry point

STARTUP SEQUENCE:
  1. Load configuration (.env / environment)
  2. Build the structured logger
  3. Open the store: PostgreSQL when DATABASE_URL is set, SQLite otherwise
  4. Wire the mutation service, batch processor, and HTTP handler
  5. Optionally seed sample data (-seed)
  6. Serve with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (SHUTDOWN_TIMEOUT)
  3. Close the store
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/warp/balance-engine/api"
	"github.com/warp/balance-engine/config"
	"github.com/warp/balance-engine/ledger"
	"github.com/warp/balance-engine/logging"
	"github.com/warp/balance-engine/seed"
	"github.com/warp/balance-engine/store/postgres"
	"github.com/warp/balance-engine/store/sqlite"
)

func main() {
	seedData := flag.Bool("seed", false, "populate sample customers and transactions on startup")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.New("info").Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store      ledger.Store
		closeStore func()
	)
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to open postgres store", "error", err)
			os.Exit(1)
		}
		store = pg
		closeStore = pg.Close
		log.Info("using postgres store")
	} else {
		sq, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			log.Error("failed to open sqlite store", "error", err)
			os.Exit(1)
		}
		store = sq
		closeStore = func() { _ = sq.Close() }
		log.Info("using sqlite store", "path", cfg.SQLitePath)
	}
	defer closeStore()

	svc := ledger.NewService(store, log)
	batch := ledger.NewBatchProcessor(store, log)

	if *seedData {
		if err := seed.Populate(ctx, store, svc, log); err != nil {
			log.Error("failed to seed sample data", "error", err)
			os.Exit(1)
		}
	}

	handler := api.NewHandler(store, svc, batch, log)
	srv := &http.Server{
		Addr:    cfg.Address(),
		Handler: api.NewRouter(handler),
	}

	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
}
