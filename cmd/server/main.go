/*
main.go - Application entry point

STARTUP SEQUENCE:
  1. Parse flags and load configuration (YAML file + env)
  2. Build the zap logger
  3. Open the store (SQLite, or in-memory with -db="")
  4. Construct the engine, router, and sweep scheduler
  5. Serve with graceful shutdown on SIGINT/SIGTERM

EXAMPLES:
  # File database on the default port
  ./server -db=./data/cashback.db

  # In-memory SQLite, custom port
  ./server -db=:memory: -addr=:3000

  # No SQLite at all (volatile map store)
  ./server -db=
*/
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/cashback-engine/api"
	"github.com/warp/cashback-engine/cashback"
	memstore "github.com/warp/cashback-engine/cashback/store"
	"github.com/warp/cashback-engine/config"
	"github.com/warp/cashback-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "YAML config file path")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	dbPath := flag.String("db", "\x00unset", "SQLite database path; empty for in-memory maps (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "\x00unset" {
		cfg.DBPath = *dbPath
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	var store cashback.Store
	if cfg.DBPath == "" {
		logger.Info("using in-memory store")
		store = memstore.NewMemory()
	} else {
		sqlStore, err := sqlite.New(cfg.DBPath)
		if err != nil {
			logger.Fatal("failed to open database", zap.Error(err))
		}
		defer sqlStore.Close()
		logger.Info("using sqlite store", zap.String("path", cfg.DBPath))
		store = sqlStore
	}

	engine := cashback.NewEngine(store, cashback.Options{
		RewardValidity:    time.Duration(cfg.RewardValidityDays) * 24 * time.Hour,
		MinimumRedemption: cashback.MustMoney(cfg.MinimumRedemption),
		Logger:            logger,
	})

	handler := api.NewHandler(engine)
	router := api.NewRouter(handler, logger, cfg.AllowedOrigins)

	scheduler := api.NewSweepScheduler(engine, cfg.SweepInterval, logger)
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("forced shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zapcfg := zap.NewProductionConfig()
	zapcfg.Level = lvl
	return zapcfg.Build()
}
