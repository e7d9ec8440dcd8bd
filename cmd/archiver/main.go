package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/supernoba/marketstream/internal/archive"
	"github.com/supernoba/marketstream/internal/config"
	"github.com/supernoba/marketstream/internal/database"
	"github.com/supernoba/marketstream/internal/store"
	"github.com/supernoba/marketstream/internal/version"
)

func main() {
	godotenv.Load()

	configPath := flag.String("config", "configs/archiver.local.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting archiver",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateDatabase(); err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	st, err := store.New(ctx, cfg.Valkey, logger)
	if err != nil {
		logger.Error("failed to connect to state store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	arch := archive.New(cfg.Archive, st, pool, logger)

	healthServer := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			stats := arch.Stats()
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"status": "healthy",
				"archiver": map[string]int64{
					"sweeps":       stats.Sweeps,
					"inserts":      stats.Inserts,
					"conflicts":    stats.Conflicts,
					"parse_errors": stats.ParseErrors,
					"errors":       stats.Errors,
				},
			})
		}),
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	if err := arch.Start(ctx); err != nil {
		logger.Error("failed to start archiver", "error", err)
		os.Exit(1)
	}

	logger.Info("archiver running", "instance_id", cfg.Instance.ID)

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := arch.Stop(shutdownCtx); err != nil {
		logger.Warn("archiver stop", "error", err)
	}
	healthServer.Shutdown(shutdownCtx)

	logger.Info("archiver stopped")
}
