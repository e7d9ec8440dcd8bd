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

	"github.com/supernoba/marketstream/internal/broadcast"
	"github.com/supernoba/marketstream/internal/config"
	"github.com/supernoba/marketstream/internal/gateway"
	"github.com/supernoba/marketstream/internal/registry"
	"github.com/supernoba/marketstream/internal/store"
	"github.com/supernoba/marketstream/internal/subscription"
	"github.com/supernoba/marketstream/internal/version"
)

func main() {
	// Local development keeps credentials in .env; absence is fine.
	godotenv.Load()

	configPath := flag.String("config", "configs/streamer.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting streamer",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"listen_addr", cfg.Gateway.ListenAddr,
		"valkey_addr", cfg.Valkey.Addr,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to the shared state store
	st, err := store.New(ctx, cfg.Valkey, logger)
	if err != nil {
		logger.Error("failed to connect to state store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	logger.Info("state store connected")

	// Wire the components
	subs := subscription.NewManager(st, logger)
	reg := registry.NewRegistry(st, subs, cfg.Instance.ID, cfg.Gateway.ConnectionTTL, logger)
	gw := gateway.New(cfg.Gateway, reg, subs, logger)
	bc := broadcast.New(cfg.Broadcast, cfg.Instance.ID, st, gw, reg, logger)

	// Start health server
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: createHealthHandler(cfg.Health.Path, st, gw, bc),
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	// Start gateway before broadcaster so early connections miss no ticks
	if err := gw.Start(ctx); err != nil {
		logger.Error("failed to start gateway", "error", err)
		os.Exit(1)
	}
	if err := bc.Start(ctx); err != nil {
		logger.Error("failed to start broadcaster", "error", err)
		os.Exit(1)
	}

	logger.Info("streamer running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d%s", cfg.Health.Port, cfg.Health.Path),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	// Broadcaster first: stop producing before dropping connections.
	if err := bc.Stop(shutdownCtx); err != nil {
		logger.Warn("broadcaster stop", "error", err)
	}
	if err := gw.Stop(shutdownCtx); err != nil {
		logger.Warn("gateway stop", "error", err)
	}
	healthServer.Shutdown(shutdownCtx)

	logger.Info("streamer stopped")
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(path string, st *store.Store, gw *gateway.Gateway, bc *broadcast.Broadcaster) http.Handler {
	if path == "" {
		path = "/health"
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if err := st.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["valkey"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["valkey"] = "connected"
		}

		gwStats := gw.CurrentStats()
		health.Components["gateway"] = map[string]any{
			"connections":         gwStats.Connections,
			"slow_consumer_drops": gwStats.SlowConsumerDrops,
		}

		bcStats := bc.CurrentStats()
		health.Components["broadcaster"] = map[string]any{
			"fast_ticks":        bcStats.FastTicks,
			"slow_ticks":        bcStats.SlowTicks,
			"events_sent":       bcStats.EventsSent,
			"events_suppressed": bcStats.EventsSuppressed,
			"gone_removed":      bcStats.GoneRemoved,
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
