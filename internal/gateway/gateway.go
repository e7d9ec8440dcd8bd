package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/supernoba/marketstream/internal/config"
	"github.com/supernoba/marketstream/internal/model"
)

// cleanupTimeout bounds store writes that run after the request context
// is gone (disconnect, shutdown).
const cleanupTimeout = 5 * time.Second

// ConnectionRegistry maintains durable connection state in the store.
type ConnectionRegistry interface {
	OnConnect(ctx context.Context, connID, userID string, tier model.ConnectionTier) error
	OnDisconnect(ctx context.Context, connID string) error
	SweepStale(ctx context.Context, userID string) ([]string, error)
}

// Subscriptions applies subscribe and unsubscribe requests.
type Subscriptions interface {
	Subscribe(ctx context.Context, connID string, req model.SubscribeRequest) (model.SubscribeRequest, error)
	Unsubscribe(ctx context.Context, connID string, symbols []string) error
}

// GatewayStats provides gateway counters.
type GatewayStats struct {
	Connections       int
	SlowConsumerDrops int64
}

// Gateway serves the WebSocket endpoint and bridges connections to the
// registry and subscription manager.
type Gateway struct {
	cfg      config.GatewayConfig
	registry ConnectionRegistry
	subs     Subscriptions
	logger   *slog.Logger

	hub      *hub
	upgrader websocket.Upgrader
	server   *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Gateway.
func New(cfg config.GatewayConfig, registry ConnectionRegistry, subs Subscriptions, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		cfg:      cfg,
		registry: registry,
		subs:     subs,
		logger:   logger,
		hub:      newHub(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browsers connect from arbitrary origins; auth happens at
			// the connection level, not the origin level.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Push delivers an encoded event to one of this instance's
// connections. Returns ErrGone when the connection is not here.
func (g *Gateway) Push(connID string, data []byte) error {
	return g.hub.Push(connID, data)
}

// Start begins serving the WebSocket endpoint.
func (g *Gateway) Start(ctx context.Context) error {
	g.ctx, g.cancel = context.WithCancel(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.ServeWS)

	g.server = &http.Server{
		Addr:    g.cfg.ListenAddr,
		Handler: mux,
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			g.logger.Error("gateway server failed", "err", err)
		}
	}()

	g.logger.Info("gateway started", "addr", g.cfg.ListenAddr)
	return nil
}

// Stop closes the listener, then waits for connection pumps to drain.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.cancel != nil {
		g.cancel()
	}
	if g.server != nil {
		if err := g.server.Shutdown(ctx); err != nil {
			g.logger.Warn("gateway shutdown", "err", err)
		}
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		g.logger.Info("gateway stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CurrentStats returns a snapshot of the counters.
func (g *Gateway) CurrentStats() GatewayStats {
	return GatewayStats{
		Connections:       g.hub.count(),
		SlowConsumerDrops: g.hub.dropped.Load(),
	}
}

// ServeWS upgrades the request and registers the connection.
//
// Authenticated clients pass userId and join the realtime tier;
// everyone else is anonymous and served from the slow loop.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	tier := model.TierRealtime
	if userID == "" {
		tier = model.TierAnonymous
		userID = "anon-" + uuid.NewString()
	}

	connID := uuid.NewString()

	if err := g.registry.OnConnect(r.Context(), connID, userID, tier); err != nil {
		g.logger.Error("failed to register connection", "user_id", userID, "err", err)
		http.Error(w, "registration failed", http.StatusServiceUnavailable)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("upgrade failed", "user_id", userID, "err", err)
		g.cleanupRecord(connID)
		return
	}

	c := newClient(connID, userID, tier, conn, g.cfg.SendBuffer)
	g.hub.add(c)

	g.wg.Add(3)
	go g.readPump(c)
	go g.writePump(c)
	go func() {
		// Reconnecting clients accumulate dead ids in their owner set;
		// sweep them off the hot path.
		defer g.wg.Done()
		ctx, cancel := context.WithTimeout(g.ctx, cleanupTimeout)
		defer cancel()
		if _, err := g.registry.SweepStale(ctx, c.userID); err != nil {
			g.logger.Warn("stale sweep failed", "user_id", c.userID, "err", err)
		}
	}()

	g.sendControl(c, map[string]any{
		"type":   "CONNECTED",
		"connId": connID,
		"tier":   tier,
	})

	g.logger.Info("connection established",
		"conn_id", connID,
		"user_id", userID,
		"tier", tier,
	)
}

// handleMessage dispatches an inbound frame on its action field.
func (g *Gateway) handleMessage(c *client, payload []byte) {
	action, err := model.ParseAction(payload)
	if err != nil {
		g.sendControl(c, map[string]any{
			"type":  "ERROR",
			"error": err.Error(),
		})
		return
	}

	switch action {
	case model.ActionSubscribe:
		g.handleSubscribe(c, payload)
	case model.ActionUnsubscribe:
		g.handleUnsubscribe(c, payload)
	default:
		g.sendControl(c, map[string]any{
			"type":  "ERROR",
			"error": "unknown action: " + action,
		})
	}
}

// handleSubscribe parses a subscribe frame and applies it.
func (g *Gateway) handleSubscribe(c *client, payload []byte) {
	req, err := model.ParseSubscribe(payload)
	if err != nil {
		g.sendControl(c, map[string]any{
			"type":  "ERROR",
			"error": err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(g.ctx, cleanupTimeout)
	defer cancel()

	applied, err := g.subs.Subscribe(ctx, c.id, req)
	if err != nil {
		g.logger.Warn("subscribe failed", "conn_id", c.id, "err", err)
		g.sendControl(c, map[string]any{
			"type":  "ERROR",
			"error": "subscribe failed",
		})
		return
	}

	g.sendControl(c, map[string]any{
		"type":    "SUBSCRIBED",
		"symbols": applied.Symbols(),
	})
}

// handleUnsubscribe parses an unsubscribe frame and drops the named
// symbols for the connection.
func (g *Gateway) handleUnsubscribe(c *client, payload []byte) {
	symbols, err := model.ParseUnsubscribe(payload)
	if err != nil {
		g.sendControl(c, map[string]any{
			"type":  "ERROR",
			"error": err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(g.ctx, cleanupTimeout)
	defer cancel()

	if err := g.subs.Unsubscribe(ctx, c.id, symbols); err != nil {
		g.logger.Warn("unsubscribe failed", "conn_id", c.id, "err", err)
		g.sendControl(c, map[string]any{
			"type":  "ERROR",
			"error": "unsubscribe failed",
		})
		return
	}

	g.sendControl(c, map[string]any{
		"type":    "UNSUBSCRIBED",
		"symbols": symbols,
	})
}

// sendControl queues a control frame, dropping it if the client is
// backed up. Control frames are advisory; data events matter more.
func (g *Gateway) sendControl(c *client, msg map[string]any) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// disconnect tears the connection down locally and in the store.
func (g *Gateway) disconnect(c *client) {
	c.close()
	if !g.hub.remove(c.id) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if err := g.registry.OnDisconnect(ctx, c.id); err != nil {
		g.logger.Error("disconnect cleanup failed", "conn_id", c.id, "err", err)
		return
	}

	g.logger.Info("connection closed", "conn_id", c.id, "user_id", c.userID)
}

// cleanupRecord removes a registry record for a connection that never
// finished its upgrade.
func (g *Gateway) cleanupRecord(connID string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := g.registry.OnDisconnect(ctx, connID); err != nil {
		g.logger.Warn("orphan record cleanup failed", "conn_id", connID, "err", err)
	}
}
