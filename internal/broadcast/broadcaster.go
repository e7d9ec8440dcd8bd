package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/supernoba/marketstream/internal/config"
	"github.com/supernoba/marketstream/internal/gateway"
	"github.com/supernoba/marketstream/internal/model"
	"github.com/supernoba/marketstream/internal/store"
)

// Store is the subset of the state store the broadcaster reads.
type Store interface {
	ActiveSymbols(ctx context.Context) ([]string, error)
	MainSubscribers(ctx context.Context, symbol string) ([]string, error)
	SubSubscribers(ctx context.Context, symbol string) ([]string, error)
	LegacySubscribers(ctx context.Context, symbol string) ([]string, error)
	RealtimeConnections(ctx context.Context) ([]string, error)
	GetConnection(ctx context.Context, connID string) (model.ConnectionRecord, error)

	Depth(ctx context.Context, symbol string) ([]byte, error)
	Ticker(ctx context.Context, symbol string) ([]byte, error)
	ActiveCandle(ctx context.Context, symbol string) (*model.Candle, error)
	PopClosedCandle(ctx context.Context, symbol string) (*model.Candle, error)
}

// Pusher delivers an encoded event to a single connection. It returns
// gateway.ErrGone when the connection no longer exists.
type Pusher interface {
	Push(connID string, data []byte) error
}

// Reconciler removes a vanished connection's state from the store.
type Reconciler interface {
	OnDisconnect(ctx context.Context, connID string) error
}

// Stats provides broadcaster counters.
type Stats struct {
	FastTicks        int64
	SlowTicks        int64
	EventsSent       int64
	EventsSuppressed int64
	GoneRemoved      int64
}

// Broadcaster runs the dual-rate fan-out loops.
//
// The fast loop serves realtime-tier connections from the store: depth
// and candle events to a symbol's PRIMARY subscribers, ticker events to
// its SECONDARY subscribers. The slow loop serves anonymous connections
// the same way, but from the in-process cache the fast loop keeps, so
// the anonymous tier adds no read load on the store.
//
// Several streamer instances may broadcast against the same store; the
// subscriber sets are shared, so a push here can name a connection homed
// on a peer. Those pushes fail locally and are skipped, not reconciled.
type Broadcaster struct {
	cfg        config.BroadcastConfig
	instance   string
	store      Store
	pusher     Pusher
	reconciler Reconciler
	logger     *slog.Logger

	suppress *suppressor
	cache    *snapshotCache

	// Churn observation across fast ticks.
	churnMu       sync.Mutex
	prevSymbols   int
	prevRealtime  int
	churnObserved bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	fastTicks        atomic.Int64
	slowTicks        atomic.Int64
	eventsSent       atomic.Int64
	eventsSuppressed atomic.Int64
	goneRemoved      atomic.Int64
}

// New creates a Broadcaster. instance must match the id the registry
// stamps into this streamer's connection records.
func New(cfg config.BroadcastConfig, instance string, store Store, pusher Pusher, reconciler Reconciler, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		cfg:        cfg,
		instance:   instance,
		store:      store,
		pusher:     pusher,
		reconciler: reconciler,
		logger:     logger,
		suppress:   newSuppressor(),
		cache:      newSnapshotCache(),
	}
}

// Start begins both broadcast loops.
func (b *Broadcaster) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	b.wg.Add(2)
	go b.runFast()
	go b.runSlow()

	b.logger.Info("broadcaster started",
		"fast_interval", b.cfg.FastInterval,
		"slow_interval", b.cfg.SlowInterval,
		"concurrency", b.cfg.Concurrency,
	)
	return nil
}

// Stop shuts both loops down. An in-flight tick drains before Stop
// returns, unless ctx expires first.
func (b *Broadcaster) Stop(ctx context.Context) error {
	if b.cancel != nil {
		b.cancel()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("broadcaster stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CurrentStats returns a snapshot of the counters.
func (b *Broadcaster) CurrentStats() Stats {
	return Stats{
		FastTicks:        b.fastTicks.Load(),
		SlowTicks:        b.slowTicks.Load(),
		EventsSent:       b.eventsSent.Load(),
		EventsSuppressed: b.eventsSuppressed.Load(),
		GoneRemoved:      b.goneRemoved.Load(),
	}
}

func (b *Broadcaster) runFast() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.FastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.tick(b.ctx, true)
		}
	}
}

func (b *Broadcaster) runSlow() {
	defer b.wg.Done()

	// Without tier filtering the fast loop serves every subscriber and
	// the slow loop has nothing to do.
	if !b.cfg.TierFilteringEnabled() {
		return
	}

	ticker := time.NewTicker(b.cfg.SlowInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.tick(b.ctx, false)
		}
	}
}

// tick runs one broadcast pass. fast selects the realtime-tier loop.
func (b *Broadcaster) tick(ctx context.Context, fast bool) {
	start := time.Now()

	symbols, err := b.store.ActiveSymbols(ctx)
	if err != nil {
		b.logger.Warn("failed to list active symbols", "err", err)
		return
	}

	var realtime map[string]struct{}
	if b.cfg.TierFilteringEnabled() {
		ids, err := b.store.RealtimeConnections(ctx)
		if err != nil {
			b.logger.Warn("failed to list realtime connections", "err", err)
			return
		}
		realtime = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			realtime[id] = struct{}{}
		}
	}

	if fast {
		b.observeChurn(len(symbols), len(realtime))
	}
	if len(symbols) == 0 {
		if fast {
			b.fastTicks.Add(1)
		} else {
			b.slowTicks.Add(1)
		}
		return
	}

	var goneMu sync.Mutex
	gone := make(map[string]struct{})

	g := &errgroup.Group{}
	g.SetLimit(b.cfg.Concurrency)

	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			goneIDs := b.broadcastSymbol(ctx, symbol, realtime, fast)
			if len(goneIDs) > 0 {
				goneMu.Lock()
				for _, id := range goneIDs {
					gone[id] = struct{}{}
				}
				goneMu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	// Vanished connections are reconciled before the tick settles, so
	// the next tick never fans out to them again. Connections homed on
	// a peer instance are not ours to clean up.
	for id := range gone {
		owned, err := b.ownsConnection(ctx, id)
		if err != nil {
			b.logger.Warn("failed to check gone connection", "conn_id", id, "err", err)
			continue
		}
		if !owned {
			b.logger.Debug("skipping connection homed elsewhere", "conn_id", id)
			continue
		}
		if err := b.reconciler.OnDisconnect(ctx, id); err != nil {
			b.logger.Warn("failed to reconcile gone connection", "conn_id", id, "err", err)
			continue
		}
		b.goneRemoved.Add(1)
	}

	if fast {
		b.fastTicks.Add(1)

		keep := make(map[string]struct{}, len(symbols))
		for _, s := range symbols {
			keep[s] = struct{}{}
		}
		b.suppress.Prune(keep)
		b.cache.Prune(keep)

		if elapsed := time.Since(start); elapsed > b.cfg.FastInterval {
			b.logger.Warn("fast tick overran interval",
				"symbols", len(symbols),
				"duration", elapsed,
			)
		}
	} else {
		b.slowTicks.Add(1)
	}
}

// ownsConnection reports whether a connection is this instance's to
// reconcile. A record that is gone entirely left only set memberships
// behind, and those are fair game for any instance to sweep.
func (b *Broadcaster) ownsConnection(ctx context.Context, connID string) (bool, error) {
	rec, err := b.store.GetConnection(ctx, connID)
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return rec.Instance == "" || rec.Instance == b.instance, nil
}

// broadcastSymbol fans out one symbol's snapshots and returns the ids
// of connections that turned out to be gone.
func (b *Broadcaster) broadcastSymbol(ctx context.Context, symbol string, realtime map[string]struct{}, fast bool) []string {
	primary, secondary, err := b.subscribers(ctx, symbol)
	if err != nil {
		b.logger.Warn("failed to discover subscribers", "symbol", symbol, "err", err)
		return nil
	}
	if len(primary) == 0 && len(secondary) == 0 {
		return nil
	}

	pTargets := tierTargets(primary, realtime, fast)
	sTargets := tierTargets(secondary, realtime, fast)

	var gone []string
	deliver := func(targets []string, encoded []byte) {
		for _, connID := range targets {
			if err := b.pusher.Push(connID, encoded); err != nil {
				if errors.Is(err, gateway.ErrGone) {
					gone = append(gone, connID)
					continue
				}
				b.logger.Warn("push failed", "conn_id", connID, "symbol", symbol, "err", err)
				continue
			}
			b.eventsSent.Add(1)
		}
	}
	suppressed := func(kind string, data []byte, targets []string) []string {
		if !b.cfg.ChangeSuppressionEnabled() {
			return targets
		}
		need := b.suppress.Filter(symbol, kind, data, targets)
		b.eventsSuppressed.Add(int64(len(targets) - len(need)))
		return need
	}
	send := func(ev model.Event, targets []string) {
		encoded, err := ev.Encode()
		if err != nil {
			b.logger.Warn("skipping undeliverable event", "symbol", symbol, "type", ev.Type, "err", err)
			return
		}
		deliver(targets, encoded)
	}

	var depth, tick []byte
	if fast {
		// The fast loop reads the store and refreshes the slow loop's
		// cache even when this tick's targets are all anonymous. A blob
		// the engine corrupted is skipped for the tick and kept out of
		// the cache.
		if depth, err = b.store.Depth(ctx, symbol); err != nil {
			b.logger.Warn("failed to read depth", "symbol", symbol, "err", err)
			depth = nil
		}
		if len(depth) > 0 && !json.Valid(depth) {
			b.logger.Warn("malformed depth snapshot", "symbol", symbol)
			depth = nil
		}
		if tick, err = b.store.Ticker(ctx, symbol); err != nil {
			b.logger.Warn("failed to read ticker", "symbol", symbol, "err", err)
			tick = nil
		}
		if len(tick) > 0 && !json.Valid(tick) {
			b.logger.Warn("malformed ticker snapshot", "symbol", symbol)
			tick = nil
		}
		b.cache.Put(symbol, depth, tick)
	} else {
		// Anonymous tier is served from cache only; a symbol the fast
		// loop has not touched yet sends nothing.
		depth, tick = b.cache.Get(symbol)
	}

	if depth != nil && len(pTargets) > 0 {
		send(model.NewDepthEvent(symbol, depth), suppressed(model.EventDepth, depth, pTargets))
	}
	if tick != nil && len(sTargets) > 0 {
		send(model.NewTickerEvent(symbol, tick), suppressed(model.EventTicker, tick, sTargets))
	}

	// Candle events are fast-loop, PRIMARY-subscriber only. The closed
	// queue is popped destructively, so nothing is read unless someone
	// is there to receive it.
	if fast && len(pTargets) > 0 {
		if candle, err := b.store.ActiveCandle(ctx, symbol); err != nil {
			b.logger.Warn("failed to read candle", "symbol", symbol, "err", err)
		} else if candle != nil {
			ev := model.NewCandleEvent(symbol, *candle)
			send(ev, suppressed(model.EventCandle, ev.Data, pTargets))
		}

		// At most one closed candle per tick; closes are never
		// suppressed.
		if closed, err := b.store.PopClosedCandle(ctx, symbol); err != nil {
			b.logger.Warn("failed to pop closed candle", "symbol", symbol, "err", err)
		} else if closed != nil {
			send(model.NewCandleCloseEvent(symbol, *closed), pTargets)
		}
	}

	return gone
}

// subscribers returns the PRIMARY set (current unioned with legacy,
// de-duplicated) and the SECONDARY set for a symbol.
func (b *Broadcaster) subscribers(ctx context.Context, symbol string) (primary, secondary []string, err error) {
	main, err := b.store.MainSubscribers(ctx, symbol)
	if err != nil {
		return nil, nil, err
	}

	if b.cfg.LegacyUnionEnabled() {
		legacy, err := b.store.LegacySubscribers(ctx, symbol)
		if err != nil {
			return nil, nil, err
		}
		if len(legacy) > 0 {
			seen := make(map[string]struct{}, len(main))
			for _, id := range main {
				seen[id] = struct{}{}
			}
			for _, id := range legacy {
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}
				main = append(main, id)
			}
		}
	}

	secondary, err = b.store.SubSubscribers(ctx, symbol)
	if err != nil {
		return nil, nil, err
	}
	return main, secondary, nil
}

// tierTargets picks the loop's share of a subscriber set.
func tierTargets(subs []string, realtime map[string]struct{}, fast bool) []string {
	if realtime == nil {
		// Tier filtering disabled: the fast loop serves everyone.
		if fast {
			return subs
		}
		return nil
	}

	out := make([]string, 0, len(subs))
	for _, id := range subs {
		_, isRealtime := realtime[id]
		if isRealtime == fast {
			out = append(out, id)
		}
	}
	return out
}

// observeChurn logs when the active-symbol or realtime-connection
// count changes between fast ticks.
func (b *Broadcaster) observeChurn(symbols, realtimeConns int) {
	b.churnMu.Lock()
	defer b.churnMu.Unlock()

	if b.churnObserved && (symbols != b.prevSymbols || realtimeConns != b.prevRealtime) {
		b.logger.Info("broadcast population changed",
			"active_symbols", symbols,
			"realtime_connections", realtimeConns,
		)
	}
	b.prevSymbols = symbols
	b.prevRealtime = realtimeConns
	b.churnObserved = true
}
