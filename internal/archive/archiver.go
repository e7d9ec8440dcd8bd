package archive

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/supernoba/marketstream/internal/config"
	"github.com/supernoba/marketstream/internal/model"
)

// Store is the subset of the state store the archiver reads.
type Store interface {
	ActiveSymbols(ctx context.Context) ([]string, error)
	TradeCount(ctx context.Context, symbol string) (int64, error)
	Trades(ctx context.Context, symbol string, start, stop int64) ([]string, error)
	TrimTrades(ctx context.Context, symbol string, keep int64) error
}

// DB is the slice of the connection pool the archiver writes through.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// ArchiverMetrics counts archiver activity.
type ArchiverMetrics struct {
	Sweeps      int64
	Inserts     int64
	Conflicts   int64
	ParseErrors int64
	Errors      int64
}

// TradeArchiver periodically sweeps trade lists into the database.
type TradeArchiver struct {
	cfg    config.ArchiveConfig
	store  Store
	db     DB
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metricsMu sync.Mutex
	metrics   ArchiverMetrics
}

// New creates a TradeArchiver.
func New(cfg config.ArchiveConfig, store Store, db DB, logger *slog.Logger) *TradeArchiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &TradeArchiver{
		cfg:    cfg,
		store:  store,
		db:     db,
		logger: logger,
	}
}

// Start begins the sweep loop.
func (a *TradeArchiver) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	a.wg.Add(1)
	go a.run()

	a.logger.Info("trade archiver started",
		"interval", a.cfg.Interval,
		"batch_size", a.cfg.BatchSize,
	)
	return nil
}

// Stop gracefully shuts down. A final sweep runs before returning so
// trades read but not yet written are not lost.
func (a *TradeArchiver) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	a.sweep(ctx)
	a.logger.Info("trade archiver stopped")
	return nil
}

// Stats returns current metrics.
func (a *TradeArchiver) Stats() ArchiverMetrics {
	a.metricsMu.Lock()
	defer a.metricsMu.Unlock()
	return a.metrics
}

func (a *TradeArchiver) run() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.sweep(a.ctx)
		}
	}
}

// sweep archives every active symbol's trade list.
func (a *TradeArchiver) sweep(ctx context.Context) {
	start := time.Now()

	symbols, err := a.store.ActiveSymbols(ctx)
	if err != nil {
		a.logger.Warn("failed to list active symbols", "err", err)
		a.addErrors(1)
		return
	}

	var archived int
	for _, symbol := range symbols {
		n, err := a.archiveSymbol(ctx, symbol)
		if err != nil {
			a.logger.Warn("failed to archive trades", "symbol", symbol, "err", err)
			a.addErrors(1)
			continue
		}
		archived += n
	}

	a.metricsMu.Lock()
	a.metrics.Sweeps++
	a.metricsMu.Unlock()

	if archived > 0 {
		a.logger.Info("trade sweep complete",
			"symbols", len(symbols),
			"archived", archived,
			"duration", time.Since(start),
		)
	}
}

// archiveSymbol drains one symbol's trade list into the database in
// batches, then trims the list to its configured tail. The trim only
// runs after every batch landed, so a failed sweep leaves the backlog
// in place for the next one.
func (a *TradeArchiver) archiveSymbol(ctx context.Context, symbol string) (int, error) {
	total, err := a.store.TradeCount(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}

	batch := int64(a.cfg.BatchSize)
	archived := 0
	for start := int64(0); start < total; start += batch {
		stop := start + batch - 1
		if stop > total-1 {
			stop = total - 1
		}
		entries, err := a.store.Trades(ctx, symbol, start, stop)
		if err != nil {
			return archived, err
		}
		if len(entries) == 0 {
			break
		}

		trades, parseErrors := parseTrades(symbol, entries)
		if parseErrors > 0 {
			a.logger.Warn("malformed trade entries", "symbol", symbol, "count", parseErrors)
			a.metricsMu.Lock()
			a.metrics.ParseErrors += int64(parseErrors)
			a.metricsMu.Unlock()
		}

		if len(trades) > 0 {
			conflicts, err := a.batchInsert(ctx, trades)
			if err != nil {
				return archived, err
			}

			a.metricsMu.Lock()
			a.metrics.Inserts += int64(len(trades) - conflicts)
			a.metrics.Conflicts += int64(conflicts)
			a.metricsMu.Unlock()
		}
		archived += len(trades)
	}

	// Trades pushed while the sweep ran shift the ranges; entries read
	// twice are absorbed by ON CONFLICT on the insert side.
	if err := a.store.TrimTrades(ctx, symbol, int64(a.cfg.KeepPerList)); err != nil {
		return archived, err
	}

	return archived, nil
}

// parseTrades decodes list entries, defaulting the symbol for older
// entries that omit it.
func parseTrades(symbol string, entries []string) ([]model.Trade, int) {
	trades := make([]model.Trade, 0, len(entries))
	parseErrors := 0
	for _, raw := range entries {
		var tr model.Trade
		if err := json.Unmarshal([]byte(raw), &tr); err != nil {
			parseErrors++
			continue
		}
		if tr.Symbol == "" {
			tr.Symbol = symbol
		}
		trades = append(trades, tr)
	}
	return trades, parseErrors
}

// batchInsert inserts trades using pgx.Batch with ON CONFLICT DO NOTHING.
func (a *TradeArchiver) batchInsert(ctx context.Context, trades []model.Trade) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, tr := range trades {
		batch.Queue(`
			INSERT INTO trades (trade_id, symbol, executed_at, price, quantity)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (trade_id) DO NOTHING
		`, tr.ID, tr.Symbol, tr.T, tr.P, tr.Q)
	}

	results := a.db.SendBatch(ctx, batch)
	defer results.Close()

	for range trades {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}

func (a *TradeArchiver) addErrors(n int64) {
	a.metricsMu.Lock()
	a.metrics.Errors += n
	a.metricsMu.Unlock()
}
