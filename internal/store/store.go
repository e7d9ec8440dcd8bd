package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/supernoba/marketstream/internal/config"
	"github.com/supernoba/marketstream/internal/model"
)

// ErrNotFound is returned when a requested key does not exist.
var ErrNotFound = errors.New("store: key not found")

// Store wraps the Valkey client with the key contract, per-call timeouts and
// bounded retries.
type Store struct {
	client     *redis.Client
	logger     *slog.Logger
	opTimeout  time.Duration
	maxRetries int
	retryDelay time.Duration
}

// New connects to Valkey and verifies the connection.
func New(ctx context.Context, cfg config.ValkeyConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to valkey: %w", err)
	}

	return &Store{
		client:     client,
		logger:     logger,
		opTimeout:  cfg.OpTimeout,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}, nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping reports store health for the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// withRetry runs fn with a fresh timeout per attempt. redis.Nil is a result,
// not a failure, and is never retried.
func (s *Store) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.retryDelay):
			}
		}

		attemptCtx, cancel := s.opCtx(ctx)
		err = fn(attemptCtx)
		cancel()

		if err == nil || errors.Is(err, redis.Nil) {
			return err
		}
		s.logger.Debug("store operation failed",
			"op", op,
			"attempt", attempt+1,
			"err", err,
		)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// -----------------------------------------------------------------------------
// Connection records
// -----------------------------------------------------------------------------

// PutConnection writes the connection record with the given TTL. Idempotent.
func (s *Store) PutConnection(ctx context.Context, connID string, rec model.ConnectionRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal connection record: %w", err)
	}
	return s.withRetry(ctx, "put connection", func(ctx context.Context) error {
		return s.client.Set(ctx, connectionKey(connID), data, ttl).Err()
	})
}

// GetConnection reads a connection record; ErrNotFound when absent or expired.
func (s *Store) GetConnection(ctx context.Context, connID string) (model.ConnectionRecord, error) {
	var raw string
	err := s.withRetry(ctx, "get connection", func(ctx context.Context) error {
		var err error
		raw, err = s.client.Get(ctx, connectionKey(connID)).Result()
		return err
	})
	if errors.Is(err, redis.Nil) {
		return model.ConnectionRecord{}, ErrNotFound
	}
	if err != nil {
		return model.ConnectionRecord{}, err
	}

	var rec model.ConnectionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return model.ConnectionRecord{}, fmt.Errorf("parse connection record %s: %w", connID, err)
	}
	return rec, nil
}

// DeleteConnection removes the record; absent records are not an error.
func (s *Store) DeleteConnection(ctx context.Context, connID string) error {
	return s.withRetry(ctx, "delete connection", func(ctx context.Context) error {
		return s.client.Del(ctx, connectionKey(connID)).Err()
	})
}

// ConnectionExists reports whether the record is still live.
func (s *Store) ConnectionExists(ctx context.Context, connID string) (bool, error) {
	var n int64
	err := s.withRetry(ctx, "connection exists", func(ctx context.Context) error {
		var err error
		n, err = s.client.Exists(ctx, connectionKey(connID)).Result()
		return err
	})
	return n > 0, err
}

// -----------------------------------------------------------------------------
// Owner and realtime sets
// -----------------------------------------------------------------------------

// AddOwnerConnection records connID under the owner's connection set.
func (s *Store) AddOwnerConnection(ctx context.Context, userID, connID string) error {
	return s.withRetry(ctx, "add owner connection", func(ctx context.Context) error {
		return s.client.SAdd(ctx, ownerConnectionsKey(userID), connID).Err()
	})
}

// RemoveOwnerConnection drops connID from the owner's set, deleting the set
// when it becomes empty.
func (s *Store) RemoveOwnerConnection(ctx context.Context, userID, connID string) error {
	return s.withRetry(ctx, "remove owner connection", func(ctx context.Context) error {
		key := ownerConnectionsKey(userID)
		if err := s.client.SRem(ctx, key, connID).Err(); err != nil {
			return err
		}
		n, err := s.client.SCard(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return s.client.Del(ctx, key).Err()
		}
		return nil
	})
}

// OwnerConnections lists the owner's connection ids.
func (s *Store) OwnerConnections(ctx context.Context, userID string) ([]string, error) {
	var members []string
	err := s.withRetry(ctx, "owner connections", func(ctx context.Context) error {
		var err error
		members, err = s.client.SMembers(ctx, ownerConnectionsKey(userID)).Result()
		return err
	})
	return members, err
}

// AddRealtimeConnection marks connID as realtime-tier.
func (s *Store) AddRealtimeConnection(ctx context.Context, connID string) error {
	return s.withRetry(ctx, "add realtime connection", func(ctx context.Context) error {
		return s.client.SAdd(ctx, realtimeConnsKey, connID).Err()
	})
}

// RemoveRealtimeConnection unmarks connID.
func (s *Store) RemoveRealtimeConnection(ctx context.Context, connID string) error {
	return s.withRetry(ctx, "remove realtime connection", func(ctx context.Context) error {
		return s.client.SRem(ctx, realtimeConnsKey, connID).Err()
	})
}

// RealtimeConnections lists all realtime-tier connection ids.
func (s *Store) RealtimeConnections(ctx context.Context) ([]string, error) {
	var members []string
	err := s.withRetry(ctx, "realtime connections", func(ctx context.Context) error {
		var err error
		members, err = s.client.SMembers(ctx, realtimeConnsKey).Result()
		return err
	})
	return members, err
}

// -----------------------------------------------------------------------------
// Subscription sets
// -----------------------------------------------------------------------------

// MainSymbol returns the connection's PRIMARY symbol, "" when none.
func (s *Store) MainSymbol(ctx context.Context, connID string) (string, error) {
	var symbol string
	err := s.withRetry(ctx, "main symbol", func(ctx context.Context) error {
		var err error
		symbol, err = s.client.Get(ctx, mainSymbolKey(connID)).Result()
		return err
	})
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return symbol, err
}

// SetMainSymbol records the connection→PRIMARY mapping.
func (s *Store) SetMainSymbol(ctx context.Context, connID, symbol string) error {
	return s.withRetry(ctx, "set main symbol", func(ctx context.Context) error {
		return s.client.Set(ctx, mainSymbolKey(connID), symbol, 0).Err()
	})
}

// ClearMainSymbol removes the connection→PRIMARY mapping.
func (s *Store) ClearMainSymbol(ctx context.Context, connID string) error {
	return s.withRetry(ctx, "clear main symbol", func(ctx context.Context) error {
		return s.client.Del(ctx, mainSymbolKey(connID)).Err()
	})
}

// AddMainSubscriber adds connID to the symbol's PRIMARY set and, for
// compatibility with older streamers, the legacy set.
func (s *Store) AddMainSubscriber(ctx context.Context, symbol, connID string) error {
	return s.withRetry(ctx, "add main subscriber", func(ctx context.Context) error {
		if err := s.client.SAdd(ctx, mainSubscribersKey(symbol), connID).Err(); err != nil {
			return err
		}
		return s.client.SAdd(ctx, legacySubscribersKey(symbol), connID).Err()
	})
}

// AddSubSubscriber adds connID to the symbol's SECONDARY set.
func (s *Store) AddSubSubscriber(ctx context.Context, symbol, connID string) error {
	return s.withRetry(ctx, "add sub subscriber", func(ctx context.Context) error {
		return s.client.SAdd(ctx, subSubscribersKey(symbol), connID).Err()
	})
}

// RemoveMainSubscriber drops connID from the symbol's PRIMARY and legacy sets
// only, leaving a SECONDARY membership on the same symbol intact.
func (s *Store) RemoveMainSubscriber(ctx context.Context, symbol, connID string) error {
	return s.withRetry(ctx, "remove main subscriber", func(ctx context.Context) error {
		if err := s.client.SRem(ctx, mainSubscribersKey(symbol), connID).Err(); err != nil {
			return err
		}
		return s.client.SRem(ctx, legacySubscribersKey(symbol), connID).Err()
	})
}

// RemoveSubscriber drops connID from every tier set of the symbol.
func (s *Store) RemoveSubscriber(ctx context.Context, symbol, connID string) error {
	return s.withRetry(ctx, "remove subscriber", func(ctx context.Context) error {
		if err := s.client.SRem(ctx, mainSubscribersKey(symbol), connID).Err(); err != nil {
			return err
		}
		if err := s.client.SRem(ctx, subSubscribersKey(symbol), connID).Err(); err != nil {
			return err
		}
		return s.client.SRem(ctx, legacySubscribersKey(symbol), connID).Err()
	})
}

// SubscriberCount returns the total membership across all tier sets.
func (s *Store) SubscriberCount(ctx context.Context, symbol string) (int64, error) {
	var total int64
	err := s.withRetry(ctx, "subscriber count", func(ctx context.Context) error {
		total = 0
		for _, key := range []string{
			mainSubscribersKey(symbol),
			subSubscribersKey(symbol),
			legacySubscribersKey(symbol),
		} {
			n, err := s.client.SCard(ctx, key).Result()
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	return total, err
}

// MainSubscribers lists the symbol's PRIMARY subscriber ids.
func (s *Store) MainSubscribers(ctx context.Context, symbol string) ([]string, error) {
	return s.setMembers(ctx, "main subscribers", mainSubscribersKey(symbol))
}

// SubSubscribers lists the symbol's SECONDARY subscriber ids.
func (s *Store) SubSubscribers(ctx context.Context, symbol string) ([]string, error) {
	return s.setMembers(ctx, "sub subscribers", subSubscribersKey(symbol))
}

// LegacySubscribers lists the symbol's legacy undifferentiated subscriber ids.
func (s *Store) LegacySubscribers(ctx context.Context, symbol string) ([]string, error) {
	return s.setMembers(ctx, "legacy subscribers", legacySubscribersKey(symbol))
}

func (s *Store) setMembers(ctx context.Context, op, key string) ([]string, error) {
	var members []string
	err := s.withRetry(ctx, op, func(ctx context.Context) error {
		var err error
		members, err = s.client.SMembers(ctx, key).Result()
		return err
	})
	return members, err
}

// AddActiveSymbol adds the symbol to the global active-symbol set.
func (s *Store) AddActiveSymbol(ctx context.Context, symbol string) error {
	return s.withRetry(ctx, "add active symbol", func(ctx context.Context) error {
		return s.client.SAdd(ctx, activeSymbolsKey, symbol).Err()
	})
}

// RemoveActiveSymbol retires the symbol from the global active-symbol set.
func (s *Store) RemoveActiveSymbol(ctx context.Context, symbol string) error {
	return s.withRetry(ctx, "remove active symbol", func(ctx context.Context) error {
		return s.client.SRem(ctx, activeSymbolsKey, symbol).Err()
	})
}

// ActiveSymbols lists every symbol with at least one subscriber.
func (s *Store) ActiveSymbols(ctx context.Context) ([]string, error) {
	return s.setMembers(ctx, "active symbols", activeSymbolsKey)
}

// AddConnSymbols extends the connection's reverse index.
func (s *Store) AddConnSymbols(ctx context.Context, connID string, symbols ...string) error {
	if len(symbols) == 0 {
		return nil
	}
	members := make([]interface{}, len(symbols))
	for i, sym := range symbols {
		members[i] = sym
	}
	return s.withRetry(ctx, "add conn symbols", func(ctx context.Context) error {
		return s.client.SAdd(ctx, connSymbolsKey(connID), members...).Err()
	})
}

// RemoveConnSymbols drops the named symbols from the reverse index.
func (s *Store) RemoveConnSymbols(ctx context.Context, connID string, symbols ...string) error {
	if len(symbols) == 0 {
		return nil
	}
	members := make([]interface{}, len(symbols))
	for i, sym := range symbols {
		members[i] = sym
	}
	return s.withRetry(ctx, "remove conn symbols", func(ctx context.Context) error {
		return s.client.SRem(ctx, connSymbolsKey(connID), members...).Err()
	})
}

// ConnSymbols lists every symbol the connection has touched.
func (s *Store) ConnSymbols(ctx context.Context, connID string) ([]string, error) {
	return s.setMembers(ctx, "conn symbols", connSymbolsKey(connID))
}

// DeleteConnSymbols drops the reverse index.
func (s *Store) DeleteConnSymbols(ctx context.Context, connID string) error {
	return s.withRetry(ctx, "delete conn symbols", func(ctx context.Context) error {
		return s.client.Del(ctx, connSymbolsKey(connID)).Err()
	})
}

// -----------------------------------------------------------------------------
// Market snapshots (engine-owned, read-only here)
// -----------------------------------------------------------------------------

// Depth returns the raw depth snapshot, nil when the engine has not written one.
func (s *Store) Depth(ctx context.Context, symbol string) ([]byte, error) {
	return s.rawGet(ctx, "get depth", depthKey(symbol))
}

// Ticker returns the raw ticker snapshot, nil when absent.
func (s *Store) Ticker(ctx context.Context, symbol string) ([]byte, error) {
	return s.rawGet(ctx, "get ticker", tickerKey(symbol))
}

func (s *Store) rawGet(ctx context.Context, op, key string) ([]byte, error) {
	var raw []byte
	err := s.withRetry(ctx, op, func(ctx context.Context) error {
		var err error
		raw, err = s.client.Get(ctx, key).Bytes()
		return err
	})
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return raw, err
}

// ActiveCandle reads the in-progress candle hash, nil when absent.
func (s *Store) ActiveCandle(ctx context.Context, symbol string) (*model.Candle, error) {
	var fields map[string]string
	err := s.withRetry(ctx, "get active candle", func(ctx context.Context) error {
		var err error
		fields, err = s.client.HGetAll(ctx, activeCandleKey(symbol)).Result()
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return parseCandleFields(symbol, fields)
}

// PopClosedCandle consumes at most one finalized candle from the head of the
// symbol's closed-candle queue. Returns nil when the queue is empty.
func (s *Store) PopClosedCandle(ctx context.Context, symbol string) (*model.Candle, error) {
	var raw string
	err := s.withRetry(ctx, "pop closed candle", func(ctx context.Context) error {
		var err error
		raw, err = s.client.LPop(ctx, closedCandlesKey(symbol)).Result()
		return err
	})
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var c model.Candle
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("parse closed candle for %s: %w", symbol, err)
	}
	return &c, nil
}

func parseCandleFields(symbol string, fields map[string]string) (*model.Candle, error) {
	var c model.Candle
	var err error
	if c.T, err = strconv.ParseInt(fields["t"], 10, 64); err != nil {
		return nil, fmt.Errorf("parse candle t for %s: %w", symbol, err)
	}
	for name, dst := range map[string]*float64{
		"o": &c.O, "h": &c.H, "l": &c.L, "c": &c.C, "v": &c.V,
	} {
		if *dst, err = strconv.ParseFloat(fields[name], 64); err != nil {
			return nil, fmt.Errorf("parse candle %s for %s: %w", name, symbol, err)
		}
	}
	return &c, nil
}

// -----------------------------------------------------------------------------
// Trades (archiver input)
// -----------------------------------------------------------------------------

// TradeCount returns the length of the symbol's trade list.
func (s *Store) TradeCount(ctx context.Context, symbol string) (int64, error) {
	var n int64
	err := s.withRetry(ctx, "count trades", func(ctx context.Context) error {
		var err error
		n, err = s.client.LLen(ctx, tradesKey(symbol)).Result()
		return err
	})
	return n, err
}

// Trades reads the raw trade entries in [start, stop] from the symbol's list.
func (s *Store) Trades(ctx context.Context, symbol string, start, stop int64) ([]string, error) {
	var raw []string
	err := s.withRetry(ctx, "get trades", func(ctx context.Context) error {
		var err error
		raw, err = s.client.LRange(ctx, tradesKey(symbol), start, stop).Result()
		return err
	})
	return raw, err
}

// TrimTrades bounds the symbol's trade list to keep entries.
func (s *Store) TrimTrades(ctx context.Context, symbol string, keep int64) error {
	return s.withRetry(ctx, "trim trades", func(ctx context.Context) error {
		return s.client.LTrim(ctx, tradesKey(symbol), 0, keep-1).Err()
	})
}
