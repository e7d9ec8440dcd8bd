package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/supernoba/marketstream/internal/model"
	"github.com/supernoba/marketstream/internal/store"
)

// Store is the subset of the state store the registry needs.
type Store interface {
	PutConnection(ctx context.Context, connID string, rec model.ConnectionRecord, ttl time.Duration) error
	GetConnection(ctx context.Context, connID string) (model.ConnectionRecord, error)
	DeleteConnection(ctx context.Context, connID string) error
	ConnectionExists(ctx context.Context, connID string) (bool, error)

	AddOwnerConnection(ctx context.Context, userID, connID string) error
	RemoveOwnerConnection(ctx context.Context, userID, connID string) error
	OwnerConnections(ctx context.Context, userID string) ([]string, error)

	AddRealtimeConnection(ctx context.Context, connID string) error
	RemoveRealtimeConnection(ctx context.Context, connID string) error
}

// Unsubscriber tears down a connection's symbol subscriptions.
type Unsubscriber interface {
	UnsubscribeAll(ctx context.Context, connID string) error
}

// Registry manages connection records and owner membership sets.
type Registry struct {
	store  Store
	subs   Unsubscriber
	logger *slog.Logger

	instance string
	ttl      time.Duration

	now func() time.Time // overridable for tests
}

// NewRegistry creates a connection registry. instance names this streamer
// and is stamped into every record, so a peer instance sharing the store
// knows which connections are not its to clean up. ttl bounds the lifetime
// of connection records so crashed gateways cannot leak them forever.
func NewRegistry(st Store, subs Unsubscriber, instance string, ttl time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:    st,
		subs:     subs,
		logger:   logger,
		instance: instance,
		ttl:      ttl,
		now:      time.Now,
	}
}

// OnConnect registers a new connection for userID. Calling it again for
// the same connection just refreshes the record and its TTL.
func (r *Registry) OnConnect(ctx context.Context, connID, userID string, tier model.ConnectionTier) error {
	rec := model.ConnectionRecord{
		UserID:      userID,
		Tier:        tier,
		Instance:    r.instance,
		ConnectedAt: r.now().Unix(),
	}

	if err := r.store.PutConnection(ctx, connID, rec, r.ttl); err != nil {
		return fmt.Errorf("put connection: %w", err)
	}
	if userID != "" {
		if err := r.store.AddOwnerConnection(ctx, userID, connID); err != nil {
			return fmt.Errorf("add owner connection: %w", err)
		}
	}
	if rec.IsRealtime() {
		if err := r.store.AddRealtimeConnection(ctx, connID); err != nil {
			return fmt.Errorf("add realtime connection: %w", err)
		}
	}

	r.logger.Info("connection registered",
		"conn_id", connID,
		"user_id", userID,
		"tier", tier,
	)
	return nil
}

// OnDisconnect removes every trace of a connection: its subscriptions,
// its owner-set membership, its realtime membership, and the record
// itself. It is safe to call for a connection that is already gone.
func (r *Registry) OnDisconnect(ctx context.Context, connID string) error {
	rec, err := r.store.GetConnection(ctx, connID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// Record expired or was already cleaned. Subscriptions and set
		// memberships may still linger, so sweep them anyway.
	case err != nil:
		return fmt.Errorf("get connection: %w", err)
	}

	if err := r.subs.UnsubscribeAll(ctx, connID); err != nil {
		return fmt.Errorf("unsubscribe all: %w", err)
	}

	if rec.UserID != "" {
		if err := r.store.RemoveOwnerConnection(ctx, rec.UserID, connID); err != nil {
			return fmt.Errorf("remove owner connection: %w", err)
		}
	}
	if err := r.store.RemoveRealtimeConnection(ctx, connID); err != nil {
		return fmt.Errorf("remove realtime connection: %w", err)
	}
	if err := r.store.DeleteConnection(ctx, connID); err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}

	r.logger.Info("connection removed",
		"conn_id", connID,
		"user_id", rec.UserID,
	)
	return nil
}

// SweepStale prunes connection ids from an owner's set whose records
// have expired. Returns the ids that were cleaned up.
func (r *Registry) SweepStale(ctx context.Context, userID string) ([]string, error) {
	connIDs, err := r.store.OwnerConnections(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("owner connections: %w", err)
	}

	var stale []string
	for _, connID := range connIDs {
		exists, err := r.store.ConnectionExists(ctx, connID)
		if err != nil {
			return stale, fmt.Errorf("check connection %s: %w", connID, err)
		}
		if exists {
			continue
		}

		// Expired record: clear whatever the connection left behind.
		if err := r.subs.UnsubscribeAll(ctx, connID); err != nil {
			return stale, fmt.Errorf("unsubscribe stale %s: %w", connID, err)
		}
		if err := r.store.RemoveOwnerConnection(ctx, userID, connID); err != nil {
			return stale, fmt.Errorf("remove stale owner connection: %w", err)
		}
		if err := r.store.RemoveRealtimeConnection(ctx, connID); err != nil {
			return stale, fmt.Errorf("remove stale realtime connection: %w", err)
		}
		stale = append(stale, connID)
	}

	if len(stale) > 0 {
		r.logger.Info("swept stale connections",
			"user_id", userID,
			"count", len(stale),
		)
	}
	return stale, nil
}
