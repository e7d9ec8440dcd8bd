package subscription

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/supernoba/marketstream/internal/model"
)

// Store is the slice of the state store the manager mutates.
type Store interface {
	MainSymbol(ctx context.Context, connID string) (string, error)
	SetMainSymbol(ctx context.Context, connID, symbol string) error
	ClearMainSymbol(ctx context.Context, connID string) error

	AddMainSubscriber(ctx context.Context, symbol, connID string) error
	AddSubSubscriber(ctx context.Context, symbol, connID string) error
	RemoveMainSubscriber(ctx context.Context, symbol, connID string) error
	RemoveSubscriber(ctx context.Context, symbol, connID string) error
	SubscriberCount(ctx context.Context, symbol string) (int64, error)

	AddActiveSymbol(ctx context.Context, symbol string) error
	RemoveActiveSymbol(ctx context.Context, symbol string) error

	AddConnSymbols(ctx context.Context, connID string, symbols ...string) error
	RemoveConnSymbols(ctx context.Context, connID string, symbols ...string) error
	ConnSymbols(ctx context.Context, connID string) ([]string, error)
	DeleteConnSymbols(ctx context.Context, connID string) error
}

// Manager applies subscribe/unsubscribe requests to the state store.
type Manager struct {
	store  Store
	logger *slog.Logger
}

// NewManager creates a Subscription Manager.
func NewManager(store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, logger: logger}
}

// Subscribe applies a normalized subscribe request for connID and returns the
// applied shape. A new PRIMARY symbol replaces the previous one; SECONDARY
// symbols accumulate.
func (m *Manager) Subscribe(ctx context.Context, connID string, req model.SubscribeRequest) (model.SubscribeRequest, error) {
	if req.Primary != "" {
		prev, err := m.store.MainSymbol(ctx, connID)
		if err != nil {
			return model.SubscribeRequest{}, fmt.Errorf("read previous primary: %w", err)
		}
		if prev != "" && prev != req.Primary {
			if err := m.store.RemoveMainSubscriber(ctx, prev, connID); err != nil {
				return model.SubscribeRequest{}, fmt.Errorf("drop previous primary %s: %w", prev, err)
			}
			if err := m.retireIfEmpty(ctx, prev); err != nil {
				return model.SubscribeRequest{}, err
			}
		}

		if err := m.store.AddMainSubscriber(ctx, req.Primary, connID); err != nil {
			return model.SubscribeRequest{}, fmt.Errorf("add primary subscriber: %w", err)
		}
		if err := m.store.SetMainSymbol(ctx, connID, req.Primary); err != nil {
			return model.SubscribeRequest{}, fmt.Errorf("record primary mapping: %w", err)
		}
		if err := m.store.AddActiveSymbol(ctx, req.Primary); err != nil {
			return model.SubscribeRequest{}, fmt.Errorf("activate symbol %s: %w", req.Primary, err)
		}
	}

	for _, symbol := range req.Secondary {
		if err := m.store.AddSubSubscriber(ctx, symbol, connID); err != nil {
			return model.SubscribeRequest{}, fmt.Errorf("add secondary subscriber: %w", err)
		}
		if err := m.store.AddActiveSymbol(ctx, symbol); err != nil {
			return model.SubscribeRequest{}, fmt.Errorf("activate symbol %s: %w", symbol, err)
		}
	}

	if err := m.store.AddConnSymbols(ctx, connID, req.Symbols()...); err != nil {
		return model.SubscribeRequest{}, fmt.Errorf("update reverse index: %w", err)
	}

	m.logger.Debug("subscription applied",
		"conn_id", connID,
		"primary", req.Primary,
		"secondary", len(req.Secondary),
	)
	return req, nil
}

// Unsubscribe removes the connection from the named symbols only, clearing
// the primary mapping when it is among them and retiring symbols left
// without subscribers.
func (m *Manager) Unsubscribe(ctx context.Context, connID string, symbols []string) error {
	main, err := m.store.MainSymbol(ctx, connID)
	if err != nil {
		return fmt.Errorf("read primary mapping: %w", err)
	}

	for _, symbol := range symbols {
		if err := m.store.RemoveSubscriber(ctx, symbol, connID); err != nil {
			return fmt.Errorf("remove subscriber from %s: %w", symbol, err)
		}
		if symbol == main {
			if err := m.store.ClearMainSymbol(ctx, connID); err != nil {
				return fmt.Errorf("clear primary mapping: %w", err)
			}
		}
		if err := m.retireIfEmpty(ctx, symbol); err != nil {
			return err
		}
	}

	if err := m.store.RemoveConnSymbols(ctx, connID, symbols...); err != nil {
		return fmt.Errorf("update reverse index: %w", err)
	}

	m.logger.Debug("subscriptions removed", "conn_id", connID, "symbols", len(symbols))
	return nil
}

// UnsubscribeAll removes the connection from every symbol set it belongs to,
// retiring symbols left without subscribers. Used on disconnect.
func (m *Manager) UnsubscribeAll(ctx context.Context, connID string) error {
	symbols, err := m.store.ConnSymbols(ctx, connID)
	if err != nil {
		return fmt.Errorf("read reverse index: %w", err)
	}

	// The reverse index can miss a primary recorded by an older handler
	// generation; the conn:main mapping is authoritative for that one.
	main, err := m.store.MainSymbol(ctx, connID)
	if err != nil {
		return fmt.Errorf("read primary mapping: %w", err)
	}
	if main != "" && !contains(symbols, main) {
		symbols = append(symbols, main)
	}

	for _, symbol := range symbols {
		if err := m.store.RemoveSubscriber(ctx, symbol, connID); err != nil {
			return fmt.Errorf("remove subscriber from %s: %w", symbol, err)
		}
		if err := m.retireIfEmpty(ctx, symbol); err != nil {
			return err
		}
	}

	if err := m.store.ClearMainSymbol(ctx, connID); err != nil {
		return fmt.Errorf("clear primary mapping: %w", err)
	}
	if err := m.store.DeleteConnSymbols(ctx, connID); err != nil {
		return fmt.Errorf("clear reverse index: %w", err)
	}

	if len(symbols) > 0 {
		m.logger.Debug("subscriptions cleared", "conn_id", connID, "symbols", len(symbols))
	}
	return nil
}

// retireIfEmpty removes the symbol from the active-symbol set when its last
// subscriber has left.
func (m *Manager) retireIfEmpty(ctx context.Context, symbol string) error {
	n, err := m.store.SubscriberCount(ctx, symbol)
	if err != nil {
		return fmt.Errorf("count subscribers for %s: %w", symbol, err)
	}
	if n == 0 {
		if err := m.store.RemoveActiveSymbol(ctx, symbol); err != nil {
			return fmt.Errorf("retire symbol %s: %w", symbol, err)
		}
		m.logger.Debug("symbol retired", "symbol", symbol)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
