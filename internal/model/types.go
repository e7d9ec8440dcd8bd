package model

// -----------------------------------------------------------------------------
// Connections
// -----------------------------------------------------------------------------

// ConnectionTier classifies a live connection for scheduling purposes.
type ConnectionTier string

const (
	// TierRealtime marks authenticated connections served by the fast loop.
	TierRealtime ConnectionTier = "PRIMARY_REALTIME"

	// TierAnonymous marks unauthenticated connections served by the slow loop.
	TierAnonymous ConnectionTier = "ANONYMOUS"
)

// ConnectionRecord is the per-connection metadata stored under ws:{connID}.
// Instance names the streamer holding the socket; other instances must not
// reconcile the connection away.
type ConnectionRecord struct {
	UserID      string         `json:"userId,omitempty"`
	Tier        ConnectionTier `json:"tier"`
	Instance    string         `json:"instance,omitempty"`
	ConnectedAt int64          `json:"connectedAt"`
}

// IsRealtime reports whether the record belongs to the realtime tier.
func (r ConnectionRecord) IsRealtime() bool {
	return r.Tier == TierRealtime
}

// -----------------------------------------------------------------------------
// Market snapshots
// -----------------------------------------------------------------------------

// Candle is one OHLCV interval, either in progress or finalized.
// Field names mirror the engine's compact cache format.
type Candle struct {
	T int64   `json:"t"` // Interval start (seconds since epoch)
	O float64 `json:"o"` // Open
	H float64 `json:"h"` // High
	L float64 `json:"l"` // Low
	C float64 `json:"c"` // Close
	V float64 `json:"v"` // Volume
}

// Trade is one executed trade as the engine records it under trades:{symbol}.
type Trade struct {
	ID     string  `json:"id"`
	T      int64   `json:"t"` // Execution time (seconds since epoch)
	P      float64 `json:"p"` // Price
	Q      float64 `json:"q"` // Quantity
	Symbol string  `json:"symbol,omitempty"`
}
