package model

import "encoding/json"

// Outbound event types pushed through the gateway.
const (
	EventDepth       = "DEPTH"
	EventCandle      = "CANDLE"
	EventCandleClose = "CANDLE_CLOSE"
	EventTicker      = "TICKER"
)

// Event is the envelope for every payload delivered to a client. Data is the
// full snapshot for its kind; clients never receive deltas.
type Event struct {
	Type   string          `json:"type"`
	Symbol string          `json:"symbol"`
	Data   json.RawMessage `json:"data"`
}

// NewDepthEvent wraps a raw depth snapshot.
func NewDepthEvent(symbol string, depth []byte) Event {
	return Event{Type: EventDepth, Symbol: symbol, Data: depth}
}

// NewTickerEvent wraps a raw ticker snapshot.
func NewTickerEvent(symbol string, ticker []byte) Event {
	return Event{Type: EventTicker, Symbol: symbol, Data: ticker}
}

// NewCandleEvent wraps the in-progress candle.
func NewCandleEvent(symbol string, c Candle) Event {
	data, _ := json.Marshal(c)
	return Event{Type: EventCandle, Symbol: symbol, Data: data}
}

// NewCandleCloseEvent wraps a finalized candle popped from the closed queue.
func NewCandleCloseEvent(symbol string, c Candle) Event {
	data, _ := json.Marshal(c)
	return Event{Type: EventCandleClose, Symbol: symbol, Data: data}
}

// Encode serializes the event for the wire. It fails when Data is not
// valid JSON, which means the engine wrote a corrupt snapshot.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}
