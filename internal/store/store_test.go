package store

import "testing"

func TestKeyContract(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{connectionKey("abc123"), "ws:abc123"},
		{ownerConnectionsKey("u1"), "user:u1:connections"},
		{mainSymbolKey("abc123"), "conn:abc123:main"},
		{connSymbolsKey("abc123"), "conn:abc123:symbols"},
		{mainSubscribersKey("TEST"), "symbol:TEST:main"},
		{subSubscribersKey("TEST"), "symbol:TEST:sub"},
		{legacySubscribersKey("TEST"), "symbol:TEST:subscribers"},
		{depthKey("TEST"), "depth:TEST"},
		{tickerKey("TEST"), "ticker:TEST"},
		{activeCandleKey("TEST"), "candle:1m:TEST"},
		{closedCandlesKey("TEST"), "candle:closed:1m:TEST"},
		{tradesKey("TEST"), "trades:TEST"},
		{activeSymbolsKey, "subscribed:symbols"},
		{realtimeConnsKey, "realtime:connections"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("key = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestParseCandleFields(t *testing.T) {
	fields := map[string]string{
		"t": "1000",
		"o": "100",
		"h": "102.5",
		"l": "99",
		"c": "101",
		"v": "50",
	}

	c, err := parseCandleFields("TEST", fields)
	if err != nil {
		t.Fatalf("parseCandleFields failed: %v", err)
	}

	if c.T != 1000 {
		t.Errorf("T = %d, want 1000", c.T)
	}
	if c.H != 102.5 {
		t.Errorf("H = %v, want 102.5", c.H)
	}
	if c.V != 50 {
		t.Errorf("V = %v, want 50", c.V)
	}
}

func TestParseCandleFields_Malformed(t *testing.T) {
	fields := map[string]string{
		"t": "not-a-number",
		"o": "100", "h": "100", "l": "100", "c": "100", "v": "0",
	}

	if _, err := parseCandleFields("TEST", fields); err == nil {
		t.Error("parseCandleFields() = nil error for malformed hash, want error")
	}

	// A hash missing price fields is malformed, not zero-valued.
	if _, err := parseCandleFields("TEST", map[string]string{"t": "1000"}); err == nil {
		t.Error("parseCandleFields() = nil error for missing fields, want error")
	}
}
