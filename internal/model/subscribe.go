package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptySubscribe is returned when a subscribe request names no symbols.
var ErrEmptySubscribe = errors.New("subscribe request contains no symbols")

// ErrEmptyUnsubscribe is returned when an unsubscribe request names no symbols.
var ErrEmptyUnsubscribe = errors.New("unsubscribe request contains no symbols")

// Actions a client may send on the socket.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// ParseAction extracts the action of an inbound frame. Frames without one
// are subscribe requests from older clients.
func ParseAction(payload []byte) (string, error) {
	var env struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", fmt.Errorf("parse message: %w", err)
	}
	if env.Action == "" {
		return ActionSubscribe, nil
	}
	return env.Action, nil
}

// SubscribeRequest is the canonical shape of a subscribe request: at most one
// PRIMARY symbol plus any number of SECONDARY symbols.
type SubscribeRequest struct {
	Primary   string
	Secondary []string
}

// rawSubscribe accepts both wire shapes:
//   - current: {"action":"subscribe","main":"TEST","sub":["AAPL"]}
//   - legacy:  {"action":"subscribe","symbols":["TEST","AAPL"]}
type rawSubscribe struct {
	Action  string   `json:"action"`
	Main    string   `json:"main"`
	Sub     []string `json:"sub"`
	Symbols []string `json:"symbols"`
}

// ParseSubscribe decodes a subscribe payload and normalizes it to the
// canonical shape. In the legacy form the first symbol becomes PRIMARY and the
// remainder SECONDARY. Symbols are upper-cased and blanks dropped.
func ParseSubscribe(payload []byte) (SubscribeRequest, error) {
	var raw rawSubscribe
	if err := json.Unmarshal(payload, &raw); err != nil {
		return SubscribeRequest{}, fmt.Errorf("parse subscribe payload: %w", err)
	}
	return NormalizeSubscribe(raw.Main, raw.Sub, raw.Symbols)
}

// NormalizeSubscribe builds the canonical request from either shape. When main
// is empty and a flat symbol list is present, the list is split legacy-style.
func NormalizeSubscribe(main string, sub, symbols []string) (SubscribeRequest, error) {
	if main == "" && len(symbols) > 0 {
		main = symbols[0]
		sub = symbols[1:]
	}

	req := SubscribeRequest{Primary: cleanSymbol(main)}
	for _, s := range sub {
		if s = cleanSymbol(s); s != "" && s != req.Primary {
			req.Secondary = append(req.Secondary, s)
		}
	}

	if req.Primary == "" && len(req.Secondary) == 0 {
		return SubscribeRequest{}, ErrEmptySubscribe
	}
	return req, nil
}

// ParseUnsubscribe decodes an unsubscribe payload. It accepts the singular
// "symbol" shape older clients send as well as the list shapes, and returns
// the cleaned, de-duplicated symbols to drop.
func ParseUnsubscribe(payload []byte) ([]string, error) {
	var raw struct {
		Symbol  string   `json:"symbol"`
		Main    string   `json:"main"`
		Sub     []string `json:"sub"`
		Symbols []string `json:"symbols"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("parse unsubscribe payload: %w", err)
	}

	candidates := []string{raw.Symbol, raw.Main}
	candidates = append(candidates, raw.Sub...)
	candidates = append(candidates, raw.Symbols...)

	seen := make(map[string]struct{}, len(candidates))
	var out []string
	for _, s := range candidates {
		if s = cleanSymbol(s); s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, ErrEmptyUnsubscribe
	}
	return out, nil
}

// Symbols returns every symbol the request touches, PRIMARY first.
func (r SubscribeRequest) Symbols() []string {
	out := make([]string, 0, len(r.Secondary)+1)
	if r.Primary != "" {
		out = append(out, r.Primary)
	}
	return append(out, r.Secondary...)
}

func cleanSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
