package broadcast

import (
	"bytes"
	"sync"
)

type suppressKey struct {
	symbol string
	kind   string
}

type suppressEntry struct {
	data []byte
	sent map[string]struct{}
}

// suppressor remembers the last payload per (symbol, kind) and which
// connections already received it. Identical payloads are re-sent only
// to connections that have not seen them, so a fresh subscriber gets
// the current snapshot immediately while everyone else stays quiet
// until the data actually changes.
type suppressor struct {
	mu    sync.Mutex
	state map[suppressKey]*suppressEntry
}

func newSuppressor() *suppressor {
	return &suppressor{state: make(map[suppressKey]*suppressEntry)}
}

// Filter returns the targets that still need this payload and records
// them as having received it.
func (s *suppressor) Filter(symbol, kind string, data []byte, targets []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := suppressKey{symbol: symbol, kind: kind}
	entry, ok := s.state[key]

	if !ok || !bytes.Equal(entry.data, data) {
		// Payload changed: everyone gets it.
		sent := make(map[string]struct{}, len(targets))
		for _, t := range targets {
			sent[t] = struct{}{}
		}
		s.state[key] = &suppressEntry{data: data, sent: sent}
		return targets
	}

	var need []string
	for _, t := range targets {
		if _, seen := entry.sent[t]; !seen {
			need = append(need, t)
			entry.sent[t] = struct{}{}
		}
	}
	return need
}

// Prune drops state for symbols no longer in keep.
func (s *suppressor) Prune(keep map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.state {
		if _, ok := keep[key.symbol]; !ok {
			delete(s.state, key)
		}
	}
}
