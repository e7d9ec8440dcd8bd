package broadcast

import "sync"

type cachedSnapshot struct {
	depth  []byte
	ticker []byte
}

// snapshotCache holds the most recent depth/ticker bytes fetched by the
// fast loop, keyed by symbol. The slow loop reads from here instead of
// the store.
type snapshotCache struct {
	mu    sync.RWMutex
	state map[string]cachedSnapshot
}

func newSnapshotCache() *snapshotCache {
	return &snapshotCache{state: make(map[string]cachedSnapshot)}
}

func (c *snapshotCache) Put(symbol string, depth, ticker []byte) {
	c.mu.Lock()
	c.state[symbol] = cachedSnapshot{depth: depth, ticker: ticker}
	c.mu.Unlock()
}

func (c *snapshotCache) Get(symbol string) (depth, ticker []byte) {
	c.mu.RLock()
	snap := c.state[symbol]
	c.mu.RUnlock()
	return snap.depth, snap.ticker
}

// Prune drops entries for symbols no longer in keep.
func (c *snapshotCache) Prune(keep map[string]struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for symbol := range c.state {
		if _, ok := keep[symbol]; !ok {
			delete(c.state, symbol)
		}
	}
}
