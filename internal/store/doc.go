// Package store adapts the Valkey shared state store to the narrow operations
// the streaming services need.
//
// Key contract (shared with the matching engine and the connect/subscribe
// handlers, do not change unilaterally):
//   - ws:{connID}                 connection record JSON, 24h TTL
//   - user:{userID}:connections   per-owner connection-id set
//   - realtime:connections       global realtime-tier connection-id set
//   - conn:{connID}:main          the connection's PRIMARY symbol
//   - conn:{connID}:symbols       reverse index of touched symbols
//   - symbol:{S}:main             PRIMARY subscriber set
//   - symbol:{S}:sub              SECONDARY subscriber set
//   - symbol:{S}:subscribers      legacy undifferentiated subscriber set
//   - subscribed:symbols          global active-symbol set
//   - depth:{S}, ticker:{S}       engine-owned snapshot JSON blobs
//   - candle:1m:{S}               engine-owned in-progress candle hash (t,o,h,l,c,v)
//   - candle:closed:1m:{S}        engine-owned FIFO of finalized candles
//   - trades:{S}                  engine-owned executed-trade list
//
// Every call carries a bounded timeout and transient errors are retried a
// bounded number of times before being surfaced.
package store
