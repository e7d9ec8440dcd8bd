// Package broadcast implements the dual-rate market-data fan-out.
//
// Two loops read snapshots from the shared state store and push them to
// subscribed connections through the gateway. The fast loop serves
// realtime-tier connections with depth, ticker, and candle events; the
// slow loop serves anonymous connections with depth and ticker only.
// Both loops bound their per-symbol concurrency and suppress
// byte-identical resends, with new subscribers always receiving the
// current snapshot even when it has not changed.
package broadcast
