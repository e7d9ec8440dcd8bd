// Package registry tracks live WebSocket connections in the shared state
// store: the per-connection record with its TTL, the owner's connection
// set, and the realtime-tier membership set.
//
// Disconnect is the single cleanup entry point. It tears down the
// connection's subscriptions before removing the record, so a connection
// that vanishes mid-broadcast never leaves orphaned subscriber-set
// entries behind.
package registry
