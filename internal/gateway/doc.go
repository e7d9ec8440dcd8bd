// Package gateway owns the client-facing WebSocket surface: connection
// upgrade, per-connection send queues with read/write pumps, inbound
// subscribe/unsubscribe handling, and delivery of broadcast events.
//
// The hub is the in-process view of this instance's connections. The
// durable view lives in the shared state store and is maintained by the
// registry; the gateway keeps both in step on connect and disconnect.
package gateway
