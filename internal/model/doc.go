// Package model defines shared data types used across the streaming service.
//
// Conventions:
//   - Timestamps: int64 seconds since Unix epoch (matching the engine's cache format)
//   - Connection ids: opaque strings issued by the gateway at accept time
//   - Subscription tiers: PRIMARY (depth + candles) and SECONDARY (ticker only)
package model
