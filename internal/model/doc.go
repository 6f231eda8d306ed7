// Package model defines shared data types used across the market-data core.
//
// Conventions:
//   - Prices and sizes: float64 (Polymarket quotes outcome shares in dollars, 0.00-1.00)
//   - Timestamps: time.Time, stamped locally at receive unless the wire carries one
//   - Asset IDs: opaque CLOB token id strings
package model
