// Package book implements order book reconstruction for a single asset.
//
// The engine is pure state-merge and query logic: it knows nothing about
// connections or subscriptions. Books are built from snapshot messages
// (wholesale side replacement) and delta messages (single-level upserts),
// with best/mid/spread, cumulative depth, and volume-imbalance analytics
// recomputed on every mutation.
//
// Prices are float64 dollars; two prices within Epsilon are the same level.
package book
