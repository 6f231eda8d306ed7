// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Connection state, reconnect attempts, restore outcomes
//   - Feed throughput, parse errors, sequence gaps
//   - Output queue depths
//   - Subscription population and health score
package metrics
