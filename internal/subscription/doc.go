// Package subscription implements the Subscription Coordinator.
//
// The coordinator owns every logical subscription (token group ↔ channel)
// multiplexed over one connection:
//   - Batches subscribe/unsubscribe intents and flushes them by priority
//   - Arms a confirmation timer per dispatch; unacknowledged subscriptions
//     are optimistically confirmed with a diagnostic
//   - Retries failed subscriptions with exponential delay, then fails the
//     original subscribe ticket
//   - Scans for stale subscriptions and scores overall health
//
// On disconnect nothing is removed: subscriptions drop back to pending and
// the resilience layer replays the auto-resubscribe set after reconnecting.
package subscription
