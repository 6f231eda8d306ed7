// Package feed classifies raw connection frames and drives the rest of the
// pipeline: subscription confirmations go to the coordinator, book messages
// into the book registry, price changes and trades onto typed queues for
// external consumers. Malformed frames are dropped with a diagnostic, never
// an error return.
package feed
