package feed

import (
	"github.com/clobsync/polymarket-data/internal/connection"
	"github.com/clobsync/polymarket-data/internal/subscription"
)

// coordinatorRestorer adapts the coordinator to the connection layer's
// restore contract.
type coordinatorRestorer struct {
	coord *subscription.Coordinator
}

// NewRestorer exposes a coordinator as a connection.Restorer.
func NewRestorer(coord *subscription.Coordinator) connection.Restorer {
	return coordinatorRestorer{coord: coord}
}

func (r coordinatorRestorer) MarkDisconnected() {
	r.coord.MarkDisconnected()
}

func (r coordinatorRestorer) SubscriptionsToRestore() []connection.RestoreTarget {
	subs := r.coord.SubscriptionsToRestore()
	targets := make([]connection.RestoreTarget, 0, len(subs))
	for _, sub := range subs {
		targets = append(targets, connection.RestoreTarget{ID: sub.ID, Tokens: sub.Tokens})
	}
	return targets
}

func (r coordinatorRestorer) Restore(id string) error {
	return r.coord.Restore(id)
}
