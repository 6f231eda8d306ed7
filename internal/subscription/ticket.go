package subscription

import (
	"context"
	"sync"
)

// Ticket is the deferred result of a Subscribe call. It settles when the
// subscription is confirmed (explicitly or optimistically) or fails after
// retries are exhausted. Disposal of the coordinator drops pending tickets
// without settling them: Done never closes, and callers that must not hang
// select on their own context via Await.
type Ticket struct {
	done chan struct{}

	mu  sync.Mutex
	set bool
	sub ManagedSubscription
	err error
}

func newTicket() *Ticket {
	return &Ticket{done: make(chan struct{})}
}

// Done is closed once the ticket has settled.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Result returns the settled subscription snapshot or failure. Before the
// ticket settles both return values are zero.
func (t *Ticket) Result() (ManagedSubscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sub, t.err
}

// Await blocks until the ticket settles or ctx ends.
func (t *Ticket) Await(ctx context.Context) (ManagedSubscription, error) {
	select {
	case <-t.done:
		return t.Result()
	case <-ctx.Done():
		return ManagedSubscription{}, ctx.Err()
	}
}

func (t *Ticket) settle(sub ManagedSubscription, err error) {
	t.mu.Lock()
	if t.set {
		t.mu.Unlock()
		return
	}
	t.set = true
	t.sub = sub
	t.err = err
	t.mu.Unlock()
	close(t.done)
}
