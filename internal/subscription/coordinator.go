package subscription

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clobsync/polymarket-data/internal/events"
)

// Coordinator multiplexes logical subscriptions over one connection.
type Coordinator struct {
	cfg    Config
	sender Sender
	logger *slog.Logger

	mu       sync.Mutex
	disposed bool
	subs     map[string]*ManagedSubscription
	byToken  map[string]string // token to owning subscription id
	tickets  map[string]*Ticket
	queue    []intent
	seq      int64

	dispatchedAt  map[string]time.Time
	confirmTimers map[string]*time.Timer
	retryTimers   map[string]*time.Timer
	lastErr       map[string]error
	stale         map[string]bool

	done chan struct{}
	wg   sync.WaitGroup

	confirmations *events.Feed[events.Confirmed]
	failures      *events.Feed[events.SubscriptionFailed]
	limits        *events.Feed[events.LimitReached]
	stales        *events.Feed[events.Stale]
	diagnostics   *events.Feed[events.Diagnostic]
}

// NewCoordinator creates a coordinator that sends over sender. Call Start to
// launch the batch and stale-scan timers.
func NewCoordinator(cfg Config, sender Sender, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	return &Coordinator{
		cfg:           cfg,
		sender:        sender,
		logger:        logger,
		subs:          make(map[string]*ManagedSubscription),
		byToken:       make(map[string]string),
		tickets:       make(map[string]*Ticket),
		dispatchedAt:  make(map[string]time.Time),
		confirmTimers: make(map[string]*time.Timer),
		retryTimers:   make(map[string]*time.Timer),
		lastErr:       make(map[string]error),
		stale:         make(map[string]bool),
		done:          make(chan struct{}),
		confirmations: events.NewFeed[events.Confirmed](0),
		failures:      events.NewFeed[events.SubscriptionFailed](0),
		limits:        events.NewFeed[events.LimitReached](0),
		stales:        events.NewFeed[events.Stale](0),
		diagnostics:   events.NewFeed[events.Diagnostic](0),
	}
}

// Event feeds.
func (c *Coordinator) Confirmations() *events.Feed[events.Confirmed] { return c.confirmations }

func (c *Coordinator) Failures() *events.Feed[events.SubscriptionFailed] { return c.failures }

func (c *Coordinator) Limits() *events.Feed[events.LimitReached] { return c.limits }

func (c *Coordinator) Stales() *events.Feed[events.Stale] { return c.stales }

func (c *Coordinator) Diagnostics() *events.Feed[events.Diagnostic] { return c.diagnostics }

// Start launches the batch-flush and stale-scan loops. They stop when ctx
// ends or the coordinator is disposed.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	c.mu.Unlock()

	c.wg.Add(2)
	go c.flushLoop(ctx)
	go c.staleLoop(ctx)
	return nil
}

// Dispose tears the coordinator down: every timer is cancelled, the pending
// queue is dropped, and unsettled tickets stay unsettled. Idempotent.
func (c *Coordinator) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	for id, t := range c.confirmTimers {
		t.Stop()
		delete(c.confirmTimers, id)
	}
	for id, t := range c.retryTimers {
		t.Stop()
		delete(c.retryTimers, id)
	}
	c.queue = nil
	c.tickets = make(map[string]*Ticket)
	close(c.done)
	c.mu.Unlock()

	c.wg.Wait()
	c.confirmations.Close()
	c.failures.Close()
	c.limits.Close()
	c.stales.Close()
	c.diagnostics.Close()
	c.logger.Info("subscription coordinator disposed")
}

// Subscribe registers a new managed subscription for the given tokens and
// returns its deferred ticket. Validation failures reject synchronously.
func (c *Coordinator) Subscribe(tokens []string, opts Options) (*Ticket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return nil, ErrDisposed
	}
	if len(tokens) == 0 {
		return nil, ErrNoTokens
	}
	if len(tokens) > c.cfg.MaxTokensPerSubscription {
		return nil, &LimitError{What: "tokens", Current: len(tokens), Max: c.cfg.MaxTokensPerSubscription}
	}
	if len(c.subs)+1 > c.cfg.MaxSubscriptionsPerConnection {
		c.limits.Publish(events.LimitReached{
			Current: len(c.subs),
			Max:     c.cfg.MaxSubscriptionsPerConnection,
			At:      time.Now(),
		})
		return nil, &LimitError{What: "subscriptions", Current: len(c.subs), Max: c.cfg.MaxSubscriptionsPerConnection}
	}
	for _, tok := range tokens {
		if _, held := c.byToken[tok]; held {
			return nil, ErrTokenConflict
		}
	}

	now := time.Now()
	sub := &ManagedSubscription{
		ID:              uuid.NewString(),
		Tokens:          append([]string(nil), tokens...),
		Channel:         opts.Channel,
		Status:          StatusPending,
		MaxRetries:      c.cfg.MaxRetries,
		Priority:        opts.Priority,
		AutoResubscribe: true,
		Metadata:        opts.Metadata,
		CreatedAt:       now,
		LastUpdateAt:    now,
	}
	if opts.MaxRetries != nil {
		sub.MaxRetries = *opts.MaxRetries
	}
	if opts.AutoResubscribe != nil {
		sub.AutoResubscribe = *opts.AutoResubscribe
	}
	if len(opts.Tags) > 0 {
		sub.Tags = make(map[string]bool, len(opts.Tags))
		for _, tag := range opts.Tags {
			sub.Tags[tag] = true
		}
	}

	c.subs[sub.ID] = sub
	for _, tok := range sub.Tokens {
		c.byToken[tok] = sub.ID
	}
	ticket := newTicket()
	c.tickets[sub.ID] = ticket

	if opts.Immediate {
		c.dispatchLocked(sub)
	} else {
		c.enqueueLocked(intent{
			subID:    sub.ID,
			channel:  sub.Channel,
			tokens:   sub.Tokens,
			priority: sub.Priority,
		})
	}

	c.logger.Debug("subscription created",
		"sub_id", sub.ID,
		"tokens", len(sub.Tokens),
		"channel", sub.Channel,
		"immediate", opts.Immediate,
	)
	return ticket, nil
}

// Unsubscribe removes a subscription and queues the unsubscribe message.
func (c *Coordinator) Unsubscribe(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return ErrDisposed
	}
	sub, ok := c.subs[id]
	if !ok {
		return ErrNotFound
	}
	c.removeLocked(sub)
	c.enqueueLocked(intent{
		subID:       sub.ID,
		unsubscribe: true,
		channel:     sub.Channel,
		tokens:      sub.Tokens,
		priority:    sub.Priority,
	})
	return nil
}

// UnsubscribeByToken removes the subscription holding token.
func (c *Coordinator) UnsubscribeByToken(token string) error {
	c.mu.Lock()
	id, ok := c.byToken[token]
	c.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return c.Unsubscribe(id)
}

// UnsubscribeAll removes every subscription.
func (c *Coordinator) UnsubscribeAll() error {
	c.mu.Lock()
	ids := make([]string, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		if err := c.Unsubscribe(id); err != nil && err != ErrNotFound {
			return err
		}
	}
	return nil
}

// Pause stops a subscription from being retried or restored without
// removing it.
func (c *Coordinator) Pause(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return ErrDisposed
	}
	sub, ok := c.subs[id]
	if !ok {
		return ErrNotFound
	}
	c.stopTimersLocked(id)
	sub.Status = StatusPaused
	sub.LastUpdateAt = time.Now()
	return nil
}

// Resume re-dispatches a paused subscription.
func (c *Coordinator) Resume(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return ErrDisposed
	}
	sub, ok := c.subs[id]
	if !ok {
		return ErrNotFound
	}
	if sub.Status != StatusPaused {
		return nil
	}
	sub.Status = StatusPending
	sub.Confirmed = false
	sub.LastUpdateAt = time.Now()
	c.enqueueLocked(intent{
		subID:    sub.ID,
		channel:  sub.Channel,
		tokens:   sub.Tokens,
		priority: sub.Priority,
	})
	return nil
}

// HandleConfirmation matches a server acknowledgment to a subscription, by
// id when present, otherwise by token overlap.
func (c *Coordinator) HandleConfirmation(id string, tokens []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return
	}
	sub := c.subs[id]
	if sub == nil {
		sub = c.matchByTokensLocked(tokens)
	}
	if sub == nil {
		c.diagnostics.Publish(events.Diagnostic{
			Severity: events.SeverityWarning,
			Code:     "unmatched_confirmation",
			Message:  "confirmation matched no subscription",
			At:       time.Now(),
		})
		return
	}
	c.confirmLocked(sub, false)
}

// HandleError records a subscription failure and schedules a retry, or
// fails the subscription once retries are exhausted.
func (c *Coordinator) HandleError(id string, cause error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return ErrDisposed
	}
	sub, ok := c.subs[id]
	if !ok {
		return ErrNotFound
	}
	c.failLocked(sub, cause)
	return nil
}

// MarkActivity stamps data-flow liveness for the subscription holding token.
func (c *Coordinator) MarkActivity(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.byToken[token]
	if !ok {
		return
	}
	if sub, ok := c.subs[id]; ok {
		sub.LastUpdateAt = time.Now()
		sub.UpdateCount++
		delete(c.stale, id)
	}
}

// TokenSubscription returns the subscription holding token.
func (c *Coordinator) TokenSubscription(token string) (ManagedSubscription, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.byToken[token]
	if !ok {
		return ManagedSubscription{}, false
	}
	sub, ok := c.subs[id]
	if !ok {
		return ManagedSubscription{}, false
	}
	return snapshotOf(sub), true
}

// Get returns a subscription snapshot by id.
func (c *Coordinator) Get(id string) (ManagedSubscription, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subs[id]
	if !ok {
		return ManagedSubscription{}, false
	}
	return snapshotOf(sub), true
}

// Filter returns snapshots of every subscription fn accepts.
func (c *Coordinator) Filter(fn func(ManagedSubscription) bool) []ManagedSubscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []ManagedSubscription
	for _, sub := range c.subs {
		snap := snapshotOf(sub)
		if fn == nil || fn(snap) {
			out = append(out, snap)
		}
	}
	return out
}

// Counts tallies the population by status.
func (c *Coordinator) Counts() Counts {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.countsLocked()
}

func (c *Coordinator) countsLocked() Counts {
	counts := Counts{Total: len(c.subs), Stale: len(c.stale)}
	for _, sub := range c.subs {
		switch sub.Status {
		case StatusPending:
			counts.Pending++
		case StatusActive:
			counts.Active++
		case StatusPaused:
			counts.Paused++
		case StatusError:
			counts.Error++
		case StatusUnsubscribed:
			counts.Unsubscribed++
		}
	}
	return counts
}

// MarkDisconnected drops every live subscription back to pending and
// unconfirmed without removing anything, and stops in-flight timers. The
// resilience layer calls this on connection loss.
func (c *Coordinator) MarkDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return
	}
	for id, sub := range c.subs {
		c.stopTimersLocked(id)
		if sub.Status == StatusActive || sub.Status == StatusPending {
			sub.Status = StatusPending
			sub.Confirmed = false
		}
	}
	c.logger.Debug("marked all subscriptions unconfirmed", "count", len(c.subs))
}

// SubscriptionsToRestore returns the auto-resubscribe set for replay after
// a reconnect.
func (c *Coordinator) SubscriptionsToRestore() []ManagedSubscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []ManagedSubscription
	for _, sub := range c.subs {
		if sub.AutoResubscribe && (sub.Status == StatusPending || sub.Status == StatusActive) {
			out = append(out, snapshotOf(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// Restore re-dispatches one subscription immediately. A send failure routes
// into the subscription's own retry path and is reported to the caller.
func (c *Coordinator) Restore(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return ErrDisposed
	}
	sub, ok := c.subs[id]
	if !ok {
		return ErrNotFound
	}
	if !c.sendLocked(newWireRequest("subscribe", sub.Channel, sub.ID, sub.Tokens)) {
		c.failLocked(sub, ErrSendFailed)
		return ErrSendFailed
	}
	c.armConfirmTimerLocked(sub.ID)
	return nil
}

// ---------------------------------------------------------------------------
// Internal machinery. Everything below runs with c.mu held.
// ---------------------------------------------------------------------------

func (c *Coordinator) enqueueLocked(it intent) {
	c.seq++
	it.seq = c.seq
	c.queue = append(c.queue, it)
}

// dispatchLocked sends one subscription's subscribe message and arms its
// confirmation timer. Send failure goes through the retry path.
func (c *Coordinator) dispatchLocked(sub *ManagedSubscription) {
	if !c.sendLocked(newWireRequest("subscribe", sub.Channel, sub.ID, sub.Tokens)) {
		c.failLocked(sub, ErrSendFailed)
		return
	}
	c.armConfirmTimerLocked(sub.ID)
}

func (c *Coordinator) sendLocked(req wireRequest) bool {
	if c.sender == nil {
		return false
	}
	return c.sender.SendJSON(req)
}

func (c *Coordinator) armConfirmTimerLocked(id string) {
	c.dispatchedAt[id] = time.Now()
	if t, ok := c.confirmTimers[id]; ok {
		t.Stop()
	}
	c.confirmTimers[id] = time.AfterFunc(c.cfg.SubscriptionTimeout, func() {
		c.onConfirmTimeout(id)
	})
}

// onConfirmTimeout optimistically confirms a subscription whose server
// acknowledgment never arrived, and emits one error-category diagnostic.
func (c *Coordinator) onConfirmTimeout(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return
	}
	sub, ok := c.subs[id]
	if !ok || sub.Status != StatusPending {
		return
	}
	c.confirmLocked(sub, true)
}

func (c *Coordinator) confirmLocked(sub *ManagedSubscription, optimistic bool) {
	c.stopTimersLocked(sub.ID)
	if sub.Status == StatusUnsubscribed || sub.Status == StatusError {
		return
	}

	now := time.Now()
	var latency time.Duration
	if at, ok := c.dispatchedAt[sub.ID]; ok {
		latency = now.Sub(at)
	}
	sub.Status = StatusActive
	sub.Confirmed = true
	sub.ConfirmedAt = now
	sub.LastUpdateAt = now

	if optimistic {
		c.diagnostics.Publish(events.Diagnostic{
			Severity: events.SeverityError,
			Code:     "confirm_timeout",
			Message:  "confirmed without explicit server acknowledgment",
			SubID:    sub.ID,
			At:       now,
		})
		c.logger.Warn("subscription auto-confirmed on timeout", "sub_id", sub.ID)
	}
	c.confirmations.Publish(events.Confirmed{
		SubID:      sub.ID,
		Tokens:     append([]string(nil), sub.Tokens...),
		Channel:    sub.Channel,
		Latency:    latency,
		Optimistic: optimistic,
		At:         now,
	})

	if ticket, ok := c.tickets[sub.ID]; ok {
		ticket.settle(snapshotOf(sub), nil)
		delete(c.tickets, sub.ID)
	}
}

// failLocked advances a subscription's retry state.
func (c *Coordinator) failLocked(sub *ManagedSubscription, cause error) {
	c.stopTimersLocked(sub.ID)
	sub.RetryCount++
	sub.Confirmed = false
	sub.LastUpdateAt = time.Now()
	c.lastErr[sub.ID] = cause

	if sub.RetryCount <= sub.MaxRetries {
		sub.Status = StatusPending
		delay := time.Duration(float64(c.cfg.InitialRetryDelay) *
			math.Pow(c.cfg.RetryDelayMultiplier, float64(sub.RetryCount)))
		id := sub.ID
		c.retryTimers[id] = time.AfterFunc(delay, func() { c.onRetry(id) })
		c.logger.Debug("subscription retry scheduled",
			"sub_id", sub.ID,
			"retry", sub.RetryCount,
			"delay", delay,
			"error", cause,
		)
		return
	}

	sub.Status = StatusError
	for _, tok := range sub.Tokens {
		if c.byToken[tok] == sub.ID {
			delete(c.byToken, tok)
		}
	}
	exhausted := &RetriesExhaustedError{SubID: sub.ID, Attempts: sub.RetryCount - 1, Last: cause}
	c.failures.Publish(events.SubscriptionFailed{
		SubID:   sub.ID,
		Tokens:  append([]string(nil), sub.Tokens...),
		Retries: sub.RetryCount - 1,
		Err:     cause,
		At:      time.Now(),
	})
	if ticket, ok := c.tickets[sub.ID]; ok {
		ticket.settle(ManagedSubscription{}, exhausted)
		delete(c.tickets, sub.ID)
	}
	c.logger.Warn("subscription failed permanently",
		"sub_id", sub.ID,
		"retries", sub.RetryCount-1,
		"error", cause,
	)
}

func (c *Coordinator) onRetry(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return
	}
	sub, ok := c.subs[id]
	if !ok || sub.Status != StatusPending {
		return
	}
	c.dispatchLocked(sub)
}

// removeLocked strips a subscription from every index and cancels its
// timers. The record itself is discarded.
func (c *Coordinator) removeLocked(sub *ManagedSubscription) {
	c.stopTimersLocked(sub.ID)
	sub.Status = StatusUnsubscribed
	delete(c.subs, sub.ID)
	delete(c.dispatchedAt, sub.ID)
	delete(c.lastErr, sub.ID)
	delete(c.stale, sub.ID)
	delete(c.tickets, sub.ID) // pending ticket dropped, never settled
	for _, tok := range sub.Tokens {
		if c.byToken[tok] == sub.ID {
			delete(c.byToken, tok)
		}
	}
	// Drop any still-queued subscribe intent for this subscription.
	kept := c.queue[:0]
	for _, it := range c.queue {
		if it.subID == sub.ID && !it.unsubscribe {
			continue
		}
		kept = append(kept, it)
	}
	c.queue = kept
}

func (c *Coordinator) stopTimersLocked(id string) {
	if t, ok := c.confirmTimers[id]; ok {
		t.Stop()
		delete(c.confirmTimers, id)
	}
	if t, ok := c.retryTimers[id]; ok {
		t.Stop()
		delete(c.retryTimers, id)
	}
}

func (c *Coordinator) matchByTokensLocked(tokens []string) *ManagedSubscription {
	for _, tok := range tokens {
		if id, ok := c.byToken[tok]; ok {
			if sub, ok := c.subs[id]; ok {
				return sub
			}
		}
	}
	return nil
}

// flushLoop drains the pending intent queue every BatchDelay.
func (c *Coordinator) flushLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.BatchDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.flush()
		}
	}
}

// flush dispatches up to BatchSize highest-priority intents, coalescing
// same-channel intents into one wire message.
func (c *Coordinator) flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed || len(c.queue) == 0 {
		return
	}

	sort.SliceStable(c.queue, func(i, j int) bool {
		if c.queue[i].priority != c.queue[j].priority {
			return c.queue[i].priority > c.queue[j].priority
		}
		return c.queue[i].seq < c.queue[j].seq
	})

	n := c.cfg.BatchSize
	if n > len(c.queue) {
		n = len(c.queue)
	}
	batch := append([]intent(nil), c.queue[:n]...)
	c.queue = c.queue[n:]

	// Coalesce same-channel intents, keeping the priority order of first
	// appearance so higher-priority groups hit the wire first.
	type group struct {
		channel     string
		unsubscribe bool
		subs        []*ManagedSubscription
		tokens      []string
	}
	var groups []*group
	index := make(map[string]*group)

	for _, it := range batch {
		key := it.channel
		if it.unsubscribe {
			key = "-" + key
		}
		g := index[key]
		if g == nil {
			g = &group{channel: it.channel, unsubscribe: it.unsubscribe}
			index[key] = g
			groups = append(groups, g)
		}
		if it.unsubscribe {
			g.tokens = append(g.tokens, it.tokens...)
			continue
		}
		sub, ok := c.subs[it.subID]
		if !ok || sub.Status != StatusPending {
			continue
		}
		g.subs = append(g.subs, sub)
		g.tokens = append(g.tokens, sub.Tokens...)
	}

	for _, g := range groups {
		if g.unsubscribe {
			if !c.sendLocked(newWireRequest("unsubscribe", g.channel, "", g.tokens)) {
				c.diagnostics.Publish(events.Diagnostic{
					Severity: events.SeverityWarning,
					Code:     "unsubscribe_send_failed",
					Message:  "unsubscribe message not sent; server will drop it on disconnect",
					At:       time.Now(),
				})
			}
			continue
		}
		if len(g.subs) == 0 {
			continue
		}
		// A lone subscription keeps its id for exact confirmation matching;
		// a coalesced message relies on token-set overlap.
		id := ""
		if len(g.subs) == 1 {
			id = g.subs[0].ID
		}
		if !c.sendLocked(newWireRequest("subscribe", g.channel, id, g.tokens)) {
			for _, sub := range g.subs {
				c.failLocked(sub, ErrSendFailed)
			}
			continue
		}
		for _, sub := range g.subs {
			c.armConfirmTimerLocked(sub.ID)
		}
	}
}

// staleLoop periodically flags active subscriptions that stopped receiving
// data. Advisory only.
func (c *Coordinator) staleLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.StaleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.scanStale()
		}
	}
}

func (c *Coordinator) scanStale() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return
	}
	now := time.Now()
	for id, sub := range c.subs {
		if sub.Status != StatusActive || c.stale[id] {
			continue
		}
		last := sub.LastUpdateAt
		if last.IsZero() {
			last = sub.CreatedAt
		}
		idle := now.Sub(last)
		if idle < c.cfg.StaleSubscriptionThreshold {
			continue
		}
		c.stale[id] = true
		c.stales.Publish(events.Stale{
			SubID:      id,
			Tokens:     append([]string(nil), sub.Tokens...),
			LastUpdate: last,
			IdleFor:    idle,
			At:         now,
		})
		c.logger.Debug("stale subscription", "sub_id", id, "idle", idle)
	}
}

// snapshotOf copies a subscription for external consumption.
func snapshotOf(sub *ManagedSubscription) ManagedSubscription {
	snap := *sub
	snap.Tokens = append([]string(nil), sub.Tokens...)
	if sub.Tags != nil {
		snap.Tags = make(map[string]bool, len(sub.Tags))
		for k, v := range sub.Tags {
			snap.Tags[k] = v
		}
	}
	if sub.Metadata != nil {
		snap.Metadata = make(map[string]any, len(sub.Metadata))
		for k, v := range sub.Metadata {
			snap.Metadata[k] = v
		}
	}
	return snap
}
