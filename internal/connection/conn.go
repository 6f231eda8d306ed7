package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"

	"github.com/clobsync/polymarket-data/internal/events"
)

// RestoreTarget identifies one subscription to replay after a reconnect.
type RestoreTarget struct {
	ID     string
	Tokens []string
}

// Restorer is the subscription-side collaborator consulted around
// connection loss and recovery.
type Restorer interface {
	// MarkDisconnected drops every live subscription back to unconfirmed.
	MarkDisconnected()

	// SubscriptionsToRestore returns the auto-resubscribe set, highest
	// priority first.
	SubscriptionsToRestore() []RestoreTarget

	// Restore re-dispatches one subscription. A failure leaves it
	// unconfirmed for the restorer's own retry machinery.
	Restore(id string) error
}

// Conn is a self-healing WebSocket connection. It owns exactly one Client
// at a time, classifies closures into reconnect decisions, backs off
// exponentially between attempts, and replays subscriptions after recovery.
type Conn struct {
	cfg      Config
	logger   *slog.Logger
	restorer Restorer

	mu             sync.Mutex
	state          State
	client         Client
	disposed       bool
	recon          ReconnectionState
	bo             *backoff.ExponentialBackOff
	reconnectTimer *time.Timer
	restoreTimer   *time.Timer

	out chan TimestampedMessage

	stateChanges     *events.Feed[events.StateChange]
	exhaustions      *events.Feed[events.ReconnectExhausted]
	restoreResults   *events.Feed[events.RestoreResult]
	restoreSummaries *events.Feed[events.RestoreSummary]
}

// NewConn creates a resilient connection. restorer may be nil when no
// subscription replay is wanted.
func NewConn(cfg Config, restorer Restorer, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	return &Conn{
		cfg:              cfg,
		logger:           logger,
		restorer:         restorer,
		state:            StateDisconnected,
		out:              make(chan TimestampedMessage, cfg.Client.BufferSize),
		stateChanges:     events.NewFeed[events.StateChange](0),
		exhaustions:      events.NewFeed[events.ReconnectExhausted](0),
		restoreResults:   events.NewFeed[events.RestoreResult](0),
		restoreSummaries: events.NewFeed[events.RestoreSummary](0),
	}
}

// Event feeds.
func (c *Conn) StateChanges() *events.Feed[events.StateChange] { return c.stateChanges }

func (c *Conn) Exhaustions() *events.Feed[events.ReconnectExhausted] { return c.exhaustions }

func (c *Conn) RestoreResults() *events.Feed[events.RestoreResult] { return c.restoreResults }

func (c *Conn) RestoreSummaries() *events.Feed[events.RestoreSummary] { return c.restoreSummaries }

// Messages returns the merged inbound frame stream across reconnects.
func (c *Conn) Messages() <-chan TimestampedMessage { return c.out }

// Connect dials the endpoint. A dial failure schedules an automatic
// reconnection attempt and is also returned to the caller.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	cl := NewClient(c.cfg.Client, c.logger)
	err := cl.Connect(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		cl.Close()
		return ErrDisposed
	}
	if err != nil {
		c.setStateLocked(StateDisconnected)
		c.scheduleReconnectLocked(c.cfg.ReconnectBaseDelay)
		return err
	}
	c.onOpenLocked(cl)
	return nil
}

// Disconnect closes the connection cleanly. No reconnection is scheduled.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	if c.disposed || c.state == StateDisconnected && c.client == nil && !c.recon.IsReconnecting {
		c.mu.Unlock()
		return
	}
	c.stopTimersLocked()
	old := c.client
	c.client = nil
	c.recon.IsReconnecting = false
	c.recon.NextDelay = 0
	c.setStateLocked(StateClosing)
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}

	c.mu.Lock()
	if !c.disposed {
		c.setStateLocked(StateDisconnected)
	}
	c.mu.Unlock()
}

// ForceReconnect tears down any current transport and dials fresh. It also
// clears the exhausted flag, so it is the manual escape hatch after the
// automatic budget is spent.
func (c *Conn) ForceReconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	c.stopTimersLocked()
	old := c.client
	c.client = nil
	c.recon.Attempt = 0
	c.recon.IsReconnecting = false
	c.recon.NextDelay = 0
	c.recon.Exhausted = false
	c.bo = nil
	c.setStateLocked(StateClosing)
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}

	c.mu.Lock()
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	return c.Connect(ctx)
}

// Send writes raw bytes, reporting readiness rather than an error.
func (c *Conn) Send(data []byte) bool {
	c.mu.Lock()
	cl := c.client
	ready := c.state == StateConnected
	c.mu.Unlock()

	if !ready || cl == nil {
		return false
	}
	return cl.Send(data) == nil
}

// SendJSON marshals v and sends it.
func (c *Conn) SendJSON(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("marshal outbound message", "error", err)
		return false
	}
	return c.Send(data)
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ReconnectionState returns a snapshot of the reconnection machinery.
func (c *Conn) ReconnectionState() ReconnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recon
}

// Dispose shuts the connection down permanently. Idempotent.
func (c *Conn) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.stopTimersLocked()
	old := c.client
	c.client = nil
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	c.stateChanges.Close()
	c.exhaustions.Close()
	c.restoreResults.Close()
	c.restoreSummaries.Close()
	c.logger.Info("connection disposed")
}

func (c *Conn) setStateLocked(s State) {
	if s == c.state {
		return
	}
	from := c.state
	c.state = s
	c.stateChanges.Publish(events.StateChange{From: string(from), To: string(s), At: time.Now()})
	c.logger.Debug("connection state", "from", from, "to", s)
}

func (c *Conn) stopTimersLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.restoreTimer != nil {
		c.restoreTimer.Stop()
		c.restoreTimer = nil
	}
}

// onOpenLocked installs a freshly connected client and resets the
// reconnection counters.
func (c *Conn) onOpenLocked(cl Client) {
	c.client = cl
	c.recon.Attempt = 0
	c.recon.IsReconnecting = false
	c.recon.NextDelay = 0
	c.bo = nil
	c.setStateLocked(StateConnected)

	go c.pump(cl)

	if c.cfg.AutoRestore && c.restorer != nil {
		c.restoreTimer = time.AfterFunc(c.cfg.RestoreSettleDelay, c.runRestore)
	}
}

// pump forwards one client's frames into the merged output stream until the
// transport ends.
func (c *Conn) pump(cl Client) {
	for {
		select {
		case msg := <-cl.Messages():
			c.forward(msg)
		case info, ok := <-cl.Done():
			// Drain whatever the reader buffered before it exited.
			for {
				select {
				case msg := <-cl.Messages():
					c.forward(msg)
					continue
				default:
				}
				break
			}
			if ok {
				c.handleClose(info)
			}
			return
		}
	}
}

func (c *Conn) forward(msg TimestampedMessage) {
	select {
	case c.out <- msg:
	default:
		c.logger.Warn("output buffer full, dropping message")
	}
}

// handleClose reacts to a remote or abnormal closure: classify, decide, and
// schedule reconnection when warranted.
func (c *Conn) handleClose(info CloseInfo) {
	c.mu.Lock()
	if c.disposed || c.state == StateClosing {
		c.mu.Unlock()
		return
	}
	c.client = nil
	if c.restoreTimer != nil {
		c.restoreTimer.Stop()
		c.restoreTimer = nil
	}
	c.setStateLocked(StateDisconnected)

	reconnect, seed := c.cfg.classifyClose(info)
	if reconnect && !c.recon.Exhausted {
		c.logger.Warn("connection lost",
			"code", info.Code,
			"reason", info.Reason,
		)
		c.scheduleReconnectLocked(seed)
	} else if !reconnect {
		c.logger.Info("connection closed, not reconnecting",
			"code", info.Code,
			"reason", info.Reason,
			"clean", info.WasClean,
		)
	}
	c.mu.Unlock()

	if c.restorer != nil {
		c.restorer.MarkDisconnected()
	}
}

// scheduleReconnectLocked books the next automatic attempt, or declares the
// budget exhausted.
func (c *Conn) scheduleReconnectLocked(seed time.Duration) {
	c.recon.Attempt++
	c.recon.TotalAttempts++

	if c.recon.Attempt > c.cfg.MaxReconnectAttempts {
		c.recon.Exhausted = true
		c.recon.IsReconnecting = false
		c.recon.NextDelay = 0
		c.exhaustions.Publish(events.ReconnectExhausted{
			Attempts: c.recon.Attempt - 1,
			At:       time.Now(),
		})
		c.logger.Error("reconnect attempts exhausted", "attempts", c.recon.Attempt-1)
		return
	}

	if c.bo == nil {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = seed
		bo.Multiplier = c.cfg.BackoffMultiplier
		bo.MaxInterval = c.cfg.MaxReconnectDelay
		bo.RandomizationFactor = 0
		if c.cfg.Jitter {
			bo.RandomizationFactor = 0.25
		}
		bo.Reset()
		c.bo = bo
	}
	delay := c.bo.NextBackOff()

	c.recon.NextDelay = delay
	c.recon.IsReconnecting = true
	c.reconnectTimer = time.AfterFunc(delay, c.attemptReconnect)
	c.logger.Info("reconnect scheduled",
		"attempt", c.recon.Attempt,
		"delay", delay,
	)
}

func (c *Conn) attemptReconnect() {
	c.mu.Lock()
	if c.disposed || c.state == StateConnected || c.state == StateClosing {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	cl := NewClient(c.cfg.Client, c.logger)
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Client.HandshakeTimeout)
	err := cl.Connect(ctx)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		cl.Close()
		return
	}
	if err != nil {
		c.setStateLocked(StateDisconnected)
		c.logger.Warn("reconnect attempt failed",
			"attempt", c.recon.Attempt,
			"error", err,
		)
		c.scheduleReconnectLocked(c.cfg.ReconnectBaseDelay)
		return
	}
	c.onOpenLocked(cl)
}

// runRestore replays the auto-resubscribe set after the settle delay and
// reports per-subscription plus aggregate outcomes.
func (c *Conn) runRestore() {
	c.mu.Lock()
	ready := !c.disposed && c.state == StateConnected
	c.mu.Unlock()
	if !ready || c.restorer == nil {
		return
	}

	targets := c.restorer.SubscriptionsToRestore()
	if len(targets) == 0 {
		return
	}

	var successful, failed int
	for _, target := range targets {
		err := c.restorer.Restore(target.ID)
		if err == nil {
			successful++
		} else {
			failed++
		}
		c.restoreResults.Publish(events.RestoreResult{
			SubID:   target.ID,
			Tokens:  target.Tokens,
			Success: err == nil,
			Err:     err,
			At:      time.Now(),
		})
	}
	c.restoreSummaries.Publish(events.RestoreSummary{
		Total:      len(targets),
		Successful: successful,
		Failed:     failed,
		At:         time.Now(),
	})
	c.logger.Info("subscription restore finished",
		"total", len(targets),
		"successful", successful,
		"failed", failed,
	)
}
