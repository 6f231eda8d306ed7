package subscription

import (
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrDisposed      = errors.New("coordinator disposed")
	ErrNoTokens      = errors.New("no tokens given")
	ErrNotFound      = errors.New("subscription not found")
	ErrTokenConflict = errors.New("token already held by another subscription")
	ErrSendFailed    = errors.New("send failed: connection not ready")
)

// LimitError reports a subscription ceiling violation. Non-retryable.
type LimitError struct {
	What    string // "tokens" or "subscriptions"
	Current int
	Max     int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s limit exceeded: %d exceeds maximum %d", e.What, e.Current, e.Max)
}

// RetriesExhaustedError rejects a subscribe ticket after the retry budget
// is spent. Last is the error that ended it.
type RetriesExhaustedError struct {
	SubID    string
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("subscription %s failed after %d retries: %v", e.SubID, e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Last }

// Status is a subscription lifecycle state.
type Status string

const (
	StatusPending      Status = "pending"
	StatusActive       Status = "active"
	StatusPaused       Status = "paused"
	StatusError        Status = "error"
	StatusUnsubscribed Status = "unsubscribed"
)

// ManagedSubscription is the public snapshot of one logical subscription.
// Accessors always return copies; mutating one has no effect.
type ManagedSubscription struct {
	ID              string
	Tokens          []string
	Channel         string
	Status          Status
	Confirmed       bool
	ConfirmedAt     time.Time
	RetryCount      int
	MaxRetries      int
	Priority        int
	Tags            map[string]bool
	Metadata        map[string]any
	AutoResubscribe bool
	CreatedAt       time.Time
	LastUpdateAt    time.Time
	UpdateCount     int64
}

// Options tune one Subscribe call.
type Options struct {
	Channel         string
	Priority        int  // higher dispatches first
	Immediate       bool // bypass the batch queue
	AutoResubscribe *bool
	MaxRetries      *int
	Tags            []string
	Metadata        map[string]any
}

// Config holds coordinator tunables.
type Config struct {
	MaxTokensPerSubscription      int
	MaxSubscriptionsPerConnection int
	BatchSize                     int
	BatchDelay                    time.Duration
	SubscriptionTimeout           time.Duration
	MaxRetries                    int
	InitialRetryDelay             time.Duration
	RetryDelayMultiplier          float64
	StaleCheckInterval            time.Duration
	StaleSubscriptionThreshold    time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokensPerSubscription:      50,
		MaxSubscriptionsPerConnection: 500,
		BatchSize:                     10,
		BatchDelay:                    100 * time.Millisecond,
		SubscriptionTimeout:           10 * time.Second,
		MaxRetries:                    3,
		InitialRetryDelay:             time.Second,
		RetryDelayMultiplier:          2,
		StaleCheckInterval:            30 * time.Second,
		StaleSubscriptionThreshold:    5 * time.Minute,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MaxTokensPerSubscription == 0 {
		c.MaxTokensPerSubscription = d.MaxTokensPerSubscription
	}
	if c.MaxSubscriptionsPerConnection == 0 {
		c.MaxSubscriptionsPerConnection = d.MaxSubscriptionsPerConnection
	}
	if c.BatchSize == 0 {
		c.BatchSize = d.BatchSize
	}
	if c.BatchDelay == 0 {
		c.BatchDelay = d.BatchDelay
	}
	if c.SubscriptionTimeout == 0 {
		c.SubscriptionTimeout = d.SubscriptionTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.InitialRetryDelay == 0 {
		c.InitialRetryDelay = d.InitialRetryDelay
	}
	if c.RetryDelayMultiplier == 0 {
		c.RetryDelayMultiplier = d.RetryDelayMultiplier
	}
	if c.StaleCheckInterval == 0 {
		c.StaleCheckInterval = d.StaleCheckInterval
	}
	if c.StaleSubscriptionThreshold == 0 {
		c.StaleSubscriptionThreshold = d.StaleSubscriptionThreshold
	}
}

// Sender pushes wire messages onto the active transport. Send reports
// readiness instead of returning an error.
type Sender interface {
	SendJSON(v any) bool
}

// wireRequest is the subscribe/unsubscribe message shape. A single token
// rides in market, multiple in assets_ids.
type wireRequest struct {
	Type     string   `json:"type"`
	Channel  string   `json:"channel,omitempty"`
	Market   string   `json:"market,omitempty"`
	AssetIDs []string `json:"assets_ids,omitempty"`
	ID       string   `json:"id,omitempty"`
}

func newWireRequest(typ, channel, id string, tokens []string) wireRequest {
	req := wireRequest{Type: typ, Channel: channel, ID: id}
	if len(tokens) == 1 {
		req.Market = tokens[0]
	} else {
		req.AssetIDs = tokens
	}
	return req
}

// Counts summarizes the subscription population by status.
type Counts struct {
	Total        int
	Pending      int
	Active       int
	Paused       int
	Error        int
	Unsubscribed int
	Stale        int
}

// intent is one queued subscribe/unsubscribe action. Unsubscribe intents
// carry their own payload because the subscription record is already gone.
type intent struct {
	subID       string
	unsubscribe bool
	channel     string
	tokens      []string
	priority    int
	seq         int64 // FIFO tiebreak within a priority
}
