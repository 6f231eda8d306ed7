package events

import "time"

// Severity grades a diagnostic event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic is a non-fatal notice (dropped frame, sequence gap, optimistic
// confirmation, and the like).
type Diagnostic struct {
	Severity Severity
	Code     string // machine-checkable, e.g. "confirm_timeout", "seq_gap"
	Message  string
	AssetID  string // optional
	SubID    string // optional
	At       time.Time
}

// Confirmed fires when a subscription reaches active status.
type Confirmed struct {
	SubID      string
	Tokens     []string
	Channel    string
	Latency    time.Duration // dispatch to confirmation
	Optimistic bool          // true when confirmed by timeout, not the server
	At         time.Time
}

// SubscriptionFailed fires when a subscription exhausts its retries.
type SubscriptionFailed struct {
	SubID   string
	Tokens  []string
	Retries int
	Err     error
	At      time.Time
}

// LimitReached fires when a subscribe call is rejected for exceeding the
// per-connection subscription ceiling.
type LimitReached struct {
	Current int
	Max     int
	At      time.Time
}

// Stale flags an active subscription that has stopped receiving updates.
// Advisory only; nothing is retried or removed.
type Stale struct {
	SubID      string
	Tokens     []string
	LastUpdate time.Time
	IdleFor    time.Duration
	At         time.Time
}

// StateChange reports a connection state transition.
type StateChange struct {
	From string
	To   string
	At   time.Time
}

// ReconnectExhausted is the terminal notification after the automatic
// reconnection budget is spent. Manual reconnection remains possible.
type ReconnectExhausted struct {
	Attempts int
	LastErr  error
	At       time.Time
}

// RestoreResult reports one subscription's replay outcome after reconnect.
type RestoreResult struct {
	SubID   string
	Tokens  []string
	Success bool
	Err     error
	At      time.Time
}

// RestoreSummary aggregates a full post-reconnect restoration pass.
type RestoreSummary struct {
	Total      int
	Successful int
	Failed     int
	At         time.Time
}
