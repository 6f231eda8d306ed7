package connection

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrDisposed        = errors.New("connection disposed")
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// CloseInfo describes how the transport ended. WasClean is true only for a
// normal closure initiated through a close frame.
type CloseInfo struct {
	Code     int
	Reason   string
	WasClean bool
}

// State is the lifecycle state of a resilient connection.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateClosing      State = "closing"
)

// ReconnectionState is a snapshot of the automatic reconnection machinery.
type ReconnectionState struct {
	Attempt        int           // attempts since the last successful open
	TotalAttempts  int           // lifetime attempts
	NextDelay      time.Duration // delay before the next scheduled attempt
	IsReconnecting bool
	Exhausted      bool // automatic retries stopped; ForceReconnect still works
}

// ClientConfig configures a single WebSocket transport.
type ClientConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	PingInterval     time.Duration // keepalive ping cadence
	PingTimeout      time.Duration // max silence before the connection is stale
	WriteTimeout     time.Duration
	BufferSize       int // message channel capacity
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       10000,
	}
}

func (c *ClientConfig) applyDefaults() {
	d := DefaultClientConfig()
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = d.PingTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.BufferSize == 0 {
		c.BufferSize = d.BufferSize
	}
}

// Config configures the resilient connection.
type Config struct {
	Client ClientConfig

	ReconnectBaseDelay   time.Duration // seed for abnormal closures (1001, 1006)
	ServerErrorDelay     time.Duration // seed for internal server error (1011)
	RestartDelay         time.Duration // seed for restart/try-again-later (1012, 1013)
	MaxReconnectDelay    time.Duration
	BackoffMultiplier    float64
	Jitter               bool
	MaxReconnectAttempts int

	AutoRestore        bool          // replay subscriptions after reconnect
	RestoreSettleDelay time.Duration // wait before replaying
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Client:               DefaultClientConfig(),
		ReconnectBaseDelay:   time.Second,
		ServerErrorDelay:     5 * time.Second,
		RestartDelay:         15 * time.Second,
		MaxReconnectDelay:    60 * time.Second,
		BackoffMultiplier:    2,
		MaxReconnectAttempts: 10,
		AutoRestore:          true,
		RestoreSettleDelay:   time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	c.Client.applyDefaults()
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = d.ReconnectBaseDelay
	}
	if c.ServerErrorDelay == 0 {
		c.ServerErrorDelay = d.ServerErrorDelay
	}
	if c.RestartDelay == 0 {
		c.RestartDelay = d.RestartDelay
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = d.MaxReconnectDelay
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = d.BackoffMultiplier
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = d.MaxReconnectAttempts
	}
	if c.RestoreSettleDelay == 0 {
		c.RestoreSettleDelay = d.RestoreSettleDelay
	}
}

// classifyClose decides whether a closure warrants reconnection and, if so,
// which seed delay the backoff starts from. Clean normal closure and
// protocol-level client errors never reconnect.
func (c *Config) classifyClose(info CloseInfo) (reconnect bool, seed time.Duration) {
	switch info.Code {
	case websocket.CloseNormalClosure:
		if info.WasClean {
			return false, 0
		}
		return true, c.ReconnectBaseDelay
	case websocket.CloseProtocolError,
		websocket.CloseUnsupportedData,
		websocket.CloseInvalidFramePayloadData,
		websocket.ClosePolicyViolation:
		return false, 0
	case websocket.CloseInternalServerErr:
		return true, c.ServerErrorDelay
	case websocket.CloseServiceRestart, websocket.CloseTryAgainLater:
		return true, c.RestartDelay
	default:
		// Going away, abnormal closure, and anything unrecognized.
		return true, c.ReconnectBaseDelay
	}
}
