package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultWSURL            = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultPingTimeout      = 60 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultBufferSize       = 10000

	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultServerErrorDelay   = 5 * time.Second
	DefaultRestartDelay       = 15 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultMultiplier         = 2.0
	DefaultMaxAttempts        = 10
	DefaultRestoreSettleDelay = 1 * time.Second

	DefaultMaxTokensPerSubscription = 50
	DefaultMaxPerConnection         = 500
	DefaultBatchSize                = 10
	DefaultBatchDelay               = 100 * time.Millisecond
	DefaultConfirmTimeout           = 10 * time.Second
	DefaultMaxRetries               = 3
	DefaultInitialRetryDelay        = 1 * time.Second
	DefaultRetryDelayMultiplier     = 2.0
	DefaultStaleCheckInterval       = 30 * time.Second
	DefaultStaleThreshold           = 5 * time.Minute

	DefaultMaxDepth = 50

	DefaultBookQueue  = 1024
	DefaultPriceQueue = 1024
	DefaultTradeQueue = 256

	DefaultMetricsPort = 9090
	DefaultMetricsPath = "/metrics"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// ApplyDefaults fills unset optional fields.
func (c *StreamerConfig) ApplyDefaults() {
	if c.Feed.WSURL == "" {
		c.Feed.WSURL = DefaultWSURL
	}
	if c.Feed.HandshakeTimeout == 0 {
		c.Feed.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Feed.PingInterval == 0 {
		c.Feed.PingInterval = DefaultPingInterval
	}
	if c.Feed.PingTimeout == 0 {
		c.Feed.PingTimeout = DefaultPingTimeout
	}
	if c.Feed.WriteTimeout == 0 {
		c.Feed.WriteTimeout = DefaultWriteTimeout
	}
	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = DefaultBufferSize
	}

	if c.Reconnect.BaseDelay == 0 {
		c.Reconnect.BaseDelay = DefaultReconnectBaseDelay
	}
	if c.Reconnect.ServerErrorDelay == 0 {
		c.Reconnect.ServerErrorDelay = DefaultServerErrorDelay
	}
	if c.Reconnect.RestartDelay == 0 {
		c.Reconnect.RestartDelay = DefaultRestartDelay
	}
	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = DefaultReconnectMaxDelay
	}
	if c.Reconnect.Multiplier == 0 {
		c.Reconnect.Multiplier = DefaultMultiplier
	}
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = DefaultMaxAttempts
	}
	if c.Reconnect.AutoRestore == nil {
		autoRestore := true
		c.Reconnect.AutoRestore = &autoRestore
	}
	if c.Reconnect.RestoreSettleDelay == 0 {
		c.Reconnect.RestoreSettleDelay = DefaultRestoreSettleDelay
	}

	if c.Subscriptions.MaxTokensPerSubscription == 0 {
		c.Subscriptions.MaxTokensPerSubscription = DefaultMaxTokensPerSubscription
	}
	if c.Subscriptions.MaxPerConnection == 0 {
		c.Subscriptions.MaxPerConnection = DefaultMaxPerConnection
	}
	if c.Subscriptions.BatchSize == 0 {
		c.Subscriptions.BatchSize = DefaultBatchSize
	}
	if c.Subscriptions.BatchDelay == 0 {
		c.Subscriptions.BatchDelay = DefaultBatchDelay
	}
	if c.Subscriptions.ConfirmTimeout == 0 {
		c.Subscriptions.ConfirmTimeout = DefaultConfirmTimeout
	}
	if c.Subscriptions.MaxRetries == 0 {
		c.Subscriptions.MaxRetries = DefaultMaxRetries
	}
	if c.Subscriptions.InitialRetryDelay == 0 {
		c.Subscriptions.InitialRetryDelay = DefaultInitialRetryDelay
	}
	if c.Subscriptions.RetryDelayMultiplier == 0 {
		c.Subscriptions.RetryDelayMultiplier = DefaultRetryDelayMultiplier
	}
	if c.Subscriptions.StaleCheckInterval == 0 {
		c.Subscriptions.StaleCheckInterval = DefaultStaleCheckInterval
	}
	if c.Subscriptions.StaleThreshold == 0 {
		c.Subscriptions.StaleThreshold = DefaultStaleThreshold
	}

	if c.Books.MaxDepth == 0 {
		c.Books.MaxDepth = DefaultMaxDepth
	}

	if c.Queues.Book == 0 {
		c.Queues.Book = DefaultBookQueue
	}
	if c.Queues.Price == 0 {
		c.Queues.Price = DefaultPriceQueue
	}
	if c.Queues.Trade == 0 {
		c.Queues.Trade = DefaultTradeQueue
	}

	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}
