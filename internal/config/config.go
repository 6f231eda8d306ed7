package config

import "time"

// StreamerConfig is the root configuration for a streamer instance.
type StreamerConfig struct {
	Instance      InstanceConfig      `yaml:"instance"`
	Feed          FeedConfig          `yaml:"feed"`
	Reconnect     ReconnectConfig     `yaml:"reconnect"`
	Subscriptions SubscriptionsConfig `yaml:"subscriptions"`
	Books         BooksConfig         `yaml:"books"`
	Queues        QueuesConfig        `yaml:"queues"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// InstanceConfig identifies this streamer.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// FeedConfig holds the CLOB WebSocket endpoint settings.
type FeedConfig struct {
	WSURL            string        `yaml:"ws_url"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	BufferSize       int           `yaml:"buffer_size"`
}

// ReconnectConfig holds the resilience layer settings.
type ReconnectConfig struct {
	BaseDelay          time.Duration `yaml:"base_delay"`
	ServerErrorDelay   time.Duration `yaml:"server_error_delay"`
	RestartDelay       time.Duration `yaml:"restart_delay"`
	MaxDelay           time.Duration `yaml:"max_delay"`
	Multiplier         float64       `yaml:"multiplier"`
	Jitter             bool          `yaml:"jitter"`
	MaxAttempts        int           `yaml:"max_attempts"`
	AutoRestore        *bool         `yaml:"auto_restore"`
	RestoreSettleDelay time.Duration `yaml:"restore_settle_delay"`
}

// SubscriptionsConfig holds the subscription coordinator settings.
type SubscriptionsConfig struct {
	MaxTokensPerSubscription int           `yaml:"max_tokens_per_subscription"`
	MaxPerConnection         int           `yaml:"max_per_connection"`
	BatchSize                int           `yaml:"batch_size"`
	BatchDelay               time.Duration `yaml:"batch_delay"`
	ConfirmTimeout           time.Duration `yaml:"confirm_timeout"`
	MaxRetries               int           `yaml:"max_retries"`
	InitialRetryDelay        time.Duration `yaml:"initial_retry_delay"`
	RetryDelayMultiplier     float64       `yaml:"retry_delay_multiplier"`
	StaleCheckInterval       time.Duration `yaml:"stale_check_interval"`
	StaleThreshold           time.Duration `yaml:"stale_threshold"`
}

// BooksConfig holds order book reconstruction settings.
type BooksConfig struct {
	MaxDepth int `yaml:"max_depth"`
}

// QueuesConfig holds dispatcher output queue sizes.
type QueuesConfig struct {
	Book  int `yaml:"book"`
	Price int `yaml:"price"`
	Trade int `yaml:"trade"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds slog settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
