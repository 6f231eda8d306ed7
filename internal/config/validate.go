package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *StreamerConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if !strings.HasPrefix(c.Feed.WSURL, "ws://") && !strings.HasPrefix(c.Feed.WSURL, "wss://") {
		return fmt.Errorf("feed.ws_url must be a ws:// or wss:// URL, got %q", c.Feed.WSURL)
	}
	if c.Feed.BufferSize < 1 {
		return errors.New("feed.buffer_size must be >= 1")
	}

	if c.Reconnect.Multiplier < 1 {
		return fmt.Errorf("reconnect.multiplier must be >= 1, got %g", c.Reconnect.Multiplier)
	}
	if c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
		return errors.New("reconnect.max_delay must be >= reconnect.base_delay")
	}
	if c.Reconnect.MaxAttempts < 1 {
		return errors.New("reconnect.max_attempts must be >= 1")
	}

	if c.Subscriptions.MaxTokensPerSubscription < 1 {
		return errors.New("subscriptions.max_tokens_per_subscription must be >= 1")
	}
	if c.Subscriptions.MaxPerConnection < 1 {
		return errors.New("subscriptions.max_per_connection must be >= 1")
	}
	if c.Subscriptions.BatchSize < 1 {
		return errors.New("subscriptions.batch_size must be >= 1")
	}
	if c.Subscriptions.RetryDelayMultiplier < 1 {
		return fmt.Errorf("subscriptions.retry_delay_multiplier must be >= 1, got %g", c.Subscriptions.RetryDelayMultiplier)
	}

	if c.Books.MaxDepth < 1 {
		return errors.New("books.max_depth must be >= 1")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}
