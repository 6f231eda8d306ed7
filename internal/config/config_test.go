package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-streamer
feed:
  ws_url: wss://example.test/ws/market
  ping_interval: 15s
subscriptions:
  batch_size: 20
books:
  max_depth: 25
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-streamer" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-streamer")
	}
	if cfg.Feed.WSURL != "wss://example.test/ws/market" {
		t.Errorf("Feed.WSURL = %q", cfg.Feed.WSURL)
	}
	if cfg.Feed.PingInterval != 15*time.Second {
		t.Errorf("Feed.PingInterval = %v, want 15s", cfg.Feed.PingInterval)
	}
	if cfg.Subscriptions.BatchSize != 20 {
		t.Errorf("Subscriptions.BatchSize = %d, want 20", cfg.Subscriptions.BatchSize)
	}
	if cfg.Books.MaxDepth != 25 {
		t.Errorf("Books.MaxDepth = %d, want 25", cfg.Books.MaxDepth)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_WS_URL", "wss://staging.example.test/ws/market")

	yaml := `
instance:
  id: test-streamer
feed:
  ws_url: ${TEST_WS_URL}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Feed.WSURL != "wss://staging.example.test/ws/market" {
		t.Errorf("Feed.WSURL = %q, want env-substituted value", cfg.Feed.WSURL)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-streamer
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Feed.WSURL != DefaultWSURL {
		t.Errorf("Feed.WSURL = %q, want default %q", cfg.Feed.WSURL, DefaultWSURL)
	}
	if cfg.Reconnect.BaseDelay != DefaultReconnectBaseDelay {
		t.Errorf("Reconnect.BaseDelay = %v, want default %v", cfg.Reconnect.BaseDelay, DefaultReconnectBaseDelay)
	}
	if cfg.Reconnect.AutoRestore == nil || !*cfg.Reconnect.AutoRestore {
		t.Error("Reconnect.AutoRestore should default to true")
	}
	if cfg.Subscriptions.MaxTokensPerSubscription != DefaultMaxTokensPerSubscription {
		t.Errorf("Subscriptions.MaxTokensPerSubscription = %d, want default %d",
			cfg.Subscriptions.MaxTokensPerSubscription, DefaultMaxTokensPerSubscription)
	}
	if cfg.Books.MaxDepth != DefaultMaxDepth {
		t.Errorf("Books.MaxDepth = %d, want default %d", cfg.Books.MaxDepth, DefaultMaxDepth)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
	if cfg.Logging.Level != DefaultLogLevel {
		t.Errorf("Logging.Level = %q, want default %q", cfg.Logging.Level, DefaultLogLevel)
	}
}

func TestValidate(t *testing.T) {
	valid := func() StreamerConfig {
		cfg := StreamerConfig{Instance: InstanceConfig{ID: "test"}}
		cfg.ApplyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*StreamerConfig)
		wantErr string
	}{
		{
			name:    "missing instance id",
			mutate:  func(c *StreamerConfig) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "bad ws url scheme",
			mutate:  func(c *StreamerConfig) { c.Feed.WSURL = "https://example.test" },
			wantErr: `feed.ws_url must be a ws:// or wss:// URL, got "https://example.test"`,
		},
		{
			name:    "multiplier below one",
			mutate:  func(c *StreamerConfig) { c.Reconnect.Multiplier = 0.5 },
			wantErr: "reconnect.multiplier must be >= 1, got 0.5",
		},
		{
			name:    "max delay below base",
			mutate:  func(c *StreamerConfig) { c.Reconnect.MaxDelay = 500 * time.Millisecond },
			wantErr: "reconnect.max_delay must be >= reconnect.base_delay",
		},
		{
			name:    "zero max depth",
			mutate:  func(c *StreamerConfig) { c.Books.MaxDepth = -1 },
			wantErr: "books.max_depth must be >= 1",
		},
		{
			name:    "metrics port out of range",
			mutate:  func(c *StreamerConfig) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "bad log level",
			mutate:  func(c *StreamerConfig) { c.Logging.Level = "verbose" },
			wantErr: `logging.level must be debug, info, warn, or error, got "verbose"`,
		},
		{
			name:    "valid config",
			mutate:  func(c *StreamerConfig) {},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
