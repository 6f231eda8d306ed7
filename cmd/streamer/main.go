package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clobsync/polymarket-data/internal/book"
	"github.com/clobsync/polymarket-data/internal/config"
	"github.com/clobsync/polymarket-data/internal/connection"
	"github.com/clobsync/polymarket-data/internal/feed"
	"github.com/clobsync/polymarket-data/internal/metrics"
	"github.com/clobsync/polymarket-data/internal/subscription"
	"github.com/clobsync/polymarket-data/internal/version"
)

// deferredSender breaks the construction cycle between the coordinator and
// the connection it sends through.
type deferredSender struct {
	mu sync.RWMutex
	s  subscription.Sender
}

func (d *deferredSender) set(s subscription.Sender) {
	d.mu.Lock()
	d.s = s
	d.mu.Unlock()
}

func (d *deferredSender) SendJSON(v any) bool {
	d.mu.RLock()
	s := d.s
	d.mu.RUnlock()
	if s == nil {
		return false
	}
	return s.SendJSON(v)
}

func main() {
	godotenv.Load()

	configPath := flag.String("config", "configs/streamer.local.yaml", "path to config file")
	tokens := flag.String("tokens", "", "comma-separated token ids to subscribe on startup")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting streamer",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
		"ws_url", cfg.Feed.WSURL,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Assemble the pipeline. The coordinator sends through the connection,
	// and the connection restores through the coordinator, so the sender is
	// bound after both exist.
	books := book.NewRegistry(cfg.Books.MaxDepth)
	sender := &deferredSender{}
	coord := subscription.NewCoordinator(subscriptionConfig(cfg), sender, logger)
	conn := connection.NewConn(connectionConfig(cfg), feed.NewRestorer(coord), logger)
	sender.set(conn)
	dispatcher := feed.NewDispatcher(feed.Config{
		BookQueueSize:  cfg.Queues.Book,
		PriceQueueSize: cfg.Queues.Price,
		TradeQueueSize: cfg.Queues.Trade,
	}, conn.Messages(), coord, books, logger)

	if err := coord.Start(ctx); err != nil {
		logger.Error("failed to start coordinator", "error", err)
		os.Exit(1)
	}
	if err := dispatcher.Start(ctx); err != nil {
		logger.Error("failed to start dispatcher", "error", err)
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = startMetricsServer(cfg, conn, coord, books, logger)
	}
	go observe(ctx, conn, coord, books, dispatcher)

	if err := conn.Connect(ctx); err != nil {
		// The resilience layer keeps retrying on its own.
		logger.Warn("initial connect failed, reconnection scheduled", "error", err)
	}

	if *tokens != "" {
		subscribeStartupTokens(coord, strings.Split(*tokens, ","), logger)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if metricsServer != nil {
		metricsServer.Shutdown(shutdownCtx)
	}
	dispatcher.Stop(shutdownCtx)
	coord.Dispose()
	conn.Dispose()
	logger.Info("streamer stopped")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func connectionConfig(cfg *config.StreamerConfig) connection.Config {
	return connection.Config{
		Client: connection.ClientConfig{
			URL:              cfg.Feed.WSURL,
			HandshakeTimeout: cfg.Feed.HandshakeTimeout,
			PingInterval:     cfg.Feed.PingInterval,
			PingTimeout:      cfg.Feed.PingTimeout,
			WriteTimeout:     cfg.Feed.WriteTimeout,
			BufferSize:       cfg.Feed.BufferSize,
		},
		ReconnectBaseDelay:   cfg.Reconnect.BaseDelay,
		ServerErrorDelay:     cfg.Reconnect.ServerErrorDelay,
		RestartDelay:         cfg.Reconnect.RestartDelay,
		MaxReconnectDelay:    cfg.Reconnect.MaxDelay,
		BackoffMultiplier:    cfg.Reconnect.Multiplier,
		Jitter:               cfg.Reconnect.Jitter,
		MaxReconnectAttempts: cfg.Reconnect.MaxAttempts,
		AutoRestore:          cfg.Reconnect.AutoRestore == nil || *cfg.Reconnect.AutoRestore,
		RestoreSettleDelay:   cfg.Reconnect.RestoreSettleDelay,
	}
}

func subscriptionConfig(cfg *config.StreamerConfig) subscription.Config {
	return subscription.Config{
		MaxTokensPerSubscription:      cfg.Subscriptions.MaxTokensPerSubscription,
		MaxSubscriptionsPerConnection: cfg.Subscriptions.MaxPerConnection,
		BatchSize:                     cfg.Subscriptions.BatchSize,
		BatchDelay:                    cfg.Subscriptions.BatchDelay,
		SubscriptionTimeout:           cfg.Subscriptions.ConfirmTimeout,
		MaxRetries:                    cfg.Subscriptions.MaxRetries,
		InitialRetryDelay:             cfg.Subscriptions.InitialRetryDelay,
		RetryDelayMultiplier:          cfg.Subscriptions.RetryDelayMultiplier,
		StaleCheckInterval:            cfg.Subscriptions.StaleCheckInterval,
		StaleSubscriptionThreshold:    cfg.Subscriptions.StaleThreshold,
	}
}

func subscribeStartupTokens(coord *subscription.Coordinator, tokens []string, logger *slog.Logger) {
	cleaned := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if tok = strings.TrimSpace(tok); tok != "" {
			cleaned = append(cleaned, tok)
		}
	}
	if len(cleaned) == 0 {
		return
	}
	ticket, err := coord.Subscribe(cleaned, subscription.Options{Channel: "market"})
	if err != nil {
		logger.Error("startup subscribe failed", "error", err, "tokens", len(cleaned))
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if sub, err := ticket.Await(ctx); err != nil {
			logger.Warn("startup subscription unresolved", "error", err)
		} else {
			logger.Info("startup subscription confirmed",
				"sub_id", sub.ID,
				"tokens", len(sub.Tokens),
			)
		}
	}()
}

func startMetricsServer(cfg *config.StreamerConfig, conn *connection.Conn, coord *subscription.Coordinator, books *book.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		health := coord.Health()
		payload := map[string]any{
			"status":           health.Status,
			"score":            health.Score,
			"recommendations":  health.Recommendations,
			"connection_state": conn.State(),
			"reconnection":     conn.ReconnectionState(),
			"books_tracked":    books.Len(),
			"subscriptions":    health.Counts,
		}
		w.Header().Set("Content-Type", "application/json")
		if health.Status == subscription.HealthUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(payload)
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: mux,
	}
	go func() {
		logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return server
}

// observe mirrors runtime counters into Prometheus and consumes the
// connection's lifecycle feeds.
func observe(ctx context.Context, conn *connection.Conn, coord *subscription.Coordinator, books *book.Registry, dispatcher *feed.Dispatcher) {
	states, cancelStates := conn.StateChanges().Subscribe()
	defer cancelStates()
	exhaustions, cancelExhaustions := conn.Exhaustions().Subscribe()
	defer cancelExhaustions()
	restores, cancelRestores := conn.RestoreResults().Subscribe()
	defer cancelRestores()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	var lastAttempts int

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-states:
			if !ok {
				return
			}
			metrics.SetConnectionState(ev.To)
		case _, ok := <-exhaustions:
			if !ok {
				return
			}
			metrics.ReconnectExhaustions.Inc()
		case ev, ok := <-restores:
			if !ok {
				return
			}
			outcome := "success"
			if !ev.Success {
				outcome = "failure"
			}
			metrics.RestoredSubscriptions.WithLabelValues(outcome).Inc()
		case <-ticker.C:
			stats := dispatcher.Stats()
			metrics.MessagesReceived.Set(float64(stats.Received))
			metrics.MessagesRouted.Set(float64(stats.Routed))
			metrics.ParseErrors.Set(float64(stats.ParseErrors))
			metrics.SequenceGaps.Set(float64(stats.SeqGaps))
			metrics.QueueDepth.WithLabelValues("book").Set(float64(stats.BookQueue.Count))
			metrics.QueueDepth.WithLabelValues("price").Set(float64(stats.PriceQueue.Count))
			metrics.QueueDepth.WithLabelValues("trade").Set(float64(stats.TradeQueue.Count))

			counts := coord.Counts()
			metrics.Subscriptions.WithLabelValues("pending").Set(float64(counts.Pending))
			metrics.Subscriptions.WithLabelValues("active").Set(float64(counts.Active))
			metrics.Subscriptions.WithLabelValues("paused").Set(float64(counts.Paused))
			metrics.Subscriptions.WithLabelValues("error").Set(float64(counts.Error))
			metrics.SubscriptionHealth.Set(float64(coord.Health().Score))
			metrics.BooksTracked.Set(float64(books.Len()))

			if rs := conn.ReconnectionState(); rs.TotalAttempts > lastAttempts {
				metrics.ReconnectAttempts.Add(float64(rs.TotalAttempts - lastAttempts))
				lastAttempts = rs.TotalAttempts
			}
		}
	}
}
