// bookwatch connects to the Polymarket CLOB WebSocket, subscribes to the
// given token ids, and streams reconstructed top-of-book state to console.
// Usage: go run ./cmd/bookwatch --config configs/streamer.local.yaml --tokens TOKEN1,TOKEN2
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"

	"github.com/clobsync/polymarket-data/internal/book"
	"github.com/clobsync/polymarket-data/internal/config"
	"github.com/clobsync/polymarket-data/internal/connection"
	"github.com/clobsync/polymarket-data/internal/feed"
	"github.com/clobsync/polymarket-data/internal/model"
	"github.com/clobsync/polymarket-data/internal/subscription"
)

type lateSender struct {
	mu sync.RWMutex
	s  subscription.Sender
}

func (l *lateSender) set(s subscription.Sender) {
	l.mu.Lock()
	l.s = s
	l.mu.Unlock()
}

func (l *lateSender) SendJSON(v any) bool {
	l.mu.RLock()
	s := l.s
	l.mu.RUnlock()
	if s == nil {
		return false
	}
	return s.SendJSON(v)
}

func main() {
	godotenv.Load()

	configPath := flag.String("config", "configs/streamer.local.yaml", "path to config file")
	tokens := flag.String("tokens", "", "comma-separated token ids to watch (required)")
	verbose := flag.Bool("verbose", false, "print full book JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	watched := splitTokens(*tokens)
	if len(watched) == 0 {
		logger.Error("no tokens given, use --tokens TOKEN1,TOKEN2")
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	books := book.NewRegistry(cfg.Books.MaxDepth)
	sender := &lateSender{}
	coord := subscription.NewCoordinator(subscription.Config{
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
	}, sender, logger)
	conn := connection.NewConn(connection.Config{
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
		AutoRestore:          true,
		RestoreSettleDelay:   cfg.Reconnect.RestoreSettleDelay,
	}, feed.NewRestorer(coord), logger)
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

	logger.Info("connecting", "ws_url", cfg.Feed.WSURL)
	if err := conn.Connect(ctx); err != nil {
		logger.Warn("initial connect failed, reconnection scheduled", "error", err)
	}

	ticket, err := coord.Subscribe(watched, subscription.Options{
		Channel:   "market",
		Immediate: true,
	})
	if err != nil {
		logger.Error("subscribe failed", "error", err)
		os.Exit(1)
	}
	go func() {
		awaitCtx, awaitCancel := context.WithTimeout(ctx, time.Minute)
		defer awaitCancel()
		if sub, err := ticket.Await(awaitCtx); err != nil {
			logger.Warn("subscription unresolved", "error", err)
		} else {
			logger.Info("subscription confirmed", "sub_id", sub.ID, "tokens", len(sub.Tokens))
		}
	}()

	go printBooks(ctx, dispatcher.Books(), *verbose)
	go printTrades(ctx, dispatcher.Trades())

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := dispatcher.Stats()
				logger.Info("stats",
					"conn_state", conn.State(),
					"received", stats.Received,
					"routed", stats.Routed,
					"parse_errors", stats.ParseErrors,
					"seq_gaps", stats.SeqGaps,
					"books", books.Len(),
				)
			}
		}
	}()

	logger.Info("watching books, press Ctrl+C to stop", "tokens", len(watched))

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down")
	dispatcher.Stop(shutdownCtx)
	coord.Dispose()
	conn.Dispose()
	logger.Info("shutdown complete")
}

func splitTokens(s string) []string {
	var out []string
	for _, tok := range strings.Split(s, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

func printBooks(ctx context.Context, queue *feed.Queue[feed.BookEvent], verbose bool) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			ev, ok := queue.TryPop()
			if !ok {
				time.Sleep(10 * time.Millisecond)
				continue
			}

			if verbose {
				data, _ := json.MarshalIndent(ev.Book, "", "  ")
				fmt.Printf("[BOOK] %s\n", data)
				continue
			}

			b := ev.Book
			if b.IsSnapshot {
				fmt.Printf("[SNAPSHOT] asset=%s bids=%d asks=%d bid=%.4f ask=%.4f mid=%.4f spread=%.4f\n",
					shortID(b.AssetID), len(b.Bids), len(b.Asks), b.BestBid, b.BestAsk, b.MidPrice, b.Spread)
			} else {
				fmt.Printf("[DELTA] asset=%s changes=%d bid=%.4f ask=%.4f mid=%.4f imbalance=%.2f\n",
					shortID(b.AssetID), len(ev.Changes), b.BestBid, b.BestAsk, b.MidPrice, b.VolumeImbalance)
			}
		}
	}
}

func printTrades(ctx context.Context, queue *feed.Queue[model.Trade]) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			tr, ok := queue.TryPop()
			if !ok {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			fmt.Printf("[TRADE] asset=%s side=%s price=%.4f size=%.2f\n",
				shortID(tr.AssetID), tr.Side, tr.Price, tr.Size)
		}
	}
}

// shortID trims long token ids for console output.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}
