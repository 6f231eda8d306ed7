package feed

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/clobsync/polymarket-data/internal/book"
	"github.com/clobsync/polymarket-data/internal/connection"
	"github.com/clobsync/polymarket-data/internal/events"
	"github.com/clobsync/polymarket-data/internal/model"
	"github.com/clobsync/polymarket-data/internal/subscription"
)

// BookEvent is one applied book message: the post-apply state plus the
// per-level changes the message caused.
type BookEvent struct {
	Book       *book.Book
	Changes    []book.LevelChange
	ReceivedAt time.Time
}

// Config holds dispatcher queue sizes.
type Config struct {
	BookQueueSize  int
	PriceQueueSize int
	TradeQueueSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BookQueueSize:  1024,
		PriceQueueSize: 1024,
		TradeQueueSize: 256,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.BookQueueSize == 0 {
		c.BookQueueSize = d.BookQueueSize
	}
	if c.PriceQueueSize == 0 {
		c.PriceQueueSize = d.PriceQueueSize
	}
	if c.TradeQueueSize == 0 {
		c.TradeQueueSize = d.TradeQueueSize
	}
}

// Stats are dispatcher counters.
type Stats struct {
	Received      int64
	Routed        int64
	Confirmations int64
	ParseErrors   int64
	Unknown       int64
	SeqGaps       int64
	BookQueue     QueueStats
	PriceQueue    QueueStats
	TradeQueue    QueueStats
}

// Dispatcher drains the connection's frame stream and routes each message.
type Dispatcher struct {
	cfg    Config
	logger *slog.Logger

	input <-chan connection.TimestampedMessage
	coord *subscription.Coordinator
	books *book.Registry

	bookQueue  *Queue[BookEvent]
	priceQueue *Queue[model.PriceChange]
	tradeQueue *Queue[model.Trade]

	diagnostics *events.Feed[events.Diagnostic]

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	seq           map[string]int64 // per-asset last sequence number
	received      int64
	routed        int64
	confirmations int64
	parseErrors   int64
	unknown       int64
	seqGaps       int64
}

// NewDispatcher wires the classifier between a connection's message stream
// and the coordinator plus book registry.
func NewDispatcher(cfg Config, input <-chan connection.TimestampedMessage, coord *subscription.Coordinator, books *book.Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	return &Dispatcher{
		cfg:         cfg,
		logger:      logger,
		input:       input,
		coord:       coord,
		books:       books,
		bookQueue:   NewQueue[BookEvent](cfg.BookQueueSize),
		priceQueue:  NewQueue[model.PriceChange](cfg.PriceQueueSize),
		tradeQueue:  NewQueue[model.Trade](cfg.TradeQueueSize),
		diagnostics: events.NewFeed[events.Diagnostic](0),
		seq:         make(map[string]int64),
	}
}

// Output queues and feeds.
func (d *Dispatcher) Books() *Queue[BookEvent] { return d.bookQueue }

func (d *Dispatcher) PriceChanges() *Queue[model.PriceChange] { return d.priceQueue }

func (d *Dispatcher) Trades() *Queue[model.Trade] { return d.tradeQueue }

func (d *Dispatcher) Diagnostics() *events.Feed[events.Diagnostic] { return d.diagnostics }

// Start launches the routing loop.
func (d *Dispatcher) Start(ctx context.Context) error {
	ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(1)
	go d.routeLoop(ctx)

	d.logger.Info("feed dispatcher started",
		"book_queue", d.cfg.BookQueueSize,
		"price_queue", d.cfg.PriceQueueSize,
		"trade_queue", d.cfg.TradeQueueSize,
	)
	return nil
}

// Stop shuts the routing loop down and closes the output queues.
func (d *Dispatcher) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("feed dispatcher stopped")
	case <-ctx.Done():
		d.logger.Warn("feed dispatcher stop timed out")
	}

	d.bookQueue.Close()
	d.priceQueue.Close()
	d.tradeQueue.Close()
	d.diagnostics.Close()
	return nil
}

// Stats returns current counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Received:      d.received,
		Routed:        d.routed,
		Confirmations: d.confirmations,
		ParseErrors:   d.parseErrors,
		Unknown:       d.unknown,
		SeqGaps:       d.seqGaps,
		BookQueue:     d.bookQueue.Stats(),
		PriceQueue:    d.priceQueue.Stats(),
		TradeQueue:    d.tradeQueue.Stats(),
	}
}

func (d *Dispatcher) routeLoop(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-d.input:
			if !ok {
				d.logger.Info("input channel closed")
				return
			}
			d.route(raw)
		}
	}
}

// wireEnvelope carries the fields shared across message kinds. Book feeds
// use event_type where subscription control frames use type.
type wireEnvelope struct {
	Type      string          `json:"type"`
	EventType string          `json:"event_type"`
	AssetID   string          `json:"asset_id"`
	Market    string          `json:"market"`
	ID        string          `json:"id"`
	AssetIDs  []string        `json:"assets_ids"`
	Sequence  json.RawMessage `json:"sequence"` // number or numeric string
}

func (e *wireEnvelope) sequence() int64 {
	s := string(e.Sequence)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func (e *wireEnvelope) messageType() model.MessageType {
	if e.Type != "" {
		return model.MessageType(e.Type)
	}
	return model.MessageType(e.EventType)
}

func (e *wireEnvelope) asset() string {
	if e.AssetID != "" {
		return e.AssetID
	}
	return e.Market
}

// route classifies and handles one frame.
func (d *Dispatcher) route(raw connection.TimestampedMessage) {
	d.count(func() { d.received++ })

	var env wireEnvelope
	if err := json.Unmarshal(raw.Data, &env); err != nil {
		d.dropFrame("envelope", "", err)
		return
	}

	switch t := env.messageType(); {
	case t == model.TypeSubscribed:
		d.handleConfirmation(env)

	case t == model.TypeUnsubscribed:
		d.handleUnsubscribed(env)

	case t.IsBook():
		d.handleBook(env, raw)

	case t == model.TypePriceChange:
		d.handlePriceChange(env, raw)

	case t == model.TypeLastTradePrice:
		d.handleTrade(env, raw)

	default:
		d.count(func() { d.unknown++ })
		d.logger.Debug("skipping message type", "type", t)
	}
}

func (d *Dispatcher) handleConfirmation(env wireEnvelope) {
	tokens := env.AssetIDs
	if len(tokens) == 0 && env.Market != "" {
		tokens = []string{env.Market}
	}
	if d.coord != nil {
		d.coord.HandleConfirmation(env.ID, tokens)
	}
	d.count(func() { d.confirmations++ })
}

// handleUnsubscribed drops the books for tokens the venue confirmed it will
// no longer stream. Stale state must not survive an unsubscribe.
func (d *Dispatcher) handleUnsubscribed(env wireEnvelope) {
	tokens := env.AssetIDs
	if len(tokens) == 0 && env.Market != "" {
		tokens = []string{env.Market}
	}
	for _, tok := range tokens {
		d.books.Remove(tok)
	}
	d.logger.Debug("unsubscribe acknowledged", "tokens", len(tokens))
}

func (d *Dispatcher) handleBook(env wireEnvelope, raw connection.TimestampedMessage) {
	asset := env.asset()

	d.trackSequence(asset, env.sequence())

	b, changes, err := d.books.Apply(raw.Data)
	if err != nil {
		d.dropFrame("book", asset, err)
		return
	}

	if d.coord != nil {
		d.coord.MarkActivity(asset)
	}
	d.bookQueue.Push(BookEvent{Book: b, Changes: changes, ReceivedAt: raw.ReceivedAt})
	d.count(func() { d.routed++ })
}

// trackSequence raises an advisory diagnostic on a per-asset sequence gap.
// The book itself is still applied; Polymarket books are self-healing via
// snapshots.
func (d *Dispatcher) trackSequence(asset string, sequence int64) {
	if asset == "" || sequence <= 0 {
		return
	}

	d.mu.Lock()
	last := d.seq[asset]
	d.seq[asset] = sequence
	gap := last > 0 && sequence > last+1
	if gap {
		d.seqGaps++
	}
	d.mu.Unlock()

	if gap {
		d.diagnostics.Publish(events.Diagnostic{
			Severity: events.SeverityWarning,
			Code:     "seq_gap",
			Message:  "sequence gap before book message",
			AssetID:  asset,
			At:       time.Now(),
		})
		d.logger.Warn("sequence gap",
			"asset_id", asset,
			"missed", sequence-last-1,
		)
	}
}

type wirePriceChange struct {
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`
	Timestamp string `json:"timestamp"`
	Changes   []struct {
		Price string `json:"price"`
		Side  string `json:"side"`
		Size  string `json:"size"`
	} `json:"changes"`
	Price string `json:"price"`
	Side  string `json:"side"`
	Size  string `json:"size"`
}

func (d *Dispatcher) handlePriceChange(env wireEnvelope, raw connection.TimestampedMessage) {
	var wire wirePriceChange
	if err := json.Unmarshal(raw.Data, &wire); err != nil {
		d.dropFrame("price_change", env.asset(), err)
		return
	}
	asset := wire.AssetID
	if asset == "" {
		asset = wire.Market
	}
	ts := parseWireTimestamp(wire.Timestamp)

	// Flat single-change frames carry price/side/size at the top level.
	changes := wire.Changes
	if len(changes) == 0 && wire.Price != "" {
		changes = []struct {
			Price string `json:"price"`
			Side  string `json:"side"`
			Size  string `json:"size"`
		}{{Price: wire.Price, Side: wire.Side, Size: wire.Size}}
	}

	routed := false
	for _, ch := range changes {
		side, ok := model.NormalizeSide(ch.Side)
		if !ok {
			d.dropFrame("price_change", asset, &book.ParseError{Field: "side", Reason: "unrecognized value " + ch.Side})
			continue
		}
		price, err := strconv.ParseFloat(ch.Price, 64)
		if err != nil {
			d.dropFrame("price_change", asset, err)
			continue
		}
		size := 0.0
		if ch.Size != "" {
			if size, err = strconv.ParseFloat(ch.Size, 64); err != nil {
				d.dropFrame("price_change", asset, err)
				continue
			}
		}
		d.priceQueue.Push(model.PriceChange{
			AssetID:    asset,
			Side:       side,
			Price:      price,
			Size:       size,
			Timestamp:  ts,
			ReceivedAt: raw.ReceivedAt,
		})
		routed = true
	}

	if routed {
		if d.coord != nil {
			d.coord.MarkActivity(asset)
		}
		d.count(func() { d.routed++ })
	}
}

type wireTrade struct {
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`
	Price     string `json:"price"`
	Side      string `json:"side"`
	Size      string `json:"size"`
	Timestamp string `json:"timestamp"`
}

func (d *Dispatcher) handleTrade(env wireEnvelope, raw connection.TimestampedMessage) {
	var wire wireTrade
	if err := json.Unmarshal(raw.Data, &wire); err != nil {
		d.dropFrame("last_trade_price", env.asset(), err)
		return
	}
	asset := wire.AssetID
	if asset == "" {
		asset = wire.Market
	}
	price, err := strconv.ParseFloat(wire.Price, 64)
	if err != nil {
		d.dropFrame("last_trade_price", asset, err)
		return
	}
	size := 0.0
	if wire.Size != "" {
		if size, err = strconv.ParseFloat(wire.Size, 64); err != nil {
			d.dropFrame("last_trade_price", asset, err)
			return
		}
	}
	side, _ := model.NormalizeSide(wire.Side)

	d.tradeQueue.Push(model.Trade{
		AssetID:    asset,
		Price:      price,
		Size:       size,
		Side:       side,
		Timestamp:  parseWireTimestamp(wire.Timestamp),
		ReceivedAt: raw.ReceivedAt,
	})
	if d.coord != nil {
		d.coord.MarkActivity(asset)
	}
	d.count(func() { d.routed++ })
}

func (d *Dispatcher) dropFrame(kind, asset string, err error) {
	d.count(func() { d.parseErrors++ })
	d.diagnostics.Publish(events.Diagnostic{
		Severity: events.SeverityWarning,
		Code:     "parse_error",
		Message:  kind + ": " + err.Error(),
		AssetID:  asset,
		At:       time.Now(),
	})
	d.logger.Warn("dropping malformed frame", "kind", kind, "asset_id", asset, "error", err)
}

func (d *Dispatcher) count(fn func()) {
	d.mu.Lock()
	fn()
	d.mu.Unlock()
}

// parseWireTimestamp reads a millisecond epoch string; zero time on failure.
func parseWireTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
