package book

import (
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/clobsync/polymarket-data/internal/model"
)

// ParseError is a structured wire-level parse failure. Malformed messages
// never mutate book state.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse book message: %s: %s", e.Field, e.Reason)
}

// wireNumber accepts a JSON number or a numeric string. Polymarket quotes
// prices and sizes as strings.
type wireNumber float64

func (n *wireNumber) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		return fmt.Errorf("empty number")
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		s = strings.TrimSpace(str)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	*n = wireNumber(v)
	return nil
}

// wireLevel carries the accepted field aliases for one level. Aliases are
// resolved in a fixed order: price before p, size before s before quantity,
// count before num_orders.
type wireLevel struct {
	Price     *wireNumber `json:"price"`
	P         *wireNumber `json:"p"`
	Size      *wireNumber `json:"size"`
	S         *wireNumber `json:"s"`
	Quantity  *wireNumber `json:"quantity"`
	Count     *int        `json:"count"`
	NumOrders *int        `json:"num_orders"`
}

func (w wireLevel) toLevel() (Level, error) {
	price := firstNumber(w.Price, w.P)
	if price == nil {
		return Level{}, &ParseError{Field: "price", Reason: "missing or unparseable"}
	}
	size := firstNumber(w.Size, w.S, w.Quantity)
	if size == nil {
		return Level{}, &ParseError{Field: "size", Reason: "missing or unparseable"}
	}
	if *size < 0 {
		return Level{}, &ParseError{Field: "size", Reason: "negative"}
	}

	lv := Level{Price: float64(*price), Size: float64(*size)}
	if w.Count != nil {
		lv.OrderCount = *w.Count
	} else if w.NumOrders != nil {
		lv.OrderCount = *w.NumOrders
	}
	return lv, nil
}

func firstNumber(candidates ...*wireNumber) *float64 {
	for _, c := range candidates {
		if c != nil {
			v := float64(*c)
			return &v
		}
	}
	return nil
}

// wireDelta is one entry of a message's deltas array.
type wireDelta struct {
	Side  string      `json:"side"`
	Price *wireNumber `json:"price"`
	Size  *wireNumber `json:"size"`
}

// wireUpdate is the book/book_update/orderbook message shape.
type wireUpdate struct {
	Type       string      `json:"type"`
	AssetID    string      `json:"asset_id"`
	Market     string      `json:"market"`
	IsSnapshot *bool       `json:"is_snapshot"`
	Bids       []wireLevel `json:"bids"`
	Buys       []wireLevel `json:"buys"`
	Asks       []wireLevel `json:"asks"`
	Sells      []wireLevel `json:"sells"`
	Deltas     []wireDelta `json:"deltas"`
	Hash       string      `json:"hash"`
	Sequence   *wireNumber `json:"sequence"`
}

// ParseUpdateMessage parses a raw book message and applies it to a copy of
// existing (which may be nil for a fresh asset). It returns the resulting
// book plus the individual level changes, for change-feed consumers. The
// input book is never mutated.
func ParseUpdateMessage(raw []byte, existing *Book, maxDepth int) (*Book, []LevelChange, error) {
	var wire wireUpdate
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, nil, &ParseError{Field: "message", Reason: err.Error()}
	}

	assetID := wire.AssetID
	if assetID == "" {
		assetID = wire.Market
	}
	if assetID == "" {
		return nil, nil, &ParseError{Field: "asset_id", Reason: "missing"}
	}

	b := existing.Clone()
	if b == nil {
		b = NewBook(assetID)
	}

	if isSnapshotMessage(wire) {
		return applyWireSnapshot(b, wire, maxDepth)
	}
	return applyWireDeltas(b, wire, maxDepth)
}

// isSnapshotMessage decides snapshot vs delta handling. An explicit
// is_snapshot flag wins; otherwise "book"/"orderbook" messages are full
// snapshots and "book_update" is incremental.
func isSnapshotMessage(wire wireUpdate) bool {
	if wire.IsSnapshot != nil {
		return *wire.IsSnapshot
	}
	return wire.Type == string(model.TypeBook) || wire.Type == string(model.TypeOrderbook)
}

func applyWireSnapshot(b *Book, wire wireUpdate, maxDepth int) (*Book, []LevelChange, error) {
	bids, err := toLevels(pickSide(wire.Bids, wire.Buys))
	if err != nil {
		return nil, nil, err
	}
	asks, err := toLevels(pickSide(wire.Asks, wire.Sells))
	if err != nil {
		return nil, nil, err
	}

	prevBids := append([]Level(nil), b.Bids...)
	prevAsks := append([]Level(nil), b.Asks...)

	b.ApplySnapshot(bids, asks, maxDepth)
	applyPassthrough(b, wire)

	changes := sideDiff(prevBids, b.Bids, model.SideBid)
	changes = append(changes, sideDiff(prevAsks, b.Asks, model.SideAsk)...)
	return b, changes, nil
}

func applyWireDeltas(b *Book, wire wireUpdate, maxDepth int) (*Book, []LevelChange, error) {
	var changes []LevelChange

	apply := func(side model.Side, price, size float64) {
		prev, change := b.ApplyDelta(side, price, size, maxDepth)
		if change == ChangeNone {
			return
		}
		changes = append(changes, LevelChange{
			Side:     side,
			Price:    price,
			PrevSize: prev,
			NewSize:  size,
			Change:   change,
		})
	}

	for i, d := range wire.Deltas {
		side, ok := model.NormalizeSide(d.Side)
		if !ok {
			return nil, nil, &ParseError{Field: fmt.Sprintf("deltas[%d].side", i), Reason: "unknown side " + strconv.Quote(d.Side)}
		}
		if d.Price == nil {
			return nil, nil, &ParseError{Field: fmt.Sprintf("deltas[%d].price", i), Reason: "missing or unparseable"}
		}
		if d.Size == nil {
			return nil, nil, &ParseError{Field: fmt.Sprintf("deltas[%d].size", i), Reason: "missing or unparseable"}
		}
		if *d.Size < 0 {
			return nil, nil, &ParseError{Field: fmt.Sprintf("deltas[%d].size", i), Reason: "negative"}
		}
		apply(side, float64(*d.Price), float64(*d.Size))
	}

	// Incremental messages may also carry level lists; each entry is an upsert.
	for _, pair := range []struct {
		side   model.Side
		levels []wireLevel
	}{
		{model.SideBid, pickSide(wire.Bids, wire.Buys)},
		{model.SideAsk, pickSide(wire.Asks, wire.Sells)},
	} {
		for _, wl := range pair.levels {
			lv, err := wl.toLevel()
			if err != nil {
				return nil, nil, err
			}
			apply(pair.side, lv.Price, lv.Size)
		}
	}

	applyPassthrough(b, wire)
	return b, changes, nil
}

func applyPassthrough(b *Book, wire wireUpdate) {
	if wire.Hash != "" {
		b.Hash = wire.Hash
	}
	if wire.Sequence != nil {
		b.Sequence = int64(*wire.Sequence)
	}
}

func pickSide(primary, fallback []wireLevel) []wireLevel {
	if len(primary) > 0 {
		return primary
	}
	return fallback
}

func toLevels(wires []wireLevel) ([]Level, error) {
	out := make([]Level, 0, len(wires))
	for _, w := range wires {
		lv, err := w.toLevel()
		if err != nil {
			return nil, err
		}
		out = append(out, lv)
	}
	return out, nil
}

// sideDiff lists the per-level changes between two versions of one side.
func sideDiff(prev, next []Level, side model.Side) []LevelChange {
	var changes []LevelChange

	find := func(levels []Level, price float64) (Level, bool) {
		for _, lv := range levels {
			if samePrice(lv.Price, price) {
				return lv, true
			}
		}
		return Level{}, false
	}

	for _, lv := range next {
		old, ok := find(prev, lv.Price)
		switch {
		case !ok:
			changes = append(changes, LevelChange{Side: side, Price: lv.Price, NewSize: lv.Size, Change: ChangeAdd})
		case old.Size != lv.Size:
			changes = append(changes, LevelChange{Side: side, Price: lv.Price, PrevSize: old.Size, NewSize: lv.Size, Change: ChangeUpdate})
		}
	}
	for _, old := range prev {
		if _, ok := find(next, old.Price); !ok {
			changes = append(changes, LevelChange{Side: side, Price: old.Price, PrevSize: old.Size, Change: ChangeRemove})
		}
	}
	return changes
}
