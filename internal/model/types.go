package model

import "time"

// Side identifies one side of an order book.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBid {
		return SideAsk
	}
	return SideBid
}

// NormalizeSide maps the wire spellings ("BUY"/"SELL", "buy"/"sell",
// "bid"/"ask") onto a canonical Side. ok is false for anything else.
func NormalizeSide(raw string) (Side, bool) {
	switch raw {
	case "bid", "BID", "buy", "BUY", "bids", "buys":
		return SideBid, true
	case "ask", "ASK", "sell", "SELL", "asks", "sells":
		return SideAsk, true
	}
	return "", false
}

// MessageType classifies a server message envelope.
type MessageType string

const (
	TypeBook           MessageType = "book"
	TypeBookUpdate     MessageType = "book_update"
	TypeOrderbook      MessageType = "orderbook"
	TypePriceChange    MessageType = "price_change"
	TypeLastTradePrice MessageType = "last_trade_price"
	TypeSubscribed     MessageType = "subscribed"
	TypeUnsubscribed   MessageType = "unsubscribed"
)

// IsBook reports whether the type carries order book data.
func (t MessageType) IsBook() bool {
	return t == TypeBook || t == TypeBookUpdate || t == TypeOrderbook
}

// Envelope is a classified server message handed to downstream consumers.
// Raw holds the original frame; payload parsing is the consumer's job.
type Envelope struct {
	Type       MessageType
	AssetID    string    // empty for confirmation envelopes
	Raw        []byte    // original frame bytes
	ReceivedAt time.Time // local timestamp when the frame was read
	SeqGap     bool      // true if a sequence gap preceded this message
	GapSize    int64     // number of missed sequence numbers (0 if none)
}

// Confirmation is a parsed subscribe/unsubscribe acknowledgment.
type Confirmation struct {
	Type       MessageType // TypeSubscribed or TypeUnsubscribed
	ID         string      // client-assigned correlation id, may be empty
	AssetIDs   []string    // tokens the server acknowledged
	ReceivedAt time.Time
}

// PriceChange is an incremental top-of-book price move for an asset.
type PriceChange struct {
	AssetID    string
	Side       Side
	Price      float64
	Size       float64 // 0 means the level was cleared
	Timestamp  time.Time
	ReceivedAt time.Time
}

// Trade is a parsed last-trade-price message.
type Trade struct {
	AssetID    string
	Price      float64
	Size       float64
	Side       Side // taker side
	Timestamp  time.Time
	ReceivedAt time.Time
}
