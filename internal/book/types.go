package book

import (
	"time"

	"github.com/clobsync/polymarket-data/internal/model"
)

// Epsilon is the price-equality tolerance. Two levels whose prices differ by
// less than this are the same level.
const Epsilon = 1e-9

// DefaultMaxDepth bounds a side's level count when the caller passes 0.
const DefaultMaxDepth = 50

// Level is one price level on a side. Price, Size, and OrderCount come from
// the wire; the rest are derived on every mutation.
type Level struct {
	Price           float64
	Size            float64
	OrderCount      int
	CumulativeSize  float64 // running size from best to this level
	CumulativeValue float64 // running notional (price × size) from best
	PercentOfTotal  float64 // this level's share of the side's total volume
}

// Book is the reconstructed order book for one asset. Bids are strictly
// descending by price, asks strictly ascending. All derived fields are
// consistent with the current level lists; nothing is computed lazily.
type Book struct {
	AssetID string
	Bids    []Level
	Asks    []Level

	BestBid         float64
	BestAsk         float64
	MidPrice        float64 // 0 when either side is empty
	Spread          float64
	SpreadPercent   float64
	TotalBidVolume  float64
	TotalAskVolume  float64
	VolumeImbalance float64 // bid volume / ask volume; 1.0 when both empty

	IsSnapshot  bool   // true when the last applied message was a snapshot
	Sequence    int64  // opaque passthrough from the wire
	Hash        string // opaque passthrough from the wire
	UpdateCount int64
	LastUpdate  time.Time
}

// ChangeType classifies the effect of a delta on a level.
type ChangeType string

const (
	ChangeAdd    ChangeType = "add"
	ChangeUpdate ChangeType = "update"
	ChangeRemove ChangeType = "remove"
	ChangeNone   ChangeType = "none" // size-0 delta against an absent level
)

// LevelChange describes one level mutation produced by an update message.
type LevelChange struct {
	Side     model.Side
	Price    float64
	PrevSize float64
	NewSize  float64
	Change   ChangeType
}

// ImpactResult is the outcome of a market-impact walk.
type ImpactResult struct {
	AvgPrice      float64 // volume-weighted average fill price
	WorstPrice    float64 // worst price touched
	ImpactPercent float64 // deviation of AvgPrice from the best price, percent
	FilledSize    float64
}

// samePrice reports price equality within Epsilon.
func samePrice(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < Epsilon
}
