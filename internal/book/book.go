package book

import (
	"math"
	"sort"
	"time"

	"github.com/clobsync/polymarket-data/internal/model"
)

// NewBook returns an empty book for the given asset with derived fields in
// their empty-book state.
func NewBook(assetID string) *Book {
	b := &Book{AssetID: assetID}
	b.recompute()
	return b
}

// Clone returns a deep copy. Mutating the copy never affects the original.
func (b *Book) Clone() *Book {
	if b == nil {
		return nil
	}
	dup := *b
	dup.Bids = append([]Level(nil), b.Bids...)
	dup.Asks = append([]Level(nil), b.Asks...)
	return &dup
}

// ApplySnapshot replaces both sides wholesale. Input levels may arrive in any
// order and may repeat a price; the last occurrence wins. Each side is sorted
// and trimmed to maxDepth before derived fields are recomputed.
func (b *Book) ApplySnapshot(bids, asks []Level, maxDepth int) {
	if maxDepth < 1 {
		maxDepth = DefaultMaxDepth
	}

	b.Bids = normalizeSide(bids, model.SideBid, maxDepth)
	b.Asks = normalizeSide(asks, model.SideAsk, maxDepth)
	b.IsSnapshot = true
	b.touch()
}

// ApplyDelta upserts a single level. A zero size removes the level if present
// and is a no-op when absent. Returns the level's previous size and the
// classification of what happened.
func (b *Book) ApplyDelta(side model.Side, price, size float64, maxDepth int) (prevSize float64, change ChangeType) {
	if maxDepth < 1 {
		maxDepth = DefaultMaxDepth
	}

	levels := b.side(side)
	idx := -1
	for i := range levels {
		if samePrice(levels[i].Price, price) {
			idx = i
			break
		}
	}

	switch {
	case size == 0 && idx < 0:
		return 0, ChangeNone
	case size == 0:
		prevSize = levels[idx].Size
		levels = append(levels[:idx], levels[idx+1:]...)
		change = ChangeRemove
	case idx < 0:
		levels = append(levels, Level{Price: price, Size: size})
		change = ChangeAdd
	default:
		prevSize = levels[idx].Size
		levels[idx].Size = size
		change = ChangeUpdate
	}

	b.setSide(side, normalizeSide(levels, side, maxDepth))
	b.IsSnapshot = false
	b.touch()
	return prevSize, change
}

// side returns the level slice for the given side.
func (b *Book) side(side model.Side) []Level {
	if side == model.SideBid {
		return b.Bids
	}
	return b.Asks
}

func (b *Book) setSide(side model.Side, levels []Level) {
	if side == model.SideBid {
		b.Bids = levels
	} else {
		b.Asks = levels
	}
}

func (b *Book) touch() {
	b.UpdateCount++
	b.LastUpdate = time.Now()
	b.recompute()
}

// normalizeSide sorts (bids descending, asks ascending), de-duplicates by
// price keeping the last occurrence, and trims the worst-priced excess
// beyond maxDepth.
func normalizeSide(levels []Level, side model.Side, maxDepth int) []Level {
	if len(levels) == 0 {
		return nil
	}

	// Dedupe by price, last occurrence wins.
	deduped := make([]Level, 0, len(levels))
	for _, lv := range levels {
		replaced := false
		for i := range deduped {
			if samePrice(deduped[i].Price, lv.Price) {
				deduped[i] = lv
				replaced = true
				break
			}
		}
		if !replaced {
			deduped = append(deduped, lv)
		}
	}

	if side == model.SideBid {
		sort.Slice(deduped, func(i, j int) bool { return deduped[i].Price > deduped[j].Price })
	} else {
		sort.Slice(deduped, func(i, j int) bool { return deduped[i].Price < deduped[j].Price })
	}

	if len(deduped) > maxDepth {
		deduped = deduped[:maxDepth]
	}
	return deduped
}

// recompute rebuilds every derived field from the current level lists.
func (b *Book) recompute() {
	b.TotalBidVolume = accumulate(b.Bids)
	b.TotalAskVolume = accumulate(b.Asks)

	b.BestBid = 0
	if len(b.Bids) > 0 {
		b.BestBid = b.Bids[0].Price
	}
	b.BestAsk = 0
	if len(b.Asks) > 0 {
		b.BestAsk = b.Asks[0].Price
	}

	if len(b.Bids) > 0 && len(b.Asks) > 0 {
		b.MidPrice = (b.BestBid + b.BestAsk) / 2
		b.Spread = b.BestAsk - b.BestBid
		if b.MidPrice > 0 {
			b.SpreadPercent = b.Spread / b.MidPrice * 100
		} else {
			b.SpreadPercent = 0
		}
	} else {
		b.MidPrice = 0
		b.Spread = 0
		b.SpreadPercent = 0
	}

	switch {
	case b.TotalBidVolume == 0 && b.TotalAskVolume == 0:
		b.VolumeImbalance = 1.0
	case b.TotalAskVolume == 0:
		b.VolumeImbalance = math.Inf(1)
	default:
		b.VolumeImbalance = b.TotalBidVolume / b.TotalAskVolume
	}
}

// accumulate fills the derived fields of each level, best to worst, and
// returns the side's total volume.
func accumulate(levels []Level) float64 {
	var total float64
	for i := range levels {
		total += levels[i].Size
	}

	var cumSize, cumValue float64
	for i := range levels {
		cumSize += levels[i].Size
		cumValue += levels[i].Size * levels[i].Price
		levels[i].CumulativeSize = cumSize
		levels[i].CumulativeValue = cumValue
		if total > 0 {
			levels[i].PercentOfTotal = levels[i].Size / total * 100
		} else {
			levels[i].PercentOfTotal = 0
		}
	}
	return total
}
