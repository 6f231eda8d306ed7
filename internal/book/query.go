package book

import "github.com/clobsync/polymarket-data/internal/model"

// CumulativeVolumeAtPrice returns the total volume available on a side at
// the given price or better (bids at or above, asks at or below). ok is
// false when no level qualifies.
func CumulativeVolumeAtPrice(b *Book, side model.Side, price float64) (volume float64, ok bool) {
	for _, lv := range b.side(side) {
		if side == model.SideBid && lv.Price < price && !samePrice(lv.Price, price) {
			break
		}
		if side == model.SideAsk && lv.Price > price && !samePrice(lv.Price, price) {
			break
		}
		volume = lv.CumulativeSize
		ok = true
	}
	return volume, ok
}

// PriceForVolume returns the worst price that must be reached to source the
// requested volume from a side, walking best to worst. ok is false when the
// side's total volume is insufficient.
func PriceForVolume(b *Book, side model.Side, volume float64) (price float64, ok bool) {
	if volume <= 0 {
		return 0, false
	}
	for _, lv := range b.side(side) {
		if lv.CumulativeSize+Epsilon >= volume {
			return lv.Price, true
		}
	}
	return 0, false
}

// MarketImpact estimates the cost of consuming size from the book. side is
// the order's side: a bid (buy) consumes asks, an ask (sell) consumes bids.
// Levels are walked in price order accumulating fills until the order is
// filled; nil when liquidity runs out first.
func MarketImpact(b *Book, side model.Side, size float64) *ImpactResult {
	if size <= 0 {
		return nil
	}

	levels := b.side(side.Opposite())
	if len(levels) == 0 {
		return nil
	}

	best := levels[0].Price
	remaining := size
	var notional, worst float64

	for _, lv := range levels {
		fill := lv.Size
		if fill > remaining {
			fill = remaining
		}
		notional += fill * lv.Price
		worst = lv.Price
		remaining -= fill
		if remaining <= 0 {
			break
		}
	}
	if remaining > Epsilon {
		return nil // insufficient liquidity
	}

	avg := notional / size
	var impact float64
	if best > 0 {
		impact = (avg - best) / best * 100
		if impact < 0 {
			impact = -impact
		}
	}
	return &ImpactResult{
		AvgPrice:      avg,
		WorstPrice:    worst,
		ImpactPercent: impact,
		FilledSize:    size,
	}
}
