package book

import (
	"testing"

	"github.com/clobsync/polymarket-data/internal/model"
)

func TestMarketImpact_BuyConsumesAsks(t *testing.T) {
	b := NewBook("asset-1")
	b.ApplySnapshot(
		[]Level{{Price: 0.55, Size: 100}, {Price: 0.50, Size: 150}},
		[]Level{{Price: 0.60, Size: 100}, {Price: 0.65, Size: 120}},
		0,
	)

	// 100 filled at 0.60, 50 at 0.65, VWAP (60 + 32.5) / 150.
	res := MarketImpact(b, model.SideBid, 150)
	if res == nil {
		t.Fatal("expected a fill, got nil")
	}
	if !almostEqual(res.AvgPrice, 0.6166666666666667) {
		t.Errorf("AvgPrice = %v, want ≈0.616667", res.AvgPrice)
	}
	if res.WorstPrice != 0.65 {
		t.Errorf("WorstPrice = %v, want 0.65", res.WorstPrice)
	}
	wantImpact := (0.6166666666666667 - 0.60) / 0.60 * 100
	if !almostEqual(res.ImpactPercent, wantImpact) {
		t.Errorf("ImpactPercent = %v, want %v", res.ImpactPercent, wantImpact)
	}
}

func TestMarketImpact_SellConsumesBids(t *testing.T) {
	b := NewBook("asset-1")
	b.ApplySnapshot(
		[]Level{{Price: 0.55, Size: 100}, {Price: 0.50, Size: 150}},
		[]Level{{Price: 0.60, Size: 100}},
		0,
	)

	res := MarketImpact(b, model.SideAsk, 150)
	if res == nil {
		t.Fatal("expected a fill, got nil")
	}
	// 100 at 0.55, 50 at 0.50.
	if !almostEqual(res.AvgPrice, (55.0+25.0)/150.0) {
		t.Errorf("AvgPrice = %v, want ≈0.533333", res.AvgPrice)
	}
	if res.WorstPrice != 0.50 {
		t.Errorf("WorstPrice = %v, want 0.50", res.WorstPrice)
	}
}

func TestMarketImpact_InsufficientLiquidity(t *testing.T) {
	b := NewBook("asset-1")
	b.ApplySnapshot(nil, []Level{{Price: 0.60, Size: 80}}, 0)

	if res := MarketImpact(b, model.SideBid, 81); res != nil {
		t.Errorf("expected nil for oversize order, got %+v", res)
	}
	if res := MarketImpact(b, model.SideAsk, 1); res != nil {
		t.Errorf("expected nil against an empty side, got %+v", res)
	}
	if res := MarketImpact(b, model.SideBid, 0); res != nil {
		t.Errorf("expected nil for zero size, got %+v", res)
	}
}

func TestPriceForVolume_RoundTrip(t *testing.T) {
	b := NewBook("asset-1")
	b.ApplySnapshot(
		[]Level{{Price: 0.55, Size: 100}, {Price: 0.50, Size: 150}, {Price: 0.45, Size: 200}},
		[]Level{{Price: 0.60, Size: 80}, {Price: 0.65, Size: 120}},
		0,
	)

	for _, side := range []model.Side{model.SideBid, model.SideAsk} {
		total := b.TotalBidVolume
		if side == model.SideAsk {
			total = b.TotalAskVolume
		}
		for _, v := range []float64{1, 50, 100, 101, total} {
			if v > total {
				continue
			}
			price, ok := PriceForVolume(b, side, v)
			if !ok {
				t.Fatalf("%s: PriceForVolume(%v) not ok with total %v", side, v, total)
			}
			got, ok := CumulativeVolumeAtPrice(b, side, price)
			if !ok {
				t.Fatalf("%s: CumulativeVolumeAtPrice(%v) not ok", side, price)
			}
			if got+Epsilon < v {
				t.Errorf("%s: round trip for v=%v gave %v < v", side, v, got)
			}
		}
	}
}

func TestPriceForVolume_Insufficient(t *testing.T) {
	b := NewBook("asset-1")
	b.ApplySnapshot([]Level{{Price: 0.55, Size: 100}}, nil, 0)

	if _, ok := PriceForVolume(b, model.SideBid, 101); ok {
		t.Error("expected not-ok beyond total volume")
	}
	if _, ok := PriceForVolume(b, model.SideBid, 0); ok {
		t.Error("expected not-ok for zero volume")
	}
}

func TestCumulativeVolumeAtPrice(t *testing.T) {
	b := NewBook("asset-1")
	b.ApplySnapshot(
		[]Level{{Price: 0.55, Size: 100}, {Price: 0.50, Size: 150}},
		[]Level{{Price: 0.60, Size: 80}, {Price: 0.65, Size: 120}},
		0,
	)

	tests := []struct {
		side   model.Side
		price  float64
		want   float64
		wantOK bool
	}{
		{model.SideBid, 0.55, 100, true},
		{model.SideBid, 0.50, 250, true},
		{model.SideBid, 0.52, 100, true}, // only the 0.55 level is at-or-above
		{model.SideBid, 0.56, 0, false},
		{model.SideAsk, 0.60, 80, true},
		{model.SideAsk, 0.65, 200, true},
		{model.SideAsk, 0.59, 0, false},
	}

	for _, tt := range tests {
		got, ok := CumulativeVolumeAtPrice(b, tt.side, tt.price)
		if ok != tt.wantOK {
			t.Errorf("%s@%v: ok = %v, want %v", tt.side, tt.price, ok, tt.wantOK)
			continue
		}
		if ok && !almostEqual(got, tt.want) {
			t.Errorf("%s@%v: volume = %v, want %v", tt.side, tt.price, got, tt.want)
		}
	}
}
