package book

import (
	"errors"
	"testing"

	"github.com/clobsync/polymarket-data/internal/model"
)

func TestParseUpdateMessage_Snapshot(t *testing.T) {
	raw := []byte(`{
		"type": "book",
		"asset_id": "tok-1",
		"bids": [{"price": "0.55", "size": "100"}, {"price": "0.50", "size": "150"}],
		"asks": [{"price": "0.60", "size": "80", "count": 4}, {"price": "0.65", "size": "120"}],
		"hash": "abc123",
		"sequence": 42
	}`)

	b, changes, err := ParseUpdateMessage(raw, nil, 0)
	if err != nil {
		t.Fatalf("ParseUpdateMessage failed: %v", err)
	}
	if b.AssetID != "tok-1" {
		t.Errorf("AssetID = %q, want tok-1", b.AssetID)
	}
	if !b.IsSnapshot {
		t.Error("IsSnapshot = false for a book message")
	}
	if b.BestBid != 0.55 || b.BestAsk != 0.60 {
		t.Errorf("bests = %v/%v, want 0.55/0.60", b.BestBid, b.BestAsk)
	}
	if b.Hash != "abc123" || b.Sequence != 42 {
		t.Errorf("passthrough hash/seq = %q/%d, want abc123/42", b.Hash, b.Sequence)
	}
	if b.Asks[0].OrderCount != 4 {
		t.Errorf("OrderCount = %d, want 4", b.Asks[0].OrderCount)
	}
	if len(changes) != 4 {
		t.Errorf("changes = %d, want 4 adds", len(changes))
	}
	for _, c := range changes {
		if c.Change != ChangeAdd {
			t.Errorf("change = %v, want add on fresh book", c.Change)
		}
	}
}

func TestParseUpdateMessage_FieldAliases(t *testing.T) {
	raw := []byte(`{
		"type": "book",
		"market": "tok-2",
		"buys": [{"p": 0.40, "quantity": 25, "num_orders": 2}],
		"sells": [{"p": "0.45", "s": "30"}]
	}`)

	b, _, err := ParseUpdateMessage(raw, nil, 0)
	if err != nil {
		t.Fatalf("ParseUpdateMessage failed: %v", err)
	}
	if b.AssetID != "tok-2" {
		t.Errorf("AssetID = %q, want tok-2 (from market)", b.AssetID)
	}
	if b.BestBid != 0.40 || b.Bids[0].Size != 25 || b.Bids[0].OrderCount != 2 {
		t.Errorf("bid level = %+v, want 0.40/25/2", b.Bids[0])
	}
	if b.BestAsk != 0.45 || b.Asks[0].Size != 30 {
		t.Errorf("ask level = %+v, want 0.45/30", b.Asks[0])
	}
}

func TestParseUpdateMessage_DeltasArray(t *testing.T) {
	snapshot := NewBook("tok-1")
	snapshot.ApplySnapshot(
		[]Level{{Price: 0.55, Size: 100}},
		[]Level{{Price: 0.60, Size: 80}},
		0,
	)

	raw := []byte(`{
		"type": "book_update",
		"asset_id": "tok-1",
		"deltas": [
			{"side": "BUY", "price": "0.54", "size": "40"},
			{"side": "SELL", "price": "0.60", "size": "0"}
		]
	}`)

	b, changes, err := ParseUpdateMessage(raw, snapshot, 0)
	if err != nil {
		t.Fatalf("ParseUpdateMessage failed: %v", err)
	}

	// Input book untouched.
	if len(snapshot.Asks) != 1 {
		t.Error("existing book mutated by ParseUpdateMessage")
	}

	if len(b.Bids) != 2 || len(b.Asks) != 0 {
		t.Fatalf("levels = %d bids / %d asks, want 2/0", len(b.Bids), len(b.Asks))
	}
	if b.IsSnapshot {
		t.Error("IsSnapshot = true after delta message")
	}
	if len(changes) != 2 {
		t.Fatalf("changes = %d, want 2", len(changes))
	}
	if changes[0].Change != ChangeAdd || changes[0].Side != model.SideBid {
		t.Errorf("changes[0] = %+v, want bid add", changes[0])
	}
	if changes[1].Change != ChangeRemove || changes[1].PrevSize != 80 {
		t.Errorf("changes[1] = %+v, want ask remove of 80", changes[1])
	}
}

func TestParseUpdateMessage_IncrementalLevelLists(t *testing.T) {
	existing := NewBook("tok-1")
	existing.ApplySnapshot([]Level{{Price: 0.55, Size: 100}}, nil, 0)

	raw := []byte(`{
		"type": "book_update",
		"asset_id": "tok-1",
		"bids": [{"price": "0.55", "size": "60"}]
	}`)

	b, changes, err := ParseUpdateMessage(raw, existing, 0)
	if err != nil {
		t.Fatalf("ParseUpdateMessage failed: %v", err)
	}
	if b.Bids[0].Size != 60 {
		t.Errorf("Size = %v, want 60 (upsert)", b.Bids[0].Size)
	}
	if len(changes) != 1 || changes[0].Change != ChangeUpdate || changes[0].PrevSize != 100 {
		t.Errorf("changes = %+v, want one update from 100", changes)
	}
}

func TestParseUpdateMessage_ExplicitSnapshotFlag(t *testing.T) {
	// book_update normally means delta; is_snapshot forces replacement.
	existing := NewBook("tok-1")
	existing.ApplySnapshot([]Level{{Price: 0.55, Size: 100}}, nil, 0)

	raw := []byte(`{
		"type": "book_update",
		"asset_id": "tok-1",
		"is_snapshot": true,
		"bids": [{"price": "0.52", "size": "10"}]
	}`)

	b, _, err := ParseUpdateMessage(raw, existing, 0)
	if err != nil {
		t.Fatalf("ParseUpdateMessage failed: %v", err)
	}
	if len(b.Bids) != 1 || b.BestBid != 0.52 {
		t.Errorf("bids = %+v, want single 0.52 level after forced snapshot", b.Bids)
	}
}

func TestParseUpdateMessage_Rejections(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing asset", `{"type":"book","bids":[]}`},
		{"missing price", `{"type":"book","asset_id":"t","bids":[{"size":"5"}]}`},
		{"unparseable price", `{"type":"book","asset_id":"t","bids":[{"price":"abc","size":"5"}]}`},
		{"missing size", `{"type":"book","asset_id":"t","bids":[{"price":"0.5"}]}`},
		{"negative size", `{"type":"book","asset_id":"t","bids":[{"price":"0.5","size":"-1"}]}`},
		{"bad delta side", `{"type":"book_update","asset_id":"t","deltas":[{"side":"left","price":"0.5","size":"1"}]}`},
		{"negative delta size", `{"type":"book_update","asset_id":"t","deltas":[{"side":"BUY","price":"0.5","size":"-3"}]}`},
		{"not json", `{{{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseUpdateMessage([]byte(tt.raw), nil, 0)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Errorf("error %T is not *ParseError", err)
			}
		})
	}
}

func TestParseUpdateMessage_SizeZeroValidInSnapshot(t *testing.T) {
	raw := []byte(`{"type":"book","asset_id":"t","bids":[{"price":"0.5","size":"0"}]}`)
	b, _, err := ParseUpdateMessage(raw, nil, 0)
	if err != nil {
		t.Fatalf("size 0 must be valid: %v", err)
	}
	if len(b.Bids) != 1 || b.Bids[0].Size != 0 {
		t.Errorf("bids = %+v, want one zero-size level", b.Bids)
	}
}
