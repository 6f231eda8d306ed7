package book

import (
	"sync"

	json "github.com/goccy/go-json"

	"github.com/clobsync/polymarket-data/internal/model"
)

// Registry holds the reconstructed book for every tracked asset. Each book is
// owned exclusively by the registry; accessors hand out deep copies so
// callers can never corrupt internal state.
type Registry struct {
	mu       sync.RWMutex
	maxDepth int
	books    map[string]*Book
}

// NewRegistry creates a registry whose books keep at most maxDepth levels
// per side (0 means DefaultMaxDepth).
func NewRegistry(maxDepth int) *Registry {
	if maxDepth < 1 {
		maxDepth = DefaultMaxDepth
	}
	return &Registry{
		maxDepth: maxDepth,
		books:    make(map[string]*Book),
	}
}

// Apply parses a raw book message and merges it into the owned book for its
// asset, creating the book on first sight. Returns a copy of the resulting
// state and the individual level changes.
func (r *Registry) Apply(raw []byte) (*Book, []LevelChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// ParseUpdateMessage works on a clone, so the owned book stays intact
	// when parsing fails partway.
	var existing *Book
	if probe, err := peekAssetID(raw); err == nil {
		existing = r.books[probe]
	}

	next, changes, err := ParseUpdateMessage(raw, existing, r.maxDepth)
	if err != nil {
		return nil, nil, err
	}

	r.books[next.AssetID] = next
	return next.Clone(), changes, nil
}

// Get returns a copy of the asset's book, or nil when untracked.
func (r *Registry) Get(assetID string) *Book {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.books[assetID].Clone()
}

// Query runs fn against the owned book under the read lock. fn must not
// retain the book. ok is false when the asset is untracked.
func (r *Registry) Query(assetID string, fn func(*Book)) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.books[assetID]
	if !ok {
		return false
	}
	fn(b)
	return true
}

// MarketImpact runs a market-impact walk against the owned book without
// copying it.
func (r *Registry) MarketImpact(assetID string, side model.Side, size float64) *ImpactResult {
	var result *ImpactResult
	r.Query(assetID, func(b *Book) {
		result = MarketImpact(b, side, size)
	})
	return result
}

// Remove discards an asset's book (on unsubscribe).
func (r *Registry) Remove(assetID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.books, assetID)
}

// AssetIDs lists the tracked assets.
func (r *Registry) AssetIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.books))
	for id := range r.books {
		out = append(out, id)
	}
	return out
}

// Len returns the number of tracked books.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.books)
}

// peekAssetID extracts just the asset identity from a raw message.
func peekAssetID(raw []byte) (string, error) {
	var probe struct {
		AssetID string `json:"asset_id"`
		Market  string `json:"market"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return "", err
	}
	if probe.AssetID != "" {
		return probe.AssetID, nil
	}
	return probe.Market, nil
}
