// Package quotes holds the latest price quote per feed and feeds them to the
// oracle gateway as its candidate set.
package quotes

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/atmx/trading-game/internal/model"
)

// ErrInvalidQuote is returned for a quote with neither feed id nor pair.
var ErrInvalidQuote = errors.New("quotes: quote has no feed id or trading pair")

// Book stores the most recent quote per key (see model.PriceQuote.Key).
// A quote older than the one already held for its key is ignored.
type Book interface {
	// Put records q unless a newer quote for the same key is present.
	Put(ctx context.Context, q model.PriceQuote) error

	// Candidates returns every quote currently held.
	Candidates(ctx context.Context) ([]model.PriceQuote, error)
}

// MemoryBook is an in-process Book.
type MemoryBook struct {
	mu     sync.RWMutex
	quotes map[string]model.PriceQuote
}

// NewMemoryBook creates an empty in-memory book.
func NewMemoryBook() *MemoryBook {
	return &MemoryBook{quotes: make(map[string]model.PriceQuote)}
}

func (b *MemoryBook) Put(_ context.Context, q model.PriceQuote) error {
	key := q.Key()
	if key == "" {
		return ErrInvalidQuote
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.quotes[key]; ok && cur.PublishTime.After(q.PublishTime) {
		return nil
	}
	b.quotes[key] = q
	return nil
}

func (b *MemoryBook) Candidates(_ context.Context) ([]model.PriceQuote, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]model.PriceQuote, 0, len(b.quotes))
	for _, q := range b.quotes {
		out = append(out, q)
	}
	sortByKey(out)
	return out, nil
}

func sortByKey(qs []model.PriceQuote) {
	sort.Slice(qs, func(i, j int) bool { return qs[i].Key() < qs[j].Key() })
}
