package quotes

import (
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/atmx/trading-game/internal/model"
)

const snapshotKey = "candidates"

// CachedBook fronts another Book with an in-process ristretto cache of the
// candidate snapshot. Puts go to the inner book and drop the snapshot.
// A snapshot is only cached when no Put ran while it was being read, so a
// cached snapshot never predates the latest local Put. Puts made by other
// processes sharing the inner book become visible within ttl.
type CachedBook struct {
	inner Book
	cache *ristretto.Cache
	ttl   time.Duration

	mu  sync.Mutex
	gen uint64 // bumped by every Put
}

// NewCachedBook wraps inner. ttl bounds how stale a cached snapshot can be;
// keep it well below the oracle's freshness window.
func NewCachedBook(inner Book, ttl time.Duration) (*CachedBook, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e3,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedBook{inner: inner, cache: c, ttl: ttl}, nil
}

func (b *CachedBook) Put(ctx context.Context, q model.PriceQuote) error {
	if err := b.inner.Put(ctx, q); err != nil {
		return err
	}
	b.mu.Lock()
	b.gen++
	b.cache.Del(snapshotKey)
	b.mu.Unlock()
	b.cache.Wait()
	return nil
}

func (b *CachedBook) Candidates(ctx context.Context) ([]model.PriceQuote, error) {
	if v, ok := b.cache.Get(snapshotKey); ok {
		if qs, ok := v.([]model.PriceQuote); ok {
			return append([]model.PriceQuote(nil), qs...), nil
		}
	}
	b.mu.Lock()
	gen := b.gen
	b.mu.Unlock()

	qs, err := b.inner.Candidates(ctx)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.gen == gen {
		b.cache.SetWithTTL(snapshotKey, append([]model.PriceQuote(nil), qs...), int64(len(qs)+1), b.ttl)
	}
	b.mu.Unlock()
	return qs, nil
}

// Close stops the cache's background goroutines.
func (b *CachedBook) Close() {
	b.cache.Close()
}
