// Package oracle resolves a trading pair to a fresh fixed-point price.
//
// Two strategies sit behind the Gateway interface:
//   - FeedGateway maps each pair to an external feed identifier and only
//     accepts the quote published under exactly that identifier.
//   - RecordGateway reads generic price records keyed by the pair itself.
//
// Both validate freshness and normalize the quote to the 6-decimal engine
// basis exactly once, here. Callers never rescale prices themselves.
package oracle

import (
	"errors"
	"fmt"
	"time"

	"github.com/atmx/trading-game/internal/fixedpoint"
	"github.com/atmx/trading-game/internal/model"
)

// DefaultMaxAge is the freshness threshold used when none is configured.
const DefaultMaxAge = 30 * time.Second

// Exponents accepted from upstream feeds.
const (
	MinExpo int32 = -18
	MaxExpo int32 = 0
)

var (
	ErrUnsupportedTradingPair = errors.New("oracle: unsupported trading pair")
	ErrPriceFeedNotFound      = errors.New("oracle: price feed not found")
	ErrStalePriceData         = errors.New("oracle: price data is stale")
	ErrInvalidPriceData       = errors.New("oracle: invalid price data")
)

// Gateway resolves the price of pair among the candidate quotes at time now.
// Implementations are pure: they never mutate quotes or retain them.
type Gateway interface {
	Price(pair string, quotes []model.PriceQuote, now time.Time) (int64, error)
}

// FeedGateway resolves prices from feeds identified by an external id.
type FeedGateway struct {
	feeds  map[string]string // trading pair → feed id
	maxAge time.Duration
}

// NewFeedGateway creates a gateway over the given pair → feed id mapping.
// A non-positive maxAge selects DefaultMaxAge.
func NewFeedGateway(feeds map[string]string, maxAge time.Duration) *FeedGateway {
	m := make(map[string]string, len(feeds))
	for pair, id := range feeds {
		m[pair] = id
	}
	return &FeedGateway{feeds: m, maxAge: normalizeMaxAge(maxAge)}
}

// FeedID returns the feed id mapped to pair.
func (g *FeedGateway) FeedID(pair string) (string, bool) {
	id, ok := g.feeds[pair]
	return id, ok
}

// MaxAge returns the freshness threshold.
func (g *FeedGateway) MaxAge() time.Duration { return g.maxAge }

func (g *FeedGateway) Price(pair string, quotes []model.PriceQuote, now time.Time) (int64, error) {
	feedID, ok := g.feeds[pair]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedTradingPair, pair)
	}
	for _, q := range quotes {
		if q.FeedID == feedID {
			return resolve(q, now, g.maxAge)
		}
	}
	return 0, fmt.Errorf("%w: %s (feed %s)", ErrPriceFeedNotFound, pair, feedID)
}

// RecordGateway resolves prices from records that carry the pair symbol.
type RecordGateway struct {
	pairs  map[string]bool
	maxAge time.Duration
}

// NewRecordGateway creates a gateway accepting the listed pairs.
// A non-positive maxAge selects DefaultMaxAge.
func NewRecordGateway(pairs []string, maxAge time.Duration) *RecordGateway {
	m := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		m[p] = true
	}
	return &RecordGateway{pairs: m, maxAge: normalizeMaxAge(maxAge)}
}

// MaxAge returns the freshness threshold.
func (g *RecordGateway) MaxAge() time.Duration { return g.maxAge }

func (g *RecordGateway) Price(pair string, quotes []model.PriceQuote, now time.Time) (int64, error) {
	if !g.pairs[pair] {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedTradingPair, pair)
	}
	for _, q := range quotes {
		if q.TradingPair == pair {
			return resolve(q, now, g.maxAge)
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrPriceFeedNotFound, pair)
}

// resolve validates freshness and sanity of q and returns its price in the
// engine basis. A quote published after now counts as fresh.
func resolve(q model.PriceQuote, now time.Time, maxAge time.Duration) (int64, error) {
	if q.PublishTime.IsZero() {
		return 0, fmt.Errorf("%w: %s has no publish time", ErrInvalidPriceData, q.Key())
	}
	if age := now.Sub(q.PublishTime); age > maxAge {
		return 0, fmt.Errorf("%w: %s is %s old (max %s)", ErrStalePriceData, q.Key(), age, maxAge)
	}
	if q.Price <= 0 {
		return 0, fmt.Errorf("%w: %s price %d", ErrInvalidPriceData, q.Key(), q.Price)
	}
	if q.Expo < MinExpo || q.Expo > MaxExpo {
		return 0, fmt.Errorf("%w: %s exponent %d", ErrInvalidPriceData, q.Key(), q.Expo)
	}
	price, err := fixedpoint.Rescale(q.Price, q.Expo)
	if err != nil {
		return 0, err
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: %s rounds to zero", ErrInvalidPriceData, q.Key())
	}
	return price, nil
}

func normalizeMaxAge(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultMaxAge
	}
	return d
}
