// Package leaderboard keeps a session's standings ordered by total P&L.
package leaderboard

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atmx/trading-game/internal/audit"
	"github.com/atmx/trading-game/internal/fixedpoint"
	"github.com/atmx/trading-game/internal/metrics"
	"github.com/atmx/trading-game/internal/model"
)

// Ranker upserts standings and re-ranks a board. Every sort-and-assign pass
// runs under one mutex, so concurrent updates never interleave.
type Ranker struct {
	mu   sync.Mutex
	sink audit.Sink
	log  *zap.Logger
	now  func() time.Time
}

// NewRanker creates a ranker emitting leaderboard_updated events to sink.
func NewRanker(sink audit.Sink, log *zap.Logger) *Ranker {
	if sink == nil {
		sink = audit.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ranker{sink: sink, log: log.Named("leaderboard"), now: time.Now}
}

// WithClock replaces the wall clock.
func (r *Ranker) WithClock(now func() time.Time) *Ranker {
	r.now = now
	return r
}

// Update records p's current standing in lb and re-ranks every entry.
// initialBalance is the session's per-participant virtual balance, the ROI
// divisor. On error lb is unchanged.
func (r *Ranker) Update(lb *model.Leaderboard, p *model.Portfolio, initialBalance int64) error {
	total, err := fixedpoint.Add(p.RealizedPnL, p.UnrealizedPnL)
	if err != nil {
		return err
	}
	roi := ROI(p, initialBalance)

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry := model.LeaderboardEntry{
		User:          p.Owner,
		TotalPnL:      total,
		ROIPercentage: roi,
		NumTrades:     p.NumTrades,
		LastUpdated:   now,
	}

	found := false
	for i := range lb.Entries {
		if lb.Entries[i].User == p.Owner {
			entry.Rank = lb.Entries[i].Rank
			lb.Entries[i] = entry
			found = true
			break
		}
	}
	if !found {
		lb.Entries = append(lb.Entries, entry)
	}

	Rank(lb.Entries)
	metrics.LeaderboardUpdates.Inc()

	audit.Publish(r.sink, r.log, audit.Event{
		Kind:      audit.LeaderboardUpdated,
		SessionID: lb.SessionID,
		User:      p.Owner,
		Timestamp: now,
	})
	return nil
}

// Rank sorts entries by total P&L, highest first, keeping the existing
// relative order of ties, and assigns ranks 1..N.
func Rank(entries []model.LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalPnL > entries[j].TotalPnL
	})
	for i := range entries {
		entries[i].Rank = uint32(i + 1)
	}
}

// ROI returns realized plus unrealized P&L as a percentage of
// initialBalance, for display only. A zero balance yields 0.
func ROI(p *model.Portfolio, initialBalance int64) float64 {
	if initialBalance == 0 {
		return 0
	}
	pnl := float64(p.RealizedPnL) + float64(p.UnrealizedPnL)
	return pnl * 100 / float64(initialBalance)
}
