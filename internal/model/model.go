// Package model defines the core domain types shared across the trading game.
// All monetary values, prices and quantities are int64/uint64 fixed-point
// numbers with 6 implied decimals (see package fixedpoint); never float64
// for money.
package model

import (
	"slices"
	"time"
)

// OrderSide is the direction of a market order.
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Valid reports whether s is a known order side.
func (s OrderSide) Valid() bool {
	return s == Buy || s == Sell
}

// PositionSide tags a position as long or short.
type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
)

// TradingSession identifies one competition window.
// Immutable after creation except IsActive (cleared once on close) and
// ParticipantCount (incremented on each enrollment).
type TradingSession struct {
	ID               uint64    `json:"id"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	VirtualBalance   int64     `json:"virtual_balance"` // per participant
	TradingPairs     []string  `json:"trading_pairs"`
	IsActive         bool      `json:"is_active"`
	ParticipantCount uint32    `json:"participant_count"`
}

// Clone returns a deep copy of s.
func (s *TradingSession) Clone() *TradingSession {
	out := *s
	out.TradingPairs = slices.Clone(s.TradingPairs)
	return &out
}

// Position is a holding in one trading pair. A position with zero quantity
// never exists; it is removed instead.
type Position struct {
	TradingPair   string       `json:"trading_pair"`
	Quantity      uint64       `json:"quantity"`
	AvgEntryPrice int64        `json:"avg_entry_price"`
	Side          PositionSide `json:"side"`
}

// Portfolio is one participant's account within a session.
// TotalValue == CashBalance + RealizedPnL + UnrealizedPnL after every valuation.
type Portfolio struct {
	Owner         string     `json:"owner"`
	SessionID     uint64     `json:"session_id"`
	CashBalance   int64      `json:"cash_balance"`
	TotalValue    int64      `json:"total_value"`
	RealizedPnL   int64      `json:"realized_pnl"`
	UnrealizedPnL int64      `json:"unrealized_pnl"`
	NumTrades     uint32     `json:"num_trades"`
	Positions     []Position `json:"positions"`
}

// Clone returns a deep copy of p.
func (p *Portfolio) Clone() *Portfolio {
	out := *p
	out.Positions = slices.Clone(p.Positions)
	return &out
}

// FindPosition returns the index of the position for pair, or -1.
func (p *Portfolio) FindPosition(pair string) int {
	for i := range p.Positions {
		if p.Positions[i].TradingPair == pair {
			return i
		}
	}
	return -1
}

// LeaderboardEntry is one participant's standing.
type LeaderboardEntry struct {
	User          string    `json:"user"`
	TotalPnL      int64     `json:"total_pnl"`
	ROIPercentage float64   `json:"roi_percentage"` // display only
	NumTrades     uint32    `json:"num_trades"`
	LastUpdated   time.Time `json:"last_updated"`
	Rank          uint32    `json:"rank"`
}

// Leaderboard is the ranked standings of one session, keyed by user.
type Leaderboard struct {
	SessionID uint64             `json:"session_id"`
	Entries   []LeaderboardEntry `json:"entries"`
}

// Clone returns a deep copy of lb.
func (lb *Leaderboard) Clone() *Leaderboard {
	out := *lb
	out.Entries = slices.Clone(lb.Entries)
	return &out
}

// PriceQuote is a price published by an external feed.
// Price is expressed with decimal exponent Expo (-6 is the engine basis).
type PriceQuote struct {
	FeedID      string    `json:"feed_id,omitempty"`
	TradingPair string    `json:"trading_pair,omitempty"`
	Price       int64     `json:"price"`
	Expo        int32     `json:"expo"`
	PublishTime time.Time `json:"publish_time"`
}

// Key identifies the quote within a quote book.
func (q PriceQuote) Key() string {
	if q.FeedID != "" {
		return q.FeedID
	}
	return q.TradingPair
}

// TradeRecord is an immutable record of an executed order.
// Once created, these are never modified or deleted.
type TradeRecord struct {
	ID          string    `json:"id"`
	SessionID   uint64    `json:"session_id"`
	User        string    `json:"user"`
	TradingPair string    `json:"trading_pair"`
	Side        OrderSide `json:"side"`
	Quantity    uint64    `json:"quantity"`
	Price       int64     `json:"price"`        // fill price
	Notional    int64     `json:"notional"`     // quantity * price
	RealizedPnL int64     `json:"realized_pnl"` // sells only
	Timestamp   time.Time `json:"timestamp"`
}
