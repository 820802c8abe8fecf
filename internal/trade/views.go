package trade

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/trading-game/internal/fixedpoint"
	"github.com/atmx/trading-game/internal/leaderboard"
	"github.com/atmx/trading-game/internal/model"
)

// --- Request types ---

// CreateSessionRequest is the JSON body for session creation.
type CreateSessionRequest struct {
	ID              uint64          `json:"id"`               // 0 → next free id
	DurationSeconds int64           `json:"duration_seconds"` // session length from now
	VirtualBalance  decimal.Decimal `json:"virtual_balance"`  // per-participant starting cash
	TradingPairs    []string        `json:"trading_pairs"`
}

// JoinRequest is the JSON body for POST /sessions/{sessionID}/join.
type JoinRequest struct {
	UserID string `json:"user_id"`
}

// OrderRequest is the JSON body for POST /sessions/{sessionID}/orders.
type OrderRequest struct {
	UserID      string          `json:"user_id"`
	TradingPair string          `json:"trading_pair"`
	Side        string          `json:"side"`     // "BUY" or "SELL"
	Quantity    decimal.Decimal `json:"quantity"` // positive, up to 6 decimals
}

// --- Response types ---

// SessionView is the API rendering of a trading session.
type SessionView struct {
	ID               uint64          `json:"id"`
	StartTime        time.Time       `json:"start_time"`
	EndTime          time.Time       `json:"end_time"`
	VirtualBalance   decimal.Decimal `json:"virtual_balance"`
	TradingPairs     []string        `json:"trading_pairs"`
	IsActive         bool            `json:"is_active"`
	ParticipantCount uint32          `json:"participant_count"`
}

// PositionView is the API rendering of one position.
type PositionView struct {
	TradingPair   string          `json:"trading_pair"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	Side          string          `json:"side"`
}

// PortfolioView is the API rendering of a portfolio.
type PortfolioView struct {
	Owner         string          `json:"owner"`
	SessionID     uint64          `json:"session_id"`
	CashBalance   decimal.Decimal `json:"cash_balance"`
	TotalValue    decimal.Decimal `json:"total_value"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	ROIPercentage float64         `json:"roi_percentage"`
	NumTrades     uint32          `json:"num_trades"`
	Positions     []PositionView  `json:"positions"`
}

// TradeView is the API rendering of a trade record.
type TradeView struct {
	ID          string          `json:"id"`
	SessionID   uint64          `json:"session_id"`
	User        string          `json:"user"`
	TradingPair string          `json:"trading_pair"`
	Side        string          `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Notional    decimal.Decimal `json:"notional"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	Timestamp   time.Time       `json:"timestamp"`
}

// OrderResponse is the JSON body returned from POST /orders.
type OrderResponse struct {
	Trade     TradeView     `json:"trade"`
	Portfolio PortfolioView `json:"portfolio"`
}

// EntryView is one leaderboard row.
type EntryView struct {
	Rank          uint32          `json:"rank"`
	User          string          `json:"user"`
	TotalPnL      decimal.Decimal `json:"total_pnl"`
	ROIPercentage float64         `json:"roi_percentage"`
	NumTrades     uint32          `json:"num_trades"`
	LastUpdated   time.Time       `json:"last_updated"`
}

// LeaderboardView is the API rendering of a session leaderboard.
type LeaderboardView struct {
	SessionID uint64      `json:"session_id"`
	Entries   []EntryView `json:"entries"`
}

func sessionView(s *model.TradingSession) SessionView {
	return SessionView{
		ID:               s.ID,
		StartTime:        s.StartTime,
		EndTime:          s.EndTime,
		VirtualBalance:   fixedpoint.ToDecimal(s.VirtualBalance),
		TradingPairs:     s.TradingPairs,
		IsActive:         s.IsActive,
		ParticipantCount: s.ParticipantCount,
	}
}

func portfolioView(p *model.Portfolio, initialBalance int64) PortfolioView {
	positions := make([]PositionView, len(p.Positions))
	for i, pos := range p.Positions {
		positions[i] = PositionView{
			TradingPair:   pos.TradingPair,
			Quantity:      fixedpoint.QuantityDecimal(pos.Quantity),
			AvgEntryPrice: fixedpoint.ToDecimal(pos.AvgEntryPrice),
			Side:          string(pos.Side),
		}
	}
	return PortfolioView{
		Owner:         p.Owner,
		SessionID:     p.SessionID,
		CashBalance:   fixedpoint.ToDecimal(p.CashBalance),
		TotalValue:    fixedpoint.ToDecimal(p.TotalValue),
		RealizedPnL:   fixedpoint.ToDecimal(p.RealizedPnL),
		UnrealizedPnL: fixedpoint.ToDecimal(p.UnrealizedPnL),
		ROIPercentage: leaderboard.ROI(p, initialBalance),
		NumTrades:     p.NumTrades,
		Positions:     positions,
	}
}

func tradeView(t *model.TradeRecord) TradeView {
	return TradeView{
		ID:          t.ID,
		SessionID:   t.SessionID,
		User:        t.User,
		TradingPair: t.TradingPair,
		Side:        string(t.Side),
		Quantity:    fixedpoint.QuantityDecimal(t.Quantity),
		Price:       fixedpoint.ToDecimal(t.Price),
		Notional:    fixedpoint.ToDecimal(t.Notional),
		RealizedPnL: fixedpoint.ToDecimal(t.RealizedPnL),
		Timestamp:   t.Timestamp,
	}
}

func leaderboardView(lb *model.Leaderboard) LeaderboardView {
	entries := make([]EntryView, len(lb.Entries))
	for i, e := range lb.Entries {
		entries[i] = EntryView{
			Rank:          e.Rank,
			User:          e.User,
			TotalPnL:      fixedpoint.ToDecimal(e.TotalPnL),
			ROIPercentage: e.ROIPercentage,
			NumTrades:     e.NumTrades,
			LastUpdated:   e.LastUpdated,
		}
	}
	return LeaderboardView{SessionID: lb.SessionID, Entries: entries}
}
