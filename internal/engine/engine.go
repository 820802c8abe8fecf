// Package engine executes market orders against oracle prices.
//
// An Executor works on explicitly owned records: the caller loads a
// portfolio and its session, passes them in, and persists the portfolio
// afterwards. Each call is all-or-nothing: the work is done on a copy that
// replaces the caller's portfolio only when every step succeeded.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atmx/trading-game/internal/audit"
	"github.com/atmx/trading-game/internal/fixedpoint"
	"github.com/atmx/trading-game/internal/ledger"
	"github.com/atmx/trading-game/internal/model"
	"github.com/atmx/trading-game/internal/oracle"
	"github.com/atmx/trading-game/internal/session"
	"github.com/atmx/trading-game/internal/valuation"
)

var (
	ErrInsufficientFunds = errors.New("engine: insufficient cash balance")
	ErrInvalidSide       = errors.New("engine: order side must be BUY or SELL")
)

// Order is a market order for Quantity units (6-decimal basis) of Pair.
type Order struct {
	Pair     string
	Side     model.OrderSide
	Quantity uint64
}

// Executor applies orders and valuations to portfolios.
type Executor struct {
	gateway oracle.Gateway
	sink    audit.Sink
	log     *zap.Logger
	now     func() time.Time
}

// NewExecutor creates an executor pricing through gw and emitting to sink.
func NewExecutor(gw oracle.Gateway, sink audit.Sink, log *zap.Logger) *Executor {
	if sink == nil {
		sink = audit.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		gateway: gw,
		sink:    sink,
		log:     log.Named("engine"),
		now:     time.Now,
	}
}

// WithClock replaces the wall clock, for tests and replays.
func (e *Executor) WithClock(now func() time.Time) *Executor {
	e.now = now
	return e
}

// Execute fills order for p within s at the oracle price found among quotes,
// then refreshes p's valuation. quotes must also cover every other open
// position of p, since the valuation pass prices all of them.
func (e *Executor) Execute(p *model.Portfolio, s *model.TradingSession, order Order, quotes []model.PriceQuote) (*model.TradeRecord, error) {
	now := e.now()

	if err := session.CheckTradable(s, now); err != nil {
		return nil, err
	}
	if !order.Side.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSide, order.Side)
	}
	if order.Quantity == 0 {
		return nil, ledger.ErrInvalidQuantity
	}

	fillPrice, err := e.gateway.Price(order.Pair, quotes, now)
	if err != nil {
		return nil, fmt.Errorf("price %s: %w", order.Pair, err)
	}
	notional, err := fixedpoint.MulDiv(order.Quantity, fillPrice)
	if err != nil {
		return nil, fmt.Errorf("notional %s: %w", order.Pair, err)
	}

	work := p.Clone()
	var realized int64

	switch order.Side {
	case model.Buy:
		if work.CashBalance < notional {
			return nil, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds,
				fixedpoint.String(notional), fixedpoint.String(work.CashBalance))
		}
		if work.CashBalance, err = fixedpoint.Sub(work.CashBalance, notional); err != nil {
			return nil, err
		}
		if err := ledger.Buy(work, order.Pair, order.Quantity, fillPrice); err != nil {
			return nil, err
		}

	case model.Sell:
		costBasis, err := ledger.Sell(work, order.Pair, order.Quantity)
		if err != nil {
			return nil, err
		}
		if realized, err = fixedpoint.Sub(notional, costBasis); err != nil {
			return nil, err
		}
		if work.CashBalance, err = fixedpoint.Add(work.CashBalance, notional); err != nil {
			return nil, err
		}
		if work.RealizedPnL, err = fixedpoint.Add(work.RealizedPnL, realized); err != nil {
			return nil, err
		}
	}

	if work.NumTrades == ^uint32(0) {
		return nil, fixedpoint.ErrMathOverflow
	}
	work.NumTrades++

	if err := valuation.Revalue(work, e.gateway, quotes, now); err != nil {
		return nil, err
	}

	*p = *work

	rec := &model.TradeRecord{
		ID:          uuid.New().String(),
		SessionID:   p.SessionID,
		User:        p.Owner,
		TradingPair: order.Pair,
		Side:        order.Side,
		Quantity:    order.Quantity,
		Price:       fillPrice,
		Notional:    notional,
		RealizedPnL: realized,
		Timestamp:   now,
	}

	audit.Publish(e.sink, e.log, audit.Event{
		Kind:        audit.OrderExecuted,
		SessionID:   p.SessionID,
		User:        p.Owner,
		TradingPair: order.Pair,
		Side:        order.Side,
		Quantity:    order.Quantity,
		Price:       fillPrice,
		Timestamp:   now,
	})

	e.log.Debug("order executed",
		zap.String("trade_id", rec.ID),
		zap.String("user", p.Owner),
		zap.String("pair", order.Pair),
		zap.String("side", string(order.Side)),
		zap.Uint64("qty", order.Quantity),
		zap.String("price", fixedpoint.String(fillPrice)),
		zap.String("cash", fixedpoint.String(p.CashBalance)),
	)
	return rec, nil
}

// Revalue refreshes p's unrealized P&L and total value from quotes.
func (e *Executor) Revalue(p *model.Portfolio, quotes []model.PriceQuote) error {
	now := e.now()
	if err := valuation.Revalue(p, e.gateway, quotes, now); err != nil {
		return err
	}
	audit.Publish(e.sink, e.log, audit.Event{
		Kind:          audit.PnlUpdated,
		SessionID:     p.SessionID,
		User:          p.Owner,
		RealizedPnL:   p.RealizedPnL,
		UnrealizedPnL: p.UnrealizedPnL,
		TotalValue:    p.TotalValue,
		Timestamp:     now,
	})
	return nil
}
