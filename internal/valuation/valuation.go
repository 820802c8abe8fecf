// Package valuation marks a portfolio to market.
package valuation

import (
	"fmt"
	"time"

	"github.com/atmx/trading-game/internal/fixedpoint"
	"github.com/atmx/trading-game/internal/ledger"
	"github.com/atmx/trading-game/internal/model"
	"github.com/atmx/trading-game/internal/oracle"
)

// Result holds the figures of one valuation pass.
type Result struct {
	UnrealizedPnL int64
	TotalValue    int64
}

// Compute prices every open position of p against its own feed and returns
// the aggregate figures without touching p. Any position that cannot be
// priced fails the whole pass.
func Compute(p *model.Portfolio, gw oracle.Gateway, quotes []model.PriceQuote, now time.Time) (Result, error) {
	var unrealized int64
	for _, pos := range p.Positions {
		price, err := gw.Price(pos.TradingPair, quotes, now)
		if err != nil {
			return Result{}, fmt.Errorf("value %s: %w", pos.TradingPair, err)
		}
		current, err := fixedpoint.MulDiv(pos.Quantity, price)
		if err != nil {
			return Result{}, fmt.Errorf("value %s: %w", pos.TradingPair, err)
		}
		cost, err := ledger.CostBasis(pos)
		if err != nil {
			return Result{}, fmt.Errorf("cost basis %s: %w", pos.TradingPair, err)
		}
		pnl, err := fixedpoint.Sub(current, cost)
		if err != nil {
			return Result{}, err
		}
		if unrealized, err = fixedpoint.Add(unrealized, pnl); err != nil {
			return Result{}, err
		}
	}

	total, err := fixedpoint.Add(p.CashBalance, p.RealizedPnL)
	if err != nil {
		return Result{}, err
	}
	if total, err = fixedpoint.Add(total, unrealized); err != nil {
		return Result{}, err
	}
	return Result{UnrealizedPnL: unrealized, TotalValue: total}, nil
}

// Revalue recomputes p.UnrealizedPnL and p.TotalValue. On error p is left
// unchanged.
func Revalue(p *model.Portfolio, gw oracle.Gateway, quotes []model.PriceQuote, now time.Time) error {
	res, err := Compute(p, gw, quotes, now)
	if err != nil {
		return err
	}
	p.UnrealizedPnL = res.UnrealizedPnL
	p.TotalValue = res.TotalValue
	return nil
}
