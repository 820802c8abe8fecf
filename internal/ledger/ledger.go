// Package ledger applies buy and sell fills to a portfolio's positions using
// weighted-average cost basis.
//
// Every function computes its full result before touching the portfolio, so
// a returned error always means nothing changed.
package ledger

import (
	"errors"
	"fmt"

	"github.com/atmx/trading-game/internal/fixedpoint"
	"github.com/atmx/trading-game/internal/model"
)

var (
	ErrNoPosition           = errors.New("ledger: no position found for this trading pair")
	ErrInsufficientPosition = errors.New("ledger: insufficient position size")
	ErrInvalidQuantity      = errors.New("ledger: quantity must be positive")
)

// Buy adds quantity at fillPrice to the position for pair, creating a long
// position when none exists. The new average entry price is
// (oldQty*oldAvg + quantity*fillPrice) / (oldQty+quantity), truncated.
func Buy(p *model.Portfolio, pair string, quantity uint64, fillPrice int64) error {
	if quantity == 0 {
		return ErrInvalidQuantity
	}

	idx := p.FindPosition(pair)
	if idx < 0 {
		if _, err := fixedpoint.Quantity(quantity); err != nil {
			return err
		}
		p.Positions = append(p.Positions, model.Position{
			TradingPair:   pair,
			Quantity:      quantity,
			AvgEntryPrice: fillPrice,
			Side:          model.Long,
		})
		return nil
	}

	pos := p.Positions[idx]
	newQty, avg, err := weightedAverage(pos.Quantity, pos.AvgEntryPrice, quantity, fillPrice)
	if err != nil {
		return fmt.Errorf("average %s: %w", pair, err)
	}
	p.Positions[idx].Quantity = newQty
	p.Positions[idx].AvgEntryPrice = avg
	return nil
}

// Sell removes quantity from the position for pair and returns the cost
// basis of the sold quantity (quantity*avgEntryPrice/Scale). The average
// entry price never changes; a position reaching zero is removed.
func Sell(p *model.Portfolio, pair string, quantity uint64) (int64, error) {
	if quantity == 0 {
		return 0, ErrInvalidQuantity
	}

	idx := p.FindPosition(pair)
	if idx < 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoPosition, pair)
	}
	pos := p.Positions[idx]
	if quantity > pos.Quantity {
		return 0, fmt.Errorf("%w: %s holds %d, sell %d", ErrInsufficientPosition, pair, pos.Quantity, quantity)
	}

	costBasis, err := fixedpoint.MulDiv(quantity, pos.AvgEntryPrice)
	if err != nil {
		return 0, fmt.Errorf("cost basis %s: %w", pair, err)
	}

	remaining := pos.Quantity - quantity
	if remaining == 0 {
		p.Positions = append(p.Positions[:idx], p.Positions[idx+1:]...)
	} else {
		p.Positions[idx].Quantity = remaining
	}
	return costBasis, nil
}

// CostBasis returns quantity*avgEntryPrice/Scale for pos.
func CostBasis(pos model.Position) (int64, error) {
	return fixedpoint.MulDiv(pos.Quantity, pos.AvgEntryPrice)
}

func weightedAverage(oldQty uint64, oldAvg int64, qty uint64, price int64) (uint64, int64, error) {
	q0, err := fixedpoint.Quantity(oldQty)
	if err != nil {
		return 0, 0, err
	}
	q1, err := fixedpoint.Quantity(qty)
	if err != nil {
		return 0, 0, err
	}
	oldCost, err := fixedpoint.Mul(q0, oldAvg)
	if err != nil {
		return 0, 0, err
	}
	addCost, err := fixedpoint.Mul(q1, price)
	if err != nil {
		return 0, 0, err
	}
	totalCost, err := fixedpoint.Add(oldCost, addCost)
	if err != nil {
		return 0, 0, err
	}
	totalQty, err := fixedpoint.Add(q0, q1)
	if err != nil {
		return 0, 0, err
	}
	avg, err := fixedpoint.Div(totalCost, totalQty)
	if err != nil {
		return 0, 0, err
	}
	return uint64(totalQty), avg, nil
}
