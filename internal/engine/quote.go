// internal/engine/quote.go
package engine

import (
	"fmt"

	"github.com/rovshanmuradov/launchpad/internal/curve"
	"github.com/rovshanmuradov/launchpad/internal/exchange"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

// Quote previews a trade against a token's current state.
type Quote struct {
	Asset       types.AssetID `json:"asset"`
	Side        types.Side    `json:"side"`
	Amount      uint64        `json:"amount"`
	Value       uint64        `json:"value"`
	Average     uint64        `json:"average"`
	Fees        exchange.Fees `json:"fees"`
	Net         uint64        `json:"net"`
	PriceBefore uint64        `json:"price_before"`
	PriceAfter  uint64        `json:"price_after"`
	// Liquid is false for a sell the reserve could not pay.
	Liquid bool `json:"liquid"`
}

// Quote prices amount units of a token without trading. Holder-specific
// rules (max-hold, balances) are not checked.
func (e *Engine) Quote(id types.AssetID, side types.Side, amount uint64) (Quote, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	token, err := e.registry.Token(id)
	if err != nil {
		return Quote{}, err
	}
	fees := e.config.Snapshot().Fees
	q, err := QuoteCurve(token.Info().Curve, fees, token.Supply(), token.ReserveValue(), side, amount)
	if err != nil {
		return Quote{}, fmt.Errorf("quote %s: %w", id, err)
	}
	q.Asset = id
	return q, nil
}

// QuoteCurve prices a trade on an arbitrary curve state.
func QuoteCurve(c curve.Curve, schedule exchange.FeeSchedule, supply, reserve uint64, side types.Side, amount uint64) (Quote, error) {
	before, err := c.Price(supply)
	if err != nil {
		return Quote{}, err
	}
	q := Quote{Side: side, Amount: amount, PriceBefore: before, Liquid: true}

	switch side {
	case types.SideBuy:
		q.Value, q.Average, err = c.BuyCost(supply, amount)
		if err != nil {
			return Quote{}, err
		}
		q.PriceAfter, err = c.Price(supply + amount)
	case types.SideSell:
		q.Value, q.Average, err = c.SellRefund(supply, amount)
		if err != nil {
			return Quote{}, err
		}
		q.Liquid = reserve >= q.Value
		q.PriceAfter, err = c.Price(supply - amount)
	default:
		return Quote{}, fmt.Errorf("unknown side %q", side)
	}
	if err != nil {
		return Quote{}, err
	}
	q.Fees = schedule.Split(q.Value)
	q.Net = q.Value - q.Fees.Total
	return q, nil
}
