// internal/engine/trade.go
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/launchpad/internal/currency"
	"github.com/rovshanmuradov/launchpad/internal/events"
	"github.com/rovshanmuradov/launchpad/internal/exchange"
	"github.com/rovshanmuradov/launchpad/internal/tokenpool"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

// TradeReceipt describes a committed buy or sell.
type TradeReceipt struct {
	Asset  types.AssetID
	Side   types.Side
	Trader types.Address
	Amount uint64
	// Value is the curve cost of a buy or the gross refund of a sell.
	Value   uint64
	Average uint64
	Fees    exchange.Fees
	// Redirected is the part of the creator fee sent to the redirect target.
	Redirected uint64
	// Net is what joined the reserve on a buy or what the seller received.
	Net uint64
	// Refund is the overpayment returned to a buyer.
	Refund      uint64
	Certificate tokenpool.Certificate
	Supply      uint64
	Reserve     uint64
	Price       uint64
}

// Buy opens the caller's first position in a token. payment must cover the
// curve cost; any excess is refunded. On error the payment is untouched.
func (e *Engine) Buy(ctx context.Context, caller types.Address, id types.AssetID, amount uint64, payment *currency.Coin) (TradeReceipt, error) {
	return e.buy(ctx, "buy", caller, id, amount, payment, true)
}

// BuyMore adds to an existing position.
func (e *Engine) BuyMore(ctx context.Context, caller types.Address, id types.AssetID, amount uint64, payment *currency.Coin) (TradeReceipt, error) {
	return e.buy(ctx, "buy_more", caller, id, amount, payment, false)
}

func (e *Engine) buy(ctx context.Context, op string, caller types.Address, id types.AssetID, amount uint64, payment *currency.Coin, first bool) (_ TradeReceipt, err error) {
	defer func(start time.Time) { e.observe(op, start, err) }(time.Now())

	if err := e.config.EnsureNotHalted(); err != nil {
		return TradeReceipt{}, err
	}
	if payment == nil {
		return TradeReceipt{}, fmt.Errorf("%s %s: %w", op, id, currency.ErrNilCoin)
	}

	return e.commitBuy(ctx, op, caller, id, amount, payment, first)
}

func (e *Engine) commitBuy(ctx context.Context, op string, caller types.Address, id types.AssetID, amount uint64, payment *currency.Coin, first bool) (TradeReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	token, err := e.registry.Token(id)
	if err != nil {
		return TradeReceipt{}, fmt.Errorf("%s %s: %w", op, id, err)
	}
	owner := token.Owner()
	if caller == owner {
		return TradeReceipt{}, fmt.Errorf("%s %s: %w", op, id, ErrSelfTrade)
	}
	blocked, err := e.blocks.IsBlocked(ctx, owner, caller)
	if err != nil {
		return TradeReceipt{}, fmt.Errorf("%s %s: block list: %w", op, id, err)
	}
	if blocked {
		return TradeReceipt{}, fmt.Errorf("%s %s: %w", op, id, ErrBlocked)
	}

	params := e.config.Snapshot().Params
	plan, err := token.PrepareBuy(caller, amount, params, first)
	if err != nil {
		return TradeReceipt{}, fmt.Errorf("%s %s: %w", op, id, err)
	}
	if payment.Value() < plan.Cost {
		return TradeReceipt{}, fmt.Errorf("%s %s: %w: paid %d, cost %d",
			op, id, ErrInsufficientPayment, payment.Value(), plan.Cost)
	}

	payouts, redirected := e.feePayouts(plan.Fees, owner, token.Redirect())
	overpaid := payment.Value() - plan.Cost
	if err := e.checkPayouts(ctx, append(payouts, payout{to: caller, amount: overpaid, label: "overpayment"})); err != nil {
		return TradeReceipt{}, fmt.Errorf("%s %s: %w", op, id, err)
	}

	// Commit. payment covers Cost = NetToPool + Fees.Total, so no split
	// below can fail.
	net, err := payment.Split(plan.NetToPool)
	if err != nil {
		return TradeReceipt{}, fmt.Errorf("%s %s: %w", op, id, err)
	}
	transfers, err := fund(payment, payouts)
	if err != nil {
		return TradeReceipt{}, fmt.Errorf("%s %s: %w", op, id, err)
	}
	now := e.now()
	cert, err := token.ApplyBuy(plan, net, now)
	if err != nil {
		return TradeReceipt{}, fmt.Errorf("%s %s: %w", op, id, err)
	}
	refund := payment.Take()
	transfers = append(transfers, transfer{
		payout: payout{to: caller, amount: refund.Value(), label: "overpayment"},
		coin:   refund,
	})
	e.settle(ctx, transfers)

	receipt := TradeReceipt{
		Asset:       id,
		Side:        types.SideBuy,
		Trader:      caller,
		Amount:      plan.Amount,
		Value:       plan.Cost,
		Average:     plan.Average,
		Fees:        plan.Fees,
		Redirected:  redirected,
		Net:         plan.NetToPool,
		Refund:      refund.Value(),
		Certificate: cert,
		Supply:      token.Supply(),
		Reserve:     token.ReserveValue(),
		Price:       plan.NewPrice,
	}
	e.publish(tradeEvent(receipt, owner, now, first))

	e.logger.Debug("Buy executed",
		zap.String("asset", string(id)),
		zap.String("buyer", caller.Short()),
		zap.Uint64("amount", plan.Amount),
		zap.Uint64("cost", plan.Cost),
		zap.Uint64("fee", plan.Fees.Total),
		zap.Uint64("price", plan.NewPrice))
	return receipt, nil
}

// Sell returns amount tokens to the curve. The fee is taken from the refund
// and the reserve has to cover the gross refund.
func (e *Engine) Sell(ctx context.Context, caller types.Address, id types.AssetID, amount uint64) (_ TradeReceipt, err error) {
	defer func(start time.Time) { e.observe("sell", start, err) }(time.Now())

	if err := e.config.EnsureNotHalted(); err != nil {
		return TradeReceipt{}, err
	}

	return e.commitSell(ctx, caller, id, amount)
}

func (e *Engine) commitSell(ctx context.Context, caller types.Address, id types.AssetID, amount uint64) (TradeReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	token, err := e.registry.Token(id)
	if err != nil {
		return TradeReceipt{}, fmt.Errorf("sell %s: %w", id, err)
	}
	owner := token.Owner()
	if caller == owner {
		return TradeReceipt{}, fmt.Errorf("sell %s: %w", id, ErrSelfTrade)
	}

	params := e.config.Snapshot().Params
	plan, err := token.PrepareSell(caller, amount, params.Fees)
	if err != nil {
		return TradeReceipt{}, fmt.Errorf("sell %s: %w", id, err)
	}

	payouts, redirected := e.feePayouts(plan.Fees, owner, token.Redirect())
	payouts = append(payouts, payout{to: caller, amount: plan.NetRefund, label: "sell_proceeds"})
	if err := e.checkPayouts(ctx, payouts); err != nil {
		return TradeReceipt{}, fmt.Errorf("sell %s: %w", id, err)
	}

	// Commit. gross is NetRefund + Fees.Total, the sum of payouts.
	gross, cert, err := token.ApplySell(plan)
	if err != nil {
		return TradeReceipt{}, fmt.Errorf("sell %s: %w", id, err)
	}
	transfers, err := fund(gross, payouts)
	if err != nil {
		return TradeReceipt{}, fmt.Errorf("sell %s: %w", id, err)
	}
	e.settle(ctx, transfers)

	now := e.now()
	receipt := TradeReceipt{
		Asset:       id,
		Side:        types.SideSell,
		Trader:      caller,
		Amount:      plan.Amount,
		Value:       plan.Refund,
		Average:     plan.Average,
		Fees:        plan.Fees,
		Redirected:  redirected,
		Net:         plan.NetRefund,
		Certificate: cert,
		Supply:      token.Supply(),
		Reserve:     token.ReserveValue(),
		Price:       plan.NewPrice,
	}
	e.publish(tradeEvent(receipt, owner, now, false))

	e.logger.Debug("Sell executed",
		zap.String("asset", string(id)),
		zap.String("seller", caller.Short()),
		zap.Uint64("amount", plan.Amount),
		zap.Uint64("refund", plan.Refund),
		zap.Uint64("fee", plan.Fees.Total),
		zap.Uint64("price", plan.NewPrice))
	return receipt, nil
}

func tradeEvent(r TradeReceipt, owner types.Address, at time.Time, firstBuy bool) events.Event {
	return &events.TradeEvent{
		BaseEvent:  events.NewBase(events.TradeExecuted, r.Asset, at),
		Side:       r.Side,
		Trader:     r.Trader,
		Owner:      owner,
		Amount:     r.Amount,
		Value:      r.Value,
		Average:    r.Average,
		Fees:       r.Fees,
		Redirected: r.Redirected,
		Net:        r.Net,
		Supply:     r.Supply,
		Reserve:    r.Reserve,
		Price:      r.Price,
		Balance:    r.Certificate.Balance,
		FirstBuy:   firstBuy,
	}
}
