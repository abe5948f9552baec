// internal/engine/settle.go
package engine

import (
	"context"
	"fmt"

	smath "github.com/ava-labs/avalanchego/utils/math"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/launchpad/internal/currency"
	"github.com/rovshanmuradov/launchpad/internal/exchange"
	"github.com/rovshanmuradov/launchpad/internal/tokenpool"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

// payout is one outgoing payment of an operation, planned before commit.
type payout struct {
	to     types.Address
	amount uint64
	label  string
	// platform routes the payment to the platform treasury instead of an
	// address.
	platform bool
}

// transfer is a funded payout.
type transfer struct {
	payout
	coin *currency.Coin
}

// feePayouts plans the fee breakdown. The creator share goes through the
// revenue redirect.
func (e *Engine) feePayouts(fees exchange.Fees, owner types.Address, redirect *tokenpool.Redirect) ([]payout, uint64) {
	var out []payout
	var redirected uint64

	routes := tokenpool.RouteCreatorFee(fees.Creator, owner, redirect)
	for i, p := range routes {
		label := "creator_fee"
		// With a redirect the target comes first.
		if len(routes) > 1 && i == 0 {
			label = "redirected_fee"
			redirected = p.Amount
		}
		out = append(out, payout{to: p.To, amount: p.Amount, label: label})
	}
	out = append(out,
		payout{amount: fees.Platform, label: "platform_fee", platform: true},
		payout{to: e.ecosystemTreasury, amount: fees.Treasury, label: "treasury_fee"},
	)
	return out, redirected
}

// checkPayouts verifies every recipient can accept what the operation will
// send it. Amounts to the same recipient are summed first.
func (e *Engine) checkPayouts(ctx context.Context, payouts []payout) error {
	type key struct {
		platform bool
		to       types.Address
	}
	totals := make(map[key]uint64, len(payouts))
	var order []key
	for _, p := range payouts {
		if p.amount == 0 {
			continue
		}
		k := key{platform: p.platform, to: p.to}
		if _, ok := totals[k]; !ok {
			order = append(order, k)
		}
		sum, err := smath.Add(totals[k], p.amount)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrPayoutRejected, p.label, err)
		}
		totals[k] = sum
	}

	for _, k := range order {
		var err error
		if k.platform {
			err = e.treasury.CanAddToTreasury(ctx, e.platform, totals[k])
		} else {
			err = e.payer.CanPay(ctx, k.to, totals[k])
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPayoutRejected, err)
		}
	}
	return nil
}

// fund splits each payout out of source. source must hold the sum.
func fund(source *currency.Coin, payouts []payout) ([]transfer, error) {
	out := make([]transfer, 0, len(payouts))
	for _, p := range payouts {
		coin, err := source.Split(p.amount)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.label, err)
		}
		out = append(out, transfer{payout: p, coin: coin})
	}
	return out, nil
}

// settle delivers transfers. It runs under the write lock after
// checkPayouts accepted the same payouts, so a delivery can only fail when a
// collaborator changed underneath. Such coins are parked as unclaimed and
// retried by RetryPayouts instead of being lost.
func (e *Engine) settle(ctx context.Context, transfers []transfer) {
	for _, t := range transfers {
		if t.coin == nil || t.coin.Value() == 0 {
			continue
		}
		if err := e.deliver(ctx, t); err != nil {
			e.unclaimed = append(e.unclaimed, t)
			e.logger.Error("Payout failed, parked as unclaimed",
				zap.String("kind", t.label),
				zap.String("to", t.to.Short()),
				zap.Uint64("amount", t.coin.Value()),
				zap.Error(err))
		}
	}
}

func (e *Engine) deliver(ctx context.Context, t transfer) error {
	if t.platform {
		return e.treasury.AddToTreasury(ctx, e.platform, t.coin)
	}
	return e.payer.Pay(ctx, t.to, t.coin)
}

// Unclaimed returns the total value of payouts that could not be delivered.
func (e *Engine) Unclaimed() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var total uint64
	for _, t := range e.unclaimed {
		total += t.coin.Value()
	}
	return total
}

// RetryPayouts tries to deliver parked payouts again and keeps the ones that
// still fail. It returns the first delivery error.
func (e *Engine) RetryPayouts(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		pending  []transfer
		firstErr error
	)
	for _, t := range e.unclaimed {
		if err := e.deliver(ctx, t); err != nil {
			pending = append(pending, t)
			if firstErr == nil {
				firstErr = fmt.Errorf("retry %s to %s: %w", t.label, t.to, err)
			}
		}
	}
	e.unclaimed = pending
	return firstErr
}
