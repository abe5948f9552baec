// internal/engine/reserve.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/launchpad/internal/currency"
	"github.com/rovshanmuradov/launchpad/internal/events"
	"github.com/rovshanmuradov/launchpad/internal/registry"
	"github.com/rovshanmuradov/launchpad/internal/reservation"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

// ReserveReceipt describes a committed reservation.
type ReserveReceipt struct {
	Asset        types.AssetID
	Contributor  types.Address
	Amount       uint64
	Contribution uint64
	PoolTotal    uint64
	Threshold    uint64
	// ThresholdReached is set only on the reservation that first met the
	// threshold.
	ThresholdReached bool
}

// WithdrawReceipt describes a committed withdrawal.
type WithdrawReceipt struct {
	Asset        types.AssetID
	Contributor  types.Address
	Amount       uint64
	Contribution uint64
	PoolTotal    uint64
}

// CreateReservationPool opens an empty reservation pool for an asset the
// caller owns.
func (e *Engine) CreateReservationPool(ctx context.Context, caller types.Address, kind types.AssetKind, id types.AssetID) (_ reservation.View, err error) {
	defer func(start time.Time) { e.observe("create_pool", start, err) }(time.Now())

	if err := e.config.EnsureNotHalted(); err != nil {
		return reservation.View{}, err
	}
	asset, err := e.resolveAsset(ctx, kind, id)
	if err != nil {
		return reservation.View{}, err
	}
	if caller != asset.Owner {
		return reservation.View{}, fmt.Errorf("create pool %s: %w", id, ErrNotOwner)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.registry.HasToken(id) {
		return reservation.View{}, fmt.Errorf("create pool %s: %w", id, reservation.ErrAlreadyLaunched)
	}
	pool, err := e.newReservationPool(asset)
	if err != nil {
		return reservation.View{}, fmt.Errorf("create pool %s: %w", id, err)
	}
	if err := e.registry.RegisterReservation(pool); err != nil {
		return reservation.View{}, fmt.Errorf("create pool %s: %w", id, err)
	}

	e.publish(poolCreatedEvent(pool))
	e.logger.Info("Reservation pool created",
		zap.String("asset", string(id)),
		zap.String("kind", string(kind)),
		zap.Uint64("threshold", pool.Threshold()))
	return pool.View(), nil
}

func (e *Engine) newReservationPool(asset types.Asset) (*reservation.Pool, error) {
	params := e.config.Snapshot().Params
	threshold := params.ThresholdFor(asset.Kind)
	if threshold == 0 {
		return nil, types.ErrUnknownAssetKind
	}
	return reservation.New(asset, threshold, e.now()), nil
}

func poolCreatedEvent(pool *reservation.Pool) events.Event {
	asset := pool.Asset()
	return &events.PoolCreatedEvent{
		BaseEvent: events.NewBase(events.PoolCreated, asset.ID, pool.CreatedAt()),
		Kind:      asset.Kind,
		Owner:     asset.Owner,
		Threshold: pool.Threshold(),
	}
}

// Reserve escrows the whole payment toward the asset's launch. The pool is
// created on the first reservation. On error the payment is untouched.
func (e *Engine) Reserve(ctx context.Context, caller types.Address, kind types.AssetKind, id types.AssetID, payment *currency.Coin) (_ ReserveReceipt, err error) {
	defer func(start time.Time) { e.observe("reserve", start, err) }(time.Now())

	if err := e.config.EnsureNotHalted(); err != nil {
		return ReserveReceipt{}, err
	}
	if payment == nil {
		return ReserveReceipt{}, fmt.Errorf("reserve %s: %w", id, currency.ErrNilCoin)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.registry.HasToken(id) {
		return ReserveReceipt{}, fmt.Errorf("reserve %s: %w", id, reservation.ErrAlreadyLaunched)
	}

	pool, err := e.registry.Reservation(id)
	created := false
	switch {
	case err == nil:
		if pool.Asset().Kind != kind {
			return ReserveReceipt{}, fmt.Errorf("reserve %s: %w: pool is a %s pool, got %s", id, ErrAssetKindMismatch, pool.Asset().Kind, kind)
		}
	case errors.Is(err, registry.ErrReservationNotFound):
		asset, err := e.resolveAsset(ctx, kind, id)
		if err != nil {
			return ReserveReceipt{}, fmt.Errorf("reserve %s: %w", id, err)
		}
		if pool, err = e.newReservationPool(asset); err != nil {
			return ReserveReceipt{}, fmt.Errorf("reserve %s: %w", id, err)
		}
		created = true
	default:
		return ReserveReceipt{}, err
	}

	params := e.config.Snapshot().Params
	plan, err := pool.PrepareReserve(caller, payment.Value(), params.MaxReservation(pool.Threshold()))
	if err != nil {
		return ReserveReceipt{}, fmt.Errorf("reserve %s: %w", id, err)
	}

	// Commit.
	if created {
		if err := e.registry.RegisterReservation(pool); err != nil {
			return ReserveReceipt{}, fmt.Errorf("reserve %s: %w", id, err)
		}
	}
	if err := pool.ApplyReserve(plan, payment); err != nil {
		return ReserveReceipt{}, fmt.Errorf("reserve %s: %w", id, err)
	}

	now := e.now()
	var evts []events.Event
	if created {
		evts = append(evts, poolCreatedEvent(pool))
	}
	evts = append(evts, &events.ReservationCreatedEvent{
		BaseEvent:    events.NewBase(events.ReservationCreated, id, now),
		Contributor:  caller,
		Amount:       plan.Amount,
		Contribution: plan.NewContribution,
		PoolTotal:    plan.NewTotal,
	})
	if plan.ReachesThreshold {
		evts = append(evts, &events.ThresholdMetEvent{
			BaseEvent: events.NewBase(events.ThresholdMet, id, now),
			Threshold: pool.Threshold(),
			PoolTotal: plan.NewTotal,
		})
	}
	e.publish(evts...)

	e.logger.Debug("Reservation accepted",
		zap.String("asset", string(id)),
		zap.String("contributor", caller.Short()),
		zap.Uint64("amount", plan.Amount),
		zap.Uint64("pool_total", plan.NewTotal))
	if plan.ReachesThreshold {
		e.logger.Info("Reservation threshold met",
			zap.String("asset", string(id)),
			zap.Uint64("threshold", pool.Threshold()))
	}

	return ReserveReceipt{
		Asset:            id,
		Contributor:      caller,
		Amount:           plan.Amount,
		Contribution:     plan.NewContribution,
		PoolTotal:        plan.NewTotal,
		Threshold:        pool.Threshold(),
		ThresholdReached: plan.ReachesThreshold,
	}, nil
}

// Withdraw returns part or all of the caller's reservation before launch.
func (e *Engine) Withdraw(ctx context.Context, caller types.Address, id types.AssetID, amount uint64) (_ WithdrawReceipt, err error) {
	defer func(start time.Time) { e.observe("withdraw", start, err) }(time.Now())

	if err := e.config.EnsureNotHalted(); err != nil {
		return WithdrawReceipt{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	pool, err := e.registry.Reservation(id)
	if err != nil {
		return WithdrawReceipt{}, fmt.Errorf("withdraw %s: %w", id, err)
	}
	back := payout{to: caller, amount: amount, label: "withdrawal"}
	if err := e.checkPayouts(ctx, []payout{back}); err != nil {
		return WithdrawReceipt{}, fmt.Errorf("withdraw %s: %w", id, err)
	}

	// Commit.
	refund, err := pool.Withdraw(caller, amount)
	if err != nil {
		return WithdrawReceipt{}, fmt.Errorf("withdraw %s: %w", id, err)
	}
	e.settle(ctx, []transfer{{payout: back, coin: refund}})

	receipt := WithdrawReceipt{
		Asset:        id,
		Contributor:  caller,
		Amount:       amount,
		Contribution: pool.Contribution(caller),
		PoolTotal:    pool.Total(),
	}
	e.publish(&events.ReservationWithdrawnEvent{
		BaseEvent:    events.NewBase(events.ReservationWithdrawn, id, e.now()),
		Contributor:  caller,
		Amount:       amount,
		Contribution: receipt.Contribution,
		PoolTotal:    receipt.PoolTotal,
	})
	return receipt, nil
}
