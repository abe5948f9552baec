// internal/engine/launch.go
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/launchpad/internal/curve"
	"github.com/rovshanmuradov/launchpad/internal/events"
	"github.com/rovshanmuradov/launchpad/internal/registry"
	"github.com/rovshanmuradov/launchpad/internal/reservation"
	"github.com/rovshanmuradov/launchpad/internal/tokenpool"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

const (
	MaxNameLength   = 64
	MaxSymbolLength = 16
)

// LaunchReceipt describes a launched token.
type LaunchReceipt struct {
	Token         tokenpool.View
	InitialSupply uint64
	DustBurned    uint64
	Allocations   []curve.Allocation
}

func validateMetadata(name, symbol string) error {
	name = strings.TrimSpace(name)
	symbol = strings.TrimSpace(symbol)
	if name == "" || len(name) > MaxNameLength || !utf8.ValidString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if symbol == "" || len(symbol) > MaxSymbolLength || !utf8.ValidString(symbol) {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	return nil
}

// Launch converts a funded reservation pool into a token. The escrow becomes
// the pool reserve and contributors receive supply pro rata. Rounding dust is
// burned: circulating supply is the allocated total.
func (e *Engine) Launch(ctx context.Context, caller types.Address, id types.AssetID, name, symbol string) (_ LaunchReceipt, err error) {
	defer func(start time.Time) { e.observe("launch", start, err) }(time.Now())

	if err := e.config.EnsureNotHalted(); err != nil {
		return LaunchReceipt{}, err
	}
	if err := validateMetadata(name, symbol); err != nil {
		return LaunchReceipt{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	pool, err := e.registry.Reservation(id)
	if err != nil {
		return LaunchReceipt{}, fmt.Errorf("launch %s: %w", id, err)
	}
	asset, err := e.resolveAsset(ctx, pool.Asset().Kind, id)
	if err != nil {
		return LaunchReceipt{}, fmt.Errorf("launch %s: %w", id, err)
	}
	if caller != asset.Owner {
		return LaunchReceipt{}, fmt.Errorf("launch %s: %w", id, ErrNotOwner)
	}
	if e.registry.HasToken(id) {
		return LaunchReceipt{}, fmt.Errorf("launch %s: %w", id, registry.ErrTokenExists)
	}
	if pool.Launched() {
		return LaunchReceipt{}, fmt.Errorf("launch %s: %w", id, reservation.ErrAlreadyLaunched)
	}
	if !pool.ThresholdMet() {
		return LaunchReceipt{}, fmt.Errorf("launch %s: %w: %d of %d reserved",
			id, reservation.ErrThresholdNotMet, pool.Total(), pool.Threshold())
	}

	total := pool.Total()
	supply, err := curve.InitialSupply(total, asset.Kind)
	if err != nil {
		return LaunchReceipt{}, fmt.Errorf("launch %s: %w", id, err)
	}
	allocs, dust, err := curve.Allocate(pool.Contributors(), pool.Contributions(), supply, total)
	if err != nil {
		return LaunchReceipt{}, fmt.Errorf("launch %s: %w", id, err)
	}
	params := e.config.Snapshot().Params
	now := e.now()
	info := tokenpool.Info{
		Asset:     asset,
		Name:      strings.TrimSpace(name),
		Symbol:    strings.TrimSpace(symbol),
		Curve:     params.Curve,
		CreatedAt: now,
	}

	// Commit. Every remaining step was validated above.
	escrow, err := pool.Drain()
	if err != nil {
		return LaunchReceipt{}, fmt.Errorf("launch %s: %w", id, err)
	}
	token, err := tokenpool.New(info, escrow, allocs)
	if err != nil {
		return LaunchReceipt{}, fmt.Errorf("launch %s: %w", id, err)
	}
	if err := e.registry.RegisterToken(token); err != nil {
		return LaunchReceipt{}, fmt.Errorf("launch %s: %w", id, err)
	}

	var evts []events.Event
	holders := 0
	for _, a := range allocs {
		if a.Amount == 0 {
			continue
		}
		holders++
		cert, _ := token.Holding(a.Holder)
		evts = append(evts, &events.HolderAllocatedEvent{
			BaseEvent:     events.NewBase(events.HolderAllocated, id, now),
			Holder:        a.Holder,
			Contribution:  a.Contribution,
			Amount:        a.Amount,
			CertificateID: cert.ID,
		})
	}
	evts = append(evts, &events.TokenLaunchedEvent{
		BaseEvent:     events.NewBase(events.TokenLaunched, id, now),
		Kind:          asset.Kind,
		Owner:         asset.Owner,
		Name:          info.Name,
		Symbol:        info.Symbol,
		TotalReserved: total,
		InitialSupply: supply,
		Circulating:   token.Supply(),
		DustBurned:    dust,
		Holders:       holders,
		BasePrice:     info.Curve.BasePrice,
		Coefficient:   info.Curve.Coefficient,
	})
	e.publish(evts...)

	e.logger.Info("Token launched",
		zap.String("asset", string(id)),
		zap.String("symbol", info.Symbol),
		zap.Uint64("reserve", token.ReserveValue()),
		zap.Uint64("supply", token.Supply()),
		zap.Uint64("dust_burned", dust),
		zap.Int("holders", holders))

	return LaunchReceipt{
		Token:         token.View(),
		InitialSupply: supply,
		DustBurned:    dust,
		Allocations:   allocs,
	}, nil
}
