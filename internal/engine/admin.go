// internal/engine/admin.go
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/launchpad/internal/events"
	"github.com/rovshanmuradov/launchpad/internal/exchange"
	"github.com/rovshanmuradov/launchpad/internal/tokenpool"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

// UpdateConfig replaces the exchange parameters. Admin only. Tokens already
// launched keep the curve they were launched with.
func (e *Engine) UpdateConfig(_ context.Context, caller types.Address, params exchange.Params) (_ exchange.Snapshot, err error) {
	defer func(start time.Time) { e.observe("update_config", start, err) }(time.Now())

	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.config.Update(caller, params)
	if err != nil {
		return exchange.Snapshot{}, fmt.Errorf("update config: %w", err)
	}
	e.publish(&events.ConfigUpdatedEvent{
		BaseEvent: events.NewBase(events.ConfigUpdated, "", e.now()),
		Caller:    caller,
		Config:    snap,
	})
	e.logger.Info("Exchange config updated", zap.Uint64("revision", snap.Revision))
	return snap, nil
}

// ToggleKillSwitch halts or resumes every reservation, launch and trade.
// Admin only.
func (e *Engine) ToggleKillSwitch(_ context.Context, caller types.Address, halt bool, reason string) (_ exchange.Snapshot, err error) {
	defer func(start time.Time) { e.observe("kill_switch", start, err) }(time.Now())

	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.config.ToggleKillSwitch(caller, halt, reason)
	if err != nil {
		return exchange.Snapshot{}, fmt.Errorf("kill switch: %w", err)
	}
	e.publish(&events.KillSwitchToggledEvent{
		BaseEvent: events.NewBase(events.KillSwitchToggled, "", e.now()),
		Caller:    caller,
		Halted:    snap.Halted,
		Reason:    snap.HaltReason,
	})
	if halt {
		e.logger.Warn("Trading halted", zap.String("reason", reason))
	} else {
		e.logger.Info("Trading resumed")
	}
	return snap, nil
}

// SyncRevenueRedirect copies the post's revenue redirect into its token pool,
// clearing it when the post has none. Only the post owner may call it.
func (e *Engine) SyncRevenueRedirect(ctx context.Context, caller types.Address, id types.AssetID) (_ *tokenpool.Redirect, err error) {
	defer func(start time.Time) { e.observe("sync_redirect", start, err) }(time.Now())

	e.mu.Lock()
	defer e.mu.Unlock()

	token, err := e.registry.Token(id)
	if err != nil {
		return nil, fmt.Errorf("sync redirect %s: %w", id, err)
	}
	if token.Info().Asset.Kind != types.AssetPost {
		return nil, fmt.Errorf("sync redirect %s: %w", id, tokenpool.ErrNotPostToken)
	}
	post, err := e.posts.Post(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("sync redirect %s: %w", id, err)
	}
	if caller != post.Owner {
		return nil, fmt.Errorf("sync redirect %s: %w", id, ErrNotOwner)
	}

	var redirect *tokenpool.Redirect
	if post.Redirect != nil {
		redirect = &tokenpool.Redirect{To: post.Redirect.To, Percent: post.Redirect.Percent}
	}
	if err := token.SetRedirect(redirect); err != nil {
		return nil, fmt.Errorf("sync redirect %s: %w", id, err)
	}

	ev := &events.RedirectUpdatedEvent{
		BaseEvent: events.NewBase(events.RedirectUpdated, id, e.now()),
		Cleared:   redirect == nil,
	}
	if redirect != nil {
		ev.To = redirect.To
		ev.Percent = redirect.Percent
	}
	e.publish(ev)
	return token.Redirect(), nil
}
