// internal/engine/autolaunch.go
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/launchpad/internal/currency"
	"github.com/rovshanmuradov/launchpad/internal/curve"
	"github.com/rovshanmuradov/launchpad/internal/events"
	"github.com/rovshanmuradov/launchpad/internal/tokenpool"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

// autoSymbol is the symbol given to pools created without a launch.
const autoSymbol = "POST"

// EnsurePostPool guarantees a tradeable pool exists for a post. An existing
// token is returned as is. Otherwise a pool with supply 1 held by the post
// owner and an empty reserve is created, subject to the auto-launch flag, the
// post's opt-out and the per-period throttle. Posts with an open reservation
// pool are refused.
func (e *Engine) EnsurePostPool(ctx context.Context, id types.AssetID) (_ tokenpool.View, err error) {
	defer func(start time.Time) { e.observe("ensure_post_pool", start, err) }(time.Now())

	e.mu.Lock()
	defer e.mu.Unlock()

	if token, err := e.registry.Token(id); err == nil {
		return token.View(), nil
	}
	// A post with a reservation round launches through Launch only.
	if pool, err := e.registry.Reservation(id); err == nil && !pool.Launched() {
		return tokenpool.View{}, fmt.Errorf("auto-launch %s: %w: %d reserved", id, ErrReservationPending, pool.Total())
	}

	if err := e.config.EnsureNotHalted(); err != nil {
		return tokenpool.View{}, err
	}
	post, err := e.posts.Post(ctx, id)
	if err != nil {
		return tokenpool.View{}, fmt.Errorf("auto-launch %s: %w", id, err)
	}
	if post.AutoPoolOptOut {
		return tokenpool.View{}, fmt.Errorf("auto-launch %s: %w", id, ErrAutoLaunchOptOut)
	}
	now := e.now()
	if err := e.config.CheckAutoLaunch(now); err != nil {
		return tokenpool.View{}, fmt.Errorf("auto-launch %s: %w", id, err)
	}

	params := e.config.Snapshot().Params
	info := tokenpool.Info{
		Asset:        types.Asset{ID: id, Kind: types.AssetPost, Owner: post.Owner},
		Name:         string(id),
		Symbol:       autoSymbol,
		Curve:        params.Curve,
		CreatedAt:    now,
		AutoLaunched: true,
	}
	token, err := tokenpool.New(info, currency.Zero(), []curve.Allocation{{Holder: post.Owner, Amount: 1}})
	if err != nil {
		return tokenpool.View{}, fmt.Errorf("auto-launch %s: %w", id, err)
	}

	// Commit.
	if err := e.registry.RegisterToken(token); err != nil {
		return tokenpool.View{}, fmt.Errorf("auto-launch %s: %w", id, err)
	}
	e.config.RecordAutoLaunch(now)

	e.publish(&events.AutoLaunchedEvent{
		BaseEvent: events.NewBase(events.AutoLaunched, id, now),
		Owner:     post.Owner,
		Supply:    token.Supply(),
	})
	e.logger.Info("Post pool auto-launched",
		zap.String("asset", string(id)),
		zap.String("owner", post.Owner.Short()))
	return token.View(), nil
}
