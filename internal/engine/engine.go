// internal/engine/engine.go
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/launchpad/internal/currency"
	"github.com/rovshanmuradov/launchpad/internal/events"
	"github.com/rovshanmuradov/launchpad/internal/exchange"
	"github.com/rovshanmuradov/launchpad/internal/metrics"
	"github.com/rovshanmuradov/launchpad/internal/registry"
	"github.com/rovshanmuradov/launchpad/internal/reservation"
	"github.com/rovshanmuradov/launchpad/internal/social"
	"github.com/rovshanmuradov/launchpad/internal/tokenpool"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

// Options wires the engine to its collaborators.
type Options struct {
	Config    *exchange.Config
	Registry  *registry.Registry
	Payer     currency.Payer
	BlockList social.BlockList
	Treasury  social.Treasury
	Posts     social.Posts
	Profiles  social.Profiles
	Publisher events.Publisher

	// Platform names the platform treasury that receives the platform fee.
	Platform string
	// EcosystemTreasury receives the treasury fee share.
	EcosystemTreasury types.Address

	// Optional.
	Metrics *metrics.Collector
	Logger  *zap.Logger
	Clock   func() time.Time
}

// Engine executes every reservation, launch and trade. All writers are
// serialized by mu; each operation validates before it mutates, so a
// rejected call leaves no trace.
type Engine struct {
	mu sync.RWMutex

	config    *exchange.Config
	registry  *registry.Registry
	payer     currency.Payer
	blocks    social.BlockList
	treasury  social.Treasury
	posts     social.Posts
	profiles  social.Profiles
	publisher events.Publisher

	platform          string
	ecosystemTreasury types.Address

	// unclaimed holds payouts whose delivery failed after commit.
	unclaimed []transfer

	metrics *metrics.Collector
	logger  *zap.Logger
	now     func() time.Time
}

// New validates the options and creates an engine.
func New(opts Options) (*Engine, error) {
	missing := func(name string) error {
		return fmt.Errorf("%w: %s", ErrMissingDependency, name)
	}
	switch {
	case opts.Config == nil:
		return nil, missing("config")
	case opts.Registry == nil:
		return nil, missing("registry")
	case opts.Payer == nil:
		return nil, missing("payer")
	case opts.BlockList == nil:
		return nil, missing("block list")
	case opts.Treasury == nil:
		return nil, missing("treasury")
	case opts.Posts == nil:
		return nil, missing("posts")
	case opts.Profiles == nil:
		return nil, missing("profiles")
	case opts.Publisher == nil:
		return nil, missing("publisher")
	case opts.Platform == "":
		return nil, missing("platform")
	case opts.EcosystemTreasury.IsZero():
		return nil, missing("ecosystem treasury")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Engine{
		config:            opts.Config,
		registry:          opts.Registry,
		payer:             opts.Payer,
		blocks:            opts.BlockList,
		treasury:          opts.Treasury,
		posts:             opts.Posts,
		profiles:          opts.Profiles,
		publisher:         opts.Publisher,
		platform:          opts.Platform,
		ecosystemTreasury: opts.EcosystemTreasury,
		metrics:           opts.Metrics,
		logger:            logger.Named("engine"),
		now:               clock,
	}, nil
}

// observe records the outcome of an operation. Call it deferred with the
// named error result.
func (e *Engine) observe(op string, start time.Time, err error) {
	kind := ""
	if err != nil {
		k := Classify(err)
		kind = k.String()
		e.logger.Debug("Operation rejected",
			zap.String("operation", op),
			zap.String("kind", kind),
			zap.Error(err))
	}
	e.metrics.RecordOperation(op, time.Since(start), kind)
}

// publish hands committed events to the publisher. It runs while the write
// lock is still held so subscribers see events in commit order. A publisher
// failure cannot undo the commit and is only logged.
func (e *Engine) publish(evts ...events.Event) {
	for _, ev := range evts {
		if err := e.publisher.Publish(ev); err != nil {
			e.metrics.RecordEventDropped(ev.Type())
			e.logger.Error("Committed event not published",
				zap.String("event_type", string(ev.Type())),
				zap.String("event_id", ev.ID()),
				zap.Error(err))
		}
	}
}

// resolveAsset looks up the current owner of an asset.
func (e *Engine) resolveAsset(ctx context.Context, kind types.AssetKind, id types.AssetID) (types.Asset, error) {
	return social.Asset(ctx, e.posts, e.profiles, kind, id)
}

// TokenInfo returns a view of a launched token.
func (e *Engine) TokenInfo(id types.AssetID) (tokenpool.View, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	pool, err := e.registry.Token(id)
	if err != nil {
		return tokenpool.View{}, err
	}
	return pool.View(), nil
}

// Tokens lists every launched token in launch order.
func (e *Engine) Tokens() []tokenpool.View {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.Tokens()
}

// ReservationPool returns a view of an asset's reservation pool.
func (e *Engine) ReservationPool(id types.AssetID) (reservation.View, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	pool, err := e.registry.Reservation(id)
	if err != nil {
		return reservation.View{}, err
	}
	return pool.View(), nil
}

// Holding returns addr's certificate in a token.
func (e *Engine) Holding(id types.AssetID, addr types.Address) (tokenpool.Certificate, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	pool, err := e.registry.Token(id)
	if err != nil {
		return tokenpool.Certificate{}, err
	}
	cert, ok := pool.Holding(addr)
	if !ok {
		return tokenpool.Certificate{}, fmt.Errorf("%w: %s in %s", tokenpool.ErrNoHolding, addr.Short(), id)
	}
	return cert, nil
}

// Holders returns every certificate of a token ordered by holder.
func (e *Engine) Holders(id types.AssetID) ([]tokenpool.Certificate, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	pool, err := e.registry.Token(id)
	if err != nil {
		return nil, err
	}
	return pool.Holders(), nil
}

// ConfigSnapshot returns the current exchange configuration.
func (e *Engine) ConfigSnapshot() exchange.Snapshot {
	return e.config.Snapshot()
}

// Stats summarises the registry.
func (e *Engine) Stats() registry.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.Stats()
}
