// internal/social/social.go
package social

import (
	"context"
	"errors"

	"github.com/rovshanmuradov/launchpad/internal/currency"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

var (
	ErrPostNotFound    = errors.New("post not found")
	ErrProfileNotFound = errors.New("profile not found")
)

// Redirect routes a share of creator fees away from the current owner.
type Redirect struct {
	To      types.Address
	Percent uint64 // 0..100
}

// Post is the read-only view of a post the exchange needs.
type Post struct {
	ID             types.AssetID
	Owner          types.Address
	Redirect       *Redirect
	AutoPoolOptOut bool
}

// Profile is the read-only view of a profile the exchange needs.
type Profile struct {
	ID    types.AssetID
	Owner types.Address
}

// BlockList answers whether blocker has blocked blocked.
type BlockList interface {
	IsBlocked(ctx context.Context, blocker, blocked types.Address) (bool, error)
}

// Treasury accepts platform fee deposits.
type Treasury interface {
	CanAddToTreasury(ctx context.Context, platform string, value uint64) error
	AddToTreasury(ctx context.Context, platform string, coin *currency.Coin) error
}

// Posts looks up posts by id.
type Posts interface {
	Post(ctx context.Context, id types.AssetID) (Post, error)
}

// Profiles looks up profiles by id.
type Profiles interface {
	Profile(ctx context.Context, id types.AssetID) (Profile, error)
}

// Asset resolves an asset id of the given kind into owner information.
func Asset(ctx context.Context, posts Posts, profiles Profiles, kind types.AssetKind, id types.AssetID) (types.Asset, error) {
	switch kind {
	case types.AssetPost:
		p, err := posts.Post(ctx, id)
		if err != nil {
			return types.Asset{}, err
		}
		return types.Asset{ID: p.ID, Kind: types.AssetPost, Owner: p.Owner}, nil
	case types.AssetProfile:
		p, err := profiles.Profile(ctx, id)
		if err != nil {
			return types.Asset{}, err
		}
		return types.Asset{ID: p.ID, Kind: types.AssetProfile, Owner: p.Owner}, nil
	default:
		return types.Asset{}, types.ErrUnknownAssetKind
	}
}
