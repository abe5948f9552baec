// internal/types/types.go
package types

import (
	"errors"
	"fmt"
	"strings"
)

// Address identifies an account on the ledger: a user, a treasury or a pool.
type Address string

// String returns the address as a plain string.
func (a Address) String() string { return string(a) }

// IsZero reports whether the address is empty.
func (a Address) IsZero() bool { return a == "" }

// Short returns an abbreviated form used in log lines.
func (a Address) Short() string {
	if len(a) <= 10 {
		return string(a)
	}
	return string(a[:6]) + ".." + string(a[len(a)-4:])
}

// AssetID identifies the post or profile a token is tied to.
type AssetID string

func (id AssetID) String() string { return string(id) }

// AssetKind tells posts and profiles apart.
type AssetKind string

const (
	AssetPost    AssetKind = "post"
	AssetProfile AssetKind = "profile"
)

var ErrUnknownAssetKind = errors.New("unknown asset kind")

// ParseAssetKind converts user input into an AssetKind.
func ParseAssetKind(s string) (AssetKind, error) {
	switch AssetKind(strings.ToLower(strings.TrimSpace(s))) {
	case AssetPost:
		return AssetPost, nil
	case AssetProfile:
		return AssetProfile, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAssetKind, s)
	}
}

// Asset is a reference to a post or profile together with its owner.
type Asset struct {
	ID    AssetID
	Kind  AssetKind
	Owner Address
}

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

var ErrUnknownSide = errors.New("unknown trade side")

// ParseSide converts user input into a Side.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSide, s)
	}
}
