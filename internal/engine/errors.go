// internal/engine/errors.go
package engine

import (
	"errors"

	smath "github.com/ava-labs/avalanchego/utils/math"

	"github.com/rovshanmuradov/launchpad/internal/currency"
	"github.com/rovshanmuradov/launchpad/internal/curve"
	"github.com/rovshanmuradov/launchpad/internal/exchange"
	"github.com/rovshanmuradov/launchpad/internal/registry"
	"github.com/rovshanmuradov/launchpad/internal/reservation"
	"github.com/rovshanmuradov/launchpad/internal/social"
	"github.com/rovshanmuradov/launchpad/internal/tokenpool"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

var (
	ErrNotOwner            = errors.New("caller is not the asset owner")
	ErrSelfTrade           = errors.New("the token owner cannot trade its own token")
	ErrBlocked             = errors.New("buyer is blocked by the token owner")
	ErrInsufficientPayment = errors.New("payment does not cover the cost")
	ErrInvalidName         = errors.New("invalid token name")
	ErrInvalidSymbol       = errors.New("invalid token symbol")
	ErrAutoLaunchOptOut    = errors.New("post opted out of automatic pools")
	ErrMissingDependency   = errors.New("engine dependency is missing")
	ErrPayoutRejected      = errors.New("a recipient cannot accept its payout")
	ErrReservationPending  = errors.New("asset has an open reservation pool")
	ErrAssetKindMismatch   = errors.New("asset kind does not match the existing pool")
)

// Kind is the reason-code class of a rejected operation.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthorization
	KindInvariant
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindInvariant:
		return "invariant"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

var authorizationErrors = []error{
	ErrNotOwner,
	ErrSelfTrade,
	ErrBlocked,
	exchange.ErrNotAdmin,
}

var configurationErrors = []error{
	exchange.ErrFeeSharesMismatch,
	exchange.ErrInvalidBasisPoints,
	exchange.ErrInvalidThreshold,
	exchange.ErrInvalidThrottle,
	exchange.ErrMissingAdmin,
	curve.ErrInvalidParams,
	ErrMissingDependency,
}

var invariantErrors = []error{
	ErrInsufficientPayment,
	ErrInvalidName,
	ErrInvalidSymbol,
	ErrAutoLaunchOptOut,
	ErrPayoutRejected,
	ErrReservationPending,
	ErrAssetKindMismatch,
	exchange.ErrTradingHalted,
	exchange.ErrAutoLaunchDisabled,
	exchange.ErrAutoLaunchThrottled,
	curve.ErrOverflow,
	curve.ErrInsufficientSupply,
	curve.ErrNothingReserved,
	reservation.ErrZeroAmount,
	reservation.ErrAlreadyLaunched,
	reservation.ErrIndividualCapExceeded,
	reservation.ErrInsufficientReserved,
	reservation.ErrPaymentMismatch,
	reservation.ErrThresholdNotMet,
	tokenpool.ErrZeroAmount,
	tokenpool.ErrAlreadyHolder,
	tokenpool.ErrNoHolding,
	tokenpool.ErrMaxHoldExceeded,
	tokenpool.ErrInsufficientBalance,
	tokenpool.ErrInsufficientLiquidity,
	tokenpool.ErrNotPostToken,
	tokenpool.ErrInvalidRedirect,
	tokenpool.ErrAllocationSumMismatch,
	tokenpool.ErrReserveAmountMismatch,
	registry.ErrTokenExists,
	registry.ErrTokenNotFound,
	registry.ErrReservationExists,
	registry.ErrReservationNotFound,
	social.ErrPostNotFound,
	social.ErrProfileNotFound,
	types.ErrUnknownAssetKind,
	types.ErrUnknownSide,
	types.ErrMulDivOverflow,
	currency.ErrInsufficientValue,
	currency.ErrNilCoin,
	smath.ErrOverflow,
	smath.ErrUnderflow,
}

// Classify maps an engine error onto its reason-code class. Authorization
// is checked first so a wrapped chain that mentions both reports the
// authorization failure.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, target := range authorizationErrors {
		if errors.Is(err, target) {
			return KindAuthorization
		}
	}
	for _, target := range configurationErrors {
		if errors.Is(err, target) {
			return KindConfiguration
		}
	}
	for _, target := range invariantErrors {
		if errors.Is(err, target) {
			return KindInvariant
		}
	}
	return KindUnknown
}
