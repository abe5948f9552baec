// internal/exchange/params.go
package exchange

import (
	"errors"
	"fmt"
	"time"

	"github.com/rovshanmuradov/launchpad/internal/curve"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

var (
	ErrFeeSharesMismatch  = errors.New("creator, platform and treasury fee shares must sum to the total fee")
	ErrInvalidBasisPoints = errors.New("basis points out of range")
	ErrInvalidThreshold   = errors.New("reservation threshold must be positive")
	ErrInvalidThrottle    = errors.New("auto-launch period must be positive")
)

// Params is the admin-tunable part of the exchange configuration.
type Params struct {
	Fees FeeSchedule `mapstructure:"fees" yaml:"fees" json:"fees"`

	// Curve is copied into every token at launch; later changes only affect
	// tokens launched afterwards.
	Curve curve.Curve `mapstructure:"curve" yaml:"curve" json:"curve"`

	MaxHoldBps types.BasisPoints `mapstructure:"max_hold_bps" yaml:"max_hold_bps" json:"max_hold_bps"`
	// MaxHoldMinSupply disables the max-hold cap while the post-trade supply
	// is below it. Zero enforces the cap on every buy.
	MaxHoldMinSupply uint64 `mapstructure:"max_hold_min_supply" yaml:"max_hold_min_supply" json:"max_hold_min_supply"`

	PostThreshold          uint64            `mapstructure:"post_threshold" yaml:"post_threshold" json:"post_threshold"`
	ProfileThreshold       uint64            `mapstructure:"profile_threshold" yaml:"profile_threshold" json:"profile_threshold"`
	MaxIndividualReserveBp types.BasisPoints `mapstructure:"max_individual_reservation_bps" yaml:"max_individual_reservation_bps" json:"max_individual_reservation_bps"`

	AutoLaunchAllowed      bool          `mapstructure:"auto_launch_allowed" yaml:"auto_launch_allowed" json:"auto_launch_allowed"`
	AutoLaunchPeriod       time.Duration `mapstructure:"auto_launch_period" yaml:"auto_launch_period" json:"auto_launch_period"`
	AutoLaunchMaxPerPeriod uint64        `mapstructure:"auto_launch_max_per_period" yaml:"auto_launch_max_per_period" json:"auto_launch_max_per_period"`
}

// Default values used when the config file omits the exchange section.
const (
	DefaultBasePrice        = 100_000_000
	DefaultCoefficient      = 100_000
	DefaultMaxHoldBps       = 500
	DefaultThreshold        = 1_000_000_000_000
	DefaultMaxReservationBp = 2_000
	DefaultAutoLaunchMax    = 100
	DefaultAutoLaunchPeriod = 24 * time.Hour
)

// DefaultParams returns a valid parameter set.
func DefaultParams() Params {
	return Params{
		Fees: FeeSchedule{
			TotalBps:    150,
			CreatorBps:  100,
			PlatformBps: 25,
			TreasuryBps: 25,
		},
		Curve:                  curve.Curve{BasePrice: DefaultBasePrice, Coefficient: DefaultCoefficient},
		MaxHoldBps:             DefaultMaxHoldBps,
		PostThreshold:          DefaultThreshold,
		ProfileThreshold:       DefaultThreshold,
		MaxIndividualReserveBp: DefaultMaxReservationBp,
		AutoLaunchAllowed:      true,
		AutoLaunchPeriod:       DefaultAutoLaunchPeriod,
		AutoLaunchMaxPerPeriod: DefaultAutoLaunchMax,
	}
}

// Validate checks every invariant of the parameter set.
func (p Params) Validate() error {
	if err := p.Fees.Validate(); err != nil {
		return err
	}
	if err := p.Curve.Validate(); err != nil {
		return err
	}
	if !p.MaxHoldBps.Valid() || p.MaxHoldBps == 0 {
		return fmt.Errorf("%w: max_hold_bps=%d", ErrInvalidBasisPoints, p.MaxHoldBps)
	}
	if !p.MaxIndividualReserveBp.Valid() || p.MaxIndividualReserveBp == 0 {
		return fmt.Errorf("%w: max_individual_reservation_bps=%d", ErrInvalidBasisPoints, p.MaxIndividualReserveBp)
	}
	if p.PostThreshold == 0 || p.ProfileThreshold == 0 {
		return ErrInvalidThreshold
	}
	if p.AutoLaunchPeriod < time.Second {
		return fmt.Errorf("%w: %s", ErrInvalidThrottle, p.AutoLaunchPeriod)
	}
	return nil
}

// ThresholdFor returns the reservation threshold for the asset kind.
func (p Params) ThresholdFor(kind types.AssetKind) uint64 {
	if kind == types.AssetPost {
		return p.PostThreshold
	}
	return p.ProfileThreshold
}

// MaxReservation returns the most a single contributor may reserve against a
// pool with the given threshold.
func (p Params) MaxReservation(threshold uint64) uint64 {
	return p.MaxIndividualReserveBp.Of(threshold)
}

// MaxHolding returns the largest balance one holder may reach once supply
// units are in circulation, and whether the cap applies at all.
func (p Params) MaxHolding(supply uint64) (uint64, bool) {
	if supply < p.MaxHoldMinSupply {
		return 0, false
	}
	return p.MaxHoldBps.Of(supply), true
}
