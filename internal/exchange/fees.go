// internal/exchange/fees.go
package exchange

import (
	"fmt"

	"github.com/rovshanmuradov/launchpad/internal/types"
)

// FeeSchedule splits the trading fee. Shares are expressed in basis points of
// the trade, and the three shares always add up to the total.
type FeeSchedule struct {
	TotalBps    types.BasisPoints `mapstructure:"total_bps" yaml:"total_bps" json:"total_bps"`
	CreatorBps  types.BasisPoints `mapstructure:"creator_bps" yaml:"creator_bps" json:"creator_bps"`
	PlatformBps types.BasisPoints `mapstructure:"platform_bps" yaml:"platform_bps" json:"platform_bps"`
	TreasuryBps types.BasisPoints `mapstructure:"treasury_bps" yaml:"treasury_bps" json:"treasury_bps"`
}

// Fees is the fee charged on one trade and its split.
type Fees struct {
	Total    uint64 `json:"total"`
	Creator  uint64 `json:"creator"`
	Platform uint64 `json:"platform"`
	Treasury uint64 `json:"treasury"`
}

// Validate checks the sum invariant and the range of the total.
func (s FeeSchedule) Validate() error {
	for _, bps := range []types.BasisPoints{s.TotalBps, s.CreatorBps, s.PlatformBps, s.TreasuryBps} {
		if !bps.Valid() {
			return fmt.Errorf("%w: fee share %d", ErrInvalidBasisPoints, bps)
		}
	}
	if s.CreatorBps+s.PlatformBps+s.TreasuryBps != s.TotalBps {
		return fmt.Errorf("%w: %d+%d+%d != %d", ErrFeeSharesMismatch,
			s.CreatorBps, s.PlatformBps, s.TreasuryBps, s.TotalBps)
	}
	return nil
}

// Split computes the fee on amount. The creator and platform shares are
// taken relative to the total fee and the treasury receives the remainder,
// so the shares never lose or invent a unit to rounding.
func (s FeeSchedule) Split(amount uint64) Fees {
	if s.TotalBps == 0 {
		return Fees{}
	}
	total := s.TotalBps.Of(amount)
	creator, _ := types.MulDiv(total, uint64(s.CreatorBps), uint64(s.TotalBps))
	platform, _ := types.MulDiv(total, uint64(s.PlatformBps), uint64(s.TotalBps))
	return Fees{
		Total:    total,
		Creator:  creator,
		Platform: platform,
		Treasury: total - creator - platform,
	}
}
