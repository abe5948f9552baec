// internal/tokenpool/redirect.go
package tokenpool

import (
	"fmt"

	"github.com/rovshanmuradov/launchpad/internal/types"
)

// Redirect sends Percent of every creator fee to To instead of the owner.
type Redirect struct {
	To      types.Address `json:"to"`
	Percent uint64        `json:"percent"`
}

// Validate checks the target and the percentage.
func (r Redirect) Validate() error {
	if r.To.IsZero() {
		return fmt.Errorf("%w: empty target", ErrInvalidRedirect)
	}
	if r.Percent > 100 {
		return fmt.Errorf("%w: percent %d", ErrInvalidRedirect, r.Percent)
	}
	return nil
}

// Payout is one transfer produced by fee routing.
type Payout struct {
	To     types.Address
	Amount uint64
}

// RouteCreatorFee splits a creator fee between the redirect target and the
// owner. Buys and sells both go through here so rounding is identical.
func RouteCreatorFee(fee uint64, owner types.Address, r *Redirect) []Payout {
	if r == nil || r.Percent == 0 {
		return []Payout{{To: owner, Amount: fee}}
	}
	redirected, _ := types.MulDiv(fee, r.Percent, 100)
	return []Payout{
		{To: r.To, Amount: redirected},
		{To: owner, Amount: fee - redirected},
	}
}
