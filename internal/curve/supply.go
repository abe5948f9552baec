// internal/curve/supply.go
package curve

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/rovshanmuradov/launchpad/internal/types"
)

const (
	// supplyDivisor scales total^0.75 down so a token unit is worth more than
	// one unit of the settlement currency.
	supplyDivisor = 1000
	// postSupplyMultiplier makes post tokens less scarce than profile tokens.
	postSupplyMultiplier = 10
)

var ErrNothingReserved = errors.New("curve: total reserved is zero")

// InitialSupply derives the launch supply from the total reserved amount:
// floor(sqrt(sqrt(total)) * sqrt(total)) / 1000, times ten for posts, never
// below one unit.
func InitialSupply(totalReserved uint64, kind types.AssetKind) (uint64, error) {
	if totalReserved == 0 {
		return 0, ErrNothingReserved
	}
	root := new(uint256.Int).Sqrt(uint256.NewInt(totalReserved))
	quarter := new(uint256.Int).Sqrt(root)

	scale := new(uint256.Int).Mul(quarter, root)
	scale.Div(scale, uint256.NewInt(supplyDivisor))
	if kind == types.AssetPost {
		scale.Mul(scale, uint256.NewInt(postSupplyMultiplier))
	}
	// sqrt(sqrt(2^64)) * sqrt(2^64) * 10 stays far below 2^64.
	supply := scale.Uint64()
	if supply == 0 {
		supply = 1
	}
	return supply, nil
}

// Allocation is the share of the launch supply minted to one contributor.
type Allocation struct {
	Holder       types.Address
	Contribution uint64
	Amount       uint64
}

// Allocate splits supply between contributors in proportion to their
// contributions. Integer division leaves dust; it is returned separately so
// the caller can account for it.
func Allocate(contributors []types.Address, contributions map[types.Address]uint64, supply, totalReserved uint64) ([]Allocation, uint64, error) {
	if totalReserved == 0 {
		return nil, 0, ErrNothingReserved
	}
	allocs := make([]Allocation, 0, len(contributors))
	var allocated uint64
	for _, holder := range contributors {
		contribution := contributions[holder]
		amount, err := types.MulDiv(contribution, supply, totalReserved)
		if err != nil {
			return nil, 0, err
		}
		allocs = append(allocs, Allocation{Holder: holder, Contribution: contribution, Amount: amount})
		allocated += amount
	}
	if allocated > supply {
		// Contributions summed to more than totalReserved.
		return nil, 0, ErrOverflow
	}
	return allocs, supply - allocated, nil
}
