// internal/types/bps.go
package types

import (
	"errors"

	"github.com/holiman/uint256"
)

// BasisPoints is a ratio expressed in 1/10000 units.
type BasisPoints uint64

// MaxBasisPoints is 100%.
const MaxBasisPoints BasisPoints = 10_000

var ErrMulDivOverflow = errors.New("mul-div result exceeds uint64")

// Valid reports whether the ratio is within [0, 100%].
func (b BasisPoints) Valid() bool { return b <= MaxBasisPoints }

// Of returns amount * b / 10000, truncated.
func (b BasisPoints) Of(amount uint64) uint64 {
	// b <= 10000 keeps the result below amount, so it always fits.
	v, _ := MulDiv(amount, uint64(b), uint64(MaxBasisPoints))
	return v
}

// MulDiv computes a*b/d with a 256-bit intermediate product.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, errors.New("division by zero")
	}
	x := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	x.Div(x, uint256.NewInt(d))
	if !x.IsUint64() {
		return 0, ErrMulDivOverflow
	}
	return x.Uint64(), nil
}
