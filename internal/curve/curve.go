// internal/curve/curve.go
package curve

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
)

// PriceScale divides the quadratic term of the price function.
const PriceScale = 10_000

var (
	ErrInvalidParams      = errors.New("curve: base price and coefficient must be positive")
	ErrOverflow           = errors.New("curve: value exceeds uint64")
	ErrInsufficientSupply = errors.New("curve: amount exceeds circulating supply")
)

// Curve is a quadratic bonding curve:
//
//	price(s) = BasePrice + Coefficient * s² / PriceScale
//
// Costs are the discrete sum of unit prices over the traded range. Every
// term is truncated on its own, so BuyCost and SellRefund are evaluated as
//
//	Σ BasePrice + (Coefficient·Σs² − Σ(Coefficient·s² mod PriceScale)) / PriceScale
//
// which is exactly equal to the unit-by-unit loop. The remainder term is
// periodic in s with period PriceScale and is served from a cached cycle
// table, so a call never walks more than one period.
type Curve struct {
	BasePrice   uint64 `json:"base_price" yaml:"base_price" mapstructure:"base_price"`
	Coefficient uint64 `json:"coefficient" yaml:"coefficient" mapstructure:"coefficient"`
}

// New returns a validated curve.
func New(basePrice, coefficient uint64) (Curve, error) {
	c := Curve{BasePrice: basePrice, Coefficient: coefficient}
	if err := c.Validate(); err != nil {
		return Curve{}, err
	}
	return c, nil
}

// Validate checks that both parameters are positive.
func (c Curve) Validate() error {
	if c.BasePrice == 0 || c.Coefficient == 0 {
		return ErrInvalidParams
	}
	return nil
}

// Price returns the instantaneous unit price at the given supply.
func (c Curve) Price(supply uint64) (uint64, error) {
	s := uint256.NewInt(supply)
	q := new(uint256.Int).Mul(s, s)
	q.Mul(q, uint256.NewInt(c.Coefficient))
	q.Div(q, uint256.NewInt(PriceScale))
	q.Add(q, uint256.NewInt(c.BasePrice))
	if !q.IsUint64() {
		return 0, fmt.Errorf("%w: price at supply %d", ErrOverflow, supply)
	}
	return q.Uint64(), nil
}

// BuyCost returns the total cost of minting amount units starting at supply,
// and the average unit price of the purchase.
func (c Curve) BuyCost(supply, amount uint64) (total uint64, average uint64, err error) {
	if amount == 0 {
		return 0, 0, nil
	}
	end := supply + amount
	if end < supply {
		return 0, 0, fmt.Errorf("%w: supply %d + amount %d", ErrOverflow, supply, amount)
	}

	// Σ_{x=supply}^{end-1} x²
	squares := new(uint256.Int).Sub(sumOfSquares(end), sumOfSquares(supply))
	quad, overflow := new(uint256.Int).MulOverflow(squares, uint256.NewInt(c.Coefficient))
	if overflow {
		return 0, 0, fmt.Errorf("%w: cost of %d units at supply %d", ErrOverflow, amount, supply)
	}

	table := cycleFor(c.Coefficient)
	rem := new(uint256.Int).Sub(table.prefix(end), table.prefix(supply))
	quad.Sub(quad, rem)
	quad.Div(quad, uint256.NewInt(PriceScale))

	base := new(uint256.Int).Mul(uint256.NewInt(c.BasePrice), uint256.NewInt(amount))
	sum, overflow := new(uint256.Int).AddOverflow(base, quad)
	if overflow || !sum.IsUint64() {
		return 0, 0, fmt.Errorf("%w: cost of %d units at supply %d", ErrOverflow, amount, supply)
	}

	total = sum.Uint64()
	return total, total / amount, nil
}

// SellRefund returns the gross refund for burning amount units from supply,
// walking the curve downward, and the average unit price. It always equals
// BuyCost(supply-amount, amount).
func (c Curve) SellRefund(supply, amount uint64) (total uint64, average uint64, err error) {
	if amount > supply {
		return 0, 0, fmt.Errorf("%w: sell %d of %d", ErrInsufficientSupply, amount, supply)
	}
	return c.BuyCost(supply-amount, amount)
}

// sumOfSquares returns Σ_{x<n} x² = (n-1)·n·(2n-1)/6.
func sumOfSquares(n uint64) *uint256.Int {
	if n < 2 {
		return new(uint256.Int)
	}
	a := uint256.NewInt(n - 1)
	b := uint256.NewInt(n)
	c := new(uint256.Int).Mul(b, uint256.NewInt(2))
	c.Sub(c, uint256.NewInt(1))

	r := new(uint256.Int).Mul(a, b)
	r.Mul(r, c)
	return r.Div(r, uint256.NewInt(6))
}

// cycle holds prefix sums of (coefficient·x² mod PriceScale) over one period.
type cycle struct {
	prefixes [PriceScale + 1]uint64
}

func newCycle(coefficient uint64) *cycle {
	cm := coefficient % PriceScale
	t := &cycle{}
	for x := uint64(0); x < PriceScale; x++ {
		t.prefixes[x+1] = t.prefixes[x] + (cm*x*x)%PriceScale
	}
	return t
}

// prefix returns Σ_{x<n} (coefficient·x² mod PriceScale).
func (t *cycle) prefix(n uint64) *uint256.Int {
	full := new(uint256.Int).Mul(uint256.NewInt(n/PriceScale), uint256.NewInt(t.prefixes[PriceScale]))
	return full.Add(full, uint256.NewInt(t.prefixes[n%PriceScale]))
}

var cycles sync.Map // coefficient % PriceScale -> *cycle

func cycleFor(coefficient uint64) *cycle {
	key := coefficient % PriceScale
	if v, ok := cycles.Load(key); ok {
		return v.(*cycle)
	}
	v, _ := cycles.LoadOrStore(key, newCycle(coefficient))
	return v.(*cycle)
}
