// internal/currency/coin.go
package currency

import (
	"errors"
	"fmt"

	smath "github.com/ava-labs/avalanchego/utils/math"
)

var (
	ErrInsufficientValue = errors.New("currency: insufficient coin value")
	ErrNonZeroRemainder  = errors.New("currency: cannot destroy a coin with value")
	ErrNilCoin           = errors.New("currency: nil coin")
)

// Coin is a fungible amount of the settlement currency. Value moves between
// coins only through Split and Join, so a coin is never duplicated.
type Coin struct {
	value uint64
}

// Mint creates a coin out of thin air. Only the bank and tests call it.
func Mint(value uint64) *Coin {
	return &Coin{value: value}
}

// Zero returns an empty coin.
func Zero() *Coin {
	return &Coin{}
}

// Value returns the amount held by the coin.
func (c *Coin) Value() uint64 {
	if c == nil {
		return 0
	}
	return c.value
}

// Split takes exactly amount out of c into a new coin.
func (c *Coin) Split(amount uint64) (*Coin, error) {
	if c == nil {
		return nil, ErrNilCoin
	}
	if amount > c.value {
		return nil, fmt.Errorf("%w: want %d, have %d", ErrInsufficientValue, amount, c.value)
	}
	c.value -= amount
	return &Coin{value: amount}, nil
}

// Join moves all value of other into c and empties other.
func (c *Coin) Join(other *Coin) error {
	if c == nil {
		return ErrNilCoin
	}
	if other == nil {
		return nil
	}
	sum, err := smath.Add(c.value, other.value)
	if err != nil {
		return fmt.Errorf("currency: join: %w", err)
	}
	c.value = sum
	other.value = 0
	return nil
}

// DestroyZero consumes an empty coin.
func (c *Coin) DestroyZero() error {
	if c == nil {
		return nil
	}
	if c.value != 0 {
		return fmt.Errorf("%w: %d", ErrNonZeroRemainder, c.value)
	}
	return nil
}

// Take empties c and returns its former value as a new coin.
func (c *Coin) Take() *Coin {
	if c == nil {
		return Zero()
	}
	out := &Coin{value: c.value}
	c.value = 0
	return out
}
