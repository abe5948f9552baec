// internal/currency/bank.go
package currency

import (
	"context"
	"fmt"
	"sort"
	"sync"

	smath "github.com/ava-labs/avalanchego/utils/math"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/launchpad/internal/types"
)

// Payer delivers coins to addresses.
type Payer interface {
	// CanPay reports whether to can receive value. The engine calls it
	// before committing so that Pay of the same amount cannot fail.
	CanPay(ctx context.Context, to types.Address, value uint64) error
	Pay(ctx context.Context, to types.Address, coin *Coin) error
}

// Bank is an in-memory account ledger for the settlement currency.
type Bank struct {
	mu       sync.RWMutex
	balances map[types.Address]uint64
	logger   *zap.Logger
}

// NewBank creates an empty bank.
func NewBank(logger *zap.Logger) *Bank {
	return &Bank{
		balances: make(map[types.Address]uint64),
		logger:   logger.Named("bank"),
	}
}

// Credit mints value directly into an account. Used for genesis funding.
func (b *Bank) Credit(to types.Address, value uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sum, err := smath.Add(b.balances[to], value)
	if err != nil {
		return fmt.Errorf("credit %s: %w", to, err)
	}
	b.balances[to] = sum
	return nil
}

// Withdraw takes value out of an account as a coin.
func (b *Bank) Withdraw(from types.Address, value uint64) (*Coin, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	have := b.balances[from]
	if have < value {
		return nil, fmt.Errorf("%w: %s has %d, wants %d", ErrInsufficientValue, from, have, value)
	}
	b.balances[from] = have - value
	return &Coin{value: value}, nil
}

// CanPay fails when crediting value would overflow the account.
func (b *Bank) CanPay(_ context.Context, to types.Address, value uint64) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, err := smath.Add(b.balances[to], value); err != nil {
		return fmt.Errorf("pay %s: %w", to, err)
	}
	return nil
}

// Pay deposits the whole coin into an account.
func (b *Bank) Pay(_ context.Context, to types.Address, coin *Coin) error {
	if coin == nil || coin.Value() == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	sum, err := smath.Add(b.balances[to], coin.value)
	if err != nil {
		return fmt.Errorf("pay %s: %w", to, err)
	}
	b.balances[to] = sum
	b.logger.Debug("Payment received",
		zap.String("to", to.Short()),
		zap.Uint64("amount", coin.value))
	coin.value = 0
	return nil
}

// Balance returns the balance of an account.
func (b *Bank) Balance(addr types.Address) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balances[addr]
}

// Accounts returns all non-zero accounts sorted by address.
func (b *Bank) Accounts() map[types.Address]uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[types.Address]uint64, len(b.balances))
	for addr, v := range b.balances {
		if v > 0 {
			out[addr] = v
		}
	}
	return out
}

// SortedAddresses returns the addresses of Accounts in lexical order.
func SortedAddresses(accounts map[types.Address]uint64) []types.Address {
	addrs := make([]types.Address, 0, len(accounts))
	for a := range accounts {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}
