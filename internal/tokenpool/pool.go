// internal/tokenpool/pool.go
package tokenpool

import (
	"errors"
	"fmt"
	"sort"
	"time"

	smath "github.com/ava-labs/avalanchego/utils/math"
	"github.com/google/uuid"

	"github.com/rovshanmuradov/launchpad/internal/currency"
	"github.com/rovshanmuradov/launchpad/internal/curve"
	"github.com/rovshanmuradov/launchpad/internal/exchange"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

var (
	ErrZeroAmount            = errors.New("trade amount must be positive")
	ErrAlreadyHolder         = errors.New("caller already holds this token, use buy more")
	ErrNoHolding             = errors.New("caller holds no certificate for this token")
	ErrMaxHoldExceeded       = errors.New("purchase exceeds the max-hold limit")
	ErrInsufficientBalance   = errors.New("insufficient token balance")
	ErrInsufficientLiquidity = errors.New("insufficient pool liquidity")
	ErrNotPostToken          = errors.New("revenue redirect is only available for post tokens")
	ErrInvalidRedirect       = errors.New("invalid revenue redirect")
	ErrAllocationSumMismatch = errors.New("allocations exceed supply")
	ErrReserveAmountMismatch = errors.New("reserve deposit does not match plan")
)

// Info is the immutable metadata captured when a token launches.
type Info struct {
	Asset     types.Asset `json:"asset"`
	Name      string      `json:"name"`
	Symbol    string      `json:"symbol"`
	Curve     curve.Curve `json:"curve"`
	CreatedAt time.Time   `json:"created_at"`
	// AutoLaunched marks pools created without a reservation round.
	AutoLaunched bool `json:"auto_launched"`
}

// Certificate records one holder's balance in one pool.
type Certificate struct {
	ID        string        `json:"id"`
	Holder    types.Address `json:"holder"`
	Asset     types.AssetID `json:"asset"`
	Balance   uint64        `json:"balance"`
	CreatedAt time.Time     `json:"created_at"`
}

// Pool is the bonding-curve market of one launched token.
//
// Invariant: the sum of certificate balances equals supply.
type Pool struct {
	info     Info
	supply   uint64
	reserve  *currency.Coin
	holders  map[types.Address]*Certificate
	redirect *Redirect
}

// New creates a pool seeded with reserve and the given allocations.
// Zero allocations get no certificate. supply is the allocated total.
func New(info Info, reserve *currency.Coin, allocs []curve.Allocation) (*Pool, error) {
	p := &Pool{
		info:    info,
		reserve: currency.Zero(),
		holders: make(map[types.Address]*Certificate),
	}
	for _, a := range allocs {
		if a.Amount == 0 {
			continue
		}
		next, err := smath.Add(p.supply, a.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAllocationSumMismatch, err)
		}
		p.supply = next
		if cert, ok := p.holders[a.Holder]; ok {
			cert.Balance += a.Amount
			continue
		}
		p.holders[a.Holder] = newCertificate(a.Holder, info.Asset.ID, a.Amount, info.CreatedAt)
	}
	if err := p.reserve.Join(reserve); err != nil {
		return nil, err
	}
	return p, nil
}

func newCertificate(holder types.Address, asset types.AssetID, balance uint64, now time.Time) *Certificate {
	return &Certificate{
		ID:        uuid.NewString(),
		Holder:    holder,
		Asset:     asset,
		Balance:   balance,
		CreatedAt: now,
	}
}

// BuyPlan is a validated purchase waiting to be applied.
type BuyPlan struct {
	Buyer      types.Address
	Amount     uint64
	Cost       uint64
	Average    uint64
	Fees       exchange.Fees
	NetToPool  uint64
	NewSupply  uint64
	NewBalance uint64
	NewPrice   uint64
	FirstBuy   bool
}

// PrepareBuy prices a purchase and checks every pool-level rule. firstBuy
// selects between an initial purchase (no certificate yet) and a top-up.
func (p *Pool) PrepareBuy(buyer types.Address, amount uint64, params exchange.Params, firstBuy bool) (BuyPlan, error) {
	if amount == 0 {
		return BuyPlan{}, ErrZeroAmount
	}
	cert, holds := p.holders[buyer]
	if firstBuy && holds {
		return BuyPlan{}, ErrAlreadyHolder
	}
	if !firstBuy && !holds {
		return BuyPlan{}, ErrNoHolding
	}

	cost, avg, err := p.info.Curve.BuyCost(p.supply, amount)
	if err != nil {
		return BuyPlan{}, err
	}
	newSupply, err := smath.Add(p.supply, amount)
	if err != nil {
		return BuyPlan{}, err
	}
	var current uint64
	if holds {
		current = cert.Balance
	}
	newBalance, err := smath.Add(current, amount)
	if err != nil {
		return BuyPlan{}, err
	}
	if limit, enforced := params.MaxHolding(newSupply); enforced && newBalance > limit {
		return BuyPlan{}, fmt.Errorf("%w: %d > %d", ErrMaxHoldExceeded, newBalance, limit)
	}

	fees := params.Fees.Split(cost)
	net := cost - fees.Total
	if _, err := smath.Add(p.reserve.Value(), net); err != nil {
		return BuyPlan{}, fmt.Errorf("reserve: %w", err)
	}
	price, err := p.info.Curve.Price(newSupply)
	if err != nil {
		return BuyPlan{}, err
	}

	return BuyPlan{
		Buyer:      buyer,
		Amount:     amount,
		Cost:       cost,
		Average:    avg,
		Fees:       fees,
		NetToPool:  net,
		NewSupply:  newSupply,
		NewBalance: newBalance,
		NewPrice:   price,
		FirstBuy:   firstBuy,
	}, nil
}

// ApplyBuy commits a plan. net must carry exactly plan.NetToPool.
func (p *Pool) ApplyBuy(plan BuyPlan, net *currency.Coin, now time.Time) (Certificate, error) {
	if net.Value() != plan.NetToPool {
		return Certificate{}, fmt.Errorf("%w: got %d, want %d", ErrReserveAmountMismatch, net.Value(), plan.NetToPool)
	}
	if err := p.reserve.Join(net); err != nil {
		return Certificate{}, err
	}
	cert, ok := p.holders[plan.Buyer]
	if !ok {
		cert = newCertificate(plan.Buyer, p.info.Asset.ID, 0, now)
		p.holders[plan.Buyer] = cert
	}
	cert.Balance = plan.NewBalance
	p.supply = plan.NewSupply
	return *cert, nil
}

// SellPlan is a validated sale waiting to be applied.
type SellPlan struct {
	Seller     types.Address
	Amount     uint64
	Refund     uint64
	Average    uint64
	Fees       exchange.Fees
	NetRefund  uint64
	NewSupply  uint64
	NewBalance uint64
	NewPrice   uint64
}

// PrepareSell prices a sale and checks balance and liquidity. Both the net
// refund and the fee leave the reserve, so the reserve has to cover the
// gross refund.
func (p *Pool) PrepareSell(seller types.Address, amount uint64, fees exchange.FeeSchedule) (SellPlan, error) {
	if amount == 0 {
		return SellPlan{}, ErrZeroAmount
	}
	cert, ok := p.holders[seller]
	if !ok {
		return SellPlan{}, ErrNoHolding
	}
	if cert.Balance < amount {
		return SellPlan{}, fmt.Errorf("%w: have %d, want %d", ErrInsufficientBalance, cert.Balance, amount)
	}

	refund, avg, err := p.info.Curve.SellRefund(p.supply, amount)
	if err != nil {
		return SellPlan{}, err
	}
	split := fees.Split(refund)
	net := refund - split.Total
	if p.reserve.Value() < refund {
		return SellPlan{}, fmt.Errorf("%w: reserve %d, refund %d (net %d)",
			ErrInsufficientLiquidity, p.reserve.Value(), refund, net)
	}
	newSupply := p.supply - amount
	price, err := p.info.Curve.Price(newSupply)
	if err != nil {
		return SellPlan{}, err
	}

	return SellPlan{
		Seller:     seller,
		Amount:     amount,
		Refund:     refund,
		Average:    avg,
		Fees:       split,
		NetRefund:  net,
		NewSupply:  newSupply,
		NewBalance: cert.Balance - amount,
		NewPrice:   price,
	}, nil
}

// ApplySell commits a plan and returns the gross refund taken from the
// reserve. An emptied certificate is retired.
func (p *Pool) ApplySell(plan SellPlan) (*currency.Coin, Certificate, error) {
	gross, err := p.reserve.Split(plan.Refund)
	if err != nil {
		return nil, Certificate{}, fmt.Errorf("%w: %w", ErrInsufficientLiquidity, err)
	}
	cert := p.holders[plan.Seller]
	cert.Balance = plan.NewBalance
	out := *cert
	if cert.Balance == 0 {
		delete(p.holders, plan.Seller)
	}
	p.supply = plan.NewSupply
	return gross, out, nil
}

// SetRedirect installs or clears the revenue redirect. Only post tokens
// accept a redirect.
func (p *Pool) SetRedirect(r *Redirect) error {
	if r != nil {
		if p.info.Asset.Kind != types.AssetPost {
			return ErrNotPostToken
		}
		if err := r.Validate(); err != nil {
			return err
		}
		cp := *r
		r = &cp
	}
	p.redirect = r
	return nil
}

// Redirect returns a copy of the current redirect, or nil.
func (p *Pool) Redirect() *Redirect {
	if p.redirect == nil {
		return nil
	}
	cp := *p.redirect
	return &cp
}

func (p *Pool) Info() Info           { return p.info }
func (p *Pool) Owner() types.Address { return p.info.Asset.Owner }
func (p *Pool) Supply() uint64       { return p.supply }
func (p *Pool) ReserveValue() uint64 { return p.reserve.Value() }

// Price returns the instantaneous price at the current supply.
func (p *Pool) Price() (uint64, error) {
	return p.info.Curve.Price(p.supply)
}

// Holding returns a copy of addr's certificate.
func (p *Pool) Holding(addr types.Address) (Certificate, bool) {
	cert, ok := p.holders[addr]
	if !ok {
		return Certificate{}, false
	}
	return *cert, true
}

// Holders returns copies of all certificates ordered by holder address.
func (p *Pool) Holders() []Certificate {
	out := make([]Certificate, 0, len(p.holders))
	for _, c := range p.holders {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Holder < out[j].Holder })
	return out
}

// HeldSupply sums all certificate balances. It equals Supply.
func (p *Pool) HeldSupply() uint64 {
	var sum uint64
	for _, c := range p.holders {
		sum += c.Balance
	}
	return sum
}

// View is a read-only copy of the pool for queries.
type View struct {
	Info     Info      `json:"info"`
	Supply   uint64    `json:"supply"`
	Reserve  uint64    `json:"reserve"`
	Price    uint64    `json:"price"`
	Holders  int       `json:"holders"`
	Redirect *Redirect `json:"redirect,omitempty"`
}

// View returns a copy of the pool state.
func (p *Pool) View() View {
	price, _ := p.Price()
	return View{
		Info:     p.info,
		Supply:   p.supply,
		Reserve:  p.reserve.Value(),
		Price:    price,
		Holders:  len(p.holders),
		Redirect: p.Redirect(),
	}
}
