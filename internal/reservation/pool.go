// internal/reservation/pool.go
package reservation

import (
	"errors"
	"fmt"
	"time"

	smath "github.com/ava-labs/avalanchego/utils/math"

	"github.com/rovshanmuradov/launchpad/internal/currency"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

var (
	ErrZeroAmount            = errors.New("reservation amount must be positive")
	ErrAlreadyLaunched       = errors.New("reservation pool already launched")
	ErrIndividualCapExceeded = errors.New("reservation exceeds the individual cap")
	ErrInsufficientReserved  = errors.New("insufficient reserved balance")
	ErrPaymentMismatch       = errors.New("payment does not match reservation amount")
	ErrThresholdNotMet       = errors.New("reservation threshold not met")
)

// State is the lifecycle position of a reservation pool.
type State string

const (
	StateReserving    State = "reserving"
	StateThresholdMet State = "threshold_met"
	StateLaunched     State = "launched"
)

// Pool is the crowdfunding escrow for one post or profile. The engine is its
// only writer.
type Pool struct {
	asset     types.Asset
	threshold uint64
	total     uint64
	createdAt time.Time

	// contributors keeps first-contribution order; contributions is keyed by
	// the same addresses.
	contributors  []types.Address
	contributions map[types.Address]uint64
	escrow        *currency.Coin

	launched          bool
	thresholdSignaled bool
}

// New creates an empty pool. threshold is copied from the exchange
// configuration at creation and never changes afterwards.
func New(asset types.Asset, threshold uint64, now time.Time) *Pool {
	return &Pool{
		asset:         asset,
		threshold:     threshold,
		createdAt:     now,
		contributions: make(map[types.Address]uint64),
		escrow:        currency.Zero(),
	}
}

// ReservePlan is a validated reservation waiting to be applied.
type ReservePlan struct {
	Contributor      types.Address
	Amount           uint64
	NewContribution  uint64
	NewTotal         uint64
	FirstTime        bool
	ReachesThreshold bool
}

// PrepareReserve validates a reservation without touching the pool.
func (p *Pool) PrepareReserve(contributor types.Address, amount, maxIndividual uint64) (ReservePlan, error) {
	if p.launched {
		return ReservePlan{}, ErrAlreadyLaunched
	}
	if amount == 0 {
		return ReservePlan{}, ErrZeroAmount
	}
	current, exists := p.contributions[contributor]
	next, err := smath.Add(current, amount)
	if err != nil {
		return ReservePlan{}, fmt.Errorf("contribution: %w", err)
	}
	if next > maxIndividual {
		return ReservePlan{}, fmt.Errorf("%w: %d > %d", ErrIndividualCapExceeded, next, maxIndividual)
	}
	total, err := smath.Add(p.total, amount)
	if err != nil {
		return ReservePlan{}, fmt.Errorf("pool total: %w", err)
	}
	return ReservePlan{
		Contributor:      contributor,
		Amount:           amount,
		NewContribution:  next,
		NewTotal:         total,
		FirstTime:        !exists,
		ReachesThreshold: !p.thresholdSignaled && p.total < p.threshold && total >= p.threshold,
	}, nil
}

// ApplyReserve commits a plan and moves the payment into escrow.
func (p *Pool) ApplyReserve(plan ReservePlan, payment *currency.Coin) error {
	if payment.Value() != plan.Amount {
		return fmt.Errorf("%w: got %d, want %d", ErrPaymentMismatch, payment.Value(), plan.Amount)
	}
	if err := p.escrow.Join(payment); err != nil {
		return err
	}
	if plan.FirstTime {
		p.contributors = append(p.contributors, plan.Contributor)
	}
	p.contributions[plan.Contributor] = plan.NewContribution
	p.total = plan.NewTotal
	if plan.ReachesThreshold {
		p.thresholdSignaled = true
	}
	return nil
}

// Withdraw returns amount of the contributor's reservation from escrow.
// A contributor whose balance reaches zero is removed from the pool.
func (p *Pool) Withdraw(contributor types.Address, amount uint64) (*currency.Coin, error) {
	if p.launched {
		return nil, ErrAlreadyLaunched
	}
	if amount == 0 {
		return nil, ErrZeroAmount
	}
	current := p.contributions[contributor]
	if current < amount {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrInsufficientReserved, current, amount)
	}

	coin, err := p.escrow.Split(amount)
	if err != nil {
		return nil, err
	}
	p.total -= amount
	if current == amount {
		delete(p.contributions, contributor)
		p.removeContributor(contributor)
	} else {
		p.contributions[contributor] = current - amount
	}
	return coin, nil
}

func (p *Pool) removeContributor(addr types.Address) {
	for i, c := range p.contributors {
		if c == addr {
			p.contributors = append(p.contributors[:i], p.contributors[i+1:]...)
			return
		}
	}
}

// Drain hands the whole escrow to the caller and closes the pool. Only a
// launch may call it.
func (p *Pool) Drain() (*currency.Coin, error) {
	if p.launched {
		return nil, ErrAlreadyLaunched
	}
	if !p.ThresholdMet() {
		return nil, ErrThresholdNotMet
	}
	p.launched = true
	p.total = 0
	return p.escrow.Take(), nil
}

// ThresholdMet reports whether the pool has collected enough to launch.
func (p *Pool) ThresholdMet() bool {
	return p.total >= p.threshold
}

// State returns the lifecycle state.
func (p *Pool) State() State {
	switch {
	case p.launched:
		return StateLaunched
	case p.ThresholdMet():
		return StateThresholdMet
	default:
		return StateReserving
	}
}

func (p *Pool) Asset() types.Asset   { return p.asset }
func (p *Pool) Threshold() uint64    { return p.threshold }
func (p *Pool) Total() uint64        { return p.total }
func (p *Pool) Launched() bool       { return p.launched }
func (p *Pool) CreatedAt() time.Time { return p.createdAt }
func (p *Pool) EscrowValue() uint64  { return p.escrow.Value() }

// Contribution returns what addr currently has reserved.
func (p *Pool) Contribution(addr types.Address) uint64 {
	return p.contributions[addr]
}

// Contributors returns a copy of the contributor list in first-seen order.
func (p *Pool) Contributors() []types.Address {
	return append([]types.Address(nil), p.contributors...)
}

// Contributions returns a copy of the contribution ledger.
func (p *Pool) Contributions() map[types.Address]uint64 {
	out := make(map[types.Address]uint64, len(p.contributions))
	for k, v := range p.contributions {
		out[k] = v
	}
	return out
}

// View is a read-only copy of a pool for queries.
type View struct {
	Asset         types.Asset              `json:"asset"`
	State         State                    `json:"state"`
	Threshold     uint64                   `json:"threshold"`
	Total         uint64                   `json:"total"`
	Contributors  []types.Address          `json:"contributors"`
	Contributions map[types.Address]uint64 `json:"contributions"`
	CreatedAt     time.Time                `json:"created_at"`
}

// View returns a copy of the pool.
func (p *Pool) View() View {
	return View{
		Asset:         p.asset,
		State:         p.State(),
		Threshold:     p.threshold,
		Total:         p.total,
		Contributors:  p.Contributors(),
		Contributions: p.Contributions(),
		CreatedAt:     p.createdAt,
	}
}
