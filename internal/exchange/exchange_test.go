package exchange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/launchpad/internal/curve"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

const admin = types.Address("admin")

func newTestConfig(t *testing.T, mutate func(*Params)) *Config {
	t.Helper()
	p := DefaultParams()
	if mutate != nil {
		mutate(&p)
	}
	cfg, err := New(admin, p)
	require.NoError(t, err)
	return cfg
}

func TestFeeSplitExample(t *testing.T) {
	s := FeeSchedule{TotalBps: 150, CreatorBps: 100, PlatformBps: 25, TreasuryBps: 25}
	fees := s.Split(1_000_000)

	assert.Equal(t, uint64(15_000), fees.Total)
	assert.Equal(t, uint64(10_000), fees.Creator)
	assert.Equal(t, uint64(2_500), fees.Platform)
	assert.Equal(t, uint64(2_500), fees.Treasury)
	assert.Equal(t, uint64(985_000), 1_000_000-fees.Total)
}

func TestFeeSplitSharesAlwaysSum(t *testing.T) {
	s := FeeSchedule{TotalBps: 333, CreatorBps: 111, PlatformBps: 111, TreasuryBps: 111}
	for _, amount := range []uint64{0, 1, 7, 999, 12_345, 1_000_003, 987_654_321} {
		f := s.Split(amount)
		assert.Equal(t, f.Total, f.Creator+f.Platform+f.Treasury, "amount=%d", amount)
	}
	assert.Equal(t, Fees{}, FeeSchedule{}.Split(1_000))
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Params)
		wantErr error
	}{
		{"defaults", func(*Params) {}, nil},
		{"fee mismatch", func(p *Params) { p.Fees.CreatorBps = 101 }, ErrFeeSharesMismatch},
		{"zero base price", func(p *Params) { p.Curve.BasePrice = 0 }, curve.ErrInvalidParams},
		{"zero coefficient", func(p *Params) { p.Curve.Coefficient = 0 }, curve.ErrInvalidParams},
		{"max hold above 100%", func(p *Params) { p.MaxHoldBps = 10_001 }, ErrInvalidBasisPoints},
		{"zero individual cap", func(p *Params) { p.MaxIndividualReserveBp = 0 }, ErrInvalidBasisPoints},
		{"zero threshold", func(p *Params) { p.PostThreshold = 0 }, ErrInvalidThreshold},
		{"zero period", func(p *Params) { p.AutoLaunchPeriod = 0 }, ErrInvalidThrottle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUpdateRequiresAdmin(t *testing.T) {
	cfg := newTestConfig(t, nil)
	before := cfg.Snapshot()

	p := DefaultParams()
	p.MaxHoldBps = 1_000
	_, err := cfg.Update("mallory", p)
	assert.ErrorIs(t, err, ErrNotAdmin)
	assert.Equal(t, before, cfg.Snapshot())

	snap, err := cfg.Update(admin, p)
	require.NoError(t, err)
	assert.Equal(t, types.BasisPoints(1_000), snap.MaxHoldBps)
	assert.Equal(t, before.Revision+1, snap.Revision)
}

func TestUpdateRejectsInvalidParams(t *testing.T) {
	cfg := newTestConfig(t, nil)
	before := cfg.Snapshot()

	p := DefaultParams()
	p.Fees.TreasuryBps = 0
	_, err := cfg.Update(admin, p)
	assert.ErrorIs(t, err, ErrFeeSharesMismatch)
	assert.Equal(t, before, cfg.Snapshot())
}

func TestKillSwitch(t *testing.T) {
	cfg := newTestConfig(t, nil)
	require.NoError(t, cfg.EnsureNotHalted())

	_, err := cfg.ToggleKillSwitch("mallory", true, "nope")
	assert.ErrorIs(t, err, ErrNotAdmin)

	snap, err := cfg.ToggleKillSwitch(admin, true, "incident")
	require.NoError(t, err)
	assert.True(t, snap.Halted)
	assert.ErrorIs(t, cfg.EnsureNotHalted(), ErrTradingHalted)

	_, err = cfg.ToggleKillSwitch(admin, false, "")
	require.NoError(t, err)
	assert.NoError(t, cfg.EnsureNotHalted())
	assert.Empty(t, cfg.Snapshot().HaltReason)
}

func TestAutoLaunchThrottle(t *testing.T) {
	cfg := newTestConfig(t, func(p *Params) {
		p.AutoLaunchMaxPerPeriod = 2
		p.AutoLaunchPeriod = time.Hour
	})
	now := time.Unix(1_700_000_000, 0)

	for i := 0; i < 2; i++ {
		require.NoError(t, cfg.CheckAutoLaunch(now))
		cfg.RecordAutoLaunch(now)
	}
	assert.ErrorIs(t, cfg.CheckAutoLaunch(now), ErrAutoLaunchThrottled)

	next := now.Add(time.Hour)
	require.NoError(t, cfg.CheckAutoLaunch(next))
	cfg.RecordAutoLaunch(next)
	assert.Equal(t, uint64(1), cfg.Snapshot().AutoLaunchCount)
}

func TestAutoLaunchDisabled(t *testing.T) {
	cfg := newTestConfig(t, func(p *Params) { p.AutoLaunchAllowed = false })
	assert.ErrorIs(t, cfg.CheckAutoLaunch(time.Now()), ErrAutoLaunchDisabled)
}

func TestMaxHolding(t *testing.T) {
	p := DefaultParams()
	limit, ok := p.MaxHolding(1_000_000)
	assert.True(t, ok)
	assert.Equal(t, uint64(50_000), limit)

	p.MaxHoldMinSupply = 100
	_, ok = p.MaxHolding(99)
	assert.False(t, ok)
}

func TestNewRequiresAdmin(t *testing.T) {
	_, err := New("", DefaultParams())
	assert.ErrorIs(t, err, ErrMissingAdmin)
}
