package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/launchpad/internal/currency"
	"github.com/rovshanmuradov/launchpad/internal/curve"
	"github.com/rovshanmuradov/launchpad/internal/events"
	"github.com/rovshanmuradov/launchpad/internal/exchange"
	"github.com/rovshanmuradov/launchpad/internal/metrics"
	"github.com/rovshanmuradov/launchpad/internal/registry"
	"github.com/rovshanmuradov/launchpad/internal/reservation"
	"github.com/rovshanmuradov/launchpad/internal/social"
	"github.com/rovshanmuradov/launchpad/internal/tokenpool"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

const (
	admin    types.Address = "admin"
	owner    types.Address = "owner"
	alice    types.Address = "alice"
	bob      types.Address = "bob"
	carol    types.Address = "carol"
	charity  types.Address = "charity"
	eco      types.Address = "ecosystem"
	platform               = "social"

	profileID types.AssetID = "profile-1"
	postID    types.AssetID = "post-1"
)

type fixture struct {
	engine *Engine
	dir    *social.Directory
	bank   *currency.Bank
	rec    *events.Recorder
	now    time.Time
}

func newFixture(t *testing.T, params exchange.Params, opts ...func(*Options)) *fixture {
	t.Helper()

	cfg, err := exchange.New(admin, params)
	require.NoError(t, err)

	f := &fixture{
		dir:  social.NewDirectory(),
		bank: currency.NewBank(zaptest.NewLogger(t)),
		rec:  events.NewRecorder(nil),
		now:  time.Unix(1_700_000_000, 0).UTC(),
	}
	f.dir.PutProfile(social.Profile{ID: profileID, Owner: owner})
	f.dir.PutPost(social.Post{ID: postID, Owner: owner})

	o := Options{
		Config:            cfg,
		Registry:          registry.New(),
		Payer:             f.bank,
		BlockList:         f.dir,
		Treasury:          f.dir,
		Posts:             f.dir,
		Profiles:          f.dir,
		Publisher:         f.rec,
		Platform:          platform,
		EcosystemTreasury: eco,
		Metrics:           metrics.NewCollector(prometheus.NewRegistry()),
		Logger:            zaptest.NewLogger(t),
		Clock:             func() time.Time { return f.now },
	}
	for _, fn := range opts {
		fn(&o)
	}
	f.engine, err = New(o)
	require.NoError(t, err)
	return f
}

// launchParams gives a cheap curve and a small threshold: 1,000,000 reserved
// launches a profile token with 31 units.
func launchParams() exchange.Params {
	p := exchange.DefaultParams()
	p.Curve = curve.Curve{BasePrice: 1_000, Coefficient: 10_000}
	p.PostThreshold = 1_000_000
	p.ProfileThreshold = 1_000_000
	p.MaxIndividualReserveBp = 10_000
	return p
}

// flatParams prices every unit below supply 100 at exactly 1,000,000 and
// turns the max-hold cap off for small pools.
func flatParams() exchange.Params {
	p := exchange.DefaultParams()
	p.Curve = curve.Curve{BasePrice: 1_000_000, Coefficient: 1}
	p.MaxHoldMinSupply = 1_000_000
	return p
}

func (f *fixture) reserve(t *testing.T, who types.Address, amount uint64) ReserveReceipt {
	t.Helper()
	r, err := f.engine.Reserve(context.Background(), who, types.AssetProfile, profileID, currency.Mint(amount))
	require.NoError(t, err)
	return r
}

// launched reserves 600,000 from alice and 400,000 from bob and launches.
func (f *fixture) launched(t *testing.T) LaunchReceipt {
	t.Helper()
	f.reserve(t, alice, 600_000)
	f.reserve(t, bob, 400_000)
	r, err := f.engine.Launch(context.Background(), owner, profileID, "Owner Token", "OWN")
	require.NoError(t, err)
	return r
}

func assertHoldersMatchSupply(t *testing.T, e *Engine, id types.AssetID) {
	t.Helper()
	info, err := e.TokenInfo(id)
	require.NoError(t, err)
	holders, err := e.Holders(id)
	require.NoError(t, err)
	var sum uint64
	for _, h := range holders {
		sum += h.Balance
	}
	assert.Equal(t, info.Supply, sum)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Options{})
	require.ErrorIs(t, err, ErrMissingDependency)
	assert.Equal(t, KindConfiguration, Classify(err))
}

func TestReserveAndLaunchSixtyForty(t *testing.T) {
	ctx := context.Background()
	p := exchange.DefaultParams()
	p.MaxIndividualReserveBp = 10_000
	f := newFixture(t, p)

	first := f.reserve(t, alice, 600_000_000_000)
	assert.False(t, first.ThresholdReached)
	second := f.reserve(t, bob, 400_000_000_000)
	assert.True(t, second.ThresholdReached)
	assert.Equal(t, uint64(1_000_000_000_000), second.PoolTotal)

	_, err := f.engine.Launch(ctx, alice, profileID, "Owner", "OWN")
	require.ErrorIs(t, err, ErrNotOwner)
	assert.Equal(t, KindAuthorization, Classify(err))

	r, err := f.engine.Launch(ctx, owner, profileID, "Owner", "OWN")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), r.InitialSupply)
	assert.Zero(t, r.DustBurned)
	require.Len(t, r.Allocations, 2)
	assert.Equal(t, uint64(600_000), r.Allocations[0].Amount)
	assert.Equal(t, uint64(400_000), r.Allocations[1].Amount)
	assert.Equal(t, uint64(1_000_000_000_000), r.Token.Reserve)
	assertHoldersMatchSupply(t, f.engine, profileID)

	pool, err := f.engine.ReservationPool(profileID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StateLaunched, pool.State)
	assert.Zero(t, pool.Total)

	assert.Len(t, f.rec.OfType(events.ThresholdMet), 1)
	assert.Len(t, f.rec.OfType(events.HolderAllocated), 2)
	launchedEvents := f.rec.OfType(events.TokenLaunched)
	require.Len(t, launchedEvents, 1)
	ev := launchedEvents[0].(*events.TokenLaunchedEvent)
	assert.Equal(t, uint64(1_000_000), ev.Circulating)

	_, err = f.engine.Launch(ctx, owner, profileID, "Owner", "OWN")
	assert.ErrorIs(t, err, registry.ErrTokenExists)
	_, err = f.engine.Reserve(ctx, carol, types.AssetProfile, profileID, currency.Mint(1))
	assert.ErrorIs(t, err, reservation.ErrAlreadyLaunched)
}

func TestLaunchBurnsDust(t *testing.T) {
	f := newFixture(t, launchParams())
	r := f.launched(t)

	// 600,000 and 400,000 of 1,000,000 over 31 units: 18 + 12, one unit of dust.
	assert.Equal(t, uint64(31), r.InitialSupply)
	assert.Equal(t, uint64(1), r.DustBurned)
	assert.Equal(t, uint64(30), r.Token.Supply)
	assertHoldersMatchSupply(t, f.engine, profileID)

	h, err := f.engine.Holding(profileID, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(18), h.Balance)
}

func TestLaunchBelowThresholdLeavesPoolUnchanged(t *testing.T) {
	f := newFixture(t, launchParams())
	f.reserve(t, alice, 999_999)
	before, err := f.engine.ReservationPool(profileID)
	require.NoError(t, err)

	_, err = f.engine.Launch(context.Background(), owner, profileID, "Owner", "OWN")
	require.ErrorIs(t, err, reservation.ErrThresholdNotMet)
	assert.Equal(t, KindInvariant, Classify(err))

	after, err := f.engine.ReservationPool(profileID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, f.engine.Tokens())
}

func TestLaunchValidatesMetadata(t *testing.T) {
	f := newFixture(t, launchParams())
	f.reserve(t, alice, 1_000_000)

	_, err := f.engine.Launch(context.Background(), owner, profileID, "", "OWN")
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = f.engine.Launch(context.Background(), owner, profileID, "Owner", "WAYTOOLONGSYMBOL1")
	assert.ErrorIs(t, err, ErrInvalidSymbol)
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, launchParams())
	f.reserve(t, alice, 500)
	f.reserve(t, bob, 300)

	_, err := f.engine.Withdraw(ctx, alice, profileID, 501)
	require.ErrorIs(t, err, reservation.ErrInsufficientReserved)
	pool, err := f.engine.ReservationPool(profileID)
	require.NoError(t, err)
	assert.Equal(t, uint64(800), pool.Total)
	assert.Zero(t, f.bank.Balance(alice))

	r, err := f.engine.Withdraw(ctx, alice, profileID, 200)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), r.Contribution)
	assert.Equal(t, uint64(600), r.PoolTotal)

	_, err = f.engine.Withdraw(ctx, alice, profileID, 300)
	require.NoError(t, err)
	pool, err = f.engine.ReservationPool(profileID)
	require.NoError(t, err)
	assert.Equal(t, []types.Address{bob}, pool.Contributors)
	assert.Equal(t, uint64(500), f.bank.Balance(alice))
	assert.Len(t, f.rec.OfType(events.ReservationWithdrawn), 2)
}

func TestReserveIndividualCap(t *testing.T) {
	p := launchParams()
	p.MaxIndividualReserveBp = 2_000
	f := newFixture(t, p)

	f.reserve(t, alice, 200_000)
	payment := currency.Mint(1)
	_, err := f.engine.Reserve(context.Background(), alice, types.AssetProfile, profileID, payment)
	require.ErrorIs(t, err, reservation.ErrIndividualCapExceeded)
	assert.Equal(t, uint64(1), payment.Value(), "rejected payment stays with the caller")
}

func TestCreateReservationPool(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, launchParams())

	_, err := f.engine.CreateReservationPool(ctx, alice, types.AssetPost, postID)
	require.ErrorIs(t, err, ErrNotOwner)

	v, err := f.engine.CreateReservationPool(ctx, owner, types.AssetPost, postID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StateReserving, v.State)
	assert.Equal(t, uint64(1_000_000), v.Threshold)

	_, err = f.engine.CreateReservationPool(ctx, owner, types.AssetPost, postID)
	assert.ErrorIs(t, err, registry.ErrReservationExists)
	assert.Len(t, f.rec.OfType(events.PoolCreated), 1)
}

func TestBuyFeeSplit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, flatParams())
	_, err := f.engine.EnsurePostPool(ctx, postID)
	require.NoError(t, err)

	payment := currency.Mint(1_200_000)
	r, err := f.engine.Buy(ctx, alice, postID, 1, payment)
	require.NoError(t, err)

	assert.Equal(t, uint64(1_000_000), r.Value)
	assert.Equal(t, exchange.Fees{Total: 15_000, Creator: 10_000, Platform: 2_500, Treasury: 2_500}, r.Fees)
	assert.Equal(t, uint64(985_000), r.Net)
	assert.Equal(t, uint64(200_000), r.Refund)
	assert.Equal(t, uint64(985_000), r.Reserve)
	assert.Equal(t, uint64(2), r.Supply)
	assert.Equal(t, uint64(1), r.Certificate.Balance)
	assert.Zero(t, payment.Value())

	assert.Equal(t, uint64(10_000), f.bank.Balance(owner))
	assert.Equal(t, uint64(2_500), f.bank.Balance(eco))
	assert.Equal(t, uint64(2_500), f.dir.TreasuryBalance(platform))
	assert.Equal(t, uint64(200_000), f.bank.Balance(alice))

	trades := f.rec.OfType(events.TradeExecuted)
	require.Len(t, trades, 1)
	ev := trades[0].(*events.TradeEvent)
	assert.Equal(t, types.SideBuy, ev.Side)
	assert.True(t, ev.FirstBuy)
	assert.Equal(t, r.Price, ev.Price)
}

func TestTradesSurviveSlowSubscriber(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus(zaptest.NewLogger(t), 1, events.WithPublishTimeout(5*time.Second))
	f := newFixture(t, flatParams(), func(o *Options) { o.Publisher = bus })

	var mu sync.Mutex
	var seen []uint64
	bus.SubscribeFunc(events.TradeExecuted, func(_ context.Context, e events.Event) error {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		seen = append(seen, e.(*events.TradeEvent).Supply)
		mu.Unlock()
		return nil
	})

	_, err := f.engine.EnsurePostPool(ctx, postID)
	require.NoError(t, err)
	_, err = f.engine.Buy(ctx, alice, postID, 1, currency.Mint(2_000_000))
	require.NoError(t, err)
	for i := 0; i < 11; i++ {
		_, err := f.engine.BuyMore(ctx, alice, postID, 1, currency.Mint(2_000_000))
		require.NoError(t, err)
	}
	require.NoError(t, bus.Shutdown(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 12)
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i], seen[i-1], "trades arrive in commit order")
	}
	assert.Zero(t, bus.Stats().Dropped)
}

func TestBuyRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, flatParams())
	_, err := f.engine.EnsurePostPool(ctx, postID)
	require.NoError(t, err)

	_, err = f.engine.Buy(ctx, owner, postID, 1, currency.Mint(2_000_000))
	require.ErrorIs(t, err, ErrSelfTrade)
	assert.Equal(t, KindAuthorization, Classify(err))

	f.dir.Block(owner, carol)
	_, err = f.engine.Buy(ctx, carol, postID, 1, currency.Mint(2_000_000))
	require.ErrorIs(t, err, ErrBlocked)

	short := currency.Mint(999_999)
	_, err = f.engine.Buy(ctx, alice, postID, 1, short)
	require.ErrorIs(t, err, ErrInsufficientPayment)
	assert.Equal(t, uint64(999_999), short.Value())

	_, err = f.engine.BuyMore(ctx, alice, postID, 1, currency.Mint(2_000_000))
	require.ErrorIs(t, err, tokenpool.ErrNoHolding)

	_, err = f.engine.Buy(ctx, alice, postID, 1, currency.Mint(1_000_000))
	require.NoError(t, err)
	_, err = f.engine.Buy(ctx, alice, postID, 1, currency.Mint(1_000_000))
	require.ErrorIs(t, err, tokenpool.ErrAlreadyHolder)

	r, err := f.engine.BuyMore(ctx, alice, postID, 2, currency.Mint(2_000_000))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), r.Certificate.Balance)
	assertHoldersMatchSupply(t, f.engine, postID)
}

type mockBlockList struct {
	mock.Mock
}

func (m *mockBlockList) IsBlocked(ctx context.Context, blocker, blocked types.Address) (bool, error) {
	args := m.Called(ctx, blocker, blocked)
	return args.Bool(0), args.Error(1)
}

func TestBuyBlockListFailure(t *testing.T) {
	ctx := context.Background()
	blocks := new(mockBlockList)
	down := errors.New("social graph unavailable")
	blocks.On("IsBlocked", mock.Anything, owner, alice).Return(false, down)

	f := newFixture(t, flatParams(), func(o *Options) { o.BlockList = blocks })
	_, err := f.engine.EnsurePostPool(ctx, postID)
	require.NoError(t, err)

	_, err = f.engine.Buy(ctx, alice, postID, 1, currency.Mint(1_000_000))
	require.ErrorIs(t, err, down)
	assert.Equal(t, KindUnknown, Classify(err))
	blocks.AssertExpectations(t)

	info, err := f.engine.TokenInfo(postID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Supply)
}

func TestMaxHold(t *testing.T) {
	p := launchParams()
	p.MaxHoldBps = 500
	f := newFixture(t, p)
	f.launched(t)
	ctx := context.Background()

	// 32 units in circulation allow 1 unit per holder.
	_, err := f.engine.Buy(ctx, carol, profileID, 2, currency.Mint(1_000_000))
	require.ErrorIs(t, err, tokenpool.ErrMaxHoldExceeded)

	_, err = f.engine.Buy(ctx, carol, profileID, 1, currency.Mint(1_000_000))
	require.NoError(t, err)

	holders, err := f.engine.Holders(profileID)
	require.NoError(t, err)
	info, err := f.engine.TokenInfo(profileID)
	require.NoError(t, err)
	for _, h := range holders {
		if h.Holder == carol {
			assert.LessOrEqual(t, h.Balance, info.Supply*500/10_000)
		}
	}
}

func TestSell(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, launchParams())
	f.launched(t)

	c := launchParams().Curve
	refund, _, err := c.SellRefund(30, 5)
	require.NoError(t, err)
	fees := launchParams().Fees.Split(refund)

	r, err := f.engine.Sell(ctx, alice, profileID, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(8_655), r.Value)
	assert.Equal(t, refund, r.Value)
	assert.Equal(t, fees, r.Fees)
	assert.Equal(t, refund-fees.Total, r.Net)
	assert.Equal(t, uint64(13), r.Certificate.Balance)
	assert.Equal(t, uint64(25), r.Supply)
	assert.Equal(t, uint64(1_000_000)-refund, r.Reserve)

	assert.Equal(t, r.Net, f.bank.Balance(alice))
	assert.Equal(t, fees.Creator, f.bank.Balance(owner))
	assert.Equal(t, fees.Treasury, f.bank.Balance(eco))
	assert.Equal(t, fees.Platform, f.dir.TreasuryBalance(platform))
	assertHoldersMatchSupply(t, f.engine, profileID)

	_, err = f.engine.Sell(ctx, bob, profileID, 13)
	require.ErrorIs(t, err, tokenpool.ErrInsufficientBalance)

	_, err = f.engine.Sell(ctx, bob, profileID, 12)
	require.NoError(t, err)
	_, err = f.engine.Holding(profileID, bob)
	assert.ErrorIs(t, err, tokenpool.ErrNoHolding, "an emptied certificate is retired")
	assertHoldersMatchSupply(t, f.engine, profileID)
}

func TestSellInsufficientLiquidity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, flatParams())
	_, err := f.engine.EnsurePostPool(ctx, postID)
	require.NoError(t, err)
	_, err = f.engine.Buy(ctx, alice, postID, 1, currency.Mint(1_000_000))
	require.NoError(t, err)

	// The reserve holds 985,000 but the refund is 1,000,000.
	_, err = f.engine.Sell(ctx, alice, postID, 1)
	require.ErrorIs(t, err, tokenpool.ErrInsufficientLiquidity)
	assert.Equal(t, KindInvariant, Classify(err))

	info, err := f.engine.TokenInfo(postID)
	require.NoError(t, err)
	assert.Equal(t, uint64(985_000), info.Reserve)
	assert.Equal(t, uint64(2), info.Supply)
	h, err := f.engine.Holding(postID, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), h.Balance)
}

func TestSellRejectedWhenSellerCannotReceive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, launchParams())
	f.launched(t)
	require.NoError(t, f.bank.Credit(alice, math.MaxUint64-10))

	before, err := f.engine.TokenInfo(profileID)
	require.NoError(t, err)
	trades := len(f.rec.OfType(events.TradeExecuted))

	_, err = f.engine.Sell(ctx, alice, profileID, 5)
	require.ErrorIs(t, err, ErrPayoutRejected)
	assert.Equal(t, KindInvariant, Classify(err))

	after, err := f.engine.TokenInfo(profileID)
	require.NoError(t, err)
	assert.Equal(t, before.Supply, after.Supply)
	assert.Equal(t, before.Reserve, after.Reserve)
	h, err := f.engine.Holding(profileID, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(18), h.Balance)
	assert.Equal(t, uint64(math.MaxUint64-10), f.bank.Balance(alice))
	assert.Zero(t, f.bank.Balance(owner))
	assert.Zero(t, f.dir.TreasuryBalance(platform))
	assert.Len(t, f.rec.OfType(events.TradeExecuted), trades)
	assert.Zero(t, f.engine.Unclaimed())
}

func TestBuyRejectedWhenRefundCannotBeDelivered(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, flatParams())
	_, err := f.engine.EnsurePostPool(ctx, postID)
	require.NoError(t, err)
	require.NoError(t, f.bank.Credit(alice, math.MaxUint64))

	payment := currency.Mint(1_500_000)
	_, err = f.engine.Buy(ctx, alice, postID, 1, payment)
	require.ErrorIs(t, err, ErrPayoutRejected)
	assert.Equal(t, uint64(1_500_000), payment.Value())

	info, err := f.engine.TokenInfo(postID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Supply)
	assert.Zero(t, info.Reserve)

	// An exact payment has nothing to refund.
	_, err = f.engine.Buy(ctx, alice, postID, 1, currency.Mint(1_000_000))
	require.NoError(t, err)
}

func TestWithdrawRejectedWhenRefundCannotBeDelivered(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, launchParams())
	f.reserve(t, alice, 500)
	require.NoError(t, f.bank.Credit(alice, math.MaxUint64-100))

	_, err := f.engine.Withdraw(ctx, alice, profileID, 200)
	require.ErrorIs(t, err, ErrPayoutRejected)

	pool, err := f.engine.ReservationPool(profileID)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), pool.Total)
	assert.Empty(t, f.rec.OfType(events.ReservationWithdrawn))
}

// failingPayer accepts every check but can be told to fail delivery.
type failingPayer struct {
	*currency.Bank
	fail bool
}

func (p *failingPayer) Pay(ctx context.Context, to types.Address, coin *currency.Coin) error {
	if p.fail {
		return errors.New("ledger offline")
	}
	return p.Bank.Pay(ctx, to, coin)
}

func TestUndeliveredPayoutsAreKept(t *testing.T) {
	ctx := context.Background()
	payer := &failingPayer{}
	f := newFixture(t, launchParams(), func(o *Options) {
		payer.Bank = o.Payer.(*currency.Bank)
		o.Payer = payer
	})
	f.launched(t)

	payer.fail = true
	r, err := f.engine.Sell(ctx, alice, profileID, 5)
	require.NoError(t, err)
	assert.Equal(t, r.Net+r.Fees.Creator+r.Fees.Treasury, f.engine.Unclaimed())
	assert.Zero(t, f.bank.Balance(alice))

	require.Error(t, f.engine.RetryPayouts(ctx))

	payer.fail = false
	require.NoError(t, f.engine.RetryPayouts(ctx))
	assert.Zero(t, f.engine.Unclaimed())
	assert.Equal(t, r.Net, f.bank.Balance(alice))
	assert.Equal(t, r.Fees.Creator, f.bank.Balance(owner))
}

func TestKillSwitch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, launchParams())
	f.launched(t)

	_, err := f.engine.ToggleKillSwitch(ctx, alice, true, "incident")
	require.ErrorIs(t, err, exchange.ErrNotAdmin)

	snap, err := f.engine.ToggleKillSwitch(ctx, admin, true, "incident")
	require.NoError(t, err)
	assert.True(t, snap.Halted)
	before, err := f.engine.TokenInfo(profileID)
	require.NoError(t, err)

	_, err = f.engine.Buy(ctx, carol, profileID, 1, currency.Mint(10_000))
	assert.ErrorIs(t, err, exchange.ErrTradingHalted)
	_, err = f.engine.Sell(ctx, alice, profileID, 1)
	assert.ErrorIs(t, err, exchange.ErrTradingHalted)
	_, err = f.engine.Reserve(ctx, alice, types.AssetPost, postID, currency.Mint(10))
	assert.ErrorIs(t, err, exchange.ErrTradingHalted)
	_, err = f.engine.Launch(ctx, owner, postID, "Post", "PST")
	assert.ErrorIs(t, err, exchange.ErrTradingHalted)
	_, err = f.engine.EnsurePostPool(ctx, postID)
	assert.ErrorIs(t, err, exchange.ErrTradingHalted)

	after, err := f.engine.TokenInfo(profileID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = f.engine.ToggleKillSwitch(ctx, admin, false, "")
	require.NoError(t, err)
	_, err = f.engine.Sell(ctx, alice, profileID, 1)
	assert.NoError(t, err)
	assert.Len(t, f.rec.OfType(events.KillSwitchToggled), 2)
}

func TestRevenueRedirect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, flatParams())
	f.dir.PutPost(social.Post{ID: postID, Owner: owner, Redirect: &social.Redirect{To: charity, Percent: 40}})
	_, err := f.engine.EnsurePostPool(ctx, postID)
	require.NoError(t, err)

	_, err = f.engine.SyncRevenueRedirect(ctx, alice, postID)
	require.ErrorIs(t, err, ErrNotOwner)

	redirect, err := f.engine.SyncRevenueRedirect(ctx, owner, postID)
	require.NoError(t, err)
	assert.Equal(t, &tokenpool.Redirect{To: charity, Percent: 40}, redirect)

	r, err := f.engine.Buy(ctx, alice, postID, 1, currency.Mint(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, uint64(4_000), r.Redirected)
	assert.Equal(t, uint64(4_000), f.bank.Balance(charity))
	assert.Equal(t, uint64(6_000), f.bank.Balance(owner))

	// Clearing the post's redirect clears the pool's.
	f.dir.PutPost(social.Post{ID: postID, Owner: owner})
	redirect, err = f.engine.SyncRevenueRedirect(ctx, owner, postID)
	require.NoError(t, err)
	assert.Nil(t, redirect)
	updates := f.rec.OfType(events.RedirectUpdated)
	require.Len(t, updates, 2)
	assert.True(t, updates[1].(*events.RedirectUpdatedEvent).Cleared)
}

func TestRevenueRedirectRejectsProfileTokens(t *testing.T) {
	f := newFixture(t, launchParams())
	f.launched(t)

	_, err := f.engine.SyncRevenueRedirect(context.Background(), owner, profileID)
	assert.ErrorIs(t, err, tokenpool.ErrNotPostToken)
}

func TestEnsurePostPoolThrottle(t *testing.T) {
	ctx := context.Background()
	p := flatParams()
	p.AutoLaunchMaxPerPeriod = 2
	f := newFixture(t, p)
	for _, id := range []types.AssetID{"post-2", "post-3"} {
		f.dir.PutPost(social.Post{ID: id, Owner: owner})
	}
	f.dir.PutPost(social.Post{ID: "post-opt-out", Owner: owner, AutoPoolOptOut: true})

	_, err := f.engine.EnsurePostPool(ctx, "post-opt-out")
	require.ErrorIs(t, err, ErrAutoLaunchOptOut)

	v, err := f.engine.EnsurePostPool(ctx, postID)
	require.NoError(t, err)
	assert.True(t, v.Info.AutoLaunched)
	assert.Equal(t, uint64(1), v.Supply)
	assert.Zero(t, v.Reserve)

	_, err = f.engine.EnsurePostPool(ctx, postID)
	require.NoError(t, err, "an existing pool does not consume quota")
	_, err = f.engine.EnsurePostPool(ctx, "post-2")
	require.NoError(t, err)

	_, err = f.engine.EnsurePostPool(ctx, "post-3")
	require.ErrorIs(t, err, exchange.ErrAutoLaunchThrottled)

	f.now = f.now.Add(24 * time.Hour)
	_, err = f.engine.EnsurePostPool(ctx, "post-3")
	require.NoError(t, err)
	assert.Len(t, f.rec.OfType(events.AutoLaunched), 3)

	h, err := f.engine.Holding("post-3", owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), h.Balance)
}

func TestEnsurePostPoolRefusesOpenReservation(t *testing.T) {
	ctx := context.Background()
	p := launchParams()
	f := newFixture(t, p)

	_, err := f.engine.Reserve(ctx, alice, types.AssetPost, postID, currency.Mint(1_000_000))
	require.NoError(t, err)

	_, err = f.engine.EnsurePostPool(ctx, postID)
	require.ErrorIs(t, err, ErrReservationPending)
	assert.Equal(t, KindInvariant, Classify(err))
	assert.Empty(t, f.rec.OfType(events.AutoLaunched))

	r, err := f.engine.Launch(ctx, owner, postID, "Post Token", "PST")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), r.Token.Reserve)

	v, err := f.engine.EnsurePostPool(ctx, postID)
	require.NoError(t, err, "a launched post is returned as is")
	assert.False(t, v.Info.AutoLaunched)
}

func TestReserveKindMismatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, launchParams())
	f.reserve(t, alice, 500)

	payment := currency.Mint(100)
	_, err := f.engine.Reserve(ctx, bob, types.AssetPost, profileID, payment)
	require.ErrorIs(t, err, ErrAssetKindMismatch)
	assert.NotErrorIs(t, err, types.ErrUnknownAssetKind)
	assert.Equal(t, KindInvariant, Classify(err))
	assert.Equal(t, uint64(100), payment.Value())
}

func TestEnsurePostPoolDisabled(t *testing.T) {
	p := flatParams()
	p.AutoLaunchAllowed = false
	f := newFixture(t, p)

	_, err := f.engine.EnsurePostPool(context.Background(), postID)
	assert.ErrorIs(t, err, exchange.ErrAutoLaunchDisabled)
}

func TestUpdateConfig(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, launchParams())
	f.launched(t)

	next := launchParams()
	next.Curve = curve.Curve{BasePrice: 5_000, Coefficient: 10_000}

	_, err := f.engine.UpdateConfig(ctx, alice, next)
	require.ErrorIs(t, err, exchange.ErrNotAdmin)

	bad := next
	bad.Fees.CreatorBps = 90
	_, err = f.engine.UpdateConfig(ctx, admin, bad)
	require.ErrorIs(t, err, exchange.ErrFeeSharesMismatch)
	assert.Equal(t, KindConfiguration, Classify(err))

	snap, err := f.engine.UpdateConfig(ctx, admin, next)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Revision)
	assert.Equal(t, next.Curve, f.engine.ConfigSnapshot().Curve)

	info, err := f.engine.TokenInfo(profileID)
	require.NoError(t, err)
	assert.Equal(t, launchParams().Curve, info.Info.Curve, "launched tokens keep their curve")
	assert.Len(t, f.rec.OfType(events.ConfigUpdated), 1)
}

func TestQuoteMatchesTrade(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, launchParams())
	f.launched(t)

	q, err := f.engine.Quote(profileID, types.SideBuy, 1)
	require.NoError(t, err)
	r, err := f.engine.Buy(ctx, carol, profileID, 1, currency.Mint(q.Value))
	require.NoError(t, err)
	assert.Equal(t, q.Value, r.Value)
	assert.Equal(t, q.Fees, r.Fees)
	assert.Equal(t, q.PriceAfter, r.Price)

	q, err = f.engine.Quote(profileID, types.SideSell, 3)
	require.NoError(t, err)
	assert.True(t, q.Liquid)
	s, err := f.engine.Sell(ctx, alice, profileID, 3)
	require.NoError(t, err)
	assert.Equal(t, q.Net, s.Net)
}

func TestHoldersTrackSupplyAcrossTrades(t *testing.T) {
	ctx := context.Background()
	p := launchParams()
	p.MaxHoldMinSupply = 1_000
	f := newFixture(t, p)
	f.launched(t)

	traders := []types.Address{carol, "dave", "erin"}
	for i := 0; i < 30; i++ {
		who := traders[i%len(traders)]
		amount := uint64(i%4 + 1)
		if _, err := f.engine.Holding(profileID, who); err != nil {
			_, err = f.engine.Buy(ctx, who, profileID, amount, currency.Mint(1_000_000))
			require.NoError(t, err)
		} else if i%2 == 0 {
			_, err = f.engine.BuyMore(ctx, who, profileID, amount, currency.Mint(1_000_000))
			require.NoError(t, err)
		} else {
			h, _ := f.engine.Holding(profileID, who)
			_, err = f.engine.Sell(ctx, who, profileID, min(amount, h.Balance))
			require.NoError(t, err)
		}
		assertHoldersMatchSupply(t, f.engine, profileID)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, KindUnknown},
		{errors.New("other"), KindUnknown},
		{ErrSelfTrade, KindAuthorization},
		{exchange.ErrNotAdmin, KindAuthorization},
		{exchange.ErrInvalidBasisPoints, KindConfiguration},
		{curve.ErrInvalidParams, KindConfiguration},
		{tokenpool.ErrMaxHoldExceeded, KindInvariant},
		{curve.ErrOverflow, KindInvariant},
		{exchange.ErrTradingHalted, KindInvariant},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}
	assert.Equal(t, "authorization", KindAuthorization.String())
}
