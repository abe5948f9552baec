package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/launchpad/internal/currency"
	"github.com/rovshanmuradov/launchpad/internal/engine"
	"github.com/rovshanmuradov/launchpad/internal/events"
	"github.com/rovshanmuradov/launchpad/internal/exchange"
	"github.com/rovshanmuradov/launchpad/internal/metrics"
	"github.com/rovshanmuradov/launchpad/internal/registry"
	"github.com/rovshanmuradov/launchpad/internal/social"
	"github.com/rovshanmuradov/launchpad/internal/tokenpool"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

// DefaultStart is the simulated time when a scenario sets none.
var DefaultStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Env configures the engine a scenario runs against.
type Env struct {
	Admin             types.Address
	Platform          string
	EcosystemTreasury types.Address
	Params            exchange.Params
	// Publisher receives every event after the runner's recorder. Optional.
	Publisher events.Publisher
	Metrics   *metrics.Collector
	Logger    *zap.Logger
}

// StepResult is the outcome of one step.
type StepResult struct {
	Index    int
	Op       string
	Caller   types.Address
	Asset    types.AssetID
	Outcome  string
	Expected string
	Error    string
	Detail   string
	Passed   bool
}

// Report summarizes a run.
type Report struct {
	Name     string
	Steps    []StepResult
	Passed   int
	Failed   int
	Events   int
	Tokens   []tokenpool.View
	Balances map[types.Address]uint64
	Treasury uint64
}

// OK reports whether every step matched its expectation.
func (r *Report) OK() bool { return r.Failed == 0 }

// World holds the engine and its in-memory collaborators.
type World struct {
	Engine    *engine.Engine
	Directory *social.Directory
	Bank      *currency.Bank
	// Recorder holds the events of a world built by NewWorld. It is nil for
	// an attached world, whose events go to the target's own publisher.
	Recorder *events.Recorder

	platform string
	clock    Clock
	logger   *zap.Logger
}

// Target is a running engine with its in-memory collaborators.
type Target struct {
	Engine    *engine.Engine
	Directory *social.Directory
	Bank      *currency.Bank
	Clock     Clock
	Platform  string
	Logger    *zap.Logger
}

// NewWorld builds a fresh engine seeded with the scenario's social graph.
func NewWorld(env Env, sc *Scenario) (*World, error) {
	if env.Logger == nil {
		env.Logger = zap.NewNop()
	}
	cfg, err := exchange.New(env.Admin, env.Params)
	if err != nil {
		return nil, err
	}

	start := sc.Start
	if start.IsZero() {
		start = DefaultStart
	}
	w := &World{
		Directory: social.NewDirectory(),
		Bank:      currency.NewBank(env.Logger),
		Recorder:  events.NewRecorder(env.Publisher),
		platform:  env.Platform,
		clock:     NewManualClock(start),
		logger:    env.Logger.Named("scenario"),
	}
	seed(w.Directory, sc)

	w.Engine, err = engine.New(engine.Options{
		Config:            cfg,
		Registry:          registry.New(),
		Payer:             w.Bank,
		BlockList:         w.Directory,
		Treasury:          w.Directory,
		Posts:             w.Directory,
		Profiles:          w.Directory,
		Publisher:         w.Recorder,
		Platform:          env.Platform,
		EcosystemTreasury: env.EcosystemTreasury,
		Metrics:           env.Metrics,
		Logger:            env.Logger,
		Clock:             w.clock.Now,
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Attach binds sc to a running engine. The scenario's social graph is added
// to the target directory; its start time and environment overrides do not
// apply, since the target already has a clock and a configuration.
func Attach(t Target, sc *Scenario) (*World, error) {
	if t.Engine == nil || t.Directory == nil || t.Bank == nil || t.Clock == nil {
		return nil, fmt.Errorf("%w: incomplete target", ErrInvalidScenario)
	}
	if t.Logger == nil {
		t.Logger = zap.NewNop()
	}
	w := &World{
		Engine:    t.Engine,
		Directory: t.Directory,
		Bank:      t.Bank,
		platform:  t.Platform,
		clock:     t.Clock,
		logger:    t.Logger.Named("scenario"),
	}
	if !sc.Start.IsZero() || !sc.Admin.IsZero() || sc.Platform != "" || !sc.EcosystemTreasury.IsZero() || sc.Exchange != nil {
		w.logger.Warn("Scenario environment overrides ignored when attached",
			zap.String("scenario", sc.Name))
	}
	seed(w.Directory, sc)
	return w, nil
}

func seed(dir *social.Directory, sc *Scenario) {
	for _, p := range sc.Profiles {
		dir.PutProfile(social.Profile{ID: p.ID, Owner: p.Owner})
	}
	for _, p := range sc.Posts {
		post := social.Post{ID: p.ID, Owner: p.Owner, AutoPoolOptOut: p.AutoPoolOptOut}
		if !p.RedirectTo.IsZero() {
			post.Redirect = &social.Redirect{To: p.RedirectTo, Percent: p.RedirectPercent}
		}
		dir.PutPost(post)
	}
	for _, b := range sc.Blocks {
		dir.Block(b.Blocker, b.Blocked)
	}
}

// Run executes sc in a new world.
func Run(ctx context.Context, env Env, sc *Scenario) (*Report, error) {
	w, err := NewWorld(env, sc)
	if err != nil {
		return nil, fmt.Errorf("build world: %w", err)
	}
	return w.Run(ctx, sc), nil
}

// Run executes every step in order. A step whose outcome differs from its
// expectation is reported as failed; execution continues.
func (w *World) Run(ctx context.Context, sc *Scenario) *Report {
	report := &Report{Name: sc.Name}

	for i := range sc.Steps {
		if ctx.Err() != nil {
			break
		}
		step := &sc.Steps[i]
		detail, err := w.apply(ctx, step)
		res := evaluate(i+1, step, detail, err)
		if res.Passed {
			report.Passed++
		} else {
			report.Failed++
			w.logger.Warn("Step did not match expectation",
				zap.Int("step", res.Index),
				zap.String("op", res.Op),
				zap.String("expected", res.Expected),
				zap.String("outcome", res.Outcome),
				zap.String("error", res.Error))
		}
		report.Steps = append(report.Steps, res)
	}

	if w.Recorder != nil {
		report.Events = len(w.Recorder.Events())
	}
	report.Tokens = w.Engine.Tokens()
	report.Balances = w.Bank.Accounts()
	report.Treasury = w.Directory.TreasuryBalance(w.platform)
	return report
}

func evaluate(index int, step *Step, detail string, err error) StepResult {
	res := StepResult{
		Index:    index,
		Op:       step.Op,
		Caller:   step.Caller,
		Asset:    step.Asset,
		Outcome:  ExpectOK,
		Expected: step.Expect,
		Detail:   detail,
	}
	if res.Expected == "" {
		res.Expected = ExpectOK
	}
	if err != nil {
		res.Outcome = engine.Classify(err).String()
		res.Error = err.Error()
	}

	switch {
	case step.ExpectError != "":
		res.Passed = err != nil && strings.Contains(err.Error(), step.ExpectError) &&
			(step.Expect == "" || step.Expect == res.Outcome)
		if step.Expect == "" {
			res.Expected = "error: " + step.ExpectError
		}
	case step.expectsSuccess():
		res.Passed = err == nil
	default:
		res.Passed = err != nil && res.Outcome == step.Expect
	}
	return res
}

func (w *World) apply(ctx context.Context, s *Step) (string, error) {
	eng := w.Engine
	switch s.Op {
	case OpCreatePool:
		v, err := eng.CreateReservationPool(ctx, s.Caller, s.Kind, s.Asset)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("threshold=%d", v.Threshold), nil

	case OpReserve:
		r, err := eng.Reserve(ctx, s.Caller, s.Kind, s.Asset, currency.Mint(s.Amount))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("contribution=%d total=%d/%d threshold_met=%t",
			r.Contribution, r.PoolTotal, r.Threshold, r.ThresholdReached), nil

	case OpWithdraw:
		r, err := eng.Withdraw(ctx, s.Caller, s.Asset, s.Amount)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("contribution=%d total=%d", r.Contribution, r.PoolTotal), nil

	case OpLaunch:
		r, err := eng.Launch(ctx, s.Caller, s.Asset, s.Name, s.Symbol)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("supply=%d dust=%d holders=%d price=%d",
			r.Token.Supply, r.DustBurned, len(r.Allocations), r.Token.Price), nil

	case OpBuy, OpBuyMore:
		payment, err := w.payment(s)
		if err != nil {
			return "", err
		}
		buy := eng.Buy
		if s.Op == OpBuyMore {
			buy = eng.BuyMore
		}
		r, err := buy(ctx, s.Caller, s.Asset, s.Amount, currency.Mint(payment))
		if err != nil {
			return "", err
		}
		return tradeDetail(r), nil

	case OpSell:
		r, err := eng.Sell(ctx, s.Caller, s.Asset, s.Amount)
		if err != nil {
			return "", err
		}
		return tradeDetail(r), nil

	case OpQuote:
		q, err := eng.Quote(s.Asset, s.Side, s.Amount)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("value=%d fees=%d net=%d price=%d->%d liquid=%t",
			q.Value, q.Fees.Total, q.Net, q.PriceBefore, q.PriceAfter, q.Liquid), nil

	case OpEnsurePostPool:
		v, err := eng.EnsurePostPool(ctx, s.Asset)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("supply=%d holders=%d", v.Supply, v.Holders), nil

	case OpSyncRedirect:
		r, err := eng.SyncRevenueRedirect(ctx, s.Caller, s.Asset)
		if err != nil {
			return "", err
		}
		if r == nil {
			return "redirect cleared", nil
		}
		return fmt.Sprintf("redirect=%s %d%%", r.To, r.Percent), nil

	case OpSetRedirect:
		post, err := w.Directory.Post(ctx, s.Asset)
		if err != nil {
			return "", err
		}
		post.Redirect = nil
		if !s.Target.IsZero() {
			post.Redirect = &social.Redirect{To: s.Target, Percent: s.Percent}
		}
		w.Directory.PutPost(post)
		return "", nil

	case OpKillSwitch:
		snap, err := eng.ToggleKillSwitch(ctx, s.Caller, s.Halt, s.Reason)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("halted=%t revision=%d", snap.Halted, snap.Revision), nil

	case OpUpdateConfig:
		params := eng.ConfigSnapshot().Params
		if s.Params != nil {
			if err := s.Params.Decode(&params); err != nil {
				return "", fmt.Errorf("decode params: %w", err)
			}
		}
		snap, err := eng.UpdateConfig(ctx, s.Caller, params)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("revision=%d", snap.Revision), nil

	case OpBlock:
		w.Directory.Block(s.Caller, s.Target)
		return "", nil

	case OpUnblock:
		w.Directory.Unblock(s.Caller, s.Target)
		return "", nil

	case OpAdvance:
		w.clock.Advance(s.Advance)
		return "now=" + w.clock.Now().Format(time.RFC3339), nil
	}
	return "", fmt.Errorf("unknown op %q", s.Op)
}

// payment defaults to the exact quoted cost.
func (w *World) payment(s *Step) (uint64, error) {
	if s.Payment > 0 {
		return s.Payment, nil
	}
	q, err := w.Engine.Quote(s.Asset, types.SideBuy, s.Amount)
	if err != nil {
		// Let the buy itself report the failure.
		if errors.Is(err, registry.ErrTokenNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return q.Value, nil
}

func tradeDetail(r engine.TradeReceipt) string {
	return fmt.Sprintf("value=%d fees=%d redirected=%d net=%d refund=%d balance=%d supply=%d reserve=%d",
		r.Value, r.Fees.Total, r.Redirected, r.Net, r.Refund, r.Certificate.Balance, r.Supply, r.Reserve)
}
