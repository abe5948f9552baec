package scenario

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/launchpad/internal/curve"
	"github.com/rovshanmuradov/launchpad/internal/events"
	"github.com/rovshanmuradov/launchpad/internal/exchange"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

func testEnv(t *testing.T) Env {
	p := exchange.DefaultParams()
	p.Curve = curve.Curve{BasePrice: 1_000, Coefficient: 10_000}
	p.PostThreshold = 1_000_000
	p.ProfileThreshold = 1_000_000
	p.MaxIndividualReserveBp = 10_000
	p.MaxHoldMinSupply = 1_000_000
	return Env{
		Admin:             "admin",
		Platform:          "social",
		EcosystemTreasury: "ecosystem",
		Params:            p,
		Logger:            zaptest.NewLogger(t),
	}
}

func TestRunProfileLaunch(t *testing.T) {
	sc, err := ParseFile("testdata/profile_launch.yaml")
	require.NoError(t, err)

	report, err := Run(context.Background(), testEnv(t), sc)
	require.NoError(t, err)

	for _, s := range report.Steps {
		assert.True(t, s.Passed, "step %d %s: expected %s got %s (%s)", s.Index, s.Op, s.Expected, s.Outcome, s.Error)
	}
	require.True(t, report.OK())
	assert.Equal(t, len(sc.Steps), report.Passed)

	launch := report.Steps[4]
	assert.Equal(t, OpLaunch, launch.Op)
	assert.Contains(t, launch.Detail, "supply=30 dust=1")

	require.Len(t, report.Tokens, 2)
	assert.Greater(t, report.Treasury, uint64(0))
	assert.Greater(t, report.Balances["owner"], uint64(0))
	assert.Greater(t, report.Events, 0)
}

func TestRunReportsMismatch(t *testing.T) {
	sc, err := Parse([]byte(`
name: mismatch
profiles:
  - {id: profile-1, owner: owner}
steps:
  - {op: reserve, caller: alice, kind: profile, asset: profile-1, amount: 10}
  - {op: launch, caller: owner, asset: profile-1, name: T, symbol: T}
  - {op: withdraw, caller: alice, asset: profile-1, amount: 11, expect: authorization}
`))
	require.NoError(t, err)

	report, err := Run(context.Background(), testEnv(t), sc)
	require.NoError(t, err)

	assert.False(t, report.OK())
	assert.Equal(t, 1, report.Passed)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, "invariant", report.Steps[1].Outcome)
	assert.Equal(t, "invariant", report.Steps[2].Outcome)
	assert.Equal(t, "authorization", report.Steps[2].Expected)
}

func TestRunForwardsEvents(t *testing.T) {
	sc, err := Parse([]byte(`
posts:
  - {id: post-1, owner: owner}
steps:
  - {op: ensure_post_pool, asset: post-1}
  - {op: advance, advance: 1h}
`))
	require.NoError(t, err)

	sink := events.NewRecorder(nil)
	env := testEnv(t)
	env.Publisher = sink

	w, err := NewWorld(env, sc)
	require.NoError(t, err)
	report := w.Run(context.Background(), sc)

	require.True(t, report.OK())
	assert.Len(t, sink.OfType(events.AutoLaunched), 1)
	assert.Equal(t, DefaultStart.Add(time.Hour), w.clock.Now())

	holding, err := w.Engine.Holding("post-1", "owner")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), holding.Balance)
}

func TestSetRedirectAndBlock(t *testing.T) {
	sc, err := Parse([]byte(`
posts:
  - {id: post-1, owner: owner}
steps:
  - {op: ensure_post_pool, asset: post-1}
  - {op: set_redirect, asset: post-1, target: charity, percent: 25}
  - {op: sync_redirect, caller: owner, asset: post-1}
  - {op: block, caller: owner, target: eve}
  - {op: buy, caller: eve, asset: post-1, amount: 1, expect: authorization}
  - {op: unblock, caller: owner, target: eve}
  - {op: buy, caller: eve, asset: post-1, amount: 1}
`))
	require.NoError(t, err)

	w, err := NewWorld(testEnv(t), sc)
	require.NoError(t, err)
	report := w.Run(context.Background(), sc)
	require.True(t, report.OK(), "%+v", report.Steps)

	info, err := w.Engine.TokenInfo("post-1")
	require.NoError(t, err)
	require.NotNil(t, info.Redirect)
	assert.Equal(t, types.Address("charity"), info.Redirect.To)
	assert.Greater(t, w.Bank.Balance("charity"), uint64(0))
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no steps", `name: empty`},
		{"unknown op", `steps: [{op: mint, caller: a, asset: x}]`},
		{"missing caller", `steps: [{op: sell, asset: x, amount: 1}]`},
		{"bad kind", `steps: [{op: reserve, caller: a, kind: group, asset: x, amount: 1}]`},
		{"bad side", `steps: [{op: quote, asset: x, side: hold, amount: 1}]`},
		{"bad expect", `steps: [{op: advance, advance: 1h, expect: maybe}]`},
		{"zero advance", `steps: [{op: advance}]`},
		{"post redirect", "posts: [{id: p, owner: o, redirect_percent: 101}]\nsteps: [{op: advance, advance: 1h}]"},
		{"malformed", `steps: [`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestScenarioEnvOverrides(t *testing.T) {
	sc, err := ParseFile("testdata/profile_launch.yaml")
	require.NoError(t, err)

	base := Env{Admin: "root", Platform: "other", Params: exchange.DefaultParams()}
	env, err := sc.Env(base)
	require.NoError(t, err)

	assert.Equal(t, types.Address("admin"), env.Admin)
	assert.Equal(t, "social", env.Platform)
	assert.Equal(t, uint64(1_000), env.Params.Curve.BasePrice)
	assert.Equal(t, uint64(1_000_000), env.Params.MaxHoldMinSupply)
	// Untouched keys keep the base value.
	assert.Equal(t, exchange.DefaultParams().Fees, env.Params.Fees)

	report, err := Run(context.Background(), env, sc)
	require.NoError(t, err)
	assert.True(t, report.OK())
}

func TestAttachRunsAgainstExistingEngine(t *testing.T) {
	base, err := Parse([]byte(`
posts:
  - {id: post-1, owner: owner}
steps:
  - {op: ensure_post_pool, asset: post-1}
`))
	require.NoError(t, err)
	host, err := NewWorld(testEnv(t), base)
	require.NoError(t, err)
	require.True(t, host.Run(context.Background(), base).OK())

	sc, err := Parse([]byte(`
start: 2030-01-01T00:00:00Z
posts:
  - {id: post-2, owner: writer}
steps:
  - {op: buy, caller: reader, asset: post-1, amount: 2}
  - {op: ensure_post_pool, asset: post-2}
  - {op: advance, advance: 30m}
`))
	require.NoError(t, err)

	w, err := Attach(Target{
		Engine:    host.Engine,
		Directory: host.Directory,
		Bank:      host.Bank,
		Clock:     host.clock,
		Platform:  "social",
		Logger:    zaptest.NewLogger(t),
	}, sc)
	require.NoError(t, err)
	assert.Nil(t, w.Recorder)

	report := w.Run(context.Background(), sc)
	require.True(t, report.OK(), "%+v", report.Steps)
	assert.Zero(t, report.Events)
	assert.Len(t, report.Tokens, 2)
	assert.Equal(t, DefaultStart.Add(30*time.Minute), host.clock.Now(), "the scenario start is ignored")

	assert.Len(t, host.Recorder.OfType(events.TradeExecuted), 1, "events reach the host publisher")
	assert.Len(t, host.Recorder.OfType(events.AutoLaunched), 2)

	_, err = Attach(Target{Engine: host.Engine}, sc)
	assert.ErrorIs(t, err, ErrInvalidScenario)
}
