// Package scenario replays scripted engine sessions against in-memory
// collaborators. Scenarios are YAML documents listing the social graph and
// an ordered list of operations with their expected outcome.
package scenario

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rovshanmuradov/launchpad/internal/types"
)

// Operation names accepted in a step.
const (
	OpCreatePool     = "create_pool"
	OpReserve        = "reserve"
	OpWithdraw       = "withdraw"
	OpLaunch         = "launch"
	OpBuy            = "buy"
	OpBuyMore        = "buy_more"
	OpSell           = "sell"
	OpQuote          = "quote"
	OpEnsurePostPool = "ensure_post_pool"
	OpSyncRedirect   = "sync_redirect"
	OpSetRedirect    = "set_redirect"
	OpKillSwitch     = "kill_switch"
	OpUpdateConfig   = "update_config"
	OpBlock          = "block"
	OpUnblock        = "unblock"
	OpAdvance        = "advance"
)

// Expected outcomes besides an error kind.
const ExpectOK = "ok"

var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario is a parsed scenario file.
type Scenario struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Start       time.Time `yaml:"start"`

	// Optional overrides of the environment the scenario runs in.
	Admin             types.Address `yaml:"admin"`
	Platform          string        `yaml:"platform"`
	EcosystemTreasury types.Address `yaml:"ecosystem_treasury"`
	// Exchange is decoded over the base parameters.
	Exchange *yaml.Node `yaml:"exchange"`

	Profiles []ProfileSpec `yaml:"profiles"`
	Posts    []PostSpec    `yaml:"posts"`
	Blocks   []BlockSpec   `yaml:"blocks"`
	Steps    []Step        `yaml:"steps"`
}

type ProfileSpec struct {
	ID    types.AssetID `yaml:"id"`
	Owner types.Address `yaml:"owner"`
}

type PostSpec struct {
	ID              types.AssetID `yaml:"id"`
	Owner           types.Address `yaml:"owner"`
	RedirectTo      types.Address `yaml:"redirect_to"`
	RedirectPercent uint64        `yaml:"redirect_percent"`
	AutoPoolOptOut  bool          `yaml:"auto_pool_opt_out"`
}

type BlockSpec struct {
	Blocker types.Address `yaml:"blocker"`
	Blocked types.Address `yaml:"blocked"`
}

// Step is one operation. Only the fields relevant to Op are read.
type Step struct {
	Op      string          `yaml:"op"`
	Caller  types.Address   `yaml:"caller"`
	Kind    types.AssetKind `yaml:"kind"`
	Asset   types.AssetID   `yaml:"asset"`
	Amount  uint64          `yaml:"amount"`
	Payment uint64          `yaml:"payment"`
	Side    types.Side      `yaml:"side"`
	Name    string          `yaml:"name"`
	Symbol  string          `yaml:"symbol"`
	Halt    bool            `yaml:"halt"`
	Reason  string          `yaml:"reason"`
	Target  types.Address   `yaml:"target"`
	Percent uint64          `yaml:"percent"`
	Advance time.Duration   `yaml:"advance"`
	// Params is decoded over the current exchange parameters, so it only
	// needs the keys that change.
	Params *yaml.Node `yaml:"params"`

	// Expect is "ok" (the default) or an error kind: authorization,
	// invariant or configuration.
	Expect      string `yaml:"expect"`
	ExpectError string `yaml:"expect_error"`
}

// ParseFile reads and parses a scenario file.
func ParseFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML scenario.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Env applies the scenario's overrides to base.
func (sc *Scenario) Env(base Env) (Env, error) {
	env := base
	if !sc.Admin.IsZero() {
		env.Admin = sc.Admin
	}
	if sc.Platform != "" {
		env.Platform = sc.Platform
	}
	if !sc.EcosystemTreasury.IsZero() {
		env.EcosystemTreasury = sc.EcosystemTreasury
	}
	if sc.Exchange != nil {
		if err := sc.Exchange.Decode(&env.Params); err != nil {
			return Env{}, fmt.Errorf("%w: exchange: %v", ErrInvalidScenario, err)
		}
	}
	return env, nil
}

// Validate checks the scenario is well-formed.
func (sc *Scenario) Validate() error {
	if len(sc.Steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidScenario)
	}
	for _, p := range sc.Profiles {
		if p.ID == "" || p.Owner.IsZero() {
			return fmt.Errorf("%w: profile needs id and owner", ErrInvalidScenario)
		}
	}
	for _, p := range sc.Posts {
		if p.ID == "" || p.Owner.IsZero() {
			return fmt.Errorf("%w: post needs id and owner", ErrInvalidScenario)
		}
		if p.RedirectPercent > 100 {
			return fmt.Errorf("%w: post %s redirect_percent %d", ErrInvalidScenario, p.ID, p.RedirectPercent)
		}
	}
	for i := range sc.Steps {
		if err := sc.Steps[i].validate(); err != nil {
			return fmt.Errorf("%w: step %d: %v", ErrInvalidScenario, i+1, err)
		}
	}
	return nil
}

func (s *Step) validate() error {
	needCaller := func() error {
		if s.Caller.IsZero() {
			return fmt.Errorf("%s needs caller", s.Op)
		}
		return nil
	}
	needAsset := func() error {
		if s.Asset == "" {
			return fmt.Errorf("%s needs asset", s.Op)
		}
		return nil
	}

	switch s.Expect {
	case "", ExpectOK, "authorization", "invariant", "configuration":
	default:
		return fmt.Errorf("unknown expect %q", s.Expect)
	}

	switch s.Op {
	case OpCreatePool, OpReserve:
		if _, err := types.ParseAssetKind(string(s.Kind)); err != nil {
			return err
		}
		if err := needCaller(); err != nil {
			return err
		}
		return needAsset()
	case OpWithdraw, OpLaunch, OpBuy, OpBuyMore, OpSell, OpSyncRedirect:
		if err := needCaller(); err != nil {
			return err
		}
		return needAsset()
	case OpQuote:
		if _, err := types.ParseSide(string(s.Side)); err != nil {
			return err
		}
		return needAsset()
	case OpEnsurePostPool:
		return needAsset()
	case OpSetRedirect:
		if s.Percent > 100 {
			return fmt.Errorf("percent %d out of range", s.Percent)
		}
		return needAsset()
	case OpKillSwitch, OpUpdateConfig:
		return needCaller()
	case OpBlock, OpUnblock:
		if s.Caller.IsZero() || s.Target.IsZero() {
			return fmt.Errorf("%s needs caller and target", s.Op)
		}
		return nil
	case OpAdvance:
		if s.Advance <= 0 {
			return errors.New("advance needs a positive duration")
		}
		return nil
	default:
		return fmt.Errorf("unknown op %q", s.Op)
	}
}

// expectsSuccess reports whether the step should commit.
func (s *Step) expectsSuccess() bool {
	return (s.Expect == "" || s.Expect == ExpectOK) && s.ExpectError == ""
}
