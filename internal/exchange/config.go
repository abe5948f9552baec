// internal/exchange/config.go
package exchange

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rovshanmuradov/launchpad/internal/types"
)

// SchemaVersion is the layout version of Snapshot.
const SchemaVersion = 1

var (
	ErrNotAdmin            = errors.New("caller is not the exchange admin")
	ErrTradingHalted       = errors.New("trading is halted")
	ErrAutoLaunchDisabled  = errors.New("auto-launch is disabled")
	ErrAutoLaunchThrottled = errors.New("auto-launch limit reached for this period")
	ErrMissingAdmin        = errors.New("admin address is required")
)

// Snapshot is an immutable copy of the exchange configuration.
type Snapshot struct {
	Params

	Admin         types.Address `json:"admin"`
	Halted        bool          `json:"halted"`
	HaltReason    string        `json:"halt_reason,omitempty"`
	SchemaVersion uint64        `json:"schema_version"`
	// Revision grows by one on every committed change.
	Revision uint64 `json:"revision"`

	AutoLaunchPeriodIndex int64  `json:"auto_launch_period_index"`
	AutoLaunchCount       uint64 `json:"auto_launch_count"`
}

// Config is the process-wide exchange configuration. It is created once at
// startup and handed to the engine.
type Config struct {
	mu    sync.RWMutex
	state Snapshot
}

// New validates params and creates the configuration.
func New(admin types.Address, params Params) (*Config, error) {
	if admin.IsZero() {
		return nil, ErrMissingAdmin
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid exchange params: %w", err)
	}
	return &Config{
		state: Snapshot{
			Params:        params,
			Admin:         admin,
			SchemaVersion: SchemaVersion,
			Revision:      1,
		},
	}, nil
}

// Snapshot returns the current configuration by value.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Update replaces the tunable parameters. Throttle counters survive.
func (c *Config) Update(caller types.Address, params Params) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.state.Admin {
		return Snapshot{}, ErrNotAdmin
	}
	if err := params.Validate(); err != nil {
		return Snapshot{}, err
	}
	c.state.Params = params
	c.state.Revision++
	return c.state, nil
}

// ToggleKillSwitch halts or resumes every reservation, launch and trade.
func (c *Config) ToggleKillSwitch(caller types.Address, halt bool, reason string) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.state.Admin {
		return Snapshot{}, ErrNotAdmin
	}
	c.state.Halted = halt
	if halt {
		c.state.HaltReason = reason
	} else {
		c.state.HaltReason = ""
	}
	c.state.Revision++
	return c.state, nil
}

// EnsureNotHalted fails when the kill switch is engaged.
func (c *Config) EnsureNotHalted() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state.Halted {
		if c.state.HaltReason != "" {
			return fmt.Errorf("%w: %s", ErrTradingHalted, c.state.HaltReason)
		}
		return ErrTradingHalted
	}
	return nil
}

func periodIndex(now time.Time, period time.Duration) int64 {
	return now.Unix() / int64(period/time.Second)
}

// CheckAutoLaunch reports whether an auto-launch may happen at now without
// consuming quota.
func (c *Config) CheckAutoLaunch(now time.Time) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.state.AutoLaunchAllowed {
		return ErrAutoLaunchDisabled
	}
	count := c.state.AutoLaunchCount
	if periodIndex(now, c.state.AutoLaunchPeriod) != c.state.AutoLaunchPeriodIndex {
		count = 0
	}
	if count >= c.state.AutoLaunchMaxPerPeriod {
		return fmt.Errorf("%w: %d/%d", ErrAutoLaunchThrottled, count, c.state.AutoLaunchMaxPerPeriod)
	}
	return nil
}

// RecordAutoLaunch consumes one unit of the current period's quota. Callers
// run CheckAutoLaunch first under the same serialization.
func (c *Config) RecordAutoLaunch(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := periodIndex(now, c.state.AutoLaunchPeriod)
	if idx != c.state.AutoLaunchPeriodIndex {
		c.state.AutoLaunchPeriodIndex = idx
		c.state.AutoLaunchCount = 0
	}
	c.state.AutoLaunchCount++
}
