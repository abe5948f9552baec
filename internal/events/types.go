// internal/events/types.go
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/rovshanmuradov/launchpad/internal/exchange"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

// EventType represents the type of event.
type EventType string

const (
	// Reservation events
	PoolCreated          EventType = "reservation.pool_created"
	ReservationCreated   EventType = "reservation.created"
	ReservationWithdrawn EventType = "reservation.withdrawn"
	ThresholdMet         EventType = "reservation.threshold_met"

	// Launch events
	HolderAllocated EventType = "launch.holder_allocated"
	TokenLaunched   EventType = "launch.token_created"
	AutoLaunched    EventType = "launch.auto"

	// Trading events
	TradeExecuted   EventType = "trade.executed"
	RedirectUpdated EventType = "trade.redirect_updated"

	// Admin events
	ConfigUpdated     EventType = "admin.config_updated"
	KillSwitchToggled EventType = "admin.kill_switch"
)

// Event is the base interface for all events.
type Event interface {
	ID() string
	Type() EventType
	Timestamp() time.Time
	// Asset returns the asset the event concerns, or "" for global events.
	Asset() types.AssetID
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventID   string        `json:"id"`
	EventType EventType     `json:"type"`
	EventTime time.Time     `json:"time"`
	AssetID   types.AssetID `json:"asset,omitempty"`
}

// NewBase stamps a new event header.
func NewBase(t EventType, asset types.AssetID, at time.Time) BaseEvent {
	return BaseEvent{
		EventID:   uuid.NewString(),
		EventType: t,
		EventTime: at,
		AssetID:   asset,
	}
}

func (e BaseEvent) ID() string           { return e.EventID }
func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.EventTime }
func (e BaseEvent) Asset() types.AssetID { return e.AssetID }

// PoolCreatedEvent is emitted when a reservation pool opens.
type PoolCreatedEvent struct {
	BaseEvent
	Kind      types.AssetKind `json:"kind"`
	Owner     types.Address   `json:"owner"`
	Threshold uint64          `json:"threshold"`
}

// ReservationCreatedEvent is emitted for every successful reservation.
type ReservationCreatedEvent struct {
	BaseEvent
	Contributor  types.Address `json:"contributor"`
	Amount       uint64        `json:"amount"`
	Contribution uint64        `json:"contribution"`
	PoolTotal    uint64        `json:"pool_total"`
}

// ReservationWithdrawnEvent is emitted when a contributor pulls funds out.
type ReservationWithdrawnEvent struct {
	BaseEvent
	Contributor  types.Address `json:"contributor"`
	Amount       uint64        `json:"amount"`
	Contribution uint64        `json:"contribution"`
	PoolTotal    uint64        `json:"pool_total"`
}

// ThresholdMetEvent fires once per pool, on the reservation that first
// reaches the threshold.
type ThresholdMetEvent struct {
	BaseEvent
	Threshold uint64 `json:"threshold"`
	PoolTotal uint64 `json:"pool_total"`
}

// HolderAllocatedEvent is emitted for each contributor receiving a non-zero
// share of the launch supply.
type HolderAllocatedEvent struct {
	BaseEvent
	Holder        types.Address `json:"holder"`
	Contribution  uint64        `json:"contribution"`
	Amount        uint64        `json:"amount"`
	CertificateID string        `json:"certificate_id"`
}

// TokenLaunchedEvent is the aggregate launch event.
type TokenLaunchedEvent struct {
	BaseEvent
	Kind          types.AssetKind `json:"kind"`
	Owner         types.Address   `json:"owner"`
	Name          string          `json:"name"`
	Symbol        string          `json:"symbol"`
	TotalReserved uint64          `json:"total_reserved"`
	InitialSupply uint64          `json:"initial_supply"`
	Circulating   uint64          `json:"circulating"`
	DustBurned    uint64          `json:"dust_burned"`
	Holders       int             `json:"holders"`
	BasePrice     uint64          `json:"base_price"`
	Coefficient   uint64          `json:"coefficient"`
}

// AutoLaunchedEvent is emitted when a post pool is created on demand.
type AutoLaunchedEvent struct {
	BaseEvent
	Owner  types.Address `json:"owner"`
	Supply uint64        `json:"supply"`
}

// TradeEvent records a buy or sell with its full fee breakdown.
type TradeEvent struct {
	BaseEvent
	Side       types.Side    `json:"side"`
	Trader     types.Address `json:"trader"`
	Owner      types.Address `json:"owner"`
	Amount     uint64        `json:"amount"`
	Value      uint64        `json:"value"` // cost for buys, gross refund for sells
	Average    uint64        `json:"average"`
	Fees       exchange.Fees `json:"fees"`
	Redirected uint64        `json:"redirected"`
	Net        uint64        `json:"net"` // to the pool for buys, to the seller for sells
	Supply     uint64        `json:"supply"`
	Reserve    uint64        `json:"reserve"`
	Price      uint64        `json:"price"`
	Balance    uint64        `json:"balance"`
	FirstBuy   bool          `json:"first_buy,omitempty"`
}

// RedirectUpdatedEvent is emitted when a post token's revenue redirect changes.
type RedirectUpdatedEvent struct {
	BaseEvent
	To      types.Address `json:"to,omitempty"`
	Percent uint64        `json:"percent"`
	Cleared bool          `json:"cleared"`
}

// ConfigUpdatedEvent carries the committed configuration.
type ConfigUpdatedEvent struct {
	BaseEvent
	Caller types.Address     `json:"caller"`
	Config exchange.Snapshot `json:"config"`
}

// KillSwitchToggledEvent records halts and resumes.
type KillSwitchToggledEvent struct {
	BaseEvent
	Caller types.Address `json:"caller"`
	Halted bool          `json:"halted"`
	Reason string        `json:"reason,omitempty"`
}
