// internal/storage/models/trade.go
package models

import "time"

// TradeRecord is the flattened view of a trade event used for history
// queries and exports.
type TradeRecord struct {
	BaseModel
	EventID     string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"event_id"`
	Asset       string    `gorm:"type:varchar(128);index;not null" json:"asset"`
	Side        string    `gorm:"type:varchar(8);index;not null" json:"side"`
	Trader      string    `gorm:"type:varchar(128);index;not null" json:"trader"`
	Owner       string    `gorm:"type:varchar(128)" json:"owner"`
	Amount      uint64    `gorm:"type:numeric(20,0)" json:"amount"`
	Value       uint64    `gorm:"type:numeric(20,0)" json:"value"`
	Average     uint64    `gorm:"type:numeric(20,0)" json:"average"`
	FeeTotal    uint64    `gorm:"type:numeric(20,0)" json:"fee_total"`
	FeeCreator  uint64    `gorm:"type:numeric(20,0)" json:"fee_creator"`
	FeePlatform uint64    `gorm:"type:numeric(20,0)" json:"fee_platform"`
	FeeTreasury uint64    `gorm:"type:numeric(20,0)" json:"fee_treasury"`
	Redirected  uint64    `gorm:"type:numeric(20,0)" json:"redirected"`
	Net         uint64    `gorm:"type:numeric(20,0)" json:"net"`
	Supply      uint64    `gorm:"type:numeric(20,0)" json:"supply"`
	Reserve     uint64    `gorm:"type:numeric(20,0)" json:"reserve"`
	Price       uint64    `gorm:"type:numeric(20,0)" json:"price"`
	Balance     uint64    `gorm:"type:numeric(20,0)" json:"balance"`
	FirstBuy    bool      `json:"first_buy"`
	ExecutedAt  time.Time `gorm:"index;not null" json:"executed_at"`
}

// TableName pins the table name.
func (TradeRecord) TableName() string { return "trades" }

// LaunchRecord summarizes a token creation, explicit or automatic.
type LaunchRecord struct {
	BaseModel
	EventID       string `gorm:"type:varchar(36);uniqueIndex;not null"`
	Asset         string `gorm:"type:varchar(128);uniqueIndex;not null"`
	Kind          string `gorm:"type:varchar(16)"`
	Owner         string `gorm:"type:varchar(128);index"`
	Name          string `gorm:"type:varchar(64)"`
	Symbol        string `gorm:"type:varchar(16)"`
	TotalReserved uint64 `gorm:"type:numeric(20,0)"`
	InitialSupply uint64 `gorm:"type:numeric(20,0)"`
	Circulating   uint64 `gorm:"type:numeric(20,0)"`
	DustBurned    uint64 `gorm:"type:numeric(20,0)"`
	Holders       int
	Automatic     bool
	LaunchedAt    time.Time `gorm:"index;not null"`
}

// TableName pins the table name.
func (LaunchRecord) TableName() string { return "launches" }
