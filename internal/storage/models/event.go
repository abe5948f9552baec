// internal/storage/models/event.go
package models

import "time"

// EventRecord is the raw journal entry for every published engine event.
type EventRecord struct {
	BaseModel
	EventID    string    `gorm:"type:varchar(36);uniqueIndex;not null"`
	Type       string    `gorm:"type:varchar(64);index;not null"`
	Asset      string    `gorm:"type:varchar(128);index"`
	OccurredAt time.Time `gorm:"index;not null"`
	Payload    string    `gorm:"type:jsonb;not null"`
}

// TableName pins the table name.
func (EventRecord) TableName() string { return "events" }
