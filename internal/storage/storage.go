// internal/storage/storage.go
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/rovshanmuradov/launchpad/internal/storage/models"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("record not found")

// Batch groups the rows produced by a single event. The journal entry is
// mandatory; Trade and Launch are set only for the matching event types.
type Batch struct {
	Event  *models.EventRecord
	Trade  *models.TradeRecord
	Launch *models.LaunchRecord
}

// TradeFilter narrows a trade history query. Zero values match everything.
type TradeFilter struct {
	Asset  string
	Side   string
	Trader string
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// Match reports whether r passes the filter, ignoring paging.
func (f TradeFilter) Match(r *models.TradeRecord) bool {
	if f.Asset != "" && r.Asset != f.Asset {
		return false
	}
	if f.Side != "" && r.Side != f.Side {
		return false
	}
	if f.Trader != "" && r.Trader != f.Trader {
		return false
	}
	if !f.From.IsZero() && r.ExecutedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && r.ExecutedAt.After(f.To) {
		return false
	}
	return true
}

// Storage is the persistence layer behind the event indexer.
type Storage interface {
	// SaveBatch writes all rows of a batch atomically. Saving the same
	// event id twice is a no-op.
	SaveBatch(ctx context.Context, b Batch) error

	GetEvent(ctx context.Context, eventID string) (*models.EventRecord, error)
	ListEvents(ctx context.Context, asset string, limit, offset int) ([]*models.EventRecord, error)

	// ListTrades returns trades in execution order.
	ListTrades(ctx context.Context, filter TradeFilter) ([]*models.TradeRecord, error)

	GetLaunch(ctx context.Context, asset string) (*models.LaunchRecord, error)

	RunMigrations() error
	Close() error
}
