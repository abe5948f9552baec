// internal/indexer/indexer.go
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/launchpad/internal/events"
	"github.com/rovshanmuradov/launchpad/internal/metrics"
	"github.com/rovshanmuradov/launchpad/internal/storage"
	"github.com/rovshanmuradov/launchpad/internal/storage/models"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

// Options tunes the retry policy for storage writes.
type Options struct {
	MaxRetries      uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Indexer persists committed events. It is an events.Handler meant to be
// subscribed to events.AllEvents.
type Indexer struct {
	store   storage.Storage
	metrics *metrics.Collector
	logger  *zap.Logger
	opts    Options
}

// New creates an indexer writing to store. metrics may be nil.
func New(store storage.Storage, opts Options, m *metrics.Collector, logger *zap.Logger) *Indexer {
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 1
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 100 * time.Millisecond
	}
	if opts.MaxInterval < opts.InitialInterval {
		opts.MaxInterval = opts.InitialInterval * 10
	}
	return &Indexer{
		store:   store,
		metrics: m,
		logger:  logger.Named("indexer"),
		opts:    opts,
	}
}

// Handle converts the event to rows and writes them, retrying transient
// failures with exponential backoff.
func (ix *Indexer) Handle(ctx context.Context, event events.Event) error {
	batch, err := Convert(event)
	if err != nil {
		ix.metrics.RecordIndexerWrite(err)
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = ix.opts.InitialInterval
	policy.MaxInterval = ix.opts.MaxInterval

	notify := func(err error, d time.Duration) {
		ix.logger.Warn("Retrying event write",
			zap.String("event_id", event.ID()),
			zap.Duration("backoff", d),
			zap.Error(err))
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, ix.store.SaveBatch(ctx, batch)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(ix.opts.MaxRetries),
		backoff.WithNotify(notify))

	ix.metrics.RecordIndexerWrite(err)
	if err != nil {
		ix.logger.Error("Failed to index event",
			zap.String("event_id", event.ID()),
			zap.String("type", string(event.Type())),
			zap.Error(err))
		return fmt.Errorf("index event %s: %w", event.ID(), err)
	}
	return nil
}

// Convert maps an event to its storage rows.
func Convert(event events.Event) (storage.Batch, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return storage.Batch{}, fmt.Errorf("encode event %s: %w", event.ID(), err)
	}

	b := storage.Batch{
		Event: &models.EventRecord{
			EventID:    event.ID(),
			Type:       string(event.Type()),
			Asset:      string(event.Asset()),
			OccurredAt: event.Timestamp(),
			Payload:    string(payload),
		},
	}

	switch e := event.(type) {
	case *events.TradeEvent:
		b.Trade = tradeRecord(e)
	case *events.TokenLaunchedEvent:
		b.Launch = &models.LaunchRecord{
			EventID:       e.ID(),
			Asset:         string(e.Asset()),
			Kind:          string(e.Kind),
			Owner:         string(e.Owner),
			Name:          e.Name,
			Symbol:        e.Symbol,
			TotalReserved: e.TotalReserved,
			InitialSupply: e.InitialSupply,
			Circulating:   e.Circulating,
			DustBurned:    e.DustBurned,
			Holders:       e.Holders,
			LaunchedAt:    e.Timestamp(),
		}
	case *events.AutoLaunchedEvent:
		b.Launch = &models.LaunchRecord{
			EventID:       e.ID(),
			Asset:         string(e.Asset()),
			Kind:          string(types.AssetPost),
			Owner:         string(e.Owner),
			InitialSupply: e.Supply,
			Circulating:   e.Supply,
			Holders:       1,
			Automatic:     true,
			LaunchedAt:    e.Timestamp(),
		}
	}
	return b, nil
}

func tradeRecord(e *events.TradeEvent) *models.TradeRecord {
	return &models.TradeRecord{
		EventID:     e.ID(),
		Asset:       string(e.Asset()),
		Side:        string(e.Side),
		Trader:      string(e.Trader),
		Owner:       string(e.Owner),
		Amount:      e.Amount,
		Value:       e.Value,
		Average:     e.Average,
		FeeTotal:    e.Fees.Total,
		FeeCreator:  e.Fees.Creator,
		FeePlatform: e.Fees.Platform,
		FeeTreasury: e.Fees.Treasury,
		Redirected:  e.Redirected,
		Net:         e.Net,
		Supply:      e.Supply,
		Reserve:     e.Reserve,
		Price:       e.Price,
		Balance:     e.Balance,
		FirstBuy:    e.FirstBuy,
		ExecutedAt:  e.Timestamp(),
	}
}
