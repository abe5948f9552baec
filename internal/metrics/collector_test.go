package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/launchpad/internal/events"
	"github.com/rovshanmuradov/launchpad/internal/exchange"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

func TestCollectorCountsTrades(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	trade := &events.TradeEvent{
		BaseEvent: events.NewBase(events.TradeExecuted, "post-1", time.Unix(1, 0)),
		Side:      types.SideBuy,
		Value:     1_000_000,
		Fees:      exchange.Fees{Total: 15_000, Creator: 10_000, Platform: 2_500, Treasury: 2_500},
	}
	require.NoError(t, c.Handle(context.Background(), trade))
	require.NoError(t, c.Handle(context.Background(), trade))

	trades := c.counterVec(TradeCounterType)
	assert.Equal(t, 2.0, testutil.ToFloat64(trades.WithLabelValues("buy")))
	volume := c.counterVec(TradeVolumeType)
	assert.Equal(t, 2_000_000.0, testutil.ToFloat64(volume.WithLabelValues("buy")))
	fees := c.counterVec(FeeCounterType)
	assert.Equal(t, 20_000.0, testutil.ToFloat64(fees.WithLabelValues("creator")))
}

func TestCollectorTracksEscrowAndHalt(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	ctx := context.Background()

	require.NoError(t, c.Handle(ctx, &events.ReservationCreatedEvent{
		BaseEvent: events.NewBase(events.ReservationCreated, "p", time.Unix(1, 0)),
		Amount:    700,
	}))
	require.NoError(t, c.Handle(ctx, &events.ReservationWithdrawnEvent{
		BaseEvent: events.NewBase(events.ReservationWithdrawn, "p", time.Unix(2, 0)),
		Amount:    200,
	}))
	assert.Equal(t, 500.0, testutil.ToFloat64(c.gauge(ReservedGaugeType)))

	require.NoError(t, c.Handle(ctx, &events.KillSwitchToggledEvent{
		BaseEvent: events.NewBase(events.KillSwitchToggled, "", time.Unix(3, 0)),
		Halted:    true,
	}))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.gauge(HaltedGaugeType)))
}

func TestRecordOperation(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	c.RecordOperation("buy", time.Millisecond, "")
	c.RecordOperation("buy", time.Millisecond, "invariant")
	c.RecordIndexerWrite(errors.New("down"))

	ops := c.counterVec(OperationCounterType)
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("buy", "success", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("buy", "failure", "invariant")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.counterVec(IndexerCounterType).WithLabelValues("failure")))

	c.RecordEventDropped(events.TradeExecuted)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.counterVec(EventDroppedType).WithLabelValues(string(events.TradeExecuted))))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.RecordOperation("sell", time.Second, "")
	c.RecordIndexerWrite(nil)
	c.RecordEventDropped(events.TradeExecuted)
	c.Reset()
	assert.NoError(t, c.Handle(context.Background(), &events.TradeEvent{}))
}
