// internal/metrics/collector.go
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rovshanmuradov/launchpad/internal/events"
)

const namespace = "launchpad"

// MetricType names a registered collector.
type MetricType string

const (
	OperationCounterType  MetricType = "operation_counter"
	OperationDurationType MetricType = "operation_duration"
	TradeCounterType      MetricType = "trade_counter"
	TradeVolumeType       MetricType = "trade_volume"
	FeeCounterType        MetricType = "fee_counter"
	LaunchCounterType     MetricType = "launch_counter"
	ReservedGaugeType     MetricType = "reserved_value"
	HaltedGaugeType       MetricType = "halted"
	EventCounterType      MetricType = "event_counter"
	IndexerCounterType    MetricType = "indexer_counter"
	EventDroppedType      MetricType = "event_dropped"
)

// Collector owns the launchpad's prometheus collectors. A nil *Collector is
// valid and records nothing.
type Collector struct {
	metrics sync.Map
}

// NewCollector creates the collectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{}
	c.initializeMetrics(reg)
	return c
}

func (c *Collector) initializeMetrics(reg prometheus.Registerer) {
	metricsMap := map[MetricType]prometheus.Collector{
		OperationCounterType: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Engine operations by outcome",
			},
			[]string{"operation", "status", "kind"},
		),
		OperationDurationType: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Engine operation duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 12),
			},
			[]string{"operation"},
		),
		TradeCounterType: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trades_total",
				Help:      "Committed trades by side",
			},
			[]string{"side"},
		),
		TradeVolumeType: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trade_volume_total",
				Help:      "Settlement currency moved by trades, before fees",
			},
			[]string{"side"},
		),
		FeeCounterType: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fees_total",
				Help:      "Fees collected by recipient class",
			},
			[]string{"share"},
		),
		LaunchCounterType: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "launches_total",
				Help:      "Token launches by asset kind and path",
			},
			[]string{"kind", "path"},
		),
		ReservedGaugeType: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "reserved_value",
				Help:      "Settlement currency currently held in reservation escrow",
			},
		),
		HaltedGaugeType: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "trading_halted",
				Help:      "1 while the kill switch is engaged",
			},
		),
		EventCounterType: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Published events by type",
			},
			[]string{"type"},
		),
		IndexerCounterType: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "indexer_writes_total",
				Help:      "Indexer storage writes by status",
			},
			[]string{"status"},
		),
		EventDroppedType: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dropped_total",
				Help:      "Committed events the publisher could not deliver, by type",
			},
			[]string{"type"},
		),
	}

	for metricType, metric := range metricsMap {
		c.metrics.Store(metricType, metric)
		if reg != nil {
			reg.MustRegister(metric)
		}
	}
}

// Reset zeroes every vector metric (useful for testing).
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.metrics.Range(func(_, value interface{}) bool {
		switch m := value.(type) {
		case *prometheus.CounterVec:
			m.Reset()
		case *prometheus.GaugeVec:
			m.Reset()
		case *prometheus.HistogramVec:
			m.Reset()
		case prometheus.Gauge:
			m.Set(0)
		}
		return true
	})
}

func (c *Collector) counterVec(t MetricType) *prometheus.CounterVec {
	if c == nil {
		return nil
	}
	m, ok := c.metrics.Load(t)
	if !ok {
		return nil
	}
	vec, _ := m.(*prometheus.CounterVec)
	return vec
}

func (c *Collector) gauge(t MetricType) prometheus.Gauge {
	if c == nil {
		return nil
	}
	m, ok := c.metrics.Load(t)
	if !ok {
		return nil
	}
	g, _ := m.(prometheus.Gauge)
	return g
}

// RecordOperation records one engine operation. kind is empty on success.
func (c *Collector) RecordOperation(operation string, duration time.Duration, kind string) {
	if c == nil {
		return
	}
	status := "success"
	if kind != "" {
		status = "failure"
	}
	if vec := c.counterVec(OperationCounterType); vec != nil {
		vec.WithLabelValues(operation, status, kind).Inc()
	}
	if m, ok := c.metrics.Load(OperationDurationType); ok {
		if histVec, ok := m.(*prometheus.HistogramVec); ok {
			histVec.WithLabelValues(operation).Observe(duration.Seconds())
		}
	}
}

// RecordIndexerWrite counts storage writes made by the indexer.
func (c *Collector) RecordIndexerWrite(err error) {
	vec := c.counterVec(IndexerCounterType)
	if vec == nil {
		return
	}
	if err != nil {
		vec.WithLabelValues("failure").Inc()
		return
	}
	vec.WithLabelValues("success").Inc()
}

// RecordEventDropped counts a committed event that never reached the bus.
func (c *Collector) RecordEventDropped(eventType events.EventType) {
	if vec := c.counterVec(EventDroppedType); vec != nil {
		vec.WithLabelValues(string(eventType)).Inc()
	}
}

// Handle updates the metrics from a committed event. It is subscribed to
// every event type on the bus.
func (c *Collector) Handle(_ context.Context, event events.Event) error {
	if c == nil {
		return nil
	}
	if vec := c.counterVec(EventCounterType); vec != nil {
		vec.WithLabelValues(string(event.Type())).Inc()
	}

	switch e := event.(type) {
	case *events.TradeEvent:
		side := string(e.Side)
		c.counterVec(TradeCounterType).WithLabelValues(side).Inc()
		c.counterVec(TradeVolumeType).WithLabelValues(side).Add(float64(e.Value))
		fees := c.counterVec(FeeCounterType)
		fees.WithLabelValues("creator").Add(float64(e.Fees.Creator))
		fees.WithLabelValues("platform").Add(float64(e.Fees.Platform))
		fees.WithLabelValues("treasury").Add(float64(e.Fees.Treasury))
	case *events.ReservationCreatedEvent:
		c.gauge(ReservedGaugeType).Add(float64(e.Amount))
	case *events.ReservationWithdrawnEvent:
		c.gauge(ReservedGaugeType).Sub(float64(e.Amount))
	case *events.TokenLaunchedEvent:
		c.gauge(ReservedGaugeType).Sub(float64(e.TotalReserved))
		c.counterVec(LaunchCounterType).WithLabelValues(string(e.Kind), "reservation").Inc()
	case *events.AutoLaunchedEvent:
		c.counterVec(LaunchCounterType).WithLabelValues("post", "auto").Inc()
	case *events.KillSwitchToggledEvent:
		if e.Halted {
			c.gauge(HaltedGaugeType).Set(1)
		} else {
			c.gauge(HaltedGaugeType).Set(0)
		}
	}
	return nil
}
