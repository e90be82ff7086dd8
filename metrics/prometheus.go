// Package metrics provides a Prometheus-backed implementation of
// vectrix.MetricsCollector, for callers that want operational metrics
// exported on a /metrics endpoint instead of the in-memory counters
// vectrix.BasicMetricsCollector keeps.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector records vectrix operation counts and latencies as
// Prometheus counters and histograms, and the live item count as a gauge.
type PrometheusCollector struct {
	opsTotal   *prometheus.CounterVec
	opErrors   *prometheus.CounterVec
	opDuration *prometheus.HistogramVec
	itemsLive  prometheus.Gauge
}

// NewPrometheusCollector creates its vectrix_-prefixed metrics and registers
// them with reg. If reg is nil the metrics are created but not registered.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)
	return &PrometheusCollector{
		opsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vectrix_operations_total",
				Help: "Total number of index operations processed, by kind.",
			},
			[]string{"op"},
		),
		opErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vectrix_operation_errors_total",
				Help: "Total number of index operations that returned an error, by kind.",
			},
			[]string{"op"},
		),
		opDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vectrix_operation_duration_seconds",
				Help:    "Duration of index operations in seconds, by kind.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"op"},
		),
		itemsLive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vectrix_items_live",
				Help: "Number of non-deleted items last observed in the index.",
			},
		),
	}
}

func (c *PrometheusCollector) record(op string, d time.Duration, err error) {
	c.opsTotal.WithLabelValues(op).Inc()
	c.opDuration.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		c.opErrors.WithLabelValues(op).Inc()
	}
}

// RecordInsert implements vectrix.MetricsCollector.
func (c *PrometheusCollector) RecordInsert(duration time.Duration, err error) {
	c.record("insert", duration, err)
}

// RecordBatchInsert implements vectrix.MetricsCollector.
func (c *PrometheusCollector) RecordBatchInsert(count, failed int, duration time.Duration) {
	c.opsTotal.WithLabelValues("batch_insert").Add(float64(count))
	c.opErrors.WithLabelValues("batch_insert").Add(float64(failed))
	c.opDuration.WithLabelValues("batch_insert").Observe(duration.Seconds())
}

// RecordSearch implements vectrix.MetricsCollector.
func (c *PrometheusCollector) RecordSearch(k int, duration time.Duration, err error) {
	c.record("search", duration, err)
}

// RecordDelete implements vectrix.MetricsCollector.
func (c *PrometheusCollector) RecordDelete(duration time.Duration, err error) {
	c.record("delete", duration, err)
}

// RecordUpdate implements vectrix.MetricsCollector.
func (c *PrometheusCollector) RecordUpdate(duration time.Duration, err error) {
	c.record("update", duration, err)
}

// SetItemsLive reports the current live item count, typically sampled
// periodically from Index.ListItems or a manifest read rather than on
// every operation.
func (c *PrometheusCollector) SetItemsLive(n int) {
	c.itemsLive.Set(float64(n))
}
