// Package httpapi provides the HTTP surface: Prometheus metrics, status,
// health, and the rankings endpoint.
package httpapi

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Upstream API metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration prometheus.Histogram

	// Sync pass metrics
	SyncPassesTotal    *prometheus.CounterVec
	SyncPassDuration   prometheus.Histogram
	LastSyncTimestamp  prometheus.Gauge
	BatchFailuresTotal prometheus.Counter

	// Model metrics
	StationsTracked prometheus.Gauge
	PricesTracked   prometheus.Gauge
	CheapestPrice   *prometheus.GaugeVec
}

// NewMetrics creates and registers Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		APIRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fuelwatch_api_requests_total",
				Help: "Total number of upstream API requests by status",
			},
			[]string{"status"},
		),
		APIRequestDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fuelwatch_api_request_duration_seconds",
				Help:    "Upstream API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		SyncPassesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fuelwatch_sync_passes_total",
				Help: "Total number of sync passes by status",
			},
			[]string{"status"},
		),
		SyncPassDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fuelwatch_sync_pass_duration_seconds",
				Help:    "Sync pass duration in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		LastSyncTimestamp: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "fuelwatch_last_sync_timestamp",
				Help: "Unix timestamp of the last successful sync pass",
			},
		),
		BatchFailuresTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fuelwatch_batch_failures_total",
				Help: "Total number of batches still failed after the retry pass",
			},
		),
		StationsTracked: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "fuelwatch_stations_tracked",
				Help: "Number of fuel stations in the current model",
			},
		),
		PricesTracked: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "fuelwatch_prices_tracked",
				Help: "Number of price records in the current model",
			},
		),
		CheapestPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fuelwatch_cheapest_price_pence_per_litre",
				Help: "Cheapest price within the search radius in pence per litre",
			},
			[]string{"fuel_type"},
		),
	}
}

// RecordAPIRequest records an upstream API request by outcome.
func (m *Metrics) RecordAPIRequest(status string, duration time.Duration) {
	m.APIRequestsTotal.WithLabelValues(status).Inc()
	m.APIRequestDuration.Observe(duration.Seconds())
}

// RecordPass records the outcome and duration of a sync pass.
func (m *Metrics) RecordPass(success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.SyncPassesTotal.WithLabelValues(status).Inc()
	m.SyncPassDuration.Observe(duration.Seconds())
}

// RecordBatchFailures counts batches that stayed failed in a partial pass.
func (m *Metrics) RecordBatchFailures(count int) {
	m.BatchFailuresTotal.Add(float64(count))
}

// RecordLastSync records the timestamp of the last successful sync pass.
func (m *Metrics) RecordLastSync(ts time.Time) {
	m.LastSyncTimestamp.Set(float64(ts.Unix()))
}

// RecordModelSize records the station and price counts of the current model.
func (m *Metrics) RecordModelSize(stations, prices int) {
	m.StationsTracked.Set(float64(stations))
	m.PricesTracked.Set(float64(prices))
}

// RecordCheapest records the cheapest in-radius price for a fuel type.
func (m *Metrics) RecordCheapest(fuel string, pencePerLitre float64) {
	m.CheapestPrice.WithLabelValues(fuel).Set(pencePerLitre)
}
