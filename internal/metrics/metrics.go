// Package metrics exposes Prometheus collectors for lookups and updates.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels.
const (
	ResultFound    = "found"
	ResultNotFound = "not_found"
	ResultError    = "error"
	ResultSuccess  = "success"
)

var (
	lookupsTotal          *prometheus.CounterVec
	updatesTotal          *prometheus.CounterVec
	updateDurationSeconds prometheus.Histogram
	tableRows             *prometheus.GaugeVec

	once sync.Once
)

// Init registers the collectors. It is safe to call more than once.
func Init() {
	once.Do(func() {
		lookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geotargets_lookups_total",
				Help: "Total number of criteria id lookups, labeled by result.",
			},
			[]string{"result"},
		)

		updatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geotargets_updates_total",
				Help: "Total number of table updates, labeled by result.",
			},
			[]string{"result"},
		)

		updateDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "geotargets_update_duration_seconds",
				Help:    "Histogram of table update durations.",
				Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300},
			},
		)

		tableRows = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "geotargets_table_rows",
				Help: "Rows read and kept by the last filtered update, labeled by kind.",
			},
			[]string{"kind"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveLookup counts a lookup with the given result label.
func ObserveLookup(result string) {
	Init()
	lookupsTotal.WithLabelValues(result).Inc()
}

// ObserveUpdate counts an update and records how long it took.
func ObserveUpdate(result string, d time.Duration) {
	Init()
	updatesTotal.WithLabelValues(result).Inc()
	updateDurationSeconds.Observe(d.Seconds())
}

// SetTableRows sets the row gauge for kind ("read" or "kept").
func SetTableRows(kind string, n int) {
	Init()
	tableRows.WithLabelValues(kind).Set(float64(n))
}
