package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scrapeRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lapets_scrape_runs_total",
			Help: "Total number of source scrape runs",
		},
		[]string{"source", "status"},
	)

	scrapeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lapets_scrape_duration_seconds",
			Help:    "Duration of a source scrape including reconciliation",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"source"},
	)

	animalsFound = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lapets_animals_found",
			Help: "Animals found by the latest run of a source",
		},
		[]string{"source"},
	)

	reconciledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lapets_reconciled_animals_total",
			Help: "Animals reconciled into the store by outcome",
		},
		[]string{"source", "outcome"},
	)
)
