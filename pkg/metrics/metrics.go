package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var registerer = prometheus.WrapRegistererWith(nil, registry)

var (
	// Score buckets aligned with the usual rule scores and block thresholds.
	scoreBuckets = []float64{0, 10, 20, 30, 45, 60, 80, 100, 150, 200}

	AnalysesTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokensentry_analyses_total",
			Help: "Total number of requests analyzed, by decision",
		},
		[]string{"decision"},
	)

	RuleTriggersTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokensentry_rule_triggers_total",
			Help: "Total number of rule triggers, by rule",
		},
		[]string{"rule"},
	)

	RiskScore = promauto.With(registerer).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tokensentry_risk_score",
			Help:    "Distribution of total risk scores",
			Buckets: scoreBuckets,
		},
	)

	EngineFailuresTotal = promauto.With(registerer).NewCounter(
		prometheus.CounterOpts{
			Name: "tokensentry_engine_failures_total",
			Help: "Total number of fatal engine failures",
		},
	)
)

// Handler exposes the engine metrics for scraping.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
