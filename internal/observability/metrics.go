// Package observability exposes Prometheus metrics for progression outcomes.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityLoggedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "progression_service",
		Subsystem: "persistence",
		Name:      "last_activity_logged_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity persisted to Postgres.",
	})
	activityReversedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "progression_service",
		Subsystem: "persistence",
		Name:      "last_activity_reversed_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity reversal persisted to Postgres.",
	})
	levelsGainedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "progression_service",
		Subsystem: "engine",
		Name:      "levels_gained_total",
		Help:      "Total levels gained across all users.",
	})
	levelsLostCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "progression_service",
		Subsystem: "engine",
		Name:      "levels_lost_total",
		Help:      "Total levels lost to reversals across all users.",
	})
	degradationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progression_service",
		Subsystem: "engine",
		Name:      "degradation_penalties_total",
		Help:      "Number of decay penalties applied, labeled by category.",
	}, []string{"category"})
)

func init() {
	prometheus.MustRegister(activityLoggedGauge, activityReversedGauge, levelsGainedCounter, levelsLostCounter, degradationCounter)
}

// RecordActivityLogged updates the logging watermark gauge and level counters.
func RecordActivityLogged(ts time.Time, levelsGained int) {
	if !ts.IsZero() {
		activityLoggedGauge.Set(float64(ts.Unix()))
	}
	if levelsGained > 0 {
		levelsGainedCounter.Add(float64(levelsGained))
	}
}

// RecordActivityReversed updates the reversal watermark gauge and level counters.
func RecordActivityReversed(ts time.Time, levelsLost int) {
	if !ts.IsZero() {
		activityReversedGauge.Set(float64(ts.Unix()))
	}
	if levelsLost > 0 {
		levelsLostCounter.Add(float64(levelsLost))
	}
}

// RecordDegradation counts one applied penalty for the category.
func RecordDegradation(category string) {
	degradationCounter.WithLabelValues(category).Inc()
}
