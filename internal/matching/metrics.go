package matching

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scoresComputed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matching_scores_computed_total",
			Help: "Total number of match scores computed",
		},
	)

	scoreDistribution = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "matching_score_distribution",
			Help:    "Distribution of computed match scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	cacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matching_cache_hits_total",
			Help: "Match cache snapshot hits",
		},
	)

	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matching_cache_misses_total",
			Help: "Match cache snapshot misses",
		},
	)

	interactionsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_interactions_total",
			Help: "Total recorded match interactions",
		},
		[]string{"action"},
	)

	mutualMatchesDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matching_mutual_matches_total",
			Help: "Total mutual matches detected",
		},
	)

	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "matching_query_duration_seconds",
			Help: "Duration of facade queries",
		},
		[]string{"operation"},
	)
)

func RecordScore(score float64) {
	scoresComputed.Inc()
	scoreDistribution.Observe(score)
}

func RecordCacheHit() {
	cacheHits.Inc()
}

func RecordCacheMiss() {
	cacheMisses.Inc()
}

func RecordInteractionMetric(action Action) {
	interactionsRecorded.WithLabelValues(string(action)).Inc()
}

func RecordMutualMatch() {
	mutualMatchesDetected.Inc()
}

func ObserveQuery(operation string, duration time.Duration) {
	queryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
