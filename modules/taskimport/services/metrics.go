package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	importsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskimport",
		Name:      "imports_total",
		Help:      "Total number of import attempts broken down by commit strategy and result.",
	}, []string{"strategy", "result"})

	importFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskimport",
		Name:      "fallbacks_total",
		Help:      "Total number of accelerated attempts that fell back to the direct path, by reason.",
	}, []string{"reason"})

	importRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskimport",
		Name:      "rows_total",
		Help:      "Total number of source rows seen by the projector, by outcome.",
	}, []string{"outcome"})

	identityDegraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskimport",
		Name:      "identity_degraded_total",
		Help:      "Total number of assignee identities imported unassigned, by reason.",
	}, []string{"reason"})

	writeConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskimport",
		Name:      "write_conflicts_total",
		Help:      "Total number of import write conflicts broken down by kind.",
	}, []string{"kind"})

	commitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taskimport",
		Name:      "commit_duration_seconds",
		Help:      "Time spent committing a validated batch, by strategy.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"strategy"})
)

func recordImport(strategy string, err error) {
	result := "committed"
	if err != nil {
		result = "rolled_back"
	}
	if strategy == "" {
		strategy = "none"
	}
	importsTotal.WithLabelValues(strategy, result).Inc()
}

func recordFallback(reason string) {
	importFallbacks.WithLabelValues(reason).Inc()
}

func recordRows(outcome string, n int) {
	if n <= 0 {
		return
	}
	importRows.WithLabelValues(outcome).Add(float64(n))
}

func recordIdentityDegraded(reason string) {
	identityDegraded.WithLabelValues(reason).Inc()
}

func recordWriteConflict(kind string) {
	if kind == "" {
		kind = "other"
	}
	writeConflicts.WithLabelValues(kind).Inc()
}

func observeCommit(strategy string, started time.Time) {
	commitDuration.WithLabelValues(strategy).Observe(time.Since(started).Seconds())
}
