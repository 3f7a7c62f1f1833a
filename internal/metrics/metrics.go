// Package metrics exposes Prometheus collectors for the follower snapshot collector.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch results recorded by ObserveFetch.
const (
	FetchResultOK      = "ok"
	FetchResultMissing = "missing"
)

// Run statuses recorded by ObserveRun.
const (
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

var (
	followersFetchTotal       *prometheus.CounterVec
	followersCount            *prometheus.GaugeVec
	followersRetryAttempts    *prometheus.CounterVec
	followersRunsTotal        *prometheus.CounterVec
	followersRunDuration      prometheus.Histogram
	followersLastSuccessEpoch prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		followersFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "followers_fetch_total",
				Help: "Total number of follower count lookups, labeled by result.",
			},
			[]string{"result"},
		)

		followersCount = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "followers_count",
				Help: "Most recently observed follower count, labeled by account.",
			},
			[]string{"account"},
		)

		followersRetryAttempts = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "followers_retry_attempts_total",
				Help: "Total number of retried attempts, labeled by operation.",
			},
			[]string{"operation"},
		)

		followersRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "followers_runs_total",
				Help: "Total number of pipeline runs, labeled by status.",
			},
			[]string{"status"},
		)

		followersRunDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "followers_run_duration_seconds",
				Help:    "Histogram of pipeline run durations.",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
		)

		followersLastSuccessEpoch = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "followers_last_success_timestamp_seconds",
				Help: "Unix time of the last successful publish.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records the outcome of one follower count lookup.
func ObserveFetch(account string, count int64, ok bool) {
	Init()
	if !ok {
		followersFetchTotal.WithLabelValues(FetchResultMissing).Inc()
		return
	}
	followersFetchTotal.WithLabelValues(FetchResultOK).Inc()
	followersCount.WithLabelValues(account).Set(float64(count))
}

// ObserveRetry increments the retry counter for the given operation.
func ObserveRetry(operation string) {
	Init()
	followersRetryAttempts.WithLabelValues(operation).Inc()
}

// ObserveRun records a finished pipeline run.
func ObserveRun(status string, duration time.Duration, finishedAt time.Time) {
	Init()
	followersRunsTotal.WithLabelValues(status).Inc()
	followersRunDuration.Observe(duration.Seconds())
	if status == RunStatusSucceeded {
		followersLastSuccessEpoch.Set(float64(finishedAt.Unix()))
	}
}
