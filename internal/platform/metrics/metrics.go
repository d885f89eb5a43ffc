// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AttemptsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "formations", Name: "attempts_started_total", Help: "Evaluation attempts started",
	})
	AttemptsSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "formations", Name: "attempts_submitted_total", Help: "Evaluation attempts submitted",
	}, []string{"result"})
	AttemptsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "formations", Name: "attempts_rejected_total", Help: "Attempt operations rejected",
	}, []string{"reason"})
	Verdicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "formations", Name: "verdicts_total", Help: "Weighted evaluation verdicts computed",
	}, []string{"status"})
	ProgressDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "formations", Name: "progress_seconds", Help: "Course progress computation latency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(AttemptsStarted, AttemptsSubmitted, AttemptsRejected, Verdicts, ProgressDuration)
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

func ObserveProgress(d time.Duration) { ProgressDuration.Observe(d.Seconds()) }
