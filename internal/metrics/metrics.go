package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AnalysisRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trimgram_analysis_runs_total",
		Help: "Total analysis runs",
	})
	AnalysisErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trimgram_analysis_errors_total",
		Help: "Total analysis runs that failed",
	})
	AnalysisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "trimgram_analysis_duration_seconds",
		Help:    "Analysis duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	AccountsScored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trimgram_accounts_scored_total",
		Help: "Total non-follower accounts scored",
	})
	ScoreFetchFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trimgram_score_fetch_failures_total",
		Help: "Accounts whose engagement fetch failed and scored as zero",
	})
	UnfollowAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trimgram_unfollow_attempts_total",
		Help: "Total unfollow attempts by outcome",
	}, []string{"outcome"})
	Logins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trimgram_logins_total",
		Help: "Total login attempts by result",
	}, []string{"result"})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trimgram_api_retries_total",
		Help: "Total platform API retry attempts",
	}, []string{"endpoint"})
)

func init() {
	prometheus.MustRegister(AnalysisRuns, AnalysisErrors, AnalysisDuration,
		AccountsScored, ScoreFetchFailures, UnfollowAttempts, Logins, APIRetries)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	http.Handle("/metrics", promhttp.Handler())
	go func() { _ = http.ListenAndServe(addr, nil) }()
}

// ObserveAnalysisDuration records one run's duration.
func ObserveAnalysisDuration(start time.Time) {
	AnalysisDuration.Observe(time.Since(start).Seconds())
}

// IncUnfollow increments the unfollow counter for an outcome label.
func IncUnfollow(outcome string) { UnfollowAttempts.WithLabelValues(outcome).Inc() }

// IncLogin increments the login counter for a result label.
func IncLogin(result string) { Logins.WithLabelValues(result).Inc() }

// IncAPIRetry increments the retry counter for an endpoint.
func IncAPIRetry(endpoint string) { APIRetries.WithLabelValues(endpoint).Inc() }
