package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewloop_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reviewloop_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	passesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reviewloop_passes_total",
			Help: "Total completed dispatch passes",
		},
	)

	passesAborted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reviewloop_passes_aborted_total",
			Help: "Dispatch passes aborted by a store failure",
		},
	)

	passDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reviewloop_pass_duration_seconds",
			Help:    "Wall-clock duration of dispatch passes",
			Buckets: []float64{.1, .5, 1, 2, 5, 8, 10, 30},
		},
	)

	passSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reviewloop_pass_skipped_total",
			Help: "Trackers skipped because the pass budget ran out",
		},
	)

	milestonesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewloop_milestones_sent_total",
			Help: "Reminder emails delivered by milestone offset",
		},
		[]string{"offset_days"},
	)

	milestonesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewloop_milestones_failed_total",
			Help: "Failed send attempts by milestone offset and error kind",
		},
		[]string{"offset_days", "kind"},
	)

	trackersCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reviewloop_trackers_created_total",
			Help: "Total review trackers created",
		},
	)
)

// RecordPass records the outcome counters of one completed pass.
// Per-milestone outcomes are counted separately at send time.
func RecordPass(skipped int, duration time.Duration) {
	passesTotal.Inc()
	passDuration.Observe(duration.Seconds())
	passSkipped.Add(float64(skipped))
}

// PassAborted counts a pass that failed before processing anything.
func PassAborted() {
	passesAborted.Inc()
}

// MilestoneSent counts one delivered reminder.
func MilestoneSent(offsetDays int) {
	milestonesSent.WithLabelValues(strconv.Itoa(offsetDays)).Inc()
}

// MilestoneFailed counts one failed send attempt.
func MilestoneFailed(offsetDays int, kind string) {
	milestonesFailed.WithLabelValues(strconv.Itoa(offsetDays), kind).Inc()
}

// TrackerCreated counts one new tracker.
func TrackerCreated() {
	trackersCreated.Inc()
}

// Handler returns the Prometheus metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency for every HTTP request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
