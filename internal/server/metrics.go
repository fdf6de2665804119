package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the HTTP surface and the job engine.
//
// It implements tasks.Observer so the engine reports job outcomes directly.
type Metrics struct {
	registry *prometheus.Registry

	jobsStarted   *prometheus.CounterVec
	jobsFinished  *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	itemsFinished *prometheus.CounterVec
	tracksWritten prometheus.Counter

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetrics registers every collector on a fresh registry, plus the Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plsync",
			Name:      "jobs_started_total",
			Help:      "Jobs started, by kind.",
		}, []string{"kind"}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plsync",
			Name:      "jobs_finished_total",
			Help:      "Jobs that reached a terminal state, by kind and status.",
		}, []string{"kind", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "plsync",
			Name:      "job_duration_seconds",
			Help:      "Wall time from job start to terminal state.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"kind"}),
		itemsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plsync",
			Name:      "job_items_finished_total",
			Help:      "Job items at job end, by kind and status.",
		}, []string{"kind", "status"}),
		tracksWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "plsync",
			Name:      "tracks_written_total",
			Help:      "Tracks added to playlists or saved to libraries.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plsync",
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method, path and status code.",
		}, []string{"method", "path", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "plsync",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.jobsStarted, m.jobsFinished, m.jobDuration, m.itemsFinished, m.tracksWritten,
		m.requests, m.requestDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) JobStarted(kind models.JobKind) {
	m.jobsStarted.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) JobFinished(kind models.JobKind, status models.JobStatus, elapsed time.Duration) {
	m.jobsFinished.WithLabelValues(string(kind), string(status)).Inc()
	m.jobDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

func (m *Metrics) ItemFinished(kind models.JobKind, status models.ItemStatus) {
	m.itemsFinished.WithLabelValues(string(kind), string(status)).Inc()
}

func (m *Metrics) TracksWritten(n int) {
	m.tracksWritten.Add(float64(n))
}

func (m *Metrics) observeRequest(method, path string, code int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, path, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
