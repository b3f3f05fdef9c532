package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	runsStartedTotal *prometheus.CounterVec
	reviewEditsTotal *prometheus.CounterVec
	reviewMinutes    *prometheus.HistogramVec
	submissionsTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scp",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scp",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scp",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	runsStartedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scp",
			Subsystem: "runs",
			Name:      "started_total",
			Help:      "Total autofill runs accepted for processing.",
		},
		[]string{"service"},
	)
	reviewEditsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scp",
			Subsystem: "review",
			Name:      "edits_total",
			Help:      "Total reviewer decisions on answers by resulting status.",
		},
		[]string{"service", "status"},
	)
	reviewMinutes := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scp",
			Subsystem: "review",
			Name:      "minutes",
			Help:      "Reviewer time per submitted run in minutes.",
			Buckets:   []float64{1, 2, 5, 10, 15, 30, 60, 120},
		},
		[]string{"service"},
	)
	submissionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scp",
			Subsystem: "review",
			Name:      "submissions_total",
			Help:      "Total runs submitted back to the sponsor.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		runsStartedTotal,
		reviewEditsTotal,
		reviewMinutes,
		submissionsTotal,
	)

	return &HTTPServerMetrics{
		registry:         registry,
		requestTotal:     requestTotal,
		requestDuration:  requestDuration,
		requestInFlight:  requestInFlight,
		runsStartedTotal: runsStartedTotal,
		reviewEditsTotal: reviewEditsTotal,
		reviewMinutes:    reviewMinutes,
		submissionsTotal: submissionsTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses run and site ids so the path label stays
// low-cardinality.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/runs/"):
		rest := strings.TrimPrefix(path, "/v1/runs/")
		switch {
		case strings.Contains(rest, "/answers/"):
			return "/v1/runs/{run_id}/answers/{field_id}"
		case strings.HasSuffix(rest, "/review"):
			return "/v1/runs/{run_id}/review"
		case strings.HasSuffix(rest, "/submit"):
			return "/v1/runs/{run_id}/submit"
		default:
			return "/v1/runs/{run_id}"
		}
	case strings.HasPrefix(path, "/v1/sites/"):
		return "/v1/sites/{site_id}/metrics"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordRunStarted(service string) {
	m.runsStartedTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordReviewEdit(service, status string) {
	if status == "" {
		status = "unknown"
	}
	m.reviewEditsTotal.WithLabelValues(service, status).Inc()
}

func (m *HTTPServerMetrics) RecordSubmission(service string, reviewMinutes float64) {
	m.submissionsTotal.WithLabelValues(service).Inc()
	if reviewMinutes > 0 {
		m.reviewMinutes.WithLabelValues(service).Observe(reviewMinutes)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
