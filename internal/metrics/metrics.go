// Package metrics exposes Prometheus collectors for the HTTP layer and the
// scoring engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "greenshop"

// Metrics holds the registry and every collector the service updates.
type Metrics struct {
	Registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	recommendations *prometheus.CounterVec
	footprints      *prometheus.CounterVec
	tokensCredited  prometheus.Counter
	engineDuration  *prometheus.HistogramVec
}

// New builds a Metrics with its own registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "route"}),
		recommendations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scorer",
			Name:      "recommendations_total",
			Help:      "Recommendation lists served, by whether the list was empty.",
		}, []string{"empty"}),
		footprints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scorer",
			Name:      "footprint_reports_total",
			Help:      "Footprint reports computed, by ranking label.",
		}, []string{"ranking"}),
		tokensCredited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scorer",
			Name:      "tokens_credited_total",
			Help:      "Green tokens credited to user balances.",
		}),
		engineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scorer",
			Name:      "operation_duration_seconds",
			Help:      "Duration of recommend and footprint operations including store reads.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"operation"}),
	}
	m.Registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.recommendations,
		m.footprints,
		m.tokensCredited,
		m.engineDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Instrument records request count, duration, and in-flight gauge. Routes
// are labelled by their chi pattern so path parameters do not explode
// cardinality.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// ObserveRecommendation records one served recommendation list.
func (m *Metrics) ObserveRecommendation(n int, d time.Duration) {
	m.recommendations.WithLabelValues(strconv.FormatBool(n == 0)).Inc()
	m.engineDuration.WithLabelValues("recommend").Observe(d.Seconds())
}

// ObserveFootprint records one footprint report and any tokens it credited.
func (m *Metrics) ObserveFootprint(ranking string, credited int, d time.Duration) {
	m.footprints.WithLabelValues(ranking).Inc()
	if credited > 0 {
		m.tokensCredited.Add(float64(credited))
	}
	m.engineDuration.WithLabelValues("footprint").Observe(d.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
