package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service provides Prometheus metrics for the report engine
type Service struct {
	registry *prometheus.Registry

	// Job Metrics
	jobsSubmittedTotal prometheus.Counter
	jobsFinishedTotal  *prometheus.CounterVec
	jobsInFlight       prometheus.Gauge
	jobDuration        *prometheus.HistogramVec

	// Service Metrics
	serviceResultsTotal *prometheus.CounterVec
	fetchDuration       *prometheus.HistogramVec

	// HTTP Metrics
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewService registers every metric on a fresh registry, so several
// services can coexist in one process (tests).
func NewService() *Service {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Service{
		registry: reg,
		jobsSubmittedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "slareport_jobs_submitted_total",
				Help: "Total number of report jobs accepted",
			},
		),
		jobsFinishedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slareport_jobs_finished_total",
				Help: "Total number of report jobs finalized by status",
			},
			[]string{"status"},
		),
		jobsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "slareport_jobs_in_flight",
				Help: "Report jobs currently processing",
			},
		),
		jobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slareport_job_duration_seconds",
				Help:    "Wall time of report jobs by final status",
				Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		),
		serviceResultsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slareport_service_results_total",
				Help: "Total number of service results by service type and status",
			},
			[]string{"service_type", "status"},
		),
		fetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slareport_fetch_duration_seconds",
				Help:    "Time spent fetching and computing one service",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service_type"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slareport_http_requests_total",
				Help: "Total number of HTTP requests by endpoint, method and status",
			},
			[]string{"endpoint", "method", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slareport_http_request_duration_seconds",
				Help:    "HTTP request latency by endpoint",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "status"},
		),
	}
}

func (s *Service) Registry() *prometheus.Registry {
	return s.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (s *Service) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

func (s *Service) RecordJobSubmitted() {
	s.jobsSubmittedTotal.Inc()
	s.jobsInFlight.Inc()
}

func (s *Service) RecordJobFinished(status string, duration time.Duration) {
	s.jobsInFlight.Dec()
	s.jobsFinishedTotal.WithLabelValues(status).Inc()
	s.jobDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// ObserveFetch satisfies analyze.Recorder.
func (s *Service) ObserveFetch(serviceType, status string, elapsed time.Duration) {
	s.serviceResultsTotal.WithLabelValues(serviceType, status).Inc()
	s.fetchDuration.WithLabelValues(serviceType).Observe(elapsed.Seconds())
}

func (s *Service) RecordRequest(endpoint, method, status string) {
	s.requestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

func (s *Service) RecordRequestDuration(endpoint, status string, duration time.Duration) {
	s.requestDuration.WithLabelValues(endpoint, status).Observe(duration.Seconds())
}
