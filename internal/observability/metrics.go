package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jobmetrics "github.com/mpk-pharma/kanha/internal/jobs"
)

// Metrics collects the Prometheus metrics of the API and its jobs.
type Metrics struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	invoicesCreated   prometheus.Counter
	invoiceRejections *prometheus.CounterVec
	unitsSold         prometheus.Counter
	jobs              *jobmetrics.Metrics
}

// NewMetrics initialises the registry with HTTP, invoice and job metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kanha_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kanha_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kanha_invoices_created_total",
		Help: "Invoices committed.",
	})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kanha_invoice_rejections_total",
		Help: "Invoice submissions that did not commit, by reason.",
	}, []string{"reason"})
	sold := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kanha_stock_units_sold_total",
		Help: "Item units taken off stock by invoices.",
	})
	registry.MustRegister(requests, duration, created, rejections, sold)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		invoicesCreated:   created,
		invoiceRejections: rejections,
		unitsSold:         sold,
		jobs:              jobmetrics.NewMetrics(registry),
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records every HTTP request under its chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// InvoiceCreated counts a committed invoice and the units it sold.
func (m *Metrics) InvoiceCreated(units int) {
	if m == nil {
		return
	}
	m.invoicesCreated.Inc()
	m.unitsSold.Add(float64(units))
}

// InvoiceRejected counts a submission that was rolled back or refused.
func (m *Metrics) InvoiceRejected(reason string) {
	if m == nil {
		return
	}
	m.invoiceRejections.WithLabelValues(reason).Inc()
}

// Jobs returns the job metrics registered on the same registry.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// Registerer exposes the registry for custom metrics.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
