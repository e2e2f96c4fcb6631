package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors exported by a run. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retries         *prometheus.CounterVec
	limiterWaits    *prometheus.CounterVec
	limiterWaitSecs *prometheus.CounterVec
	items           *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tftstats_api_requests_total",
			Help: "API requests by operation and HTTP status (0 = transport failure).",
		}, []string{"operation", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tftstats_api_request_duration_seconds",
			Help:    "API request latency by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tftstats_api_retries_total",
			Help: "Requests retried after a 429 response.",
		}, []string{"operation"}),
		limiterWaits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tftstats_ratelimit_waits_total",
			Help: "Times the local rate limiter suspended a caller, by window.",
		}, []string{"window"}),
		limiterWaitSecs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tftstats_ratelimit_wait_seconds_total",
			Help: "Total time spent suspended by the local rate limiter, by window.",
		}, []string{"window"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tftstats_items_total",
			Help: "Collected items by kind (player, match, record) and outcome.",
		}, []string{"kind", "outcome"}),
	}
	reg.MustRegister(m.requests, m.requestDuration, m.retries, m.limiterWaits, m.limiterWaitSecs, m.items)
	return m
}

func (m *Metrics) ObserveRequest(operation string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) ObserveRetry(operation string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(operation).Inc()
}

func (m *Metrics) ObserveLimiterWait(window string, d time.Duration) {
	if m == nil {
		return
	}
	m.limiterWaits.WithLabelValues(window).Inc()
	m.limiterWaitSecs.WithLabelValues(window).Add(d.Seconds())
}

// ObserveItem counts one player, match or record with its outcome
// (ok, failed, skipped).
func (m *Metrics) ObserveItem(kind, outcome string) {
	if m == nil {
		return
	}
	m.items.WithLabelValues(kind, outcome).Inc()
}

// Registry exposes the underlying registry (useful for testing).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
