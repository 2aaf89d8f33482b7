// Package metrics exposes pinbridge counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pinbridge"

// Metrics holds every collector pinbridge updates. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	bridgeCalls   *prometheus.HistogramVec
	bridgeErrors  *prometheus.CounterVec
	connections   prometheus.Gauge
	accepted      prometheus.Counter
	closed        *prometheus.CounterVec
	framingErrors *prometheus.CounterVec
}

// New registers the pinbridge collectors plus the Go and process collectors
// on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Request lines handled, by command and outcome.",
		}, []string{"cmd", "outcome"}),
		bridgeCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bridge_call_duration_seconds",
			Help:      "Bridge call latency by operation.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"operation"}),
		bridgeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_errors_total",
			Help:      "Failed bridge calls by operation.",
		}, []string{"operation"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Client connections currently open.",
		}),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Client connections accepted.",
		}),
		closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_closed_total",
			Help:      "Client connections closed, by terminal state.",
		}, []string{"state"}),
		framingErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "framing_errors_total",
			Help:      "Framing errors reported to clients, by kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.requests,
		m.bridgeCalls,
		m.bridgeErrors,
		m.connections,
		m.accepted,
		m.closed,
		m.framingErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRequest counts one handled request line.
func (m *Metrics) ObserveRequest(cmd string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.requests.WithLabelValues(cmd, outcome).Inc()
}

// ObserveBridgeCall records the latency and outcome of one bridge call.
func (m *Metrics) ObserveBridgeCall(op string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.bridgeCalls.WithLabelValues(op).Observe(elapsed.Seconds())
	if err != nil {
		m.bridgeErrors.WithLabelValues(op).Inc()
	}
}

// ConnectionOpened marks a newly accepted connection.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.accepted.Inc()
	m.connections.Inc()
}

// ConnectionClosed marks a connection ending in state.
func (m *Metrics) ConnectionClosed(state string) {
	if m == nil {
		return
	}
	m.connections.Dec()
	m.closed.WithLabelValues(state).Inc()
}

// FramingError counts a framing error reported to a client.
func (m *Metrics) FramingError(kind string) {
	if m == nil {
		return
	}
	m.framingErrors.WithLabelValues(kind).Inc()
}

// WatchCachedPins exports the pin state cache size, read from count at
// scrape time. Call it at most once per Metrics.
func (m *Metrics) WatchCachedPins(count func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cached_pins",
		Help:      "Pins with a level in the state cache.",
	}, func() float64 { return float64(count()) }))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, m *Metrics, logger *slog.Logger) error {
	if m == nil {
		return errors.New("metrics are not enabled")
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen metrics %s: %w", addr, err)
	}
	return ServeListener(ctx, listener, m, logger)
}

// ServeListener is Serve on an existing listener.
func ServeListener(ctx context.Context, listener net.Listener, m *Metrics, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if logger != nil {
		logger.Info("metrics listening", "addr", listener.Addr().String())
	}
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}
	return nil
}
