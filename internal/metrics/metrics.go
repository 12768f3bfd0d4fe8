// Package metrics exposes provisioning counters on a private Prometheus
// registry.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ocelbridge/internal/logger"
	"ocelbridge/internal/provision"
)

const namespace = "ocelbridge"

// Metrics implements provision.Recorder and platform.Observer.
type Metrics struct {
	Registry *prometheus.Registry

	units    *prometheus.CounterVec
	inFlight prometheus.Gauge
	requests *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_total",
			Help:      "Provisioning units by phase and outcome.",
		}, []string{"phase", "outcome"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gate_in_flight",
			Help:      "Units currently holding the provisioning gate.",
		}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "platform_request_seconds",
			Help:      "Platform request latency by operation and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
	}
	m.Registry.MustRegister(m.units, m.inFlight, m.requests)
	return m
}

// UnitFinished counts one finished unit.
func (m *Metrics) UnitFinished(phase string, outcome provision.Outcome) {
	m.units.WithLabelValues(phase, string(outcome)).Inc()
}

// GateInFlight records gate occupancy.
func (m *Metrics) GateInFlight(n int64) {
	m.inFlight.Set(float64(n))
}

// ObserveRequest records one platform request. Status 0 means no response.
func (m *Metrics) ObserveRequest(op string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(op, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Infof("Metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
