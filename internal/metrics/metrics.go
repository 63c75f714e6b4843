// Package metrics counts login, refresh and verification outcomes.
package metrics

import (
	"net/http"

	"github.com/brizzai/session-broker/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "session_broker"

// Result label values.
const (
	ResultSuccess      = "success"
	ResultRejected     = "rejected"
	ResultError        = "error"
	ResultFresh        = "fresh"
	ResultRefreshed    = "refreshed"
	ResultUnauthorized = "unauthorized"
)

// Recorder owns a private registry. A nil *Recorder records nothing.
type Recorder struct {
	registry      *prometheus.Registry
	logins        *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	verifications *prometheus.CounterVec
}

// NewRecorder registers the broker's counters plus the Go runtime collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Completed provider callbacks by result.",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Refresh-token grants by result.",
		}, []string{"result"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Session verifications by result.",
		}, []string{"result"}),
	}

	r.registry.MustRegister(
		r.logins,
		r.refreshes,
		r.verifications,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// New returns nil when metrics are disabled.
func New(cfg *config.Config) *Recorder {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return NewRecorder()
}

func (r *Recorder) Login(result string) {
	if r == nil {
		return
	}
	r.logins.WithLabelValues(result).Inc()
}

func (r *Recorder) Refresh(result string) {
	if r == nil {
		return
	}
	r.refreshes.WithLabelValues(result).Inc()
}

func (r *Recorder) Verification(result string) {
	if r == nil {
		return
	}
	r.verifications.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}
