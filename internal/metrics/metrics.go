package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "noteflix"

// Label values of TokensIssued
const (
	IssuedOnLogin    = "login"
	IssuedOnRotation = "rotation"
)

// Token lifecycle counters
type Metrics struct {
	// Refresh tokens issued, by 'reason': login or rotation
	TokensIssued *prometheus.CounterVec

	// Refresh tokens revoked, by 'reason' stored with the token
	TokensRevoked *prometheus.CounterVec

	// Refresh attempts rejected, by 'cause': not_found, revoked, expired
	RefreshRejected *prometheus.CounterVec

	// Revoked refresh tokens presented again
	ReuseDetected prometheus.Counter

	// Logins rejected because of wrong email or password
	LoginFailed prometheus.Counter
}

// New creates counters and registers them in reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refresh_tokens_issued_total",
			Help:      "Refresh tokens issued.",
		}, []string{"reason"}),
		TokensRevoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refresh_tokens_revoked_total",
			Help:      "Refresh tokens revoked.",
		}, []string{"reason"}),
		RefreshRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refresh_rejected_total",
			Help:      "Refresh attempts rejected.",
		}, []string{"cause"}),
		ReuseDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refresh_reuse_detected_total",
			Help:      "Revoked refresh tokens presented again.",
		}),
		LoginFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "login_failed_total",
			Help:      "Logins rejected because of invalid credentials.",
		}),
	}

	reg.MustRegister(m.TokensIssued, m.TokensRevoked, m.RefreshRejected, m.ReuseDetected, m.LoginFailed)

	return m
}

// NewNoOp creates counters registered nowhere
func NewNoOp() *Metrics {
	return New(prometheus.NewRegistry())
}

// NewRegistry returns registry with Go runtime and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler exposes metrics gathered by reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
