package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds the Prometheus collectors for the session/transport core.
type Metrics struct {
	registry *prometheus.Registry

	Operations      *prometheus.CounterVec
	TokenRotations  *prometheus.CounterVec
	RefreshAttempts *prometheus.CounterVec
	CacheUpdates    *prometheus.CounterVec
}

// NewMetrics registers collectors on a private registry so several clients
// can live in one process.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	operations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "GraphQL operations sent, by channel, kind and outcome",
		},
		[]string{"channel", "kind", "outcome"},
	)
	rotations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_rotations_total",
			Help:      "Stored credential replacements, by source",
		},
		[]string{"source"},
	)
	refreshes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refresh_attempts_total",
			Help:      "Out-of-band refresh calls, by outcome",
		},
		[]string{"outcome"},
	)
	cacheUpdates := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_updates_total",
			Help:      "Entity graph updates applied, by rule",
		},
		[]string{"rule"},
	)

	registry.MustRegister(operations, rotations, refreshes, cacheUpdates)

	return &Metrics{
		registry:        registry,
		Operations:      operations,
		TokenRotations:  rotations,
		RefreshAttempts: refreshes,
		CacheUpdates:    cacheUpdates,
	}
}

// Registry exposes the registry for scraping or inspection.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordOperation counts one operation round-trip.
func (m *Metrics) RecordOperation(channel, kind string, err error) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(channel, kind, outcome(err)).Inc()
}

// RecordRotation counts a credential replacement.
func (m *Metrics) RecordRotation(source string) {
	if m == nil {
		return
	}
	m.TokenRotations.WithLabelValues(source).Inc()
}

// RecordRefresh counts a refresh endpoint call.
func (m *Metrics) RecordRefresh(err error) {
	if m == nil {
		return
	}
	m.RefreshAttempts.WithLabelValues(outcome(err)).Inc()
}

// RecordCacheUpdate counts an applied cache rule.
func (m *Metrics) RecordCacheUpdate(rule string) {
	if m == nil {
		return
	}
	m.CacheUpdates.WithLabelValues(rule).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}
