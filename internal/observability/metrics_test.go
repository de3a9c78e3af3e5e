package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics("test")

	m.RecordOperation("http", "query", nil)
	m.RecordOperation("http", "query", errors.New("boom"))
	m.RecordRotation("header")
	m.RecordRefresh(nil)
	m.RecordCacheUpdate("assignTaskMember")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("http", "query", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("http", "query", OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenRotations.WithLabelValues("header")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshAttempts.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheUpdates.WithLabelValues("assignTaskMember")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordOperation("http", "query", nil)
		m.RecordRotation("header")
		m.RecordRefresh(nil)
		m.RecordCacheUpdate("deleteTask")
	})
	assert.Nil(t, m.Registry())
}

func TestNewMetrics_Independent(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics("dup")
		NewMetrics("dup")
	})
}
