package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Inc(func(m *Metrics) prometheus.Counter { return m.Lookups })
	m.Inc(func(m *Metrics) prometheus.Counter { return m.Lookups })

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 7)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Lookups))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Inc(func(m *Metrics) prometheus.Counter { return m.Lookups })
}
