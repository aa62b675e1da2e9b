package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestAveragerZeroValue(t *testing.T) {
	a, err := NewAverager("test_avg", "test values", prometheus.NewRegistry())
	require.NoError(t, err)
	require.Equal(t, float64(0), a.Read())
}

func TestAveragerObserve(t *testing.T) {
	a, err := NewAverager("test_avg2", "test values", prometheus.NewRegistry())
	require.NoError(t, err)

	a.Observe(2)
	a.Observe(4)
	a.Observe(6)
	require.Equal(t, float64(4), a.Read())
}

func TestNewRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "testns")
	require.NotNil(t, m.BucketCount)
	require.NotNil(t, m.RPCLatency)
	require.NotNil(t, m.RPCErrors)
	require.NotNil(t, m.RPCLatencyAvg)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, mfs)
}
