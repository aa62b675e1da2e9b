package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Averager tracks a running average. The RPC reactor feeds it observed
// round-trip latencies so the mean latency is exported alongside the
// histogram in Metrics.RPCLatency; it is independent of the EWMA that
// networking/timeout keeps for adaptive deadlines.
type Averager interface {
	Observe(value float64)
	Read() float64
}

type averager struct {
	mu    sync.RWMutex
	sum   float64
	count float64

	promCount prometheus.Counter
	promSum   prometheus.Gauge
}

// NewAverager returns an Averager whose running count and sum are also
// exposed as a pair of prometheus collectors named name+"_count" and
// name+"_sum".
func NewAverager(name, help string, reg prometheus.Registerer) (Averager, error) {
	count := prometheus.NewCounter(prometheus.CounterOpts{
		Name: name + "_count",
		Help: "total observations of " + help,
	})
	sum := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: name + "_sum",
		Help: "running sum of " + help,
	})
	if err := reg.Register(count); err != nil {
		return nil, err
	}
	if err := reg.Register(sum); err != nil {
		return nil, err
	}
	return &averager{promCount: count, promSum: sum}, nil
}

// Observe records a new sample.
func (a *averager) Observe(value float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sum += value
	a.count++
	if a.promCount != nil {
		a.promCount.Inc()
	}
	if a.promSum != nil {
		a.promSum.Set(a.sum)
	}
}

// Read returns the current mean, or 0 if no samples have been observed.
func (a *averager) Read() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.count == 0 {
		return 0
	}
	return a.sum / a.count
}
