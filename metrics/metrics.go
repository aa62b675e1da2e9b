// Package metrics wraps prometheus collectors for the overlay, grounded
// on the teacher's metrics.Metrics/Averager pair but re-pointed at DHT
// quantities: routing-table occupancy, RPC round-trip latency, task
// throughput, and storage size.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the set of prometheus collectors a Node registers when it
// is created. A Node creates one Metrics, shared by its v4 and v6
// routing tables and reactors.
type Metrics struct {
	reg prometheus.Registerer

	BucketCount    prometheus.Gauge
	RoutingEntries prometheus.Gauge
	ReplacementEntries prometheus.Gauge

	RPCSent       prometheus.Counter
	RPCReceived   prometheus.Counter
	RPCTimeouts   prometheus.Counter
	RPCErrors     *prometheus.CounterVec
	RPCLatency    prometheus.Histogram
	RPCLatencyAvg Averager

	Throttled  prometheus.Counter
	Banned     prometheus.Gauge

	TasksStarted   prometheus.Counter
	TasksCompleted prometheus.Counter
	TasksCancelled prometheus.Counter

	StoredValues prometheus.Gauge
	StoredPeers  prometheus.Gauge
}

// New creates and registers a Metrics instance under the given
// namespace (node.New uses "dht").
func New(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		reg: reg,
		BucketCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "bucket_count", Help: "number of k-buckets in the routing table",
		}),
		RoutingEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "routing_entries", Help: "live entries across all k-buckets",
		}),
		ReplacementEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "replacement_entries", Help: "entries held in replacement caches",
		}),
		RPCSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rpc_sent_total", Help: "outbound RPC calls issued",
		}),
		RPCReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rpc_received_total", Help: "inbound datagrams processed",
		}),
		RPCTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rpc_timeouts_total", Help: "outbound RPC calls that timed out",
		}),
		RPCErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rpc_errors_total", Help: "error responses by wire error code",
		}, []string{"code"}),
		RPCLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "rpc_latency_seconds", Help: "round-trip latency of completed RPC calls",
			Buckets: prometheus.DefBuckets,
		}),
		Throttled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "throttled_total", Help: "inbound requests dropped by the per-ip throttle",
		}),
		Banned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "banned_hosts", Help: "hosts currently on the suspicious-node ban list",
		}),
		TasksStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_started_total", Help: "lookup/announce tasks started",
		}),
		TasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_completed_total", Help: "lookup/announce tasks that reached a terminal state",
		}),
		TasksCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_cancelled_total", Help: "lookup/announce tasks cancelled before completion",
		}),
		StoredValues: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "stored_values", Help: "values currently held by local storage",
		}),
		StoredPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "stored_peers", Help: "service peers currently held by local storage",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.BucketCount, m.RoutingEntries, m.ReplacementEntries,
		m.RPCSent, m.RPCReceived, m.RPCTimeouts, m.RPCErrors, m.RPCLatency,
		m.Throttled, m.Banned,
		m.TasksStarted, m.TasksCompleted, m.TasksCancelled,
		m.StoredValues, m.StoredPeers,
	} {
		// Registration failures (duplicate collector) are not fatal: a
		// second Metrics instance sharing a registry with the same
		// namespace is a test-harness convenience, not a production path.
		_ = reg.Register(c)
	}
	if avg, err := NewAverager(namespace+"_rpc_latency_avg", "round-trip latency of completed RPC calls, seconds", reg); err == nil {
		m.RPCLatencyAvg = avg
	}
	return m
}

// NewForTest returns a Metrics backed by a fresh, unshared registry, for
// unit tests that only care about the struct's zero-configuration
// behavior and not about collisions with a process-wide registry.
func NewForTest() *Metrics {
	return New(prometheus.NewRegistry(), "test")
}
