package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Labels to use for partitioning node RPC requests.
	rpcRequestLabels = []string{"method", "status"}

	// Labels to use for partitioning node RPC latencies.
	rpcLatencyLabels = []string{"method"}
)

const (
	RPCStatusOK    = "ok"
	RPCStatusError = "error"
)

// RPCMetrics instruments requests made to a chain node.
type RPCMetrics struct {
	// Counts of requests made to the node.
	requestCounts *prometheus.CounterVec

	// Latencies of node requests.
	requestLatencies *prometheus.HistogramVec
}

// NewDefaultRPCMetrics creates Prometheus metric instrumentation for
// requests made to a chain node. Default metrics include:
//
// 1. Counts of requests by method and status.
// 2. Latencies for requests.
func NewDefaultRPCMetrics() *RPCMetrics {
	m := &RPCMetrics{
		requestCounts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "node_rpc_requests",
				Help: "How many node RPC requests were made, partitioned by method and status.",
			},
			rpcRequestLabels,
		),
		requestLatencies: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "node_rpc_latencies",
				Help: "How long node RPC requests take, partitioned by method.",
			},
			rpcLatencyLabels,
		),
	}
	m.requestCounts = registerOnce(m.requestCounts)
	m.requestLatencies = registerOnce(m.requestLatencies)
	return m
}

// RequestCounter returns the counter for a finished request.
func (m *RPCMetrics) RequestCounter(method, status string) prometheus.Counter {
	return m.requestCounts.WithLabelValues(method, status)
}

// RequestTimer creates a new latency timer for the provided method.
func (m *RPCMetrics) RequestTimer(method string) *prometheus.Timer {
	return prometheus.NewTimer(m.requestLatencies.WithLabelValues(method))
}
