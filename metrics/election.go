package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ElectionMetrics instruments offline election runs.
type ElectionMetrics struct {
	stageLatencies *prometheus.HistogramVec
	runs           *prometheus.CounterVec
}

func NewDefaultElectionMetrics() *ElectionMetrics {
	m := &ElectionMetrics{
		stageLatencies: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "election_stage_latencies",
				Help: "How long each election pipeline stage takes, partitioned by solver and stage.",
			},
			[]string{"solver", "stage"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "election_runs",
				Help: "How many election runs finished, partitioned by solver and outcome stage.",
			},
			[]string{"solver", "stage", "status"},
		),
	}
	m.stageLatencies = registerOnce(m.stageLatencies)
	m.runs = registerOnce(m.runs)
	return m
}

// StageTimer creates a latency timer for one pipeline stage.
func (m *ElectionMetrics) StageTimer(solver, stage string) *prometheus.Timer {
	return prometheus.NewTimer(m.stageLatencies.WithLabelValues(solver, stage))
}

// Runs returns the counter for runs ending at the given stage.
func (m *ElectionMetrics) Runs(solver, stage string, ok bool) prometheus.Counter {
	status := "ok"
	if !ok {
		status = "error"
	}
	return m.runs.WithLabelValues(solver, stage, status)
}
