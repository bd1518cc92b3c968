// Package telemetry exposes Prometheus counters for the loop's hot paths.
// A nil *Metrics is a valid no-op receiver, so the library runs unchanged
// without a registry wired in.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the loop counters.
type Metrics struct {
	enqueued     prometheus.Counter
	dequeued     prometheus.Counter
	iterations   prometheus.Counter
	compressions prometheus.Counter
	checkpoints  prometheus.Counter
	toolCalls    *prometheus.CounterVec
	taskStatus   *prometheus.CounterVec
}

// New registers the counters on reg and returns the bundle.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentloop", Name: "messages_enqueued_total",
			Help: "Messages accepted into the queue.",
		}),
		dequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentloop", Name: "messages_dequeued_total",
			Help: "Messages claimed by the scheduler.",
		}),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentloop", Name: "iterations_total",
			Help: "Agent loop iterations run.",
		}),
		compressions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentloop", Name: "compressions_total",
			Help: "Context compression passes.",
		}),
		checkpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentloop", Name: "checkpoints_total",
			Help: "Checkpoints written.",
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentloop", Name: "tool_calls_total",
			Help: "Tool calls by outcome.",
		}, []string{"tool", "outcome"}),
		taskStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentloop", Name: "tasks_total",
			Help: "Finished tasks by terminal status.",
		}, []string{"status"}),
	}
	reg.MustRegister(
		m.enqueued, m.dequeued, m.iterations,
		m.compressions, m.checkpoints, m.toolCalls, m.taskStatus,
	)
	return m
}

// IncEnqueued counts an accepted message.
func (m *Metrics) IncEnqueued() {
	if m != nil {
		m.enqueued.Inc()
	}
}

// IncDequeued counts a claimed message.
func (m *Metrics) IncDequeued() {
	if m != nil {
		m.dequeued.Inc()
	}
}

// IncIterations counts a loop iteration.
func (m *Metrics) IncIterations() {
	if m != nil {
		m.iterations.Inc()
	}
}

// IncCompressions counts a compression pass.
func (m *Metrics) IncCompressions() {
	if m != nil {
		m.compressions.Inc()
	}
}

// IncCheckpoints counts a checkpoint write.
func (m *Metrics) IncCheckpoints() {
	if m != nil {
		m.checkpoints.Inc()
	}
}

// IncToolCall counts one tool call with its outcome ("ok" or "error").
func (m *Metrics) IncToolCall(tool string, failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
}

// IncTaskStatus counts a finished task by terminal status.
func (m *Metrics) IncTaskStatus(status string) {
	if m != nil {
		m.taskStatus.WithLabelValues(status).Inc()
	}
}
