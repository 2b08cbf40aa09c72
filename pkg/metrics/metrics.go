// Package metrics instruments the node with Prometheus collectors:
// the capacity scoreboard, task admission/completion counters, and the
// pool's retry counter.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector the node registers. Handlers and the
// governor hold a reference and call the small set of update methods
// below; the collectors themselves are otherwise unexported.
//
// Collectors register against a private registry rather than the
// global prometheus.DefaultRegisterer, so a process (or a test) can
// construct more than one Metrics without a duplicate-registration
// panic.
type Metrics struct {
	registry       *prometheus.Registry
	capacity       prometheus.Gauge
	tasksAdmitted  prometheus.Counter
	tasksSucceeded prometheus.Counter
	tasksFailed    prometheus.Counter
	subtaskRetries prometheus.Counter
	runningTasks   prometheus.Gauge
}

// New builds a Metrics bundle with its own registry. Call once per node.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		capacity: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fossa",
			Subsystem: "governor",
			Name:      "capacity",
			Help:      "Most recently published free-slot count (advisory).",
		}),
		tasksAdmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fossa",
			Subsystem: "governor",
			Name:      "tasks_admitted_total",
			Help:      "Total tasks admitted into the inbox.",
		}),
		tasksSucceeded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fossa",
			Subsystem: "governor",
			Name:      "tasks_succeeded_total",
			Help:      "Total tasks that completed without an exception.",
		}),
		tasksFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fossa",
			Subsystem: "governor",
			Name:      "tasks_failed_total",
			Help:      "Total tasks that completed with an exception.",
		}),
		subtaskRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fossa",
			Subsystem: "pool",
			Name:      "subtask_retries_total",
			Help:      "Total sub-task re-publishes, including forced deadline re-publishes.",
		}),
		runningTasks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fossa",
			Subsystem: "governor",
			Name:      "running_tasks",
			Help:      "Current process table size.",
		}),
	}
}

// Handler serves this Metrics' own registry in the Prometheus exposition
// format, for mounting at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SetCapacity(free int64) { m.capacity.Set(float64(free)) }
func (m *Metrics) SetRunningTasks(n int)  { m.runningTasks.Set(float64(n)) }
func (m *Metrics) ObserveAdmitted()       { m.tasksAdmitted.Inc() }
func (m *Metrics) ObserveCompletion(failed bool) {
	if failed {
		m.tasksFailed.Inc()
		return
	}
	m.tasksSucceeded.Inc()
}
func (m *Metrics) ObserveSubtaskRetry() { m.subtaskRetries.Inc() }
