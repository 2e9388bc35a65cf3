package provisioning

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "k3sform"

// Metrics collects apply counters in a private registry, written to a
// textfile after the run rather than served.
type Metrics struct {
	registry     *prometheus.Registry
	taskDuration *prometheus.HistogramVec
	taskTotal    *prometheus.CounterVec
	releaseTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the apply metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "task_duration_seconds",
			Help:      "Duration of graph tasks.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"task"}),
		taskTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "task_total",
			Help:      "Graph tasks by result.",
		}, []string{"task", "result"}),
		releaseTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "release_total",
			Help:      "Helm release actions.",
		}, []string{"release", "action"}),
	}
	m.registry.MustRegister(m.taskDuration, m.taskTotal, m.releaseTotal)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveTask records a finished task.
func (m *Metrics) ObserveTask(task string, d time.Duration, err error) {
	result := "succeeded"
	if err != nil {
		result = "failed"
	}
	m.taskDuration.WithLabelValues(task).Observe(d.Seconds())
	m.taskTotal.WithLabelValues(task, result).Inc()
}

// ObserveSkipped records a task that never ran.
func (m *Metrics) ObserveSkipped(task string) {
	m.taskTotal.WithLabelValues(task, "skipped").Inc()
}

// ObserveRelease records a Helm action.
func (m *Metrics) ObserveRelease(release, action string) {
	m.releaseTotal.WithLabelValues(release, action).Inc()
}

// WriteToTextfile writes the text exposition format to path.
func (m *Metrics) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
