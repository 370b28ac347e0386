package pool

import (
	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nexus-build/nexus/internal/models"
)

// Metrics holds the pool's prometheus instruments in a private registry:
// spec.md's Non-goals exclude a telemetry-export surface, so these are
// read back synchronously via Snapshot rather than served over HTTP.
type Metrics struct {
	registry        *prometheus.Registry
	queueLength     *prometheus.GaugeVec
	inFlight        prometheus.Gauge
	roleUtilization *prometheus.GaugeVec
}

// Snapshot is the plain-data view of Metrics returned by Pool.Metrics().
type Snapshot struct {
	QueueLength     map[models.Priority]int
	InFlight        int
	RoleUtilization map[models.AgentRole]int
}

func newMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		queueLength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nexus_pool_queue_length",
			Help: "Number of tasks queued per priority bucket.",
		}, []string{"priority"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nexus_pool_in_flight",
			Help: "Number of tasks currently being worked.",
		}),
		roleUtilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nexus_pool_role_in_flight",
			Help: "Number of tasks currently in flight per agent role.",
		}, []string{"role"}),
	}
	registry.MustRegister(m.queueLength, m.inFlight, m.roleUtilization)
	return m
}

func (m *Metrics) setQueueLengths(lengths map[models.Priority]int) {
	for priority, n := range lengths {
		m.queueLength.WithLabelValues(string(priority)).Set(float64(n))
	}
}

func (m *Metrics) setInFlight(n int) {
	m.inFlight.Set(float64(n))
}

func (m *Metrics) incRole(role models.AgentRole) {
	m.roleUtilization.WithLabelValues(string(role)).Inc()
}

func (m *Metrics) decRole(role models.AgentRole) {
	m.roleUtilization.WithLabelValues(string(role)).Dec()
}

func gaugeValue(g prometheus.Gauge) float64 {
	var metric dto.Metric
	if err := g.Write(&metric); err != nil {
		return 0
	}
	return metric.GetGauge().GetValue()
}

func gaugeVecValue(vec *prometheus.GaugeVec, label string) float64 {
	g, err := vec.GetMetricWithLabelValues(label)
	if err != nil {
		return 0
	}
	return gaugeValue(g)
}

// snapshot reads the current gauge values back out of the private
// registry into a plain struct for Pool.Metrics() callers.
func (m *Metrics) snapshot() Snapshot {
	snap := Snapshot{
		QueueLength:     make(map[models.Priority]int, len(priorityOrder)),
		InFlight:        int(gaugeValue(m.inFlight)),
		RoleUtilization: make(map[models.AgentRole]int, 4),
	}
	for _, p := range priorityOrder {
		snap.QueueLength[p] = int(gaugeVecValue(m.queueLength, string(p)))
	}
	for _, role := range []models.AgentRole{models.RoleCoder, models.RoleTester, models.RoleReviewer, models.RoleMerger} {
		snap.RoleUtilization[role] = int(gaugeVecValue(m.roleUtilization, string(role)))
	}
	return snap
}
