// Package metric exports listenkit instrumentation to Prometheus.
package metric

import (
	"github.com/listenkit/listenkit/pkg/listener"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "listenkit"

// Collector implements listener.Metrics and tracks websocket monitor connections.
type Collector struct {
	listeners     prometheus.Gauge
	actions       *prometheus.CounterVec
	effects       *prometheus.CounterVec
	failures      *prometheus.CounterVec
	monitorConns  prometheus.Gauge
	monitorEvents prometheus.Counter
}

var _ listener.Metrics = (*Collector)(nil)

// New creates a Collector and registers its metrics with reg.  A nil reg means
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		listeners: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "listeners",
			Help:      "Number of registered listeners",
		}),
		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_swept_total",
			Help:      "Actions offered to registered listeners, by type",
		}, []string{"type"}),
		effects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "effects_started_total",
			Help:      "Listener effects started, by phase",
		}, []string{"phase"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_failures_total",
			Help:      "Listener predicate and effect failures",
		}, []string{"raised_by"}),
		monitorConns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitor_connections",
			Help:      "Open action monitor websockets",
		}),
		monitorEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_events_total",
			Help:      "Action records written to monitor websockets",
		}),
	}
}

// ListenerCount sets the registered listener gauge.
func (c *Collector) ListenerCount(n int) {
	c.listeners.Set(float64(n))
}

// ActionSwept counts an action offered to listeners.
func (c *Collector) ActionSwept(actionType string) {
	c.actions.WithLabelValues(actionType).Inc()
}

// EffectStarted counts an effect invocation.
func (c *Collector) EffectStarted(phase listener.Phase) {
	c.effects.WithLabelValues(string(phase)).Inc()
}

// ListenerFailed counts a predicate or effect failure.
func (c *Collector) ListenerFailed(raisedBy listener.RaisedBy) {
	c.failures.WithLabelValues(string(raisedBy)).Inc()
}

// MonitorConnected tracks an opened monitor websocket, the returned func must be called
// when it closes.
func (c *Collector) MonitorConnected() (closed func()) {
	c.monitorConns.Inc()
	return c.monitorConns.Dec
}

// MonitorSent counts a record written to a monitor websocket.
func (c *Collector) MonitorSent() {
	c.monitorEvents.Inc()
}
