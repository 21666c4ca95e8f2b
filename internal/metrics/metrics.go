// Package metrics exposes the runtime's Prometheus instrumentation:
// message rate per type, connected vehicles, broadcast emissions, and
// command queue depth.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter and gauge the runtime publishes.
type Metrics struct {
	MessagesReceivedTotal *prometheus.CounterVec
	MessagesSentTotal     *prometheus.CounterVec
	LinksConnected        prometheus.Gauge
	VehiclesConnected     prometheus.Gauge
	BroadcastEmissions    *prometheus.CounterVec
	BroadcastSubscribers  prometheus.Gauge
	CommandQueueDepth     *prometheus.GaugeVec
	CommandsSubmitted     *prometheus.CounterVec
	CommandsDropped       *prometheus.CounterVec
	MissionOperations     *prometheus.CounterVec
	RCOverrideRejections  prometheus.Counter
}

var (
	global *Metrics
	once   sync.Once
)

// Get returns the process-wide Metrics instance, constructing it on first
// use.
func Get() *Metrics {
	once.Do(func() {
		global = newMetrics()
	})
	return global
}

func newMetrics() *Metrics {
	m := &Metrics{}

	m.MessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gcs",
			Subsystem: "mavlink",
			Name:      "messages_received_total",
			Help:      "Total MAVLink messages received, by message type and link.",
		},
		[]string{"message_type", "link_id"},
	)

	m.MessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gcs",
			Subsystem: "mavlink",
			Name:      "messages_sent_total",
			Help:      "Total MAVLink messages sent, by message type and link.",
		},
		[]string{"message_type", "link_id"},
	)

	m.LinksConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gcs",
			Name:      "links_connected",
			Help:      "Number of currently open MAVLink links.",
		},
	)

	m.VehiclesConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gcs",
			Name:      "vehicles_connected",
			Help:      "Number of currently known vehicles across all links.",
		},
	)

	m.BroadcastEmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gcs",
			Subsystem: "broadcast",
			Name:      "emissions_total",
			Help:      "Total telemetry emissions sent, by vehicle and payload kind (full/delta).",
		},
		[]string{"vehicle_id", "kind"},
	)

	m.BroadcastSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gcs",
			Subsystem: "broadcast",
			Name:      "subscribers",
			Help:      "Number of currently subscribed telemetry sinks.",
		},
	)

	m.CommandQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gcs",
			Subsystem: "command",
			Name:      "queue_depth",
			Help:      "Number of commands currently queued, by link.",
		},
		[]string{"link_id"},
	)

	m.CommandsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gcs",
			Subsystem: "command",
			Name:      "submitted_total",
			Help:      "Total commands submitted to the queue, by kind.",
		},
		[]string{"kind"},
	)

	m.CommandsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gcs",
			Subsystem: "command",
			Name:      "dropped_total",
			Help:      "Total commands dropped because the queue was saturated, by kind.",
		},
		[]string{"kind"},
	)

	m.MissionOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gcs",
			Subsystem: "mission",
			Name:      "operations_total",
			Help:      "Total mission/fence protocol operations, by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	m.RCOverrideRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gcs",
			Subsystem: "rc_override",
			Name:      "rejections_total",
			Help:      "Total rc_override submissions rejected before reaching the link.",
		},
	)

	return m
}
