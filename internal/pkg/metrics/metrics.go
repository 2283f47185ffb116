package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds every rideline metric. It is served by the agent's /metrics endpoint.
var Registry = prometheus.NewRegistry()

var (
	// ConnectionStatus records whether the driver channel is usable.
	// 1 = Connected, 0 = any other state.
	ConnectionStatus = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rideline_connection_status",
			Help: "The driver event channel status (1=Connected, 0=NotConnected).",
		},
	)

	// StateTransitionsTotal counts connection state changes.
	StateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rideline_connection_state_transitions_total",
			Help: "Total number of connection state transitions.",
		},
		[]string{"from", "to"},
	)

	// ReconnectAttemptsTotal counts scheduled automatic reconnects.
	ReconnectAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rideline_reconnect_attempts_total",
			Help: "Total number of automatic reconnect attempts scheduled.",
		},
	)

	// CommandsTotal counts outbound commands.
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rideline_commands_total",
			Help: "Total number of outbound driver commands.",
		},
		[]string{"command", "result"}, // result: sent/dropped/failed
	)

	// CommandLatency records transport write latency.
	CommandLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rideline_command_write_seconds",
			Help:    "Latency of writing a command to the event channel.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	// EventsTotal counts inbound events by kind.
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rideline_events_total",
			Help: "Total number of inbound server events.",
		},
		[]string{"kind", "result"}, // result: dispatched/unhandled/failed
	)

	// OutboxPending tracks commands awaiting a server acknowledgement.
	OutboxPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rideline_outbox_pending",
			Help: "Number of correlated commands awaiting a server acknowledgement.",
		},
	)

	// OutboxResolvedTotal counts correlated commands by outcome.
	OutboxResolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rideline_outbox_resolved_total",
			Help: "Total number of correlated commands resolved by the server or expired.",
		},
		[]string{"command", "result"}, // result: acked/rejected/expired
	)
)

// Result label values.
const (
	ResultSent       = "sent"
	ResultDropped    = "dropped"
	ResultFailed     = "failed"
	ResultDispatched = "dispatched"
	ResultUnhandled  = "unhandled"
	ResultAcked      = "acked"
	ResultRejected   = "rejected"
	ResultExpired    = "expired"
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		ConnectionStatus,
		StateTransitionsTotal,
		ReconnectAttemptsTotal,
		CommandsTotal,
		CommandLatency,
		EventsTotal,
		OutboxPending,
		OutboxResolvedTotal,
	)
}
