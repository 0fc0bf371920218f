// Package metrics exposes Prometheus instrumentation for the simulator:
// processed commands per protocol and status word class, command latency and
// open terminal sessions.
package metrics

import (
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all simulator metrics.
	Namespace = "eidsim"

	LabelProtocol  = "protocol"
	LabelSW        = "sw"
	LabelTransport = "transport"

	// ProtocolNone labels commands no protocol accepted.
	ProtocolNone = "none"
)

var (
	// CommandsTotal counts processed command APDUs.
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "commands_total",
			Help:      "Total number of command APDUs by protocol and status word",
		},
		[]string{LabelProtocol, LabelSW},
	)

	// CommandDuration tracks processing time of one command in seconds.
	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "command_duration_seconds",
			Help:      "Duration of command processing in seconds",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		},
		[]string{LabelProtocol},
	)

	// ActiveSessions tracks connected terminals per transport.
	ActiveSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_sessions",
			Help:      "Number of connected terminals by transport",
		},
		[]string{LabelTransport},
	)

	// ResetsTotal counts card resets.
	ResetsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "resets_total",
			Help:      "Total number of card resets",
		},
	)

	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// RecordCommand records one processed command. sw is the returned status
// word, the counter only keeps its first byte to bound the label set.
func RecordCommand(protocol string, sw uint16, duration float64) {
	if !enabled.Load() {
		return
	}
	CommandsTotal.WithLabelValues(protocol, fmt.Sprintf("%02Xxx", sw>>8)).Inc()
	CommandDuration.WithLabelValues(protocol).Observe(duration)
}

// RecordReset records a card reset.
func RecordReset() {
	if !enabled.Load() {
		return
	}
	ResetsTotal.Inc()
}

func IncrementActiveSessions(transport string) {
	if !enabled.Load() {
		return
	}
	ActiveSessions.WithLabelValues(transport).Inc()
}

func DecrementActiveSessions(transport string) {
	if !enabled.Load() {
		return
	}
	ActiveSessions.WithLabelValues(transport).Dec()
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
func Disable() {
	enabled.Store(false)
}

// IsEnabled reports whether metrics are collected.
func IsEnabled() bool {
	return enabled.Load()
}
