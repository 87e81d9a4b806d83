// Package metrics defines the Prometheus collectors exported by the bot.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ledgerbot"

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
	OutcomeRetry    = "retry"
	OutcomeDropped  = "dropped"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	deliveries      *prometheus.CounterVec
	panics          prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands and callbacks handled, by command and outcome.",
		}, []string{"command", "outcome"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time spent handling a command, delivery included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_attempts_total",
			Help:      "Outbound chat API calls, by operation and outcome.",
		}, []string{"op", "outcome"}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_panics_total",
			Help:      "Panics recovered while handling updates.",
		}),
	}
	reg.MustRegister(m.commands, m.commandDuration, m.deliveries, m.panics)
	return m
}

// ObserveCommand records one handled command.
func (m *Metrics) ObserveCommand(command, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, outcome).Inc()
	m.commandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

// ObserveDelivery records one outbound call attempt.
func (m *Metrics) ObserveDelivery(op, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(op, outcome).Inc()
}

// ObservePanic records a recovered panic.
func (m *Metrics) ObservePanic() {
	if m == nil {
		return
	}
	m.panics.Inc()
}
