// Package metrics exposes Prometheus collectors for the chat session.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sereno"

// Metrics groups the session collectors.
type Metrics struct {
	connectAttempts *prometheus.CounterVec
	reconnects      prometheus.Counter
	framesIn        *prometheus.CounterVec
	framesOut       prometheus.Counter
	messages        *prometheus.CounterVec
	duplicates      prometheus.Counter
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Transport connection attempts by result.",
		}, []string{"result"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect attempts scheduled by the backoff policy.",
		}),
		framesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Inbound frames by type.",
		}, []string{"type"}),
		framesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames written to the transport.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Local messages by status reached.",
		}, []string{"status"}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_suppressed_total",
			Help:      "Inbound messages rejected as duplicates.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.connectAttempts, m.reconnects, m.framesIn, m.framesOut, m.messages, m.duplicates)
	}
	return m
}

// RegisterBusDropped exposes a dropped-events counter backed by fn.
func RegisterBusDropped(reg prometheus.Registerer, fn func() uint64) {
	if reg == nil || fn == nil {
		return
	}
	reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bus_events_dropped_total",
		Help:      "Events discarded because a subscriber buffer was full.",
	}, func() float64 { return float64(fn()) }))
}

func (m *Metrics) ConnectAttempt(result string) {
	if m == nil {
		return
	}
	m.connectAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) ReconnectScheduled() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) FrameReceived(typ string) {
	if m == nil {
		return
	}
	m.framesIn.WithLabelValues(typ).Inc()
}

func (m *Metrics) FrameSent() {
	if m == nil {
		return
	}
	m.framesOut.Inc()
}

func (m *Metrics) MessageStatus(status string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(status).Inc()
}

func (m *Metrics) DuplicateSuppressed() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}
