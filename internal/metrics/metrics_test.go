package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ConnectAttempt("ok")
	m.ReconnectScheduled()
	m.FrameReceived("pong")
	m.FrameSent()
	m.MessageStatus("sent")
	m.DuplicateSuppressed()
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ConnectAttempt("ok")
	m.ConnectAttempt("ok")
	m.ConnectAttempt("error")
	m.DuplicateSuppressed()

	if got := testutil.ToFloat64(m.connectAttempts.WithLabelValues("ok")); got != 2 {
		t.Errorf("connect_attempts{ok} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.duplicates); got != 1 {
		t.Errorf("duplicates = %v, want 1", got)
	}
}

func TestRegisterBusDropped(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterBusDropped(reg, func() uint64 { return 7 })

	n, err := testutil.GatherAndCount(reg, "sereno_bus_events_dropped_total")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("series count = %d, want 1", n)
	}
}
