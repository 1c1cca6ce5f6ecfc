// Package status holds the connection state machine of a chat session.
package status

import (
	"fmt"
	"sync"

	"github.com/sereno-app/sereno/internal/bus"
	"github.com/sereno-app/sereno/internal/chaterr"
)

// State is the connection state of a chat session.
type State string

const (
	Idle         State = "IDLE"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	Disconnected State = "DISCONNECTED"
	Reconnecting State = "RECONNECTING"
	Failed       State = "FAILED"
)

// KindStateChanged is published on every successful transition.
const KindStateChanged = "session.state_changed"

// Change is the payload of KindStateChanged.
type Change struct {
	From State
	To   State
}

type edge struct{ from, to State }

var edges = map[edge]bool{
	{Idle, Connecting}:   true,
	{Idle, Disconnected}: true,

	{Connecting, Connected}:    true,
	{Connecting, Failed}:       true,
	{Connecting, Disconnected}: true,

	{Connected, Reconnecting}: true,
	{Connected, Disconnected}: true,

	// Reconnecting waits out the backoff delay, then dials again.
	{Reconnecting, Connecting}:   true,
	{Reconnecting, Failed}:       true,
	{Reconnecting, Disconnected}: true,

	// A Failed session retries or is reopened by the user.
	{Failed, Reconnecting}: true,
	{Failed, Connecting}:   true,
	{Failed, Disconnected}: true,

	{Disconnected, Connecting}:   true,
	{Disconnected, Disconnected}: true,
}

// Allowed reports whether from may move to to.
func Allowed(from, to State) bool {
	return edges[edge{from, to}]
}

// Machine holds the current state, rejects illegal transitions and
// announces legal ones on the bus.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine starts in Idle. b may be nil.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{current: Idle, bus: b}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition moves to to, or returns chaterr.ErrInvalidTransition and
// leaves the state unchanged.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.current
	if !Allowed(from, to) {
		return fmt.Errorf("%w: %s to %s", chaterr.ErrInvalidTransition, from, to)
	}
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{Kind: KindStateChanged, Payload: Change{From: from, To: to}})
	}
	return nil
}
