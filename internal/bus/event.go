package bus

import "time"

// Event is one domain event. Kind is dotted with the namespace first, as in
// "session.state_changed"; each kind fixes the type of Payload.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
