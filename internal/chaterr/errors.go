// Package chaterr defines the error taxonomy shared by the chat session layers.
package chaterr

import "errors"

var (
	// Caller-input errors. Surfaced synchronously, never retried.
	ErrInvalidRoom   = errors.New("invalid room")
	ErrEmptyMessage  = errors.New("empty message")
	ErrAlreadyActive = errors.New("connection already active")

	// State errors.
	ErrNotConnected      = errors.New("not connected")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotFound          = errors.New("message not found")
	ErrNotEligible       = errors.New("message not eligible for retry")

	// Transport errors. Recovered by the reconnection policy.
	ErrTimeout   = errors.New("timeout")
	ErrTransport = errors.New("transport error")
	ErrGaveUp    = errors.New("reconnect attempts exhausted")

	// ErrServer wraps an error frame reported by the backend.
	ErrServer = errors.New("server error")
)

// Kind is the stable string form of an error, used in events and over gRPC.
type Kind string

const (
	KindInvalidRoom       Kind = "invalid_room"
	KindEmptyMessage      Kind = "empty_message"
	KindAlreadyActive     Kind = "already_active"
	KindNotConnected      Kind = "not_connected"
	KindInvalidTransition Kind = "invalid_transition"
	KindNotFound          Kind = "not_found"
	KindNotEligible       Kind = "not_eligible"
	KindTimeout           Kind = "timeout"
	KindTransport         Kind = "transport_error"
	KindGaveUp            Kind = "gave_up"
	KindServer            Kind = "server_error"
	KindUnknown           Kind = "unknown"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidRoom, KindInvalidRoom},
	{ErrEmptyMessage, KindEmptyMessage},
	{ErrAlreadyActive, KindAlreadyActive},
	{ErrNotConnected, KindNotConnected},
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrNotFound, KindNotFound},
	{ErrNotEligible, KindNotEligible},
	{ErrTimeout, KindTimeout},
	{ErrGaveUp, KindGaveUp},
	{ErrTransport, KindTransport},
	{ErrServer, KindServer},
}

// KindOf classifies err. The first matching sentinel in the chain wins.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// IsCallerError reports whether err was caused by invalid caller input.
func IsCallerError(err error) bool {
	return errors.Is(err, ErrInvalidRoom) || errors.Is(err, ErrEmptyMessage)
}
