// Package wire defines the JSON frames exchanged with the chat backend.
//
// Frames are a tagged union keyed on the "type" field. Decode turns raw
// bytes into one typed Inbound value; Encode does the reverse for Outbound.
package wire

import "time"

// Type constants (wire-stable).
const (
	TypeChatMessage           = "chat_message"
	TypePing                  = "ping"
	TypePong                  = "pong"
	TypeConnectionEstablished = "connection_established"
	TypeMessageSent           = "message_sent"
	TypeError                 = "error"
)

// Outbound is a frame sent by the client.
type Outbound interface {
	outboundType() string
}

// ChatMessage asks the backend to post text to the room.
type ChatMessage struct {
	Message string
}

// Ping is the heartbeat probe.
type Ping struct{}

func (ChatMessage) outboundType() string { return TypeChatMessage }
func (Ping) outboundType() string        { return TypePing }

// Inbound is a frame received from the backend.
type Inbound interface {
	InboundType() string
}

// InboundChat is a chat message broadcast to the room.
type InboundChat struct {
	Message    string
	UserID     string
	UserName   string
	UserAvatar *string
	// Timestamp is zero when the frame carried no usable timestamp.
	Timestamp time.Time
	IsOwn     bool
}

// ConnectionEstablished confirms the backend accepted the connection.
type ConnectionEstablished struct{}

// Pong answers a Ping.
type Pong struct{}

// MessageSent acknowledges the oldest outstanding ChatMessage.
type MessageSent struct{}

// ServerError reports a backend-side failure.
type ServerError struct {
	Message string
}

func (InboundChat) InboundType() string           { return TypeChatMessage }
func (ConnectionEstablished) InboundType() string { return TypeConnectionEstablished }
func (Pong) InboundType() string                  { return TypePong }
func (MessageSent) InboundType() string           { return TypeMessageSent }
func (ServerError) InboundType() string           { return TypeError }
