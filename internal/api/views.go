package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sereno-app/sereno/internal/message"
	"github.com/sereno-app/sereno/internal/store"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// StatusView is the Status response.
type StatusView struct {
	Profile      string `json:"profile"`
	State        string `json:"state"`
	Room         string `json:"room,omitempty"`
	SelfID       string `json:"self_id,omitempty"`
	UptimeMs     int64  `json:"uptime_ms"`
	MessageCount int    `json:"message_count"`
	PendingCount int    `json:"pending_count"`
}

// MessageView is a message as seen by clients.
type MessageView struct {
	ID           string    `json:"id"`
	RoomID       string    `json:"room_id"`
	AuthorID     string    `json:"author_id"`
	AuthorName   string    `json:"author_name,omitempty"`
	AuthorAvatar *string   `json:"author_avatar,omitempty"`
	Body         string    `json:"body"`
	Origin       string    `json:"origin"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	FailReason   string    `json:"fail_reason,omitempty"`
}

// IsOwn reports whether the message was written by the daemon's user.
func (m MessageView) IsOwn() bool {
	return m.Origin == string(message.Local)
}

// NewMessageView converts a store message.
func NewMessageView(m message.Message) MessageView {
	return MessageView{
		ID:           m.ID,
		RoomID:       m.RoomID,
		AuthorID:     m.AuthorID,
		AuthorName:   m.AuthorName,
		AuthorAvatar: m.AuthorAvatar,
		Body:         m.Body,
		Origin:       string(m.Origin),
		Status:       string(m.Status),
		CreatedAt:    m.CreatedAt,
		FailReason:   m.FailReason,
	}
}

// RoomView is a room directory row.
type RoomView struct {
	RoomID         string    `json:"room_id"`
	Participants   []string  `json:"participants"`
	OpenCount      int       `json:"open_count"`
	MessageCount   int       `json:"message_count"`
	LastOpenedAt   time.Time `json:"last_opened_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// NewRoomView converts a directory row.
func NewRoomView(r store.Room) RoomView {
	return RoomView{
		RoomID:         r.RoomID,
		Participants:   r.Participants,
		OpenCount:      r.OpenCount,
		MessageCount:   r.MessageCount,
		LastOpenedAt:   time.UnixMilli(r.LastOpenedAt),
		LastActivityAt: time.UnixMilli(r.LastActivityAt),
	}
}

// OpenRequest opens Room, or the room derived from Participants.
type OpenRequest struct {
	Room         string   `json:"room,omitempty"`
	Participants []string `json:"participants,omitempty"`
}

// OpenResponse names the room that was opened.
type OpenResponse struct {
	Room string `json:"room"`
}

// SendRequest carries the message text.
type SendRequest struct {
	Text string `json:"text"`
}

// IDRequest addresses one message.
type IDRequest struct {
	ID string `json:"id"`
}

// ListMessagesRequest limits the result to the newest Limit messages when
// Limit is positive.
type ListMessagesRequest struct {
	Limit int `json:"limit,omitempty"`
}

// ListMessagesResponse is the ListMessages response.
type ListMessagesResponse struct {
	Messages []MessageView `json:"messages"`
}

// ListRoomsRequest pages through the room directory.
type ListRoomsRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// ListRoomsResponse is the ListRooms response.
type ListRoomsResponse struct {
	Rooms []RoomView `json:"rooms"`
}

// WatchRequest selects events whose kind starts with Namespace.
type WatchRequest struct {
	Namespace string `json:"namespace,omitempty"`
}

// Envelope is one event on the Watch stream. Payload holds a StateView,
// MessageView, ErrorView or RoomEventView depending on Kind.
type Envelope struct {
	EventID          string          `json:"event_id"`
	Kind             string          `json:"kind"`
	OccurredAtUnixMs int64           `json:"occurred_at_unix_ms"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}

// StateView is the payload of session.state_changed.
type StateView struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ErrorView is the payload of session.error.
type ErrorView struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// RoomEventView is the payload of room and clear events.
type RoomEventView struct {
	Room string `json:"room"`
}

// ToStruct encodes v as a google.protobuf.Struct through its JSON form.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	s := new(structpb.Struct)
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return s, nil
}

// FromStruct decodes s into v. A nil s leaves v untouched.
func FromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has no payload", e.Kind)
	}
	return json.Unmarshal(e.Payload, v)
}
