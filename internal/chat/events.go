package chat

import (
	"github.com/sereno-app/sereno/internal/chaterr"
	"github.com/sereno-app/sereno/internal/message"
	"github.com/sereno-app/sereno/internal/room"
	"github.com/sereno-app/sereno/internal/status"
)

// Event kinds published by the session. State changes use
// status.KindStateChanged.
const (
	KindMessageAppended = "message.appended"
	KindMessageUpdated  = "message.updated"
	KindMessageRemoved  = "message.removed"
	KindMessageCleared  = "message.cleared"
	KindError           = "session.error"
	KindRoomOpened      = "session.room_opened"
	KindRoomClosed      = "session.room_closed"
	KindStateChanged    = status.KindStateChanged
)

// RoomEvent is the payload of room_opened, room_closed and message.cleared.
type RoomEvent struct {
	Room room.ID
}

// ErrorEvent is the payload of session.error.
type ErrorEvent struct {
	Kind chaterr.Kind
	Err  error
}

// MessageEvent is what OnMessage callbacks receive. Message is zero for
// message.cleared.
type MessageEvent struct {
	Kind    string
	Message message.Message
}
