// Package message holds the in-memory, ordered message history of the active
// room.
package message

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Origin says who produced a message.
type Origin string

const (
	Local  Origin = "local"
	Remote Origin = "remote"
)

// Status tracks delivery of a local message. Remote messages are always
// Delivered.
type Status string

const (
	Pending   Status = "pending"
	Sent      Status = "sent"
	Delivered Status = "delivered"
	Failed    Status = "failed"
)

// statusRank orders statuses; a status may only move to a higher rank,
// except Failed which can be requeued to Pending.
var statusRank = map[Status]int{
	Pending:   0,
	Sent:      1,
	Delivered: 2,
	Failed:    2,
}

// Message is one entry of the history.
type Message struct {
	ID           string
	RoomID       string
	AuthorID     string
	AuthorName   string
	AuthorAvatar *string
	Body         string
	Origin       Origin
	Status       Status
	CreatedAt    time.Time
	// FailReason is set while Status is Failed.
	FailReason string
}

// IsOwn reports whether the message was written by this client.
func (m Message) IsOwn() bool {
	return m.Origin == Local
}

// DerivedID builds a stable id for remote messages that arrive without one.
func DerivedID(authorID, body string, createdAt time.Time) string {
	h := sha256.New()
	h.Write([]byte(authorID))
	h.Write([]byte{0})
	h.Write([]byte(body))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(createdAt.UnixNano(), 10)))
	return "r-" + hex.EncodeToString(h.Sum(nil))[:24]
}
