// Package outbox tracks locally authored messages from composition until they
// are delivered or the user dismisses their failure.
package outbox

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sereno-app/sereno/internal/chaterr"
	"github.com/sereno-app/sereno/internal/message"
)

// Entry wraps one local message awaiting delivery.
type Entry struct {
	ID          string
	RoomID      string
	Body        string
	Attempts    int
	LastAttempt time.Time
	// HandedOff is set once the frame reached the transport and cleared
	// when the message is acknowledged or fails.
	HandedOff bool
}

// Options overrides id generation and the clock.
type Options struct {
	NewID func() string
	Now   func() time.Time
}

// Queue is the only writer of local message status. Every status change is
// applied to the shared message.Store.
type Queue struct {
	store *message.Store
	newID func() string
	now   func() time.Time

	mu      sync.Mutex
	order   []string
	entries map[string]*Entry
}

// New creates a queue writing through to store.
func New(store *message.Store, opts Options) *Queue {
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Queue{
		store:   store,
		newID:   opts.NewID,
		now:     opts.Now,
		entries: make(map[string]*Entry),
	}
}

// Enqueue creates a pending local message. The message is not yet in the
// store; the caller appends it so it can render before any network I/O.
func (q *Queue) Enqueue(roomID, body, authorID string) message.Message {
	now := q.now()
	msg := message.Message{
		ID:        q.newID(),
		RoomID:    roomID,
		AuthorID:  authorID,
		Body:      body,
		Origin:    message.Local,
		Status:    message.Pending,
		CreatedAt: now,
	}

	q.mu.Lock()
	q.entries[msg.ID] = &Entry{ID: msg.ID, RoomID: roomID, Body: body}
	q.order = append(q.order, msg.ID)
	q.mu.Unlock()
	return msg
}

// MarkHandedOff records a transmission attempt.
func (q *Queue) MarkHandedOff(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		return fmt.Errorf("outbox %s: %w", id, chaterr.ErrNotFound)
	}
	e.HandedOff = true
	e.Attempts++
	e.LastAttempt = q.now()
	return nil
}

// MarkSent records the backend acknowledgement.
func (q *Queue) MarkSent(id string) (message.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		return message.Message{}, fmt.Errorf("outbox %s: %w", id, chaterr.ErrNotFound)
	}
	m, err := q.store.UpdateStatus(id, message.Sent)
	if err != nil {
		return m, err
	}
	e.HandedOff = false
	return m, nil
}

// MarkDelivered records that the message reached the room and drops the entry.
func (q *Queue) MarkDelivered(id string) (message.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.entries[id]; !ok {
		return message.Message{}, fmt.Errorf("outbox %s: %w", id, chaterr.ErrNotFound)
	}
	m, err := q.store.UpdateStatus(id, message.Delivered)
	if err != nil {
		return m, err
	}
	q.removeLocked(id)
	return m, nil
}

// MarkFailed fails the message. The entry stays until Retry or Dismiss.
func (q *Queue) MarkFailed(id, reason string) (message.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		return message.Message{}, fmt.Errorf("outbox %s: %w", id, chaterr.ErrNotFound)
	}
	m, err := q.store.Fail(id, reason)
	if err != nil {
		return m, err
	}
	e.HandedOff = false
	return m, nil
}

// Retry moves a failed message back to pending so it can be sent again.
func (q *Queue) Retry(id string) (message.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.entries[id]; !ok {
		return message.Message{}, fmt.Errorf("outbox %s: %w", id, chaterr.ErrNotFound)
	}
	return q.store.Requeue(id)
}

// Dismiss drops a failed entry the user has acknowledged, along with its
// message.
func (q *Queue) Dismiss(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.entries[id]; !ok {
		return fmt.Errorf("outbox %s: %w", id, chaterr.ErrNotFound)
	}
	if m, ok := q.store.Get(id); ok && m.Status != message.Failed {
		return fmt.Errorf("outbox %s: %w: status %s", id, chaterr.ErrNotEligible, m.Status)
	}
	q.removeLocked(id)
	q.store.Remove(id)
	return nil
}

// OldestAwaitingAck returns the oldest handed-off message still pending.
func (q *Queue) OldestAwaitingAck() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, id := range q.order {
		e := q.entries[id]
		if !e.HandedOff {
			continue
		}
		if m, ok := q.store.Get(id); ok && m.Status == message.Pending {
			return id, true
		}
	}
	return "", false
}

// MatchEcho finds the oldest undelivered, handed-off or sent message with body.
func (q *Queue) MatchEcho(body string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, id := range q.order {
		e := q.entries[id]
		if e.Body != body {
			continue
		}
		m, ok := q.store.Get(id)
		if !ok {
			continue
		}
		if m.Status == message.Sent || (m.Status == message.Pending && e.HandedOff) {
			return id, true
		}
	}
	return "", false
}

// Settle stops tracking a sent message whose own echo never came; the
// message keeps its sent status. It reports whether the entry was dropped.
func (q *Queue) Settle(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.entries[id]; !ok {
		return false
	}
	if m, ok := q.store.Get(id); !ok || m.Status != message.Sent {
		return false
	}
	q.removeLocked(id)
	return true
}

// FailUnacked fails every handed-off message still waiting for its ack and
// returns the updated messages in queue order.
func (q *Queue) FailUnacked(reason string) []message.Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	var failed []message.Message
	for _, id := range q.order {
		e := q.entries[id]
		if !e.HandedOff {
			continue
		}
		m, err := q.store.Fail(id, reason)
		e.HandedOff = false
		if err == nil {
			failed = append(failed, m)
		}
	}
	return failed
}

// Entry returns a copy of the entry for id.
func (q *Queue) Entry(id string) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Entries returns copies of all entries in enqueue order.
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, *q.entries[id])
	}
	return out
}

// Len returns the number of tracked entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// Reset drops every entry. The store is left alone.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.order = nil
	q.entries = make(map[string]*Entry)
}

func (q *Queue) removeLocked(id string) {
	delete(q.entries, id)
	for i, oid := range q.order {
		if oid == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			return
		}
	}
}
