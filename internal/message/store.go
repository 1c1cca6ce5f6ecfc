package message

import (
	"fmt"
	"sync"
	"time"

	"github.com/sereno-app/sereno/internal/chaterr"
)

// DefaultDedupeWindow is how close two remote messages with the same author
// and body must be for the second to be treated as a redelivery.
const DefaultDedupeWindow = time.Second

// Rejection reasons reported by Append.
const (
	ReasonDuplicateID      = "duplicate_id"
	ReasonDuplicateContent = "duplicate_content"
	ReasonInvalid          = "invalid"
)

// AppendResult reports whether Append inserted the message.
type AppendResult struct {
	Accepted bool
	Reason   string
}

// Store is an ordered, id-unique message log for one room. It is safe for
// concurrent use.
type Store struct {
	window time.Duration

	mu    sync.RWMutex
	order []string
	byID  map[string]*Message
}

// NewStore creates an empty store. window <= 0 uses DefaultDedupeWindow.
func NewStore(window time.Duration) *Store {
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	return &Store{
		window: window,
		byID:   make(map[string]*Message),
	}
}

// Append inserts msg at the end of the log unless it duplicates an existing
// entry. Remote messages without an id get a content-derived one.
func (s *Store) Append(msg Message) AppendResult {
	if msg.Origin == Remote && msg.ID == "" {
		msg.ID = DerivedID(msg.AuthorID, msg.Body, msg.CreatedAt)
	}
	if msg.ID == "" {
		return AppendResult{Reason: ReasonInvalid}
	}
	if msg.Origin == Remote {
		msg.Status = Delivered
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[msg.ID]; ok {
		return AppendResult{Reason: ReasonDuplicateID}
	}
	if msg.Origin == Remote && s.hasContentDuplicateLocked(msg) {
		return AppendResult{Reason: ReasonDuplicateContent}
	}

	m := msg
	s.byID[m.ID] = &m
	s.order = append(s.order, m.ID)
	return AppendResult{Accepted: true}
}

// hasContentDuplicateLocked scans from the newest entry backwards.
func (s *Store) hasContentDuplicateLocked(msg Message) bool {
	for i := len(s.order) - 1; i >= 0; i-- {
		e := s.byID[s.order[i]]
		if e.AuthorID != msg.AuthorID || e.Body != msg.Body {
			continue
		}
		if absDuration(e.CreatedAt.Sub(msg.CreatedAt)) <= s.window {
			return true
		}
	}
	return false
}

// UpdateStatus moves a message forward along pending → sent → delivered or
// pending → failed. Delivered and failed messages cannot change.
func (s *Store) UpdateStatus(id string, to Status) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return Message{}, fmt.Errorf("message %s: %w", id, chaterr.ErrNotFound)
	}
	if !allowed(m.Status, to) {
		return *m, fmt.Errorf("message %s: %w: %s to %s", id, chaterr.ErrInvalidTransition, m.Status, to)
	}
	m.Status = to
	if to != Failed {
		m.FailReason = ""
	}
	return *m, nil
}

// Fail marks a message failed and records why.
func (s *Store) Fail(id, reason string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return Message{}, fmt.Errorf("message %s: %w", id, chaterr.ErrNotFound)
	}
	if !allowed(m.Status, Failed) {
		return *m, fmt.Errorf("message %s: %w: %s to %s", id, chaterr.ErrInvalidTransition, m.Status, Failed)
	}
	m.Status = Failed
	m.FailReason = reason
	return *m, nil
}

// Requeue moves a failed message back to pending for a retry.
func (s *Store) Requeue(id string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return Message{}, fmt.Errorf("message %s: %w", id, chaterr.ErrNotFound)
	}
	if m.Status != Failed {
		return *m, fmt.Errorf("message %s: %w: status %s", id, chaterr.ErrNotEligible, m.Status)
	}
	m.Status = Pending
	m.FailReason = ""
	return *m, nil
}

// Remove deletes a message from the log.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns a copy of the message with id.
func (s *Store) Get(id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok {
		return Message{}, false
	}
	return *m, true
}

// All returns a snapshot of the log in insertion order.
func (s *Store) All() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.byID[id])
	}
	return out
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Clear empties the store.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.byID = make(map[string]*Message)
}

func allowed(from, to Status) bool {
	if from == Delivered || from == Failed {
		return false
	}
	return statusRank[to] > statusRank[from]
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
