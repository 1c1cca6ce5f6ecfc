// Package chat implements the realtime messaging session: one room at a time,
// an optimistic message log and delivery tracking on top of the connection
// manager.
package chat

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sereno-app/sereno/internal/backoff"
	"github.com/sereno-app/sereno/internal/bus"
	"github.com/sereno-app/sereno/internal/chaterr"
	"github.com/sereno-app/sereno/internal/conn"
	"github.com/sereno-app/sereno/internal/message"
	"github.com/sereno-app/sereno/internal/metrics"
	"github.com/sereno-app/sereno/internal/outbox"
	"github.com/sereno-app/sereno/internal/room"
	"github.com/sereno-app/sereno/internal/status"
	"github.com/sereno-app/sereno/internal/transport"
	"github.com/sereno-app/sereno/internal/wire"
	"go.uber.org/zap"
)

// DefaultAckTimeout bounds how long a handed-off message may wait for the
// backend acknowledgement.
const DefaultAckTimeout = 10 * time.Second

// Options tunes the session. Zero values take defaults.
type Options struct {
	Conn         conn.Options
	AckTimeout   time.Duration
	DedupeWindow time.Duration
	NewID        func() string
	Now          func() time.Time
}

// Deps are the session's collaborators. Bus and Dialer are required.
type Deps struct {
	Bus      *bus.Bus
	Dialer   transport.Dialer
	Endpoint conn.EndpointFunc
	Policy   backoff.Policy
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	// SelfID and SelfName identify the local author.
	SelfID   string
	SelfName string
}

// Session is the single entry point the UI layers use.
type Session struct {
	bus     *bus.Bus
	machine *status.Machine
	mgr     *conn.Manager
	store   *message.Store
	queue   *outbox.Queue
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time

	selfID     string
	selfName   string
	ackTimeout time.Duration

	mu     sync.Mutex
	room   room.ID
	gen    uint64
	timers map[string]*time.Timer
}

// New wires a session. It does not connect until Open.
func New(d Deps, opts Options) *Session {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = DefaultAckTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	b := d.Bus
	if b == nil {
		b = bus.New()
	}

	st := message.NewStore(opts.DedupeWindow)
	s := &Session{
		bus:        b,
		machine:    status.NewMachine(b),
		store:      st,
		queue:      outbox.New(st, outbox.Options{NewID: opts.NewID, Now: opts.Now}),
		metrics:    d.Metrics,
		logger:     logger,
		now:        opts.Now,
		selfID:     d.SelfID,
		selfName:   d.SelfName,
		ackTimeout: opts.AckTimeout,
		timers:     make(map[string]*time.Timer),
	}
	s.mgr = conn.New(opts.Conn, conn.Deps{
		Dialer:   d.Dialer,
		Endpoint: d.Endpoint,
		Policy:   d.Policy,
		Machine:  s.machine,
		Metrics:  d.Metrics,
		Logger:   logger.Named("conn"),
		Hooks: conn.Hooks{
			OnFrame:          s.handleFrame,
			OnConnected:      s.handleConnected,
			OnConnectionLost: s.handleConnectionLost,
			OnWriteFailed:    s.handleWriteFailed,
			OnError:          s.handleError,
		},
	})
	return s
}

// Open closes any active room, then starts connecting to roomID.
func (s *Session) Open(roomID string) error {
	id, err := room.Parse(roomID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked(id)
}

func (s *Session) openLocked(id room.ID) error {
	if s.room != "" {
		s.closeLocked("room changed")
	}
	s.gen++
	s.store.Clear()
	s.queue.Reset()
	if err := s.mgr.Connect(id.String()); err != nil {
		return err
	}
	s.room = id
	s.publish(KindRoomOpened, RoomEvent{Room: id})
	s.logger.Info("opening room", zap.String("room", id.String()))
	return nil
}

// OpenParticipants derives the room id from participant ids and opens it.
func (s *Session) OpenParticipants(participants ...string) (room.ID, error) {
	id, err := room.FromParticipants(participants...)
	if err != nil {
		return "", err
	}
	return id, s.Open(id.String())
}

// Close disconnects and discards the room's messages. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked("closed")
}

func (s *Session) closeLocked(reason string) {
	s.gen++
	s.stopTimersLocked()
	s.mgr.Disconnect(reason)

	prev := s.room
	s.store.Clear()
	s.queue.Reset()
	s.room = ""
	if prev != "" {
		s.publish(KindMessageCleared, RoomEvent{Room: prev})
		s.publish(KindRoomClosed, RoomEvent{Room: prev})
		s.logger.Info("room closed", zap.String("room", prev.String()), zap.String("reason", reason))
	}
}

// Send posts text to the current room. The returned message is already in
// the log: pending when handed to the transport, failed when it could not be.
func (s *Session) Send(text string) (message.Message, error) {
	body := strings.TrimSpace(text)
	if body == "" {
		return message.Message{}, chaterr.ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.queue.Enqueue(s.room.String(), body, s.selfID)
	m.AuthorName = s.selfName
	s.store.Append(m)
	s.metrics.MessageStatus(string(m.Status))
	s.publish(KindMessageAppended, m)

	return s.transmitLocked(m), nil
}

// Retry resends a failed message.
func (s *Session) Retry(id string) (message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.queue.Retry(id)
	if err != nil {
		return m, err
	}
	s.publishUpdated(m)
	return s.transmitLocked(m), nil
}

// Dismiss removes a failed message the user no longer wants to retry.
func (s *Session) Dismiss(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, _ := s.store.Get(id)
	if err := s.queue.Dismiss(id); err != nil {
		return err
	}
	s.publish(KindMessageRemoved, m)
	return nil
}

func (s *Session) transmitLocked(m message.Message) message.Message {
	frame, err := wire.Encode(wire.ChatMessage{Message: m.Body})
	if err == nil {
		err = s.mgr.SendRef(m.ID, frame)
	}
	if err != nil {
		s.logger.Warn("send failed", zap.String("msg_id", m.ID), zap.Error(err))
		failed, ferr := s.queue.MarkFailed(m.ID, string(chaterr.KindOf(err)))
		if ferr != nil {
			return m
		}
		s.publishUpdated(failed)
		return failed
	}

	_ = s.queue.MarkHandedOff(m.ID)
	gen := s.gen
	id := m.ID
	s.timers[id] = time.AfterFunc(s.ackTimeout, func() { s.handleAckTimeout(gen, id) })
	s.logger.Debug("message handed off", zap.String("msg_id", id))
	return m
}

// State returns the connection state.
func (s *Session) State() status.State {
	return s.mgr.State()
}

// Room returns the open room, or "" when none is open.
func (s *Session) Room() room.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Messages returns the current room's log in order.
func (s *Session) Messages() []message.Message {
	return s.store.All()
}

// Pending returns the outbox entries still tracked for the room.
func (s *Session) Pending() []outbox.Entry {
	return s.queue.Entries()
}

// Bus returns the bus the session publishes on.
func (s *Session) Bus() *bus.Bus {
	return s.bus
}

// Subscribe returns events whose kind starts with namespace. Events that do
// not fit in bufSize are dropped.
func (s *Session) Subscribe(namespace string, bufSize int) (<-chan bus.Event, func()) {
	return s.bus.Subscribe(namespace, bufSize)
}

// Follow returns every event whose kind starts with namespace, in order.
// The reader must drain the channel until it cancels.
func (s *Session) Follow(namespace string) (<-chan bus.Event, func()) {
	return s.bus.Follow(namespace)
}

// OnStateChange calls fn for every connection state change until the
// returned cancel func is called. Callbacks run on one goroutine per
// listener, in event order, and are never skipped.
func (s *Session) OnStateChange(fn func(status.Change)) (cancel func()) {
	return s.listen(status.KindStateChanged, func(evt bus.Event) {
		if c, ok := evt.Payload.(status.Change); ok {
			fn(c)
		}
	})
}

// OnMessage calls fn for every message log mutation.
func (s *Session) OnMessage(fn func(MessageEvent)) (cancel func()) {
	return s.listen("message.", func(evt bus.Event) {
		me := MessageEvent{Kind: evt.Kind}
		if m, ok := evt.Payload.(message.Message); ok {
			me.Message = m
		}
		fn(me)
	})
}

// OnError calls fn for every session error.
func (s *Session) OnError(fn func(ErrorEvent)) (cancel func()) {
	return s.listen(KindError, func(evt bus.Event) {
		if e, ok := evt.Payload.(ErrorEvent); ok {
			fn(e)
		}
	})
}

func (s *Session) listen(namespace string, fn func(bus.Event)) func() {
	ch, unsub := s.bus.Follow(namespace)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case evt := <-ch:
				fn(evt)
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			unsub()
			close(done)
		})
	}
}

func (s *Session) handleFrame(epoch uint64, data []byte) {
	in, err := wire.Decode(data)
	if err != nil {
		s.logger.Debug("dropping inbound frame", zap.Error(err))
		s.handleError(fmt.Errorf("%w: %w", chaterr.ErrTransport, err))
		return
	}
	s.metrics.FrameReceived(in.InboundType())
	s.logger.Debug("frame received", zap.String("type", in.InboundType()))

	s.mu.Lock()
	defer s.mu.Unlock()
	// A frame read just before Open or Close took the lock belongs to the
	// previous room.
	if s.room == "" || !s.mgr.IsCurrent(epoch) {
		s.logger.Debug("dropping frame from a closed room", zap.String("type", in.InboundType()))
		return
	}

	switch f := in.(type) {
	case wire.InboundChat:
		s.receiveChatLocked(f)
	case wire.MessageSent:
		id, ok := s.queue.OldestAwaitingAck()
		if !ok {
			s.logger.Debug("ack with nothing outstanding")
			return
		}
		s.stopTimerLocked(id)
		if m, err := s.queue.MarkSent(id); err == nil {
			s.publishUpdated(m)
			s.awaitEchoLocked(id)
		}
	case wire.ServerError:
		err := fmt.Errorf("%w: %s", chaterr.ErrServer, f.Message)
		s.logger.Warn("server error", zap.String("message", f.Message))
		s.publish(KindError, ErrorEvent{Kind: chaterr.KindOf(err), Err: err})
	case wire.ConnectionEstablished, wire.Pong:
	}
}

func (s *Session) receiveChatLocked(f wire.InboundChat) {
	if f.IsOwn {
		if id, ok := s.queue.MatchEcho(f.Message); ok {
			s.stopTimerLocked(id)
			if m, err := s.queue.MarkDelivered(id); err == nil {
				s.publishUpdated(m)
			}
			return
		}
	}

	created := f.Timestamp
	if created.IsZero() {
		created = s.now()
	}
	m := message.Message{
		ID:           message.DerivedID(f.UserID, f.Message, created),
		RoomID:       s.room.String(),
		AuthorID:     f.UserID,
		AuthorName:   f.UserName,
		AuthorAvatar: f.UserAvatar,
		Body:         f.Message,
		Origin:       message.Remote,
		Status:       message.Delivered,
		CreatedAt:    created,
	}
	res := s.store.Append(m)
	if !res.Accepted {
		s.metrics.DuplicateSuppressed()
		s.logger.Debug("duplicate message suppressed", zap.String("author", f.UserID), zap.String("reason", res.Reason))
		return
	}
	s.publish(KindMessageAppended, m)
}

func (s *Session) handleAckTimeout(gen uint64, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	delete(s.timers, id)
	m, ok := s.store.Get(id)
	if !ok || m.Status != message.Pending {
		return
	}
	failed, err := s.queue.MarkFailed(id, string(chaterr.KindTimeout))
	if err != nil {
		return
	}
	s.logger.Warn("message not acknowledged", zap.String("msg_id", id), zap.Duration("after", s.ackTimeout))
	s.publishUpdated(failed)
}

// awaitEchoLocked gives a sent message one more ack timeout to be echoed
// back as delivered. Backends that never echo would otherwise leave it in
// Pending forever.
func (s *Session) awaitEchoLocked(id string) {
	gen := s.gen
	s.timers[id] = time.AfterFunc(s.ackTimeout, func() { s.handleEchoWait(gen, id) })
}

func (s *Session) handleEchoWait(gen uint64, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	delete(s.timers, id)
	if s.queue.Settle(id) {
		s.logger.Debug("no echo for sent message", zap.String("msg_id", id))
	}
}

func (s *Session) handleConnected(epoch uint64) {
	if !s.mgr.IsCurrent(epoch) {
		return
	}
	s.logger.Info("session connected", zap.String("room", s.Room().String()))
}

func (s *Session) handleConnectionLost(epoch uint64, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mgr.IsCurrent(epoch) {
		return
	}

	for _, m := range s.queue.FailUnacked(string(chaterr.KindTransport)) {
		s.stopTimerLocked(m.ID)
		s.publishUpdated(m)
	}
	if !errors.Is(cause, chaterr.ErrTransport) && !errors.Is(cause, chaterr.ErrTimeout) {
		cause = fmt.Errorf("%w: %w", chaterr.ErrTransport, cause)
	}
	s.publish(KindError, ErrorEvent{Kind: chaterr.KindOf(cause), Err: cause})
}

func (s *Session) handleWriteFailed(epoch uint64, ref string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mgr.IsCurrent(epoch) {
		return
	}

	m, ok := s.store.Get(ref)
	if !ok || m.Status != message.Pending {
		return
	}
	s.stopTimerLocked(ref)
	if failed, ferr := s.queue.MarkFailed(ref, string(chaterr.KindOf(err))); ferr == nil {
		s.publishUpdated(failed)
	}
}

func (s *Session) handleError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish(KindError, ErrorEvent{Kind: chaterr.KindOf(err), Err: err})
}

func (s *Session) publishUpdated(m message.Message) {
	s.metrics.MessageStatus(string(m.Status))
	s.publish(KindMessageUpdated, m)
}

func (s *Session) publish(kind string, payload any) {
	s.bus.Publish(bus.Event{Kind: kind, Timestamp: s.now(), Payload: payload})
}

func (s *Session) stopTimerLocked(id string) {
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Session) stopTimersLocked() {
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
