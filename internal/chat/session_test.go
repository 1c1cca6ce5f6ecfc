package chat

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sereno-app/sereno/internal/backoff"
	"github.com/sereno-app/sereno/internal/bus"
	"github.com/sereno-app/sereno/internal/chaterr"
	"github.com/sereno-app/sereno/internal/message"
	"github.com/sereno-app/sereno/internal/room"
	"github.com/sereno-app/sereno/internal/status"
	"github.com/sereno-app/sereno/internal/transport/transporttest"
)

const wait = 2 * time.Second

type fixture struct {
	s      *Session
	dialer *transporttest.Dialer
	states <-chan bus.Event
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	b := bus.New()
	states, unsub := b.Subscribe(status.KindStateChanged, 64)
	t.Cleanup(unsub)

	if opts.Conn.HeartbeatInterval == 0 {
		opts.Conn.HeartbeatInterval = -1
	}
	var n atomic.Int64
	if opts.NewID == nil {
		opts.NewID = func() string { return fmt.Sprintf("local-%d", n.Add(1)) }
	}

	f := &fixture{dialer: transporttest.NewDialer(), states: states}
	f.s = New(Deps{
		Bus:    b,
		Dialer: f.dialer,
		Policy: backoff.Fixed{Delay: 10 * time.Millisecond},
		SelfID: "me",
	}, opts)
	t.Cleanup(f.s.Close)
	return f
}

// connect opens room and completes the dial.
func (f *fixture) connect(t *testing.T, room string) *transporttest.Conn {
	t.Helper()
	if err := f.s.Open(room); err != nil {
		t.Fatalf("Open: %v", err)
	}
	f.expectStates(t, status.Connecting)
	c := f.dialer.Expect(t, wait).Accept()
	f.expectStates(t, status.Connected)
	return c
}

func (f *fixture) expectStates(t *testing.T, want ...status.State) {
	t.Helper()
	for _, w := range want {
		select {
		case evt := <-f.states:
			if got := evt.Payload.(status.Change).To; got != w {
				t.Fatalf("state = %s, want %s", got, w)
			}
		case <-time.After(wait):
			t.Fatalf("timeout waiting for state %s", w)
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(wait)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (f *fixture) statusOf(id string) message.Status {
	for _, m := range f.s.Messages() {
		if m.ID == id {
			return m.Status
		}
	}
	return ""
}

func TestSendThenAck(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.connect(t, "room1")

	m, err := f.s.Send("hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if m.Status != message.Pending {
		t.Errorf("returned status = %s, want pending", m.Status)
	}
	msgs := f.s.Messages()
	if len(msgs) != 1 || msgs[0].Status != message.Pending || msgs[0].Body != "hello" {
		t.Fatalf("messages = %+v", msgs)
	}

	if got := c.WrittenType(t, "chat_message", wait); got != `{"type":"chat_message","message":"hello"}` {
		t.Errorf("frame = %s", got)
	}

	c.Inject(`{"type":"message_sent"}`)
	waitFor(t, "sent status", func() bool { return f.statusOf(m.ID) == message.Sent })
}

func TestOwnEchoMarksDelivered(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.connect(t, "room1")

	m, _ := f.s.Send("hello")
	c.WrittenType(t, "chat_message", wait)
	c.Inject(`{"type":"message_sent"}`)
	c.Inject(`{"type":"chat_message","message":"hello","user_id":7,"user_name":"Me","is_own":true,"timestamp":"2026-03-01T12:00:00Z"}`)

	waitFor(t, "delivered status", func() bool { return f.statusOf(m.ID) == message.Delivered })
	if n := len(f.s.Messages()); n != 1 {
		t.Errorf("messages = %d, want 1 (echo must not be appended)", n)
	}
	if len(f.s.Pending()) != 0 {
		t.Error("delivered message still in outbox")
	}
}

func TestOwnEchoWithoutMatchIsAppended(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.connect(t, "room1")

	c.Inject(`{"type":"chat_message","message":"from another tab","user_id":"me","is_own":true}`)
	waitFor(t, "appended echo", func() bool { return len(f.s.Messages()) == 1 })
	if got := f.s.Messages()[0]; got.Origin != message.Remote || got.Status != message.Delivered {
		t.Errorf("echo = %+v", got)
	}
}

// A failure before the first connect goes FAILED, RECONNECTING, then
// reconnects without adding messages.
func TestReconnectAfterInitialFailure(t *testing.T) {
	f := newFixture(t, Options{})
	if err := f.s.Open("room1"); err != nil {
		t.Fatal(err)
	}
	f.expectStates(t, status.Connecting)
	f.dialer.Expect(t, wait).Fail(nil)
	f.expectStates(t, status.Failed, status.Reconnecting, status.Connecting)
	f.dialer.Expect(t, wait).Accept()
	f.expectStates(t, status.Connected)

	if n := len(f.s.Messages()); n != 0 {
		t.Errorf("messages = %d, want 0", n)
	}
	if f.s.Room() != "room1" {
		t.Errorf("room = %q", f.s.Room())
	}
}

func TestDuplicateInboundSuppressed(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.connect(t, "room1")

	c.Inject(`{"type":"chat_message","message":"hi","user_id":"u1","user_name":"Ana","timestamp":"2026-03-01T12:00:00.000Z"}`)
	c.Inject(`{"type":"chat_message","message":"hi","user_id":"u1","user_name":"Ana","timestamp":"2026-03-01T12:00:00.400Z"}`)
	c.Inject(`{"type":"chat_message","message":"marker","user_id":"u2","timestamp":"2026-03-01T12:00:01Z"}`)

	waitFor(t, "marker message", func() bool {
		msgs := f.s.Messages()
		return len(msgs) > 0 && msgs[len(msgs)-1].Body == "marker"
	})
	msgs := f.s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2 (one hi + marker)", len(msgs))
	}
	if msgs[0].AuthorName != "Ana" || msgs[0].Origin != message.Remote {
		t.Errorf("first = %+v", msgs[0])
	}
}

func TestSendWhileDisconnectedFails(t *testing.T) {
	f := newFixture(t, Options{})
	f.connect(t, "room1")
	f.s.Close()
	f.expectStates(t, status.Disconnected)

	m, err := f.s.Send("hi")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if m.Status != message.Failed {
		t.Errorf("returned status = %s, want failed", m.Status)
	}
	msgs := f.s.Messages()
	if len(msgs) != 1 || msgs[0].Status != message.Failed {
		t.Fatalf("messages = %+v", msgs)
	}
	if msgs[0].FailReason != string(chaterr.KindNotConnected) {
		t.Errorf("fail reason = %q", msgs[0].FailReason)
	}
}

func TestSendEmpty(t *testing.T) {
	f := newFixture(t, Options{})
	f.connect(t, "room1")

	for _, text := range []string{"", "   ", "\t\n"} {
		if _, err := f.s.Send(text); !errors.Is(err, chaterr.ErrEmptyMessage) {
			t.Errorf("Send(%q) = %v, want ErrEmptyMessage", text, err)
		}
	}
	if n := len(f.s.Messages()); n != 0 {
		t.Errorf("messages = %d, want 0", n)
	}
	if n := len(f.s.Pending()); n != 0 {
		t.Errorf("outbox = %d, want 0", n)
	}
}

func TestSendTrimsBody(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.connect(t, "room1")

	m, _ := f.s.Send("  hello  ")
	if m.Body != "hello" {
		t.Errorf("body = %q", m.Body)
	}
	c.WrittenType(t, "chat_message", wait)
}

func TestRetryFailedMessage(t *testing.T) {
	f := newFixture(t, Options{})
	m, _ := f.s.Send("offline")
	if m.Status != message.Failed {
		t.Fatalf("status = %s, want failed", m.Status)
	}
	c := f.connect(t, "room1")
	// Opening clears the log; send again while connected to get a failure we can retry.
	c.FailWrites(chaterr.ErrTransport)
	m, _ = f.s.Send("retry me")
	waitFor(t, "write failure", func() bool { return f.statusOf(m.ID) == message.Failed })

	f.expectStates(t, status.Reconnecting, status.Connecting)
	c2 := f.dialer.Expect(t, wait).Accept()
	f.expectStates(t, status.Connected)

	retried, err := f.s.Retry(m.ID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if retried.Status != message.Pending {
		t.Errorf("retried status = %s", retried.Status)
	}
	c2.WrittenType(t, "chat_message", wait)
	c2.Inject(`{"type":"message_sent"}`)
	waitFor(t, "sent after retry", func() bool { return f.statusOf(m.ID) == message.Sent })

	if _, err := f.s.Retry(m.ID); !errors.Is(err, chaterr.ErrNotEligible) {
		t.Errorf("Retry sent message = %v, want ErrNotEligible", err)
	}
	if _, err := f.s.Retry("missing"); !errors.Is(err, chaterr.ErrNotFound) {
		t.Errorf("Retry unknown = %v, want ErrNotFound", err)
	}
}

func TestDismiss(t *testing.T) {
	f := newFixture(t, Options{})
	m, _ := f.s.Send("offline")

	events, unsub := f.s.Subscribe(KindMessageRemoved, 4)
	defer unsub()

	if err := f.s.Dismiss(m.ID); err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	if n := len(f.s.Messages()); n != 0 {
		t.Errorf("messages = %d after dismiss", n)
	}
	select {
	case evt := <-events:
		if evt.Payload.(message.Message).ID != m.ID {
			t.Errorf("removed payload = %+v", evt.Payload)
		}
	case <-time.After(wait):
		t.Fatal("no message.removed event")
	}
}

func TestAckTimeout(t *testing.T) {
	f := newFixture(t, Options{AckTimeout: 30 * time.Millisecond})
	c := f.connect(t, "room1")

	m, _ := f.s.Send("hello")
	c.WrittenType(t, "chat_message", wait)
	waitFor(t, "ack timeout", func() bool { return f.statusOf(m.ID) == message.Failed })

	for _, got := range f.s.Messages() {
		if got.FailReason != string(chaterr.KindTimeout) {
			t.Errorf("fail reason = %q, want timeout", got.FailReason)
		}
	}
}

func TestConnectionLostFailsUnacked(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.connect(t, "room1")

	acked, _ := f.s.Send("one")
	c.WrittenType(t, "chat_message", wait)
	c.Inject(`{"type":"message_sent"}`)
	waitFor(t, "first ack", func() bool { return f.statusOf(acked.ID) == message.Sent })

	unacked, _ := f.s.Send("two")
	c.WrittenType(t, "chat_message", wait)

	c.Drop(nil)
	f.expectStates(t, status.Reconnecting)
	waitFor(t, "unacked failed", func() bool { return f.statusOf(unacked.ID) == message.Failed })
	if f.statusOf(acked.ID) != message.Sent {
		t.Errorf("acked message status = %s, want sent", f.statusOf(acked.ID))
	}
}

func TestServerErrorEvent(t *testing.T) {
	f := newFixture(t, Options{})
	errs := make(chan ErrorEvent, 4)
	cancel := f.s.OnError(func(e ErrorEvent) { errs <- e })
	defer cancel()

	c := f.connect(t, "room1")
	c.Inject(`{"type":"error","message":"rate limited"}`)

	select {
	case e := <-errs:
		if e.Kind != chaterr.KindServer || !errors.Is(e.Err, chaterr.ErrServer) {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(wait):
		t.Fatal("no error event")
	}
	if n := len(f.s.Messages()); n != 0 {
		t.Errorf("server error mutated store: %d messages", n)
	}
}

func TestMalformedFrameIsIgnored(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.connect(t, "room1")

	c.Inject(`not json`)
	c.Inject(`{"type":"mystery"}`)
	c.Inject(`{"type":"chat_message","message":"ok","user_id":"u1"}`)
	waitFor(t, "valid frame", func() bool { return len(f.s.Messages()) == 1 })
	if f.s.State() != status.Connected {
		t.Errorf("state = %s, want CONNECTED", f.s.State())
	}
}

func TestCloseDuringBackoff(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.connect(t, "room1")
	c.Drop(nil)
	f.expectStates(t, status.Reconnecting)

	f.s.Close()
	f.expectStates(t, status.Disconnected)
	f.dialer.ExpectNone(t, 100*time.Millisecond)
	select {
	case evt := <-f.states:
		t.Fatalf("unexpected transition to %s after close", evt.Payload.(status.Change).To)
	default:
	}
}

func TestOpenReplacesRoom(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.connect(t, "room1")
	c.Inject(`{"type":"chat_message","message":"old","user_id":"u1"}`)
	waitFor(t, "old message", func() bool { return len(f.s.Messages()) == 1 })

	if err := f.s.Open("room2"); err != nil {
		t.Fatal(err)
	}
	f.expectStates(t, status.Disconnected, status.Connecting)
	if !c.IsClosed() {
		waitFor(t, "old connection closed", c.IsClosed)
	}
	if n := len(f.s.Messages()); n != 0 {
		t.Errorf("messages = %d after room change", n)
	}
	if f.s.Room() != "room2" {
		t.Errorf("room = %q", f.s.Room())
	}
	f.dialer.Expect(t, wait).Accept()
	f.expectStates(t, status.Connected)
}

func TestOpenParticipants(t *testing.T) {
	f := newFixture(t, Options{})
	id, err := f.s.OpenParticipants("bob", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if id != "alice_bob" {
		t.Errorf("room = %q", id)
	}
	if a := f.dialer.Expect(t, wait); a.URL != "alice_bob" {
		t.Errorf("dialed %q", a.URL)
	}
}

func TestOpenInvalidRoom(t *testing.T) {
	f := newFixture(t, Options{})
	for _, id := range []string{"", "  ", "a/b"} {
		if err := f.s.Open(id); !errors.Is(err, chaterr.ErrInvalidRoom) {
			t.Errorf("Open(%q) = %v, want ErrInvalidRoom", id, err)
		}
	}
	if f.s.State() != status.Idle {
		t.Errorf("state = %s, want IDLE", f.s.State())
	}
}

func TestOnMessageOrder(t *testing.T) {
	f := newFixture(t, Options{})
	got := make(chan MessageEvent, 8)
	cancel := f.s.OnMessage(func(e MessageEvent) { got <- e })
	defer cancel()

	c := f.connect(t, "room1")
	m, _ := f.s.Send("hello")
	c.WrittenType(t, "chat_message", wait)
	c.Inject(`{"type":"message_sent"}`)

	want := []struct {
		kind   string
		status message.Status
	}{
		{KindMessageAppended, message.Pending},
		{KindMessageUpdated, message.Sent},
	}
	for _, w := range want {
		select {
		case e := <-got:
			if e.Kind != w.kind || e.Message.ID != m.ID || e.Message.Status != w.status {
				t.Errorf("event = %s %s %s, want %s %s", e.Kind, e.Message.ID, e.Message.Status, w.kind, w.status)
			}
		case <-time.After(wait):
			t.Fatalf("timeout waiting for %s", w.kind)
		}
	}
}

// A listener slower than the inbound rate still sees every append, in
// order.
func TestOnMessageUnderBurst(t *testing.T) {
	f := newFixture(t, Options{})
	var (
		mu     sync.Mutex
		bodies []string
	)
	cancel := f.s.OnMessage(func(e MessageEvent) {
		if e.Kind != KindMessageAppended {
			return
		}
		time.Sleep(time.Millisecond)
		mu.Lock()
		bodies = append(bodies, e.Message.Body)
		mu.Unlock()
	})
	defer cancel()

	c := f.connect(t, "room1")
	const n = 400
	for i := range n {
		c.Inject(fmt.Sprintf(`{"type":"chat_message","message":"m%d","user_id":"u1"}`, i))
	}
	waitFor(t, "stored burst", func() bool { return len(f.s.Messages()) == n })

	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		got := len(bodies)
		mu.Unlock()
		if got == n {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("OnMessage fired %d times for %d appends", got, n)
		}
		time.Sleep(10 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	for i, b := range bodies {
		if want := fmt.Sprintf("m%d", i); b != want {
			t.Fatalf("callback %d body = %q, want %q", i, b, want)
		}
	}
}

// A frame the old connection read while a room change held the session
// lock must not land in the new room.
func TestFrameFromPreviousRoomDropped(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.connect(t, "room1")

	f.s.mu.Lock()
	c.Inject(`{"type":"chat_message","message":"for room1 only","user_id":"u1"}`)
	// Let the reader pick the frame up and block on the session lock.
	time.Sleep(50 * time.Millisecond)
	err := f.s.openLocked(room.ID("room2"))
	f.s.mu.Unlock()
	if err != nil {
		t.Fatalf("open room2: %v", err)
	}

	f.expectStates(t, status.Disconnected, status.Connecting)
	c2 := f.dialer.Expect(t, wait).Accept()
	f.expectStates(t, status.Connected)
	c2.Inject(`{"type":"chat_message","message":"for room2","user_id":"u2"}`)
	waitFor(t, "room2 message", func() bool { return len(f.s.Messages()) > 0 })

	msgs := f.s.Messages()
	if len(msgs) != 1 || msgs[0].Body != "for room2" || msgs[0].RoomID != "room2" {
		t.Errorf("room2 log = %+v", msgs)
	}
}

// Without an own echo, a sent message stops counting as pending after one
// more ack timeout and keeps its sent status.
func TestSentWithoutEchoSettles(t *testing.T) {
	f := newFixture(t, Options{AckTimeout: 30 * time.Millisecond})
	c := f.connect(t, "room1")

	m, _ := f.s.Send("hello")
	c.WrittenType(t, "chat_message", wait)
	c.Inject(`{"type":"message_sent"}`)
	waitFor(t, "sent status", func() bool { return f.statusOf(m.ID) == message.Sent })

	waitFor(t, "outbox settled", func() bool { return len(f.s.Pending()) == 0 })
	if got := f.statusOf(m.ID); got != message.Sent {
		t.Errorf("status = %s, want sent", got)
	}
}

func TestOnStateChange(t *testing.T) {
	f := newFixture(t, Options{})
	got := make(chan status.Change, 8)
	cancel := f.s.OnStateChange(func(c status.Change) { got <- c })
	defer cancel()

	f.connect(t, "room1")
	for _, want := range []status.State{status.Connecting, status.Connected} {
		select {
		case c := <-got:
			if c.To != want {
				t.Errorf("change to %s, want %s", c.To, want)
			}
		case <-time.After(wait):
			t.Fatalf("timeout waiting for %s", want)
		}
	}
}
