// Package transporttest provides a scriptable in-memory transport for tests.
package transporttest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sereno-app/sereno/internal/chaterr"
	"github.com/sereno-app/sereno/internal/transport"
)

// Dialer hands every Dial call to the test as an Attempt, which the test
// accepts or fails. Dial blocks until then or until its context ends.
type Dialer struct {
	attempts chan *Attempt
}

// NewDialer creates a fake dialer.
func NewDialer() *Dialer {
	return &Dialer{attempts: make(chan *Attempt, 64)}
}

// Attempt is one pending Dial call.
type Attempt struct {
	URL   string
	reply chan dialReply
}

type dialReply struct {
	conn *Conn
	err  error
}

func (d *Dialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	a := &Attempt{URL: url, reply: make(chan dialReply, 1)}
	select {
	case d.attempts <- a:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", chaterr.ErrTimeout, ctx.Err())
	}
	select {
	case r := <-a.reply:
		if r.err != nil {
			return nil, r.err
		}
		return r.conn, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", chaterr.ErrTimeout, ctx.Err())
	}
}

// Expect waits for the next Dial call.
func (d *Dialer) Expect(t *testing.T, timeout time.Duration) *Attempt {
	t.Helper()
	select {
	case a := <-d.attempts:
		return a
	case <-time.After(timeout):
		t.Fatal("timeout waiting for dial attempt")
		return nil
	}
}

// ExpectNone asserts no Dial call happens within d.
func (d *Dialer) ExpectNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case a := <-d.attempts:
		t.Fatalf("unexpected dial attempt to %s", a.URL)
	case <-time.After(wait):
	}
}

// Accept completes the dial with a fresh connection.
func (a *Attempt) Accept() *Conn {
	c := NewConn()
	a.reply <- dialReply{conn: c}
	return c
}

// Fail completes the dial with err (ErrTransport when nil).
func (a *Attempt) Fail(err error) {
	if err == nil {
		err = fmt.Errorf("%w: connection refused", chaterr.ErrTransport)
	}
	a.reply <- dialReply{err: err}
}

// Conn is an in-memory connection.
type Conn struct {
	inbound chan []byte
	written chan []byte
	drop    chan error
	closed  chan struct{}

	mu          sync.Mutex
	closeOnce   sync.Once
	closeReason string
	writeErr    error
}

// NewConn creates a connection with generous buffers.
func NewConn() *Conn {
	return &Conn{
		inbound: make(chan []byte, 256),
		written: make(chan []byte, 256),
		drop:    make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

var errClosed = errors.New("use of closed connection")

func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	case err := <-c.drop:
		return nil, err
	case <-c.closed:
		return nil, fmt.Errorf("%w: %w", chaterr.ErrTransport, errClosed)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Conn) Write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	werr := c.writeErr
	c.mu.Unlock()
	if werr != nil {
		return werr
	}
	select {
	case <-c.closed:
		return fmt.Errorf("%w: %w", chaterr.ErrTransport, errClosed)
	default:
	}
	select {
	case c.written <- append([]byte(nil), data...):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) Close(reason string) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeReason = reason
		c.mu.Unlock()
		close(c.closed)
	})
	return nil
}

// Inject delivers a frame to the reader.
func (c *Conn) Inject(frame string) {
	c.inbound <- []byte(frame)
}

// Drop simulates an abnormal close seen by the reader.
func (c *Conn) Drop(err error) {
	if err == nil {
		err = fmt.Errorf("%w: connection reset", chaterr.ErrTransport)
	}
	select {
	case c.drop <- err:
	default:
	}
}

// FailWrites makes every later Write return err.
func (c *Conn) FailWrites(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

// Written waits for the next frame written by the client.
func (c *Conn) Written(t *testing.T, timeout time.Duration) string {
	t.Helper()
	select {
	case data := <-c.written:
		return string(data)
	case <-time.After(timeout):
		t.Fatal("timeout waiting for written frame")
		return ""
	}
}

// WrittenType waits for the next written frame whose JSON contains typ,
// skipping others (heartbeats, for instance).
func (c *Conn) WrittenType(t *testing.T, typ string, timeout time.Duration) string {
	t.Helper()
	deadline := time.After(timeout)
	needle := `"type":"` + typ + `"`
	for {
		select {
		case data := <-c.written:
			if strings.Contains(string(data), needle) {
				return string(data)
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s frame", typ)
			return ""
		}
	}
}

// IsClosed reports whether Close was called.
func (c *Conn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// CloseReason returns the reason passed to Close.
func (c *Conn) CloseReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeReason
}

