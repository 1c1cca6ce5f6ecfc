// Package ws implements the chat transport over WebSocket.
package ws

import (
	"context"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/coder/websocket"
	"github.com/sereno-app/sereno/internal/chaterr"
	"github.com/sereno-app/sereno/internal/transport"
)

const defaultReadLimit = 1 << 20 // 1MiB

// maxCloseReason is the largest close reason allowed in a close frame.
const maxCloseReason = 123

// Dialer opens WebSocket connections.
type Dialer struct {
	// Origin is sent as the Origin header when set; browser-origin checks on
	// the backend reject handshakes without one.
	Origin    string
	ReadLimit int64
	Header    http.Header
}

// Dial performs the WebSocket handshake.
func (d *Dialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	h := http.Header{}
	for k, v := range d.Header {
		h[k] = append([]string(nil), v...)
	}
	if d.Origin != "" {
		h.Set("Origin", d.Origin)
	}

	c, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: h})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: dial: %w", chaterr.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: dial: %w", chaterr.ErrTransport, err)
	}

	limit := d.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	c.SetReadLimit(limit)
	return &Conn{c: c}, nil
}

// Conn wraps a websocket.Conn.
type Conn struct {
	c *websocket.Conn
}

// Read returns the next text or binary message.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.c.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read: %w", chaterr.ErrTransport, err)
	}
	return data, nil
}

// Write sends data as a single text message.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	if err := c.c.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("%w: write: %w", chaterr.ErrTransport, err)
	}
	return nil
}

// Close performs a normal closure handshake.
func (c *Conn) Close(reason string) error {
	return c.c.Close(websocket.StatusNormalClosure, truncateReason(reason))
}

// truncateReason cuts reason to maxCloseReason bytes without splitting a rune.
func truncateReason(reason string) string {
	if len(reason) <= maxCloseReason {
		return reason
	}
	n := maxCloseReason
	for n > 0 && !utf8.RuneStart(reason[n]) {
		n--
	}
	return reason[:n]
}
