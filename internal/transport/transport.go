// Package transport abstracts the bidirectional frame channel to a chat room.
package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/sereno-app/sereno/internal/chaterr"
)

// Conn is one established connection. Read and Write may be called from
// different goroutines; concurrent Writes are not allowed.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close(reason string) error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}

// Endpoint builds the room URL: <ws-scheme>://<host>/ws/chat/<roomID>/?token=<token>.
// base may use http(s) or ws(s); a path prefix on base is preserved.
func Endpoint(base, roomID, token string) (string, error) {
	if strings.TrimSpace(roomID) == "" {
		return "", fmt.Errorf("%w: empty room id", chaterr.ErrInvalidRoom)
	}
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url %q has no host", base)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/ws/chat/" + roomID + "/"
	u.RawPath = ""
	u.Fragment = ""
	q := url.Values{}
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Redact strips the token query parameter for logging.
func Redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// InviteURL builds the browser link for a room: <http-scheme>://<host>/chat/<roomID>/.
// base may use http(s) or ws(s).
func InviteURL(base, roomID string) (string, error) {
	ws, err := Endpoint(base, roomID, "")
	if err != nil {
		return "", err
	}
	u, err := url.Parse(ws)
	if err != nil {
		return "", err
	}
	u.Scheme = strings.Replace(u.Scheme, "ws", "http", 1)
	u.Path = strings.Replace(u.Path, "/ws/chat/", "/chat/", 1)
	return u.String(), nil
}
