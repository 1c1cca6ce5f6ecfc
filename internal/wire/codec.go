package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMalformed   = errors.New("malformed frame")
	ErrUnknownType = errors.New("unknown frame type")
)

// Layouts accepted for the "timestamp" field. The backend emits naive
// isoformat() strings in some deployments; those are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

type outboundFrame struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

type inboundFrame struct {
	Type       string          `json:"type"`
	Message    string          `json:"message"`
	UserID     json.RawMessage `json:"user_id"`
	UserName   string          `json:"user_name"`
	UserAvatar *string         `json:"user_avatar"`
	Timestamp  string          `json:"timestamp"`
	IsOwn      bool            `json:"is_own"`
}

// Encode marshals an outbound frame.
func Encode(f Outbound) ([]byte, error) {
	switch v := f.(type) {
	case ChatMessage:
		return json.Marshal(outboundFrame{Type: TypeChatMessage, Message: v.Message})
	case Ping:
		return json.Marshal(outboundFrame{Type: TypePing})
	case nil:
		return nil, fmt.Errorf("%w: nil frame", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, f)
	}
}

// Decode parses one inbound frame.
func Decode(data []byte) (Inbound, error) {
	var raw inboundFrame
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch raw.Type {
	case TypeChatMessage:
		userID, err := parseUserID(raw.UserID)
		if err != nil {
			return nil, err
		}
		return InboundChat{
			Message:    raw.Message,
			UserID:     userID,
			UserName:   raw.UserName,
			UserAvatar: raw.UserAvatar,
			Timestamp:  parseTimestamp(raw.Timestamp),
			IsOwn:      raw.IsOwn,
		}, nil
	case TypeConnectionEstablished:
		return ConnectionEstablished{}, nil
	case TypePong:
		return Pong{}, nil
	case TypeMessageSent:
		return MessageSent{}, nil
	case TypeError:
		return ServerError{Message: raw.Message}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, raw.Type)
	}
}

// parseUserID accepts a JSON string or number.
func parseUserID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%w: user_id: %v", ErrMalformed, err)
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("%w: user_id: %v", ErrMalformed, err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return "", fmt.Errorf("%w: user_id: %v", ErrMalformed, err)
	}
	return n.String(), nil
}

func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
