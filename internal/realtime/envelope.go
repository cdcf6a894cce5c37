package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkondratev/chatwave/internal/chat"
	"github.com/pkondratev/chatwave/internal/errs"
)

// Envelope tags. Outbound-only tags are produced by the hub; the rest may also
// arrive from clients.
const (
	TypeConnect          = "connect"
	TypeUserOnline       = "user_online"
	TypeUserOffline      = "user_offline"
	TypeNewMessage       = "new_message"
	TypeMessageDelivered = "message_delivered"
	TypeMessageRead      = "message_read"
	TypeUserTyping       = "user_typing"
	TypeError            = "error"
	TypeHistory          = "history"
	TypeSubscribe        = "subscribe"
	TypeSubscribed       = "subscribed"
	TypeUnsubscribe      = "unsubscribe"
)

// Envelope is the tagged frame exchanged over the websocket. One struct covers
// the whole union; unused fields stay empty and are omitted from the wire.
// User, conversation and message ids are JSON numbers; connection ids are
// uuid strings.
type Envelope struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp,omitempty"` // epoch millis, set on all outbound frames

	ConnectionID   string         `json:"connection_id,omitempty"`
	UserID         int64          `json:"user_id,omitempty"`
	OnlineUsers    []int64        `json:"online_users,omitempty"`
	ConversationID int64          `json:"conversation_id,omitempty"`
	MessageID      int64          `json:"message_id,omitempty"`
	Delivered      int            `json:"delivered,omitempty"`
	Content        string         `json:"content,omitempty"`
	Message        *chat.Message  `json:"message,omitempty"`
	Messages       []chat.Message `json:"messages,omitempty"`
	Error          string         `json:"error,omitempty"`
}

func newEnvelope(typ string) *Envelope {
	return &Envelope{Type: typ, Timestamp: time.Now().UnixMilli()}
}

func errorEnvelope(msg string) *Envelope {
	env := newEnvelope(TypeError)
	env.Error = msg
	return env
}

// decodeInbound parses and validates a client frame. Anything a client is not
// allowed to send (server-only tags, missing required fields, unknown tags)
// is a malformed envelope.
func decodeInbound(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMalformedEnvelope, err)
	}

	switch env.Type {
	case TypeSubscribe, TypeUnsubscribe, TypeUserTyping:
		if env.ConversationID <= 0 {
			return nil, fmt.Errorf("%w: %s requires conversation_id", errs.ErrMalformedEnvelope, env.Type)
		}
	case TypeNewMessage:
		if env.ConversationID <= 0 {
			return nil, fmt.Errorf("%w: new_message requires conversation_id", errs.ErrMalformedEnvelope)
		}
		if env.Content == "" {
			return nil, fmt.Errorf("%w: new_message requires content", errs.ErrMalformedEnvelope)
		}
	case TypeMessageRead:
		if env.MessageID <= 0 {
			return nil, fmt.Errorf("%w: message_read requires message_id", errs.ErrMalformedEnvelope)
		}
	case "":
		return nil, fmt.Errorf("%w: missing type", errs.ErrMalformedEnvelope)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", errs.ErrMalformedEnvelope, env.Type)
	}
	return &env, nil
}
