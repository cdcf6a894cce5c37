package chat

import "time"

type Conversation struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"` // 'private' or 'group'
	CreatedAt time.Time `json:"created_at"`
}

// Message is the durable chat record. Sender is denormalized from the users
// table so clients render without an extra lookup.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	Sender         string    `json:"sender"`
	Content        string    `json:"content"`
	AttachmentRef  string    `json:"attachment_ref,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	IsRead         bool      `json:"is_read"`
}

type startConversationRequest struct {
	TargetID int64 `json:"target_id"`
}

type startConversationResponse struct {
	ConversationID int64 `json:"conversation_id"`
}

type markReadRequest struct {
	MessageID int64 `json:"message_id"`
}
