package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is an immutable entry in a negotiation's ledger.
type Message struct {
	ID            int64     `json:"-"`
	Token         uuid.UUID `json:"id"`
	NegotiationID int64     `json:"-"`
	SenderID      int64     `json:"sender_id"`
	Body          string    `json:"body"`
	IsAIGenerated bool      `json:"is_ai_generated"`
	Flagged       bool      `json:"flagged"`
	CreatedAt     time.Time `json:"created_at"`
}

// Cursor returns the ledger position immediately after m.
func (m *Message) Cursor() MessageCursor {
	return MessageCursor{CreatedAt: m.CreatedAt, ID: m.ID}
}

// MessageView is a message enriched with the sender's display information.
type MessageView struct {
	Message
	SenderName      string `json:"sender_name"`
	SenderAvatarURL string `json:"sender_avatar_url,omitempty"`
}

// MessageCursor is a position in a ledger ordered by (created_at, id).
// The zero value points before the first message.
type MessageCursor struct {
	CreatedAt time.Time
	ID        int64
}

// IsZero reports whether c points before the first message.
func (c MessageCursor) IsZero() bool {
	return c.ID == 0 && c.CreatedAt.IsZero()
}
