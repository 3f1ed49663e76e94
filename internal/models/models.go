package models

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// MessageStatus tracks a message through the send pipeline.
// Statuses other than "sent" only ever exist in memory; the store never
// sees them.
type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusStreaming MessageStatus = "streaming"
	StatusFailed    MessageStatus = "failed"
	StatusSent      MessageStatus = "sent"
)

// Message is one turn of a conversation as the client sees it. ID is a
// string rather than a uuid.UUID because a message carries a locally
// generated temporary id (prefixed "temp-" or "assistant-") until the
// store assigns a durable one.
type Message struct {
	ID        string        `json:"id"`
	Role      Role          `json:"role"`
	Content   string        `json:"content"`
	CreatedAt *time.Time    `json:"created_at,omitempty"`
	Status    MessageStatus `json:"status,omitempty"`
}

// StoredMessage is a message row as persisted in the database.
type StoredMessage struct {
	ID        uuid.UUID `db:"id"`
	ThreadID  uuid.UUID `db:"thread_id"`
	Role      string    `db:"role"`
	Content   string    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
}

// Thread is a persisted conversation between a user and a character.
// The title is fixed at creation time.
type Thread struct {
	ID        uuid.UUID `db:"id"`
	OwnerID   uuid.UUID `db:"owner_id"`
	Title     string    `db:"title"`
	CreatedAt time.Time `db:"created_at"`
}

// Profile is the per-user row threads hang off. It is upserted on first
// use, before any thread exists.
type Profile struct {
	ID        uuid.UUID `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ChatMessage is the {role, content} pair sent over the wire to the relay
// and on to the LLM provider. Ids, timestamps and statuses are stripped.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
