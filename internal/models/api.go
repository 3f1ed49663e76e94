package models

import (
	"time"

	"github.com/google/uuid"
)

// --- Request Structs ---

// ChatRequest is the body of the relay endpoint (POST /v1/chat).
type ChatRequest struct {
	ThreadID string        `json:"threadId"`
	Messages []ChatMessage `json:"messages"`
}

// CreateThreadRequest defines the body for starting a conversation with a
// character. The title selects the character and is immutable afterwards.
type CreateThreadRequest struct {
	Title string `json:"title"`
}

// CreateMessageRequest defines the body for persisting a single message
// into a thread.
type CreateMessageRequest struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// --- Response Structs ---

// ThreadResponse is a thread as returned by the API, with the avatar
// resolved from the character catalog.
type ThreadResponse struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Avatar    string    `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ListThreadsResponse wraps the thread list for an owner.
type ListThreadsResponse struct {
	Threads []ThreadResponse `json:"threads"`
}

// MessageResponse is a persisted message as returned by the API.
type MessageResponse struct {
	ID        uuid.UUID `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ListMessagesResponse wraps a thread's message history, ordered by
// creation time ascending.
type ListMessagesResponse struct {
	Messages []MessageResponse `json:"messages"`
}

// CreateMessageResponse carries the store-assigned id back to the caller.
type CreateMessageResponse struct {
	ID uuid.UUID `json:"id"`
}

// ProfileResponse confirms a profile upsert.
type ProfileResponse struct {
	ID uuid.UUID `json:"id"`
}

// ErrorResponse defines a standard structure for JSON error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}
