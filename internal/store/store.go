package store

import (
	"context"
	"errors"

	"characterchat-backend/internal/models"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a specific record is not found.
var ErrNotFound = errors.New("record not found")

// InsertMessageParams contains parameters for persisting one message turn.
type InsertMessageParams struct {
	ThreadID uuid.UUID
	Role     models.Role
	Content  string
}

// CreateThreadParams contains parameters for creating a thread.
type CreateThreadParams struct {
	OwnerID uuid.UUID
	Title   string
}

// Store defines the interface for database operations.
// This allows for mocking in tests and potential DB backend switching.
type Store interface {
	// Message operations
	InsertMessage(ctx context.Context, arg InsertMessageParams) (*models.StoredMessage, error)
	ListMessagesByThread(ctx context.Context, threadID uuid.UUID) ([]models.StoredMessage, error)

	// Thread operations
	CreateThread(ctx context.Context, arg CreateThreadParams) (*models.Thread, error)
	GetThreadByID(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*models.Thread, error)
	ListThreadsByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Thread, error)

	// Profile operations
	UpsertProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}
