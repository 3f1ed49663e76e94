package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"

	"characterchat-backend/internal/models"
	"characterchat-backend/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- Thread Methods ---

const createThread = `-- name: CreateThread :one
INSERT INTO threads (owner_id, title)
VALUES ($1, $2)
RETURNING id, owner_id, title, created_at;
`

// CreateThread inserts a new thread for the owner. The title identifies the
// character the conversation is with and never changes afterwards.
func (s *PostgresStore) CreateThread(ctx context.Context, arg store.CreateThreadParams) (*models.Thread, error) {
	row := s.db.QueryRow(ctx, createThread, arg.OwnerID, arg.Title)

	thread := &models.Thread{}
	err := row.Scan(&thread.ID, &thread.OwnerID, &thread.Title, &thread.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			log.Printf("ERROR [PostgresStore] CreateThread: PostgreSQL error for owner %s: Code=%s, Message=%s", arg.OwnerID, pgErr.Code, pgErr.Message)
		} else {
			log.Printf("ERROR [PostgresStore] CreateThread: Failed for owner %s: %v", arg.OwnerID, err)
		}
		return nil, fmt.Errorf("database error creating thread: %w", err)
	}

	return thread, nil
}

const getThreadByID = `-- name: GetThreadByID :one
SELECT id, owner_id, title, created_at
FROM threads
WHERE id = $1 AND owner_id = $2;
`

// GetThreadByID retrieves a thread scoped to its owner.
// Returns store.ErrNotFound if the thread does not exist or belongs to
// someone else.
func (s *PostgresStore) GetThreadByID(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*models.Thread, error) {
	row := s.db.QueryRow(ctx, getThreadByID, id, ownerID)

	thread := &models.Thread{}
	err := row.Scan(&thread.ID, &thread.OwnerID, &thread.Title, &thread.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		log.Printf("ERROR [PostgresStore] GetThreadByID: Failed for thread %s: %v", id, err)
		return nil, fmt.Errorf("database error fetching thread: %w", err)
	}

	return thread, nil
}

const listThreadsByOwner = `-- name: ListThreadsByOwner :many
SELECT id, owner_id, title, created_at
FROM threads
WHERE owner_id = $1
ORDER BY created_at ASC;
`

// ListThreadsByOwner returns the owner's threads ordered by creation time
// ascending.
func (s *PostgresStore) ListThreadsByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Thread, error) {
	rows, err := s.db.Query(ctx, listThreadsByOwner, ownerID)
	if err != nil {
		log.Printf("ERROR [PostgresStore] ListThreadsByOwner: Query failed for owner %s: %v", ownerID, err)
		return nil, fmt.Errorf("database error listing threads: %w", err)
	}
	defer rows.Close()

	threads := []models.Thread{}
	for rows.Next() {
		var thread models.Thread
		if err := rows.Scan(&thread.ID, &thread.OwnerID, &thread.Title, &thread.CreatedAt); err != nil {
			log.Printf("ERROR [PostgresStore] ListThreadsByOwner: Scan failed for owner %s: %v", ownerID, err)
			return nil, fmt.Errorf("database error scanning thread: %w", err)
		}
		threads = append(threads, thread)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database error iterating threads: %w", err)
	}

	return threads, nil
}
