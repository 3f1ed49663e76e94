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
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time check to ensure PostgresStore implements store.Store
var _ store.Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const insertMessage = `-- name: InsertMessage :one
INSERT INTO messages (thread_id, role, content)
VALUES ($1, $2, $3)
RETURNING id, thread_id, role, content, created_at;
`

// InsertMessage persists one message turn. The id and created_at come back
// server-assigned.
func (s *PostgresStore) InsertMessage(ctx context.Context, arg store.InsertMessageParams) (*models.StoredMessage, error) {
	row := s.db.QueryRow(ctx, insertMessage, arg.ThreadID, string(arg.Role), arg.Content)

	msg := &models.StoredMessage{}
	err := row.Scan(
		&msg.ID,
		&msg.ThreadID,
		&msg.Role,
		&msg.Content,
		&msg.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			log.Printf("ERROR [PostgresStore] InsertMessage: PostgreSQL error for thread %s: Code=%s, Message=%s", arg.ThreadID, pgErr.Code, pgErr.Message)
		} else {
			log.Printf("ERROR [PostgresStore] InsertMessage: Failed to insert message for thread %s: %v", arg.ThreadID, err)
		}
		return nil, fmt.Errorf("database error inserting message: %w", err)
	}

	return msg, nil
}

const listMessagesByThread = `-- name: ListMessagesByThread :many
SELECT id, thread_id, role, content, created_at
FROM messages
WHERE thread_id = $1
ORDER BY created_at ASC;
`

// ListMessagesByThread returns a thread's messages ordered by creation time
// ascending, which is the order they render in.
func (s *PostgresStore) ListMessagesByThread(ctx context.Context, threadID uuid.UUID) ([]models.StoredMessage, error) {
	rows, err := s.db.Query(ctx, listMessagesByThread, threadID)
	if err != nil {
		log.Printf("ERROR [PostgresStore] ListMessagesByThread: Query failed for thread %s: %v", threadID, err)
		return nil, fmt.Errorf("database error listing messages: %w", err)
	}
	defer rows.Close()

	messages := []models.StoredMessage{}
	for rows.Next() {
		var msg models.StoredMessage
		if err := rows.Scan(&msg.ID, &msg.ThreadID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			log.Printf("ERROR [PostgresStore] ListMessagesByThread: Scan failed for thread %s: %v", threadID, err)
			return nil, fmt.Errorf("database error scanning message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database error iterating messages: %w", err)
	}

	return messages, nil
}

const upsertProfile = `-- name: UpsertProfile :one
INSERT INTO profiles (id)
VALUES ($1)
ON CONFLICT (id) DO UPDATE SET updated_at = NOW()
RETURNING id, created_at, updated_at;
`

// UpsertProfile ensures a profile row exists for the user. Safe to call on
// every session start.
func (s *PostgresStore) UpsertProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	row := s.db.QueryRow(ctx, upsertProfile, id)

	profile := &models.Profile{}
	if err := row.Scan(&profile.ID, &profile.CreatedAt, &profile.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		log.Printf("ERROR [PostgresStore] UpsertProfile: Failed for id %s: %v", id, err)
		return nil, fmt.Errorf("database error upserting profile: %w", err)
	}

	return profile, nil
}
