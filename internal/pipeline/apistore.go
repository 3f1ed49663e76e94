package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"characterchat-backend/internal/models"
)

// APIStore implements ConversationStore, ThreadStore and ProfileStore over
// the backend's REST API. It is what a remote client wires the pipeline and
// guards with; in-process callers can implement the same interfaces straight
// on the database store.
type APIStore struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewAPIStore creates an API-backed store for the given backend base URL and
// session token.
func NewAPIStore(baseURL, token string) *APIStore {
	return &APIStore{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
}

func (s *APIStore) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr models.ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// InsertMessage persists one message turn and returns the store-assigned id.
func (s *APIStore) InsertMessage(ctx context.Context, threadID string, role models.Role, content string) (string, error) {
	var resp models.CreateMessageResponse
	err := s.do(ctx, http.MethodPost, "/v1/threads/"+threadID+"/messages",
		models.CreateMessageRequest{Role: role, Content: content}, &resp)
	if err != nil {
		return "", err
	}
	return resp.ID.String(), nil
}

// ListMessages loads the persisted sequence for a thread, oldest first.
func (s *APIStore) ListMessages(ctx context.Context, threadID string) ([]models.Message, error) {
	var resp models.ListMessagesResponse
	if err := s.do(ctx, http.MethodGet, "/v1/threads/"+threadID+"/messages", nil, &resp); err != nil {
		return nil, err
	}
	messages := make([]models.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		created := m.CreatedAt
		messages = append(messages, models.Message{
			ID:        m.ID.String(),
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: &created,
			Status:    models.StatusSent,
		})
	}
	return messages, nil
}

// ListThreads returns the authenticated user's threads.
func (s *APIStore) ListThreads(ctx context.Context) ([]models.ThreadResponse, error) {
	var resp models.ListThreadsResponse
	if err := s.do(ctx, http.MethodGet, "/v1/threads", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Threads, nil
}

// CreateThread starts (or rejoins) a conversation with the given title.
func (s *APIStore) CreateThread(ctx context.Context, title string) (*models.ThreadResponse, error) {
	var resp models.ThreadResponse
	if err := s.do(ctx, http.MethodPost, "/v1/threads", models.CreateThreadRequest{Title: title}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpsertProfile ensures the authenticated user's profile row exists.
func (s *APIStore) UpsertProfile(ctx context.Context) error {
	return s.do(ctx, http.MethodPost, "/v1/profile", struct{}{}, nil)
}
