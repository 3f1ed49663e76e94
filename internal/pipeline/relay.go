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

// RelayClient is the HTTP implementation of Relay, talking to the backend's
// /v1/chat route. The response body is the plain-text token stream.
type RelayClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewRelayClient creates a relay client for the given backend base URL and
// session token.
func NewRelayClient(baseURL, token string) *RelayClient {
	return &RelayClient{
		// No client timeout: the stream stays open until the model finishes.
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
}

// StreamChat posts the history to the relay endpoint and returns the live
// response body. Non-200 responses are drained for their error text.
func (c *RelayClient) StreamChat(ctx context.Context, threadID string, messages []models.ChatMessage) (io.ReadCloser, error) {
	payload, err := json.Marshal(models.ChatRequest{ThreadID: threadID, Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		text := strings.TrimSpace(string(body))
		if text == "" {
			text = fmt.Sprintf("chat request failed with status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("%s", text)
	}

	return resp.Body, nil
}
