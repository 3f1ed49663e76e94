// Package provider implements the streaming chat-completion client for the
// upstream LLM API (Groq's OpenAI-compatible endpoint). The relay handler
// uses it to open a token stream and to decode the provider's event-stream
// frames into plain text deltas.
package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"characterchat-backend/internal/models"
)

// maxFrameSize bounds a single event-stream line (64KB).
const maxFrameSize = 64 * 1024

// Client talks to the provider's chat-completion endpoint. Construct it
// explicitly and pass it to whoever needs it; there is no package-level
// shared instance.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewClient creates a provider client. apiKey may be empty, in which case
// Configured reports false and StreamChat refuses to run.
func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		// No overall timeout: a streaming response stays open for as long
		// as the model keeps generating.
		httpClient: &http.Client{},
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
	}
}

// Configured reports whether a provider credential is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// completionRequest is the outbound payload, stream mode always on.
type completionRequest struct {
	Model    string               `json:"model"`
	Stream   bool                 `json:"stream"`
	Messages []models.ChatMessage `json:"messages"`
}

// streamChunk is one decoded provider frame. Delta carries incremental
// tokens; Message is the non-incremental fallback some providers emit for
// the final frame.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// deltaText extracts the incremental text from the first choice, preferring
// the streaming delta field over the full-message fallback.
func (c *streamChunk) deltaText() string {
	if len(c.Choices) == 0 {
		return ""
	}
	if c.Choices[0].Delta.Content != "" {
		return c.Choices[0].Delta.Content
	}
	return c.Choices[0].Message.Content
}

// UpstreamError is a non-success response from the provider. Body holds the
// provider's error text when it sent one.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	if e.Body != "" {
		return e.Body
	}
	return fmt.Sprintf("LLM request failed with status %d", e.Status)
}

// StreamChat opens a streaming completion request for the given history and
// returns the raw event-stream body. The caller owns the returned reader and
// must close it.
func (c *Client) StreamChat(ctx context.Context, messages []models.ChatMessage) (io.ReadCloser, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("provider API key is not configured")
	}

	payload, err := json.Marshal(completionRequest{
		Model:    c.model,
		Stream:   true,
		Messages: messages,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxFrameSize))
		return nil, &UpstreamError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return resp.Body, nil
}

// StreamDeltas reads newline-delimited "data:" frames from r and calls emit
// for every non-empty text delta, in frame order. Blank lines and non-data
// lines are discarded. A "data: [DONE]" sentinel ends the stream cleanly.
// Frames that fail to decode as JSON are logged and skipped so one bad frame
// cannot kill a live stream. Returns the first emit error, or the read error
// that ended the stream.
func StreamDeltas(r io.Reader, emit func(delta string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxFrameSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			log.Printf("WARN [provider] Dropping unparseable stream frame: %v", err)
			continue
		}
		if delta := chunk.deltaText(); delta != "" {
			if err := emit(delta); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}
