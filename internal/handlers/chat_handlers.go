package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"characterchat-backend/internal/models"
	"characterchat-backend/internal/provider"
)

// ChatHandlers relays chat completions between the client and the LLM
// provider. The provider's event-stream frames are decoded here and
// re-emitted to the client as plain text, one delta at a time.
type ChatHandlers struct {
	provider *provider.Client
}

// NewChatHandlers creates a new ChatHandlers instance.
func NewChatHandlers(providerClient *provider.Client) *ChatHandlers {
	return &ChatHandlers{
		provider: providerClient,
	}
}

// HandleRelayChat handles POST /v1/chat. It forwards the submitted history
// to the provider with streaming enabled and writes each decoded text delta
// to the response as raw bytes. Auth is enforced by the route middleware;
// error responses here are plain text because that is what the client reads
// straight off the stream.
func (h *ChatHandlers) HandleRelayChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}
	if req.ThreadID == "" || len(req.Messages) == 0 {
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	if !h.provider.Configured() {
		http.Error(w, "Missing GROQ_API_KEY", http.StatusInternalServerError)
		return
	}

	upstream, err := h.provider.StreamChat(r.Context(), req.Messages)
	if err != nil {
		var upstreamErr *provider.UpstreamError
		if errors.As(err, &upstreamErr) {
			log.Printf("ERROR [ChatHandlers] Upstream failure (status %d): %s", upstreamErr.Status, upstreamErr.Body)
		} else {
			log.Printf("ERROR [ChatHandlers] Provider request failed: %v", err)
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer upstream.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	err = provider.StreamDeltas(upstream, func(delta string) error {
		if _, werr := io.WriteString(w, delta); werr != nil {
			return werr
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		// Headers are long gone; all we can do is stop relaying and let the
		// connection close.
		log.Printf("ERROR [ChatHandlers] Relay stream ended early: %v", err)
	}
}
