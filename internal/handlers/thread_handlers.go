package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"characterchat-backend/internal/auth"
	"characterchat-backend/internal/characters"
	"characterchat-backend/internal/models"
	"characterchat-backend/internal/store"
	"characterchat-backend/pkg/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ThreadHandlers exposes the conversation store over HTTP: threads and their
// message histories, always scoped to the authenticated owner.
type ThreadHandlers struct {
	store store.Store
}

// NewThreadHandlers creates a new ThreadHandlers instance.
func NewThreadHandlers(s store.Store) *ThreadHandlers {
	return &ThreadHandlers{
		store: s,
	}
}

func mapThreadToResponse(t *models.Thread) models.ThreadResponse {
	return models.ThreadResponse{
		ID:        t.ID,
		Title:     t.Title,
		Avatar:    characters.AvatarForTitle(t.Title),
		CreatedAt: t.CreatedAt,
	}
}

// HandleListThreads handles GET /v1/threads.
func (h *ThreadHandlers) HandleListThreads(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	threads, err := h.store.ListThreadsByOwner(r.Context(), ownerID)
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to list threads")
		return
	}

	resp := models.ListThreadsResponse{Threads: make([]models.ThreadResponse, 0, len(threads))}
	for i := range threads {
		resp.Threads = append(resp.Threads, mapThreadToResponse(&threads[i]))
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleCreateThread handles POST /v1/threads. Starting a conversation with
// a character the owner already has a thread for returns the existing thread
// instead of creating a duplicate.
func (h *ThreadHandlers) HandleCreateThread(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req models.CreateThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Title is required")
		return
	}

	existing, err := h.store.ListThreadsByOwner(r.Context(), ownerID)
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to list threads")
		return
	}
	for i := range existing {
		if strings.EqualFold(existing[i].Title, title) {
			httputil.RespondJSON(w, http.StatusOK, mapThreadToResponse(&existing[i]))
			return
		}
	}

	thread, err := h.store.CreateThread(r.Context(), store.CreateThreadParams{
		OwnerID: ownerID,
		Title:   title,
	})
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to create thread")
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, mapThreadToResponse(thread))
}

// HandleListMessages handles GET /v1/threads/{threadID}/messages. Messages
// come back ordered by creation time ascending.
func (h *ThreadHandlers) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	threadID, err := uuid.Parse(chi.URLParam(r, "threadID"))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid thread ID")
		return
	}

	// Ownership check before touching the messages table.
	if _, err := h.store.GetThreadByID(r.Context(), threadID, ownerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.RespondError(w, http.StatusNotFound, "Thread not found")
			return
		}
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to get thread")
		return
	}

	messages, err := h.store.ListMessagesByThread(r.Context(), threadID)
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to list messages")
		return
	}

	resp := models.ListMessagesResponse{Messages: make([]models.MessageResponse, 0, len(messages))}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, models.MessageResponse{
			ID:        m.ID,
			Role:      models.Role(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleCreateMessage handles POST /v1/threads/{threadID}/messages and
// returns the store-assigned id the client reconciles its placeholder with.
func (h *ThreadHandlers) HandleCreateMessage(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	threadID, err := uuid.Parse(chi.URLParam(r, "threadID"))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid thread ID")
		return
	}

	var req models.CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Role != models.RoleUser && req.Role != models.RoleAssistant {
		httputil.RespondError(w, http.StatusBadRequest, "Role must be user or assistant")
		return
	}

	if _, err := h.store.GetThreadByID(r.Context(), threadID, ownerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.RespondError(w, http.StatusNotFound, "Thread not found")
			return
		}
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to get thread")
		return
	}

	msg, err := h.store.InsertMessage(r.Context(), store.InsertMessageParams{
		ThreadID: threadID,
		Role:     req.Role,
		Content:  req.Content,
	})
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to insert message")
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, models.CreateMessageResponse{ID: msg.ID})
}
