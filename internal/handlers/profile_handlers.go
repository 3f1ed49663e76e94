package handlers

import (
	"net/http"

	"characterchat-backend/internal/auth"
	"characterchat-backend/internal/characters"
	"characterchat-backend/internal/models"
	"characterchat-backend/internal/store"
	"characterchat-backend/pkg/httputil"
)

// ProfileHandlers covers the profile guard: a profile row must exist for the
// authenticated user before threads can reference it.
type ProfileHandlers struct {
	store store.Store
}

// NewProfileHandlers creates a new ProfileHandlers instance.
func NewProfileHandlers(s store.Store) *ProfileHandlers {
	return &ProfileHandlers{
		store: s,
	}
}

// HandleUpsertProfile handles POST /v1/profile. Idempotent.
func (h *ProfileHandlers) HandleUpsertProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	profile, err := h.store.UpsertProfile(r.Context(), userID)
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to upsert profile")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, models.ProfileResponse{ID: profile.ID})
}

// HandleListCharacters handles GET /v1/characters: the static catalog users
// pick a conversation partner from.
func HandleListCharacters(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, characters.Defaults)
}
